package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// SourceFields 提供数据源/缓存状态字段，供数据请求日志复用。
// cacheState 取值 hit/stale/miss，degraded 表示本次响应走了降级路径。
func SourceFields(source, key, cacheState string, degraded bool) logrus.Fields {
	return logrus.Fields{
		"source":      source,
		"key":         key,
		"cache_state": cacheState,
		"degraded":    degraded,
	}
}
