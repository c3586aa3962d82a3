package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
// StaleTime 大于 CacheTime 属于直接拒绝的配置：这样的窗口顺序会让
// "过时但可后台刷新" 的分支永远不可达。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StaleTime.DurationValue() <= 0 {
		return newFieldError("Global.StaleTime", "必须大于 0")
	}
	if g.CacheTime.DurationValue() <= 0 {
		return newFieldError("Global.CacheTime", "必须大于 0")
	}
	if g.StaleTime.DurationValue() > g.CacheTime.DurationValue() {
		return newFieldError("Global.StaleTime", "不能大于 CacheTime")
	}
	if g.SweepInterval.DurationValue() <= 0 {
		return newFieldError("Global.SweepInterval", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}

	if len(c.Sources) == 0 {
		return errors.New("至少需要配置一个 Source")
	}

	seenNames := map[string]struct{}{}
	for i := range c.Sources {
		source := &c.Sources[i]
		if source.Name == "" {
			return newFieldError("Source[].Name", "不能为空")
		}
		if strings.ContainsAny(source.Name, " /") {
			return newFieldError(sourceField(source.Name, "Name"), "不允许包含空格或斜杠")
		}
		if _, exists := seenNames[source.Name]; exists {
			return newFieldError(sourceField(source.Name, "Name"), "重复")
		}
		seenNames[source.Name] = struct{}{}

		if err := validateUpstream(source.Upstream); err != nil {
			return fmt.Errorf("%s: %w", sourceField(source.Name, "Upstream"), err)
		}

		// Source 级窗口覆盖同样必须满足 StaleTime <= CacheTime。
		stale := c.EffectiveStaleTime(*source)
		cache := c.EffectiveCacheTime(*source)
		if stale > cache {
			return newFieldError(sourceField(source.Name, "StaleTime"), "不能大于生效的 CacheTime")
		}
	}

	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
