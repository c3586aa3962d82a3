package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为，所有数据源共享同一份参数。
type GlobalConfig struct {
	ListenPort    int    `mapstructure:"ListenPort"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`

	// StaleTime/CacheTime 是新鲜度窗口的全局默认值，可被 Source 覆盖。
	StaleTime     Duration `mapstructure:"StaleTime"`
	CacheTime     Duration `mapstructure:"CacheTime"`
	SweepInterval Duration `mapstructure:"SweepInterval"`

	RevalidateOnFocus     bool `mapstructure:"RevalidateOnFocus"`
	RevalidateOnReconnect bool `mapstructure:"RevalidateOnReconnect"`

	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
}

// SourceConfig 描述一个后端数据源：仪表盘组件通过它读取 harness 的状态数据。
type SourceConfig struct {
	Name      string   `mapstructure:"Name"`
	Upstream  string   `mapstructure:"Upstream"`
	StaleTime Duration `mapstructure:"StaleTime"`
	CacheTime Duration `mapstructure:"CacheTime"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global  GlobalConfig   `mapstructure:",squash"`
	Sources []SourceConfig `mapstructure:"Source"`
}

// EffectiveStaleTime 返回特定 Source 生效的新鲜窗口，未覆盖时回退至全局值。
func (c *Config) EffectiveStaleTime(s SourceConfig) time.Duration {
	if s.StaleTime.DurationValue() > 0 {
		return s.StaleTime.DurationValue()
	}
	return c.Global.StaleTime.DurationValue()
}

// EffectiveCacheTime 返回特定 Source 生效的缓存窗口，未覆盖时回退至全局值。
func (c *Config) EffectiveCacheTime(s SourceConfig) time.Duration {
	if s.CacheTime.DurationValue() > 0 {
		return s.CacheTime.DurationValue()
	}
	return c.Global.CacheTime.DurationValue()
}
