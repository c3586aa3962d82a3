package swr

import "time"

// 缺省窗口与清扫周期，与配置层的默认值保持一致。
const (
	DefaultStaleTime     = 5 * time.Minute
	DefaultCacheTime     = 10 * time.Minute
	DefaultSweepInterval = time.Minute
)

// Options 描述一个 Cache 实例的全局行为，字段零值回退到缺省值。
type Options struct {
	// StaleTime 之内的条目视为新鲜，读取不触发任何网络调用。
	StaleTime time.Duration
	// CacheTime 之外的条目视同不存在；StaleTime 必须不大于 CacheTime。
	CacheTime time.Duration
	// SweepInterval 控制后台清扫的周期。
	SweepInterval time.Duration
	// RevalidateOnFocus/RevalidateOnReconnect 决定宿主信号是否触发全量刷新。
	RevalidateOnFocus     bool
	RevalidateOnReconnect bool
}

// fetchConfig 是单次调用生效的窗口，默认取实例配置，可被 FetchOption 覆盖。
type fetchConfig struct {
	staleTime time.Duration
	cacheTime time.Duration
}

// FetchOption 按调用粒度覆盖窗口配置。
type FetchOption func(*fetchConfig)

// WithStaleTime 覆盖本次调用的新鲜窗口。超过生效缓存窗口时会被钳制，
// 保证 stale 分支始终可达。
func WithStaleTime(d time.Duration) FetchOption {
	return func(cfg *fetchConfig) {
		if d > 0 {
			cfg.staleTime = d
		}
	}
}

// WithCacheTime 覆盖本次调用的缓存窗口。
func WithCacheTime(d time.Duration) FetchOption {
	return func(cfg *fetchConfig) {
		if d > 0 {
			cfg.cacheTime = d
		}
	}
}

func (o *Options) normalize() {
	if o.StaleTime <= 0 {
		o.StaleTime = DefaultStaleTime
	}
	if o.CacheTime <= 0 {
		o.CacheTime = DefaultCacheTime
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = DefaultSweepInterval
	}
}
