package swr

import (
	"context"
	"time"
)

// Tier 表示条目在读取时刻的新鲜度分层，由条目年龄与窗口配置共同决定。
type Tier uint8

const (
	// TierAbsent 表示键不存在，必须走硬拉取路径。
	TierAbsent Tier = iota
	// TierFresh 表示年龄 < StaleTime，直接返回缓存值。
	TierFresh
	// TierStale 表示 StaleTime <= 年龄 < CacheTime，返回缓存值并触发后台刷新。
	TierStale
	// TierExpired 表示年龄 >= CacheTime，视同不存在，等待清扫回收。
	TierExpired
)

// entry 是键对应的存储单元。cacheTime 记录写入时生效的缓存窗口，
// 清扫循环据此判断过期，避免读取路径的 per-call 覆盖影响回收。
type entry[T any] struct {
	data      T
	timestamp time.Time
	cacheTime time.Duration
}

// FetchFunc 由调用方提供，负责实际产出数据（通常封装一次上游读取）。
// 要求幂等且无副作用；同一键的并发调用会被合并为一次执行。
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Result 描述一次 Fetch 的结果。FromCache 为 true 时 Data 来自缓存；
// Revalidating 表示已触发后台刷新；Err 仅在降级返回过期值时携带拉取错误，
// 调用方应将其视为"展示缓存值 + 非阻塞警告"，而非硬失败。
type Result[T any] struct {
	Data         T
	FromCache    bool
	Revalidating bool
	Err          error
}

// classify 根据条目年龄与本次调用的窗口配置计算新鲜度分层。
func classify[T any](ent *entry[T], ok bool, now time.Time, cfg fetchConfig) Tier {
	if !ok {
		return TierAbsent
	}
	age := now.Sub(ent.timestamp)
	switch {
	case age < cfg.staleTime:
		return TierFresh
	case age < cfg.cacheTime:
		return TierStale
	default:
		return TierExpired
	}
}
