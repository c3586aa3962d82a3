package swr

import (
	"sort"
	"time"
)

// scheduleRevalidateLocked 为 key 登记一次后台刷新。键上已有 in-flight
// 拉取时直接跳过（去重）；fetcher 为 nil 时回退到该键记忆的最近一次
// fetcher。调用方必须持有 c.mu。
func (c *Cache[T]) scheduleRevalidateLocked(key string, fetcher FetchFunc[T], cfg fetchConfig) {
	if fetcher == nil {
		fetcher = c.fetchers[key]
	}
	if fetcher == nil {
		return
	}
	if _, busy := c.inflight[key]; busy {
		return
	}

	fl := newInflight[T]()
	c.inflight[key] = fl
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.revalidate(key, fetcher, cfg, fl)
	}()
}

// revalidate 尽力刷新一个条目：成功则写入并通知订阅者，失败只记日志，
// 绝不抛出，也绝不清除仍在展示的过时值。
func (c *Cache[T]) revalidate(key string, fetcher FetchFunc[T], cfg fetchConfig, fl *inflight[T]) {
	data, err := safeFetch(c.ctx, fetcher)

	c.mu.Lock()
	delete(c.inflight, key)
	if err != nil {
		c.mu.Unlock()
		fl.resolve(Result[T]{}, err)
		c.logger.WithField("key", key).WithError(err).Warn("revalidate_failed")
		return
	}
	c.entries[key] = &entry[T]{data: data, timestamp: time.Now(), cacheTime: cfg.cacheTime}
	subs := c.deliverableLocked(key)
	c.mu.Unlock()

	c.notify(subs, data, true)
	fl.resolve(Result[T]{Data: data}, nil)
}

// RevalidateAll 对所有"当前有订阅者且记忆过 fetcher"的键各发起一次
// 去重后的后台刷新，供 focus/reconnect 信号复用。
func (c *Cache[T]) RevalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	keys := make([]string, 0, len(c.subs))
	for key, list := range c.subs {
		if len(list) == 0 {
			continue
		}
		if _, ok := c.fetchers[key]; ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	cfg := fetchConfig{staleTime: c.opts.StaleTime, cacheTime: c.opts.CacheTime}
	for _, key := range keys {
		c.scheduleRevalidateLocked(key, nil, cfg)
	}
}

// OnFocus 处理宿主的 focus 信号，仅在配置开启时触发全量刷新。
func (c *Cache[T]) OnFocus() {
	if !c.opts.RevalidateOnFocus {
		return
	}
	c.RevalidateAll()
}

// OnReconnect 处理宿主的网络恢复信号，仅在配置开启时触发全量刷新。
func (c *Cache[T]) OnReconnect() {
	if !c.opts.RevalidateOnReconnect {
		return
	}
	c.RevalidateAll()
}

// sweepLoop 周期性清理超过缓存窗口的条目。单一 goroutine 扫描取代
// 每条目一个定时器，键数量增长时资源占用仍然有界。
func (c *Cache[T]) sweepLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case now := <-ticker.C:
			if removed := c.sweep(now); removed > 0 {
				c.logger.WithField("evicted", removed).Debug("sweep_complete")
			}
		}
	}
}

// sweep 删除年龄超过写入时 cacheTime 的条目。扫描时读取条目当前的
// 时间戳，刚刷新过的条目自然躲过本轮回收。
func (c *Cache[T]) sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, ent := range c.entries {
		window := ent.cacheTime
		if window <= 0 {
			window = c.opts.CacheTime
		}
		if now.Sub(ent.timestamp) >= window {
			delete(c.entries, key)
			// 无人订阅的键连同记忆的 fetcher 一起回收。
			if len(c.subs[key]) == 0 {
				delete(c.fetchers, key)
			}
			removed++
		}
	}
	return removed
}
