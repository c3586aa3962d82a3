package swr

import (
	"context"
	"regexp"
	"sort"
	"time"
)

// Invalidate 删除条目并以 ok=false 通知订阅者。键不存在时是安全的
// 空操作，不会产生重复通知。
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	_, existed := c.entries[key]
	delete(c.entries, key)
	delete(c.fetchers, key)
	var subs []*subscriber[T]
	if existed {
		subs = c.deliverableLocked(key)
	}
	c.mu.Unlock()

	if existed {
		var zero T
		c.notify(subs, zero, false)
	}
}

// InvalidatePattern 删除所有匹配 re 的键并逐一通知，返回删除数量。
// 用于粗粒度的分组失效，例如清掉所有 "session-" 前缀的键。
func (c *Cache[T]) InvalidatePattern(re *regexp.Regexp) int {
	if re == nil {
		return 0
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0
	}
	var matched []string
	for key := range c.entries {
		if re.MatchString(key) {
			matched = append(matched, key)
		}
	}
	sort.Strings(matched)

	notifications := make([][]*subscriber[T], len(matched))
	for i, key := range matched {
		delete(c.entries, key)
		delete(c.fetchers, key)
		notifications[i] = c.deliverableLocked(key)
	}
	c.mu.Unlock()

	var zero T
	for _, subs := range notifications {
		c.notify(subs, zero, false)
	}
	return len(matched)
}

// Prefetch 预热一个键：已有未过期条目时不做任何事，否则执行常规拉取
// 并丢弃结果。任何错误都不会上抛，只以 debug 级别记录。
func (c *Cache[T]) Prefetch(ctx context.Context, key string, fetcher FetchFunc[T], opts ...FetchOption) {
	cfg := c.fetchConfig(opts)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	ent, ok := c.entries[key]
	if tier := classify(ent, ok, time.Now(), cfg); tier == TierFresh || tier == TierStale {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if _, err := c.Fetch(ctx, key, fetcher, opts...); err != nil {
		c.logger.WithField("key", key).WithError(err).Debug("prefetch_failed")
	}
}
