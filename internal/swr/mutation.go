package swr

import (
	"sync"
	"time"
)

// Mutate 无条件覆盖条目并刷新时间戳，随后通知订阅者。
// 用于服务端写入已确认之后同步本地视图。
func (c *Cache[T]) Mutate(key string, data T) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.entries[key] = &entry[T]{data: data, timestamp: time.Now(), cacheTime: c.opts.CacheTime}
	subs := c.deliverableLocked(key)
	c.mu.Unlock()

	c.notify(subs, data, true)
}

// OptimisticUpdate 表示一次可回滚的乐观写入。缓存不会在超时或出错时
// 自动回滚，写入未被服务端确认时由调用方负责调用 Rollback。
type OptimisticUpdate[T any] struct {
	cache      *Cache[T]
	key        string
	prev       T
	had        bool
	onRollback func()
	once       sync.Once
}

// Optimistic 捕获 key 当前的值（可能不存在），用 update 计算新值并通过
// Mutate 立即应用，返回可回滚的句柄。update 的 ok 参数表示旧值是否存在。
func (c *Cache[T]) Optimistic(key string, update func(old T, ok bool) T, onRollback func()) *OptimisticUpdate[T] {
	c.mu.Lock()
	var prev T
	had := false
	if ent, ok := c.entries[key]; ok {
		prev = ent.data
		had = true
	}
	c.mu.Unlock()

	// update 在锁外执行，允许其内部再访问缓存。
	c.Mutate(key, update(prev, had))

	return &OptimisticUpdate[T]{
		cache:      c,
		key:        key,
		prev:       prev,
		had:        had,
		onRollback: onRollback,
	}
}

// Rollback 恢复乐观写入之前的精确状态：有旧值则写回旧值，原本不存在
// 则重新失效删除，随后调用注册的 onRollback。重复调用只生效一次。
func (u *OptimisticUpdate[T]) Rollback() {
	u.once.Do(func() {
		if u.had {
			u.cache.Mutate(u.key, u.prev)
		} else {
			u.cache.Invalidate(u.key)
		}
		if u.onRollback != nil {
			u.onRollback()
		}
	})
}
