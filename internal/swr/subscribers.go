package swr

import "sync/atomic"

// subscriber 持有单个回调。active 在退订时清零，通知循环在每次调用前
// 复查，保证刚退订的回调不会再被触发。
type subscriber[T any] struct {
	fn     func(data T, ok bool)
	active atomic.Bool
}

// Subscribe 注册 key 上的数据变更回调，返回幂等的退订函数。
// 回调的 ok 参数在条目被失效删除时为 false，此时 data 为零值，
// 语义为"数据已不存在，需要时请重新拉取"。
func (c *Cache[T]) Subscribe(key string, fn func(data T, ok bool)) func() {
	sub := &subscriber[T]{fn: fn}
	sub.active.Store(true)

	c.mu.Lock()
	c.subs[key] = append(c.subs[key], sub)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if !sub.active.Swap(false) {
			return
		}
		list := c.subs[key]
		for i, s := range list {
			if s == sub {
				c.subs[key] = append(list[:i], list[i+1:]...)
				break
			}
		}
		// 最后一个订阅者离开后立即裁剪空集合。
		if len(c.subs[key]) == 0 {
			delete(c.subs, key)
		}
	}
}

// deliverableLocked 在持锁状态下快照 key 的订阅者列表（保持注册顺序）。
// 调用方随后在锁外完成投递，避免回调内再次进入缓存时死锁。
func (c *Cache[T]) deliverableLocked(key string) []*subscriber[T] {
	list := c.subs[key]
	if len(list) == 0 {
		return nil
	}
	snapshot := make([]*subscriber[T], len(list))
	copy(snapshot, list)
	return snapshot
}

// notify 按注册顺序投递变更。存储写入先于快照获取，因此订阅者不会观察到
// 数据与通知不一致的情形。
func (c *Cache[T]) notify(subs []*subscriber[T], data T, ok bool) {
	for _, sub := range subs {
		if sub.active.Load() {
			sub.fn(data, ok)
		}
	}
}
