package swr

import (
	"context"
	"fmt"
)

// inflight 代表某个键上唯一的一次未结算拉取。等待者在 done 关闭后读取
// res/err，写入先于 close 发生，天然满足 happens-before。
type inflight[T any] struct {
	done chan struct{}
	res  Result[T]
	err  error
}

func newInflight[T any]() *inflight[T] {
	return &inflight[T]{done: make(chan struct{})}
}

// resolve 结算共享结果。只允许调用一次，由持有槽位的一方负责。
func (f *inflight[T]) resolve(res Result[T], err error) {
	f.res = res
	f.err = err
	close(f.done)
}

// safeFetch 执行 fetcher 并把 panic 折算为普通错误，保证无论前台还是
// 后台路径都不会因为一个行为不端的 fetcher 留下永不结算的槽位。
func safeFetch[T any](ctx context.Context, fetcher FetchFunc[T]) (data T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetcher panic: %v", r)
		}
	}()
	return fetcher(ctx)
}

// joinOrLeadLocked 在持锁状态下完成 check-and-insert：槽位已存在则加入
// 等待（合并请求），否则登记新槽位并成为执行者。这一步必须原子，
// 否则同一键可能出现两次并发拉取。
func (c *Cache[T]) joinOrLeadLocked(key string) (*inflight[T], bool) {
	if fl, ok := c.inflight[key]; ok {
		return fl, false
	}
	fl := newInflight[T]()
	c.inflight[key] = fl
	return fl, true
}
