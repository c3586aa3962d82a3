package swr

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrClosed 表示缓存已关闭，不再接受任何操作。
	ErrClosed = errors.New("swr: cache is closed")
	// ErrWindowOrder 表示 StaleTime 大于 CacheTime，该配置会让 stale 分支永远不可达。
	ErrWindowOrder = errors.New("swr: stale window exceeds cache window")
	// ErrNoFetcher 表示硬拉取路径缺少 fetcher，无法产出数据。
	ErrNoFetcher = errors.New("swr: fetcher required")
)

// Cache 是进程内共享的 SWR 存储。所有变更都经由公开方法完成，
// 内部 map 不对外暴露。每个实例拥有自己的清扫 goroutine，用完需 Close。
type Cache[T any] struct {
	opts   Options
	logger logrus.FieldLogger

	mu       sync.Mutex
	entries  map[string]*entry[T]
	inflight map[string]*inflight[T]
	subs     map[string][]*subscriber[T]
	fetchers map[string]FetchFunc[T]
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 构建一个 Cache 并启动后台清扫。StaleTime 大于 CacheTime 时直接拒绝，
// 而不是静默钳制，配置层会在启动前给出同样的报错。
func New[T any](opts Options, logger logrus.FieldLogger) (*Cache[T], error) {
	opts.normalize()
	if opts.StaleTime > opts.CacheTime {
		return nil, ErrWindowOrder
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache[T]{
		opts:     opts,
		logger:   logger,
		entries:  make(map[string]*entry[T]),
		inflight: make(map[string]*inflight[T]),
		subs:     make(map[string][]*subscriber[T]),
		fetchers: make(map[string]FetchFunc[T]),
		ctx:      ctx,
		cancel:   cancel,
	}

	c.wg.Add(1)
	go c.sweepLoop()

	return c, nil
}

// Fetch 按新鲜度分层返回 key 对应的数据：
//
//   - 新鲜：直接返回缓存值，不触发 fetcher；
//   - 过时：立即返回缓存值并触发一次去重后的后台刷新；
//   - 过期/缺失：走硬拉取路径，同一键的并发调用共享同一次 fetcher 执行。
//
// 硬拉取失败时，若内存中仍残留（已过期的）旧值，则降级返回旧值并在
// Result.Err 上携带错误；否则错误直接返回给调用方。
func (c *Cache[T]) Fetch(ctx context.Context, key string, fetcher FetchFunc[T], opts ...FetchOption) (Result[T], error) {
	cfg := c.fetchConfig(opts)
	now := time.Now()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Result[T]{}, ErrClosed
	}
	if fetcher != nil {
		c.fetchers[key] = fetcher
	}

	ent, ok := c.entries[key]
	switch classify(ent, ok, now, cfg) {
	case TierFresh:
		res := Result[T]{Data: ent.data, FromCache: true}
		c.mu.Unlock()
		return res, nil
	case TierStale:
		res := Result[T]{Data: ent.data, FromCache: true, Revalidating: true}
		c.scheduleRevalidateLocked(key, fetcher, cfg)
		c.mu.Unlock()
		return res, nil
	}

	if fetcher == nil {
		c.mu.Unlock()
		return Result[T]{Err: ErrNoFetcher}, ErrNoFetcher
	}

	fl, leader := c.joinOrLeadLocked(key)
	c.mu.Unlock()

	if leader {
		c.lead(ctx, key, fetcher, cfg, fl)
	} else {
		<-fl.done
	}
	return c.settle(key, fl)
}

// lead 执行真正的 fetcher 调用并结算 in-flight 槽位。无论成败，
// 槽位都会被无条件清除，避免失败请求永久阻塞后续拉取。
func (c *Cache[T]) lead(ctx context.Context, key string, fetcher FetchFunc[T], cfg fetchConfig, fl *inflight[T]) {
	data, err := safeFetch(ctx, fetcher)

	c.mu.Lock()
	delete(c.inflight, key)
	if err != nil {
		c.mu.Unlock()
		fl.resolve(Result[T]{}, err)
		return
	}
	c.entries[key] = &entry[T]{data: data, timestamp: time.Now(), cacheTime: cfg.cacheTime}
	subs := c.deliverableLocked(key)
	c.mu.Unlock()

	c.notify(subs, data, true)
	fl.resolve(Result[T]{Data: data}, nil)
}

// settle 将 in-flight 的共享结果转换为调用方视角的 Result，
// 失败时补做降级判断（每个等待者都可能看到不同的残留旧值状态）。
func (c *Cache[T]) settle(key string, fl *inflight[T]) (Result[T], error) {
	if fl.err == nil {
		return fl.res, nil
	}

	c.mu.Lock()
	ent, ok := c.entries[key]
	c.mu.Unlock()
	if ok {
		return Result[T]{Data: ent.data, FromCache: true, Err: fl.err}, nil
	}
	return Result[T]{Err: fl.err}, fl.err
}

// Len 返回当前驻留的条目数，包含已过期但尚未被清扫的条目。
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear 清空全部条目与记忆的 fetcher，用于停机或测试 teardown。
// 订阅关系保留，不触发通知。
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry[T])
	c.fetchers = make(map[string]FetchFunc[T])
}

// Close 停止后台 goroutine 并拒绝后续操作。可重复调用。
func (c *Cache[T]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	c.wg.Wait()
	return nil
}

// fetchConfig 叠加实例默认值与 per-call 覆盖，并把 staleTime 钳制到
// 生效的 cacheTime 之内。
func (c *Cache[T]) fetchConfig(opts []FetchOption) fetchConfig {
	cfg := fetchConfig{
		staleTime: c.opts.StaleTime,
		cacheTime: c.opts.CacheTime,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.staleTime > cfg.cacheTime {
		cfg.staleTime = cfg.cacheTime
	}
	return cfg
}
