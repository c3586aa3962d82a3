package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DataHandler describes the component that serves cached source data. It
// allows injecting fake handlers during tests.
type DataHandler interface {
	Handle(fiber.Ctx, *SourceRoute) error
	HandleInvalidate(fiber.Ctx, *SourceRoute) error
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger     *logrus.Logger
	Registry   *SourceRegistry
	Data       DataHandler
	Signals    SignalReceiver
	ListenPort int
	// WatchTimeout 限定 /-/watch 长轮询的最大挂起时间，零值取默认 30s。
	WatchTimeout time.Duration
}

// SignalReceiver 接收浏览器转发的 focus/reconnect 信号并触发整体刷新。
type SignalReceiver interface {
	OnFocus()
	OnReconnect()
}

// Watcher 提供按键订阅能力，/-/watch 长轮询依赖它等待下一次变更。
type Watcher interface {
	Subscribe(key string, fn func(Payload, bool)) func()
}

const (
	contextKeyRequestID = "_dashhub_request_id"

	defaultWatchTimeout = 30 * time.Second
)

// NewApp builds a Fiber application exposing the data, signal, and
// invalidation surfaces with structured error handling.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("source registry is required")
	}
	if opts.Data == nil {
		return nil, errors.New("data handler is required")
	}
	if opts.Signals == nil {
		return nil, errors.New("signal receiver is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())

	app.Get("/api/:source/*", sourceHandler(opts, opts.Data.Handle))
	app.Delete("/api/:source/*", sourceHandler(opts, opts.Data.HandleInvalidate))

	app.Post("/-/signal/focus", signalHandler(opts, "focus"))
	app.Post("/-/signal/reconnect", signalHandler(opts, "reconnect"))
	app.Post("/-/invalidate", invalidateHandler(opts))
	app.Get("/-/healthz", func(c fiber.Ctx) error {
		payload := fiber.Map{"status": "ok"}
		if stats, ok := opts.Signals.(interface{ Len() int }); ok {
			payload["cache_entries"] = stats.Len()
		}
		return c.JSON(payload)
	})

	return app, nil
}

// RegisterWatchRoutes 挂载 /-/watch 长轮询接口。独立注册是为了让不需要
// 订阅语义的测试装配保持精简。
func RegisterWatchRoutes(app *fiber.App, opts AppOptions, watcher Watcher) {
	if app == nil || watcher == nil {
		return
	}
	app.Get("/-/watch/:source/*", watchHandler(opts, watcher))
}

// requestIDMiddleware 为每个请求生成 UUID 并写入响应头，便于跨日志串联。
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// sourceHandler 解析 :source 段并查找 SourceRoute，未注册的名称统一 404。
func sourceHandler(opts AppOptions, next func(fiber.Ctx, *SourceRoute) error) fiber.Handler {
	return func(c fiber.Ctx) error {
		name := c.Params("source")
		route, ok := opts.Registry.Lookup(name)
		if !ok {
			return renderSourceUnknown(c, opts.Logger, name)
		}
		return next(c, route)
	}
}

func signalHandler(opts AppOptions, kind string) fiber.Handler {
	return func(c fiber.Ctx) error {
		switch kind {
		case "focus":
			opts.Signals.OnFocus()
		case "reconnect":
			opts.Signals.OnReconnect()
		}

		opts.Logger.WithFields(logrus.Fields{
			"action":     "signal",
			"signal":     kind,
			"request_id": RequestID(c),
		}).Info("signal_received")

		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"signal": kind})
	}
}

type invalidateRequest struct {
	Pattern string `json:"pattern"`
}

// Invalidator 抽象批量失效入口，便于测试替换。
type Invalidator interface {
	InvalidatePattern(re *regexp.Regexp) int
}

func invalidateHandler(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		inv, ok := opts.Signals.(Invalidator)
		if !ok {
			return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": "invalidate_unsupported"})
		}

		var req invalidateRequest
		if err := json.Unmarshal(c.Body(), &req); err != nil || req.Pattern == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "pattern_required"})
		}

		re, err := regexp.Compile(req.Pattern)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "pattern_invalid"})
		}

		removed := inv.InvalidatePattern(re)
		opts.Logger.WithFields(logrus.Fields{
			"action":     "invalidate_pattern",
			"pattern":    req.Pattern,
			"removed":    removed,
			"request_id": RequestID(c),
		}).Info("cache_invalidated")

		return c.JSON(fiber.Map{"removed": removed})
	}
}

// watchHandler 订阅缓存键并挂起请求，直到下一次数据变更或超时。
// 数据被失效（ok=false）时返回 410，提示面板重新发起数据请求。
func watchHandler(opts AppOptions, watcher Watcher) fiber.Handler {
	type event struct {
		payload Payload
		ok      bool
	}

	timeout := opts.WatchTimeout
	if timeout <= 0 {
		timeout = defaultWatchTimeout
	}

	return func(c fiber.Ctx) error {
		name := c.Params("source")
		route, ok := opts.Registry.Lookup(name)
		if !ok {
			return renderSourceUnknown(c, opts.Logger, name)
		}

		rel, rawQuery := requestDataPath(c)
		key := CacheKey(route.Config.Name, rel, rawQuery)

		// 容量 1 + 非阻塞写：订阅回调绝不能阻塞缓存的通知循环。
		ch := make(chan event, 1)
		unsubscribe := watcher.Subscribe(key, func(p Payload, ok bool) {
			select {
			case ch <- event{payload: p, ok: ok}:
			default:
			}
		})
		defer unsubscribe()

		timer := time.NewTimer(timeout)
		defer timer.Stop()

		var ctx context.Context = context.Background()
		if reqCtx := c.Context(); reqCtx != nil {
			ctx = reqCtx
		}
		select {
		case ev := <-ch:
			if !ev.ok {
				return c.SendStatus(fiber.StatusGone)
			}
			contentType := ev.payload.ContentType
			if contentType == "" {
				contentType = fiber.MIMEApplicationJSON
			}
			c.Set("X-Dash-Hub-Source", route.Config.Name)
			c.Set(fiber.HeaderContentType, contentType)
			return c.Status(fiber.StatusOK).Send(ev.payload.Body)
		case <-timer.C:
			return c.SendStatus(fiber.StatusNoContent)
		case <-ctx.Done():
			return nil
		}
	}
}

func renderSourceUnknown(c fiber.Ctx, logger *logrus.Logger, name string) error {
	logger.WithFields(logrus.Fields{
		"action": "source_lookup",
		"source": name,
	}).Warn("source unknown")

	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "source_unknown",
	})
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
