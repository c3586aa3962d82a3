package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/dash-hub/dash-hub/internal/logging"
	"github.com/dash-hub/dash-hub/internal/swr"
)

// Payload 是缓存中保存的上游响应快照。Body 持有完整响应体，
// ContentType 记录上游声明的类型，回放时原样透出。
type Payload struct {
	Body        []byte
	ContentType string
}

// 上游响应体上限。监控面板的数据接口都是小 JSON，超过上限视为异常响应。
const maxPayloadBytes = 8 << 20

// Handler 将 /api/:source/* 请求翻译成缓存读取，缓存未命中或过期时
// 通过共享 http.Client 拉取上游并写回缓存。
type Handler struct {
	client *http.Client
	logger *logrus.Logger
	cache  *swr.Cache[Payload]
}

// NewHandler 构建数据处理器，依赖均由启动阶段注入。
func NewHandler(client *http.Client, logger *logrus.Logger, cache *swr.Cache[Payload]) *Handler {
	return &Handler{client: client, logger: logger, cache: cache}
}

// Handle 处理 GET 数据请求：命中新鲜缓存直接返回；命中陈旧缓存返回旧值并
// 触发后台刷新；未命中则同步拉取上游。上游失败但仍有驻留旧值时降级返回旧值。
func (h *Handler) Handle(c fiber.Ctx, route *SourceRoute) error {
	started := time.Now()
	requestID := RequestID(c)
	rel, rawQuery := requestDataPath(c)
	key := CacheKey(route.Config.Name, rel, rawQuery)

	var ctx context.Context = context.Background()
	if reqCtx := c.Context(); reqCtx != nil {
		ctx = reqCtx
	}

	res, err := h.cache.Fetch(ctx, key, h.fetcher(route, rel, rawQuery),
		swr.WithStaleTime(route.StaleTime),
		swr.WithCacheTime(route.CacheTime),
	)
	if err != nil {
		h.logResult(route, key, "miss", requestID, started, err)
		return h.writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}

	state := cacheState(res)
	c.Set("X-Dash-Hub-Source", route.Config.Name)
	c.Set("X-Dash-Hub-Cache", state)
	if res.Err != nil {
		// 降级：上游失败，但过期数据仍驻留，照常返回并打标。
		c.Set("X-Dash-Hub-Degraded", "true")
	}

	h.logResult(route, key, state, requestID, started, res.Err)

	contentType := res.Data.ContentType
	if contentType == "" {
		contentType = fiber.MIMEApplicationJSON
	}
	c.Set(fiber.HeaderContentType, contentType)
	return c.Status(fiber.StatusOK).Send(res.Data.Body)
}

// HandleInvalidate 处理 DELETE 数据请求，移除对应缓存键并通知订阅者。
func (h *Handler) HandleInvalidate(c fiber.Ctx, route *SourceRoute) error {
	rel, rawQuery := requestDataPath(c)
	key := CacheKey(route.Config.Name, rel, rawQuery)
	h.cache.Invalidate(key)

	fields := logging.SourceFields(route.Config.Name, key, "invalidated", false)
	fields["action"] = "invalidate"
	if requestID := RequestID(c); requestID != "" {
		fields["request_id"] = requestID
	}
	h.logger.WithFields(fields).Info("cache_invalidated")

	return c.JSON(fiber.Map{"invalidated": key})
}

func (h *Handler) fetcher(route *SourceRoute, rel, rawQuery string) swr.FetchFunc[Payload] {
	return func(ctx context.Context) (Payload, error) {
		target := route.UpstreamURL.ResolveReference(&url.URL{
			Path:     joinUpstreamPath(route.UpstreamURL.Path, rel),
			RawQuery: rawQuery,
		})

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err != nil {
			return Payload{}, fmt.Errorf("构造上游请求失败: %w", err)
		}
		req.Header.Set("Accept", fiber.MIMEApplicationJSON)

		resp, err := h.client.Do(req)
		if err != nil {
			return Payload{}, fmt.Errorf("上游请求失败: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			return Payload{}, fmt.Errorf("上游返回异常状态 %d", resp.StatusCode)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes+1))
		if err != nil {
			return Payload{}, fmt.Errorf("读取上游响应失败: %w", err)
		}
		if len(body) > maxPayloadBytes {
			return Payload{}, fmt.Errorf("上游响应超过 %d 字节上限", maxPayloadBytes)
		}

		return Payload{Body: body, ContentType: resp.Header.Get(fiber.HeaderContentType)}, nil
	}
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(route *SourceRoute, key, state, requestID string, started time.Time, err error) {
	fields := logging.SourceFields(route.Config.Name, key, state, err != nil && state != "miss")
	fields["action"] = "data"
	fields["upstream"] = route.Config.Upstream
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}

	switch {
	case err != nil && state == "miss":
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("data_failed")
	case err != nil:
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Warn("data_degraded")
	default:
		h.logger.WithFields(fields).Info("data_complete")
	}
}

// CacheKey 把 Source 名称与请求路径拼成缓存键，查询串参与区分不同数据集。
func CacheKey(source, rel, rawQuery string) string {
	key := source + "-" + rel
	if rawQuery != "" {
		key += "?" + rawQuery
	}
	return key
}

func cacheState[T any](res swr.Result[T]) string {
	switch {
	case res.Revalidating:
		return "stale"
	case res.FromCache:
		return "hit"
	default:
		return "miss"
	}
}

// requestDataPath 取出通配段与查询串。通配段统一去掉两侧斜杠，
// 保证同一数据集不因路径写法差异产生多个缓存键。
func requestDataPath(c fiber.Ctx) (string, string) {
	rel := strings.Trim(c.Params("*"), "/")
	rawQuery := string(c.Request().URI().QueryString())
	return rel, rawQuery
}

func joinUpstreamPath(base, rel string) string {
	base = strings.TrimSuffix(base, "/")
	if rel == "" {
		if base == "" {
			return "/"
		}
		return base
	}
	return base + "/" + rel
}
