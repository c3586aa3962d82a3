package routes

import (
	"sort"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/dash-hub/dash-hub/internal/server"
)

// CacheStats 暴露缓存驻留规模，诊断输出附带它方便判断清扫是否在工作。
type CacheStats interface {
	Len() int
}

// RegisterSourceRoutes 暴露 /-/sources 诊断接口，供运维查询数据源与窗口配置。
func RegisterSourceRoutes(app *fiber.App, registry *server.SourceRegistry, stats CacheStats) {
	if app == nil || registry == nil {
		return
	}

	app.Get("/-/sources", func(c fiber.Ctx) error {
		payload := fiber.Map{
			"sources": encodeSources(registry.List()),
		}
		if stats != nil {
			payload["cache_entries"] = stats.Len()
		}
		return c.JSON(payload)
	})

	app.Get("/-/sources/:name", func(c fiber.Ctx) error {
		route, ok := registry.Lookup(c.Params("name"))
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "source_not_found"})
		}
		return c.JSON(encodeSource(*route))
	})
}

type sourcePayload struct {
	Name              string `json:"name"`
	Upstream          string `json:"upstream"`
	StaleTimeSeconds  int64  `json:"stale_time_seconds"`
	CacheTimeSeconds  int64  `json:"cache_time_seconds"`
	ListenPort        int    `json:"listen_port"`
	OverridesDefaults bool   `json:"overrides_defaults"`
}

func encodeSources(routes []server.SourceRoute) []sourcePayload {
	if len(routes) == 0 {
		return nil
	}
	sort.Slice(routes, func(i, j int) bool {
		return routes[i].Config.Name < routes[j].Config.Name
	})
	result := make([]sourcePayload, 0, len(routes))
	for _, route := range routes {
		result = append(result, encodeSource(route))
	}
	return result
}

func encodeSource(route server.SourceRoute) sourcePayload {
	return sourcePayload{
		Name:              route.Config.Name,
		Upstream:          route.Config.Upstream,
		StaleTimeSeconds:  int64(route.StaleTime / time.Second),
		CacheTimeSeconds:  int64(route.CacheTime / time.Second),
		ListenPort:        route.ListenPort,
		OverridesDefaults: route.Config.StaleTime.DurationValue() > 0 || route.Config.CacheTime.DurationValue() > 0,
	}
}
