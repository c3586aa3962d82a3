package server

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dash-hub/dash-hub/internal/config"
)

// SourceRoute 将 Source 配置与派生属性（生效的新鲜度窗口、解析后的 Upstream URL）
// 聚合在一起，供路由/数据层直接复用，避免重复解析配置。
type SourceRoute struct {
	// Config 是用户在 config.toml 中声明的 Source 字段副本，避免外部修改。
	Config config.SourceConfig
	// ListenPort 记录当前监听端口，方便日志输出。
	ListenPort int
	// StaleTime/CacheTime 是对当前 Source 生效的窗口，若未覆盖则等于全局值。
	StaleTime time.Duration
	CacheTime time.Duration
	// UpstreamURL 在构造 Registry 时提前解析完成，便于后续请求快速复用。
	UpstreamURL *url.URL
}

// SourceRegistry 提供 Source 名称到 SourceRoute 的查询能力。
type SourceRegistry struct {
	routes  map[string]*SourceRoute
	ordered []*SourceRoute
}

// NewSourceRegistry 根据配置构建名称映射。调用方应在启动阶段创建一次并复用。
func NewSourceRegistry(cfg *config.Config) (*SourceRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	registry := &SourceRegistry{
		routes: make(map[string]*SourceRoute, len(cfg.Sources)),
	}

	for _, source := range cfg.Sources {
		name := normalizeSourceName(source.Name)
		if name == "" {
			return nil, fmt.Errorf("invalid name for source %q", source.Name)
		}
		if _, exists := registry.routes[name]; exists {
			return nil, fmt.Errorf("duplicate source mapping detected for %s", name)
		}

		route, err := buildSourceRoute(cfg, source)
		if err != nil {
			return nil, err
		}

		registry.routes[name] = route
		registry.ordered = append(registry.ordered, route)
	}

	return registry, nil
}

// Lookup 根据名称查找 SourceRoute，大小写不敏感。
func (r *SourceRegistry) Lookup(name string) (*SourceRoute, bool) {
	if r == nil {
		return nil, false
	}

	normalized := normalizeSourceName(name)
	if normalized == "" {
		return nil, false
	}

	route, ok := r.routes[normalized]
	return route, ok
}

// List 返回当前注册的 SourceRoute 列表（按配置定义的顺序），用于 /-/sources 输出。
func (r *SourceRegistry) List() []SourceRoute {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}

	result := make([]SourceRoute, len(r.ordered))
	for i, route := range r.ordered {
		result[i] = *route
	}
	return result
}

func buildSourceRoute(cfg *config.Config, source config.SourceConfig) (*SourceRoute, error) {
	upstreamURL, err := url.Parse(source.Upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream for source %s: %w", source.Name, err)
	}

	return &SourceRoute{
		Config:      source,
		ListenPort:  cfg.Global.ListenPort,
		StaleTime:   cfg.EffectiveStaleTime(source),
		CacheTime:   cfg.EffectiveCacheTime(source),
		UpstreamURL: upstreamURL,
	}, nil
}

func normalizeSourceName(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
