package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadValidFixture(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "valid.toml"))
	if err != nil {
		t.Fatalf("加载有效配置失败: %v", err)
	}

	if cfg.Global.ListenPort != 5174 {
		t.Fatalf("ListenPort 解析错误: %d", cfg.Global.ListenPort)
	}
	if cfg.Global.StaleTime.DurationValue() != 30*time.Second {
		t.Fatalf("StaleTime 解析错误: %v", cfg.Global.StaleTime.DurationValue())
	}
	if cfg.Global.CacheTime.DurationValue() != 2*time.Minute {
		t.Fatalf("CacheTime 解析错误: %v", cfg.Global.CacheTime.DurationValue())
	}
	if len(cfg.Sources) != 2 {
		t.Fatalf("期望 2 个 Source，得到 %d", len(cfg.Sources))
	}

	// 第二个 Source 覆盖了窗口配置。
	if got := cfg.EffectiveStaleTime(cfg.Sources[1]); got != 5*time.Second {
		t.Fatalf("Source 覆盖的 StaleTime 错误: %v", got)
	}
	if got := cfg.EffectiveCacheTime(cfg.Sources[0]); got != 2*time.Minute {
		t.Fatalf("未覆盖的 Source 应回退全局 CacheTime: %v", got)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, minimalSources)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载最小配置失败: %v", err)
	}

	if cfg.Global.ListenPort != 5174 {
		t.Fatalf("默认 ListenPort 错误: %d", cfg.Global.ListenPort)
	}
	if cfg.Global.StaleTime.DurationValue() != 5*time.Minute {
		t.Fatalf("默认 StaleTime 错误: %v", cfg.Global.StaleTime.DurationValue())
	}
	if cfg.Global.CacheTime.DurationValue() != 10*time.Minute {
		t.Fatalf("默认 CacheTime 错误: %v", cfg.Global.CacheTime.DurationValue())
	}
	if cfg.Global.SweepInterval.DurationValue() != time.Minute {
		t.Fatalf("默认 SweepInterval 错误: %v", cfg.Global.SweepInterval.DurationValue())
	}
	if !cfg.Global.RevalidateOnFocus || !cfg.Global.RevalidateOnReconnect {
		t.Fatalf("revalidate 开关默认应为 true")
	}
}

func TestLoadAcceptsPlainSecondDurations(t *testing.T) {
	path := writeTempConfig(t, `
StaleTime = 45
CacheTime = 90
`+minimalSources)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if cfg.Global.StaleTime.DurationValue() != 45*time.Second {
		t.Fatalf("纯秒数 StaleTime 解析错误: %v", cfg.Global.StaleTime.DurationValue())
	}
	if cfg.Global.CacheTime.DurationValue() != 90*time.Second {
		t.Fatalf("纯秒数 CacheTime 解析错误: %v", cfg.Global.CacheTime.DurationValue())
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("不存在的配置文件应报错")
	}
}
