package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeTempConfig persists the given TOML content and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(file, []byte(strings.TrimSpace(content)), 0o600); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	return file
}

// minimalSources returns a config body with a single valid source block.
const minimalSources = `
[[Source]]
Name = "harness"
Upstream = "http://127.0.0.1:8600"
`
