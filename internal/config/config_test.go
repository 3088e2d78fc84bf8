package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.True(t, cfg.Tracing.IsEnabled())
	assert.Equal(t, "sidecar-svc", cfg.Tracing.GetServiceName())

	name, ok := cfg.Tracing.GetFunctionName("/api/content/org/foo/foo.jar")
	assert.True(t, ok)
	assert.Equal(t, "download", name)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("TRACING_ENABLED", "false")
	t.Setenv("SERVICE_NAME", "edge-sidecar")
	t.Setenv("TRACING_FUNCTIONS", "/api/content:download,/api/search:search")

	cfg, err := Load()
	assert.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.False(t, cfg.Tracing.IsEnabled())
	assert.Equal(t, "edge-sidecar", cfg.Tracing.GetServiceName())

	name, ok := cfg.Tracing.GetFunctionName("/api/search/foo")
	assert.True(t, ok)
	assert.Equal(t, "search", name)
}

func TestGetFunctionName(t *testing.T) {
	tc := TracingConfig{
		Functions: map[string]string{
			"/api":         "generic",
			"/api/content": "download",
		},
	}

	tests := []struct {
		name     string
		path     string
		want     string
		resolved bool
	}{
		{"longest prefix wins", "/api/content/foo.jar", "download", true},
		{"shorter prefix fallback", "/api/other", "generic", true},
		{"exact prefix", "/api/content", "download", true},
		{"unmapped path", "/unmapped/x", "", false},
		{"empty path", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tc.GetFunctionName(tt.path)
			assert.Equal(t, tt.resolved, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFunctionsFileReplacesInlineMap(t *testing.T) {
	file := filepath.Join(t.TempDir(), "functions.yaml")
	content := "/api/content: download\n/api/promote: promote\n/api/admin: admin\n"
	assert.NoError(t, os.WriteFile(file, []byte(content), 0o644))

	t.Setenv("TRACING_FUNCTIONS", "/api/inline:inline")
	t.Setenv("TRACING_FUNCTIONS_FILE", file)

	cfg, err := Load()
	assert.NoError(t, err)

	name, ok := cfg.Tracing.GetFunctionName("/api/admin/ops")
	assert.True(t, ok)
	assert.Equal(t, "admin", name)

	_, ok = cfg.Tracing.GetFunctionName("/api/inline")
	assert.False(t, ok, "file must replace the inline map")
}

func TestFunctionsFileMissing(t *testing.T) {
	t.Setenv("TRACING_FUNCTIONS_FILE", "/nonexistent/functions.yaml")

	_, err := Load()
	assert.Error(t, err)
}
