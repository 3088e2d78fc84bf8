package proxy

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/buildrepo/sidecar/internal/config"
	"github.com/buildrepo/sidecar/internal/interceptor"
	"github.com/buildrepo/sidecar/internal/monitoring"
	"github.com/buildrepo/sidecar/internal/tracing"
)

type tracerBackend struct {
	tracer *tracing.Tracer
}

func (b tracerBackend) StartRootSpan(name string) interceptor.SpanHandle {
	if span := b.tracer.StartRootSpan(name); span != nil {
		return span
	}
	return nil
}

type proxyFixture struct {
	router   *gin.Engine
	archive  *ArchiveStore
	tracer   *tracing.Tracer
	upstream *httptest.Server
}

func newFixture(t *testing.T, tracingCfg *config.TracingConfig, upstream http.HandlerFunc) *proxyFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	logger := zap.NewNop()
	metrics := monitoring.NewMetricsWith(prometheus.NewRegistry())

	archive, err := NewArchiveStore(t.TempDir(), logger)
	assert.NoError(t, err)

	tracer := tracing.New(tracingCfg.GetServiceName(), logger)
	t.Cleanup(tracer.Close)

	ic := interceptor.New(tracingCfg, tracerBackend{tracer: tracer}, logger)

	handlers := NewHandlers(archive, NewUpstream(srv.URL, 5*time.Second, 0, logger, metrics), logger, metrics)

	router := gin.New()
	handlers.Register(router, ic)

	return &proxyFixture{router: router, archive: archive, tracer: tracer, upstream: srv}
}

func tracedConfig() *config.TracingConfig {
	return &config.TracingConfig{
		Enabled:     true,
		ServiceName: "sidecar-svc",
		Functions: map[string]string{
			"/api/content": "download",
			"/api/promote": "promote",
		},
	}
}

func TestDownloadFromUpstream(t *testing.T) {
	fx := newFixture(t, tracedConfig(), func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/org/foo/foo.jar", r.URL.Path)
		w.Header().Set("Content-Type", "application/java-archive")
		w.Write([]byte("jar-bytes"))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/content/org/foo/foo.jar", nil)
	fx.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jar-bytes", w.Body.String())
	assert.NotEmpty(t, w.Header().Get(interceptor.HeaderProxySpanID),
		"mapped path must carry the span id header")
}

func TestDownloadFromArchiveSkipsUpstream(t *testing.T) {
	upstreamHit := false
	fx := newFixture(t, tracedConfig(), func(w http.ResponseWriter, r *http.Request) {
		upstreamHit = true
		w.WriteHeader(http.StatusInternalServerError)
	})

	dir := filepath.Join(fx.archive.root, "org", "foo")
	assert.NoError(t, os.MkdirAll(dir, 0o755))
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "foo.pom"), []byte("<project/>"), 0o644))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/content/org/foo/foo.pom", nil)
	fx.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<project/>", w.Body.String())
	assert.False(t, upstreamHit, "archived artifacts never hit upstream")
	assert.NotEmpty(t, w.Header().Get(interceptor.HeaderProxySpanID))
}

func TestUnmappedPathGetsNoSpanHeader(t *testing.T) {
	cfg := &config.TracingConfig{
		Enabled:     true,
		ServiceName: "sidecar-svc",
		Functions:   map[string]string{"/elsewhere": "other"},
	}
	fx := newFixture(t, cfg, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("body"))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/content/org/foo/foo.jar", nil)
	fx.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "body", w.Body.String(), "value passes through unchanged")
	assert.Empty(t, w.Header().Get(interceptor.HeaderProxySpanID))
}

func TestDisabledTracingStillServes(t *testing.T) {
	cfg := tracedConfig()
	cfg.Enabled = false
	fx := newFixture(t, cfg, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("body"))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/content/org/foo/foo.jar", nil)
	fx.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get(interceptor.HeaderProxySpanID))
}

func TestUpstreamStatusPassesThrough(t *testing.T) {
	fx := newFixture(t, tracedConfig(), func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/content/org/foo/missing.jar", nil)
	fx.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, w.Header().Get(interceptor.HeaderProxySpanID),
		"an upstream miss is still a traced download")
}

func TestHeadRequestOmitsBody(t *testing.T) {
	fx := newFixture(t, tracedConfig(), func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("jar-bytes"))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodHead, "/api/content/org/foo/foo.jar", nil)
	fx.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Equal(t, "9", w.Header().Get("Content-Length"))
}

func TestPromotePassthrough(t *testing.T) {
	fx := newFixture(t, tracedConfig(), func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/promote", r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"promoted":true}`))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/promote", nil)
	req.Header.Set("Content-Type", "application/json")
	fx.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.NotEmpty(t, w.Header().Get(interceptor.HeaderProxySpanID))
}

func TestBundleImportEndpoint(t *testing.T) {
	fx := newFixture(t, tracedConfig(), func(w http.ResponseWriter, r *http.Request) {})

	bundle := makeBundle(t, map[string]string{"org/foo/foo.jar": "jar-bytes"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/bundle", bundle)
	fx.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, fx.archive.Contains("org/foo/foo.jar"))
}
