package proxy

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/buildrepo/sidecar/internal/async"
	"github.com/buildrepo/sidecar/internal/interceptor"
	"github.com/buildrepo/sidecar/internal/monitoring"
)

// ContentPrefix is the route prefix for artifact downloads.
const ContentPrefix = "/api/content"

// Handlers exposes the sidecar's proxy endpoints. Each data-path handler
// produces a deferred computation; the interceptor instruments it at
// registration time, so the handlers themselves know nothing about tracing.
type Handlers struct {
	archive  *ArchiveStore
	upstream *Upstream
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// NewHandlers creates the proxy handlers.
func NewHandlers(archive *ArchiveStore, upstream *Upstream, logger *zap.Logger, metrics *monitoring.Metrics) *Handlers {
	return &Handlers{
		archive:  archive,
		upstream: upstream,
		logger:   logger,
		metrics:  metrics,
	}
}

// Register wires the proxy routes, composing each deferred-producing
// handler with the interceptor.
func (h *Handlers) Register(r gin.IRouter, ic *interceptor.Interceptor) {
	download := interceptor.Around(ic, h.download)
	r.GET(ContentPrefix+"/*path", h.serve(download))
	r.HEAD(ContentPrefix+"/*path", h.serve(download))

	r.POST("/api/promote", h.promote(ic))
	r.POST("/api/bundle", h.importBundle)
}

// download serves an artifact from the local archive, falling back to the
// upstream repository on a miss.
func (h *Handlers) download(carrier interceptor.Carrier) *async.Deferred[*Result] {
	path := strings.TrimPrefix(carrier.Path(), ContentPrefix)
	return async.New(func(ctx context.Context) (*Result, error) {
		body, err := h.archive.Get(path)
		switch {
		case err == nil:
			h.metrics.ArchiveHits.Inc()
			return &Result{
				Status:      http.StatusOK,
				ContentType: contentTypeFor(path),
				Body:        body,
				Source:      "archive",
			}, nil
		case errors.Is(err, ErrNotFound):
			h.metrics.ArchiveMisses.Inc()
		default:
			return nil, err
		}
		return h.upstream.Fetch(ctx, path)
	})
}

// promote forwards a promotion request to the upstream repository.
func (h *Handlers) promote(ic *interceptor.Interceptor) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}
		contentType := c.ContentType()
		path := c.Request.URL.Path

		fn := interceptor.Around(ic, func(carrier interceptor.Carrier) *async.Deferred[*Result] {
			return async.New(func(ctx context.Context) (*Result, error) {
				return h.upstream.Post(ctx, path, contentType, body)
			})
		})
		h.finish(c, fn(interceptor.NewCarrier(c)))
	}
}

// importBundle loads a tar.gz artifact bundle into the local archive.
func (h *Handlers) importBundle(c *gin.Context) {
	count, err := h.archive.ImportBundle(c.Request.Body)
	if err != nil {
		h.logger.Error("bundle import failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": count})
}

// serve awaits a traced deferred and writes its result.
func (h *Handlers) serve(fn func(interceptor.Carrier) *async.Deferred[*Result]) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.finish(c, fn(interceptor.NewCarrier(c)))
	}
}

func (h *Handlers) finish(c *gin.Context, d *async.Deferred[*Result]) {
	res, err := d.Await(c.Request.Context())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			status = http.StatusGatewayTimeout
		}
		h.logger.Warn("proxy request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	if c.Request.Method == http.MethodHead {
		c.Header("Content-Type", res.ContentType)
		c.Header("Content-Length", strconv.Itoa(len(res.Body)))
		c.Status(res.Status)
		return
	}
	c.Data(res.Status, res.ContentType, res.Body)
}

// contentTypeFor guesses a content type from the artifact extension.
func contentTypeFor(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
