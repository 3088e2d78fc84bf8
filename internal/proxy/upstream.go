package proxy

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/buildrepo/sidecar/internal/monitoring"
)

// Result carries the outcome of one proxied artifact operation.
type Result struct {
	Status      int
	ContentType string
	Body        []byte
	Source      string // "archive" or "upstream"
}

// StatusCode exposes the result status for telemetry classification.
func (r *Result) StatusCode() int {
	return r.Status
}

// Upstream talks to the remote repository service the sidecar fronts.
// Transient failures are retried with backoff.
type Upstream struct {
	client  *resty.Client
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewUpstream creates an upstream client for baseURL.
func NewUpstream(baseURL string, timeout time.Duration, retries int, logger *zap.Logger, metrics *monitoring.Metrics) *Upstream {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second)

	return &Upstream{client: client, logger: logger, metrics: metrics}
}

// Fetch downloads an artifact from the upstream repository. HTTP error
// statuses are returned as results, not errors; only transport failures
// surface as errors.
func (u *Upstream) Fetch(ctx context.Context, path string) (*Result, error) {
	start := time.Now()
	resp, err := u.client.R().SetContext(ctx).Get(path)
	if err != nil {
		u.record("transport_error", start)
		return nil, fmt.Errorf("upstream fetch %s: %w", path, err)
	}
	u.record(strconv.Itoa(resp.StatusCode()), start)

	u.logger.Debug("upstream fetch",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("took", resp.Time()),
	)

	return &Result{
		Status:      resp.StatusCode(),
		ContentType: resp.Header().Get("Content-Type"),
		Body:        resp.Body(),
		Source:      "upstream",
	}, nil
}

// Post forwards a body to the upstream repository, used for promote-style
// passthrough operations.
func (u *Upstream) Post(ctx context.Context, path, contentType string, body []byte) (*Result, error) {
	start := time.Now()
	resp, err := u.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetBody(body).
		Post(path)
	if err != nil {
		u.record("transport_error", start)
		return nil, fmt.Errorf("upstream post %s: %w", path, err)
	}
	u.record(strconv.Itoa(resp.StatusCode()), start)

	return &Result{
		Status:      resp.StatusCode(),
		ContentType: resp.Header().Get("Content-Type"),
		Body:        resp.Body(),
		Source:      "upstream",
	}, nil
}

func (u *Upstream) record(status string, start time.Time) {
	if u.metrics != nil {
		u.metrics.RecordUpstream(status, time.Since(start))
	}
}
