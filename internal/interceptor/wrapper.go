package interceptor

import (
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/buildrepo/sidecar/internal/async"
	"github.com/buildrepo/sidecar/internal/tracing"
)

// processStart anchors a monotonic clock: elapsed readings are differences
// of time.Since against a fixed base, so completion minus subscription is
// non-negative by construction.
var processStart = time.Now()

func monotime() int64 {
	return int64(time.Since(processStart))
}

// traceContext holds the per-invocation state handed between the
// subscription and completion callbacks. One per wrapped invocation,
// never shared across invocations.
type traceContext struct {
	start   atomic.Int64 // monotonic nanos, set at most once
	carrier Carrier
}

// Wrapper instruments one deferred computation at a time: it records the
// first-subscription timestamp and, on completion, resolves the operation
// name, emits a span and writes the span id response header. The wrapped
// computation's value or failure always reaches the caller unchanged.
type Wrapper struct {
	cfg     Config
	backend Backend
	logger  *zap.Logger
}

// NewWrapper creates a trace lifecycle wrapper around the given
// collaborators.
func NewWrapper(cfg Config, backend Backend, logger *zap.Logger) *Wrapper {
	return &Wrapper{cfg: cfg, backend: backend, logger: logger}
}

// Wrap attaches trace instrumentation to d. When instrumentation is
// disabled the deferred is returned untouched, with zero added work.
func (w *Wrapper) Wrap(carrier Carrier, d async.Wrappable) async.Wrappable {
	if !w.cfg.IsEnabled() {
		return d
	}
	tc := &traceContext{carrier: carrier}
	return d.WithHooks(
		func() { w.subscribed(tc) },
		func(item any, err error) { w.completed(tc, item, err) },
	)
}

// subscribed records the start time. Only the first subscription event
// wins; later ones are timing no-ops.
func (w *Wrapper) subscribed(tc *traceContext) {
	defer w.swallow("subscribe")
	if tc.start.CompareAndSwap(0, monotime()) {
		w.logger.Debug("subscribed", zap.String("path", tc.carrier.Path()))
	}
}

// completed emits the span. The span is both opened and closed here rather
// than split across the subscription callback: the two callbacks may run on
// different goroutines, and the backend correlates open/close within one
// execution context. True start-to-finish timing is recovered through the
// separately tracked elapsed field instead.
//
// Every failure of the instrumentation itself is swallowed; the original
// outcome has already been captured and flows to the caller regardless.
func (w *Wrapper) completed(tc *traceContext, item any, err error) {
	defer w.swallow("complete")

	path := tc.carrier.Path()
	name, ok := w.cfg.GetFunctionName(path)
	if !ok {
		w.logger.Debug("no function mapped, skipping span", zap.String("path", path))
		return
	}

	var elapsed time.Duration
	if started := tc.start.Load(); started > 0 {
		elapsed = time.Duration(monotime() - started)
	}

	span := w.backend.StartRootSpan(SpanNamePrefix + name)
	if span == nil {
		return
	}

	tc.carrier.SetHeader(HeaderProxySpanID, span.ID())

	span.AddField(tracing.FieldService, w.cfg.GetServiceName())
	span.AddField(tracing.FieldFunction, name)
	span.AddResultFields(elapsed, path, item, err)
	span.AddRootFields()
	span.End()
}

// swallow keeps collaborator panics out of the caller's result path.
func (w *Wrapper) swallow(stage string) {
	if r := recover(); r != nil {
		w.logger.Warn("trace instrumentation failed",
			zap.String("stage", stage),
			zap.Any("cause", r),
		)
	}
}
