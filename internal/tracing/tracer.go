package tracing

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Tracer records root spans for the sidecar and exports them as structured
// log records. Export is best-effort: a saturated buffer drops the span and
// degrades observability, never correctness.
type Tracer struct {
	service   string
	logger    *zap.Logger
	spans     chan *Span
	quit      chan struct{}
	done      chan struct{}
	closed    atomic.Bool
	seq       atomic.Int64
	emitted   atomic.Int64
	dropped   atomic.Int64
	startTime time.Time

	emittedCounter prometheus.Counter
	droppedCounter prometheus.Counter
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithBuffer overrides the span buffer size.
func WithBuffer(size int) Option {
	return func(t *Tracer) {
		if size > 0 {
			t.spans = make(chan *Span, size)
		}
	}
}

// WithRegistry registers span counters with the given Prometheus registerer.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(t *Tracer) {
		t.emittedCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sidecar_spans_emitted_total",
			Help: "Total number of trace spans exported",
		})
		t.droppedCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sidecar_spans_dropped_total",
			Help: "Total number of trace spans dropped due to buffer saturation",
		})
		reg.MustRegister(t.emittedCounter, t.droppedCounter)
	}
}

// New creates a tracer and starts its collector goroutine.
func New(service string, logger *zap.Logger, opts ...Option) *Tracer {
	t := &Tracer{
		service:   service,
		logger:    logger,
		spans:     make(chan *Span, 1000),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(t)
	}

	go t.collectSpans()

	return t
}

// StartRootSpan opens a new root span with the given name. Returns nil once
// the tracer is closed; callers must treat span creation as optional.
func (t *Tracer) StartRootSpan(name string) *Span {
	if t.closed.Load() {
		return nil
	}
	t.seq.Inc()
	return &Span{
		id:      newSpanID(),
		name:    name,
		service: t.service,
		start:   time.Now(),
		fields:  make(map[string]any),
		tracer:  t,
	}
}

// Emitted returns the number of spans exported so far.
func (t *Tracer) Emitted() int64 {
	return t.emitted.Load()
}

// Dropped returns the number of spans lost to buffer saturation.
func (t *Tracer) Dropped() int64 {
	return t.dropped.Load()
}

// Close stops the tracer after draining buffered spans.
func (t *Tracer) Close() {
	if t.closed.Swap(true) {
		return
	}
	close(t.quit)
	<-t.done
}

// submit hands a completed span to the collector without blocking. The span
// channel is never closed, so a submit racing Close is simply discarded.
func (t *Tracer) submit(span *Span) {
	select {
	case <-t.quit:
		return
	default:
	}
	select {
	case t.spans <- span:
	case <-t.quit:
	default:
		t.dropped.Inc()
		if t.droppedCounter != nil {
			t.droppedCounter.Inc()
		}
		t.logger.Warn("span buffer full, dropping span",
			zap.String("span_id", span.ID()),
			zap.String("span_name", span.name),
		)
	}
}

// collectSpans exports spans until Close, then drains whatever is buffered.
func (t *Tracer) collectSpans() {
	for {
		select {
		case span := <-t.spans:
			t.exportSpan(span)
		case <-t.quit:
			for {
				select {
				case span := <-t.spans:
					t.exportSpan(span)
				default:
					close(t.done)
					return
				}
			}
		}
	}
}

// exportSpan writes the span as a structured log record.
func (t *Tracer) exportSpan(span *Span) {
	fields := []zap.Field{
		zap.String("span_id", span.ID()),
		zap.String("span_name", span.name),
		zap.String("service", span.service),
		zap.Duration("duration", span.elapsed),
	}

	span.mu.Lock()
	for k, v := range span.fields {
		fields = append(fields, zap.Any(k, v))
	}
	errored := span.errored
	span.mu.Unlock()

	t.emitted.Inc()
	if t.emittedCounter != nil {
		t.emittedCounter.Inc()
	}

	if errored {
		t.logger.Error("span completed with error", fields...)
		return
	}
	t.logger.Info("span completed", fields...)
}
