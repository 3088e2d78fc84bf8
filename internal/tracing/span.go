package tracing

import (
	"crypto/rand"
	"runtime"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Field keys standardized across every span this sidecar emits.
const (
	FieldService    = "service"
	FieldFunction   = "function"
	FieldElapse     = "elapse_ms"
	FieldPath       = "path"
	FieldError      = "error"
	FieldResult     = "result"
	FieldStatusCode = "status_code"
	FieldUptime     = "uptime_s"
	FieldGoroutines = "goroutines"
	FieldSpanSeq    = "span_seq"
)

// Result classifications attached under FieldResult.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// SpanID is a unique span identifier.
type SpanID string

// Span is a root-level unit of work recorded by the tracer. It carries an
// identifier and a key/value field bag; the tracer owns its export.
type Span struct {
	id      SpanID
	name    string
	service string
	start   time.Time
	elapsed time.Duration

	mu      sync.Mutex
	fields  map[string]any
	errored bool
	ended   bool

	tracer *Tracer
}

// statusCoder is satisfied by completion values that expose an HTTP-ish
// status, letting result fields be derived without knowing the value type.
type statusCoder interface {
	StatusCode() int
}

func newSpanID() SpanID {
	return SpanID(ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String())
}

// ID returns the span identifier.
func (s *Span) ID() string {
	return string(s.id)
}

// Name returns the span's operation name.
func (s *Span) Name() string {
	return s.name
}

// AddField attaches a key/value field to the span.
func (s *Span) AddField(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields[key] = value
}

// Field returns the value attached under key, if any.
func (s *Span) Field(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.fields[key]
	return v, ok
}

// AddResultFields attaches fields derived from the completion of the
// instrumented computation: the measured elapsed time, the request path,
// and an outcome classification. A failure outcome marks the span errored
// but is otherwise recorded like a success.
func (s *Span) AddResultFields(elapsed time.Duration, path string, value any, err error) {
	s.AddField(FieldElapse, elapsed.Milliseconds())
	s.AddField(FieldPath, path)
	if err != nil {
		s.AddField(FieldResult, ResultFailure)
		s.AddField(FieldError, err.Error())
		s.mu.Lock()
		s.errored = true
		s.mu.Unlock()
		return
	}
	s.AddField(FieldResult, ResultSuccess)
	if sc, ok := value.(statusCoder); ok {
		s.AddField(FieldStatusCode, sc.StatusCode())
	}
}

// AddRootFields attaches process-level aggregate fields.
func (s *Span) AddRootFields() {
	if s.tracer == nil {
		return
	}
	s.AddField(FieldUptime, int64(time.Since(s.tracer.startTime).Seconds()))
	s.AddField(FieldGoroutines, runtime.NumGoroutine())
	s.AddField(FieldSpanSeq, s.tracer.seq.Load())
}

// End closes the span and hands it to the tracer for export. Ending a span
// twice is a no-op.
func (s *Span) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.elapsed = time.Since(s.start)
	s.mu.Unlock()

	if s.tracer != nil {
		s.tracer.submit(s)
	}
}
