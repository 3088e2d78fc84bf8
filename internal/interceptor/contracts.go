// Package interceptor attaches latency measurement and trace emission to
// handlers that return deferred computations, without altering the handler's
// own outcome. Collaborators (configuration, trace backend, request carrier)
// are consumed through the narrow contracts defined here.
package interceptor

import "time"

// HeaderProxySpanID is the response header carrying the created span's
// identifier. It is set if and only if a span was created.
const HeaderProxySpanID = "Proxy-Span-Id"

// SpanNamePrefix namespaces span names to identify this proxy layer.
const SpanNamePrefix = "sidecar-"

// Config supplies the enablement flag, function-name mapping and service
// name. Initialized once at startup, read-only thereafter.
type Config interface {
	IsEnabled() bool
	GetFunctionName(path string) (string, bool)
	GetServiceName() string
}

// SpanHandle is an open span owned by the trace backend.
type SpanHandle interface {
	ID() string
	AddField(key string, value any)
	AddResultFields(elapsed time.Duration, path string, value any, err error)
	AddRootFields()
	End()
}

// Backend opens root spans. A nil handle means the backend declined the
// span (closed, saturated); callers treat span creation as best-effort.
type Backend interface {
	StartRootSpan(name string) SpanHandle
}

// Carrier exposes the request path and the mutable outbound header set of
// one request/response exchange. Implementations must make SetHeader safe
// to call from a goroutine other than the one serving the request.
type Carrier interface {
	Path() string
	SetHeader(name, value string)
}
