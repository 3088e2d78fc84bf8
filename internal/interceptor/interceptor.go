package interceptor

import (
	"go.uber.org/zap"

	"github.com/buildrepo/sidecar/internal/async"
)

// Interceptor decides, per invocation, whether trace instrumentation
// applies. A handler result is eligible when it is a wrappable deferred
// computation and a request carrier is available; anything else passes
// through unchanged. Handlers need no knowledge of instrumentation.
type Interceptor struct {
	wrapper *Wrapper
}

// New creates an interceptor with the given collaborators.
func New(cfg Config, backend Backend, logger *zap.Logger) *Interceptor {
	return &Interceptor{wrapper: NewWrapper(cfg, backend, logger)}
}

// Intercept inspects a handler's produced result. Eligible results are
// replaced with an instrumented equivalent; ineligible ones are returned
// as-is. The payload value's type is never inspected.
func (ic *Interceptor) Intercept(carrier Carrier, result any) any {
	d, ok := result.(async.Wrappable)
	if !ok || carrier == nil {
		return result
	}
	return ic.wrapper.Wrap(carrier, d)
}

// Around composes the interceptor with a typed handler at registration
// time. The carrier is declared explicitly by the handler signature, so no
// runtime argument scanning is needed.
func Around[T any](ic *Interceptor, h func(Carrier) *async.Deferred[T]) func(Carrier) *async.Deferred[T] {
	return func(c Carrier) *async.Deferred[T] {
		d := h(c)
		if d == nil {
			return nil
		}
		if wrapped, ok := ic.Intercept(c, d).(*async.Deferred[T]); ok {
			return wrapped
		}
		return d
	}
}
