package interceptor

import (
	"sync"

	"github.com/gin-gonic/gin"
)

// ginCarrier adapts a gin request/response exchange to the Carrier
// contract. Header writes are serialized so the completion callback can
// mutate headers from its own goroutine while the serving goroutine reads.
type ginCarrier struct {
	mu sync.Mutex
	c  *gin.Context
}

// NewCarrier wraps a gin context as a request carrier. The carrier
// references the exchange; it does not own its lifecycle.
func NewCarrier(c *gin.Context) Carrier {
	return &ginCarrier{c: c}
}

func (g *ginCarrier) Path() string {
	return g.c.Request.URL.Path
}

func (g *ginCarrier) SetHeader(name, value string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.c.Writer.Header().Set(name, value)
}
