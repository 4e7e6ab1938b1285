package transport

import (
	"context"

	"github.com/rhuss/kette/pkg/message"
)

// Handler produces a response for a request. The Dispatcher is a Handler,
// and so is the next argument every Middleware receives.
type Handler interface {
	Handle(ctx context.Context, req *message.Request) (*message.Response, error)
}

// HandlerFunc is an adapter that allows using an ordinary function as a
// Handler.
type HandlerFunc func(ctx context.Context, req *message.Request) (*message.Response, error)

// Handle calls f(ctx, req).
func (f HandlerFunc) Handle(ctx context.Context, req *message.Request) (*message.Response, error) {
	return f(ctx, req)
}

// Middleware is one processing step in the chain. Process either returns a
// response on its own or delegates to next, at most once.
type Middleware interface {
	Process(ctx context.Context, req *message.Request, next Handler) (*message.Response, error)
}

// MiddlewareFunc is an adapter that allows using an ordinary function as a
// Middleware.
type MiddlewareFunc func(ctx context.Context, req *message.Request, next Handler) (*message.Response, error)

// Process calls f(ctx, req, next).
func (f MiddlewareFunc) Process(ctx context.Context, req *message.Request, next Handler) (*message.Response, error) {
	return f(ctx, req, next)
}
