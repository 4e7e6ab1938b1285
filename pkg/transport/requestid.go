package transport

import (
	"context"

	"github.com/google/uuid"

	"github.com/rhuss/kette/pkg/message"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// ContextWithRequestID attaches id to ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the attached request ID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestID makes sure every request carries an ID. The first of the
// context ID, the inbound X-Request-ID header and a fresh UUID wins; it is
// forwarded downstream and echoed on the response.
func RequestID() Middleware {
	return MiddlewareFunc(func(ctx context.Context, req *message.Request, next Handler) (*message.Response, error) {
		id := RequestIDFromContext(ctx)
		if id == "" {
			id = req.Header().Get(RequestIDHeader)
		}
		if id == "" {
			id = uuid.NewString()
		}
		ctx = ContextWithRequestID(ctx, id)

		resp, err := next.Handle(ctx, req.WithHeader(RequestIDHeader, id))
		if resp != nil && !resp.Header().Has(RequestIDHeader) {
			resp = resp.WithHeader(RequestIDHeader, id)
		}
		return resp, err
	})
}
