package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rhuss/kette/pkg/message"
)

// Recovery returns middleware that catches panics in downstream units and
// converts them to server errors. The panic value is kept as the error
// cause and never shown to the client.
func Recovery() Middleware {
	return MiddlewareFunc(func(ctx context.Context, req *message.Request, next Handler) (resp *message.Response, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				resp = nil
				retErr = panicError(r)
			}
		}()
		return next.Handle(ctx, req)
	})
}

func panicError(v any) *message.StatusError {
	return &message.StatusError{
		Status:  http.StatusInternalServerError,
		Type:    message.ErrorTypeServerError,
		Message: "internal server error",
		Err:     fmt.Errorf("panic: %v", v),
	}
}
