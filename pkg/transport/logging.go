package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/kette/pkg/message"
)

// Logging returns middleware that emits one structured log entry per
// request with request ID, method, path, status and duration. Failed
// requests are logged at error level with the error that escaped.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return MiddlewareFunc(func(ctx context.Context, req *message.Request, next Handler) (*message.Response, error) {
		start := time.Now()

		resp, err := next.Handle(ctx, req)

		attrs := []slog.Attr{
			slog.String("request_id", RequestIDFromContext(ctx)),
			slog.String("method", req.Method()),
			slog.String("path", req.Path()),
			slog.Duration("duration", time.Since(start)),
		}

		if err != nil {
			attrs = append(attrs,
				slog.Int("status", message.AsStatusError(err).Status),
				slog.String("error", err.Error()),
			)
			logger.LogAttrs(ctx, slog.LevelError, "request failed", attrs...)
		} else if resp != nil {
			attrs = append(attrs, slog.Int("status", resp.StatusCode()))
			logger.LogAttrs(ctx, slog.LevelInfo, "request completed", attrs...)
		}

		return resp, err
	})
}
