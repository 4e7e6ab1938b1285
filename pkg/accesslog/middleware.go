package accesslog

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rhuss/kette/pkg/auth"
	"github.com/rhuss/kette/pkg/message"
	"github.com/rhuss/kette/pkg/observability"
	"github.com/rhuss/kette/pkg/storage"
	"github.com/rhuss/kette/pkg/transport"
)

// appendTimeout bounds a single store write.
const appendTimeout = 5 * time.Second

// Middleware returns a unit that appends one record per request once the
// downstream units have produced a response or an error. Store failures
// are logged and counted, never surfaced to the client.
//
// Identity and tenant are read from the context, so the unit belongs after
// the auth unit.
func Middleware(store Store, logger *slog.Logger) transport.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return transport.MiddlewareFunc(func(ctx context.Context, req *message.Request, next transport.Handler) (*message.Response, error) {
		start := time.Now()
		resp, err := next.Handle(ctx, req)

		rec := Record{
			ID:        uuid.NewString(),
			RequestID: transport.RequestIDFromContext(ctx),
			Time:      start.UTC(),
			Method:    req.Method(),
			Host:      req.Host(),
			Path:      req.Path(),
			Duration:  time.Since(start),
			Tenant:    storage.ScopeFrom(ctx).Tenant,
			Subject:   auth.SubjectFrom(ctx),
		}
		switch {
		case err != nil:
			rec.Status = message.AsStatusError(err).Status
			rec.Error = err.Error()
		case resp != nil:
			rec.Status = resp.StatusCode()
		}

		// The write must survive the client going away.
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), appendTimeout)
		defer cancel()
		if aerr := store.Append(wctx, rec); aerr != nil {
			observability.AccessLogRecordsTotal.WithLabelValues("failed").Inc()
			logger.Error("access log append failed", "request_id", rec.RequestID, "error", aerr)
		} else {
			observability.AccessLogRecordsTotal.WithLabelValues("stored").Inc()
		}

		return resp, err
	})
}
