package observability

import (
	"context"
	"time"

	"github.com/rhuss/kette/pkg/message"
	"github.com/rhuss/kette/pkg/transport"
)

// Metrics returns a chain unit that records request metrics.
//
// It captures:
//   - kette_requests_total (counter): incremented per request with method and status class labels
//   - kette_request_duration_seconds (histogram): time until the response head is available
//   - kette_requests_in_flight (gauge): incremented while the request is inside the chain
//
// Errors that escape the chain are counted under the status the adapter
// will answer with.
func Metrics() transport.Middleware {
	return transport.MiddlewareFunc(func(ctx context.Context, req *message.Request, next transport.Handler) (*message.Response, error) {
		start := time.Now()
		RequestsInFlight.Inc()
		defer RequestsInFlight.Dec()

		resp, err := next.Handle(ctx, req)

		RequestsTotal.WithLabelValues(req.Method(), message.StatusClass(statusOf(resp, err))).Inc()
		RequestDuration.WithLabelValues(req.Method()).Observe(time.Since(start).Seconds())
		return resp, err
	})
}

// Upstream returns a chain unit placed directly in front of the proxy. It
// records the upstream status class and exchange latency.
func Upstream() transport.Middleware {
	return transport.MiddlewareFunc(func(ctx context.Context, req *message.Request, next transport.Handler) (*message.Response, error) {
		start := time.Now()
		resp, err := next.Handle(ctx, req)
		UpstreamLatency.Observe(time.Since(start).Seconds())

		status := "error"
		if err == nil && resp != nil {
			status = message.StatusClass(resp.StatusCode())
		}
		UpstreamRequestsTotal.WithLabelValues(status).Inc()
		return resp, err
	})
}

func statusOf(resp *message.Response, err error) int {
	if err != nil {
		return message.AsStatusError(err).Status
	}
	if resp == nil {
		return 500
	}
	return resp.StatusCode()
}
