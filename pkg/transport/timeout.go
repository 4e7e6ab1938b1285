package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rhuss/kette/pkg/message"
)

// Timeout returns middleware that bounds the time downstream units have to
// produce a response. When d passes first, the downstream context is
// cancelled and a 504 error is returned. Streaming the body of a response
// that arrived in time is not bounded. A non-positive d disables the unit.
func Timeout(d time.Duration) Middleware {
	return MiddlewareFunc(func(ctx context.Context, req *message.Request, next Handler) (*message.Response, error) {
		if d <= 0 {
			return next.Handle(ctx, req)
		}

		ctx, cancel := context.WithCancel(ctx)
		done := make(chan timeoutResult, 1)
		go func() {
			var r timeoutResult
			defer func() {
				if p := recover(); p != nil {
					r.panicked, r.panic = true, p
				}
				done <- r
			}()
			r.resp, r.err = next.Handle(ctx, req)
		}()

		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case r := <-done:
			if r.panicked {
				cancel()
				panic(r.panic)
			}
			if r.resp == nil {
				cancel()
				return nil, r.err
			}
			return r.resp.WithBody(&cancelOnDone{r: r.resp.Body(), cancel: cancel}), r.err
		case <-timer.C:
			cancel()
			go discardLate(done)
			return nil, message.NewTimeoutError(fmt.Sprintf("no response within %s", d))
		case <-ctx.Done():
			go discardLate(done)
			return nil, ctx.Err()
		}
	})
}

type timeoutResult struct {
	resp     *message.Response
	err      error
	panicked bool
	panic    any
}

// discardLate releases the body of a response that lost the race.
func discardLate(done <-chan timeoutResult) {
	if r := <-done; r.resp != nil {
		closeBody(r.resp.Body())
	}
}

// cancelOnDone keeps the downstream context alive until the body has been
// consumed or closed.
type cancelOnDone struct {
	r      io.Reader
	cancel context.CancelFunc
	once   sync.Once
}

func (c *cancelOnDone) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if err != nil {
		c.once.Do(c.cancel)
	}
	return n, err
}

func (c *cancelOnDone) Close() error {
	c.once.Do(c.cancel)
	return closeBody(c.r)
}

// closeBody closes body if it is an io.Closer.
func closeBody(body io.Reader) error {
	if c, ok := body.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
