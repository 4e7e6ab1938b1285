package transport

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/rhuss/kette/pkg/message"
)

// Terminal wraps h as a unit that always answers and never calls next.
func Terminal(h Handler) Middleware {
	return MiddlewareFunc(func(ctx context.Context, req *message.Request, _ Handler) (*message.Response, error) {
		return h.Handle(ctx, req)
	})
}

// NotFound returns a terminal unit that answers every request with 404.
func NotFound() Middleware {
	return Terminal(HandlerFunc(func(_ context.Context, req *message.Request) (*message.Response, error) {
		return message.NewNotFoundError(fmt.Sprintf("no handler for %s %s", req.Method(), req.Path())).Response(), nil
	}))
}

// Mount returns middleware that serves requests whose path equals prefix
// or lies below it with a net/http handler. Other requests continue down
// the chain. The handler's output is buffered, so streaming handlers are
// not a good fit.
func Mount(prefix string, h http.Handler) Middleware {
	prefix = strings.TrimSuffix(prefix, "/")
	return MiddlewareFunc(func(ctx context.Context, req *message.Request, next Handler) (*message.Response, error) {
		path := req.Path()
		if path != prefix && !strings.HasPrefix(path, prefix+"/") {
			return next.Handle(ctx, req)
		}

		hreq, err := http.NewRequestWithContext(ctx, req.Method(), req.URL().String(), req.Body())
		if err != nil {
			return nil, message.NewInvalidRequestError(err.Error())
		}
		hreq.Host = req.Host()
		for name, values := range req.Header().All() {
			for _, v := range values {
				hreq.Header.Add(name, v)
			}
		}

		w := &bufferedWriter{header: make(http.Header)}
		h.ServeHTTP(w, hreq)
		return w.response(), nil
	})
}

// bufferedWriter captures a net/http handler's output.
type bufferedWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (w *bufferedWriter) Header() http.Header { return w.header }

func (w *bufferedWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	w.WriteHeader(http.StatusOK)
	return w.body.Write(b)
}

func (w *bufferedWriter) response() *message.Response {
	w.WriteHeader(http.StatusOK)
	resp := message.NewResponse(w.status)
	names := make([]string, 0, len(w.header))
	for name := range w.header {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		resp = resp.WithHeader(name, w.header[name]...)
	}
	if !resp.Header().Has("Content-Length") {
		resp = resp.WithHeader("Content-Length", fmt.Sprint(w.body.Len()))
	}
	return resp.WithBody(bytes.NewReader(w.body.Bytes()))
}
