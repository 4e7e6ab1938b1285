package fasthttp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/rhuss/kette/pkg/message"
)

// rawRequest copies what the chain needs out of a RequestCtx, whose
// buffers are reused once the request completes.
type rawRequest struct {
	method  string
	target  string
	headers []string
	body    []byte
}

func newRawRequest(ctx *fasthttp.RequestCtx) *rawRequest {
	return &rawRequest{
		method:  string(ctx.Method()),
		target:  string(ctx.RequestURI()),
		headers: headerPairs(&ctx.Request.Header),
		body:    bytes.Clone(ctx.PostBody()),
	}
}

func (q *rawRequest) Context() context.Context { return context.Background() }
func (q *rawRequest) Method() string           { return q.method }
func (q *rawRequest) Target() string           { return q.target }
func (q *rawRequest) RawHeaders() []string     { return q.headers }
func (q *rawRequest) Body() io.Reader          { return bytes.NewReader(q.body) }

// headerPairs returns the headers in wire order from the raw header block,
// falling back to VisitAll when the raw block is unavailable.
func headerPairs(h *fasthttp.RequestHeader) []string {
	if raw := h.RawHeaders(); len(raw) > 0 {
		return parseRawHeaders(raw)
	}
	var pairs []string
	h.VisitAll(func(key, value []byte) {
		pairs = append(pairs, string(key), string(value))
	})
	return pairs
}

func parseRawHeaders(raw []byte) []string {
	var pairs []string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimRight(line, "\r")
		name, value, ok := strings.Cut(line, ":")
		if !ok || name == "" {
			continue
		}
		pairs = append(pairs, name, strings.TrimSpace(value))
	}
	return pairs
}

// rawWriter writes through a RequestCtx. fasthttp sends the body after the
// request hook returns and closes it once it has been written.
type rawWriter struct {
	ctx  *fasthttp.RequestCtx
	size int
}

func (rw *rawWriter) WriteHead(status int, reason string, fields []message.Field) error {
	if status < 100 || status > 999 {
		return fmt.Errorf("invalid status code %d", status)
	}
	rw.ctx.SetStatusCode(status)
	if reason != "" {
		rw.ctx.Response.Header.SetStatusMessage([]byte(reason))
	}
	for _, f := range fields {
		if strings.EqualFold(f.Name, "Content-Length") {
			if n, err := strconv.Atoi(f.Value); err == nil {
				rw.size = n
			}
			continue
		}
		rw.ctx.Response.Header.Add(f.Name, f.Value)
	}
	return nil
}

func (rw *rawWriter) WriteBody(body io.ReadCloser) error {
	rw.ctx.SetBodyStream(body, rw.size)
	return nil
}
