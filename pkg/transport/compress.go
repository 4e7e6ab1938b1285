package transport

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/rhuss/kette/pkg/message"
)

// Compression returns middleware that gzips response bodies for clients
// that accept it. Responses that are already encoded, carry no body, or
// declare a Content-Length below minSize are left alone. The body is
// compressed lazily as the transport reads it.
func Compression(level, minSize int) Middleware {
	if level == 0 {
		level = gzip.DefaultCompression
	}
	return MiddlewareFunc(func(ctx context.Context, req *message.Request, next Handler) (*message.Response, error) {
		resp, err := next.Handle(ctx, req)
		if err != nil || resp == nil {
			return resp, err
		}
		if !acceptsGzip(req.Header().Line("Accept-Encoding")) || !compressible(req, resp, minSize) {
			return resp, nil
		}

		src := resp.Body()
		pr, pw := io.Pipe()
		go func() {
			gz, err := gzip.NewWriterLevel(pw, level)
			if err == nil {
				_, err = io.Copy(gz, src)
				if cerr := gz.Close(); err == nil {
					err = cerr
				}
			}
			closeBody(src)
			pw.CloseWithError(err)
		}()

		return resp.
			WithoutHeader("Content-Length").
			WithHeader("Content-Encoding", "gzip").
			WithAddedHeader("Vary", "Accept-Encoding").
			WithBody(pr), nil
	})
}

func compressible(req *message.Request, resp *message.Response, minSize int) bool {
	code := resp.StatusCode()
	if req.Method() == http.MethodHead || code < 200 || code == http.StatusNoContent || code == http.StatusNotModified {
		return false
	}
	if resp.Header().Has("Content-Encoding") {
		return false
	}
	if cl := resp.Header().Get("Content-Length"); cl != "" {
		n, err := strconv.Atoi(cl)
		if err == nil && n < minSize {
			return false
		}
	}
	return true
}

// acceptsGzip reports whether an Accept-Encoding value allows gzip.
func acceptsGzip(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		coding = strings.TrimSpace(coding)
		if coding != "gzip" && coding != "*" {
			continue
		}
		q := strings.ReplaceAll(strings.TrimSpace(params), " ", "")
		if q == "q=0" || q == "q=0.0" || q == "q=0.00" || q == "q=0.000" {
			return false
		}
		return true
	}
	return false
}
