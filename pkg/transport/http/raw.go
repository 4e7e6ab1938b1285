package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"slices"

	"github.com/rhuss/kette/pkg/message"
)

// rawRequest exposes an *http.Request as a transport.RawRequest.
type rawRequest struct {
	r *http.Request
}

func (q *rawRequest) Context() context.Context { return q.r.Context() }
func (q *rawRequest) Method() string           { return q.r.Method }
func (q *rawRequest) Body() io.Reader          { return q.r.Body }

func (q *rawRequest) Target() string {
	if q.r.RequestURI != "" {
		return q.r.RequestURI
	}
	return q.r.URL.RequestURI()
}

// RawHeaders returns Host first, then the remaining headers sorted by name.
func (q *rawRequest) RawHeaders() []string {
	names := make([]string, 0, len(q.r.Header))
	size := 2
	for name, values := range q.r.Header {
		names = append(names, name)
		size += 2 * len(values)
	}
	slices.Sort(names)

	pairs := make([]string, 0, size)
	if q.r.Host != "" {
		pairs = append(pairs, "Host", q.r.Host)
	}
	for _, name := range names {
		for _, v := range q.r.Header[name] {
			pairs = append(pairs, name, v)
		}
	}
	return pairs
}

// rawWriter exposes an http.ResponseWriter as a transport.RawResponseWriter.
type rawWriter struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	stream bool
}

// framingHeaders are the names net/http only recognizes in canonical form.
var framingHeaders = map[string]bool{
	"Content-Length":    true,
	"Content-Type":      true,
	"Transfer-Encoding": true,
	"Connection":        true,
	"Trailer":           true,
	"Date":              true,
}

// WriteHead copies the fields as given. Only the names net/http interprets
// itself are canonicalized; everything else keeps its casing.
func (rw *rawWriter) WriteHead(status int, _ string, fields []message.Field) error {
	if status < 100 || status > 999 {
		return fmt.Errorf("invalid status code %d", status)
	}
	h := rw.w.Header()
	rw.stream = true
	for _, f := range fields {
		name := f.Name
		if c := textproto.CanonicalMIMEHeaderKey(name); framingHeaders[c] {
			name = c
		}
		h[name] = append(h[name], f.Value)
		if name == "Content-Length" {
			rw.stream = false
		}
	}
	rw.w.WriteHeader(status)
	if rw.stream {
		return rw.flush()
	}
	return nil
}

func (rw *rawWriter) flush() error {
	if err := rw.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

// WriteBody copies body to the client. Bodies of unknown length are flushed
// after every chunk so streams reach the client as they are produced.
func (rw *rawWriter) WriteBody(body io.ReadCloser) error {
	defer body.Close()

	buf := make([]byte, 32<<10)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := rw.w.Write(buf[:n]); werr != nil {
				return werr
			}
			if rw.stream {
				if ferr := rw.flush(); ferr != nil {
					return ferr
				}
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
