package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Response is an immutable HTTP response value: status code, reason
// phrase, ordered headers and a body stream. The body may be lazy or
// unbounded, for example a pipe fed by an upstream connection.
//
// Exactly one middleware unit produces the response for a request. Units
// further up the chain may derive modified copies with the With* methods.
type Response struct {
	status int
	reason string
	header Header
	body   io.Reader
}

// NewResponse creates a response with the given status code, the standard
// reason phrase for it, no headers and an empty body.
func NewResponse(status int) *Response {
	return &Response{
		status: status,
		reason: http.StatusText(status),
		body:   http.NoBody,
	}
}

// Text creates a plain text response with Content-Type and Content-Length set.
func Text(status int, body string) *Response {
	return NewResponse(status).
		WithHeader("Content-Type", "text/plain; charset=utf-8").
		WithHeader("Content-Length", strconv.Itoa(len(body))).
		WithBody(strings.NewReader(body))
}

// JSON creates a response whose body is the JSON encoding of v.
func JSON(status int, v any) (*Response, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding response body: %w", err)
	}
	return NewResponse(status).
		WithHeader("Content-Type", "application/json").
		WithHeader("Content-Length", strconv.Itoa(len(data))).
		WithBody(bytes.NewReader(data)), nil
}

// StatusCode returns the numeric status code.
func (r *Response) StatusCode() int { return r.status }

// ReasonPhrase returns the reason phrase sent with the status line.
func (r *Response) ReasonPhrase() string { return r.reason }

// Header returns the response headers.
func (r *Response) Header() Header { return r.header }

// Body returns the response body stream. It is never nil.
func (r *Response) Body() io.Reader { return r.body }

// WithStatus returns a copy of r with the given status. An empty reason
// selects the standard phrase for code.
func (r *Response) WithStatus(code int, reason string) *Response {
	c := *r
	if reason == "" {
		reason = http.StatusText(code)
	}
	c.status = code
	c.reason = reason
	return &c
}

// WithHeader returns a copy of r where name holds exactly values.
func (r *Response) WithHeader(name string, values ...string) *Response {
	c := *r
	c.header = r.header.With(name, values...)
	return &c
}

// WithAddedHeader returns a copy of r with value appended to name.
func (r *Response) WithAddedHeader(name, value string) *Response {
	c := *r
	c.header = r.header.Add(name, value)
	return &c
}

// WithoutHeader returns a copy of r with name removed.
func (r *Response) WithoutHeader(name string) *Response {
	c := *r
	c.header = r.header.Without(name)
	return &c
}

// WithBody returns a copy of r streaming body. A nil body is replaced by
// an empty stream.
func (r *Response) WithBody(body io.Reader) *Response {
	c := *r
	if body == nil {
		body = http.NoBody
	}
	c.body = body
	return &c
}
