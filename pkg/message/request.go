package message

import (
	"io"
	"net/http"
	"net/url"
)

// Request is an immutable HTTP request value: method, absolute target URL,
// ordered headers and a body stream.
//
// Requests are created once per incoming transport event by a
// RequestFactory and are never mutated. Use the With* methods to derive a
// modified copy.
type Request struct {
	method string
	url    url.URL
	header Header
	body   io.Reader
}

// NewRequest creates a request with the given method and target URL, no
// headers and an empty body.
func NewRequest(method string, target *url.URL) *Request {
	r := &Request{method: method, body: http.NoBody}
	if target != nil {
		r.url = cloneURL(*target)
	}
	return r
}

// Method returns the request method.
func (r *Request) Method() string { return r.method }

// URL returns a copy of the target URL.
func (r *Request) URL() *url.URL {
	u := cloneURL(r.url)
	return &u
}

// Path is a shortcut for URL().Path.
func (r *Request) Path() string { return r.url.Path }

// Host is a shortcut for URL().Host.
func (r *Request) Host() string { return r.url.Host }

// Header returns the request headers.
func (r *Request) Header() Header { return r.header }

// Body returns the request body stream. It is never nil.
func (r *Request) Body() io.Reader { return r.body }

// WithMethod returns a copy of r with the given method.
func (r *Request) WithMethod(method string) *Request {
	c := *r
	c.method = method
	return &c
}

// WithURL returns a copy of r targeting u.
func (r *Request) WithURL(u *url.URL) *Request {
	c := *r
	if u == nil {
		c.url = url.URL{}
	} else {
		c.url = cloneURL(*u)
	}
	return &c
}

// WithHeader returns a copy of r where name holds exactly values.
func (r *Request) WithHeader(name string, values ...string) *Request {
	c := *r
	c.header = r.header.With(name, values...)
	return &c
}

// WithAddedHeader returns a copy of r with value appended to name.
func (r *Request) WithAddedHeader(name, value string) *Request {
	c := *r
	c.header = r.header.Add(name, value)
	return &c
}

// WithAddedHeaders returns a copy of r with each name/value pair appended.
func (r *Request) WithAddedHeaders(pairs ...string) *Request {
	c := *r
	c.header = r.header.AddPairs(pairs...)
	return &c
}

// WithoutHeader returns a copy of r with name removed.
func (r *Request) WithoutHeader(name string) *Request {
	c := *r
	c.header = r.header.Without(name)
	return &c
}

// WithBody returns a copy of r reading its body from body. A nil body is
// replaced by an empty stream.
func (r *Request) WithBody(body io.Reader) *Request {
	c := *r
	if body == nil {
		body = http.NoBody
	}
	c.body = body
	return &c
}

func cloneURL(u url.URL) url.URL {
	if u.User != nil {
		user := *u.User
		u.User = &user
	}
	return u
}
