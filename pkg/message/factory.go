package message

import "net/url"

// RequestFactory creates request values. The transport adapter builds
// every incoming request through a RequestFactory and then refines it
// with the fluent With* methods.
type RequestFactory interface {
	CreateRequest(method string, target *url.URL) *Request
}

// ResponseFactory creates response values for terminal units.
type ResponseFactory interface {
	CreateResponse(status int, reason string) *Response
}

// Factory is the default RequestFactory and ResponseFactory.
type Factory struct{}

var (
	_ RequestFactory  = Factory{}
	_ ResponseFactory = Factory{}
)

// CreateRequest returns NewRequest(method, target).
func (Factory) CreateRequest(method string, target *url.URL) *Request {
	return NewRequest(method, target)
}

// CreateResponse returns a response with the given status and reason. An
// empty reason selects the standard phrase.
func (Factory) CreateResponse(status int, reason string) *Response {
	return NewResponse(status).WithStatus(status, reason)
}
