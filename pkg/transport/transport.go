package transport

import (
	"context"
	"io"
	"net"

	"github.com/rhuss/kette/pkg/message"
)

// Transport is a native HTTP server the Adapter can drive.
type Transport interface {
	// Subscribe registers the lifecycle and request callbacks. It is called
	// once, before Listen.
	Subscribe(hooks Hooks)

	// Listen binds addr and starts serving in the background.
	Listen(addr string) error

	// Close stops accepting connections. Requests already being served are
	// allowed to finish.
	Close() error
}

// SecureTransport is implemented by transports that can terminate TLS.
type SecureTransport interface {
	Transport
	Secure() bool
}

// FailureNotifier is implemented by transports that report serve loop
// failures after Listen returned.
type FailureNotifier interface {
	Failed() <-chan error
}

// Hooks are the callbacks a Transport invokes. Nil hooks are skipped.
type Hooks struct {
	Listening func(addr net.Addr)
	Closing   func()
	Request   func(req RawRequest, w RawResponseWriter)
}

// RawRequest is a request as the native transport received it.
type RawRequest interface {
	// Context is cancelled when the client goes away, if the transport
	// can tell.
	Context() context.Context
	Method() string
	// Target is the request target exactly as sent, e.g. "/a?b=c".
	Target() string
	// RawHeaders returns header names and values alternating, in wire
	// order where the transport preserves it.
	RawHeaders() []string
	Body() io.Reader
}

// RawResponseWriter writes a response through the native transport.
type RawResponseWriter interface {
	// WriteHead sends the status line and headers.
	WriteHead(status int, reason string, fields []message.Field) error

	// WriteBody pipes body to the client and closes it. Transports may do
	// this after the request hook has returned.
	WriteBody(body io.ReadCloser) error
}
