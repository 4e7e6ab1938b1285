// Package transport defines the middleware chain and the adapter between a
// native HTTP server and kette's immutable request/response values.
//
// # Middleware chain
//
// A Dispatcher owns an ordered list of Middleware units. For every request it
// takes a snapshot of the list and walks it with a single-use cursor: each
// unit receives the request and a next Handler over the remaining units. A
// unit either returns a response itself (short-circuit) or calls next,
// possibly with a modified request, and may rewrite what comes back. Units
// registered first see the request first and the response last.
//
// Calling next more than once panics with ErrNextCalledTwice. Running off the
// end of the list returns ErrNoMiddlewareAvailable.
//
// # Adapter
//
// Adapter subscribes to a Transport's lifecycle and request hooks. It turns a
// RawRequest into a message.Request (absolute URL, headers folded in wire
// order), dispatches it, and writes the resulting message.Response through a
// RawResponseWriter. Errors that escape the chain are answered with a JSON
// error body whose status comes from a message.StatusError, or 500.
//
// # Built-in units
//
// Recovery, RequestID, Logging, Timeout, Compression, Terminal, NotFound,
// Mount and Proxy cover the cross-cutting concerns most servers need. Custom
// units implement Middleware or use MiddlewareFunc.
package transport
