package transport

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rhuss/kette/pkg/message"
)

var (
	// ErrNoMiddlewareAvailable is returned when a request runs past the last
	// unit without any unit producing a response.
	ErrNoMiddlewareAvailable = errors.New("transport: no middleware available to handle the request")

	// ErrNextCalledTwice is the panic value raised when a unit invokes its
	// next handler more than once.
	ErrNextCalledTwice = errors.New("transport: next handler called more than once")
)

// Dispatcher runs requests through an ordered list of middleware units.
// It is safe for concurrent use; units added while requests are in flight
// only affect requests dispatched afterwards.
type Dispatcher struct {
	mu    sync.RWMutex
	units []Middleware
}

// NewDispatcher creates a dispatcher with the given units.
func NewDispatcher(units ...Middleware) *Dispatcher {
	d := &Dispatcher{}
	d.AddMiddleware(units...)
	return d
}

// AddMiddleware appends units to the end of the chain. It panics on a nil
// unit.
func (d *Dispatcher) AddMiddleware(units ...Middleware) {
	for _, u := range units {
		if u == nil {
			panic("transport: nil middleware")
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.units = append(d.units, units...)
}

// Len returns the number of registered units.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.units)
}

// Handle dispatches req through a snapshot of the current chain. Errors
// returned by units are passed through unchanged.
func (d *Dispatcher) Handle(ctx context.Context, req *message.Request) (*message.Response, error) {
	d.mu.RLock()
	units := slices.Clone(d.units)
	d.mu.RUnlock()

	return newCursor(units).Handle(ctx, req)
}

// cursor is the single-use view of the units that have not run yet.
type cursor struct {
	units []Middleware
	used  atomic.Bool
}

func newCursor(units []Middleware) *cursor {
	return &cursor{units: units}
}

func (c *cursor) Handle(ctx context.Context, req *message.Request) (*message.Response, error) {
	if c.used.Swap(true) {
		panic(ErrNextCalledTwice)
	}
	if len(c.units) == 0 {
		return nil, ErrNoMiddlewareAvailable
	}
	return c.units[0].Process(ctx, req, newCursor(c.units[1:]))
}

// Chain groups units into a single unit. The group runs its members in
// order and then continues with the enclosing chain.
func Chain(units ...Middleware) Middleware {
	units = slices.Clip(slices.Clone(units))
	return MiddlewareFunc(func(ctx context.Context, req *message.Request, next Handler) (*message.Response, error) {
		tail := MiddlewareFunc(func(ctx context.Context, req *message.Request, _ Handler) (*message.Response, error) {
			return next.Handle(ctx, req)
		})
		return newCursor(append(units, tail)).Handle(ctx, req)
	})
}
