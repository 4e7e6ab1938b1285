package transport

import (
	"context"
	"sync"
)

// drainGroup tracks the requests an adapter is serving. Shutdown waits for
// the group to empty and cancels whatever is left when its deadline hits.
type drainGroup struct {
	mu      sync.Mutex
	seq     uint64
	cancels map[uint64]context.CancelFunc
	empty   chan struct{} // closed whenever cancels is empty
}

func newDrainGroup() *drainGroup {
	empty := make(chan struct{})
	close(empty)
	return &drainGroup{cancels: map[uint64]context.CancelFunc{}, empty: empty}
}

// enter registers a request and returns the func that deregisters it. The
// returned func is idempotent.
func (g *drainGroup) enter(cancel context.CancelFunc) (leave func()) {
	g.mu.Lock()
	if len(g.cancels) == 0 {
		g.empty = make(chan struct{})
	}
	g.seq++
	id := g.seq
	g.cancels[id] = cancel
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			delete(g.cancels, id)
			if len(g.cancels) == 0 {
				close(g.empty)
			}
		})
	}
}

func (g *drainGroup) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cancels)
}

// drain blocks until the group is empty. When ctx ends first it cancels
// the remaining requests, reports how many there were and returns ctx's
// error. Cancelled requests stay registered until they leave.
func (g *drainGroup) drain(ctx context.Context) (int, error) {
	g.mu.Lock()
	empty := g.empty
	g.mu.Unlock()

	select {
	case <-empty:
		return 0, nil
	case <-ctx.Done():
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, cancel := range g.cancels {
		cancel()
	}
	return len(g.cancels), ctx.Err()
}
