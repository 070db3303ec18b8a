package uploader

import (
	"context"
	"sync"
)

// Registry maps active session ids to their cancellation handles so an
// upload can be cancelled from anywhere by id. One instance is constructed
// per process and injected into every Client that should share it.
type Registry struct {
	mu     sync.Mutex
	active map[string]context.CancelFunc
}

func NewRegistry() *Registry {
	return &Registry{
		active: make(map[string]context.CancelFunc),
	}
}

func (r *Registry) Register(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[id] = cancel
}

func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, id)
}

// Cancel fires the session's cancellation handle and reports whether the
// id was known. Cancelling an already-completed session is a harmless
// no-op: the scheduler's completion path may have unregistered it first.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	cancel, ok := r.active[id]
	delete(r.active, id)
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Active reports the number of in-flight sessions.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
