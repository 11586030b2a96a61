package boundary

import (
	"fmt"
	"sync"
)

// HandleID names a Handle held by a Registry. Zero is never issued.
type HandleID uint64

// Registry keeps handles alive for hosts that can only hold integers.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	last    HandleID
	handles map[HandleID]*Handle
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[HandleID]*Handle)}
}

// Put stores h and returns its id.
func (r *Registry) Put(h *Handle) HandleID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last++
	r.handles[r.last] = h
	return r.last
}

// Get returns the live handle for id.
func (r *Registry) Get(id HandleID) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	if !ok {
		return nil, r.missing(id, ErrUseAfterRelease)
	}
	return h, nil
}

// Release releases the handle for id and forgets it.
func (r *Registry) Release(id HandleID) error {
	r.mu.Lock()
	h, ok := r.handles[id]
	if !ok {
		err := r.missing(id, ErrDoubleRelease)
		r.mu.Unlock()
		return err
	}
	delete(r.handles, id)
	r.mu.Unlock()
	return h.Release()
}

// Len returns the number of outstanding handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// ReleaseAll releases every outstanding handle.
func (r *Registry) ReleaseAll() {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[HandleID]*Handle)
	r.mu.Unlock()
	for _, h := range handles {
		_ = h.Release()
	}
}

// missing reports released for ids that were issued and are gone. It must
// be called with mu held.
func (r *Registry) missing(id HandleID, released error) error {
	if id != 0 && id <= r.last {
		return fmt.Errorf("%w: handle %d", released, id)
	}
	return fmt.Errorf("%w: %d", ErrUnknownHandle, id)
}
