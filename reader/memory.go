package reader

import (
	"context"
	"fmt"
	"io"
	"sync"

	"catalogflow/models"
)

// MemorySource is a source already held as columnar batches.
type MemorySource struct {
	Schema   Schema
	Metadata map[string]string
	Batches  []*Batch
}

// MemoryOpener serves sources registered under a path. It is safe for
// concurrent use.
type MemoryOpener struct {
	mu      sync.RWMutex
	sources map[string]MemorySource
	opened  map[string]int
	open    int
}

func NewMemoryOpener() *MemoryOpener {
	return &MemoryOpener{
		sources: make(map[string]MemorySource),
		opened:  make(map[string]int),
	}
}

// Add registers src under path. When src.Schema is empty it is taken from the
// first batch.
func (m *MemoryOpener) Add(path string, src MemorySource) {
	if len(src.Schema) == 0 && len(src.Batches) > 0 && src.Batches[0] != nil {
		src.Schema = src.Batches[0].Schema()
	}
	m.mu.Lock()
	m.sources[path] = src
	m.mu.Unlock()
}

func (m *MemoryOpener) Open(ctx context.Context, path string) (BatchReader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.sources[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s: no such source", models.ErrSourceUnavailable, path)
	}
	m.opened[path]++
	m.open++
	return &memoryReader{owner: m, src: src}, nil
}

// OpenReaders returns the number of readers opened and not yet closed.
func (m *MemoryOpener) OpenReaders() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.open
}

// Opened returns how many times path was opened.
func (m *MemoryOpener) Opened(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.opened[path]
}

func (m *MemoryOpener) release() {
	m.mu.Lock()
	m.open--
	m.mu.Unlock()
}

type memoryReader struct {
	owner  *MemoryOpener
	src    MemorySource
	next   int
	closed bool
}

func (r *memoryReader) Schema() Schema              { return r.src.Schema }
func (r *memoryReader) Metadata() map[string]string { return copyMetadata(r.src.Metadata) }

func (r *memoryReader) NumRows() int64 {
	var n int64
	for _, b := range r.src.Batches {
		n += int64(b.Len())
	}
	return n
}

func (r *memoryReader) NextBatch(ctx context.Context) (*Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.closed || r.next >= len(r.src.Batches) {
		return nil, io.EOF
	}
	b := r.src.Batches[r.next]
	r.next++
	if b == nil {
		return nil, fmt.Errorf("%w: nil batch %d", models.ErrMalformedBatch, r.next-1)
	}
	out := *b
	if out.Metadata == nil {
		out.Metadata = r.src.Metadata
	}
	return &out, nil
}

func (r *memoryReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.owner.release()
	return nil
}
