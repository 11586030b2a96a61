// Package merge implements the k-way merge of per-query record streams into
// one stream ordered by ts_init.
package merge

import (
	"container/heap"
	"context"
	"errors"
	"io"

	"catalogflow/models"
)

// Source is a lazy record stream. Next returns io.EOF when done.
type Source interface {
	Next(ctx context.Context) (models.Data, error)
}

// Engine yields the records of all sources in non-decreasing ts_init order.
// Records with equal ts_init come from the earlier source first, and keep
// their source order among themselves.
//
// The first error from any source is sticky: Next returns it from then on.
type Engine struct {
	sources []Source
	heap    headHeap
	primed  int
	err     error
	yielded int64
}

func New(sources ...Source) *Engine {
	return &Engine{
		sources: sources,
		heap:    headHeap{items: make([]head, 0, len(sources))},
	}
}

// Len returns the number of sources.
func (e *Engine) Len() int { return len(e.sources) }

// Yielded returns the number of records returned so far.
func (e *Engine) Yielded() int64 { return e.yielded }

// Next returns the next record in merged order, or io.EOF once every source
// is exhausted.
func (e *Engine) Next(ctx context.Context) (models.Data, error) {
	if e.err != nil {
		return models.Data{}, e.err
	}
	if err := e.prime(ctx); err != nil {
		return models.Data{}, e.fail(err)
	}
	if e.heap.Len() == 0 {
		e.err = io.EOF
		return models.Data{}, io.EOF
	}

	top := e.heap.items[0]
	next, err := e.sources[top.source].Next(ctx)
	switch {
	case err == nil:
		e.heap.items[0] = head{data: next, source: top.source}
		heap.Fix(&e.heap, 0)
	case errors.Is(err, io.EOF):
		heap.Pop(&e.heap)
	default:
		// top is still returned; the failure surfaces on the next call
		e.err = err
	}
	e.yielded++
	return top.data, nil
}

// prime pulls the first record of every source not yet primed, in source
// order, so a priming error leaves the remaining sources untouched.
func (e *Engine) prime(ctx context.Context) error {
	for e.primed < len(e.sources) {
		d, err := e.sources[e.primed].Next(ctx)
		switch {
		case err == nil:
			heap.Push(&e.heap, head{data: d, source: e.primed})
		case !errors.Is(err, io.EOF):
			return err
		}
		e.primed++
	}
	return nil
}

// Close closes every source that implements io.Closer and ends the merge.
// Later calls to Next return io.EOF unless an error was already recorded.
func (e *Engine) Close() error {
	if e.err == nil {
		e.err = io.EOF
	}
	var errs []error
	for _, src := range e.sources {
		if c, ok := src.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	e.heap.items = e.heap.items[:0]
	return errors.Join(errs...)
}

func (e *Engine) fail(err error) error {
	e.err = err
	return err
}

type head struct {
	data   models.Data
	source int
}

type headHeap struct {
	items []head
}

func (h *headHeap) Len() int { return len(h.items) }
func (h *headHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if ta, tb := a.data.TsInit(), b.data.TsInit(); ta != tb {
		return ta < tb
	}
	return a.source < b.source
}
func (h *headHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *headHeap) Push(x interface{}) { h.items = append(h.items, x.(head)) }
func (h *headHeap) Pop() interface{} {
	n := len(h.items)
	item := h.items[n-1]
	h.items = h.items[:n-1]
	return item
}
