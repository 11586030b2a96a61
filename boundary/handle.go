// Package boundary hands chunks of the merged stream across an ownership
// boundary, such as an embedding host, without copying them.
//
// A Handle owns one chunk until it is released. The host reads the chunk
// through a CVec view and must release it exactly once; any use afterwards
// fails instead of touching memory the Go side no longer vouches for.
package boundary

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"

	"catalogflow/models"
	"catalogflow/session"
)

var (
	ErrUseAfterRelease = errors.New("handle used after release")
	ErrDoubleRelease   = errors.New("handle released twice")
	ErrLayoutMismatch  = errors.New("vector layout mismatch")
	ErrUnknownHandle   = errors.New("unknown handle")
)

// Layout identifies the element type behind a CVec.
type Layout uint32

const (
	LayoutUnknown Layout = iota
	// LayoutData is a contiguous array of models.Data.
	LayoutData
)

func (l Layout) String() string {
	switch l {
	case LayoutData:
		return "data"
	default:
		return fmt.Sprintf("layout(%d)", uint32(l))
	}
}

// ElemSize is the size in bytes of one LayoutData element.
const ElemSize = unsafe.Sizeof(models.Data{})

// CVec is a raw view of a chunk's backing array.
type CVec struct {
	Ptr    unsafe.Pointer
	Len    int
	Cap    int
	Layout Layout
}

// Handle is the exclusive owner of a chunk. Releasing it drops the
// handle's reference to the records.
type Handle struct {
	data atomic.Pointer[[]models.Data]
}

// NewHandle takes ownership of c. The caller must not use c afterwards.
func NewHandle(c session.Chunk) *Handle {
	h := &Handle{}
	data := c.Data()
	h.data.Store(&data)
	return h
}

func (h *Handle) records() ([]models.Data, error) {
	p := h.data.Load()
	if p == nil {
		return nil, ErrUseAfterRelease
	}
	return *p, nil
}

// Len returns the number of records, or an error after release.
func (h *Handle) Len() (int, error) {
	data, err := h.records()
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// Data returns the owned records without copying.
func (h *Handle) Data() ([]models.Data, error) {
	return h.records()
}

// CVec exposes the backing array. The view is valid until Release.
func (h *Handle) CVec() (CVec, error) {
	data, err := h.records()
	if err != nil {
		return CVec{}, err
	}
	v := CVec{Len: len(data), Cap: cap(data), Layout: LayoutData}
	if cap(data) > 0 {
		v.Ptr = unsafe.Pointer(unsafe.SliceData(data))
	}
	return v, nil
}

// Release ends ownership. Only the first call succeeds.
func (h *Handle) Release() error {
	if h.data.Swap(nil) == nil {
		return ErrDoubleRelease
	}
	return nil
}

// Released reports whether Release has been called.
func (h *Handle) Released() bool { return h.data.Load() == nil }

// Decode rebuilds the record slice a CVec views.
func Decode(v CVec) ([]models.Data, error) {
	if v.Layout != LayoutData {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrLayoutMismatch, v.Layout, LayoutData)
	}
	if v.Len < 0 || v.Cap < v.Len {
		return nil, fmt.Errorf("%w: len %d cap %d", ErrLayoutMismatch, v.Len, v.Cap)
	}
	if v.Ptr == nil {
		if v.Len != 0 {
			return nil, fmt.Errorf("%w: nil pointer with len %d", ErrLayoutMismatch, v.Len)
		}
		return nil, nil
	}
	return unsafe.Slice((*models.Data)(v.Ptr), v.Cap)[:v.Len], nil
}
