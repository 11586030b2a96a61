package reader

import (
	"bytes"
	"errors"

	"github.com/xitongsys/parquet-go/source"
)

// memFile serves a parquet file held fully in memory. The parquet reader
// opens one handle per column chunk, so Open hands out independent cursors
// over the same bytes.
type memFile struct {
	data []byte
	r    *bytes.Reader
}

func newMemFile(data []byte) *memFile {
	return &memFile{data: data, r: bytes.NewReader(data)}
}

func (m *memFile) Open(string) (source.ParquetFile, error) { return newMemFile(m.data), nil }
func (m *memFile) Create(string) (source.ParquetFile, error) {
	return nil, errors.New("in-memory parquet file is read-only")
}
func (m *memFile) Seek(offset int64, whence int) (int64, error) { return m.r.Seek(offset, whence) }
func (m *memFile) Read(b []byte) (int, error)                   { return m.r.Read(b) }
func (m *memFile) Write([]byte) (int, error) {
	return 0, errors.New("in-memory parquet file is read-only")
}
func (m *memFile) Close() error { return nil }

// OpenBytes reads a parquet file from an in-memory buffer.
func OpenBytes(name string, data []byte, batchSize int) (BatchReader, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return newParquetReader(name, newMemFile(data), 1, batchSize)
}
