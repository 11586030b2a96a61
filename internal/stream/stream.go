// Package stream turns one source's batch reader into a lazy sequence of
// decoded records.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"catalogflow/decoder"
	"catalogflow/logger"
	"catalogflow/metrics"
	"catalogflow/models"
	"catalogflow/reader"
)

type result struct {
	data []models.Data
	err  error
}

// Stream yields the records of one registered query in file order.
//
// Without Start, batches are read and decoded on the caller's goroutine when
// the buffer runs dry. After Start, a goroutine keeps up to the configured
// number of decoded batches ready ahead of the consumer.
type Stream struct {
	name     string
	kind     models.Kind
	reader   reader.BatchReader
	decode   decoder.Func
	params   decoder.Params
	prefetch int
	log      *logger.Entry
	metrics  *metrics.Recorder

	// owned by whichever goroutine reads batches
	rowsRead   int
	lastTsInit uint64

	runCtx  context.Context
	results chan result

	buf  []models.Data
	pos  int
	err  error
	rows       atomic.Int64
	outOfOrder atomic.Int64
}

type Option func(*Stream)

// WithPrefetch sets how many decoded batches the background reader may hold.
func WithPrefetch(n int) Option {
	return func(s *Stream) { s.prefetch = n }
}

func WithLogger(entry *logger.Entry) Option {
	return func(s *Stream) { s.log = entry }
}

func WithMetrics(r *metrics.Recorder) Option {
	return func(s *Stream) { s.metrics = r }
}

// New builds a stream over r. The kind must have a decoder.
func New(name string, kind models.Kind, r reader.BatchReader, params decoder.Params, opts ...Option) (*Stream, error) {
	fn, err := decoder.For(kind)
	if err != nil {
		return nil, err
	}
	s := &Stream{
		name:   name,
		kind:   kind,
		reader: r,
		decode: fn,
		params: params,
		log:    logger.GetLogger().WithComponent("stream"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithFields(logger.Fields{"query": name, "kind": kind.String()})
	return s, nil
}

func (s *Stream) Name() string      { return s.name }
func (s *Stream) Kind() models.Kind { return s.kind }

// Rows returns the number of records handed out so far.
func (s *Stream) Rows() int64 { return s.rows.Load() }

// OutOfOrder returns how many rows had a smaller ts_init than their
// predecessor among the batches read so far.
func (s *Stream) OutOfOrder() int64 { return s.outOfOrder.Load() }

// Start launches the prefetching reader on g. It is a no-op when prefetch is
// not positive or the stream was already started. The goroutine stops when
// ctx is done; the reader is left open for Close.
func (s *Stream) Start(ctx context.Context, g *errgroup.Group) {
	if s.prefetch <= 0 || s.results != nil {
		return
	}
	s.runCtx = ctx
	s.results = make(chan result, s.prefetch)
	g.Go(func() error {
		defer close(s.results)
		for {
			data, err := s.readBatch(ctx)
			select {
			case s.results <- result{data: data, err: err}:
			case <-ctx.Done():
				return nil
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
		}
	})
}

// Next returns the next record, or io.EOF once the source is exhausted. Once
// an error has been returned every later call returns it again.
func (s *Stream) Next(ctx context.Context) (models.Data, error) {
	for s.pos >= len(s.buf) {
		if s.err != nil {
			return models.Data{}, s.err
		}
		data, err := s.fetch(ctx)
		if err != nil {
			s.err = err
			s.buf, s.pos = nil, 0
			return models.Data{}, err
		}
		s.buf, s.pos = data, 0
	}
	d := s.buf[s.pos]
	s.pos++
	s.rows.Add(1)
	return d, nil
}

func (s *Stream) fetch(ctx context.Context) ([]models.Data, error) {
	if s.results == nil {
		return s.readBatch(ctx)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res, ok := <-s.results:
		if !ok {
			if err := s.runCtx.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		return res.data, res.err
	}
}

// readBatch pulls batches until one yields rows, the source ends or fails.
func (s *Stream) readBatch(ctx context.Context) ([]models.Data, error) {
	for {
		b, err := s.reader.NextBatch(ctx)
		if errors.Is(err, io.EOF) {
			s.log.WithFields(logger.Fields{"rows": s.rowsRead}).Debug("source exhausted")
			return nil, io.EOF
		}
		if err != nil {
			s.metrics.Error(err)
			return nil, fmt.Errorf("query %s: read batch: %w", s.name, err)
		}
		if b.Len() == 0 {
			continue
		}

		data, err := s.decode(b, s.params, s.rowsRead)
		if err != nil {
			s.metrics.Error(err)
			return nil, fmt.Errorf("query %s: %w", s.name, err)
		}
		s.checkOrder(data)
		s.rowsRead += len(data)
		s.metrics.Batch(s.name, len(data))
		logger.LogDataFlow(s.log, s.name, "merge", len(data), s.kind.String())
		return data, nil
	}
}

func (s *Stream) checkOrder(data []models.Data) {
	for i, d := range data {
		ts := d.TsInit()
		if ts < s.lastTsInit {
			if s.outOfOrder.Add(1) == 1 {
				s.log.WithFields(logger.Fields{
					"row":      s.rowsRead + i,
					"ts_init":  ts,
					"previous": s.lastTsInit,
				}).Warn("source rows are not sorted by ts_init")
			}
		}
		s.lastTsInit = ts
	}
}

// Close closes the underlying reader. The prefetch goroutine, if any, must
// have stopped.
func (s *Stream) Close() error {
	if s.reader == nil {
		return nil
	}
	err := s.reader.Close()
	s.reader = nil
	if s.err == nil {
		s.err = io.EOF
	}
	if err != nil {
		return fmt.Errorf("close %s: %w", s.name, err)
	}
	return nil
}
