package session

import (
	"context"
	"errors"
	"io"
	"iter"
	"time"

	"golang.org/x/sync/errgroup"

	"catalogflow/internal/merge"
	"catalogflow/internal/stream"
	"catalogflow/logger"
	"catalogflow/metrics"
	"catalogflow/models"
)

// maxChunkPrealloc bounds the capacity reserved up front for a chunk.
const maxChunkPrealloc = 1 << 16

// Chunk is a contiguous run of the merged stream.
type Chunk struct {
	data []models.Data
}

// NewChunk wraps data without copying.
func NewChunk(data []models.Data) Chunk { return Chunk{data: data} }

func (c Chunk) Len() int { return len(c.data) }

// Data returns the records. The slice is not copied.
func (c Chunk) Data() []models.Data { return c.data }

// TsRange returns the ts_init of the first and last record.
func (c Chunk) TsRange() (first, last uint64) {
	if len(c.data) == 0 {
		return 0, 0
	}
	return c.data[0].TsInit(), c.data[len(c.data)-1].TsInit()
}

// Stats counts what a cursor has produced.
type Stats struct {
	Chunks int
	Rows   int64
}

// QueryResult is the cursor over the merged stream of a session.
type QueryResult struct {
	sessionID string
	chunkSize int
	streams   []*stream.Stream
	engine    *merge.Engine
	cancel    context.CancelFunc
	group     *errgroup.Group
	log       *logger.Entry
	metrics   *metrics.Recorder
	started   time.Time

	err      error
	stats    Stats
	released bool
}

// QueryResult converts the session into its cursor. ctx bounds the
// background readers; cancelling it ends the stream with ctx's error.
func (s *Session) QueryResult(ctx context.Context) (*QueryResult, error) {
	if s.started {
		return nil, models.ErrSessionStarted
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	q := &QueryResult{
		sessionID: s.id,
		chunkSize: s.chunkSize,
		cancel:    cancel,
		group:     new(errgroup.Group),
		log:       s.log.WithComponent("query_result"),
		metrics:   s.metrics,
		started:   time.Now(),
	}

	sources := make([]merge.Source, 0, len(s.queries))
	for i, query := range s.queries {
		st, err := stream.New(query.Name, query.Kind, s.readers[i], query.Params,
			stream.WithPrefetch(s.prefetch),
			stream.WithLogger(logger.GetLogger().WithComponent("stream").WithFields(logger.Fields{"session_id": s.id})),
			stream.WithMetrics(s.metrics),
		)
		if err != nil {
			for _, r := range s.readers[i:] {
				_ = r.Close()
			}
			q.release()
			return nil, &QueryError{Name: query.Name, Path: query.Path, Kind: query.Kind, Err: err}
		}
		st.Start(runCtx, q.group)
		q.streams = append(q.streams, st)
		sources = append(sources, st)
	}
	q.engine = merge.New(sources...)
	s.readers = nil

	q.log.WithFields(logger.Fields{
		"queries":    len(sources),
		"chunk_size": s.chunkSize,
		"prefetch":   s.prefetch,
	}).Info("query result started")
	return q, nil
}

// Next returns the next chunk of at most the session's chunk size. It
// returns io.EOF once the merged stream is exhausted, and keeps doing so.
// When an error interrupts a chunk, the records gathered so far are
// returned first and the error on the following call.
func (q *QueryResult) Next(ctx context.Context) (Chunk, error) {
	if q.err != nil {
		return Chunk{}, q.err
	}

	data := make([]models.Data, 0, min(q.chunkSize, maxChunkPrealloc))
	for len(data) < q.chunkSize {
		d, err := q.engine.Next(ctx)
		if err != nil {
			q.finish(err)
			break
		}
		data = append(data, d)
	}

	if len(data) == 0 {
		return Chunk{}, q.err
	}
	q.stats.Chunks++
	q.stats.Rows += int64(len(data))
	q.metrics.Chunk(len(data))
	first, last := data[0].TsInit(), data[len(data)-1].TsInit()
	q.log.WithFields(logger.Fields{
		"chunk":         q.stats.Chunks,
		"rows":          len(data),
		"first_ts_init": first,
		"last_ts_init":  last,
	}).Debug("chunk produced")
	return Chunk{data: data}, nil
}

// Chunks ranges over the remaining chunks. A failure is yielded once as a
// zero chunk with its error and ends the sequence.
func (q *QueryResult) Chunks(ctx context.Context) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		for {
			c, err := q.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(c, err) || err != nil {
				return
			}
		}
	}
}

// Flatten concatenates the remaining chunks. On failure it returns the
// records read before the error together with the error.
func (q *QueryResult) Flatten(ctx context.Context) ([]models.Data, error) {
	var out []models.Data
	for c, err := range q.Chunks(ctx) {
		if err != nil {
			return out, err
		}
		out = append(out, c.Data()...)
	}
	return out, nil
}

func (q *QueryResult) Stats() Stats { return q.stats }

// Close stops the background readers and closes every source. It is safe to
// call at any time and more than once; chunks already returned stay valid.
func (q *QueryResult) Close() error {
	if q.err == nil {
		q.err = io.EOF
	}
	return q.release()
}

func (q *QueryResult) finish(err error) {
	q.err = err
	entry := q.log.WithFields(logger.Fields{"rows": q.engine.Yielded()})
	if errors.Is(err, io.EOF) {
		logger.LogDuration(entry, "query_result", "stream", time.Since(q.started), nil)
	} else {
		q.metrics.Error(err)
		entry.WithError(err).Error("query result failed")
	}
	if rerr := q.release(); rerr != nil {
		q.log.WithError(rerr).Warn("failed to close sources")
	}
}

func (q *QueryResult) release() error {
	if q.released {
		return nil
	}
	q.released = true
	q.cancel()
	if err := q.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		q.log.WithError(err).Debug("prefetch stopped with error")
	}
	if q.engine != nil {
		return q.engine.Close()
	}
	var errs []error
	for _, st := range q.streams {
		errs = append(errs, st.Close())
	}
	return errors.Join(errs...)
}
