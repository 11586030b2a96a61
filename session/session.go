// Package session registers named queries against catalog files and turns
// them into a single ts_init-ordered cursor of fixed-size chunks.
//
// A Session is a builder: queries are registered on it until QueryResult is
// called, which hands every opened reader to the returned cursor. The
// conversion happens once; afterwards the session rejects further use with
// models.ErrSessionStarted.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"catalogflow/decoder"
	"catalogflow/logger"
	"catalogflow/metrics"
	"catalogflow/models"
	"catalogflow/reader"
)

// Query is a registered source.
type Query struct {
	Name   string
	Path   string
	Kind   models.Kind
	Params decoder.Params
}

// QueryError reports which registration failed.
type QueryError struct {
	Name string
	Path string
	Kind models.Kind
	Err  error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %q (%s, %s): %v", e.Name, e.Kind, e.Path, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

type Session struct {
	id        string
	chunkSize int
	opener    reader.Opener
	prefetch  int
	log       *logger.Entry
	metrics   *metrics.Recorder

	queries []Query
	readers []reader.BatchReader
	names   map[string]struct{}
	started bool
}

type Option func(*Session)

// WithOpener sets where source files are opened from. The default opens
// local and s3:// parquet files without S3 credentials.
func WithOpener(o reader.Opener) Option {
	return func(s *Session) { s.opener = o }
}

func WithLogger(entry *logger.Entry) Option {
	return func(s *Session) { s.log = entry }
}

func WithMetrics(r *metrics.Recorder) Option {
	return func(s *Session) { s.metrics = r }
}

// WithPrefetch sets how many decoded batches each query may read ahead of
// the cursor. Zero reads on the caller's goroutine.
func WithPrefetch(batches int) Option {
	return func(s *Session) { s.prefetch = batches }
}

// New creates a session producing chunks of at most chunkSize records.
func New(chunkSize int, opts ...Option) (*Session, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: %d", models.ErrInvalidChunkSize, chunkSize)
	}
	s := &Session{
		id:        uuid.NewString(),
		chunkSize: chunkSize,
		opener:    &reader.ParquetOpener{},
		log:       logger.GetLogger().WithComponent("session"),
		names:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.prefetch < 0 {
		s.prefetch = 0
	}
	s.log = s.log.WithFields(logger.Fields{"session_id": s.id})
	return s, nil
}

func (s *Session) ID() string     { return s.id }
func (s *Session) ChunkSize() int { return s.chunkSize }

// Register opens path and checks its schema and metadata against kind. At
// most one Params may be given; its fields override the file metadata.
func (s *Session) Register(ctx context.Context, name, path string, kind models.Kind, params ...decoder.Params) error {
	if s.started {
		return models.ErrSessionStarted
	}
	fail := func(err error) error {
		s.metrics.Error(err)
		s.log.WithFields(logger.Fields{"query": name, "path": path, "kind": kind.String()}).WithError(err).Warn("query registration failed")
		return &QueryError{Name: name, Path: path, Kind: kind, Err: err}
	}

	if name == "" {
		return fail(fmt.Errorf("%w: empty name", models.ErrDuplicateOrInvalidQuery))
	}
	if _, dup := s.names[name]; dup {
		return fail(fmt.Errorf("%w: name already registered", models.ErrDuplicateOrInvalidQuery))
	}
	if len(params) > 1 {
		return fail(fmt.Errorf("%w: more than one parameter set", models.ErrDuplicateOrInvalidQuery))
	}
	var p decoder.Params
	if len(params) == 1 {
		p = params[0]
	}
	if err := decoder.ValidateParams(kind, p); err != nil {
		return fail(fmt.Errorf("%w: %w", models.ErrDuplicateOrInvalidQuery, err))
	}

	r, err := s.opener.Open(ctx, path)
	if err != nil {
		if !errors.Is(err, models.ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %w", models.ErrSourceUnavailable, err)
		}
		return fail(fmt.Errorf("%w: %w", models.ErrDuplicateOrInvalidQuery, err))
	}
	if err := decoder.CheckSchema(kind, r.Schema()); err != nil {
		_ = r.Close()
		return fail(fmt.Errorf("%w: %w", models.ErrDuplicateOrInvalidQuery, err))
	}
	if err := decoder.CheckSource(kind, p, r.Metadata()); err != nil {
		_ = r.Close()
		return fail(fmt.Errorf("%w: %w", models.ErrDuplicateOrInvalidQuery, err))
	}

	s.queries = append(s.queries, Query{Name: name, Path: path, Kind: kind, Params: p})
	s.readers = append(s.readers, r)
	s.names[name] = struct{}{}

	s.log.WithFields(logger.Fields{
		"query": name,
		"path":  path,
		"kind":  kind.String(),
		"rows":  r.NumRows(),
	}).Info("registered query")
	return nil
}

// RegisterDefault registers path with no parameter overrides.
func (s *Session) RegisterDefault(ctx context.Context, name, path string, kind models.Kind) error {
	return s.Register(ctx, name, path, kind)
}

// Queries returns the registered queries in registration order.
func (s *Session) Queries() []Query {
	out := make([]Query, len(s.queries))
	copy(out, s.queries)
	return out
}

// Close releases the readers of a session that was never converted into a
// cursor. After QueryResult the readers belong to the cursor and Close does
// nothing.
func (s *Session) Close() error {
	if s.started {
		return nil
	}
	var errs []error
	for _, r := range s.readers {
		errs = append(errs, r.Close())
	}
	s.readers = nil
	s.queries = nil
	s.names = make(map[string]struct{})
	return errors.Join(errs...)
}
