package boundary

import (
	"context"
	"fmt"

	"catalogflow/decoder"
	"catalogflow/logger"
	"catalogflow/models"
	"catalogflow/session"
)

// Host is the surface an embedding runtime drives: register files by kind
// name, convert to a result, and pull chunk handles by id. Every call
// completes before it returns.
type Host struct {
	session  *session.Session
	registry *Registry
	log      *logger.Entry
}

// NewHost creates a host whose chunks hold at most chunkSize records.
func NewHost(chunkSize int, opts ...session.Option) (*Host, error) {
	s, err := session.New(chunkSize, opts...)
	if err != nil {
		return nil, err
	}
	return &Host{
		session:  s,
		registry: NewRegistry(),
		log:      logger.GetLogger().WithComponent("boundary").WithFields(logger.Fields{"session_id": s.ID()}),
	}, nil
}

// Registry returns the table the host's handles live in.
func (h *Host) Registry() *Registry { return h.registry }

// AddFile registers path under name. kindName is one of the kind names or
// aliases accepted by models.ParseKind.
func (h *Host) AddFile(name, path, kindName string, params ...decoder.Params) error {
	kind, err := models.ParseKind(kindName)
	if err != nil {
		return &session.QueryError{Name: name, Path: path, Err: fmt.Errorf("%w: %w", models.ErrDuplicateOrInvalidQuery, err)}
	}
	return h.session.Register(context.Background(), name, path, kind, params...)
}

// ToQueryResult converts the host's session into a result.
func (h *Host) ToQueryResult() (*HostResult, error) {
	q, err := h.session.QueryResult(context.Background())
	if err != nil {
		return nil, err
	}
	return &HostResult{result: q, registry: h.registry, log: h.log}, nil
}

// Close tears the host down: every outstanding handle is released and the
// session's readers are closed if no result was created.
func (h *Host) Close() error {
	if n := h.registry.Len(); n > 0 {
		h.log.WithFields(logger.Fields{"handles": n}).Warn("releasing handles still held at close")
	}
	h.registry.ReleaseAll()
	return h.session.Close()
}

// HostResult hands out each chunk as a HandleID in the host's registry.
type HostResult struct {
	result   *session.QueryResult
	registry *Registry
	log      *logger.Entry
}

// Next returns the id of the next chunk's handle, or io.EOF when exhausted.
func (r *HostResult) Next() (HandleID, error) {
	c, err := r.result.Next(context.Background())
	if err != nil {
		return 0, err
	}
	id := r.registry.Put(NewHandle(c))
	r.log.WithFields(logger.Fields{"handle": uint64(id), "rows": c.Len()}).Debug("handed out chunk")
	return id, nil
}

// Stats reports what the result produced so far.
func (r *HostResult) Stats() session.Stats { return r.result.Stats() }

// Close closes the underlying result. Handles already handed out stay valid
// until released.
func (r *HostResult) Close() error { return r.result.Close() }
