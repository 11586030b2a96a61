// Package metrics counts what query sessions produce.
//
// Registers:
//
//	#catalogflow_rows_total{query}
//	#catalogflow_batches_total{query}
//	#catalogflow_chunks_total
//	#catalogflow_errors_total{kind}
//	#go_* and process_* system metrics
//
// on a registry owned by the Recorder, exposed through Handler.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"catalogflow/logger"
	"catalogflow/models"
)

// Recorder holds the query counters. A nil *Recorder discards everything.
type Recorder struct {
	registry *prometheus.Registry
	rows     *prometheus.CounterVec
	batches  *prometheus.CounterVec
	chunks   prometheus.Counter
	errors   *prometheus.CounterVec
	cw       *CloudWatch
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		rows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalogflow_rows_total",
				Help: "Number of records decoded per query",
			},
			[]string{"query"},
		),
		batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalogflow_batches_total",
				Help: "Number of columnar batches read per query",
			},
			[]string{"query"},
		),
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalogflow_chunks_total",
			Help: "Number of chunks handed to callers",
		}),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalogflow_errors_total",
				Help: "Number of failed registrations and reads by error kind",
			},
			[]string{"kind"},
		),
	}
	r.registry.MustRegister(r.rows, r.batches, r.chunks, r.errors)
	r.registry.MustRegister(collectors.NewGoCollector())
	r.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return r
}

// WithCloudWatch mirrors chunk and error counts to cw.
func (r *Recorder) WithCloudWatch(cw *CloudWatch) *Recorder {
	if r != nil {
		r.cw = cw
	}
	return r
}

// Batch counts one decoded batch of rows for query.
func (r *Recorder) Batch(query string, rows int) {
	if r == nil {
		return
	}
	r.batches.WithLabelValues(query).Inc()
	r.rows.WithLabelValues(query).Add(float64(rows))
}

// Chunk counts one chunk of rows handed to a caller.
func (r *Recorder) Chunk(rows int) {
	if r == nil {
		return
	}
	r.chunks.Inc()
	r.cw.Emit("session", "chunk_rows", float64(rows), logger.Fields{"unit": "count"})
}

// Flush publishes CloudWatch sums still held back by throttling.
func (r *Recorder) Flush(ctx context.Context) {
	if r == nil {
		return
	}
	r.cw.Flush(ctx)
}

// Error counts err under its sentinel kind.
func (r *Recorder) Error(err error) {
	if r == nil || err == nil {
		return
	}
	kind := ErrorKind(err)
	r.errors.WithLabelValues(kind).Inc()
	r.cw.Emit("session", "errors", 1, logger.Fields{"kind": kind})
}

// Registry returns the registry the counters live on.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the recorder's metrics in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes Handler on addr under /metrics until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.GetLogger().WithComponent("metrics").WithFields(logger.Fields{"addr": addr}).Info("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ErrorKind maps err to a short label.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, models.ErrSchemaMismatch):
		return "schema_mismatch"
	case errors.Is(err, models.ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, models.ErrMalformedBatch):
		return "malformed_batch"
	case errors.Is(err, models.ErrDuplicateOrInvalidQuery):
		return "invalid_query"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}
