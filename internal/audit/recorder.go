package audit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nopaper/gateway/internal/observability"
	"github.com/nopaper/gateway/internal/store"
)

var (
	auditRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_audit_records_total",
			Help: "Total number of audit records by outcome",
		},
		[]string{"outcome"},
	)

	auditQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_audit_queue_depth",
			Help: "Current number of audit records waiting to be persisted",
		},
	)
)

// Recorder persists audit records through a bounded queue consumed by a
// fixed worker pool. Enqueueing never blocks the request path: when the
// queue is full the record is dropped and counted.
type Recorder struct {
	sink    store.AuditStore
	queue   chan *Record
	workers int
	timeout time.Duration
	logger  observability.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    chan struct{}
}

// RecorderOption is a functional option for configuring the recorder.
type RecorderOption func(*Recorder)

// WithLogger sets the logger for the recorder.
func WithLogger(logger observability.Logger) RecorderOption {
	return func(rec *Recorder) {
		rec.logger = logger
	}
}

// WithWriteTimeout bounds each persistence call.
func WithWriteTimeout(timeout time.Duration) RecorderOption {
	return func(rec *Recorder) {
		rec.timeout = timeout
	}
}

// NewRecorder creates a recorder and starts its workers.
func NewRecorder(sink store.AuditStore, queueSize, workers int, opts ...RecorderOption) *Recorder {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if workers <= 0 {
		workers = 4
	}

	rec := &Recorder{
		sink:    sink,
		queue:   make(chan *Record, queueSize),
		workers: workers,
		timeout: 5 * time.Second,
		logger:  observability.NopLogger(),
		closed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(rec)
	}

	for i := 0; i < workers; i++ {
		rec.wg.Add(1)
		go rec.worker()
	}

	return rec
}

// Record enqueues a record for persistence. It never blocks: when the
// queue is full the record is dropped and the drop is counted.
func (rec *Recorder) Record(record *Record) {
	select {
	case <-rec.closed:
		auditRecordsTotal.WithLabelValues("dropped").Inc()
		return
	default:
	}

	select {
	case rec.queue <- record:
		auditQueueDepth.Set(float64(len(rec.queue)))
	default:
		auditRecordsTotal.WithLabelValues("dropped").Inc()
		rec.logger.Warn("audit queue full, dropping record",
			observability.String("request_id", record.RequestID),
		)
	}
}

// Close stops accepting records, drains the queue, and waits for the
// workers to finish.
func (rec *Recorder) Close() {
	rec.closeOnce.Do(func() {
		close(rec.closed)
		close(rec.queue)
	})
	rec.wg.Wait()
}

// worker consumes the queue until it is closed and drained.
func (rec *Recorder) worker() {
	defer rec.wg.Done()

	for record := range rec.queue {
		rec.persist(record)
		auditQueueDepth.Set(float64(len(rec.queue)))
	}
}

// persist writes one record. Failures are logged and counted, never
// propagated.
func (rec *Recorder) persist(record *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), rec.timeout)
	defer cancel()

	if err := rec.sink.Insert(ctx, record.ToRow(time.Now())); err != nil {
		auditRecordsTotal.WithLabelValues("failed").Inc()
		rec.logger.Error("audit record persistence failed",
			observability.String("request_id", record.RequestID),
			observability.Error(err),
		)
		return
	}
	auditRecordsTotal.WithLabelValues("persisted").Inc()
}
