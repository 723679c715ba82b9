package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/intent-gate/intentgate/internal/domain/audit"
)

// AuditService decouples the dispatch path from the audit sink with a
// buffered channel and one background worker. Record never blocks: when
// the channel is full the record is dropped and counted — the dispatcher
// holds its coarse lock while checks run, so waiting here is not an
// option.
type AuditService struct {
	sink          audit.Sink
	records       chan audit.Record
	wg            sync.WaitGroup
	logger        *slog.Logger
	metrics       *Metrics
	batchSize     int
	flushInterval time.Duration
	dropCount     atomic.Int64
}

// AuditOption configures AuditService.
type AuditOption func(*AuditService)

// WithBatchSize sets how many records accumulate before a write.
func WithBatchSize(size int) AuditOption {
	return func(s *AuditService) {
		s.batchSize = size
	}
}

// WithFlushInterval sets the periodic flush interval.
func WithFlushInterval(interval time.Duration) AuditOption {
	return func(s *AuditService) {
		s.flushInterval = interval
	}
}

// WithChannelSize sets the record channel capacity.
func WithChannelSize(size int) AuditOption {
	return func(s *AuditService) {
		s.records = make(chan audit.Record, size)
	}
}

// NewAuditService creates an AuditService writing to sink.
func NewAuditService(sink audit.Sink, logger *slog.Logger, metrics *Metrics, opts ...AuditOption) *AuditService {
	s := &AuditService{
		sink:          sink,
		records:       make(chan audit.Record, 1000),
		logger:        logger,
		metrics:       metrics,
		batchSize:     100,
		flushInterval: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the background worker.
func (s *AuditService) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.worker(ctx)
}

// Record enqueues one record without blocking. A full channel drops the
// record and counts the drop.
func (s *AuditService) Record(rec audit.Record) {
	select {
	case s.records <- rec:
	default:
		drops := s.dropCount.Add(1)
		if s.metrics != nil {
			s.metrics.AuditDropsTotal.Inc()
		}
		s.logger.Warn("audit record dropped",
			"kind", rec.Kind,
			"caller_uid", rec.CallerUID,
			"total_drops", drops,
		)
	}
}

// DroppedRecords returns the total records dropped so far.
func (s *AuditService) DroppedRecords() int64 {
	return s.dropCount.Load()
}

// Stop closes the pipeline and waits for the worker to flush what is
// pending.
func (s *AuditService) Stop() {
	close(s.records)
	s.wg.Wait()
}

// worker batches records and writes them to the sink.
func (s *AuditService) worker(ctx context.Context) {
	defer s.wg.Done()

	batch := make([]audit.Record, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case rec, ok := <-s.records:
			if !ok {
				s.finalFlush(batch)
				return
			}
			batch = append(batch, rec)
			if len(batch) >= s.batchSize {
				s.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ctx.Done():
			// Drain whatever is already queued, then stop.
			for {
				select {
				case rec, ok := <-s.records:
					if !ok {
						s.finalFlush(batch)
						return
					}
					batch = append(batch, rec)
				default:
					s.finalFlush(batch)
					return
				}
			}
		}
	}
}

// finalFlush writes remaining records with a bounded deadline.
func (s *AuditService) finalFlush(batch []audit.Record) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.flush(ctx, batch)
}

// flush writes a batch. Errors are logged, never propagated: audit must
// not fail a dispatch.
func (s *AuditService) flush(ctx context.Context, batch []audit.Record) {
	if err := s.sink.Append(ctx, batch...); err != nil {
		s.logger.Error("failed to write audit batch",
			"error", err,
			"count", len(batch),
		)
	}
}
