// Package ingest writes host-metric records to a Timestream table.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite"
	wtypes "github.com/aws/aws-sdk-go-v2/service/timestreamwrite/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	apperrors "github.com/tsdemo/tsdemo/internal/errors"
	"github.com/tsdemo/tsdemo/internal/timestream"
)

// MaxBatchSize is the WriteRecords per-request record limit.
const MaxBatchSize = 100

// Stats counts what a Writer has sent.
type Stats struct {
	Records  int64
	Batches  int
	Rejected int64
}

// Writer buffers records and sends them in batches of at most MaxBatchSize.
// It is safe for concurrent use; batches are sent one at a time.
type Writer struct {
	api       timestream.WriteAPI
	database  string
	table     string
	batchSize int
	logger    zerolog.Logger

	mu      sync.Mutex
	pending []wtypes.Record
	stats   Stats
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithBatchSize sets the flush threshold. Values outside 1..MaxBatchSize are
// ignored.
func WithBatchSize(n int) WriterOption {
	return func(w *Writer) {
		if n > 0 && n <= MaxBatchSize {
			w.batchSize = n
		}
	}
}

// WithWriterLogger sets the logger.
func WithWriterLogger(logger zerolog.Logger) WriterOption {
	return func(w *Writer) {
		w.logger = logger
	}
}

// NewWriter creates a writer targeting database.table.
func NewWriter(api timestream.WriteAPI, database, table string, opts ...WriterOption) *Writer {
	w := &Writer{
		api:       api,
		database:  database,
		table:     table,
		batchSize: MaxBatchSize,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.pending = make([]wtypes.Record, 0, w.batchSize)
	return w
}

// Add buffers records, sending a batch each time the buffer fills. The first
// failed batch stops the call; the records not yet sent stay buffered.
func (w *Writer) Add(ctx context.Context, records ...wtypes.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, rec := range records {
		w.pending = append(w.pending, rec)
		if len(w.pending) >= w.batchSize {
			if err := w.sendLocked(ctx); err != nil {
				w.pending = append(w.pending, records[i+1:]...)
				return err
			}
		}
	}
	return nil
}

// Flush sends any buffered records, stopping at the first failed batch.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for len(w.pending) > 0 {
		if err := w.sendLocked(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns a snapshot of the writer's counters.
func (w *Writer) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// sendLocked sends the oldest batch of buffered records. A failed batch is
// dropped; records behind it stay in pending.
func (w *Writer) sendLocked(ctx context.Context) error {
	n := min(len(w.pending), w.batchSize)
	batch := make([]wtypes.Record, n)
	copy(batch, w.pending)
	w.pending = append(w.pending[:0], w.pending[n:]...)
	w.stats.Batches++

	out, err := w.api.WriteRecords(ctx, &timestreamwrite.WriteRecordsInput{
		DatabaseName: aws.String(w.database),
		TableName:    aws.String(w.table),
		Records:      batch,
	})
	if err != nil {
		var rejected *wtypes.RejectedRecordsException
		if errors.As(err, &rejected) {
			// Records not listed as rejected were written.
			dropped := int64(len(rejected.RejectedRecords))
			w.stats.Rejected += dropped
			w.stats.Records += int64(len(batch)) - dropped
			return rejectedError(rejected, len(batch))
		}
		return writeError(err, len(batch))
	}

	ingested := int64(len(batch))
	if out != nil && out.RecordsIngested != nil {
		ingested = int64(out.RecordsIngested.Total)
	}
	w.stats.Records += ingested
	w.logger.Debug().
		Int("batch", w.stats.Batches).
		Int64("records", ingested).
		Int64("total", w.stats.Records).
		Msg("Batch written")
	return nil
}

func rejectedError(rej *wtypes.RejectedRecordsException, batchSize int) error {
	reasons := make([]string, 0, len(rej.RejectedRecords))
	for _, r := range rej.RejectedRecords {
		reasons = append(reasons, fmt.Sprintf("record %d: %s", r.RecordIndex, aws.ToString(r.Reason)))
	}
	return apperrors.NewIngestError(apperrors.CodeRejectedRecords,
		fmt.Sprintf("%d of %d records rejected", len(rej.RejectedRecords), batchSize), rej).
		WithDetails(map[string]interface{}{
			"rejected": len(rej.RejectedRecords),
			"reasons":  reasons,
		})
}

func writeError(err error, batchSize int) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	details := map[string]interface{}{"batch_size": batchSize}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		details["error_code"] = apiErr.ErrorCode()
	}
	return apperrors.NewIngestError(apperrors.CodeWriteFailed, "write request failed", err).WithDetails(details)
}
