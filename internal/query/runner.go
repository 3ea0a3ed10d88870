// Package query executes Timestream queries and streams their decoded rows
// to an output sink.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/timestreamquery"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "github.com/tsdemo/tsdemo/internal/errors"
	"github.com/tsdemo/tsdemo/internal/ledger"
	"github.com/tsdemo/tsdemo/internal/observability"
	"github.com/tsdemo/tsdemo/internal/render"
	"github.com/tsdemo/tsdemo/internal/sink"
	"github.com/tsdemo/tsdemo/internal/timestream"
	"github.com/tsdemo/tsdemo/pkg/types"
)

const (
	// DefaultMaxRows is the page size requested from the service.
	DefaultMaxRows = 200

	// DefaultWorkers is the number of rows rendered concurrently.
	DefaultWorkers = 4
)

// Result summarises one query run.
type Result struct {
	RunID   string
	QueryID string
	Pages   int
	Rows    int64
}

// Runner executes queries and writes their output to a sink.
type Runner struct {
	api     timestream.QueryAPI
	out     sink.Sink
	dec     *render.Decoder
	ledger  ledger.Ledger
	stats   *observability.ResultStats
	logger  zerolog.Logger
	maxRows int32
	workers int
	now     func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithMaxRows sets the page size. Values outside 1..1000 are ignored.
func WithMaxRows(n int) Option {
	return func(r *Runner) {
		if n > 0 && n <= 1000 {
			r.maxRows = int32(n)
		}
	}
}

// WithWorkers sets the row rendering concurrency.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithDecoder replaces the default decoder.
func WithDecoder(dec *render.Decoder) Option {
	return func(r *Runner) {
		if dec != nil {
			r.dec = dec
		}
	}
}

// WithLedger records every run in l.
func WithLedger(l ledger.Ledger) Option {
	return func(r *Runner) {
		r.ledger = l
	}
}

// WithStats records the columns of every rendered page in stats.
func WithStats(stats *observability.ResultStats) Option {
	return func(r *Runner) {
		r.stats = stats
	}
}

// WithLogger sets the operational logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a runner that sends queries to api and output to out.
func NewRunner(api timestream.QueryAPI, out sink.Sink, opts ...Option) *Runner {
	r := &Runner{
		api:     api,
		out:     out,
		dec:     render.New(),
		logger:  zerolog.Nop(),
		maxRows: DefaultMaxRows,
		workers: DefaultWorkers,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes query, following NextToken until the result is exhausted.
// Each page is written as a metadata line, a data header, one line per row and
// a row count.
func (r *Runner) Run(ctx context.Context, query string) (*Result, error) {
	res := &Result{RunID: uuid.NewString()}
	started := r.now()
	logger := r.logger.With().Str("run_id", res.RunID).Logger()

	err := r.run(ctx, query, res, logger)

	status := ledger.RunSucceeded
	if err != nil {
		status = ledger.RunFailed
		logger.Error().Err(err).Str("query_id", res.QueryID).Msg("Query failed")
	} else {
		logger.Info().
			Str("query_id", res.QueryID).
			Int("pages", res.Pages).
			Int64("rows", res.Rows).
			Dur("elapsed", r.now().Sub(started)).
			Msg("Query completed")
	}
	r.record(ctx, query, res, status, err, started)
	return res, err
}

func (r *Runner) run(ctx context.Context, query string, res *Result, logger zerolog.Logger) error {
	input := &timestreamquery.QueryInput{
		QueryString: aws.String(query),
		MaxRows:     aws.Int32(r.maxRows),
	}

	for {
		out, err := r.api.Query(ctx, input)
		if err != nil {
			return queryError("query request failed", err)
		}
		page := timestream.PageFromSDK(out)
		if res.QueryID == "" {
			res.QueryID = page.QueryID
		}

		if err := r.writePage(ctx, page); err != nil {
			var appErr *apperrors.Error
			if errors.As(err, &appErr) && appErr.Category == apperrors.ErrCategoryDecode {
				decodeErr := appErr.WithDetails(map[string]interface{}{"query": query, "query_id": res.QueryID})
				decodeErr.Message = fmt.Sprintf("query %q: %s", query, appErr.Message)
				return decodeErr
			}
			return err
		}
		res.Pages++
		res.Rows += int64(len(page.Rows))
		if r.stats != nil {
			r.stats.RecordPage(page)
		}
		logger.Debug().
			Str("query_id", page.QueryID).
			Int("page", res.Pages).
			Int("rows", len(page.Rows)).
			Msg("Page rendered")

		if page.NextToken == nil {
			return nil
		}
		input.NextToken = page.NextToken
	}
}

func (r *Runner) writePage(ctx context.Context, page types.Page) error {
	lines, idx, err := RenderPage(ctx, r.dec, page, r.workers)
	if err != nil {
		if idx >= 0 {
			var appErr *apperrors.Error
			if errors.As(err, &appErr) {
				return appErr.WithDetails(map[string]interface{}{"row": idx})
			}
		}
		return err
	}

	meta, err := json.Marshal(page.Columns)
	if err != nil {
		return apperrors.NewInternalError("failed to encode column metadata", err)
	}
	if err := r.out.WriteLine("Metadata : " + string(meta)); err != nil {
		return err
	}
	if err := r.out.WriteLine("Data :"); err != nil {
		return err
	}
	for _, line := range lines {
		if err := r.out.WriteLine(line); err != nil {
			return err
		}
	}
	return r.out.WriteLine(fmt.Sprintf("Number of Rows: %d", len(page.Rows)))
}

// RunAll runs queries in order, continuing past failures. The returned error
// joins every failure.
func (r *Runner) RunAll(ctx context.Context, queries []string) ([]*Result, error) {
	results := make([]*Result, 0, len(queries))
	var errs []error
	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := r.out.WriteLine(fmt.Sprintf("Running Query_%d : %s", i+1, q)); err != nil {
			return results, err
		}
		res, err := r.Run(ctx, q)
		results = append(results, res)
		if err != nil {
			errs = append(errs, fmt.Errorf("query %d: %w", i+1, err))
		}
	}
	return results, errors.Join(errs...)
}

// Cancel submits query and immediately cancels it by query ID.
func (r *Runner) Cancel(ctx context.Context, query string) (*Result, error) {
	res := &Result{RunID: uuid.NewString()}
	started := r.now()
	logger := r.logger.With().Str("run_id", res.RunID).Logger()

	err := r.cancel(ctx, query, res, logger)

	status := ledger.RunCancelled
	if err != nil {
		status = ledger.RunFailed
		logger.Error().Err(err).Str("query_id", res.QueryID).Msg("Cancel failed")
	}
	r.record(ctx, query, res, status, err, started)
	return res, err
}

func (r *Runner) cancel(ctx context.Context, query string, res *Result, logger zerolog.Logger) error {
	out, err := r.api.Query(ctx, &timestreamquery.QueryInput{
		QueryString: aws.String(query),
		MaxRows:     aws.Int32(r.maxRows),
	})
	if err != nil {
		return queryError("query request failed", err)
	}
	res.QueryID = aws.ToString(out.QueryId)
	if res.QueryID == "" {
		return apperrors.NewQueryError(apperrors.CodeCancelFailed, "service returned no query id", nil)
	}

	if err := r.out.WriteLine("Submitting cancellation for the query " + res.QueryID); err != nil {
		return err
	}
	cout, err := r.api.CancelQuery(ctx, &timestreamquery.CancelQueryInput{QueryId: aws.String(res.QueryID)})
	if err != nil {
		return apperrors.NewQueryError(apperrors.CodeCancelFailed, "cancel request failed", err).
			WithDetails(map[string]interface{}{"query_id": res.QueryID})
	}

	msg := "Query has been cancelled successfully"
	if cout != nil && cout.CancellationMessage != nil {
		msg += ": " + *cout.CancellationMessage
	}
	logger.Info().Str("query_id", res.QueryID).Msg("Query cancelled")
	return r.out.WriteLine(msg)
}

func (r *Runner) record(ctx context.Context, query string, res *Result, status ledger.RunStatus, runErr error, started time.Time) {
	if r.ledger == nil {
		return
	}
	run := &ledger.QueryRun{
		RunID:      res.RunID,
		Query:      query,
		QueryID:    res.QueryID,
		Status:     status,
		Pages:      res.Pages,
		Rows:       res.Rows,
		StartedAt:  started,
		FinishedAt: r.now(),
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	// The run is recorded even when ctx was cancelled mid-query.
	if err := r.ledger.RecordQueryRun(context.WithoutCancel(ctx), run); err != nil {
		r.logger.Warn().Err(err).Str("run_id", res.RunID).Msg("Failed to record query run")
	}
}

// queryError maps a service error onto the query error codes. Throttling is
// reported separately so callers can back off.
func queryError(msg string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	code := apperrors.CodeQueryFailed
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ThrottlingException" {
		code = apperrors.CodeThrottled
	}
	return apperrors.NewQueryError(code, msg, err)
}
