// Package app wires configuration, AWS clients, the ledger and output sinks
// into the operations the tsdemo commands run.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	wtypes "github.com/aws/aws-sdk-go-v2/service/timestreamwrite/types"
	"github.com/rs/zerolog"

	"github.com/tsdemo/tsdemo/internal/config"
	apperrors "github.com/tsdemo/tsdemo/internal/errors"
	"github.com/tsdemo/tsdemo/internal/ingest"
	"github.com/tsdemo/tsdemo/internal/ledger"
	"github.com/tsdemo/tsdemo/internal/logging"
	"github.com/tsdemo/tsdemo/internal/observability"
	"github.com/tsdemo/tsdemo/internal/provision"
	"github.com/tsdemo/tsdemo/internal/query"
	"github.com/tsdemo/tsdemo/internal/render"
	"github.com/tsdemo/tsdemo/internal/sink"
	"github.com/tsdemo/tsdemo/internal/storage"
	"github.com/tsdemo/tsdemo/internal/timestream"
)

// App holds the shared resources of one tsdemo invocation.
type App struct {
	cfg       *config.Config
	logger    zerolog.Logger
	ledger    *ledger.SQLiteLedger
	lifecycle *Lifecycle
	stats     *observability.ResultStats
	stdout    io.Writer
	now       func() time.Time

	// AWS clients and stores are created on first use.
	mu       sync.Mutex
	awsCfg   *aws.Config
	queryAPI timestream.QueryAPI
	writeAPI timestream.WriteAPI
	objects  storage.ObjectStorage
}

// Option configures an App.
type Option func(*App)

// WithQueryAPI replaces the Timestream query client.
func WithQueryAPI(api timestream.QueryAPI) Option {
	return func(a *App) { a.queryAPI = api }
}

// WithWriteAPI replaces the Timestream write client.
func WithWriteAPI(api timestream.WriteAPI) Option {
	return func(a *App) { a.writeAPI = api }
}

// WithObjectStorage replaces the S3 store used for uploads and rejected-record
// reports.
func WithObjectStorage(store storage.ObjectStorage) Option {
	return func(a *App) { a.objects = store }
}

// WithStdout redirects the stdout sink.
func WithStdout(w io.Writer) Option {
	return func(a *App) { a.stdout = w }
}

// WithLogger replaces the configured logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// New validates cfg, prepares the data directory and opens the ledger.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	a := &App{
		cfg: cfg,
		logger: logging.New(logging.Config{
			Level:  cfg.Log.Level,
			Pretty: cfg.Log.Pretty,
			Output: os.Stderr,
		}),
		lifecycle: NewLifecycle(DefaultShutdownTimeout),
		stats:     observability.NewResultStats(time.Hour),
		stdout:    os.Stdout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	l, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	a.ledger = l
	a.lifecycle.RegisterCloser(l)

	a.component("app").Debug().Str("data_dir", cfg.DataDir).Str("region", cfg.AWS.Region).Msg("App initialized")
	return a, nil
}

func (a *App) component(name string) zerolog.Logger {
	return a.logger.With().Str("component", name).Logger()
}

// Config returns the resolved configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Lifecycle returns the app's signal and cleanup coordinator.
func (a *App) Lifecycle() *Lifecycle {
	return a.lifecycle
}

// Stats returns the column statistics gathered by Query.
func (a *App) Stats() *observability.ResultStats {
	return a.stats
}

// Close releases every resource the app opened.
func (a *App) Close(ctx context.Context) error {
	return a.lifecycle.Shutdown(ctx)
}

func (a *App) clientConfig() timestream.ClientConfig {
	return timestream.ClientConfig{
		Region:         a.cfg.AWS.Region,
		QueryEndpoint:  a.cfg.AWS.QueryEndpoint,
		WriteEndpoint:  a.cfg.AWS.WriteEndpoint,
		MaxAttempts:    a.cfg.AWS.MaxAttempts,
		RequestTimeout: a.cfg.AWS.RequestTimeout,
	}
}

func (a *App) loadAWSLocked(ctx context.Context) (aws.Config, error) {
	if a.awsCfg != nil {
		return *a.awsCfg, nil
	}
	awsCfg, err := timestream.LoadAWSConfig(ctx, a.clientConfig())
	if err != nil {
		return aws.Config{}, err
	}
	a.awsCfg = &awsCfg
	return awsCfg, nil
}

func (a *App) queryClient(ctx context.Context) (timestream.QueryAPI, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.queryAPI == nil {
		awsCfg, err := a.loadAWSLocked(ctx)
		if err != nil {
			return nil, err
		}
		a.queryAPI = timestream.NewQueryClient(awsCfg, a.clientConfig())
	}
	return a.queryAPI, nil
}

func (a *App) writeClient(ctx context.Context) (timestream.WriteAPI, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.writeAPI == nil {
		awsCfg, err := a.loadAWSLocked(ctx)
		if err != nil {
			return nil, err
		}
		a.writeAPI = timestream.NewWriteClient(awsCfg, a.clientConfig())
	}
	return a.writeAPI, nil
}

// objectStore returns the store for bucket. An injected store serves every
// bucket.
func (a *App) objectStore(ctx context.Context, bucket string) (storage.ObjectStorage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.objects != nil {
		return a.objects, nil
	}
	awsCfg, err := a.loadAWSLocked(ctx)
	if err != nil {
		return nil, err
	}
	return storage.NewS3Storage(awsCfg, bucket, storage.S3Config{
		Endpoint:     a.cfg.Output.Upload.Endpoint,
		UsePathStyle: a.cfg.Output.Upload.UsePathStyle,
	}), nil
}

func (a *App) provisioner(ctx context.Context) (*provision.Provisioner, error) {
	api, err := a.writeClient(ctx)
	if err != nil {
		return nil, err
	}
	return provision.New(api,
		provision.WithLedger(a.ledger),
		provision.WithRegion(a.cfg.AWS.Region),
		provision.WithLogger(a.component("provision")),
	), nil
}

// ProvisionReport describes the resources Provision left in place.
type ProvisionReport struct {
	Database        *wtypes.Database
	DatabaseCreated bool
	Table           *wtypes.Table
	TableCreated    bool
	Databases       []wtypes.Database
	Tables          []wtypes.Table
}

// Provision creates the configured database and table, applies the configured
// retention to a table that already existed, and lists what the account holds.
func (a *App) Provision(ctx context.Context) (*ProvisionReport, error) {
	p, err := a.provisioner(ctx)
	if err != nil {
		return nil, err
	}
	ts := a.cfg.Timestream
	report := &ProvisionReport{}

	if report.Database, report.DatabaseCreated, err = p.CreateDatabase(ctx, ts.Database); err != nil {
		return report, err
	}
	report.Table, report.TableCreated, err = p.CreateTable(ctx, provision.TableSpec{
		Database:              ts.Database,
		Table:                 ts.Table,
		MemoryRetentionHours:  ts.MemoryRetentionHours,
		MagneticRetentionDays: ts.MagneticRetentionDays,
		RejectedBucket:        ts.RejectedBucket,
		RejectedPrefix:        ts.RejectedPrefix,
	})
	if err != nil {
		return report, err
	}
	if !report.TableCreated {
		if report.Table, err = p.UpdateRetention(ctx, ts.Database, ts.Table, ts.MemoryRetentionHours, ts.MagneticRetentionDays); err != nil {
			return report, err
		}
	}

	if report.Databases, err = p.ListDatabases(ctx); err != nil {
		return report, err
	}
	if report.Tables, err = p.ListTables(ctx, ts.Database); err != nil {
		return report, err
	}
	return report, nil
}

// IngestReport summarises an ingestion.
type IngestReport struct {
	Hosts []ingest.Host
	Stats ingest.Stats
}

// Ingest writes generated host metrics ending now to the configured table.
// The sample queries' host is always among the generated hosts.
func (a *App) Ingest(ctx context.Context) (*IngestReport, error) {
	api, err := a.writeClient(ctx)
	if err != nil {
		return nil, err
	}

	gen := ingest.NewGenerator(ingest.GeneratorConfig{
		Hosts:         a.cfg.Ingest.Hosts,
		PointsPerHost: a.cfg.Ingest.PointsPerHost,
		Interval:      a.cfg.Ingest.Interval,
		Seed:          uint64(a.cfg.Ingest.Seed),
		Include:       a.cfg.Query.Host,
	})
	report := &IngestReport{Hosts: gen.Hosts()}

	w := ingest.NewWriter(api, a.cfg.Timestream.Database, a.cfg.Timestream.Table,
		ingest.WithBatchSize(a.cfg.Ingest.BatchSize),
		ingest.WithWriterLogger(a.component("ingest")),
	)
	err = w.Add(ctx, gen.Records(a.now())...)
	if err == nil {
		err = w.Flush(ctx)
	}
	report.Stats = w.Stats()
	return report, err
}

// openSink builds the configured output fan-out for runID.
func (a *App) openSink(ctx context.Context, runID string) (sink.Sink, error) {
	var sinks []sink.Sink
	if a.cfg.Output.Stdout {
		sinks = append(sinks, sink.NewWriter(a.stdout))
	}
	if a.cfg.Output.File != "" {
		f, err := sink.NewFile(a.cfg.Output.File)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, f)
	}
	if up := a.cfg.Output.Upload; up.Enabled {
		store, err := a.objectStore(ctx, up.Bucket)
		if err != nil {
			closeSinks(ctx, sinks)
			return nil, err
		}
		sinks = append(sinks, sink.NewObject(store, sink.ObjectConfig{
			Prefix:   up.Prefix,
			RunID:    runID,
			Compress: up.Compress,
		}))
	}
	if len(sinks) == 0 {
		return sink.Discard{}, nil
	}
	return sink.NewTee(sinks...), nil
}

func closeSinks(ctx context.Context, sinks []sink.Sink) {
	for _, s := range sinks {
		_ = s.Close(ctx)
	}
}

func (a *App) runner(ctx context.Context, out sink.Sink) (*query.Runner, error) {
	api, err := a.queryClient(ctx)
	if err != nil {
		return nil, err
	}
	return query.NewRunner(api, out,
		query.WithMaxRows(int(a.cfg.Query.MaxRows)),
		query.WithWorkers(a.cfg.Query.Workers),
		query.WithDecoder(render.New(render.WithMaxDepth(a.cfg.Query.MaxDepth))),
		query.WithLedger(a.ledger),
		query.WithStats(a.stats),
		query.WithLogger(a.component("query")),
	), nil
}

// withSink runs fn against a freshly opened sink and closes it afterwards,
// uploading buffered output even when ctx was cancelled.
func (a *App) withSink(ctx context.Context, fn func(*query.Runner) error) error {
	out, err := a.openSink(ctx, a.now().UTC().Format("20060102T150405Z"))
	if err != nil {
		return err
	}
	r, err := a.runner(ctx, out)
	if err != nil {
		_ = out.Close(ctx)
		return err
	}

	runErr := fn(r)
	if err := out.Close(context.WithoutCancel(ctx)); err != nil {
		a.component("query").Error().Err(err).Msg("Failed to close output")
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

// Query runs queries, or the sample queries against the configured table
// when none are given.
func (a *App) Query(ctx context.Context, queries []string) ([]*query.Result, error) {
	if len(queries) == 0 {
		queries = a.SampleQueries()
	}
	var results []*query.Result
	err := a.withSink(ctx, func(r *query.Runner) error {
		var err error
		results, err = r.RunAll(ctx, queries)
		return err
	})
	return results, err
}

// Cancel submits q and cancels it. An empty q uses the last sample query.
func (a *App) Cancel(ctx context.Context, q string) (*query.Result, error) {
	if q == "" {
		samples := a.SampleQueries()
		q = samples[len(samples)-1]
	}
	var result *query.Result
	err := a.withSink(ctx, func(r *query.Runner) error {
		var err error
		result, err = r.Cancel(ctx, q)
		return err
	})
	return result, err
}

// SampleQueries returns the sample queries for the configured table and host.
func (a *App) SampleQueries() []string {
	return query.SampleQueries(a.cfg.Timestream.Database, a.cfg.Timestream.Table, a.cfg.Query.Host)
}

// Cleanup deletes the configured table and database.
func (a *App) Cleanup(ctx context.Context) (*provision.CleanupReport, error) {
	p, err := a.provisioner(ctx)
	if err != nil {
		return nil, err
	}
	return p.Cleanup(ctx, a.cfg.Timestream.Database, a.cfg.Timestream.Table)
}

// Rejected lists the rejected-record reports of the configured table,
// downloading them into the reports directory when download is set. The
// bucket comes from the table's magnetic store settings, falling back to the
// configured bucket.
func (a *App) Rejected(ctx context.Context, download bool) (*provision.RejectedReport, error) {
	bucket, prefix := a.cfg.Timestream.RejectedBucket, a.cfg.Timestream.RejectedPrefix

	p, err := a.provisioner(ctx)
	if err != nil {
		return nil, err
	}
	table, err := p.DescribeTable(ctx, a.cfg.Timestream.Database, a.cfg.Timestream.Table)
	switch {
	case err == nil:
		if b, pfx := provision.RejectedDataLocation(table); b != "" {
			bucket, prefix = b, pfx
		}
	case provision.IsNotFound(err):
		a.component("provision").Warn().Str("table", a.cfg.Timestream.Table).Msg("Table does not exist; using configured bucket")
	default:
		return nil, err
	}
	if bucket == "" {
		return nil, apperrors.NewValidationError(apperrors.CodeInvalidConfig,
			fmt.Sprintf("no rejected-data bucket configured for %s.%s", a.cfg.Timestream.Database, a.cfg.Timestream.Table))
	}

	store, err := a.objectStore(ctx, bucket)
	if err != nil {
		return nil, err
	}
	var dl *storage.BatchDownloader
	if download {
		dl = storage.NewBatchDownloader(store, a.cfg.Query.Workers, a.cfg.ReportsDir())
	}
	return provision.ListRejected(ctx, store, prefix, dl)
}

// History returns the most recent query runs and the live resources.
func (a *App) History(ctx context.Context, limit int, includeDeleted bool) ([]*ledger.QueryRun, []*ledger.Resource, error) {
	runs, err := a.ledger.ListQueryRuns(ctx, limit)
	if err != nil {
		return nil, nil, err
	}
	resources, err := a.ledger.ListResources(ctx, includeDeleted)
	if err != nil {
		return nil, nil, err
	}
	return runs, resources, nil
}
