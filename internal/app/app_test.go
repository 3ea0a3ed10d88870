package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/timestreamquery"
	qtypes "github.com/aws/aws-sdk-go-v2/service/timestreamquery/types"
	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite"
	wtypes "github.com/aws/aws-sdk-go-v2/service/timestreamwrite/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsdemo/tsdemo/internal/config"
	apperrors "github.com/tsdemo/tsdemo/internal/errors"
	"github.com/tsdemo/tsdemo/internal/ledger"
	"github.com/tsdemo/tsdemo/internal/storage"
	"github.com/tsdemo/tsdemo/internal/timestream"
)

// controlPlane is a minimal in-memory Timestream write service.
type controlPlane struct {
	timestream.WriteAPI

	mu        sync.Mutex
	databases map[string]wtypes.Database
	tables    map[string]wtypes.Table
	writes    []int
	updates   int
}

func newControlPlane() *controlPlane {
	return &controlPlane{
		databases: map[string]wtypes.Database{},
		tables:    map[string]wtypes.Table{},
	}
}

func (c *controlPlane) WriteRecords(_ context.Context, in *timestreamwrite.WriteRecordsInput, _ ...func(*timestreamwrite.Options)) (*timestreamwrite.WriteRecordsOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, len(in.Records))
	return &timestreamwrite.WriteRecordsOutput{}, nil
}

func (c *controlPlane) CreateDatabase(_ context.Context, in *timestreamwrite.CreateDatabaseInput, _ ...func(*timestreamwrite.Options)) (*timestreamwrite.CreateDatabaseOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name := aws.ToString(in.DatabaseName)
	if _, ok := c.databases[name]; ok {
		return nil, &wtypes.ConflictException{Message: aws.String("exists")}
	}
	db := wtypes.Database{DatabaseName: in.DatabaseName, Arn: aws.String("arn:db/" + name)}
	c.databases[name] = db
	return &timestreamwrite.CreateDatabaseOutput{Database: &db}, nil
}

func (c *controlPlane) DescribeDatabase(_ context.Context, in *timestreamwrite.DescribeDatabaseInput, _ ...func(*timestreamwrite.Options)) (*timestreamwrite.DescribeDatabaseOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	db, ok := c.databases[aws.ToString(in.DatabaseName)]
	if !ok {
		return nil, &wtypes.ResourceNotFoundException{Message: aws.String("no database")}
	}
	return &timestreamwrite.DescribeDatabaseOutput{Database: &db}, nil
}

func (c *controlPlane) ListDatabases(context.Context, *timestreamwrite.ListDatabasesInput, ...func(*timestreamwrite.Options)) (*timestreamwrite.ListDatabasesOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := &timestreamwrite.ListDatabasesOutput{}
	for _, db := range c.databases {
		out.Databases = append(out.Databases, db)
	}
	return out, nil
}

func (c *controlPlane) DeleteDatabase(_ context.Context, in *timestreamwrite.DeleteDatabaseInput, _ ...func(*timestreamwrite.Options)) (*timestreamwrite.DeleteDatabaseOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name := aws.ToString(in.DatabaseName)
	if _, ok := c.databases[name]; !ok {
		return nil, &wtypes.ResourceNotFoundException{Message: aws.String("no database")}
	}
	delete(c.databases, name)
	return &timestreamwrite.DeleteDatabaseOutput{}, nil
}

func (c *controlPlane) CreateTable(_ context.Context, in *timestreamwrite.CreateTableInput, _ ...func(*timestreamwrite.Options)) (*timestreamwrite.CreateTableOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name := aws.ToString(in.TableName)
	if _, ok := c.tables[name]; ok {
		return nil, &wtypes.ConflictException{Message: aws.String("exists")}
	}
	t := wtypes.Table{
		DatabaseName:                 in.DatabaseName,
		TableName:                    in.TableName,
		Arn:                          aws.String("arn:table/" + name),
		RetentionProperties:          in.RetentionProperties,
		MagneticStoreWriteProperties: in.MagneticStoreWriteProperties,
	}
	c.tables[name] = t
	return &timestreamwrite.CreateTableOutput{Table: &t}, nil
}

func (c *controlPlane) DescribeTable(_ context.Context, in *timestreamwrite.DescribeTableInput, _ ...func(*timestreamwrite.Options)) (*timestreamwrite.DescribeTableOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tables[aws.ToString(in.TableName)]
	if !ok {
		return nil, &wtypes.ResourceNotFoundException{Message: aws.String("no table")}
	}
	return &timestreamwrite.DescribeTableOutput{Table: &t}, nil
}

func (c *controlPlane) UpdateTable(_ context.Context, in *timestreamwrite.UpdateTableInput, _ ...func(*timestreamwrite.Options)) (*timestreamwrite.UpdateTableOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates++
	t := c.tables[aws.ToString(in.TableName)]
	t.RetentionProperties = in.RetentionProperties
	c.tables[aws.ToString(in.TableName)] = t
	return &timestreamwrite.UpdateTableOutput{Table: &t}, nil
}

func (c *controlPlane) ListTables(context.Context, *timestreamwrite.ListTablesInput, ...func(*timestreamwrite.Options)) (*timestreamwrite.ListTablesOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := &timestreamwrite.ListTablesOutput{}
	for _, t := range c.tables {
		out.Tables = append(out.Tables, t)
	}
	return out, nil
}

func (c *controlPlane) DeleteTable(_ context.Context, in *timestreamwrite.DeleteTableInput, _ ...func(*timestreamwrite.Options)) (*timestreamwrite.DeleteTableOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name := aws.ToString(in.TableName)
	if _, ok := c.tables[name]; !ok {
		return nil, &wtypes.ResourceNotFoundException{Message: aws.String("no table")}
	}
	delete(c.tables, name)
	return &timestreamwrite.DeleteTableOutput{}, nil
}

// queryService answers every query with one single-row page.
type queryService struct {
	mu        sync.Mutex
	queries   []string
	cancelled []string
}

func (q *queryService) Query(_ context.Context, in *timestreamquery.QueryInput, _ ...func(*timestreamquery.Options)) (*timestreamquery.QueryOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queries = append(q.queries, aws.ToString(in.QueryString))
	return &timestreamquery.QueryOutput{
		QueryId: aws.String("q-1"),
		ColumnInfo: []qtypes.ColumnInfo{
			{Name: aws.String("hostname"), Type: &qtypes.Type{ScalarType: qtypes.ScalarTypeVarchar}},
		},
		Rows: []qtypes.Row{{Data: []qtypes.Datum{{ScalarValue: aws.String("host-24Gju")}}}},
	}, nil
}

func (q *queryService) CancelQuery(_ context.Context, in *timestreamquery.CancelQueryInput, _ ...func(*timestreamquery.Options)) (*timestreamquery.CancelQueryOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled = append(q.cancelled, aws.ToString(in.QueryId))
	return &timestreamquery.CancelQueryOutput{}, nil
}

type harness struct {
	app     *App
	cfg     *config.Config
	writes  *controlPlane
	queries *queryService
	store   *storage.LocalStorage
	stdout  *bytes.Buffer
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.Output.File = filepath.Join(dir, "query_results.log")
	cfg.Timestream.RejectedBucket = "reports"
	cfg.Ingest.Hosts = 2
	cfg.Ingest.PointsPerHost = 60
	cfg.Ingest.Seed = 42
	if mutate != nil {
		mutate(cfg)
	}

	store, err := storage.NewLocalStorage(filepath.Join(dir, "bucket"))
	require.NoError(t, err)

	h := &harness{
		cfg:     cfg,
		writes:  newControlPlane(),
		queries: &queryService{},
		store:   store,
		stdout:  &bytes.Buffer{},
	}
	h.app, err = New(cfg,
		WithWriteAPI(h.writes),
		WithQueryAPI(h.queries),
		WithObjectStorage(store),
		WithStdout(h.stdout),
		WithLogger(zerolog.Nop()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.app.Close(context.Background()) })
	return h
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Query.MaxRows = 5000

	_, err := New(cfg)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidConfig, apperrors.GetCode(err))
}

func TestApp_Provision(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	report, err := h.app.Provision(ctx)
	require.NoError(t, err)
	assert.True(t, report.DatabaseCreated)
	assert.True(t, report.TableCreated)
	assert.Len(t, report.Databases, 1)
	assert.Len(t, report.Tables, 1)
	assert.Zero(t, h.writes.updates)

	props := report.Table.MagneticStoreWriteProperties
	require.NotNil(t, props)
	assert.Equal(t, "reports", aws.ToString(props.MagneticStoreRejectedDataLocation.S3Configuration.BucketName))

	again, err := h.app.Provision(ctx)
	require.NoError(t, err)
	assert.False(t, again.DatabaseCreated)
	assert.False(t, again.TableCreated)
	assert.Equal(t, 1, h.writes.updates)

	_, resources, err := h.app.History(ctx, 10, false)
	require.NoError(t, err)
	assert.Len(t, resources, 2)
}

func TestApp_IngestGenerated(t *testing.T) {
	h := newHarness(t, nil)

	report, err := h.app.Ingest(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Hosts, 2)
	assert.Equal(t, "host-24Gju", report.Hosts[0].Hostname)
	assert.Equal(t, int64(120), report.Stats.Records)
	assert.Equal(t, 2, report.Stats.Batches)
	assert.Equal(t, []int{100, 20}, h.writes.writes)
}

func TestApp_QuerySamples(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Output.Upload = config.UploadConfig{Enabled: true, Bucket: "reports", Prefix: "query-results"}
	})
	ctx := context.Background()

	results, err := h.app.Query(ctx, nil)
	require.NoError(t, err)
	require.Len(t, results, 13)
	assert.Len(t, h.queries.queries, 13)

	out := h.stdout.String()
	assert.True(t, strings.HasPrefix(out, "Running Query_1 : "))
	assert.Contains(t, out, "Running Query_13 : SELECT * FROM devops_multi_sample_application.host_metrics_sample_application LIMIT 200")
	assert.Equal(t, 13, strings.Count(out, "Number of Rows: 1\n"))

	file, err := os.ReadFile(h.cfg.Output.File)
	require.NoError(t, err)
	assert.Equal(t, out, string(file))

	uploaded, err := h.store.ListObjects(ctx, "query-results/")
	require.NoError(t, err)
	require.Len(t, uploaded, 1)
	data, err := h.store.Get(ctx, uploaded[0].Key)
	require.NoError(t, err)
	assert.Equal(t, out, string(data))

	runs, _, err := h.app.History(ctx, 100, false)
	require.NoError(t, err)
	assert.Len(t, runs, 13)
	for _, run := range runs {
		assert.Equal(t, ledger.RunSucceeded, run.Status)
	}

	pages, rows := h.app.Stats().Totals()
	assert.Equal(t, int64(13), pages)
	assert.Equal(t, int64(13), rows)
}

func TestApp_QueryExplicit(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Output.File = ""
	})

	results, err := h.app.Query(context.Background(), []string{"SELECT 1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"SELECT 1"}, h.queries.queries)
	assert.Equal(t, "Running Query_1 : SELECT 1\n"+
		`Metadata : [{"name":"hostname","type":"varchar"}]`+"\n"+
		"Data :\nhost-24Gju\nNumber of Rows: 1\n", h.stdout.String())
}

func TestApp_Cancel(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.app.Cancel(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "q-1", res.QueryID)
	samples := h.app.SampleQueries()
	assert.Equal(t, []string{samples[len(samples)-1]}, h.queries.queries)
	assert.Equal(t, []string{"q-1"}, h.queries.cancelled)
	assert.Contains(t, h.stdout.String(), "Submitting cancellation for the query q-1")
}

func TestApp_Cleanup(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.app.Provision(ctx)
	require.NoError(t, err)

	report, err := h.app.Cleanup(ctx)
	require.NoError(t, err)
	assert.True(t, report.TableDeleted)
	assert.True(t, report.DatabaseDeleted)
	assert.Equal(t, "reports", report.RejectedBucket)
	assert.Empty(t, h.writes.databases)

	_, live, err := h.app.History(ctx, 10, false)
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestApp_Rejected(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.app.Provision(ctx)
	require.NoError(t, err)
	require.NoError(t, h.store.Put(ctx, "rejected/batch-1.json", []byte(`{"reason":"dup"}`)))

	report, err := h.app.Rejected(ctx, false)
	require.NoError(t, err)
	require.Len(t, report.Objects, 1)
	assert.Nil(t, report.LocalPaths)

	report, err = h.app.Rejected(ctx, true)
	require.NoError(t, err)
	local := report.LocalPaths["rejected/batch-1.json"]
	require.NotEmpty(t, local)
	assert.True(t, strings.HasPrefix(local, h.cfg.ReportsDir()))
}

func TestApp_RejectedWithoutBucket(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Timestream.RejectedBucket = ""
	})

	_, err := h.app.Rejected(context.Background(), false)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidConfig, apperrors.GetCode(err))
}

func TestLifecycle_ClosesInReverseOrder(t *testing.T) {
	l := NewLifecycle(time.Second)
	var order []int
	for i := 1; i <= 3; i++ {
		l.RegisterCloser(CloserFunc(func() error {
			order = append(order, i)
			return nil
		}))
	}

	require.NoError(t, l.Shutdown(context.Background()))
	assert.Equal(t, []int{3, 2, 1}, order)
	require.NoError(t, l.Shutdown(context.Background()))
	assert.Len(t, order, 3)
}

func TestLifecycle_ShutdownCancelsSignalContext(t *testing.T) {
	l := NewLifecycle(time.Second)
	ctx, stop := l.SignalContext(context.Background())
	defer stop()

	require.NoError(t, l.Shutdown(context.Background()))
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("signal context not cancelled by shutdown")
	}
}
