package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ResourceKind names a kind of Timestream resource.
type ResourceKind string

const (
	KindDatabase ResourceKind = "database"
	KindTable    ResourceKind = "table"
)

// RunStatus is the outcome of a query run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("ledger: record not found")

// Resource is a Timestream database or table created by tsdemo.
type Resource struct {
	Kind      ResourceKind
	Database  string
	Name      string
	Region    string
	ARN       string
	CreatedAt time.Time
	DeletedAt *time.Time
}

// QueryRun is one execution of a query.
type QueryRun struct {
	RunID      string
	Query      string
	QueryID    string
	Status     RunStatus
	Pages      int
	Rows       int64
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Ledger stores resource and query-run history.
type Ledger interface {
	// RecordResource inserts or revives a resource.
	RecordResource(ctx context.Context, r *Resource) error

	// MarkResourceDeleted stamps a resource as deleted. Unknown resources are ignored.
	MarkResourceDeleted(ctx context.Context, kind ResourceKind, database, name string, at time.Time) error

	// GetResource returns one resource, deleted or not.
	GetResource(ctx context.Context, kind ResourceKind, database, name string) (*Resource, error)

	// ListResources returns resources ordered by creation time.
	ListResources(ctx context.Context, includeDeleted bool) ([]*Resource, error)

	// RecordQueryRun stores a finished query run.
	RecordQueryRun(ctx context.Context, run *QueryRun) error

	// ListQueryRuns returns the most recent runs, newest first.
	ListQueryRuns(ctx context.Context, limit int) ([]*QueryRun, error)

	Close() error
}

// SQLiteLedger implements Ledger using SQLite.
type SQLiteLedger struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool
	dbPath string
	mu     sync.Mutex // Write-only lock
}

// Open opens (creating if needed) the ledger at dbPath.
func Open(dbPath string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	l := &SQLiteLedger{db: db, dbPath: dbPath}

	// Schema must exist before the read-only pool opens the file.
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: failed to initialize schema: %w", err)
	}

	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	l.readDB = readDB

	return l, nil
}

// Path returns the database file path.
func (l *SQLiteLedger) Path() string {
	return l.dbPath
}

func (l *SQLiteLedger) initSchema() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// RecordResource inserts or revives a resource.
func (l *SQLiteLedger) RecordResource(ctx context.Context, r *Resource) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO resources (kind, database_name, name, region, arn, created_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT (kind, database_name, name) DO UPDATE SET
			region = excluded.region,
			arn = COALESCE(excluded.arn, resources.arn),
			created_at = CASE WHEN resources.deleted_at IS NULL THEN resources.created_at ELSE excluded.created_at END,
			deleted_at = NULL`,
		string(r.Kind), r.Database, r.Name, r.Region, nullString(r.ARN), createdAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("ledger: failed to record resource: %w", err)
	}
	return nil
}

// MarkResourceDeleted stamps a resource as deleted.
func (l *SQLiteLedger) MarkResourceDeleted(ctx context.Context, kind ResourceKind, database, name string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.ExecContext(ctx, `
		UPDATE resources SET deleted_at = ?
		WHERE kind = ? AND database_name = ? AND name = ? AND deleted_at IS NULL`,
		at.UnixMilli(), string(kind), database, name,
	)
	if err != nil {
		return fmt.Errorf("ledger: failed to mark resource deleted: %w", err)
	}
	return nil
}

const resourceColumns = `kind, database_name, name, region, arn, created_at, deleted_at`

// GetResource returns one resource.
func (l *SQLiteLedger) GetResource(ctx context.Context, kind ResourceKind, database, name string) (*Resource, error) {
	row := l.readDB.QueryRowContext(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE kind = ? AND database_name = ? AND name = ?`,
		string(kind), database, name)
	r, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// ListResources returns resources ordered by creation time.
func (l *SQLiteLedger) ListResources(ctx context.Context, includeDeleted bool) ([]*Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources`
	if !includeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY created_at, kind, name`

	rows, err := l.readDB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to list resources: %w", err)
	}
	defer rows.Close()

	var out []*Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResource(s scanner) (*Resource, error) {
	var r Resource
	var kind string
	var arn sql.NullString
	var createdAt int64
	var deletedAt sql.NullInt64

	if err := s.Scan(&kind, &r.Database, &r.Name, &r.Region, &arn, &createdAt, &deletedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("ledger: failed to scan resource: %w", err)
	}
	r.Kind = ResourceKind(kind)
	r.ARN = arn.String
	r.CreatedAt = time.UnixMilli(createdAt)
	if deletedAt.Valid {
		t := time.UnixMilli(deletedAt.Int64)
		r.DeletedAt = &t
	}
	return &r, nil
}

// RecordQueryRun stores a finished query run.
func (l *SQLiteLedger) RecordQueryRun(ctx context.Context, run *QueryRun) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO query_runs (run_id, query_text, query_id, status, pages, row_count, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Query, nullString(run.QueryID), string(run.Status), run.Pages, run.Rows,
		nullString(run.Error), run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("ledger: failed to record query run: %w", err)
	}
	return nil
}

// ListQueryRuns returns the most recent runs, newest first.
func (l *SQLiteLedger) ListQueryRuns(ctx context.Context, limit int) ([]*QueryRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.readDB.QueryContext(ctx, `
		SELECT run_id, query_text, query_id, status, pages, row_count, error, started_at, finished_at
		FROM query_runs ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to list query runs: %w", err)
	}
	defer rows.Close()

	var out []*QueryRun
	for rows.Next() {
		var run QueryRun
		var status string
		var queryID, errText sql.NullString
		var startedAt, finishedAt int64
		if err := rows.Scan(&run.RunID, &run.Query, &queryID, &status, &run.Pages, &run.Rows,
			&errText, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("ledger: failed to scan query run: %w", err)
		}
		run.Status = RunStatus(status)
		run.QueryID = queryID.String
		run.Error = errText.String
		run.StartedAt = time.UnixMilli(startedAt)
		run.FinishedAt = time.UnixMilli(finishedAt)
		out = append(out, &run)
	}
	return out, rows.Err()
}

// Close closes the database connections.
func (l *SQLiteLedger) Close() error {
	if err := l.readDB.Close(); err != nil {
		l.db.Close()
		return err
	}
	return l.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
