// Package ledger records the Timestream resources tsdemo creates and the
// queries it runs in a local SQLite database.
package ledger

// CreateResourcesTableSQL creates the resources table. A resource is keyed by
// kind, database and name; for databases, database and name are equal.
const CreateResourcesTableSQL = `
CREATE TABLE IF NOT EXISTS resources (
    kind TEXT NOT NULL,
    database_name TEXT NOT NULL,
    name TEXT NOT NULL,
    region TEXT NOT NULL,
    arn TEXT,
    created_at INTEGER NOT NULL,
    deleted_at INTEGER,
    PRIMARY KEY (kind, database_name, name)
)`

// CreateQueryRunsTableSQL creates the query_runs table.
const CreateQueryRunsTableSQL = `
CREATE TABLE IF NOT EXISTS query_runs (
    run_id TEXT PRIMARY KEY,
    query_text TEXT NOT NULL,
    query_id TEXT,
    status TEXT NOT NULL,
    pages INTEGER NOT NULL DEFAULT 0,
    row_count INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    started_at INTEGER NOT NULL,
    finished_at INTEGER NOT NULL
)`

// CreateIndexesSQL creates secondary indexes.
var CreateIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_resources_live ON resources(kind) WHERE deleted_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_query_runs_started ON query_runs(started_at)`,
}

// AllSchemaSQL returns every schema statement in execution order.
func AllSchemaSQL() []string {
	stmts := []string{CreateResourcesTableSQL, CreateQueryRunsTableSQL}
	return append(stmts, CreateIndexesSQL...)
}
