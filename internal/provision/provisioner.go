// Package provision creates, inspects and removes the Timestream database and
// table that tsdemo works against.
package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite"
	wtypes "github.com/aws/aws-sdk-go-v2/service/timestreamwrite/types"
	"github.com/rs/zerolog"

	apperrors "github.com/tsdemo/tsdemo/internal/errors"
	"github.com/tsdemo/tsdemo/internal/ledger"
	"github.com/tsdemo/tsdemo/internal/timestream"
)

const (
	// DefaultMemoryRetentionHours is the memory store retention of new tables.
	DefaultMemoryRetentionHours = 24
	// DefaultMagneticRetentionDays is the magnetic store retention of new
	// tables, seven years.
	DefaultMagneticRetentionDays = 7 * 365

	listPageSize = 20
)

// TableSpec describes a table to create.
type TableSpec struct {
	Database              string
	Table                 string
	MemoryRetentionHours  int64
	MagneticRetentionDays int64
	// RejectedBucket receives magnetic store rejected-record reports. Empty
	// leaves the rejected-data location unset.
	RejectedBucket string
	RejectedPrefix string
}

// Provisioner manages Timestream resources.
type Provisioner struct {
	api    timestream.WriteAPI
	ledger ledger.Ledger
	region string
	logger zerolog.Logger
	now    func() time.Time
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithLedger records created and deleted resources in l.
func WithLedger(l ledger.Ledger) Option {
	return func(p *Provisioner) {
		p.ledger = l
	}
}

// WithRegion sets the region stored with ledger entries.
func WithRegion(region string) Option {
	return func(p *Provisioner) {
		p.region = region
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Provisioner) {
		p.logger = logger
	}
}

// New creates a provisioner over api.
func New(api timestream.WriteAPI, opts ...Option) *Provisioner {
	p := &Provisioner{
		api:    api,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CreateDatabase creates name. An existing database is not an error; created
// reports which case occurred.
func (p *Provisioner) CreateDatabase(ctx context.Context, name string) (db *wtypes.Database, created bool, err error) {
	out, err := p.api.CreateDatabase(ctx, &timestreamwrite.CreateDatabaseInput{
		DatabaseName: aws.String(name),
	})
	if err != nil {
		var conflict *wtypes.ConflictException
		if !errors.As(err, &conflict) {
			return nil, false, provisionError(err, "create database", name, "")
		}
		p.logger.Info().Str("database", name).Msg("Database already exists")
		db, err = p.DescribeDatabase(ctx, name)
		if err != nil {
			return nil, false, err
		}
	} else {
		db = out.Database
		created = true
		p.logger.Info().Str("database", name).Msg("Database created")
	}

	p.recordResource(ctx, ledger.KindDatabase, name, name, db.Arn, db.CreationTime)
	return db, created, nil
}

// CreateTable creates the table in spec with magnetic store writes enabled.
// An existing table is not an error.
func (p *Provisioner) CreateTable(ctx context.Context, spec TableSpec) (table *wtypes.Table, created bool, err error) {
	mem := spec.MemoryRetentionHours
	if mem <= 0 {
		mem = DefaultMemoryRetentionHours
	}
	mag := spec.MagneticRetentionDays
	if mag <= 0 {
		mag = DefaultMagneticRetentionDays
	}

	writeProps := &wtypes.MagneticStoreWriteProperties{
		EnableMagneticStoreWrites: aws.Bool(true),
	}
	if spec.RejectedBucket != "" {
		s3cfg := &wtypes.S3Configuration{
			BucketName:       aws.String(spec.RejectedBucket),
			EncryptionOption: wtypes.S3EncryptionOptionSseS3,
		}
		if spec.RejectedPrefix != "" {
			s3cfg.ObjectKeyPrefix = aws.String(spec.RejectedPrefix)
		}
		writeProps.MagneticStoreRejectedDataLocation = &wtypes.MagneticStoreRejectedDataLocation{
			S3Configuration: s3cfg,
		}
	}

	out, err := p.api.CreateTable(ctx, &timestreamwrite.CreateTableInput{
		DatabaseName: aws.String(spec.Database),
		TableName:    aws.String(spec.Table),
		RetentionProperties: &wtypes.RetentionProperties{
			MemoryStoreRetentionPeriodInHours:  aws.Int64(mem),
			MagneticStoreRetentionPeriodInDays: aws.Int64(mag),
		},
		MagneticStoreWriteProperties: writeProps,
	})
	if err != nil {
		var conflict *wtypes.ConflictException
		if !errors.As(err, &conflict) {
			return nil, false, provisionError(err, "create table", spec.Database, spec.Table)
		}
		p.logger.Info().Str("database", spec.Database).Str("table", spec.Table).Msg("Table already exists")
		table, err = p.DescribeTable(ctx, spec.Database, spec.Table)
		if err != nil {
			return nil, false, err
		}
	} else {
		table = out.Table
		created = true
		p.logger.Info().Str("database", spec.Database).Str("table", spec.Table).Msg("Table created")
	}

	p.recordResource(ctx, ledger.KindTable, spec.Database, spec.Table, table.Arn, table.CreationTime)
	return table, created, nil
}

// DescribeDatabase returns the database's details.
func (p *Provisioner) DescribeDatabase(ctx context.Context, name string) (*wtypes.Database, error) {
	out, err := p.api.DescribeDatabase(ctx, &timestreamwrite.DescribeDatabaseInput{
		DatabaseName: aws.String(name),
	})
	if err != nil {
		return nil, provisionError(err, "describe database", name, "")
	}
	return out.Database, nil
}

// DescribeTable returns the table's details.
func (p *Provisioner) DescribeTable(ctx context.Context, database, table string) (*wtypes.Table, error) {
	out, err := p.api.DescribeTable(ctx, &timestreamwrite.DescribeTableInput{
		DatabaseName: aws.String(database),
		TableName:    aws.String(table),
	})
	if err != nil {
		return nil, provisionError(err, "describe table", database, table)
	}
	return out.Table, nil
}

// UpdateRetention sets the table's memory and magnetic store retention.
func (p *Provisioner) UpdateRetention(ctx context.Context, database, table string, memoryHours, magneticDays int64) (*wtypes.Table, error) {
	out, err := p.api.UpdateTable(ctx, &timestreamwrite.UpdateTableInput{
		DatabaseName: aws.String(database),
		TableName:    aws.String(table),
		RetentionProperties: &wtypes.RetentionProperties{
			MemoryStoreRetentionPeriodInHours:  aws.Int64(memoryHours),
			MagneticStoreRetentionPeriodInDays: aws.Int64(magneticDays),
		},
	})
	if err != nil {
		return nil, provisionError(err, "update table", database, table)
	}
	p.logger.Info().
		Str("database", database).
		Str("table", table).
		Int64("memory_hours", memoryHours).
		Int64("magnetic_days", magneticDays).
		Msg("Table retention updated")
	return out.Table, nil
}

// ListDatabases returns every database in the account and region.
func (p *Provisioner) ListDatabases(ctx context.Context) ([]wtypes.Database, error) {
	var out []wtypes.Database
	pager := timestreamwrite.NewListDatabasesPaginator(p.api, &timestreamwrite.ListDatabasesInput{
		MaxResults: aws.Int32(listPageSize),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, provisionError(err, "list databases", "", "")
		}
		out = append(out, page.Databases...)
	}
	return out, nil
}

// ListTables returns every table in database.
func (p *Provisioner) ListTables(ctx context.Context, database string) ([]wtypes.Table, error) {
	var out []wtypes.Table
	pager := timestreamwrite.NewListTablesPaginator(p.api, &timestreamwrite.ListTablesInput{
		DatabaseName: aws.String(database),
		MaxResults:   aws.Int32(listPageSize),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, provisionError(err, "list tables", database, "")
		}
		out = append(out, page.Tables...)
	}
	return out, nil
}

// DeleteTable deletes the table. A table that does not exist is not an
// error; deleted reports which case occurred.
func (p *Provisioner) DeleteTable(ctx context.Context, database, table string) (deleted bool, err error) {
	_, err = p.api.DeleteTable(ctx, &timestreamwrite.DeleteTableInput{
		DatabaseName: aws.String(database),
		TableName:    aws.String(table),
	})
	if err != nil && !IsNotFound(err) {
		return false, provisionError(err, "delete table", database, table)
	}
	deleted = err == nil
	if deleted {
		p.logger.Info().Str("database", database).Str("table", table).Msg("Table deleted")
	} else {
		p.logger.Info().Str("database", database).Str("table", table).Msg("Table was already deleted")
	}
	p.markDeleted(ctx, ledger.KindTable, database, table)
	return deleted, nil
}

// DeleteDatabase deletes the database. A database that does not exist is not
// an error.
func (p *Provisioner) DeleteDatabase(ctx context.Context, name string) (deleted bool, err error) {
	_, err = p.api.DeleteDatabase(ctx, &timestreamwrite.DeleteDatabaseInput{
		DatabaseName: aws.String(name),
	})
	if err != nil && !IsNotFound(err) {
		return false, provisionError(err, "delete database", name, "")
	}
	deleted = err == nil
	if deleted {
		p.logger.Info().Str("database", name).Msg("Database deleted")
	} else {
		p.logger.Info().Str("database", name).Msg("Database was already deleted")
	}
	p.markDeleted(ctx, ledger.KindDatabase, name, name)
	return deleted, nil
}

// RejectedDataLocation returns the table's rejected-data bucket and prefix,
// or empty strings when none is configured.
func RejectedDataLocation(table *wtypes.Table) (bucket, prefix string) {
	if table == nil || table.MagneticStoreWriteProperties == nil {
		return "", ""
	}
	loc := table.MagneticStoreWriteProperties.MagneticStoreRejectedDataLocation
	if loc == nil || loc.S3Configuration == nil {
		return "", ""
	}
	return aws.ToString(loc.S3Configuration.BucketName), aws.ToString(loc.S3Configuration.ObjectKeyPrefix)
}

// IsNotFound reports whether err is a Timestream resource-not-found error.
func IsNotFound(err error) bool {
	var nf *wtypes.ResourceNotFoundException
	return errors.As(err, &nf)
}

func (p *Provisioner) recordResource(ctx context.Context, kind ledger.ResourceKind, database, name string, arn *string, created *time.Time) {
	if p.ledger == nil {
		return
	}
	at := p.now()
	if created != nil {
		at = *created
	}
	err := p.ledger.RecordResource(ctx, &ledger.Resource{
		Kind:      kind,
		Database:  database,
		Name:      name,
		Region:    p.region,
		ARN:       aws.ToString(arn),
		CreatedAt: at,
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("kind", string(kind)).Str("name", name).Msg("Failed to record resource")
	}
}

func (p *Provisioner) markDeleted(ctx context.Context, kind ledger.ResourceKind, database, name string) {
	if p.ledger == nil {
		return
	}
	if err := p.ledger.MarkResourceDeleted(ctx, kind, database, name, p.now()); err != nil {
		p.logger.Warn().Err(err).Str("kind", string(kind)).Str("name", name).Msg("Failed to mark resource deleted")
	}
}

func provisionError(err error, op, database, table string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	code := apperrors.CodeRequestFailed
	var conflict *wtypes.ConflictException
	switch {
	case IsNotFound(err):
		code = apperrors.CodeResourceNotFound
	case errors.As(err, &conflict):
		code = apperrors.CodeResourceExists
	}
	details := map[string]interface{}{"operation": op}
	if database != "" {
		details["database"] = database
	}
	if table != "" {
		details["table"] = table
	}
	return apperrors.NewProvisionError(code, fmt.Sprintf("%s failed", op), err).WithDetails(details)
}
