package provision

import (
	"context"

	"github.com/tsdemo/tsdemo/internal/ledger"
)

// CleanupReport describes what Cleanup removed.
type CleanupReport struct {
	Database        string
	Table           string
	TableDeleted    bool
	DatabaseDeleted bool
	// RejectedBucket and RejectedPrefix locate rejected-record reports the
	// table wrote. The bucket is left in place.
	RejectedBucket string
	RejectedPrefix string
}

// Cleanup deletes table and then database. Resources that are already gone
// are skipped. The table's rejected-data bucket, if any, is reported but not
// deleted.
func (p *Provisioner) Cleanup(ctx context.Context, database, table string) (*CleanupReport, error) {
	report := &CleanupReport{Database: database, Table: table}

	t, err := p.DescribeTable(ctx, database, table)
	switch {
	case err == nil:
		report.RejectedBucket, report.RejectedPrefix = RejectedDataLocation(t)
		if report.RejectedBucket != "" {
			p.logger.Info().
				Str("bucket", report.RejectedBucket).
				Str("prefix", report.RejectedPrefix).
				Msg("Rejected-data bucket is retained; delete it manually if no longer needed")
		}
		if report.TableDeleted, err = p.DeleteTable(ctx, database, table); err != nil {
			return report, err
		}
	case IsNotFound(err):
		p.logger.Info().Str("database", database).Str("table", table).Msg("Table does not exist")
		p.markDeleted(ctx, ledger.KindTable, database, table)
	default:
		return report, err
	}

	if report.DatabaseDeleted, err = p.DeleteDatabase(ctx, database); err != nil {
		return report, err
	}
	return report, nil
}
