package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/spf13/cobra"

	"github.com/tsdemo/tsdemo/internal/app"
	"github.com/tsdemo/tsdemo/internal/config"
)

func newProvisionCmd(opts *globalOptions) *cobra.Command {
	var rejectedBucket string

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create the database and table",
		Long: `Create the configured database and table. Existing resources are kept and
the table's retention is updated to the configured values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			mutate := func(cfg *config.Config) {
				if rejectedBucket != "" {
					cfg.Timestream.RejectedBucket = rejectedBucket
				}
			}
			return runApp(cmd, opts, mutate, func(ctx context.Context, a *app.App) error {
				report, err := a.Provision(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Database %s %s\n", aws.ToString(report.Database.DatabaseName), createdOrExisting(report.DatabaseCreated))
				fmt.Fprintf(out, "Table %s %s\n", aws.ToString(report.Table.TableName), createdOrExisting(report.TableCreated))
				if rp := report.Table.RetentionProperties; rp != nil {
					fmt.Fprintf(out, "Retention: memory %dh, magnetic %dd\n",
						aws.ToInt64(rp.MemoryStoreRetentionPeriodInHours), aws.ToInt64(rp.MagneticStoreRetentionPeriodInDays))
				}
				fmt.Fprintf(out, "Databases (%d):\n", len(report.Databases))
				for _, db := range report.Databases {
					fmt.Fprintf(out, "  %s\n", aws.ToString(db.DatabaseName))
				}
				fmt.Fprintf(out, "Tables in %s (%d):\n", aws.ToString(report.Database.DatabaseName), len(report.Tables))
				for _, t := range report.Tables {
					fmt.Fprintf(out, "  %s\n", aws.ToString(t.TableName))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&rejectedBucket, "rejected-bucket", "", "Existing S3 bucket for magnetic store rejected-record reports")
	return cmd
}

func createdOrExisting(created bool) string {
	if created {
		return "created"
	}
	return "already exists"
}

func newIngestCmd(opts *globalOptions) *cobra.Command {
	var (
		hosts  int
		points int
		seed   int64
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Write sample host metrics",
		Long: `Write generated multi-measure host metrics for a number of simulated
hosts to the table. The host the sample queries filter on is always included.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			mutate := func(cfg *config.Config) {
				if hosts > 0 {
					cfg.Ingest.Hosts = hosts
				}
				if points > 0 {
					cfg.Ingest.PointsPerHost = points
				}
				if seed != 0 {
					cfg.Ingest.Seed = seed
				}
			}
			return runApp(cmd, opts, mutate, func(ctx context.Context, a *app.App) error {
				report, err := a.Ingest(ctx)
				if report == nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, h := range report.Hosts {
					fmt.Fprintf(out, "Host %s in %s/%s\n", h.Hostname, h.Region, h.AZ)
				}
				fmt.Fprintf(out, "Ingested %d records in %d batches (%d rejected)\n",
					report.Stats.Records, report.Stats.Batches, report.Stats.Rejected)
				return err
			})
		},
	}

	cmd.Flags().IntVar(&hosts, "hosts", 0, "Number of simulated hosts")
	cmd.Flags().IntVar(&points, "points", 0, "Records per simulated host")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Seed for reproducible sample data")
	return cmd
}

func newQueryCmd(opts *globalOptions) *cobra.Command {
	var (
		maxRows int
		workers int
		stats   bool
	)

	cmd := &cobra.Command{
		Use:   "query [sql...]",
		Short: "Run queries and print their result sets",
		Long: `Run each given query, or the sample queries when none are given, and
write every page's metadata and decoded rows to the configured outputs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			mutate := func(cfg *config.Config) {
				if maxRows > 0 {
					cfg.Query.MaxRows = int32(maxRows)
				}
				if workers > 0 {
					cfg.Query.Workers = workers
				}
			}
			return runApp(cmd, opts, mutate, func(ctx context.Context, a *app.App) error {
				results, err := a.Query(ctx, args)
				var rows int64
				for _, res := range results {
					rows += res.Rows
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Ran %d queries, %d rows\n", len(results), rows)
				if stats {
					printStats(cmd.OutOrStdout(), a)
				}
				return err
			})
		},
	}

	cmd.Flags().IntVar(&maxRows, "max-rows", 0, "Rows requested per page (1-1000)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Goroutines rendering each page")
	cmd.Flags().BoolVar(&stats, "stats", false, "Print column statistics after the run")
	return cmd
}

func printStats(out io.Writer, a *app.App) {
	pages, rows := a.Stats().Totals()
	fmt.Fprintf(out, "Column statistics over %d pages, %d rows:\n", pages, rows)
	for _, c := range a.Stats().GetTopColumns(20) {
		types := make([]string, 0, len(c.Types))
		for t := range c.Types {
			types = append(types, t)
		}
		sort.Strings(types)
		fmt.Fprintf(out, "  %-32s pages=%d nulls=%d types=%s\n", c.Column, c.Frequency, c.Nulls, strings.Join(types, ","))
	}
}

func newCancelCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel [sql]",
		Short: "Submit a query and cancel it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var q string
			if len(args) == 1 {
				q = args[0]
			}
			return runApp(cmd, opts, nil, func(ctx context.Context, a *app.App) error {
				_, err := a.Cancel(ctx, q)
				return err
			})
		},
	}
}

func newCleanupCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete the table and database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd, opts, nil, func(ctx context.Context, a *app.App) error {
				report, err := a.Cleanup(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Table %s.%s deleted: %t\n", report.Database, report.Table, report.TableDeleted)
				fmt.Fprintf(out, "Database %s deleted: %t\n", report.Database, report.DatabaseDeleted)
				if report.RejectedBucket != "" {
					fmt.Fprintf(out, "Rejected-data bucket s3://%s/%s was kept\n", report.RejectedBucket, report.RejectedPrefix)
				}
				return nil
			})
		},
	}
}

func newRejectedCmd(opts *globalOptions) *cobra.Command {
	var download bool

	cmd := &cobra.Command{
		Use:   "rejected",
		Short: "List magnetic store rejected-record reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd, opts, nil, func(ctx context.Context, a *app.App) error {
				report, err := a.Rejected(ctx, download)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%d reports under %s (%d bytes)\n", len(report.Objects), report.Prefix, report.TotalBytes)
				for _, obj := range report.Objects {
					line := fmt.Sprintf("  %s  %d  %s", obj.Key, obj.Size, obj.LastModified.UTC().Format(time.RFC3339))
					if p, ok := report.LocalPaths[obj.Key]; ok {
						line += "  -> " + p
					}
					if ferr, ok := report.Failed[obj.Key]; ok {
						line += "  (download failed: " + ferr.Error() + ")"
					}
					fmt.Fprintln(out, line)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&download, "download", false, "Download the reports into the data directory")
	return cmd
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var (
		limit int
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded query runs and resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd, opts, nil, func(ctx context.Context, a *app.App) error {
				runs, resources, err := a.History(ctx, limit, all)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Resources (%d):\n", len(resources))
				for _, r := range resources {
					state := "live"
					if r.DeletedAt != nil {
						state = "deleted " + r.DeletedAt.UTC().Format(time.RFC3339)
					}
					fmt.Fprintf(out, "  %-8s %s/%s %s\n", r.Kind, r.Database, r.Name, state)
				}
				fmt.Fprintf(out, "Query runs (%d):\n", len(runs))
				for _, run := range runs {
					fmt.Fprintf(out, "  %s %-9s pages=%d rows=%d %s\n",
						run.StartedAt.UTC().Format(time.RFC3339), run.Status, run.Pages, run.Rows, truncate(run.Query, 60))
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of query runs to show")
	cmd.Flags().BoolVar(&all, "all", false, "Include deleted resources")
	return cmd
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
