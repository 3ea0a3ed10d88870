// Package timestream adapts the AWS Timestream query and write clients to the
// tsdemo data model.
package timestream

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/timestreamquery"
	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite"
	"golang.org/x/net/http2"
)

// QueryAPI is the subset of the Timestream query client used by tsdemo.
type QueryAPI interface {
	Query(ctx context.Context, params *timestreamquery.QueryInput, optFns ...func(*timestreamquery.Options)) (*timestreamquery.QueryOutput, error)
	CancelQuery(ctx context.Context, params *timestreamquery.CancelQueryInput, optFns ...func(*timestreamquery.Options)) (*timestreamquery.CancelQueryOutput, error)
}

// WriteAPI is the subset of the Timestream write client used by tsdemo.
type WriteAPI interface {
	WriteRecords(ctx context.Context, params *timestreamwrite.WriteRecordsInput, optFns ...func(*timestreamwrite.Options)) (*timestreamwrite.WriteRecordsOutput, error)

	CreateDatabase(ctx context.Context, params *timestreamwrite.CreateDatabaseInput, optFns ...func(*timestreamwrite.Options)) (*timestreamwrite.CreateDatabaseOutput, error)
	DescribeDatabase(ctx context.Context, params *timestreamwrite.DescribeDatabaseInput, optFns ...func(*timestreamwrite.Options)) (*timestreamwrite.DescribeDatabaseOutput, error)
	ListDatabases(ctx context.Context, params *timestreamwrite.ListDatabasesInput, optFns ...func(*timestreamwrite.Options)) (*timestreamwrite.ListDatabasesOutput, error)
	DeleteDatabase(ctx context.Context, params *timestreamwrite.DeleteDatabaseInput, optFns ...func(*timestreamwrite.Options)) (*timestreamwrite.DeleteDatabaseOutput, error)

	CreateTable(ctx context.Context, params *timestreamwrite.CreateTableInput, optFns ...func(*timestreamwrite.Options)) (*timestreamwrite.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *timestreamwrite.DescribeTableInput, optFns ...func(*timestreamwrite.Options)) (*timestreamwrite.DescribeTableOutput, error)
	UpdateTable(ctx context.Context, params *timestreamwrite.UpdateTableInput, optFns ...func(*timestreamwrite.Options)) (*timestreamwrite.UpdateTableOutput, error)
	ListTables(ctx context.Context, params *timestreamwrite.ListTablesInput, optFns ...func(*timestreamwrite.Options)) (*timestreamwrite.ListTablesOutput, error)
	DeleteTable(ctx context.Context, params *timestreamwrite.DeleteTableInput, optFns ...func(*timestreamwrite.Options)) (*timestreamwrite.DeleteTableOutput, error)
}

var (
	_ QueryAPI = (*timestreamquery.Client)(nil)
	_ WriteAPI = (*timestreamwrite.Client)(nil)
)

// ClientConfig holds the settings shared by the query and write clients.
type ClientConfig struct {
	// Region is the AWS region hosting the database.
	Region string
	// QueryEndpoint optionally overrides the query endpoint.
	QueryEndpoint string
	// WriteEndpoint optionally overrides the write endpoint.
	WriteEndpoint string
	// MaxAttempts is the SDK retry ceiling. Zero keeps the SDK default.
	MaxAttempts int
	// RequestTimeout bounds the wait for response headers.
	RequestTimeout time.Duration
}

// DefaultClientConfig returns the recommended client settings: ten attempts
// and a 20 second response timeout.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Region:         "us-east-1",
		MaxAttempts:    10,
		RequestTimeout: 20 * time.Second,
	}
}

// NewHTTPClient returns an HTTP/2-capable client tuned for Timestream.
func NewHTTPClient(requestTimeout time.Duration) (*http.Client, error) {
	if requestTimeout <= 0 {
		requestTimeout = 20 * time.Second
	}
	tr := &http.Transport{
		ResponseHeaderTimeout: requestTimeout,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, fmt.Errorf("failed to configure http2 transport: %w", err)
	}
	return &http.Client{Transport: tr}, nil
}

// LoadAWSConfig loads the default AWS configuration with tsdemo's HTTP client
// and retry settings applied.
func LoadAWSConfig(ctx context.Context, cfg ClientConfig) (aws.Config, error) {
	httpClient, err := NewHTTPClient(cfg.RequestTimeout)
	if err != nil {
		return aws.Config{}, err
	}

	opts := []func(*config.LoadOptions) error{
		config.WithHTTPClient(httpClient),
	}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.MaxAttempts > 0 {
		opts = append(opts, config.WithRetryMaxAttempts(cfg.MaxAttempts))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// NewQueryClient creates a query client from awsCfg.
func NewQueryClient(awsCfg aws.Config, cfg ClientConfig) *timestreamquery.Client {
	return timestreamquery.NewFromConfig(awsCfg, func(o *timestreamquery.Options) {
		if cfg.QueryEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.QueryEndpoint)
		}
	})
}

// NewWriteClient creates a write client from awsCfg.
func NewWriteClient(awsCfg aws.Config, cfg ClientConfig) *timestreamwrite.Client {
	return timestreamwrite.NewFromConfig(awsCfg, func(o *timestreamwrite.Options) {
		if cfg.WriteEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.WriteEndpoint)
		}
	})
}
