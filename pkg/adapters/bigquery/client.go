// Package bigquery adapts the BigQuery SDK to the narrow collaborator
// interfaces the pipeline services depend on.
package bigquery

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"time"

	bq "cloud.google.com/go/bigquery"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/psearch-ai/transform-engine/pkg/services"
)

// Client wraps a *bigquery.Client as a DryRunner and SampleFetcher.
type Client struct {
	bq     *bq.Client
	logger *zap.Logger
}

func NewClient(ctx context.Context, projectID string, logger *zap.Logger) (*Client, error) {
	if projectID == "" {
		return nil, errors.New("bigquery: project id is required")
	}
	client, err := bq.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}
	return &Client{bq: client, logger: logger.Named("bigquery")}, nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	return c.bq.Close()
}

// DryRun submits the SQL as a dry-run job. Query rejections come back as
// *services.InvalidQueryError; infrastructure failures are returned as-is.
func (c *Client) DryRun(ctx context.Context, sql string, timeout time.Duration) (*services.DryRunStats, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	q := c.bq.Query(sql)
	q.DryRun = true
	q.DisableQueryCache = true

	job, err := q.Run(ctx)
	if err != nil {
		if isQueryRejection(err) {
			c.logger.Debug("dry run rejected query", zap.Error(err))
			return nil, &services.InvalidQueryError{Message: err.Error()}
		}
		return nil, fmt.Errorf("dry run job: %w", err)
	}

	stats := &services.DryRunStats{
		JobID:    job.ID(),
		Location: job.Location(),
	}
	if st := job.LastStatus(); st != nil && st.Statistics != nil {
		stats.TotalBytesProcessed = st.Statistics.TotalBytesProcessed
	}
	c.logger.Debug("dry run succeeded",
		zap.String("job_id", stats.JobID),
		zap.Int64("total_bytes_processed", stats.TotalBytesProcessed))
	return stats, nil
}

// FetchSample reads up to limit rows from table. Values are converted to
// JSON-friendly types so they can be embedded in prompts.
func (c *Client) FetchSample(ctx context.Context, table string, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = 3
	}
	q := c.bq.Query(fmt.Sprintf("SELECT * FROM `%s` LIMIT %d", table, limit))

	it, err := q.Read(ctx)
	if err != nil {
		if isQueryRejection(err) {
			return nil, &services.InvalidQueryError{Message: err.Error()}
		}
		return nil, fmt.Errorf("read sample rows: %w", err)
	}

	var rows []map[string]any
	for {
		var row map[string]bq.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate sample rows: %w", err)
		}
		converted := make(map[string]any, len(row))
		for k, v := range row {
			converted[k] = convertValue(v)
		}
		rows = append(rows, converted)
	}
	c.logger.Debug("fetched sample rows",
		zap.String("table", table),
		zap.Int("rows", len(rows)))
	return rows, nil
}

// isQueryRejection distinguishes "your SQL is wrong" from "BigQuery is
// unhappy": 4xx responses are the caller's query, everything else is infra.
func isQueryRejection(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code >= 400 && gerr.Code < 500
	}
	return false
}

func convertValue(v bq.Value) any {
	switch t := v.(type) {
	case nil:
		return nil
	case []bq.Value:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = convertValue(e)
		}
		return out
	case map[string]bq.Value:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = convertValue(e)
		}
		return out
	case time.Time:
		return t.Format(time.RFC3339)
	case []byte:
		return base64.StdEncoding.EncodeToString(t)
	case *big.Rat:
		f, _ := t.Float64()
		return f
	case string, bool, int64, float64:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

var (
	_ services.DryRunner     = (*Client)(nil)
	_ services.SampleFetcher = (*Client)(nil)
)
