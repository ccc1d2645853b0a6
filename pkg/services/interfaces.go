// Package services implements the SQL transformation pipeline: initial
// generation, field analysis, semantic enhancement, dry-run validation, and
// the bounded fix loop.
package services

import (
	"context"
	"fmt"
	"time"
)

// DryRunStats summarizes a successful dry run.
type DryRunStats struct {
	TotalBytesProcessed int64
	JobID               string
	Location            string
}

// DryRunner validates SQL against the warehouse without executing it.
type DryRunner interface {
	DryRun(ctx context.Context, sql string, timeout time.Duration) (*DryRunStats, error)
}

// SampleFetcher retrieves a few example rows from a source table.
type SampleFetcher interface {
	FetchSample(ctx context.Context, table string, limit int) ([]map[string]any, error)
}

// InvalidQueryError means the warehouse rejected the SQL itself, as opposed
// to an infrastructure failure. Message carries the raw rejection text.
type InvalidQueryError struct {
	Message string
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid query: %s", e.Message)
}
