// Package store persists consolidation runs and the audit trail of every
// merged feature.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/netmerge/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status  model.RunStatus `json:"status,omitempty"`
	Network string          `json:"network,omitempty"` // matches either input network id
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for consolidation runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, input model.RunInput) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, result *model.RunResult) error
	FailRun(ctx context.Context, runID string, reason string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Merge audit trail
	SaveMergeRecords(ctx context.Context, runID string, records []model.MergeRecord) error
	ListMergeRecords(ctx context.Context, runID string) ([]model.MergeRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func limitOf(f RunFilter) int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}
