package store

import (
	"context"

	"github.com/sells-group/netmerge/internal/model"
	"github.com/sells-group/netmerge/internal/resilience"
)

// retryStore retries transient failures of idempotent operations.
// CreateRun is passed through: a lost acknowledgement would insert a
// second run.
type retryStore struct {
	Store
	driver string
	cfg    resilience.RetryConfig
}

// WithRetry wraps s so that reads, run completion and merge record
// writes are retried on transient errors.
func WithRetry(s Store, driver string, cfg resilience.RetryConfig) Store {
	return &retryStore{Store: s, driver: driver, cfg: cfg}
}

func (r *retryStore) config(op string) resilience.RetryConfig {
	cfg := r.cfg
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger(r.driver, op)
	}
	return cfg
}

func (r *retryStore) CompleteRun(ctx context.Context, runID string, result *model.RunResult) error {
	return resilience.Do(ctx, r.config("complete_run"), func(ctx context.Context) error {
		return r.Store.CompleteRun(ctx, runID, result)
	})
}

func (r *retryStore) FailRun(ctx context.Context, runID string, reason string) error {
	return resilience.Do(ctx, r.config("fail_run"), func(ctx context.Context) error {
		return r.Store.FailRun(ctx, runID, reason)
	})
}

func (r *retryStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	return resilience.DoVal(ctx, r.config("get_run"), func(ctx context.Context) (*model.Run, error) {
		return r.Store.GetRun(ctx, runID)
	})
}

func (r *retryStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	return resilience.DoVal(ctx, r.config("list_runs"), func(ctx context.Context) ([]model.Run, error) {
		return r.Store.ListRuns(ctx, filter)
	})
}

func (r *retryStore) SaveMergeRecords(ctx context.Context, runID string, records []model.MergeRecord) error {
	return resilience.Do(ctx, r.config("save_merge_records"), func(ctx context.Context) error {
		return r.Store.SaveMergeRecords(ctx, runID, records)
	})
}

func (r *retryStore) ListMergeRecords(ctx context.Context, runID string) ([]model.MergeRecord, error) {
	return resilience.DoVal(ctx, r.config("list_merge_records"), func(ctx context.Context) ([]model.MergeRecord, error) {
		return r.Store.ListMergeRecords(ctx, runID)
	})
}
