package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/netmerge/internal/model"
	"github.com/sells-group/netmerge/internal/network"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_SaveMergeRecords_UnknownRun(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.SaveMergeRecords(context.Background(), "missing-run", []model.MergeRecord{
		{Kind: network.KindNode, MergedID: "1", PrimaryID: "a", SecondaryID: "b"},
	})
	assert.Error(t, err, "foreign key enforcement rejects records of unknown runs")
}

func TestSQLite_ListRuns_Offset(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := st.CreateRun(ctx, model.RunInput{NetworkA: network.Description{ID: id}, NetworkB: network.Description{ID: "z"}})
		require.NoError(t, err)
	}

	runs, err := st.ListRuns(ctx, RunFilter{Limit: 10, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSQLite_BadPath(t *testing.T) {
	_, err := NewSQLite(filepath.Join(t.TempDir(), "missing", "dir", "x.db"))
	assert.Error(t, err)
}
