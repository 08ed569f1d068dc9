package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/netmerge/internal/model"
	"github.com/sells-group/netmerge/internal/review"
	"github.com/sells-group/netmerge/internal/store"
)

type failingReviewer struct{}

func (failingReviewer) Review(context.Context, *review.Session) error {
	return eris.New("reviewer crashed")
}

func TestRunConsolidation_RecordsRun(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	a, b := testNetworks(t)

	report, out, err := runConsolidation(ctx, consolidation{
		a:        a,
		b:        b,
		store:    st,
		settings: model.RunSettings{MergeThreshold: 100, MatchRadiusKM: 10, SpatialPrune: true},
		reviewer: autoReviewer{consolidate: true},
	})
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Len(t, out.Nodes(), 3)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 3, report.Result.OutputNodes)
	assert.Equal(t, 1, report.Result.Nodes.Merged)
	require.Len(t, report.Reasons, 1)
	assert.Contains(t, report.Summary(), "run "+report.RunID)
	assert.Contains(t, report.Summary(), "3 nodes")

	run, err := st.GetRun(ctx, report.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, "a", run.Input.NetworkA.ID)
	assert.True(t, run.Input.Settings.SpatialPrune)
	require.NotNil(t, run.Result)
	assert.Equal(t, 3, run.Result.OutputNodes)

	records, err := st.ListMergeRecords(ctx, report.RunID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a1", records[0].PrimaryID)
	assert.Equal(t, "b1", records[0].SecondaryID)
	assert.True(t, records[0].Manual)
}

func TestRunConsolidation_NoStore(t *testing.T) {
	a, b := testNetworks(t)

	report, out, err := runConsolidation(context.Background(), consolidation{
		a:        a,
		b:        b,
		reviewer: autoReviewer{consolidate: false},
	})
	require.NoError(t, err)
	assert.Empty(t, report.RunID)
	assert.Len(t, out.Nodes(), 4)
	assert.NotContains(t, report.Summary(), "run ")
}

func TestRunConsolidation_FailedReviewMarksRun(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	a, b := testNetworks(t)

	_, _, err := runConsolidation(ctx, consolidation{
		a:        a,
		b:        b,
		store:    st,
		reviewer: failingReviewer{},
	})
	require.Error(t, err)

	runs, err := st.ListRuns(ctx, store.RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].Error, "reviewer crashed")
}

func TestWriteReport(t *testing.T) {
	a, b := testNetworks(t)
	report, _, err := runConsolidation(context.Background(), consolidation{
		a:        a,
		b:        b,
		reviewer: autoReviewer{consolidate: true},
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "reports", "run.yaml")
	require.NoError(t, writeReport(path, report))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "input")
	assert.Contains(t, decoded, "result")
	reasons, ok := decoded["reasons"].([]any)
	require.True(t, ok)
	assert.Len(t, reasons, 1)
	assert.NotContains(t, decoded, "run_id")
}
