package store

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/netmerge/internal/consolidate"
	"github.com/sells-group/netmerge/internal/model"
	"github.com/sells-group/netmerge/internal/network"
)

// RecordOutput saves the merge records of a consolidated network and
// marks the run complete.
func RecordOutput(ctx context.Context, s Store, runID string, out *network.Network, nodes, spans consolidate.Stats) (*model.RunResult, error) {
	records, err := model.MergeRecords(runID, out)
	if err != nil {
		return nil, eris.Wrapf(err, "store: collect merge records of run %s", runID)
	}
	if err := s.SaveMergeRecords(ctx, runID, records); err != nil {
		return nil, err
	}

	result := &model.RunResult{
		Output:      out.Description,
		Nodes:       nodes,
		Spans:       spans,
		OutputNodes: len(out.Nodes()),
		OutputSpans: len(out.Spans()),
	}
	if err := s.CompleteRun(ctx, runID, result); err != nil {
		return nil, err
	}

	zap.L().Info("run recorded",
		zap.String("run_id", runID),
		zap.Int("merge_records", len(records)),
		zap.Int("output_nodes", result.OutputNodes),
		zap.Int("output_spans", result.OutputSpans),
	)
	return result, nil
}
