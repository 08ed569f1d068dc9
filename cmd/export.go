package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/netmerge/internal/model"
)

var runsExportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a run and its merge records to an XLSX workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = "run-" + truncateID(args[0]) + ".xlsx"
		}

		st, err := requireStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs export")
		}
		records, err := st.ListMergeRecords(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "runs export")
		}
		if err := writeRunWorkbook(out, run, records); err != nil {
			return err
		}
		cmd.Printf("Wrote %d merge records to %s\n", len(records), out)
		return nil
	},
}

func init() {
	runsExportCmd.Flags().String("out", "", "workbook path (default run-<id>.xlsx)")
	runsCmd.AddCommand(runsExportCmd)
}

// writeRunWorkbook saves a two sheet workbook: the run summary as
// key/value rows and one row per merge record.
func writeRunWorkbook(path string, run *model.Run, records []model.MergeRecord) error {
	f := xlsx.NewFile()

	summary, err := f.AddSheet("Run")
	if err != nil {
		return eris.Wrap(err, "xlsx: add run sheet")
	}
	pairs := [][2]string{
		{"id", run.ID},
		{"status", string(run.Status)},
		{"network_a", run.Input.NetworkA.ID},
		{"network_b", run.Input.NetworkB.ID},
		{"merge_threshold", formatFloat(run.Input.Settings.MergeThreshold)},
		{"ask_threshold", formatFloat(run.Input.Settings.AskThreshold)},
		{"match_radius_km", formatFloat(run.Input.Settings.MatchRadiusKM)},
		{"created_at", run.CreatedAt.UTC().Format(time.RFC3339)},
		{"updated_at", run.UpdatedAt.UTC().Format(time.RFC3339)},
	}
	if run.Result != nil {
		pairs = append(pairs,
			[2]string{"output", run.Result.Output.ID},
			[2]string{"output_nodes", strconv.Itoa(run.Result.OutputNodes)},
			[2]string{"output_spans", strconv.Itoa(run.Result.OutputSpans)},
			[2]string{"merged_nodes", strconv.Itoa(run.Result.Nodes.Merged)},
			[2]string{"merged_spans", strconv.Itoa(run.Result.Spans.Merged)},
		)
	}
	if run.Error != "" {
		pairs = append(pairs, [2]string{"error", run.Error})
	}
	for _, p := range pairs {
		row := summary.AddRow()
		row.AddCell().SetString(p[0])
		row.AddCell().SetString(p[1])
	}

	sheet, err := f.AddSheet("Records")
	if err != nil {
		return eris.Wrap(err, "xlsx: add records sheet")
	}
	header := sheet.AddRow()
	for _, h := range []string{"kind", "merged_id", "primary_id", "secondary_id", "sources", "confidence", "similar_fields", "manual", "generated_at"} {
		header.AddCell().SetString(h)
	}
	for _, rec := range records {
		row := sheet.AddRow()
		row.AddCell().SetString(string(rec.Kind))
		row.AddCell().SetString(rec.MergedID)
		row.AddCell().SetString(rec.PrimaryID)
		row.AddCell().SetString(rec.SecondaryID)
		row.AddCell().SetString(strings.Join(rec.Sources, ","))
		row.AddCell().SetFloat(rec.Confidence)
		row.AddCell().SetString(strings.Join(rec.SimilarFields, ","))
		row.AddCell().SetString(strconv.FormatBool(rec.Manual))
		row.AddCell().SetString(rec.GeneratedAt.UTC().Format(time.RFC3339))
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
