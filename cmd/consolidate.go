package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/netmerge/internal/consolidate"
	"github.com/sells-group/netmerge/internal/geojson"
	"github.com/sells-group/netmerge/internal/model"
	"github.com/sells-group/netmerge/internal/network"
	"github.com/sells-group/netmerge/internal/review"
	"github.com/sells-group/netmerge/internal/store"
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Merge two networks, asking about uncertain matches",
	Long: "Compares the nodes and then the spans of network A and network B. Pairs above the merge threshold are merged " +
		"automatically; pairs between the ask and merge thresholds are reviewed interactively, or answered with --assume.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		aNodes, _ := cmd.Flags().GetString("a-nodes")
		aSpans, _ := cmd.Flags().GetString("a-spans")
		bNodes, _ := cmd.Flags().GetString("b-nodes")
		bSpans, _ := cmd.Flags().GetString("b-spans")
		outNodes, _ := cmd.Flags().GetString("out-nodes")
		outSpans, _ := cmd.Flags().GetString("out-spans")
		assume, _ := cmd.Flags().GetString("assume")
		reportPath, _ := cmd.Flags().GetString("report")
		outID, _ := cmd.Flags().GetString("output-id")
		outName, _ := cmd.Flags().GetString("output-name")

		rev, err := newReviewer(assume, cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return err
		}

		a, err := loadNetwork(aNodes, aSpans)
		if err != nil {
			return eris.Wrap(err, "consolidate: network A")
		}
		b, err := loadNetwork(bNodes, bSpans)
		if err != nil {
			return eris.Wrap(err, "consolidate: network B")
		}

		opts, err := sessionOptions(cfg)
		if err != nil {
			return err
		}
		if outID != "" || outName != "" {
			desc := network.Description{ID: outID, Name: outName}
			if desc.ID == "" {
				desc.ID = desc.Name
			}
			if desc.Name == "" {
				desc.Name = desc.ID
			}
			opts = append(opts, review.WithConsolidateOptions(consolidate.WithDescription(desc)))
		}

		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		report, out, err := runConsolidation(ctx, consolidation{
			a:        a,
			b:        b,
			opts:     opts,
			store:    st,
			settings: runSettings(cfg.Consolidation),
			reviewer: rev,
		})
		if err != nil {
			return err
		}

		if err := geojson.WriteFiles(outNodes, outSpans, out); err != nil {
			return err
		}
		if reportPath != "" {
			if err := writeReport(reportPath, report); err != nil {
				return err
			}
		}

		fmt.Fprintln(cmd.OutOrStdout(), report.Summary()) //nolint:errcheck
		return nil
	},
}

func init() {
	f := consolidateCmd.Flags()
	f.String("a-nodes", "", "node layer of network A (GeoJSON or .shp)")
	f.String("a-spans", "", "span layer of network A (optional)")
	f.String("b-nodes", "", "node layer of network B (GeoJSON or .shp)")
	f.String("b-spans", "", "span layer of network B (optional)")
	f.String("out-nodes", "consolidated-nodes.geojson", "output node FeatureCollection")
	f.String("out-spans", "consolidated-spans.geojson", "output span FeatureCollection")
	f.String("assume", "", "answer every review question without prompting (yes consolidates, no rejects)")
	f.String("report", "", "write a YAML run report to this path")
	f.String("output-id", "", "identifier of the consolidated network (default A+B)")
	f.String("output-name", "", "name of the consolidated network")
	_ = consolidateCmd.MarkFlagRequired("a-nodes")
	_ = consolidateCmd.MarkFlagRequired("b-nodes")

	rootCmd.AddCommand(consolidateCmd)
}

// consolidation is one run of the consolidate command.
type consolidation struct {
	a, b     *network.Network
	opts     []review.Option
	store    store.Store
	settings model.RunSettings
	reviewer reviewer
}

// runReport is the YAML report of a finished run.
type runReport struct {
	RunID   string                `yaml:"run_id,omitempty"`
	Input   model.RunInput        `yaml:"input"`
	Result  model.RunResult       `yaml:"result"`
	Reasons []*consolidate.Reason `yaml:"reasons"`
}

// Summary is the one-line outcome printed after a run.
func (r *runReport) Summary() string {
	s := fmt.Sprintf("%s: %d nodes, %d spans (%d nodes merged, %d spans merged)",
		r.Result.Output.Name, r.Result.OutputNodes, r.Result.OutputSpans, r.Result.Nodes.Merged, r.Result.Spans.Merged)
	if r.RunID != "" {
		s = "run " + r.RunID + " " + s
	}
	return s
}

// runConsolidation reviews the two networks to completion and records
// the run when a store is configured. A failed review marks the run
// failed.
func runConsolidation(ctx context.Context, c consolidation) (*runReport, *network.Network, error) {
	input := model.RunInput{NetworkA: c.a.Description, NetworkB: c.b.Description, Settings: c.settings}

	var runID string
	if c.store != nil {
		run, err := c.store.CreateRun(ctx, input)
		if err != nil {
			return nil, nil, err
		}
		runID = run.ID
	}
	log := zap.L().With(zap.String("run_id", runID))

	s := review.NewSession(c.opts...)
	out, err := reviewNetworks(ctx, s, c)
	if err != nil {
		if c.store != nil {
			if ferr := c.store.FailRun(context.WithoutCancel(ctx), runID, err.Error()); ferr != nil {
				log.Warn("record failed run", zap.Error(ferr))
			}
		}
		return nil, nil, err
	}

	nodes, spans := s.Stats()
	report := &runReport{
		RunID: runID,
		Input: input,
		Result: model.RunResult{
			Output:      out.Description,
			Nodes:       nodes,
			Spans:       spans,
			OutputNodes: len(out.Nodes()),
			OutputSpans: len(out.Spans()),
		},
		Reasons: s.Reasons(),
	}
	if c.store != nil {
		if _, err := store.RecordOutput(ctx, c.store, runID, out, nodes, spans); err != nil {
			return nil, nil, err
		}
	}
	log.Info("consolidation complete",
		zap.Int("nodes", report.Result.OutputNodes),
		zap.Int("spans", report.Result.OutputSpans),
	)
	return report, out, nil
}

func reviewNetworks(ctx context.Context, s *review.Session, c consolidation) (*network.Network, error) {
	if err := s.SelectNetworks(ctx, c.a, c.b); err != nil {
		return nil, err
	}
	if err := c.reviewer.Review(ctx, s); err != nil {
		return nil, err
	}
	return s.Output()
}

func writeReport(path string, report *runReport) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "consolidate: encode report")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "consolidate: create directory for %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "consolidate: write report %s", path)
	}
	return nil
}
