package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that a network loads and every span references known nodes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		nodesPath, _ := cmd.Flags().GetString("nodes")
		spansPath, _ := cmd.Flags().GetString("spans")

		n, err := loadNetwork(nodesPath, spansPath)
		if err != nil {
			return err
		}
		if dangling := n.DanglingSpans(); len(dangling) > 0 {
			for _, id := range dangling {
				zap.L().Warn("span references unknown node", zap.String("span", id))
			}
			return eris.Errorf("validate: %d of %d spans reference unknown nodes: %v", len(dangling), len(n.Spans()), dangling)
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d nodes, %d spans, ok\n", n.Description.Name, len(n.Nodes()), len(n.Spans()))
		return nil
	},
}

func init() {
	validateCmd.Flags().String("nodes", "", "node layer (GeoJSON FeatureCollection or .shp)")
	validateCmd.Flags().String("spans", "", "span layer (optional)")
	_ = validateCmd.MarkFlagRequired("nodes")
	rootCmd.AddCommand(validateCmd)
}
