package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fainderql/queryengine/internal/engine"
	"github.com/fainderql/queryengine/internal/percentile"
)

type queryOptions struct {
	mode               string
	enableHighlighting bool
	enableFiltering    bool
	enableMerge        bool
	jsonOutput         bool
}

func newQueryCmd() *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query <query text>",
		Short: "Evaluate one query against the on-disk generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.mode, "mode", "full_precision", "percentile mode: low_memory, full_precision, full_recall, exact")
	cmd.Flags().BoolVar(&opts.enableHighlighting, "highlight", false, "compute highlight snippets")
	cmd.Flags().BoolVar(&opts.enableFiltering, "filter", true, "propagate AND-right prefilters between terms")
	cmd.Flags().BoolVar(&opts.enableMerge, "merge", false, "union overlapping highlight spans instead of keeping the left side")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "output as JSON")

	return cmd
}

func parseMode(s string) (percentile.Mode, error) {
	switch s {
	case "low_memory":
		return percentile.LowMemory, nil
	case "full_precision":
		return percentile.FullPrecision, nil
	case "full_recall":
		return percentile.FullRecall, nil
	case "exact":
		return percentile.Exact, nil
	default:
		return 0, fmt.Errorf("unknown percentile mode %q", s)
	}
}

type queryResult struct {
	Docs       []engine.Ranked              `json:"docs"`
	Highlights map[string]map[string]string `json:"highlights,omitempty"`
}

func runQuery(cmd *cobra.Command, queryText string, opts queryOptions) error {
	mode, err := parseMode(opts.mode)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, err := openEngine(cfg)
	if err != nil {
		return fmt.Errorf("load index generation: %w", err)
	}
	defer eng.Close()

	ranked, hl, err := eng.Execute(cmd.Context(), queryText, engine.ExecuteOptions{
		Mode:               mode,
		EnableHighlighting: opts.enableHighlighting,
		EnableFiltering:    opts.enableFiltering,
		EnableMerge:        opts.enableMerge,
	})
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		docHi := make(map[string]map[string]string, len(hl.Doc))
		for d, fields := range hl.Doc {
			docHi[fmt.Sprintf("%d", d)] = fields
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(queryResult{Docs: ranked, Highlights: docHi})
	}

	for _, r := range ranked {
		fmt.Fprintf(cmd.OutOrStdout(), "%d\t%g\n", r.Doc, r.Score)
	}
	return nil
}
