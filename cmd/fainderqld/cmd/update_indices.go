package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fainderql/queryengine/internal/persist"
)

func newUpdateIndicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update-indices",
		Short: "Swap in the percentile/column/fulltext artifacts currently on disk",
		Long: `update-indices opens an Engine against the generation currently on
disk, then atomically swaps in whatever percentile histograms, column
index and id-space metadata are found at those same paths and recreates
the full-text backend's index, clearing the result cache. Run this after
a new generation's artifacts (and metadata.json) have been written in
place, e.g. by an external ingestion pipeline.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			eng, err := openEngine(cfg)
			if err != nil {
				return fmt.Errorf("load current generation: %w", err)
			}
			defer eng.Close()

			maps, err := persist.LoadMetadata(cfg.MetadataPath())
			if err != nil {
				return fmt.Errorf("load next generation's metadata: %w", err)
			}

			if err := eng.UpdateIndices(cmd.Context(), &cfg, maps); err != nil {
				return fmt.Errorf("update indices: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "indices updated")
			return nil
		},
	}
	return cmd
}
