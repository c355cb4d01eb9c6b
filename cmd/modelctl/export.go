package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"bnpl-risk/internal/common"
	"bnpl-risk/internal/storage"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func init() {
	exportCmd.Flags().String("ledger", common.DefaultDataPath, "Data directory holding the decision ledger")
	exportCmd.Flags().StringP("output", "o", "", "Newline-delimited JSON output file")
	exportCmd.Flags().Int("days", 30, "Export the last N days (0 for all)")
	_ = exportCmd.MarkFlagRequired("output")

	rootCmd.AddCommand(exportCmd)
}

// exportCmd dumps recorded feature vectors joined with their decisions as
// training input. The service holds the ledger lock while running, so
// export against a stopped service or a copy of the data directory.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recorded feature vectors and decisions for retraining",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("ledger")
		output, _ := cmd.Flags().GetString("output")
		days, _ := cmd.Flags().GetInt("days")

		store, err := storage.New(dir)
		if err != nil {
			return fmt.Errorf("open ledger %s: %w", dir, err)
		}
		defer store.Close()

		var since time.Time
		if days > 0 {
			since = time.Now().UTC().AddDate(0, 0, -days)
		}
		examples, err := store.TrainingExamples(since, time.Time{})
		if err != nil {
			return err
		}
		if len(examples) == 0 {
			log.Warn().Str("ledger", dir).Msg("No recorded feature vectors; is RECORD_FEATURES on?")
		}

		f, err := os.Create(output)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(f)
		for _, ex := range examples {
			if err := enc.Encode(ex); err != nil {
				f.Close()
				return err
			}
		}
		if err := f.Close(); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "exported %d examples to %s\n", len(examples), output)
		if len(examples) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "time range: %s to %s\n",
				examples[0].Timestamp.Format(time.RFC3339), examples[len(examples)-1].Timestamp.Format(time.RFC3339))
		}
		return nil
	},
}
