/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

// reindexCmd represents the reindex command
var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the index from a JSONL artifact",
	Long: `Replay the normalized records from a previous ingest run's JSONL
artifact into the configured index. No extraction happens, so this is
the cheap way to rebuild after changing index backends or settings.`,
	Run: func(cmd *cobra.Command, args []string) {
		artifact, _ := cmd.Flags().GetString("artifact")

		cfg := mustLoadConfig()
		if artifact == "" {
			artifact = cfg.Pipeline.ArtifactPath
		}
		slogger := newLogger(cfg)
		store := mustOpenStore(cfg, slogger)
		ingest := mustBuildIngestService(cfg, store, slogger)

		report, err := ingest.Reindex(cmd.Context(), artifact)
		if err != nil {
			log.Fatalf("Reindex failed: %v", err)
		}

		fmt.Printf("Reindexed %d records from %s\n", len(report.Succeeded), artifact)
		for _, fail := range report.Failed {
			fmt.Printf("  rejected %s: %s\n", fail.InvoiceID, fail.Reason)
		}
	},
}

func init() {
	rootCmd.AddCommand(reindexCmd)
	reindexCmd.Flags().StringP("artifact", "a", "", "JSONL artifact to replay (default from config)")
}
