/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Extract, normalize, and index invoice documents",
	Long: `Walk a directory of invoice documents, extract their fields, normalize
them into canonical records, and upsert them into the configured index.

Every run writes the normalized records to a JSONL artifact so the index
can be rebuilt later with the reindex command. Documents that fail
extraction or normalization are skipped and reported without stopping
the batch.`,
	Run: func(cmd *cobra.Command, args []string) {
		dir, _ := cmd.Flags().GetString("dir")
		artifact, _ := cmd.Flags().GetString("artifact")
		limit, _ := cmd.Flags().GetInt("limit")

		cfg := mustLoadConfig()
		if artifact != "" {
			cfg.Pipeline.ArtifactPath = artifact
		}
		if cmd.Flags().Changed("limit") {
			cfg.Pipeline.BatchLimit = limit
		}
		slogger := newLogger(cfg)
		store := mustOpenStore(cfg, slogger)
		ingest := mustBuildIngestService(cfg, store, slogger)

		report, err := ingest.Ingest(cmd.Context(), dir)
		if err != nil {
			log.Fatalf("Ingest failed: %v", err)
		}

		fmt.Printf("Processed %d documents: %d indexed, %d skipped\n",
			report.Processed, report.Indexed, len(report.Skipped))
		for _, skip := range report.Skipped {
			fmt.Printf("  skipped %s: %s\n", skip.SourceFile, skip.Reason)
		}
		if report.Upsert != nil {
			for _, fail := range report.Upsert.Failed {
				fmt.Printf("  rejected %s: %s\n", fail.InvoiceID, fail.Reason)
			}
		}
		if report.Artifact != "" {
			fmt.Printf("Artifact written to %s\n", report.Artifact)
		}
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringP("dir", "d", "invoices", "directory of invoice documents")
	ingestCmd.Flags().StringP("artifact", "a", "", "override the JSONL artifact path")
	ingestCmd.Flags().IntP("limit", "l", 0, "max documents this run, 0 means all")
}
