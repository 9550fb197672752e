/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

// resetCmd represents the reset command
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Destructively recreate the invoice index",
	Long: `Drop and recreate the configured index. All indexed invoices are
lost; rebuild them with reindex from a JSONL artifact or with a fresh
ingest run. This is the only way out of a schema conflict.`,
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			fmt.Println("reset drops every indexed invoice; re-run with --force to confirm")
			os.Exit(1)
		}

		cfg := mustLoadConfig()
		slogger := newLogger(cfg)
		store := mustOpenStore(cfg, slogger)

		if err := store.Reset(cmd.Context()); err != nil {
			log.Fatalf("Reset failed: %v", err)
		}
		fmt.Printf("Index %s reset on %s backend\n", cfg.Store.IndexName, store.Name())
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().BoolP("force", "f", false, "confirm the destructive reset")
}
