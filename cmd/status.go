/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the index backend and document count",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()
		slogger := newLogger(cfg)
		store := mustOpenStore(cfg, slogger)

		count, err := store.Count(cmd.Context())
		if err != nil {
			log.Fatalf("Index unavailable: %v", err)
		}

		fmt.Printf("Backend:   %s\n", store.Name())
		fmt.Printf("Index:     %s\n", cfg.Store.IndexName)
		fmt.Printf("Documents: %d\n", count)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
