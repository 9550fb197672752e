/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"
)

// askCmd represents the ask command
var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask one question and print the grounded answer",
	Long: `Retrieve the invoices most relevant to the question, assemble them
into a bounded context, and generate an answer grounded in that context.
The citations list every invoice the answer relies on.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		question := strings.Join(args, " ")
		topK, _ := cmd.Flags().GetInt("top-k")

		cfg := mustLoadConfig()
		slogger := newLogger(cfg)
		store := mustOpenStore(cfg, slogger)
		_, answers := mustBuildAnswerService(cfg, store, slogger)

		answer, err := answers.Ask(cmd.Context(), question, topK)
		if err != nil {
			log.Fatalf("Ask failed: %v", err)
		}

		fmt.Println(answer.Text)
		if len(answer.Citations) > 0 {
			fmt.Println()
			fmt.Println("Sources:")
			for _, c := range answer.Citations {
				line := c.InvoiceID
				var details []string
				if c.Vendor != "" {
					details = append(details, c.Vendor)
				}
				if c.Date != "" {
					details = append(details, c.Date)
				}
				if c.Currency != "" {
					details = append(details, fmt.Sprintf("%s %.2f", c.Currency, c.Amount))
				} else {
					details = append(details, fmt.Sprintf("%.2f", c.Amount))
				}
				fmt.Printf("  %s (%s)\n", line, strings.Join(details, ", "))
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().IntP("top-k", "k", 0, "number of invoices to retrieve, 0 means default")
}
