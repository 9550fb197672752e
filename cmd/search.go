/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tieubaoca/invoice-qa/service"
	"github.com/tieubaoca/invoice-qa/types"
)

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed invoices without generating an answer",
	Long: `Run a lexical search over the indexed invoices and print the ranked
candidates. Useful for checking what the ask command would ground its
answer on.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		query := strings.Join(args, " ")
		topK, _ := cmd.Flags().GetInt("top-k")

		filters := types.SearchFilters{}
		filters.Vendor, _ = cmd.Flags().GetString("vendor")
		filters.Currency, _ = cmd.Flags().GetString("currency")
		filters.DateFrom, _ = cmd.Flags().GetString("date-from")
		filters.DateTo, _ = cmd.Flags().GetString("date-to")
		if cmd.Flags().Changed("min-total") {
			v, _ := cmd.Flags().GetFloat64("min-total")
			filters.MinTotal = &v
		}
		if cmd.Flags().Changed("max-total") {
			v, _ := cmd.Flags().GetFloat64("max-total")
			filters.MaxTotal = &v
		}

		cfg := mustLoadConfig()
		slogger := newLogger(cfg)
		store := mustOpenStore(cfg, slogger)
		retriever := service.NewRetriever(store, slogger)

		candidates, err := retriever.Search(cmd.Context(), query, topK, filters)
		if err != nil {
			log.Fatalf("Search failed: %v", err)
		}
		if len(candidates) == 0 {
			fmt.Println("No matching invoices.")
			return
		}

		for i, c := range candidates {
			fmt.Printf("%d. %s  score=%.3f\n", i+1, c.Invoice.InvoiceID, c.Score)
			fmt.Printf("   %s | %s | %s\n",
				orUnknown(c.Invoice.Vendor), orUnknown(c.Invoice.InvoiceDate), formatTotal(c.Invoice))
			if len(c.MatchedTerms) > 0 {
				fmt.Printf("   matched: %s\n", strings.Join(c.MatchedTerms, ", "))
			}
		}
	},
}

func orUnknown(s *string) string {
	if s == nil || *s == "" {
		return "unknown"
	}
	return *s
}

func formatTotal(inv types.CanonicalInvoice) string {
	if inv.Currency != nil && *inv.Currency != "" {
		return fmt.Sprintf("%s %.2f", *inv.Currency, inv.Total)
	}
	return fmt.Sprintf("%.2f", inv.Total)
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntP("top-k", "k", 0, "number of results, 0 means default")
	searchCmd.Flags().String("vendor", "", "filter by vendor name")
	searchCmd.Flags().String("currency", "", "filter by currency code")
	searchCmd.Flags().String("date-from", "", "filter by invoice date, inclusive (YYYY-MM-DD)")
	searchCmd.Flags().String("date-to", "", "filter by invoice date, inclusive (YYYY-MM-DD)")
	searchCmd.Flags().Float64("min-total", 0, "filter by minimum total")
	searchCmd.Flags().Float64("max-total", 0, "filter by maximum total")
}
