package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tieubaoca/invoice-qa/database"
	"github.com/tieubaoca/invoice-qa/logger"
	"github.com/tieubaoca/invoice-qa/types"
)

func seedStore(t *testing.T, invoices ...types.CanonicalInvoice) *database.MemoryStore {
	t.Helper()
	store := database.NewMemoryStore("invoices-test", logger.Discard())
	report, err := store.Upsert(context.Background(), invoices)
	require.NoError(t, err)
	require.True(t, report.Ok())
	return store
}

func storedInvoice(id, vendor, date string, total float64) types.CanonicalInvoice {
	return types.CanonicalInvoice{
		InvoiceID:   id,
		Vendor:      stringPtr(vendor),
		InvoiceDate: stringPtr(date),
		Currency:    stringPtr("USD"),
		Total:       total,
		Content:     fmt.Sprintf("Invoice %s from %s dated %s. Total: USD %.2f", id, vendor, date, total),
	}
}

func TestSearchClampsTopK(t *testing.T) {
	invoices := make([]types.CanonicalInvoice, 0, 12)
	for i := 1; i <= 12; i++ {
		invoices = append(invoices, storedInvoice(
			fmt.Sprintf("INV-2025-%04d", i), "Northwind Traders", "2025-05-10", float64(i*100)))
	}
	r := NewRetriever(seedStore(t, invoices...), logger.Discard())

	got, err := r.Search(context.Background(), "northwind traders", 50, types.SearchFilters{})
	require.NoError(t, err)
	require.Len(t, got, 10)

	got, err = r.Search(context.Background(), "northwind traders", -3, types.SearchFilters{})
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = r.Search(context.Background(), "northwind traders", 0, types.SearchFilters{})
	require.NoError(t, err)
	require.Len(t, got, DefaultTopK)
}

func TestSearchBoostsExactInvoiceID(t *testing.T) {
	glitter := storedInvoice("INV-2025-0001", "Glitter Supplies", "2025-03-05", 840)
	glitter.Content += " glitter supplies glitter supplies glitter"
	plain := storedInvoice("INV-2025-0007", "Plain Paper Co", "2025-03-09", 120)

	r := NewRetriever(seedStore(t, glitter, plain), logger.Discard())

	got, err := r.Search(context.Background(), "glitter supplies total for INV-2025-0007", 3, types.SearchFilters{})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	require.Equal(t, "INV-2025-0007", got[0].Invoice.InvoiceID)
	require.Contains(t, got[0].MatchedTerms, "inv-2025-0007")
}

// remoteStore mimics a backend that ranks without reporting term hits.
type remoteStore struct {
	*database.MemoryStore
}

func (s *remoteStore) Search(ctx context.Context, query string, topK int, f types.SearchFilters) ([]types.RetrievalCandidate, error) {
	candidates, err := s.MemoryStore.Search(ctx, query, topK, f)
	for i := range candidates {
		candidates[i].MatchedTerms = nil
	}
	return candidates, err
}

func TestSearchFillsMatchedTermsFromContent(t *testing.T) {
	store := &remoteStore{seedStore(t, storedInvoice("INV-2025-0001", "Contoso Retail", "2025-09-21", 12027.4))}
	r := NewRetriever(store, logger.Discard())

	got, err := r.Search(context.Background(), "what is the contoso retail total", 3, types.SearchFilters{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, []string{"contoso", "retail", "total"}, got[0].MatchedTerms)
}

func TestSearchBoostRespectsFilters(t *testing.T) {
	inv := storedInvoice("INV-2025-0007", "Plain Paper Co", "2025-03-09", 120)
	r := NewRetriever(seedStore(t, inv), logger.Discard())

	got, err := r.Search(context.Background(), "INV-2025-0007", 3, types.SearchFilters{Vendor: "Contoso Retail"})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSearchUnknownIDFallsBack(t *testing.T) {
	inv := storedInvoice("INV-2025-0001", "Contoso Retail", "2025-09-21", 12027.4)
	r := NewRetriever(seedStore(t, inv), logger.Discard())

	// The named invoice does not exist; lexical matches still come back.
	got, err := r.Search(context.Background(), "contoso retail INV-2024-9999", 3, types.SearchFilters{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "INV-2025-0001", got[0].Invoice.InvoiceID)
}

func TestPromoteExactMatchesKeepsLexicalScore(t *testing.T) {
	boosted := []types.RetrievalCandidate{{
		Invoice:      types.CanonicalInvoice{InvoiceID: "INV-2025-0002"},
		MatchedTerms: []string{"inv-2025-0002"},
	}}
	lexical := []types.RetrievalCandidate{
		{Invoice: types.CanonicalInvoice{InvoiceID: "INV-2025-0001"}, Score: 0.9},
		{Invoice: types.CanonicalInvoice{InvoiceID: "INV-2025-0002"}, Score: 0.4},
	}

	merged := promoteExactMatches(boosted, lexical)
	require.Len(t, merged, 2)
	require.Equal(t, "INV-2025-0002", merged[0].Invoice.InvoiceID)
	require.Equal(t, 0.4, merged[0].Score)
	require.Equal(t, "INV-2025-0001", merged[1].Invoice.InvoiceID)
}

func TestDeriveFiltersMonthYear(t *testing.T) {
	filters := DeriveFilters("Show me all invoices from September 2025")
	require.Equal(t, "2025-09-01", filters.DateFrom)
	require.Equal(t, "2025-09-31", filters.DateTo)

	filters = DeriveFilters("what did we spend in dEcEmBeR 2024?")
	require.Equal(t, "2024-12-01", filters.DateFrom)
	require.Equal(t, "2024-12-31", filters.DateTo)

	require.True(t, DeriveFilters("total of INV-2025-0001").Empty())
	require.True(t, DeriveFilters("invoices from May").Empty())
}

func TestDeriveFiltersAppliedToSearch(t *testing.T) {
	september := storedInvoice("INV-2025-0001", "Contoso Retail", "2025-09-21", 12027.4)
	march := storedInvoice("INV-2025-0002", "Contoso Retail", "2025-03-02", 300)
	r := NewRetriever(seedStore(t, september, march), logger.Discard())

	question := "Show invoices from September 2025"
	got, err := r.Search(context.Background(), question, 5, DeriveFilters(question))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "INV-2025-0001", got[0].Invoice.InvoiceID)
}

func TestClampTopK(t *testing.T) {
	require.Equal(t, DefaultTopK, clampTopK(0))
	require.Equal(t, 1, clampTopK(-5))
	require.Equal(t, 10, clampTopK(99))
	require.Equal(t, 7, clampTopK(7))
}
