package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tieubaoca/invoice-qa/logger"
	"github.com/tieubaoca/invoice-qa/types"
)

func strPtr(s string) *string   { return &s }
func numPtr(v float64) *float64 { return &v }

func testInvoice(id, vendor, date string, total float64) types.CanonicalInvoice {
	return types.CanonicalInvoice{
		InvoiceID:   id,
		Vendor:      strPtr(vendor),
		InvoiceDate: strPtr(date),
		Currency:    strPtr("EUR"),
		Total:       total,
		Content:     "Invoice " + id + " from " + vendor + " dated " + date + ".",
		SourceFile:  id + ".pdf",
	}
}

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	return NewMemoryStore("invoices", logger.Discard())
}

func TestMemoryStoreSearch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	report, err := store.Upsert(ctx, []types.CanonicalInvoice{
		testInvoice("INV-2025-0001", "Contoso Retail", "2025-09-21", 12027.4),
		testInvoice("INV-2025-0002", "Fabrikam Ltd", "2025-08-02", 310.0),
	})
	require.NoError(t, err)
	require.True(t, report.Ok())
	require.Len(t, report.Succeeded, 2)

	candidates, err := store.Search(ctx, "contoso retail", 10, types.SearchFilters{})
	require.NoError(t, err)
	require.NotEmpty(t, candidates)
	require.Equal(t, "INV-2025-0001", candidates[0].Invoice.InvoiceID)
	require.Greater(t, candidates[0].Score, 0.0)
	require.Contains(t, candidates[0].MatchedTerms, "contoso")

	// No match is a valid empty result, not an error.
	candidates, err = store.Search(ctx, "zebra warehouse", 10, types.SearchFilters{})
	require.NoError(t, err)
	require.Empty(t, candidates)
}

func TestMemoryStoreUpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first := testInvoice("INV-2025-0001", "Contoso Retail", "2025-09-21", 100.0)
	_, err := store.Upsert(ctx, []types.CanonicalInvoice{first})
	require.NoError(t, err)

	second := testInvoice("INV-2025-0001", "Contoso Retail", "2025-09-21", 250.0)
	_, err = store.Upsert(ctx, []types.CanonicalInvoice{second})
	require.NoError(t, err)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	// Only the second write is visible anywhere.
	candidates, err := store.Search(ctx, "contoso", 10, types.SearchFilters{})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, 250.0, candidates[0].Invoice.Total)

	got, err := store.GetByID(ctx, "INV-2025-0001")
	require.NoError(t, err)
	require.Equal(t, 250.0, got.Total)
}

func TestMemoryStoreUpsertReportsBadRecords(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	report, err := store.Upsert(ctx, []types.CanonicalInvoice{
		{Content: "no id here", Total: 10},
		testInvoice("INV-2025-0003", "Contoso Retail", "2025-07-01", 42.0),
	})
	require.NoError(t, err)
	require.False(t, report.Ok())
	require.Len(t, report.Failed, 1)
	require.Equal(t, "missing invoice_id", report.Failed[0].Reason)
	// The bad record never aborts the batch.
	require.Equal(t, []string{"INV-2025-0003"}, report.Succeeded)
}

func TestMemoryStoreTieBreak(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	a := testInvoice("INV-2025-0002", "Acme Corp", "2025-01-01", 500.0)
	b := testInvoice("INV-2025-0001", "Acme Corp", "2025-01-01", 500.0)
	a.Content = "Invoice from Acme Corp for office supplies."
	b.Content = "Invoice from Acme Corp for office supplies."
	_, err := store.Upsert(ctx, []types.CanonicalInvoice{a, b})
	require.NoError(t, err)

	// Identical content and identical totals: ascending id decides.
	candidates, err := store.Search(ctx, "office supplies", 10, types.SearchFilters{})
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	require.Equal(t, "INV-2025-0001", candidates[0].Invoice.InvoiceID)
	require.Equal(t, "INV-2025-0002", candidates[1].Invoice.InvoiceID)
}

func TestMemoryStoreFilters(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Upsert(ctx, []types.CanonicalInvoice{
		testInvoice("INV-2025-0001", "Contoso Retail", "2025-09-21", 12027.4),
		testInvoice("INV-2025-0002", "Contoso Retail", "2025-08-02", 310.0),
		testInvoice("INV-2025-0003", "Fabrikam Ltd", "2025-09-05", 99.0),
	})
	require.NoError(t, err)

	// September only.
	candidates, err := store.Search(ctx, "invoice", 10, types.SearchFilters{
		DateFrom: "2025-09-01",
		DateTo:   "2025-09-30",
	})
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	for _, c := range candidates {
		require.True(t, *c.Invoice.InvoiceDate >= "2025-09-01")
	}

	// Vendor filter is case-insensitive.
	candidates, err = store.Search(ctx, "invoice", 10, types.SearchFilters{Vendor: "contoso retail"})
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	// Amount range.
	candidates, err = store.Search(ctx, "invoice", 10, types.SearchFilters{MinTotal: numPtr(300), MaxTotal: numPtr(400)})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, "INV-2025-0002", candidates[0].Invoice.InvoiceID)
}

func TestMemoryStoreTopKLimit(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	var batch []types.CanonicalInvoice
	for _, id := range []string{"INV-2025-0001", "INV-2025-0002", "INV-2025-0003", "INV-2025-0004"} {
		batch = append(batch, testInvoice(id, "Contoso Retail", "2025-09-21", 100))
	}
	_, err := store.Upsert(ctx, batch)
	require.NoError(t, err)

	candidates, err := store.Search(ctx, "contoso", 2, types.SearchFilters{})
	require.NoError(t, err)
	require.Len(t, candidates, 2)
}

func TestMemoryStoreGetByIDNotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.GetByID(ctx, "INV-2025-0009")
	require.ErrorIs(t, err, types.ErrInvoiceNotFound)
}

func TestMemoryStoreReset(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Upsert(ctx, []types.CanonicalInvoice{testInvoice("INV-2025-0001", "Contoso Retail", "2025-09-21", 10)})
	require.NoError(t, err)
	require.NoError(t, store.Reset(ctx))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, count)

	candidates, err := store.Search(ctx, "contoso", 10, types.SearchFilters{})
	require.NoError(t, err)
	require.Empty(t, candidates)
}
