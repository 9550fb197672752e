package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tieubaoca/invoice-qa/types"
)

func stringPtr(s string) *string { return &s }

func candidate(inv types.CanonicalInvoice, score float64) types.RetrievalCandidate {
	return types.RetrievalCandidate{Invoice: inv, Score: score}
}

func contosoInvoice() types.CanonicalInvoice {
	return types.CanonicalInvoice{
		InvoiceID:   "INV-2025-0001",
		Vendor:      stringPtr("Contoso Retail"),
		InvoiceDate: stringPtr("2025-09-21"),
		DueDate:     stringPtr("2025-10-21"),
		Currency:    stringPtr("EUR"),
		Total:       12027.4,
		Content:     "Invoice INV-2025-0001 from Contoso Retail dated 2025-09-21. Total: EUR 12027.40",
	}
}

func TestAssembleBlockFormat(t *testing.T) {
	a := NewContextAssembler(0, 0)

	gctx := a.Assemble([]types.RetrievalCandidate{candidate(contosoInvoice(), 1.2)})
	require.False(t, gctx.Empty())
	require.Len(t, gctx.Invoices, 1)

	want := "Invoice 1:\n" +
		"- ID: INV-2025-0001\n" +
		"- Vendor: Contoso Retail\n" +
		"- Date: 2025-09-21\n" +
		"- Due Date: 2025-10-21\n" +
		"- Total: EUR 12027.40\n" +
		"- Content: Invoice INV-2025-0001 from Contoso Retail dated 2025-09-21. Total: EUR 12027.40"
	require.Equal(t, want, gctx.Text)
}

func TestAssembleMissingFieldsShowNA(t *testing.T) {
	a := NewContextAssembler(0, 0)

	inv := types.CanonicalInvoice{
		InvoiceID: "INV-2025-0002",
		Total:     99.5,
		Content:   "Invoice INV-2025-0002 from unknown vendor dated unknown date. Total: 99.50",
	}
	gctx := a.Assemble([]types.RetrievalCandidate{candidate(inv, 0.4)})

	require.Contains(t, gctx.Text, "- Vendor: N/A\n")
	require.Contains(t, gctx.Text, "- Date: N/A\n")
	require.Contains(t, gctx.Text, "- Due Date: N/A\n")
	require.Contains(t, gctx.Text, "- Total: 99.50\n")
}

func TestAssembleCapsInvoiceCount(t *testing.T) {
	a := NewContextAssembler(3, 100000)

	candidates := make([]types.RetrievalCandidate, 0, 5)
	ids := []string{"INV-2025-0001", "INV-2025-0002", "INV-2025-0003", "INV-2025-0004", "INV-2025-0005"}
	for i, id := range ids {
		inv := contosoInvoice()
		inv.InvoiceID = id
		candidates = append(candidates, candidate(inv, float64(10-i)))
	}

	gctx := a.Assemble(candidates)
	require.Len(t, gctx.Invoices, 3)
	require.Equal(t, "INV-2025-0001", gctx.Invoices[0].InvoiceID)
	require.Equal(t, "INV-2025-0003", gctx.Invoices[2].InvoiceID)
	require.False(t, gctx.Contains("INV-2025-0004"))
}

func TestAssembleStopsAtCharBudget(t *testing.T) {
	first := contosoInvoice()
	block := renderInvoiceBlock(1, first)

	// The first block fits exactly; the second would overflow, and a block
	// is never split to squeeze it in.
	a := NewContextAssembler(3, len(block))

	second := contosoInvoice()
	second.InvoiceID = "INV-2025-0002"
	third := contosoInvoice()
	third.InvoiceID = "INV-2025-0003"

	gctx := a.Assemble([]types.RetrievalCandidate{
		candidate(first, 3),
		candidate(second, 2),
		candidate(third, 1),
	})

	require.Len(t, gctx.Invoices, 1)
	require.Equal(t, "INV-2025-0001", gctx.Invoices[0].InvoiceID)
	require.Equal(t, block, gctx.Text)
}

func TestAssembleSkipsNothingWithinBudget(t *testing.T) {
	a := NewContextAssembler(3, DefaultContextChars)

	first := contosoInvoice()
	second := contosoInvoice()
	second.InvoiceID = "INV-2025-0002"

	gctx := a.Assemble([]types.RetrievalCandidate{candidate(first, 2), candidate(second, 1)})
	require.Len(t, gctx.Invoices, 2)
	require.Equal(t, 1, strings.Count(gctx.Text, "\n\n"))
	require.Contains(t, gctx.Text, "Invoice 2:\n- ID: INV-2025-0002")
}

func TestAssembleDeterministic(t *testing.T) {
	a := NewContextAssembler(0, 0)
	candidates := []types.RetrievalCandidate{
		candidate(contosoInvoice(), 2),
	}
	second := contosoInvoice()
	second.InvoiceID = "INV-2025-0002"
	candidates = append(candidates, candidate(second, 1))

	require.Equal(t, a.Assemble(candidates).Text, a.Assemble(candidates).Text)
}

func TestAssembleTrimsLongContent(t *testing.T) {
	a := NewContextAssembler(0, 0)

	inv := contosoInvoice()
	inv.Content = strings.Repeat("x", 450)
	gctx := a.Assemble([]types.RetrievalCandidate{candidate(inv, 1)})

	require.Contains(t, gctx.Text, "- Content: "+strings.Repeat("x", 300))
	require.NotContains(t, gctx.Text, strings.Repeat("x", 301))
}

func TestAssembleEmptyCandidates(t *testing.T) {
	a := NewContextAssembler(0, 0)
	require.True(t, a.Assemble(nil).Empty())
	require.True(t, a.Assemble([]types.RetrievalCandidate{}).Empty())
}
