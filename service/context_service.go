package service

import (
	"fmt"
	"strings"

	"github.com/tieubaoca/invoice-qa/types"
)

const (
	// DefaultContextInvoices caps how many invoices one answer may draw on.
	DefaultContextInvoices = 3

	// DefaultContextChars caps the serialized length of the grounding
	// context.
	DefaultContextChars = 2000

	contentExcerptChars = 300
	contextSeparator    = "\n\n"
)

// ContextAssembler folds ranked candidates into the grounding context the
// generator sees. Assembly is greedy in rank order and deterministic: the
// same candidates always produce byte-identical context text.
type ContextAssembler struct {
	maxInvoices int
	charBudget  int
}

func NewContextAssembler(maxInvoices, charBudget int) *ContextAssembler {
	if maxInvoices <= 0 {
		maxInvoices = DefaultContextInvoices
	}
	if charBudget <= 0 {
		charBudget = DefaultContextChars
	}
	return &ContextAssembler{maxInvoices: maxInvoices, charBudget: charBudget}
}

// Assemble takes candidates best-first and packs whole invoice blocks until
// the next block would blow the character budget. Blocks are never
// truncated mid-field; a candidate either fits entirely or assembly stops.
func (a *ContextAssembler) Assemble(candidates []types.RetrievalCandidate) types.GroundingContext {
	var (
		b        strings.Builder
		invoices []types.CanonicalInvoice
	)
	for i, c := range candidates {
		if len(invoices) == a.maxInvoices {
			break
		}
		block := renderInvoiceBlock(len(invoices)+1, c.Invoice)
		need := len(block)
		if b.Len() > 0 {
			need += len(contextSeparator)
		}
		if b.Len()+need > a.charBudget {
			break
		}
		if b.Len() > 0 {
			b.WriteString(contextSeparator)
		}
		b.WriteString(block)
		invoices = append(invoices, candidates[i].Invoice)
	}
	if len(invoices) == 0 {
		return types.GroundingContext{}
	}
	return types.GroundingContext{Text: b.String(), Invoices: invoices}
}

func renderInvoiceBlock(position int, inv types.CanonicalInvoice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Invoice %d:\n", position)
	fmt.Fprintf(&b, "- ID: %s\n", orNA(&inv.InvoiceID))
	fmt.Fprintf(&b, "- Vendor: %s\n", orNA(inv.Vendor))
	fmt.Fprintf(&b, "- Date: %s\n", orNA(inv.InvoiceDate))
	fmt.Fprintf(&b, "- Due Date: %s\n", orNA(inv.DueDate))
	if inv.Currency != nil {
		fmt.Fprintf(&b, "- Total: %s %.2f\n", *inv.Currency, inv.Total)
	} else {
		fmt.Fprintf(&b, "- Total: %.2f\n", inv.Total)
	}
	fmt.Fprintf(&b, "- Content: %s", excerpt(inv.Content, contentExcerptChars))
	return b.String()
}

func orNA(s *string) string {
	if s == nil || *s == "" {
		return "N/A"
	}
	return *s
}

func excerpt(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
