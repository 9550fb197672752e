package types

import (
	"math"
	"regexp"
	"strings"
)

// InvoiceIDPattern matches well-formed invoice identifiers such as
// INV-2025-0001. Used to detect id lookups in queries and to scan
// generated answers for cited ids.
var InvoiceIDPattern = regexp.MustCompile(`(?i)INV-\d{4}-\d{4}`)

// CanonicalInvoice is the normalized invoice record shared by the index,
// the retriever and the answer pipeline. Optional fields are nil when the
// extraction service did not produce them; they are never defaulted.
type CanonicalInvoice struct {
	InvoiceID   string   `json:"invoice_id" bson:"invoice_id"`
	Vendor      *string  `json:"vendor" bson:"vendor"`
	InvoiceDate *string  `json:"invoice_date" bson:"invoice_date"`
	DueDate     *string  `json:"due_date" bson:"due_date"`
	Currency    *string  `json:"currency" bson:"currency"`
	Subtotal    *float64 `json:"subtotal" bson:"subtotal"`
	Tax         *float64 `json:"tax" bson:"tax"`
	Shipping    *float64 `json:"shipping" bson:"shipping"`
	Total       float64  `json:"total" bson:"total"`
	Content     string   `json:"content" bson:"content"`
	SourceFile  string   `json:"source_file" bson:"source_file"`
}

// AmountsReconcile reports whether subtotal+tax+shipping matches total
// within tol. Missing components count as zero; an invoice without a
// subtotal is not checked at all.
func (inv CanonicalInvoice) AmountsReconcile(tol float64) bool {
	if inv.Subtotal == nil {
		return true
	}
	sum := *inv.Subtotal
	if inv.Tax != nil {
		sum += *inv.Tax
	}
	if inv.Shipping != nil {
		sum += *inv.Shipping
	}
	return math.Abs(sum-inv.Total) <= tol
}

// ExtractInvoiceIDs returns the well-formed invoice ids found in s,
// uppercased and deduplicated, in order of first appearance. Ids are
// stored uppercase, so lowercase mentions still resolve.
func ExtractInvoiceIDs(s string) []string {
	matches := InvoiceIDPattern.FindAllString(s, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	ids := make([]string, 0, len(matches))
	for _, id := range matches {
		id = strings.ToUpper(id)
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}
