package service

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tieubaoca/invoice-qa/types"
)

const (
	// DefaultConfidenceThreshold is the minimum extraction confidence a
	// field needs before its value is trusted.
	DefaultConfidenceThreshold = 0.5

	amountTolerance = 0.01
)

// Extraction vendors disagree on label spelling. Each canonical field maps
// to its known variants in priority order; the first present label wins.
var fieldSynonyms = map[string][]string{
	"invoice_id":   {"InvoiceId", "InvoiceNumber", "Id"},
	"vendor":       {"VendorName", "Vendor", "SupplierName"},
	"invoice_date": {"InvoiceDate", "Date"},
	"due_date":     {"DueDate", "PaymentDueDate"},
	"total":        {"InvoiceTotal", "Total", "AmountDue"},
	"subtotal":     {"SubTotal", "Subtotal", "AmountExclTax"},
	"tax":          {"TotalTax", "Tax", "VAT"},
	"shipping":     {"ShippingCost", "Shipping", "FreightAmount"},
}

var dateLayouts = []string{
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"02/01/2006",
	"01/02/2006",
	"2006/01/02",
}

// Normalizer folds raw extraction output into the canonical invoice record.
// Same input always yields the same record.
type Normalizer struct {
	threshold float64
	log       *slog.Logger
}

func NewNormalizer(threshold float64, log *slog.Logger) *Normalizer {
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	return &Normalizer{threshold: threshold, log: log}
}

// Normalize maps extracted fields onto a canonical record. invoice_id and
// total are required at or above the confidence threshold; optional fields
// below it are dropped to null rather than guessed.
func (n *Normalizer) Normalize(doc *types.ExtractedDocument) (types.CanonicalInvoice, error) {
	inv := types.CanonicalInvoice{SourceFile: doc.SourceFile}

	idField, ok := n.lookup(doc, "invoice_id")
	if !ok {
		return inv, &types.ExtractionIncompleteError{
			SourceFile: doc.SourceFile,
			Field:      "invoice_id",
			Reason:     "is missing",
		}
	}
	if idField.Confidence < n.threshold {
		return inv, &types.ExtractionIncompleteError{
			SourceFile: doc.SourceFile,
			Field:      "invoice_id",
			Reason:     fmt.Sprintf("has confidence %.2f below threshold %.2f", idField.Confidence, n.threshold),
		}
	}
	inv.InvoiceID = strings.TrimSpace(idField.Text())
	if inv.InvoiceID == "" {
		return inv, &types.ExtractionIncompleteError{
			SourceFile: doc.SourceFile,
			Field:      "invoice_id",
			Reason:     "is empty",
		}
	}

	totalField, ok := n.lookup(doc, "total")
	if !ok {
		return inv, &types.ExtractionIncompleteError{
			SourceFile: doc.SourceFile,
			Field:      "total",
			Reason:     "is missing",
		}
	}
	if totalField.Confidence < n.threshold {
		return inv, &types.ExtractionIncompleteError{
			SourceFile: doc.SourceFile,
			Field:      "total",
			Reason:     fmt.Sprintf("has confidence %.2f below threshold %.2f", totalField.Confidence, n.threshold),
		}
	}
	total, ok := totalField.Amount()
	if !ok {
		return inv, &types.ExtractionIncompleteError{
			SourceFile: doc.SourceFile,
			Field:      "total",
			Reason:     "has no numeric value",
		}
	}
	inv.Total = total
	if code, ok := totalField.CurrencyCode(); ok {
		inv.Currency = &code
	}

	inv.Vendor = n.textValue(doc, "vendor")
	inv.InvoiceDate = n.dateValue(doc, "invoice_date")
	inv.DueDate = n.dateValue(doc, "due_date")
	inv.Subtotal = n.amountValue(doc, "subtotal")
	inv.Tax = n.amountValue(doc, "tax")
	inv.Shipping = n.amountValue(doc, "shipping")

	inv.Content = buildContent(inv)

	if !inv.AmountsReconcile(amountTolerance) {
		n.log.Warn("invoice amounts do not reconcile",
			"invoice_id", inv.InvoiceID,
			"source", doc.SourceFile,
		)
	}

	return inv, nil
}

// lookup resolves a canonical field through its synonym list. If more than
// one variant is present, the highest-priority one wins and the choice is
// logged.
func (n *Normalizer) lookup(doc *types.ExtractedDocument, name string) (types.ExtractedField, bool) {
	var (
		chosen  types.ExtractedField
		label   string
		present []string
	)
	for _, variant := range fieldSynonyms[name] {
		field, ok := doc.Fields[variant]
		if !ok {
			continue
		}
		present = append(present, variant)
		if label == "" {
			chosen, label = field, variant
		}
	}
	if label == "" {
		return types.ExtractedField{}, false
	}
	if len(present) > 1 || label != fieldSynonyms[name][0] {
		n.log.Debug("resolved field label variant",
			"field", name,
			"using", label,
			"present", present,
			"source", doc.SourceFile,
		)
	}
	return chosen, true
}

func (n *Normalizer) textValue(doc *types.ExtractedDocument, name string) *string {
	field, ok := n.lookup(doc, name)
	if !ok || field.Confidence < n.threshold {
		return nil
	}
	text := strings.TrimSpace(field.Text())
	if text == "" {
		return nil
	}
	return &text
}

func (n *Normalizer) dateValue(doc *types.ExtractedDocument, name string) *string {
	field, ok := n.lookup(doc, name)
	if !ok || field.Confidence < n.threshold {
		return nil
	}
	raw := field.ValueDate
	if raw == "" {
		raw = strings.TrimSpace(field.Text())
	}
	if raw == "" {
		return nil
	}
	date, ok := reduceDate(raw)
	if !ok {
		n.log.Warn("unparseable date dropped", "field", name, "value", raw, "source", doc.SourceFile)
		return nil
	}
	return &date
}

func (n *Normalizer) amountValue(doc *types.ExtractedDocument, name string) *float64 {
	field, ok := n.lookup(doc, name)
	if !ok || field.Confidence < n.threshold {
		return nil
	}
	amount, ok := field.Amount()
	if !ok {
		return nil
	}
	return &amount
}

// reduceDate normalizes assorted date spellings to YYYY-MM-DD. Timestamps
// are reduced to their date part.
func reduceDate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.Format("2006-01-02"), true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

// buildContent renders the one-line summary that lexical search indexes.
func buildContent(inv types.CanonicalInvoice) string {
	vendor := "unknown vendor"
	if inv.Vendor != nil {
		vendor = *inv.Vendor
	}
	date := "unknown date"
	if inv.InvoiceDate != nil {
		date = *inv.InvoiceDate
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Invoice %s from %s dated %s. ", inv.InvoiceID, vendor, date)
	if inv.Currency != nil {
		fmt.Fprintf(&b, "Total: %s %.2f", *inv.Currency, inv.Total)
	} else {
		fmt.Fprintf(&b, "Total: %.2f", inv.Total)
	}
	return b.String()
}
