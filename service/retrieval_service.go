package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/tieubaoca/invoice-qa/database"
	"github.com/tieubaoca/invoice-qa/types"
)

const (
	// DefaultTopK is used when a request does not say how many candidates
	// it wants.
	DefaultTopK = 3

	minTopK = 1
	maxTopK = 10
)

var monthYearPattern = regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December)\s+(\d{4})\b`)

var monthNumbers = map[string]string{
	"january": "01", "february": "02", "march": "03", "april": "04",
	"may": "05", "june": "06", "july": "07", "august": "08",
	"september": "09", "october": "10", "november": "11", "december": "12",
}

// Retriever ranks stored invoices against a question. Ranking is lexical;
// a question that names an invoice id outranks everything else for that id.
type Retriever struct {
	store database.InvoiceStore
	log   *slog.Logger
}

func NewRetriever(store database.InvoiceStore, log *slog.Logger) *Retriever {
	return &Retriever{store: store, log: log}
}

// Search returns up to topK candidates, best first. topK values outside
// [1, 10] are clamped, zero means the default.
func (r *Retriever) Search(ctx context.Context, query string, topK int, filters types.SearchFilters) ([]types.RetrievalCandidate, error) {
	topK = clampTopK(topK)

	candidates, err := r.store.Search(ctx, query, topK, filters)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	// Remote backends rank without reporting which terms hit.
	for i := range candidates {
		if len(candidates[i].MatchedTerms) == 0 {
			candidates[i].MatchedTerms = database.MatchedTerms(query, candidates[i].Invoice.Content)
		}
	}

	boosted, err := r.exactIDMatches(ctx, query, filters)
	if err != nil {
		return nil, err
	}
	if len(boosted) > 0 {
		candidates = promoteExactMatches(boosted, candidates)
	}

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	r.log.Debug("retrieval done", "query", query, "top_k", topK, "candidates", len(candidates))
	return candidates, nil
}

// exactIDMatches looks up every invoice id spelled out in the query. A
// filter that excludes the invoice also excludes the boost.
func (r *Retriever) exactIDMatches(ctx context.Context, query string, filters types.SearchFilters) ([]types.RetrievalCandidate, error) {
	var matches []types.RetrievalCandidate
	for _, id := range types.ExtractInvoiceIDs(query) {
		inv, err := r.store.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, types.ErrInvoiceNotFound) {
				continue
			}
			return nil, fmt.Errorf("lookup %s: %w", id, err)
		}
		if !invoiceMatchesFilters(*inv, filters) {
			continue
		}
		matches = append(matches, types.RetrievalCandidate{
			Invoice:      *inv,
			MatchedTerms: []string{strings.ToLower(id)},
		})
	}
	return matches, nil
}

// promoteExactMatches puts id-matched invoices first, in the order the ids
// appear in the query, then the remaining lexical results. An id match keeps
// its lexical score when it also ranked lexically.
func promoteExactMatches(boosted, lexical []types.RetrievalCandidate) []types.RetrievalCandidate {
	seen := make(map[string]bool, len(boosted))
	out := make([]types.RetrievalCandidate, 0, len(boosted)+len(lexical))
	for _, b := range boosted {
		for _, c := range lexical {
			if c.Invoice.InvoiceID == b.Invoice.InvoiceID {
				b.Score = c.Score
				break
			}
		}
		seen[b.Invoice.InvoiceID] = true
		out = append(out, b)
	}
	for _, c := range lexical {
		if !seen[c.Invoice.InvoiceID] {
			out = append(out, c)
		}
	}
	return out
}

func invoiceMatchesFilters(inv types.CanonicalInvoice, f types.SearchFilters) bool {
	if f.Empty() {
		return true
	}
	if f.Vendor != "" && (inv.Vendor == nil || !strings.EqualFold(*inv.Vendor, f.Vendor)) {
		return false
	}
	if f.Currency != "" && (inv.Currency == nil || !strings.EqualFold(*inv.Currency, f.Currency)) {
		return false
	}
	if f.DateFrom != "" || f.DateTo != "" {
		if inv.InvoiceDate == nil {
			return false
		}
		if f.DateFrom != "" && *inv.InvoiceDate < f.DateFrom {
			return false
		}
		if f.DateTo != "" && *inv.InvoiceDate > f.DateTo {
			return false
		}
	}
	if f.MinTotal != nil && inv.Total < *f.MinTotal {
		return false
	}
	if f.MaxTotal != nil && inv.Total > *f.MaxTotal {
		return false
	}
	return true
}

// DeriveFilters reads structured constraints out of a free-text question.
// A month-year mention becomes an invoice date range covering that month.
func DeriveFilters(question string) types.SearchFilters {
	var filters types.SearchFilters
	if m := monthYearPattern.FindStringSubmatch(question); m != nil {
		month := monthNumbers[strings.ToLower(m[1])]
		year := m[2]
		filters.DateFrom = fmt.Sprintf("%s-%s-01", year, month)
		// Day 31 overshoots short months; string comparison keeps the
		// range correct anyway.
		filters.DateTo = fmt.Sprintf("%s-%s-31", year, month)
	}
	return filters
}

func clampTopK(topK int) int {
	switch {
	case topK == 0:
		return DefaultTopK
	case topK < minTopK:
		return minTopK
	case topK > maxTopK:
		return maxTopK
	}
	return topK
}
