package database

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/tieubaoca/invoice-qa/config"
	"github.com/tieubaoca/invoice-qa/types"
)

// InvoiceStore is the keyword index over canonical invoices. All
// implementations rank lexically over the content field; vector search is
// deliberately not part of this interface.
type InvoiceStore interface {
	// EnsureSchema creates the index if it does not exist. Idempotent: an
	// existing index with the expected schema is a no-op; any other
	// schema fails with a SchemaConflictError and is never migrated.
	EnsureSchema(ctx context.Context) error

	// Upsert indexes records keyed by invoice id, last writer wins.
	// Per-record failures are collected in the report and never abort
	// the batch; err is reserved for backend-level failures.
	Upsert(ctx context.Context, invoices []types.CanonicalInvoice) (*types.UpsertReport, error)

	// Search runs a lexical query over content, optionally narrowed by
	// filters, and returns at most topK candidates ordered by
	// SortCandidates. An empty result is a valid outcome, not an error.
	Search(ctx context.Context, query string, topK int, filters types.SearchFilters) ([]types.RetrievalCandidate, error)

	// GetByID returns the indexed invoice or ErrInvoiceNotFound.
	GetByID(ctx context.Context, id string) (*types.CanonicalInvoice, error)

	// Count returns the number of indexed invoices.
	Count(ctx context.Context) (int64, error)

	// Reset destructively recreates the index. The only way out of a
	// schema conflict.
	Reset(ctx context.Context) error

	// Name identifies the backend in logs and status output.
	Name() string
}

// NewInvoiceStore builds the configured index backend.
func NewInvoiceStore(cfg config.StoreConfig, log *slog.Logger) (InvoiceStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(cfg.IndexName, log), nil
	case "elasticsearch":
		return NewElasticStore(cfg, log)
	case "weaviate":
		return NewWeaviateStore(cfg, log)
	case "mongo":
		return NewMongoStore(cfg, log)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// MatchedTerms returns the query terms found in content, sorted. Remote
// backends do not report term hits, so their candidates get matched terms
// computed here with the same tokenizer the memory index uses.
func MatchedTerms(query, content string) []string {
	queryTerms := termFrequencies(query)
	if len(queryTerms) == 0 {
		return nil
	}
	contentTerms := termFrequencies(content)
	var terms []string
	for term := range queryTerms {
		if contentTerms[term] > 0 {
			terms = append(terms, term)
		}
	}
	sort.Strings(terms)
	return terms
}

// SortCandidates orders candidates by score descending, breaking ties by
// total descending then invoice id ascending, so identical queries always
// return the same order.
func SortCandidates(candidates []types.RetrievalCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Invoice.Total != b.Invoice.Total {
			return a.Invoice.Total > b.Invoice.Total
		}
		return a.Invoice.InvoiceID < b.Invoice.InvoiceID
	})
}
