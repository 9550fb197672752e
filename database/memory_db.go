package database

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/tieubaoca/invoice-qa/types"
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// Noise words that never discriminate between invoices.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "how": true, "in": true,
	"is": true, "it": true, "of": true, "on": true, "or": true, "that": true,
	"the": true, "to": true, "was": true, "were": true, "what": true,
	"when": true, "which": true, "who": true, "will": true, "with": true,
}

// MemoryStore is an in-process invoice index scoring queries with
// tf-idf cosine similarity. The default backend: development, tests and
// small corpora need no external search service.
type MemoryStore struct {
	indexName string
	log       *slog.Logger

	mu       sync.RWMutex
	docs     map[string]types.CanonicalInvoice
	terms    map[string]map[string]int // term -> invoice id -> frequency
	docTerms map[string]map[string]int // invoice id -> term -> frequency
}

func NewMemoryStore(indexName string, log *slog.Logger) *MemoryStore {
	return &MemoryStore{
		indexName: indexName,
		log:       log,
		docs:      make(map[string]types.CanonicalInvoice),
		terms:     make(map[string]map[string]int),
		docTerms:  make(map[string]map[string]int),
	}
}

func (s *MemoryStore) Name() string {
	return "memory"
}

// EnsureSchema is a no-op: the in-memory index has no persistent schema
// to conflict with.
func (s *MemoryStore) EnsureSchema(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Upsert(ctx context.Context, invoices []types.CanonicalInvoice) (*types.UpsertReport, error) {
	report := &types.UpsertReport{}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range invoices {
		if inv.InvoiceID == "" {
			report.AddFailure("", "missing invoice_id")
			continue
		}
		s.removeLocked(inv.InvoiceID)

		tf := termFrequencies(inv.Content)
		s.docs[inv.InvoiceID] = inv
		s.docTerms[inv.InvoiceID] = tf
		for term, n := range tf {
			if s.terms[term] == nil {
				s.terms[term] = make(map[string]int)
			}
			s.terms[term][inv.InvoiceID] = n
		}
		report.AddSuccess(inv.InvoiceID)
	}
	s.log.Debug("indexed batch", "index", s.indexName, "succeeded", len(report.Succeeded), "failed", len(report.Failed))
	return report, nil
}

func (s *MemoryStore) Search(ctx context.Context, query string, topK int, filters types.SearchFilters) ([]types.RetrievalCandidate, error) {
	queryTerms := termFrequencies(query)
	if len(queryTerms) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	total := len(s.docs)
	if total == 0 {
		return nil, nil
	}

	dot := make(map[string]float64)
	matched := make(map[string][]string)
	var queryNorm float64
	for term, qn := range queryTerms {
		weight := float64(qn) * s.idfLocked(term)
		queryNorm += weight * weight
		for id, dn := range s.terms[term] {
			dot[id] += weight * float64(dn) * s.idfLocked(term)
			matched[id] = append(matched[id], term)
		}
	}
	if len(dot) == 0 {
		return nil, nil
	}
	queryLen := math.Sqrt(queryNorm)

	candidates := make([]types.RetrievalCandidate, 0, len(dot))
	for id, d := range dot {
		inv := s.docs[id]
		if !matchesFilters(inv, filters) {
			continue
		}
		terms := matched[id]
		sort.Strings(terms)
		candidates = append(candidates, types.RetrievalCandidate{
			Invoice:      inv,
			Score:        d / (queryLen * s.docNormLocked(id)),
			MatchedTerms: terms,
		})
	}

	SortCandidates(candidates)
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*types.CanonicalInvoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("invoice %s: %w", id, types.ErrInvoiceNotFound)
	}
	return &inv, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.docs)), nil
}

func (s *MemoryStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string]types.CanonicalInvoice)
	s.terms = make(map[string]map[string]int)
	s.docTerms = make(map[string]map[string]int)
	s.log.Info("index reset", "index", s.indexName, "backend", "memory")
	return nil
}

func (s *MemoryStore) removeLocked(id string) {
	old, ok := s.docTerms[id]
	if !ok {
		return
	}
	for term := range old {
		delete(s.terms[term], id)
		if len(s.terms[term]) == 0 {
			delete(s.terms, term)
		}
	}
	delete(s.docTerms, id)
	delete(s.docs, id)
}

// idfLocked uses smoothed inverse document frequency so terms present in
// every document still contribute a little instead of zeroing out.
func (s *MemoryStore) idfLocked(term string) float64 {
	df := len(s.terms[term])
	return math.Log(float64(1+len(s.docs))/float64(1+df)) + 1
}

func (s *MemoryStore) docNormLocked(id string) float64 {
	var norm float64
	for term, n := range s.docTerms[id] {
		w := float64(n) * s.idfLocked(term)
		norm += w * w
	}
	return math.Sqrt(norm)
}

func termFrequencies(text string) map[string]int {
	tokens := tokenPattern.FindAllString(strings.ToLower(text), -1)
	tf := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		if stopwords[tok] {
			continue
		}
		tf[tok]++
	}
	return tf
}

func matchesFilters(inv types.CanonicalInvoice, f types.SearchFilters) bool {
	if f.Empty() {
		return true
	}
	if f.Vendor != "" {
		if inv.Vendor == nil || !strings.EqualFold(*inv.Vendor, f.Vendor) {
			return false
		}
	}
	if f.Currency != "" {
		if inv.Currency == nil || !strings.EqualFold(*inv.Currency, f.Currency) {
			return false
		}
	}
	// ISO dates compare lexicographically in chronological order.
	if f.DateFrom != "" {
		if inv.InvoiceDate == nil || *inv.InvoiceDate < f.DateFrom {
			return false
		}
	}
	if f.DateTo != "" {
		if inv.InvoiceDate == nil || *inv.InvoiceDate > f.DateTo {
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
