package types

// SearchFilters narrows retrieval by structured invoice facets. The zero
// value means no filtering.
type SearchFilters struct {
	Vendor   string   `json:"vendor,omitempty"`
	DateFrom string   `json:"date_from,omitempty"`
	DateTo   string   `json:"date_to,omitempty"`
	Currency string   `json:"currency,omitempty"`
	MinTotal *float64 `json:"min_total,omitempty"`
	MaxTotal *float64 `json:"max_total,omitempty"`
}

func (f SearchFilters) Empty() bool {
	return f == SearchFilters{}
}

// RetrievalCandidate is one ranked search hit. Transient, never persisted.
type RetrievalCandidate struct {
	Invoice      CanonicalInvoice `json:"invoice"`
	Score        float64          `json:"score"`
	MatchedTerms []string         `json:"matched_terms,omitempty"`
}

// GroundingContext is the bounded text block injected into the generation
// prompt, together with the invoices it was assembled from. Rebuilt per
// question.
type GroundingContext struct {
	Text     string             `json:"text"`
	Invoices []CanonicalInvoice `json:"invoices"`
}

// Empty reports whether no candidate made it into the context. An empty
// context must short-circuit answer generation.
func (g GroundingContext) Empty() bool {
	return len(g.Invoices) == 0
}

// Contains reports whether id refers to one of the context invoices.
func (g GroundingContext) Contains(id string) bool {
	for _, inv := range g.Invoices {
		if inv.InvoiceID == id {
			return true
		}
	}
	return false
}

// ByID returns the context invoice with the given id.
func (g GroundingContext) ByID(id string) (CanonicalInvoice, bool) {
	for _, inv := range g.Invoices {
		if inv.InvoiceID == id {
			return inv, true
		}
	}
	return CanonicalInvoice{}, false
}
