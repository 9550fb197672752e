package types

// Citation binds one claim in an answer to a retrieved invoice. Display
// values are copied from the indexed record, never reparsed from the
// generated text.
type Citation struct {
	InvoiceID string  `json:"invoice_id"`
	Vendor    string  `json:"vendor,omitempty"`
	Date      string  `json:"date,omitempty"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency,omitempty"`
}

// CitedAnswer is the final response to a question: the generated text and
// the invoices it is grounded on.
type CitedAnswer struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations"`
}
