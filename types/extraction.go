package types

// Field type tags used by the extraction service.
const (
	FieldTypeString   = "string"
	FieldTypeDate     = "date"
	FieldTypeNumber   = "number"
	FieldTypeCurrency = "currency"
)

// CurrencyValue is the nested amount/code shape of a currency field.
type CurrencyValue struct {
	Amount       float64 `json:"amount"`
	CurrencyCode string  `json:"currencyCode,omitempty"`
}

// ExtractedField is one typed field from the extraction service. Exactly
// one of the Value* members is set, selected by Type; the normalizer
// resolves this union once so downstream code only sees CanonicalInvoice.
type ExtractedField struct {
	Type          string         `json:"type"`
	Content       string         `json:"content,omitempty"`
	ValueString   string         `json:"valueString,omitempty"`
	ValueDate     string         `json:"valueDate,omitempty"`
	ValueNumber   *float64       `json:"valueNumber,omitempty"`
	ValueCurrency *CurrencyValue `json:"valueCurrency,omitempty"`
	Confidence    float64        `json:"confidence"`
}

// ExtractedDocument is the raw per-document output of the extraction
// service: a label->field mapping plus the originating file.
type ExtractedDocument struct {
	SourceFile string                    `json:"source_file"`
	Fields     map[string]ExtractedField `json:"fields"`
}

// Amount returns the numeric value of a number or currency field.
func (f ExtractedField) Amount() (float64, bool) {
	switch f.Type {
	case FieldTypeCurrency:
		if f.ValueCurrency != nil {
			return f.ValueCurrency.Amount, true
		}
	case FieldTypeNumber:
		if f.ValueNumber != nil {
			return *f.ValueNumber, true
		}
	}
	return 0, false
}

// CurrencyCode returns the currency code of a currency field, if any.
func (f ExtractedField) CurrencyCode() (string, bool) {
	if f.Type == FieldTypeCurrency && f.ValueCurrency != nil && f.ValueCurrency.CurrencyCode != "" {
		return f.ValueCurrency.CurrencyCode, true
	}
	return "", false
}

// Text returns the best textual form of the field.
func (f ExtractedField) Text() string {
	if f.ValueString != "" {
		return f.ValueString
	}
	return f.Content
}
