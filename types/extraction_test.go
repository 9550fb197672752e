package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractedFieldAmount(t *testing.T) {
	n := 42.5

	tests := []struct {
		name  string
		field ExtractedField
		want  float64
		ok    bool
	}{
		{
			name:  "currency field",
			field: ExtractedField{Type: FieldTypeCurrency, ValueCurrency: &CurrencyValue{Amount: 12027.4, CurrencyCode: "EUR"}},
			want:  12027.4,
			ok:    true,
		},
		{
			name:  "plain number field",
			field: ExtractedField{Type: FieldTypeNumber, ValueNumber: &n},
			want:  42.5,
			ok:    true,
		},
		{
			name:  "currency field without value",
			field: ExtractedField{Type: FieldTypeCurrency},
			ok:    false,
		},
		{
			name:  "string field has no amount",
			field: ExtractedField{Type: FieldTypeString, ValueString: "12027.4"},
			ok:    false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.field.Amount()
			require.Equal(t, tt.ok, ok)
			if ok {
				require.Equal(t, tt.want, got)
			}
		})
	}
}

func TestExtractedFieldCurrencyCode(t *testing.T) {
	code, ok := ExtractedField{Type: FieldTypeCurrency, ValueCurrency: &CurrencyValue{Amount: 1, CurrencyCode: "EUR"}}.CurrencyCode()
	require.True(t, ok)
	require.Equal(t, "EUR", code)

	_, ok = ExtractedField{Type: FieldTypeCurrency, ValueCurrency: &CurrencyValue{Amount: 1}}.CurrencyCode()
	require.False(t, ok)
}

func TestGroundingContextMembership(t *testing.T) {
	ctx := GroundingContext{
		Text: "Invoice 1:\n- ID: INV-2025-0001",
		Invoices: []CanonicalInvoice{
			{InvoiceID: "INV-2025-0001", Total: 12027.4},
		},
	}

	require.False(t, ctx.Empty())
	require.True(t, ctx.Contains("INV-2025-0001"))
	require.False(t, ctx.Contains("INV-2025-9999"))

	inv, ok := ctx.ByID("INV-2025-0001")
	require.True(t, ok)
	require.Equal(t, 12027.4, inv.Total)

	require.True(t, GroundingContext{}.Empty())
}
