package utils

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tieubaoca/invoice-qa/types"
)

// WriteInvoicesJSONL writes one JSON record per line. This is the
// interchange artifact between normalization and indexing and must
// round-trip losslessly through ReadInvoicesJSONL.
func WriteInvoicesJSONL(path string, invoices []types.CanonicalInvoice) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create artifact file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, inv := range invoices {
		if err := enc.Encode(inv); err != nil {
			return fmt.Errorf("failed to encode invoice %s: %w", inv.InvoiceID, err)
		}
	}
	return w.Flush()
}

// ReadInvoicesJSONL reads a line-delimited invoice artifact. Blank lines
// are skipped; a malformed line fails the whole read with its line number.
func ReadInvoicesJSONL(path string) ([]types.CanonicalInvoice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact file: %w", err)
	}
	defer f.Close()

	var invoices []types.CanonicalInvoice
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var inv types.CanonicalInvoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return nil, fmt.Errorf("malformed record at line %d: %w", line, err)
		}
		invoices = append(invoices, inv)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read artifact file: %w", err)
	}
	return invoices, nil
}
