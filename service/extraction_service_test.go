package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tieubaoca/invoice-qa/config"
	"github.com/tieubaoca/invoice-qa/logger"
	"github.com/tieubaoca/invoice-qa/types"
)

func writeFixture(t *testing.T, dir, name string, fields map[string]types.ExtractedField) string {
	t.Helper()
	data, err := json.Marshal(fields)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func sampleFields() map[string]types.ExtractedField {
	return map[string]types.ExtractedField{
		"InvoiceId":    stringField("INV-2025-0001", 0.98),
		"InvoiceTotal": currencyField(12027.4, "EUR", 0.99),
	}
}

func TestFileExtractorReadsSidecar(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "contoso-0001.pdf")
	require.NoError(t, os.WriteFile(docPath, []byte("%PDF-1.4 fake"), 0o644))
	writeFixture(t, dir, "contoso-0001.json", sampleFields())

	e := NewFileExtractor(logger.Discard())
	doc, err := e.Extract(context.Background(), docPath, []byte("%PDF-1.4 fake"))
	require.NoError(t, err)
	require.Equal(t, "contoso-0001.pdf", doc.SourceFile)
	require.Equal(t, "INV-2025-0001", doc.Fields["InvoiceId"].ValueString)
	require.NotNil(t, doc.Fields["InvoiceTotal"].ValueCurrency)
	require.Equal(t, "EUR", doc.Fields["InvoiceTotal"].ValueCurrency.CurrencyCode)
}

func TestFileExtractorReadsDirectJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "direct.json", sampleFields())
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	e := NewFileExtractor(logger.Discard())
	doc, err := e.Extract(context.Background(), path, data)
	require.NoError(t, err)
	require.Equal(t, "direct.json", doc.SourceFile)
	require.Len(t, doc.Fields, 2)
}

func TestFileExtractorMissingSidecar(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "orphan.pdf")
	require.NoError(t, os.WriteFile(docPath, []byte("x"), 0o644))

	e := NewFileExtractor(logger.Discard())
	_, err := e.Extract(context.Background(), docPath, []byte("x"))
	require.ErrorContains(t, err, "no extraction fixture")
}

func TestNewDocumentExtractorBackends(t *testing.T) {
	e, err := NewDocumentExtractor(config.ExtractionConfig{Backend: "file"}, logger.Discard())
	require.NoError(t, err)
	require.IsType(t, &FileExtractor{}, e)

	_, err = NewDocumentExtractor(config.ExtractionConfig{Backend: "carrier-pigeon"}, logger.Discard())
	require.ErrorContains(t, err, "unknown extraction backend")

	_, err = NewDocumentExtractor(config.ExtractionConfig{Backend: "docintel"}, logger.Discard())
	require.ErrorContains(t, err, "endpoint")
}

func TestDocIntelClientPollsUntilDone(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	// ServeMux method patterns need Go 1.22; match the path and check the method explicitly.
	mux.HandleFunc("/documentintelligence/documentModels/prebuilt-invoice:analyze", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		require.Equal(t, "secret", r.Header.Get("Ocp-Apim-Subscription-Key"))
		w.Header().Set("Operation-Location", server.URL+"/operations/op-1")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/operations/op-1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		if polls.Add(1) < 3 {
			json.NewEncoder(w).Encode(map[string]any{"status": "running"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": "succeeded",
			"analyzeResult": map[string]any{
				"documents": []map[string]any{{
					"docType":    "invoice",
					"confidence": 0.97,
					"fields":     sampleFields(),
				}},
			},
		})
	})

	client, err := NewDocIntelClient(config.ExtractionConfig{
		Endpoint:     server.URL,
		APIKey:       "secret",
		PollInterval: 5 * time.Millisecond,
		RateLimit:    1000,
	}, logger.Discard())
	require.NoError(t, err)

	doc, err := client.Extract(context.Background(), "/tmp/contoso-0001.pdf", []byte("%PDF"))
	require.NoError(t, err)
	require.Equal(t, "contoso-0001.pdf", doc.SourceFile)
	require.Equal(t, "INV-2025-0001", doc.Fields["InvoiceId"].ValueString)
	require.GreaterOrEqual(t, polls.Load(), int32(3))
}

func TestDocIntelClientReportsFailedAnalysis(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/documentintelligence/documentModels/prebuilt-invoice:analyze", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Operation-Location", server.URL+"/operations/op-2")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/operations/op-2", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": "failed",
			"error":  map[string]any{"code": "InvalidContent", "message": "file is corrupt"},
		})
	})

	client, err := NewDocIntelClient(config.ExtractionConfig{
		Endpoint:     server.URL,
		APIKey:       "secret",
		PollInterval: time.Millisecond,
		RateLimit:    1000,
	}, logger.Discard())
	require.NoError(t, err)

	_, err = client.Extract(context.Background(), "broken.pdf", []byte("x"))
	require.ErrorContains(t, err, "InvalidContent")
}
