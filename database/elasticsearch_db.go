package database

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/tieubaoca/invoice-qa/config"
	"github.com/tieubaoca/invoice-qa/types"
)

const invoiceMappings = `{
  "mappings": {
    "properties": {
      "invoice_id":   {"type": "keyword"},
      "vendor":       {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
      "invoice_date": {"type": "date", "format": "yyyy-MM-dd"},
      "due_date":     {"type": "date", "format": "yyyy-MM-dd"},
      "currency":     {"type": "keyword"},
      "subtotal":     {"type": "double"},
      "tax":          {"type": "double"},
      "shipping":     {"type": "double"},
      "total":        {"type": "double"},
      "content":      {"type": "text"},
      "source_file":  {"type": "keyword"}
    }
  }
}`

var expectedFieldTypes = map[string]string{
	"invoice_id":   "keyword",
	"vendor":       "text",
	"invoice_date": "date",
	"due_date":     "date",
	"currency":     "keyword",
	"subtotal":     "double",
	"tax":          "double",
	"shipping":     "double",
	"total":        "double",
	"content":      "text",
	"source_file":  "keyword",
}

// ElasticStore indexes invoices in Elasticsearch and ranks queries with
// its native BM25 scoring over the content field.
type ElasticStore struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
}

func NewElasticStore(cfg config.StoreConfig, log *slog.Logger) (*ElasticStore, error) {
	esCfg := elasticsearch.Config{
		Addresses: []string{cfg.Endpoint},
	}
	if cfg.APIKey != "" {
		esCfg.APIKey = cfg.APIKey
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return &ElasticStore{es: es, index: cfg.IndexName, log: log}, nil
}

func (s *ElasticStore) Name() string {
	return "elasticsearch"
}

func (s *ElasticStore) EnsureSchema(ctx context.Context) error {
	res, err := s.es.Indices.Exists([]string{s.index}, s.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return s.createIndex(ctx)
	}
	if res.IsError() {
		return fmt.Errorf("check index failed: %s", res.Status())
	}
	return s.verifySchema(ctx)
}

func (s *ElasticStore) createIndex(ctx context.Context) error {
	res, err := s.es.Indices.Create(s.index,
		s.es.Indices.Create.WithContext(ctx),
		s.es.Indices.Create.WithBody(strings.NewReader(invoiceMappings)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("create index failed: %s", strings.TrimSpace(string(body)))
	}
	s.log.Info("created index", "index", s.index, "backend", "elasticsearch")
	return nil
}

// verifySchema compares the live mapping field by field; any drift is a
// SchemaConflictError, never a silent migration.
func (s *ElasticStore) verifySchema(ctx context.Context) error {
	res, err := s.es.Indices.Get([]string{s.index}, s.es.Indices.Get.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("get index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("get index failed: %s", strings.TrimSpace(string(body)))
	}

	var parsed map[string]struct {
		Mappings struct {
			Properties map[string]struct {
				Type string `json:"type"`
			} `json:"properties"`
		} `json:"mappings"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode index response: %w", err)
	}

	info, ok := parsed[s.index]
	if !ok {
		// The response can be keyed by the concrete index behind an alias.
		for _, v := range parsed {
			info = v
			break
		}
	}

	props := info.Mappings.Properties
	for field, want := range expectedFieldTypes {
		got, ok := props[field]
		if !ok {
			return &types.SchemaConflictError{IndexName: s.index, Detail: fmt.Sprintf("missing field %q", field)}
		}
		if got.Type != want {
			return &types.SchemaConflictError{IndexName: s.index, Detail: fmt.Sprintf("field %q has type %s, want %s", field, got.Type, want)}
		}
	}
	for field := range props {
		if _, ok := expectedFieldTypes[field]; !ok {
			return &types.SchemaConflictError{IndexName: s.index, Detail: fmt.Sprintf("unexpected field %q", field)}
		}
	}
	return nil
}

func (s *ElasticStore) Upsert(ctx context.Context, invoices []types.CanonicalInvoice) (*types.UpsertReport, error) {
	report := &types.UpsertReport{}
	for _, inv := range invoices {
		if inv.InvoiceID == "" {
			report.AddFailure("", "missing invoice_id")
			continue
		}
		if err := s.indexOne(ctx, inv); err != nil {
			s.log.Warn("index invoice failed", "invoice_id", inv.InvoiceID, "error", err)
			report.AddFailure(inv.InvoiceID, err.Error())
			continue
		}
		report.AddSuccess(inv.InvoiceID)
	}
	return report, nil
}

func (s *ElasticStore) indexOne(ctx context.Context, inv types.CanonicalInvoice) error {
	payload, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("marshal invoice: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      s.index,
		DocumentID: inv.InvoiceID,
		Body:       bytes.NewReader(payload),
		Refresh:    "true", // a search right after the upsert must see the write
	}

	res, err := req.Do(ctx, s.es)
	if err != nil {
		return fmt.Errorf("index invoice: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index invoice failed: %s", strings.TrimSpace(string(body)))
	}
	return nil
}

func (s *ElasticStore) Search(ctx context.Context, query string, topK int, filters types.SearchFilters) ([]types.RetrievalCandidate, error) {
	boolQuery := map[string]any{
		"must": []map[string]any{
			{"match": map[string]any{"content": query}},
		},
	}
	if filter := buildElasticFilters(filters); len(filter) > 0 {
		boolQuery["filter"] = filter
	}

	body := map[string]any{
		"size":  topK,
		"query": map[string]any{"bool": boolQuery},
		"sort": []any{
			"_score",
			map[string]any{"total": map[string]any{"order": "desc"}},
			map[string]any{"invoice_id": map[string]any{"order": "asc"}},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(s.index),
		s.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Score  float64                `json:"_score"`
				Source types.CanonicalInvoice `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	candidates := make([]types.RetrievalCandidate, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		candidates = append(candidates, types.RetrievalCandidate{
			Invoice: hit.Source,
			Score:   hit.Score,
		})
	}
	return candidates, nil
}

func (s *ElasticStore) GetByID(ctx context.Context, id string) (*types.CanonicalInvoice, error) {
	req := esapi.GetRequest{Index: s.index, DocumentID: id}

	res, err := req.Do(ctx, s.es)
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("invoice %s: %w", id, types.ErrInvoiceNotFound)
	}
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("get invoice failed: %s", strings.TrimSpace(string(body)))
	}

	var parsed struct {
		Source types.CanonicalInvoice `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode get response: %w", err)
	}
	return &parsed.Source, nil
}

func (s *ElasticStore) Count(ctx context.Context) (int64, error) {
	res, err := s.es.Count(
		s.es.Count.WithContext(ctx),
		s.es.Count.WithIndex(s.index),
	)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return 0, fmt.Errorf("count failed: %s", strings.TrimSpace(string(body)))
	}

	var parsed struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	return parsed.Count, nil
}

func (s *ElasticStore) Reset(ctx context.Context) error {
	res, err := s.es.Indices.Delete([]string{s.index},
		s.es.Indices.Delete.WithContext(ctx),
		s.es.Indices.Delete.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return fmt.Errorf("delete index: %w", err)
	}
	res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("delete index failed: %s", res.Status())
	}
	s.log.Info("index reset", "index", s.index, "backend", "elasticsearch")
	return s.createIndex(ctx)
}

func buildElasticFilters(f types.SearchFilters) []map[string]any {
	if f.Empty() {
		return nil
	}
	var out []map[string]any
	if f.Vendor != "" {
		out = append(out, map[string]any{
			"term": map[string]any{"vendor.keyword": f.Vendor},
		})
	}
	if f.Currency != "" {
		out = append(out, map[string]any{
			"term": map[string]any{"currency": f.Currency},
		})
	}
	if f.DateFrom != "" || f.DateTo != "" {
		rangeQuery := map[string]any{}
		if f.DateFrom != "" {
			rangeQuery["gte"] = f.DateFrom
		}
		if f.DateTo != "" {
			rangeQuery["lte"] = f.DateTo
		}
		out = append(out, map[string]any{
			"range": map[string]any{"invoice_date": rangeQuery},
		})
	}
	if f.MinTotal != nil || f.MaxTotal != nil {
		rangeQuery := map[string]any{}
		if f.MinTotal != nil {
			rangeQuery["gte"] = *f.MinTotal
		}
		if f.MaxTotal != nil {
			rangeQuery["lte"] = *f.MaxTotal
		}
		out = append(out, map[string]any{
			"range": map[string]any{"total": rangeQuery},
		})
	}
	return out
}
