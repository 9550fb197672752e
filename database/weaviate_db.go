package database

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/tieubaoca/invoice-qa/config"
	"github.com/tieubaoca/invoice-qa/types"
)

const weaviateBatchSize = 200

// invoiceNamespace seeds deterministic object ids, so re-upserting an
// invoice id overwrites the previous object instead of appending a copy.
var invoiceNamespace = uuid.MustParse("8e9c1f52-7d35-4a91-b7ce-5f20d3a6b4e1")

var classNameSanitizer = regexp.MustCompile(`[^A-Za-z0-9]`)

// WeaviateStore indexes invoices in Weaviate and ranks queries with its
// BM25 operator. No vectorizer is configured: retrieval is lexical only.
type WeaviateStore struct {
	client *weaviate.Client
	class  string
	log    *slog.Logger
}

func invoiceClass(name string) *models.Class {
	return &models.Class{
		Class: name,
		Properties: []*models.Property{
			{Name: "invoiceId", DataType: []string{"text"}},
			{Name: "vendor", DataType: []string{"text"}},
			// ISO dates kept as text; they filter lexicographically in
			// date order.
			{Name: "invoiceDate", DataType: []string{"text"}},
			{Name: "dueDate", DataType: []string{"text"}},
			{Name: "currency", DataType: []string{"text"}},
			{Name: "subtotal", DataType: []string{"number"}},
			{Name: "tax", DataType: []string{"number"}},
			{Name: "shipping", DataType: []string{"number"}},
			{Name: "total", DataType: []string{"number"}},
			{Name: "content", DataType: []string{"text"}},
			{Name: "sourceFile", DataType: []string{"text"}},
		},
		Vectorizer: "none",
	}
}

func NewWeaviateStore(cfg config.StoreConfig, log *slog.Logger) (*WeaviateStore, error) {
	scheme := "http"
	if strings.HasPrefix(cfg.Endpoint, "https") {
		scheme = "https"
	}
	host := strings.TrimPrefix(cfg.Endpoint, scheme+"://")

	wcfg := weaviate.Config{
		Host:   host,
		Scheme: scheme,
	}
	if cfg.APIKey != "" {
		wcfg.AuthConfig = auth.ApiKey{
			Value: cfg.APIKey,
		}
	}

	client, err := weaviate.NewClient(wcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}

	return &WeaviateStore{
		client: client,
		class:  weaviateClassName(cfg.IndexName),
		log:    log,
	}, nil
}

func (s *WeaviateStore) Name() string {
	return "weaviate"
}

func (s *WeaviateStore) EnsureSchema(ctx context.Context) error {
	schema, err := s.client.Schema().Getter().Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to get schema: %w", err)
	}

	for _, class := range schema.Classes {
		if class.Class == s.class {
			return s.verifyClass(class)
		}
	}

	if err := s.client.Schema().ClassCreator().WithClass(invoiceClass(s.class)).Do(ctx); err != nil {
		return fmt.Errorf("failed to create class %s: %w", s.class, err)
	}
	s.log.Info("created index", "class", s.class, "backend", "weaviate")
	return nil
}

// verifyClass compares the live class property by property; any drift is
// a SchemaConflictError, never a silent migration.
func (s *WeaviateStore) verifyClass(class *models.Class) error {
	want := make(map[string]string)
	for _, p := range invoiceClass(s.class).Properties {
		want[p.Name] = p.DataType[0]
	}
	got := make(map[string]string)
	for _, p := range class.Properties {
		if len(p.DataType) > 0 {
			got[p.Name] = p.DataType[0]
		}
	}

	for name, wantType := range want {
		gotType, ok := got[name]
		if !ok {
			return &types.SchemaConflictError{IndexName: s.class, Detail: fmt.Sprintf("missing property %q", name)}
		}
		if gotType != wantType {
			return &types.SchemaConflictError{IndexName: s.class, Detail: fmt.Sprintf("property %q has type %s, want %s", name, gotType, wantType)}
		}
	}
	for name := range got {
		if _, ok := want[name]; !ok {
			return &types.SchemaConflictError{IndexName: s.class, Detail: fmt.Sprintf("unexpected property %q", name)}
		}
	}
	return nil
}

func (s *WeaviateStore) Upsert(ctx context.Context, invoices []types.CanonicalInvoice) (*types.UpsertReport, error) {
	report := &types.UpsertReport{}

	pending := make([]types.CanonicalInvoice, 0, len(invoices))
	for _, inv := range invoices {
		if inv.InvoiceID == "" {
			report.AddFailure("", "missing invoice_id")
			continue
		}
		pending = append(pending, inv)
	}

	total := len(pending)
	for start := 0; start < total; start += weaviateBatchSize {
		end := start + weaviateBatchSize
		if end > total {
			end = total
		}

		batcher := s.client.Batch().ObjectsBatcher()
		for _, inv := range pending[start:end] {
			batcher = batcher.WithObjects(&models.Object{
				ID:         objectID(inv.InvoiceID),
				Class:      s.class,
				Properties: invoiceProperties(inv),
			})
		}

		resp, err := batcher.Do(ctx)
		if err != nil {
			return report, fmt.Errorf("failed to insert batch %d-%d: %w", start, end, err)
		}
		// Responses come back in request order.
		for i, obj := range resp {
			id := pending[start+i].InvoiceID
			if msg := batchObjectError(obj); msg != "" {
				s.log.Warn("index invoice failed", "invoice_id", id, "error", msg)
				report.AddFailure(id, msg)
				continue
			}
			report.AddSuccess(id)
		}
		s.log.Debug("indexed batch", "class", s.class, "from", start, "to", end, "total", total)
	}
	return report, nil
}

func (s *WeaviateStore) Search(ctx context.Context, query string, topK int, f types.SearchFilters) ([]types.RetrievalCandidate, error) {
	bm25 := (&graphql.BM25ArgumentBuilder{}).
		WithQuery(query).
		WithProperties("content")

	builder := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithFields(invoiceFields(true)...).
		WithBM25(bm25).
		WithLimit(topK)
	if where := buildWeaviateFilters(f); where != nil {
		builder = builder.WithWhere(where)
	}

	result, err := builder.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	if result.Errors != nil {
		return nil, fmt.Errorf("search failed: %v", result.Errors[0].Message)
	}

	candidates := parseInvoiceHits(result.Data, s.class)
	SortCandidates(candidates)
	return candidates, nil
}

func (s *WeaviateStore) GetByID(ctx context.Context, id string) (*types.CanonicalInvoice, error) {
	where := filters.Where().
		WithPath([]string{"invoiceId"}).
		WithOperator(filters.Equal).
		WithValueText(id)

	result, err := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithFields(invoiceFields(false)...).
		WithWhere(where).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	if result.Errors != nil {
		return nil, fmt.Errorf("get invoice failed: %v", result.Errors[0].Message)
	}

	hits := parseInvoiceHits(result.Data, s.class)
	if len(hits) == 0 {
		return nil, fmt.Errorf("invoice %s: %w", id, types.ErrInvoiceNotFound)
	}
	return &hits[0].Invoice, nil
}

func (s *WeaviateStore) Count(ctx context.Context) (int64, error) {
	result, err := s.client.GraphQL().Aggregate().
		WithClassName(s.class).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	if result.Errors != nil {
		return 0, fmt.Errorf("count failed: %v", result.Errors[0].Message)
	}

	agg, ok := result.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	items, ok := agg[s.class].([]interface{})
	if !ok || len(items) == 0 {
		return 0, nil
	}
	obj, ok := items[0].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	meta, ok := obj["meta"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	count, _ := meta["count"].(float64)
	return int64(count), nil
}

func (s *WeaviateStore) Reset(ctx context.Context) error {
	if err := s.client.Schema().ClassDeleter().WithClassName(s.class).Do(ctx); err != nil {
		return fmt.Errorf("failed to delete class %s: %w", s.class, err)
	}
	if err := s.client.Schema().ClassCreator().WithClass(invoiceClass(s.class)).Do(ctx); err != nil {
		return fmt.Errorf("failed to create class %s: %w", s.class, err)
	}
	s.log.Info("index reset", "class", s.class, "backend", "weaviate")
	return nil
}

// Helper functions

func weaviateClassName(indexName string) string {
	name := classNameSanitizer.ReplaceAllString(indexName, "")
	if name == "" {
		return "Invoice"
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func objectID(invoiceID string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(invoiceNamespace, []byte(invoiceID)).String())
}

func invoiceFields(withScore bool) []graphql.Field {
	fields := []graphql.Field{
		{Name: "invoiceId"},
		{Name: "vendor"},
		{Name: "invoiceDate"},
		{Name: "dueDate"},
		{Name: "currency"},
		{Name: "subtotal"},
		{Name: "tax"},
		{Name: "shipping"},
		{Name: "total"},
		{Name: "content"},
		{Name: "sourceFile"},
	}
	if withScore {
		fields = append(fields, graphql.Field{
			Name:   "_additional",
			Fields: []graphql.Field{{Name: "score"}},
		})
	}
	return fields
}

func invoiceProperties(inv types.CanonicalInvoice) map[string]interface{} {
	props := map[string]interface{}{
		"invoiceId":  inv.InvoiceID,
		"total":      inv.Total,
		"content":    inv.Content,
		"sourceFile": inv.SourceFile,
	}
	// Optional fields are simply absent, which reads back as nil.
	if inv.Vendor != nil {
		props["vendor"] = *inv.Vendor
	}
	if inv.InvoiceDate != nil {
		props["invoiceDate"] = *inv.InvoiceDate
	}
	if inv.DueDate != nil {
		props["dueDate"] = *inv.DueDate
	}
	if inv.Currency != nil {
		props["currency"] = *inv.Currency
	}
	if inv.Subtotal != nil {
		props["subtotal"] = *inv.Subtotal
	}
	if inv.Tax != nil {
		props["tax"] = *inv.Tax
	}
	if inv.Shipping != nil {
		props["shipping"] = *inv.Shipping
	}
	return props
}

func parseInvoiceHits(data map[string]models.JSONObject, class string) []types.RetrievalCandidate {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	items, ok := get[class].([]interface{})
	if !ok {
		return nil
	}

	var candidates []types.RetrievalCandidate
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		candidate := types.RetrievalCandidate{Invoice: invoiceFromProperties(obj)}
		if additional, ok := obj["_additional"].(map[string]interface{}); ok {
			// BM25 scores come back as strings.
			if str, ok := additional["score"].(string); ok {
				if v, err := strconv.ParseFloat(str, 64); err == nil {
					candidate.Score = v
				}
			}
		}
		candidates = append(candidates, candidate)
	}
	return candidates
}

func invoiceFromProperties(obj map[string]interface{}) types.CanonicalInvoice {
	inv := types.CanonicalInvoice{
		InvoiceID:  getString(obj, "invoiceId"),
		Content:    getString(obj, "content"),
		SourceFile: getString(obj, "sourceFile"),
	}
	if v, ok := obj["total"].(float64); ok {
		inv.Total = v
	}
	inv.Vendor = getStringPtr(obj, "vendor")
	inv.InvoiceDate = getStringPtr(obj, "invoiceDate")
	inv.DueDate = getStringPtr(obj, "dueDate")
	inv.Currency = getStringPtr(obj, "currency")
	inv.Subtotal = getNumberPtr(obj, "subtotal")
	inv.Tax = getNumberPtr(obj, "tax")
	inv.Shipping = getNumberPtr(obj, "shipping")
	return inv
}

func getString(obj map[string]interface{}, key string) string {
	v, _ := obj[key].(string)
	return v
}

func getStringPtr(obj map[string]interface{}, key string) *string {
	if v, ok := obj[key].(string); ok {
		return &v
	}
	return nil
}

func getNumberPtr(obj map[string]interface{}, key string) *float64 {
	if v, ok := obj[key].(float64); ok {
		return &v
	}
	return nil
}

func batchObjectError(obj models.ObjectsGetResponse) string {
	if obj.Result == nil || obj.Result.Errors == nil {
		return ""
	}
	var msgs []string
	for _, e := range obj.Result.Errors.Error {
		if e != nil {
			msgs = append(msgs, e.Message)
		}
	}
	return strings.Join(msgs, "; ")
}

func buildWeaviateFilters(f types.SearchFilters) *filters.WhereBuilder {
	if f.Empty() {
		return nil
	}

	var operands []*filters.WhereBuilder
	if f.Vendor != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"vendor"}).
			WithOperator(filters.Equal).
			WithValueText(f.Vendor))
	}
	if f.Currency != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"currency"}).
			WithOperator(filters.Equal).
			WithValueText(f.Currency))
	}
	if f.DateFrom != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"invoiceDate"}).
			WithOperator(filters.GreaterThanEqual).
			WithValueText(f.DateFrom))
	}
	if f.DateTo != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"invoiceDate"}).
			WithOperator(filters.LessThanEqual).
			WithValueText(f.DateTo))
	}
	if f.MinTotal != nil {
		operands = append(operands, filters.Where().
			WithPath([]string{"total"}).
			WithOperator(filters.GreaterThanEqual).
			WithValueNumber(*f.MinTotal))
	}
	if f.MaxTotal != nil {
		operands = append(operands, filters.Where().
			WithPath([]string{"total"}).
			WithOperator(filters.LessThanEqual).
			WithValueNumber(*f.MaxTotal))
	}

	if len(operands) == 1 {
		return operands[0]
	}
	return filters.Where().WithOperator(filters.And).WithOperands(operands)
}
