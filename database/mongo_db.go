package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/tieubaoca/invoice-qa/config"
	"github.com/tieubaoca/invoice-qa/types"
)

const mongoDatabase = "invoice_qa"

// Mongo rejects index builds that clash with an existing index under
// these codes.
const (
	mongoIndexOptionsConflict  = 85
	mongoIndexKeySpecsConflict = 86
)

// MongoStore keeps invoices in a MongoDB collection and ranks queries
// with the built-in $text index over the content field. Credentials
// travel in the connection URI.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	index      string
	log        *slog.Logger
}

func NewMongoStore(cfg config.StoreConfig, log *slog.Logger) (*MongoStore, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("store endpoint is not configured")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.Endpoint))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	return &MongoStore{
		client:     client,
		collection: client.Database(mongoDatabase).Collection(cfg.IndexName),
		index:      cfg.IndexName,
		log:        log,
	}, nil
}

func (s *MongoStore) Name() string {
	return "mongo"
}

// EnsureSchema builds the text index over content and the unique id
// index. Re-running against matching indexes is a no-op; an existing
// index with different keys or options is a SchemaConflictError.
func (s *MongoStore) EnsureSchema(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "content", Value: "text"}},
			Options: options.Index().SetName("content_text"),
		},
		{
			Keys:    bson.D{{Key: "invoice_id", Value: 1}},
			Options: options.Index().SetName("invoice_id_unique").SetUnique(true),
		},
	}
	for _, model := range indexes {
		if _, err := s.collection.Indexes().CreateOne(ctx, model); err != nil {
			var cmdErr mongo.CommandError
			if errors.As(err, &cmdErr) &&
				(cmdErr.Code == mongoIndexOptionsConflict || cmdErr.Code == mongoIndexKeySpecsConflict) {
				return &types.SchemaConflictError{IndexName: s.index, Detail: cmdErr.Message}
			}
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

func (s *MongoStore) Upsert(ctx context.Context, invoices []types.CanonicalInvoice) (*types.UpsertReport, error) {
	report := &types.UpsertReport{}
	opts := options.Replace().SetUpsert(true)
	for _, inv := range invoices {
		if inv.InvoiceID == "" {
			report.AddFailure("", "missing invoice_id")
			continue
		}
		_, err := s.collection.ReplaceOne(ctx, bson.M{"invoice_id": inv.InvoiceID}, inv, opts)
		if err != nil {
			s.log.Warn("replace invoice failed", "invoice_id", inv.InvoiceID, "error", err)
			report.AddFailure(inv.InvoiceID, err.Error())
			continue
		}
		report.AddSuccess(inv.InvoiceID)
	}
	return report, nil
}

func (s *MongoStore) Search(ctx context.Context, query string, topK int, filters types.SearchFilters) ([]types.RetrievalCandidate, error) {
	filter := bson.M{"$text": bson.M{"$search": query}}
	applyMongoFilters(filter, filters)

	// The $meta projection adds the score without suppressing the
	// document fields.
	findOpts := options.Find().
		SetProjection(bson.M{"score": bson.M{"$meta": "textScore"}}).
		SetSort(bson.D{
			{Key: "score", Value: bson.M{"$meta": "textScore"}},
			{Key: "total", Value: -1},
			{Key: "invoice_id", Value: 1},
		}).
		SetLimit(int64(topK))

	cursor, err := s.collection.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer cursor.Close(ctx)

	var candidates []types.RetrievalCandidate
	for cursor.Next(ctx) {
		var hit struct {
			types.CanonicalInvoice `bson:",inline"`
			Score                  float64 `bson:"score"`
		}
		if err := cursor.Decode(&hit); err != nil {
			return nil, fmt.Errorf("decode search hit: %w", err)
		}
		candidates = append(candidates, types.RetrievalCandidate{
			Invoice: hit.CanonicalInvoice,
			Score:   hit.Score,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("search cursor: %w", err)
	}
	return candidates, nil
}

func (s *MongoStore) GetByID(ctx context.Context, id string) (*types.CanonicalInvoice, error) {
	var inv types.CanonicalInvoice
	err := s.collection.FindOne(ctx, bson.M{"invoice_id": id}).Decode(&inv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("invoice %s: %w", id, types.ErrInvoiceNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return &inv, nil
}

func (s *MongoStore) Count(ctx context.Context) (int64, error) {
	count, err := s.collection.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return count, nil
}

func (s *MongoStore) Reset(ctx context.Context) error {
	if err := s.collection.Drop(ctx); err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	s.log.Info("index reset", "index", s.index, "backend", "mongo")
	return s.EnsureSchema(ctx)
}

func applyMongoFilters(filter bson.M, f types.SearchFilters) {
	if f.Empty() {
		return
	}
	if f.Vendor != "" {
		filter["vendor"] = f.Vendor
	}
	if f.Currency != "" {
		filter["currency"] = f.Currency
	}
	if f.DateFrom != "" || f.DateTo != "" {
		dateRange := bson.M{}
		if f.DateFrom != "" {
			dateRange["$gte"] = f.DateFrom
		}
		if f.DateTo != "" {
			dateRange["$lte"] = f.DateTo
		}
		filter["invoice_date"] = dateRange
	}
	if f.MinTotal != nil || f.MaxTotal != nil {
		totalRange := bson.M{}
		if f.MinTotal != nil {
			totalRange["$gte"] = *f.MinTotal
		}
		if f.MaxTotal != nil {
			totalRange["$lte"] = *f.MaxTotal
		}
		filter["total"] = totalRange
	}
}
