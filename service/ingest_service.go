package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/tieubaoca/invoice-qa/config"
	"github.com/tieubaoca/invoice-qa/database"
	"github.com/tieubaoca/invoice-qa/types"
	"github.com/tieubaoca/invoice-qa/utils"
)

const ingestWorkers = 4

// IngestService walks a directory of invoice documents, extracts and
// normalizes each one, writes the canonical batch to a JSONL artifact, and
// upserts it into the index.
type IngestService struct {
	extractor  DocumentExtractor
	normalizer *Normalizer
	store      database.InvoiceStore
	cfg        config.PipelineConfig
	log        *slog.Logger
}

func NewIngestService(extractor DocumentExtractor, normalizer *Normalizer, store database.InvoiceStore, cfg config.PipelineConfig, log *slog.Logger) *IngestService {
	return &IngestService{
		extractor:  extractor,
		normalizer: normalizer,
		store:      store,
		cfg:        cfg,
		log:        log,
	}
}

type ingestOutcome struct {
	invoice *types.CanonicalInvoice
	skip    *types.SkippedDocument
}

// Ingest processes up to the configured batch limit of documents from dir.
// Documents are extracted concurrently; one bad document is skipped and
// reported, never aborting the batch.
func (s *IngestService) Ingest(ctx context.Context, dir string) (*types.IngestReport, error) {
	paths, err := utils.ListDocuments(dir)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if limit := s.cfg.BatchLimit; limit > 0 && len(paths) > limit {
		s.log.Info("limiting ingest batch", "found", len(paths), "limit", limit)
		paths = paths[:limit]
	}

	report := &types.IngestReport{Processed: len(paths)}
	if len(paths) == 0 {
		return report, nil
	}

	outcomes := make([]ingestOutcome, len(paths))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < ingestWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = s.processDocument(ctx, paths[i])
			}
		}()
	}
	for i := range paths {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	// Outcomes are keyed by listing position, so the artifact order is
	// stable across runs.
	var invoices []types.CanonicalInvoice
	for _, outcome := range outcomes {
		if outcome.skip != nil {
			report.Skipped = append(report.Skipped, *outcome.skip)
			continue
		}
		if outcome.invoice != nil {
			invoices = append(invoices, *outcome.invoice)
		}
	}

	if len(invoices) == 0 {
		s.log.Warn("no invoices extracted", "dir", dir, "skipped", len(report.Skipped))
		return report, nil
	}

	if s.cfg.ArtifactPath != "" {
		if err := utils.WriteInvoicesJSONL(s.cfg.ArtifactPath, invoices); err != nil {
			return nil, fmt.Errorf("write artifact: %w", err)
		}
		report.Artifact = s.cfg.ArtifactPath
	}

	upsert, err := s.indexInvoices(ctx, invoices)
	if err != nil {
		return nil, err
	}
	report.Upsert = upsert
	report.Indexed = len(upsert.Succeeded)

	s.log.Info("ingest done",
		"processed", report.Processed,
		"indexed", report.Indexed,
		"skipped", len(report.Skipped),
	)
	return report, nil
}

func (s *IngestService) processDocument(ctx context.Context, path string) ingestOutcome {
	name := filepath.Base(path)
	data, err := os.ReadFile(path)
	if err != nil {
		s.log.Warn("skipping unreadable document", "source", name, "error", err)
		return ingestOutcome{skip: &types.SkippedDocument{SourceFile: name, Reason: err.Error()}}
	}

	doc, err := s.extractor.Extract(ctx, path, data)
	if err != nil {
		s.log.Warn("skipping document, extraction failed", "source", name, "error", err)
		return ingestOutcome{skip: &types.SkippedDocument{SourceFile: name, Reason: err.Error()}}
	}

	invoice, err := s.normalizer.Normalize(doc)
	if err != nil {
		s.log.Warn("skipping document, normalization failed", "source", name, "error", err)
		return ingestOutcome{skip: &types.SkippedDocument{SourceFile: name, Reason: err.Error()}}
	}
	return ingestOutcome{invoice: &invoice}
}

// Reindex replays a previously written JSONL artifact into the index,
// rebuilding it without touching the extraction service.
func (s *IngestService) Reindex(ctx context.Context, artifactPath string) (*types.UpsertReport, error) {
	invoices, err := utils.ReadInvoicesJSONL(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return s.indexInvoices(ctx, invoices)
}

func (s *IngestService) indexInvoices(ctx context.Context, invoices []types.CanonicalInvoice) (*types.UpsertReport, error) {
	if err := s.store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	report, err := s.store.Upsert(ctx, invoices)
	if err != nil {
		return nil, fmt.Errorf("upsert batch: %w", err)
	}
	if !report.Ok() {
		sort.Slice(report.Failed, func(i, j int) bool {
			return report.Failed[i].InvoiceID < report.Failed[j].InvoiceID
		})
		for _, failure := range report.Failed {
			s.log.Warn("record rejected by index", "invoice_id", failure.InvoiceID, "reason", failure.Reason)
		}
	}
	return report, nil
}
