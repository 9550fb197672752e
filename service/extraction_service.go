package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tieubaoca/invoice-qa/config"
	"github.com/tieubaoca/invoice-qa/types"
)

// DocumentExtractor turns one raw invoice document into typed fields. It
// may return partial results with low-confidence fields; deciding what is
// usable is the normalizer's job.
type DocumentExtractor interface {
	Extract(ctx context.Context, path string, data []byte) (*types.ExtractedDocument, error)
}

// NewDocumentExtractor builds the configured extraction backend.
func NewDocumentExtractor(cfg config.ExtractionConfig, log *slog.Logger) (DocumentExtractor, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileExtractor(log), nil
	case "docintel":
		return NewDocIntelClient(cfg, log)
	default:
		return nil, fmt.Errorf("unknown extraction backend %q", cfg.Backend)
	}
}

// FileExtractor reads extraction results from sidecar JSON files: for
// invoice.pdf it loads invoice.json, which holds the label->field map the
// hosted extraction service would have produced. This keeps the whole
// pipeline runnable offline.
type FileExtractor struct {
	log *slog.Logger
}

func NewFileExtractor(log *slog.Logger) *FileExtractor {
	return &FileExtractor{log: log}
}

func (e *FileExtractor) Extract(ctx context.Context, path string, data []byte) (*types.ExtractedDocument, error) {
	fixturePath := path
	if !strings.EqualFold(filepath.Ext(path), ".json") {
		fixturePath = strings.TrimSuffix(path, filepath.Ext(path)) + ".json"
		raw, err := os.ReadFile(fixturePath)
		if err != nil {
			return nil, fmt.Errorf("no extraction fixture for %s: %w", filepath.Base(path), err)
		}
		data = raw
	}

	var fields map[string]types.ExtractedField
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("parse extraction fixture %s: %w", filepath.Base(fixturePath), err)
	}

	e.log.Debug("extracted document", "source", filepath.Base(path), "fields", len(fields))
	return &types.ExtractedDocument{
		SourceFile: filepath.Base(path),
		Fields:     fields,
	}, nil
}
