package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tieubaoca/invoice-qa/config"
	"github.com/tieubaoca/invoice-qa/types"
)

const (
	docIntelAPIVersion   = "2024-11-30"
	defaultPollInterval  = 2 * time.Second
	defaultExtractorRate = 2.0

	// analyzeTimeout caps one submit-and-poll cycle.
	analyzeTimeout = 5 * time.Minute
)

// DocIntelClient extracts invoice fields through the hosted document
// analysis REST API. Analysis is asynchronous: submit returns an operation
// URL which is polled until the run settles.
type DocIntelClient struct {
	endpoint   string
	apiKey     string
	modelID    string
	httpClient *http.Client
	limiter    *rate.Limiter
	poll       time.Duration
	log        *slog.Logger
}

func NewDocIntelClient(cfg config.ExtractionConfig, log *slog.Logger) (*DocIntelClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("extraction endpoint is not configured")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("extraction api key is not configured")
	}
	modelID := cfg.ModelID
	if modelID == "" {
		modelID = "prebuilt-invoice"
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	perSecond := cfg.RateLimit
	if perSecond <= 0 {
		perSecond = defaultExtractorRate
	}
	return &DocIntelClient{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		modelID:    modelID,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(perSecond), 1),
		poll:       poll,
		log:        log,
	}, nil
}

type analyzeOperation struct {
	Status        string         `json:"status"`
	Error         *analyzeError  `json:"error,omitempty"`
	AnalyzeResult *analyzeResult `json:"analyzeResult,omitempty"`
}

type analyzeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *analyzeError) String() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type analyzeResult struct {
	Documents []analyzedDocument `json:"documents"`
}

type analyzedDocument struct {
	DocType    string                          `json:"docType"`
	Fields     map[string]types.ExtractedField `json:"fields"`
	Confidence float64                         `json:"confidence"`
}

func (c *DocIntelClient) Extract(ctx context.Context, path string, data []byte) (*types.ExtractedDocument, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, analyzeTimeout)
	defer cancel()

	opURL, err := c.submit(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("submit %s for analysis: %w", filepath.Base(path), err)
	}

	op, err := c.waitForResult(ctx, opURL)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", filepath.Base(path), err)
	}

	if op.AnalyzeResult == nil || len(op.AnalyzeResult.Documents) == 0 {
		return nil, fmt.Errorf("analyze %s: no invoice detected", filepath.Base(path))
	}

	// The invoice model returns one logical document per file.
	doc := op.AnalyzeResult.Documents[0]
	c.log.Debug("extracted document",
		"source", filepath.Base(path),
		"docType", doc.DocType,
		"fields", len(doc.Fields),
	)
	return &types.ExtractedDocument{
		SourceFile: filepath.Base(path),
		Fields:     doc.Fields,
	}, nil
}

// submit starts an analysis run and returns the operation URL to poll.
func (c *DocIntelClient) submit(ctx context.Context, data []byte) (string, error) {
	url := fmt.Sprintf("%s/documentintelligence/documentModels/%s:analyze?api-version=%s",
		c.endpoint, c.modelID, docIntelAPIVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return "", errors.New("response is missing the Operation-Location header")
	}
	return opURL, nil
}

func (c *DocIntelClient) waitForResult(ctx context.Context, opURL string) (*analyzeOperation, error) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		op, err := c.fetchOperation(ctx, opURL)
		if err != nil {
			return nil, err
		}
		switch op.Status {
		case "succeeded":
			return op, nil
		case "failed":
			if op.Error != nil {
				return nil, fmt.Errorf("analysis failed: %s", op.Error)
			}
			return nil, errors.New("analysis failed")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *DocIntelClient) fetchOperation(ctx context.Context, opURL string) (*analyzeOperation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var op analyzeOperation
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return nil, fmt.Errorf("decode operation state: %w", err)
	}
	return &op, nil
}
