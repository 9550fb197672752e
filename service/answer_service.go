package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tieubaoca/invoice-qa/types"
)

const invoiceSystemPrompt = `You are an invoice assistant. Answer questions about invoices based on the provided context.

Guidelines:
- Always cite the invoice ID when referencing specific invoices
- If the answer isn't in the context, say you don't have that information
- Be concise and accurate for specific questions
- Format numbers and dates clearly
- When asked to "show" or "list" invoices, display ALL invoices from the context, not just a few examples`

const answerPromptTemplate = `Context from invoice database:
%s

User question: %s

Please answer the question based on the invoice information provided above.`

const groundingRetryTemplate = `Your previous answer referenced invoice IDs that are not in the context: %s. Answer the question again using only invoices listed in the context, and cite only their IDs.`

const (
	noMatchesAnswer     = "No relevant invoices found in the database."
	emptyAnswerFallback = "I apologize, but I couldn't generate a response. Please try rephrasing your question."
)

// AnswerService runs the full question path: retrieve, assemble context,
// generate, then bind citations. Every answer is grounded: it may only
// reference invoice ids present in the assembled context.
type AnswerService struct {
	retriever *Retriever
	assembler *ContextAssembler
	ai        AIService
	retryWait time.Duration
	log       *slog.Logger
}

func NewAnswerService(retriever *Retriever, assembler *ContextAssembler, ai AIService, log *slog.Logger) *AnswerService {
	return &AnswerService{
		retriever: retriever,
		assembler: assembler,
		ai:        ai,
		retryWait: time.Second,
		log:       log,
	}
}

// Ask answers a free-text question about stored invoices. With no matching
// invoices it answers directly without calling the model.
func (s *AnswerService) Ask(ctx context.Context, question string, topK int) (*types.CitedAnswer, error) {
	filters := DeriveFilters(question)
	candidates, err := s.retriever.Search(ctx, question, topK, filters)
	if err != nil {
		return nil, err
	}

	gctx := s.assembler.Assemble(candidates)
	if gctx.Empty() {
		return &types.CitedAnswer{Text: noMatchesAnswer, Citations: []types.Citation{}}, nil
	}

	messages := []types.Message{{
		Role:    "user",
		Content: fmt.Sprintf(answerPromptTemplate, gctx.Text, question),
	}}

	answer, err := s.generate(ctx, messages)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(answer) == "" {
		return &types.CitedAnswer{Text: emptyAnswerFallback, Citations: []types.Citation{}}, nil
	}

	if unknown := unknownInvoiceIDs(answer, gctx); len(unknown) > 0 {
		s.log.Warn("answer referenced invoices outside the context",
			"question", question,
			"unknown_ids", unknown,
		)
		messages = append(messages,
			types.Message{Role: "assistant", Content: answer},
			types.Message{Role: "user", Content: fmt.Sprintf(groundingRetryTemplate, strings.Join(unknown, ", "))},
		)
		answer, err = s.generate(ctx, messages)
		if err != nil {
			return nil, err
		}
		if unknown = unknownInvoiceIDs(answer, gctx); len(unknown) > 0 {
			return nil, &types.GroundingViolationError{UnknownIDs: unknown}
		}
	}

	return &types.CitedAnswer{
		Text:      answer,
		Citations: bindCitations(answer, gctx),
	}, nil
}

// generate calls the model, retrying once on transient failure. A provider
// that rejects a generation parameter is not transient and fails fast.
func (s *AnswerService) generate(ctx context.Context, messages []types.Message) (string, error) {
	answer, err := s.ai.Chat(ctx, invoiceSystemPrompt, messages)
	if err == nil {
		return answer, nil
	}

	var paramErr *types.UnsupportedGenerationParameterError
	if errors.As(err, &paramErr) {
		return "", paramErr
	}

	s.log.Warn("generation failed, retrying", "error", err)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(s.retryWait):
	}

	answer, err = s.ai.Chat(ctx, invoiceSystemPrompt, messages)
	if err != nil {
		if errors.As(err, &paramErr) {
			return "", paramErr
		}
		return "", &types.GenerationUnavailableError{Err: err}
	}
	return answer, nil
}

func unknownInvoiceIDs(answer string, gctx types.GroundingContext) []string {
	var unknown []string
	for _, id := range types.ExtractInvoiceIDs(answer) {
		if !gctx.Contains(id) {
			unknown = append(unknown, id)
		}
	}
	return unknown
}

// bindCitations builds one citation per distinct invoice id the answer
// mentions, in mention order, with values copied from the context records.
func bindCitations(answer string, gctx types.GroundingContext) []types.Citation {
	ids := types.ExtractInvoiceIDs(answer)
	citations := make([]types.Citation, 0, len(ids))
	for _, id := range ids {
		inv, ok := gctx.ByID(id)
		if !ok {
			continue
		}
		citation := types.Citation{InvoiceID: inv.InvoiceID, Amount: inv.Total}
		if inv.Vendor != nil {
			citation.Vendor = *inv.Vendor
		}
		if inv.InvoiceDate != nil {
			citation.Date = *inv.InvoiceDate
		}
		if inv.Currency != nil {
			citation.Currency = *inv.Currency
		}
		citations = append(citations, citation)
	}
	return citations
}
