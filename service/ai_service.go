package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tieubaoca/invoice-qa/config"
	"github.com/tieubaoca/invoice-qa/types"
)

// AIService is the text generation backend behind answers.
type AIService interface {
	Chat(ctx context.Context, systemPrompt string, messages []types.Message) (string, error)
}

// NewAIService builds the configured generation provider.
func NewAIService(cfg config.GenerationConfig, log *slog.Logger) (AIService, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIService(cfg, log), nil
	case "gemini":
		return NewGeminiService(cfg, log)
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}
