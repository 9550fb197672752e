package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/tieubaoca/invoice-qa/config"
	"github.com/tieubaoca/invoice-qa/types"
)

type OpenAIService struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	log         *slog.Logger
}

func NewOpenAIService(cfg config.GenerationConfig, log *slog.Logger) *OpenAIService {
	clientConfig := openai.DefaultConfig(cfg.OpenAIKey)
	if cfg.OpenAIEndpoint != "" {
		if strings.Contains(cfg.OpenAIEndpoint, ".openai.azure.com") {
			clientConfig = openai.DefaultAzureConfig(cfg.OpenAIKey, cfg.OpenAIEndpoint)
		} else {
			clientConfig.BaseURL = cfg.OpenAIEndpoint // any OpenAI-compatible server
		}
	}
	model := cfg.OpenAIDeployment
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIService{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		log:         log,
	}
}

func (s *OpenAIService) Chat(ctx context.Context, systemPrompt string, messages []types.Message) (string, error) {
	openaiMessages := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if systemPrompt != "" {
		openaiMessages = append(openaiMessages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	for _, msg := range messages {
		role := msg.Role
		if role == "" {
			role = openai.ChatMessageRoleUser
		}
		openaiMessages = append(openaiMessages, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}

	req := openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    openaiMessages,
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	}
	resp, err := s.client.CreateChatCompletion(ctx, req)
	if isUnsupportedParameter(err, "max_tokens") {
		// Newer completion models reject max_tokens and want
		// max_completion_tokens instead.
		s.log.Debug("retrying with max_completion_tokens", "model", s.model)
		req.MaxTokens = 0
		req.MaxCompletionTokens = s.maxTokens
		resp, err = s.client.CreateChatCompletion(ctx, req)
		if isUnsupportedParameter(err, "max_completion_tokens") {
			return "", &types.UnsupportedGenerationParameterError{Param: "max_completion_tokens", Err: err}
		}
	}
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no response generated")
	}
	return resp.Choices[0].Message.Content, nil
}

func isUnsupportedParameter(err error, param string) bool {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if code, ok := apiErr.Code.(string); ok && code == "unsupported_parameter" {
		return apiErr.Param == nil || *apiErr.Param == param
	}
	return apiErr.HTTPStatusCode == http.StatusBadRequest &&
		apiErr.Param != nil && *apiErr.Param == param
}
