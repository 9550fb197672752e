package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/tieubaoca/invoice-qa/config"
	"github.com/tieubaoca/invoice-qa/types"
)

const defaultGeminiModel = "gemini-1.5-flash"

// GeminiService generates answers through the Gemini API. Several API keys
// may be configured comma-separated; on a failed call the service rotates
// to the next key and retries once.
type GeminiService struct {
	apiKeys     []string
	currentKey  int
	client      *genai.Client
	modelName   string
	temperature float32
	maxTokens   int32
	mu          sync.Mutex
	log         *slog.Logger
}

func NewGeminiService(cfg config.GenerationConfig, log *slog.Logger) (*GeminiService, error) {
	var apiKeys []string
	for _, key := range strings.Split(cfg.GeminiKey, ",") {
		if key = strings.TrimSpace(key); key != "" {
			apiKeys = append(apiKeys, key)
		}
	}
	if len(apiKeys) == 0 {
		return nil, errors.New("no API keys provided")
	}

	service := &GeminiService{
		apiKeys:     apiKeys,
		currentKey:  0,
		modelName:   defaultGeminiModel,
		temperature: cfg.Temperature,
		maxTokens:   int32(cfg.MaxTokens),
		log:         log,
	}
	if err := service.initClient(); err != nil {
		return nil, err
	}
	return service, nil
}

func (s *GeminiService) initClient() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(s.apiKeys[s.currentKey]))
	if err != nil {
		return err
	}
	s.client = client
	return nil
}

func (s *GeminiService) rotateAPIKey() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentKey = (s.currentKey + 1) % len(s.apiKeys)
	if err := s.client.Close(); err != nil {
		return err
	}
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(s.apiKeys[s.currentKey]))
	if err != nil {
		return err
	}
	s.client = client
	s.log.Info("rotated gemini api key", "index", s.currentKey)
	return nil
}

func (s *GeminiService) Chat(ctx context.Context, systemPrompt string, messages []types.Message) (string, error) {
	resp, err := s.send(ctx, systemPrompt, messages)
	if err != nil {
		// Quota errors are per key; rotate and retry once.
		if rerr := s.rotateAPIKey(); rerr != nil {
			return "", rerr
		}
		resp, err = s.send(ctx, systemPrompt, messages)
		if err != nil {
			return "", err
		}
	}

	if len(resp.Candidates) == 0 {
		return "", errors.New("no response generated")
	}
	content := ""
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if text, ok := part.(genai.Text); ok {
					content += string(text)
				}
			}
		}
	}
	return content, nil
}

func (s *GeminiService) send(ctx context.Context, systemPrompt string, messages []types.Message) (*genai.GenerateContentResponse, error) {
	if len(messages) == 0 {
		return nil, errors.New("no messages to send")
	}

	s.mu.Lock()
	model := s.client.GenerativeModel(s.modelName)
	s.mu.Unlock()

	model.SetTemperature(s.temperature)
	model.SetMaxOutputTokens(s.maxTokens)
	if systemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}

	// All but the last message become chat history.
	history := make([]*genai.Content, 0, len(messages)-1)
	for _, msg := range messages[:len(messages)-1] {
		role := "user"
		if msg.Role == "assistant" {
			role = "model"
		}
		history = append(history, &genai.Content{
			Parts: []genai.Part{genai.Text(msg.Content)},
			Role:  role,
		})
	}
	chat := model.StartChat()
	chat.History = history

	return chat.SendMessage(ctx, genai.Text(messages[len(messages)-1].Content))
}
