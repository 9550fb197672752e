package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port       string           `mapstructure:"port"`
	LogLevel   string           `mapstructure:"log_level"`
	Store      StoreConfig      `mapstructure:"store"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Generation GenerationConfig `mapstructure:"generation"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
}

// StoreConfig selects and connects the search index backend.
type StoreConfig struct {
	Backend   string `mapstructure:"backend"` // memory, elasticsearch, weaviate or mongo
	Endpoint  string `mapstructure:"endpoint"`
	APIKey    string `mapstructure:"api_key"`
	IndexName string `mapstructure:"index_name"`
}

// ExtractionConfig selects and connects the field extraction service.
type ExtractionConfig struct {
	Backend      string        `mapstructure:"backend"` // file or docintel
	Endpoint     string        `mapstructure:"endpoint"`
	APIKey       string        `mapstructure:"api_key"`
	ModelID      string        `mapstructure:"model_id"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	RateLimit    float64       `mapstructure:"rate_limit"` // analyze requests per second
}

// GenerationConfig selects and connects the answer generation model.
type GenerationConfig struct {
	Provider         string        `mapstructure:"provider"` // openai or gemini
	OpenAIEndpoint   string        `mapstructure:"openai_endpoint"`
	OpenAIKey        string        `mapstructure:"openai_key"`
	OpenAIDeployment string        `mapstructure:"openai_deployment"`
	GeminiKey        string        `mapstructure:"gemini_key"`
	Temperature      float32       `mapstructure:"temperature"`
	MaxTokens        int           `mapstructure:"max_tokens"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// PipelineConfig tunes the normalize/retrieve/assemble pipeline.
type PipelineConfig struct {
	TopK                int     `mapstructure:"top_k"`
	ContextCharBudget   int     `mapstructure:"context_chars"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	BatchLimit          int     `mapstructure:"batch_limit"` // documents per ingest run, 0 means all
	ArtifactPath        string  `mapstructure:"artifact_path"`
}

func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.index_name", "invoices")
	v.SetDefault("extraction.backend", "file")
	v.SetDefault("extraction.model_id", "prebuilt-invoice")
	v.SetDefault("extraction.poll_interval", "2s")
	v.SetDefault("extraction.rate_limit", 2.0)
	v.SetDefault("generation.provider", "openai")
	v.SetDefault("generation.temperature", 0.3)
	v.SetDefault("generation.max_tokens", 2000)
	v.SetDefault("generation.timeout", "30s")
	v.SetDefault("pipeline.top_k", 3)
	v.SetDefault("pipeline.context_chars", 2000)
	v.SetDefault("pipeline.confidence_threshold", 0.5)
	v.SetDefault("pipeline.batch_limit", 5)
	v.SetDefault("pipeline.artifact_path", "extraction_invoices.jsonl")

	// Config file is optional; environment variables and defaults are
	// enough to run with the in-memory backend.
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	v.AutomaticEnv()

	// Bind environment variables
	v.BindEnv("store.endpoint", "SEARCH_ENDPOINT")
	v.BindEnv("store.api_key", "SEARCH_KEY")
	v.BindEnv("store.index_name", "SEARCH_INDEX_NAME")
	v.BindEnv("store.backend", "SEARCH_BACKEND")
	v.BindEnv("extraction.endpoint", "DOC_INTEL_ENDPOINT")
	v.BindEnv("extraction.api_key", "DOC_INTEL_KEY")
	v.BindEnv("generation.openai_endpoint", "OPENAI_ENDPOINT")
	v.BindEnv("generation.openai_key", "OPENAI_KEY")
	v.BindEnv("generation.openai_deployment", "OPENAI_DEPLOYMENT")
	v.BindEnv("generation.gemini_key", "GEMINI_API_KEY")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}
