package factory

import (
	"fmt"
	"time"

	"docassist-be/pkg/llm"
	"docassist-be/pkg/llm/ollama"
	"docassist-be/pkg/llm/openai"
)

// UpstageBaseURL is the OpenAI-compatible Upstage endpoint
const UpstageBaseURL = "https://api.upstage.ai/v1"

type Config struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
}

func NewLLMProvider(cfg Config) (llm.LLMProvider, error) {
	switch cfg.Provider {
	case "ollama":
		return ollama.NewOllamaProvider(cfg.BaseURL, cfg.Model, cfg.Timeout), nil
	case "upstage":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = UpstageBaseURL
		}
		model := cfg.Model
		if model == "" {
			model = "solar-pro"
		}
		return openai.NewProvider(cfg.APIKey, baseURL, model, cfg.Timeout), nil
	case "openai":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("openai provider requires a base url")
		}
		return openai.NewProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
