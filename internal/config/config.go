package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App          AppConfig
	Collaborator CollaboratorConfig
	Ai           AIConfig
	Session      SessionConfig
	Notify       NotifyConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	HubLogFilePath     string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JwtSecret          string // empty disables auth
	BodyLimitMB        int
	OtelEnabled        bool
	OtelEndpoint       string
}

type CollaboratorConfig struct {
	Mode        string // "http" or "local"
	ChatURL     string
	DocumentURL string
	Timeout     time.Duration
}

type AIConfig struct {
	LLMProvider   string // "ollama", "upstage", "openai"
	LLMModel      string
	LLMBaseURL    string
	LLMAPIKey     string
	OllamaBaseURL string
	MaxExcerpts   int
}

type SessionConfig struct {
	TTL             time.Duration
	CleanupInterval time.Duration
	ProcessingDelay time.Duration
	MaxUploadBytes  int64
}

type NotifyConfig struct {
	SlackWebhookURL string
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "8000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			HubLogFilePath:     getEnv("HUB_LOG_FILE_PATH", "logs/hub.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
			JwtSecret:          getEnv("JWT_SECRET", ""),
			BodyLimitMB:        getEnvAsInt("BODY_LIMIT_MB", 10),
			OtelEnabled:        getEnvAsBool("OTEL_ENABLED", false),
			OtelEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
		Collaborator: CollaboratorConfig{
			Mode:        strings.ToLower(getEnv("COLLABORATOR_MODE", "local")),
			ChatURL:     getEnv("COLLABORATOR_CHAT_URL", "http://127.0.0.1:8000"),
			DocumentURL: getEnv("COLLABORATOR_DOCUMENT_URL", "http://127.0.0.1:8000"),
			Timeout:     getEnvAsDuration("COLLABORATOR_TIMEOUT", 60*time.Second),
		},
		Ai: AIConfig{
			LLMProvider:   getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:      getEnv("LLM_MODEL", "llama3"),
			LLMBaseURL:    getEnv("LLM_BASE_URL", ""),
			LLMAPIKey:     getEnv("LLM_API_KEY", ""),
			OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			MaxExcerpts:   getEnvAsInt("LLM_MAX_EXCERPTS", 4),
		},
		Session: SessionConfig{
			TTL:             getEnvAsDuration("SESSION_TTL", time.Hour),
			CleanupInterval: getEnvAsDuration("SESSION_CLEANUP_INTERVAL", 10*time.Minute),
			ProcessingDelay: getEnvAsDuration("SUGGESTION_PROCESSING_DELAY", 1500*time.Millisecond),
			MaxUploadBytes:  int64(getEnvAsInt("MAX_UPLOAD_BYTES", 10<<20)),
		},
		Notify: NotifyConfig{
			SlackWebhookURL: getEnv("SLACK_WEBHOOK_URL", ""),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("90s") or plain milliseconds ("1500")
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	if d, err := time.ParseDuration(strValue); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(strValue); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
