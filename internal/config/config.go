package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Keys     APIKeys
	Ai       AIConfig
	Agent    AgentConfig
	Session  SessionConfig
	Events   EventsConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	MaxUploadBytes     int
	MetricsEnabled     bool
	OtelEnabled        bool
	OtelEndpoint       string
}

type DatabaseConfig struct {
	Connection string
}

type APIKeys struct {
	GoogleGemini string
	OpenAI       string
	HuggingFace  string
	JWTSecret    string // empty disables auth
}

type AIConfig struct {
	LLMProvider   string // "ollama", "gemini", "openai" or "huggingface"
	LLMModel      string
	LLMBaseURL    string
	OllamaBaseURL string
	LLMTimeout    time.Duration
}

type AgentConfig struct {
	MaxAttempts          int
	HistoryWindow        int
	InsightRows          int
	SandboxTimeout       time.Duration
	SandboxMaxResultRows int
	SandboxMaxValueBytes int
	SandboxMaxDatabaseMB int
}

type SessionConfig struct {
	Driver string // "memory", "redis" or "postgres"
	TTL    time.Duration
}

type EventsConfig struct {
	Broker string // "memory" or "nats"
	Topic  string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			MaxUploadBytes:     getEnvAsInt("MAX_UPLOAD_BYTES", 50*1024*1024),
			MetricsEnabled:     getEnvAsBool("METRICS_ENABLED", true),
			OtelEnabled:        getEnvAsBool("OTEL_ENABLED", false),
			OtelEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Keys: APIKeys{
			GoogleGemini: getEnv("GOOGLE_GEMINI_API_KEY", ""),
			OpenAI:       getEnv("OPENAI_API_KEY", ""),
			HuggingFace:  getEnv("HUGGINGFACE_API_KEY", ""),
			JWTSecret:    getEnv("JWT_SECRET", ""),
		},
		Ai: AIConfig{
			LLMProvider:   getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:      getEnv("LLM_MODEL", "llama3"),
			LLMBaseURL:    getEnv("LLM_BASE_URL", ""),
			OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			LLMTimeout:    getEnvAsDuration("LLM_TIMEOUT", 60*time.Second),
		},
		Agent: AgentConfig{
			MaxAttempts:          getEnvAsInt("AGENT_MAX_ATTEMPTS", 3),
			HistoryWindow:        getEnvAsInt("AGENT_HISTORY_WINDOW", 2),
			InsightRows:          getEnvAsInt("AGENT_INSIGHT_ROWS", 5),
			SandboxTimeout:       getEnvAsDuration("SANDBOX_TIMEOUT", 10*time.Second),
			SandboxMaxResultRows: getEnvAsInt("SANDBOX_MAX_RESULT_ROWS", 100000),
			SandboxMaxValueBytes: getEnvAsInt("SANDBOX_MAX_VALUE_BYTES", 8<<20),
			SandboxMaxDatabaseMB: getEnvAsInt("SANDBOX_MAX_DATABASE_MB", 512),
		},
		Session: SessionConfig{
			Driver: getEnv("SESSION_DRIVER", "memory"),
			TTL:    getEnvAsDuration("SESSION_TTL", 2*time.Hour),
		},
		Events: EventsConfig{
			Broker: getEnv("EVENT_BROKER", "memory"),
			Topic:  getEnv("EVENT_TOPIC", "explorer_events"),
		},
	}
}

// APIKeyFor returns the key the configured provider authenticates with.
func (c *Config) APIKeyFor(provider string) string {
	switch provider {
	case "gemini":
		return c.Keys.GoogleGemini
	case "openai":
		return c.Keys.OpenAI
	case "huggingface":
		return c.Keys.HuggingFace
	}
	return ""
}

// LLMBaseURL resolves the endpoint, falling back to the Ollama URL for Ollama.
func (c *Config) LLMBaseURL() string {
	if c.Ai.LLMBaseURL != "" {
		return c.Ai.LLMBaseURL
	}
	if c.Ai.LLMProvider == "ollama" {
		return c.Ai.OllamaBaseURL
	}
	return ""
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

// getEnvAsDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	if secs, err := strconv.Atoi(strValue); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
