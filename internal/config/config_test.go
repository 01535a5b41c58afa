package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"AGENT_MAX_ATTEMPTS", "AGENT_HISTORY_WINDOW", "SANDBOX_TIMEOUT", "SANDBOX_MAX_VALUE_BYTES", "SANDBOX_MAX_DATABASE_MB", "SESSION_DRIVER", "LLM_PROVIDER"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg := Load()

	assert.Equal(t, 3, cfg.Agent.MaxAttempts)
	assert.Equal(t, 2, cfg.Agent.HistoryWindow)
	assert.Equal(t, 10*time.Second, cfg.Agent.SandboxTimeout)
	assert.Equal(t, 8<<20, cfg.Agent.SandboxMaxValueBytes)
	assert.Equal(t, 512, cfg.Agent.SandboxMaxDatabaseMB)
	assert.Equal(t, "memory", cfg.Session.Driver)
	assert.Equal(t, "ollama", cfg.Ai.LLMProvider)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("AGENT_MAX_ATTEMPTS", "5")
	t.Setenv("SANDBOX_TIMEOUT", "2500ms")
	t.Setenv("SANDBOX_MAX_DATABASE_MB", "64")
	t.Setenv("LLM_TIMEOUT", "30")
	t.Setenv("SESSION_DRIVER", "redis")
	t.Setenv("METRICS_ENABLED", "false")

	cfg := Load()

	assert.Equal(t, 5, cfg.Agent.MaxAttempts)
	assert.Equal(t, 2500*time.Millisecond, cfg.Agent.SandboxTimeout)
	assert.Equal(t, 64, cfg.Agent.SandboxMaxDatabaseMB)
	assert.Equal(t, 30*time.Second, cfg.Ai.LLMTimeout)
	assert.Equal(t, "redis", cfg.Session.Driver)
	assert.False(t, cfg.App.MetricsEnabled)
}

func TestConfig_Resolvers(t *testing.T) {
	cfg := &Config{
		Keys: APIKeys{GoogleGemini: "g", OpenAI: "o", HuggingFace: "h"},
		Ai:   AIConfig{LLMProvider: "ollama", OllamaBaseURL: "http://ollama"},
	}

	assert.Equal(t, "g", cfg.APIKeyFor("gemini"))
	assert.Equal(t, "h", cfg.APIKeyFor("huggingface"))
	assert.Equal(t, "", cfg.APIKeyFor("ollama"))
	assert.Equal(t, "http://ollama", cfg.LLMBaseURL())

	cfg.Ai.LLMProvider = "openai"
	assert.Equal(t, "", cfg.LLMBaseURL())
}
