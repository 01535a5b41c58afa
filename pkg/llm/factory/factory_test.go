package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"data-explorer-be/pkg/llm/gemini"
	"data-explorer-be/pkg/llm/ollama"
	"data-explorer-be/pkg/llm/openai"
)

func TestNewLLMProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ProviderConfig
		check   func(t *testing.T, p any)
		wantErr bool
	}{
		{
			name: "ollama default url",
			cfg:  ProviderConfig{Provider: "ollama", Model: "llama3"},
			check: func(t *testing.T, p any) {
				o, ok := p.(*ollama.OllamaProvider)
				require.True(t, ok)
				assert.Equal(t, ollama.DefaultBaseURL, o.BaseURL)
			},
		},
		{
			name:  "gemini",
			cfg:   ProviderConfig{Provider: "gemini", APIKey: "k"},
			check: func(t *testing.T, p any) { assert.IsType(t, &gemini.GeminiProvider{}, p) },
		},
		{
			name:  "openai",
			cfg:   ProviderConfig{Provider: "openai", APIKey: "k"},
			check: func(t *testing.T, p any) { assert.IsType(t, &openai.OpenAIProvider{}, p) },
		},
		{
			name:  "huggingface through openai client",
			cfg:   ProviderConfig{Provider: "huggingface", APIKey: "k", Model: "meta-llama/Llama-3.1-8B-Instruct"},
			check: func(t *testing.T, p any) { assert.IsType(t, &openai.OpenAIProvider{}, p) },
		},
		{name: "gemini without key", cfg: ProviderConfig{Provider: "gemini"}, wantErr: true},
		{name: "openai without key", cfg: ProviderConfig{Provider: "openai"}, wantErr: true},
		{name: "unknown", cfg: ProviderConfig{Provider: "bard"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewLLMProvider(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, p)
		})
	}
}
