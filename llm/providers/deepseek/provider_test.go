package deepseek

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/llm"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/llm/providers"
)

func newServer(t *testing.T, seen *providers.OpenAICompatRequest) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		_ = json.NewEncoder(w).Encode(providers.OpenAICompatResponse{
			ID:    "ds-1",
			Model: seen.Model,
			Choices: []providers.OpenAICompatChoice{{
				Message: providers.OpenAICompatMessage{Role: "assistant", Content: "You claim margin expansion, but OpEx is unchanged."},
			}},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNewDeepSeekProvider_Defaults(t *testing.T) {
	p := NewDeepSeekProvider(providers.DeepSeekConfig{}, nil)
	assert.Equal(t, "deepseek", p.Name())
	assert.Equal(t, DefaultBaseURL, p.Cfg.BaseURL)
	assert.Equal(t, "deepseek-chat", p.Cfg.FallbackModel)
	assert.Equal(t, "/chat/completions", p.Cfg.EndpointPath)
	assert.Equal(t, "/models", p.Cfg.ModelsEndpoint)
}

func TestDeepSeekProvider_Completion(t *testing.T) {
	var seen providers.OpenAICompatRequest
	server := newServer(t, &seen)

	p := NewDeepSeekProvider(providers.DeepSeekConfig{
		BaseProviderConfig: providers.BaseProviderConfig{APIKey: "sk-test", BaseURL: server.URL},
	}, zap.NewNop())

	resp, err := p.Completion(context.Background(), llm.UserPrompt("", "challenge the optimist", 0.7))
	require.NoError(t, err)
	assert.Equal(t, "deepseek-chat", seen.Model)
	assert.Equal(t, "deepseek", resp.Provider)

	text, err := llm.FirstContent(resp)
	require.NoError(t, err)
	assert.Contains(t, text, "margin expansion")
}

func TestDeepSeekProvider_ReasoningModeSelectsReasoner(t *testing.T) {
	tests := []struct {
		name      string
		model     string
		mode      string
		wantModel string
	}{
		{"thinking without model", "", "thinking", "deepseek-reasoner"},
		{"extended without model", "", "extended", "deepseek-reasoner"},
		{"explicit model wins", "deepseek-chat", "thinking", "deepseek-chat"},
		{"no mode", "", "", "deepseek-chat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen providers.OpenAICompatRequest
			server := newServer(t, &seen)
			p := NewDeepSeekProvider(providers.DeepSeekConfig{
				BaseProviderConfig: providers.BaseProviderConfig{APIKey: "sk-test", BaseURL: server.URL},
			}, nil)

			req := llm.UserPrompt(tt.model, "p", 0.7)
			if tt.mode != "" {
				req.Metadata = map[string]string{"reasoning_mode": tt.mode}
			}
			_, err := p.Completion(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantModel, seen.Model)
		})
	}
}
