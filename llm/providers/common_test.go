package providers

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/llm"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		msg           string
		expectedCode  llm.ErrorCode
		expectedRetry bool
	}{
		{"401 unauthorized", http.StatusUnauthorized, "Invalid API key", llm.ErrUnauthorized, false},
		{"403 forbidden", http.StatusForbidden, "Access denied", llm.ErrForbidden, false},
		{"429 rate limited", http.StatusTooManyRequests, "Resource exhausted", llm.ErrRateLimited, true},
		{"400 quota", http.StatusBadRequest, "Insufficient quota", llm.ErrQuotaExceeded, false},
		{"400 credit", http.StatusBadRequest, "No CREDIT left", llm.ErrQuotaExceeded, false},
		{"400 invalid", http.StatusBadRequest, "bad field", llm.ErrInvalidRequest, false},
		{"502", http.StatusBadGateway, "", llm.ErrUpstreamError, true},
		{"503", http.StatusServiceUnavailable, "", llm.ErrUpstreamError, true},
		{"504", http.StatusGatewayTimeout, "", llm.ErrUpstreamError, true},
		{"529 overloaded", 529, "overloaded", llm.ErrModelOverloaded, true},
		{"500", http.StatusInternalServerError, "", llm.ErrUpstreamError, true},
		{"418", http.StatusTeapot, "", llm.ErrUpstreamError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapHTTPError(tt.status, tt.msg, "gemini")
			assert.Equal(t, tt.expectedCode, err.Code)
			assert.Equal(t, tt.expectedRetry, err.Retryable)
			assert.Equal(t, tt.status, err.HTTPStatus)
			assert.Equal(t, "gemini", err.Provider)
			assert.Equal(t, tt.msg, err.Message)
		})
	}
}

func TestProperty_MapHTTPError_ServerErrorsRetryable(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		status := rapid.IntRange(500, 599).Draw(rt, "status")
		err := MapHTTPError(status, "upstream", "deepseek")
		if !err.Retryable {
			rt.Fatalf("status %d should be retryable", status)
		}
		if err.HTTPStatus != status {
			rt.Fatalf("status not preserved: %d", err.HTTPStatus)
		}
	})
}

func TestTransportError(t *testing.T) {
	err := TransportError(errors.New("dial tcp: i/o timeout"), "deepseek")
	assert.True(t, err.Retryable)
	assert.Equal(t, llm.ErrUpstreamError, err.Code)
	assert.Equal(t, http.StatusBadGateway, err.HTTPStatus)
}

func TestReadErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"openai style", `{"error":{"message":"Invalid key","type":"auth_error"}}`, "Invalid key (type: auth_error)"},
		{"google style", `{"error":{"code":429,"message":"Quota exceeded","status":"RESOURCE_EXHAUSTED"}}`, "Quota exceeded (status: RESOURCE_EXHAUSTED)"},
		{"message only", `{"error":{"message":"oops"}}`, "oops"},
		{"plain text", "Bad Gateway", "Bad Gateway"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReadErrorMessage(strings.NewReader(tt.body)))
		})
	}
}

func TestChooseModel(t *testing.T) {
	assert.Equal(t, "req", ChooseModel(&llm.ChatRequest{Model: "req"}, "cfg", "fallback"))
	assert.Equal(t, "cfg", ChooseModel(&llm.ChatRequest{}, "cfg", "fallback"))
	assert.Equal(t, "fallback", ChooseModel(&llm.ChatRequest{}, "", "fallback"))
	assert.Equal(t, "fallback", ChooseModel(nil, "", "fallback"))
}

func TestToLLMChatResponse(t *testing.T) {
	oa := OpenAICompatResponse{
		ID:    "chatcmpl-1",
		Model: "deepseek-chat",
		Choices: []OpenAICompatChoice{
			{Index: 0, FinishReason: "stop", Message: OpenAICompatMessage{Role: "assistant", Content: "Where in the report is this?"}},
		},
		Usage: &OpenAICompatUsage{PromptTokens: 120, CompletionTokens: 30, TotalTokens: 150},
	}

	resp := ToLLMChatResponse(oa, "deepseek")
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "deepseek", resp.Provider)
	assert.Equal(t, llm.RoleAssistant, resp.Choices[0].Message.Role)
	assert.Equal(t, "Where in the report is this?", resp.Choices[0].Message.Content)
	assert.Equal(t, 150, resp.Usage.TotalTokens)

	noUsage := ToLLMChatResponse(OpenAICompatResponse{}, "deepseek")
	assert.Zero(t, noUsage.Usage.TotalTokens)
	assert.Empty(t, noUsage.Choices)
}

func TestConvertMessagesToOpenAI(t *testing.T) {
	out := ConvertMessagesToOpenAI([]llm.Message{
		{Role: llm.RoleSystem, Content: "persona"},
		{Role: llm.RoleUser, Content: "prompt", Name: "orchestrator"},
	})
	require.Len(t, out, 2)
	assert.Equal(t, "system", out[0].Role)
	assert.Equal(t, "orchestrator", out[1].Name)
}
