package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstChoice(t *testing.T) {
	tests := []struct {
		name    string
		resp    *ChatResponse
		wantErr bool
		errMsg  string
	}{
		{
			name:    "nil response",
			resp:    nil,
			wantErr: true,
			errMsg:  "nil ChatResponse",
		},
		{
			name:    "empty choices",
			resp:    &ChatResponse{Choices: []ChatChoice{}},
			wantErr: true,
			errMsg:  "empty choices",
		},
		{
			name: "single choice",
			resp: &ChatResponse{
				Choices: []ChatChoice{
					{Index: 0, Message: Message{Content: "hello"}},
				},
			},
			wantErr: false,
		},
		{
			name: "multiple choices returns first",
			resp: &ChatResponse{
				Choices: []ChatChoice{
					{Index: 0, Message: Message{Content: "first"}},
					{Index: 1, Message: Message{Content: "second"}},
				},
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			choice, err := FirstChoice(tt.resp)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.resp.Choices[0], choice)
			}
		})
	}
}

func TestFirstContent(t *testing.T) {
	t.Run("trims content", func(t *testing.T) {
		resp := &ChatResponse{Choices: []ChatChoice{{Message: Message{Content: "  Revenue of $100,000.\n"}}}}
		text, err := FirstContent(resp)
		require.NoError(t, err)
		assert.Equal(t, "Revenue of $100,000.", text)
	})

	t.Run("blank content is an error", func(t *testing.T) {
		resp := &ChatResponse{Choices: []ChatChoice{{Message: Message{Content: " \t "}}}}
		_, err := FirstContent(resp)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty content")
	})

	t.Run("propagates missing choices", func(t *testing.T) {
		_, err := FirstContent(nil)
		require.Error(t, err)
	})
}

func TestUserPrompt(t *testing.T) {
	req := UserPrompt("deepseek-chat", "challenge this", 0.7)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, RoleUser, req.Messages[0].Role)
	assert.Equal(t, "challenge this", req.Messages[0].Content)
	assert.Equal(t, "deepseek-chat", req.Model)
	assert.InDelta(t, 0.7, req.Temperature, 1e-6)
}
