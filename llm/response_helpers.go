package llm

import (
	"fmt"
	"strings"
)

// FirstChoice safely returns the first choice from a ChatResponse.
// Returns an error if the response is nil or has no choices.
func FirstChoice(resp *ChatResponse) (ChatChoice, error) {
	if resp == nil {
		return ChatChoice{}, fmt.Errorf("nil ChatResponse")
	}
	if len(resp.Choices) == 0 {
		return ChatChoice{}, fmt.Errorf("empty choices in ChatResponse (model returned no choices)")
	}
	return resp.Choices[0], nil
}

// FirstContent returns the trimmed text of the first choice.
// An empty completion is reported as an error; middleware.ResponseCheckMiddleware
// applies the same check inside the retry loop.
func FirstContent(resp *ChatResponse) (string, error) {
	choice, err := FirstChoice(resp)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty content in ChatResponse")
	}
	return text, nil
}

// UserPrompt builds a single-message request, the shape every debate call uses.
func UserPrompt(model, prompt string, temperature float32) *ChatRequest {
	return &ChatRequest{
		Model:       model,
		Messages:    []Message{{Role: RoleUser, Content: prompt}},
		Temperature: temperature,
	}
}
