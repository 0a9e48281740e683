package debate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/llm"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/llm/ratelimit"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/llm/retry"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/types"
)

type fakeProvider struct {
	mu       sync.Mutex
	failures int
	// empties 在 failures 之后返回空候选的次数
	empties  int
	calls    []time.Time
	requests []*llm.ChatRequest
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (p *fakeProvider) Completion(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, time.Now())
	p.requests = append(p.requests, req)
	if len(p.calls) <= p.failures {
		return nil, &llm.Error{Code: llm.ErrUpstreamError, Message: "502", Retryable: true, Provider: "fake"}
	}
	if len(p.calls) <= p.failures+p.empties {
		return &llm.ChatResponse{Provider: "fake"}, nil
	}
	return &llm.ChatResponse{
		Provider: "fake",
		Choices:  []llm.ChatChoice{{Message: llm.Message{Role: llm.RoleAssistant, Content: "  grounded reply  "}}},
	}, nil
}

func TestProviderGenerator_Generate(t *testing.T) {
	p := &fakeProvider{}
	g := NewProviderGenerator(p, GeneratorOptions{
		Speaker:     "DeepSeek",
		Model:       "deepseek-chat",
		Temperature: 0.7,
		Retry:       retry.FixedPolicy(3, 0),
	}, zap.NewNop())

	assert.Equal(t, "DeepSeek", g.Name())
	out, err := g.Generate(context.Background(), "challenge this")
	require.NoError(t, err)
	assert.Equal(t, "grounded reply", out)

	require.Len(t, p.requests, 1)
	req := p.requests[0]
	assert.Equal(t, "deepseek-chat", req.Model)
	assert.InDelta(t, 0.7, req.Temperature, 1e-6)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, llm.RoleUser, req.Messages[0].Role)
	assert.Equal(t, "challenge this", req.Messages[0].Content)
}

func TestProviderGenerator_DefaultsSpeakerToProviderName(t *testing.T) {
	g := NewProviderGenerator(&fakeProvider{}, GeneratorOptions{}, nil)
	assert.Equal(t, "fake", g.Name())
}

func TestProviderGenerator_RetriesAndPacesEveryAttempt(t *testing.T) {
	p := &fakeProvider{failures: 2}
	interval := 30 * time.Millisecond
	g := NewProviderGenerator(p, GeneratorOptions{
		Retry: retry.FixedPolicy(3, 0),
		Pacer: ratelimit.NewPacer("fake", interval, nil),
	}, nil)

	out, err := g.Generate(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "grounded reply", out)

	require.Len(t, p.calls, 3)
	for i := 1; i < len(p.calls); i++ {
		assert.GreaterOrEqual(t, p.calls[i].Sub(p.calls[i-1]), interval-5*time.Millisecond)
	}
}

func TestProviderGenerator_ExhaustedRetriesIsTransportError(t *testing.T) {
	p := &fakeProvider{failures: 10}
	g := NewProviderGenerator(p, GeneratorOptions{Retry: retry.FixedPolicy(3, time.Millisecond)}, nil)

	_, err := g.Generate(context.Background(), "x")
	require.Error(t, err)
	assert.Len(t, p.calls, 3)
	assert.True(t, types.IsErrorCode(err, types.ErrGenerationTransport))

	var llmErr *llm.Error
	assert.True(t, errors.As(err, &llmErr))
}

func TestProviderGenerator_EmptyCompletionIsRetried(t *testing.T) {
	p := &fakeProvider{empties: 1}
	g := NewProviderGenerator(p, GeneratorOptions{Retry: retry.FixedPolicy(3, 0)}, nil)

	out, err := g.Generate(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "grounded reply", out)
	assert.Len(t, p.calls, 2)
}

func TestProviderGenerator_AlwaysEmptyIsTransportError(t *testing.T) {
	p := &fakeProvider{empties: 10}
	g := NewProviderGenerator(p, GeneratorOptions{Retry: retry.FixedPolicy(3, 0)}, nil)

	_, err := g.Generate(context.Background(), "x")
	require.Error(t, err)
	assert.Len(t, p.calls, 3)
	assert.True(t, types.IsErrorCode(err, types.ErrGenerationTransport))
}
