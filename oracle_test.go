package oracle

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/agent/debate"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/config"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/internal/cache"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/internal/metrics"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/llm"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/testutil"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/testutil/mocks"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/types"
)

const validVerdict = `{"is_valid": true, "issues": [], "feedback": ""}`

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Debate.MaxRounds = 3
	cfg.Retry.Backoff = 0
	cfg.Providers.Gemini.MinInterval = 0
	cfg.Providers.DeepSeek.MinInterval = 0
	return cfg
}

// promptOf 返回请求中的 user 消息
func promptOf(req *llm.ChatRequest) string {
	if len(req.Messages) == 0 {
		return ""
	}
	return req.Messages[len(req.Messages)-1].Content
}

func agreeableRegistry() (*llm.ProviderRegistry, *mocks.MockProvider, *mocks.MockProvider) {
	gemini := mocks.NewMockProvider("gemini").WithCompletionFunc(func(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		p := promptOf(req)
		switch {
		case strings.Contains(p, "REALISM VALIDATOR"):
			return mocks.Response("gemini", validVerdict, 50, 10), nil
		case strings.Contains(p, "FINAL CONSENSUS ROUND"):
			return mocks.Response("gemini", `{"summary":"Both accept thin margins.","agreements":["margins are thin"],"disagreements":["growth pace"],"verdict":"Hold","confidence":"Medium"}`, 50, 10), nil
		default:
			return mocks.Response("gemini", "I agree that margins are thin. Revenue growth of 8% is still credible.", 50, 10), nil
		}
	})
	deepseek := mocks.NewSuccessProvider("deepseek", "You're right, we agree on the revenue base. Costs remain a risk.")

	reg := llm.NewProviderRegistry()
	reg.Register("gemini", gemini)
	reg.Register("deepseek", deepseek)
	return reg, gemini, deepseek
}

func TestNew_RequiresCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.Providers.Gemini.APIKey = ""
	cfg.Providers.DeepSeek.APIKey = ""

	_, err := New(cfg)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrConfiguration))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Debate.MaxRounds = 0
	reg, _, _ := agreeableRegistry()

	_, err := New(cfg, WithRegistry(reg))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrConfiguration))

	_, err = New(nil)
	assert.Error(t, err)
}

func TestNew_MissingProvider(t *testing.T) {
	reg := llm.NewProviderRegistry()
	reg.Register("gemini", mocks.NewMockProvider("gemini"))

	_, err := New(testConfig(), WithRegistry(reg))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrConfiguration))
}

func TestEngine_RunConverges(t *testing.T) {
	reg, gemini, deepseek := agreeableRegistry()
	promReg := prometheus.NewRegistry()
	collector := metrics.NewCollector("oracle_test", promReg, zap.NewNop())

	cfg := testConfig()
	cfg.Debate.MaxRounds = 6

	var observed []debate.DebateTurn
	engine, err := New(cfg,
		WithRegistry(reg),
		WithMetrics(collector),
		WithObserver(debate.TurnObserverFunc(func(_ string, turn debate.DebateTurn) {
			observed = append(observed, turn)
		})),
	)
	require.NoError(t, err)

	result, err := engine.Run(testutil.TestContext(t), &debate.Request{Facts: testutil.SampleFacts()})
	require.NoError(t, err)

	// 第 3 轮起窗口内出现同意词, 连续两次检查后在第 4 轮收敛
	assert.True(t, result.Converged)
	require.NotNil(t, result.ConvergenceRound)
	assert.Equal(t, 4, *result.ConvergenceRound)
	assert.Equal(t, 4, result.TotalRounds)
	assert.NotEmpty(t, result.SessionID)
	testutil.AssertTranscriptWellFormed(t, result.Transcript)
	assert.Equal(t, len(result.Transcript), len(observed))
	assert.Equal(t, "Gemini", result.Transcript[0].Speaker)
	assert.Equal(t, "DeepSeek", result.Transcript[1].Speaker)

	// keyword 合成器只使用关键词结论
	assert.Contains(t, debate.KeywordVerdicts, result.FinalVerdict)
	assert.Positive(t, gemini.GetCallCount())
	assert.Positive(t, deepseek.GetCallCount())

	families, err := promReg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["oracle_test_debate_turns_total"])
	assert.True(t, names["oracle_test_debate_sessions_total"])
}

func TestEngine_DelegatedSynthesizer(t *testing.T) {
	cfg := testConfig()
	cfg.Debate.Synthesizer = "delegated"
	reg, _, _ := agreeableRegistry()

	engine, err := New(cfg, WithRegistry(reg))
	require.NoError(t, err)

	result, err := engine.Run(testutil.TestContext(t), &debate.Request{Facts: testutil.SampleFacts()})
	require.NoError(t, err)
	assert.Equal(t, "Hold", result.FinalVerdict)
	assert.Equal(t, debate.ConfidenceMedium, result.ConfidenceLevel)
	assert.Equal(t, []string{"margins are thin"}, result.KeyAgreements)
}

func TestEngine_VerdictCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cacheCfg := cache.DefaultConfig()
	cacheCfg.Addr = mr.Addr()
	cacheCfg.HealthCheckInterval = 0
	manager, err := cache.NewManager(cacheCfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	reg, gemini, _ := agreeableRegistry()
	engine, err := New(testConfig(), WithRegistry(reg), WithCache(manager))
	require.NoError(t, err)

	validatorCalls := func() int {
		n := 0
		for _, c := range gemini.GetCalls() {
			if strings.Contains(promptOf(c.Request), "REALISM VALIDATOR") {
				n++
			}
		}
		return n
	}

	ctx := testutil.TestContext(t)
	_, err = engine.Run(ctx, &debate.Request{Facts: testutil.SampleFacts()})
	require.NoError(t, err)
	first := validatorCalls()
	require.Positive(t, first)

	// 同样的发言与事实命中缓存, 不再调用裁判
	_, err = engine.Run(ctx, &debate.Request{Facts: testutil.SampleFacts()})
	require.NoError(t, err)
	assert.Equal(t, first, validatorCalls())
}

func TestEngine_GenerationFailure(t *testing.T) {
	reg := llm.NewProviderRegistry()
	reg.Register("gemini", mocks.NewErrorProvider("gemini", errors.New("upstream down")))
	reg.Register("deepseek", mocks.NewSuccessProvider("deepseek", "Costs remain a risk."))

	cfg := testConfig()
	cfg.Retry.MaxAttempts = 2
	engine, err := New(cfg, WithRegistry(reg))
	require.NoError(t, err)

	result, err := engine.Run(testutil.TestContext(t), &debate.Request{Facts: testutil.SampleFacts()})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, types.IsErrorCode(err, types.ErrSessionFailure))
}

func TestEngine_RetryClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCalls int
	}{
		{"transient upstream error", &llm.Error{Code: llm.ErrUpstreamError, Message: "503", Retryable: true}, 3},
		{"unclassified network error", errors.New("connection reset by peer"), 3},
		{"bad credentials", &llm.Error{Code: llm.ErrUnauthorized, Message: "401"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gemini := mocks.NewErrorProvider("gemini", tt.err)
			reg := llm.NewProviderRegistry()
			reg.Register("gemini", gemini)
			reg.Register("deepseek", mocks.NewSuccessProvider("deepseek", "Costs remain a risk."))

			cfg := testConfig()
			cfg.Validator.Enabled = false
			engine, err := New(cfg, WithRegistry(reg))
			require.NoError(t, err)

			_, err = engine.Run(testutil.TestContext(t), &debate.Request{Facts: testutil.SampleFacts()})
			require.Error(t, err)
			assert.True(t, types.IsErrorCode(err, types.ErrSessionFailure))
			assert.Equal(t, tt.wantCalls, gemini.GetCallCount())
		})
	}
}

func TestEngine_InvalidFacts(t *testing.T) {
	reg, _, _ := agreeableRegistry()
	engine, err := New(testConfig(), WithRegistry(reg))
	require.NoError(t, err)

	_, err = engine.Run(context.Background(), &debate.Request{Facts: &debate.Facts{}})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidFacts))
}

func TestEngine_CheckProviders(t *testing.T) {
	reg, _, _ := agreeableRegistry()
	engine, err := New(testConfig(), WithRegistry(reg))
	require.NoError(t, err)
	assert.NoError(t, engine.CheckProviders(context.Background()))

	reg.Register("deepseek", mocks.NewMockProvider("deepseek").WithUnhealthy())
	err = engine.CheckProviders(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deepseek")
}

func TestEngine_SessionTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Debate.SessionTimeout = 50 * time.Millisecond
	cfg.Debate.MaxRounds = 10
	cfg.Validator.Enabled = false

	reg := llm.NewProviderRegistry()
	reg.Register("gemini", mocks.NewSuccessProvider("gemini", "Growth is credible.").WithDelay(30*time.Millisecond))
	reg.Register("deepseek", mocks.NewSuccessProvider("deepseek", "Costs remain a risk.").WithDelay(30*time.Millisecond))

	engine, err := New(cfg, WithRegistry(reg))
	require.NoError(t, err)

	_, err = engine.Run(context.Background(), &debate.Request{Facts: testutil.SampleFacts()})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrSessionFailure))
}
