// Package oracle 把配置装配成可运行的辩论引擎.
//
// 用法:
//
//	cfg, err := config.Load("config.yaml")
//	engine, err := oracle.New(cfg, oracle.WithLogger(logger), oracle.WithMetrics(collector))
//	result, err := engine.Run(ctx, &debate.Request{Facts: facts})
//
// 乐观方绑定 gemini, 怀疑方绑定 deepseek. 每个 provider 共享一个 Pacer,
// 同一进程内的所有会话 (以及校验器与委托合成器) 都经过同一个最小间隔闸门.
package oracle

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/agent/debate"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/agent/validator"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/config"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/internal/cache"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/internal/metrics"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/llm"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/llm/factory"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/llm/ratelimit"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/llm/retry"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/types"
)

const (
	// OptimistProvider 乐观方使用的 provider
	OptimistProvider = "gemini"
	// SkepticProvider 怀疑方使用的 provider
	SkepticProvider = "deepseek"
)

// speakers provider 名称到发言者展示名.
var speakers = map[string]string{
	"gemini":   "Gemini",
	"deepseek": "DeepSeek",
}

// Option 引擎可选项
type Option func(*options)

type options struct {
	logger    *zap.Logger
	registry  *llm.ProviderRegistry
	metrics   *metrics.Collector
	tracer    trace.Tracer
	cache     *cache.Manager
	observers []debate.TurnObserver
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.logger = l } }

// WithRegistry 使用已构建的 provider 注册表, 跳过凭据检查. 测试中用于注入假 provider.
func WithRegistry(r *llm.ProviderRegistry) Option { return func(o *options) { o.registry = r } }

// WithMetrics 设置 Prometheus 采集器
func WithMetrics(c *metrics.Collector) Option { return func(o *options) { o.metrics = c } }

// WithTracer 设置追踪器
func WithTracer(t trace.Tracer) Option { return func(o *options) { o.tracer = t } }

// WithCache 启用 Redis 缓存: 校验判定与委托合成的响应.
func WithCache(m *cache.Manager) Option { return func(o *options) { o.cache = m } }

// WithObserver 追加发言观察者
func WithObserver(obs debate.TurnObserver) Option {
	return func(o *options) { o.observers = append(o.observers, obs) }
}

// Engine 装配完成的辩论引擎, 可被多个会话并发使用.
type Engine struct {
	cfg          *config.Config
	registry     *llm.ProviderRegistry
	pacers       *ratelimit.Registry
	orchestrator *debate.Orchestrator
	opts         options
	logger       *zap.Logger
}

// New 按配置构建引擎. 配置非法或缺少凭据时返回 CONFIGURATION_ERROR.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, types.NewConfigurationError("config is required")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	registry := o.registry
	if registry == nil {
		if err := cfg.RequireCredentials(); err != nil {
			return nil, err
		}
		var err error
		registry, err = factory.NewRegistryFromConfig(cfg.Providers, o.logger)
		if err != nil {
			return nil, err
		}
	}

	e := &Engine{
		cfg:      cfg,
		registry: registry,
		pacers:   ratelimit.NewRegistry(o.logger),
		opts:     o,
		logger:   o.logger.With(zap.String("component", "engine")),
	}

	optimist, err := e.generator(OptimistProvider, nil, nil)
	if err != nil {
		return nil, err
	}
	skeptic, err := e.generator(SkepticProvider, nil, nil)
	if err != nil {
		return nil, err
	}

	orchOpts := []debate.Option{
		debate.WithConfig(debate.Config{
			MaxRounds:            cfg.Debate.MaxRounds,
			ConvergenceThreshold: cfg.Debate.ConvergenceThreshold,
			ValidationAttempts:   cfg.Debate.ValidationAttempts,
			FailurePolicy:        debate.FailurePolicy(cfg.Validator.FailurePolicy),
		}),
		debate.WithLogger(o.logger),
	}
	if o.metrics != nil {
		orchOpts = append(orchOpts, debate.WithRecorder(o.metrics))
	}
	if o.tracer != nil {
		orchOpts = append(orchOpts, debate.WithTracer(o.tracer))
	}
	for _, obs := range o.observers {
		orchOpts = append(orchOpts, debate.WithObserver(obs))
	}

	if cfg.Validator.Enabled {
		v, err := e.validator()
		if err != nil {
			return nil, err
		}
		orchOpts = append(orchOpts, debate.WithValidator(v))
	}

	synth, err := e.synthesizer()
	if err != nil {
		return nil, err
	}
	orchOpts = append(orchOpts, debate.WithSynthesizer(synth))

	e.orchestrator, err = debate.NewOrchestrator(optimist, skeptic, orchOpts...)
	if err != nil {
		return nil, err
	}

	e.logger.Info("debate engine ready",
		zap.Strings("providers", registry.List()),
		zap.Bool("validator", cfg.Validator.Enabled),
		zap.String("synthesizer", synth.Name()),
		zap.Bool("cache", o.cache != nil))
	return e, nil
}

// generator 为 provider 构建带 pacer 与重试的生成器. 同名 provider 共享同一个 pacer.
func (e *Engine) generator(name string, temperature *float32, respCache *cache.ResponseStore) (*debate.ProviderGenerator, error) {
	p, err := e.registry.Resolve(name)
	if err != nil {
		return nil, types.NewConfigurationError(err.Error())
	}
	pcfg, ok := e.cfg.Providers.Provider(name)
	if !ok {
		return nil, types.NewConfigurationError(fmt.Sprintf("provider %q has no configuration section", name))
	}

	policy := retry.FixedPolicy(e.cfg.Retry.MaxAttempts, e.cfg.Retry.Backoff)
	policy.ShouldRetry = retry.IsRetryableError
	if e.opts.metrics != nil {
		collector := e.opts.metrics
		policy.OnRetry = func(int, error, time.Duration) { collector.RecordLLMRetry(name) }
	}

	gopts := debate.GeneratorOptions{
		Speaker:     speakerName(name),
		Model:       pcfg.Model,
		Temperature: pcfg.Temperature,
		MaxTokens:   pcfg.MaxTokens,
		Timeout:     pcfg.Timeout,
		Pacer:       e.pacers.Get(name, pcfg.MinInterval),
		Retry:       policy,
		Tracer:      e.opts.tracer,
	}
	if temperature != nil {
		gopts.Temperature = *temperature
	}
	if e.opts.metrics != nil {
		gopts.Metrics = e.opts.metrics
	}
	if respCache != nil {
		gopts.Cache = respCache
	}
	return debate.NewProviderGenerator(p, gopts, e.opts.logger), nil
}

func (e *Engine) validator() (*validator.LLMValidator, error) {
	temp := e.cfg.Validator.Temperature
	judge, err := e.generator(e.cfg.Validator.Provider, &temp, nil)
	if err != nil {
		return nil, err
	}
	vopts := []validator.Option{validator.WithLogger(e.opts.logger)}
	if e.opts.cache != nil {
		var hits cache.HitRecorder
		if e.opts.metrics != nil {
			hits = e.opts.metrics
		}
		vopts = append(vopts, validator.WithCache(cache.NewVerdictStore(e.opts.cache, e.cfg.Cache.TTL, hits, e.opts.logger)))
	}
	return validator.New(judge, vopts...)
}

func (e *Engine) synthesizer() (debate.Synthesizer, error) {
	switch e.cfg.Debate.Synthesizer {
	case "", "keyword":
		return debate.NewKeywordSynthesizer(), nil
	case "delegated":
		var store *cache.ResponseStore
		if e.opts.cache != nil {
			var hits cache.HitRecorder
			if e.opts.metrics != nil {
				hits = e.opts.metrics
			}
			store = cache.NewResponseStore(e.opts.cache, e.cfg.Cache.TTL, hits, e.opts.logger)
		}
		g, err := e.generator(e.cfg.Debate.SynthesizerProvider, nil, store)
		if err != nil {
			return nil, err
		}
		return debate.NewDelegatedSynthesizer(g, e.opts.logger), nil
	default:
		return nil, types.NewConfigurationError(fmt.Sprintf("unknown synthesizer %q", e.cfg.Debate.Synthesizer))
	}
}

func speakerName(provider string) string {
	if s, ok := speakers[provider]; ok {
		return s
	}
	return provider
}

// Run 执行一场辩论. debate.session_timeout > 0 时为整个会话设置截止时间,
// 截止只在轮次边界生效.
func (e *Engine) Run(ctx context.Context, req *debate.Request) (*debate.DebateResult, error) {
	if e.cfg.Debate.SessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Debate.SessionTimeout)
		defer cancel()
	}
	return e.orchestrator.Run(ctx, req)
}

// Orchestrator 返回底层编排器
func (e *Engine) Orchestrator() *debate.Orchestrator { return e.orchestrator }

// Providers 返回 provider 注册表
func (e *Engine) Providers() *llm.ProviderRegistry { return e.registry }

// CheckProviders 对全部 provider 执行健康检查, 返回首个失败.
func (e *Engine) CheckProviders(ctx context.Context) error {
	for _, name := range e.registry.List() {
		p, _ := e.registry.Get(name)
		status, err := p.HealthCheck(ctx)
		if err != nil {
			return fmt.Errorf("provider %s: %w", name, err)
		}
		if status != nil && !status.Healthy {
			return fmt.Errorf("provider %s unhealthy", name)
		}
	}
	return nil
}
