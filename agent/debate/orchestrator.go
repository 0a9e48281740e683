package debate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/types"
)

// Config 编排器配置.
type Config struct {
	MaxRounds            int           `yaml:"max_rounds" json:"max_rounds"`
	ConvergenceThreshold int           `yaml:"convergence_threshold" json:"convergence_threshold"`
	ValidationAttempts   int           `yaml:"validation_attempts" json:"validation_attempts"`
	FailurePolicy        FailurePolicy `yaml:"failure_policy" json:"failure_policy"`
}

// DefaultConfig 默认 10 轮, 连续 2 轮收敛信号即停止, 每轮乐观方最多 3 次生成.
func DefaultConfig() Config {
	return Config{
		MaxRounds:            10,
		ConvergenceThreshold: 2,
		ValidationAttempts:   3,
		FailurePolicy:        FailOpen,
	}
}

// Validate 校验配置, 失败返回 CONFIGURATION_ERROR.
func (c Config) Validate() error {
	switch {
	case c.MaxRounds < 1:
		return types.NewConfigurationError("max_rounds must be >= 1")
	case c.ConvergenceThreshold < 1:
		return types.NewConfigurationError("convergence_threshold must be >= 1")
	case c.ValidationAttempts < 1:
		return types.NewConfigurationError("validation_attempts must be >= 1")
	case !c.FailurePolicy.Valid():
		return types.NewConfigurationError(fmt.Sprintf("unknown validator failure policy %q", c.FailurePolicy))
	}
	return nil
}

// Option 编排器可选项.
type Option func(*Orchestrator)

// WithConfig 覆盖默认配置.
func WithConfig(cfg Config) Option { return func(o *Orchestrator) { o.cfg = cfg } }

// WithValidator 设置乐观方发言的校验器, 默认全部通过.
func WithValidator(v Validator) Option { return func(o *Orchestrator) { o.validator = v } }

// WithSynthesizer 设置共识合成策略, 默认关键词合成.
func WithSynthesizer(s Synthesizer) Option { return func(o *Orchestrator) { o.synthesizer = s } }

// WithObserver 追加发言观察者.
func WithObserver(obs TurnObserver) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// WithRecorder 设置指标记录器.
func WithRecorder(r Recorder) Option { return func(o *Orchestrator) { o.recorder = r } }

// WithTracer 设置追踪器.
func WithTracer(t trace.Tracer) Option { return func(o *Orchestrator) { o.tracer = t } }

// WithLogger 设置日志.
func WithLogger(l *zap.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// Orchestrator 驱动乐观方与怀疑方的多轮辩论. 单个会话内的调用严格串行.
// 会话状态按 Run 独立, 可并发调用 Run; 注入的生成器若共享同一 provider 的 pacer,
// 并发会话的调用会在该 pacer 上排队.
type Orchestrator struct {
	optimist    Generator
	skeptic     Generator
	validator   Validator
	synthesizer Synthesizer
	observers   []TurnObserver
	recorder    Recorder
	tracer      trace.Tracer
	cfg         Config
	logger      *zap.Logger
}

// NewOrchestrator 绑定两个角色的生成器. 缺少任一生成器或配置非法时返回 CONFIGURATION_ERROR.
func NewOrchestrator(optimist, skeptic Generator, opts ...Option) (*Orchestrator, error) {
	if optimist == nil || skeptic == nil {
		return nil, types.NewConfigurationError("both optimist and skeptic generators are required")
	}
	o := &Orchestrator{
		optimist:    optimist,
		skeptic:     skeptic,
		validator:   AcceptAll,
		synthesizer: NewKeywordSynthesizer(),
		recorder:    nopRecorder{},
		cfg:         DefaultConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	o.logger = o.logger.With(zap.String("component", "debate"))
	if o.tracer == nil {
		o.tracer = noop.NewTracerProvider().Tracer("debate")
	}
	if o.validator == nil {
		o.validator = AcceptAll
	}
	if o.synthesizer == nil {
		o.synthesizer = NewKeywordSynthesizer()
	}
	if o.recorder == nil {
		o.recorder = nopRecorder{}
	}
	if o.cfg.FailurePolicy == "" {
		o.cfg.FailurePolicy = FailOpen
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Config 返回生效的配置.
func (o *Orchestrator) Config() Config { return o.cfg }

// Request 一次辩论请求. 零值字段使用编排器配置.
type Request struct {
	SessionID            string
	Facts                *Facts
	MaxRounds            int
	ConvergenceThreshold int
}

type phase int

const (
	phaseOpening phase = iota
	phaseChallenge
	phaseResponse
	phaseConvergenceCheck
	phaseCounter
	phaseSynthesize
	phaseDone
)

func (p phase) String() string {
	return [...]string{"opening", "challenge", "response", "convergence_check", "counter", "synthesize", "done"}[p]
}

// sessionState 在各步骤间传递的会话状态.
type sessionState struct {
	id                 string
	facts              *Facts
	maxRounds          int
	threshold          int
	validationAttempts int

	phase      phase
	round      int
	transcript []DebateTurn
	// lastSkeptic 是下一轮乐观方要回应的质询.
	lastSkeptic string
	streak      int
	converged   bool
	convergedAt *int
	consensus   Consensus
	startedAt   time.Time
}

func (o *Orchestrator) newSession(req *Request) *sessionState {
	st := &sessionState{
		id:                 req.SessionID,
		facts:              req.Facts,
		maxRounds:          o.cfg.MaxRounds,
		threshold:          o.cfg.ConvergenceThreshold,
		validationAttempts: o.cfg.ValidationAttempts,
		phase:              phaseOpening,
		round:              1,
		startedAt:          time.Now(),
	}
	if st.id == "" {
		st.id = uuid.NewString()
	}
	if req.MaxRounds > 0 {
		st.maxRounds = req.MaxRounds
	}
	if req.ConvergenceThreshold > 0 {
		st.threshold = req.ConvergenceThreshold
	}
	return st
}

// Run 执行完整辩论并返回结果. 任何生成失败 (重试耗尽) 或取消都返回 SESSION_FAILURE, 不返回部分结果.
// 取消只在轮次边界生效: 一轮开始后的生成调用不受 ctx 取消影响.
func (o *Orchestrator) Run(ctx context.Context, req *Request) (*DebateResult, error) {
	if req == nil {
		return nil, types.NewError(types.ErrInvalidFacts, "debate request is required")
	}
	if err := req.Facts.Validate(); err != nil {
		return nil, err
	}
	st := o.newSession(req)
	log := o.logger.With(zap.String("session_id", st.id))

	ctx, span := o.tracer.Start(ctx, "debate.session", trace.WithAttributes(
		attribute.String("debate.session_id", st.id),
		attribute.Int("debate.max_rounds", st.maxRounds),
		attribute.Int("debate.convergence_threshold", st.threshold),
	))
	defer span.End()

	log.Info("debate started",
		zap.Int("max_rounds", st.maxRounds),
		zap.Int("convergence_threshold", st.threshold),
		zap.String("optimist", o.optimist.Name()),
		zap.String("skeptic", o.skeptic.Name()),
		zap.String("synthesizer", o.synthesizer.Name()))

	result, err := o.loop(ctx, st)
	duration := time.Since(st.startedAt)
	o.recorder.RecordSession(result, duration, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("debate failed", zap.Int("round", st.round), zap.String("phase", st.phase.String()), zap.Error(err))
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("debate.total_rounds", result.TotalRounds),
		attribute.Bool("debate.converged", result.Converged),
		attribute.String("debate.verdict", result.FinalVerdict),
	)
	log.Info("debate finished",
		zap.Int("total_rounds", result.TotalRounds),
		zap.Bool("converged", result.Converged),
		zap.String("verdict", result.FinalVerdict),
		zap.String("confidence", string(result.ConfidenceLevel)),
		zap.Duration("duration", duration))
	return result, nil
}

// loop 按状态机推进直到 phaseDone.
func (o *Orchestrator) loop(ctx context.Context, st *sessionState) (*DebateResult, error) {
	// 轮次内的调用使用不可取消的上下文, 取消只在边界检查.
	inner := context.WithoutCancel(ctx)
	var roundSpan trace.Span

	for st.phase != phaseDone {
		if st.phase == phaseOpening || st.phase == phaseResponse || st.phase == phaseSynthesize {
			if roundSpan != nil {
				roundSpan.End()
				roundSpan = nil
			}
			if err := ctx.Err(); err != nil {
				return nil, types.NewSessionFailure("debate cancelled", err)
			}
			if st.phase != phaseSynthesize {
				var roundCtx context.Context
				roundCtx, roundSpan = o.tracer.Start(ctx, "debate.round", trace.WithAttributes(attribute.Int("debate.round", st.round)))
				inner = context.WithoutCancel(roundCtx)
			}
		}

		var err error
		switch st.phase {
		case phaseOpening:
			err = o.opening(inner, st)
		case phaseChallenge:
			err = o.challenge(inner, st)
		case phaseResponse:
			err = o.response(inner, st)
		case phaseConvergenceCheck:
			o.checkConvergence(st)
		case phaseCounter:
			err = o.counter(inner, st)
		case phaseSynthesize:
			o.synthesize(inner, st)
		}
		if err != nil {
			if roundSpan != nil {
				roundSpan.RecordError(err)
				roundSpan.End()
			}
			return nil, types.NewSessionFailure(
				fmt.Sprintf("round %d %s generation failed", st.round, st.phase), err)
		}
	}
	return st.result(), nil
}

func (o *Orchestrator) opening(ctx context.Context, st *sessionState) error {
	text, err := o.generateValidated(ctx, st, OpeningPrompt(st.facts))
	if err != nil {
		return err
	}
	o.appendTurn(st, RoleOptimist, o.optimist.Name(), text)
	st.phase = phaseChallenge
	return nil
}

func (o *Orchestrator) challenge(ctx context.Context, st *sessionState) error {
	text, err := o.skeptic.Generate(ctx, ChallengePrompt(st.facts, st.transcript[len(st.transcript)-1].Message))
	if err != nil {
		return err
	}
	o.appendTurn(st, RoleSkeptic, o.skeptic.Name(), text)
	st.lastSkeptic = text
	o.advanceRound(st)
	return nil
}

func (o *Orchestrator) response(ctx context.Context, st *sessionState) error {
	previous := Condense(st.transcript, RoleOptimist)
	text, err := o.generateValidated(ctx, st, ResponsePrompt(st.facts, st.round, st.lastSkeptic, previous))
	if err != nil {
		return err
	}
	o.appendTurn(st, RoleOptimist, o.optimist.Name(), text)
	st.phase = phaseConvergenceCheck
	return nil
}

func (o *Orchestrator) checkConvergence(st *sessionState) {
	hits := CountAgreementMarkers(st.transcript)
	if hits >= 2 {
		st.streak++
	} else {
		st.streak = 0
	}
	o.logger.Debug("convergence check",
		zap.String("session_id", st.id),
		zap.Int("round", st.round),
		zap.Int("markers", hits),
		zap.Int("streak", st.streak))

	if st.streak >= st.threshold {
		round := st.round
		st.converged = true
		st.convergedAt = &round
		st.phase = phaseSynthesize
		return
	}
	st.phase = phaseCounter
}

func (o *Orchestrator) counter(ctx context.Context, st *sessionState) error {
	previous := Condense(st.transcript, RoleSkeptic)
	text, err := o.skeptic.Generate(ctx, CounterPrompt(st.facts, st.round, st.transcript[len(st.transcript)-1].Message, previous))
	if err != nil {
		return err
	}
	o.appendTurn(st, RoleSkeptic, o.skeptic.Name(), text)
	st.lastSkeptic = text
	o.advanceRound(st)
	return nil
}

// advanceRound 在怀疑方发言后进入下一轮或合成.
func (o *Orchestrator) advanceRound(st *sessionState) {
	if st.round >= st.maxRounds {
		st.phase = phaseSynthesize
		return
	}
	st.round++
	st.phase = phaseResponse
}

func (o *Orchestrator) synthesize(ctx context.Context, st *sessionState) {
	ctx, span := o.tracer.Start(ctx, "debate.synthesize", trace.WithAttributes(attribute.String("debate.synthesizer", o.synthesizer.Name())))
	defer span.End()

	c := o.synthesizer.Synthesize(ctx, st.transcript, st.converged)
	st.consensus = completeConsensus(c)
	st.phase = phaseDone
}

// completeConsensus 保证没有空字段.
func completeConsensus(c Consensus) Consensus {
	fb := FallbackConsensus()
	if c.Summary == "" {
		c.Summary = fb.Summary
	}
	if c.Verdict == "" {
		c.Verdict = fb.Verdict
	}
	if !c.Confidence.Valid() {
		c.Confidence = fb.Confidence
	}
	if c.Agreements == nil {
		c.Agreements = []string{}
	}
	if c.Disagreements == nil {
		c.Disagreements = []string{}
	}
	return c
}

func (o *Orchestrator) appendTurn(st *sessionState, role Role, speaker, message string) {
	turn := DebateTurn{
		RoundNumber: st.round,
		Speaker:     speaker,
		Role:        role,
		Message:     message,
		Timestamp:   time.Now(),
		TopicFocus:  topicFocus(role, st.round),
	}
	st.transcript = append(st.transcript, turn)
	o.recorder.RecordTurn(role, st.round)
	for _, obs := range o.observers {
		obs.OnTurn(st.id, turn)
	}
}

func (st *sessionState) result() *DebateResult {
	transcript := make([]DebateTurn, len(st.transcript))
	copy(transcript, st.transcript)
	return &DebateResult{
		SessionID:        st.id,
		Transcript:       transcript,
		TotalRounds:      CountRounds(transcript),
		Converged:        st.converged,
		ConvergenceRound: st.convergedAt,
		ConsensusSummary: st.consensus.Summary,
		KeyAgreements:    st.consensus.Agreements,
		KeyDisagreements: st.consensus.Disagreements,
		FinalVerdict:     st.consensus.Verdict,
		ConfidenceLevel:  st.consensus.Confidence,
		StartedAt:        st.startedAt,
		FinishedAt:       time.Now(),
	}
}
