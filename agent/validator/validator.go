// Package validator 实现乐观方发言的事实校验: 由一个 LLM 裁判对照财报与模拟结果给出判定.
package validator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/agent/debate"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/types"
)

// VerdictCache 缓存相同发言与事实的判定结果.
type VerdictCache interface {
	Get(ctx context.Context, key string) (debate.ValidationResult, bool)
	Set(ctx context.Context, key string, result debate.ValidationResult)
}

// Option 校验器可选项.
type Option func(*LLMValidator)

// WithCache 设置判定缓存.
func WithCache(c VerdictCache) Option { return func(v *LLMValidator) { v.cache = c } }

// WithLogger 设置日志.
func WithLogger(l *zap.Logger) Option { return func(v *LLMValidator) { v.logger = l } }

// LLMValidator 通过生成器执行校验. 生成失败或输出无法解析时返回错误, 由编排器的 FailurePolicy 决定结果.
type LLMValidator struct {
	judge  debate.Generator
	cache  VerdictCache
	logger *zap.Logger
}

// New 创建校验器. judge 为空时返回 CONFIGURATION_ERROR.
func New(judge debate.Generator, opts ...Option) (*LLMValidator, error) {
	if judge == nil {
		return nil, types.NewConfigurationError("validator requires a generator")
	}
	v := &LLMValidator{judge: judge}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		v.logger = zap.NewNop()
	}
	v.logger = v.logger.With(zap.String("component", "validator"))
	return v, nil
}

// Validate 实现 debate.Validator.
func (v *LLMValidator) Validate(ctx context.Context, statement string, facts *debate.Facts) (debate.ValidationResult, error) {
	key := ""
	if v.cache != nil {
		key = CacheKey(statement, facts)
		if cached, ok := v.cache.Get(ctx, key); ok {
			v.logger.Debug("verdict cache hit", zap.String("key", key))
			return cached, nil
		}
	}

	raw, err := v.judge.Generate(ctx, Prompt(statement, facts))
	if err != nil {
		return debate.ValidationResult{}, fmt.Errorf("validator generation: %w", err)
	}
	result, err := Parse(raw)
	if err != nil {
		return debate.ValidationResult{}, err
	}

	if v.cache != nil {
		v.cache.Set(ctx, key, result)
	}
	return result, nil
}

type verdictPayload struct {
	IsValid  *bool    `json:"is_valid"`
	Issues   []string `json:"issues"`
	Feedback string   `json:"feedback"`
}

// Parse 解析裁判输出的 JSON, 容忍代码块与前后文字. 缺少 is_valid 视为无法解析.
func Parse(raw string) (debate.ValidationResult, error) {
	obj, ok := debate.ExtractJSONObject(raw)
	if !ok {
		return debate.ValidationResult{}, fmt.Errorf("validator response has no JSON object")
	}
	var p verdictPayload
	if err := json.Unmarshal([]byte(obj), &p); err != nil {
		return debate.ValidationResult{}, fmt.Errorf("decode validator response: %w", err)
	}
	if p.IsValid == nil {
		return debate.ValidationResult{}, fmt.Errorf("validator response missing is_valid")
	}

	issues := make([]string, 0, len(p.Issues))
	for _, s := range p.Issues {
		if s = strings.TrimSpace(s); s != "" {
			issues = append(issues, s)
		}
	}
	return debate.ValidationResult{
		IsValid:  *p.IsValid,
		Issues:   issues,
		Feedback: strings.TrimSpace(p.Feedback),
	}, nil
}

// CacheKey 对发言与事实做 SHA-256.
func CacheKey(statement string, facts *debate.Facts) string {
	h := sha256.New()
	h.Write([]byte(statement))
	h.Write([]byte{0})
	if facts != nil {
		b, _ := json.Marshal(facts)
		h.Write(b)
	}
	return "validator:" + hex.EncodeToString(h.Sum(nil))
}

// Prompt 构建裁判提示词.
func Prompt(statement string, f *debate.Facts) string {
	is := f.Report.IncomeStatement
	var b strings.Builder
	b.WriteString("You are a REALISM VALIDATOR for financial analysis. Check the statement below strictly against the data.\n\n")
	b.WriteString("HISTORICAL DATA:\n")
	fmt.Fprintf(&b, "- Revenue: %s\n", debate.Money(is.Revenue))
	fmt.Fprintf(&b, "- COGS: %s\n", debate.Money(is.CostOfGoodsSold))
	fmt.Fprintf(&b, "- Gross Profit: %s\n", debate.Money(f.Report.GrossProfit()))
	fmt.Fprintf(&b, "- OpEx: %s\n", debate.Money(is.OpEx))
	fmt.Fprintf(&b, "- EBITDA: %s\n", debate.Money(is.EBITDA))
	fmt.Fprintf(&b, "- Net Income: %s\n", debate.Money(is.NetIncome))
	b.WriteString("\nSIMULATION:\n")
	fmt.Fprintf(&b, "- Median NPV: %s\n", debate.Money(f.Simulation.MedianNPV))
	fmt.Fprintf(&b, "- Median Revenue: %s\n", debate.Money(f.Simulation.MedianRevenue))
	fmt.Fprintf(&b, "- Median EBITDA: %s\n", debate.Money(f.Simulation.MedianEBITDA))
	b.WriteString("\nSCENARIO DELTAS:\n")
	fmt.Fprintf(&b, "- OpEx: %d bps, Revenue growth: %d bps, Discount rate: %d bps, Tax rate: %d bps\n",
		f.Params.OpExDeltaBps, f.Params.RevenueGrowthBps, f.Params.DiscountRateBps, f.Params.TaxRateDeltaBps)
	b.WriteString("\nSTATEMENT:\n\"")
	b.WriteString(statement)
	b.WriteString("\"\n\nReject the statement if it:\n")
	b.WriteString("1. Cites numbers that do not appear in or follow from the data above\n")
	b.WriteString("2. Uses EBITDA = Revenue - OpEx instead of EBITDA = Revenue - COGS - OpEx\n")
	b.WriteString("3. Invents products, markets, initiatives or projections not implied by the deltas\n")
	b.WriteString("4. Claims growth or margin changes beyond what the deltas allow\n\n")
	b.WriteString("Respond with ONLY a JSON object:\n")
	b.WriteString(`{"is_valid": true, "issues": ["..."], "feedback": "actionable instruction for the rewrite"}`)
	b.WriteString("\n")
	return b.String()
}
