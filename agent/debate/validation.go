package debate

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Validator 检查乐观方发言是否扎根于给定事实.
type Validator interface {
	Validate(ctx context.Context, statement string, facts *Facts) (ValidationResult, error)
}

// ValidatorFunc 函数适配器.
type ValidatorFunc func(ctx context.Context, statement string, facts *Facts) (ValidationResult, error)

func (f ValidatorFunc) Validate(ctx context.Context, statement string, facts *Facts) (ValidationResult, error) {
	return f(ctx, statement, facts)
}

// AcceptAll 不做校验, 所有发言直接通过.
var AcceptAll Validator = ValidatorFunc(func(context.Context, string, *Facts) (ValidationResult, error) {
	return ValidationResult{IsValid: true}, nil
})

// FailurePolicy 校验器自身调用失败时的处理方式.
type FailurePolicy string

const (
	// FailOpen 视为通过.
	FailOpen FailurePolicy = "fail_open"
	// FailClosed 视为拒绝并重新生成.
	FailClosed FailurePolicy = "fail_closed"
)

// Valid 报告策略取值是否合法.
func (p FailurePolicy) Valid() bool {
	return p == FailOpen || p == FailClosed
}

// resolve 按策略把校验器错误转换为判定结果.
func (p FailurePolicy) resolve(err error) ValidationResult {
	if p == FailClosed {
		return ValidationResult{
			IsValid:  false,
			Issues:   []string{fmt.Sprintf("validator unavailable: %v", err)},
			Feedback: "Your statement could not be verified. Restrict every claim to the numbers provided above.",
		}
	}
	return ValidationResult{IsValid: true}
}

// generateValidated 最多尝试 attempts 次, 每次被拒绝后把反馈累加到提示词中; 全部被拒绝时接受最后一稿.
func (o *Orchestrator) generateValidated(ctx context.Context, st *sessionState, prompt string) (string, error) {
	log := o.logger.With(zap.String("session_id", st.id), zap.Int("round", st.round), zap.String("role", string(RoleOptimist)))

	var draft string
	for attempt := 1; attempt <= st.validationAttempts; attempt++ {
		text, err := o.optimist.Generate(ctx, prompt)
		if err != nil {
			return "", err
		}
		draft = text

		verdict, err := o.validator.Validate(ctx, text, st.facts)
		if err != nil {
			log.Warn("validator call failed",
				zap.Int("attempt", attempt),
				zap.String("policy", string(o.cfg.FailurePolicy)),
				zap.Error(err))
			o.recorder.RecordValidatorError(o.cfg.FailurePolicy)
			verdict = o.cfg.FailurePolicy.resolve(err)
		}
		if verdict.IsValid {
			o.recorder.RecordValidation(true)
			log.Debug("statement accepted", zap.Int("attempt", attempt))
			return text, nil
		}

		o.recorder.RecordValidation(false)
		log.Info("statement rejected",
			zap.Int("attempt", attempt),
			zap.Strings("issues", verdict.Issues))
		prompt += FeedbackSuffix(verdict)
	}

	log.Warn("validation attempts exhausted, accepting last draft", zap.Int("attempts", st.validationAttempts))
	return draft, nil
}
