package debate

import "time"

// TurnObserver 在每条发言追加到记录后被同步调用, 实现不应阻塞.
type TurnObserver interface {
	OnTurn(sessionID string, turn DebateTurn)
}

// TurnObserverFunc 函数适配器.
type TurnObserverFunc func(sessionID string, turn DebateTurn)

func (f TurnObserverFunc) OnTurn(sessionID string, turn DebateTurn) { f(sessionID, turn) }

// Recorder 会话级指标. internal/metrics.Collector 实现此接口.
type Recorder interface {
	RecordTurn(role Role, round int)
	RecordValidation(accepted bool)
	RecordValidatorError(policy FailurePolicy)
	RecordSession(result *DebateResult, duration time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordTurn(Role, int)                              {}
func (nopRecorder) RecordValidation(bool)                             {}
func (nopRecorder) RecordValidatorError(FailurePolicy)                {}
func (nopRecorder) RecordSession(*DebateResult, time.Duration, error) {}
