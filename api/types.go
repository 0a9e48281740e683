package api

import (
	"fmt"
	"time"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/agent/debate"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/types"
)

// MaxRoundsLimit 单个请求允许的最大轮数
const MaxRoundsLimit = 50

// =============================================================================
// 辩论请求
// =============================================================================

// CreateDebateRequest 启动辩论的请求体.
// max_rounds 与 convergence_threshold 为空时使用服务端配置.
type CreateDebateRequest struct {
	Report               *debate.FinancialReport      `json:"report"`
	Simulation           *debate.AggregatedSimulation `json:"simulation"`
	Params               debate.ScenarioParams        `json:"params"`
	MaxRounds            int                          `json:"max_rounds,omitempty"`
	ConvergenceThreshold int                          `json:"convergence_threshold,omitempty"`
}

// Facts 组装事实依据
func (r *CreateDebateRequest) Facts() *debate.Facts {
	return &debate.Facts{Report: r.Report, Simulation: r.Simulation, Params: r.Params}
}

// Validate 校验事实与覆盖参数
func (r *CreateDebateRequest) Validate() error {
	if err := r.Facts().Validate(); err != nil {
		return err
	}
	if r.MaxRounds < 0 || r.MaxRounds > MaxRoundsLimit {
		return types.NewError(types.ErrInvalidRequest, fmt.Sprintf("max_rounds must be between 1 and %d", MaxRoundsLimit))
	}
	if r.ConvergenceThreshold < 0 {
		return types.NewError(types.ErrInvalidRequest, "convergence_threshold must be >= 1")
	}
	return nil
}

// ToDebateRequest 转换为编排器请求
func (r *CreateDebateRequest) ToDebateRequest(sessionID string) *debate.Request {
	return &debate.Request{
		SessionID:            sessionID,
		Facts:                r.Facts(),
		MaxRounds:            r.MaxRounds,
		ConvergenceThreshold: r.ConvergenceThreshold,
	}
}

// =============================================================================
// 会话状态
// =============================================================================

// SessionStatus 会话状态
type SessionStatus string

const (
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
)

// SessionCreated 异步启动的响应
type SessionCreated struct {
	SessionID string        `json:"session_id"`
	Status    SessionStatus `json:"status"`
	StreamURL string        `json:"stream_url"`
}

// SessionView 会话查询结果. 失败的会话不携带部分结果.
type SessionView struct {
	SessionID  string               `json:"session_id"`
	Status     SessionStatus        `json:"status"`
	Result     *debate.DebateResult `json:"result,omitempty"`
	Error      *ErrorDetail         `json:"error,omitempty"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt *time.Time           `json:"finished_at,omitempty"`
}

// ErrorDetail 会话失败原因
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorDetail 从错误提取错误码与消息
func NewErrorDetail(err error) *ErrorDetail {
	if err == nil {
		return nil
	}
	if e, ok := types.AsError(err); ok {
		return &ErrorDetail{Code: string(e.Code), Message: e.Error()}
	}
	return &ErrorDetail{Code: string(types.ErrInternalError), Message: err.Error()}
}

// VersionInfo 构建信息
type VersionInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}
