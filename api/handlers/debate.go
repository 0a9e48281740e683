package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/agent/debate"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/api"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/internal/store"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/types"
)

// archiveTimeout 单次归档写入超时
const archiveTimeout = 10 * time.Second

// =============================================================================
// 🗣️ 辩论 Handler
// =============================================================================

// Runner 执行一次完整辩论, oracle.Engine 满足该接口
type Runner interface {
	Run(ctx context.Context, req *debate.Request) (*debate.DebateResult, error)
}

// SessionTracker 活跃会话计数
type SessionTracker interface {
	SessionStarted()
	SessionFinished()
}

// DebateHandler 辩论会话 API 处理器
type DebateHandler struct {
	runner  Runner
	hub     *SessionHub
	archive store.Archive
	tracker SessionTracker
	sem     *semaphore.Weighted
	logger  *zap.Logger

	baseCtx context.Context
	cancel  context.CancelFunc

	// mu 保护 closing 与 wg.Add, 保证 Shutdown 开始等待后不再登记新会话
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// DebateHandlerOption 可选配置
type DebateHandlerOption func(*DebateHandler)

// WithArchive 完成的会话写入归档, 查询时内存未命中则回退到归档
func WithArchive(a store.Archive) DebateHandlerOption {
	return func(h *DebateHandler) { h.archive = a }
}

// WithSessionTracker 设置活跃会话计数器
func WithSessionTracker(t SessionTracker) DebateHandlerOption {
	return func(h *DebateHandler) { h.tracker = t }
}

// NewDebateHandler 创建辩论处理器. maxConcurrent 为同时运行的会话上限.
// hub 需同时注册为编排器的 TurnObserver, 否则流式接口收不到发言.
func NewDebateHandler(runner Runner, hub *SessionHub, maxConcurrent int, logger *zap.Logger, opts ...DebateHandlerOption) *DebateHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &DebateHandler{
		runner:  runner,
		hub:     hub,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		logger:  logger.With(zap.String("component", "debate_handler")),
		baseCtx: ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleCreate 处理 POST /api/v1/debates, 异步启动会话并返回 202
func (h *DebateHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.admit(w, r)
	if !ok {
		return
	}

	id := uuid.NewString()
	h.hub.Begin(id)
	go func() {
		defer h.wg.Done()
		defer h.sem.Release(1)
		_, _ = h.execute(h.baseCtx, id, req)
	}()

	h.logger.Info("debate session accepted", zap.String("session_id", id))
	WriteStatus(w, r, http.StatusAccepted, api.SessionCreated{
		SessionID: id,
		Status:    api.StatusRunning,
		StreamURL: "/api/v1/debates/" + id + "/stream",
	})
}

// HandleRun 处理 POST /api/v1/debates:run, 同步执行并返回结果
func (h *DebateHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	req, ok := h.admit(w, r)
	if !ok {
		return
	}
	defer h.sem.Release(1)
	defer h.wg.Done()

	id := uuid.NewString()
	h.hub.Begin(id)
	result, err := h.execute(r.Context(), id, req)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, result)
}

// HandleGet 处理 GET /api/v1/debates/{id}
func (h *DebateHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if view, ok := h.hub.View(id); ok {
		WriteSuccess(w, r, view)
		return
	}

	if h.archive != nil {
		result, err := h.archive.Get(r.Context(), id)
		switch {
		case err == nil:
			finished := result.FinishedAt
			WriteSuccess(w, r, &api.SessionView{
				SessionID:  result.SessionID,
				Status:     api.StatusCompleted,
				Result:     result,
				StartedAt:  result.StartedAt,
				FinishedAt: &finished,
			})
			return
		case !errors.Is(err, store.ErrNotFound):
			WriteError(w, r, types.NewError(types.ErrInternalError, "archive lookup failed").WithCause(err), h.logger)
			return
		}
	}

	WriteErrorMessage(w, r, http.StatusNotFound, types.ErrNotFound, "debate session not found: "+id, h.logger)
}

// HandleStream 处理 GET /api/v1/debates/{id}/stream.
// 先推送已有发言, 之后逐条推送, 会话结束时以正常关闭码断开.
func (h *DebateHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	backlog, turns, unsubscribe, ok := h.hub.Subscribe(id)
	if !ok {
		WriteErrorMessage(w, r, http.StatusNotFound, types.ErrNotFound, "debate session not found: "+id, h.logger)
		return
	}
	defer unsubscribe()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket accept failed", zap.String("session_id", id), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// 客户端只读, 读端关闭即取消
	ctx := conn.CloseRead(r.Context())

	for _, turn := range backlog {
		if err := wsjson.Write(ctx, conn, turn); err != nil {
			return
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case turn, open := <-turns:
			if !open {
				reason := "session finished"
				if view, ok := h.hub.View(id); ok {
					reason = "session " + string(view.Status)
				}
				conn.Close(websocket.StatusNormalClosure, reason)
				return
			}
			if err := wsjson.Write(ctx, conn, turn); err != nil {
				return
			}
		}
	}
}

// Shutdown 停止接收新会话并等待运行中的会话结束.
// ctx 到期后取消剩余会话, 它们在下一个轮次边界退出.
func (h *DebateHandler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.cancel()
		return nil
	case <-ctx.Done():
		h.cancel()
		return ctx.Err()
	}
}

// admit 解码校验请求, 占用一个并发槽位并登记到 wg. 成功时调用方负责 sem.Release 与 wg.Done;
// 失败时已写出响应.
func (h *DebateHandler) admit(w http.ResponseWriter, r *http.Request) (*api.CreateDebateRequest, bool) {
	if h.isClosing() {
		writeShuttingDown(w, r, h.logger)
		return nil, false
	}
	if !ValidateContentType(w, r, h.logger) {
		return nil, false
	}

	var req api.CreateDebateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return nil, false
	}
	if err := req.Validate(); err != nil {
		WriteError(w, r, err, h.logger)
		return nil, false
	}

	if !h.sem.TryAcquire(1) {
		WriteErrorMessage(w, r, http.StatusTooManyRequests, types.ErrRateLimited, "too many concurrent debates", h.logger)
		return nil, false
	}
	if !h.register() {
		h.sem.Release(1)
		writeShuttingDown(w, r, h.logger)
		return nil, false
	}
	return &req, true
}

// register 在未关闭时登记一个运行中的会话
func (h *DebateHandler) register() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.wg.Add(1)
	return true
}

func (h *DebateHandler) isClosing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closing
}

func writeShuttingDown(w http.ResponseWriter, r *http.Request, logger *zap.Logger) {
	WriteErrorMessage(w, r, http.StatusServiceUnavailable, types.ErrServiceUnavailable, "server is shutting down", logger)
}

// execute 运行会话, 更新会话中心并尽力归档
func (h *DebateHandler) execute(ctx context.Context, id string, req *api.CreateDebateRequest) (*debate.DebateResult, error) {
	if h.tracker != nil {
		h.tracker.SessionStarted()
		defer h.tracker.SessionFinished()
	}

	result, err := h.runner.Run(ctx, req.ToDebateRequest(id))
	h.hub.Finish(id, result, err)
	if err != nil {
		h.logger.Warn("debate session failed",
			zap.String("session_id", id),
			zap.String("code", string(types.GetErrorCode(err))),
			zap.Error(err),
		)
		return nil, err
	}

	h.logger.Info("debate session completed",
		zap.String("session_id", id),
		zap.Int("total_rounds", result.TotalRounds),
		zap.Bool("converged", result.Converged),
		zap.String("verdict", result.FinalVerdict),
	)

	if h.archive != nil {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
		defer cancel()
		if err := h.archive.Save(saveCtx, req.Report.CompanyName, result); err != nil {
			h.logger.Warn("archive save failed", zap.String("session_id", id), zap.Error(err))
		}
	}
	return result, nil
}
