package handlers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/agent/debate"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/api"
)

// subscriberBuffer 单个订阅者的缓冲发言数, 写满视为慢消费者并断开
const subscriberBuffer = 64

type session struct {
	id         string
	status     api.SessionStatus
	turns      []debate.DebateTurn
	subs       map[chan debate.DebateTurn]struct{}
	result     *debate.DebateResult
	err        error
	startedAt  time.Time
	finishedAt time.Time
}

// SessionHub 跟踪进行中与最近完成的会话, 并把发言推送给订阅者.
// 作为 debate.TurnObserver 注册到编排器.
type SessionHub struct {
	mu        sync.RWMutex
	sessions  map[string]*session
	retention time.Duration
	logger    *zap.Logger
}

// NewSessionHub 创建会话中心, retention 为完成后在内存中保留的时间
func NewSessionHub(retention time.Duration, logger *zap.Logger) *SessionHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHub{
		sessions:  make(map[string]*session),
		retention: retention,
		logger:    logger.With(zap.String("component", "session_hub")),
	}
}

// Begin 登记一个运行中的会话
func (h *SessionHub) Begin(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[id] = &session{
		id:        id,
		status:    api.StatusRunning,
		subs:      make(map[chan debate.DebateTurn]struct{}),
		startedAt: time.Now(),
	}
}

// OnTurn 实现 debate.TurnObserver. 不阻塞: 缓冲满的订阅者被断开.
func (h *SessionHub) OnTurn(sessionID string, turn debate.DebateTurn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	s.turns = append(s.turns, turn)
	for ch := range s.subs {
		select {
		case ch <- turn:
		default:
			h.logger.Warn("dropping slow stream subscriber", zap.String("session_id", sessionID))
			delete(s.subs, ch)
			close(ch)
		}
	}
}

// Finish 记录终态并关闭所有订阅
func (h *SessionHub) Finish(id string, result *debate.DebateResult, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[id]
	if !ok {
		return
	}
	s.finishedAt = time.Now()
	if err != nil {
		s.status = api.StatusFailed
		s.err = err
	} else {
		s.status = api.StatusCompleted
		s.result = result
	}
	for ch := range s.subs {
		close(ch)
	}
	s.subs = nil
}

// Subscribe 原子地返回已有发言与后续发言通道.
// 会话已结束时返回的通道已关闭. 调用方结束时必须调用 cancel.
func (h *SessionHub) Subscribe(id string) (backlog []debate.DebateTurn, turns <-chan debate.DebateTurn, cancel func(), ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, found := h.sessions[id]
	if !found {
		return nil, nil, nil, false
	}
	backlog = append([]debate.DebateTurn(nil), s.turns...)
	ch := make(chan debate.DebateTurn, subscriberBuffer)
	if s.status != api.StatusRunning {
		close(ch)
		return backlog, ch, func() {}, true
	}
	s.subs[ch] = struct{}{}

	cancel = func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, live := s.subs[ch]; live {
			delete(s.subs, ch)
			close(ch)
		}
	}
	return backlog, ch, cancel, true
}

// View 返回会话快照
func (h *SessionHub) View(id string) (*api.SessionView, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s, ok := h.sessions[id]
	if !ok {
		return nil, false
	}
	view := &api.SessionView{
		SessionID: s.id,
		Status:    s.status,
		Result:    s.result,
		Error:     api.NewErrorDetail(s.err),
		StartedAt: s.startedAt,
	}
	if !s.finishedAt.IsZero() {
		finished := s.finishedAt
		view.FinishedAt = &finished
	}
	return view, true
}

// Running 返回运行中的会话数
func (h *SessionHub) Running() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, s := range h.sessions {
		if s.status == api.StatusRunning {
			n++
		}
	}
	return n
}

// Sweep 清除完成时间早于 now-retention 的会话, 返回清除数量
func (h *SessionHub) Sweep(now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for id, s := range h.sessions {
		if s.status == api.StatusRunning {
			continue
		}
		if now.Sub(s.finishedAt) >= h.retention {
			delete(h.sessions, id)
			removed++
		}
	}
	return removed
}

// RunJanitor 周期性清理, 直到 ctx 结束
func (h *SessionHub) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := h.Sweep(now); n > 0 {
				h.logger.Debug("expired sessions removed", zap.Int("count", n))
			}
		}
	}
}
