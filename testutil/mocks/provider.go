// MockProvider 的 LLM 提供商测试模拟实现。
//
// 支持脚本化响应序列、错误注入与调用记录。
package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/llm"
)

// --- MockProvider 结构 ---

// MockProvider 是 llm.Provider 的模拟实现
type MockProvider struct {
	mu sync.RWMutex

	name string

	// 响应配置: script 依次消费, 用尽后返回 response
	response string
	script   []string
	err      error

	promptTokens     int
	completionTokens int

	calls          []MockProviderCall
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	// 行为控制
	delay     time.Duration
	failAfter int // 在第 N 次调用后失败
	callCount int
	unhealthy bool
}

// MockProviderCall 记录单次调用
type MockProviderCall struct {
	Request  *llm.ChatRequest
	Response *llm.ChatResponse
	Error    error
}

// --- 构造函数和 Builder 方法 ---

// NewMockProvider 创建名为 name 的 MockProvider
func NewMockProvider(name string) *MockProvider {
	if name == "" {
		name = "mock"
	}
	return &MockProvider{
		name:             name,
		response:         "Mock response",
		promptTokens:     10,
		completionTokens: 20,
	}
}

// WithResponse 设置默认响应内容
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithScript 设置按顺序返回的响应, 用尽后回到默认响应
func (m *MockProvider) WithScript(responses ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append([]string(nil), responses...)
	return m
}

// WithError 设置返回错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithTokenUsage 设置 Token 使用量
func (m *MockProvider) WithTokenUsage(prompt, completion int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptTokens = prompt
	m.completionTokens = completion
	return m
}

// WithDelay 设置响应延迟
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFailAfter 设置在第 N 次调用后失败
func (m *MockProvider) WithFailAfter(n int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithUnhealthy 让 HealthCheck 报告不可用
func (m *MockProvider) WithUnhealthy() *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unhealthy = true
	return m
}

// WithCompletionFunc 设置自定义 Completion 函数, 优先于脚本与默认响应
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

// --- Provider 接口实现 ---

// Name 返回 Provider 名称
func (m *MockProvider) Name() string {
	return m.name
}

// HealthCheck 执行健康检查
func (m *MockProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &llm.HealthStatus{Healthy: !m.unhealthy, Latency: time.Millisecond}, nil
}

// Completion 实现 llm.Provider
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	m.callCount++
	count := m.callCount
	delay := m.delay
	fn := m.completionFunc
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	var (
		resp *llm.ChatResponse
		err  error
	)
	if fn != nil {
		resp, err = fn(ctx, req)
	} else {
		resp, err = m.next(count)
	}

	m.mu.Lock()
	m.calls = append(m.calls, MockProviderCall{Request: req, Response: resp, Error: err})
	m.mu.Unlock()
	return resp, err
}

func (m *MockProvider) next(count int) (*llm.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failAfter > 0 && count > m.failAfter {
		return nil, errors.New("mock provider: fail after threshold")
	}
	if m.err != nil {
		return nil, m.err
	}

	content := m.response
	if len(m.script) > 0 {
		content = m.script[0]
		m.script = m.script[1:]
	}
	return Response(m.name, content, m.promptTokens, m.completionTokens), nil
}

// Response 构造单候选响应
func Response(provider, content string, prompt, completion int) *llm.ChatResponse {
	return &llm.ChatResponse{
		Provider: provider,
		Model:    provider + "-mock",
		Choices: []llm.ChatChoice{{
			Index:        0,
			FinishReason: "stop",
			Message:      llm.Message{Role: llm.RoleAssistant, Content: content},
		}},
		Usage: llm.ChatUsage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
		CreatedAt: time.Now(),
	}
}

// --- 调用记录 ---

// GetCalls 返回调用记录副本
func (m *MockProvider) GetCalls() []MockProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MockProviderCall(nil), m.calls...)
}

// GetCallCount 返回调用次数
func (m *MockProvider) GetCallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount
}

// GetLastCall 返回最后一次调用
func (m *MockProvider) GetLastCall() *MockProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.calls) == 0 {
		return nil
	}
	c := m.calls[len(m.calls)-1]
	return &c
}

// Reset 清空调用记录
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.callCount = 0
}

// --- 便捷构造 ---

// NewSuccessProvider 总是返回 response
func NewSuccessProvider(name, response string) *MockProvider {
	return NewMockProvider(name).WithResponse(response)
}

// NewErrorProvider 总是返回 err
func NewErrorProvider(name string, err error) *MockProvider {
	return NewMockProvider(name).WithError(err)
}

// NewFlakeyProvider 前 failAfter 次成功, 之后失败
func NewFlakeyProvider(name string, failAfter int, response string) *MockProvider {
	return NewMockProvider(name).WithFailAfter(failAfter).WithResponse(response)
}
