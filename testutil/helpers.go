// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数与辩论记录断言
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	testutil.AssertTranscriptWellFormed(t, result.Transcript)
//	testutil.AssertEventuallyTrue(t, func() bool { return condition }, 5*time.Second)
//
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/agent/debate"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔍 辩论记录断言
// =============================================================================

// AssertTranscriptWellFormed 检查发言记录的结构不变量:
// 首条为乐观方, 角色严格交替, 轮次从 1 开始且不递减, 每轮至多两条.
func AssertTranscriptWellFormed(t *testing.T, transcript []debate.DebateTurn) {
	t.Helper()
	if len(transcript) == 0 {
		t.Error("transcript is empty")
		return
	}
	if transcript[0].Role != debate.RoleOptimist {
		t.Errorf("first turn role = %s, want %s", transcript[0].Role, debate.RoleOptimist)
	}
	if transcript[0].RoundNumber != 1 {
		t.Errorf("first turn round = %d, want 1", transcript[0].RoundNumber)
	}

	perRound := map[int]int{}
	for i, turn := range transcript {
		perRound[turn.RoundNumber]++
		if perRound[turn.RoundNumber] > 2 {
			t.Errorf("round %d has more than two turns", turn.RoundNumber)
		}
		if i == 0 {
			continue
		}
		prev := transcript[i-1]
		if turn.Role == prev.Role {
			t.Errorf("turn %d repeats role %s", i, turn.Role)
		}
		if turn.RoundNumber < prev.RoundNumber {
			t.Errorf("turn %d round %d < previous %d", i, turn.RoundNumber, prev.RoundNumber)
		}
	}
}

// =============================================================================
// ⏱️ 时间辅助
// =============================================================================

// AssertEventuallyTrue 断言条件最终为真
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()
	if !WaitFor(condition, timeout) {
		t.Errorf("condition did not become true within %v", timeout)
	}
}

// WaitFor 等待条件满足或超时
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// WaitForChannel 等待通道接收或超时
func WaitForChannel[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	select {
	case v := <-ch:
		return v, true
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}

// =============================================================================
// 🔧 测试数据辅助
// =============================================================================

// MustJSON 将值转换为 JSON 字符串，失败时 panic
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// MustParseJSON 解析 JSON 字符串，失败时 panic
func MustParseJSON[T any](s string) T {
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		panic(err)
	}
	return v
}

// SampleFacts 返回一份可通过 Facts.Validate 的事实数据
func SampleFacts() *debate.Facts {
	return &debate.Facts{
		Report: &debate.FinancialReport{
			CompanyName:  "Acme Corp",
			FiscalPeriod: "FY2025",
			IncomeStatement: debate.IncomeStatement{
				Revenue:         1_000_000,
				CostOfGoodsSold: 600_000,
				OpEx:            250_000,
				EBITDA:          150_000,
			},
		},
		Simulation: &debate.AggregatedSimulation{
			MedianNPV:     2_500_000,
			MedianRevenue: 1_080_000,
			MedianEBITDA:  170_000,
		},
		Params: debate.ScenarioParams{RevenueGrowthBps: 800, OpExDeltaBps: -100},
	}
}
