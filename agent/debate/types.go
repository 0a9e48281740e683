package debate

import (
	"fmt"
	"time"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/types"
)

// ScenarioParams 反事实情景的滑块参数，单位为基点 (1 bps = 0.01%).
type ScenarioParams struct {
	OpExDeltaBps     int `json:"opex_delta_bps"`
	RevenueGrowthBps int `json:"revenue_growth_bps"`
	DiscountRateBps  int `json:"discount_rate_bps"`
	TaxRateDeltaBps  int `json:"tax_rate_delta_bps"`
}

// BpsToFraction 将基点转换为小数 (-500 -> -0.05).
func BpsToFraction(bps int) float64 {
	return float64(bps) / 10000
}

// IncomeStatement 利润表字段, JSON 键与文档抽取器输出保持一致.
type IncomeStatement struct {
	Revenue                     float64 `json:"Revenue"`
	CostOfGoodsSold             float64 `json:"CostOfGoodsSold"`
	GrossProfit                 float64 `json:"GrossProfit"`
	OpEx                        float64 `json:"OpEx"`
	EBITDA                      float64 `json:"EBITDA"`
	DepreciationAndAmortization float64 `json:"DepreciationAndAmortization"`
	EBIT                        float64 `json:"EBIT"`
	InterestExpense             float64 `json:"InterestExpense"`
	Taxes                       float64 `json:"Taxes"`
	NetIncome                   float64 `json:"NetIncome"`
}

// BalanceSheet 资产负债表聚合值.
type BalanceSheet struct {
	Assets      map[string]float64 `json:"Assets"`
	Liabilities map[string]float64 `json:"Liabilities"`
	Equity      map[string]float64 `json:"Equity"`
}

// CashFlow 现金流量表.
type CashFlow struct {
	NetIncome              float64 `json:"NetIncome"`
	Depreciation           float64 `json:"Depreciation"`
	ChangeInWorkingCapital float64 `json:"ChangeInWorkingCapital"`
	CashFromOperations     float64 `json:"CashFromOperations"`
	CapEx                  float64 `json:"CapEx"`
	CashFromInvesting      float64 `json:"CashFromInvesting"`
	DebtRepayment          float64 `json:"DebtRepayment"`
	Dividends              float64 `json:"Dividends"`
	CashFromFinancing      float64 `json:"CashFromFinancing"`
	NetChangeInCash        float64 `json:"NetChangeInCash"`
	FreeCashFlow           float64 `json:"FreeCashFlow"`
}

// FinancialReport 由文档抽取器生成的财报事实, 引擎只读.
type FinancialReport struct {
	CompanyName     string             `json:"company_name"`
	FiscalPeriod    string             `json:"fiscal_period"`
	IncomeStatement IncomeStatement    `json:"income_statement"`
	BalanceSheet    BalanceSheet       `json:"balance_sheet"`
	CashFlow        CashFlow           `json:"cash_flow"`
	KPIs            map[string]float64 `json:"kpis,omitempty"`
}

// GrossProfit 按 Revenue - COGS 计算, 不信任抽取值.
func (r *FinancialReport) GrossProfit() float64 {
	return r.IncomeStatement.Revenue - r.IncomeStatement.CostOfGoodsSold
}

// AggregatedSimulation 蒙特卡洛模拟的聚合输出.
type AggregatedSimulation struct {
	MedianNPV          float64   `json:"median_npv"`
	MedianRevenue      float64   `json:"median_revenue"`
	MedianEBITDA       float64   `json:"median_ebitda"`
	RevenueForecastP50 []float64 `json:"revenue_forecast_p50,omitempty"`
}

// Facts 一场辩论的全部事实依据.
type Facts struct {
	Report     *FinancialReport      `json:"report"`
	Simulation *AggregatedSimulation `json:"simulation"`
	Params     ScenarioParams        `json:"params"`
}

// Validate 检查事实是否足以构建提示词.
func (f *Facts) Validate() error {
	if f == nil || f.Report == nil {
		return types.NewError(types.ErrInvalidFacts, "financial report is required")
	}
	if f.Simulation == nil {
		return types.NewError(types.ErrInvalidFacts, "simulation result is required")
	}
	if f.Report.IncomeStatement.Revenue == 0 {
		return types.NewError(types.ErrInvalidFacts, "revenue must be non-zero")
	}
	if f.Simulation.MedianRevenue == 0 {
		return types.NewError(types.ErrInvalidFacts, "simulated median revenue must be non-zero")
	}
	return nil
}

// Role 辩论角色.
type Role string

const (
	RoleOptimist Role = "Optimist"
	RoleSkeptic  Role = "Skeptic"
)

// Confidence 共识置信度.
type Confidence string

const (
	ConfidenceLow    Confidence = "Low"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceHigh   Confidence = "High"
)

// Valid 报告置信度是否属于固定取值.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return true
	}
	return false
}

// DebateTurn 单个发言, 创建后不可修改.
type DebateTurn struct {
	RoundNumber int       `json:"round_number"`
	Speaker     string    `json:"speaker"`
	Role        Role      `json:"role"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	TopicFocus  string    `json:"topic_focus"`
}

func topicFocus(role Role, round int) string {
	switch {
	case round == 1 && role == RoleOptimist:
		return "Opening Position"
	case round == 1:
		return "Initial Challenge"
	case role == RoleOptimist:
		return fmt.Sprintf("Round %d Response", round)
	default:
		return fmt.Sprintf("Round %d Counter", round)
	}
}

// ValidationResult 校验器对一次发言的判定, 不持久化.
type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Issues   []string `json:"issues"`
	Feedback string   `json:"feedback"`
}

// Consensus 共识合成器的输出, 所有字段总是有值.
type Consensus struct {
	Summary       string     `json:"summary"`
	Agreements    []string   `json:"agreements"`
	Disagreements []string   `json:"disagreements"`
	Verdict       string     `json:"verdict"`
	Confidence    Confidence `json:"confidence"`
}

// DebateResult 辩论终态结果.
type DebateResult struct {
	SessionID        string       `json:"session_id"`
	Transcript       []DebateTurn `json:"debate_log"`
	TotalRounds      int          `json:"total_rounds"`
	Converged        bool         `json:"converged"`
	ConvergenceRound *int         `json:"convergence_round"`
	ConsensusSummary string       `json:"consensus_summary"`
	KeyAgreements    []string     `json:"key_agreements"`
	KeyDisagreements []string     `json:"key_disagreements"`
	FinalVerdict     string       `json:"final_verdict"`
	ConfidenceLevel  Confidence   `json:"confidence_level"`
	StartedAt        time.Time    `json:"started_at"`
	FinishedAt       time.Time    `json:"finished_at"`
}

// CountRounds 统计发言记录中不同轮次的数量.
func CountRounds(transcript []DebateTurn) int {
	seen := make(map[int]struct{}, len(transcript))
	for _, t := range transcript {
		seen[t.RoundNumber] = struct{}{}
	}
	return len(seen)
}
