package debate

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
)

// OptimistPersona 乐观方的固定人设.
const OptimistPersona = `You are an OPTIMISTIC financial analyst. Your role is to:
- Highlight growth opportunities and upside potential based ONLY on the provided data
- Support revenue and margin assumptions with evidence from the report
- Be constructive but acknowledge valid risks when presented
- Use data-driven arguments to defend your position

STRICT RULES:
1. NO HALLUCINATIONS: Do NOT invent "new products", "market expansion", "pre-orders", or "internal projections".
2. CITE SOURCES: You must cite specific numbers (e.g., "Revenue of $119B") to support claims.
3. RESPECT MATH: If the simulation shows flat growth, do not argue for acceleration.

Keep responses concise (2-3 paragraphs max) and professional.`

// SkepticPersona 怀疑方的固定人设.
const SkepticPersona = `You are a SKEPTICAL financial analyst. Your role is to:
- Challenge assumptions and identify risks
- Question growth projections and valuation methods
- Point out potential downside scenarios
- Demand evidence for optimistic claims
- Call out any "hallucinated" drivers (e.g., if the optimist mentions a product not in the report)

STRICT RULES:
1. FACT CHECK: If the optimist claims "margin expansion", check the OpEx delta. If it's positive, call them out.
2. DEMAND PROOF: Ask "Where in the report is this?" for any vague claim.

Keep responses concise (2-3 paragraphs max) and professional.`

// Money 以 $1,234 格式输出金额, 四舍五入到整数.
func Money(v float64) string {
	return "$" + humanize.Comma(int64(math.Round(v)))
}

// Percent 将小数格式化为两位百分比 (-0.05 -> -5.00%).
func Percent(fraction float64) string {
	return fmt.Sprintf("%.2f%%", fraction*100)
}

func bpsLine(label string, bps int) string {
	return fmt.Sprintf("- %s: %d bps (%s)\n", label, bps, Percent(BpsToFraction(bps)))
}

// writeFacts 写入历史数据、模拟结果与滑块参数. 每一轮两个角色的提示词都重新注入完整事实.
func writeFacts(b *strings.Builder, f *Facts, withRatio bool) {
	is := f.Report.IncomeStatement
	b.WriteString("HISTORICAL REALITY (from PDF):\n")
	fmt.Fprintf(b, "- Current Revenue: %s\n", Money(is.Revenue))
	fmt.Fprintf(b, "- Current COGS: %s\n", Money(is.CostOfGoodsSold))
	fmt.Fprintf(b, "- Current Gross Profit: %s\n", Money(f.Report.GrossProfit()))
	fmt.Fprintf(b, "- Current OpEx: %s\n", Money(is.OpEx))
	fmt.Fprintf(b, "- Current EBITDA: %s\n", Money(is.EBITDA))
	if withRatio {
		fmt.Fprintf(b, "- Current OpEx/Revenue: %.1f%%\n", is.OpEx/is.Revenue*100)
	}

	b.WriteString("\nCOUNTERFACTUAL SIMULATION RESULTS:\n")
	fmt.Fprintf(b, "- Median NPV: %s\n", Money(f.Simulation.MedianNPV))
	fmt.Fprintf(b, "- Median Revenue: %s\n", Money(f.Simulation.MedianRevenue))
	fmt.Fprintf(b, "- Median EBITDA: %s\n", Money(f.Simulation.MedianEBITDA))

	b.WriteString("\nSIMULATION PARAMETERS (Slider Settings):\n")
	b.WriteString(bpsLine("OpEx Delta", f.Params.OpExDeltaBps))
	b.WriteString(bpsLine("Revenue Growth Delta", f.Params.RevenueGrowthBps))
	b.WriteString(bpsLine("Discount Rate Delta", f.Params.DiscountRateBps))
	b.WriteString(bpsLine("Tax Rate Delta", f.Params.TaxRateDeltaBps))
}

func writeGroundingRules(b *strings.Builder, f *Facts) {
	is := f.Report.IncomeStatement
	b.WriteString("\nSTRICT MATHEMATICAL GROUNDING RULES:\n\n")
	b.WriteString("1. USE CORRECT FORMULAS:\n")
	b.WriteString("   - EBITDA = Revenue - COGS - OpEx (or equivalently: Gross Profit - OpEx)\n")
	b.WriteString("   - NOT EBITDA = Revenue - OpEx (this is WRONG!)\n")
	fmt.Fprintf(b, "   - Historical check: %s - %s - %s = %s\n",
		Money(is.Revenue), Money(is.CostOfGoodsSold), Money(is.OpEx), Money(f.Report.GrossProfit()-is.OpEx))
	b.WriteString("2. REFERENCE ONLY ACTUAL NUMBERS from the PDF data, the simulation results and the slider settings above.\n")
	b.WriteString("3. DO NOT INVENT \"strategic restructuring\", \"operational transformation\", \"cost optimization programs\"" +
		" or any narrative beyond what the deltas mathematically imply.\n")
	b.WriteString("4. STAY WITHIN MODEL BOUNDARIES:\n")
	fmt.Fprintf(b, "   - The OpEx delta of %d bps means OpEx changes by %s\n",
		f.Params.OpExDeltaBps, Percent(BpsToFraction(f.Params.OpExDeltaBps)))
	fmt.Fprintf(b, "   - The revenue delta of %d bps means revenue changes by %s\n",
		f.Params.RevenueGrowthBps, Percent(BpsToFraction(f.Params.RevenueGrowthBps)))
	b.WriteString("   - Do NOT speculate beyond these mathematical transformations\n")
}

// OpeningPrompt 第 1 轮乐观方开场.
func OpeningPrompt(f *Facts) string {
	var b strings.Builder
	b.WriteString(OptimistPersona)
	b.WriteString("\n\nYou are analyzing a COUNTERFACTUAL SIMULATION - a parallel universe scenario based on real financial data.\n\n")
	writeFacts(&b, f, false)
	writeGroundingRules(&b, f)

	is := f.Report.IncomeStatement
	change := (f.Simulation.MedianRevenue - is.Revenue) / is.Revenue * 100
	b.WriteString("\nROUND 1: OPENING POSITION\n\n")
	b.WriteString("Present your optimistic analysis of this COUNTERFACTUAL scenario. You MUST:\n")
	b.WriteString("1. Show explicit calculations for any claim using the CORRECT formulas\n")
	b.WriteString("2. Explain why the counterfactual differs from historical reality using ONLY the slider deltas\n")
	b.WriteString("3. Reference specific numbers from the data above\n\n")
	fmt.Fprintf(&b, "Example: \"The counterfactual revenue of %s represents a %.2f%% change from the historical %s, driven by the %d bps growth delta.\"\n",
		Money(f.Simulation.MedianRevenue), change, Money(is.Revenue), f.Params.RevenueGrowthBps)
	return b.String()
}

// ChallengePrompt 第 1 轮怀疑方质询.
func ChallengePrompt(f *Facts, optimistPosition string) string {
	var b strings.Builder
	b.WriteString(SkepticPersona)
	b.WriteString("\n\nYou just heard this optimistic analysis of a COUNTERFACTUAL SIMULATION:\n\n")
	fmt.Fprintf(&b, "\"%s\"\n\n", optimistPosition)
	writeFacts(&b, f, true)
	writeVerificationRules(&b, f)

	is := f.Report.IncomeStatement
	b.WriteString("\nROUND 1: CHALLENGE\n\n")
	b.WriteString("Challenge the optimistic view by:\n")
	b.WriteString("1. Verifying their calculations (show your work using CORRECT formulas)\n")
	b.WriteString("2. Checking if their claims exceed what the slider deltas mathematically allow\n")
	b.WriteString("3. Flagging any invented narratives not grounded in the simulation parameters\n\n")
	fmt.Fprintf(&b, "Example: \"Historical EBITDA margin = %s / %s = %.1f%%. Counterfactual margin = %s / %s = %.1f%%.\"\n",
		Money(is.EBITDA), Money(is.Revenue), is.EBITDA/is.Revenue*100,
		Money(f.Simulation.MedianEBITDA), Money(f.Simulation.MedianRevenue),
		f.Simulation.MedianEBITDA/f.Simulation.MedianRevenue*100)
	return b.String()
}

func writeVerificationRules(b *strings.Builder, f *Facts) {
	is := f.Report.IncomeStatement
	b.WriteString("\nSTRICT MATHEMATICAL VERIFICATION RULES:\n\n")
	b.WriteString("1. CHECK THE MATH WITH CORRECT FORMULAS:\n")
	b.WriteString("   - EBITDA = Revenue - COGS - OpEx (or equivalently: Gross Profit - OpEx)\n")
	b.WriteString("   - NOT EBITDA = Revenue - OpEx (this is WRONG!)\n")
	fmt.Fprintf(b, "   - Verify: Historical EBITDA = %s - %s - %s = %s\n",
		Money(is.Revenue), Money(is.CostOfGoodsSold), Money(is.OpEx), Money(f.Report.GrossProfit()-is.OpEx))
	b.WriteString("   - Verify: Do the deltas match the slider settings? Flag any calculation errors\n")
	b.WriteString("2. DEMAND EXPLICIT CALCULATIONS:\n")
	b.WriteString("   - If they claim \"margin expansion\", ask them to show (EBITDA / Revenue) before vs. after\n")
	b.WriteString("   - If they claim \"cost reduction\", ask: What is the new OpEx value?\n")
	b.WriteString("3. FLAG INVENTED NARRATIVES: strategic initiatives, operational improvements beyond the OpEx delta," +
		" market opportunities not reflected in the revenue delta.\n")
	b.WriteString("4. VERIFY MODEL BOUNDARIES:\n")
	fmt.Fprintf(b, "   - The OpEx delta of %d bps is the ONLY cost change\n", f.Params.OpExDeltaBps)
	fmt.Fprintf(b, "   - The revenue delta of %d bps is the ONLY growth assumption\n", f.Params.RevenueGrowthBps)
	b.WriteString("   - Anything else is speculation\n")
}

// ResponsePrompt 第 N 轮乐观方回应.
func ResponsePrompt(f *Facts, round int, challenge, previous string) string {
	var b strings.Builder
	b.WriteString(OptimistPersona)
	fmt.Fprintf(&b, "\n\nROUND %d: RESPONSE\n\n", round)
	fmt.Fprintf(&b, "Your previous statements: %s\n\n", previous)
	writeFacts(&b, f, false)
	writeGroundingRules(&b, f)
	fmt.Fprintf(&b, "\nThe skeptic just challenged you with:\n\"%s\"\n\n", challenge)
	b.WriteString("CRITICAL INSTRUCTION - COUNTERFACTUAL ANCHORING:\n")
	b.WriteString("Continue to anchor your response in the differences between historical reality and the counterfactual simulation.\n\n")
	b.WriteString("Respond to their concerns:\n")
	b.WriteString("1. Address the specific risks they raised about counterfactual assumptions\n")
	b.WriteString("2. Explain WHY the counterfactual differs from historical patterns\n")
	b.WriteString("3. Provide counter-evidence or concede valid points\n\n")
	b.WriteString("If you agree with their points, say so explicitly. If you disagree, explain why with evidence from the data provided.\n")
	return b.String()
}

// CounterPrompt 第 N 轮怀疑方反驳.
func CounterPrompt(f *Facts, round int, response, previous string) string {
	var b strings.Builder
	b.WriteString(SkepticPersona)
	fmt.Fprintf(&b, "\n\nROUND %d: COUNTER-ARGUMENT\n\n", round)
	fmt.Fprintf(&b, "Your previous challenges: %s\n\n", previous)
	writeFacts(&b, f, true)
	writeVerificationRules(&b, f)
	fmt.Fprintf(&b, "\nThe optimist responded with:\n\"%s\"\n\n", response)
	b.WriteString("CRITICAL INSTRUCTION - COUNTERFACTUAL ANCHORING:\n")
	b.WriteString("Continue to anchor your critique in the differences between historical reality and the counterfactual simulation.\n\n")
	b.WriteString("Continue the analysis:\n")
	b.WriteString("1. Evaluate their response - did they justify WHY the counterfactual differs from historical patterns?\n")
	b.WriteString("2. Raise new concerns or dig deeper into counterfactual assumptions that seem unrealistic\n")
	b.WriteString("3. State areas where you've found common ground\n\n")
	b.WriteString("If they've convinced you on certain points, acknowledge it. Otherwise, press further on the counterfactual logic.\n")
	return b.String()
}

// FeedbackSuffix 校验拒绝后追加到提示词的反馈段落.
func FeedbackSuffix(v ValidationResult) string {
	return fmt.Sprintf("\n\n[SYSTEM FEEDBACK]: Your previous response was rejected. Issues: [%s]. \nFeedback: %s\n\nPlease rewrite strictly adhering to the data.",
		strings.Join(v.Issues, "; "), v.Feedback)
}

// Condense 取同一角色每条历史发言的前 100 个字符, 以空格拼接.
func Condense(transcript []DebateTurn, role Role) string {
	parts := make([]string, 0, len(transcript))
	for _, t := range transcript {
		if t.Role != role {
			continue
		}
		parts = append(parts, truncateRunes(t.Message, 100))
	}
	return strings.Join(parts, " ")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// RenderTranscript 渲染完整发言记录, 供委托合成与存档使用.
func RenderTranscript(transcript []DebateTurn) string {
	var b strings.Builder
	for _, t := range transcript {
		fmt.Fprintf(&b, "[Round %d] %s (%s) - %s:\n%s\n\n", t.RoundNumber, t.Speaker, t.Role, t.TopicFocus, t.Message)
	}
	return b.String()
}

// ConsensusPrompt 委托合成使用的提示词, 要求返回 JSON.
func ConsensusPrompt(transcript []DebateTurn, converged bool) string {
	var b strings.Builder
	b.WriteString("FINAL CONSENSUS ROUND\n\nReview the full debate:\n")
	b.WriteString(RenderTranscript(transcript))
	if converged {
		b.WriteString("The analysts signalled agreement before the round limit.\n\n")
	} else {
		b.WriteString("The debate reached the round limit without full convergence.\n\n")
	}
	b.WriteString("It's time to reach a conclusion. Please:\n")
	b.WriteString("1. List 3 key points both analysts AGREE on\n")
	b.WriteString("2. List 1-2 points where they still DISAGREE (if any)\n")
	b.WriteString("3. Provide a FINAL VERDICT: \"Strong Buy\", \"Buy\", \"Hold\", \"Sell\", or \"Strong Sell\"\n")
	b.WriteString("4. Justify your verdict in 1-2 sentences as the summary\n")
	b.WriteString("5. Rate confidence as \"Low\", \"Medium\" or \"High\"\n\n")
	b.WriteString("Respond with ONLY a JSON object:\n")
	b.WriteString(`{"summary": "...", "agreements": ["..."], "disagreements": ["..."], "verdict": "Hold", "confidence": "Medium"}`)
	b.WriteString("\n")
	return b.String()
}
