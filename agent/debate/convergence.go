package debate

import "strings"

// ConvergenceWindow 收敛检测只看最近的发言数.
const ConvergenceWindow = 4

// AgreementMarkers 收敛检测使用的同意词表.
var AgreementMarkers = []string{
	"i agree", "you're right", "fair point", "i concede",
	"that makes sense", "good point", "i accept", "converge",
	"consensus", "we agree", "aligned",
}

// DetectConvergence 统计最近 4 条发言中出现的同意词, 每个 (发言, 词) 组合只计一次, 命中 ≥2 即视为收敛.
// 这是词法层面的近似, 不代表语义上的共识: "I don't agree" 不会命中, 而 "we are not aligned" 会命中.
func DetectConvergence(transcript []DebateTurn) bool {
	return CountAgreementMarkers(transcript) >= 2
}

// CountAgreementMarkers 返回最近窗口内的命中数, 不足 4 条发言时返回 0.
func CountAgreementMarkers(transcript []DebateTurn) int {
	if len(transcript) < ConvergenceWindow {
		return 0
	}
	count := 0
	for _, t := range transcript[len(transcript)-ConvergenceWindow:] {
		msg := strings.ToLower(t.Message)
		for _, marker := range AgreementMarkers {
			if strings.Contains(msg, marker) {
				count++
			}
		}
	}
	return count
}
