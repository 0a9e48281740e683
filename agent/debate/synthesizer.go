package debate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/types"
)

// Synthesizer 把完整发言记录归约为共识. 实现不得返回空字段, 失败时自行降级.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, transcript []DebateTurn, converged bool) Consensus
}

const (
	maxAgreements    = 5
	maxDisagreements = 3

	minAgreementLen    = 20
	minDisagreementLen = 25
)

var (
	// 合成使用的同意词表是收敛词表的前五项.
	synthesisAgreementMarkers = AgreementMarkers[:5]
	disagreementMarkers       = []string{"however", "concern", "risk", "challenge", "but"}

	positiveVocabulary = []string{"growth", "strong", "opportunity", "upside", "buy", "positive", "confident"}
	negativeVocabulary = []string{"risk", "concern", "downside", "sell", "negative", "weak", "challenge"}
)

// 允许的结论取值.
var (
	KeywordVerdicts   = []string{"Buy", "Cautious Buy", "Hold", "Cautious Sell", "Sell"}
	DelegatedVerdicts = []string{"Strong Buy", "Buy", "Hold", "Sell", "Strong Sell"}
)

// FallbackConsensus 委托合成失败时的固定降级结果.
func FallbackConsensus() Consensus {
	return Consensus{
		Summary:       "Consensus synthesis failed; the debate completed but no structured summary could be produced.",
		Agreements:    []string{"Debate completed"},
		Disagreements: []string{"See transcript for details"},
		Verdict:       "Hold",
		Confidence:    ConfidenceLow,
	}
}

// KeywordSynthesizer 基于关键词的确定性合成.
type KeywordSynthesizer struct{}

// NewKeywordSynthesizer 创建确定性合成器.
func NewKeywordSynthesizer() *KeywordSynthesizer { return &KeywordSynthesizer{} }

func (s *KeywordSynthesizer) Name() string { return "keyword" }

// Synthesize 从发言中抽取同意/分歧句子并按情感词计票.
func (s *KeywordSynthesizer) Synthesize(_ context.Context, transcript []DebateTurn, converged bool) Consensus {
	agreements := ExtractAgreements(transcript)
	disagreements := ExtractDisagreements(transcript)
	verdict := DetermineVerdict(transcript, converged)

	confidence := ConfidenceLow
	switch {
	case converged && len(disagreements) == 0:
		confidence = ConfidenceHigh
	case converged:
		confidence = ConfidenceMedium
	}

	return Consensus{
		Summary:       keywordSummary(CountRounds(transcript), converged, agreements, disagreements, verdict),
		Agreements:    agreements,
		Disagreements: disagreements,
		Verdict:       verdict,
		Confidence:    confidence,
	}
}

func keywordSummary(rounds int, converged bool, agreements, disagreements []string, verdict string) string {
	var b strings.Builder
	outcome := "discussed but did not fully converge"
	if converged {
		outcome = "reached consensus"
	}
	fmt.Fprintf(&b, "After %d rounds of debate, \nthe analysts %s.\n\n", rounds, outcome)
	b.WriteString("Key Points of Agreement:\n")
	for _, a := range head(agreements, 3) {
		fmt.Fprintf(&b, "- %s\n", a)
	}
	if len(disagreements) > 0 {
		b.WriteString("\nRemaining Concerns:\n")
		for _, d := range head(disagreements, 2) {
			fmt.Fprintf(&b, "- %s\n", d)
		}
	}
	fmt.Fprintf(&b, "\nFinal Assessment: %s\n", verdict)
	return b.String()
}

func head(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// ExtractAgreements 每条发言按词表顺序取第一个能产出足够长句子的同意词, 去重后最多 5 条.
func ExtractAgreements(transcript []DebateTurn) []string {
	var found []string
	for _, t := range transcript {
		if sentence, ok := firstMarkerSentence(t.Message, synthesisAgreementMarkers, minAgreementLen); ok {
			found = append(found, sentence)
		}
	}
	return dedupe(found, maxAgreements)
}

// ExtractDisagreements 只扫描最后两轮的发言, 去重后最多 3 条.
func ExtractDisagreements(transcript []DebateTurn) []string {
	if len(transcript) == 0 {
		return []string{}
	}
	lastRound := transcript[len(transcript)-1].RoundNumber
	var found []string
	for _, t := range transcript {
		if t.RoundNumber < lastRound-1 {
			continue
		}
		if sentence, ok := firstMarkerSentence(t.Message, disagreementMarkers, minDisagreementLen); ok {
			found = append(found, sentence)
		}
	}
	return dedupe(found, maxDisagreements)
}

func firstMarkerSentence(msg string, markers []string, minLen int) (string, bool) {
	lower := asciiLower(msg)
	for _, marker := range markers {
		pos := strings.Index(lower, marker)
		if pos < 0 {
			continue
		}
		sentence := enclosingSentence(msg, pos)
		if utf8.RuneCountInString(sentence) > minLen {
			return sentence, true
		}
	}
	return "", false
}

// enclosingSentence 返回 pos 所在的句子: 前一个 '.' 之后到下一个 '.' (含) 为止.
func enclosingSentence(msg string, pos int) string {
	start := strings.LastIndexByte(msg[:pos], '.') + 1
	end := len(msg)
	if i := strings.IndexByte(msg[pos:], '.'); i >= 0 {
		end = pos + i + 1
	}
	return strings.TrimSpace(msg[start:end])
}

// asciiLower 只转换 ASCII 字母, 保证字节偏移与原文一致.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func dedupe(items []string, limit int) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
		if len(out) == limit {
			break
		}
	}
	return out
}

// DetermineVerdict 统计情感词在全文中是否出现 (每个词最多计一次), 按 1.5 倍优势判定.
func DetermineVerdict(transcript []DebateTurn, converged bool) string {
	texts := make([]string, len(transcript))
	for i, t := range transcript {
		texts[i] = strings.ToLower(t.Message)
	}
	all := strings.Join(texts, " ")

	positive := countPresent(all, positiveVocabulary)
	negative := countPresent(all, negativeVocabulary)

	switch {
	case float64(positive) > float64(negative)*1.5:
		if converged {
			return "Buy"
		}
		return "Cautious Buy"
	case float64(negative) > float64(positive)*1.5:
		if converged {
			return "Sell"
		}
		return "Cautious Sell"
	default:
		return "Hold"
	}
}

func countPresent(text string, vocabulary []string) int {
	n := 0
	for _, w := range vocabulary {
		if strings.Contains(text, w) {
			n++
		}
	}
	return n
}

// DelegatedSynthesizer 把发言记录交给生成器, 要求返回 JSON 共识.
type DelegatedSynthesizer struct {
	generator Generator
	logger    *zap.Logger
}

// NewDelegatedSynthesizer 创建委托合成器.
func NewDelegatedSynthesizer(g Generator, logger *zap.Logger) *DelegatedSynthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DelegatedSynthesizer{
		generator: g,
		logger:    logger.With(zap.String("component", "synthesizer"), zap.String("strategy", "delegated")),
	}
}

func (s *DelegatedSynthesizer) Name() string { return "delegated" }

// Synthesize 生成或解析失败都降级为 FallbackConsensus.
func (s *DelegatedSynthesizer) Synthesize(ctx context.Context, transcript []DebateTurn, converged bool) Consensus {
	raw, err := s.generator.Generate(ctx, ConsensusPrompt(transcript, converged))
	if err != nil {
		s.logger.Warn("consensus generation failed, using fallback", zap.Error(err))
		return FallbackConsensus()
	}
	c, err := ParseConsensus(raw)
	if err != nil {
		s.logger.Warn("consensus response rejected, using fallback", zap.Error(err))
		return FallbackConsensus()
	}
	return c
}

type consensusPayload struct {
	Summary       string   `json:"summary"`
	Agreements    []string `json:"agreements"`
	Disagreements []string `json:"disagreements"`
	Verdict       string   `json:"verdict"`
	Confidence    string   `json:"confidence"`
}

// ParseConsensus 容忍代码块和前后说明文字, 校验结论与置信度取值.
func ParseConsensus(raw string) (Consensus, error) {
	obj, ok := ExtractJSONObject(raw)
	if !ok {
		return Consensus{}, types.NewError(types.ErrSynthesisParse, "no JSON object in consensus response")
	}
	var p consensusPayload
	if err := json.Unmarshal([]byte(obj), &p); err != nil {
		return Consensus{}, types.NewError(types.ErrSynthesisParse, "malformed consensus JSON").WithCause(err)
	}

	verdict := matchFold(p.Verdict, DelegatedVerdicts)
	if verdict == "" {
		return Consensus{}, types.NewError(types.ErrSynthesisParse, fmt.Sprintf("unsupported verdict %q", p.Verdict))
	}
	confidence := Confidence(matchFold(p.Confidence, []string{"Low", "Medium", "High"}))
	if !confidence.Valid() {
		return Consensus{}, types.NewError(types.ErrSynthesisParse, fmt.Sprintf("unsupported confidence %q", p.Confidence))
	}

	agreements := dedupe(nonEmpty(p.Agreements), maxAgreements)
	disagreements := dedupe(nonEmpty(p.Disagreements), maxDisagreements)
	summary := strings.TrimSpace(p.Summary)
	if summary == "" || len(agreements) == 0 {
		return Consensus{}, types.NewError(types.ErrSynthesisParse, "consensus missing summary or agreements")
	}

	return Consensus{
		Summary:       summary,
		Agreements:    agreements,
		Disagreements: disagreements,
		Verdict:       verdict,
		Confidence:    confidence,
	}, nil
}

// ExtractJSONObject 取第一个 '{' 到最后一个 '}' 之间的文本.
func ExtractJSONObject(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

func matchFold(v string, allowed []string) string {
	v = strings.TrimSpace(v)
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return a
		}
	}
	return ""
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
