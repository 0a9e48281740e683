package debate

import (
	"context"
	"testing"

	"pgregory.net/rapid"
)

// 回复池: 不含同意词, 含一个, 含两个.
var propertyReplies = []string{
	neutral,
	"Show the new OpEx value before claiming margin expansion.",
	"Fair point on revenue, yet COGS is unchanged.",
	"I agree the EBITDA math holds and I concede the OpEx delta.",
	"You're right, and that makes sense given the slider.",
}

func TestProperty_OrchestratorTranscriptInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxRounds := rapid.IntRange(1, 8).Draw(t, "max_rounds")
		threshold := rapid.IntRange(1, 4).Draw(t, "threshold")
		optimistReplies := rapid.SliceOfN(rapid.SampledFrom(propertyReplies), maxRounds, maxRounds).Draw(t, "optimist")
		skepticReplies := rapid.SliceOfN(rapid.SampledFrom(propertyReplies), maxRounds, maxRounds).Draw(t, "skeptic")

		optimist := newScripted("Gemini", optimistReplies...)
		skeptic := newScripted("DeepSeek", skepticReplies...)
		o, err := NewOrchestrator(optimist, skeptic)
		if err != nil {
			t.Fatalf("new orchestrator: %v", err)
		}

		res, err := o.Run(context.Background(), &Request{Facts: testFacts(), MaxRounds: maxRounds, ConvergenceThreshold: threshold})
		if err != nil {
			t.Fatalf("run: %v", err)
		}

		if got := CountRounds(res.Transcript); got != res.TotalRounds {
			t.Fatalf("total_rounds %d, distinct rounds %d", res.TotalRounds, got)
		}
		if res.TotalRounds > maxRounds {
			t.Fatalf("total_rounds %d exceeds max_rounds %d", res.TotalRounds, maxRounds)
		}
		if res.Converged != (res.ConvergenceRound != nil) {
			t.Fatalf("converged=%v but convergence_round=%v", res.Converged, res.ConvergenceRound)
		}

		prevRound := 0
		lastRole := map[int]Role{}
		for _, turn := range res.Transcript {
			if turn.RoundNumber < prevRound {
				t.Fatalf("round numbers decrease: %d after %d", turn.RoundNumber, prevRound)
			}
			prevRound = turn.RoundNumber
			if turn.Role == RoleSkeptic && lastRole[turn.RoundNumber] != RoleOptimist {
				t.Fatalf("skeptic spoke before optimist in round %d", turn.RoundNumber)
			}
			lastRole[turn.RoundNumber] = turn.Role
		}

		// 在产出的记录上重放收敛连击: 第 r 轮 (r >= 2) 乐观方发言后检查窗口
		streak := 0
		expected := 0
		for i, turn := range res.Transcript {
			if turn.Role != RoleOptimist || turn.RoundNumber < 2 {
				continue
			}
			if DetectConvergence(res.Transcript[:i+1]) {
				streak++
			} else {
				streak = 0
			}
			if streak >= threshold {
				expected = turn.RoundNumber
				break
			}
		}

		if expected == 0 {
			if res.Converged {
				t.Fatalf("converged at %d without a %d-round streak", *res.ConvergenceRound, threshold)
			}
			if res.TotalRounds != maxRounds {
				t.Fatalf("stopped at %d of %d rounds without converging", res.TotalRounds, maxRounds)
			}
		} else {
			if !res.Converged || *res.ConvergenceRound != expected {
				t.Fatalf("expected convergence at round %d, got converged=%v round=%v", expected, res.Converged, res.ConvergenceRound)
			}
			last := res.Transcript[len(res.Transcript)-1]
			if last.Role != RoleOptimist || last.RoundNumber != expected {
				t.Fatalf("converged round must end on the optimist turn, got %s in round %d", last.Role, last.RoundNumber)
			}
		}

		if res.ConsensusSummary == "" || res.FinalVerdict == "" || !res.ConfidenceLevel.Valid() ||
			res.KeyAgreements == nil || res.KeyDisagreements == nil {
			t.Fatalf("consensus fields left unset: %+v", res)
		}
	})
}
