package debate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func turns(msgs ...string) []DebateTurn {
	out := make([]DebateTurn, len(msgs))
	for i, m := range msgs {
		role := RoleOptimist
		if i%2 == 1 {
			role = RoleSkeptic
		}
		out[i] = DebateTurn{RoundNumber: i/2 + 1, Role: role, Message: m}
	}
	return out
}

func TestDetectConvergence(t *testing.T) {
	tests := []struct {
		name string
		msgs []string
		hits int
		want bool
	}{
		{
			name: "insufficient history",
			msgs: []string{"I agree completely.", "I agree, we agree, consensus."},
			hits: 0,
			want: false,
		},
		{
			name: "three hits in window",
			msgs: []string{"I agree with your point.", "That's a fair point.", "However I still see risk.", "I concede the margin math."},
			hits: 3,
			want: true,
		},
		{
			name: "single hit",
			msgs: []string{"I agree.", "Show the OpEx value.", "Revenue is flat.", "Margins are thin."},
			hits: 1,
			want: false,
		},
		{
			name: "multiple markers in one message",
			msgs: []string{"a", "b", "c", "You're right, that makes sense and we are aligned."},
			hits: 3,
			want: true,
		},
		{
			name: "repeated marker counts once per message",
			msgs: []string{"a", "b", "c", "I agree. I agree. I agree."},
			hits: 1,
			want: false,
		},
		{
			name: "case insensitive",
			msgs: []string{"a", "b", "I AGREE.", "FAIR POINT."},
			hits: 2,
			want: true,
		},
		{
			name: "only last four turns count",
			msgs: []string{"I agree, fair point.", "I concede.", "x", "y", "z", "w"},
			hits: 0,
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transcript := turns(tt.msgs...)
			assert.Equal(t, tt.hits, CountAgreementMarkers(transcript))
			assert.Equal(t, tt.want, DetectConvergence(transcript))
		})
	}
}

func TestDetectConvergence_Properties(t *testing.T) {
	words := []string{"revenue", "opex", "margin", "i agree", "fair point", "risk", "however", "aligned", "growth", "."}

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 8).Draw(t, "turns")
		msgs := make([]string, n)
		for i := range msgs {
			parts := rapid.SliceOfN(rapid.SampledFrom(words), 0, 6).Draw(t, "words")
			msgs[i] = joinWords(parts)
		}
		transcript := turns(msgs...)

		first := DetectConvergence(transcript)
		if first != DetectConvergence(transcript) {
			t.Fatalf("detector is not deterministic")
		}
		hits := CountAgreementMarkers(transcript)
		if n < ConvergenceWindow && hits != 0 {
			t.Fatalf("fewer than %d turns must not count markers, got %d", ConvergenceWindow, hits)
		}
		if hits <= 1 && first {
			t.Fatalf("window with %d markers signalled convergence", hits)
		}
		if first != (hits >= 2) {
			t.Fatalf("detector disagrees with marker count %d", hits)
		}
	})
}

func joinWords(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}
