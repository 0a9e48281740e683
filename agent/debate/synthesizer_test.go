package debate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/types"
)

func TestExtractAgreements(t *testing.T) {
	transcript := turns(
		"Revenue is flat. I agree that the OpEx delta lowers costs by five percent. Margins widen.",
		"Fair point on costs, yes.",
		"You're right about COGS. I concede the growth rate is only two percent",
		"ok",
		"Revenue is flat. I agree that the OpEx delta lowers costs by five percent. Again.",
	)

	got := ExtractAgreements(transcript)
	assert.Equal(t, []string{
		"I agree that the OpEx delta lowers costs by five percent.",
		"Fair point on costs, yes.",
		"You're right about COGS.",
	}, got, "one sentence per turn, first marker in vocabulary order, deduplicated")
}

func TestExtractAgreements_SkipsShortSentencesAndTriesNextMarker(t *testing.T) {
	// "i agree." 太短, 继续尝试后面的 "fair point".
	transcript := turns("I agree. That is a fair point about the margin math.")
	assert.Equal(t, []string{"That is a fair point about the margin math."}, ExtractAgreements(transcript))
}

func TestExtractAgreements_CapsAtFive(t *testing.T) {
	msgs := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		msgs = append(msgs, "I agree with point number "+strings.Repeat("x", i+1)+" in the report.")
	}
	assert.Len(t, ExtractAgreements(turns(msgs...)), 5)
}

func TestExtractDisagreements_OnlyLastTwoRounds(t *testing.T) {
	transcript := turns(
		"However the early round concern is ignored here.",  // round 1
		"The risk from round one is also ignored entirely.", // round 1
		"However the OpEx cut may not persist next year.",   // round 2
		"My concern is that revenue growth is only two percent.",
		"The risk is that discount rates rise further.", // round 3
	)
	got := ExtractDisagreements(transcript)
	assert.Equal(t, []string{
		"However the OpEx cut may not persist next year.",
		"My concern is that revenue growth is only two percent.",
		"The risk is that discount rates rise further.",
	}, got)
}

func TestExtractDisagreements_Empty(t *testing.T) {
	assert.Equal(t, []string{}, ExtractDisagreements(nil))
	assert.Empty(t, ExtractDisagreements(turns("Numbers check out.", "Agreed on all lines.")))
}

func TestEnclosingSentence(t *testing.T) {
	msg := "First part. Second part has the marker here. Third"
	pos := strings.Index(msg, "marker")
	assert.Equal(t, "Second part has the marker here.", enclosingSentence(msg, pos))

	msg = "No period at all with marker"
	assert.Equal(t, msg, enclosingSentence(msg, strings.Index(msg, "marker")))
}

func TestDetermineVerdict(t *testing.T) {
	tests := []struct {
		name      string
		msgs      []string
		converged bool
		want      string
	}{
		{"positive converged", []string{"Strong growth and upside, a clear opportunity."}, true, "Buy"},
		{"positive not converged", []string{"Strong growth and upside, a clear opportunity."}, false, "Cautious Buy"},
		{"negative converged", []string{"Risk and concern, weak downside."}, true, "Sell"},
		{"negative not converged", []string{"Risk and concern, weak downside."}, false, "Cautious Sell"},
		{"balanced", []string{"Growth and strong margins.", "Risk and concern remain."}, true, "Hold"},
		{"empty", nil, false, "Hold"},
		{"repetition does not count twice", []string{"growth growth growth growth", "risk"}, true, "Hold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetermineVerdict(turns(tt.msgs...), tt.converged))
		})
	}
}

func TestKeywordSynthesizer_Confidence(t *testing.T) {
	s := NewKeywordSynthesizer()
	agreeOnly := turns("I agree that revenue grows by two percent.", "That makes sense given the OpEx line.")
	withConcern := turns("I agree that revenue grows by two percent.", "However the OpEx cut may not persist next year.")

	assert.Equal(t, ConfidenceHigh, s.Synthesize(context.Background(), agreeOnly, true).Confidence)
	assert.Equal(t, ConfidenceMedium, s.Synthesize(context.Background(), withConcern, true).Confidence)
	assert.Equal(t, ConfidenceLow, s.Synthesize(context.Background(), agreeOnly, false).Confidence)
}

func TestKeywordSynthesizer_Summary(t *testing.T) {
	s := NewKeywordSynthesizer()
	transcript := turns(
		"I agree that revenue grows by two percent.",
		"However the OpEx cut may not persist next year.",
		"Fair point, the OpEx cut is a single-year assumption.",
	)

	c := s.Synthesize(context.Background(), transcript, false)
	assert.True(t, strings.HasPrefix(c.Summary, "After 2 rounds of debate, \nthe analysts discussed but did not fully converge."))
	assert.Contains(t, c.Summary, "Key Points of Agreement:\n- I agree that revenue grows by two percent.")
	assert.Contains(t, c.Summary, "Remaining Concerns:\n- However the OpEx cut may not persist next year.")
	assert.Contains(t, c.Summary, "Final Assessment: "+c.Verdict)

	c = s.Synthesize(context.Background(), turns("I agree that revenue grows by two percent."), true)
	assert.Contains(t, c.Summary, "reached consensus")
	assert.NotContains(t, c.Summary, "Remaining Concerns")
}

func TestParseConsensus(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		verdict string
		wantErr bool
	}{
		{
			name:    "plain json",
			raw:     `{"summary":"Both accept the margin math.","agreements":["OpEx falls 5%"],"disagreements":[],"verdict":"Buy","confidence":"High"}`,
			verdict: "Buy",
		},
		{
			name:    "code fence and prose",
			raw:     "Here is the result:\n```json\n{\"summary\":\"s\",\"agreements\":[\"a\"],\"disagreements\":[\"d\"],\"verdict\":\"strong sell\",\"confidence\":\"low\"}\n```\nThanks",
			verdict: "Strong Sell",
		},
		{name: "no json", raw: "Hold, I think", wantErr: true},
		{name: "bad verdict", raw: `{"summary":"s","agreements":["a"],"verdict":"Cautious Buy","confidence":"Low"}`, wantErr: true},
		{name: "bad confidence", raw: `{"summary":"s","agreements":["a"],"verdict":"Buy","confidence":"Certain"}`, wantErr: true},
		{name: "missing agreements", raw: `{"summary":"s","agreements":[],"verdict":"Buy","confidence":"Low"}`, wantErr: true},
		{name: "truncated", raw: `{"summary":"s","agreements":["a"`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseConsensus(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, types.IsErrorCode(err, types.ErrSynthesisParse))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.verdict, c.Verdict)
			assert.True(t, c.Confidence.Valid())
			assert.NotNil(t, c.Disagreements)
		})
	}
}

func TestDelegatedSynthesizer(t *testing.T) {
	transcript := turns("I agree that revenue grows.", "However OpEx may rebound.")

	t.Run("parsed", func(t *testing.T) {
		g := newScripted("judge", `{"summary":"Modest upside.","agreements":["Revenue +2%","OpEx -5%","EBITDA up"],"disagreements":["OpEx durability"],"verdict":"Buy","confidence":"Medium"}`)
		c := NewDelegatedSynthesizer(g, nil).Synthesize(context.Background(), transcript, true)
		assert.Equal(t, "Buy", c.Verdict)
		assert.Equal(t, ConfidenceMedium, c.Confidence)
		assert.Len(t, c.Agreements, 3)
		assert.Contains(t, g.prompt(0), "FINAL CONSENSUS ROUND")
		assert.Contains(t, g.prompt(0), "However OpEx may rebound.")
	})

	t.Run("generation error falls back", func(t *testing.T) {
		g := newScripted("judge")
		g.errAt = map[int]error{1: errors.New("quota")}
		c := NewDelegatedSynthesizer(g, nil).Synthesize(context.Background(), transcript, false)
		assert.Equal(t, FallbackConsensus(), c)
	})

	t.Run("unparsable falls back", func(t *testing.T) {
		c := NewDelegatedSynthesizer(newScripted("judge", "no idea"), nil).Synthesize(context.Background(), transcript, false)
		assert.Equal(t, "Hold", c.Verdict)
		assert.Equal(t, ConfidenceLow, c.Confidence)
		assert.Equal(t, []string{"Debate completed"}, c.Agreements)
		assert.Equal(t, []string{"See transcript for details"}, c.Disagreements)
		assert.NotEmpty(t, c.Summary)
	})
}

func TestSynthesizers_NeverLeaveFieldsUnset(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	vocabulary := []string{
		"I agree that revenue grows by two percent.",
		"However the OpEx cut may not persist next year.",
		"growth", "risk", "ok.", "That makes sense for the margin line.", "",
	}
	msgGen := gen.SliceOf(gen.IntRange(0, len(vocabulary)-1)).Map(func(idx []int) []string {
		out := make([]string, len(idx))
		for i, j := range idx {
			out[i] = vocabulary[j]
		}
		return out
	})

	check := func(c Consensus) bool {
		return c.Summary != "" && c.Verdict != "" && c.Confidence.Valid() &&
			c.Agreements != nil && c.Disagreements != nil &&
			len(c.Agreements) <= maxAgreements && len(c.Disagreements) <= maxDisagreements
	}

	properties.Property("keyword synthesis populates every field", prop.ForAll(
		func(msgs []string, converged bool) bool {
			return check(NewKeywordSynthesizer().Synthesize(context.Background(), turns(msgs...), converged))
		},
		msgGen, gen.Bool(),
	))

	properties.Property("delegated synthesis populates every field for arbitrary responses", prop.ForAll(
		func(msgs []string, raw string) bool {
			s := NewDelegatedSynthesizer(newScripted("judge", raw), nil)
			return check(s.Synthesize(context.Background(), turns(msgs...), false))
		},
		msgGen, gen.AnyString(),
	))

	properties.TestingRun(t)
}
