package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/pkg/types"
)

func TestDisqualifyCategories(t *testing.T) {
	tests := []struct {
		query  string
		reason string
	}{
		{"why did the deployment fail", ReasonReasoning},
		{"should I take the job offer", ReasonReasoning},
		{"python versus go for this", ReasonReasoning},
		{"which restaurants did John not like", ReasonNegation},
		{"who doesn't eat meat", ReasonNegation},
		{"contacts without an email", ReasonNegation},
		{"what did I do yesterday", ReasonTimeReference},
		{"meetings from 3 weeks ago", ReasonTimeReference},
		{"when did Sarah move", ReasonTimeReference},
		{"what's John's email? and where does he work?", ReasonCompoundQuestion},
		{"John's email and what he works on", ReasonCompoundQuestion},
		{"who is she", ReasonUnresolvedReference},
		{"tell me about Marcus", ReasonExploration},
		{"show me all my notes", ReasonExploration},
	}
	for _, tt := range tests {
		reason, ok := Disqualify(tt.query)
		require.True(t, ok, "query %q should disqualify", tt.query)
		assert.Equal(t, tt.reason, reason, "query %q", tt.query)
	}
}

func TestDisqualifyOrderFirstCategoryWins(t *testing.T) {
	// Matches both reasoning ("why") and time-reference ("yesterday");
	// the earlier category must win.
	reason, ok := Disqualify("why was I tired yesterday")
	require.True(t, ok)
	assert.Equal(t, ReasonReasoning, reason)
}

func TestDisqualifyPassesCleanLookup(t *testing.T) {
	_, ok := Disqualify("What's John's phone number?")
	assert.False(t, ok)

	_, ok = Disqualify("Sarah's email address")
	assert.False(t, ok)
}

func TestClassifyPossessiveLookup(t *testing.T) {
	a := ClassifyQueryType("What's John's phone number?")
	assert.Equal(t, types.QueryLookup, a.Type)
	assert.Equal(t, "John", a.Entity)
	assert.Equal(t, "phone number", a.Attribute)
	// Base 0.7, known attribute +0.15, question mark +0.05, short +0.05.
	assert.InDelta(t, 0.95, a.Confidence, 1e-9)
}

func TestClassifyPossessiveWithoutBoosts(t *testing.T) {
	a := ClassifyQueryType("the new colleague from the downstairs office in building seven's area")
	// Either a loose match or ambiguous; either way no strict-lookup boosts
	// at full strength.
	assert.LessOrEqual(t, a.Confidence, 0.7)
}

func TestClassifyAttributeFor(t *testing.T) {
	a := ClassifyQueryType("the wifi password for the office")
	assert.Equal(t, types.QueryLookup, a.Type)
	assert.Equal(t, "office", a.Entity)
	assert.Equal(t, "wifi password", a.Attribute)
	// Base 0.7, known attribute +0.15, short +0.05; no question mark.
	assert.InDelta(t, 0.9, a.Confidence, 1e-9)
}

func TestClassifyQuestionWord(t *testing.T) {
	a := ClassifyQueryType("who is Marcus?")
	assert.Equal(t, types.QueryLookup, a.Type)
	assert.Equal(t, "Marcus", a.Entity)
	assert.Equal(t, "identity", a.Attribute)

	a = ClassifyQueryType("where is the dentist office")
	assert.Equal(t, types.QueryLookup, a.Type)
	assert.Equal(t, "location", a.Attribute)
}

func TestClassifyBareKeywordFallback(t *testing.T) {
	a := ClassifyQueryType("need that email again")
	assert.Equal(t, types.QueryLookup, a.Type)
	assert.Equal(t, "email", a.Attribute)
	assert.InDelta(t, bareKeywordConf, a.Confidence, 1e-9)
}

func TestClassifyAmbiguous(t *testing.T) {
	a := ClassifyQueryType("hmm interesting stuff happening")
	assert.Equal(t, types.QueryAmbiguous, a.Type)
	assert.InDelta(t, ambiguousConf, a.Confidence, 1e-9)
}

func newScorer() *Scorer {
	return NewScorer(config.DefaultParameters().RCS)
}

func TestRCSZeroResults(t *testing.T) {
	got := newScorer().Score(0.99, nil, 0, true)
	assert.Zero(t, got.Score)
	assert.Equal(t, types.ConfidenceLow, got.Level)
	assert.Equal(t, []string{FlagNoResults}, got.Flags)
}

func TestRCSHighConfidenceLookup(t *testing.T) {
	second := 0.5
	got := newScorer().Score(0.95, &second, 3, true)

	assert.Equal(t, types.ConfidenceHigh, got.Level)
	// Gap 0.45 is wide, so no disambiguation flag; MQ 0.95 is not > 0.95,
	// so no perfect-match flag either.
	assert.False(t, got.HasFlag(FlagDisambiguationNeeded))
	assert.False(t, got.HasFlag(FlagPerfectMatch))
}

func TestRCSPerfectMatch(t *testing.T) {
	got := newScorer().Score(0.98, nil, 1, true)
	assert.True(t, got.HasFlag(FlagPerfectMatch))
	assert.Equal(t, types.ConfidenceHigh, got.Level)
}

func TestRCSDisambiguationNeeded(t *testing.T) {
	second := 0.85
	got := newScorer().Score(0.9, &second, 4, true)
	assert.True(t, got.HasFlag(FlagDisambiguationNeeded))
}

func TestRCSSparseResults(t *testing.T) {
	got := newScorer().Score(0.4, nil, 1, true)
	assert.True(t, got.HasFlag(FlagSparseResults))
}

func TestRCSMissingAttributeCapsScore(t *testing.T) {
	got := newScorer().Score(0.99, nil, 1, false)
	assert.True(t, got.HasFlag(FlagAttributeUnknown))
	assert.LessOrEqual(t, got.Score, 0.7)
}

func TestRCSWeakMatchCapped(t *testing.T) {
	second := 0.2
	got := newScorer().Score(0.25, &second, 2, true)
	assert.LessOrEqual(t, got.Score, 0.4)
}

func TestDecideDisqualifiedEscalates(t *testing.T) {
	res := Decide("why is the sky blue", ReasonReasoning,
		types.QueryAnalysis{Type: types.QueryAmbiguous},
		types.RetrievalConfidence{Level: types.ConfidenceHigh, Score: 0.9}, nil)

	assert.Equal(t, types.DecisionPhase2, res.Decision)
	require.NotNil(t, res.Handoff)
	assert.Equal(t, ReasonReasoning, res.Handoff.Reason)
	assert.NotEmpty(t, res.Handoff.ID)
}

func TestDecideAmbiguousEscalates(t *testing.T) {
	res := Decide("stuff", "",
		types.QueryAnalysis{Type: types.QueryAmbiguous},
		types.RetrievalConfidence{Level: types.ConfidenceHigh, Score: 0.9},
		[]types.RankedNode{{NodeID: "a", Score: 0.9}})

	assert.Equal(t, types.DecisionPhase2, res.Decision)
	require.NotNil(t, res.Handoff)
	assert.Equal(t, ReasonAmbiguousQuery, res.Handoff.Reason)
}

func TestDecideBlockingFlagEscalates(t *testing.T) {
	res := Decide("John's phone", "",
		types.QueryAnalysis{Type: types.QueryLookup, Entity: "John", Attribute: "phone"},
		types.RetrievalConfidence{
			Level: types.ConfidenceHigh, Score: 0.8,
			Flags: []string{FlagDisambiguationNeeded},
		},
		[]types.RankedNode{{NodeID: "a", Score: 0.8}})

	assert.Equal(t, types.DecisionPhase2, res.Decision)
	assert.Equal(t, FlagDisambiguationNeeded, res.Handoff.Reason)
}

func TestDecideByConfidenceLevel(t *testing.T) {
	analysis := types.QueryAnalysis{Type: types.QueryLookup, Entity: "John", Attribute: "phone"}
	results := []types.RankedNode{{NodeID: "a", Score: 0.9}}

	res := Decide("q", "", analysis,
		types.RetrievalConfidence{Level: types.ConfidenceHigh, Score: 0.9}, results)
	assert.Equal(t, types.DecisionSkip, res.Decision)
	assert.Nil(t, res.Handoff)

	res = Decide("q", "", analysis,
		types.RetrievalConfidence{Level: types.ConfidenceMedium, Score: 0.5}, results)
	assert.Equal(t, types.DecisionSkipWithCaveat, res.Decision)

	res = Decide("q", "", analysis,
		types.RetrievalConfidence{Level: types.ConfidenceLow, Score: 0.2}, results)
	assert.Equal(t, types.DecisionPhase2, res.Decision)
	assert.Equal(t, ReasonLowConfidence, res.Handoff.Reason)
}

func TestDecideHandoffCappedAtHundred(t *testing.T) {
	results := make([]types.RankedNode, 250)
	for i := range results {
		results[i] = types.RankedNode{NodeID: "n", Score: 0.5}
	}
	res := Decide("stuff", "", types.QueryAnalysis{Type: types.QueryAmbiguous},
		types.RetrievalConfidence{Level: types.ConfidenceLow}, results)

	require.NotNil(t, res.Handoff)
	assert.Len(t, res.Handoff.Results, 100)
}

func TestLookupQueryEndToEnd(t *testing.T) {
	query := "What's John's phone number?"

	_, disqualified := Disqualify(query)
	require.False(t, disqualified)

	analysis := ClassifyQueryType(query)
	require.Equal(t, types.QueryLookup, analysis.Type)
	require.Equal(t, "John", analysis.Entity)

	conf := newScorer().Score(0.92, nil, 1, analysis.Attribute != "")
	assert.Equal(t, types.ConfidenceHigh, conf.Level)

	res := Decide(query, "", analysis, conf, []types.RankedNode{{NodeID: "a", Score: 0.92}})
	assert.Equal(t, types.DecisionSkip, res.Decision)
	assert.Nil(t, res.Handoff)
}
