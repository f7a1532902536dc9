// Package classify decides whether a query can be answered from local
// retrieval alone or must escalate to the heavy reasoning stage. It runs
// disqualifier checks, classifies the query shape, scores retrieval
// confidence, and renders the final routing decision.
package classify

import "regexp"

// Disqualifier categories, in check order. The first category with any
// matching pattern wins and becomes the escalation reason, so ordering is
// part of the contract.
const (
	ReasonReasoning           = "reasoning_required"
	ReasonNegation            = "negation"
	ReasonTimeReference       = "time_reference"
	ReasonCompoundQuestion    = "compound_question"
	ReasonUnresolvedReference = "unresolved_reference"
	ReasonExploration         = "exploration"
)

// disqualifierRule is one category with its pattern list.
type disqualifierRule struct {
	reason   string
	patterns []*regexp.Regexp
}

// disqualifiers are checked in order; patterns within a category are tried
// in order too, though only the category matters for the reported reason.
var disqualifiers = []disqualifierRule{
	{
		reason: ReasonReasoning,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^\s*why\b`),
			regexp.MustCompile(`(?i)\bhow come\b`),
			regexp.MustCompile(`(?i)\bwhat if\b`),
			regexp.MustCompile(`(?i)\bshould (i|we|they)\b`),
			regexp.MustCompile(`(?i)\b(compare|comparison|versus|vs\.?)\b`),
			regexp.MustCompile(`(?i)\b(explain|reason(ing)?|because)\b`),
			regexp.MustCompile(`(?i)\b(better|worse|best|worst) (than|option|choice)\b`),
		},
	},
	{
		reason: ReasonNegation,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bnot\b`),
			regexp.MustCompile(`(?i)\bnever\b`),
			regexp.MustCompile(`(?i)\bno longer\b`),
			regexp.MustCompile(`(?i)\b(don'?t|didn'?t|doesn'?t|isn'?t|wasn'?t|aren'?t|weren'?t)\b`),
			regexp.MustCompile(`(?i)\bwithout\b`),
			regexp.MustCompile(`(?i)\bexcept\b`),
		},
	},
	{
		reason: ReasonTimeReference,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(yesterday|today|tonight|tomorrow)\b`),
			regexp.MustCompile(`(?i)\blast (night|week|month|year|time)\b`),
			regexp.MustCompile(`(?i)\bthis (morning|afternoon|evening|week|month|year)\b`),
			regexp.MustCompile(`(?i)\b\d+\s+(day|week|month|year)s?\s+ago\b`),
			regexp.MustCompile(`(?i)\brecently\b`),
			regexp.MustCompile(`(?i)\bwhen (did|was|were|i|we)\b`),
			regexp.MustCompile(`(?i)\ba while (back|ago)\b`),
		},
	},
	{
		reason: ReasonCompoundQuestion,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\?.+\?`),
			regexp.MustCompile(`(?i)\band (what|who|where|when|how|which)\b`),
			regexp.MustCompile(`(?i)\bas well as\b`),
			regexp.MustCompile(`;`),
		},
	},
	{
		reason: ReasonUnresolvedReference,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^\s*(what|who|where|when|which)\s+(is|was|are|were)\s+(it|that|this|he|she|they|those|these)\b`),
			regexp.MustCompile(`(?i)\bthe (one|thing|person|place|guy) (i|we|you|they)\b`),
			regexp.MustCompile(`(?i)\b(him|her|them)\s*\??\s*$`),
		},
	},
	{
		reason: ReasonExploration,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\btell me (about|everything|more)\b`),
			regexp.MustCompile(`(?i)\bwhat do you know\b`),
			regexp.MustCompile(`(?i)\b(everything|anything|all you know) about\b`),
			regexp.MustCompile(`(?i)\b(show|list|give) me (all|every)\b`),
			regexp.MustCompile(`(?i)\b(brainstorm|ideas|suggestions?|recommend)\b`),
		},
	},
}

// Disqualify checks the query against every disqualifier category in order
// and returns the first matching category's reason. The second return is
// false when nothing matched and the query may proceed to classification.
func Disqualify(query string) (string, bool) {
	for _, rule := range disqualifiers {
		for _, re := range rule.patterns {
			if re.MatchString(query) {
				return rule.reason, true
			}
		}
	}
	return "", false
}
