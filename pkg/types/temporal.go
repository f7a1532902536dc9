package types

import "time"

// ExpressionType classifies how a temporal reference was phrased.
type ExpressionType string

// Temporal expression types.
const (
	// ExpressionExplicitRelative covers "yesterday", "last week", "3 days ago".
	ExpressionExplicitRelative ExpressionType = "explicit_relative"

	// ExpressionExplicitAbsolute covers named months, with or without a year.
	ExpressionExplicitAbsolute ExpressionType = "explicit_absolute"

	// ExpressionFuzzyPeriod covers "recently", "a while back", seasons.
	ExpressionFuzzyPeriod ExpressionType = "fuzzy_period"
)

// ConfidenceFactors decomposes temporal-parse confidence into three
// independent components, each in [0, 1]. Immutable once created.
type ConfidenceFactors struct {
	// Source is how reliable the matched pattern itself is.
	Source float64 `json:"source"`

	// Granularity is how precisely the expression pins down a range.
	Granularity float64 `json:"granularity"`

	// Interpretation is how unambiguous the mapping to a range was.
	Interpretation float64 `json:"interpretation"`
}

// Combined returns the combined confidence: the product of the three factors.
func (f ConfidenceFactors) Combined() float64 {
	return f.Source * f.Granularity * f.Interpretation
}

// TemporalConstraint is the date window extracted from a query. It is scoped
// to a single request and never persisted.
//
// A nil *TemporalConstraint means the query carries no time reference; the
// parser reports that case with full confidence (certainty that no time
// reference is present), not as an error.
type TemporalConstraint struct {
	// RangeStart is the inclusive start of the window.
	RangeStart time.Time `json:"range_start"`

	// RangeEnd is the inclusive end of the window.
	RangeEnd time.Time `json:"range_end"`

	// RangeConfidence is the parser's confidence in this window, in [0, 1].
	RangeConfidence float64 `json:"range_confidence"`

	// ExpressionType records how the reference was phrased.
	ExpressionType ExpressionType `json:"expression_type"`

	// OriginalExpression is the matched substring from the query.
	OriginalExpression string `json:"original_expression"`
}
