package classify

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/scrypster/recall/pkg/types"
)

// Additional escalation reasons produced by the decision tree itself.
const (
	ReasonAmbiguousQuery = "ambiguous_query"
	ReasonNoResults      = "no_results"
	ReasonLowConfidence  = "low_confidence"
)

// maxHandoffResults caps how many retrieval candidates ride along on an
// escalation.
const maxHandoffResults = 100

// blockingFlags force escalation regardless of the confidence level.
var blockingFlags = []string{FlagDisambiguationNeeded, FlagSparseResults, FlagNoResults}

// Decide renders the final routing decision for one query.
//
// disqualifiedReason is the category from Disqualify, or "" when the query
// passed. The tree escalates on disqualification, ambiguity, empty results,
// or any blocking confidence flag; otherwise the confidence level picks the
// decision directly.
func Decide(query string, disqualifiedReason string, analysis types.QueryAnalysis, conf types.RetrievalConfidence, results []types.RankedNode) types.ClassificationResult {
	res := types.ClassificationResult{
		Query:      query,
		QueryType:  analysis.Type,
		Confidence: conf,
	}

	if disqualifiedReason != "" {
		return escalate(res, disqualifiedReason,
			fmt.Sprintf("query disqualified: %s", disqualifiedReason), analysis, results)
	}
	if analysis.Type == types.QueryAmbiguous {
		return escalate(res, ReasonAmbiguousQuery,
			"query did not match any lookup pattern", analysis, results)
	}
	if len(results) == 0 {
		return escalate(res, ReasonNoResults,
			"retrieval produced no candidates", analysis, results)
	}
	for _, flag := range blockingFlags {
		if conf.HasFlag(flag) {
			return escalate(res, flag,
				fmt.Sprintf("confidence flag %s blocks a direct answer", flag), analysis, results)
		}
	}

	switch conf.Level {
	case types.ConfidenceHigh:
		res.Decision = types.DecisionSkip
		res.Explanation = fmt.Sprintf("high retrieval confidence (%.2f)", conf.Score)
	case types.ConfidenceMedium:
		res.Decision = types.DecisionSkipWithCaveat
		res.Explanation = fmt.Sprintf("medium retrieval confidence (%.2f)", conf.Score)
	default:
		return escalate(res, ReasonLowConfidence,
			fmt.Sprintf("low retrieval confidence (%.2f)", conf.Score), analysis, results)
	}
	return res
}

// escalate finalizes a PHASE2 decision and attaches handoff metadata: the
// reason, the leading retrieval candidates, and the query analysis.
func escalate(res types.ClassificationResult, reason, explanation string, analysis types.QueryAnalysis, results []types.RankedNode) types.ClassificationResult {
	res.Decision = types.DecisionPhase2
	res.Explanation = explanation

	n := len(results)
	if n > maxHandoffResults {
		n = maxHandoffResults
	}
	handed := make([]types.HandoffResult, 0, n)
	for _, r := range results[:n] {
		handed = append(handed, types.HandoffResult{NodeID: r.NodeID, Score: r.Score})
	}

	res.Handoff = &types.Handoff{
		ID:       uuid.New().String(),
		Reason:   reason,
		Results:  handed,
		Analysis: analysis,
	}
	return res
}
