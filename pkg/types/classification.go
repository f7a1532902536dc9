package types

// QueryType is the coarse classification of a query.
type QueryType string

// Query types.
const (
	// QueryLookup is a direct attribute/entity lookup ("X's phone number").
	QueryLookup QueryType = "LOOKUP"

	// QueryAmbiguous is anything the lookup patterns could not classify.
	QueryAmbiguous QueryType = "AMBIGUOUS"
)

// Decision is the final routing decision for a query.
type Decision string

// Routing decisions.
const (
	// DecisionSkip answers directly from local retrieval.
	DecisionSkip Decision = "SKIP"

	// DecisionSkipWithCaveat answers locally but flags reduced confidence.
	DecisionSkipWithCaveat Decision = "SKIP_WITH_CAVEAT"

	// DecisionPhase2 escalates to the heavy reasoning stage.
	DecisionPhase2 Decision = "PHASE2"
)

// ConfidenceLevel buckets a retrieval confidence score.
type ConfidenceLevel string

// Confidence levels.
const (
	ConfidenceHigh   ConfidenceLevel = "HIGH"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceLow    ConfidenceLevel = "LOW"
)

// QueryAnalysis is what the classifier extracted from the query text.
type QueryAnalysis struct {
	// Type is the coarse query classification.
	Type QueryType `json:"type"`

	// Entity is the subject of a lookup query, if identified.
	Entity string `json:"entity,omitempty"`

	// Attribute is the requested attribute of the entity, if identified.
	Attribute string `json:"attribute,omitempty"`

	// Entities are residual entity tokens after temporal stripping.
	Entities []string `json:"entities,omitempty"`

	// Confidence is the classification confidence in [0, 1].
	Confidence float64 `json:"confidence"`
}

// RetrievalConfidence is the RCS output: a score, its bucketed level, and
// the diagnostic flags raised while computing it.
type RetrievalConfidence struct {
	// Score is the combined retrieval confidence in [0, 1].
	Score float64 `json:"score"`

	// Level buckets the score against the configured thresholds.
	Level ConfidenceLevel `json:"level"`

	// Flags lists diagnostic conditions (e.g. "no_results",
	// "disambiguation_needed", "sparse_results", "perfect_match").
	Flags []string `json:"flags,omitempty"`
}

// HasFlag reports whether the given flag was raised.
func (r RetrievalConfidence) HasFlag(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// HandoffResult is one retrieval candidate forwarded to Phase 2.
type HandoffResult struct {
	// NodeID identifies the candidate node.
	NodeID string `json:"node_id"`

	// Score is the fused rerank score for the candidate.
	Score float64 `json:"score"`
}

// Handoff carries everything Phase 2 needs to pick up an escalated query.
type Handoff struct {
	// ID is a unique identifier for this handoff.
	ID string `json:"id"`

	// Reason is the classification reason for escalating.
	Reason string `json:"reason"`

	// Results are the top retrieval candidates (capped at 100).
	Results []HandoffResult `json:"results,omitempty"`

	// Analysis is the query analysis at escalation time.
	Analysis QueryAnalysis `json:"analysis"`
}

// ClassificationResult is the final per-query decision. Created once per
// query and never persisted.
type ClassificationResult struct {
	// Query is the original query text.
	Query string `json:"query"`

	// QueryType is the coarse classification.
	QueryType QueryType `json:"query_type"`

	// Confidence is the RCS outcome for the retrieval.
	Confidence RetrievalConfidence `json:"confidence"`

	// Decision is the routing decision.
	Decision Decision `json:"decision"`

	// Explanation is a short human-readable reason for the decision.
	Explanation string `json:"explanation"`

	// Handoff is set only when Decision is PHASE2.
	Handoff *Handoff `json:"handoff,omitempty"`
}
