package types

// RelationType is the fixed vocabulary of edge relations in the graph.
type RelationType string

// Edge relation types.
const (
	RelationSameEntity        RelationType = "same_entity"
	RelationPartOf            RelationType = "part_of"
	RelationCausedBy          RelationType = "caused_by"
	RelationMentionedTogether RelationType = "mentioned_together"
	RelationRelatedTo         RelationType = "related_to"
	RelationSimilarTo         RelationType = "similar_to"
	RelationUserLinked        RelationType = "user_linked"
	RelationTemporalAdjacent  RelationType = "temporal_adjacent"
)

// DefaultRelationWeights maps each relation type to its canonical default
// edge weight. Spreading activation multiplies propagated activation by this
// weight (or the stored per-edge weight when present).
var DefaultRelationWeights = map[RelationType]float64{
	RelationSameEntity:        1.0,
	RelationUserLinked:        0.95,
	RelationPartOf:            0.9,
	RelationCausedBy:          0.85,
	RelationSimilarTo:         0.7,
	RelationTemporalAdjacent:  0.65,
	RelationMentionedTogether: 0.6,
	RelationRelatedTo:         0.5,
}

// IsValidRelationType reports whether rt is a known relation type.
func IsValidRelationType(rt RelationType) bool {
	_, ok := DefaultRelationWeights[rt]
	return ok
}

// RelationWeight returns the canonical default weight for a relation type.
// Unknown types get the related_to weight so a bad row degrades rather than
// zeroing out a traversal path.
func RelationWeight(rt RelationType) float64 {
	if w, ok := DefaultRelationWeights[rt]; ok {
		return w
	}
	return DefaultRelationWeights[RelationRelatedTo]
}

// Edge connects two nodes in the graph.
//
// Weight is kept in [0, 1]. Cascaded decay multiplies it toward a configured
// floor as the target node's retrievability falls; it is never written below
// that floor, so edges fade but never vanish.
type Edge struct {
	// ID is the unique edge identifier.
	ID string `json:"id"`

	// Type is the relation type of this edge.
	Type RelationType `json:"type"`

	// SourceID is the originating node.
	SourceID string `json:"source_id"`

	// TargetID is the destination node.
	TargetID string `json:"target_id"`

	// Weight is the current edge weight in [0, 1].
	Weight float64 `json:"weight"`
}
