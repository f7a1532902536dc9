// Package types defines the core data structures for the recall retrieval
// system: graph nodes and edges, temporal constraints, classification results,
// and the scoring types exchanged between search, reranking, and decision.
package types

import "time"

// BehaviorType classifies how a node behaves over time. It feeds the decay
// defaults (initial stability and difficulty) and nothing else. It is
// deliberately distinct from ContentType: the two vocabularies answer
// different questions and are never unified.
type BehaviorType string

// Behavioral node types.
const (
	// BehaviorEpisode is a time-bound experience; fades fastest.
	BehaviorEpisode BehaviorType = "episode"

	// BehaviorFact is a stable piece of world knowledge.
	BehaviorFact BehaviorType = "fact"

	// BehaviorPreference is a user taste or habit; medium stability.
	BehaviorPreference BehaviorType = "preference"

	// BehaviorSkill is a learned procedure; reinforced by use.
	BehaviorSkill BehaviorType = "skill"

	// BehaviorIdentity is core user identity information; decays slowest.
	BehaviorIdentity BehaviorType = "identity"
)

// ValidBehaviorTypes lists all valid behavioral types for validation.
var ValidBehaviorTypes = []BehaviorType{
	BehaviorEpisode,
	BehaviorFact,
	BehaviorPreference,
	BehaviorSkill,
	BehaviorIdentity,
}

// IsValidBehaviorType reports whether bt is a known behavioral type.
func IsValidBehaviorType(bt BehaviorType) bool {
	for _, v := range ValidBehaviorTypes {
		if bt == v {
			return true
		}
	}
	return false
}

// ContentType classifies what a node structurally is. Used for display and
// filtering only; it never influences decay.
type ContentType string

// Structural content types.
const (
	ContentNote     ContentType = "note"
	ContentDocument ContentType = "document"
	ContentMessage  ContentType = "message"
	ContentEvent    ContentType = "event"
	ContentTask     ContentType = "task"
	ContentConcept  ContentType = "concept"
)

// ValidContentTypes lists all valid content types for validation.
var ValidContentTypes = []ContentType{
	ContentNote,
	ContentDocument,
	ContentMessage,
	ContentEvent,
	ContentTask,
	ContentConcept,
}

// IsValidContentType reports whether ct is a known content type.
func IsValidContentType(ct ContentType) bool {
	for _, v := range ValidContentTypes {
		if ct == v {
			return true
		}
	}
	return false
}

// LifecycleState is the freshness stage of a node, derived from its
// retrievability and how long it has been dormant.
type LifecycleState string

// Lifecycle states, ordered from freshest to most faded.
const (
	StateActive     LifecycleState = "active"
	StateWeak       LifecycleState = "weak"
	StateDormant    LifecycleState = "dormant"
	StateCompressed LifecycleState = "compressed"
	StateArchived   LifecycleState = "archived"
)

// lifecycleRank orders states for progression checks. Higher rank = more faded.
var lifecycleRank = map[LifecycleState]int{
	StateActive:     0,
	StateWeak:       1,
	StateDormant:    2,
	StateCompressed: 3,
	StateArchived:   4,
}

// ValidLifecycleStates lists all valid lifecycle states for validation.
var ValidLifecycleStates = []LifecycleState{
	StateActive,
	StateWeak,
	StateDormant,
	StateCompressed,
	StateArchived,
}

// IsValidLifecycleState reports whether s is a known lifecycle state.
func IsValidLifecycleState(s LifecycleState) bool {
	_, ok := lifecycleRank[s]
	return ok
}

// LifecycleRank returns the ordering rank of a state (0 = active). Unknown
// states rank as active so malformed rows never look more faded than they are.
func LifecycleRank(s LifecycleState) int {
	return lifecycleRank[s]
}

// IsLaterStage reports whether a is a later (more faded) lifecycle stage
// than b. Decay only ever moves forward through stages; only an access event
// resets a node to active.
func IsLaterStage(a, b LifecycleState) bool {
	return lifecycleRank[a] > lifecycleRank[b]
}

// Node is a single memory in the knowledge graph.
//
// The decay engine is the sole mutator of Stability, Retrievability, and
// State. Access events mutate AccessCount, LastAccessedAt, and Stability via
// the update-on-access rule. Everything else is owned by the store.
type Node struct {
	// ID is the unique node identifier.
	ID string `json:"id"`

	// Content is the node's text content.
	Content string `json:"content"`

	// BehaviorType drives the decay defaults for this node.
	BehaviorType BehaviorType `json:"behavior_type"`

	// ContentType is the structural classification; unrelated to decay.
	ContentType ContentType `json:"content_type"`

	// Stability is the memory stability S in days. Larger values decay slower.
	Stability float64 `json:"stability"`

	// Retrievability is R = e^(-Δt/S), in (0, 1] for S > 0.
	Retrievability float64 `json:"retrievability"`

	// Difficulty in [0, 1]; higher difficulty dampens stability growth.
	Difficulty float64 `json:"difficulty"`

	// AccessCount is the total number of read accesses.
	AccessCount int `json:"access_count"`

	// LastAccessedAt is when the node was last read; nil if never.
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`

	// CreatedAt is the node's creation time.
	CreatedAt time.Time `json:"created_at"`

	// State is the current lifecycle state.
	State LifecycleState `json:"state"`
}

// AccessRef returns the reference instant for decay: last access if the node
// has ever been read, creation time otherwise.
func (n *Node) AccessRef() time.Time {
	if n.LastAccessedAt != nil && !n.LastAccessedAt.IsZero() {
		return *n.LastAccessedAt
	}
	return n.CreatedAt
}
