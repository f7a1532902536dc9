// Package decay implements the forgetting model for graph nodes: an
// exponential retrievability curve, discrete lifecycle transitions, stability
// growth on access, and weight cascade to outgoing edges.
//
// Every computation is a pure function of current state and elapsed time, so
// the periodic batch pass is idempotent and safe to interleave with
// concurrent reads. A stale retrievability value only affects ranking
// quality, never correctness.
package decay

import (
	"math"
	"time"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/pkg/types"
)

const hoursPerDay = 24.0

// Engine computes decay state. It holds only configuration; all node state
// is passed in and returned, never stored.
type Engine struct {
	params config.DecayParams
}

// NewEngine returns a decay engine using the given parameters.
func NewEngine(params config.DecayParams) *Engine {
	return &Engine{params: params}
}

// Retrievability returns R = e^(-Δt/S) for Δt days elapsed and stability S
// in days. R is strictly in (0, 1] for S > 0; a non-positive S degrades to
// fully retrievable rather than dividing by zero.
func Retrievability(elapsedDays, stability float64) float64 {
	if stability <= 0 {
		return 1.0
	}
	if elapsedDays < 0 {
		elapsedDays = 0
	}
	return math.Exp(-elapsedDays / stability)
}

// State holds the decay outcome for one node at one instant.
type State struct {
	// Retrievability is the current R value.
	Retrievability float64

	// Lifecycle is the stage derived from (R, days dormant).
	Lifecycle types.LifecycleState
}

// Compute returns the node's decay state at the given instant. The lifecycle
// stage is a pure function of retrievability and dormancy duration; callers
// enforce that stages never regress without an access event.
func (e *Engine) Compute(node *types.Node, now time.Time) State {
	elapsed := now.Sub(node.AccessRef()).Hours() / hoursPerDay
	r := Retrievability(elapsed, node.Stability)
	return State{
		Retrievability: r,
		Lifecycle:      e.lifecycle(r, elapsed),
	}
}

// lifecycle maps (retrievability, days dormant) to a stage. Dormancy
// thresholds dominate: once a node has sat unaccessed long enough, its stage
// advances regardless of how slowly its curve decays.
func (e *Engine) lifecycle(r, daysDormant float64) types.LifecycleState {
	switch {
	case daysDormant > e.params.ArchiveDays:
		return types.StateArchived
	case daysDormant > e.params.CompressDays:
		return types.StateCompressed
	case daysDormant > e.params.DormantDays:
		return types.StateDormant
	case r >= e.params.ActiveThreshold:
		return types.StateActive
	case r >= e.params.WeakThreshold:
		return types.StateWeak
	default:
		return types.StateDormant
	}
}

// OnAccess applies the update-on-access rule and returns the node's new
// stability and retrievability. Stability grows by a factor damped by the
// node's difficulty; retrievability resets to 1. The caller persists the
// result together with the access-count increment.
func (e *Engine) OnAccess(node *types.Node) (stability, retrievability float64) {
	growth := 1 + e.params.StabilityGrowth*(1-clamp01(node.Difficulty))
	return node.Stability * growth, 1.0
}

// CascadeWeight returns the new weight for an outgoing edge of a node whose
// retrievability is r. The multiplier shrinks toward the configured floor as
// r falls; the result is never below the floor, so edges fade but never
// vanish.
func (e *Engine) CascadeWeight(weight, r float64) float64 {
	factor := 1 - e.params.CascadeFactor*(1-clamp01(r))
	cascaded := weight * factor
	if cascaded < e.params.CascadeFloor {
		return e.params.CascadeFloor
	}
	return cascaded
}

// Defaults returns the initial stability and difficulty for a node of the
// given behavioral type. Unknown types get the episode defaults, the most
// conservative (fastest-fading) entry.
func (e *Engine) Defaults(bt types.BehaviorType) config.BehaviorDefaults {
	if d, ok := e.params.Defaults[bt]; ok {
		return d
	}
	return e.params.Defaults[types.BehaviorEpisode]
}

// NewNode fills in the decay fields of a freshly created node from the
// behavioral defaults.
func (e *Engine) NewNode(node *types.Node) {
	d := e.Defaults(node.BehaviorType)
	node.Stability = d.Stability
	node.Difficulty = d.Difficulty
	node.Retrievability = 1.0
	node.State = types.StateActive
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
