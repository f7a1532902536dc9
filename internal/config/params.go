package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/recall/pkg/types"
)

// weightSumTolerance is how far a weight vector may drift from 1.0 before
// the configuration is rejected.
const weightSumTolerance = 1e-3

// Parameters holds every tuned number in the retrieval core. Loaded once
// from YAML, validated, then treated as immutable; hot reload swaps the
// whole struct.
type Parameters struct {
	Reranker   RerankerParams   `yaml:"reranker"`
	Hybrid     HybridParams     `yaml:"hybrid"`
	RCS        RCSParams        `yaml:"rcs"`
	Activation ActivationParams `yaml:"activation"`
	Budgets    BudgetParams     `yaml:"budgets"`
	Decay      DecayParams      `yaml:"decay"`
	Pipeline   PipelineParams   `yaml:"pipeline"`
	Embedding  EmbeddingParams  `yaml:"embedding"`
}

// RerankerParams configures the six-signal fusion.
type RerankerParams struct {
	// Weights maps each signal name to its fusion weight. Must sum to 1.0.
	Weights map[string]float64 `yaml:"weights"`

	// RecencyHalfLifeDays is the half-life of the recency signal.
	RecencyHalfLifeDays float64 `yaml:"recency_half_life_days"`

	// NewContentDays is the window in which the flat new-content boost applies.
	NewContentDays float64 `yaml:"new_content_days"`

	// NewContentBoost is the flat recency boost for brand-new content.
	NewContentBoost float64 `yaml:"new_content_boost"`

	// AuthorityCapMultiple caps inbound-degree relative to the graph average.
	AuthorityCapMultiple float64 `yaml:"authority_cap_multiple"`

	// AffinityCeiling is where the affinity signal saturates.
	AffinityCeiling float64 `yaml:"affinity_ceiling"`
}

// HybridParams configures dense/BM25 fusion for candidate gathering.
type HybridParams struct {
	// DenseWeight plus BM25Weight must sum to 1.0.
	DenseWeight float64 `yaml:"dense_weight"`
	BM25Weight  float64 `yaml:"bm25_weight"`
}

// RCSParams configures retrieval-confidence scoring.
type RCSParams struct {
	// MatchQualityWeight, DistinctivenessWeight, and CompletenessWeight are
	// the geometric-mean exponents. Must sum to 1.0.
	MatchQualityWeight    float64 `yaml:"match_quality_weight"`
	DistinctivenessWeight float64 `yaml:"distinctiveness_weight"`
	CompletenessWeight    float64 `yaml:"completeness_weight"`

	// HighThreshold and MediumThreshold bucket the score. Anything below
	// medium is LOW; no explicit low threshold exists in the parameter file.
	HighThreshold   float64 `yaml:"high_threshold"`
	MediumThreshold float64 `yaml:"medium_threshold"`
}

// ActivationParams configures spreading activation.
type ActivationParams struct {
	// InitialActivation seeds entry nodes.
	InitialActivation float64 `yaml:"initial_activation"`

	// HopDecay multiplies activation at every hop.
	HopDecay float64 `yaml:"hop_decay"`

	// MinThreshold halts a path once activation falls below it.
	MinThreshold float64 `yaml:"min_threshold"`

	// Aggregation is "sum" or "max" for multi-path arrivals.
	Aggregation string `yaml:"aggregation"`
}

// BudgetTier is one traversal limit set.
type BudgetTier struct {
	EntryPoints int `yaml:"entry_points"`
	MaxHops     int `yaml:"max_hops"`
	MaxNodes    int `yaml:"max_nodes"`
}

// BudgetParams configures adaptive traversal budgets.
type BudgetParams struct {
	// ColdStartNodes is the graph size below which the cold-start tier is
	// used regardless of query complexity.
	ColdStartNodes int `yaml:"cold_start_nodes"`

	// ColdStart is the reduced limit set for small graphs.
	ColdStart BudgetTier `yaml:"cold_start"`

	// Simple, Standard, and Complex are the per-complexity base tiers,
	// scaled by graph size and density at query time.
	Simple   BudgetTier `yaml:"simple"`
	Standard BudgetTier `yaml:"standard"`
	Complex  BudgetTier `yaml:"complex"`

	// ConvergenceWindow is how many expansion rounds the top score must stay
	// stable before traversal terminates early.
	ConvergenceWindow int `yaml:"convergence_window"`

	// ConvergenceEpsilon is the top-score movement below which a round
	// counts as stable.
	ConvergenceEpsilon float64 `yaml:"convergence_epsilon"`
}

// BehaviorDefaults are the decay defaults for one behavioral node type.
type BehaviorDefaults struct {
	// Stability is the initial stability in days.
	Stability float64 `yaml:"stability"`

	// Difficulty in [0, 1]; higher dampens stability growth on access.
	Difficulty float64 `yaml:"difficulty"`
}

// DecayParams configures the forgetting model.
type DecayParams struct {
	// ActiveThreshold is the minimum retrievability for the active state.
	ActiveThreshold float64 `yaml:"active_threshold"`

	// WeakThreshold is the minimum retrievability for the weak state.
	WeakThreshold float64 `yaml:"weak_threshold"`

	// DormantDays, CompressDays, and ArchiveDays are the successive dormancy
	// thresholds for the later lifecycle stages.
	DormantDays  float64 `yaml:"dormant_days"`
	CompressDays float64 `yaml:"compress_days"`
	ArchiveDays  float64 `yaml:"archive_days"`

	// StabilityGrowth scales stability growth on access.
	StabilityGrowth float64 `yaml:"stability_growth"`

	// CascadeFactor scales how strongly falling retrievability drags edge
	// weights down.
	CascadeFactor float64 `yaml:"cascade_factor"`

	// CascadeFloor is the minimum edge weight; cascade never writes below it.
	CascadeFloor float64 `yaml:"cascade_floor"`

	// Defaults maps behavior type → initial stability/difficulty.
	Defaults map[types.BehaviorType]BehaviorDefaults `yaml:"defaults"`
}

// PipelineParams subdivides the total query budget into named stage budgets.
type PipelineParams struct {
	// TotalBudget is the wall-clock allotment for one query.
	TotalBudget time.Duration `yaml:"total_budget"`

	// Stage budgets. Their sum may be below the total; the remainder is
	// slack for assembly overhead.
	TemporalParse  time.Duration `yaml:"temporal_parse"`
	EntityExtract  time.Duration `yaml:"entity_extract"`
	EpisodeFilter  time.Duration `yaml:"episode_filter"`
	SemanticFilter time.Duration `yaml:"semantic_filter"`
	Confidence     time.Duration `yaml:"confidence"`
	Assembly       time.Duration `yaml:"assembly"`
	Handoff        time.Duration `yaml:"handoff"`
}

// EmbeddingParams configures the fallback chain.
type EmbeddingParams struct {
	// MaxRetries is the consecutive-failure count after which the chain
	// steps down a level.
	MaxRetries int `yaml:"max_retries"`

	// RequestTimeout bounds each provider call.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DefaultParameters returns the built-in parameter set. Every value here is
// valid; LoadParameters starts from these and overlays the YAML file.
func DefaultParameters() *Parameters {
	return &Parameters{
		Reranker: RerankerParams{
			Weights: map[string]float64{
				types.SignalSemantic:  0.30,
				types.SignalKeyword:   0.15,
				types.SignalGraph:     0.20,
				types.SignalRecency:   0.15,
				types.SignalAuthority: 0.10,
				types.SignalAffinity:  0.10,
			},
			RecencyHalfLifeDays:  7,
			NewContentDays:       3,
			NewContentBoost:      0.2,
			AuthorityCapMultiple: 3.0,
			AffinityCeiling:      1.0,
		},
		Hybrid: HybridParams{DenseWeight: 0.7, BM25Weight: 0.3},
		RCS: RCSParams{
			MatchQualityWeight:    0.40,
			DistinctivenessWeight: 0.35,
			CompletenessWeight:    0.25,
			HighThreshold:         0.70,
			MediumThreshold:       0.45,
		},
		Activation: ActivationParams{
			InitialActivation: 1.0,
			HopDecay:          0.7,
			MinThreshold:      0.05,
			Aggregation:       "sum",
		},
		Budgets: BudgetParams{
			ColdStartNodes:     200,
			ColdStart:          BudgetTier{EntryPoints: 2, MaxHops: 2, MaxNodes: 50},
			Simple:             BudgetTier{EntryPoints: 3, MaxHops: 2, MaxNodes: 100},
			Standard:           BudgetTier{EntryPoints: 5, MaxHops: 3, MaxNodes: 250},
			Complex:            BudgetTier{EntryPoints: 8, MaxHops: 4, MaxNodes: 500},
			ConvergenceWindow:  3,
			ConvergenceEpsilon: 0.01,
		},
		Decay: DecayParams{
			ActiveThreshold: 0.7,
			WeakThreshold:   0.3,
			DormantDays:     30,
			CompressDays:    90,
			ArchiveDays:     180,
			StabilityGrowth: 0.5,
			CascadeFactor:   0.5,
			CascadeFloor:    0.1,
			Defaults: map[types.BehaviorType]BehaviorDefaults{
				types.BehaviorEpisode:    {Stability: 7, Difficulty: 0.5},
				types.BehaviorFact:       {Stability: 30, Difficulty: 0.3},
				types.BehaviorPreference: {Stability: 60, Difficulty: 0.3},
				types.BehaviorSkill:      {Stability: 90, Difficulty: 0.4},
				types.BehaviorIdentity:   {Stability: 365, Difficulty: 0.2},
			},
		},
		Pipeline: PipelineParams{
			TotalBudget:    55 * time.Millisecond,
			TemporalParse:  5 * time.Millisecond,
			EntityExtract:  5 * time.Millisecond,
			EpisodeFilter:  10 * time.Millisecond,
			SemanticFilter: 15 * time.Millisecond,
			Confidence:     10 * time.Millisecond,
			Assembly:       5 * time.Millisecond,
			Handoff:        5 * time.Millisecond,
		},
		Embedding: EmbeddingParams{
			MaxRetries:     3,
			RequestTimeout: 2 * time.Second,
		},
	}
}

// LoadParameters reads the YAML parameter file at path, overlays it on the
// defaults, and validates the result. An empty path returns the defaults.
func LoadParameters(path string) (*Parameters, error) {
	params := DefaultParameters()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read parameters %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, params); err != nil {
			return nil, fmt.Errorf("config: parse parameters %s: %w", path, err)
		}
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}

// Validate checks every configuration invariant. A violation is fatal to the
// configuration: the previous parameter set stays in effect on hot reload.
func (p *Parameters) Validate() error {
	if err := validateWeightSum("reranker.weights", p.Reranker.Weights); err != nil {
		return err
	}
	for name, w := range p.Reranker.Weights {
		if w < 0 {
			return fmt.Errorf("config: reranker weight %s is negative", name)
		}
	}
	for _, sig := range []string{
		types.SignalSemantic, types.SignalKeyword, types.SignalGraph,
		types.SignalRecency, types.SignalAuthority, types.SignalAffinity,
	} {
		if _, ok := p.Reranker.Weights[sig]; !ok {
			return fmt.Errorf("config: reranker weights missing signal %q", sig)
		}
	}
	if p.Reranker.RecencyHalfLifeDays <= 0 {
		return fmt.Errorf("config: recency_half_life_days must be > 0")
	}
	if p.Reranker.AuthorityCapMultiple <= 0 {
		return fmt.Errorf("config: authority_cap_multiple must be > 0")
	}

	hybridSum := p.Hybrid.DenseWeight + p.Hybrid.BM25Weight
	if math.Abs(hybridSum-1.0) > weightSumTolerance {
		return fmt.Errorf("config: hybrid weights sum to %f, want 1.0", hybridSum)
	}

	rcsSum := p.RCS.MatchQualityWeight + p.RCS.DistinctivenessWeight + p.RCS.CompletenessWeight
	if math.Abs(rcsSum-1.0) > weightSumTolerance {
		return fmt.Errorf("config: rcs weights sum to %f, want 1.0", rcsSum)
	}
	if p.RCS.HighThreshold <= p.RCS.MediumThreshold {
		return fmt.Errorf("config: rcs high_threshold must exceed medium_threshold")
	}
	if p.RCS.MediumThreshold <= 0 || p.RCS.HighThreshold > 1 {
		return fmt.Errorf("config: rcs thresholds out of range")
	}

	if p.Activation.InitialActivation <= 0 || p.Activation.InitialActivation > 1 {
		return fmt.Errorf("config: initial_activation must be in (0, 1]")
	}
	if p.Activation.HopDecay <= 0 || p.Activation.HopDecay >= 1 {
		return fmt.Errorf("config: hop_decay must be in (0, 1)")
	}
	if p.Activation.MinThreshold < 0 || p.Activation.MinThreshold >= p.Activation.InitialActivation {
		return fmt.Errorf("config: min_threshold must be in [0, initial_activation)")
	}
	if p.Activation.Aggregation != "sum" && p.Activation.Aggregation != "max" {
		return fmt.Errorf("config: aggregation must be \"sum\" or \"max\", got %q", p.Activation.Aggregation)
	}

	for _, tier := range []struct {
		name string
		t    BudgetTier
	}{
		{"cold_start", p.Budgets.ColdStart},
		{"simple", p.Budgets.Simple},
		{"standard", p.Budgets.Standard},
		{"complex", p.Budgets.Complex},
	} {
		if tier.t.EntryPoints < 1 || tier.t.MaxHops < 1 || tier.t.MaxNodes < 1 {
			return fmt.Errorf("config: budget tier %s has a non-positive limit", tier.name)
		}
	}

	if p.Decay.ActiveThreshold <= p.Decay.WeakThreshold {
		return fmt.Errorf("config: decay active_threshold must exceed weak_threshold")
	}
	if p.Decay.WeakThreshold <= 0 || p.Decay.ActiveThreshold >= 1 {
		return fmt.Errorf("config: decay thresholds out of range")
	}
	if !(p.Decay.DormantDays < p.Decay.CompressDays && p.Decay.CompressDays < p.Decay.ArchiveDays) {
		return fmt.Errorf("config: decay dormancy thresholds must strictly increase")
	}
	if p.Decay.CascadeFloor < 0 || p.Decay.CascadeFloor > 1 {
		return fmt.Errorf("config: cascade_floor must be in [0, 1]")
	}
	for bt, d := range p.Decay.Defaults {
		if !types.IsValidBehaviorType(bt) {
			return fmt.Errorf("config: decay defaults reference unknown behavior type %q", bt)
		}
		if d.Stability <= 0 {
			return fmt.Errorf("config: decay default stability for %s must be > 0", bt)
		}
		if d.Difficulty < 0 || d.Difficulty > 1 {
			return fmt.Errorf("config: decay default difficulty for %s must be in [0, 1]", bt)
		}
	}
	for _, bt := range types.ValidBehaviorTypes {
		if _, ok := p.Decay.Defaults[bt]; !ok {
			return fmt.Errorf("config: decay defaults missing behavior type %q", bt)
		}
	}

	if p.Pipeline.TotalBudget <= 0 {
		return fmt.Errorf("config: pipeline total_budget must be > 0")
	}

	if p.Embedding.MaxRetries < 1 {
		return fmt.Errorf("config: embedding max_retries must be >= 1")
	}

	return nil
}

// validateWeightSum checks that a named weight vector sums to 1.0 within
// tolerance.
func validateWeightSum(name string, weights map[string]float64) error {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if math.Abs(sum-1.0) > weightSumTolerance {
		return fmt.Errorf("config: %s sum to %f, want 1.0 (±%g)", name, sum, weightSumTolerance)
	}
	return nil
}
