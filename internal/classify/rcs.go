package classify

import (
	"math"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/pkg/types"
)

// Diagnostic flags raised by confidence scoring.
const (
	FlagNoResults            = "no_results"
	FlagDisambiguationNeeded = "disambiguation_needed"
	FlagSparseResults        = "sparse_results"
	FlagAttributeUnknown     = "attribute_unknown"
	FlagPerfectMatch         = "perfect_match"
)

// factorFloor keeps a zero factor from annihilating the geometric mean.
const factorFloor = 0.1

// Scorer computes the retrieval confidence score: a weighted geometric mean
// of match quality, distinctiveness, and completeness.
type Scorer struct {
	params config.RCSParams
}

// NewScorer returns a scorer using the given thresholds and weights.
func NewScorer(params config.RCSParams) *Scorer {
	return &Scorer{params: params}
}

// Score computes retrieval confidence from the rerank outcome. secondScore
// is nil when fewer than two results exist; hasAttribute reports whether
// query classification identified the requested attribute.
func (s *Scorer) Score(topScore float64, secondScore *float64, resultCount int, hasAttribute bool) types.RetrievalConfidence {
	if resultCount == 0 {
		return types.RetrievalConfidence{
			Score: 0,
			Level: types.ConfidenceLow,
			Flags: []string{FlagNoResults},
		}
	}

	mq := clamp01(topScore)

	gap := 1.0
	if secondScore != nil {
		gap = topScore - *secondScore
	}
	gapNorm := math.Min(gap/0.3, 1)
	if gapNorm < 0 {
		gapNorm = 0
	}

	var focus float64
	switch {
	case resultCount == 1:
		focus = 1.0
	case resultCount <= 5:
		focus = 0.8
	case resultCount <= 15:
		focus = 0.5
	default:
		focus = 0.3
	}

	dt := 0.5*gapNorm + 0.5*focus

	cm := 0.5
	if hasAttribute {
		cm = 1.0
	}

	score := math.Pow(math.Max(mq, factorFloor), s.params.MatchQualityWeight) *
		math.Pow(math.Max(dt, factorFloor), s.params.DistinctivenessWeight) *
		math.Pow(math.Max(cm, factorFloor), s.params.CompletenessWeight)

	if mq < 0.3 || dt < 0.2 {
		score = math.Min(score, 0.4)
	}
	if !hasAttribute {
		score = math.Min(score, 0.7)
	}
	score = clamp01(score)

	var flags []string
	if resultCount > 1 && gap < 0.15 {
		flags = append(flags, FlagDisambiguationNeeded)
	}
	if resultCount < 3 && mq < 0.6 {
		flags = append(flags, FlagSparseResults)
	}
	if !hasAttribute {
		flags = append(flags, FlagAttributeUnknown)
	}
	if mq > 0.95 && dt > 0.8 && hasAttribute {
		flags = append(flags, FlagPerfectMatch)
	}

	return types.RetrievalConfidence{
		Score: score,
		Level: s.level(score),
		Flags: flags,
	}
}

func (s *Scorer) level(score float64) types.ConfidenceLevel {
	switch {
	case score >= s.params.HighThreshold:
		return types.ConfidenceHigh
	case score >= s.params.MediumThreshold:
		return types.ConfidenceMedium
	default:
		return types.ConfidenceLow
	}
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
