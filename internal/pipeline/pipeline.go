// Package pipeline runs the staged query flow: temporal parsing, query
// classification, spreading-activation retrieval, reranking, and the final
// confidence-based routing decision, all under one wall-clock budget.
package pipeline

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/scrypster/recall/internal/classify"
	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/search"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/internal/temporal"
	"github.com/scrypster/recall/pkg/types"
)

// ReasonBudgetExceeded escalates a query whose pipeline ran past its
// wall-clock allotment. Not an error: the partial result rides along on the
// handoff.
const ReasonBudgetExceeded = "budget_exceeded"

// seedPoolSize is how many hits each retrieval channel contributes before
// hybrid fusion picks the entry points.
const seedPoolSize = 20

// Embedder produces a query embedding, possibly degraded. Satisfied by
// embedding.FallbackController.
type Embedder interface {
	Embed(ctx context.Context, text string) (*types.EmbeddingResult, error)
}

// Pipeline wires the per-query stages together. Safe for concurrent use:
// every stage is stateless or internally synchronized.
type Pipeline struct {
	parser   *temporal.Parser
	scorer   *classify.Scorer
	budgets  *search.BudgetController
	activ    *search.ActivationSearch
	reranker *search.Reranker
	store    storage.GraphReader
	embedder Embedder
	params   config.PipelineParams
	hybrid   config.HybridParams
}

// New assembles a pipeline over the given store and embedder.
func New(store storage.GraphReader, embedder Embedder, params *config.Parameters) (*Pipeline, error) {
	reranker, err := search.NewReranker(store, params.Reranker)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		parser:   temporal.NewParser(),
		scorer:   classify.NewScorer(params.RCS),
		budgets:  search.NewBudgetController(params.Budgets),
		activ:    search.NewActivationSearch(store, params.Activation),
		reranker: reranker,
		store:    store,
		embedder: embedder,
		params:   params.Pipeline,
		hybrid:   params.Hybrid,
	}, nil
}

// Result is everything one query run produced.
type Result struct {
	// Classification is the routing decision and its supporting data.
	Classification types.ClassificationResult

	// Temporal is the extracted time constraint, nil when the query has no
	// time reference.
	Temporal *types.TemporalConstraint

	// Results are the reranked candidates, best first.
	Results []types.RankedNode

	// FallbackLevel reports which embedding provider served the query.
	FallbackLevel types.FallbackLevel

	// DegradedStages lists stages that degraded instead of completing.
	DegradedStages []string

	// Elapsed is total pipeline wall time.
	Elapsed time.Duration
}

// Run executes the full pipeline for one query. The reference time anchors
// temporal parsing and recency scoring; loc resolves day boundaries in the
// user's timezone (nil means UTC).
//
// Run never fails on ambiguous input: unparseable time references,
// unclassifiable queries, and degraded retrieval all flow into the decision
// rather than erroring. The only error returned is a caller-cancelled
// context.
func (p *Pipeline) Run(ctx context.Context, query string, now time.Time, loc *time.Location) (*Result, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, p.params.TotalBudget)
	defer cancel()

	res := &Result{FallbackLevel: types.FallbackPrimary}

	// Temporal parse and entity extraction are pure CPU work; they run
	// inside the total budget without their own contexts, and an overrun is
	// recorded after the fact.
	stageStart := time.Now()
	res.Temporal = p.parser.Parse(query, now, loc)
	p.checkStage(res, "temporal_parse", stageStart, p.params.TemporalParse)

	stageStart = time.Now()
	entities := temporal.ExtractEntities(query, res.Temporal)
	p.checkStage(res, "entity_extract", stageStart, p.params.EntityExtract)

	reason, _ := classify.Disqualify(query)
	analysis := classify.ClassifyQueryType(query)
	analysis.Entities = entities

	// Retrieval runs even for disqualified queries: the escalation handoff
	// carries the candidates either way.
	ranked := p.retrieve(ctx, query, entities, now, res)
	res.Results = ranked

	if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.Classification = classify.Decide(query, ReasonBudgetExceeded, analysis,
			types.RetrievalConfidence{Level: types.ConfidenceLow}, ranked)
		res.Elapsed = time.Since(start)
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stageStart = time.Now()
	conf := p.confidence(ranked, analysis)
	p.checkStage(res, "confidence", stageStart, p.params.Confidence)

	stageStart = time.Now()
	res.Classification = classify.Decide(query, reason, analysis, conf, ranked)
	p.checkStage(res, "handoff", stageStart, p.params.Handoff)

	res.Elapsed = time.Since(start)
	return res, nil
}

// checkStage records a stage that ran past its allotment. CPU stages cannot
// be pre-empted mid-work, so an overrun degrades the reported result rather
// than aborting it. A zero budget disables the check.
func (p *Pipeline) checkStage(res *Result, name string, started time.Time, budget time.Duration) {
	if budget <= 0 || time.Since(started) <= budget {
		return
	}
	log.Printf("pipeline: stage %s ran past its %v budget", name, budget)
	res.DegradedStages = append(res.DegradedStages, name)
}

// retrieve gathers candidates: hybrid dense/keyword seed selection, graph
// traversal, temporal filtering, and reranking. Every failure degrades a
// stage and is recorded; retrieval itself never fails.
func (p *Pipeline) retrieve(ctx context.Context, query string, entities []string, now time.Time, res *Result) []types.RankedNode {
	metrics, err := p.store.GetGraphMetrics(ctx)
	if err != nil {
		log.Printf("pipeline: graph metrics unavailable, cold-start budget applies: %v", err)
		metrics = nil
	}
	budget := p.budgets.BudgetFor(metrics, search.ClassifyComplexity(query, len(entities)))

	dense, keyword := p.gatherSeeds(ctx, query, entities, res)
	seeds := search.MergeHybrid(dense, keyword, p.hybrid, budget.EntryPoints)
	if len(seeds) == 0 {
		return nil
	}
	seedIDs := make([]string, len(seeds))
	for i, s := range seeds {
		seedIDs[i] = s.NodeID
	}

	episodeCtx, cancel := context.WithTimeout(ctx, p.params.EpisodeFilter)
	activated, err := p.activ.Run(episodeCtx, seedIDs, budget, p.budgets.NewConvergenceTracker())
	cancel()
	if err != nil {
		res.DegradedStages = append(res.DegradedStages, "episode_filter")
	}

	candidates := buildCandidates(dense, keyword, activated)
	candidates = p.filterTemporal(ctx, candidates, res)

	// Result assembly gets its own allotment: an expired context degrades
	// the reranker's store-backed signals to zero instead of blocking.
	assemblyCtx, cancelAssembly := context.WithTimeout(ctx, p.params.Assembly)
	defer cancelAssembly()
	stageStart := time.Now()
	ranked := p.reranker.Rank(assemblyCtx, now, candidates)
	p.checkStage(res, "assembly", stageStart, p.params.Assembly)
	return ranked
}

// gatherSeeds runs the dense and keyword channels under the semantic-filter
// budget. A degraded embedding skips the dense channel entirely; the
// keyword channel still runs on extracted entities.
func (p *Pipeline) gatherSeeds(ctx context.Context, query string, entities []string, res *Result) (dense, keyword []storage.SearchHit) {
	semCtx, cancel := context.WithTimeout(ctx, p.params.SemanticFilter)
	defer cancel()

	emb, err := p.embedder.Embed(semCtx, query)
	if emb != nil {
		res.FallbackLevel = emb.FallbackLevel
	}
	if err != nil || emb == nil || emb.Vector == nil {
		if err != nil {
			log.Printf("pipeline: embedding degraded: %v", err)
		}
		res.DegradedStages = append(res.DegradedStages, "semantic_filter")
	} else {
		dense, err = p.store.VectorSearch(semCtx, emb.Vector, seedPoolSize)
		if err != nil {
			log.Printf("pipeline: vector search unavailable: %v", err)
			res.DegradedStages = append(res.DegradedStages, "vector_search")
			dense = nil
		}
	}

	if len(entities) > 0 {
		keyword, err = p.store.BM25Search(semCtx, entities, seedPoolSize)
		if err != nil {
			log.Printf("pipeline: keyword search unavailable: %v", err)
			res.DegradedStages = append(res.DegradedStages, "keyword_search")
			keyword = nil
		}
	}
	return dense, keyword
}

// buildCandidates joins the three retrieval channels into rerank input.
// Activation is the authoritative candidate set when traversal produced
// anything; otherwise the raw seed hits carry through.
func buildCandidates(dense, keyword []storage.SearchHit, activated []types.ActivatedNode) []types.ScoredNode {
	semantic := make(map[string]float64, len(dense))
	for _, h := range dense {
		semantic[h.NodeID] = h.Score
	}
	bm25 := make(map[string]float64, len(keyword))
	for _, h := range keyword {
		bm25[h.NodeID] = h.Score
	}

	if len(activated) > 0 {
		out := make([]types.ScoredNode, 0, len(activated))
		for _, a := range activated {
			out = append(out, types.ScoredNode{
				NodeID:   a.NodeID,
				Semantic: semantic[a.NodeID],
				Keyword:  bm25[a.NodeID],
				Graph:    a.Activation,
			})
		}
		return out
	}

	seen := make(map[string]bool, len(dense)+len(keyword))
	var out []types.ScoredNode
	for _, h := range dense {
		seen[h.NodeID] = true
		out = append(out, types.ScoredNode{NodeID: h.NodeID, Semantic: h.Score, Keyword: bm25[h.NodeID]})
	}
	for _, h := range keyword {
		if !seen[h.NodeID] {
			out = append(out, types.ScoredNode{NodeID: h.NodeID, Keyword: h.Score})
		}
	}
	return out
}

// filterTemporal drops candidates created outside the query's time window.
// Node fetch failures keep the candidate: better a stale hit than a missing
// one.
func (p *Pipeline) filterTemporal(ctx context.Context, candidates []types.ScoredNode, res *Result) []types.ScoredNode {
	if res.Temporal == nil || len(candidates) == 0 {
		return candidates
	}

	out := candidates[:0]
	degraded := false
	for _, c := range candidates {
		node, err := p.store.GetNode(ctx, c.NodeID)
		if err != nil {
			degraded = true
			out = append(out, c)
			continue
		}
		if node.CreatedAt.Before(res.Temporal.RangeStart) || node.CreatedAt.After(res.Temporal.RangeEnd) {
			continue
		}
		out = append(out, c)
	}
	if degraded {
		res.DegradedStages = append(res.DegradedStages, "temporal_filter")
	}
	return out
}

// confidence computes RCS from the ranked list and the query analysis.
func (p *Pipeline) confidence(ranked []types.RankedNode, analysis types.QueryAnalysis) types.RetrievalConfidence {
	if len(ranked) == 0 {
		return p.scorer.Score(0, nil, 0, analysis.Attribute != "")
	}
	top := ranked[0].Score
	var second *float64
	if len(ranked) > 1 {
		second = &ranked[1].Score
	}
	return p.scorer.Score(top, second, len(ranked), analysis.Attribute != "")
}
