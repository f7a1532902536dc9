package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/recall/internal/classify"
	"github.com/scrypster/recall/internal/decay"
	"github.com/scrypster/recall/internal/pipeline"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// maxQueryLength bounds accepted query text.
const maxQueryLength = 1024

// EmbeddingWriter is the optional store capability for persisting node
// embeddings. Both SQL backends provide it.
type EmbeddingWriter interface {
	SetNodeEmbedding(ctx context.Context, id string, embedding []float32) error
}

// Handlers holds the API handler dependencies.
type Handlers struct {
	store    storage.GraphStore
	pipe     atomic.Pointer[pipeline.Pipeline]
	engine   *decay.Engine
	embedder pipeline.Embedder
}

// NewHandlers builds the API handlers.
func NewHandlers(store storage.GraphStore, pipe *pipeline.Pipeline, engine *decay.Engine, embedder pipeline.Embedder) *Handlers {
	h := &Handlers{store: store, engine: engine, embedder: embedder}
	h.pipe.Store(pipe)
	return h
}

// SetPipeline swaps in a new pipeline. Used when the parameter file is
// hot-reloaded; in-flight requests finish on the old one.
func (h *Handlers) SetPipeline(pipe *pipeline.Pipeline) {
	h.pipe.Store(pipe)
}

type classifyRequest struct {
	Query string `json:"query"`
}

type classifyResponse struct {
	Disqualified bool                `json:"disqualified"`
	Reason       string              `json:"reason,omitempty"`
	Analysis     types.QueryAnalysis `json:"analysis"`
}

// Classify runs only the cheap classification stages: disqualifiers and
// query-type patterns. No retrieval happens here.
func (h *Handlers) Classify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if !decodeQueryRequest(w, r, &req.Query, &req) {
		return
	}

	reason, disqualified := classify.Disqualify(req.Query)
	resp := classifyResponse{
		Disqualified: disqualified,
		Reason:       reason,
		Analysis:     classify.ClassifyQueryType(req.Query),
	}
	writeJSON(w, http.StatusOK, resp)
}

type queryRequest struct {
	Query    string `json:"query"`
	Timezone string `json:"timezone,omitempty"`
}

type queryResponse struct {
	Classification types.ClassificationResult `json:"classification"`
	Results        []types.RankedNode         `json:"results,omitempty"`
	Temporal       *types.TemporalConstraint  `json:"temporal,omitempty"`
	FallbackLevel  types.FallbackLevel        `json:"fallback_level"`
	DegradedStages []string                   `json:"degraded_stages,omitempty"`
	ElapsedMs      float64                    `json:"elapsed_ms"`
}

// Query runs the full retrieval pipeline and records access events for the
// nodes a direct answer would surface.
func (h *Handlers) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !decodeQueryRequest(w, r, &req.Query, &req) {
		return
	}

	loc := time.UTC
	if req.Timezone != "" {
		parsed, err := time.LoadLocation(req.Timezone)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unknown timezone")
			return
		}
		loc = parsed
	}

	res, err := h.pipe.Load().Run(r.Context(), req.Query, time.Now(), loc)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "query cancelled")
		return
	}

	if res.Classification.Decision != types.DecisionPhase2 {
		h.recordAccesses(r.Context(), res.Results)
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Classification: res.Classification,
		Results:        res.Results,
		Temporal:       res.Temporal,
		FallbackLevel:  res.FallbackLevel,
		DegradedStages: res.DegradedStages,
		ElapsedMs:      float64(res.Elapsed.Microseconds()) / 1000,
	})
}

// recordAccesses applies the update-on-access rule to answered-from nodes.
// Failures are logged, not surfaced: access tracking is advisory.
func (h *Handlers) recordAccesses(ctx context.Context, results []types.RankedNode) {
	for _, r := range results {
		node, err := h.store.GetNode(ctx, r.NodeID)
		if err != nil {
			log.Printf("server: record access %s: %v", r.NodeID, err)
			continue
		}
		stability, retrievability := h.engine.OnAccess(node)
		if err := h.store.RecordAccess(ctx, r.NodeID, stability, retrievability); err != nil {
			log.Printf("server: record access %s: %v", r.NodeID, err)
		}
	}
}

type createNodeRequest struct {
	Content      string             `json:"content"`
	BehaviorType types.BehaviorType `json:"behavior_type"`
	ContentType  types.ContentType  `json:"content_type"`
}

type createNodeResponse struct {
	ID          string `json:"id"`
	Provisional bool   `json:"provisional"`
}

// CreateNode ingests one node: decay defaults applied by behavioral type, an
// embedding produced through the fallback chain, and provisional results
// flagged so staleness detection can re-embed later.
func (h *Handlers) CreateNode(w http.ResponseWriter, r *http.Request) {
	var req createNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if !types.IsValidBehaviorType(req.BehaviorType) {
		writeError(w, http.StatusBadRequest, "unknown behavior_type")
		return
	}
	if !types.IsValidContentType(req.ContentType) {
		writeError(w, http.StatusBadRequest, "unknown content_type")
		return
	}

	node := &types.Node{
		ID:           uuid.New().String(),
		Content:      req.Content,
		BehaviorType: req.BehaviorType,
		ContentType:  req.ContentType,
		CreatedAt:    time.Now().UTC(),
		State:        types.StateActive,
	}
	h.engine.NewNode(node)

	if err := h.store.CreateNode(r.Context(), node); err != nil {
		if errors.Is(err, storage.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "invalid node")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to store node")
		return
	}

	provisional := false
	emb, err := h.embedder.Embed(r.Context(), req.Content)
	if err != nil || emb == nil || emb.Vector == nil {
		// Degraded embedding: the node exists without a vector and the
		// keyword channel still finds it.
		log.Printf("server: embedding for new node %s degraded: %v", node.ID, err)
		provisional = true
	} else {
		provisional = emb.Provisional
		if writer, ok := h.store.(EmbeddingWriter); ok {
			if err := writer.SetNodeEmbedding(r.Context(), node.ID, emb.Vector); err != nil {
				log.Printf("server: store embedding for %s: %v", node.ID, err)
			}
		}
	}

	writeJSON(w, http.StatusCreated, createNodeResponse{ID: node.ID, Provisional: provisional})
}

type createEdgeRequest struct {
	SourceID string             `json:"source_id"`
	TargetID string             `json:"target_id"`
	Type     types.RelationType `json:"type"`
	Weight   *float64           `json:"weight,omitempty"`
}

// CreateEdge links two nodes. Weight defaults to the relation's canonical
// weight when omitted.
func (h *Handlers) CreateEdge(w http.ResponseWriter, r *http.Request) {
	var req createEdgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SourceID == "" || req.TargetID == "" {
		writeError(w, http.StatusBadRequest, "source_id and target_id are required")
		return
	}
	if !types.IsValidRelationType(req.Type) {
		writeError(w, http.StatusBadRequest, "unknown relation type")
		return
	}

	weight := types.RelationWeight(req.Type)
	if req.Weight != nil {
		if *req.Weight < 0 || *req.Weight > 1 {
			writeError(w, http.StatusBadRequest, "weight must be in [0, 1]")
			return
		}
		weight = *req.Weight
	}

	edge := &types.Edge{
		ID:       uuid.New().String(),
		SourceID: req.SourceID,
		TargetID: req.TargetID,
		Type:     req.Type,
		Weight:   weight,
	}
	if err := h.store.CreateEdge(r.Context(), edge); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store edge")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": edge.ID})
}

// Health reports liveness and store reachability.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.GetGraphMetrics(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeQueryRequest decodes a JSON body carrying a query field and
// validates it. Returns false after writing an error response.
func decodeQueryRequest(w http.ResponseWriter, r *http.Request, query *string, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if *query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return false
	}
	if len(*query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "query too long")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
