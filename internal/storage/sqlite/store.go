// Package sqlite provides a SQLite implementation of the graph store. Dense
// vectors are stored as JSON and ranked in Go by cosine similarity; the
// keyword channel uses an FTS5 virtual table ranked by bm25().
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// vectorSearchMaxCandidates caps how many embeddings a vector search loads
// into memory. Candidates are selected newest first.
const vectorSearchMaxCandidates = 10000

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    behavior_type TEXT NOT NULL,
    content_type TEXT NOT NULL,
    stability REAL NOT NULL,
    retrievability REAL NOT NULL DEFAULT 1.0,
    difficulty REAL NOT NULL,
    state TEXT NOT NULL DEFAULT 'active',
    access_count INTEGER NOT NULL DEFAULT 0,
    last_accessed_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    embedding TEXT
);

CREATE INDEX IF NOT EXISTS idx_nodes_state ON nodes(state);

CREATE TABLE IF NOT EXISTS edges (
    id TEXT PRIMARY KEY,
    source_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    target_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    relation TEXT NOT NULL,
    weight REAL NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id);

CREATE VIRTUAL TABLE IF NOT EXISTS nodes_fts USING fts5(
    content,
    content='nodes',
    content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS nodes_fts_insert AFTER INSERT ON nodes BEGIN
    INSERT INTO nodes_fts(rowid, content) VALUES (new.rowid, new.content);
END;

CREATE TRIGGER IF NOT EXISTS nodes_fts_delete AFTER DELETE ON nodes BEGIN
    INSERT INTO nodes_fts(nodes_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
END;

CREATE TRIGGER IF NOT EXISTS nodes_fts_update AFTER UPDATE OF content ON nodes BEGIN
    INSERT INTO nodes_fts(nodes_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
    INSERT INTO nodes_fts(rowid, content) VALUES (new.rowid, new.content);
END;
`

// GraphStore implements storage.GraphStore using SQLite.
type GraphStore struct {
	db *sql.DB
}

// NewGraphStore opens (creating if needed) the SQLite database at path and
// applies the schema.
func NewGraphStore(path string) (*GraphStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to apply schema: %w", err)
	}

	return &GraphStore{db: db}, nil
}

// Close closes the database.
func (s *GraphStore) Close() error {
	return s.db.Close()
}

const nodeSelectColumns = `id, content, behavior_type, content_type, stability,
	retrievability, difficulty, access_count, last_accessed_at, created_at, state`

// GetNode retrieves a node by ID.
func (s *GraphStore) GetNode(ctx context.Context, id string) (*types.Node, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+nodeSelectColumns+` FROM nodes WHERE id = ?`, id)
	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: node %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get node %s: %w", id, err)
	}
	return node, nil
}

// GetNeighbors returns outgoing neighbors with their connecting edges.
func (s *GraphStore) GetNeighbors(ctx context.Context, id string) ([]storage.Neighbor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.source_id, e.target_id, e.relation, e.weight,
		       n.id, n.content, n.behavior_type, n.content_type, n.stability,
		       n.retrievability, n.difficulty, n.access_count, n.last_accessed_at,
		       n.created_at, n.state
		FROM edges e
		JOIN nodes n ON n.id = e.target_id
		WHERE e.source_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: neighbors of %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	var out []storage.Neighbor
	for rows.Next() {
		var (
			edge     types.Edge
			node     types.Node
			relation string
			lastAcc  sql.NullTime
		)
		if err := rows.Scan(
			&edge.ID, &edge.SourceID, &edge.TargetID, &relation, &edge.Weight,
			&node.ID, &node.Content, &node.BehaviorType, &node.ContentType,
			&node.Stability, &node.Retrievability, &node.Difficulty,
			&node.AccessCount, &lastAcc, &node.CreatedAt, &node.State,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scan neighbor of %s: %w", id, err)
		}
		edge.Type = types.RelationType(relation)
		if lastAcc.Valid {
			t := lastAcc.Time
			node.LastAccessedAt = &t
		}
		out = append(out, storage.Neighbor{Node: &node, Edge: &edge, Weight: edge.Weight})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: neighbors of %s: %w", id, err)
	}
	return out, nil
}

// VectorSearch loads stored embeddings (newest first, capped) and ranks them
// in Go by cosine similarity. SQLite has no native vector index; the cap
// keeps memory bounded on large graphs.
func (s *GraphStore) VectorSearch(ctx context.Context, embedding []float32, limit int) ([]storage.SearchHit, error) {
	if len(embedding) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, embedding
		FROM nodes
		WHERE embedding IS NOT NULL AND state != 'archived'
		ORDER BY created_at DESC
		LIMIT ?`, vectorSearchMaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("sqlite: vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []storage.SearchHit
	for rows.Next() {
		var (
			id  string
			raw string
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("sqlite: scan embedding: %w", err)
		}
		var stored []float32
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			continue // malformed row, skip rather than fail the search
		}
		hits = append(hits, storage.SearchHit{NodeID: id, Score: cosineSimilarity(embedding, stored)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: vector search rows: %w", err)
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].NodeID < hits[j].NodeID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// BM25Search runs FTS5 MATCH ranked by bm25(). FTS5 bm25 values are
// negative (more negative is better), so scores are negated to give callers
// higher-is-better semantics.
func (s *GraphStore) BM25Search(ctx context.Context, terms []string, limit int) ([]storage.SearchHit, error) {
	query := buildFTSQuery(terms)
	if query == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, -bm25(nodes_fts) AS score
		FROM nodes_fts fts
		JOIN nodes n ON n.rowid = fts.rowid
		WHERE nodes_fts MATCH ? AND n.state != 'archived'
		ORDER BY bm25(nodes_fts)
		LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: keyword search %q: %w", query, err)
	}
	defer func() { _ = rows.Close() }()

	var out []storage.SearchHit
	for rows.Next() {
		var h storage.SearchHit
		if err := rows.Scan(&h.NodeID, &h.Score); err != nil {
			return nil, fmt.Errorf("sqlite: scan keyword hit: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: keyword search rows: %w", err)
	}
	return out, nil
}

// GetGraphMetrics returns current graph shape metrics.
func (s *GraphStore) GetGraphMetrics(ctx context.Context) (*storage.GraphMetrics, error) {
	var m storage.GraphMetrics
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM nodes),
		       (SELECT COUNT(*) FROM edges)`).Scan(&m.TotalNodes, &m.TotalEdges)
	if err != nil {
		return nil, fmt.Errorf("sqlite: graph metrics: %w", err)
	}
	if m.TotalNodes > 0 {
		m.Density = float64(m.TotalEdges) / float64(m.TotalNodes)
		m.AvgInbound = m.Density
		m.AvgOutbound = m.Density
	}
	return &m, nil
}

// GetRerankFacts returns the per-node facts needed for reranking.
func (s *GraphStore) GetRerankFacts(ctx context.Context, id string) (*storage.RerankFacts, error) {
	var (
		f       storage.RerankFacts
		lastAcc sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT n.last_accessed_at, n.created_at, n.access_count,
		       (SELECT COUNT(*) FROM edges WHERE target_id = n.id)
		FROM nodes n
		WHERE n.id = ?`, id).Scan(&lastAcc, &f.CreatedAt, &f.AccessCount, &f.InboundEdgeCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: rerank facts %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: rerank facts %s: %w", id, err)
	}
	if lastAcc.Valid {
		f.LastAccessedAt = lastAcc.Time
	}
	return &f, nil
}

// CreateNode inserts a node.
func (s *GraphStore) CreateNode(ctx context.Context, node *types.Node) error {
	if node.ID == "" || node.Content == "" {
		return fmt.Errorf("sqlite: create node: %w", storage.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nodes (id, content, behavior_type, content_type, stability,
		                   retrievability, difficulty, access_count, last_accessed_at,
		                   created_at, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		node.ID, node.Content, string(node.BehaviorType), string(node.ContentType),
		node.Stability, node.Retrievability, node.Difficulty, node.AccessCount,
		node.LastAccessedAt, node.CreatedAt, string(node.State))
	if err != nil {
		return fmt.Errorf("sqlite: create node %s: %w", node.ID, err)
	}
	return nil
}

// CreateEdge inserts an edge between two existing nodes.
func (s *GraphStore) CreateEdge(ctx context.Context, edge *types.Edge) error {
	if edge.ID == "" || edge.SourceID == "" || edge.TargetID == "" {
		return fmt.Errorf("sqlite: create edge: %w", storage.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO edges (id, source_id, target_id, relation, weight)
		VALUES (?, ?, ?, ?, ?)`,
		edge.ID, edge.SourceID, edge.TargetID, string(edge.Type), edge.Weight)
	if err != nil {
		return fmt.Errorf("sqlite: create edge %s: %w", edge.ID, err)
	}
	return nil
}

// SetNodeEmbedding stores the dense vector for a node as JSON.
func (s *GraphStore) SetNodeEmbedding(ctx context.Context, id string, embedding []float32) error {
	var raw any
	if embedding != nil {
		data, err := json.Marshal(embedding)
		if err != nil {
			return fmt.Errorf("sqlite: marshal embedding %s: %w", id, err)
		}
		raw = string(data)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE nodes SET embedding = ? WHERE id = ?`, raw, id); err != nil {
		return fmt.Errorf("sqlite: set embedding %s: %w", id, err)
	}
	return nil
}

// RecordAccess applies one access event.
func (s *GraphStore) RecordAccess(ctx context.Context, id string, stability, retrievability float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE nodes
		SET access_count = access_count + 1,
		    last_accessed_at = CURRENT_TIMESTAMP,
		    stability = ?,
		    retrievability = ?
		WHERE id = ?`, stability, retrievability, id)
	if err != nil {
		return fmt.Errorf("sqlite: record access %s: %w", id, err)
	}
	return requireRow(res, id)
}

// UpdateNodeDecay writes back one decay pass result.
func (s *GraphStore) UpdateNodeDecay(ctx context.Context, upd storage.DecayUpdate) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE nodes SET stability = ?, retrievability = ?, state = ? WHERE id = ?`,
		upd.Stability, upd.Retrievability, string(upd.State), upd.NodeID)
	if err != nil {
		return fmt.Errorf("sqlite: update decay %s: %w", upd.NodeID, err)
	}
	return requireRow(res, upd.NodeID)
}

// UpdateEdgeWeight writes a cascaded edge weight.
func (s *GraphStore) UpdateEdgeWeight(ctx context.Context, edgeID string, weight float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE edges SET weight = ? WHERE id = ?`, weight, edgeID)
	if err != nil {
		return fmt.Errorf("sqlite: update edge weight %s: %w", edgeID, err)
	}
	return requireRow(res, edgeID)
}

// ListDecayCandidates pages non-archived nodes in stable ID order.
func (s *GraphStore) ListDecayCandidates(ctx context.Context, offset, limit int) ([]*types.Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+nodeSelectColumns+`
		FROM nodes
		WHERE state != 'archived'
		ORDER BY id
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list decay candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan decay candidate: %w", err)
		}
		out = append(out, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list decay candidates: %w", err)
	}
	return out, nil
}

// GetOutgoingEdges returns all outgoing edges of a node.
func (s *GraphStore) GetOutgoingEdges(ctx context.Context, nodeID string) ([]*types.Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, target_id, relation, weight
		FROM edges WHERE source_id = ?`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: outgoing edges of %s: %w", nodeID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Edge
	for rows.Next() {
		var (
			edge     types.Edge
			relation string
		)
		if err := rows.Scan(&edge.ID, &edge.SourceID, &edge.TargetID, &relation, &edge.Weight); err != nil {
			return nil, fmt.Errorf("sqlite: scan edge of %s: %w", nodeID, err)
		}
		edge.Type = types.RelationType(relation)
		out = append(out, &edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: outgoing edges of %s: %w", nodeID, err)
	}
	return out, nil
}

// buildFTSQuery converts free-form terms into a safe FTS5 OR query. FTS5
// syntax is fragile: a stray operator or unbalanced quote produces
// "fts5: syntax error", so anything non-alphanumeric is stripped first.
func buildFTSQuery(terms []string) string {
	var words []string
	for _, t := range terms {
		cleaned := strings.Map(func(r rune) rune {
			if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, t)
		if cleaned != "" {
			words = append(words, strings.ToLower(cleaned))
		}
	}
	return strings.Join(words, " OR ")
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*types.Node, error) {
	var (
		node    types.Node
		lastAcc sql.NullTime
	)
	if err := row.Scan(
		&node.ID, &node.Content, &node.BehaviorType, &node.ContentType,
		&node.Stability, &node.Retrievability, &node.Difficulty,
		&node.AccessCount, &lastAcc, &node.CreatedAt, &node.State,
	); err != nil {
		return nil, err
	}
	if lastAcc.Valid {
		t := lastAcc.Time
		node.LastAccessedAt = &t
	}
	return &node, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected for %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("sqlite: %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

var _ storage.GraphStore = (*GraphStore)(nil)
