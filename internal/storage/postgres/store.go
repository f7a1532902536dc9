package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// GraphStore implements storage.GraphStore using PostgreSQL with pgvector
// for dense search and tsvector full-text search for the keyword channel.
type GraphStore struct {
	db                *sql.DB
	pgvectorAvailable bool
}

// NewGraphStore opens a connection pool against dsn and applies the schema.
// pgvector is optional: without it VectorSearch returns no hits and callers
// fall back to the keyword channel.
func NewGraphStore(dsn string) (*GraphStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to ping database: %w", err)
	}

	s := &GraphStore{db: db}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to apply schema: %w", err)
	}

	if _, err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		log.Printf("postgres: pgvector extension not available (vector search disabled): %v", err)
	} else if _, err := db.Exec(MigrationPgvector); err != nil {
		log.Printf("postgres: failed to apply pgvector migration (vector search disabled): %v", err)
	} else {
		s.pgvectorAvailable = true
	}

	return s, nil
}

// Close releases the connection pool.
func (s *GraphStore) Close() error {
	return s.db.Close()
}

const nodeSelectColumns = `id, content, behavior_type, content_type, stability,
	retrievability, difficulty, access_count, last_accessed_at, created_at, state`

// GetNode retrieves a node by ID.
func (s *GraphStore) GetNode(ctx context.Context, id string) (*types.Node, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+nodeSelectColumns+` FROM nodes WHERE id = $1`, id)
	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("postgres: node %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get node %s: %w", id, err)
	}
	return node, nil
}

// GetNeighbors returns outgoing neighbors with their edges. The effective
// weight is the stored edge weight; rows with an unknown relation keep their
// weight but traversal treats the relation as related_to elsewhere.
func (s *GraphStore) GetNeighbors(ctx context.Context, id string) ([]storage.Neighbor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.source_id, e.target_id, e.relation, e.weight,
		       n.id, n.content, n.behavior_type, n.content_type, n.stability,
		       n.retrievability, n.difficulty, n.access_count, n.last_accessed_at,
		       n.created_at, n.state
		FROM edges e
		JOIN nodes n ON n.id = e.target_id
		WHERE e.source_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: neighbors of %s: %w", id, err)
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
			return nil, fmt.Errorf("postgres: scan neighbor of %s: %w", id, err)
		}
		edge.Type = types.RelationType(relation)
		if lastAcc.Valid {
			t := lastAcc.Time
			node.LastAccessedAt = &t
		}
		out = append(out, storage.Neighbor{Node: &node, Edge: &edge, Weight: edge.Weight})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: neighbors of %s: %w", id, err)
	}
	return out, nil
}

// VectorSearch returns the nearest nodes by pgvector cosine distance,
// converted to similarity so callers see higher-is-better scores.
func (s *GraphStore) VectorSearch(ctx context.Context, embedding []float32, limit int) ([]storage.SearchHit, error) {
	if !s.pgvectorAvailable || len(embedding) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, 1 - (embedding <=> $1::vector) AS similarity
		FROM nodes
		WHERE embedding IS NOT NULL AND state != 'archived'
		ORDER BY embedding <=> $1::vector
		LIMIT $2`, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanHits(rows)
}

// BM25Search runs tsvector full-text search ranked by ts_rank. The terms are
// joined into one plainto_tsquery; scores are backend-relative.
func (s *GraphStore) BM25Search(ctx context.Context, terms []string, limit int) ([]storage.SearchHit, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	query := strings.Join(terms, " ")

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts_rank(content_tsv, plainto_tsquery('english', $1)) AS rank
		FROM nodes
		WHERE content_tsv @@ plainto_tsquery('english', $1) AND state != 'archived'
		ORDER BY rank DESC
		LIMIT $2`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: keyword search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanHits(rows)
}

// GetGraphMetrics returns current graph shape metrics in a single query.
func (s *GraphStore) GetGraphMetrics(ctx context.Context) (*storage.GraphMetrics, error) {
	var m storage.GraphMetrics
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM nodes),
		       (SELECT COUNT(*) FROM edges)`).Scan(&m.TotalNodes, &m.TotalEdges)
	if err != nil {
		return nil, fmt.Errorf("postgres: graph metrics: %w", err)
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
		WHERE n.id = $1`, id).Scan(&lastAcc, &f.CreatedAt, &f.AccessCount, &f.InboundEdgeCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("postgres: rerank facts %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: rerank facts %s: %w", id, err)
	}
	if lastAcc.Valid {
		f.LastAccessedAt = lastAcc.Time
	}
	return &f, nil
}

// CreateNode inserts a node. Decay defaults are the caller's responsibility.
func (s *GraphStore) CreateNode(ctx context.Context, node *types.Node) error {
	if node.ID == "" || node.Content == "" {
		return fmt.Errorf("postgres: create node: %w", storage.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nodes (id, content, behavior_type, content_type, stability,
		                   retrievability, difficulty, access_count, last_accessed_at,
		                   created_at, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		node.ID, node.Content, string(node.BehaviorType), string(node.ContentType),
		node.Stability, node.Retrievability, node.Difficulty, node.AccessCount,
		node.LastAccessedAt, node.CreatedAt, string(node.State))
	if err != nil {
		return fmt.Errorf("postgres: create node %s: %w", node.ID, err)
	}
	return nil
}

// CreateEdge inserts an edge between two existing nodes.
func (s *GraphStore) CreateEdge(ctx context.Context, edge *types.Edge) error {
	if edge.ID == "" || edge.SourceID == "" || edge.TargetID == "" {
		return fmt.Errorf("postgres: create edge: %w", storage.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO edges (id, source_id, target_id, relation, weight)
		VALUES ($1, $2, $3, $4, $5)`,
		edge.ID, edge.SourceID, edge.TargetID, string(edge.Type), edge.Weight)
	if err != nil {
		return fmt.Errorf("postgres: create edge %s: %w", edge.ID, err)
	}
	return nil
}

// SetNodeEmbedding stores the dense vector for a node. A degraded embedding
// (nil vector) clears the column so staleness detection can re-embed later.
func (s *GraphStore) SetNodeEmbedding(ctx context.Context, id string, embedding []float32) error {
	if !s.pgvectorAvailable {
		return nil
	}
	var err error
	if embedding == nil {
		_, err = s.db.ExecContext(ctx, `UPDATE nodes SET embedding = NULL WHERE id = $1`, id)
	} else {
		_, err = s.db.ExecContext(ctx, `UPDATE nodes SET embedding = $2::vector WHERE id = $1`,
			id, pgvector.NewVector(embedding))
	}
	if err != nil {
		return fmt.Errorf("postgres: set embedding %s: %w", id, err)
	}
	return nil
}

// RecordAccess applies one access event atomically.
func (s *GraphStore) RecordAccess(ctx context.Context, id string, stability, retrievability float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE nodes
		SET access_count = access_count + 1,
		    last_accessed_at = NOW(),
		    stability = $2,
		    retrievability = $3
		WHERE id = $1`, id, stability, retrievability)
	if err != nil {
		return fmt.Errorf("postgres: record access %s: %w", id, err)
	}
	return requireRow(res, id)
}

// UpdateNodeDecay writes back one decay pass result.
func (s *GraphStore) UpdateNodeDecay(ctx context.Context, upd storage.DecayUpdate) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE nodes
		SET stability = $2, retrievability = $3, state = $4
		WHERE id = $1`,
		upd.NodeID, upd.Stability, upd.Retrievability, string(upd.State))
	if err != nil {
		return fmt.Errorf("postgres: update decay %s: %w", upd.NodeID, err)
	}
	return requireRow(res, upd.NodeID)
}

// UpdateEdgeWeight writes a cascaded edge weight.
func (s *GraphStore) UpdateEdgeWeight(ctx context.Context, edgeID string, weight float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE edges SET weight = $2 WHERE id = $1`, edgeID, weight)
	if err != nil {
		return fmt.Errorf("postgres: update edge weight %s: %w", edgeID, err)
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
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list decay candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan decay candidate: %w", err)
		}
		out = append(out, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list decay candidates: %w", err)
	}
	return out, nil
}

// GetOutgoingEdges returns all outgoing edges of a node.
func (s *GraphStore) GetOutgoingEdges(ctx context.Context, nodeID string) ([]*types.Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, target_id, relation, weight
		FROM edges WHERE source_id = $1`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("postgres: outgoing edges of %s: %w", nodeID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Edge
	for rows.Next() {
		var (
			edge     types.Edge
			relation string
		)
		if err := rows.Scan(&edge.ID, &edge.SourceID, &edge.TargetID, &relation, &edge.Weight); err != nil {
			return nil, fmt.Errorf("postgres: scan edge of %s: %w", nodeID, err)
		}
		edge.Type = types.RelationType(relation)
		out = append(out, &edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: outgoing edges of %s: %w", nodeID, err)
	}
	return out, nil
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

func scanHits(rows *sql.Rows) ([]storage.SearchHit, error) {
	var out []storage.SearchHit
	for rows.Next() {
		var h storage.SearchHit
		if err := rows.Scan(&h.NodeID, &h.Score); err != nil {
			return nil, fmt.Errorf("postgres: scan search hit: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: search rows: %w", err)
	}
	return out, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: rows affected for %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("postgres: %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

var _ storage.GraphStore = (*GraphStore)(nil)
