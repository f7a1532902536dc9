// Package postgres provides a PostgreSQL implementation of the graph store.
package postgres

// Schema contains the SQL statements to create the graph schema. All
// statements use IF NOT EXISTS so applying it is idempotent.
const Schema = `
-- Nodes table: memory graph nodes with decay state
CREATE TABLE IF NOT EXISTS nodes (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    behavior_type TEXT NOT NULL,
    content_type TEXT NOT NULL,

    -- Decay state (written only by the decay engine and access recording)
    stability REAL NOT NULL,
    retrievability REAL NOT NULL DEFAULT 1.0,
    difficulty REAL NOT NULL,
    state TEXT NOT NULL DEFAULT 'active',

    -- Access tracking
    access_count INTEGER NOT NULL DEFAULT 0,
    last_accessed_at TIMESTAMPTZ,

    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    -- Full-text search vector, maintained by trigger below
    content_tsv TSVECTOR
);

CREATE INDEX IF NOT EXISTS idx_nodes_state ON nodes(state);
CREATE INDEX IF NOT EXISTS idx_nodes_content_tsv ON nodes USING GIN(content_tsv);

-- Edges table: typed, weighted relations between nodes
CREATE TABLE IF NOT EXISTS edges (
    id TEXT PRIMARY KEY,
    source_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    target_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    relation TEXT NOT NULL,
    weight REAL NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id);

-- Keep content_tsv current on insert and update
CREATE OR REPLACE FUNCTION nodes_tsv_update() RETURNS trigger AS $$
BEGIN
    NEW.content_tsv := to_tsvector('english', NEW.content);
    RETURN NEW;
END
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_nodes_tsv ON nodes;
CREATE TRIGGER trg_nodes_tsv BEFORE INSERT OR UPDATE OF content ON nodes
FOR EACH ROW EXECUTE FUNCTION nodes_tsv_update();
`

// MigrationPgvector adds the embedding column and its index. Applied only
// when the pgvector extension is available.
const MigrationPgvector = `
ALTER TABLE nodes ADD COLUMN IF NOT EXISTS embedding vector;

CREATE INDEX IF NOT EXISTS idx_nodes_embedding_cosine
    ON nodes USING ivfflat (embedding vector_cosine_ops);
`
