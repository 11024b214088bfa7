package sqlite

const schema = `
-- Candidates table
CREATE TABLE IF NOT EXISTS candidates (
    id TEXT PRIMARY KEY,
    batch_id TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL CHECK(length(title) <= 500),
    content TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'active',
    round_reached INTEGER NOT NULL DEFAULT 0,
    score_history TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_candidates_batch ON candidates(batch_id);
CREATE INDEX IF NOT EXISTS idx_candidates_status ON candidates(status);

-- Candidate ID counter for atomic cand-N generation
CREATE TABLE IF NOT EXISTS candidate_counters (
    prefix TEXT PRIMARY KEY,
    last_id INTEGER NOT NULL DEFAULT 0
);

-- Tournaments table
CREATE TABLE IF NOT EXISTS tournaments (
    id TEXT PRIMARY KEY,
    batch_id TEXT NOT NULL DEFAULT '',
    target_k INTEGER NOT NULL CHECK(target_k >= 1),
    phase TEXT NOT NULL DEFAULT 'running',
    criteria TEXT NOT NULL DEFAULT '[]',
    personas TEXT NOT NULL DEFAULT '[]',
    last_round INTEGER NOT NULL DEFAULT 0,
    winner_ids TEXT NOT NULL DEFAULT '[]',
    abort_reason TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_tournaments_phase ON tournaments(phase);
CREATE INDEX IF NOT EXISTS idx_tournaments_created_at ON tournaments(created_at);

-- Rounds table
-- input_ids/output_ids are JSON arrays of candidate ids; output_ids stays
-- empty until the round barrier releases
CREATE TABLE IF NOT EXISTS rounds (
    tournament_id TEXT NOT NULL,
    number INTEGER NOT NULL CHECK(number >= 1),
    input_ids TEXT NOT NULL DEFAULT '[]',
    output_ids TEXT NOT NULL DEFAULT '[]',
    bye_id TEXT NOT NULL DEFAULT '',
    started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    completed_at DATETIME,
    PRIMARY KEY (tournament_id, number),
    FOREIGN KEY (tournament_id) REFERENCES tournaments(id) ON DELETE CASCADE
);

-- Matchups table
-- verdicts is the full JSON panel output, kept verbatim for audit
CREATE TABLE IF NOT EXISTS matchups (
    id TEXT PRIMARY KEY,
    tournament_id TEXT NOT NULL,
    round INTEGER NOT NULL,
    candidate_a TEXT NOT NULL,
    candidate_b TEXT NOT NULL,
    verdicts TEXT NOT NULL DEFAULT '[]',
    winner_id TEXT NOT NULL DEFAULT '',
    reason TEXT NOT NULL DEFAULT '',
    score_a REAL NOT NULL DEFAULT 0,
    score_b REAL NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    resolved_at DATETIME,
    FOREIGN KEY (tournament_id) REFERENCES tournaments(id) ON DELETE CASCADE,
    FOREIGN KEY (candidate_a) REFERENCES candidates(id),
    FOREIGN KEY (candidate_b) REFERENCES candidates(id)
);

CREATE INDEX IF NOT EXISTS idx_matchups_tournament_round ON matchups(tournament_id, round);

-- Archive table (append-only; the UNIQUE constraint backs idempotent writes)
CREATE TABLE IF NOT EXISTS archive_entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    candidate_id TEXT NOT NULL UNIQUE,
    tournament_id TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    embedding BLOB,
    embedding_model TEXT NOT NULL DEFAULT '',
    elimination_round INTEGER NOT NULL DEFAULT 0,
    reason TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_archive_hash ON archive_entries(content_hash);
CREATE INDEX IF NOT EXISTS idx_archive_tournament ON archive_entries(tournament_id);

-- Audit events table (append-only; no retention policy by contract)
CREATE TABLE IF NOT EXISTS audit_events (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    timestamp DATETIME NOT NULL,
    tournament_id TEXT NOT NULL DEFAULT '',
    candidate_id TEXT NOT NULL DEFAULT '',
    round INTEGER NOT NULL DEFAULT 0,
    actor TEXT NOT NULL,
    severity TEXT NOT NULL CHECK(severity IN ('info', 'warning', 'error')),
    message TEXT NOT NULL,
    data TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_audit_events_tournament ON audit_events(tournament_id);
CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(type);
CREATE INDEX IF NOT EXISTS idx_audit_events_severity ON audit_events(severity);
CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp);

-- Config table
CREATE TABLE IF NOT EXISTS config (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
