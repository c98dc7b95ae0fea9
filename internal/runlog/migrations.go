package runlog

const schema = `
CREATE TABLE IF NOT EXISTS cycles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    item_id INTEGER NOT NULL,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NOT NULL,
    outcome TEXT NOT NULL,
    decision TEXT,
    deploy_decision TEXT,
    branch TEXT,
    commit_sha TEXT,
    merge_sha TEXT,
    release_label TEXT,
    error_kind TEXT,
    error_message TEXT,
    files_created INTEGER DEFAULT 0,
    files_modified INTEGER DEFAULT 0,
    tokens_input INTEGER DEFAULT 0,
    tokens_output INTEGER DEFAULT 0,
    cost_usd REAL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_cycles_item_id ON cycles(item_id);
CREATE INDEX IF NOT EXISTS idx_cycles_outcome ON cycles(outcome);
CREATE INDEX IF NOT EXISTS idx_cycles_started_at ON cycles(started_at);
`
