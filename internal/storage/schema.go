package storage

const schema = `
-- The 'flashcards' table stores each user's cards together with their SM-2 scheduling state.
-- Timestamps are UTC unix milliseconds.
CREATE TABLE IF NOT EXISTS flashcards (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_id TEXT NOT NULL,
    front TEXT NOT NULL,
    back TEXT NOT NULL,
    deck_name TEXT NOT NULL DEFAULT '',
    source_ref TEXT NOT NULL DEFAULT '',
    content_hash TEXT NOT NULL DEFAULT '',
    ease_factor REAL NOT NULL DEFAULT 2.5 CHECK (ease_factor >= 1.3),
    interval_days INTEGER NOT NULL DEFAULT 0 CHECK (interval_days >= 0),
    repetitions INTEGER NOT NULL DEFAULT 0 CHECK (repetitions >= 0),
    due_at INTEGER NOT NULL,
    last_reviewed_at INTEGER,
    version INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_flashcards_owner_due ON flashcards(owner_id, due_at, id);
CREATE INDEX IF NOT EXISTS idx_flashcards_owner_hash ON flashcards(owner_id, content_hash);
CREATE INDEX IF NOT EXISTS idx_flashcards_owner_deck ON flashcards(owner_id, deck_name);
`
