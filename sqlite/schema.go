package sqlite

// Timestamps are stored as integer Unix nanoseconds so age comparisons stay
// plain integer arithmetic. The context column holds the capture context as
// a JSON document and may be NULL.
const schema = `
CREATE TABLE IF NOT EXISTS error_queue (
    id          TEXT PRIMARY KEY,
    timestamp   INTEGER NOT NULL,
    created_at  INTEGER NOT NULL,
    category    TEXT    NOT NULL,
    message     TEXT    NOT NULL,
    stack       TEXT    NOT NULL DEFAULT '',
    context     TEXT,
    retry_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_error_queue_created_at ON error_queue (created_at);
CREATE INDEX IF NOT EXISTS idx_error_queue_category   ON error_queue (category);
`
