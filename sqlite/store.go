package sqlite

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	telemetry "github.com/Whagons-International/whagons5-telemetry"
)

// Store implements the durable telemetry queue on a local SQLite file.
type Store struct {
	path string
	cfg  Config

	initOnce sync.Once
	initErr  error

	mu     sync.Mutex
	pool   *sqlitex.Pool
	closed bool
}

var _ telemetry.Store = (*Store)(nil)

// NewStore constructs a SQLite store with validated configuration. The
// database is not opened until Init or the first operation.
func NewStore(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, ErrPathRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Store{path: path, cfg: cfg.withDefaults()}, nil
}

// MustNewStore constructs a SQLite store or panics on error.
func MustNewStore(path string, opts ...Option) *Store {
	store, err := NewStore(path, opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// Init opens the connection pool and creates the schema. Concurrent and
// repeated calls share a single open attempt and its result.
func (s *Store) Init(ctx context.Context) error {
	s.initOnce.Do(func() {
		s.initErr = s.open(ctx)
	})

	return s.initErr
}

func (s *Store) open(ctx context.Context) error {
	pool, err := sqlitex.NewPool(s.path, sqlitex.PoolOptions{
		PoolSize: s.cfg.PoolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			pragmas := []string{
				"PRAGMA journal_mode = WAL;",
				"PRAGMA synchronous = NORMAL;",
				"PRAGMA busy_timeout = 5000;",
				"PRAGMA foreign_keys = ON;",
			}
			for _, pragma := range pragmas {
				if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
					return fmt.Errorf("telemetry sqlite: %s: %w", pragma, err)
				}
			}

			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("telemetry sqlite: open %s: %w", s.path, err)
	}

	conn, err := pool.Take(ctx)
	if err != nil {
		pool.Close()

		return fmt.Errorf("telemetry sqlite: take connection: %w", err)
	}
	defer pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		pool.Close()

		return fmt.Errorf("telemetry sqlite: create schema: %w", err)
	}

	s.mu.Lock()
	s.pool = pool
	s.mu.Unlock()
	s.cfg.Logger.Debug("telemetry sqlite: store opened", "path", s.path)

	return nil
}

// Close releases the connection pool. Operations after Close return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.pool == nil {
		s.closed = true

		return nil
	}
	s.closed = true

	return s.pool.Close()
}

func (s *Store) conn(ctx context.Context) (*sqlite.Conn, *sqlitex.Pool, error) {
	if err := s.Init(ctx); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", telemetry.ErrStoreUnavailable, err)
	}

	s.mu.Lock()
	pool := s.pool
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, nil, ErrClosed
	}

	conn, err := pool.Take(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry sqlite: take connection: %w", err)
	}

	return conn, pool, nil
}

// Enqueue upserts a record by id.
func (s *Store) Enqueue(ctx context.Context, record telemetry.Record) error {
	conn, pool, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer pool.Put(conn)

	contextJSON := any(nil)
	if record.Context != nil {
		raw, err := json.Marshal(record.Context)
		if err != nil {
			return fmt.Errorf("telemetry sqlite: marshal context: %w", err)
		}
		contextJSON = string(raw)
	}

	err = sqlitex.Execute(conn, `
		INSERT INTO error_queue (id, timestamp, created_at, category, message, stack, context, retry_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			timestamp   = excluded.timestamp,
			category    = excluded.category,
			message     = excluded.message,
			stack       = excluded.stack,
			context     = excluded.context,
			retry_count = excluded.retry_count`,
		&sqlitex.ExecOptions{Args: []any{
			record.ID,
			record.Timestamp.UnixNano(),
			record.CreatedAt.UnixNano(),
			string(record.Category),
			record.Message,
			record.Stack,
			contextJSON,
			record.RetryCount,
		}},
	)
	if err != nil {
		return fmt.Errorf("telemetry sqlite: enqueue %s: %w", record.ID, err)
	}

	return nil
}

// PendingErrors returns every persisted record, oldest first.
func (s *Store) PendingErrors(ctx context.Context) ([]telemetry.Record, error) {
	conn, pool, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer pool.Put(conn)

	var records []telemetry.Record
	err = sqlitex.Execute(conn, `
		SELECT id, timestamp, created_at, category, message, stack, context, retry_count
		FROM error_queue
		ORDER BY created_at`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				record, err := scanRecord(stmt)
				if err != nil {
					return err
				}
				records = append(records, record)

				return nil
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry sqlite: read queue: %w", err)
	}

	return records, nil
}

// Dequeue deletes a record by id. Deleting a missing id is not an error.
func (s *Store) Dequeue(ctx context.Context, id string) error {
	conn, pool, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer pool.Put(conn)

	err = sqlitex.Execute(conn, `DELETE FROM error_queue WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{id}})
	if err != nil {
		return fmt.Errorf("telemetry sqlite: dequeue %s: %w", id, err)
	}

	return nil
}

// DequeueBatch deletes several records in one statement. Missing ids are
// skipped.
func (s *Store) DequeueBatch(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	conn, pool, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer pool.Put(conn)

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := `DELETE FROM error_queue WHERE id IN (` + makePlaceholders(len(ids)) + `)`
	if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
		return fmt.Errorf("telemetry sqlite: dequeue batch of %d: %w", len(ids), err)
	}

	return nil
}

// IncrementRetry bumps a record's retry counter and returns the new value.
func (s *Store) IncrementRetry(ctx context.Context, id string) (int, bool, error) {
	conn, pool, err := s.conn(ctx)
	if err != nil {
		return 0, false, err
	}
	defer pool.Put(conn)

	count := 0
	found := false
	err = sqlitex.Execute(conn, `
		UPDATE error_queue SET retry_count = retry_count + 1
		WHERE id = ?
		RETURNING retry_count`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt(0)
				found = true

				return nil
			},
		},
	)
	if err != nil {
		return 0, false, fmt.Errorf("telemetry sqlite: increment retry %s: %w", id, err)
	}

	return count, found, nil
}

// DeleteStale removes records whose created_at is older than now-maxAge and
// returns the number removed.
func (s *Store) DeleteStale(ctx context.Context, maxAge time.Duration) (int, error) {
	conn, pool, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	defer pool.Put(conn)

	cutoff := s.cfg.Clock.Now().Add(-maxAge).UnixNano()
	err = sqlitex.Execute(conn, `DELETE FROM error_queue WHERE created_at < ?`,
		&sqlitex.ExecOptions{Args: []any{cutoff}})
	if err != nil {
		return 0, fmt.Errorf("telemetry sqlite: delete stale: %w", err)
	}

	return conn.Changes(), nil
}

// QueueSize returns the number of persisted records.
func (s *Store) QueueSize(ctx context.Context) (int, error) {
	conn, pool, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	defer pool.Put(conn)

	size := 0
	err = sqlitex.Execute(conn, `SELECT COUNT(*) FROM error_queue`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				size = stmt.ColumnInt(0)

				return nil
			},
		},
	)
	if err != nil {
		return 0, fmt.Errorf("telemetry sqlite: queue size: %w", err)
	}

	return size, nil
}

// CountByCategory returns the number of persisted records per category.
func (s *Store) CountByCategory(ctx context.Context) (map[telemetry.Category]int, error) {
	conn, pool, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer pool.Put(conn)

	counts := make(map[telemetry.Category]int)
	err = sqlitex.Execute(conn, `SELECT category, COUNT(*) FROM error_queue GROUP BY category`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				counts[telemetry.Category(stmt.ColumnText(0))] = stmt.ColumnInt(1)

				return nil
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry sqlite: count by category: %w", err)
	}

	return counts, nil
}

// Clear wipes the queue.
func (s *Store) Clear(ctx context.Context) error {
	conn, pool, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer pool.Put(conn)

	if err := sqlitex.Execute(conn, `DELETE FROM error_queue`, nil); err != nil {
		return fmt.Errorf("telemetry sqlite: clear: %w", err)
	}

	return nil
}

func scanRecord(stmt *sqlite.Stmt) (telemetry.Record, error) {
	record := telemetry.Record{
		ID:         stmt.ColumnText(0),
		Timestamp:  time.Unix(0, stmt.ColumnInt64(1)).UTC(),
		CreatedAt:  time.Unix(0, stmt.ColumnInt64(2)).UTC(),
		Category:   telemetry.Category(stmt.ColumnText(3)),
		Message:    stmt.ColumnText(4),
		Stack:      stmt.ColumnText(5),
		RetryCount: stmt.ColumnInt(7),
	}

	if raw := stmt.ColumnText(6); raw != "" {
		var ec telemetry.ErrorContext
		if err := json.Unmarshal([]byte(raw), &ec); err != nil {
			return telemetry.Record{}, fmt.Errorf("telemetry sqlite: unmarshal context for %s: %w", record.ID, err)
		}
		record.Context = &ec
	}

	return record, nil
}

func makePlaceholders(n int) string {
	if n <= 0 {
		return ""
	}

	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
