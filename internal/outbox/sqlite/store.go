// Package sqlite implements the outbox store on a single SQLite database file
// using the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/JakeFAU/leadcapture/internal/outbox"
)

//go:embed schema.sql
var schemaSQL string

// currentSchemaVersion is stored in PRAGMA user_version.
//
//	1 - pending_submissions table
const currentSchemaVersion = 1

// Store is a durable outbox.Store. Every method runs in its own transaction.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the enqueue timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open creates or opens the database at path and applies the schema.
// Failures are reported as outbox.ErrStorageUnavailable.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("open outbox: %w: path is required", outbox.ErrStorageUnavailable)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("open outbox: %w: %w", outbox.ErrStorageUnavailable, err)
		}
	}
	dsn := fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate",
		path,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w: %w", outbox.ErrStorageUnavailable, err)
	}
	// One writer; SQLite serializes anyway and this avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open outbox: %w: %w", outbox.ErrStorageUnavailable, err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open outbox: %w: %w", outbox.ErrStorageUnavailable, err)
	}

	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported %d", version, currentSchemaVersion)
	}
	if version == currentSchemaVersion {
		return nil
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close outbox: %w", err)
	}
	return nil
}

// Enqueue inserts payload and returns the assigned id.
func (s *Store) Enqueue(ctx context.Context, payload []byte) (int64, error) {
	if payload == nil {
		payload = []byte{}
	}
	var id int64
	err := s.inTx(ctx, "enqueue", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO pending_submissions (payload, enqueued_at) VALUES (?, ?)`,
			payload, s.now().UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ListAll returns every queued entry ordered by id, which is insertion order.
func (s *Store) ListAll(ctx context.Context) ([]outbox.PendingSubmission, error) {
	var out []outbox.PendingSubmission
	err := s.inTx(ctx, "list", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id, payload, enqueued_at FROM pending_submissions ORDER BY id ASC`)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				entry outbox.PendingSubmission
				nanos int64
			)
			if err := rows.Scan(&entry.ID, &entry.Payload, &nanos); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			entry.EnqueuedAt = time.Unix(0, nanos).UTC()
			out = append(out, entry)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of queued entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.inTx(ctx, "count", func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_submissions`).Scan(&n); err != nil {
			return fmt.Errorf("query: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Remove deletes id. Absent ids are ignored.
func (s *Store) Remove(ctx context.Context, id int64) error {
	return s.inTx(ctx, "remove", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM pending_submissions WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w: begin: %w", op, outbox.ErrStorageUnavailable, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%s: %w: %w (rollback: %v)", op, outbox.ErrStorageUnavailable, err, rbErr)
		}
		return fmt.Errorf("%s: %w: %w", op, outbox.ErrStorageUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w: commit: %w", op, outbox.ErrStorageUnavailable, err)
	}
	return nil
}
