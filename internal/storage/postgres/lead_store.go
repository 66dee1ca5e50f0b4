// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/leadcapture/internal/lead"
)

//go:embed schema.sql
var schemaSQL string

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it in tests.
type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// LeadStore implements store.LeadRepository using Postgres.
type LeadStore struct {
	pool pool
}

// NewLeadStore connects to Postgres using cfg.
func NewLeadStore(ctx context.Context, cfg Config) (*LeadStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &LeadStore{pool: p}, nil
}

// NewLeadStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewLeadStoreWithPool(p pool) (*LeadStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &LeadStore{pool: p}, nil
}

// Close closes the underlying connection pool.
func (s *LeadStore) Close() {
	s.pool.Close()
}

// Migrate creates the schema and the default counters if missing.
func (s *LeadStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Seed inserts keywords that are not present yet.
func (s *LeadStore) Seed(ctx context.Context, keywords []lead.Keyword) error {
	for _, kw := range keywords {
		if _, err := s.AddKeyword(ctx, kw); err != nil && !errors.Is(err, lead.ErrDuplicateKeyword) {
			return fmt.Errorf("seed keyword %q: %w", kw.Keyword, err)
		}
	}
	return nil
}

// Ping checks connectivity.
func (s *LeadStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

const (
	insertLeadSQL = `
		INSERT INTO leads (name, email, phone, location, current_occupation, experience_level, motivation_level, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id;`
	insertInterestSQL = `
		INSERT INTO lead_interests (lead_id, keyword_id, interest_level)
		VALUES ($1, $2, 3)
		ON CONFLICT DO NOTHING;`
	insertScoreSQL = `
		INSERT INTO lead_scores (lead_id, total_score, go_getter_score, travel_interest_score, sales_aptitude_score, qualified)
		VALUES ($1, $2, $3, $4, $5, $6);`
	incrementCounterSQL = `
		INSERT INTO counters (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = counters.value + 1;`
	insertKeywordSQL = `
		INSERT INTO keywords (keyword, normalized, category, priority)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (normalized) DO NOTHING
		RETURNING id;`
	listKeywordsSQL = `SELECT id, keyword, category, priority, created_at FROM keywords ORDER BY id;`
	countersSQL     = `SELECT name, value FROM counters;`
)

// SaveLead writes the lead, its interests, its score and the counters in one transaction.
func (s *LeadStore) SaveLead(ctx context.Context, rec lead.Record) (int64, error) {
	sub := rec.Submission
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var leadID int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, insertLeadSQL,
			sub.Name,
			sub.Email,
			nullable(sub.Phone),
			nullable(sub.Location),
			nullable(sub.CurrentOccupation),
			sub.ExperienceLevel,
			sub.MotivationLevel,
			nullable(sub.Source),
			createdAt,
		).Scan(&leadID)
		if err != nil {
			return fmt.Errorf("insert lead: %w", err)
		}
		for _, kwID := range rec.KeywordIDs {
			if _, err := tx.Exec(ctx, insertInterestSQL, leadID, kwID); err != nil {
				return fmt.Errorf("insert lead interest: %w", err)
			}
		}
		if _, err := tx.Exec(ctx, insertScoreSQL,
			leadID,
			rec.Score.Total,
			rec.Score.GoGetter,
			rec.Score.TravelInterest,
			rec.Score.SalesAptitude,
			rec.Qualified,
		); err != nil {
			return fmt.Errorf("insert lead score: %w", err)
		}
		if _, err := tx.Exec(ctx, incrementCounterSQL, lead.CounterFormSubmissions); err != nil {
			return fmt.Errorf("increment %s: %w", lead.CounterFormSubmissions, err)
		}
		if rec.Qualified {
			if _, err := tx.Exec(ctx, incrementCounterSQL, lead.CounterQualifiedLeads); err != nil {
				return fmt.Errorf("increment %s: %w", lead.CounterQualifiedLeads, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return leadID, nil
}

// IncrementCounter adds one to name.
func (s *LeadStore) IncrementCounter(ctx context.Context, name string) error {
	if _, err := s.pool.Exec(ctx, incrementCounterSQL, name); err != nil {
		return fmt.Errorf("increment %s: %w", name, err)
	}
	return nil
}

// Counters returns all counters.
func (s *LeadStore) Counters(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, countersSQL)
	if err != nil {
		return nil, fmt.Errorf("query counters: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var (
			name  string
			value int64
		)
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan counter: %w", err)
		}
		out[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counters: %w", err)
	}
	return out, nil
}

// ListKeywords returns the catalogue in id order.
func (s *LeadStore) ListKeywords(ctx context.Context) ([]lead.Keyword, error) {
	rows, err := s.pool.Query(ctx, listKeywordsSQL)
	if err != nil {
		return nil, fmt.Errorf("query keywords: %w", err)
	}
	defer rows.Close()
	var out []lead.Keyword
	for rows.Next() {
		var kw lead.Keyword
		if err := rows.Scan(&kw.ID, &kw.Keyword, &kw.Category, &kw.Priority, &kw.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		out = append(out, kw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keywords: %w", err)
	}
	return out, nil
}

// AddKeyword inserts kw unless a keyword with the same normalized text exists.
func (s *LeadStore) AddKeyword(ctx context.Context, kw lead.Keyword) (int64, error) {
	kw, err := kw.Prepare()
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.pool.QueryRow(ctx, insertKeywordSQL,
		kw.Keyword,
		lead.NormalizeKeyword(kw.Keyword),
		kw.Category,
		kw.Priority,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, lead.ErrDuplicateKeyword
	}
	if err != nil {
		return 0, fmt.Errorf("insert keyword: %w", err)
	}
	return id, nil
}

// MatchKeywords loads the catalogue and matches interests against it in id order.
func (s *LeadStore) MatchKeywords(ctx context.Context, interests []string) ([]int64, error) {
	if len(interests) == 0 {
		return nil, nil
	}
	keywords, err := s.ListKeywords(ctx)
	if err != nil {
		return nil, err
	}
	var ids []int64
	seen := make(map[int64]bool)
	for _, interest := range interests {
		for _, kw := range keywords {
			if !lead.MatchesInterest(kw.Keyword, interest) {
				continue
			}
			if !seen[kw.ID] {
				seen[kw.ID] = true
				ids = append(ids, kw.ID)
			}
			break
		}
	}
	return ids, nil
}

func (s *LeadStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
