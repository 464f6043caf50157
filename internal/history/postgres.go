package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists conversation history in PostgreSQL. Ordering is an
// explicit invariant of the table (seq column), not a timestamp accident.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversation_turns (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			speaker TEXT NOT NULL,
			content TEXT NOT NULL,
			redacted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_turns_owner_seq ON conversation_turns (owner_id, seq);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, ownerID string, turn Turn) error {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return ErrEmptyOwner
	}
	if strings.TrimSpace(turn.Text) == "" {
		return ErrEmptyText
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversation_turns (id, owner_id, speaker, content, redacted, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		turn.ID,
		ownerID,
		string(turn.Speaker),
		turn.Text,
		turn.Redacted,
		turn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

func (s *PostgresStore) LastK(ctx context.Context, ownerID string, k int) ([]Turn, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrEmptyOwner
	}
	if k <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, speaker, content, redacted, created_at
		 FROM conversation_turns WHERE owner_id=$1 ORDER BY seq DESC LIMIT $2`,
		ownerID,
		k,
	)
	if err != nil {
		return nil, fmt.Errorf("query last turns: %w", err)
	}
	defer rows.Close()

	items, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}

	// Reverse into insertion order for prompt coherence.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

func (s *PostgresStore) Clear(ctx context.Context, ownerID string) error {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return ErrEmptyOwner
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM conversation_turns WHERE owner_id=$1`, ownerID); err != nil {
		return fmt.Errorf("clear turns: %w", err)
	}
	return nil
}

func (s *PostgresStore) QueryBySubstring(ctx context.Context, ownerID, substring string) ([]Turn, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrEmptyOwner
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, speaker, content, redacted, created_at
		 FROM conversation_turns
		 WHERE owner_id=$1 AND ($2 = '' OR content ILIKE '%' || $2 || '%')
		 ORDER BY seq ASC`,
		ownerID,
		substring,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	return scanTurns(rows)
}

type turnRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanTurns(rows turnRows) ([]Turn, error) {
	var items []Turn
	for rows.Next() {
		var t Turn
		var speaker string
		if err := rows.Scan(&t.ID, &t.Owner, &speaker, &t.Text, &t.Redacted, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		t.Speaker = Speaker(speaker)
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
