package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool the store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists channel settings in the channel_settings table.
type PostgresStore struct {
	db Querier
}

// NewPostgresStore creates a store bound to the given querier.
func NewPostgresStore(db Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Instructions(ctx context.Context, channel string) (string, error) {
	var text *string
	err := s.db.QueryRow(ctx,
		`SELECT instructions FROM channel_settings WHERE channel = $1`,
		channel,
	).Scan(&text)
	if errors.Is(err, pgx.ErrNoRows) {
		return defaultInstructions(channel), nil
	}
	if err != nil {
		return "", fmt.Errorf("reading instructions for %q: %w", channel, err)
	}
	if text == nil || *text == "" {
		return defaultInstructions(channel), nil
	}
	return *text, nil
}

func (s *PostgresStore) SetInstructions(ctx context.Context, channel, text string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO channel_settings (channel, instructions)
		 VALUES ($1, $2)
		 ON CONFLICT (channel) DO UPDATE
		 SET instructions = EXCLUDED.instructions, updated_at = now()`,
		channel, text,
	)
	if err != nil {
		return fmt.Errorf("storing instructions for %q: %w", channel, err)
	}
	return nil
}

func (s *PostgresStore) Active(ctx context.Context, channel string) (bool, error) {
	var active bool
	err := s.db.QueryRow(ctx,
		`SELECT active FROM channel_settings WHERE channel = $1`,
		channel,
	).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading activation for %q: %w", channel, err)
	}
	return active, nil
}

func (s *PostgresStore) SetActive(ctx context.Context, channel string, active bool) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO channel_settings (channel, active)
		 VALUES ($1, $2)
		 ON CONFLICT (channel) DO UPDATE
		 SET active = EXCLUDED.active, updated_at = now()`,
		channel, active,
	)
	if err != nil {
		return fmt.Errorf("storing activation for %q: %w", channel, err)
	}
	return nil
}
