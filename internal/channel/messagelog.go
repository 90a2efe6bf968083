package channel

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// execer is the single database call the message log needs.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresMessageLog appends message traffic to the channel_messages table.
type PostgresMessageLog struct {
	db execer
}

// NewPostgresMessageLog creates a message log bound to the given executor.
func NewPostgresMessageLog(db execer) *PostgresMessageLog {
	return &PostgresMessageLog{db: db}
}

func (l *PostgresMessageLog) Record(ctx context.Context, direction, peer, body string) error {
	_, err := l.db.Exec(ctx,
		`INSERT INTO channel_messages (direction, peer, body) VALUES ($1, $2, $3)`,
		direction, peer, body,
	)
	if err != nil {
		return fmt.Errorf("recording %s message: %w", direction, err)
	}
	return nil
}
