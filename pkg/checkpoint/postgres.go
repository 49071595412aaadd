package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opsdesk/dispatch/pkg/database"
	"github.com/opsdesk/dispatch/pkg/models"
)

// PostgresCheckpointer stores one JSONB row per session in the
// checkpoints table. Expiry is enforced in the read query; expired rows
// are overwritten on the next Put for the session.
type PostgresCheckpointer struct {
	db  *sql.DB
	ttl time.Duration
}

// NewPostgresCheckpointer creates the postgres backend on an existing
// database client.
func NewPostgresCheckpointer(client *database.Client, ttl time.Duration) *PostgresCheckpointer {
	return &PostgresCheckpointer{db: client.DB(), ttl: ttl}
}

func (c *PostgresCheckpointer) Get(ctx context.Context, sessionID string) (*models.SupervisorState, error) {
	var raw []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT state FROM checkpoints
		 WHERE session_id = $1 AND (expires_at IS NULL OR expires_at > now())`,
		sessionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var state models.SupervisorState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &state, nil
}

func (c *PostgresCheckpointer) Put(ctx context.Context, state *models.SupervisorState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	var expiresAt *time.Time
	if c.ttl > 0 {
		t := time.Now().Add(c.ttl)
		expiresAt = &t
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO checkpoints (session_id, state, updated_at, expires_at)
		 VALUES ($1, $2, now(), $3)
		 ON CONFLICT (session_id)
		 DO UPDATE SET state = EXCLUDED.state, updated_at = now(), expires_at = EXCLUDED.expires_at`,
		state.SessionID, raw, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (c *PostgresCheckpointer) Delete(ctx context.Context, sessionID string) error {
	if _, err := c.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Compile-time check
var _ Checkpointer = (*PostgresCheckpointer)(nil)
