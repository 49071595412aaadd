package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/opsdesk/dispatch/pkg/database"
	"github.com/opsdesk/dispatch/pkg/models"
)

// PostgresStore appends one row per turn to the conversation_turns
// table. Turn order within a session follows the serial id.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates the postgres backend on an existing database
// client.
func NewPostgresStore(client *database.Client) *PostgresStore {
	return &PostgresStore{db: client.DB()}
}

func (s *PostgresStore) AppendTurn(ctx context.Context, sessionID string, turn models.Turn) error {
	var metadata []byte
	if turn.Metadata != nil {
		var err error
		if metadata, err = json.Marshal(turn.Metadata); err != nil {
			return fmt.Errorf("failed to encode turn metadata: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_turns (session_id, role, content, metadata)
		 VALUES ($1, $2, $3, $4)`,
		sessionID, string(turn.Role), turn.Content, metadata)
	if err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]models.Turn, error) {
	query := `SELECT role, content, metadata FROM conversation_turns WHERE session_id = $1 ORDER BY id`
	args := []any{sessionID}
	if limit > 0 {
		// Last limit turns, still in chronological order.
		query = `SELECT role, content, metadata FROM (
			SELECT id, role, content, metadata FROM conversation_turns
			WHERE session_id = $1 ORDER BY id DESC LIMIT $2
		) latest ORDER BY id`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	var turns []models.Turn
	for rows.Next() {
		var (
			turn     models.Turn
			role     string
			metadata []byte
		)
		if err := rows.Scan(&role, &turn.Content, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.Role = models.Role(role)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &turn.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode turn metadata: %w", err)
			}
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

func (s *PostgresStore) ListSessions(ctx context.Context, limit int) ([]string, error) {
	query := `SELECT session_id FROM conversation_turns GROUP BY session_id ORDER BY min(id)`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var sid string
		if err := rows.Scan(&sid); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, sid)
	}
	return ids, rows.Err()
}

// Compile-time check
var _ Store = (*PostgresStore)(nil)
