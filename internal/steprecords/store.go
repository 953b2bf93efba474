package steprecords

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/praxis-booking/internal/wizard"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads and writes the booking_step_* tables.
type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Upsert inserts the step's record or patches the existing one, keeping its
// created_at. A row owned by someone else is never overwritten.
func (s *Store) Upsert(ctx context.Context, owner Owner, rec Record, now time.Time) (*Record, error) {
	if err := Validate(owner, rec); err != nil {
		return nil, fmt.Errorf("steprecords: upsert %s: %w", rec.Step, err)
	}
	table, err := TableName(rec.Step)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("steprecords: upsert %s: %w", rec.Step, err)
	}

	query := `
		INSERT INTO ` + table + ` AS t (session_id, user_id, practice_id, rule_set_id, payload, created_at, last_modified)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (session_id) DO UPDATE
		SET payload = EXCLUDED.payload, last_modified = EXCLUDED.last_modified
		WHERE t.user_id = EXCLUDED.user_id
			AND t.practice_id = EXCLUDED.practice_id
			AND t.rule_set_id = EXCLUDED.rule_set_id
		RETURNING created_at, last_modified`

	out := rec.Clone()
	err = s.db.QueryRow(ctx, query,
		rec.SessionID, rec.UserID, rec.PracticeID, rec.RuleSetID, payload, now,
	).Scan(&out.CreatedAt, &out.LastModified)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The conflict row exists but its ownership differs.
			return nil, fmt.Errorf("steprecords: upsert %s: %w", rec.Step, ErrInvalidOwnership)
		}
		return nil, fmt.Errorf("steprecords: upsert %s: %w", rec.Step, err)
	}
	return out, nil
}

// Get returns the record step holds for the session.
func (s *Store) Get(ctx context.Context, step wizard.Step, sessionID uuid.UUID) (*Record, error) {
	table, err := TableName(step)
	if err != nil {
		return nil, err
	}
	rec := Record{Step: step}
	var payload []byte
	err = s.db.QueryRow(ctx, `
		SELECT session_id, user_id, practice_id, rule_set_id, payload, created_at, last_modified
		FROM `+table+` WHERE session_id = $1`, sessionID,
	).Scan(&rec.SessionID, &rec.UserID, &rec.PracticeID, &rec.RuleSetID, &payload, &rec.CreatedAt, &rec.LastModified)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("steprecords: get %s: %w", step, err)
	}
	if err := json.Unmarshal(payload, &rec.Payload); err != nil {
		return nil, fmt.Errorf("steprecords: get %s: decode payload: %w", step, err)
	}
	return &rec, nil
}

// PurgeOrphans deletes records whose session no longer exists and returns the
// number of rows removed across all tables.
func (s *Store) PurgeOrphans(ctx context.Context) (int64, error) {
	var total int64
	for _, table := range Tables() {
		tag, err := s.db.Exec(ctx, `
			DELETE FROM `+table+` r
			WHERE NOT EXISTS (SELECT 1 FROM booking_sessions s WHERE s.id = r.session_id)`)
		if err != nil {
			return total, fmt.Errorf("steprecords: purge %s: %w", table, err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}
