package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/praxis-booking/internal/wizard"
)

// DB abstracts the pgx query interface so the store runs on a pool or a tx.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists sessions in booking_sessions.
type Store struct {
	db DB
}

// NewStore creates a session store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const sessionColumns = `id, practice_id, rule_set_id, user_id, state, created_at, last_modified, expires_at`

// Insert writes a new session row.
func (s *Store) Insert(ctx context.Context, sess *Session) error {
	state, err := wizard.MarshalState(sess.State)
	if err != nil {
		return fmt.Errorf("sessions: insert: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO booking_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sess.ID, sess.PracticeID, sess.RuleSetID, sess.UserID, state,
		sess.CreatedAt, sess.LastModified, sess.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("sessions: insert: %w", err)
	}
	return nil
}

// Get loads a session by id regardless of owner or expiry.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	row := s.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM booking_sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("sessions: get: %w", err)
	}
	return sess, nil
}

// GetForUpdate loads a session and locks its row until the surrounding
// transaction ends. Concurrent transitions on one session serialize here.
func (s *Store) GetForUpdate(ctx context.Context, id uuid.UUID) (*Session, error) {
	row := s.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM booking_sessions WHERE id = $1 FOR UPDATE`, id)
	sess, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("sessions: get for update: %w", err)
	}
	return sess, nil
}

// FindActive returns the newest non-expired session for scope.
func (s *Store) FindActive(ctx context.Context, scope Scope, now time.Time) (*Session, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM booking_sessions
		WHERE user_id = $1 AND practice_id = $2 AND rule_set_id = $3 AND expires_at > $4
		ORDER BY last_modified DESC
		LIMIT 1`,
		scope.UserID, scope.PracticeID, scope.RuleSetID, now,
	)
	sess, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("sessions: find active: %w", err)
	}
	return sess, nil
}

// UpdateState replaces the state wholesale and moves the expiry.
func (s *Store) UpdateState(ctx context.Context, id uuid.UUID, state wizard.State, now, expiresAt time.Time) error {
	raw, err := wizard.MarshalState(state)
	if err != nil {
		return fmt.Errorf("sessions: update state: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE booking_sessions SET state = $1, last_modified = $2, expires_at = $3
		WHERE id = $4`, raw, now, expiresAt, id)
	if err != nil {
		return fmt.Errorf("sessions: update state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sessions: update state: %w", ErrNotFound)
	}
	return nil
}

// Touch refreshes the expiry without changing the state.
func (s *Store) Touch(ctx context.Context, id uuid.UUID, now, expiresAt time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE booking_sessions SET last_modified = $1, expires_at = $2
		WHERE id = $3`, now, expiresAt, id)
	if err != nil {
		return fmt.Errorf("sessions: touch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sessions: touch: %w", ErrNotFound)
	}
	return nil
}

// Delete removes a session. It reports whether a row was deleted.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM booking_sessions WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("sessions: delete: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteExpiredForScope removes the scope's sessions that expired by now.
func (s *Store) DeleteExpiredForScope(ctx context.Context, scope Scope, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM booking_sessions
		WHERE user_id = $1 AND practice_id = $2 AND rule_set_id = $3 AND expires_at <= $4`,
		scope.UserID, scope.PracticeID, scope.RuleSetID, now,
	)
	if err != nil {
		return 0, fmt.Errorf("sessions: delete expired for scope: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired removes every session that expired by now.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM booking_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("sessions: delete expired: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanSession(row pgx.Row) (*Session, error) {
	var (
		sess  Session
		state []byte
	)
	err := row.Scan(&sess.ID, &sess.PracticeID, &sess.RuleSetID, &sess.UserID, &state,
		&sess.CreatedAt, &sess.LastModified, &sess.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	sess.State, err = wizard.UnmarshalState(state)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sess.ID, err)
	}
	return &sess, nil
}
