package sqlstore

import (
	"context"
	"fmt"

	"github.com/example/daybook/internal/persistence"
)

// CreateSession stores a bearer token.
func (s *Store) CreateSession(ctx context.Context, session persistence.Session) error {
	_, err := s.exec(ctx, s.db, `
		INSERT INTO sessions (token, user_id, expires_at, created_at)
		VALUES (?, ?, ?, ?)`,
		session.Token,
		session.UserID,
		formatTime(session.ExpiresAt),
		formatTime(session.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlstore: insert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by token.
func (s *Store) GetSession(ctx context.Context, token string) (persistence.Session, error) {
	var (
		session              persistence.Session
		expiresAt, createdAt string
	)
	err := s.queryRow(ctx, s.db, `
		SELECT token, user_id, expires_at, created_at
		FROM sessions
		WHERE token = ?`, token,
	).Scan(&session.Token, &session.UserID, &expiresAt, &createdAt)
	if err != nil {
		return persistence.Session{}, mapError(err)
	}

	if session.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return persistence.Session{}, err
	}
	if session.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Session{}, err
	}
	return session, nil
}
