package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/daybook/internal/persistence"
)

const userColumns = `id, email, password_hash, first_name, last_name, created_at`

// CreateUser inserts the user and its roles in one transaction.
func (s *Store) CreateUser(ctx context.Context, user persistence.User, roles ...string) error {
	return s.withTransaction(ctx, func(tx *sql.Tx) error {
		_, err := s.exec(ctx, tx, `
			INSERT INTO users (`+userColumns+`)
			VALUES (?, ?, ?, ?, ?, ?)`,
			user.ID,
			user.Email,
			user.PasswordHash,
			user.FirstName,
			user.LastName,
			formatTime(user.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("sqlstore: insert user: %w", err)
		}

		for _, role := range roles {
			if err := s.grantRole(ctx, tx, persistence.Role{UserID: user.ID, Role: role, CreatedAt: user.CreatedAt}); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (persistence.User, error) {
	row := s.queryRow(ctx, s.db, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByEmail retrieves a user by email address, ignoring case.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	row := s.queryRow(ctx, s.db, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower(?)`, email)
	return scanUser(row)
}

// HasRole reports whether the user holds role.
func (s *Store) HasRole(ctx context.Context, userID, role string) (bool, error) {
	var count int
	err := s.queryRow(ctx, s.db, `SELECT COUNT(*) FROM user_roles WHERE user_id = ? AND role = ?`, userID, role).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("sqlstore: query role: %w", mapError(err))
	}
	return count > 0, nil
}

// GrantRole assigns role to the user, keeping an existing assignment.
func (s *Store) GrantRole(ctx context.Context, role persistence.Role) error {
	return s.grantRole(ctx, s.db, role)
}

func (s *Store) grantRole(ctx context.Context, q querier, role persistence.Role) error {
	_, err := s.exec(ctx, q, `
		INSERT INTO user_roles (user_id, role, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, role) DO NOTHING`,
		role.UserID,
		role.Role,
		formatTime(role.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlstore: grant role: %w", err)
	}
	return nil
}

func scanUser(row *sql.Row) (persistence.User, error) {
	var (
		user      persistence.User
		createdAt string
	)
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.FirstName, &user.LastName, &createdAt)
	if err != nil {
		return persistence.User{}, mapError(err)
	}
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.User{}, err
	}
	return user, nil
}
