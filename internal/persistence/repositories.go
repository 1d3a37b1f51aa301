package persistence

import (
	"context"
	"time"
)

// UserRepository stores accounts and their roles.
type UserRepository interface {
	// CreateUser inserts the user and grants roles in one unit of work.
	CreateUser(ctx context.Context, user User, roles ...string) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
	// GrantRole is idempotent on (user_id, role).
	GrantRole(ctx context.Context, role Role) error
}

// SessionRepository stores bearer tokens.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) error
	GetSession(ctx context.Context, token string) (Session, error)
}

// CalendarRepository stores calendar blocks and recurrence exceptions.
type CalendarRepository interface {
	CreateBlock(ctx context.Context, block CalendarBlock) error
	GetBlock(ctx context.Context, id string) (CalendarBlock, error)
	// ListBlocksByOwner returns every block of the owner ordered by start then id.
	ListBlocksByOwner(ctx context.Context, ownerID string) ([]CalendarBlock, error)
	SetBlockPaused(ctx context.Context, id string, paused bool, pausedAt *time.Time, updatedAt time.Time) error
	DeleteBlock(ctx context.Context, id string) error
	// DeleteSeries removes the root, its materialized children and its exceptions.
	DeleteSeries(ctx context.Context, rootID string) error
	// UpsertException is idempotent on (series_id, occurrence_date).
	UpsertException(ctx context.Context, exception RecurrenceException) error
	ListExceptions(ctx context.Context, seriesID string) ([]RecurrenceException, error)
	// ReplaceOccurrence deletes a materialized child and records an exception
	// for its date in one unit of work.
	ReplaceOccurrence(ctx context.Context, childID string, exception RecurrenceException) error
}

// ShortLinkRepository stores short links keyed by code.
type ShortLinkRepository interface {
	// CreateShortLink returns ErrDuplicate when the code is taken.
	CreateShortLink(ctx context.Context, link ShortLink) error
	GetShortLink(ctx context.Context, code string) (ShortLink, error)
}

// Store bundles every repository a backend provides.
type Store interface {
	UserRepository
	SessionRepository
	CalendarRepository
	ShortLinkRepository
	Close() error
}
