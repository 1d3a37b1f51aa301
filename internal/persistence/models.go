package persistence

import "time"

// RoleAdmin is the role name that grants access to administrative endpoints.
const RoleAdmin = "admin"

// User represents an account row.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	CreatedAt    time.Time
}

// Role assigns a named role to a user.
type Role struct {
	UserID    string
	Role      string
	CreatedAt time.Time
}

// Session represents a bearer token issued for a user.
type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// CalendarBlock is either a series root, a materialized occurrence of a
// series (ParentID and OccurrenceDate set), or a standalone block.
type CalendarBlock struct {
	ID                 string
	OwnerID            string
	Title              string
	Start              time.Time
	End                time.Time
	RecurrenceType     string
	RecurrenceInterval int
	// RecurrenceDays is nil when no weekday filter is stored.
	RecurrenceDays []time.Weekday
	DayOfMonth     int
	Count          int
	Until          *time.Time
	ParentID       *string
	OccurrenceDate *string
	Paused         bool
	PausedAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsChild reports whether the block materializes an occurrence of a series.
func (b CalendarBlock) IsChild() bool {
	return b.ParentID != nil && *b.ParentID != ""
}

// RecurrenceException excludes one occurrence date from a series.
type RecurrenceException struct {
	SeriesID       string
	OccurrenceDate string
	CreatedAt      time.Time
}

// ShortLink maps a short code to its destination URL.
type ShortLink struct {
	Code        string
	OriginalURL string
	CreatedAt   time.Time
}
