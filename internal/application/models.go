package application

import "time"

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID  string
	IsAdmin bool
}

// Authenticated reports whether the principal identifies a user.
func (p Principal) Authenticated() bool {
	return p.UserID != ""
}

// CreateUserInput captures the admin supplied fields for a new account.
type CreateUserInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	MakeAdmin bool
}

// CreatedUser is the public result of a user creation.
type CreatedUser struct {
	ID      string
	Email   string
	IsAdmin bool
}

// IssuedToken is a bearer token minted for a user.
type IssuedToken struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// ShortLink is the result of shortening a destination URL.
type ShortLink struct {
	Code     string
	ShortURL string
}

// RecurrenceInput captures the caller supplied recurrence rule of a block.
// RRule, when set, is an RFC 5545 RRULE value used instead of the other fields.
type RecurrenceInput struct {
	Type       string
	Interval   int
	DaysOfWeek []time.Weekday
	DayOfMonth int
	Count      int
	Until      *time.Time
	RRule      string
}

// CreateBlockParams wraps the data required to create a calendar block.
//
// ParentID and OccurrenceDate materialize one occurrence of an existing
// series, typically to move it. Such blocks carry no recurrence of their own.
type CreateBlockParams struct {
	Principal      Principal
	Title          string
	Start          time.Time
	End            time.Time
	Recurrence     RecurrenceInput
	ParentID       string
	OccurrenceDate string
}

// CalendarBlock is the service view of a stored block.
type CalendarBlock struct {
	ID             string
	Title          string
	Start          time.Time
	End            time.Time
	Recurrence     RecurrenceInput
	ParentID       string
	OccurrenceDate string
	Paused         bool
	PausedAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BlockOccurrence is one visible instance in a listing window.
type BlockOccurrence struct {
	BlockID        string
	SeriesID       string
	Title          string
	OccurrenceDate string
	Start          time.Time
	End            time.Time
	// Index is the position in the series sequence; -1 for blocks that are
	// not generated from a rule.
	Index        int
	Materialized bool
}

// DeleteBlockParams wraps the data required to delete a block or occurrence.
type DeleteBlockParams struct {
	Principal      Principal
	BlockID        string
	Scope          string
	OccurrenceDate string
}

// DeleteResult reports what a deletion changed.
type DeleteResult struct {
	Scope          string
	DeletedSeries  string
	DeletedBlock   string
	ExceptionAdded string
}
