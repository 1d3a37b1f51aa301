package testfixtures

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/daybook/internal/persistence"
)

var userCounter uint64

// referenceTime is a Monday so weekly fixtures line up with the anchor.
var referenceTime = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// UserOption configures a persistence.User fixture.
type UserOption func(*persistence.User)

// WithUserID overrides the user ID.
func WithUserID(id string) UserOption {
	return func(user *persistence.User) { user.ID = id }
}

// WithUserEmail overrides the user email.
func WithUserEmail(email string) UserOption {
	return func(user *persistence.User) { user.Email = email }
}

// NewUser returns a deterministic user record.
func NewUser(opts ...UserOption) persistence.User {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	user := persistence.User{
		ID:           id,
		Email:        id + "@example.com",
		PasswordHash: "hash-" + id,
		FirstName:    "User",
		LastName:     fmt.Sprintf("%03d", idx),
		CreatedAt:    referenceTime,
	}
	for _, opt := range opts {
		opt(&user)
	}
	return user
}

// SeedUser stores a user with roles and fails the test on error.
func SeedUser(tb testing.TB, users persistence.UserRepository, user persistence.User, roles ...string) persistence.User {
	tb.Helper()
	if err := users.CreateUser(context.Background(), user, roles...); err != nil {
		tb.Fatalf("seed user %s: %v", user.ID, err)
	}
	return user
}

// SeedSession stores a bearer token for userID valid for ttl from ReferenceTime.
func SeedSession(tb testing.TB, sessions persistence.SessionRepository, token, userID string, ttl time.Duration) persistence.Session {
	tb.Helper()
	session := persistence.Session{
		Token:     token,
		UserID:    userID,
		ExpiresAt: referenceTime.Add(ttl),
		CreatedAt: referenceTime,
	}
	if err := sessions.CreateSession(context.Background(), session); err != nil {
		tb.Fatalf("seed session for %s: %v", userID, err)
	}
	return session
}

// BlockOption configures a persistence.CalendarBlock fixture.
type BlockOption func(*persistence.CalendarBlock)

// WithWeekly makes the block a weekly series on days.
func WithWeekly(interval int, days ...time.Weekday) BlockOption {
	return func(block *persistence.CalendarBlock) {
		block.RecurrenceType = "weekly"
		block.RecurrenceInterval = interval
		if days != nil {
			block.RecurrenceDays = days
		}
	}
}

// WithDaily makes the block a daily series.
func WithDaily(interval int) BlockOption {
	return func(block *persistence.CalendarBlock) {
		block.RecurrenceType = "daily"
		block.RecurrenceInterval = interval
	}
}

// WithCount bounds the series to count occurrences.
func WithCount(count int) BlockOption {
	return func(block *persistence.CalendarBlock) { block.Count = count }
}

// WithStart moves the block, keeping its duration.
func WithStart(start time.Time) BlockOption {
	return func(block *persistence.CalendarBlock) {
		duration := block.End.Sub(block.Start)
		block.Start = start
		block.End = start.Add(duration)
	}
}

// WithParent turns the block into a materialized occurrence of parentID.
func WithParent(parentID, occurrenceDate string) BlockOption {
	return func(block *persistence.CalendarBlock) {
		block.ParentID = &parentID
		block.OccurrenceDate = &occurrenceDate
		block.RecurrenceType = "none"
	}
}

// NewBlock returns a one hour standalone block at ReferenceTime.
func NewBlock(id, ownerID string, opts ...BlockOption) persistence.CalendarBlock {
	block := persistence.CalendarBlock{
		ID:                 id,
		OwnerID:            ownerID,
		Title:              "Block " + id,
		Start:              referenceTime,
		End:                referenceTime.Add(time.Hour),
		RecurrenceType:     "none",
		RecurrenceInterval: 1,
		CreatedAt:          referenceTime,
		UpdatedAt:          referenceTime,
	}
	for _, opt := range opts {
		opt(&block)
	}
	return block
}

// SeedBlock stores a block and fails the test on error.
func SeedBlock(tb testing.TB, blocks persistence.CalendarRepository, block persistence.CalendarBlock) persistence.CalendarBlock {
	tb.Helper()
	if err := blocks.CreateBlock(context.Background(), block); err != nil {
		tb.Fatalf("seed block %s: %v", block.ID, err)
	}
	return block
}
