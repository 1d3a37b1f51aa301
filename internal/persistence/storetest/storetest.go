// Package storetest holds the behavioural contract every persistence.Store
// backend must satisfy.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/daybook/internal/persistence"
)

// Factory returns an empty store. Cleanup is registered on t by the factory.
type Factory func(t *testing.T) persistence.Store

var base = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)

func ptr[T any](value T) *T {
	return &value
}

// Run executes the contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("users", func(t *testing.T) { t.Parallel(); testUsers(t, newStore(t)) })
	t.Run("sessions", func(t *testing.T) { t.Parallel(); testSessions(t, newStore(t)) })
	t.Run("blocks", func(t *testing.T) { t.Parallel(); testBlocks(t, newStore(t)) })
	t.Run("exceptions", func(t *testing.T) { t.Parallel(); testExceptions(t, newStore(t)) })
	t.Run("series deletion", func(t *testing.T) { t.Parallel(); testSeriesDeletion(t, newStore(t)) })
	t.Run("short links", func(t *testing.T) { t.Parallel(); testShortLinks(t, newStore(t)) })
}

func seedUser(t *testing.T, store persistence.Store, id, email string, roles ...string) persistence.User {
	t.Helper()

	user := persistence.User{
		ID:           id,
		Email:        email,
		PasswordHash: "hash",
		FirstName:    "Ada",
		LastName:     "Lovelace",
		CreatedAt:    base,
	}
	require.NoError(t, store.CreateUser(context.Background(), user, roles...))
	return user
}

func seedRoot(t *testing.T, store persistence.Store, id, ownerID string) persistence.CalendarBlock {
	t.Helper()

	block := persistence.CalendarBlock{
		ID:                 id,
		OwnerID:            ownerID,
		Title:              "Standup",
		Start:              base,
		End:                base.Add(30 * time.Minute),
		RecurrenceType:     "weekly",
		RecurrenceInterval: 1,
		RecurrenceDays:     []time.Weekday{time.Monday, time.Wednesday, time.Friday},
		Count:              10,
		CreatedAt:          base,
		UpdatedAt:          base,
	}
	require.NoError(t, store.CreateBlock(context.Background(), block))
	return block
}

func seedChild(t *testing.T, store persistence.Store, id, rootID, ownerID, date string, start time.Time) persistence.CalendarBlock {
	t.Helper()

	block := persistence.CalendarBlock{
		ID:             id,
		OwnerID:        ownerID,
		Title:          "Standup (moved)",
		Start:          start,
		End:            start.Add(30 * time.Minute),
		RecurrenceType: "none",
		ParentID:       ptr(rootID),
		OccurrenceDate: ptr(date),
		CreatedAt:      base,
		UpdatedAt:      base,
	}
	require.NoError(t, store.CreateBlock(context.Background(), block))
	return block
}

func testUsers(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	user := seedUser(t, store, "user-1", "ada@example.com", persistence.RoleAdmin)

	fetched, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, fetched.Email)
	assert.Equal(t, user.PasswordHash, fetched.PasswordHash)
	assert.Equal(t, user.FirstName, fetched.FirstName)
	assert.True(t, user.CreatedAt.Equal(fetched.CreatedAt))

	byEmail, err := store.GetUserByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	isAdmin, err := store.HasRole(ctx, user.ID, persistence.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, isAdmin)

	err = store.CreateUser(ctx, persistence.User{ID: "user-2", Email: "Ada@Example.com", PasswordHash: "x", CreatedAt: base})
	assert.ErrorIs(t, err, persistence.ErrDuplicate)

	plain := seedUser(t, store, "user-3", "grace@example.com")
	isAdmin, err = store.HasRole(ctx, plain.ID, persistence.RoleAdmin)
	require.NoError(t, err)
	assert.False(t, isAdmin)

	role := persistence.Role{UserID: plain.ID, Role: persistence.RoleAdmin, CreatedAt: base}
	require.NoError(t, store.GrantRole(ctx, role))
	require.NoError(t, store.GrantRole(ctx, role))
	isAdmin, err = store.HasRole(ctx, plain.ID, persistence.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, isAdmin)

	err = store.GrantRole(ctx, persistence.Role{UserID: "missing", Role: persistence.RoleAdmin, CreatedAt: base})
	assert.ErrorIs(t, err, persistence.ErrForeignKeyViolation)

	_, err = store.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	_, err = store.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func testSessions(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	user := seedUser(t, store, "user-1", "ada@example.com")

	session := persistence.Session{Token: "token-1", UserID: user.ID, ExpiresAt: base.Add(time.Hour), CreatedAt: base}
	require.NoError(t, store.CreateSession(ctx, session))

	fetched, err := store.GetSession(ctx, "token-1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, fetched.UserID)
	assert.True(t, session.ExpiresAt.Equal(fetched.ExpiresAt))

	assert.ErrorIs(t, store.CreateSession(ctx, session), persistence.ErrDuplicate)
	assert.ErrorIs(t, store.CreateSession(ctx, persistence.Session{Token: "token-2", UserID: "missing", ExpiresAt: base, CreatedAt: base}), persistence.ErrForeignKeyViolation)

	_, err = store.GetSession(ctx, "unknown")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func testBlocks(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	user := seedUser(t, store, "user-1", "ada@example.com")
	other := seedUser(t, store, "user-2", "grace@example.com")

	until := base.AddDate(0, 2, 0)
	root := persistence.CalendarBlock{
		ID:                 "block-1",
		OwnerID:            user.ID,
		Title:              "Gym",
		Start:              base.Add(2 * time.Hour),
		End:                base.Add(3 * time.Hour),
		RecurrenceType:     "monthly",
		RecurrenceInterval: 2,
		DayOfMonth:         31,
		Until:              &until,
		CreatedAt:          base,
		UpdatedAt:          base,
	}
	require.NoError(t, store.CreateBlock(ctx, root))
	seedRoot(t, store, "block-0", user.ID)
	seedRoot(t, store, "block-other", other.ID)

	fetched, err := store.GetBlock(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, root.Title, fetched.Title)
	assert.True(t, root.Start.Equal(fetched.Start))
	assert.Equal(t, 31, fetched.DayOfMonth)
	assert.Equal(t, 2, fetched.RecurrenceInterval)
	assert.Nil(t, fetched.RecurrenceDays)
	require.NotNil(t, fetched.Until)
	assert.True(t, until.Equal(*fetched.Until))
	assert.False(t, fetched.IsChild())

	weekly, err := store.GetBlock(ctx, "block-0")
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday, time.Friday}, weekly.RecurrenceDays)

	blocks, err := store.ListBlocksByOwner(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "block-0", blocks[0].ID)
	assert.Equal(t, "block-1", blocks[1].ID)

	assert.ErrorIs(t, store.CreateBlock(ctx, root), persistence.ErrDuplicate)

	orphan := root
	orphan.ID = "block-orphan"
	orphan.OwnerID = "missing"
	assert.ErrorIs(t, store.CreateBlock(ctx, orphan), persistence.ErrForeignKeyViolation)

	pausedAt := base.AddDate(0, 0, 7)
	require.NoError(t, store.SetBlockPaused(ctx, root.ID, true, &pausedAt, pausedAt))
	fetched, err = store.GetBlock(ctx, root.ID)
	require.NoError(t, err)
	assert.True(t, fetched.Paused)
	require.NotNil(t, fetched.PausedAt)
	assert.True(t, pausedAt.Equal(*fetched.PausedAt))

	require.NoError(t, store.SetBlockPaused(ctx, root.ID, false, nil, pausedAt))
	fetched, err = store.GetBlock(ctx, root.ID)
	require.NoError(t, err)
	assert.False(t, fetched.Paused)
	assert.Nil(t, fetched.PausedAt)

	assert.ErrorIs(t, store.SetBlockPaused(ctx, "missing", true, nil, base), persistence.ErrNotFound)

	require.NoError(t, store.DeleteBlock(ctx, root.ID))
	_, err = store.GetBlock(ctx, root.ID)
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	assert.ErrorIs(t, store.DeleteBlock(ctx, root.ID), persistence.ErrNotFound)
}

func testExceptions(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	user := seedUser(t, store, "user-1", "ada@example.com")
	root := seedRoot(t, store, "root", user.ID)

	exception := persistence.RecurrenceException{SeriesID: root.ID, OccurrenceDate: "2024-03-08", CreatedAt: base}
	require.NoError(t, store.UpsertException(ctx, exception))
	require.NoError(t, store.UpsertException(ctx, exception))
	require.NoError(t, store.UpsertException(ctx, persistence.RecurrenceException{SeriesID: root.ID, OccurrenceDate: "2024-03-06", CreatedAt: base}))

	exceptions, err := store.ListExceptions(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, exceptions, 2)
	assert.Equal(t, "2024-03-06", exceptions[0].OccurrenceDate)
	assert.Equal(t, "2024-03-08", exceptions[1].OccurrenceDate)

	err = store.UpsertException(ctx, persistence.RecurrenceException{SeriesID: "missing", OccurrenceDate: "2024-03-08", CreatedAt: base})
	assert.ErrorIs(t, err, persistence.ErrForeignKeyViolation)

	child := seedChild(t, store, "child", root.ID, user.ID, "2024-03-11", base.AddDate(0, 0, 7).Add(time.Hour))
	fetched, err := store.GetBlock(ctx, child.ID)
	require.NoError(t, err)
	require.True(t, fetched.IsChild())
	assert.Equal(t, root.ID, *fetched.ParentID)
	assert.Equal(t, "2024-03-11", *fetched.OccurrenceDate)

	twin := child
	twin.ID = "twin"
	assert.ErrorIs(t, store.CreateBlock(ctx, twin), persistence.ErrDuplicate)

	require.NoError(t, store.ReplaceOccurrence(ctx, child.ID, persistence.RecurrenceException{SeriesID: root.ID, OccurrenceDate: "2024-03-11", CreatedAt: base}))
	_, err = store.GetBlock(ctx, child.ID)
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	exceptions, err = store.ListExceptions(ctx, root.ID)
	require.NoError(t, err)
	assert.Len(t, exceptions, 3)

	err = store.ReplaceOccurrence(ctx, "missing", persistence.RecurrenceException{SeriesID: root.ID, OccurrenceDate: "2024-03-13", CreatedAt: base})
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func testSeriesDeletion(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	user := seedUser(t, store, "user-1", "ada@example.com")
	root := seedRoot(t, store, "root", user.ID)
	keep := seedRoot(t, store, "keep", user.ID)
	seedChild(t, store, "child-1", root.ID, user.ID, "2024-03-06", base.AddDate(0, 0, 2))
	seedChild(t, store, "child-2", root.ID, user.ID, "2024-03-08", base.AddDate(0, 0, 4))
	seedChild(t, store, "child-keep", keep.ID, user.ID, "2024-03-06", base.AddDate(0, 0, 2))
	require.NoError(t, store.UpsertException(ctx, persistence.RecurrenceException{SeriesID: root.ID, OccurrenceDate: "2024-03-11", CreatedAt: base}))

	require.NoError(t, store.DeleteSeries(ctx, root.ID))

	blocks, err := store.ListBlocksByOwner(ctx, user.ID)
	require.NoError(t, err)
	ids := make([]string, 0, len(blocks))
	for _, block := range blocks {
		ids = append(ids, block.ID)
	}
	assert.ElementsMatch(t, []string{"keep", "child-keep"}, ids)

	exceptions, err := store.ListExceptions(ctx, root.ID)
	require.NoError(t, err)
	assert.Empty(t, exceptions)

	assert.ErrorIs(t, store.DeleteSeries(ctx, root.ID), persistence.ErrNotFound)
}

func testShortLinks(t *testing.T, store persistence.Store) {
	ctx := context.Background()

	link := persistence.ShortLink{Code: "aB3dE5gH", OriginalURL: "https://example.com/a?b=c#d", CreatedAt: base}
	require.NoError(t, store.CreateShortLink(ctx, link))

	fetched, err := store.GetShortLink(ctx, link.Code)
	require.NoError(t, err)
	assert.Equal(t, link.OriginalURL, fetched.OriginalURL)

	dup := link
	dup.OriginalURL = "https://example.com/other"
	assert.ErrorIs(t, store.CreateShortLink(ctx, dup), persistence.ErrDuplicate)

	fetched, err = store.GetShortLink(ctx, link.Code)
	require.NoError(t, err)
	assert.Equal(t, link.OriginalURL, fetched.OriginalURL)

	_, err = store.GetShortLink(ctx, "AB3dE5gH")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}
