// Package memory provides a map-backed persistence.Store used by tests and
// by deployments that do not need durable storage.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/example/daybook/internal/persistence"
)

type exceptionKey struct {
	seriesID string
	date     string
}

type roleKey struct {
	userID string
	role   string
}

// Storage is an in-memory implementation of persistence.Store.
type Storage struct {
	mu         sync.RWMutex
	users      map[string]persistence.User
	roles      map[roleKey]persistence.Role
	sessions   map[string]persistence.Session
	blocks     map[string]persistence.CalendarBlock
	exceptions map[exceptionKey]persistence.RecurrenceException
	links      map[string]persistence.ShortLink
}

var _ persistence.Store = (*Storage)(nil)

// New returns an empty Storage.
func New() *Storage {
	return &Storage{
		users:      make(map[string]persistence.User),
		roles:      make(map[roleKey]persistence.Role),
		sessions:   make(map[string]persistence.Session),
		blocks:     make(map[string]persistence.CalendarBlock),
		exceptions: make(map[exceptionKey]persistence.RecurrenceException),
		links:      make(map[string]persistence.ShortLink),
	}
}

// Close is a no-op.
func (s *Storage) Close() error {
	return nil
}

// --- UserRepository implementation ---

// CreateUser stores a new user together with its roles.
func (s *Storage) CreateUser(_ context.Context, user persistence.User, roles ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return persistence.ErrDuplicate
	}
	lower := strings.ToLower(user.Email)
	for _, existing := range s.users {
		if strings.ToLower(existing.Email) == lower {
			return persistence.ErrDuplicate
		}
	}

	s.users[user.ID] = user
	for _, role := range roles {
		s.roles[roleKey{user.ID, role}] = persistence.Role{UserID: user.ID, Role: role, CreatedAt: user.CreatedAt}
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *Storage) GetUser(_ context.Context, id string) (persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return persistence.User{}, persistence.ErrNotFound
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email address, ignoring case.
func (s *Storage) GetUserByEmail(_ context.Context, email string) (persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lower := strings.ToLower(email)
	for _, user := range s.users {
		if strings.ToLower(user.Email) == lower {
			return user, nil
		}
	}
	return persistence.User{}, persistence.ErrNotFound
}

// HasRole reports whether the user holds role.
func (s *Storage) HasRole(_ context.Context, userID, role string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.roles[roleKey{userID, role}]
	return ok, nil
}

// GrantRole assigns role to the user, keeping an existing assignment.
func (s *Storage) GrantRole(_ context.Context, role persistence.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[role.UserID]; !ok {
		return persistence.ErrForeignKeyViolation
	}
	key := roleKey{role.UserID, role.Role}
	if _, ok := s.roles[key]; !ok {
		s.roles[key] = role
	}
	return nil
}

// --- SessionRepository implementation ---

// CreateSession stores a bearer token.
func (s *Storage) CreateSession(_ context.Context, session persistence.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[session.UserID]; !ok {
		return persistence.ErrForeignKeyViolation
	}
	if _, ok := s.sessions[session.Token]; ok {
		return persistence.ErrDuplicate
	}
	s.sessions[session.Token] = session
	return nil
}

// GetSession retrieves a session by token.
func (s *Storage) GetSession(_ context.Context, token string) (persistence.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[token]
	if !ok {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return session, nil
}

// --- CalendarRepository implementation ---

// CreateBlock stores a new calendar block.
func (s *Storage) CreateBlock(_ context.Context, block persistence.CalendarBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blocks[block.ID]; ok {
		return persistence.ErrDuplicate
	}
	if _, ok := s.users[block.OwnerID]; !ok {
		return persistence.ErrForeignKeyViolation
	}
	if block.IsChild() {
		if _, ok := s.blocks[*block.ParentID]; !ok {
			return persistence.ErrForeignKeyViolation
		}
		for _, existing := range s.blocks {
			if existing.IsChild() && *existing.ParentID == *block.ParentID &&
				existing.OccurrenceDate != nil && block.OccurrenceDate != nil &&
				*existing.OccurrenceDate == *block.OccurrenceDate {
				return persistence.ErrDuplicate
			}
		}
	}

	s.blocks[block.ID] = cloneBlock(block)
	return nil
}

// GetBlock retrieves a block by ID.
func (s *Storage) GetBlock(_ context.Context, id string) (persistence.CalendarBlock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	block, ok := s.blocks[id]
	if !ok {
		return persistence.CalendarBlock{}, persistence.ErrNotFound
	}
	return cloneBlock(block), nil
}

// ListBlocksByOwner returns the owner's blocks ordered by start then ID.
func (s *Storage) ListBlocksByOwner(_ context.Context, ownerID string) ([]persistence.CalendarBlock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blocks := make([]persistence.CalendarBlock, 0)
	for _, block := range s.blocks {
		if block.OwnerID == ownerID {
			blocks = append(blocks, cloneBlock(block))
		}
	}

	slices.SortFunc(blocks, func(a, b persistence.CalendarBlock) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return blocks, nil
}

// SetBlockPaused updates the pause flag of a block.
func (s *Storage) SetBlockPaused(_ context.Context, id string, paused bool, pausedAt *time.Time, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	block, ok := s.blocks[id]
	if !ok {
		return persistence.ErrNotFound
	}
	block.Paused = paused
	block.PausedAt = cloneTime(pausedAt)
	block.UpdatedAt = updatedAt
	s.blocks[id] = block
	return nil
}

// DeleteBlock removes a block. Children and exceptions of a removed root
// are removed with it.
func (s *Storage) DeleteBlock(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blocks[id]; !ok {
		return persistence.ErrNotFound
	}
	s.deleteSeriesLocked(id)
	return nil
}

// DeleteSeries removes a series root with its children and exceptions.
func (s *Storage) DeleteSeries(_ context.Context, rootID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blocks[rootID]; !ok {
		return persistence.ErrNotFound
	}
	s.deleteSeriesLocked(rootID)
	return nil
}

func (s *Storage) deleteSeriesLocked(rootID string) {
	delete(s.blocks, rootID)
	for id, block := range s.blocks {
		if block.IsChild() && *block.ParentID == rootID {
			delete(s.blocks, id)
		}
	}
	for key := range s.exceptions {
		if key.seriesID == rootID {
			delete(s.exceptions, key)
		}
	}
}

// UpsertException records an exception, keeping an existing one.
func (s *Storage) UpsertException(_ context.Context, exception persistence.RecurrenceException) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.upsertExceptionLocked(exception)
}

func (s *Storage) upsertExceptionLocked(exception persistence.RecurrenceException) error {
	if _, ok := s.blocks[exception.SeriesID]; !ok {
		return persistence.ErrForeignKeyViolation
	}
	key := exceptionKey{exception.SeriesID, exception.OccurrenceDate}
	if _, ok := s.exceptions[key]; !ok {
		s.exceptions[key] = exception
	}
	return nil
}

// ListExceptions returns the exceptions of a series ordered by date.
func (s *Storage) ListExceptions(_ context.Context, seriesID string) ([]persistence.RecurrenceException, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exceptions := make([]persistence.RecurrenceException, 0)
	for key, exception := range s.exceptions {
		if key.seriesID == seriesID {
			exceptions = append(exceptions, exception)
		}
	}
	slices.SortFunc(exceptions, func(a, b persistence.RecurrenceException) int {
		return cmp.Compare(a.OccurrenceDate, b.OccurrenceDate)
	})
	return exceptions, nil
}

// ReplaceOccurrence deletes a materialized child and excludes its date.
func (s *Storage) ReplaceOccurrence(_ context.Context, childID string, exception persistence.RecurrenceException) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blocks[childID]; !ok {
		return persistence.ErrNotFound
	}
	if err := s.upsertExceptionLocked(exception); err != nil {
		return err
	}
	delete(s.blocks, childID)
	return nil
}

// --- ShortLinkRepository implementation ---

// CreateShortLink stores a short link unless the code is taken.
func (s *Storage) CreateShortLink(_ context.Context, link persistence.ShortLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.links[link.Code]; ok {
		return persistence.ErrDuplicate
	}
	s.links[link.Code] = link
	return nil
}

// GetShortLink retrieves a short link by code.
func (s *Storage) GetShortLink(_ context.Context, code string) (persistence.ShortLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	link, ok := s.links[code]
	if !ok {
		return persistence.ShortLink{}, persistence.ErrNotFound
	}
	return link, nil
}

// --- Helpers ---

func cloneBlock(block persistence.CalendarBlock) persistence.CalendarBlock {
	block.RecurrenceDays = slices.Clone(block.RecurrenceDays)
	block.Until = cloneTime(block.Until)
	block.PausedAt = cloneTime(block.PausedAt)
	block.ParentID = cloneString(block.ParentID)
	block.OccurrenceDate = cloneString(block.OccurrenceDate)
	return block
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copy := *value
	return &copy
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	copy := *value
	return &copy
}
