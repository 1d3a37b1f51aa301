package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/daybook/internal/persistence"
)

// DefaultSessionTTL is the lifetime of an issued bearer token.
const DefaultSessionTTL = 30 * 24 * time.Hour

// AccountStore exposes the account lookups required by the auth service.
type AccountStore interface {
	GetUser(ctx context.Context, id string) (persistence.User, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
}

// SessionRepository captures the persistence interactions for issued sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, session persistence.Session) error
	GetSession(ctx context.Context, token string) (persistence.Session, error)
}

// AuthService resolves bearer tokens to principals and issues tokens.
type AuthService struct {
	accounts       AccountStore
	sessions       SessionRepository
	tokenGenerator func() string
	now            func() time.Time
	sessionTTL     time.Duration
	logger         *slog.Logger
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(accounts AccountStore, sessions SessionRepository, tokenGenerator func() string, now func() time.Time, sessionTTL time.Duration, logger *slog.Logger) *AuthService {
	if tokenGenerator == nil {
		tokenGenerator = NewSessionToken
	}
	if now == nil {
		now = time.Now
	}
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &AuthService{
		accounts:       accounts,
		sessions:       sessions,
		tokenGenerator: tokenGenerator,
		now:            now,
		sessionTTL:     sessionTTL,
		logger:         defaultLogger(logger),
	}
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

// Authenticate resolves a bearer token to the principal it was issued for.
func (s *AuthService) Authenticate(ctx context.Context, token string) (principal Principal, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}

	trimmed := strings.TrimSpace(token)
	logger := s.loggerWith(ctx, "Authenticate", "token_provided", trimmed != "")
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "authentication failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "authentication succeeded", "principal_id", principal.UserID)
	}()

	if trimmed == "" {
		err = ErrUnauthenticated
		return
	}

	var session persistence.Session
	session, err = s.sessions.GetSession(ctx, trimmed)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrUnauthenticated
			return
		}
		err = fmt.Errorf("load session: %w", err)
		return
	}

	if !session.ExpiresAt.After(s.now()) {
		err = fmt.Errorf("%w: session expired", ErrUnauthenticated)
		return
	}

	var user persistence.User
	user, err = s.accounts.GetUser(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrUnauthenticated
			return
		}
		err = fmt.Errorf("load user: %w", err)
		return
	}

	var isAdmin bool
	isAdmin, err = s.accounts.HasRole(ctx, user.ID, persistence.RoleAdmin)
	if err != nil {
		err = fmt.Errorf("load roles: %w", err)
		return
	}

	principal = Principal{UserID: user.ID, IsAdmin: isAdmin}
	return
}

// IssueToken mints a bearer token for an existing user.
func (s *AuthService) IssueToken(ctx context.Context, userID string) (issued IssuedToken, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}

	logger := s.loggerWith(ctx, "IssueToken", "user_id", userID)
	defer func() {
		logResult(ctx, logger, err, "token issued", "expires_at", issued.ExpiresAt)
	}()

	if _, err = s.accounts.GetUser(ctx, userID); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrNotFound
			return
		}
		err = fmt.Errorf("load user: %w", err)
		return
	}

	now := s.now().UTC()
	session := persistence.Session{
		Token:     s.tokenGenerator(),
		UserID:    userID,
		ExpiresAt: now.Add(s.sessionTTL),
		CreatedAt: now,
	}
	if session.Token == "" {
		err = errors.New("token generator returned an empty token")
		return
	}

	if err = s.sessions.CreateSession(ctx, session); err != nil {
		err = fmt.Errorf("store session: %w", err)
		return
	}

	issued = IssuedToken{Token: session.Token, UserID: userID, ExpiresAt: session.ExpiresAt}
	return
}
