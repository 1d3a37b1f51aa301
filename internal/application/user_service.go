package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/example/daybook/internal/persistence"
)

const (
	minPasswordLength       = 8
	generatedPasswordLength = 24
	maxNameLength           = 100
)

// UserRepository captures the persistence operations needed by the user service.
type UserRepository interface {
	CreateUser(ctx context.Context, user persistence.User, roles ...string) error
	GetUserByEmail(ctx context.Context, email string) (persistence.User, error)
	GrantRole(ctx context.Context, role persistence.Role) error
}

// UserService creates accounts on behalf of administrators.
type UserService struct {
	users        UserRepository
	hashPassword PasswordHasher
	idGenerator  func() string
	now          func() time.Time
	logger       *slog.Logger
}

// NewUserService wires dependencies for the user service.
func NewUserService(users UserRepository, hasher PasswordHasher, idGenerator func() string, now func() time.Time, logger *slog.Logger) *UserService {
	if hasher == nil {
		hasher = Argon2idHasher(DefaultArgon2idParams)
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &UserService{
		users:        users,
		hashPassword: hasher,
		idGenerator:  idGenerator,
		now:          now,
		logger:       defaultLogger(logger),
	}
}

// CreateUser validates input and persists a new account. Only principals
// holding the admin role may call it.
func (s *UserService) CreateUser(ctx context.Context, principal Principal, input CreateUserInput) (created CreatedUser, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}

	logger := serviceLogger(ctx, s.logger, "UserService", "CreateUser", "principal_id", principal.UserID)
	defer func() {
		logResult(ctx, logger, err, "user created", "user_id", created.ID, "is_admin", created.IsAdmin)
	}()

	if !principal.Authenticated() {
		err = ErrUnauthenticated
		return
	}
	if !principal.IsAdmin {
		err = ErrForbidden
		return
	}

	normalized := normalizeUserInput(input)
	if vErr := validateUserInput(normalized); vErr.HasErrors() {
		err = vErr
		return
	}

	created, err = s.create(ctx, normalized)
	return
}

// BootstrapAdmin ensures an administrator account exists for email. An
// existing account is granted the admin role and keeps its password.
func (s *UserService) BootstrapAdmin(ctx context.Context, email, password string) (created CreatedUser, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}

	logger := serviceLogger(ctx, s.logger, "UserService", "BootstrapAdmin")
	defer func() {
		logResult(ctx, logger, err, "administrator ready", "user_id", created.ID)
	}()

	normalized := normalizeUserInput(CreateUserInput{Email: email, Password: password, MakeAdmin: true})
	if vErr := validateUserInput(normalized); vErr.HasErrors() {
		err = vErr
		return
	}

	existing, lookupErr := s.users.GetUserByEmail(ctx, normalized.Email)
	switch {
	case lookupErr == nil:
		err = s.users.GrantRole(ctx, persistence.Role{UserID: existing.ID, Role: persistence.RoleAdmin, CreatedAt: s.now().UTC()})
		if err != nil {
			err = fmt.Errorf("grant admin role: %w", err)
			return
		}
		created = CreatedUser{ID: existing.ID, Email: existing.Email, IsAdmin: true}
		return
	case !errors.Is(lookupErr, persistence.ErrNotFound):
		err = fmt.Errorf("look up user: %w", lookupErr)
		return
	}

	created, err = s.create(ctx, normalized)
	return
}

func (s *UserService) create(ctx context.Context, input CreateUserInput) (CreatedUser, error) {
	if _, err := s.users.GetUserByEmail(ctx, input.Email); err == nil {
		return CreatedUser{}, fmt.Errorf("%w: email already registered", ErrConflict)
	} else if !errors.Is(err, persistence.ErrNotFound) {
		return CreatedUser{}, fmt.Errorf("look up user: %w", err)
	}

	password := input.Password
	if password == "" {
		generated, err := RandomString(generatedPasswordLength)
		if err != nil {
			return CreatedUser{}, err
		}
		password = generated
	}

	hash, err := s.hashPassword(password)
	if err != nil {
		return CreatedUser{}, fmt.Errorf("hash password: %w", err)
	}

	user := persistence.User{
		ID:           s.idGenerator(),
		Email:        input.Email,
		PasswordHash: hash,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		CreatedAt:    s.now().UTC(),
	}

	var roles []string
	if input.MakeAdmin {
		roles = append(roles, persistence.RoleAdmin)
	}

	if err := s.users.CreateUser(ctx, user, roles...); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			return CreatedUser{}, fmt.Errorf("%w: email already registered", ErrConflict)
		}
		return CreatedUser{}, fmt.Errorf("store user: %w", err)
	}

	return CreatedUser{ID: user.ID, Email: user.Email, IsAdmin: input.MakeAdmin}, nil
}

func normalizeUserInput(input CreateUserInput) CreateUserInput {
	return CreateUserInput{
		Email:     strings.ToLower(strings.TrimSpace(input.Email)),
		Password:  input.Password,
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		MakeAdmin: input.MakeAdmin,
	}
}

func validateUserInput(input CreateUserInput) *ValidationError {
	vErr := &ValidationError{}

	if input.Email == "" {
		vErr.add("email", "email is required")
	} else if addr, err := mail.ParseAddress(input.Email); err != nil || addr.Address != input.Email {
		vErr.add("email", "email is invalid")
	}

	if input.Password != "" && len(input.Password) < minPasswordLength {
		vErr.add("password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	if len(input.FirstName) > maxNameLength {
		vErr.add("first_name", "first name is too long")
	}
	if len(input.LastName) > maxNameLength {
		vErr.add("last_name", "last name is too long")
	}

	return vErr
}
