package application_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/daybook/internal/application"
	"github.com/example/daybook/internal/persistence"
	"github.com/example/daybook/internal/testfixtures"
)

type failingUserRepository struct {
	persistence.UserRepository
	err error
}

func (f failingUserRepository) GetUserByEmail(context.Context, string) (persistence.User, error) {
	return persistence.User{}, persistence.ErrNotFound
}

func (f failingUserRepository) CreateUser(context.Context, persistence.User, ...string) error {
	return f.err
}

func TestUserService_CreateUser(t *testing.T) {
	t.Parallel()

	admin := application.Principal{UserID: "admin-1", IsAdmin: true}

	t.Run("creates an account with a hashed password", func(t *testing.T) {
		t.Parallel()

		factory := testfixtures.NewServiceFactory()
		svc := factory.Users()

		created, err := svc.CreateUser(context.Background(), admin, application.CreateUserInput{
			Email:     "  Grace@Example.com ",
			Password:  "s3cret-password",
			FirstName: " Grace ",
			LastName:  "Hopper",
		})
		require.NoError(t, err)
		assert.Equal(t, "id-1", created.ID)
		assert.Equal(t, "grace@example.com", created.Email)
		assert.False(t, created.IsAdmin)

		stored, err := factory.Store.GetUser(context.Background(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Grace", stored.FirstName)
		assert.True(t, strings.HasPrefix(stored.PasswordHash, "$argon2id$"))
		assert.NoError(t, application.VerifyPassword(stored.PasswordHash, "s3cret-password"))
		assert.True(t, stored.CreatedAt.Equal(testfixtures.ReferenceTime()))

		isAdmin, err := factory.Store.HasRole(context.Background(), created.ID, persistence.RoleAdmin)
		require.NoError(t, err)
		assert.False(t, isAdmin)
	})

	t.Run("generates a password when none is supplied", func(t *testing.T) {
		t.Parallel()

		factory := testfixtures.NewServiceFactory()
		created, err := factory.Users().CreateUser(context.Background(), admin, application.CreateUserInput{Email: "ada@example.com"})
		require.NoError(t, err)

		stored, err := factory.Store.GetUser(context.Background(), created.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, stored.PasswordHash)
		assert.Error(t, application.VerifyPassword(stored.PasswordHash, ""))
	})

	t.Run("grants the admin role on request", func(t *testing.T) {
		t.Parallel()

		factory := testfixtures.NewServiceFactory()
		created, err := factory.Users().CreateUser(context.Background(), admin, application.CreateUserInput{Email: "root@example.com", MakeAdmin: true})
		require.NoError(t, err)
		assert.True(t, created.IsAdmin)

		isAdmin, err := factory.Store.HasRole(context.Background(), created.ID, persistence.RoleAdmin)
		require.NoError(t, err)
		assert.True(t, isAdmin)
	})

	t.Run("requires an authenticated admin", func(t *testing.T) {
		t.Parallel()

		svc := testfixtures.NewServiceFactory().Users()
		input := application.CreateUserInput{Email: "x@example.com"}

		_, err := svc.CreateUser(context.Background(), application.Principal{}, input)
		assert.ErrorIs(t, err, application.ErrUnauthenticated)

		_, err = svc.CreateUser(context.Background(), application.Principal{UserID: "user-1"}, input)
		assert.ErrorIs(t, err, application.ErrForbidden)
	})

	t.Run("validates input", func(t *testing.T) {
		t.Parallel()

		svc := testfixtures.NewServiceFactory().Users()
		tests := map[string]struct {
			input application.CreateUserInput
			field string
		}{
			"missing email":  {input: application.CreateUserInput{}, field: "email"},
			"invalid email":  {input: application.CreateUserInput{Email: "not-an-email"}, field: "email"},
			"display form":   {input: application.CreateUserInput{Email: "Ada <ada@example.com>"}, field: "email"},
			"short password": {input: application.CreateUserInput{Email: "a@example.com", Password: "short"}, field: "password"},
			"long name":      {input: application.CreateUserInput{Email: "a@example.com", FirstName: strings.Repeat("x", 101)}, field: "first_name"},
		}

		for name, tc := range tests {
			var vErr *application.ValidationError
			_, err := svc.CreateUser(context.Background(), admin, tc.input)
			require.ErrorAs(t, err, &vErr, name)
			assert.Contains(t, vErr.FieldErrors, tc.field, name)
		}
	})

	t.Run("reports duplicate emails as conflicts", func(t *testing.T) {
		t.Parallel()

		factory := testfixtures.NewServiceFactory()
		svc := factory.Users()
		_, err := svc.CreateUser(context.Background(), admin, application.CreateUserInput{Email: "dup@example.com"})
		require.NoError(t, err)

		_, err = svc.CreateUser(context.Background(), admin, application.CreateUserInput{Email: "DUP@example.com"})
		assert.ErrorIs(t, err, application.ErrConflict)
	})

	t.Run("maps racing inserts to conflicts", func(t *testing.T) {
		t.Parallel()

		svc := application.NewUserService(failingUserRepository{err: persistence.ErrDuplicate}, testfixtures.FastHasher, nil, nil, nil)
		_, err := svc.CreateUser(context.Background(), admin, application.CreateUserInput{Email: "race@example.com"})
		assert.ErrorIs(t, err, application.ErrConflict)
	})

	t.Run("wraps store failures", func(t *testing.T) {
		t.Parallel()

		svc := application.NewUserService(failingUserRepository{err: errors.New("disk full")}, testfixtures.FastHasher, nil, nil, nil)
		_, err := svc.CreateUser(context.Background(), admin, application.CreateUserInput{Email: "x@example.com"})
		require.Error(t, err)
		assert.Equal(t, "unexpected", application.ErrorKind(err))
	})
}

func TestUserService_BootstrapAdmin(t *testing.T) {
	t.Parallel()

	factory := testfixtures.NewServiceFactory()
	svc := factory.Users()

	created, err := svc.BootstrapAdmin(context.Background(), "owner@example.com", "")
	require.NoError(t, err)
	assert.True(t, created.IsAdmin)

	existing := testfixtures.SeedUser(t, factory.Store, testfixtures.NewUser(testfixtures.WithUserEmail("member@example.com")))
	promoted, err := svc.BootstrapAdmin(context.Background(), "Member@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, promoted.ID)

	isAdmin, err := factory.Store.HasRole(context.Background(), existing.ID, persistence.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, isAdmin)

	_, err = svc.BootstrapAdmin(context.Background(), "", "")
	var vErr *application.ValidationError
	assert.ErrorAs(t, err, &vErr)
}
