package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/daybook/internal/persistence"
	"github.com/example/daybook/internal/persistence/memory"
)

type shortLinkRepositoryStub struct {
	mu         sync.Mutex
	createErrs []error
	created    []persistence.ShortLink
	getErr     error
}

func (s *shortLinkRepositoryStub) CreateShortLink(_ context.Context, link persistence.ShortLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.createErrs) > 0 {
		err := s.createErrs[0]
		s.createErrs = s.createErrs[1:]
		if err != nil {
			return err
		}
	}
	s.created = append(s.created, link)
	return nil
}

func (s *shortLinkRepositoryStub) GetShortLink(_ context.Context, code string) (persistence.ShortLink, error) {
	if s.getErr != nil {
		return persistence.ShortLink{}, s.getErr
	}
	return persistence.ShortLink{}, persistence.ErrNotFound
}

func sequenceCodes(codes ...string) CodeGenerator {
	var mu sync.Mutex
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[0]
		if len(codes) > 1 {
			codes = codes[1:]
		}
		return code, nil
	}
}

func TestShortLinkService_Shorten(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	t.Run("round trips through the store", func(t *testing.T) {
		t.Parallel()

		svc := NewShortLinkService(memory.New(), "https://day.example/", nil, clock, nil)
		destination := "https://example.com/path?q=1&x=%20y#frag"

		link, err := svc.Shorten(context.Background(), destination)
		require.NoError(t, err)
		assert.Len(t, link.Code, ShortCodeLength)
		assert.Equal(t, "https://day.example/l/"+link.Code, link.ShortURL)

		resolved, err := svc.Resolve(context.Background(), link.Code)
		require.NoError(t, err)
		assert.Equal(t, destination, resolved)
	})

	t.Run("trims the destination", func(t *testing.T) {
		t.Parallel()

		repo := &shortLinkRepositoryStub{}
		svc := NewShortLinkService(repo, "https://day.example", sequenceCodes("AbCdEfGh"), clock, nil)

		_, err := svc.Shorten(context.Background(), "  https://example.com  ")
		require.NoError(t, err)
		require.Len(t, repo.created, 1)
		assert.Equal(t, "https://example.com", repo.created[0].OriginalURL)
		assert.True(t, now.Equal(repo.created[0].CreatedAt))
	})

	t.Run("rejects blank destinations", func(t *testing.T) {
		t.Parallel()

		repo := &shortLinkRepositoryStub{}
		svc := NewShortLinkService(repo, "https://day.example", nil, clock, nil)

		for _, input := range []string{"", "   ", "\t\n"} {
			_, err := svc.Shorten(context.Background(), input)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, "url is required", vErr.FieldErrors["url"])
		}
		assert.Empty(t, repo.created)
	})

	t.Run("retries with a fresh code after a collision", func(t *testing.T) {
		t.Parallel()

		store := memory.New()
		svc := NewShortLinkService(store, "https://day.example", sequenceCodes("SAMECODE", "SAMECODE", "FRESHONE"), clock, nil)

		first, err := svc.Shorten(context.Background(), "https://example.com/first")
		require.NoError(t, err)
		assert.Equal(t, "SAMECODE", first.Code)

		second, err := svc.Shorten(context.Background(), "https://example.com/second")
		require.NoError(t, err)
		assert.Equal(t, "FRESHONE", second.Code)

		resolved, err := svc.Resolve(context.Background(), "SAMECODE")
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/first", resolved)
	})

	t.Run("gives up with a conflict after the attempt budget", func(t *testing.T) {
		t.Parallel()

		repo := &shortLinkRepositoryStub{createErrs: []error{
			persistence.ErrDuplicate, persistence.ErrDuplicate, persistence.ErrDuplicate,
		}}
		svc := NewShortLinkService(repo, "https://day.example", sequenceCodes("AAAAAAAA"), clock, nil).WithMaxAttempts(3)

		_, err := svc.Shorten(context.Background(), "https://example.com")
		assert.ErrorIs(t, err, ErrConflict)
		assert.Empty(t, repo.created)
	})

	t.Run("surfaces store failures as unexpected", func(t *testing.T) {
		t.Parallel()

		repo := &shortLinkRepositoryStub{createErrs: []error{errors.New("disk full")}}
		svc := NewShortLinkService(repo, "https://day.example", sequenceCodes("AAAAAAAA"), clock, nil)

		_, err := svc.Shorten(context.Background(), "https://example.com")
		require.Error(t, err)
		assert.Equal(t, "unexpected", ErrorKind(err))
	})

	t.Run("surfaces generator failures", func(t *testing.T) {
		t.Parallel()

		svc := NewShortLinkService(&shortLinkRepositoryStub{}, "https://day.example", func() (string, error) {
			return "", errors.New("entropy exhausted")
		}, clock, nil)

		_, err := svc.Shorten(context.Background(), "https://example.com")
		assert.ErrorContains(t, err, "entropy exhausted")
	})

	t.Run("draws distinct codes", func(t *testing.T) {
		t.Parallel()

		svc := NewShortLinkService(memory.New(), "https://day.example", nil, clock, slog.New(slog.DiscardHandler))
		seen := make(map[string]struct{}, 10000)
		for i := 0; i < 10000; i++ {
			link, err := svc.Shorten(context.Background(), "https://example.com")
			require.NoError(t, err)
			_, dup := seen[link.Code]
			require.False(t, dup, "duplicate code %s", link.Code)
			seen[link.Code] = struct{}{}
		}
	})
}

func TestShortLinkService_Resolve(t *testing.T) {
	t.Parallel()

	store := memory.New()
	svc := NewShortLinkService(store, "https://day.example", sequenceCodes("Zx9Yw8Vu"), nil, nil)
	_, err := svc.Shorten(context.Background(), "https://example.com/target")
	require.NoError(t, err)

	t.Run("is case sensitive", func(t *testing.T) {
		t.Parallel()

		_, err := svc.Resolve(context.Background(), "zx9yw8vu")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("rejects empty codes and the route name", func(t *testing.T) {
		t.Parallel()

		for _, code := range []string{"", "  ", RedirectRouteName} {
			_, err := svc.Resolve(context.Background(), code)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr, "code %q", code)
			assert.Equal(t, "Invalid short link", vErr.Message())
		}
	})

	t.Run("reports unknown codes as not found", func(t *testing.T) {
		t.Parallel()

		_, err := svc.Resolve(context.Background(), "NOPE1234")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("wraps store failures", func(t *testing.T) {
		t.Parallel()

		failing := NewShortLinkService(&shortLinkRepositoryStub{getErr: errors.New("connection reset")}, "https://day.example", nil, nil, nil)
		_, err := failing.Resolve(context.Background(), "AAAAAAAA")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
		assert.Equal(t, "unexpected", ErrorKind(err))
	})
}

type countingLinks struct {
	persistence.ShortLinkRepository
	mu    sync.Mutex
	reads int
}

func (c *countingLinks) GetShortLink(ctx context.Context, code string) (persistence.ShortLink, error) {
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()
	return c.ShortLinkRepository.GetShortLink(ctx, code)
}

func TestShortLinkService_ResolveCache(t *testing.T) {
	t.Parallel()

	links := &countingLinks{ShortLinkRepository: memory.New()}
	current := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	svc := NewShortLinkService(links, "https://day.example", sequenceCodes("AbCd1234", "EfGh5678"), func() time.Time { return current }, nil).
		WithResolveCache(time.Minute, 16)

	created, err := svc.Shorten(context.Background(), "https://example.com/a")
	require.NoError(t, err)

	for range 3 {
		destination, err := svc.Resolve(context.Background(), created.Code)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/a", destination)
	}
	assert.Zero(t, links.reads, "freshly shortened codes are served from memory")

	current = current.Add(2 * time.Minute)
	_, err = svc.Resolve(context.Background(), created.Code)
	require.NoError(t, err)
	_, err = svc.Resolve(context.Background(), created.Code)
	require.NoError(t, err)
	assert.Equal(t, 1, links.reads, "an expired entry is reloaded once")

	_, err = svc.Resolve(context.Background(), "Missing1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Resolve(context.Background(), "Missing1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 3, links.reads, "misses are not cached")
}
