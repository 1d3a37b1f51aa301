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

const (
	// ShortCodeLength is the number of symbols in a generated short code.
	ShortCodeLength = 8
	// DefaultShortLinkAttempts bounds the retries after a code collision.
	DefaultShortLinkAttempts = 5
	// RedirectRouteName is the path segment of the redirect endpoint. It is
	// never a valid code.
	RedirectRouteName = "redirect-link"
)

// CodeGenerator draws a fresh short code.
type CodeGenerator func() (string, error)

// RandomCode draws an 8 symbol code from the 62 symbol alphabet.
func RandomCode() (string, error) {
	return RandomString(ShortCodeLength)
}

// ShortLinkService creates and resolves short links.
type ShortLinkService struct {
	links       persistence.ShortLinkRepository
	baseURL     string
	codes       CodeGenerator
	maxAttempts int
	cache       *linkCache
	now         func() time.Time
	logger      *slog.Logger
}

// NewShortLinkService wires dependencies for the short-link service. A nil
// generator draws codes from crypto/rand.
func NewShortLinkService(links persistence.ShortLinkRepository, baseURL string, codes CodeGenerator, now func() time.Time, logger *slog.Logger) *ShortLinkService {
	if codes == nil {
		codes = RandomCode
	}
	if now == nil {
		now = time.Now
	}
	return &ShortLinkService{
		links:       links,
		baseURL:     strings.TrimRight(baseURL, "/"),
		codes:       codes,
		maxAttempts: DefaultShortLinkAttempts,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// WithMaxAttempts overrides the number of insert attempts per Shorten call.
func (s *ShortLinkService) WithMaxAttempts(attempts int) *ShortLinkService {
	if attempts > 0 {
		s.maxAttempts = attempts
	}
	return s
}

// WithResolveCache keeps up to maxEntries resolved codes in memory for ttl.
func (s *ShortLinkService) WithResolveCache(ttl time.Duration, maxEntries int) *ShortLinkService {
	s.cache = newLinkCache(ttl, maxEntries, s.now)
	return s
}

// ShortURL formats the public URL of code.
func (s *ShortLinkService) ShortURL(code string) string {
	return s.baseURL + "/l/" + code
}

// Shorten stores destinationURL under a new unique code.
func (s *ShortLinkService) Shorten(ctx context.Context, destinationURL string) (result ShortLink, err error) {
	if s == nil {
		err = fmt.Errorf("ShortLinkService is nil")
		return
	}

	destination := strings.TrimSpace(destinationURL)
	logger := serviceLogger(ctx, s.logger, "ShortLinkService", "Shorten")
	defer func() {
		logResult(ctx, logger, err, "short link created", "code", result.Code)
	}()

	if destination == "" {
		err = newValidationError("url", "url is required")
		return
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		var code string
		code, err = s.codes()
		if err != nil {
			err = fmt.Errorf("generate short code: %w", err)
			return
		}

		err = s.links.CreateShortLink(ctx, persistence.ShortLink{
			Code:        code,
			OriginalURL: destination,
			CreatedAt:   s.now().UTC(),
		})
		if err == nil {
			result = ShortLink{Code: code, ShortURL: s.ShortURL(code)}
			s.cache.Store(code, destination)
			return
		}
		if !errors.Is(err, persistence.ErrDuplicate) {
			err = fmt.Errorf("store short link: %w", err)
			return
		}
		logger.DebugContext(ctx, "short code collision", "attempt", attempt)
	}

	err = fmt.Errorf("%w: no free short code after %d attempts", ErrConflict, s.maxAttempts)
	return
}

// Resolve returns the destination stored under code.
func (s *ShortLinkService) Resolve(ctx context.Context, code string) (destination string, err error) {
	if s == nil {
		err = fmt.Errorf("ShortLinkService is nil")
		return
	}

	code = strings.TrimSpace(code)
	logger := serviceLogger(ctx, s.logger, "ShortLinkService", "Resolve", "code", code)
	defer func() {
		logResult(ctx, logger, err, "short link resolved")
	}()

	if code == "" || code == RedirectRouteName {
		err = newValidationError("code", "Invalid short link")
		return
	}

	if cached, ok := s.cache.Get(code); ok {
		destination = cached
		return
	}

	var link persistence.ShortLink
	link, err = s.links.GetShortLink(ctx, code)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrNotFound
			return
		}
		err = fmt.Errorf("load short link: %w", err)
		return
	}

	destination = link.OriginalURL
	s.cache.Store(code, destination)
	return
}
