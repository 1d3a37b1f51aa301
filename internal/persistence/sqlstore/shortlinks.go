package sqlstore

import (
	"context"
	"fmt"

	"github.com/example/daybook/internal/persistence"
)

// CreateShortLink inserts a short link. A taken code yields ErrDuplicate.
func (s *Store) CreateShortLink(ctx context.Context, link persistence.ShortLink) error {
	_, err := s.exec(ctx, s.db, `
		INSERT INTO short_links (code, original_url, created_at)
		VALUES (?, ?, ?)`,
		link.Code,
		link.OriginalURL,
		formatTime(link.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlstore: insert short link: %w", err)
	}
	return nil
}

// GetShortLink retrieves a short link by its exact code.
func (s *Store) GetShortLink(ctx context.Context, code string) (persistence.ShortLink, error) {
	var (
		link      persistence.ShortLink
		createdAt string
	)
	err := s.queryRow(ctx, s.db, `
		SELECT code, original_url, created_at
		FROM short_links
		WHERE code = ?`, code,
	).Scan(&link.Code, &link.OriginalURL, &createdAt)
	if err != nil {
		return persistence.ShortLink{}, mapError(err)
	}

	if link.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.ShortLink{}, err
	}
	return link, nil
}
