package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/daybook/internal/persistence"
)

const blockColumns = `id, owner_id, title, start_time, end_time,
	recurrence_type, recurrence_interval, recurrence_days, recurrence_day_of_month,
	recurrence_count, recurrence_until, recurrence_parent_id, occurrence_date,
	is_recurrence_paused, paused_at, created_at, updated_at`

// CreateBlock inserts a calendar block.
func (s *Store) CreateBlock(ctx context.Context, block persistence.CalendarBlock) error {
	_, err := s.exec(ctx, s.db, `
		INSERT INTO calendar_blocks (`+blockColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		block.ID,
		block.OwnerID,
		block.Title,
		formatTime(block.Start),
		formatTime(block.End),
		block.RecurrenceType,
		block.RecurrenceInterval,
		encodeWeekdays(block.RecurrenceDays),
		block.DayOfMonth,
		block.Count,
		formatTimePtr(block.Until),
		nullString(block.ParentID),
		nullString(block.OccurrenceDate),
		block.Paused,
		formatTimePtr(block.PausedAt),
		formatTime(block.CreatedAt),
		formatTime(block.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlstore: insert calendar block: %w", err)
	}
	return nil
}

// GetBlock retrieves a block by ID.
func (s *Store) GetBlock(ctx context.Context, id string) (persistence.CalendarBlock, error) {
	row := s.queryRow(ctx, s.db, `SELECT `+blockColumns+` FROM calendar_blocks WHERE id = ?`, id)
	return scanBlock(row)
}

// ListBlocksByOwner returns the owner's blocks ordered by start then ID.
func (s *Store) ListBlocksByOwner(ctx context.Context, ownerID string) ([]persistence.CalendarBlock, error) {
	rows, err := s.query(ctx, s.db, `
		SELECT `+blockColumns+`
		FROM calendar_blocks
		WHERE owner_id = ?
		ORDER BY start_time, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list calendar blocks: %w", err)
	}
	defer rows.Close()

	blocks := make([]persistence.CalendarBlock, 0)
	for rows.Next() {
		block, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterate calendar blocks: %w", err)
	}
	return blocks, nil
}

// SetBlockPaused updates the pause flag of a block.
func (s *Store) SetBlockPaused(ctx context.Context, id string, paused bool, pausedAt *time.Time, updatedAt time.Time) error {
	result, err := s.exec(ctx, s.db, `
		UPDATE calendar_blocks
		SET is_recurrence_paused = ?, paused_at = ?, updated_at = ?
		WHERE id = ?`,
		paused,
		formatTimePtr(pausedAt),
		formatTime(updatedAt),
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: pause calendar block: %w", err)
	}
	return requireAffected(result)
}

// DeleteBlock removes a block together with any children and exceptions.
func (s *Store) DeleteBlock(ctx context.Context, id string) error {
	return s.DeleteSeries(ctx, id)
}

// DeleteSeries removes a series root with its children and exceptions.
func (s *Store) DeleteSeries(ctx context.Context, rootID string) error {
	return s.withTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := s.exec(ctx, tx, `DELETE FROM recurrence_exceptions WHERE series_id = ?`, rootID); err != nil {
			return fmt.Errorf("sqlstore: delete exceptions: %w", err)
		}
		if _, err := s.exec(ctx, tx, `DELETE FROM calendar_blocks WHERE recurrence_parent_id = ?`, rootID); err != nil {
			return fmt.Errorf("sqlstore: delete series children: %w", err)
		}
		result, err := s.exec(ctx, tx, `DELETE FROM calendar_blocks WHERE id = ?`, rootID)
		if err != nil {
			return fmt.Errorf("sqlstore: delete calendar block: %w", err)
		}
		return requireAffected(result)
	})
}

// UpsertException records an exception, keeping an existing one.
func (s *Store) UpsertException(ctx context.Context, exception persistence.RecurrenceException) error {
	return s.upsertException(ctx, s.db, exception)
}

func (s *Store) upsertException(ctx context.Context, q querier, exception persistence.RecurrenceException) error {
	_, err := s.exec(ctx, q, `
		INSERT INTO recurrence_exceptions (series_id, occurrence_date, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (series_id, occurrence_date) DO NOTHING`,
		exception.SeriesID,
		exception.OccurrenceDate,
		formatTime(exception.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlstore: upsert exception: %w", err)
	}
	return nil
}

// ListExceptions returns the exceptions of a series ordered by date.
func (s *Store) ListExceptions(ctx context.Context, seriesID string) ([]persistence.RecurrenceException, error) {
	rows, err := s.query(ctx, s.db, `
		SELECT series_id, occurrence_date, created_at
		FROM recurrence_exceptions
		WHERE series_id = ?
		ORDER BY occurrence_date`, seriesID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list exceptions: %w", err)
	}
	defer rows.Close()

	exceptions := make([]persistence.RecurrenceException, 0)
	for rows.Next() {
		var (
			exception persistence.RecurrenceException
			createdAt string
		)
		if err := rows.Scan(&exception.SeriesID, &exception.OccurrenceDate, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlstore: scan exception: %w", err)
		}
		if exception.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		exceptions = append(exceptions, exception)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterate exceptions: %w", err)
	}
	return exceptions, nil
}

// ReplaceOccurrence deletes a materialized child and excludes its date in
// one transaction.
func (s *Store) ReplaceOccurrence(ctx context.Context, childID string, exception persistence.RecurrenceException) error {
	return s.withTransaction(ctx, func(tx *sql.Tx) error {
		result, err := s.exec(ctx, tx, `DELETE FROM calendar_blocks WHERE id = ?`, childID)
		if err != nil {
			return fmt.Errorf("sqlstore: delete occurrence: %w", err)
		}
		if err := requireAffected(result); err != nil {
			return err
		}
		return s.upsertException(ctx, tx, exception)
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlock(row rowScanner) (persistence.CalendarBlock, error) {
	var (
		block                persistence.CalendarBlock
		start, end           string
		days                 sql.NullInt64
		until, pausedAt      sql.NullString
		parentID, occurrence sql.NullString
		createdAt, updatedAt string
	)

	err := row.Scan(
		&block.ID,
		&block.OwnerID,
		&block.Title,
		&start,
		&end,
		&block.RecurrenceType,
		&block.RecurrenceInterval,
		&days,
		&block.DayOfMonth,
		&block.Count,
		&until,
		&parentID,
		&occurrence,
		&block.Paused,
		&pausedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.CalendarBlock{}, mapError(err)
	}

	if block.Start, err = parseTime(start); err != nil {
		return persistence.CalendarBlock{}, err
	}
	if block.End, err = parseTime(end); err != nil {
		return persistence.CalendarBlock{}, err
	}
	if block.Until, err = parseTimePtr(until); err != nil {
		return persistence.CalendarBlock{}, err
	}
	if block.PausedAt, err = parseTimePtr(pausedAt); err != nil {
		return persistence.CalendarBlock{}, err
	}
	if block.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.CalendarBlock{}, err
	}
	if block.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.CalendarBlock{}, err
	}
	block.RecurrenceDays = decodeWeekdays(days)
	block.ParentID = stringPtr(parentID)
	block.OccurrenceDate = stringPtr(occurrence)
	return block, nil
}
