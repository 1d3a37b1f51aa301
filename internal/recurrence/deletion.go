package recurrence

import (
	"errors"
	"strings"
)

// Scope selects how much of a series a deletion removes.
type Scope string

const (
	// ScopeThis removes a single occurrence and leaves the series rule intact.
	ScopeThis Scope = "this"
	// ScopeAll removes the series root, its rule, children and exceptions.
	ScopeAll Scope = "all"
)

// ErrInvalidScope indicates a deletion scope other than this or all.
var ErrInvalidScope = errors.New("recurrence: invalid deletion scope")

// ParseScope normalizes a caller supplied scope. An empty value means ScopeThis.
func ParseScope(value string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(value))) {
	case "", ScopeThis:
		return ScopeThis, nil
	case ScopeAll:
		return ScopeAll, nil
	default:
		return "", ErrInvalidScope
	}
}

// Target describes the block a deletion was requested for.
type Target struct {
	BlockID string
	// ParentID is the recurrence_parent_id of a materialized occurrence row.
	ParentID string
	// Recurring is true for a series root carrying a non-none rule.
	Recurring bool
	// AnchorDate is the block's own occurrence date: the anchor date for a
	// root, the replaced occurrence date for a materialized row.
	AnchorDate string
	// OccurrenceDate selects a generated occurrence of a root. Empty selects
	// the block itself.
	OccurrenceDate string
}

// Exception excludes one occurrence date from a series.
type Exception struct {
	SeriesID string
	Date     string
}

// DeletionEffect is the store mutation a deletion resolves to. At most one of
// DeleteSeriesID and DeleteBlockID is set.
type DeletionEffect struct {
	DeleteSeriesID string
	DeleteBlockID  string
	Exception      *Exception
}

// ResolveDeletion decides what a deletion of target under scope must change.
// It does not touch storage.
func (e *Engine) ResolveDeletion(target Target, scope Scope) (DeletionEffect, error) {
	switch scope {
	case ScopeThis, ScopeAll:
	default:
		return DeletionEffect{}, ErrInvalidScope
	}

	isChild := target.ParentID != ""

	if scope == ScopeAll {
		switch {
		case isChild:
			return DeletionEffect{DeleteSeriesID: target.ParentID}, nil
		case target.Recurring:
			return DeletionEffect{DeleteSeriesID: target.BlockID}, nil
		default:
			return DeletionEffect{DeleteBlockID: target.BlockID}, nil
		}
	}

	switch {
	case isChild:
		return DeletionEffect{
			DeleteBlockID: target.BlockID,
			Exception:     &Exception{SeriesID: target.ParentID, Date: target.AnchorDate},
		}, nil
	case target.Recurring:
		date := target.OccurrenceDate
		if date == "" {
			date = target.AnchorDate
		}
		return DeletionEffect{Exception: &Exception{SeriesID: target.BlockID, Date: date}}, nil
	default:
		return DeletionEffect{DeleteBlockID: target.BlockID}, nil
	}
}
