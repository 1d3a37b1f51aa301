package recurrence

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"time"
)

// Frequency represents supported recurrence intervals.
type Frequency string

const (
	// FrequencyNone marks a block that is never expanded.
	FrequencyNone Frequency = "none"
	// FrequencyDaily repeats every Interval days.
	FrequencyDaily Frequency = "daily"
	// FrequencyWeekly repeats on the selected weekdays every Interval weeks.
	FrequencyWeekly Frequency = "weekly"
	// FrequencyMonthly repeats on DayOfMonth every Interval months.
	FrequencyMonthly Frequency = "monthly"
)

// DateLayout is the canonical occurrence_date format.
const DateLayout = "2006-01-02"

// Rule describes a recurrence configuration attached to a series root.
//
// A nil DaysOfWeek means the weekly rule repeats on the anchor's weekday. A
// non-nil empty slice asks for day filtering without naming any day and is
// rejected.
type Rule struct {
	Frequency  Frequency
	Interval   int
	DaysOfWeek []time.Weekday
	DayOfMonth int
	Count      int
	Until      *time.Time
}

// Series is a series root together with the state that suppresses occurrences.
type Series struct {
	ID         string
	Start      time.Time
	End        time.Time
	Rule       Rule
	Paused     bool
	PausedAt   *time.Time
	Exceptions DateSet
}

// Occurrence represents one concrete instance derived from a series root.
type Occurrence struct {
	SeriesID string
	Index    int
	Date     string
	Start    time.Time
	End      time.Time
}

// DateSet is a set of occurrence dates in DateLayout form.
type DateSet map[string]struct{}

// NewDateSet builds a set from the provided dates.
func NewDateSet(dates ...string) DateSet {
	set := make(DateSet, len(dates))
	for _, date := range dates {
		set[date] = struct{}{}
	}
	return set
}

// Has reports whether date is in the set.
func (s DateSet) Has(date string) bool {
	_, ok := s[date]
	return ok
}

// ErrInvalidRule indicates a rule that cannot be expanded.
var ErrInvalidRule = errors.New("recurrence: invalid rule")

// RuleError names the rule field that made a rule invalid.
type RuleError struct {
	Field  string
	Reason string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("recurrence: invalid rule: %s %s", e.Field, e.Reason)
}

func (e *RuleError) Unwrap() error {
	return ErrInvalidRule
}

// Validate reports the first defect found in the rule.
func (r Rule) Validate() error {
	switch r.Frequency {
	case FrequencyNone, "":
		return nil
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	default:
		return &RuleError{Field: "frequency", Reason: "is not supported"}
	}
	if r.Interval < 1 {
		return &RuleError{Field: "interval", Reason: "must be at least 1"}
	}
	if r.Frequency == FrequencyWeekly && r.DaysOfWeek != nil && len(r.DaysOfWeek) == 0 {
		return &RuleError{Field: "days_of_week", Reason: "must not be empty"}
	}
	for _, day := range r.DaysOfWeek {
		if day < time.Sunday || day > time.Saturday {
			return &RuleError{Field: "days_of_week", Reason: "contains an unknown weekday"}
		}
	}
	if r.DayOfMonth < 0 || r.DayOfMonth > 31 {
		return &RuleError{Field: "day_of_month", Reason: "must be between 1 and 31"}
	}
	if r.Count < 0 {
		return &RuleError{Field: "count", Reason: "must not be negative"}
	}
	return nil
}

// Recurring reports whether the rule produces more than the anchor occurrence.
func (r Rule) Recurring() bool {
	return r.Frequency != FrequencyNone && r.Frequency != ""
}

// Engine expands recurrence rules into occurrences.
type Engine struct {
	location *time.Location
}

// NewEngine constructs an Engine that computes calendar dates in loc.
// If loc is nil, UTC is used.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{location: loc}
}

// Location returns the zone used for date arithmetic.
func (e *Engine) Location() *time.Location {
	if e == nil || e.location == nil {
		return time.UTC
	}
	return e.location
}

// DateKey formats t as an occurrence_date in the engine's zone.
func (e *Engine) DateKey(t time.Time) string {
	return t.In(e.Location()).Format(DateLayout)
}

// Expand returns the occurrences of series whose start falls in
// [windowStart, windowEnd), ordered by start.
//
// The sequence is lazy and may be ranged over any number of times. Occurrence
// indexes are global to the series: candidates before the window and excluded
// dates still consume an index, so Count bounds the whole series. The first
// bound reached among Count, Until and windowEnd ends the sequence.
func (e *Engine) Expand(series Series, windowStart, windowEnd time.Time) (iter.Seq[Occurrence], error) {
	if err := series.Rule.Validate(); err != nil {
		return nil, err
	}
	if windowStart.After(windowEnd) {
		return func(func(Occurrence) bool) {}, nil
	}

	loc := e.Location()
	anchor := series.Start.In(loc)
	duration := series.End.Sub(series.Start)
	if duration < 0 {
		duration = 0
	}
	rule := series.Rule

	return func(yield func(Occurrence) bool) {
		index := 0
		for start := range candidates(anchor, rule) {
			if rule.Recurring() && rule.Count > 0 && index >= rule.Count {
				return
			}
			if rule.Until != nil && start.After(*rule.Until) {
				return
			}
			if !start.Before(windowEnd) {
				return
			}

			occurrence := Occurrence{
				SeriesID: series.ID,
				Index:    index,
				Date:     start.Format(DateLayout),
				Start:    start,
				End:      start.Add(duration),
			}
			index++

			if start.Before(windowStart) {
				continue
			}
			if series.Paused && (series.PausedAt == nil || !start.Before(*series.PausedAt)) {
				return
			}
			if series.Exceptions.Has(occurrence.Date) {
				continue
			}
			if !yield(occurrence) {
				return
			}
		}
	}, nil
}

// Collect expands series into a slice.
func (e *Engine) Collect(series Series, windowStart, windowEnd time.Time) ([]Occurrence, error) {
	seq, err := e.Expand(series, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	return slices.Collect(seq), nil
}

// candidates yields the anchor followed by every later start produced by the
// rule, without any termination bound.
func candidates(anchor time.Time, rule Rule) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if !yield(anchor) {
			return
		}
		switch rule.Frequency {
		case FrequencyDaily:
			for k := 1; ; k++ {
				if !yield(anchor.AddDate(0, 0, k*rule.Interval)) {
					return
				}
			}
		case FrequencyWeekly:
			if rule.DaysOfWeek == nil {
				for k := 1; ; k++ {
					if !yield(anchor.AddDate(0, 0, 7*k*rule.Interval)) {
						return
					}
				}
			}
			days := sortedWeekdays(rule.DaysOfWeek)
			weekStart := anchor.AddDate(0, 0, -int(anchor.Weekday()))
			for k := 0; ; k++ {
				base := weekStart.AddDate(0, 0, 7*k*rule.Interval)
				for _, day := range days {
					candidate := base.AddDate(0, 0, int(day))
					if !candidate.After(anchor) {
						continue
					}
					if !yield(candidate) {
						return
					}
				}
			}
		case FrequencyMonthly:
			day := rule.DayOfMonth
			if day == 0 {
				day = anchor.Day()
			}
			for k := 0; ; k++ {
				candidate := monthlyCandidate(anchor, k*rule.Interval, day)
				if !candidate.After(anchor) {
					continue
				}
				if !yield(candidate) {
					return
				}
			}
		}
	}
}

// monthlyCandidate returns day of the month offset months after anchor,
// clamped to that month's last day, at the anchor's wall clock time.
func monthlyCandidate(anchor time.Time, offset, day int) time.Time {
	loc := anchor.Location()
	first := time.Date(anchor.Year(), anchor.Month()+time.Month(offset), 1, 0, 0, 0, 0, loc)
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(), loc)
}

func sortedWeekdays(days []time.Weekday) []time.Weekday {
	out := slices.Clone(days)
	slices.Sort(out)
	return slices.Compact(out)
}
