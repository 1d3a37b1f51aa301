package application

import (
	"context"
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/example/daybook/internal/persistence"
	"github.com/example/daybook/internal/recurrence"
)

const icsProductID = "-//daybook//calendar blocks//EN"

const (
	icsTimeLayout      = "20060102T150405Z"
	icsLocalTimeLayout = "20060102T150405"
)

// ExportICS renders a block as an iCalendar document. A series is written
// as one VEVENT carrying RRULE and EXDATE, followed by one VEVENT per
// materialized occurrence keyed by RECURRENCE-ID. Times carry the engine's
// TZID unless it is UTC, so the rule expands on the same local days.
func (s *CalendarService) ExportICS(ctx context.Context, principal Principal, blockID string) (document string, err error) {
	if s == nil {
		err = fmt.Errorf("CalendarService is nil")
		return
	}

	logger := serviceLogger(ctx, s.logger, "CalendarService", "ExportICS",
		"principal_id", principal.UserID,
		"block_id", blockID,
	)
	defer func() {
		logResult(ctx, logger, err, "calendar exported", "bytes", len(document))
	}()

	if !principal.Authenticated() {
		err = ErrUnauthenticated
		return
	}

	var root persistence.CalendarBlock
	root, err = s.ownedBlock(ctx, principal, blockID)
	if err != nil {
		return
	}
	if root.IsChild() {
		root, err = s.ownedBlock(ctx, principal, *root.ParentID)
		if err != nil {
			return
		}
	}

	loc := s.engine.Location()
	stamp := s.now().UTC()
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(icsProductID)
	if !isUTC(loc) {
		cal.AddTimezone(loc.String())
	}

	event := addEvent(cal, root.ID, root, stamp, loc)
	if !ruleOf(root).Recurring() {
		document = cal.Serialize()
		return
	}

	var rule recurrence.Rule
	rule, err = s.exportRule(root)
	if err != nil {
		return
	}
	var rrule string
	rrule, err = rule.RRule(root.Start.In(loc))
	if err != nil {
		err = fmt.Errorf("render rrule: %w", err)
		return
	}
	event.AddRrule(rrule)

	var exceptions []persistence.RecurrenceException
	exceptions, err = s.blocks.ListExceptions(ctx, root.ID)
	if err != nil {
		err = fmt.Errorf("list exceptions: %w", err)
		return
	}
	for _, exception := range exceptions {
		var start time.Time
		start, err = s.occurrenceStart(root, exception.OccurrenceDate)
		if err != nil {
			return
		}
		value, params := icsTime(start, loc)
		event.AddExdate(value, params...)
	}

	var blocks []persistence.CalendarBlock
	blocks, err = s.blocks.ListBlocksByOwner(ctx, principal.UserID)
	if err != nil {
		err = fmt.Errorf("list calendar blocks: %w", err)
		return
	}
	for _, child := range blocks {
		if !child.IsChild() || *child.ParentID != root.ID || child.OccurrenceDate == nil {
			continue
		}
		var original time.Time
		original, err = s.occurrenceStart(root, *child.OccurrenceDate)
		if err != nil {
			return
		}
		override := addEvent(cal, root.ID, child, stamp, loc)
		value, params := icsTime(original, loc)
		override.SetProperty(ical.ComponentPropertyRecurrenceId, value, params...)
	}

	document = cal.Serialize()
	return
}

func addEvent(cal *ical.Calendar, uid string, block persistence.CalendarBlock, stamp time.Time, loc *time.Location) *ical.VEvent {
	event := cal.AddEvent(uid)
	event.SetDtStampTime(stamp)
	event.SetCreatedTime(block.CreatedAt)
	event.SetModifiedAt(block.UpdatedAt)
	start, params := icsTime(block.Start, loc)
	event.SetProperty(ical.ComponentPropertyDtStart, start, params...)
	end, params := icsTime(block.End, loc)
	event.SetProperty(ical.ComponentPropertyDtEnd, end, params...)
	event.SetSummary(block.Title)
	return event
}

// icsTime formats t as a UTC DATE-TIME, or as local time with a TZID
// parameter when loc is not UTC.
func icsTime(t time.Time, loc *time.Location) (string, []ical.PropertyParameter) {
	if isUTC(loc) {
		return t.UTC().Format(icsTimeLayout), nil
	}
	return t.In(loc).Format(icsLocalTimeLayout), []ical.PropertyParameter{ical.WithTZID(loc.String())}
}

func isUTC(loc *time.Location) bool {
	return loc == nil || loc == time.UTC || loc.String() == "UTC"
}

// exportRule returns the series rule as clients should expand it. A paused
// series ends just before its pause instant. RRULE allows only one of COUNT
// and UNTIL, so when both apply the bound is folded into COUNT.
func (s *CalendarService) exportRule(root persistence.CalendarBlock) (recurrence.Rule, error) {
	rule := ruleOf(root)
	if root.Paused {
		pausedAt := root.Start
		if root.PausedAt != nil {
			pausedAt = *root.PausedAt
		}
		last := pausedAt.Add(-time.Nanosecond).Truncate(time.Second).UTC()
		if rule.Until == nil || last.Before(*rule.Until) {
			rule.Until = &last
		}
	}
	if rule.Count == 0 || rule.Until == nil {
		return rule, nil
	}

	bounded := seriesOf(root, nil)
	bounded.Rule = rule
	bounded.Paused, bounded.PausedAt = false, nil
	occurrences, err := s.engine.Collect(bounded, root.Start, rule.Until.Add(time.Nanosecond))
	if err != nil {
		return recurrence.Rule{}, fmt.Errorf("bound series %s: %w", root.ID, err)
	}
	rule.Count = len(occurrences)
	if rule.Count > 0 {
		rule.Until = nil
	}
	return rule, nil
}

// occurrenceStart places the series anchor's wall clock time on date.
func (s *CalendarService) occurrenceStart(root persistence.CalendarBlock, date string) (time.Time, error) {
	loc := s.engine.Location()
	day, err := time.ParseInLocation(recurrence.DateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse occurrence date %q: %w", date, err)
	}
	anchor := root.Start.In(loc)
	return time.Date(day.Year(), day.Month(), day.Day(), anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(), loc).UTC(), nil
}
