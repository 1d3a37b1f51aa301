package application

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/example/daybook/internal/persistence"
	"github.com/example/daybook/internal/recurrence"
)

const (
	maxTitleLength = 200
	// MaxOccurrenceWindow bounds a single ListOccurrences request.
	MaxOccurrenceWindow = 366 * 24 * time.Hour
)

// CalendarRepository captures the persistence operations needed by the calendar service.
type CalendarRepository interface {
	CreateBlock(ctx context.Context, block persistence.CalendarBlock) error
	GetBlock(ctx context.Context, id string) (persistence.CalendarBlock, error)
	ListBlocksByOwner(ctx context.Context, ownerID string) ([]persistence.CalendarBlock, error)
	SetBlockPaused(ctx context.Context, id string, paused bool, pausedAt *time.Time, updatedAt time.Time) error
	DeleteBlock(ctx context.Context, id string) error
	DeleteSeries(ctx context.Context, rootID string) error
	UpsertException(ctx context.Context, exception persistence.RecurrenceException) error
	ListExceptions(ctx context.Context, seriesID string) ([]persistence.RecurrenceException, error)
	ReplaceOccurrence(ctx context.Context, childID string, exception persistence.RecurrenceException) error
}

// CalendarService manages calendar blocks and their recurring series.
type CalendarService struct {
	blocks      CalendarRepository
	engine      *recurrence.Engine
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewCalendarService wires dependencies for the calendar service.
func NewCalendarService(blocks CalendarRepository, engine *recurrence.Engine, idGenerator func() string, now func() time.Time, logger *slog.Logger) *CalendarService {
	if engine == nil {
		engine = recurrence.NewEngine(time.UTC)
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &CalendarService{
		blocks:      blocks,
		engine:      engine,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// CreateBlock validates and stores a block. A block with ParentID set
// materializes one occurrence of the principal's series.
func (s *CalendarService) CreateBlock(ctx context.Context, params CreateBlockParams) (block CalendarBlock, err error) {
	if s == nil {
		err = fmt.Errorf("CalendarService is nil")
		return
	}

	logger := serviceLogger(ctx, s.logger, "CalendarService", "CreateBlock", "principal_id", params.Principal.UserID)
	defer func() {
		logResult(ctx, logger, err, "calendar block created", "block_id", block.ID, "recurrence", block.Recurrence.Type)
	}()

	if !params.Principal.Authenticated() {
		err = ErrUnauthenticated
		return
	}

	record, vErr := s.buildBlock(params)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if record.IsChild() {
		var parent persistence.CalendarBlock
		parent, err = s.ownedBlock(ctx, params.Principal, *record.ParentID)
		if err != nil {
			return
		}
		if parent.IsChild() || recurrence.Frequency(parent.RecurrenceType) == recurrence.FrequencyNone {
			err = newValidationError("parent_id", "parent block is not a recurring series")
			return
		}
	}

	if err = s.blocks.CreateBlock(ctx, record); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			err = fmt.Errorf("%w: occurrence already materialized", ErrConflict)
			return
		}
		err = fmt.Errorf("store calendar block: %w", err)
		return
	}

	block = toCalendarBlock(record)
	return
}

func (s *CalendarService) buildBlock(params CreateBlockParams) (persistence.CalendarBlock, *ValidationError) {
	vErr := &ValidationError{}

	title := strings.TrimSpace(params.Title)
	switch {
	case title == "":
		vErr.add("title", "title is required")
	case len(title) > maxTitleLength:
		vErr.add("title", "title is too long")
	}

	if params.Start.IsZero() {
		vErr.add("start", "start is required")
	}
	if params.End.IsZero() {
		vErr.add("end", "end is required")
	} else if !params.End.After(params.Start) {
		vErr.add("end", "end must be after start")
	}

	rule, parseErr := ruleFromInput(params.Recurrence)
	if parseErr != nil {
		vErr.add("recurrence.rrule", parseErr.Error())
	}
	parentID := strings.TrimSpace(params.ParentID)
	occurrenceDate := strings.TrimSpace(params.OccurrenceDate)

	if parentID != "" {
		if rule.Recurring() {
			vErr.add("recurrence", "a materialized occurrence cannot recur")
		}
		if _, err := time.Parse(recurrence.DateLayout, occurrenceDate); err != nil {
			vErr.add("occurrence_date", "occurrence_date must be a YYYY-MM-DD date")
		}
	} else if occurrenceDate != "" {
		vErr.add("occurrence_date", "occurrence_date requires parent_id")
	}

	if err := rule.Validate(); parseErr == nil && err != nil {
		var ruleErr *recurrence.RuleError
		if errors.As(err, &ruleErr) {
			vErr.add("recurrence."+ruleErr.Field, ruleErr.Reason)
		} else {
			vErr.add("recurrence", err.Error())
		}
	}
	if rule.Until != nil && rule.Until.Before(params.Start) {
		vErr.add("recurrence.until", "until must not be before start")
	}

	if vErr.HasErrors() {
		return persistence.CalendarBlock{}, vErr
	}

	now := s.now().UTC()
	record := persistence.CalendarBlock{
		ID:                 s.idGenerator(),
		OwnerID:            params.Principal.UserID,
		Title:              title,
		Start:              params.Start.UTC(),
		End:                params.End.UTC(),
		RecurrenceType:     string(rule.Frequency),
		RecurrenceInterval: rule.Interval,
		RecurrenceDays:     rule.DaysOfWeek,
		DayOfMonth:         rule.DayOfMonth,
		Count:              rule.Count,
		Until:              rule.Until,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if parentID != "" {
		record.ParentID = &parentID
		record.OccurrenceDate = &occurrenceDate
	}
	return record, vErr
}

// ListOccurrences returns every visible block instance owned by the
// principal that starts within [from, to), ordered by start.
func (s *CalendarService) ListOccurrences(ctx context.Context, principal Principal, from, to time.Time) (occurrences []BlockOccurrence, err error) {
	if s == nil {
		err = fmt.Errorf("CalendarService is nil")
		return
	}

	logger := serviceLogger(ctx, s.logger, "CalendarService", "ListOccurrences",
		"principal_id", principal.UserID,
		"from", from,
		"to", to,
	)
	defer func() {
		logResult(ctx, logger, err, "occurrences listed", "count", len(occurrences))
	}()

	if !principal.Authenticated() {
		err = ErrUnauthenticated
		return
	}
	if to.Sub(from) > MaxOccurrenceWindow {
		err = newValidationError("to", "window must not exceed 366 days")
		return
	}

	occurrences = make([]BlockOccurrence, 0)
	if to.Before(from) {
		return
	}

	var blocks []persistence.CalendarBlock
	blocks, err = s.blocks.ListBlocksByOwner(ctx, principal.UserID)
	if err != nil {
		err = fmt.Errorf("list calendar blocks: %w", err)
		return
	}

	materialized := make(map[string][]string)
	for _, block := range blocks {
		if block.IsChild() && block.OccurrenceDate != nil {
			materialized[*block.ParentID] = append(materialized[*block.ParentID], *block.OccurrenceDate)
		}
	}

	for _, block := range blocks {
		if block.IsChild() || !ruleOf(block).Recurring() {
			if block.Start.Before(from) || !block.Start.Before(to) {
				continue
			}
			occurrences = append(occurrences, singleOccurrence(block, s.engine))
			continue
		}

		var expanded []BlockOccurrence
		expanded, err = s.expandSeries(ctx, block, materialized[block.ID], from, to)
		if err != nil {
			return
		}
		occurrences = append(occurrences, expanded...)
	}

	slices.SortFunc(occurrences, func(a, b BlockOccurrence) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		if c := cmp.Compare(a.BlockID, b.BlockID); c != 0 {
			return c
		}
		return cmp.Compare(a.OccurrenceDate, b.OccurrenceDate)
	})
	return
}

func (s *CalendarService) expandSeries(ctx context.Context, root persistence.CalendarBlock, childDates []string, from, to time.Time) ([]BlockOccurrence, error) {
	exceptions, err := s.blocks.ListExceptions(ctx, root.ID)
	if err != nil {
		return nil, fmt.Errorf("list exceptions for %s: %w", root.ID, err)
	}

	excluded := recurrence.NewDateSet(childDates...)
	for _, exception := range exceptions {
		excluded[exception.OccurrenceDate] = struct{}{}
	}

	series := seriesOf(root, excluded)
	seq, err := s.engine.Expand(series, from, to)
	if err != nil {
		return nil, fmt.Errorf("expand series %s: %w", root.ID, err)
	}

	var out []BlockOccurrence
	for occurrence := range seq {
		out = append(out, BlockOccurrence{
			BlockID:        root.ID,
			SeriesID:       root.ID,
			Title:          root.Title,
			OccurrenceDate: occurrence.Date,
			Start:          occurrence.Start,
			End:            occurrence.End,
			Index:          occurrence.Index,
		})
	}
	return out, nil
}

// DeleteBlock removes a block, a single occurrence of a series, or a whole
// series depending on scope.
func (s *CalendarService) DeleteBlock(ctx context.Context, params DeleteBlockParams) (result DeleteResult, err error) {
	if s == nil {
		err = fmt.Errorf("CalendarService is nil")
		return
	}

	logger := serviceLogger(ctx, s.logger, "CalendarService", "DeleteBlock",
		"principal_id", params.Principal.UserID,
		"block_id", params.BlockID,
		"scope", params.Scope,
	)
	defer func() {
		logResult(ctx, logger, err, "calendar block deleted",
			"deleted_series", result.DeletedSeries,
			"deleted_block", result.DeletedBlock,
			"exception_added", result.ExceptionAdded,
		)
	}()

	if !params.Principal.Authenticated() {
		err = ErrUnauthenticated
		return
	}

	scope, scopeErr := recurrence.ParseScope(params.Scope)
	if scopeErr != nil {
		err = newValidationError("scope", "scope must be this or all")
		return
	}

	occurrenceDate := strings.TrimSpace(params.OccurrenceDate)
	if occurrenceDate != "" {
		if _, parseErr := time.Parse(recurrence.DateLayout, occurrenceDate); parseErr != nil {
			err = newValidationError("occurrence_date", "occurrence_date must be a YYYY-MM-DD date")
			return
		}
	}

	var block persistence.CalendarBlock
	block, err = s.ownedBlock(ctx, params.Principal, params.BlockID)
	if err != nil {
		return
	}

	target := recurrence.Target{
		BlockID:        block.ID,
		Recurring:      !block.IsChild() && ruleOf(block).Recurring(),
		AnchorDate:     s.engine.DateKey(block.Start),
		OccurrenceDate: occurrenceDate,
	}
	if block.IsChild() {
		target.ParentID = *block.ParentID
		if block.OccurrenceDate != nil {
			target.AnchorDate = *block.OccurrenceDate
		}
	}

	var effect recurrence.DeletionEffect
	effect, err = s.engine.ResolveDeletion(target, scope)
	if err != nil {
		return
	}
	if effect.Exception != nil && effect.DeleteBlockID == "" {
		var generated bool
		generated, err = s.generates(block, effect.Exception.Date)
		if err != nil {
			return
		}
		if !generated {
			err = fmt.Errorf("%w: series has no occurrence on %s", ErrNotFound, effect.Exception.Date)
			return
		}
	}

	if err = s.apply(ctx, effect); err != nil {
		return
	}

	result = DeleteResult{
		Scope:         string(scope),
		DeletedSeries: effect.DeleteSeriesID,
		DeletedBlock:  effect.DeleteBlockID,
	}
	if effect.Exception != nil {
		result.ExceptionAdded = effect.Exception.Date
	}
	return
}

// generates reports whether the series rule yields an occurrence on date,
// ignoring exceptions and pause state.
func (s *CalendarService) generates(root persistence.CalendarBlock, date string) (bool, error) {
	day, err := time.ParseInLocation(recurrence.DateLayout, date, s.engine.Location())
	if err != nil {
		return false, newValidationError("occurrence_date", "occurrence_date must be a YYYY-MM-DD date")
	}
	series := seriesOf(root, nil)
	series.Paused, series.PausedAt = false, nil

	seq, err := s.engine.Expand(series, day, day.AddDate(0, 0, 1))
	if err != nil {
		return false, fmt.Errorf("expand series %s: %w", root.ID, err)
	}
	for occurrence := range seq {
		if occurrence.Date == date {
			return true, nil
		}
	}
	return false, nil
}

func (s *CalendarService) apply(ctx context.Context, effect recurrence.DeletionEffect) error {
	var err error
	switch {
	case effect.DeleteSeriesID != "":
		err = s.blocks.DeleteSeries(ctx, effect.DeleteSeriesID)
	case effect.DeleteBlockID != "" && effect.Exception != nil:
		err = s.blocks.ReplaceOccurrence(ctx, effect.DeleteBlockID, exceptionRecord(*effect.Exception, s.now()))
	case effect.DeleteBlockID != "":
		err = s.blocks.DeleteBlock(ctx, effect.DeleteBlockID)
	case effect.Exception != nil:
		err = s.blocks.UpsertException(ctx, exceptionRecord(*effect.Exception, s.now()))
	}

	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("apply deletion: %w", err)
	}
	return nil
}

// SetPaused pauses or resumes generation of a series. Occurrences starting
// at or after the pause instant are hidden while paused.
func (s *CalendarService) SetPaused(ctx context.Context, principal Principal, blockID string, paused bool) (block CalendarBlock, err error) {
	if s == nil {
		err = fmt.Errorf("CalendarService is nil")
		return
	}

	logger := serviceLogger(ctx, s.logger, "CalendarService", "SetPaused",
		"principal_id", principal.UserID,
		"block_id", blockID,
		"paused", paused,
	)
	defer func() {
		logResult(ctx, logger, err, "series pause updated")
	}()

	if !principal.Authenticated() {
		err = ErrUnauthenticated
		return
	}

	var record persistence.CalendarBlock
	record, err = s.ownedBlock(ctx, principal, blockID)
	if err != nil {
		return
	}
	if record.IsChild() || !ruleOf(record).Recurring() {
		err = newValidationError("block_id", "block is not a recurring series")
		return
	}

	now := s.now().UTC()
	var pausedAt *time.Time
	if paused {
		pausedAt = &now
	}

	if err = s.blocks.SetBlockPaused(ctx, record.ID, paused, pausedAt, now); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrNotFound
			return
		}
		err = fmt.Errorf("update pause state: %w", err)
		return
	}

	record.Paused = paused
	record.PausedAt = pausedAt
	record.UpdatedAt = now
	block = toCalendarBlock(record)
	return
}

// GetBlock returns one of the principal's blocks.
func (s *CalendarService) GetBlock(ctx context.Context, principal Principal, blockID string) (CalendarBlock, error) {
	if !principal.Authenticated() {
		return CalendarBlock{}, ErrUnauthenticated
	}
	record, err := s.ownedBlock(ctx, principal, blockID)
	if err != nil {
		return CalendarBlock{}, err
	}
	return toCalendarBlock(record), nil
}

// ownedBlock loads a block and hides blocks owned by someone else.
func (s *CalendarService) ownedBlock(ctx context.Context, principal Principal, blockID string) (persistence.CalendarBlock, error) {
	blockID = strings.TrimSpace(blockID)
	if blockID == "" {
		return persistence.CalendarBlock{}, newValidationError("block_id", "block id is required")
	}

	block, err := s.blocks.GetBlock(ctx, blockID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return persistence.CalendarBlock{}, ErrNotFound
		}
		return persistence.CalendarBlock{}, fmt.Errorf("load calendar block: %w", err)
	}
	if block.OwnerID != principal.UserID {
		return persistence.CalendarBlock{}, ErrNotFound
	}
	return block, nil
}

// errRRuleWithFields rejects an RRULE given next to explicit rule fields.
var errRRuleWithFields = errors.New("rrule cannot be combined with type")

func ruleFromInput(input RecurrenceInput) (recurrence.Rule, error) {
	if value := strings.TrimSpace(input.RRule); value != "" {
		if strings.TrimSpace(input.Type) != "" {
			return recurrence.Rule{}, errRRuleWithFields
		}
		if len(value) > len("RRULE:") && strings.EqualFold(value[:len("RRULE:")], "RRULE:") {
			value = value[len("RRULE:"):]
		}
		rule, err := recurrence.RuleFromRRule(value)
		if err != nil {
			var ruleErr *recurrence.RuleError
			if errors.As(err, &ruleErr) {
				return recurrence.Rule{}, fmt.Errorf("%s %s", ruleErr.Field, ruleErr.Reason)
			}
			return recurrence.Rule{}, errors.New("rrule is not a valid RFC 5545 rule")
		}
		return rule, nil
	}

	frequency := recurrence.Frequency(strings.ToLower(strings.TrimSpace(input.Type)))
	if frequency == "" {
		frequency = recurrence.FrequencyNone
	}
	interval := input.Interval
	if interval == 0 {
		interval = 1
	}
	rule := recurrence.Rule{
		Frequency:  frequency,
		Interval:   interval,
		DaysOfWeek: input.DaysOfWeek,
		DayOfMonth: input.DayOfMonth,
		Count:      input.Count,
		Until:      input.Until,
	}
	if rule.Until != nil {
		until := rule.Until.UTC()
		rule.Until = &until
	}
	return rule, nil
}

func ruleOf(block persistence.CalendarBlock) recurrence.Rule {
	return recurrence.Rule{
		Frequency:  recurrence.Frequency(block.RecurrenceType),
		Interval:   block.RecurrenceInterval,
		DaysOfWeek: block.RecurrenceDays,
		DayOfMonth: block.DayOfMonth,
		Count:      block.Count,
		Until:      block.Until,
	}
}

func seriesOf(block persistence.CalendarBlock, exceptions recurrence.DateSet) recurrence.Series {
	return recurrence.Series{
		ID:         block.ID,
		Start:      block.Start,
		End:        block.End,
		Rule:       ruleOf(block),
		Paused:     block.Paused,
		PausedAt:   block.PausedAt,
		Exceptions: exceptions,
	}
}

func singleOccurrence(block persistence.CalendarBlock, engine *recurrence.Engine) BlockOccurrence {
	occurrence := BlockOccurrence{
		BlockID:        block.ID,
		SeriesID:       block.ID,
		Title:          block.Title,
		OccurrenceDate: engine.DateKey(block.Start),
		Start:          block.Start.In(engine.Location()),
		End:            block.End.In(engine.Location()),
		Index:          -1,
	}
	if block.IsChild() {
		occurrence.SeriesID = *block.ParentID
		occurrence.Materialized = true
		if block.OccurrenceDate != nil {
			occurrence.OccurrenceDate = *block.OccurrenceDate
		}
	}
	return occurrence
}

func exceptionRecord(exception recurrence.Exception, now time.Time) persistence.RecurrenceException {
	return persistence.RecurrenceException{
		SeriesID:       exception.SeriesID,
		OccurrenceDate: exception.Date,
		CreatedAt:      now.UTC(),
	}
}

func toCalendarBlock(record persistence.CalendarBlock) CalendarBlock {
	block := CalendarBlock{
		ID:    record.ID,
		Title: record.Title,
		Start: record.Start,
		End:   record.End,
		Recurrence: RecurrenceInput{
			Type:       record.RecurrenceType,
			Interval:   record.RecurrenceInterval,
			DaysOfWeek: record.RecurrenceDays,
			DayOfMonth: record.DayOfMonth,
			Count:      record.Count,
			Until:      record.Until,
		},
		Paused:    record.Paused,
		PausedAt:  record.PausedAt,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
	if record.ParentID != nil {
		block.ParentID = *record.ParentID
	}
	if record.OccurrenceDate != nil {
		block.OccurrenceDate = *record.OccurrenceDate
	}
	return block
}
