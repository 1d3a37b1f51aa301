package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/daybook/internal/application"
	"github.com/example/daybook/internal/recurrence"
)

type calendarService interface {
	CreateBlock(ctx context.Context, params application.CreateBlockParams) (application.CalendarBlock, error)
	GetBlock(ctx context.Context, principal application.Principal, blockID string) (application.CalendarBlock, error)
	ListOccurrences(ctx context.Context, principal application.Principal, from, to time.Time) ([]application.BlockOccurrence, error)
	DeleteBlock(ctx context.Context, params application.DeleteBlockParams) (application.DeleteResult, error)
	SetPaused(ctx context.Context, principal application.Principal, blockID string, paused bool) (application.CalendarBlock, error)
	ExportICS(ctx context.Context, principal application.Principal, blockID string) (string, error)
}

// CalendarHandler serves calendar blocks and their occurrences.
type CalendarHandler struct {
	service   calendarService
	location  *time.Location
	responder responder
	logger    *slog.Logger
}

// NewCalendarHandler builds a handler. Date-only query and body values are
// interpreted in loc.
func NewCalendarHandler(service calendarService, loc *time.Location, logger *slog.Logger) *CalendarHandler {
	if loc == nil {
		loc = time.UTC
	}
	base := defaultLogger(logger)
	return &CalendarHandler{service: service, location: loc, responder: newResponder(base), logger: base}
}

func (h *CalendarHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "CalendarHandler", operation, attrs...)
}

type recurrenceDTO struct {
	Type       string  `json:"type"`
	Interval   int     `json:"interval,omitempty"`
	DaysOfWeek []int   `json:"days_of_week,omitempty"`
	DayOfMonth int     `json:"day_of_month,omitempty"`
	Count      int     `json:"count,omitempty"`
	Until      *string `json:"until,omitempty"`
	RRule      string  `json:"rrule,omitempty"`
}

type createBlockRequest struct {
	Title          string         `json:"title"`
	StartTime      string         `json:"start_time"`
	EndTime        string         `json:"end_time"`
	Recurrence     *recurrenceDTO `json:"recurrence"`
	ParentID       string         `json:"parent_id"`
	OccurrenceDate string         `json:"occurrence_date"`
}

type calendarBlockDTO struct {
	ID             string        `json:"id"`
	Title          string        `json:"title"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time"`
	Recurrence     recurrenceDTO `json:"recurrence"`
	ParentID       string        `json:"parent_id,omitempty"`
	OccurrenceDate string        `json:"occurrence_date,omitempty"`
	Paused         bool          `json:"paused"`
	PausedAt       *time.Time    `json:"paused_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

type occurrenceDTO struct {
	BlockID        string    `json:"block_id"`
	SeriesID       string    `json:"series_id"`
	Title          string    `json:"title"`
	OccurrenceDate string    `json:"occurrence_date"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Index          int       `json:"index"`
	Materialized   bool      `json:"materialized"`
}

type occurrencesResponse struct {
	Occurrences []occurrenceDTO `json:"occurrences"`
}

type deleteResponse struct {
	Scope          string `json:"scope"`
	DeletedSeries  string `json:"deleted_series,omitempty"`
	DeletedBlock   string `json:"deleted_block,omitempty"`
	ExceptionAdded string `json:"exception_added,omitempty"`
}

type pauseRequest struct {
	Paused *bool `json:"paused"`
}

func (h *CalendarHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Create", "principal_id", principal.UserID)

	var req createBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(r.Context(), "failed to decode block request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	params, err := h.toCreateParams(principal, req)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	block, err := h.service.CreateBlock(r.Context(), params)
	if err != nil {
		logger.WarnContext(r.Context(), "block creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toBlockDTO(block))
}

func (h *CalendarHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	block, err := h.service.GetBlock(r.Context(), principal, mux.Vars(r)["id"])
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toBlockDTO(block))
}

// Occurrences lists occurrences starting in [from, to).
func (h *CalendarHandler) Occurrences(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()

	from, errFrom := parseTimestamp(query.Get("from"), h.location, false)
	to, errTo := parseTimestamp(query.Get("to"), h.location, false)
	if errFrom != nil || errTo != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, fmt.Errorf("from and to: %w", errInvalidTimestamp))
		return
	}

	occurrences, err := h.service.ListOccurrences(r.Context(), principal, from, to)
	if err != nil {
		h.log(r.Context(), "Occurrences", "principal_id", principal.UserID).
			WarnContext(r.Context(), "listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	resp := occurrencesResponse{Occurrences: make([]occurrenceDTO, 0, len(occurrences))}
	for _, occurrence := range occurrences {
		resp.Occurrences = append(resp.Occurrences, occurrenceDTO{
			BlockID:        occurrence.BlockID,
			SeriesID:       occurrence.SeriesID,
			Title:          occurrence.Title,
			OccurrenceDate: occurrence.OccurrenceDate,
			StartTime:      occurrence.Start,
			EndTime:        occurrence.End,
			Index:          occurrence.Index,
			Materialized:   occurrence.Materialized,
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

func (h *CalendarHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()
	blockID := mux.Vars(r)["id"]

	result, err := h.service.DeleteBlock(r.Context(), application.DeleteBlockParams{
		Principal:      principal,
		BlockID:        blockID,
		Scope:          query.Get("scope"),
		OccurrenceDate: query.Get("occurrence_date"),
	})
	if err != nil {
		h.log(r.Context(), "Delete", "principal_id", principal.UserID, "block_id", blockID).
			WarnContext(r.Context(), "deletion failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, deleteResponse{
		Scope:          result.Scope,
		DeletedSeries:  result.DeletedSeries,
		DeletedBlock:   result.DeletedBlock,
		ExceptionAdded: result.ExceptionAdded,
	})
}

func (h *CalendarHandler) Pause(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req pauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Paused == nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	block, err := h.service.SetPaused(r.Context(), principal, mux.Vars(r)["id"], *req.Paused)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toBlockDTO(block))
}

func (h *CalendarHandler) ExportICS(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	blockID := mux.Vars(r)["id"]

	document, err := h.service.ExportICS(r.Context(), principal, blockID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.ics"`, blockID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(document))
}

func (h *CalendarHandler) toCreateParams(principal application.Principal, req createBlockRequest) (application.CreateBlockParams, error) {
	start, err := parseTimestamp(req.StartTime, h.location, false)
	if err != nil {
		return application.CreateBlockParams{}, fmt.Errorf("start_time: %w", err)
	}
	end, err := parseTimestamp(req.EndTime, h.location, false)
	if err != nil {
		return application.CreateBlockParams{}, fmt.Errorf("end_time: %w", err)
	}

	params := application.CreateBlockParams{
		Principal:      principal,
		Title:          req.Title,
		Start:          start,
		End:            end,
		ParentID:       req.ParentID,
		OccurrenceDate: req.OccurrenceDate,
	}
	if req.Recurrence == nil {
		return params, nil
	}

	input := application.RecurrenceInput{
		Type:       req.Recurrence.Type,
		Interval:   req.Recurrence.Interval,
		DayOfMonth: req.Recurrence.DayOfMonth,
		Count:      req.Recurrence.Count,
		RRule:      req.Recurrence.RRule,
	}
	if req.Recurrence.DaysOfWeek != nil {
		input.DaysOfWeek = make([]time.Weekday, 0, len(req.Recurrence.DaysOfWeek))
		for _, day := range req.Recurrence.DaysOfWeek {
			input.DaysOfWeek = append(input.DaysOfWeek, time.Weekday(day))
		}
	}
	if req.Recurrence.Until != nil && strings.TrimSpace(*req.Recurrence.Until) != "" {
		until, err := parseTimestamp(*req.Recurrence.Until, h.location, true)
		if err != nil {
			return application.CreateBlockParams{}, fmt.Errorf("recurrence.until: %w", err)
		}
		input.Until = &until
	}
	params.Recurrence = input
	return params, nil
}

// parseTimestamp accepts RFC 3339 or a bare date in loc. A bare date means
// the start of that day, or its last instant when endOfDay is set.
func parseTimestamp(value string, loc *time.Location, endOfDay bool) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errInvalidTimestamp
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	day, err := time.ParseInLocation(recurrence.DateLayout, value, loc)
	if err != nil {
		return time.Time{}, errInvalidTimestamp
	}
	if endOfDay {
		return day.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	}
	return day, nil
}

func toBlockDTO(block application.CalendarBlock) calendarBlockDTO {
	dto := calendarBlockDTO{
		ID:        block.ID,
		Title:     block.Title,
		StartTime: block.Start,
		EndTime:   block.End,
		Recurrence: recurrenceDTO{
			Type:       block.Recurrence.Type,
			Interval:   block.Recurrence.Interval,
			DayOfMonth: block.Recurrence.DayOfMonth,
			Count:      block.Recurrence.Count,
		},
		ParentID:       block.ParentID,
		OccurrenceDate: block.OccurrenceDate,
		Paused:         block.Paused,
		PausedAt:       block.PausedAt,
		CreatedAt:      block.CreatedAt,
		UpdatedAt:      block.UpdatedAt,
	}
	for _, day := range block.Recurrence.DaysOfWeek {
		dto.Recurrence.DaysOfWeek = append(dto.Recurrence.DaysOfWeek, int(day))
	}
	if block.Recurrence.Until != nil {
		until := block.Recurrence.Until.Format(time.RFC3339)
		dto.Recurrence.Until = &until
	}
	return dto
}
