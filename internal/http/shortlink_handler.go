package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/example/daybook/internal/application"
)

type shortLinkService interface {
	Shorten(ctx context.Context, destinationURL string) (application.ShortLink, error)
	Resolve(ctx context.Context, code string) (string, error)
}

// ShortLinkHandler serves the shorten and redirect endpoints.
type ShortLinkHandler struct {
	service   shortLinkService
	responder responder
	logger    *slog.Logger
}

func NewShortLinkHandler(service shortLinkService, logger *slog.Logger) *ShortLinkHandler {
	base := defaultLogger(logger)
	return &ShortLinkHandler{service: service, responder: newResponder(base), logger: base}
}

type shortenRequest struct {
	URL string `json:"url"`
}

type shortenResponse struct {
	ShortURL string `json:"short_url"`
	Code     string `json:"code"`
}

func (h *ShortLinkHandler) Shorten(w http.ResponseWriter, r *http.Request) {
	logger := handlerLogger(r.Context(), h.logger, "ShortLinkHandler", "Shorten")

	var req shortenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(r.Context(), "failed to decode shorten request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	link, err := h.service.Shorten(r.Context(), req.URL)
	if err != nil {
		logger.WarnContext(r.Context(), "shorten failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, shortenResponse{ShortURL: link.ShortURL, Code: link.Code})
}

// Redirect resolves the code taken from the path, or from the code query
// parameter when the path carries none, and redirects to its destination.
func (h *ShortLinkHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	if code == "" {
		code = r.URL.Query().Get("code")
	}
	logger := handlerLogger(r.Context(), h.logger, "ShortLinkHandler", "Redirect", "code", code)

	destination, err := h.service.Resolve(r.Context(), code)
	if err != nil {
		var vErr *application.ValidationError
		switch {
		case errors.As(err, &vErr):
			h.responder.writeText(w, http.StatusBadRequest, vErr.Message())
		case errors.Is(err, application.ErrNotFound):
			h.responder.writeText(w, http.StatusNotFound, "Short link not found")
		default:
			logger.ErrorContext(r.Context(), "resolve failed", "error", err)
			h.responder.writeText(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	http.Redirect(w, r, destination, http.StatusFound)
}
