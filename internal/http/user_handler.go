package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/example/daybook/internal/application"
)

type userService interface {
	CreateUser(ctx context.Context, principal application.Principal, input application.CreateUserInput) (application.CreatedUser, error)
}

// UserHandler serves administrative account management.
type UserHandler struct {
	service   userService
	responder responder
	logger    *slog.Logger
}

func NewUserHandler(service userService, logger *slog.Logger) *UserHandler {
	base := defaultLogger(logger)
	return &UserHandler{service: service, responder: newResponder(base), logger: base}
}

type createUserRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	MakeAdmin bool   `json:"make_admin"`
}

type createUserResponse struct {
	Success bool   `json:"success"`
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	logger := handlerLogger(r.Context(), h.logger, "UserHandler", "Create", "principal_id", principal.UserID)

	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(r.Context(), "failed to decode user request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	user, err := h.service.CreateUser(r.Context(), principal, application.CreateUserInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		MakeAdmin: req.MakeAdmin,
	})
	if err != nil {
		logger.WarnContext(r.Context(), "user creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "user created", "user_id", user.ID)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, createUserResponse{Success: true, UserID: user.ID, Email: user.Email})
}
