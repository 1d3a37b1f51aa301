package http

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/example/daybook/internal/application"
)

// RouterConfig lists the handlers mounted by NewRouter. Nil handlers are
// skipped.
type RouterConfig struct {
	Auth       Authenticator
	ShortLinks *ShortLinkHandler
	Users      *UserHandler
	Calendar   *CalendarHandler
	Logger     *slog.Logger
}

// NewRouter builds the HTTP handler for the service, wrapped in request
// logging and CORS.
func NewRouter(cfg RouterConfig) http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		newResponder(cfg.Logger).writeError(r.Context(), w, http.StatusNotFound, nil)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		newResponder(cfg.Logger).writeError(r.Context(), w, http.StatusMethodNotAllowed, nil)
	})

	if cfg.ShortLinks != nil {
		router.HandleFunc("/shorten-link", cfg.ShortLinks.Shorten).Methods(http.MethodPost)
		router.HandleFunc("/"+application.RedirectRouteName, cfg.ShortLinks.Redirect)
		router.HandleFunc("/"+application.RedirectRouteName+"/", cfg.ShortLinks.Redirect)
		router.HandleFunc("/"+application.RedirectRouteName+"/{code}", cfg.ShortLinks.Redirect)
		router.HandleFunc("/l/{code}", cfg.ShortLinks.Redirect).Methods(http.MethodGet, http.MethodHead)
	}

	if cfg.Auth != nil {
		protected := router.NewRoute().Subrouter()
		protected.Use(RequireBearer(cfg.Auth, cfg.Logger))

		if cfg.Users != nil {
			protected.HandleFunc("/admin-create-user", cfg.Users.Create).Methods(http.MethodPost)
		}
		if cfg.Calendar != nil {
			protected.HandleFunc("/calendar-blocks", cfg.Calendar.Create).Methods(http.MethodPost)
			protected.HandleFunc("/calendar-blocks/occurrences", cfg.Calendar.Occurrences).Methods(http.MethodGet)
			protected.HandleFunc("/calendar-blocks/{id}", cfg.Calendar.Get).Methods(http.MethodGet)
			protected.HandleFunc("/calendar-blocks/{id}", cfg.Calendar.Delete).Methods(http.MethodDelete)
			protected.HandleFunc("/calendar-blocks/{id}/pause", cfg.Calendar.Pause).Methods(http.MethodPut)
			protected.HandleFunc("/calendar-blocks/{id}/calendar.ics", cfg.Calendar.ExportICS).Methods(http.MethodGet)
		}
	}

	return CORS(RequestLogger(cfg.Logger)(router))
}
