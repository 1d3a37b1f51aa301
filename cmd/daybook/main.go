package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"

	"github.com/example/daybook/internal/application"
	"github.com/example/daybook/internal/config"
	httptransport "github.com/example/daybook/internal/http"
	"github.com/example/daybook/internal/logging"
	"github.com/example/daybook/internal/persistence"
	"github.com/example/daybook/internal/persistence/memory"
	"github.com/example/daybook/internal/persistence/sqlstore"
	"github.com/example/daybook/internal/recurrence"
)

const usage = `usage: daybook [serve]
       daybook bootstrap-admin -email EMAIL [-password PASSWORD]`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "daybook:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	switch command {
	case "serve":
		return serve(ctx, cfg, logging.New(stdout, level))
	case "bootstrap-admin":
		return bootstrapAdmin(ctx, cfg, args, stdout, logging.New(stderr, level))
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
}

type app struct {
	store      persistence.Store
	users      *application.UserService
	auth       *application.AuthService
	calendar   *application.CalendarService
	shortLinks *application.ShortLinkService
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	idGenerator := uuid.NewString
	now := time.Now

	return &app{
		store:      store,
		users:      application.NewUserService(store, nil, idGenerator, now, logger),
		auth:       application.NewAuthService(store, store, application.NewSessionToken, now, cfg.SessionTTL, logger),
		calendar:   application.NewCalendarService(store, recurrence.NewEngine(cfg.Location), idGenerator, now, logger),
		shortLinks: application.NewShortLinkService(store, cfg.PublicBaseURL, nil, now, logger).WithResolveCache(5*time.Minute, 4096),
	}, nil
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (persistence.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		logger.Warn("using in-memory store; data is lost on exit")
		return memory.New(), nil
	case config.DriverSQLite, config.DriverPostgres:
		dialect := sqlstore.DialectSQLite
		if cfg.StoreDriver == config.DriverPostgres {
			dialect = sqlstore.DialectPostgres
		}
		store, err := sqlstore.Open(ctx, sqlstore.Options{Dialect: dialect, DSN: cfg.DatabaseDSN, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.store.Close(); cerr != nil {
			logger.Error("failed to close store", "error", cerr)
		}
	}()

	handler := httptransport.NewRouter(httptransport.RouterConfig{
		Auth:       a.auth,
		ShortLinks: httptransport.NewShortLinkHandler(a.shortLinks, logger),
		Users:      httptransport.NewUserHandler(a.users, logger),
		Calendar:   httptransport.NewCalendarHandler(a.calendar, cfg.Location, logger),
		Logger:     logger,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("daybook API listening", "addr", server.Addr, "store", cfg.StoreDriver, "public_base_url", cfg.PublicBaseURL)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

// bootstrapAdmin creates or promotes an administrator and prints a bearer
// token for it, so the first admin-create-user call can be made.
func bootstrapAdmin(ctx context.Context, cfg config.Config, args []string, stdout io.Writer, logger *slog.Logger) error {
	flags := flag.NewFlagSet("bootstrap-admin", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	email := flags.String("email", "", "administrator email address")
	password := flags.String("password", "", "password; generated when empty")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("%w\n%s", err, usage)
	}
	if *email == "" {
		return fmt.Errorf("-email is required\n%s", usage)
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.store.Close()

	admin, err := a.users.BootstrapAdmin(ctx, *email, *password)
	if err != nil {
		return fmt.Errorf("bootstrap administrator: %w", err)
	}
	token, err := a.auth.IssueToken(ctx, admin.ID)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	_, err = fmt.Fprintf(stdout, "user_id=%s\nemail=%s\ntoken=%s\nexpires_at=%s\n",
		admin.ID, admin.Email, token.Token, token.ExpiresAt.Format(time.RFC3339))
	return err
}
