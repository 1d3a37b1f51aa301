package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/daybook/internal/application"
	"github.com/example/daybook/internal/persistence"
	"github.com/example/daybook/internal/persistence/memory"
	"github.com/example/daybook/internal/recurrence"
)

// FastHasher trades strength for speed in tests.
var FastHasher = application.Argon2idHasher(application.Argon2idParams{
	Memory:      1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  8,
	KeyLength:   16,
})

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks over a shared store.
type ServiceFactory struct {
	Store       persistence.Store
	Clock       *Clock
	IDGenerator *IDGenerator
	Engine      *recurrence.Engine
	Codes       application.CodeGenerator
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory over an in-memory store.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Store:       memory.New(),
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Engine:      recurrence.NewEngine(time.UTC),
		Logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(factory)
	}
	return factory
}

// WithStore overrides the backing store.
func WithStore(store persistence.Store) ServiceFactoryOption {
	return func(factory *ServiceFactory) { factory.Store = store }
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) { factory.Clock = clock }
}

// WithCodes overrides the short code generator.
func WithCodes(codes application.CodeGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) { factory.Codes = codes }
}

// WithEngine overrides the recurrence engine.
func WithEngine(engine *recurrence.Engine) ServiceFactoryOption {
	return func(factory *ServiceFactory) { factory.Engine = engine }
}

// Calendar builds a calendar service.
func (f *ServiceFactory) Calendar() *application.CalendarService {
	return application.NewCalendarService(f.Store, f.Engine, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger)
}

// ShortLinks builds a short-link service publishing under baseURL.
func (f *ServiceFactory) ShortLinks(baseURL string) *application.ShortLinkService {
	return application.NewShortLinkService(f.Store, baseURL, f.Codes, f.Clock.NowFunc(), f.Logger)
}

// Users builds a user service with a fast password hasher.
func (f *ServiceFactory) Users() *application.UserService {
	return application.NewUserService(f.Store, FastHasher, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger)
}

// Auth builds an auth service with deterministic tokens.
func (f *ServiceFactory) Auth() *application.AuthService {
	return application.NewAuthService(f.Store, f.Store, NewIDGenerator("token").NextFunc(), f.Clock.NowFunc(), time.Hour, f.Logger)
}
