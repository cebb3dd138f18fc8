package transport

import (
	"context"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/config"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/definition"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/observability"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/page"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/session"
)

// Authenticator signs the console user in and out against the school API.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (map[string]any, error)
	Logout(ctx context.Context) error
}

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config      *config.Config
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	Auth        Authenticator
	Session     *session.Session
	Navigator   *session.RecordingNavigator
	Definitions *definition.Registry
	Pages       *page.Registry
	Readiness   observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, metrics and the session routes
// bypass the signed-in check.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := newValidator()

	r := chi.NewRouter()

	r.Use(Recovery(logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID(logger))
	r.Use(SecurityHeaders)
	r.Use(observability.TracingMiddleware)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.MetricsMiddleware)
	}
	r.Use(RequestLogging(logger))
	r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))

	r.Get("/ui/health", observability.HandleHealth())
	r.Get("/ui/ready", observability.HandleReady(deps.Readiness))
	r.Handle("/metrics", observability.Handler())

	r.Post("/ui/session/login", handleLogin(deps, validate))
	r.Post("/ui/session/logout", handleLogout(deps))
	r.Get("/ui/session", handleSession(deps))

	r.Group(func(r chi.Router) {
		r.Use(RequireSession(deps.Session, deps.Navigator, deps.Config.Session.LoginRoute))

		h := &pageHandlers{
			pages:     deps.Pages,
			defs:      deps.Definitions,
			nav:       deps.Navigator,
			validate:  validate,
			maxUpload: deps.Config.Transfer.MaxUploadBytes,
		}

		r.Get("/ui/pages", h.list)
		r.Get("/ui/pages/{pageId}", h.get)
		r.Post("/ui/pages/{pageId}/query", h.query)
		r.Delete("/ui/pages/{pageId}/filters/{key}", h.removeFilter)
		r.Post("/ui/pages/{pageId}/filters/reset", h.resetFilters)
		r.Post("/ui/pages/{pageId}/selection", h.selection)
		r.Post("/ui/pages/{pageId}/entities", h.create)
		r.Put("/ui/pages/{pageId}/entities/{id}", h.update)
		r.Delete("/ui/pages/{pageId}/entities/{id}", h.archive)
		r.Post("/ui/pages/{pageId}/modals/{modal}", h.modal)
		r.Delete("/ui/pages/{pageId}/notifications/{id}", h.dismiss)
		r.Post("/ui/pages/{pageId}/bulk/{action}", h.bulk)
		r.Post("/ui/pages/{pageId}/export", h.export)
		r.Post("/ui/pages/{pageId}/import", h.importFile)
		r.Get("/ui/pages/{pageId}/import/template/{format}", h.template)
	})

	return r
}
