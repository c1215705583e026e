package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/entityconfig/internal/config"
	"github.com/pitabwire/entityconfig/internal/observability"
	"github.com/pitabwire/entityconfig/model"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
// Nil services leave their routes answering 404.
type Dependencies struct {
	Config             *config.Config
	Logger             *zap.Logger
	Authenticate       func(http.Handler) http.Handler
	CapabilityResolver model.CapabilityResolver
	Metrics            *observability.Metrics
	Readiness          observability.ReadinessChecks

	Configs    ConfigResolver
	Docs       DocBuilder
	Activities ActivityLister
	Exporter   FieldExporter
	Importer   FieldImporter
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.MetricsMiddleware)
	}

	r.Get("/health", observability.HandleHealth())
	r.Get("/ready", observability.HandleReady(deps.Readiness))
	if m := deps.Config.Observability.Metrics; m.Enabled {
		path := m.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, observability.Handler())
	}

	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(BuildRequestContextMiddleware(deps.Config.Identity.ClaimPaths))
		r.Use(ResolveCapabilities(deps.CapabilityResolver, logger))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))

		if deps.Configs != nil {
			r.With(RequireCapability(model.CapConfigView)).
				Get("/api/config/{requestType}/{version}", handleGetConfig(deps.Configs))
			r.With(RequireCapability(model.CapConfigManage)).
				Delete("/api/config/cache", handleResetConfigCache(deps.Configs))
		}
		r.With(RequireCapability(model.CapConfigView)).
			Post("/api/joins/optimize", handleOptimizeJoins)
		if deps.Docs != nil {
			r.With(RequireCapability(model.CapConfigView)).
				Get("/api/doc/{requestType}/{version}", handleAPIDoc(deps.Docs))
		}
		if deps.Activities != nil {
			r.With(RequireCapability(model.CapEntityView)).
				Get("/api/entities/activities", handleActivities(deps.Activities))
		}
		if deps.Exporter != nil {
			r.With(RequireCapability(model.CapEntityExport)).
				Get("/api/fields/export", handleExportFields(deps.Exporter))
		}
		if deps.Importer != nil {
			r.With(RequireCapability(model.CapEntityImport)).
				Post("/api/fields/import", handleImportFields(deps.Importer, deps.Config.ImportExport.MaxUploadBytes))
		}
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusMethodNotAllowed, model.ErrorEnvelope{
			Code:    model.ErrBadRequest,
			Message: "method not allowed",
		})
	})

	return r
}
