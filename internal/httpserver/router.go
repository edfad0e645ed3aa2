package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"reqtrack/internal/audit"
	"reqtrack/internal/auth"
	"reqtrack/internal/httpserver/handlers"
	"reqtrack/internal/models"
	"reqtrack/internal/obs"
	"reqtrack/internal/services"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	DB             *gorm.DB
	Log            *zap.SugaredLogger
	Auth           *auth.Authenticator
	Sessions       *auth.SessionConfig
	Audit          *audit.Recorder
	Requirements   *services.Requirements
	Documents      *services.Documents
	Users          *services.Users
	LoginLimiter   *IPRateLimiter
	GoogleClientID string
	Started        time.Time
	// TrustProxyHeaders lets X-Forwarded-For and X-Real-IP replace the peer
	// address. Enable only behind a proxy that overwrites those headers.
	TrustProxyHeaders bool
}

func NewRouter(d Deps) http.Handler {
	lg := d.Log
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if d.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(RequestLogger(lg), middleware.Recoverer, obs.Instrument)

	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", handlers.Health(d.Started))
		api.Get("/db-health", handlers.DBHealth(d.DB, lg))
		api.Get("/public-google-client-id", handlers.PublicGoogleClientID(d.GoogleClientID))
		api.Get("/requirements/template", handlers.RequirementsTemplate(lg))
		api.With(d.LoginLimiter.Middleware).Post("/login", handlers.Login(d.Auth, lg))

		api.Group(func(protected chi.Router) {
			protected.Use(auth.Middleware(d.Auth, lg))
			protected.Get("/me", handlers.Me())

			protected.Get("/requirements", handlers.ListRequirements(d.Requirements, lg))
			protected.Post("/requirements", handlers.CreateRequirement(d.Requirements, lg))
			protected.Get("/requirements/export", handlers.ExportRequirements(d.Requirements, lg))
			protected.Post("/requirements/bulk-upload", handlers.BulkUploadRequirements(d.Requirements, lg))
			protected.Get("/requirements/{id}", handlers.GetRequirement(d.Requirements, lg))
			protected.Put("/requirements/{id}", handlers.UpdateRequirement(d.Requirements, lg))
			protected.Delete("/requirements/{id}", handlers.DeleteRequirement(d.Requirements, lg))

			protected.Get("/scd", handlers.ListDocuments(d.Documents, lg))
			protected.Post("/scd", handlers.CreateDocument(d.Documents, lg))
			protected.Get("/scd/{id}", handlers.GetDocument(d.Documents, lg))
			protected.Put("/scd/{id}", handlers.UpdateDocument(d.Documents, lg))
			protected.Delete("/scd/{id}", handlers.DeleteDocument(d.Documents, lg))
			protected.Post("/scd/{id}/clone", handlers.CloneDocument(d.Documents, lg))
			protected.Put("/scd/{id}/requirements", handlers.AppendDocumentRequirements(d.Documents, lg))

			protected.Group(func(admin chi.Router) {
				admin.Use(auth.RequireRole(models.RoleAdmin))
				admin.Get("/users", handlers.ListUsers(d.Users, lg))
				admin.Post("/users/promote", handlers.PromoteUser(d.Users, lg))
				admin.Get("/audit-logs", handlers.ListAuditLogs(d.DB, d.Audit, lg))
				admin.Get("/session-config", handlers.GetSessionConfig(d.Sessions))
				admin.Post("/session-config", handlers.SetSessionConfig(d.DB, d.Sessions, d.Audit, lg))
				admin.Post("/requirements/mass-edit", handlers.MassEditRequirements(d.Requirements, lg))
				admin.Post("/requirements/mass-delete", handlers.MassDeleteRequirements(d.Requirements, lg))
			})
		})
	})
	return r
}
