package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/parisxmas/OxiDB/OxiForms/internal/apperr"
	"github.com/parisxmas/OxiDB/OxiForms/internal/auth"
	"github.com/parisxmas/OxiDB/OxiForms/internal/handler"
	"github.com/parisxmas/OxiDB/OxiForms/internal/logger"
	"github.com/parisxmas/OxiDB/OxiForms/internal/metrics"
	mw "github.com/parisxmas/OxiDB/OxiForms/internal/middleware"
)

type Deps struct {
	Tokens *auth.Tokens
	// Accounts reloads the user behind each token, giving up after
	// LookupTimeout.
	Accounts      auth.UserLookup
	LookupTimeout time.Duration
	Health        handler.Pinger
	Limiter       *mw.RateLimiter
	Metrics       *metrics.Metrics
	Logger        logger.Logger

	Auth        *handler.AuthHandler
	Forms       *handler.FormHandler
	Submissions *handler.SubmissionHandler
	Users       *handler.UserHandler
	Admin       *handler.AdminHandler
	Dashboard   *handler.DashboardHandler
}

func New(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.Logger(d.Logger, d.Metrics))
	r.Use(mw.Recovery)
	r.Use(mw.CORS)

	r.Get("/healthz", handler.Health(d.Health))
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/auth/login", d.Auth.Login)
		r.Post("/auth/register", d.Auth.Register)
		r.Get("/public/forms/{publicId}", d.Forms.Public)
		r.With(d.Limiter.Handler).Post("/public/forms/{publicId}/submit", d.Submissions.Submit)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(d.Tokens, d.Accounts, d.LookupTimeout, handler.WriteError))

			r.Get("/auth/me", d.Auth.Me)
			r.Get("/dashboard", d.Dashboard.Dashboard)

			r.Get("/forms", d.Forms.List)
			r.Post("/forms", d.Forms.Create)
			r.Get("/forms/{formId}", d.Forms.Get)
			r.Put("/forms/{formId}", d.Forms.Update)
			r.Delete("/forms/{formId}", d.Forms.Delete)
			r.Get("/forms/{formId}/submissions", d.Submissions.List)

			r.Get("/submissions/{subId}", d.Submissions.Get)
			r.Delete("/submissions/{subId}", d.Submissions.Delete)
			r.Get("/submissions/{subId}/files/{field}", d.Submissions.Download)

			r.Get("/users", d.Users.List)
			r.Post("/users", d.Users.Create)
			r.Get("/users/{userId}", d.Users.Get)
			r.Put("/users/{userId}", d.Users.Update)
			r.Delete("/users/{userId}", d.Users.Delete)

			r.Get("/super-admin/unapproved-admins", d.Admin.ListPending)
			r.Post("/super-admin/admins/{userId}/approve", d.Admin.Approve)
			r.Post("/super-admin/admins/{userId}/reject", d.Admin.Reject)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handler.WriteError(w, r, apperr.NotFound("route"))
	})
	return r
}
