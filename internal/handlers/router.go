package handlers

import (
	"net/http"

	"ovpnadmin/internal/logging"
	"ovpnadmin/internal/middleware"
	"ovpnadmin/internal/models"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

type Router struct {
	Logger  *logrus.Logger
	Proxies *middleware.TrustedProxies
	CSRF    *middleware.CSRF
	AuthMW  *middleware.AuthMiddleware
	Auth    *AuthHandler
	Admin   *AdminHandler
	Users   *UsersHandler
	Clients *ClientsHandler
	CCD     *CCDHandler
	Health  *HealthHandler
}

// Handler assembles the request pipeline: security headers, access log,
// panic recovery, trusted-proxy client IP, CSRF check, then per-group
// session and role guards in front of the handlers.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.SecurityHeaders)
	r.Use(logging.RequestLogger(rt.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(rt.Proxies.RealIP)
	r.Use(rt.CSRF.Protect)

	// Public routes
	r.Get("/health", rt.Health.Health)
	r.Get("/auth/csrf", rt.Auth.CSRFToken)
	r.Post("/auth/login", rt.Auth.Login)
	r.Post("/auth/logout", rt.Auth.Logout)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(rt.AuthMW.RequireAuth)

		r.Get("/me", rt.Auth.Me)
		r.Post("/auth/stepup", rt.Auth.StepUp)
		r.Post("/auth/password", rt.Auth.ChangePassword)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(rt.AuthMW.RequireRole(models.RoleAdmin))

			r.Get("/protected/admin-ping", rt.Admin.Ping)
			r.Get("/admin/audit", rt.Admin.Audit)

			// Users
			r.Get("/admin/users", rt.Users.List)
			r.Post("/admin/users", rt.Users.Create)
			r.Put("/admin/users/{id}/disabled", rt.Users.SetDisabled)
			r.Post("/admin/users/{id}/roles", rt.Users.AssignRole)

			// Clients
			r.Post("/admin/clients", rt.Clients.Create)
			r.Post("/admin/clients/{cn}/revoke", rt.Clients.Revoke)
			r.Post("/admin/clients/{cn}/bundle", rt.Clients.Bundle)

			// CCD
			r.Get("/admin/ccd/{cn}", rt.CCD.Get)
			r.Put("/admin/ccd/{cn}", rt.CCD.Put)
			r.Get("/admin/ccd-archive", rt.CCD.Export)
			r.Post("/admin/ccd-archive", rt.CCD.Import)
		})
	})

	return r
}
