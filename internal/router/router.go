package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-auth-service/internal/config"
	"go-auth-service/internal/handler"
	"go-auth-service/internal/middleware"
	"go-auth-service/internal/model"
)

type Handlers struct {
	Auth  *handler.AuthHandler
	User  *handler.UserHandler
	Audit *handler.AuditHandler
}

func New(cfg *config.Config, authMiddleware *middleware.AuthMiddleware, h Handlers, health http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", health)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/register", h.Auth.Register)
			auth.Post("/login", h.Auth.Login)
			auth.Post("/refresh", h.Auth.Refresh)
			auth.Post("/verify-email", h.Auth.VerifyEmail)
			auth.With(authMiddleware.RequireAuth).Post("/logout", h.Auth.Logout)
			auth.With(authMiddleware.RequireAuth).Get("/profile", h.Auth.Profile)
			auth.With(authMiddleware.RequireAuth).Post("/change-password", h.Auth.ChangePassword)
			auth.With(authMiddleware.RequireAuth).Post("/revoke-all", h.Auth.RevokeAll)
		})

		api.Route("/users", func(users chi.Router) {
			users.Use(authMiddleware.RequireAuth, authMiddleware.RequireRoles(model.RoleAdmin))
			users.Get("/", h.User.List)
			users.Put("/{user_id}/roles", h.User.AssignRoles)
			users.Post("/{user_id}/deactivate", h.User.Deactivate)
			users.Post("/{user_id}/unlock", h.User.Unlock)
		})

		api.With(authMiddleware.RequireAuth, authMiddleware.RequireRoles(model.RoleAdmin)).Get("/audit", h.Audit.List)
	})

	return r
}
