package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-rbac-auth/internal/config"
	"go-rbac-auth/internal/handler"
	"go-rbac-auth/internal/metrics"
	"go-rbac-auth/internal/middleware"
)

const adminRole = "admin"

type Handlers struct {
	Auth       *handler.AuthHandler
	Password   *handler.PasswordHandler
	Role       *handler.RoleHandler
	Permission *handler.PermissionHandler
	User       *handler.UserHandler
	Example    *handler.ExampleHandler
	Health     *handler.HealthHandler
	Docs       *handler.DocsHandler
}

// New builds the route table. metrics may be nil, in which case /metrics is not served.
func New(
	cfg *config.Config,
	authMiddleware *middleware.AuthMiddleware,
	rateLimiter *middleware.RateLimitMiddleware,
	m *metrics.Metrics,
	h Handlers,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	if m != nil {
		r.Use(m.Instrument)
	}
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimiter.Handler)

	r.Get("/health", h.Health.Health)
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}
	r.Get("/openapi.yaml", h.Docs.OpenAPI)
	r.Get("/openapi.json", h.Docs.OpenAPIJSON)
	r.Get("/swagger", h.Docs.SwaggerUI)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/register", h.Auth.Register)
			auth.Post("/login", h.Auth.Login)
			auth.Post("/refresh", h.Auth.Refresh)
			auth.Post("/password/reset-request", h.Password.RequestReset)
			auth.Post("/password/reset-confirm", h.Password.ConfirmReset)

			auth.Group(func(protected chi.Router) {
				protected.Use(authMiddleware.RequireAuth)
				protected.Post("/logout", h.Auth.Logout)
				protected.Post("/logout-all", h.Auth.LogoutAll)
				protected.Get("/me", h.Auth.Me)
				protected.Post("/change-password", h.Auth.ChangePassword)
			})
		})

		api.Group(func(protected chi.Router) {
			protected.Use(authMiddleware.RequireAuth)

			protected.Group(func(admin chi.Router) {
				admin.Use(authMiddleware.RequireRoles(adminRole))

				admin.Route("/roles", func(roles chi.Router) {
					roles.Get("/", h.Role.List)
					roles.Post("/", h.Role.Create)
					roles.Get("/{id}", h.Role.Get)
					roles.Put("/{id}", h.Role.Update)
					roles.Delete("/{id}", h.Role.Delete)
					roles.Put("/{id}/permissions", h.Role.SyncPermissions)
					roles.Post("/{id}/permissions", h.Role.SyncPermissions)
				})

				admin.Route("/permissions", func(permissions chi.Router) {
					permissions.Get("/", h.Permission.List)
					permissions.Post("/", h.Permission.Create)
					permissions.Get("/{id}", h.Permission.Get)
					permissions.Put("/{id}", h.Permission.Update)
					permissions.Delete("/{id}", h.Permission.Delete)
				})

				admin.Route("/users", func(users chi.Router) {
					users.Get("/", h.User.List)
					users.Post("/", h.User.Create)
					users.Get("/{id}", h.User.Get)
					users.Put("/{id}", h.User.Update)
					users.Delete("/{id}", h.User.Delete)
					users.Put("/{id}/roles", h.User.SyncRoles)
					users.Post("/{id}/roles", h.User.SyncRoles)
					users.Get("/{id}/permissions", h.User.EffectivePermissions)
					users.Put("/{id}/permissions", h.User.SyncPermissions)
					users.Post("/{id}/permissions", h.User.SyncPermissions)
				})

				admin.Get("/admin/dashboard", h.Example.AdminDashboard)
			})

			protected.With(authMiddleware.RequirePermissions("view reports")).Get("/reports/view", h.Example.ViewReports)
			protected.With(authMiddleware.RequirePermissions("edit articles")).Get("/articles/edit", h.Example.EditArticles)
		})
	})

	return r
}
