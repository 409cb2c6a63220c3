package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/isdelr/roleboard/internal/api/handlers"
	"github.com/isdelr/roleboard/internal/auth"
	"github.com/isdelr/roleboard/internal/services"
	"github.com/isdelr/roleboard/internal/session"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

// Options holds what the router needs beyond its collaborators.
type Options struct {
	AllowedOrigins []string
	SecureCookies  bool
}

// NewRouter creates and configures a new Chi router.
func NewRouter(opts Options, sessions *session.Manager, authService services.AuthServiceProvider, userService services.UserServiceProvider, views handlers.Renderer) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(middleware.RequestSize(maxBodyBytes))

	// Cross-origin access is off unless origins are configured.
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST"},
			AllowedHeaders:   []string{"Accept", "Content-Type", auth.CSRFHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	guard := auth.NewGuard(sessions)
	r.Use(guard.LoadSession)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, views, opts.SecureCookies)
	userHandler := handlers.NewUserHandler(userService, sessions, views)

	// Public routes
	r.Get("/", authHandler.Root)
	r.Get("/login", authHandler.LoginPage)
	r.Post("/login", authHandler.Login)
	r.Get("/logout", authHandler.Logout)

	// Pages: missing session redirects to the login form.
	r.Group(func(r chi.Router) {
		r.Use(guard.RequireSession(auth.Page))
		r.Get("/user", userHandler.Dashboard)
		r.Get("/profile/{id}", userHandler.Profile)
	})
	r.With(guard.RequireAdmin(auth.Page)).Get("/admin", userHandler.AdminDashboard)

	// Actions: missing session, bad CSRF token or missing role is a 403.
	r.Group(func(r chi.Router) {
		r.Use(guard.RequireSession(auth.Action))
		r.Use(auth.VerifyCSRF)
		r.Post("/update-profile", userHandler.UpdateProfile)
		r.With(guard.RequireAdmin(auth.Action)).Post("/promote-user", userHandler.PromoteUser)
	})

	// A known path under the wrong method is as unmatched as an unknown one.
	r.NotFound(pageNotFound)
	r.MethodNotAllowed(pageNotFound)

	return r
}

func pageNotFound(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, "Page not found", http.StatusNotFound)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}
