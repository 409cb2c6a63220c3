package auth

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/isdelr/roleboard/internal/models"
	"github.com/isdelr/roleboard/internal/session"
	"github.com/rs/zerolog/log"
)

// RouteKind tells the guards how to refuse a request: navigational pages
// send the browser to the login form, state-changing actions get a 403.
type RouteKind int

const (
	Page RouteKind = iota
	Action
)

// LoginPath is where unauthenticated page requests are redirected.
const LoginPath = "/login"

type contextKey string

const sessionKey = contextKey("session")

// SessionResolver looks up a session by cookie token.
type SessionResolver interface {
	Resolve(token string) (models.Session, bool)
}

// Guard resolves sessions and enforces authentication and role checks.
type Guard struct {
	sessions SessionResolver
}

// NewGuard creates a Guard backed by sessions.
func NewGuard(sessions SessionResolver) *Guard {
	return &Guard{sessions: sessions}
}

// WithSession returns a copy of ctx carrying sess.
func WithSession(ctx context.Context, sess models.Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// SessionFromContext returns the session LoadSession attached, if any.
func SessionFromContext(ctx context.Context) (models.Session, bool) {
	sess, ok := ctx.Value(sessionKey).(models.Session)
	return sess, ok
}

// LoadSession resolves the session cookie and attaches the session to the
// request context. Requests without a live session pass through untouched.
func (g *Guard) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sess, ok := g.sessions.Resolve(session.TokenFromRequest(r)); ok {
			r = r.WithContext(WithSession(r.Context(), sess))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSession rejects requests without a session.
func (g *Guard) RequireSession(kind RouteKind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := SessionFromContext(r.Context()); !ok {
				notAuthenticated(w, r, kind)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin rejects requests whose session identity is not an admin.
// The check uses the snapshot taken at login, so a role change in the
// store only applies once the user logs in again.
func (g *Guard) RequireAdmin(kind RouteKind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := SessionFromContext(r.Context())
			if !ok {
				notAuthenticated(w, r, kind)
				return
			}
			if !sess.Identity.IsAdmin {
				log.Warn().
					Str("request_id", middleware.GetReqID(r.Context())).
					Int64("user_id", sess.Identity.UserID).
					Str("path", r.URL.Path).
					Msg("Admin access denied")
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func notAuthenticated(w http.ResponseWriter, r *http.Request, kind RouteKind) {
	if kind == Page {
		http.Redirect(w, r, LoginPath, http.StatusSeeOther)
		return
	}
	http.Error(w, "Unauthorized", http.StatusForbidden)
}
