package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/isdelr/roleboard/internal/auth"
	"github.com/isdelr/roleboard/internal/services"
	"github.com/isdelr/roleboard/internal/session"
	"github.com/isdelr/roleboard/internal/views"
	"github.com/rs/zerolog/log"
)

// AuthHandler handles login, logout and the landing redirect.
type AuthHandler struct {
	service services.AuthServiceProvider
	views   Renderer
	secure  bool // Use secure cookies (HTTPS)
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(service services.AuthServiceProvider, views Renderer, secure bool) *AuthHandler {
	return &AuthHandler{service: service, views: views, secure: secure}
}

// Root sends the browser to the page matching its login state and role.
func (h *AuthHandler) Root(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, auth.LoginPath, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, homeFor(sess.Identity), http.StatusSeeOther)
}

// LoginPage renders the login form.
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	// If already logged in, redirect to dashboard.
	if sess, ok := auth.SessionFromContext(r.Context()); ok {
		http.Redirect(w, r, homeFor(sess.Identity), http.StatusSeeOther)
		return
	}
	render(h.views, w, r, http.StatusOK, views.Login, pageData(r, "Log in"))
}

// Login authenticates the submitted credentials and sets the session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(r)
	if err != nil {
		h.loginFailed(w, r, http.StatusBadRequest, "Invalid request")
		return
	}
	username := fields["username"]

	sess, token, err := h.service.Login(r.Context(), username, fields["password"], session.TokenFromRequest(r))
	if errors.Is(err, services.ErrInvalidCredentials) {
		log.Warn().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("username", username).
			Msg("Failed authentication attempt")
		h.loginFailed(w, r, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	session.SetCookie(w, token, sess.ExpiresAt, h.secure)

	log.Info().
		Str("request_id", middleware.GetReqID(r.Context())).
		Int64("user_id", sess.Identity.UserID).
		Bool("admin", sess.Identity.IsAdmin).
		Msg("User logged in")
	http.Redirect(w, r, homeFor(sess.Identity), http.StatusSeeOther)
}

func (h *AuthHandler) loginFailed(w http.ResponseWriter, r *http.Request, status int, msg string) {
	data := pageData(r, "Log in")
	data["Error"] = msg
	render(h.views, w, r, status, views.Login, data)
}

// Logout destroys the session, if there is one, and always redirects to
// the login page.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := auth.SessionFromContext(r.Context()); ok {
		log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Int64("user_id", sess.Identity.UserID).
			Msg("User logged out")
	}
	h.service.Logout(session.TokenFromRequest(r))
	session.ClearCookie(w, h.secure)
	http.Redirect(w, r, auth.LoginPath, http.StatusSeeOther)
}
