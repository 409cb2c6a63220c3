package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/isdelr/roleboard/internal/auth"
	"github.com/isdelr/roleboard/internal/models"
	"github.com/isdelr/roleboard/internal/profile"
	"github.com/isdelr/roleboard/internal/services"
	"github.com/isdelr/roleboard/internal/views"
	"github.com/rs/zerolog/log"
)

// SessionUpdater mutates a live session in place.
type SessionUpdater interface {
	Update(id string, fn func(*models.Session)) bool
}

// UserHandler handles the dashboards, profiles and user mutations.
type UserHandler struct {
	service  services.UserServiceProvider
	sessions SessionUpdater
	views    Renderer
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(service services.UserServiceProvider, sessions SessionUpdater, views Renderer) *UserHandler {
	return &UserHandler{service: service, sessions: sessions, views: views}
}

// Dashboard renders the caller's own dashboard. Admins are sent to the
// admin view instead.
func (h *UserHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFromContext(r.Context())
	if sess.Identity.IsAdmin {
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
		return
	}
	render(h.views, w, r, http.StatusOK, views.UserDashboard, pageData(r, "Dashboard"))
}

// AdminDashboard lists every user.
func (h *UserHandler) AdminDashboard(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	data := pageData(r, "Administration")
	data["Users"] = users
	render(h.views, w, r, http.StatusOK, views.AdminDashboard, data)
}

// UpdateProfile stores a new profile picture blob for the caller. Only the
// caller's own row is ever written.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFromContext(r.Context())

	fields, err := readFields(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	pic, err := required(fields, "profile_pic")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(pic) > profile.MaxPictureSize {
		writeError(w, r, fmt.Errorf("profile picture of %d bytes: %w", len(pic), services.ErrInvalidInput))
		return
	}

	if err := h.service.UpdateProfilePic(r.Context(), sess.Identity.UserID, pic); err != nil {
		writeError(w, r, err)
		return
	}
	if !h.sessions.Update(sess.ID, func(s *models.Session) {
		s.Identity.ProfilePic = pic
	}) {
		log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Int64("user_id", sess.Identity.UserID).
			Msg("Session ended before its profile picture could be refreshed")
	}

	http.Redirect(w, r, "/user", http.StatusSeeOther)
}

// PromoteUser grants admin to the submitted user id. Any admin may promote
// any existing user, including themselves; there is no further ownership
// or approval rule.
func (h *UserHandler) PromoteUser(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFromContext(r.Context())

	fields, err := readFields(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	targetID, err := strconv.ParseInt(trimmed(fields, "user_id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	if err := h.service.PromoteUser(r.Context(), targetID); err != nil {
		writeError(w, r, err)
		return
	}

	log.Info().
		Str("request_id", middleware.GetReqID(r.Context())).
		Int64("by_user_id", sess.Identity.UserID).
		Int64("target_user_id", targetID).
		Msg("User promoted to admin")
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

// Profile shows a user's public fields. SVG pictures are served as a
// standalone sandboxed document instead of being embedded in the page.
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	user, err := h.service.GetUserByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	user.PasswordHash = ""

	if profile.Classify(user.ProfilePic) == profile.KindSVG {
		serveSVG(w, user.ProfilePic)
		return
	}

	data := pageData(r, user.Username)
	data["Viewed"] = user
	render(h.views, w, r, http.StatusOK, views.Profile, data)
}

func serveSVG(w http.ResponseWriter, doc string) {
	h := w.Header()
	h.Set("Content-Type", "image/svg+xml")
	h.Set("Content-Security-Policy", profile.SVGContentSecurityPolicy)
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}
