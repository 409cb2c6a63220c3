package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

const (
	// CSRFHeader carries the anti-forgery token on scripted requests.
	CSRFHeader = "X-CSRF-Token"
	// CSRFFormField carries it in HTML form posts.
	CSRFFormField = "csrf_token"
)

// VerifyCSRF rejects a request unless it presents the anti-forgery token of
// its own session. It must run after LoadSession. A request without a
// session fails as well; the handler is never reached on failure.
func VerifyCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusForbidden)
			return
		}

		supplied := r.Header.Get(CSRFHeader)
		if supplied == "" {
			supplied = r.PostFormValue(CSRFFormField)
		}

		if supplied == "" || sess.CSRFToken == "" ||
			subtle.ConstantTimeCompare([]byte(supplied), []byte(sess.CSRFToken)) != 1 {
			log.Warn().
				Str("request_id", middleware.GetReqID(r.Context())).
				Int64("user_id", sess.Identity.UserID).
				Str("path", r.URL.Path).
				Msg("CSRF token mismatch")
			http.Error(w, "CSRF token mismatch", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
