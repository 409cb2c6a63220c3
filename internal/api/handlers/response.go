package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/isdelr/roleboard/internal/auth"
	"github.com/isdelr/roleboard/internal/models"
	"github.com/isdelr/roleboard/internal/services"
	"github.com/rs/zerolog/log"
)

// Renderer produces HTML pages from a view name and a data context.
type Renderer interface {
	Render(w http.ResponseWriter, status int, page string, data map[string]any) error
}

// writeError maps a service error to a status code. Internal details are
// logged, never sent to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		http.Error(w, "User not found", http.StatusNotFound)
	case errors.Is(err, services.ErrInvalidInput):
		http.Error(w, "Invalid input", http.StatusBadRequest)
	default:
		log.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("Request failed")
		http.Error(w, "Server error", http.StatusInternalServerError)
	}
}

// pageData starts a template context with the title and, when the request
// has a session, the session and its CSRF token.
func pageData(r *http.Request, title string) map[string]any {
	data := map[string]any{"Title": title}
	if sess, ok := auth.SessionFromContext(r.Context()); ok {
		data["Session"] = sess
		data["CSRFToken"] = sess.CSRFToken
	}
	return data
}

func render(rd Renderer, w http.ResponseWriter, r *http.Request, status int, page string, data map[string]any) {
	if err := rd.Render(w, status, page, data); err != nil {
		writeError(w, r, fmt.Errorf("render %s: %w", page, err))
	}
}

// homeFor is where a signed-in identity lands.
func homeFor(id models.Identity) string {
	if id.IsAdmin {
		return "/admin"
	}
	return "/user"
}

// maxMultipartMemory bounds the in-memory part of a multipart body.
const maxMultipartMemory = 1 << 20

// readFields returns the submitted fields of a form, multipart or JSON body.
// JSON numbers and booleans are converted to their text form.
func readFields(r *http.Request) (map[string]string, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return nil, fmt.Errorf("parse multipart form: %w", services.ErrInvalidInput)
		}
	case "application/json":
		var raw map[string]any
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode body: %w", services.ErrInvalidInput)
		}
		fields := make(map[string]string, len(raw))
		for k, v := range raw {
			switch v := v.(type) {
			case string:
				fields[k] = v
			case json.Number, bool:
				fields[k] = fmt.Sprint(v)
			}
		}
		return fields, nil
	default:
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("parse form: %w", services.ErrInvalidInput)
		}
	}
	fields := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		fields[k] = r.PostForm.Get(k)
	}
	return fields, nil
}

// required returns the value of key, failing when the field was not
// submitted at all. An empty value is still a value.
func required(fields map[string]string, key string) (string, error) {
	v, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("missing field %q: %w", key, services.ErrInvalidInput)
	}
	return v, nil
}

func trimmed(fields map[string]string, key string) string {
	return strings.TrimSpace(fields[key])
}
