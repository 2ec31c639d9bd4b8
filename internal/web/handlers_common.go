package web

// handlers_common.go holds request parsing, JSON output and the session
// cookie shared by all handlers.

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/core"
)

const (
	// ModelKeyHeader carries the caller's model credential. It is passed to
	// the analyzer for one call and never stored or logged.
	ModelKeyHeader = "X-Model-Key"

	// SessionHeader lets API clients that do not keep cookies name their session.
	SessionHeader = "X-Session-ID"

	sessionCookie = "legato_session"

	// multipartOverhead is the slack allowed for multipart framing on top of
	// the upload size limit.
	multipartOverhead = 1 << 20
)

type sessionKey struct{}

// withSession resolves the session from the header or cookie, issuing a new
// cookie when neither holds a valid ID.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := validSessionID(r.Header.Get(SessionHeader))
		if id == "" {
			if c, err := r.Cookie(sessionCookie); err == nil {
				id = validSessionID(c.Value)
			}
		}
		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookie,
				Value:    id,
				Path:     "/",
				MaxAge:   int(s.cfg.Upload.TTL.Seconds()),
				HttpOnly: true,
				Secure:   r.TLS != nil,
				SameSite: http.SameSiteLaxMode,
			})
		}
		w.Header().Set(SessionHeader, id)

		ctx := context.WithValue(r.Context(), sessionKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func validSessionID(v string) string {
	id, err := uuid.Parse(strings.TrimSpace(v))
	if err != nil {
		return ""
	}
	return id.String()
}

// sessionID returns the session resolved by withSession, or "".
func sessionID(r *http.Request) string {
	id, _ := r.Context().Value(sessionKey{}).(string)
	return id
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// pageIndex reads a 0-based page index from the {page} route parameter,
// the "page" form value or the "page" query parameter. Missing means 0.
func pageIndex(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "page")
	if raw == "" {
		raw = r.FormValue("page")
	}
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0, &core.ValidationError{
			Kind:   core.ErrInvalidPageIndex,
			Reason: "page must be a non-negative integer, got " + strconv.Quote(raw),
		}
	}
	return n, nil
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are only logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("json encode error", "error", err)
	}
}
