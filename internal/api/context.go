package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/koi-prep/internal/session"
)

type contextKey string

const sessionContextKey contextKey = "session"

// SessionFromContext extracts the session resolved from the URL
func SessionFromContext(ctx context.Context) *session.Session {
	sess, ok := ctx.Value(sessionContextKey).(*session.Session)
	if !ok {
		return nil
	}
	return sess
}

// ContextWithSession adds a session to context
func ContextWithSession(ctx context.Context, sess *session.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}

// sessionContext resolves the {id} URL parameter to a live session
func (s *Server) sessionContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			respondError(w, http.StatusBadRequest, "validation_error", "session id is required")
			return
		}

		sess, err := s.sessions.Get(id)
		if err != nil {
			respondSessionError(w, r, err, "get session")
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), sess)))
	})
}
