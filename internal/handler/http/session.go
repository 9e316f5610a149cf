package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/user-portal/internal/app"
)

// SessionCookie carries the id of the client's session.
const SessionCookie = "portal_session"

type sessionKey struct{}

// withSession attaches the caller's session to the request, starting a new
// one when the cookie is missing or the session expired.
func (h *Handler) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(SessionCookie); err == nil {
			if session, ok := h.sessions.Get(c.Value); ok {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, session)))
				return
			}
		}

		id, session, err := h.sessions.Create()
		if err != nil {
			log.Error().Err(err).Msg("Failed to start session")
			respondWithError(w, http.StatusInternalServerError, "Failed to start session")
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, session)))
	})
}

func sessionFrom(r *http.Request) *app.Session {
	return r.Context().Value(sessionKey{}).(*app.Session)
}

// bearerToken returns the token of an "Authorization: Bearer" header, or "".
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
