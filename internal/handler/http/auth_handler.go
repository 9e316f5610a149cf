package http

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/user-portal/internal/app"
	"github.com/vasiliy-maslov/user-portal/internal/auth"
)

// Form fields are checked by the screens, so these carry no validate tags.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignupRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type SessionResponse struct {
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
	User         auth.User `json:"user"`
	// Route is where the client should navigate next.
	Route string `json:"route,omitempty"`
}

func sessionResponse(session *app.Session, s *auth.Session) SessionResponse {
	return SessionResponse{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    s.ExpiresAt,
		User:         s.User,
		Route:        session.Route(),
	}
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	session := sessionFrom(r)
	s, err := session.Login().Submit(r.Context(), req.Email, req.Password)
	if err != nil && s == nil {
		respondWithServiceError(w, err, "Login failed")
		return
	}
	if err != nil {
		log.Warn().Err(err).Msg("Signed in but navigation failed")
	}

	respondWithJSON(w, http.StatusOK, sessionResponse(session, s))
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	session := sessionFrom(r)
	s, err := session.Signup().Submit(r.Context(), req.Email, req.Password, req.ConfirmPassword)
	if err != nil && s == nil {
		respondWithServiceError(w, err, "Sign up failed")
		return
	}
	if err != nil {
		log.Warn().Err(err).Msg("Signed up but navigation failed")
	}

	respondWithJSON(w, http.StatusCreated, sessionResponse(session, s))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	if session.Current() == nil {
		respondWithError(w, http.StatusUnauthorized, "Not signed in")
		return
	}
	session.SignOut()
	w.WriteHeader(http.StatusNoContent)
}

type ClaimsResponse struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// handleSession describes the caller: the holder of the bearer token when one
// is sent, otherwise the user signed in on the caller's session. Either way
// the token is checked with the identity backend.
func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	claims, err := sessionFrom(r).Verify(r.Context(), bearerToken(r))
	if err != nil {
		respondWithServiceError(w, err, "Failed to read session")
		return
	}

	resp := ClaimsResponse{UserID: claims.Subject, Email: claims.Email}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	respondWithJSON(w, http.StatusOK, resp)
}
