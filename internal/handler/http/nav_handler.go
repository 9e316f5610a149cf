package http

import (
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/user-portal/internal/app"
)

type EvaluateRequest struct {
	Segments []string `json:"segments"`
}

type NavResponse struct {
	State      string `json:"state"`
	Redirected bool   `json:"redirected"`
	Route      string `json:"route,omitempty"`
}

func navResponse(session *app.Session, redirected bool) NavResponse {
	return NavResponse{
		State:      session.Guard().State().String(),
		Redirected: redirected,
		Route:      session.Route(),
	}
}

func (h *Handler) handleMounted(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	session.Guard().Mounted()
	respondWithJSON(w, http.StatusOK, navResponse(session, false))
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	session := sessionFrom(r)
	redirected, err := session.Guard().Evaluate(req.Segments)
	if err != nil {
		log.Error().Err(err).Strs("segments", req.Segments).Msg("Navigation guard failed")
		respondWithError(w, http.StatusInternalServerError, "Navigation failed")
		return
	}

	respondWithJSON(w, http.StatusOK, navResponse(session, redirected))
}
