// Package http exposes the portal screens as a JSON API.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/user-portal/internal/app"
)

type Handler struct {
	sessions *app.Registry
	validate *validator.Validate
}

func NewHandler(sessions *app.Registry) *Handler {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	return &Handler{sessions: sessions, validate: validate}
}

// Router returns the full API with the standard middleware stack.
func (h *Handler) Router() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	h.RegisterRoutes(router)
	return router
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/health", h.handleHealth)

	router.Group(func(router chi.Router) {
		router.Use(h.withSession)

		router.Route("/auth", func(r chi.Router) {
			r.Post("/login", h.handleLogin)
			r.Post("/signup", h.handleSignup)
			r.Post("/logout", h.handleLogout)
			r.Get("/session", h.handleSession)
		})

		router.Route("/nav", func(r chi.Router) {
			r.Post("/mounted", h.handleMounted)
			r.Post("/evaluate", h.handleEvaluate)
		})

		router.Route("/users", func(r chi.Router) {
			r.Get("/", h.handleListUsers)
			r.Post("/", h.handleCreateUsers)
			r.Get("/count", h.handleCountUsers)
			r.Post("/quick", h.handleQuickAddUser)
			r.Get("/{id}", h.handleGetUserByID)
			r.Patch("/{id}", h.handleUpdateUser)
			r.Delete("/{id}", h.handleDeleteUser)
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeAndValidate reads a JSON body into dst and runs struct validation. It
// writes the error response itself and reports whether the handler may go on.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		log.Warn().Err(err).Msg("Failed to decode request body")
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request payload: %v", err))
		return false
	}

	err := h.validate.Struct(dst)
	if err == nil {
		return true
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
			Error:   "Validation failed",
			Details: formatValidationErrors(validationErrors),
		})
		return false
	}

	log.Error().Err(err).Type("validation_error_type", err).Msg("Unexpected error type during validation")
	respondWithError(w, http.StatusInternalServerError, "Internal validation error")
	return false
}
