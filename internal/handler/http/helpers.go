package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/user-portal/internal/app"
	"github.com/vasiliy-maslov/user-portal/internal/auth"
	"github.com/vasiliy-maslov/user-portal/internal/data"
	"github.com/vasiliy-maslov/user-portal/internal/store"
	"github.com/vasiliy-maslov/user-portal/internal/user"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type ValidationErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

// respondWithError sends a JSON error body.
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

// respondWithJSON sends a JSON body.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func mapErrorToStatusCode(err error) int {
	var remote *store.RemoteError
	switch {
	case errors.Is(err, auth.ErrValidation),
		errors.Is(err, user.ErrInvalidUser),
		errors.Is(err, user.ErrInvalidID),
		errors.Is(err, user.ErrEmptyName),
		errors.Is(err, user.ErrEmptyPatch),
		errors.Is(err, data.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, app.ErrNotSignedIn):
		return http.StatusUnauthorized
	case errors.Is(err, data.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, user.ErrEmailExists), errors.Is(err, auth.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, data.ErrEmptyInsertResult),
		errors.Is(err, data.ErrRemoteQuery),
		errors.As(err, &remote):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondWithServiceError maps err to a status and a message the client may
// show. fallback is used when err carries nothing presentable.
func respondWithServiceError(w http.ResponseWriter, err error, fallback string) {
	status := mapErrorToStatusCode(err)

	var verr *auth.ValidationError
	switch {
	case errors.As(err, &verr):
		respondWithJSON(w, status, ErrorResponse{Error: app.ValidationMessage(verr.Result), Code: verr.Result.String()})
		return
	case errors.Is(err, app.ErrLoginFailed):
		fallback = app.LoginFailedMessage
	case errors.Is(err, auth.ErrUserExists):
		fallback = "User already registered"
	case errors.Is(err, app.ErrNotSignedIn):
		fallback = "Not signed in"
	case errors.Is(err, auth.ErrInvalidToken):
		fallback = "Invalid or expired session"
	case errors.Is(err, app.ErrSignupFailed):
		fallback = app.SignupFailedMessage
	case errors.Is(err, data.ErrNotFound):
		fallback = "User not found"
	case errors.Is(err, user.ErrEmailExists):
		fallback = "Email already exists"
	case errors.Is(err, user.ErrInvalidID):
		fallback = "Invalid id parameter"
	case errors.Is(err, user.ErrEmptyName), errors.Is(err, user.ErrEmptyPatch), errors.Is(err, data.ErrInvalidArgument):
		fallback = err.Error()
	case errors.Is(err, user.ErrInvalidUser):
		fallback = "Invalid user"
	}

	if status >= http.StatusInternalServerError {
		if msg, ok := data.RemoteMessage(err); ok && msg != "" {
			log.Error().Err(err).Str("remote_message", msg).Msg("Remote store error")
		}
	}
	respondWithError(w, status, fallback)
}

func formatValidationErrors(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		switch fe.Tag() {
		case "required":
			details[fe.Field()] = "is required"
		case "email":
			details[fe.Field()] = "must be a valid email"
		case "min":
			details[fe.Field()] = "must be at least " + fe.Param() + " characters"
		case "max":
			details[fe.Field()] = "must be at most " + fe.Param() + " characters"
		default:
			details[fe.Field()] = "failed on " + fe.Tag()
		}
	}
	return details
}

// requestLogger logs one line per request with zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			log.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		}()
		next.ServeHTTP(ww, r)
	})
}
