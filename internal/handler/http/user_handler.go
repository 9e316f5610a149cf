package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/user-portal/internal/user"
)

const defaultPageSize = 10

type CreateUserRequest struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Email     string `json:"email" validate:"required,email,max=254"`
}

type CreateUsersRequest struct {
	Users []CreateUserRequest `json:"users" validate:"required,min=1,dive"`
}

type QuickAddRequest struct {
	Name string `json:"name" validate:"required"`
}

type UpdateUserRequest struct {
	FirstName *string `json:"first_name,omitempty" validate:"omitempty,min=1,max=100"`
	LastName  *string `json:"last_name,omitempty" validate:"omitempty,max=100"`
	Email     *string `json:"email,omitempty" validate:"omitempty,email,max=254"`
}

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type UserListResponse struct {
	Users    []UserResponse `json:"users"`
	Page     int            `json:"page,omitempty"`
	PageSize int            `json:"page_size,omitempty"`
}

type CountResponse struct {
	Count int64 `json:"count"`
}

func toUserResponse(u user.Row) UserResponse {
	return UserResponse{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

func toUserResponses(rows []user.Row) []UserResponse {
	out := make([]UserResponse, 0, len(rows))
	for _, u := range rows {
		out = append(out, toUserResponse(u))
	}
	return out
}

func filterFromQuery(r *http.Request) user.Filter {
	q := r.URL.Query()
	return user.Filter{
		FirstName: q.Get("first_name"),
		LastName:  q.Get("last_name"),
		Email:     q.Get("email"),
	}
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	screen := sessionFrom(r).Users()
	q := r.URL.Query()

	if q.Has("page") || q.Has("page_size") {
		page, err := intParam(q.Get("page"), 1)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid page parameter")
			return
		}
		pageSize, err := intParam(q.Get("page_size"), defaultPageSize)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid page_size parameter")
			return
		}

		rows, err := screen.Page(ctx, page, pageSize)
		if err != nil {
			respondWithServiceError(w, err, "Failed to fetch users")
			return
		}
		respondWithJSON(w, http.StatusOK, UserListResponse{Users: toUserResponses(rows), Page: page, PageSize: pageSize})
		return
	}

	filter := filterFromQuery(r)
	var (
		rows []user.Row
		err  error
	)
	if filter == (user.Filter{}) {
		rows, err = screen.Refresh(ctx)
	} else {
		rows, err = screen.Find(ctx, filter)
	}
	if err != nil {
		respondWithServiceError(w, err, "Failed to fetch users")
		return
	}
	respondWithJSON(w, http.StatusOK, UserListResponse{Users: toUserResponses(rows)})
}

func (h *Handler) handleCountUsers(w http.ResponseWriter, r *http.Request) {
	n, err := sessionFrom(r).Users().Count(r.Context(), filterFromQuery(r))
	if err != nil {
		respondWithServiceError(w, err, "Failed to count users")
		return
	}
	respondWithJSON(w, http.StatusOK, CountResponse{Count: n})
}

func (h *Handler) handleGetUserByID(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	found, err := sessionFrom(r).Users().Get(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to get user by id")
		return
	}
	respondWithJSON(w, http.StatusOK, toUserResponse(*found))
}

func (h *Handler) handleCreateUsers(w http.ResponseWriter, r *http.Request) {
	var req CreateUsersRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	inserts := make([]user.Insert, 0, len(req.Users))
	for _, u := range req.Users {
		inserts = append(inserts, user.Insert{FirstName: u.FirstName, LastName: u.LastName, Email: u.Email})
	}

	created, err := sessionFrom(r).Users().Create(r.Context(), inserts...)
	if err != nil {
		respondWithServiceError(w, err, "Failed to create users")
		return
	}
	respondWithJSON(w, http.StatusCreated, UserListResponse{Users: toUserResponses(created)})
}

func (h *Handler) handleQuickAddUser(w http.ResponseWriter, r *http.Request) {
	var req QuickAddRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	created, err := sessionFrom(r).Users().AddFromInput(r.Context(), req.Name)
	if err != nil && created == nil {
		respondWithServiceError(w, err, "Failed to add user")
		return
	}
	if err != nil {
		log.Warn().Err(err).Msg("User added but listing refresh failed")
	}
	respondWithJSON(w, http.StatusCreated, toUserResponse(*created))
}

func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	patch := user.Patch{FirstName: req.FirstName, LastName: req.LastName, Email: req.Email}
	updated, err := sessionFrom(r).Users().Update(r.Context(), userID, patch)
	if err != nil {
		respondWithServiceError(w, err, "Failed to update user")
		return
	}
	respondWithJSON(w, http.StatusOK, toUserResponse(*updated))
}

func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	if err := sessionFrom(r).Users().Remove(r.Context(), userID); err != nil {
		respondWithServiceError(w, err, "Failed to delete user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idParam := chi.URLParam(r, "id")
	userID, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str("user_id", idParam).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return uuid.Nil, false
	}
	return userID, true
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
