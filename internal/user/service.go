package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/user-portal/internal/data"
	"github.com/vasiliy-maslov/user-portal/internal/store"
)

// QuickAddDomain is the mail domain used for users added by name only.
const QuickAddDomain = "example.com"

var (
	ErrNotFound    = data.ErrNotFound
	ErrEmailExists = errors.New("user with this email already exists")
	ErrInvalidUser = errors.New("invalid user")
	ErrInvalidID   = errors.New("invalid user id")
	ErrEmptyName   = errors.New("name is required")
	ErrEmptyPatch  = errors.New("nothing to update")
)

type Service interface {
	ListUsers(ctx context.Context) ([]Row, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*Row, error)
	FindUsers(ctx context.Context, filter Filter) ([]Row, error)
	ListUsersPage(ctx context.Context, page, pageSize int) ([]Row, error)
	CountUsers(ctx context.Context, filter Filter) (int64, error)
	CreateUsers(ctx context.Context, users ...Insert) ([]Row, error)
	CreateUserFromName(ctx context.Context, fullName string) (*Row, error)
	UpdateUser(ctx context.Context, id uuid.UUID, patch Patch) (*Row, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo     Repository
	validate *validator.Validate
}

func NewService(repo Repository) Service {
	return &service{repo: repo, validate: validator.New()}
}

func (s *service) ListUsers(ctx context.Context) ([]Row, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to fetch users")
		return nil, fmt.Errorf("failed to fetch users: %w", err)
	}
	return users, nil
}

func (s *service) GetUserByID(ctx context.Context, id uuid.UUID) (*Row, error) {
	if id == uuid.Nil {
		return nil, ErrInvalidID
	}

	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Warn().Stringer("user_id", id).Msg("service: user not found by id")
			return nil, err
		}
		log.Error().Err(err).Stringer("user_id", id).Msg("service: failed to fetch user by id")
		return nil, fmt.Errorf("failed to get user by id '%s': %w", id, err)
	}
	return u, nil
}

func (s *service) FindUsers(ctx context.Context, filter Filter) ([]Row, error) {
	users, err := s.repo.Find(ctx, filter.toFilters())
	if err != nil {
		log.Error().Err(err).Msg("service: failed to search users")
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	return users, nil
}

func (s *service) ListUsersPage(ctx context.Context, page, pageSize int) ([]Row, error) {
	users, err := s.repo.Page(ctx, page, pageSize)
	if err != nil {
		if errors.Is(err, data.ErrInvalidArgument) {
			return nil, err
		}
		log.Error().Err(err).Int("page", page).Int("page_size", pageSize).Msg("service: failed to fetch users page")
		return nil, fmt.Errorf("failed to fetch users page %d: %w", page, err)
	}
	return users, nil
}

func (s *service) CountUsers(ctx context.Context, filter Filter) (int64, error) {
	n, err := s.repo.Count(ctx, filter.toFilters())
	if err != nil {
		log.Error().Err(err).Msg("service: failed to count users")
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

func (s *service) CreateUsers(ctx context.Context, users ...Insert) ([]Row, error) {
	if len(users) == 0 {
		return nil, fmt.Errorf("%w: no users given", ErrInvalidUser)
	}

	normalized := make([]Insert, 0, len(users))
	for _, u := range users {
		u.FirstName = strings.TrimSpace(u.FirstName)
		u.LastName = strings.TrimSpace(u.LastName)
		u.Email = strings.ToLower(strings.TrimSpace(u.Email))
		if err := s.validate.Struct(u); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidUser, err)
		}
		normalized = append(normalized, u)
	}

	created, err := s.repo.Create(ctx, normalized)
	if err != nil {
		if isUniqueViolation(err) {
			log.Warn().Err(err).Msg("service: email already taken")
			return nil, fmt.Errorf("%w: %w", ErrEmailExists, err)
		}
		log.Error().Err(err).Int("count", len(normalized)).Msg("service: failed to create users")
		return nil, fmt.Errorf("failed to save users: %w", err)
	}

	log.Info().Int("count", len(created)).Msg("service: users created")
	return created, nil
}

// CreateUserFromName adds a user from a "First Last" input. The email is the
// first initial followed by the last name at QuickAddDomain.
func (s *service) CreateUserFromName(ctx context.Context, fullName string) (*Row, error) {
	in, err := InsertFromName(fullName)
	if err != nil {
		return nil, err
	}

	created, err := s.CreateUsers(ctx, in)
	if err != nil {
		return nil, err
	}
	return &created[0], nil
}

func (s *service) UpdateUser(ctx context.Context, id uuid.UUID, patch Patch) (*Row, error) {
	if id == uuid.Nil {
		return nil, ErrInvalidID
	}
	if patch.IsEmpty() {
		return nil, ErrEmptyPatch
	}
	if patch.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*patch.Email))
		patch.Email = &email
	}
	if err := s.validate.Struct(patch); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidUser, err)
	}

	u, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			log.Warn().Stringer("user_id", id).Msg("service: user not found for update")
			return nil, err
		case isUniqueViolation(err):
			return nil, fmt.Errorf("%w: %w", ErrEmailExists, err)
		}
		log.Error().Err(err).Stringer("user_id", id).Msg("service: failed to update user")
		return nil, fmt.Errorf("failed to update user by id '%s': %w", id, err)
	}
	return u, nil
}

func (s *service) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return ErrInvalidID
	}

	err := s.repo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Warn().Stringer("user_id", id).Msg("service: user not found for delete")
			return err
		}
		log.Error().Err(err).Stringer("user_id", id).Msg("service: failed to delete user")
		return fmt.Errorf("failed to delete user by id '%s': %w", id, err)
	}
	return nil
}

// InsertFromName splits "First Last" into an Insert. Only the first two words
// are used; a single word leaves the last name empty.
func InsertFromName(fullName string) (Insert, error) {
	parts := strings.Fields(fullName)
	if len(parts) == 0 {
		return Insert{}, ErrEmptyName
	}

	first := parts[0]
	last := ""
	if len(parts) > 1 {
		last = parts[1]
	}

	initial := []rune(strings.ToLower(first))[0]

	return Insert{
		FirstName: first,
		LastName:  last,
		Email:     string(initial) + strings.ToLower(last) + "@" + QuickAddDomain,
	}, nil
}

func (f Filter) toFilters() store.Filters {
	filters := store.Filters{}
	if f.FirstName != "" {
		filters["first_name"] = f.FirstName
	}
	if f.LastName != "" {
		filters["last_name"] = f.LastName
	}
	if f.Email != "" {
		filters["email"] = strings.ToLower(f.Email)
	}
	return filters
}

func isUniqueViolation(err error) bool {
	var remote *store.RemoteError
	return errors.As(err, &remote) && remote.Code == pgerrcode.UniqueViolation
}
