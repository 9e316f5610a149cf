package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/user-portal/internal/auth"
	"github.com/vasiliy-maslov/user-portal/internal/nav"
	"github.com/vasiliy-maslov/user-portal/internal/user"
)

var (
	ErrLoginFailed  = errors.New("login failed")
	ErrSignupFailed = errors.New("sign up failed")
)

type LoginScreen struct {
	session *Session
}

// Submit validates the form, signs in and replaces the route with the tabs.
func (l *LoginScreen) Submit(ctx context.Context, email, password string) (*auth.Session, error) {
	if err := auth.ValidateLoginForm(email, password).Err(); err != nil {
		return nil, err
	}

	s, err := l.session.auth.SignIn(ctx, email, password)
	if err != nil {
		log.Error().Err(err).Str("email", email).Msg("app: login failed")
		return nil, fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}
	l.session.signIn(s)
	log.Info().Str("user_id", s.User.ID).Msg("app: logged in")

	if err := l.session.router.Replace(nav.TabsRoute); err != nil {
		return s, fmt.Errorf("navigate to %s: %w", nav.TabsRoute, err)
	}
	return s, nil
}

type SignupScreen struct {
	session *Session
}

// Submit validates the form and registers the user. A session that still
// awaits email confirmation is returned without navigating.
func (p *SignupScreen) Submit(ctx context.Context, email, password, confirmPassword string) (*auth.Session, error) {
	if err := auth.ValidateSignupForm(email, password, confirmPassword).Err(); err != nil {
		return nil, err
	}

	s, err := p.session.auth.SignUp(ctx, email, password)
	if err != nil {
		log.Error().Err(err).Str("email", email).Msg("app: sign up failed")
		return nil, fmt.Errorf("%w: %w", ErrSignupFailed, err)
	}
	if s.AccessToken == "" {
		log.Info().Str("email", email).Msg("app: sign up awaits email confirmation")
		return s, nil
	}
	p.session.signIn(s)

	if err := p.session.router.Replace(nav.TabsRoute); err != nil {
		return s, fmt.Errorf("navigate to %s: %w", nav.TabsRoute, err)
	}
	return s, nil
}

// UsersScreen lists and edits the app_user table.
type UsersScreen struct {
	session *Session

	mu   sync.RWMutex
	rows []user.Row
}

// Rows returns the listing of the last Refresh.
func (u *UsersScreen) Rows() []user.Row {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return append([]user.Row(nil), u.rows...)
}

func (u *UsersScreen) Refresh(ctx context.Context) ([]user.Row, error) {
	rows, err := u.session.userService().ListUsers(ctx)
	if err != nil {
		log.Error().Err(err).Msg("app: error fetching data")
		return nil, err
	}

	u.mu.Lock()
	u.rows = rows
	u.mu.Unlock()
	return rows, nil
}

// AddFromInput adds a user typed as "First Last" and refreshes the listing.
func (u *UsersScreen) AddFromInput(ctx context.Context, input string) (*user.Row, error) {
	created, err := u.session.userService().CreateUserFromName(ctx, input)
	if err != nil {
		if !errors.Is(err, user.ErrEmptyName) {
			log.Error().Err(err).Msg("app: error adding data")
		}
		return nil, err
	}

	if _, err := u.Refresh(ctx); err != nil {
		return created, err
	}
	return created, nil
}

func (u *UsersScreen) Get(ctx context.Context, id uuid.UUID) (*user.Row, error) {
	return u.session.userService().GetUserByID(ctx, id)
}

func (u *UsersScreen) Find(ctx context.Context, filter user.Filter) ([]user.Row, error) {
	return u.session.userService().FindUsers(ctx, filter)
}

func (u *UsersScreen) Page(ctx context.Context, page, pageSize int) ([]user.Row, error) {
	return u.session.userService().ListUsersPage(ctx, page, pageSize)
}

func (u *UsersScreen) Count(ctx context.Context, filter user.Filter) (int64, error) {
	return u.session.userService().CountUsers(ctx, filter)
}

func (u *UsersScreen) Create(ctx context.Context, users ...user.Insert) ([]user.Row, error) {
	return u.session.userService().CreateUsers(ctx, users...)
}

func (u *UsersScreen) Update(ctx context.Context, id uuid.UUID, patch user.Patch) (*user.Row, error) {
	return u.session.userService().UpdateUser(ctx, id, patch)
}

func (u *UsersScreen) clear() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.rows = nil
}

// Remove deletes a user and drops it from the cached listing.
func (u *UsersScreen) Remove(ctx context.Context, id uuid.UUID) error {
	if err := u.session.userService().DeleteUser(ctx, id); err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	kept := u.rows[:0:0]
	for _, r := range u.rows {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	u.rows = kept
	return nil
}
