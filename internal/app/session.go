// Package app is the root controller of the portal. A Session ties together
// the navigation guard, the identity backend and the user data of one
// client; screens are thin controllers on top of it.
package app

import (
	"context"
	"errors"
	"sync"

	"github.com/vasiliy-maslov/user-portal/internal/auth"
	"github.com/vasiliy-maslov/user-portal/internal/nav"
	"github.com/vasiliy-maslov/user-portal/internal/store"
	"github.com/vasiliy-maslov/user-portal/internal/user"
)

var ErrNotSignedIn = errors.New("not signed in")

type Deps struct {
	Router nav.Router
	Store  store.Client
	Auth   auth.Authenticator
	// GuardOptions customize the auth group and login route.
	GuardOptions []nav.Option
}

type Session struct {
	router nav.Router
	guard  *nav.Guard
	auth   auth.Authenticator
	store  store.Client

	mu      sync.RWMutex
	current *auth.Session
	users   user.Service

	usersScreen *UsersScreen
}

func NewSession(deps Deps) (*Session, error) {
	if deps.Router == nil || deps.Store == nil || deps.Auth == nil {
		return nil, errors.New("app: router, store and authenticator are required")
	}

	s := &Session{
		router: deps.Router,
		guard:  nav.NewGuard(deps.Router, deps.GuardOptions...),
		auth:   deps.Auth,
		store:  deps.Store,
	}
	s.users = s.usersFor("")
	s.usersScreen = &UsersScreen{session: s}
	return s, nil
}

func (s *Session) Guard() *nav.Guard { return s.guard }

// Route is the last route the session navigated to, when its router keeps
// one.
func (s *Session) Route() string {
	if h, ok := s.router.(interface{ Current() string }); ok {
		return h.Current()
	}
	return ""
}

// Current returns the signed-in user's session, or nil.
func (s *Session) Current() *auth.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Verify checks token with the identity backend. An empty token stands for
// the session's own access token.
func (s *Session) Verify(ctx context.Context, token string) (*auth.Claims, error) {
	if token == "" {
		current := s.Current()
		if current == nil || current.AccessToken == "" {
			return nil, ErrNotSignedIn
		}
		token = current.AccessToken
	}
	return s.auth.VerifyToken(ctx, token)
}

// SignOut forgets the signed-in user and the data fetched on their behalf.
func (s *Session) SignOut() {
	s.mu.Lock()
	s.current = nil
	s.users = s.usersFor("")
	s.mu.Unlock()

	s.usersScreen.clear()
}

func (s *Session) signIn(session *auth.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = session
	s.users = s.usersFor(session.AccessToken)
}

func (s *Session) userService() user.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users
}

// usersFor builds the user service that talks to the store as the holder of
// token, when the store supports per-user access.
func (s *Session) usersFor(token string) user.Service {
	client := s.store
	if scoper, ok := client.(store.TokenScoper); ok && token != "" {
		client = scoper.WithToken(token)
	}
	return user.NewService(user.NewRepository(client))
}

func (s *Session) Login() *LoginScreen { return &LoginScreen{session: s} }

func (s *Session) Signup() *SignupScreen { return &SignupScreen{session: s} }

// Users returns the data screen. It keeps the last listing, so the same
// screen is returned on every call.
func (s *Session) Users() *UsersScreen { return s.usersScreen }
