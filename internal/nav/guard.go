// Package nav holds the redirect-on-mount guard of the root layout.
package nav

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	DefaultAuthGroup  = "(auth)"
	DefaultLoginRoute = "/(auth)/login"
	// TabsRoute is the main screen after a successful sign in or sign up.
	TabsRoute = "/(tabs)"
)

// Router performs replace-navigation, so the previous route is not kept in
// the back stack.
type Router interface {
	Replace(route string) error
}

type State int

const (
	Unmounted State = iota
	Mounted
	RedirectChecked
)

func (s State) String() string {
	switch s {
	case Unmounted:
		return "unmounted"
	case Mounted:
		return "mounted"
	case RedirectChecked:
		return "redirect_checked"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var allowedTransitions = map[State]map[State]bool{
	Unmounted:       {Mounted: true},
	Mounted:         {RedirectChecked: true},
	RedirectChecked: {},
}

var ErrInvalidTransition = errors.New("invalid guard state transition")

// Guard sends the user to the login route the first time the layout is
// evaluated outside the auth group after mounting. It fires at most once per
// guard, and a guard lives for one application session.
//
// It looks at the route shape only and never at whether a user is signed in.
type Guard struct {
	router     Router
	authGroup  string
	loginRoute string

	mu         sync.Mutex
	state      State
	redirected bool
}

type Option func(*Guard)

func WithAuthGroup(segment string) Option {
	return func(g *Guard) { g.authGroup = segment }
}

func WithLoginRoute(route string) Option {
	return func(g *Guard) { g.loginRoute = route }
}

func NewGuard(router Router, opts ...Option) *Guard {
	g := &Guard{
		router:     router,
		authGroup:  DefaultAuthGroup,
		loginRoute: DefaultLoginRoute,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Mounted records that the view tree finished its initial mount. Later calls
// are no-ops.
func (g *Guard) Mounted() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != Unmounted {
		return
	}
	_ = g.transition(Mounted)
}

// Evaluate runs the one-shot check for the current route segments. It does
// nothing before Mounted and after the first check. A router error is
// returned but still consumes the check.
func (g *Guard) Evaluate(segments []string) (bool, error) {
	g.mu.Lock()
	if g.state != Mounted {
		g.mu.Unlock()
		return false, nil
	}
	if err := g.transition(RedirectChecked); err != nil {
		g.mu.Unlock()
		return false, err
	}

	inAuthGroup := len(segments) > 0 && segments[0] == g.authGroup
	if inAuthGroup {
		g.mu.Unlock()
		return false, nil
	}
	g.redirected = true
	g.mu.Unlock()

	if err := g.router.Replace(g.loginRoute); err != nil {
		log.Error().Err(err).Str("route", g.loginRoute).Msg("nav: redirect to login failed")
		return true, fmt.Errorf("redirect to %s: %w", g.loginRoute, err)
	}
	log.Debug().Strs("segments", segments).Str("route", g.loginRoute).Msg("nav: redirected to login")
	return true, nil
}

func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Redirected reports whether the guard issued its redirect.
func (g *Guard) Redirected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.redirected
}

func (g *Guard) transition(next State) error {
	if !allowedTransitions[g.state][next] {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, g.state, next)
	}
	g.state = next
	return nil
}
