package auth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/harrylevesque/stationbook/internal/models"
	"github.com/harrylevesque/stationbook/internal/utils"
)

// DefaultFallbackPath is where unauthorized visitors are sent.
const DefaultFallbackPath = "/login"

// Decision is the tri-state outcome of an access check.
type Decision int

const (
	Loading Decision = iota
	Authorized
	Unauthorized
)

func (d Decision) String() string {
	switch d {
	case Loading:
		return "loading"
	case Authorized:
		return "authorized"
	case Unauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// Result is a resolved decision plus the session that earned it.
type Result struct {
	Decision Decision
	Session  models.Session
}

// SessionSource resolves the login session carried by a request.
type SessionSource interface {
	CurrentSession(r *http.Request) (models.Session, error)
}

// ProfileSource looks up the role recorded on a profile.
type ProfileSource interface {
	ProfileRole(ctx context.Context, userID string) (models.Role, error)
}

// Authorizer decides whether a request may reach a region scoped to role.
type Authorizer interface {
	Authorize(r *http.Request, role models.Role) Result
}

// RoleAuthorizer confirms a session and then compares its profile role.
type RoleAuthorizer struct {
	sessions SessionSource
	profiles ProfileSource
	logger   *utils.Logger
}

func NewRoleAuthorizer(sessions SessionSource, profiles ProfileSource, logger *utils.Logger) *RoleAuthorizer {
	return &RoleAuthorizer{sessions: sessions, profiles: profiles, logger: logger}
}

// Authorize never returns Loading.
func (a *RoleAuthorizer) Authorize(r *http.Request, role models.Role) Result {
	session, err := a.sessions.CurrentSession(r)
	if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionExpired) {
		return Result{Decision: Unauthorized}
	}
	if err != nil {
		a.logger.Errorf("auth check error: %v", err)
		return Result{Decision: Unauthorized}
	}

	got, err := a.profiles.ProfileRole(r.Context(), session.UserID)
	if err != nil {
		a.logger.Errorf("error fetching profile %s: %v", session.UserID, err)
		return Result{Decision: Unauthorized}
	}
	if got != role {
		return Result{Decision: Unauthorized}
	}
	return Result{Decision: Authorized, Session: session}
}

// Check is one evaluation of a guard. It starts Loading and leaves it at
// most once; after cancel no resolution is accepted.
type Check struct {
	role    models.Role
	observe func(models.Role, Decision)

	mu        sync.Mutex
	state     Decision
	cancelled bool
}

func newCheck(role models.Role, observe func(models.Role, Decision)) *Check {
	c := &Check{role: role, observe: observe, state: Loading}
	c.notify(Loading)
	return c
}

// State returns the current decision.
func (c *Check) State() Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Check) resolve(d Decision) bool {
	if d == Loading {
		return false
	}
	c.mu.Lock()
	if c.cancelled || c.state != Loading {
		c.mu.Unlock()
		return false
	}
	c.state = d
	c.mu.Unlock()
	c.notify(d)
	return true
}

func (c *Check) cancel() {
	c.mu.Lock()
	c.cancelled = true
	c.mu.Unlock()
}

func (c *Check) notify(d Decision) {
	if c.observe != nil {
		c.observe(c.role, d)
	}
}

// Guard gates a handler on the visitor holding a required role.
type Guard struct {
	authz    Authorizer
	role     models.Role
	fallback string
	timeout  time.Duration
	logger   *utils.Logger
	observe  func(models.Role, Decision)
}

// GuardOption customizes a Guard.
type GuardOption func(*Guard)

// WithFallback sets the redirect target for unauthorized visitors.
func WithFallback(path string) GuardOption {
	return func(g *Guard) {
		if path != "" {
			g.fallback = path
		}
	}
}

// WithTimeout bounds a single evaluation; zero means no bound beyond the request.
func WithTimeout(d time.Duration) GuardOption {
	return func(g *Guard) { g.timeout = d }
}

func WithLogger(l *utils.Logger) GuardOption {
	return func(g *Guard) { g.logger = l }
}

// WithObserver registers fn to receive every state a check enters.
func WithObserver(fn func(models.Role, Decision)) GuardOption {
	return func(g *Guard) { g.observe = fn }
}

func NewGuard(authz Authorizer, role models.Role, opts ...GuardOption) *Guard {
	g := &Guard{
		authz:    authz,
		role:     role,
		fallback: DefaultFallbackPath,
		logger:   utils.Discard(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RequireRole returns middleware that lets only visitors with role through.
func RequireRole(authz Authorizer, role models.Role, opts ...GuardOption) func(http.Handler) http.Handler {
	return NewGuard(authz, role, opts...).Middleware
}

// Middleware is an HTTP middleware for role-gated regions.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result, ok := g.evaluate(r)
		if !ok {
			return
		}
		if result.Decision != Authorized {
			http.Redirect(w, r, g.fallback, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), result.Session)))
	})
}

// evaluate runs one check. ok is false when the request went away before
// the check resolved; the late result is then dropped.
func (g *Guard) evaluate(r *http.Request) (Result, bool) {
	parent := r.Context()
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if g.timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, g.timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	defer cancel()

	check := newCheck(g.role, g.observe)
	done := make(chan Result, 1)
	go func() {
		res := Result{Decision: Unauthorized}
		defer func() {
			if p := recover(); p != nil {
				g.logger.Errorf("auth check error: panic: %v", p)
				res = Result{Decision: Unauthorized}
			}
			done <- res
		}()
		res = g.authz.Authorize(r.WithContext(ctx), g.role)
	}()

	select {
	case res := <-done:
		if parent.Err() != nil {
			check.cancel()
			return Result{}, false
		}
		if res.Decision != Authorized {
			res = Result{Decision: Unauthorized}
		}
		check.resolve(res.Decision)
		return res, true
	case <-ctx.Done():
		if parent.Err() != nil {
			check.cancel()
			return Result{}, false
		}
		g.logger.Warnf("auth check for role %s timed out after %s", g.role, g.timeout)
		check.resolve(Unauthorized)
		return Result{Decision: Unauthorized}, true
	}
}

type sessionKey struct{}

// WithSession returns a context carrying the guard-approved session.
func WithSession(ctx context.Context, s models.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session stored by the guard.
func SessionFromContext(ctx context.Context) (models.Session, bool) {
	if ctx == nil {
		return models.Session{}, false
	}
	s, ok := ctx.Value(sessionKey{}).(models.Session)
	return s, ok
}
