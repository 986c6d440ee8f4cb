package auth

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harrylevesque/stationbook/internal/models"
	"github.com/harrylevesque/stationbook/internal/utils"
)

type fakeSessions struct {
	session models.Session
	err     error
}

func (f fakeSessions) CurrentSession(*http.Request) (models.Session, error) {
	return f.session, f.err
}

type fakeProfiles struct {
	role models.Role
	err  error
}

func (f fakeProfiles) ProfileRole(context.Context, string) (models.Role, error) {
	return f.role, f.err
}

type authorizerFunc func(*http.Request, models.Role) Result

func (f authorizerFunc) Authorize(r *http.Request, role models.Role) Result { return f(r, role) }

type stateRecorder struct {
	mu     sync.Mutex
	states []Decision
}

func (s *stateRecorder) observe(_ models.Role, d Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, d)
}

func (s *stateRecorder) snapshot() []Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Decision(nil), s.states...)
}

var liveSession = models.Session{ID: "sess-1", UserID: "user-1"}

type guardRun struct {
	rec     *httptest.ResponseRecorder
	reached bool
	session models.Session
	states  []Decision
	logs    string
}

func runGuard(t *testing.T, authz Authorizer, role models.Role, path string, opts ...GuardOption) guardRun {
	t.Helper()
	var (
		logs   bytes.Buffer
		states stateRecorder
		run    guardRun
	)
	opts = append([]GuardOption{WithLogger(utils.NewStreamLogger(&logs)), WithObserver(states.observe)}, opts...)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		run.reached = true
		run.session, _ = SessionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	run.rec = httptest.NewRecorder()
	RequireRole(authz, role, opts...)(next).ServeHTTP(run.rec, httptest.NewRequest(http.MethodGet, path, nil))
	run.states = states.snapshot()
	run.logs = logs.String()
	return run
}

func roleAuthorizer(s SessionSource, p ProfileSource) *RoleAuthorizer {
	return NewRoleAuthorizer(s, p, utils.Discard())
}

func assertRedirect(t *testing.T, run guardRun, want string) {
	t.Helper()
	if run.reached {
		t.Fatal("protected handler must not run")
	}
	if run.rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", run.rec.Code, http.StatusFound)
	}
	if loc := run.rec.Header().Get("Location"); loc != want {
		t.Fatalf("Location = %q, want %q", loc, want)
	}
}

func assertStates(t *testing.T, got []Decision, want ...Decision) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("states = %v, want %v", got, want)
		}
	}
}

func TestGuardNoSessionRedirects(t *testing.T) {
	for _, role := range []models.Role{models.RoleUser, models.RoleOwner} {
		authz := roleAuthorizer(fakeSessions{err: ErrSessionNotFound}, fakeProfiles{role: role})
		run := runGuard(t, authz, role, "/"+string(role)+"/home")
		assertRedirect(t, run, "/login")
		assertStates(t, run.states, Loading, Unauthorized)
	}
}

func TestGuardExpiredSessionRedirects(t *testing.T) {
	authz := roleAuthorizer(fakeSessions{err: ErrSessionExpired}, fakeProfiles{role: models.RoleUser})
	run := runGuard(t, authz, models.RoleUser, "/user/home")
	assertRedirect(t, run, "/login")
}

func TestGuardMatchingRoleRendersChildren(t *testing.T) {
	for _, role := range []models.Role{models.RoleUser, models.RoleOwner} {
		authz := roleAuthorizer(fakeSessions{session: liveSession}, fakeProfiles{role: role})
		run := runGuard(t, authz, role, "/x")
		if !run.reached {
			t.Fatalf("role %s: protected handler did not run (status %d)", role, run.rec.Code)
		}
		if run.session.ID != liveSession.ID {
			t.Fatalf("session in context = %+v", run.session)
		}
		assertStates(t, run.states, Loading, Authorized)
	}
}

func TestGuardRoleMismatchRedirects(t *testing.T) {
	tests := []struct {
		required models.Role
		actual   models.Role
	}{
		{models.RoleUser, models.RoleOwner},
		{models.RoleOwner, models.RoleUser},
		{models.RoleOwner, "OWNER"},
		{models.RoleUser, ""},
	}
	for _, tc := range tests {
		authz := roleAuthorizer(fakeSessions{session: liveSession}, fakeProfiles{role: tc.actual})
		run := runGuard(t, authz, tc.required, "/x")
		assertRedirect(t, run, "/login")
		assertStates(t, run.states, Loading, Unauthorized)
	}
}

func TestGuardProfileErrorRedirectsAndLogs(t *testing.T) {
	var logs bytes.Buffer
	authz := NewRoleAuthorizer(fakeSessions{session: liveSession}, fakeProfiles{err: errors.New("db down")}, utils.NewStreamLogger(&logs))
	run := runGuard(t, authz, models.RoleUser, "/user/home")
	assertRedirect(t, run, "/login")
	assertStates(t, run.states, Loading, Unauthorized)
	if !strings.Contains(logs.String(), "error fetching profile") {
		t.Fatalf("expected profile failure to be logged, got %q", logs.String())
	}
}

func TestGuardSessionErrorRedirectsAndLogs(t *testing.T) {
	var logs bytes.Buffer
	authz := NewRoleAuthorizer(fakeSessions{err: errors.New("store unreachable")}, fakeProfiles{role: models.RoleUser}, utils.NewStreamLogger(&logs))
	run := runGuard(t, authz, models.RoleUser, "/user/home")
	assertRedirect(t, run, "/login")
	if !strings.Contains(logs.String(), "auth check error") {
		t.Fatalf("expected session failure to be logged, got %q", logs.String())
	}
}

func TestGuardRecoversFromPanickingAuthorizer(t *testing.T) {
	authz := authorizerFunc(func(*http.Request, models.Role) Result { panic("boom") })
	run := runGuard(t, authz, models.RoleOwner, "/owner/dashboard")
	assertRedirect(t, run, "/login")
	assertStates(t, run.states, Loading, Unauthorized)
	if !strings.Contains(run.logs, "panic: boom") {
		t.Fatalf("expected panic to be logged, got %q", run.logs)
	}
}

func TestGuardTreatsLoadingResultAsUnauthorized(t *testing.T) {
	authz := authorizerFunc(func(*http.Request, models.Role) Result { return Result{Decision: Loading} })
	run := runGuard(t, authz, models.RoleUser, "/user/home")
	assertRedirect(t, run, "/login")
	assertStates(t, run.states, Loading, Unauthorized)
}

func TestGuardTimeoutRedirects(t *testing.T) {
	authz := authorizerFunc(func(r *http.Request, _ models.Role) Result {
		<-r.Context().Done()
		time.Sleep(10 * time.Millisecond)
		return Result{Decision: Authorized, Session: liveSession}
	})
	run := runGuard(t, authz, models.RoleUser, "/user/home", WithTimeout(20*time.Millisecond))
	assertRedirect(t, run, "/login")
	assertStates(t, run.states, Loading, Unauthorized)
	if !strings.Contains(run.logs, "timed out") {
		t.Fatalf("expected timeout to be logged, got %q", run.logs)
	}
}

func TestGuardCustomFallback(t *testing.T) {
	authz := roleAuthorizer(fakeSessions{err: ErrSessionNotFound}, fakeProfiles{})
	run := runGuard(t, authz, models.RoleUser, "/user/home", WithFallback("/signup"))
	assertRedirect(t, run, "/signup")
}

func TestGuardDiscardsResultAfterRequestCancelled(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan struct{})
	authz := authorizerFunc(func(*http.Request, models.Role) Result {
		defer close(finished)
		<-release
		return Result{Decision: Authorized, Session: liveSession}
	})

	var states stateRecorder
	reached := false
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { reached = true })
	h := RequireRole(authz, models.RoleUser, WithObserver(states.observe))(next)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/user/home", nil).WithContext(ctx))

	close(release)
	<-finished

	if reached {
		t.Fatal("protected handler ran for a cancelled request")
	}
	if rec.Header().Get("Location") != "" || rec.Body.Len() != 0 {
		t.Fatalf("cancelled request produced a response: %d %q", rec.Code, rec.Body.String())
	}
	assertStates(t, states.snapshot(), Loading)
}

func TestCheckResolvesOnce(t *testing.T) {
	var states stateRecorder
	c := newCheck(models.RoleUser, states.observe)
	if c.State() != Loading {
		t.Fatalf("initial state = %s", c.State())
	}
	if c.resolve(Loading) {
		t.Fatal("resolving to Loading must be rejected")
	}
	if !c.resolve(Authorized) {
		t.Fatal("first resolution rejected")
	}
	if c.resolve(Unauthorized) {
		t.Fatal("second resolution accepted")
	}
	if c.State() != Authorized {
		t.Fatalf("state = %s, want authorized", c.State())
	}
	assertStates(t, states.snapshot(), Loading, Authorized)
}

func TestCheckCancelledIgnoresResolution(t *testing.T) {
	c := newCheck(models.RoleOwner, nil)
	c.cancel()
	if c.resolve(Authorized) {
		t.Fatal("cancelled check accepted a resolution")
	}
	if c.State() != Loading {
		t.Fatalf("state = %s, want loading", c.State())
	}
}

func TestSessionFromContextMissing(t *testing.T) {
	if _, ok := SessionFromContext(context.Background()); ok {
		t.Fatal("expected no session in empty context")
	}
}

func TestDecisionString(t *testing.T) {
	if Loading.String() != "loading" || Authorized.String() != "authorized" || Unauthorized.String() != "unauthorized" {
		t.Fatal("unexpected decision names")
	}
}
