package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/harrylevesque/stationbook/internal/auth"
	"github.com/harrylevesque/stationbook/internal/models"
	"github.com/harrylevesque/stationbook/internal/utils"
)

const (
	routeLogin  = "/login"
	routeSignup = "/signup"
	routeLogout = "/logout"

	routeUserHome       = "/user/home"
	routeOwnerDashboard = "/owner/dashboard"
)

// Authenticator is the login backend the handlers and the guard talk to.
type Authenticator interface {
	auth.SessionSource
	Login(w http.ResponseWriter, r *http.Request, req auth.LoginRequest) (models.Session, error)
	Logout(w http.ResponseWriter, r *http.Request) error
	EndSession(w http.ResponseWriter, r *http.Request, sessionID string) error
	Register(ctx context.Context, req auth.SignupRequest) (models.Account, error)
	CSRFToken(w http.ResponseWriter, r *http.Request) (string, error)
	ValidateCSRFToken(r *http.Request) bool
}

// ProfileStore reads profile records.
type ProfileStore interface {
	auth.ProfileSource
	Profile(ctx context.Context, userID string) (models.Profile, error)
}

// Dependencies are the collaborators NewRouter wires into the route table.
type Dependencies struct {
	Auth          Authenticator
	Profiles      ProfileStore
	Logger        *utils.Logger
	LoginLimiter  *auth.LoginLimiter
	GuardTimeout  time.Duration
	GuardObserver func(models.Role, auth.Decision)
}

// NewRouter builds the route table. Paths are matched without regard to case
// or a trailing slash.
func NewRouter(deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = utils.Discard()
	}
	h := &Handlers{
		auth:     deps.Auth,
		profiles: deps.Profiles,
		logger:   deps.Logger,
		limiter:  deps.LoginLimiter,
	}

	r := mux.NewRouter()
	r.Use(logRequests(deps.Logger), recoverPanic(deps.Logger))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if _, err := fmt.Fprintln(w, "OK"); err != nil {
			deps.Logger.Warnf("health write: %v", err)
		}
	}).Methods(http.MethodGet)

	// Public routes
	r.HandleFunc(routeLogin, h.LoginPage).Methods(http.MethodGet)
	r.HandleFunc(routeLogin, h.Login).Methods(http.MethodPost)
	r.HandleFunc(routeSignup, h.SignupPage).Methods(http.MethodGet)
	r.HandleFunc(routeSignup, h.Signup).Methods(http.MethodPost)
	r.HandleFunc(routeLogout, h.Logout).Methods(http.MethodPost)

	authz := auth.NewRoleAuthorizer(deps.Auth, deps.Profiles, deps.Logger)
	guardOpts := []auth.GuardOption{
		auth.WithFallback(routeLogin),
		auth.WithTimeout(deps.GuardTimeout),
		auth.WithLogger(deps.Logger),
		auth.WithObserver(deps.GuardObserver),
	}

	user := r.PathPrefix("/user").Subrouter()
	user.Use(auth.RequireRole(authz, models.RoleUser, guardOpts...))
	user.HandleFunc("/home", h.screen(userNav, screenUserHome)).Methods(http.MethodGet)
	user.HandleFunc("/station-details/{stationId}", h.StationDetails).Methods(http.MethodGet)
	user.HandleFunc("/booking-history", h.screen(userNav, screenBookingHistory)).Methods(http.MethodGet)
	user.HandleFunc("/profile", h.profile(userNav)).Methods(http.MethodGet)
	user.HandleFunc("/chatbot", h.screen(userNav, screenChatBot)).Methods(http.MethodGet)

	owner := r.PathPrefix("/owner").Subrouter()
	owner.Use(auth.RequireRole(authz, models.RoleOwner, guardOpts...))
	owner.HandleFunc("/dashboard", h.screen(ownerNav, screenOwnerDashboard)).Methods(http.MethodGet)
	owner.HandleFunc("/add-station", h.screen(ownerNav, screenAddStation)).Methods(http.MethodGet)
	owner.HandleFunc("/Bookings", h.screen(ownerNav, screenOwnerBookings)).Methods(http.MethodGet)
	owner.HandleFunc("/profile", h.profile(ownerNav)).Methods(http.MethodGet)

	// Default and catch-all routes go to the login screen.
	r.Handle("/", redirectTo(routeLogin))
	r.PathPrefix("/").Handler(redirectTo(routeLogin))
	return canonicalize(r)
}

// pathTable is the set of registered path templates, used to map a request
// path onto the spelling the router registered.
type pathTable struct {
	static   []string
	prefixes []string
}

func newPathTable(r *mux.Router) *pathTable {
	t := &pathTable{}
	_ = r.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		tpl, err := route.GetPathTemplate()
		if err != nil || tpl == "/" {
			return nil
		}
		if i := strings.IndexByte(tpl, '{'); i >= 0 {
			t.prefixes = append(t.prefixes, tpl[:i])
			return nil
		}
		t.static = append(t.static, tpl)
		return nil
	})
	return t
}

func (t *pathTable) canonical(path string) string {
	path = strings.TrimRight(path, "/")
	if path == "" {
		return "/"
	}
	for _, s := range t.static {
		if strings.EqualFold(path, s) {
			return s
		}
	}
	for _, p := range t.prefixes {
		if len(path) > len(p) && strings.EqualFold(path[:len(p)], p) {
			return p + path[len(p):]
		}
	}
	return path
}

// canonicalize rewrites the request path before routing so /owner/bookings
// and /user/home/ reach the routes registered as /owner/Bookings and /user/home.
func canonicalize(r *mux.Router) http.Handler {
	paths := newPathTable(r)
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		p := paths.canonical(req.URL.Path)
		if p == req.URL.Path {
			r.ServeHTTP(w, req)
			return
		}
		u := *req.URL
		u.Path = p
		u.RawPath = ""
		req2 := req.WithContext(req.Context())
		req2.URL = &u
		r.ServeHTTP(w, req2)
	})
}

func redirectTo(path string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, path, http.StatusFound)
	})
}

// landingPath is where a freshly logged-in account of role goes.
func landingPath(role models.Role) string {
	switch role {
	case models.RoleOwner:
		return routeOwnerDashboard
	case models.RoleUser:
		return routeUserHome
	default:
		return routeLogin
	}
}
