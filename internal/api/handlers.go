package api

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/harrylevesque/stationbook/internal/auth"
	"github.com/harrylevesque/stationbook/internal/models"
	"github.com/harrylevesque/stationbook/internal/utils"
)

// Handlers serves the public auth screens and the role-scoped screens.
type Handlers struct {
	auth     Authenticator
	profiles ProfileStore
	logger   *utils.Logger
	limiter  *auth.LoginLimiter
}

// LoginPage renders the login form.
func (h *Handlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	data := pageData{Title: "Log in", CSRFToken: h.csrfToken(w, r)}
	if r.URL.Query().Get("registered") == "1" {
		data.Notice = "Account created. You can log in now."
	}
	h.render(w, http.StatusOK, "login", data)
}

// Login checks the submitted credentials and sends the visitor to their role's landing page.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, http.StatusBadRequest, "login", pageData{Title: "Log in", Error: "could not read the form", CSRFToken: h.csrfToken(w, r)})
		return
	}
	req := auth.LoginRequest{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	data := pageData{Title: "Log in", Email: strings.TrimSpace(req.Email), CSRFToken: h.csrfToken(w, r)}

	if !h.auth.ValidateCSRFToken(r) {
		data.Error = errFormExpired
		h.render(w, http.StatusForbidden, "login", data)
		return
	}

	if !h.limiter.Allow(clientKey(r)) {
		data.Error = "Too many login attempts. Try again in a minute."
		h.render(w, http.StatusTooManyRequests, "login", data)
		return
	}
	if err := req.Validate(); err != nil {
		data.Error = h.publicMessage(err)
		h.render(w, auth.StatusFor(err), "login", data)
		return
	}

	session, err := h.auth.Login(w, r, req)
	if err != nil {
		data.Error = h.publicMessage(err)
		h.render(w, auth.StatusFor(err), "login", data)
		return
	}

	role, err := h.profiles.ProfileRole(r.Context(), session.UserID)
	if err != nil {
		h.logger.Errorf("error fetching profile %s after login: %v", session.UserID, err)
		if err := h.auth.EndSession(w, r, session.ID); err != nil {
			h.logger.Errorf("end session %s: %v", session.ID, err)
		}
		data.Error = "Your account has no profile yet."
		h.render(w, http.StatusInternalServerError, "login", data)
		return
	}
	http.Redirect(w, r, landingPath(role), http.StatusSeeOther)
}

// SignupPage renders the signup form.
func (h *Handlers) SignupPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "signup", pageData{Title: "Sign up", SignupRole: string(models.RoleUser), CSRFToken: h.csrfToken(w, r)})
}

// Signup creates an account and its profile.
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, http.StatusBadRequest, "signup", pageData{Title: "Sign up", Error: "could not read the form", CSRFToken: h.csrfToken(w, r)})
		return
	}
	req := auth.SignupRequest{
		FullName: r.PostFormValue("full_name"),
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
		Role:     r.PostFormValue("role"),
	}
	data := pageData{
		Title:      "Sign up",
		Email:      strings.TrimSpace(req.Email),
		FullName:   strings.TrimSpace(req.FullName),
		SignupRole: req.Role,
		CSRFToken:  h.csrfToken(w, r),
	}
	if !h.auth.ValidateCSRFToken(r) {
		data.Error = errFormExpired
		h.render(w, http.StatusForbidden, "signup", data)
		return
	}
	if _, err := h.auth.Register(r.Context(), req); err != nil {
		data.Error = h.publicMessage(err)
		h.render(w, auth.StatusFor(err), "signup", data)
		return
	}
	http.Redirect(w, r, routeLogin+"?registered=1", http.StatusSeeOther)
}

// Logout ends the current session.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if !h.auth.ValidateCSRFToken(r) {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	if err := h.auth.Logout(w, r); err != nil {
		h.logger.Errorf("logout: %v", err)
	}
	http.Redirect(w, r, routeLogin, http.StatusSeeOther)
}

// StationDetails renders the detail screen for the station in the path.
func (h *Handlers) StationDetails(w http.ResponseWriter, r *http.Request) {
	data := pageData{Title: screenStationDetails.Title, Nav: userNav, Screen: screenStationDetails, CSRFToken: h.csrfToken(w, r)}
	data.StationID = mux.Vars(r)["stationId"]
	h.render(w, http.StatusOK, "screen", data)
}

func (h *Handlers) screen(nav *navBar, s screen) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.render(w, http.StatusOK, "screen", pageData{Title: s.Title, Nav: nav, Screen: s, CSRFToken: h.csrfToken(w, r)})
	}
}

func (h *Handlers) profile(nav *navBar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := pageData{Title: screenProfile.Title, Nav: nav, Screen: screenProfile, CSRFToken: h.csrfToken(w, r)}
		session, ok := auth.SessionFromContext(r.Context())
		if !ok {
			http.Redirect(w, r, routeLogin, http.StatusFound)
			return
		}
		profile, err := h.profiles.Profile(r.Context(), session.UserID)
		if err != nil {
			h.logger.Errorf("error fetching profile %s: %v", session.UserID, err)
			data.Error = "Your profile could not be loaded."
			h.render(w, http.StatusInternalServerError, "screen", data)
			return
		}
		data.Profile = &profile
		h.render(w, http.StatusOK, "screen", data)
	}
}

const errFormExpired = "This form has expired. Please try again."

// csrfToken returns the token for the page's forms. An empty token only
// means the next POST is refused.
func (h *Handlers) csrfToken(w http.ResponseWriter, r *http.Request) string {
	token, err := h.auth.CSRFToken(w, r)
	if err != nil {
		h.logger.Errorf("csrf token: %v", err)
		return ""
	}
	return token
}

func (h *Handlers) render(w http.ResponseWriter, status int, page string, data pageData) {
	if err := pages.render(w, status, page, data); err != nil {
		h.logger.Errorf("render %s: %v", page, err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// publicMessage turns err into text that is safe to show on a form.
func (h *Handlers) publicMessage(err error) string {
	var ce *utils.CustomError
	switch {
	case errors.As(err, &ce):
		return ce.Message
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "Invalid email or password."
	case errors.Is(err, auth.ErrAccountExists):
		return "An account with that email already exists."
	default:
		h.logger.Errorf("request failed: %v", err)
		return "Something went wrong. Please try again."
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
