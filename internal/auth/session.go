package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/harrylevesque/stationbook/internal/models"
	"github.com/harrylevesque/stationbook/internal/storage"
	"github.com/harrylevesque/stationbook/internal/utils"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned when the provided credentials are invalid.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountExists is returned when signing up with a taken email.
	ErrAccountExists = errors.New("account already exists")
	// ErrSessionNotFound is returned when a request carries no usable session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned when a session has expired or was revoked.
	ErrSessionExpired = errors.New("session expired")
)

// SessionCookieName is the cookie holding the signed session token.
const SessionCookieName = "stationbook_session"

const tokenIssuer = "stationbook"

// Store is the persistence the auth service needs.
type Store interface {
	CreateAccount(ctx context.Context, account models.Account, profile models.Profile) error
	AccountByEmail(ctx context.Context, email string) (models.Account, error)
	PutSession(ctx context.Context, session models.Session) error
	GetSession(ctx context.Context, id string) (models.Session, error)
	RevokeSession(ctx context.Context, id string, at time.Time) error
}

// Options configures an Auth service.
type Options struct {
	SigningKey    []byte
	SessionTTL    time.Duration
	SecureCookies bool
	Now           func() time.Time
}

// Auth issues, resolves and revokes login sessions.
type Auth struct {
	store  Store
	key    []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// New creates a new Auth instance.
func New(store Store, opts Options) (*Auth, error) {
	if store == nil {
		return nil, errors.New("auth store is required")
	}
	if len(opts.SigningKey) < 32 {
		return nil, errors.New("session signing key must be at least 32 bytes")
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Auth{
		store:  store,
		key:    opts.SigningKey,
		ttl:    opts.SessionTTL,
		secure: opts.SecureCookies,
		now:    opts.Now,
	}, nil
}

// dummyHash keeps unknown-email logins as slow as bad-password ones.
var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

func compareDummy(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("stationbook-dummy-password"), passwordCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

// Login checks the credentials, opens a session and sets the session cookie.
func (a *Auth) Login(w http.ResponseWriter, r *http.Request, req LoginRequest) (models.Session, error) {
	ctx := r.Context()
	req.Email = normalizeEmail(req.Email)
	account, err := a.store.AccountByEmail(ctx, req.Email)
	if errors.Is(err, storage.ErrNotFound) {
		compareDummy(req.Password)
		return models.Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("load account: %w", err)
	}
	if !CheckPasswordHash(req.Password, account.PasswordHash) {
		return models.Session{}, ErrInvalidCredentials
	}

	now := a.now().UTC()
	session := models.Session{
		ID:        uuid.NewString(),
		UserID:    account.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(a.ttl),
	}
	if err := a.store.PutSession(ctx, session); err != nil {
		return models.Session{}, fmt.Errorf("save session: %w", err)
	}
	token, err := a.issueToken(session)
	if err != nil {
		return models.Session{}, fmt.Errorf("sign session: %w", err)
	}
	a.setCookie(w, token, session.ExpiresAt)
	return session, nil
}

// Logout revokes the current session, if any, and clears the cookie.
func (a *Auth) Logout(w http.ResponseWriter, r *http.Request) error {
	token, ok := readSessionCookie(r)
	if !ok {
		a.clearCookie(w)
		return nil
	}
	claims, err := a.parseToken(token)
	if err != nil {
		a.clearCookie(w)
		return nil
	}
	return a.EndSession(w, r, claims.ID)
}

// EndSession revokes the session with the given id and clears the cookie.
// Unlike Logout it does not need the session cookie on r, so it can undo a
// session opened earlier in the same request.
func (a *Auth) EndSession(w http.ResponseWriter, r *http.Request, sessionID string) error {
	a.clearCookie(w)
	err := a.store.RevokeSession(r.Context(), sessionID, a.now())
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// CurrentSession resolves the active session carried by r. It returns
// ErrSessionNotFound or ErrSessionExpired when the visitor is not logged in;
// any other error is a lookup failure.
func (a *Auth) CurrentSession(r *http.Request) (models.Session, error) {
	token, ok := readSessionCookie(r)
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}
	claims, err := a.parseToken(token)
	if err != nil {
		return models.Session{}, err
	}
	session, err := a.store.GetSession(r.Context(), claims.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("load session: %w", err)
	}
	if session.UserID != claims.Subject {
		return models.Session{}, ErrSessionNotFound
	}
	if !session.Active(a.now()) {
		return models.Session{}, ErrSessionExpired
	}
	return session, nil
}

// Register creates an account and its profile from a signup request.
func (a *Auth) Register(ctx context.Context, req SignupRequest) (models.Account, error) {
	return Register(ctx, a.store, req, a.now())
}

func (a *Auth) issueToken(session models.Session) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   session.UserID,
		ID:        session.ID,
		IssuedAt:  jwt.NewNumericDate(session.CreatedAt),
		ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
}

func (a *Auth) parseToken(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return a.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrSessionExpired
	}
	if err != nil || claims.ID == "" || claims.Subject == "" {
		return nil, ErrSessionNotFound
	}
	return claims, nil
}

func (a *Auth) setCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *Auth) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func readSessionCookie(r *http.Request) (string, bool) {
	if r == nil {
		return "", false
	}
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return "", false
	}
	value := strings.TrimSpace(cookie.Value)
	return value, value != ""
}

// StatusFor maps an auth error to the HTTP status a handler should answer with.
func StatusFor(err error) int {
	var ce *utils.CustomError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &ce):
		return ce.Code
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionExpired):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
