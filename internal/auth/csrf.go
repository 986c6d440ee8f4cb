package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strings"
)

const (
	// CSRFCookieName holds the double-submit token.
	CSRFCookieName = "stationbook_csrf"
	// CSRFFieldName is the form field every POST must echo the token in.
	CSRFFieldName = "csrf_token"

	csrfTokenBytes = 32
)

// GenerateCSRFToken generates a CSRF token.
func GenerateCSRFToken() (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// CSRFToken returns the visitor's CSRF token, issuing a new cookie when the
// request does not carry a well-formed one.
func (a *Auth) CSRFToken(w http.ResponseWriter, r *http.Request) (string, error) {
	if token, ok := readCSRFCookie(r); ok {
		return token, nil
	}
	token, err := GenerateCSRFToken()
	if err != nil {
		return "", err
	}
	a.SetCSRFToken(w, token)
	return token, nil
}

// SetCSRFToken sets a CSRF token in a cookie.
func (a *Auth) SetCSRFToken(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ValidateCSRFToken reports whether the submitted form field matches the cookie.
func (a *Auth) ValidateCSRFToken(r *http.Request) bool {
	cookie, ok := readCSRFCookie(r)
	if !ok {
		return false
	}
	token := strings.TrimSpace(r.PostFormValue(CSRFFieldName))
	if token == "" {
		return false
	}
	return hmac.Equal([]byte(token), []byte(cookie))
}

func readCSRFCookie(r *http.Request) (string, bool) {
	if r == nil {
		return "", false
	}
	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil || len(raw) != csrfTokenBytes {
		return "", false
	}
	return cookie.Value, true
}
