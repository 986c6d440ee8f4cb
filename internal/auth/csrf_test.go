package auth

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func csrfPost(cookie, field string) *http.Request {
	form := url.Values{}
	if field != "" {
		form.Set(CSRFFieldName, field)
	}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: cookie})
	}
	return req
}

func TestCSRFTokenIssuesCookieOnce(t *testing.T) {
	a, _, _ := newTestAuth(t)

	rec := httptest.NewRecorder()
	token, err := a.CSRFToken(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	if err != nil {
		t.Fatalf("CSRFToken() error = %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != CSRFCookieName || cookies[0].Value != token {
		t.Fatalf("cookies = %+v, want one %s cookie with the token", cookies, CSRFCookieName)
	}
	if !cookies[0].HttpOnly || cookies[0].SameSite != http.SameSiteStrictMode {
		t.Fatalf("cookie flags = %+v", cookies[0])
	}

	again := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/signup", nil)
	req.AddCookie(cookies[0])
	reused, err := a.CSRFToken(again, req)
	if err != nil {
		t.Fatalf("CSRFToken() error = %v", err)
	}
	if reused != token {
		t.Fatalf("token = %q, want reused %q", reused, token)
	}
	if len(again.Result().Cookies()) != 0 {
		t.Fatal("existing token should not be re-issued")
	}
}

func TestCSRFTokenReplacesMalformedCookie(t *testing.T) {
	a, _, _ := newTestAuth(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "attacker-chosen"})

	token, err := a.CSRFToken(rec, req)
	if err != nil {
		t.Fatalf("CSRFToken() error = %v", err)
	}
	if token == "attacker-chosen" {
		t.Fatal("malformed cookie value was accepted as a token")
	}
}

func TestValidateCSRFToken(t *testing.T) {
	a, _, _ := newTestAuth(t)
	good, err := GenerateCSRFToken()
	if err != nil {
		t.Fatal(err)
	}
	other, err := GenerateCSRFToken()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		cookie string
		field  string
		want   bool
	}{
		{"matching", good, good, true},
		{"missing field", good, "", false},
		{"missing cookie", "", good, false},
		{"mismatched", good, other, false},
		{"malformed cookie", "abc", "abc", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.ValidateCSRFToken(csrfPost(tt.cookie, tt.field)); got != tt.want {
				t.Fatalf("ValidateCSRFToken() = %v, want %v", got, tt.want)
			}
		})
	}
}
