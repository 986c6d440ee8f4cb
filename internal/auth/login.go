package auth

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/harrylevesque/stationbook/internal/utils"
	"golang.org/x/time/rate"
)

// LoginRequest represents the login form payload
type LoginRequest struct {
	Email    string
	Password string
}

// Validate rejects empty credentials before touching the store.
func (req LoginRequest) Validate() error {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return utils.New(http.StatusBadRequest, "email and password are required")
	}
	return nil
}

// maxTrackedClients bounds the limiter map; it is reset when exceeded.
const maxTrackedClients = 10000

// LoginLimiter throttles login attempts per client key.
type LoginLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// NewLoginLimiter allows perMinute attempts per client, with the same burst.
func NewLoginLimiter(perMinute int) *LoginLimiter {
	if perMinute <= 0 {
		perMinute = 10
	}
	return &LoginLimiter{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether the client identified by key may attempt a login now.
func (l *LoginLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= maxTrackedClients {
			l.limiters = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	return lim.Allow()
}
