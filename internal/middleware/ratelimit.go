package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const authPathPrefix = "/api/v1/auth"

// Counter is a shared fixed-window limiter, used for the auth bucket when several
// instances must agree on counts.
type Counter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type clientLimiter struct {
	general  *rate.Limiter
	auth     *rate.Limiter
	lastSeen time.Time
}

type RateLimitOption func(*RateLimitMiddleware)

// WithSharedAuthCounter moves the auth bucket from process memory to counter.
func WithSharedAuthCounter(counter Counter) RateLimitOption {
	return func(m *RateLimitMiddleware) {
		m.shared = counter
	}
}

// WithOnLimited registers fn to be called with "general" or "auth" for each rejected request.
func WithOnLimited(fn func(limiter string)) RateLimitOption {
	return func(m *RateLimitMiddleware) {
		m.onLimited = fn
	}
}

type RateLimitMiddleware struct {
	generalRPM int
	authRPM    int
	shared     Counter
	onLimited  func(limiter string)
	mu         sync.Mutex
	clients    map[string]*clientLimiter
}

// NewRateLimitMiddleware limits per client IP. A generalRPM of zero or less disables the
// general bucket; authRPM falls back to 10.
func NewRateLimitMiddleware(generalRPM int, authRPM int, opts ...RateLimitOption) *RateLimitMiddleware {
	if authRPM <= 0 {
		authRPM = 10
	}

	m := &RateLimitMiddleware{
		generalRPM: generalRPM,
		authRPM:    authRPM,
		clients:    map[string]*clientLimiter{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := ClientIP(r)
		isAuth := strings.HasPrefix(strings.ToLower(r.URL.Path), authPathPrefix)

		name := "general"
		allowed := true
		if isAuth {
			name = "auth"
			allowed = m.allowAuth(r.Context(), clientIP)
		} else if m.generalRPM > 0 {
			allowed = m.getLimiter(clientIP).general.Allow()
		}

		if !allowed {
			if m.onLimited != nil {
				m.onLimited(name)
			}
			w.Header().Set("Retry-After", strconv.Itoa(60))
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) allowAuth(ctx context.Context, clientIP string) bool {
	if m.shared != nil {
		allowed, err := m.shared.Allow(ctx, "auth:"+clientIP, m.authRPM, time.Minute)
		if err == nil {
			return allowed
		}
		// Fall back to the local bucket while the shared store is unavailable.
	}
	return m.getLimiter(clientIP).auth.Allow()
}

func (m *RateLimitMiddleware) getLimiter(clientIP string) *clientLimiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limiter, exists := m.clients[clientIP]; exists {
		limiter.lastSeen = time.Now()
		m.gcLocked()
		return limiter
	}

	created := &clientLimiter{
		auth:     rate.NewLimiter(rate.Every(time.Minute/time.Duration(m.authRPM)), m.authRPM),
		lastSeen: time.Now(),
	}
	if m.generalRPM > 0 {
		created.general = rate.NewLimiter(rate.Every(time.Minute/time.Duration(m.generalRPM)), m.generalRPM)
	}
	m.clients[clientIP] = created
	m.gcLocked()

	return created
}

func (m *RateLimitMiddleware) gcLocked() {
	if len(m.clients) < 1000 {
		return
	}

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, limiter := range m.clients {
		if limiter.lastSeen.Before(cutoff) {
			delete(m.clients, ip)
		}
	}
}

// ClientIP prefers proxy headers and falls back to the connection address.
func ClientIP(r *http.Request) string {
	forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if first := strings.TrimSpace(parts[0]); first != "" {
			return first
		}
	}

	realIP := strings.TrimSpace(r.Header.Get("X-Real-IP"))
	if realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}

	if strings.TrimSpace(r.RemoteAddr) == "" {
		return "unknown"
	}

	return r.RemoteAddr
}
