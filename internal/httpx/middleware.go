package httpx

import (
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ariefcatur/go-pi-orders/internal/apperr"
	"golang.org/x/time/rate"
)

const AdminHeader = "x-admin-token"

// AdminOnly rejects requests whose x-admin-token does not match token.
// An empty token locks every admin route.
func AdminOnly(token string, log *slog.Logger) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(AdminHeader))
			if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				writeErr(w, r, log, apperr.Unauthorized())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IPLimiter keeps one token bucket per client IP.
type IPLimiter struct {
	mu      sync.Mutex
	perSec  rate.Limit
	burst   int
	ttl     time.Duration
	clients map[string]*client
}

type client struct {
	lim  *rate.Limiter
	seen time.Time
}

func NewIPLimiter(perSec float64, burst int) *IPLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &IPLimiter{
		perSec:  rate.Limit(perSec),
		burst:   burst,
		ttl:     10 * time.Minute,
		clients: make(map[string]*client),
	}
}

func (l *IPLimiter) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.clients[ip]
	if !ok {
		c = &client{lim: rate.NewLimiter(l.perSec, l.burst)}
		l.clients[ip] = c
	}
	c.seen = now
	// buang IP yang sudah lama tidak muncul
	if len(l.clients) > 1024 {
		for k, v := range l.clients {
			if now.Sub(v.seen) > l.ttl {
				delete(l.clients, k)
			}
		}
	}
	return c.lim.AllowN(now, 1)
}

// Middleware answers 429 once a client IP runs out of tokens.
// RealIP must run earlier so RemoteAddr is the client address.
func (l *IPLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !l.allow(ip, time.Now()) {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "Too many requests", Kind: "rate_limited"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
