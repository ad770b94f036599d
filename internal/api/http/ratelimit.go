package http

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	auth "github.com/mind-engage/judged/internal/auth/middleware"
)

// callerLimiter keeps one token bucket per authenticated subject.
type callerLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	byCaller map[string]*rate.Limiter
}

// newCallerLimiter returns nil (no limiting) when perMinute is not positive.
func newCallerLimiter(perMinute float64, burst int) *callerLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &callerLimiter{
		limit:    rate.Limit(perMinute / 60),
		burst:    burst,
		byCaller: map[string]*rate.Limiter{},
	}
}

func (l *callerLimiter) allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.byCaller[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.byCaller[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

func (l *callerLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	retry := strconv.Itoa(int(time.Duration(float64(time.Second)/float64(l.limit)).Seconds()) + 1)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := auth.SubjectFromContext(r.Context())
		if key == "" {
			key, _, _ = net.SplitHostPort(r.RemoteAddr)
		}
		if !l.allow(key) {
			w.Header().Set("Retry-After", retry)
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "rate_limited", "message": "too many lock requests",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
