package api

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// rateLimiter enforces a per-caller sliding-window request budget on the
// evaluation API. Callers are keyed by API key when present, otherwise by
// remote address. The limit is soft: counts race slightly under the read
// lock, which is acceptable for throttling.
type rateLimiter struct {
	mu        sync.RWMutex
	windows   map[string]*rateWindow
	perMinute int

	done    chan struct{}
	stopped sync.Once
}

type rateWindow struct {
	count   int
	started time.Time
}

func newRateLimiter(perMinute int) *rateLimiter {
	rl := &rateLimiter{
		windows:   make(map[string]*rateWindow),
		perMinute: perMinute,
		done:      make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

func (rl *rateLimiter) allow(key string) bool {
	now := time.Now()

	rl.mu.RLock()
	w, ok := rl.windows[key]
	if ok && now.Sub(w.started) <= time.Minute {
		w.count++
		count := w.count
		rl.mu.RUnlock()
		if count > rl.perMinute {
			slog.Warn("rate limit exceeded", "key", key, "count", count, "limit", rl.perMinute)
			return false
		}
		return true
	}
	rl.mu.RUnlock()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if w, ok := rl.windows[key]; ok && now.Sub(w.started) <= time.Minute {
		w.count++
		return w.count <= rl.perMinute
	}
	rl.windows[key] = &rateWindow{count: 1, started: now}
	return true
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(callerKey(r)) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func callerKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// cleanup drops windows that can no longer affect a decision.
func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-2 * time.Minute)
			rl.mu.Lock()
			for key, w := range rl.windows {
				if w.started.Before(cutoff) {
					delete(rl.windows, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.done:
			return
		}
	}
}

func (rl *rateLimiter) close() {
	rl.stopped.Do(func() { close(rl.done) })
}
