package http

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter hands out one token bucket per client address.
type clientLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*visitor
	limit    rate.Limit
	burst    int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(perSec float64, burst int) *clientLimiter {
	return &clientLimiter{
		limiters: make(map[string]*visitor),
		limit:    rate.Limit(perSec),
		burst:    burst,
	}
}

func (c *clientLimiter) get(key string) *rate.Limiter {
	c.mu.RLock()
	v, ok := c.limiters[key]
	c.mu.RUnlock()
	if ok {
		c.mu.Lock()
		v.lastSeen = time.Now()
		c.mu.Unlock()
		return v.limiter
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if v, ok = c.limiters[key]; ok {
		return v.limiter
	}
	v = &visitor{limiter: rate.NewLimiter(c.limit, c.burst), lastSeen: time.Now()}
	c.limiters[key] = v
	return v.limiter
}

// sweep forgets clients idle for longer than maxIdle.
func (c *clientLimiter) sweep(maxIdle time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	for key, v := range c.limiters {
		if v.lastSeen.Before(cutoff) {
			delete(c.limiters, key)
		}
	}
}

// middleware rejects requests over the client's budget with 429.
func (c *clientLimiter) middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !c.get(clientKey(r)).Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "trop de requêtes, réessayez dans un instant")
			return
		}
		next(w, r)
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
