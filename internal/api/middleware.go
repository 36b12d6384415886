package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"auditorium/internal/metrics"
	"auditorium/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	actorKey     = "actor"
	requestIDKey = "request_id"
)

func actorFrom(c *gin.Context) models.Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(models.Actor); ok {
			return a
		}
	}
	return models.Anonymous
}

// requestLogger tags each request with an id, logs it and records metrics.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(requestIDKey, reqID)
		c.Header("X-Request-ID", reqID)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		metrics.ObserveHTTP(c.Request.Method, route, c.Writer.Status(), elapsed)

		ev := s.logger.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = s.logger.Error()
		}
		ev.Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", elapsed).
			Str("actor_id", actorFrom(c).ID).
			Msg("http request")
	}
}

// authenticate resolves a bearer token into an actor. Requests without a
// token continue anonymously; a bad token is rejected outright.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			c.Next()
			return
		}
		if !strings.HasPrefix(h, "Bearer ") {
			abortWith(c, http.StatusUnauthorized, "authentication", "Not authorized to access this route")
			return
		}
		actor, err := s.auth.Tokens().Parse(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			abortWith(c, http.StatusUnauthorized, "authentication", "Not authorized to access this route")
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !actorFrom(c).Authenticated() {
			abortWith(c, http.StatusUnauthorized, "authentication", "Not authorized to access this route")
			return
		}
		c.Next()
	}
}

func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actorFrom(c)
		if !actor.Authenticated() {
			abortWith(c, http.StatusUnauthorized, "authentication", "Not authorized to access this route")
			return
		}
		if !actor.IsAdmin() {
			abortWith(c, http.StatusForbidden, "authorization", "User role "+string(actor.Role)+" is not authorized to access this route")
			return
		}
		c.Next()
	}
}

// limiterIdleTTL is how long a client's bucket survives without requests.
const limiterIdleTTL = 10 * time.Minute

type clientBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// clientLimiter hands out one token bucket per client key. Idle buckets are
// swept at most once per idle TTL, on the request path.
type clientLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*clientBucket
	rps       rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &clientLimiter{
		buckets:   make(map[string]*clientBucket),
		rps:       rate.Limit(rps),
		burst:     burst,
		idle:      limiterIdleTTL,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (l *clientLimiter) allow(key string) bool {
	l.mu.Lock()
	now := l.now()
	if now.Sub(l.lastSweep) >= l.idle {
		l.sweep(now)
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &clientBucket{lim: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()
	return b.lim.AllowN(now, 1)
}

// sweep drops buckets idle for longer than the TTL. Caller holds mu.
func (l *clientLimiter) sweep(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.idle {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}

func (l *clientLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// rateLimit throttles mutating requests per actor, or per IP for anonymous callers.
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}
		key := c.ClientIP()
		if a := actorFrom(c); a.Authenticated() {
			key = "user:" + a.ID
		}
		if !s.limiter.allow(key) {
			abortWith(c, http.StatusTooManyRequests, "rate_limited", "Too many requests")
			return
		}
		c.Next()
	}
}
