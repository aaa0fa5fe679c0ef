package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiting configuration. A non-positive
// RequestsPerSecond disables limiting. Limiters unused for IdleTimeout are
// dropped; zero means defaultIdleTimeout.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	IdleTimeout       time.Duration
}

const defaultIdleTimeout = 10 * time.Minute

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
		IdleTimeout:       defaultIdleTimeout,
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterStore struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	cfg       RateLimitConfig
	now       func() time.Time
	lastSweep time.Time
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	return &limiterStore{
		limiters:  make(map[string]*limiterEntry),
		cfg:       cfg,
		now:       time.Now,
		lastSweep: time.Now(),
	}
}

func (s *limiterStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= s.cfg.IdleTimeout {
		s.sweep(now)
	}

	e, ok := s.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.BurstSize)}
		s.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// sweep drops limiters idle for at least IdleTimeout. Callers hold mu.
func (s *limiterStore) sweep(now time.Time) {
	for key, e := range s.limiters {
		if now.Sub(e.lastSeen) >= s.cfg.IdleTimeout {
			delete(s.limiters, key)
		}
	}
	s.lastSweep = now
}

func (s *limiterStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// RateLimit limits requests per client. Clients are keyed by the
// authenticated subject when present, otherwise by IP.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	if cfg.BurstSize < 1 {
		cfg.BurstSize = 1
	}
	store := newLimiterStore(cfg)
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if cfg.RequestsPerSecond <= 0 {
			return next
		}
		return func(c echo.Context) error {
			key := c.RealIP()
			if sub, ok := c.Get("auth_subject").(string); ok && sub != "" {
				key = "sub:" + sub
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limitHeader)

			r := store.get(key).Reserve()
			if delay := r.Delay(); delay > 0 {
				r.Cancel()
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
