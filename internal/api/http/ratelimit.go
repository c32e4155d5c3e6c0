package httpapi

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

// ownerLimiter applies a token bucket per owner and periodically evicts idle entries.
type ownerLimiter struct {
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
	byOwner map[string]*limiterEntry
	hits    uint64
	idleTTL time.Duration
	now     func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newOwnerLimiter returns nil, meaning unlimited, when rps or burst is not positive.
func newOwnerLimiter(rps float64, burst int) *ownerLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	return &ownerLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		byOwner: make(map[string]*limiterEntry),
		idleTTL: 10 * time.Minute,
		now:     time.Now,
	}
}

func (l *ownerLimiter) allow(owner string) bool {
	if l == nil || owner == "" {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byOwner[owner]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byOwner[owner] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byOwner {
			if v.lastSeen.Before(cutoff) {
				delete(l.byOwner, k)
			}
		}
	}
	return allowed
}

// middleware must run after RequireAuth.
func (l *ownerLimiter) middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !l.allow(ownerID(c)) {
			return fiber.NewError(fiber.StatusTooManyRequests, "rate limit exceeded")
		}
		return c.Next()
	}
}
