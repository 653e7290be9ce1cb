package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

const minIdleTTL = time.Minute

type userBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// UserRateLimiter keeps one token bucket per authenticated user. Buckets idle
// long enough to have refilled completely are dropped, since a new bucket
// behaves the same.
type UserRateLimiter struct {
	mu        sync.Mutex
	buckets   map[uint]*userBucket
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewUserRateLimiter(limit rate.Limit, burst int) *UserRateLimiter {
	return &UserRateLimiter{
		buckets: make(map[uint]*userBucket),
		limit:   limit,
		burst:   burst,
		idleTTL: refillTime(limit, burst),
		now:     time.Now,
	}
}

func refillTime(limit rate.Limit, burst int) time.Duration {
	if limit <= 0 || limit == rate.Inf {
		return minIdleTTL
	}
	d := time.Duration(float64(burst) / float64(limit) * float64(time.Second))
	if d < minIdleTTL {
		return minIdleTTL
	}
	return d
}

func (l *UserRateLimiter) limiter(userID uint) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idleTTL {
		l.sweep(now)
	}

	bucket, ok := l.buckets[userID]
	if !ok {
		bucket = &userBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[userID] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter
}

// sweep must be called with mu held.
func (l *UserRateLimiter) sweep(now time.Time) {
	for id, bucket := range l.buckets {
		if now.Sub(bucket.lastSeen) >= l.idleTTL {
			delete(l.buckets, id)
		}
	}
	l.lastSweep = now
}

func (l *UserRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Handler must run after AuthMiddleware.
func (l *UserRateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := UserID(c)
		if err != nil {
			return err
		}
		limiter := l.limiter(userID)
		if !limiter.Allow() {
			retry := 1
			if l.limit > 0 && l.limit < 1 {
				retry = int(math.Round(1 / float64(l.limit)))
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retry))
			return fiber.NewError(fiber.StatusTooManyRequests, "Too many payment requests, please slow down")
		}
		return c.Next()
	}
}
