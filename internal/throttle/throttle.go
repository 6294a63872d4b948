package throttle

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dgnsrekt/docweave/internal/frontier"
)

// Controller paces requests per domain. Each domain gets its own limiter;
// the interval between two requests to the same domain is a random value
// in [MinDelay, MaxDelay], raised to the robots crawl-delay when the origin
// asks for more. The first request to a domain is not delayed.
type Controller struct {
	minDelay time.Duration
	maxDelay time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewController(minDelay, maxDelay time.Duration) *Controller {
	if minDelay < 0 {
		minDelay = 0
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Controller{
		minDelay: minDelay,
		maxDelay: maxDelay,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the caller may issue the next request to pageURL's
// domain. It returns how long it actually waited. Cancelling ctx aborts
// the wait with the context's error.
func (c *Controller) Wait(ctx context.Context, pageURL string, robotsDelay time.Duration) (time.Duration, error) {
	interval := c.nextInterval(robotsDelay)
	limiter := c.limiterFor(frontier.DomainKey(pageURL), interval)

	// Re-arm the pace for this pass; earlier reservations keep their slots.
	limiter.SetLimit(limitFor(interval))

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return time.Since(start), err
	}
	return time.Since(start), nil
}

func (c *Controller) nextInterval(robotsDelay time.Duration) time.Duration {
	interval := c.minDelay
	if span := c.maxDelay - c.minDelay; span > 0 {
		interval += time.Duration(rand.Int63n(int64(span)))
	}
	if robotsDelay > interval {
		interval = robotsDelay
	}
	return interval
}

func (c *Controller) limiterFor(domain string, interval time.Duration) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	limiter, ok := c.limiters[domain]
	if !ok {
		limiter = rate.NewLimiter(limitFor(interval), 1)
		c.limiters[domain] = limiter
	}
	return limiter
}

func limitFor(interval time.Duration) rate.Limit {
	if interval <= 0 {
		return rate.Inf
	}
	return rate.Every(interval)
}
