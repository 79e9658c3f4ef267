package security

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultRateLimitMaxEntries bounds the number of callers tracked at once.
	DefaultRateLimitMaxEntries = 10000

	defaultRateLimitCleanupInterval = 5 * time.Minute
	defaultRateLimitIdleTimeout     = 30 * time.Minute
)

// callerBucket is the token bucket for one caller
type callerBucket struct {
	caller     string
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter throttles grant attempts per caller with a token bucket and
// bounds memory with LRU eviction.
type RateLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*list.Element
	lru        *list.List // of *callerBucket, most recent at front
	limit      rate.Limit
	burst      int
	maxEntries int
	clock      Clock
	logger     *slog.Logger

	stopCleanup chan struct{}
	stopOnce    sync.Once

	evictions int64
	cleanups  int64
}

// RateLimiterConfig configures a RateLimiter.
type RateLimiterConfig struct {
	// RequestsPerSecond is the sustained attempt rate per caller.
	RequestsPerSecond float64

	// Burst is the number of attempts a caller may make back to back.
	Burst int

	// MaxEntries bounds tracked callers (default 10000, 0 in config means default).
	MaxEntries int

	// CleanupInterval is how often idle callers are dropped (default 5m).
	// A negative value disables the background loop.
	CleanupInterval time.Duration

	Clock  Clock
	Logger *slog.Logger
}

// NewRateLimiter creates a limiter allowing requestsPerSecond with the given burst.
func NewRateLimiter(requestsPerSecond float64, burst int, logger *slog.Logger) *RateLimiter {
	return NewRateLimiterWithConfig(RateLimiterConfig{
		RequestsPerSecond: requestsPerSecond,
		Burst:             burst,
		Logger:            logger,
	})
}

// NewRateLimiterWithConfig creates a limiter and starts its cleanup loop.
func NewRateLimiterWithConfig(cfg RateLimiterConfig) *RateLimiter {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultRateLimitMaxEntries
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = defaultRateLimitCleanupInterval
	}

	rl := &RateLimiter{
		buckets:     make(map[string]*list.Element),
		lru:         list.New(),
		limit:       rate.Limit(cfg.RequestsPerSecond),
		burst:       cfg.Burst,
		maxEntries:  cfg.MaxEntries,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		stopCleanup: make(chan struct{}),
	}

	if cfg.CleanupInterval > 0 {
		go rl.cleanupLoop(cfg.CleanupInterval)
	}

	return rl
}

// Allow reports whether caller may make another attempt now.
func (rl *RateLimiter) Allow(caller string) bool {
	now := rl.clock.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if elem, ok := rl.buckets[caller]; ok {
		rl.lru.MoveToFront(elem)
		b := elem.Value.(*callerBucket)
		b.lastAccess = now
		return b.limiter.AllowN(now, 1)
	}

	if len(rl.buckets) >= rl.maxEntries {
		rl.evictOldest()
	}

	b := &callerBucket{
		caller:     caller,
		limiter:    rate.NewLimiter(rl.limit, rl.burst),
		lastAccess: now,
	}
	rl.buckets[caller] = rl.lru.PushFront(b)

	return b.limiter.AllowN(now, 1)
}

// evictOldest drops the least recently used caller. Caller holds rl.mu.
func (rl *RateLimiter) evictOldest() {
	elem := rl.lru.Back()
	if elem == nil {
		return
	}
	b := elem.Value.(*callerBucket)
	delete(rl.buckets, b.caller)
	rl.lru.Remove(elem)
	rl.evictions++

	rl.logger.Debug("Rate limiter LRU eviction",
		"total_evictions", rl.evictions,
		"current_entries", len(rl.buckets))
}

func (rl *RateLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup(defaultRateLimitIdleTimeout)
		case <-rl.stopCleanup:
			return
		}
	}
}

// Cleanup drops callers idle for longer than maxIdle.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) {
	now := rl.clock.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	// Idle callers collect at the back of the list.
	for elem := rl.lru.Back(); elem != nil; {
		b := elem.Value.(*callerBucket)
		if now.Sub(b.lastAccess) <= maxIdle {
			break
		}
		prev := elem.Prev()
		delete(rl.buckets, b.caller)
		rl.lru.Remove(elem)
		removed++
		elem = prev
	}

	if removed > 0 {
		rl.cleanups++
		rl.logger.Debug("Rate limiter cleanup completed",
			"removed", removed,
			"remaining", len(rl.buckets))
	}
}

// Stop stops the cleanup loop. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

// Stats holds rate limiter statistics for monitoring
type Stats struct {
	CurrentEntries int
	MaxEntries     int
	TotalEvictions int64
	TotalCleanups  int64
	MemoryPressure float64 // percentage of MaxEntries in use
}

// GetStats returns current rate limiter statistics.
func (rl *RateLimiter) GetStats() Stats {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return Stats{
		CurrentEntries: len(rl.buckets),
		MaxEntries:     rl.maxEntries,
		TotalEvictions: rl.evictions,
		TotalCleanups:  rl.cleanups,
		MemoryPressure: float64(len(rl.buckets)) / float64(rl.maxEntries) * 100.0,
	}
}
