// Package ratelimit paces work per key. The browser runner uses it to pace
// UI actions per target host; the fixture site uses it to throttle writes per
// client.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config defines the pacing for every key.
type Config struct {
	RPS             float64       // Events per second; zero or less means unlimited
	Burst           int           // Burst size; raised to 1 when smaller
	CleanupInterval time.Duration // How often idle keys are forgotten
}

// DefaultConfig is unlimited with hourly cleanup.
var DefaultConfig = Config{
	RPS:             0,
	Burst:           1,
	CleanupInterval: time.Hour,
}

type entry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// Limiter manages one token bucket per key.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	config   Config

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Limiter and starts its cleanup goroutine.
func New(config Config) *Limiter {
	if config.Burst < 1 {
		config.Burst = 1
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultConfig.CleanupInterval
	}
	l := &Limiter{
		limiters: make(map[string]*entry),
		config:   config,
		stopCh:   make(chan struct{}),
	}
	l.wg.Add(1)
	go l.cleanupLoop()
	return l
}

// Unlimited reports whether the limiter never delays.
func (l *Limiter) Unlimited() bool {
	return l.config.RPS <= 0
}

// Get returns the bucket for key, creating it if necessary.
func (l *Limiter) Get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.limiters[key]; ok {
		e.lastUsed = time.Now()
		return e.limiter
	}
	limit := rate.Inf
	if l.config.RPS > 0 {
		limit = rate.Limit(l.config.RPS)
	}
	e := &entry{limiter: rate.NewLimiter(limit, l.config.Burst), lastUsed: time.Now()}
	l.limiters[key] = e
	return e.limiter
}

// Wait blocks until an event for key is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.Get(key).Wait(ctx)
}

// Allow reports whether an event for key may happen now.
func (l *Limiter) Allow(key string) bool {
	return l.Get(key).Allow()
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Cleanup forgets keys idle for longer than the cleanup interval.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-l.config.CleanupInterval)
	for key, e := range l.limiters {
		if e.lastUsed.Before(cutoff) {
			delete(l.limiters, key)
		}
	}
}

func (l *Limiter) cleanupLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Cleanup()
		case <-l.stopCh:
			return
		}
	}
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()
}
