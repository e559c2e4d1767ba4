// Package ratelimit throttles Contents API calls per notebook server with a
// token bucket. A 429 from the server pauses the bucket.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rescale/notebook-filetree/internal/constants"
)

// RateLimiter is a token bucket holding up to burst tokens and gaining rate
// tokens per second. The zero value is not usable; call NewRateLimiter.
type RateLimiter struct {
	mu sync.Mutex

	rate  float64
	burst float64

	level       float64
	stamp       time.Time
	pausedUntil time.Time
	warnedAt    time.Time
}

// NewRateLimiter returns a full bucket. A non-positive rate falls back to
// the Contents default.
func NewRateLimiter(rate, burst float64) *RateLimiter {
	if rate <= 0 {
		rate = constants.ContentsRatePerSec
	}
	burst = max(burst, 1)
	return &RateLimiter{rate: rate, burst: burst, level: burst, stamp: time.Now()}
}

// NewContentsRateLimiter sizes the burst for restoring a deeply expanded tree.
func NewContentsRateLimiter(rate float64) *RateLimiter {
	return NewRateLimiter(rate, constants.ContentsBurstCapacity)
}

// take consumes a token if one is ready. Otherwise it reports how long the
// caller should sleep before trying again.
func (rl *RateLimiter) take(now time.Time) (ok bool, retryIn time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Before(rl.pausedUntil) {
		return false, rl.pausedUntil.Sub(now)
	}

	rl.level = rl.levelAt(now)
	rl.stamp = now
	if rl.level >= 1 {
		rl.level--
		return true, 0
	}
	missing := 1 - rl.level
	return false, max(time.Duration(missing/rl.rate*float64(time.Second)), time.Millisecond)
}

// levelAt is the bucket level at now. Callers hold mu.
func (rl *RateLimiter) levelAt(now time.Time) float64 {
	return min(rl.burst, rl.level+now.Sub(rl.stamp).Seconds()*rl.rate)
}

// Wait blocks until a token is taken or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	ok, retryIn := rl.take(time.Now())
	if ok {
		return nil
	}
	rl.warn(retryIn)

	started := time.Now()
	timer := time.NewTimer(retryIn)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		if ok, retryIn = rl.take(time.Now()); ok {
			if waited := time.Since(started); waited > 5*time.Second {
				log.Debug().Dur("waited", waited).Msg("Rate limit wait completed")
			}
			return nil
		}
		timer.Reset(retryIn)
	}
}

// warn logs long waits, at most once per warning interval.
func (rl *RateLimiter) warn(wait time.Duration) {
	if wait <= constants.RateLimitWarningThreshold {
		return
	}
	rl.mu.Lock()
	due := time.Since(rl.warnedAt) > constants.RateLimitWarningInterval
	if due {
		rl.warnedAt = time.Now()
	}
	rl.mu.Unlock()

	if due {
		log.Warn().Dur("wait", wait).Msg("Rate limited, waiting for server capacity")
	}
}

// Drain empties the bucket and pauses it for d. A shorter pause never cuts
// an existing one.
func (rl *RateLimiter) Drain(d time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.level, rl.stamp = 0, now
	if until := now.Add(d); until.After(rl.pausedUntil) {
		rl.pausedUntil = until
	}
}

// Available returns the tokens ready right now.
func (rl *RateLimiter) Available() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.levelAt(time.Now())
}
