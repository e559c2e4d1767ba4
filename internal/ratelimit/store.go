package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
)

// LimiterStore shares one RateLimiter per (server, token) pair, so the CLI,
// the watch loop and the HTTP sidecar in one process draw from one bucket.
type LimiterStore struct {
	mu       sync.Mutex
	limiters map[string]*RateLimiter
}

var (
	globalStore     *LimiterStore
	globalStoreOnce sync.Once
)

// NewLimiterStore creates an empty store.
func NewLimiterStore() *LimiterStore {
	return &LimiterStore{limiters: make(map[string]*RateLimiter)}
}

// GlobalStore returns the process-wide store.
func GlobalStore() *LimiterStore {
	globalStoreOnce.Do(func() {
		globalStore = NewLimiterStore()
	})
	return globalStore
}

// GetLimiter returns the limiter for serverURL and token, creating it with
// rate tokens/second on first use.
func (s *LimiterStore) GetLimiter(serverURL, token string, rate float64) *RateLimiter {
	key := s.makeKey(serverURL, token)

	s.mu.Lock()
	defer s.mu.Unlock()

	if rl, ok := s.limiters[key]; ok {
		return rl
	}
	rl := NewContentsRateLimiter(rate)
	s.limiters[key] = rl
	return rl
}

// Len returns the number of distinct limiters.
func (s *LimiterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// The token is hashed so it never sits in a map key in clear text.
func (s *LimiterStore) makeKey(serverURL, token string) string {
	sum := sha256.Sum256([]byte(token))
	return strings.TrimRight(strings.ToLower(serverURL), "/") + "|" + hex.EncodeToString(sum[:8])
}
