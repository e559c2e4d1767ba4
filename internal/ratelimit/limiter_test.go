package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func takeN(rl *RateLimiter, n int) int {
	got := 0
	for i := 0; i < n; i++ {
		if ok, _ := rl.take(time.Now()); ok {
			got++
		}
	}
	return got
}

func TestBurst(t *testing.T) {
	tests := []struct {
		name  string
		rate  float64
		burst float64
		want  int
	}{
		{"five", 1, 5, 5},
		{"burst below one", 1, 0, 1},
		{"default rate", 0, 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := NewRateLimiter(tt.rate, tt.burst)
			if got := takeN(rl, tt.want+2); got != tt.want {
				t.Errorf("took %d tokens, want %d", got, tt.want)
			}
		})
	}
}

func TestTakeReportsRetry(t *testing.T) {
	rl := NewRateLimiter(10, 1)
	takeN(rl, 1)

	ok, retryIn := rl.take(time.Now())
	if ok {
		t.Fatal("take succeeded on an empty bucket")
	}
	if retryIn < 50*time.Millisecond || retryIn > 110*time.Millisecond {
		t.Errorf("retryIn = %v, want about 100ms", retryIn)
	}
}

func TestRefillIsCapped(t *testing.T) {
	rl := NewRateLimiter(10, 10)
	takeN(rl, 10)

	time.Sleep(200 * time.Millisecond)
	if got := rl.Available(); got < 1.5 || got > 3 {
		t.Errorf("Available() = %.2f after 200ms at 10/s, want about 2", got)
	}

	full := NewRateLimiter(100, 5)
	time.Sleep(50 * time.Millisecond)
	if got := full.Available(); got > 5 {
		t.Errorf("Available() = %.2f, want at most 5", got)
	}
}

func TestWait(t *testing.T) {
	rl := NewRateLimiter(10, 1)
	takeN(rl, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond || elapsed > 300*time.Millisecond {
		t.Errorf("Wait took %v, want about 100ms", elapsed)
	}
}

func TestWaitContextDone(t *testing.T) {
	rl := NewRateLimiter(0.1, 1)
	takeN(rl, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := rl.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestDrain(t *testing.T) {
	rl := NewRateLimiter(1000, 100)
	rl.Drain(150 * time.Millisecond)

	if got := takeN(rl, 1); got != 0 {
		t.Fatal("token taken while drained")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	start := time.Now()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("Wait after Drain returned in %v", elapsed)
	}
}

func TestDrainKeepsLongerPause(t *testing.T) {
	rl := NewRateLimiter(1000, 10)
	rl.Drain(time.Second)
	rl.Drain(time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	if got := takeN(rl, 1); got != 0 {
		t.Error("a shorter Drain cut the pause")
	}
}

func TestWaitConcurrent(t *testing.T) {
	rl := NewRateLimiter(1000, 50)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				if err := rl.Wait(ctx); err != nil {
					t.Errorf("Wait: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestLimiterStoreKeys(t *testing.T) {
	s := NewLimiterStore()

	a := s.GetLimiter("http://hub:8888/", "tok", 5)
	b := s.GetLimiter("HTTP://hub:8888", "tok", 5)
	c := s.GetLimiter("http://hub:8888", "other", 5)

	if a != b {
		t.Error("same server and token got different limiters")
	}
	if a == c {
		t.Error("different tokens share a limiter")
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
	if GlobalStore() != GlobalStore() {
		t.Error("GlobalStore is not shared")
	}
}
