package upload

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// PendingUpload tracks one chunked upload while it is in flight. It is
// created before the first chunk and dropped on completion, failure or
// cancellation. Thread-safe: use the provided methods to update state.
type PendingUpload struct {
	ID   string
	Path string // destination path
	Name string
	Size int64

	Progress float64 // 0.0 to 1.0
	Speed    float64 // bytes/sec, EMA smoothed
	Sent     int64

	CreatedAt time.Time
	StartedAt time.Time

	lastBytes      int64
	lastUpdateTime time.Time

	mu sync.RWMutex
}

func newPendingUpload(path, name string, size int64) *PendingUpload {
	return &PendingUpload{
		ID:        uuid.NewString(),
		Path:      path,
		Name:      name,
		Size:      size,
		CreatedAt: time.Now(),
	}
}

// GetProgress returns the current progress.
func (u *PendingUpload) GetProgress() float64 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.Progress
}

// recordSent stores the bytes sent so far and updates progress and speed.
func (u *PendingUpload) recordSent(sent int64) float64 {
	u.mu.Lock()
	defer u.mu.Unlock()

	now := time.Now()
	u.Sent = sent
	if u.Size > 0 {
		u.Progress = float64(sent) / float64(u.Size)
	}

	if u.lastBytes == 0 {
		u.StartedAt = now
		u.lastUpdateTime = now
		u.lastBytes = sent
		return u.Progress
	}

	if elapsed := now.Sub(u.lastUpdateTime).Seconds(); elapsed > 0.1 && sent > u.lastBytes {
		instant := float64(sent-u.lastBytes) / elapsed
		const alpha = 0.25
		if u.Speed > 0 {
			u.Speed = alpha*instant + (1-alpha)*u.Speed
		} else {
			u.Speed = instant
		}
		u.lastBytes = sent
		u.lastUpdateTime = now
	}
	return u.Progress
}

// Clone returns a copy safe to hand out.
func (u *PendingUpload) Clone() PendingUpload {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return PendingUpload{
		ID:        u.ID,
		Path:      u.Path,
		Name:      u.Name,
		Size:      u.Size,
		Progress:  u.Progress,
		Speed:     u.Speed,
		Sent:      u.Sent,
		CreatedAt: u.CreatedAt,
		StartedAt: u.StartedAt,
	}
}
