package core

// upload_limiter.go bounds how many sessions may be submitting batches at
// the same time. Each session already keeps a single batch in flight; the
// limiter caps the total load all sessions put on the pharmacy API.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyUploads is returned when no upload slot frees up within the
// limiter's wait time.
var ErrTooManyUploads = errors.New("too many concurrent uploads, please try again later")

const (
	DefaultMaxConcurrentUploads = 5
	DefaultMaxWaitTime          = 30 * time.Second
)

// UploadLimiter is a counting semaphore over running session uploads.
type UploadLimiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu      sync.Mutex
	active  int
	drained chan struct{} // closed whenever active drops to zero
}

// NewUploadLimiter allows at most maxConcurrent uploads; callers wait up to
// maxWait for a slot.
func NewUploadLimiter(maxConcurrent int, maxWait time.Duration) *UploadLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentUploads
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	drained := make(chan struct{})
	close(drained)
	return &UploadLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
		drained: drained,
	}
}

// Acquire takes a slot, waiting at most the configured time. Every nil
// return must be paired with one Release.
func (l *UploadLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyUploads
	}
}

// TryAcquire takes a slot only if one is free right now.
func (l *UploadLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		l.inc()
		return true
	default:
		return false
	}
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *UploadLimiter) Release() {
	l.mu.Lock()
	l.active--
	if l.active == 0 {
		close(l.drained)
	}
	l.mu.Unlock()
	<-l.slots
}

func (l *UploadLimiter) inc() {
	l.mu.Lock()
	if l.active == 0 {
		l.drained = make(chan struct{})
	}
	l.active++
	l.mu.Unlock()
}

// ActiveCount returns the number of uploads holding a slot.
func (l *UploadLimiter) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// MaxConcurrent returns the slot count.
func (l *UploadLimiter) MaxConcurrent() int { return cap(l.slots) }

// Available returns the number of free slots.
func (l *UploadLimiter) Available() int { return cap(l.slots) - len(l.slots) }

// WaitForDrain blocks until no upload holds a slot or ctx is done. Used on
// shutdown so running imports can finish their remaining batches.
func (l *UploadLimiter) WaitForDrain(ctx context.Context) error {
	for {
		l.mu.Lock()
		if l.active == 0 {
			l.mu.Unlock()
			return nil
		}
		drained := l.drained
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-drained:
		}
	}
}

// UploadLimiterStatus is reported by the status endpoint.
type UploadLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"maxConcurrent"`
}

// Status returns the current limiter state.
func (l *UploadLimiter) Status() UploadLimiterStatus {
	return UploadLimiterStatus{
		Active:        l.ActiveCount(),
		Available:     l.Available(),
		MaxConcurrent: l.MaxConcurrent(),
	}
}
