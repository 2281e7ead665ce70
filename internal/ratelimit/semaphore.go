package ratelimit

import "context"

// Semaphore caps the number of concurrently outstanding operations.
// Unlike Limiter it bounds in-flight work rather than request rate; the
// two are composed for external API calls.
type Semaphore struct {
	permits chan struct{}
}

// NewSemaphore creates a semaphore with the given number of permits.
func NewSemaphore(limit int) *Semaphore {
	if limit <= 0 {
		limit = 1
	}
	return &Semaphore{permits: make(chan struct{}, limit)}
}

// Acquire blocks until a permit is available or the context is cancelled.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.permits <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a permit. Must be called exactly once per successful Acquire.
func (s *Semaphore) Release() {
	<-s.permits
}
