package nlp

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// tokenBucket limits outgoing classification calls per minute.
type tokenBucket struct {
	stopCh   chan struct{}
	tokens   int
	capacity int
	mu       sync.Mutex
	stopOnce sync.Once
}

// newTokenBucket starts a bucket that refills evenly across each minute.
func newTokenBucket(perMinute int) *tokenBucket {
	if perMinute <= 0 {
		perMinute = 120
	}

	b := &tokenBucket{
		tokens:   perMinute,
		capacity: perMinute,
		stopCh:   make(chan struct{}),
	}
	go b.refill(time.Minute / time.Duration(perMinute))
	return b
}

// wait blocks until a token is available or ctx ends.
func (b *tokenBucket) wait(ctx context.Context) error {
	if b.take() {
		return nil
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for rate limit: %w", ctx.Err())
		case <-ticker.C:
			if b.take() {
				return nil
			}
		}
	}
}

func (b *tokenBucket) take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tokens == 0 {
		return false
	}
	b.tokens--
	return true
}

func (b *tokenBucket) refill(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.mu.Lock()
			if b.tokens < b.capacity {
				b.tokens++
			}
			b.mu.Unlock()
		}
	}
}

func (b *tokenBucket) available() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

// stop ends the refill goroutine.
func (b *tokenBucket) stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}
