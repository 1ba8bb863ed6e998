// Package dedupe defines the at-most-once gate for capture processing.
package dedupe

import (
	"context"
	"sync"
)

// Deduper records processed capture ids to ensure at-most-once processing.
type Deduper interface {
	// SeenAndRecord atomically checks if id was already processed and records
	// it if not. Returns true if id was seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id int64) bool

	// Last returns the highest id recorded so far.
	Last() int64
}

// watermark implements Deduper for ids that arrive in ascending order. Only
// the highest id is kept: anything at or below it counts as seen, so memory
// stays constant no matter how many captures are processed.
type watermark struct {
	mu   sync.Mutex
	last int64
}

// NewWatermark creates a watermark deduper with configuration options.
func NewWatermark(opts ...Option) Deduper {
	w := &watermark{}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// SeenAndRecord reports id <= Last() as seen; otherwise it advances the
// watermark to id.
func (w *watermark) SeenAndRecord(_ context.Context, id int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if id <= w.last {
		return true
	}
	w.last = id
	return false
}

// Last returns the current watermark.
func (w *watermark) Last() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}
