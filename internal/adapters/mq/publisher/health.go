package publisher

import (
	"context"
	"sync"

	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/types"
	"github.com/Tknika/ctf-gameserver-mqtt/pkg/logger"
	"github.com/Tknika/ctf-gameserver-mqtt/pkg/metrics"
)

// Tracked wraps a Publisher and turns unhealthy after threshold consecutive
// failures. One success makes it healthy again.
type Tracked struct {
	next      Publisher
	threshold int
	logger    logger.Logger

	mu          sync.RWMutex
	consecutive int
	published   int64
	failed      int64
}

// NewTracked wraps next. A threshold below 1 uses DefaultThreshold.
func NewTracked(next Publisher, threshold int) *Tracked {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	return &Tracked{
		next:      next,
		threshold: threshold,
		logger:    logger.Get().Named("publisher-health"),
	}
}

// Publish implements Publisher.
func (t *Tracked) Publish(ctx context.Context, status types.Status) error {
	err := t.next.Publish(ctx, status)

	t.mu.Lock()
	defer t.mu.Unlock()

	if err == nil {
		t.published++
		if t.consecutive >= t.threshold {
			t.logger.Info(ctx, "publisher recovered", logger.Int("after_failures", t.consecutive))
		}
		t.consecutive = 0
		metrics.UpdatePublisherHealth(0, true)
		return nil
	}

	t.failed++
	t.consecutive++
	metrics.RecordPublishFailure()
	metrics.UpdatePublisherHealth(t.consecutive, t.consecutive < t.threshold)
	if t.consecutive == t.threshold {
		t.logger.Error(ctx, "publisher unhealthy",
			logger.Int("consecutive_failures", t.consecutive),
			logger.Error(err))
	}
	return err
}

// Healthy reports whether consecutive failures are below the threshold.
func (t *Tracked) Healthy() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.consecutive < t.threshold
}

// ConsecutiveFailures returns failures since the last success.
func (t *Tracked) ConsecutiveFailures() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.consecutive
}

// Counts returns how many events were delivered and how many failed.
func (t *Tracked) Counts() (published, failed int64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.published, t.failed
}
