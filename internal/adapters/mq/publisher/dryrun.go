package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/types"
	"github.com/Tknika/ctf-gameserver-mqtt/pkg/logger"
)

// DryRun logs payloads instead of sending them.
type DryRun struct {
	logger logger.Logger
}

// NewDryRun creates a DryRun publisher writing to l, or the global logger
// when l is nil.
func NewDryRun(l logger.Logger) *DryRun {
	if l == nil {
		l = logger.Get().Named("dry-run")
	}
	return &DryRun{logger: l}
}

// Publish implements Publisher.
func (d *DryRun) Publish(ctx context.Context, status types.Status) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}
	d.logger.Info(ctx, "status event", logger.String("type", status.Type), logger.String("payload", string(payload)))
	return nil
}
