package daemon

import (
	"context"

	"github.com/ry-diffusion/Tina/internal/bus"
	"github.com/ry-diffusion/Tina/internal/status"
	"github.com/ry-diffusion/Tina/internal/worker"
	"go.uber.org/zap"
)

// relay feeds pipeline events to the status registry and then to bus
// watchers, in order. It returns when events is closed or ctx is done.
func relay(ctx context.Context, events <-chan worker.Event, registry *status.Registry, b *bus.Bus, logger *zap.Logger) {
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := registry.Apply(ctx, evt); err != nil {
				logger.Debug("status not updated", zap.String("kind", evt.Kind), zap.String("account_id", evt.AccountID), zap.Error(err))
			}
			if err := b.Publish(ctx, bus.Event{Kind: evt.Kind, Timestamp: evt.Timestamp, Payload: evt}); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
