// internal/events/renderer.go
package events

import (
	"go.uber.org/zap"
)

// Renderer is the single bus consumer's display half: it turns lifecycle
// events into structured log lines. Repeated retry announcements for the
// same wallet attempt are coalesced; terminal events always print.
type Renderer struct {
	logger    *zap.Logger
	lastRetry map[int]int // wallet index -> last logged attempt
}

// NewRenderer creates a renderer writing to the given logger.
func NewRenderer(logger *zap.Logger) *Renderer {
	return &Renderer{
		logger:    logger.Named("progress"),
		lastRetry: make(map[int]int),
	}
}

// Render displays one event.
func (r *Renderer) Render(ev Event) {
	fields := []zap.Field{
		zap.String("event", string(ev.Type)),
	}
	if ev.WalletIndex >= 0 {
		fields = append(fields, zap.Int("wallet", ev.WalletIndex))
	}
	if ev.Attempt > 0 {
		fields = append(fields, zap.Int("attempt", ev.Attempt))
	}
	if ev.Detail != "" {
		fields = append(fields, zap.String("detail", ev.Detail))
	}

	switch ev.Type {
	case RetryScheduled:
		if r.lastRetry[ev.WalletIndex] == ev.Attempt {
			return
		}
		r.lastRetry[ev.WalletIndex] = ev.Attempt
		r.logger.Warn("Retry scheduled",
			append(fields,
				zap.Duration("delay", ev.Delay),
				zap.String("reason", ev.Reason))...)
	case Failed:
		r.logger.Error("Swap failed", append(fields, zap.String("reason", ev.Reason))...)
	case Skipped:
		r.logger.Info("Swap skipped", append(fields, zap.String("reason", ev.Reason))...)
	case Verified:
		r.logger.Info("Swap verified", fields...)
	case RunStarted, RunFinished, BatchStarted:
		r.logger.Info("Run progress", fields...)
	default:
		r.logger.Debug("Swap progress", fields...)
	}
}
