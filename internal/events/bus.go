// internal/events/bus.go
package events

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Bus is the many-to-one progress stream between the swap runners and the
// single consumer that renders and aggregates progress.
//
// Delivery guarantees:
//   - per-wallet FIFO (each wallet has a single publishing goroutine and the
//     bus is one channel);
//   - terminal and retry events are never dropped: when the buffer is full
//     the publisher blocks until the consumer drains;
//   - other events are dropped under saturation so a slow renderer never
//     stalls execution.
//
// Close must be called after every publisher has finished; the consumer then
// sees the channel closed once all buffered events are drained, which is what
// lets the aggregator finalize with every terminal event accounted for.
type Bus struct {
	ch      chan Event
	logger  *zap.Logger
	dropped atomic.Uint64
}

// NewBus creates a bus with the given buffer size.
func NewBus(logger *zap.Logger, bufferSize int) *Bus {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Bus{
		ch:     make(chan Event, bufferSize),
		logger: logger.Named("progress_bus"),
	}
}

// Publish enqueues an event. Terminal and retry events block on a full
// buffer; the rest are dropped with a counter bump.
func (b *Bus) Publish(ev Event) {
	if ev.Type.Terminal() || ev.Type == RetryScheduled {
		b.ch <- ev
		return
	}
	select {
	case b.ch <- ev:
	default:
		b.dropped.Add(1)
		b.logger.Debug("Bus saturated, dropping progress event",
			zap.String("event_type", string(ev.Type)),
			zap.Int("wallet_index", ev.WalletIndex))
	}
}

// Events returns the consumer side of the stream.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Close ends the stream. Publishing after Close panics; callers close only
// once every runner has reached a terminal state.
func (b *Bus) Close() {
	close(b.ch)
	if n := b.dropped.Load(); n > 0 {
		b.logger.Debug("Progress events dropped during run", zap.Uint64("count", n))
	}
}

// Dropped reports how many non-terminal events were discarded.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
