package analytics

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/kafka"
)

// Collector buffers expansion lookup events in a channel and publishes
// them to Kafka from a background goroutine. Track never blocks the
// request path; events are dropped when the buffer is full. Messages are
// keyed by query key so per-query event order survives partitioning.
type Collector struct {
	producer *kafka.Producer
	eventCh  chan ExpandEvent
	dropped  atomic.Int64
	logger   *slog.Logger
	done     chan struct{}
}

func NewCollector(producer *kafka.Producer, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		producer: producer,
		eventCh:  make(chan ExpandEvent, bufferSize),
		logger:   slog.Default().With("component", "analytics-collector"),
		done:     make(chan struct{}),
	}
}

// Start launches the publish loop. It returns immediately; the loop runs
// until ctx is cancelled or Close is called, whichever comes first.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				c.publish(ctx, event)
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

// Track enqueues one lookup event. Full buffer drops the event and counts
// the drop instead of stalling the caller.
func (c *Collector) Track(event ExpandEvent) {
	select {
	case c.eventCh <- event:
	default:
		if n := c.dropped.Add(1); n == 1 || n%1000 == 0 {
			c.logger.Warn("analytics events dropped, buffer full", "total_dropped", n)
		}
	}
}

// Close stops accepting events and waits for the publish loop to drain.
// Callers must not Track after Close.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
	if n := c.dropped.Load(); n > 0 {
		c.logger.Warn("analytics collector closed with dropped events", "total_dropped", n)
	}
}

func (c *Collector) publish(ctx context.Context, event ExpandEvent) {
	key := event.QueryKey
	if key == "" {
		key = "expansion"
	}
	if err := c.producer.Publish(ctx, kafka.Event{Key: key, Value: event}); err != nil {
		c.logger.Error("failed to publish analytics event",
			"query_key", event.QueryKey,
			"error", err,
		)
	}
}

func (c *Collector) drainRemaining() {
	ctx := context.Background()
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.publish(ctx, event)
		default:
			return
		}
	}
}
