package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/metrics"
)

// Event is anything the collector can publish.
type Event interface {
	Key() string
}

// Recorder receives analytics events. Track must not block.
type Recorder interface {
	Track(event Event)
}

// Recorders fans an event out to several recorders.
type Recorders []Recorder

func (rs Recorders) Track(event Event) {
	for _, r := range rs {
		r.Track(event)
	}
}

type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

type CollectorOptions struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	Metrics       *metrics.Metrics
}

// Collector buffers events in a channel and publishes them in batches, when
// a batch fills up or when the flush interval elapses. Events are dropped
// when the buffer is full.
type Collector struct {
	publisher     Publisher
	eventCh       chan Event
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	done          chan struct{}
	dropped       atomic.Int64
	metrics       *metrics.Metrics

	closeMu sync.RWMutex
	closed  bool
}

func NewCollector(publisher Publisher, opts CollectorOptions) *Collector {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 10000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
	}
	return &Collector{
		publisher:     publisher,
		eventCh:       make(chan Event, opts.BufferSize),
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
		metrics:       opts.Metrics,
	}
}

func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()

		batch := make([]kafka.Event, 0, c.batchSize)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					c.finalFlush(batch)
					return
				}
				batch = append(batch, kafka.Event{Key: event.Key(), Value: event})
				if len(batch) >= c.batchSize {
					batch = c.flush(ctx, batch)
				}
			case <-ticker.C:
				batch = c.flush(ctx, batch)
			case <-ctx.Done():
				c.finalFlush(c.drainInto(batch))
				return
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

func (c *Collector) Track(event Event) {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.drop(1)
		c.logger.Warn("analytics event dropped (buffer full)", "key", event.Key())
	}
}

// Dropped is the number of events discarded because the buffer was full.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

func (c *Collector) drop(n int) {
	c.dropped.Add(int64(n))
	if c.metrics != nil {
		c.metrics.AnalyticsDropped.Add(float64(n))
	}
}

// Close stops accepting events and waits for the publish loop to finish.
// Start must have been called.
func (c *Collector) Close() {
	c.closeMu.Lock()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
	c.closeMu.Unlock()
	<-c.done
}

// flush publishes batch and returns the buffer to keep filling. A failed
// batch is kept for the next attempt, up to three batches worth.
func (c *Collector) flush(ctx context.Context, batch []kafka.Event) []kafka.Event {
	if len(batch) == 0 {
		return batch
	}
	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("batch flush failed",
			"batch_size", len(batch),
			"error", err,
		)
		if limit := c.batchSize * 3; len(batch) > limit {
			dropped := len(batch) - limit
			batch = batch[dropped:]
			c.drop(dropped)
			c.logger.Warn("buffer overflow, events dropped", "dropped", dropped)
		}
		return batch
	}
	c.logger.Debug("batch flushed", "events", len(batch))
	return make([]kafka.Event, 0, c.batchSize)
}

func (c *Collector) drainInto(batch []kafka.Event) []kafka.Event {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return batch
			}
			batch = append(batch, kafka.Event{Key: event.Key(), Value: event})
		default:
			return batch
		}
	}
}

func (c *Collector) finalFlush(batch []kafka.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if rest := c.flush(ctx, batch); len(rest) > 0 {
		c.logger.Error("failed to publish remaining events", "events", len(rest))
	}
}
