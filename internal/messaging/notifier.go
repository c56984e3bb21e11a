package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/posflow/internal/domain"
)

const (
	DefaultNotifierBuffer = 256

	publishTimeout = 5 * time.Second
)

type EventWriter interface {
	Publish(ctx context.Context, key string, event any) error
}

type envelope struct {
	ctx   context.Context
	event domain.OrderCompletedEvent
}

// Notifier hands completed-order events to a background writer. Publish never
// blocks: when the buffer is full the event is dropped and counted. Delivery
// is not acknowledged to the caller.
type Notifier struct {
	writer EventWriter
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	inbox  chan envelope
	done   chan struct{}
	start  sync.Once

	dropped   metric.Int64Counter
	published metric.Int64Counter
}

func NewNotifier(writer EventWriter, buffer int, logger *slog.Logger) (*Notifier, error) {
	if buffer <= 0 {
		buffer = DefaultNotifierBuffer
	}

	meter := otel.Meter("pos/messaging")

	dropped, err := meter.Int64Counter("pos.notifier.dropped",
		metric.WithDescription("Completed-order events dropped before reaching the broker"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	published, err := meter.Int64Counter("pos.notifier.published",
		metric.WithDescription("Completed-order events written to the broker"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	return &Notifier{
		writer:    writer,
		logger:    logger,
		inbox:     make(chan envelope, buffer),
		done:      make(chan struct{}),
		dropped:   dropped,
		published: published,
	}, nil
}

// Start launches the writer loop. It runs until Close.
func (n *Notifier) Start() {
	n.start.Do(func() {
		go n.run()
	})
}

func (n *Notifier) run() {
	defer close(n.done)

	for env := range n.inbox {
		ctx, cancel := context.WithTimeout(env.ctx, publishTimeout)
		err := n.writer.Publish(ctx, env.event.OrderID, env.event)
		cancel()

		if err != nil {
			n.dropped.Add(context.Background(), 1)
			n.logger.Error("failed to publish order completed event",
				"error", err,
				"event_id", env.event.EventID,
				"order_id", env.event.OrderID,
			)
			continue
		}

		n.published.Add(context.Background(), 1)
		n.logger.Debug("order completed event published", "event_id", env.event.EventID, "order_id", env.event.OrderID)
	}
}

func (n *Notifier) Publish(ctx context.Context, event domain.OrderCompletedEvent) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		n.drop(event, "notifier closed")
		return
	}

	select {
	case n.inbox <- envelope{ctx: context.WithoutCancel(ctx), event: event}:
	default:
		n.drop(event, "buffer full")
	}
}

func (n *Notifier) drop(event domain.OrderCompletedEvent, reason string) {
	n.dropped.Add(context.Background(), 1)
	n.logger.Warn("order completed event dropped",
		"reason", reason,
		"event_id", event.EventID,
		"order_id", event.OrderID,
	)
}

// Close stops accepting events and waits until the buffered ones are flushed
// or ctx expires.
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.inbox)
	}
	n.mu.Unlock()

	n.Start()

	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
