// Package alerting is the stand-in for the external alerting collaborator. It
// consumes completed-order events and forwards a chime to the alert sink.
package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/posflow/internal/domain"
)

const (
	keyAlertSeen = "pos:alert:seen:%s"

	DefaultDedupTTL = 24 * time.Hour
)

type Deduper interface {
	// Claim reports whether eventID was seen for the first time.
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type RedisDeduper struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &RedisDeduper{rdb: rdb, ttl: ttl}
}

func (d *RedisDeduper) Claim(ctx context.Context, eventID string) (bool, error) {
	return d.rdb.SetNX(ctx, fmt.Sprintf(keyAlertSeen, eventID), "1", d.ttl).Result()
}

func (d *RedisDeduper) Release(ctx context.Context, eventID string) error {
	return d.rdb.Del(ctx, fmt.Sprintf(keyAlertSeen, eventID)).Err()
}

type Alert struct {
	OrderID     string          `json:"order_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type Forwarder struct {
	sinkURL    string
	httpClient *http.Client
	dedup      Deduper
	logger     *slog.Logger
}

func NewForwarder(sinkURL string, client *http.Client, dedup Deduper, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		sinkURL:    sinkURL,
		httpClient: client,
		dedup:      dedup,
		logger:     logger,
	}
}

// Handle forwards one event. Redeliveries of an already forwarded event are
// skipped; a failed forward releases the claim so the retry goes through.
func (f *Forwarder) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderCompletedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		f.logger.Error("dropping malformed order completed event", "error", err)
		return nil
	}

	if event.EventID != "" {
		first, err := f.dedup.Claim(ctx, event.EventID)
		if err != nil {
			return fmt.Errorf("claim event %s: %w", event.EventID, err)
		}
		if !first {
			f.logger.Info("duplicate order completed event skipped", "event_id", event.EventID, "order_id", event.OrderID)
			return nil
		}
	}

	if err := f.send(ctx, Alert{OrderID: event.OrderID, TotalAmount: event.TotalAmount}); err != nil {
		f.logger.Error("failed to forward alert", "error", err, "event_id", event.EventID, "order_id", event.OrderID)
		if event.EventID != "" {
			if relErr := f.dedup.Release(context.WithoutCancel(ctx), event.EventID); relErr != nil {
				f.logger.Warn("failed to release event claim", "error", relErr, "event_id", event.EventID)
			}
		}
		return fmt.Errorf("forward alert: %w", err)
	}

	f.logger.Info("alert forwarded", "event_id", event.EventID, "order_id", event.OrderID, "total_amount", event.TotalAmount.String())
	return nil
}

func (f *Forwarder) send(ctx context.Context, alert Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.sinkURL+"/alerts", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("alert sink returned status %d", resp.StatusCode)
	}

	return nil
}
