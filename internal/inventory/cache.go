package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joao-fontenele/posflow/internal/domain"
)

const (
	keyStockSnapshot = "pos:stock:%s"

	DefaultSnapshotTTL = 5 * time.Second
)

// CachedLedger fronts a Ledger with Redis snapshots of availability. The
// snapshots feed cart pre-checks only; Decrement always goes to the ledger
// and drops the snapshot afterwards.
type CachedLedger struct {
	ledger *Ledger
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedLedger(ledger *Ledger, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedLedger {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &CachedLedger{
		ledger: ledger,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

func snapshotKey(key domain.StockKey) string {
	return fmt.Sprintf(keyStockSnapshot, key.String())
}

func (c *CachedLedger) Available(ctx context.Context, key domain.StockKey) (*domain.StockLevel, error) {
	cacheKey := snapshotKey(key)

	if raw, err := c.rdb.Get(ctx, cacheKey).Bytes(); err == nil {
		var stock domain.StockLevel
		if err := json.Unmarshal(raw, &stock); err == nil {
			return &stock, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("stock snapshot read failed", "error", err, "stock_key", key.String())
	}

	stock, err := c.ledger.Available(ctx, key)
	if err != nil || stock == nil {
		return stock, err
	}

	if b, err := json.Marshal(stock); err == nil {
		if err := c.rdb.Set(ctx, cacheKey, b, c.ttl).Err(); err != nil {
			c.logger.Warn("stock snapshot write failed", "error", err, "stock_key", key.String())
		}
	}

	return stock, nil
}

func (c *CachedLedger) Decrement(ctx context.Context, key domain.StockKey, quantity int) (int, error) {
	remaining, err := c.ledger.Decrement(ctx, key, quantity)
	if err == nil {
		c.invalidate(ctx, key)
	}
	return remaining, err
}

func (c *CachedLedger) Restock(ctx context.Context, key domain.StockKey, quantity int) error {
	err := c.ledger.Restock(ctx, key, quantity)
	if err == nil {
		c.invalidate(ctx, key)
	}
	return err
}

func (c *CachedLedger) List(ctx context.Context) ([]domain.StockLevel, error) {
	return c.ledger.List(ctx)
}

func (c *CachedLedger) invalidate(ctx context.Context, key domain.StockKey) {
	if err := c.rdb.Del(context.WithoutCancel(ctx), snapshotKey(key)).Err(); err != nil {
		c.logger.Warn("stock snapshot invalidation failed", "error", err, "stock_key", key.String())
	}
}
