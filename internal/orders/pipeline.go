package orders

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/posflow/internal/domain"
	"github.com/joao-fontenele/posflow/internal/identity"
	"github.com/joao-fontenele/posflow/internal/inventory"
	"github.com/joao-fontenele/posflow/internal/terminal"
)

type OrderStore interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context, limit int) ([]domain.Order, error)
	UpdateState(ctx context.Context, order *domain.Order) (bool, error)
	OccupyTable(ctx context.Context, tableID, orderID string) error
	ReleaseTable(ctx context.Context, tableID, orderID string) error
}

type StockLedger interface {
	Decrement(ctx context.Context, key domain.StockKey, quantity int) (int, error)
}

type AuditRecorder interface {
	Append(ctx context.Context, rec *domain.AuditRecord) error
	RecordCancellation(ctx context.Context, rec *domain.CancellationRecord) (bool, error)
	SyncCancellation(ctx context.Context, orderID string) (bool, error)
	Cancellation(ctx context.Context, orderID string) (*domain.CancellationRecord, error)
}

type Notifier interface {
	Publish(ctx context.Context, event domain.OrderCompletedEvent)
}

type CommitRequest struct {
	PaymentMethod  domain.PaymentMethod `json:"payment_method"`
	AmountTendered decimal.Decimal      `json:"amount_tendered"`
	TargetStatus   domain.OrderStatus   `json:"target_status"`
	CustomerID     string               `json:"customer_id"`
	TableID        string               `json:"table_id"`
}

// StockIssue is a line whose decrement did not go through. The order stays
// committed; the discrepancy is left for manual reconciliation.
type StockIssue struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
	Err       error  `json:"-"`
}

type CommitResult struct {
	Order       *domain.Order `json:"order"`
	StockIssues []StockIssue  `json:"stock_issues"`
	AuditErr    error         `json:"-"`
}

type Pipeline struct {
	store    OrderStore
	ledger   StockLedger
	audit    AuditRecorder
	notifier Notifier
	guard    *Guard
	logger   *slog.Logger

	committed         metric.Int64Counter
	decrementFailures metric.Int64Counter
	decrementsApplied metric.Int64Counter
}

func NewPipeline(store OrderStore, ledger StockLedger, audit AuditRecorder, notifier Notifier, guard *Guard, logger *slog.Logger) (*Pipeline, error) {
	meter := otel.Meter("pos/orders")

	committed, err := meter.Int64Counter("pos.orders.committed",
		metric.WithDescription("Orders committed at checkout"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, err
	}

	decrementFailures, err := meter.Int64Counter("pos.stock.decrement_failures",
		metric.WithDescription("Order lines whose stock decrement failed"),
		metric.WithUnit("{line}"),
	)
	if err != nil {
		return nil, err
	}

	decrementsApplied, err := meter.Int64Counter("pos.stock.decrements",
		metric.WithDescription("Order lines whose stock decrement succeeded"),
		metric.WithUnit("{line}"),
	)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		store:             store,
		ledger:            ledger,
		audit:             audit,
		notifier:          notifier,
		guard:             guard,
		logger:            logger,
		committed:         committed,
		decrementFailures: decrementFailures,
		decrementsApplied: decrementsApplied,
	}, nil
}

func validateCommit(lines []domain.OrderLine, total decimal.Decimal, req CommitRequest) error {
	if len(lines) == 0 {
		return domain.Invalid(domain.ErrEmptyCart)
	}
	if !req.PaymentMethod.Valid() {
		return domain.Invalid(domain.ErrInvalidPaymentMethod)
	}
	if req.TargetStatus != domain.OrderStatusPreparing && req.TargetStatus != domain.OrderStatusCompleted {
		return domain.Invalid(domain.ErrInvalidStatus)
	}
	if req.AmountTendered.IsNegative() {
		return domain.Invalid(domain.ErrInvalidTender)
	}
	if !domain.ValidAmount(req.AmountTendered) {
		return domain.Invalid(domain.ErrAmountPrecision)
	}
	if req.AmountTendered.IsZero() && req.TargetStatus == domain.OrderStatusCompleted {
		return domain.Invalid(domain.ErrInvalidTender)
	}
	if req.AmountTendered.GreaterThan(total) {
		return domain.Invalid(domain.ErrTenderExceedsTotal)
	}
	return nil
}

// Commit turns the terminal's cart into a persisted order. The session is held
// for the whole commit. Only a failed header write aborts the commit;
// everything after it is best effort and reported on the result.
func (p *Pipeline) Commit(ctx context.Context, sess *terminal.Session, caller identity.Identity, req CommitRequest) (*CommitResult, error) {
	lease, ok := p.guard.TryAcquire(sess.TerminalID)
	if !ok {
		return nil, domain.ErrCommitInFlight
	}

	if req.TargetStatus == "" {
		req.TargetStatus = domain.OrderStatusCompleted
	}

	var result *CommitResult
	err := sess.Checkout(func(lines []domain.OrderLine, total decimal.Decimal) error {
		var err error
		result, err = p.commit(ctx, sess.TerminalID, lines, total, caller, req)
		return err
	})
	if err != nil {
		// Nothing was written, so a corrected retry may start right away.
		lease.Abort()
		return nil, err
	}
	lease.Release()

	order := result.Order
	p.committed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(order.Status)),
		attribute.String("payment_status", string(order.PaymentStatus)),
	))

	p.logger.Info("order committed",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"terminal_id", order.TerminalID,
		"status", order.Status,
		"payment_status", order.PaymentStatus,
		"total", order.Total.String(),
		"stock_issues", len(result.StockIssues),
	)

	return result, nil
}

func (p *Pipeline) commit(ctx context.Context, terminalID string, lines []domain.OrderLine, total decimal.Decimal, caller identity.Identity, req CommitRequest) (*CommitResult, error) {
	if err := validateCommit(lines, total, req); err != nil {
		return nil, err
	}

	order := &domain.Order{
		Status:        req.TargetStatus,
		PaymentStatus: domain.DerivePaymentStatus(total, req.AmountTendered),
		Total:         total,
		AmountPaid:    req.AmountTendered,
		PaymentMethod: req.PaymentMethod,
		EmployeeID:    caller.EmployeeID,
		CustomerID:    req.CustomerID,
		TableID:       req.TableID,
		TerminalID:    terminalID,
		Lines:         lines,
		CreatedAt:     time.Now().UTC(),
	}

	if err := p.store.Create(ctx, order); err != nil {
		p.logger.Error("failed to insert order", "error", err, "terminal_id", terminalID)
		return nil, domain.Step("insert order", err)
	}

	result := &CommitResult{Order: order, StockIssues: p.decrementLines(ctx, order)}

	if order.TableID != "" {
		if err := p.store.OccupyTable(ctx, order.TableID, order.ID); err != nil {
			p.logger.Warn("failed to occupy table", "error", err, "order_id", order.ID, "table_id", order.TableID)
		}
	}

	rec := domain.NewAuditRecord(order, domain.AuditCreated, caller.EmployeeID)
	if err := p.audit.Append(ctx, &rec); err != nil {
		p.logger.Error("failed to append audit record", "error", err, "order_id", order.ID, "action", rec.Action)
		result.AuditErr = domain.Step("append audit", err)
	}

	if order.Status == domain.OrderStatusCompleted {
		p.notifier.Publish(ctx, completedEvent(order))
	}

	return result, nil
}

// decrementLines issues exactly one decrement per line, in order. A failed
// line never undoes the others.
func (p *Pipeline) decrementLines(ctx context.Context, order *domain.Order) []StockIssue {
	issues := []StockIssue{}

	for _, line := range order.Lines {
		key := line.StockKey()
		_, err := p.ledger.Decrement(ctx, key, line.Quantity)
		if err == nil {
			p.decrementsApplied.Add(ctx, 1)
			continue
		}

		reason := "storage unavailable"
		switch {
		case errors.Is(err, inventory.ErrInsufficientStock):
			reason = "insufficient stock"
		case errors.Is(err, inventory.ErrStockUnitNotFound):
			reason = "stock unit not found"
		}

		p.decrementFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
		p.logger.Warn("stock decrement failed",
			"error", err,
			"order_id", order.ID,
			"stock_key", key.String(),
			"quantity", line.Quantity,
		)

		issues = append(issues, StockIssue{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
			Reason:    reason,
			Err:       domain.Step("decrement stock", err),
		})
	}

	return issues
}

func completedEvent(order *domain.Order) domain.OrderCompletedEvent {
	return domain.OrderCompletedEvent{
		EventID:     uuid.New().String(),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		TotalAmount: order.Total,
		TerminalID:  order.TerminalID,
		OccurredAt:  time.Now().UTC(),
	}
}
