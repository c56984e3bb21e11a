package orders

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/posflow/internal/domain"
	"github.com/joao-fontenele/posflow/internal/identity"
)

type SettleResult struct {
	Order     *domain.Order   `json:"order"`
	ChangeDue decimal.Decimal `json:"change_due"`
	AuditErr  error           `json:"-"`
}

type CancelResult struct {
	Order        *domain.Order              `json:"order"`
	Cancellation *domain.CancellationRecord `json:"cancellation"`
	AuditErr     error                      `json:"-"`
}

// Settlement drives an order after commit: taking further payments,
// completing it and cancelling it. Every update is a status check followed by
// a conditional write; two actors racing on one order resolve last-write-wins.
type Settlement struct {
	store      OrderStore
	audit      AuditRecorder
	notifier   Notifier
	legacySync bool
	logger     *slog.Logger
}

func NewSettlement(store OrderStore, audit AuditRecorder, notifier Notifier, legacySync bool, logger *slog.Logger) *Settlement {
	return &Settlement{
		store:      store,
		audit:      audit,
		notifier:   notifier,
		legacySync: legacySync,
		logger:     logger,
	}
}

func (s *Settlement) load(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, domain.Step("load order", err)
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func (s *Settlement) save(ctx context.Context, order *domain.Order) error {
	order.UpdatedAt = time.Now().UTC()

	updated, err := s.store.UpdateState(ctx, order)
	if err != nil {
		return domain.Step("update order", err)
	}
	if !updated {
		return domain.ErrOrderCancelled
	}
	return nil
}

// applyPayment sets the amount paid and the payment status derived from it.
// The payment status never moves backwards.
func applyPayment(order *domain.Order, paid decimal.Decimal) error {
	next := domain.DerivePaymentStatus(order.Total, paid)
	if !domain.PaymentAdvances(order.PaymentStatus, next) {
		return domain.ErrInvalidTransition
	}
	order.AmountPaid = paid
	order.PaymentStatus = next
	return nil
}

func (s *Settlement) appendAudit(ctx context.Context, order *domain.Order, action domain.AuditAction, employeeID string) error {
	rec := domain.NewAuditRecord(order, action, employeeID)
	if err := s.audit.Append(ctx, &rec); err != nil {
		s.logger.Error("failed to append audit record", "error", err, "order_id", order.ID, "action", action)
		return domain.Step("append audit", err)
	}
	return nil
}

// SettlePayment completes the remaining balance: the order ends paid in full
// and completed, whatever was tendered before. Change due is returned.
func (s *Settlement) SettlePayment(ctx context.Context, orderID string, tendered decimal.Decimal, method domain.PaymentMethod, caller identity.Identity) (*SettleResult, error) {
	if method != "" && !method.Valid() {
		return nil, domain.Invalid(domain.ErrInvalidPaymentMethod)
	}
	if !tendered.IsPositive() {
		return nil, domain.Invalid(domain.ErrInvalidTender)
	}
	if !domain.ValidAmount(tendered) {
		return nil, domain.Invalid(domain.ErrAmountPrecision)
	}

	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status == domain.OrderStatusCancelled {
		return nil, domain.ErrOrderCancelled
	}
	if order.Status == domain.OrderStatusCompleted && order.PaymentStatus == domain.PaymentStatusPaid {
		return nil, domain.ErrAlreadySettled
	}

	balance := order.Balance()
	if tendered.LessThan(balance) {
		return nil, domain.Invalid(domain.ErrInsufficientTender)
	}

	statusChanged := order.Status != domain.OrderStatusCompleted
	if statusChanged && !domain.CanTransition(order.Status, domain.OrderStatusCompleted) {
		return nil, domain.ErrInvalidTransition
	}

	if err := applyPayment(order, order.Total); err != nil {
		return nil, err
	}
	order.Status = domain.OrderStatusCompleted
	if method != "" {
		order.PaymentMethod = method
	}

	if err := s.save(ctx, order); err != nil {
		return nil, err
	}

	s.releaseTable(ctx, order)

	action := domain.AuditUpdated
	if statusChanged {
		action = domain.AuditCompleted
	}

	result := &SettleResult{
		Order:     order,
		ChangeDue: tendered.Sub(balance),
		AuditErr:  s.appendAudit(ctx, order, action, caller.EmployeeID),
	}

	if statusChanged {
		s.notifier.Publish(ctx, completedEvent(order))
	}

	s.logger.Info("order settled",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"status_changed", statusChanged,
		"change_due", result.ChangeDue.String(),
	)

	return result, nil
}

// AddPayment records a partial payment without changing the order status.
func (s *Settlement) AddPayment(ctx context.Context, orderID string, amount decimal.Decimal, method domain.PaymentMethod, caller identity.Identity) (*SettleResult, error) {
	if method != "" && !method.Valid() {
		return nil, domain.Invalid(domain.ErrInvalidPaymentMethod)
	}
	if !amount.IsPositive() {
		return nil, domain.Invalid(domain.ErrInvalidTender)
	}
	if !domain.ValidAmount(amount) {
		return nil, domain.Invalid(domain.ErrAmountPrecision)
	}

	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status == domain.OrderStatusCancelled {
		return nil, domain.ErrOrderCancelled
	}
	if order.PaymentStatus == domain.PaymentStatusPaid {
		return nil, domain.ErrAlreadySettled
	}
	if amount.GreaterThan(order.Balance()) {
		return nil, domain.Invalid(domain.ErrPaymentExceedsBalance)
	}

	if err := applyPayment(order, order.AmountPaid.Add(amount)); err != nil {
		return nil, err
	}
	if method != "" {
		order.PaymentMethod = method
	}

	if err := s.save(ctx, order); err != nil {
		return nil, err
	}

	result := &SettleResult{
		Order:     order,
		ChangeDue: decimal.Zero,
		AuditErr:  s.appendAudit(ctx, order, domain.AuditUpdated, caller.EmployeeID),
	}

	s.logger.Info("payment added",
		"order_id", order.ID,
		"amount", amount.String(),
		"amount_paid", order.AmountPaid.String(),
		"payment_status", order.PaymentStatus,
	)

	return result, nil
}

// Cancel writes the cancellation snapshot, then flips the order to
// cancelled. Stock is never restored here. A retry after a partial failure
// reuses the first cancellation record.
func (s *Settlement) Cancel(ctx context.Context, orderID, reason string, caller identity.Identity) (*CancelResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.Invalid(domain.ErrReasonRequired)
	}

	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !domain.CanTransition(order.Status, domain.OrderStatusCancelled) {
		return nil, domain.ErrOrderCancelled
	}

	rec := domain.NewCancellationRecord(order, reason, caller.EmployeeID)
	created, err := s.audit.RecordCancellation(ctx, &rec)
	if err != nil {
		return nil, domain.Step("record cancellation", err)
	}
	if !created {
		existing, err := s.audit.Cancellation(ctx, order.ID)
		if err != nil {
			return nil, domain.Step("load cancellation", err)
		}
		if existing != nil {
			rec = *existing
		}
		s.logger.Info("cancellation already recorded", "order_id", order.ID, "cancellation_id", rec.ID)
	}

	order.Status = domain.OrderStatusCancelled
	if err := s.save(ctx, order); err != nil {
		return nil, err
	}

	s.releaseTable(ctx, order)

	if s.legacySync {
		if synced, err := s.audit.SyncCancellation(ctx, order.ID); err != nil {
			s.logger.Warn("legacy cancellation sync failed", "error", err, "order_id", order.ID)
		} else if !synced {
			s.logger.Debug("legacy cancellation sync matched no record", "order_id", order.ID)
		}
	}

	result := &CancelResult{
		Order:        order,
		Cancellation: &rec,
		AuditErr:     s.appendAudit(ctx, order, domain.AuditCancelled, caller.EmployeeID),
	}

	s.logger.Info("order cancelled",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"cancelled_by", caller.EmployeeID,
		"reason", rec.Reason,
	)

	return result, nil
}

func (s *Settlement) releaseTable(ctx context.Context, order *domain.Order) {
	if order.TableID == "" {
		return
	}
	if err := s.store.ReleaseTable(ctx, order.TableID, order.ID); err != nil {
		s.logger.Warn("failed to release table", "error", err, "order_id", order.ID, "table_id", order.TableID)
	}
}
