package orders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/joao-fontenele/posflow/internal/domain"
	"github.com/joao-fontenele/posflow/internal/inventory"
)

var errStorage = errors.New("connection reset by peer")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	mu        sync.Mutex
	orders    map[string]*domain.Order
	tables    map[string]string
	nextNum   int64
	createErr error
	updateErr error

	// createStarted is signalled and createGate awaited inside Create when set.
	createStarted chan struct{}
	createGate    chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders: make(map[string]*domain.Order),
		tables: map[string]string{"T1": ""},
	}
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Lines = append([]domain.OrderLine(nil), o.Lines...)
	return &c
}

func (s *fakeStore) Create(_ context.Context, order *domain.Order) error {
	if s.createStarted != nil {
		s.createStarted <- struct{}{}
	}
	if s.createGate != nil {
		<-s.createGate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createErr != nil {
		return s.createErr
	}

	s.nextNum++
	order.ID = uuid.New().String()
	order.OrderNumber = s.nextNum
	for i := range order.Lines {
		order.Lines[i].ID = uuid.New().String()
		order.Lines[i].OrderID = order.ID
	}
	s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	return cloneOrder(o), nil
}

func (s *fakeStore) List(_ context.Context, _ int) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, *cloneOrder(o))
	}
	return out, nil
}

func (s *fakeStore) UpdateState(_ context.Context, order *domain.Order) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.updateErr != nil {
		return false, s.updateErr
	}

	cur, ok := s.orders[order.ID]
	if !ok || cur.Status == domain.OrderStatusCancelled {
		return false, nil
	}
	cur.Status = order.Status
	cur.PaymentStatus = order.PaymentStatus
	cur.AmountPaid = order.AmountPaid
	cur.PaymentMethod = order.PaymentMethod
	cur.UpdatedAt = order.UpdatedAt
	return true, nil
}

func (s *fakeStore) OccupyTable(_ context.Context, tableID, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tables[tableID]; !ok {
		return ErrTableNotFound
	}
	s.tables[tableID] = orderID
	return nil
}

func (s *fakeStore) ReleaseTable(_ context.Context, tableID, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tables[tableID] == orderID {
		s.tables[tableID] = ""
	}
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *fakeStore) table(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables[id]
}

type decrementCall struct {
	Key      domain.StockKey
	Quantity int
}

type fakeLedger struct {
	mu     sync.Mutex
	stock  map[domain.StockKey]int
	failOn map[domain.StockKey]error
	calls  []decrementCall
}

func newFakeLedger(stock map[domain.StockKey]int) *fakeLedger {
	return &fakeLedger{stock: stock, failOn: map[domain.StockKey]error{}}
}

func (l *fakeLedger) Decrement(_ context.Context, key domain.StockKey, quantity int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls = append(l.calls, decrementCall{Key: key, Quantity: quantity})

	if err, ok := l.failOn[key]; ok {
		return 0, err
	}
	n, ok := l.stock[key]
	if !ok {
		return 0, inventory.ErrStockUnitNotFound
	}
	if n < quantity {
		return 0, inventory.ErrInsufficientStock
	}
	l.stock[key] = n - quantity
	return l.stock[key], nil
}

type fakeAudit struct {
	mu            sync.Mutex
	records       []domain.AuditRecord
	cancellations map[string]domain.CancellationRecord
	synced        []string
	appendErr     error
	cancelErr     error
}

func newFakeAudit() *fakeAudit {
	return &fakeAudit{cancellations: make(map[string]domain.CancellationRecord)}
}

func (a *fakeAudit) Append(_ context.Context, rec *domain.AuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.appendErr != nil {
		return a.appendErr
	}
	rec.ID = uuid.New().String()
	a.records = append(a.records, *rec)
	return nil
}

func (a *fakeAudit) RecordCancellation(_ context.Context, rec *domain.CancellationRecord) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancelErr != nil {
		return false, a.cancelErr
	}
	if _, ok := a.cancellations[rec.OrderID]; ok {
		return false, nil
	}
	rec.ID = uuid.New().String()
	a.cancellations[rec.OrderID] = *rec
	return true, nil
}

func (a *fakeAudit) SyncCancellation(_ context.Context, orderID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.synced = append(a.synced, orderID)
	return false, nil
}

func (a *fakeAudit) History(_ context.Context, orderID string) ([]domain.AuditRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := []domain.AuditRecord{}
	for _, r := range a.records {
		if r.OrderID == orderID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (a *fakeAudit) Cancellation(_ context.Context, orderID string) (*domain.CancellationRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.cancellations[orderID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (a *fakeAudit) actions(orderID string) []domain.AuditAction {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []domain.AuditAction
	for _, r := range a.records {
		if r.OrderID == orderID {
			out = append(out, r.Action)
		}
	}
	return out
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []domain.OrderCompletedEvent
}

func (n *fakeNotifier) Publish(_ context.Context, event domain.OrderCompletedEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *fakeNotifier) published() []domain.OrderCompletedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.OrderCompletedEvent(nil), n.events...)
}
