package orders

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/posflow/internal/cart"
	"github.com/joao-fontenele/posflow/internal/domain"
	"github.com/joao-fontenele/posflow/internal/httpx"
	"github.com/joao-fontenele/posflow/internal/identity"
	"github.com/joao-fontenele/posflow/internal/terminal"
)

type HistoryReader interface {
	History(ctx context.Context, orderID string) ([]domain.AuditRecord, error)
	Cancellation(ctx context.Context, orderID string) (*domain.CancellationRecord, error)
}

type Handler struct {
	sessions   *terminal.Registry
	assembler  *cart.Assembler
	pipeline   *Pipeline
	settlement *Settlement
	store      OrderStore
	history    HistoryReader
	logger     *slog.Logger
}

func NewHandler(sessions *terminal.Registry, assembler *cart.Assembler, pipeline *Pipeline, settlement *Settlement, store OrderStore, history HistoryReader, logger *slog.Logger) *Handler {
	return &Handler{
		sessions:   sessions,
		assembler:  assembler,
		pipeline:   pipeline,
		settlement: settlement,
		store:      store,
		history:    history,
		logger:     logger,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/terminals/{terminalID}", func(r chi.Router) {
		r.Get("/cart", h.HandleGetCart)
		r.Delete("/cart", h.HandleClearCart)
		r.Post("/cart/lines", h.HandleAddLine)
		r.Patch("/cart/lines/{index}", h.HandleAdjustLine)
		r.Delete("/cart/lines/{index}", h.HandleRemoveLine)
		r.Post("/checkout", h.HandleCheckout)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Get("/{id}", h.HandleGet)
		r.Get("/{id}/history", h.HandleHistory)
		r.Get("/{id}/cancellation", h.HandleCancellation)
		r.Post("/{id}/payments", h.HandleAddPayment)
		r.Post("/{id}/settle", h.HandleSettle)
		r.Post("/{id}/cancel", h.HandleCancel)
	})
}

// writeFailure maps err onto a status code. Messages of unexpected errors are
// not echoed back to the terminal.
func (h *Handler) writeFailure(w http.ResponseWriter, err error, msg string, args ...any) {
	status := httpx.StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, append([]any{"error", err}, args...)...)
	}
	if status == http.StatusInternalServerError {
		httpx.WriteError(w, h.logger, status, "internal server error")
		return
	}
	httpx.WriteError(w, h.logger, status, err.Error())
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*terminal.Session, bool) {
	sess, err := h.sessions.Session(chi.URLParam(r, "terminalID"))
	if err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return sess, true
}

func lineIndex(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		httpx.WriteError(w, logger, http.StatusBadRequest, "invalid line index")
		return 0, false
	}
	return index, true
}

func (h *Handler) HandleGetCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, sess.View())
}

func (h *Handler) HandleClearCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.Clear()
	w.WriteHeader(http.StatusNoContent)
}

type addLineRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
	Note      string `json:"note"`
}

func (h *Handler) HandleAddLine(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req addLineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "missing product id")
		return
	}

	err := sess.WithCart(func(c *cart.Cart) error {
		_, err := h.assembler.Add(r.Context(), c, req.ProductID, req.VariantID, req.Quantity, req.Note)
		return err
	})
	if err != nil {
		h.writeFailure(w, err, "failed to add cart line", "terminal_id", sess.TerminalID, "product_id", req.ProductID)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, sess.View())
}

type adjustLineRequest struct {
	Delta int `json:"delta"`
}

func (h *Handler) HandleAdjustLine(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	index, ok := lineIndex(w, r, h.logger)
	if !ok {
		return
	}

	var req adjustLineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	err := sess.WithCart(func(c *cart.Cart) error {
		return h.assembler.Adjust(r.Context(), c, index, req.Delta)
	})
	if err != nil {
		h.writeFailure(w, err, "failed to adjust cart line", "terminal_id", sess.TerminalID, "index", index)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, sess.View())
}

func (h *Handler) HandleRemoveLine(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	index, ok := lineIndex(w, r, h.logger)
	if !ok {
		return
	}

	err := sess.WithCart(func(c *cart.Cart) error {
		return c.RemoveLine(index)
	})
	if err != nil {
		h.writeFailure(w, err, "failed to remove cart line", "terminal_id", sess.TerminalID, "index", index)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, sess.View())
}

type checkoutResponse struct {
	*CommitResult
	AuditError string `json:"audit_error,omitempty"`
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req CommitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	caller, _ := identity.FromContext(r.Context())
	result, err := h.pipeline.Commit(r.Context(), sess, caller, req)
	if err != nil {
		h.writeFailure(w, err, "checkout failed", "terminal_id", sess.TerminalID)
		return
	}

	resp := checkoutResponse{CommitResult: result}
	if result.AuditErr != nil {
		resp.AuditError = result.AuditErr.Error()
	}
	httpx.WriteJSON(w, h.logger, http.StatusCreated, resp)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	orders, err := h.store.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err)
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "internal server error")
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, orders)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	order, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "id", id)
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "internal server error")
		return
	}

	if order == nil {
		httpx.WriteError(w, h.logger, http.StatusNotFound, "order not found")
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, order)
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	records, err := h.history.History(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order history", "error", err, "id", id)
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "internal server error")
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, records)
}

func (h *Handler) HandleCancellation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.history.Cancellation(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get cancellation", "error", err, "id", id)
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "internal server error")
		return
	}

	if rec == nil {
		httpx.WriteError(w, h.logger, http.StatusNotFound, "order has no cancellation record")
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, rec)
}

type paymentRequest struct {
	Amount         decimal.Decimal      `json:"amount"`
	AmountTendered decimal.Decimal      `json:"amount_tendered"`
	PaymentMethod  domain.PaymentMethod `json:"payment_method"`
}

type settleResponse struct {
	*SettleResult
	AuditError string `json:"audit_error,omitempty"`
}

func (h *Handler) writeSettle(w http.ResponseWriter, result *SettleResult) {
	resp := settleResponse{SettleResult: result}
	if result.AuditErr != nil {
		resp.AuditError = result.AuditErr.Error()
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, resp)
}

func (h *Handler) HandleAddPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	caller, _ := identity.FromContext(r.Context())
	result, err := h.settlement.AddPayment(r.Context(), id, req.Amount, req.PaymentMethod, caller)
	if err != nil {
		h.writeFailure(w, err, "add payment failed", "order_id", id)
		return
	}

	h.writeSettle(w, result)
}

func (h *Handler) HandleSettle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	caller, _ := identity.FromContext(r.Context())
	result, err := h.settlement.SettlePayment(r.Context(), id, req.AmountTendered, req.PaymentMethod, caller)
	if err != nil {
		h.writeFailure(w, err, "settle payment failed", "order_id", id)
		return
	}

	h.writeSettle(w, result)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type cancelResponse struct {
	*CancelResult
	AuditError string `json:"audit_error,omitempty"`
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req cancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	caller, _ := identity.FromContext(r.Context())
	result, err := h.settlement.Cancel(r.Context(), id, req.Reason, caller)
	if err != nil {
		h.writeFailure(w, err, "cancel failed", "order_id", id)
		return
	}

	resp := cancelResponse{CancelResult: result}
	if result.AuditErr != nil {
		resp.AuditError = result.AuditErr.Error()
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, resp)
}
