package inventory

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/joao-fontenele/posflow/internal/domain"
	"github.com/joao-fontenele/posflow/internal/httpx"
	"github.com/joao-fontenele/posflow/internal/identity"
)

type Stock interface {
	Available(ctx context.Context, key domain.StockKey) (*domain.StockLevel, error)
	List(ctx context.Context) ([]domain.StockLevel, error)
	Restock(ctx context.Context, key domain.StockKey, quantity int) error
}

type Handler struct {
	stock  Stock
	logger *slog.Logger
}

func NewHandler(stock Stock, logger *slog.Logger) *Handler {
	return &Handler{
		stock:  stock,
		logger: logger,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/stock", h.HandleListStock)
	r.Get("/stock/{productID}", h.HandleGetStock)
	r.Post("/stock/restock", h.HandleRestock)
}

func (h *Handler) HandleListStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.stock.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list stock", "error", err)
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "internal server error")
		return
	}

	if items == nil {
		items = []domain.StockLevel{}
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, items)
}

func (h *Handler) HandleGetStock(w http.ResponseWriter, r *http.Request) {
	key := domain.StockKey{
		ProductID: chi.URLParam(r, "productID"),
		VariantID: r.URL.Query().Get("variant_id"),
	}
	if key.ProductID == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "missing product id")
		return
	}

	stock, err := h.stock.Available(r.Context(), key)
	if err != nil {
		h.logger.Error("failed to get stock", "error", err, "stock_key", key.String())
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "internal server error")
		return
	}

	if stock == nil {
		httpx.WriteError(w, h.logger, http.StatusNotFound, "stock unit not found")
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, stock)
}

type restockRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) HandleRestock(w http.ResponseWriter, r *http.Request) {
	var req restockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	key := domain.StockKey{ProductID: req.ProductID, VariantID: req.VariantID}
	if key.ProductID == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "missing product id")
		return
	}

	if err := h.stock.Restock(r.Context(), key, req.Quantity); err != nil {
		switch {
		case domain.IsValidation(err):
			httpx.WriteError(w, h.logger, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrStockUnitNotFound):
			httpx.WriteError(w, h.logger, http.StatusNotFound, "stock unit not found")
		default:
			h.logger.Error("failed to restock", "error", err, "stock_key", key.String(), "quantity", req.Quantity)
			httpx.WriteError(w, h.logger, http.StatusServiceUnavailable, "restock: storage unavailable, retry")
		}
		return
	}

	caller, _ := identity.FromContext(r.Context())
	h.logger.Info("stock restocked", "stock_key", key.String(), "quantity", req.Quantity, "employee_id", caller.EmployeeID)

	stock, err := h.stock.Available(r.Context(), key)
	if err != nil || stock == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, stock)
}
