package alerting

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/joao-fontenele/posflow/internal/httpx"
)

// Sink receives alerts and logs the chime. It keeps no state.
type Sink struct {
	logger *slog.Logger
}

func NewSink(logger *slog.Logger) *Sink {
	return &Sink{logger: logger}
}

func (s *Sink) Register(r chi.Router) {
	r.Post("/alerts", s.HandleAlert)
}

func (s *Sink) HandleAlert(w http.ResponseWriter, r *http.Request) {
	var alert Alert
	if err := httpx.DecodeJSON(r, &alert); err != nil {
		httpx.WriteError(w, s.logger, http.StatusBadRequest, "invalid request body")
		return
	}
	if alert.OrderID == "" {
		httpx.WriteError(w, s.logger, http.StatusBadRequest, "missing order id")
		return
	}

	s.logger.Info("order completed chime", "order_id", alert.OrderID, "total_amount", alert.TotalAmount.String())

	httpx.WriteJSON(w, s.logger, http.StatusAccepted, map[string]string{"status": "accepted"})
}
