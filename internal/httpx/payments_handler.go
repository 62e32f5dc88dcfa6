package httpx

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ferremas/orders/internal/orders"
)

type PaymentReader interface {
	GetPayment(ctx context.Context, paymentID int64) (orders.Payment, error)
	ListPayments(ctx context.Context, f orders.PaymentFilter) ([]orders.Payment, error)
}

type PaymentsHandler struct {
	Payments PaymentReader
}

func (h *PaymentsHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(RequireStaff)
		r.Get("/payments", h.list)
		r.Get("/payments/{id}", h.get)
	})
}

// list accepts the optional filters orderId, customerId and status.
func (h *PaymentsHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := orders.PaymentFilter{Status: q.Get("status")}
	for _, p := range []struct {
		name string
		dst  *int64
	}{{"orderId", &f.OrderID}, {"customerId", &f.CustomerID}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v <= 0 {
			badRequest(w, "invalid "+p.name)
			return
		}
		*p.dst = v
	}

	list, err := h.Payments.ListPayments(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]paymentView, 0, len(list))
	for _, p := range list {
		out = append(out, toPaymentView(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *PaymentsHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.Payments.GetPayment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentView(p))
}
