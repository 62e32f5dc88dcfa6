package httpx

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ferremas/orders/internal/orders"
)

type StockAdmin interface {
	SetBranchStock(ctx context.Context, productID, branchID int64, qty int) error
	StockByProduct(ctx context.Context, productID int64) ([]orders.BranchStock, error)
}

type StockHandler struct {
	Stock StockAdmin
}

func (h *StockHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(RequireStaff)
		r.Get("/products/{id}/stock", h.listStock)
		r.Put("/products/{id}/branches/{branchID}/stock", h.setStock)
	})
}

type stockView struct {
	ProductID int64 `json:"productId"`
	BranchID  int64 `json:"branchId"`
	Quantity  int   `json:"quantity"`
}

func (h *StockHandler) listStock(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	rows, err := h.Stock.StockByProduct(r.Context(), productID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]stockView, 0, len(rows))
	for _, s := range rows {
		out = append(out, stockView(s))
	}
	writeJSON(w, http.StatusOK, out)
}

type setStockReq struct {
	Quantity *int `json:"quantity"`
}

func (h *StockHandler) setStock(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	branchID, ok := pathID(w, r, "branchID")
	if !ok {
		return
	}
	var req setStockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity == nil {
		badRequest(w, "quantity is required")
		return
	}
	if err := h.Stock.SetBranchStock(r.Context(), productID, branchID, *req.Quantity); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stockView{ProductID: productID, BranchID: branchID, Quantity: *req.Quantity})
}
