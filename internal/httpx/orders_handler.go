package httpx

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ferremas/orders/internal/orders"
)

type OrderCreator interface {
	CreateOrder(ctx context.Context, req orders.CreateOrderRequest) (int64, error)
}

type StatusUpdater interface {
	UpdateStatus(ctx context.Context, req orders.UpdateStatusRequest) (orders.StatusChange, error)
}

type OrderReader interface {
	GetOrder(ctx context.Context, orderID int64) (orders.Order, error)
	GetOrderStatus(ctx context.Context, orderID int64) (orders.Status, error)
	ListOrdersByBranch(ctx context.Context, branchID int64) ([]orders.Order, error)
	ListOrdersByStaff(ctx context.Context, staffID int64) ([]orders.Order, error)
	ListOrdersByCustomer(ctx context.Context, customerID int64) ([]orders.Order, error)
	ListPickupQueue(ctx context.Context, branchID int64) ([]orders.Order, error)
}

type StatusCache interface {
	Get(ctx context.Context, orderID int64) (orders.Status, bool, error)
	Set(ctx context.Context, orderID int64, s orders.Status) error
}

type EventPublisher interface {
	OrderCreated(ctx context.Context, o orders.Order) error
	OrderStatusChanged(ctx context.Context, c orders.StatusChange) error
}

type OrdersHandler struct {
	Creator OrderCreator
	Updater StatusUpdater
	Reader  OrderReader
	Cache   StatusCache
	Events  EventPublisher
	Log     *slog.Logger
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(RequireStaff)
		r.Post("/orders", h.createOrder)
		r.Get("/orders/{id}", h.getOrder)
		r.Get("/orders/{id}/status", h.getStatus)
		r.Patch("/orders/{id}/status", h.updateStatus)
		r.Get("/branches/{id}/orders", h.listByBranch)
		r.Get("/staff/{id}/orders", h.listByStaff)
		r.Get("/customers/{id}/orders", h.listByCustomer)
		r.Get("/pickups", h.pickupQueue)
	})
}

type CreateOrderReq struct {
	CustomerID          *int64               `json:"customerId"`
	FulfillmentBranchID *int64               `json:"fulfillmentBranchId"`
	PaymentMethod       orders.PaymentMethod `json:"paymentMethod"`
	Status              orders.Status        `json:"status"`
	Lines               []LineReq            `json:"lines"`
}

// LineReq keeps quantity as a raw number so a fractional or oversized
// value is reported as invalid_quantity instead of a decode failure.
type LineReq struct {
	ProductID int64           `json:"productId"`
	Quantity  json.Number     `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

var maxQuantity = decimal.NewFromInt(math.MaxInt32)

func toLineRequests(in []LineReq) ([]orders.LineRequest, error) {
	out := make([]orders.LineRequest, 0, len(in))
	for _, l := range in {
		q, err := decimal.NewFromString(l.Quantity.String())
		if err != nil || !q.IsInteger() || q.Abs().GreaterThan(maxQuantity) {
			return nil, &orders.Error{Kind: orders.KindInvalidQuantity, ProductID: l.ProductID,
				Msg: "quantity must be a positive integer"}
		}
		out = append(out, orders.LineRequest{
			ProductID:       l.ProductID,
			Quantity:        int(q.IntPart()),
			ClientUnitPrice: l.UnitPrice,
		})
	}
	return out, nil
}

type CreateOrderResp struct {
	Success bool  `json:"success"`
	OrderID int64 `json:"orderId"`
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	lines, err := toLineRequests(req.Lines)
	if err != nil {
		writeError(w, err)
		return
	}
	staff := staffFrom(r.Context())

	id, err := h.Creator.CreateOrder(r.Context(), orders.CreateOrderRequest{
		CustomerID:          req.CustomerID,
		StaffID:             staff.ID,
		OriginBranchID:      staff.BranchID,
		FulfillmentBranchID: req.FulfillmentBranchID,
		PaymentMethod:       req.PaymentMethod,
		Lines:               lines,
		RequestedStatus:     req.Status,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	// The order is committed; cache and event failures only get logged.
	ctx := context.WithoutCancel(r.Context())
	if o, err := h.Reader.GetOrder(ctx, id); err != nil {
		h.Log.Warn("reload created order", "order_id", id, "err", err)
	} else {
		h.cacheStatus(ctx, o.ID, o.Status)
		if err := h.Events.OrderCreated(ctx, o); err != nil {
			h.Log.Warn("publish order created", "order_id", id, "err", err)
		}
	}

	writeJSON(w, http.StatusCreated, CreateOrderResp{Success: true, OrderID: id})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	o, err := h.Reader.GetOrder(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(o))
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if s, hit, err := h.Cache.Get(r.Context(), id); err != nil {
		h.Log.Warn("status cache read", "order_id", id, "err", err)
	} else if hit {
		writeJSON(w, http.StatusOK, statusView{OrderID: id, Status: s})
		return
	}

	s, err := h.Reader.GetOrderStatus(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(r.Context(), id, s)
	writeJSON(w, http.StatusOK, statusView{OrderID: id, Status: s})
}

type updateStatusReq struct {
	Status orders.Status `json:"status"`
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}

	change, err := h.Updater.UpdateStatus(r.Context(), orders.UpdateStatusRequest{
		OrderID:       id,
		Status:        req.Status,
		ActorBranchID: staffFrom(r.Context()).BranchID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	h.cacheStatus(ctx, id, change.Order.Status)
	if err := h.Events.OrderStatusChanged(ctx, change); err != nil {
		h.Log.Warn("publish status changed", "order_id", id, "err", err)
	}
	writeJSON(w, http.StatusOK, toOrderView(change.Order))
}

func (h *OrdersHandler) listByBranch(w http.ResponseWriter, r *http.Request) {
	branchID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if staffFrom(r.Context()).BranchID != branchID {
		writeError(w, &orders.Error{Kind: orders.KindForbidden, Msg: "orders of another branch"})
		return
	}
	list, err := h.Reader.ListOrdersByBranch(r.Context(), branchID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderViews(list))
}

func (h *OrdersHandler) listByStaff(w http.ResponseWriter, r *http.Request) {
	staffID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if staffFrom(r.Context()).ID != staffID {
		writeError(w, &orders.Error{Kind: orders.KindForbidden, Msg: "orders of another staff member"})
		return
	}
	list, err := h.Reader.ListOrdersByStaff(r.Context(), staffID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderViews(list))
}

func (h *OrdersHandler) listByCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	list, err := h.Reader.ListOrdersByCustomer(r.Context(), customerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderViews(list))
}

// pickupQueue lists what the caller's branch still has to hand over.
func (h *OrdersHandler) pickupQueue(w http.ResponseWriter, r *http.Request) {
	list, err := h.Reader.ListPickupQueue(r.Context(), staffFrom(r.Context()).BranchID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderViews(list))
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, id int64, s orders.Status) {
	if err := h.Cache.Set(ctx, id, s); err != nil {
		h.Log.Warn("status cache write", "order_id", id, "err", err)
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(w, "invalid "+name)
		return 0, false
	}
	return id, true
}

type statusView struct {
	OrderID int64         `json:"orderId"`
	Status  orders.Status `json:"status"`
}

type lineView struct {
	ProductID int64           `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type paymentView struct {
	ID         int64                `json:"id"`
	OrderID    int64                `json:"orderId"`
	CustomerID *int64               `json:"customerId,omitempty"`
	Amount     decimal.Decimal      `json:"amount"`
	Method     orders.PaymentMethod `json:"method"`
	Status     string               `json:"status"`
	Reference  string               `json:"reference"`
	CreatedAt  time.Time            `json:"createdAt"`
}

func toPaymentView(p orders.Payment) paymentView {
	return paymentView{
		ID:         p.ID,
		OrderID:    p.OrderID,
		CustomerID: p.CustomerID,
		Amount:     p.Amount,
		Method:     p.Method,
		Status:     p.Status,
		Reference:  p.Reference,
		CreatedAt:  p.CreatedAt,
	}
}

type orderView struct {
	ID                  int64                `json:"id"`
	CustomerID          *int64               `json:"customerId,omitempty"`
	StaffID             int64                `json:"staffId"`
	OriginBranchID      int64                `json:"originBranchId"`
	FulfillmentBranchID *int64               `json:"fulfillmentBranchId,omitempty"`
	Status              orders.Status        `json:"status"`
	PaymentMethod       orders.PaymentMethod `json:"paymentMethod"`
	Total               decimal.Decimal      `json:"total"`
	CreatedAt           time.Time            `json:"createdAt"`
	Lines               []lineView           `json:"lines,omitempty"`
	Payment             *paymentView         `json:"payment,omitempty"`
}

func toOrderView(o orders.Order) orderView {
	v := orderView{
		ID:                  o.ID,
		CustomerID:          o.CustomerID,
		StaffID:             o.StaffID,
		OriginBranchID:      o.OriginBranchID,
		FulfillmentBranchID: o.FulfillmentBranchID,
		Status:              o.Status,
		PaymentMethod:       o.PaymentMethod,
		Total:               o.Total,
		CreatedAt:           o.CreatedAt,
	}
	for _, l := range o.Lines {
		v.Lines = append(v.Lines, lineView{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  l.Subtotal(),
		})
	}
	if o.Payment != nil {
		pv := toPaymentView(*o.Payment)
		v.Payment = &pv
	}
	return v
}

func toOrderViews(list []orders.Order) []orderView {
	out := make([]orderView, 0, len(list))
	for _, o := range list {
		out = append(out, toOrderView(o))
	}
	return out
}
