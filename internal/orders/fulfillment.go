package orders

import (
	"context"
	"log/slog"
)

type FulfillmentStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetOrderForUpdate(ctx context.Context, orderID int64) (Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status Status) error
}

// Fulfillment moves orders along the pickup/delivery workflow after creation.
type Fulfillment struct {
	store FulfillmentStore
	log   *slog.Logger
}

func NewFulfillment(store FulfillmentStore, logger *slog.Logger) *Fulfillment {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fulfillment{store: store, log: logger}
}

type UpdateStatusRequest struct {
	OrderID       int64
	Status        Status
	ActorBranchID int64
}

type StatusChange struct {
	Order Order
	From  Status
}

// UpdateStatus applies one transition. The acting staff member must belong
// to the order's origin or pickup branch.
func (f *Fulfillment) UpdateStatus(ctx context.Context, req UpdateStatusRequest) (StatusChange, error) {
	if !req.Status.Valid() {
		return StatusChange{}, invalid(KindInvalidRequest, "unknown status "+string(req.Status))
	}

	var change StatusChange
	err := f.store.WithTx(ctx, func(txCtx context.Context) error {
		o, err := f.store.GetOrderForUpdate(txCtx, req.OrderID)
		if err != nil {
			return err
		}
		if req.ActorBranchID != o.OriginBranchID &&
			(o.FulfillmentBranchID == nil || *o.FulfillmentBranchID != req.ActorBranchID) {
			return invalid(KindForbidden, "order does not belong to the caller's branch")
		}
		if !CanTransition(o.Status, req.Status) {
			return invalid(KindInvalidTransition, string(o.Status)+" -> "+string(req.Status))
		}
		if err := f.store.UpdateOrderStatus(txCtx, o.ID, req.Status); err != nil {
			return err
		}
		change = StatusChange{Order: o, From: o.Status}
		change.Order.Status = req.Status
		return nil
	})
	if err != nil {
		return StatusChange{}, asOrderError("update status", err)
	}

	f.log.Info("order status changed", "order_id", req.OrderID,
		"from", change.From, "to", change.Order.Status)
	return change, nil
}
