package orders

import (
	"context"
	"log/slog"

	"github.com/ferremas/orders/internal/clock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store is the transactional persistence the processor runs against. Every
// method except WithTx must join the transaction carried by ctx.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	InsertOrder(ctx context.Context, o Order) (int64, error)
	// GetStockAndPrice locks the (product, branch) stock row. found is false
	// when the branch does not stock the product.
	GetStockAndPrice(ctx context.Context, productID, branchID int64) (sp StockPrice, found bool, err error)
	// DecrementStock subtracts qty only when at least qty is available and
	// reports the affected row count.
	DecrementStock(ctx context.Context, productID, branchID int64, qty int) (int64, error)
	InsertOrderLine(ctx context.Context, line OrderLine) error
	UpdateOrderTotal(ctx context.Context, orderID int64, total decimal.Decimal) error
	InsertPayment(ctx context.Context, p Payment) (int64, error)
}

type LineRequest struct {
	ProductID       int64
	Quantity        int
	ClientUnitPrice decimal.Decimal
}

type CreateOrderRequest struct {
	CustomerID          *int64
	StaffID             int64
	OriginBranchID      int64
	FulfillmentBranchID *int64
	PaymentMethod       PaymentMethod
	Lines               []LineRequest
	RequestedStatus     Status
}

type Processor struct {
	store  Store
	clock  clock.Clock
	log    *slog.Logger
	newRef func() string
}

type ProcessorOption func(*Processor)

// WithReferenceGenerator replaces the payment reference generator.
func WithReferenceGenerator(fn func() string) ProcessorOption {
	return func(p *Processor) {
		if fn != nil {
			p.newRef = fn
		}
	}
}

func NewProcessor(store Store, clk clock.Clock, logger *slog.Logger, opts ...ProcessorOption) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		store:  store,
		clock:  clk,
		log:    logger,
		newRef: newPaymentReference,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func newPaymentReference() string {
	return "REF-" + uuid.NewString()
}

// CreateOrder validates req and then, in a single transaction, records the
// order, its lines and its payment while decrementing branch stock. Nothing
// is persisted unless everything is.
func (p *Processor) CreateOrder(ctx context.Context, req CreateOrderRequest) (int64, error) {
	if err := validate(req); err != nil {
		return 0, err
	}

	stockBranchID := req.OriginBranchID
	if req.FulfillmentBranchID != nil {
		stockBranchID = *req.FulfillmentBranchID
	}
	if stockBranchID <= 0 {
		return 0, invalid(KindMissingFulfillmentTarget, "no branch to draw stock from")
	}
	status := ResolveInitialStatus(req.FulfillmentBranchID != nil, req.RequestedStatus)
	if req.RequestedStatus != "" && req.RequestedStatus != status {
		p.log.Debug("requested status overridden",
			"requested", req.RequestedStatus, "resolved", status)
	}

	now := p.clock.Now()
	var orderID int64

	err := p.store.WithTx(ctx, func(txCtx context.Context) error {
		id, err := p.store.InsertOrder(txCtx, Order{
			CustomerID:          req.CustomerID,
			StaffID:             req.StaffID,
			OriginBranchID:      req.OriginBranchID,
			FulfillmentBranchID: req.FulfillmentBranchID,
			Status:              status,
			PaymentMethod:       req.PaymentMethod,
			Total:               decimal.Zero,
			CreatedAt:           now,
		})
		if err != nil {
			return err
		}

		total := decimal.Zero
		for _, line := range req.Lines {
			sp, found, err := p.store.GetStockAndPrice(txCtx, line.ProductID, stockBranchID)
			if err != nil {
				return err
			}
			if !found {
				return notStocked(line.ProductID, stockBranchID)
			}
			if sp.Quantity < line.Quantity {
				return insufficientStock(line.ProductID, stockBranchID, line.Quantity, sp.Quantity)
			}

			if !line.ClientUnitPrice.Equal(sp.UnitPrice) {
				p.log.Warn("client price differs from catalog, using catalog price",
					"product_id", line.ProductID,
					"client_price", line.ClientUnitPrice.String(),
					"catalog_price", sp.UnitPrice.String())
			}

			ol := OrderLine{
				OrderID:   id,
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				UnitPrice: sp.UnitPrice,
			}
			if err := p.store.InsertOrderLine(txCtx, ol); err != nil {
				return err
			}

			n, err := p.store.DecrementStock(txCtx, line.ProductID, stockBranchID, line.Quantity)
			if err != nil {
				return err
			}
			if n != 1 {
				// Row lock held, so this only happens if the row vanished or
				// a store without locking lost the race.
				return insufficientStock(line.ProductID, stockBranchID, line.Quantity, sp.Quantity)
			}

			total = total.Add(ol.Subtotal())
		}

		if err := p.store.UpdateOrderTotal(txCtx, id, total); err != nil {
			return err
		}

		if _, err := p.store.InsertPayment(txCtx, Payment{
			OrderID:    id,
			CustomerID: req.CustomerID,
			Amount:     total,
			Method:     req.PaymentMethod,
			Status:     PaymentStatusCompleted,
			Reference:  p.newRef(),
			CreatedAt:  now,
		}); err != nil {
			return err
		}

		orderID = id
		return nil
	})
	if err != nil {
		oe := asOrderError("create order", err)
		if oe.Kind == KindPersistenceFailure {
			p.log.Error("order rolled back", "staff_id", req.StaffID, "branch_id", stockBranchID,
				"retryable", oe.Retryable, "err", err)
		} else {
			p.log.Info("order rolled back", "staff_id", req.StaffID, "branch_id", stockBranchID,
				"reason", oe.Kind, "err", oe.Error())
		}
		return 0, oe
	}

	p.log.Info("order created", "order_id", orderID, "status", status,
		"branch_id", stockBranchID, "lines", len(req.Lines))
	return orderID, nil
}

func validate(req CreateOrderRequest) error {
	if len(req.Lines) == 0 {
		return invalid(KindEmptyOrder, "order has no lines")
	}
	for _, l := range req.Lines {
		if l.Quantity <= 0 {
			return &Error{Kind: KindInvalidQuantity, ProductID: l.ProductID, Requested: l.Quantity,
				Msg: "quantity must be a positive integer"}
		}
		if l.ProductID <= 0 {
			return invalid(KindInvalidRequest, "line is missing its product")
		}
	}
	if req.StaffID <= 0 {
		return invalid(KindInvalidRequest, "staff id is required")
	}
	if !req.PaymentMethod.Valid() {
		return invalid(KindInvalidRequest, "unknown payment method "+string(req.PaymentMethod))
	}
	if req.FulfillmentBranchID != nil && *req.FulfillmentBranchID <= 0 {
		return invalid(KindMissingFulfillmentTarget, "fulfillment branch is not a valid branch")
	}
	return nil
}
