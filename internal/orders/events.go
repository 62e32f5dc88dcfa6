package orders

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventStockLow           = "StockLow"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // usually the order id
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps payload as a version 1 event.
func NewEnvelope(eventType, producer, correlationID string, at time.Time, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    at,
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       b,
	}, nil
}

type LineQty struct {
	ProductID int64  `json:"product_id"`
	Qty       int    `json:"qty"`
	UnitPrice string `json:"unit_price"`
}

type OrderCreatedPayload struct {
	OrderID             int64     `json:"order_id"`
	StaffID             int64     `json:"staff_id"`
	OriginBranchID      int64     `json:"origin_branch_id"`
	FulfillmentBranchID *int64    `json:"fulfillment_branch_id,omitempty"`
	StockBranchID       int64     `json:"stock_branch_id"`
	Status              Status    `json:"status"`
	Total               string    `json:"total"`
	Lines               []LineQty `json:"lines"`
}

// NewOrderCreatedPayload builds the event body from a fully loaded order.
func NewOrderCreatedPayload(o Order) OrderCreatedPayload {
	p := OrderCreatedPayload{
		OrderID:             o.ID,
		StaffID:             o.StaffID,
		OriginBranchID:      o.OriginBranchID,
		FulfillmentBranchID: o.FulfillmentBranchID,
		StockBranchID:       o.StockBranchID(),
		Status:              o.Status,
		Total:               o.Total.StringFixed(2),
		Lines:               make([]LineQty, 0, len(o.Lines)),
	}
	for _, l := range o.Lines {
		p.Lines = append(p.Lines, LineQty{
			ProductID: l.ProductID,
			Qty:       l.Quantity,
			UnitPrice: l.UnitPrice.StringFixed(2),
		})
	}
	return p
}

type OrderStatusChangedPayload struct {
	OrderID int64  `json:"order_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
}

type StockLowPayload struct {
	ProductID int64 `json:"product_id"`
	BranchID  int64 `json:"branch_id"`
	Quantity  int   `json:"quantity"`
	Threshold int   `json:"threshold"`
}

// CorrelationID renders an order id for envelopes and partition keys.
func CorrelationID(orderID int64) string { return strconv.FormatInt(orderID, 10) }
