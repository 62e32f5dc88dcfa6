package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentTransfer:
		return true
	}
	return false
}

const PaymentStatusCompleted = "completed"

type Order struct {
	ID                  int64
	CustomerID          *int64
	StaffID             int64
	OriginBranchID      int64
	FulfillmentBranchID *int64
	Status              Status
	PaymentMethod       PaymentMethod
	Total               decimal.Decimal
	CreatedAt           time.Time
	Lines               []OrderLine
	Payment             *Payment
}

// StockBranchID is the branch whose stock the order draws from.
func (o Order) StockBranchID() int64 {
	if o.FulfillmentBranchID != nil {
		return *o.FulfillmentBranchID
	}
	return o.OriginBranchID
}

type OrderLine struct {
	OrderID   int64
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Payment struct {
	ID         int64
	OrderID    int64
	CustomerID *int64
	Amount     decimal.Decimal
	Method     PaymentMethod
	Status     string
	Reference  string
	CreatedAt  time.Time
}

type BranchStock struct {
	ProductID int64
	BranchID  int64
	Quantity  int
}

// StockPrice is the locked stock row joined with the catalog price.
type StockPrice struct {
	Quantity  int
	UnitPrice decimal.Decimal
}
