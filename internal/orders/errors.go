package orders

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindEmptyOrder                ErrorKind = "empty_order"
	KindInvalidQuantity           ErrorKind = "invalid_quantity"
	KindInvalidRequest            ErrorKind = "invalid_request"
	KindMissingFulfillmentTarget  ErrorKind = "missing_fulfillment_target"
	KindProductNotStockedAtBranch ErrorKind = "product_not_stocked_at_branch"
	KindInsufficientStock         ErrorKind = "insufficient_stock"
	KindOrderNotFound             ErrorKind = "order_not_found"
	KindPaymentNotFound           ErrorKind = "payment_not_found"
	KindInvalidTransition         ErrorKind = "invalid_transition"
	KindForbidden                 ErrorKind = "forbidden"
	KindPersistenceFailure        ErrorKind = "persistence_failure"
)

// Error is the failure type returned by every operation of this package.
// Two errors match under errors.Is when their kinds are equal.
type Error struct {
	Kind      ErrorKind
	Msg       string
	ProductID int64
	BranchID  int64
	Requested int
	Available int
	Retryable bool
	Err       error
}

var (
	ErrEmptyOrder                = &Error{Kind: KindEmptyOrder}
	ErrInvalidQuantity           = &Error{Kind: KindInvalidQuantity}
	ErrInvalidRequest            = &Error{Kind: KindInvalidRequest}
	ErrMissingFulfillmentTarget  = &Error{Kind: KindMissingFulfillmentTarget}
	ErrProductNotStockedAtBranch = &Error{Kind: KindProductNotStockedAtBranch}
	ErrInsufficientStock         = &Error{Kind: KindInsufficientStock}
	ErrOrderNotFound             = &Error{Kind: KindOrderNotFound}
	ErrPaymentNotFound           = &Error{Kind: KindPaymentNotFound}
	ErrInvalidTransition         = &Error{Kind: KindInvalidTransition}
	ErrForbidden                 = &Error{Kind: KindForbidden}
	ErrPersistenceFailure        = &Error{Kind: KindPersistenceFailure}
)

func (e *Error) Error() string {
	switch {
	case e.Kind == KindInsufficientStock:
		return fmt.Sprintf("insufficient stock for product %d at branch %d: requested %d, available %d",
			e.ProductID, e.BranchID, e.Requested, e.Available)
	case e.Kind == KindProductNotStockedAtBranch:
		return fmt.Sprintf("product %d is not stocked at branch %d", e.ProductID, e.BranchID)
	case e.Msg != "":
		return string(e.Kind) + ": " + e.Msg
	case e.Err != nil:
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func invalid(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func notStocked(productID, branchID int64) *Error {
	return &Error{Kind: KindProductNotStockedAtBranch, ProductID: productID, BranchID: branchID}
}

func insufficientStock(productID, branchID int64, requested, available int) *Error {
	return &Error{
		Kind:      KindInsufficientStock,
		ProductID: productID,
		BranchID:  branchID,
		Requested: requested,
		Available: available,
	}
}

func persistence(op string, err error, retryable bool) *Error {
	return &Error{Kind: KindPersistenceFailure, Msg: op, Err: err, Retryable: retryable}
}

// asOrderError passes *Error values through and turns anything else into a
// persistence failure.
func asOrderError(op string, err error) *Error {
	if err == nil {
		return nil
	}
	var oe *Error
	if errors.As(err, &oe) {
		return oe
	}
	return persistence(op, err, IsRetryable(err))
}
