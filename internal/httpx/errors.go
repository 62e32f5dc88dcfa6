package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ferremas/orders/internal/orders"
)

type errorBody struct {
	Success   bool   `json:"success"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	ProductID int64  `json:"productId,omitempty"`
	BranchID  int64  `json:"branchId,omitempty"`
	Requested *int   `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
	Retryable *bool  `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(kind orders.ErrorKind) int {
	switch kind {
	case orders.KindEmptyOrder, orders.KindInvalidQuantity, orders.KindInvalidRequest,
		orders.KindMissingFulfillmentTarget, orders.KindProductNotStockedAtBranch,
		orders.KindInsufficientStock:
		return http.StatusBadRequest
	case orders.KindOrderNotFound, orders.KindPaymentNotFound:
		return http.StatusNotFound
	case orders.KindForbidden:
		return http.StatusForbidden
	case orders.KindInvalidTransition:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError renders err as the JSON error body. Persistence failures never
// leak their cause to the client.
func writeError(w http.ResponseWriter, err error) {
	var oe *orders.Error
	if !errors.As(err, &oe) {
		oe = &orders.Error{Kind: orders.KindPersistenceFailure}
	}
	body := errorBody{Code: string(oe.Kind), Message: oe.Error()}
	switch oe.Kind {
	case orders.KindInsufficientStock:
		body.ProductID, body.BranchID = oe.ProductID, oe.BranchID
		body.Requested, body.Available = &oe.Requested, &oe.Available
	case orders.KindProductNotStockedAtBranch:
		body.ProductID, body.BranchID = oe.ProductID, oe.BranchID
	case orders.KindInvalidQuantity:
		body.ProductID = oe.ProductID
		body.Requested = &oe.Requested
	case orders.KindPersistenceFailure:
		body.Message = "the operation failed and nothing was saved"
		body.Retryable = &oe.Retryable
	}
	writeJSON(w, statusFor(oe.Kind), body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, &orders.Error{Kind: orders.KindInvalidRequest, Msg: msg})
}
