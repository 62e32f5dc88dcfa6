package httpx

import (
	"context"
	"net/http"
	"strconv"
)

const (
	HeaderStaffID  = "X-Staff-ID"
	HeaderBranchID = "X-Branch-ID"
)

// Staff is the caller identity forwarded by the gateway after it verified
// the session.
type Staff struct {
	ID       int64
	BranchID int64
}

type staffKey struct{}

// RequireStaff rejects requests without a usable staff identity.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		staffID, err1 := strconv.ParseInt(r.Header.Get(HeaderStaffID), 10, 64)
		branchID, err2 := strconv.ParseInt(r.Header.Get(HeaderBranchID), 10, 64)
		if err1 != nil || err2 != nil || staffID <= 0 || branchID <= 0 {
			writeJSON(w, http.StatusUnauthorized, errorBody{Code: "unauthorized", Message: "missing or invalid staff identity"})
			return
		}
		ctx := context.WithValue(r.Context(), staffKey{}, Staff{ID: staffID, BranchID: branchID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func staffFrom(ctx context.Context) Staff {
	s, _ := ctx.Value(staffKey{}).(Staff)
	return s
}
