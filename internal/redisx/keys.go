package redisx

import (
	"fmt"
	"time"
)

const (
	// order_status:{order_id} -> {"status": "...", "updated_at": "..."}
	keyOrderStatus = "order_status:%d"

	// dedup:{service}:{event_id}
	keyDedup = "dedup:%s:%s"

	// stock_low:{product_id}:{branch_id}
	keyLowStock = "stock_low:%d:%d"
)

var (
	TTLStatusCache   = 5 * time.Minute
	TTLDedup         = 48 * time.Hour
	TTLLowStockAlert = 6 * time.Hour
)

func OrderStatusKey(orderID int64) string { return fmt.Sprintf(keyOrderStatus, orderID) }

func DedupKey(service, id string) string { return fmt.Sprintf(keyDedup, service, id) }

func LowStockKey(productID, branchID int64) string {
	return fmt.Sprintf(keyLowStock, productID, branchID)
}
