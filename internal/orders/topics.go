package orders

const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status.changed"
	TopicStockLow           = "stock.low"
)

// PartitionKey keeps every event of one order on one partition so they stay ordered.
func PartitionKey(orderID int64) []byte { return []byte(CorrelationID(orderID)) }

// StockPartitionKey groups stock alerts by product and branch.
func StockPartitionKey(productID, branchID int64) []byte {
	return []byte(CorrelationID(productID) + ":" + CorrelationID(branchID))
}
