package models

// OrderStatus is the lifecycle state of a persisted open order.
//
// Valid transitions, driven only by the listener and the expiry scanner:
//
//	OPEN -> REFUNDING -> REFUNDED
//	OPEN -> REFUNDING -> OPEN      (refund attempt failed, retried next cycle)
//	OPEN -> FILED                  (a third party filled the order first)
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusRefunding OrderStatus = "REFUNDING"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
	OrderStatusFiled     OrderStatus = "FILED"
)

// OpenOrder is the durable record of an in-flight order, keyed by OrderID.
// Rows are never deleted; terminal statuses are kept for audit and to make
// ingestion idempotent under at-least-once event delivery.
type OpenOrder struct {
	OriginChainID      int64
	DestinationChainID int64
	// DestinationSettler is the settlement contract on the destination chain
	// responsible for fills and refunds of this order.
	DestinationSettler string
	OrderID            string
	FillDeadline       int64
	OrderData          []byte
	Status             OrderStatus
}
