package enums

// OrderItemStatus mirrors the subset of order statuses a single line can hold.
type OrderItemStatus string

const (
	OrderItemStatusPending    OrderItemStatus = "pending"
	OrderItemStatusProcessing OrderItemStatus = "processing"
	OrderItemStatusShipped    OrderItemStatus = "shipped"
	OrderItemStatusDelivered  OrderItemStatus = "delivered"
	OrderItemStatusCancelled  OrderItemStatus = "cancelled"
	OrderItemStatusRefunded   OrderItemStatus = "refunded"
)

var validOrderItemStatuses = []OrderItemStatus{
	OrderItemStatusPending,
	OrderItemStatusProcessing,
	OrderItemStatusShipped,
	OrderItemStatusDelivered,
	OrderItemStatusCancelled,
	OrderItemStatusRefunded,
}

func (s OrderItemStatus) String() string {
	return string(s)
}

func (s OrderItemStatus) IsValid() bool {
	for _, candidate := range validOrderItemStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ItemStatusFor maps an order status onto the matching line status.
func ItemStatusFor(status OrderStatus) OrderItemStatus {
	return OrderItemStatus(status)
}
