package enums

// OutboxAggregateType identifies the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder OutboxAggregateType = "order"
	AggregateStore OutboxAggregateType = "store"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateStore,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// OutboxEventType names a domain event published through the outbox.
type OutboxEventType string

const (
	EventOrderCreated      OutboxEventType = "order_created"
	EventOrderPaid         OutboxEventType = "order_paid"
	EventOrderCancelled    OutboxEventType = "order_cancelled"
	EventOrderShipped      OutboxEventType = "order_shipped"
	EventOrderDelivered    OutboxEventType = "order_delivered"
	EventOrderRefunded     OutboxEventType = "order_refunded"
	EventDisputeOpened     OutboxEventType = "dispute_opened"
	EventSellerConnected   OutboxEventType = "seller_connected"
	EventListingFeeAccrued OutboxEventType = "listing_fee_accrued"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderPaid,
	EventOrderCancelled,
	EventOrderShipped,
	EventOrderDelivered,
	EventOrderRefunded,
	EventDisputeOpened,
	EventSellerConnected,
	EventListingFeeAccrued,
}

func (e OutboxEventType) String() string {
	return string(e)
}

// IsValid reports whether the value is a known outbox event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}
