package enums

// IdempotencyOperation names an external side effect guarded by an issued key.
type IdempotencyOperation string

const (
	IdempotencyOperationCheckoutSession IdempotencyOperation = "checkout_session"
)

func (o IdempotencyOperation) String() string {
	return string(o)
}

func (o IdempotencyOperation) IsValid() bool {
	return o == IdempotencyOperationCheckoutSession
}
