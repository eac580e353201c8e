package stripe

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	metaOrderID           = "order_id"
	metaPlatformFeeCents  = "platform_fee_cents"
	metaListingFeeApplied = "listing_fee_applied_cents"
)

// PaymentMetadata travels on the PaymentIntent so webhook deliveries can be tied
// back to the order and its fee split.
type PaymentMetadata struct {
	OrderID                uuid.UUID
	PlatformFeeCents       int64
	ListingFeeAppliedCents int64
}

// ToMap renders the metadata in Stripe's string map form.
func (m PaymentMetadata) ToMap() map[string]string {
	return map[string]string{
		metaOrderID:           m.OrderID.String(),
		metaPlatformFeeCents:  strconv.FormatInt(m.PlatformFeeCents, 10),
		metaListingFeeApplied: strconv.FormatInt(m.ListingFeeAppliedCents, 10),
	}
}

// ParsedMetadata is metadata read back from a gateway object. Fee fields are nil
// when the object predates them or they were stripped.
type ParsedMetadata struct {
	OrderID                uuid.UUID
	PlatformFeeCents       *int64
	ListingFeeAppliedCents *int64
}

// PaymentMetadataFromMap reads order metadata. ok is false when no order id is present.
func PaymentMetadataFromMap(raw map[string]string) (ParsedMetadata, bool, error) {
	var out ParsedMetadata
	rawOrderID := strings.TrimSpace(raw[metaOrderID])
	if rawOrderID == "" {
		return out, false, nil
	}
	orderID, err := uuid.Parse(rawOrderID)
	if err != nil {
		return out, false, fmt.Errorf("invalid %s metadata: %w", metaOrderID, err)
	}
	out.OrderID = orderID

	if out.PlatformFeeCents, err = optionalCents(raw, metaPlatformFeeCents); err != nil {
		return out, false, err
	}
	if out.ListingFeeAppliedCents, err = optionalCents(raw, metaListingFeeApplied); err != nil {
		return out, false, err
	}
	return out, true, nil
}

func optionalCents(raw map[string]string, key string) (*int64, error) {
	value := strings.TrimSpace(raw[key])
	if value == "" {
		return nil, nil
	}
	cents, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s metadata: %w", key, err)
	}
	if cents < 0 {
		return nil, fmt.Errorf("invalid %s metadata: negative", key)
	}
	return &cents, nil
}
