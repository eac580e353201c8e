// Package fees computes the platform's share of a single-seller payment.
package fees

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bazaar-backend/pkg/money"
)

// Input is an order's fee-bearing breakdown in cents. Tax is deliberately absent.
type Input struct {
	ItemSubtotalCents          int64
	ShippingCents              int64
	PlatformFeePercent         decimal.Decimal
	OutstandingListingFeeCents int64
}

// Breakdown is the split retained by the platform.
type Breakdown struct {
	PlatformFeeCents       int64
	ListingFeeAppliedCents int64
}

// ApplicationFeeCents is the total withheld from the seller's proceeds.
func (b Breakdown) ApplicationFeeCents() int64 {
	return b.PlatformFeeCents + b.ListingFeeAppliedCents
}

// Calculate returns the platform fee and the amount of outstanding listing fees
// recovered from this payment. The recovery never exceeds what remains of the
// gross proceeds after the platform fee.
func Calculate(in Input) Breakdown {
	subtotal := nonNegative(in.ItemSubtotalCents)
	shipping := nonNegative(in.ShippingCents)
	outstanding := nonNegative(in.OutstandingListingFeeCents)

	rate := in.PlatformFeePercent
	if rate.IsNegative() {
		rate = decimal.Zero
	}
	platformFee := money.PercentOf(subtotal, rate)

	headroom := nonNegative(subtotal + shipping - platformFee)
	return Breakdown{
		PlatformFeeCents:       platformFee,
		ListingFeeAppliedCents: min(outstanding, headroom),
	}
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
