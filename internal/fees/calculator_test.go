package fees

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		name            string
		in              Input
		wantPlatform    int64
		wantListing     int64
		wantApplication int64
	}{
		{
			name: "single seller with outstanding listing fee",
			in: Input{
				ItemSubtotalCents:          10000,
				ShippingCents:              500,
				PlatformFeePercent:         decimal.RequireFromString("0.10"),
				OutstandingListingFeeCents: 100,
			},
			wantPlatform:    1000,
			wantListing:     100,
			wantApplication: 1100,
		},
		{
			name: "listing fee capped by headroom",
			in: Input{
				ItemSubtotalCents:          100,
				ShippingCents:              0,
				PlatformFeePercent:         decimal.RequireFromString("0.10"),
				OutstandingListingFeeCents: 5000,
			},
			wantPlatform:    10,
			wantListing:     90,
			wantApplication: 100,
		},
		{
			name: "no outstanding fees",
			in: Input{
				ItemSubtotalCents:  2000,
				ShippingCents:      300,
				PlatformFeePercent: decimal.RequireFromString("0.15"),
			},
			wantPlatform:    300,
			wantListing:     0,
			wantApplication: 300,
		},
		{
			name: "zero rate",
			in: Input{
				ItemSubtotalCents:          2000,
				PlatformFeePercent:         decimal.Zero,
				OutstandingListingFeeCents: 25,
			},
			wantPlatform:    0,
			wantListing:     25,
			wantApplication: 25,
		},
		{
			name: "negative inputs clamp to zero",
			in: Input{
				ItemSubtotalCents:          -100,
				ShippingCents:              -5,
				PlatformFeePercent:         decimal.RequireFromString("-0.5"),
				OutstandingListingFeeCents: -25,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(tt.in)
			if got.PlatformFeeCents != tt.wantPlatform {
				t.Fatalf("platform fee = %d, want %d", got.PlatformFeeCents, tt.wantPlatform)
			}
			if got.ListingFeeAppliedCents != tt.wantListing {
				t.Fatalf("listing fee applied = %d, want %d", got.ListingFeeAppliedCents, tt.wantListing)
			}
			if got.ApplicationFeeCents() != tt.wantApplication {
				t.Fatalf("application fee = %d, want %d", got.ApplicationFeeCents(), tt.wantApplication)
			}
		})
	}
}

func TestCalculateBounds(t *testing.T) {
	rates := []string{"0", "0.01", "0.10", "0.333", "0.5", "0.999", "1"}
	for subtotal := int64(0); subtotal <= 3000; subtotal += 137 {
		for shipping := int64(0); shipping <= 900; shipping += 301 {
			for outstanding := int64(0); outstanding <= 4000; outstanding += 250 {
				for _, raw := range rates {
					got := Calculate(Input{
						ItemSubtotalCents:          subtotal,
						ShippingCents:              shipping,
						PlatformFeePercent:         decimal.RequireFromString(raw),
						OutstandingListingFeeCents: outstanding,
					})
					if got.ListingFeeAppliedCents < 0 || got.ListingFeeAppliedCents > outstanding {
						t.Fatalf("listing fee %d outside [0,%d]", got.ListingFeeAppliedCents, outstanding)
					}
					if got.ApplicationFeeCents() > subtotal+shipping {
						t.Fatalf("application fee %d exceeds proceeds %d (rate %s)", got.ApplicationFeeCents(), subtotal+shipping, raw)
					}
				}
			}
		}
	}
}
