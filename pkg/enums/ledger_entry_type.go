package enums

import "fmt"

// LedgerEntryType classifies a seller ledger entry.
type LedgerEntryType string

const (
	LedgerEntrySaleSubtotal      LedgerEntryType = "sale_subtotal"
	LedgerEntryShippingCollected LedgerEntryType = "shipping_collected"
	LedgerEntryPlatformFee       LedgerEntryType = "platform_fee"
	LedgerEntryListingFeeAccrued LedgerEntryType = "listing_fee_accrued"
	LedgerEntryListingFeeSettled LedgerEntryType = "listing_fee_settled"
	LedgerEntryTaxCollected      LedgerEntryType = "tax_collected"
)

var validLedgerEntryTypes = []LedgerEntryType{
	LedgerEntrySaleSubtotal,
	LedgerEntryShippingCollected,
	LedgerEntryPlatformFee,
	LedgerEntryListingFeeAccrued,
	LedgerEntryListingFeeSettled,
	LedgerEntryTaxCollected,
}

// String implements fmt.Stringer.
func (t LedgerEntryType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known LedgerEntryType.
func (t LedgerEntryType) IsValid() bool {
	for _, candidate := range validLedgerEntryTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsSaleSide reports whether the entry is produced by a paid order and reversed by a refund.
func (t LedgerEntryType) IsSaleSide() bool {
	switch t {
	case LedgerEntrySaleSubtotal, LedgerEntryShippingCollected, LedgerEntryPlatformFee, LedgerEntryTaxCollected:
		return true
	}
	return false
}

// ParseLedgerEntryType converts raw input into a LedgerEntryType.
func ParseLedgerEntryType(value string) (LedgerEntryType, error) {
	for _, candidate := range validLedgerEntryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry type %q", value)
}
