package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/money"
)

// EntryDTO is the seller view of one ledger row. Amount is signed.
type EntryDTO struct {
	ID             uuid.UUID             `json:"id"`
	EntryType      enums.LedgerEntryType `json:"entry_type"`
	Amount         string                `json:"amount"`
	AffectsBalance bool                  `json:"affects_balance"`
	OrderID        *uuid.UUID            `json:"order_id,omitempty"`
	ProductID      *uuid.UUID            `json:"product_id,omitempty"`
	ReversalOfID   *uuid.UUID            `json:"reversal_of_id,omitempty"`
	Description    string                `json:"description,omitempty"`
	IsSettled      bool                  `json:"is_settled"`
	SettledAt      *time.Time            `json:"settled_at,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
}

type SummaryDTO struct {
	StoreID                uuid.UUID  `json:"store_id"`
	From                   *time.Time `json:"from,omitempty"`
	To                     *time.Time `json:"to,omitempty"`
	GrossSales             string     `json:"gross_sales"`
	ShippingCollected      string     `json:"shipping_collected"`
	TaxCollected           string     `json:"tax_collected"`
	PlatformFees           string     `json:"platform_fees"`
	ListingFeesAccrued     string     `json:"listing_fees_accrued"`
	ListingFeesSettled     string     `json:"listing_fees_settled"`
	Net                    string     `json:"net"`
	OutstandingListingFees int64      `json:"outstanding_listing_fees"`
}

func NewEntryDTOs(rows []models.SellerLedgerEntry) []EntryDTO {
	out := make([]EntryDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, EntryDTO{
			ID:             row.ID,
			EntryType:      row.EntryType,
			Amount:         money.Format(row.AmountCents),
			AffectsBalance: row.AffectsBalance,
			OrderID:        row.OrderID,
			ProductID:      row.ProductID,
			ReversalOfID:   row.ReversalOfID,
			Description:    row.Description,
			IsSettled:      row.IsSettled,
			SettledAt:      row.SettledAt,
			CreatedAt:      row.CreatedAt,
		})
	}
	return out
}

func NewSummaryDTO(s *Summary) SummaryDTO {
	dto := SummaryDTO{
		StoreID:                s.StoreID,
		GrossSales:             money.Format(s.GrossSalesCents),
		ShippingCollected:      money.Format(s.ShippingCollectedCents),
		TaxCollected:           money.Format(s.TaxCollectedCents),
		PlatformFees:           money.Format(s.PlatformFeesCents),
		ListingFeesAccrued:     money.Format(s.ListingFeesAccrued),
		ListingFeesSettled:     money.Format(s.ListingFeesSettled),
		Net:                    money.Format(s.NetCents),
		OutstandingListingFees: s.OutstandingListingFees,
	}
	if !s.Period.From.IsZero() {
		from := s.Period.From
		dto.From = &from
	}
	if !s.Period.To.IsZero() {
		to := s.Period.To
		dto.To = &to
	}
	return dto
}
