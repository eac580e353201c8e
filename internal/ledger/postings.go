package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/money"
)

// SaleInput is a paid order plus the platform fee withheld from it.
type SaleInput struct {
	Order            models.Order
	PlatformFeeCents int64
}

type storeShare struct {
	storeID       uuid.UUID
	subtotalCents int64
	shippingCents int64
}

// PostSale records the seller side of a paid order: one sale line per item, and
// per store the shipping collected, tax collected and platform fee. Order-level
// amounts are split across stores by item subtotal. Posting twice is a no-op.
func (s *service) PostSale(ctx context.Context, tx *gorm.DB, input SaleInput) ([]models.SellerLedgerEntry, error) {
	order := input.Order
	if order.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	items := order.ActiveItems()
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order has no active items")
	}

	var posted []models.SellerLedgerEntry
	err := s.within(ctx, tx, func(repo Repository) error {
		existing, err := repo.ListByOrderID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order ledger entries")
		}
		if hasUnreversedSale(existing) {
			return nil
		}

		orderID := order.ID
		shares := make([]*storeShare, 0, 1)
		byStore := map[uuid.UUID]*storeShare{}
		entries := make([]models.SellerLedgerEntry, 0, len(items)+3)
		for _, item := range items {
			share, ok := byStore[item.StoreID]
			if !ok {
				if err := s.requireStore(ctx, repo, item.StoreID); err != nil {
					return err
				}
				share = &storeShare{storeID: item.StoreID}
				byStore[item.StoreID] = share
				shares = append(shares, share)
			}
			itemCents := money.ToCents(item.ItemTotal)
			share.subtotalCents += itemCents
			share.shippingCents += money.ToCents(item.ShippingCost)

			itemID := item.ID
			productID := item.ProductID
			entries = append(entries, models.SellerLedgerEntry{
				StoreID:        item.StoreID,
				EntryType:      enums.LedgerEntrySaleSubtotal,
				AmountCents:    itemCents,
				AffectsBalance: true,
				OrderID:        &orderID,
				OrderItemID:    &itemID,
				ProductID:      &productID,
				Description:    fmt.Sprintf("%d x %s", item.Quantity, item.ProductTitle),
			})
		}

		subtotals := make([]int64, len(shares))
		shippingWeights := make([]int64, len(shares))
		for i, share := range shares {
			subtotals[i] = share.subtotalCents
			shippingWeights[i] = share.shippingCents
		}
		if sum(shippingWeights) == 0 {
			shippingWeights = subtotals
		}
		shipping := allocate(money.ToCents(order.ShippingAmount), shippingWeights)
		tax := allocate(money.ToCents(order.TaxAmount), subtotals)
		platformFee := allocate(input.PlatformFeeCents, subtotals)

		for i, share := range shares {
			if shipping[i] != 0 {
				entries = append(entries, orderEntry(share.storeID, orderID, enums.LedgerEntryShippingCollected, shipping[i], true, "shipping collected"))
			}
			if tax[i] != 0 {
				entries = append(entries, orderEntry(share.storeID, orderID, enums.LedgerEntryTaxCollected, tax[i], false, "tax collected"))
			}
			if platformFee[i] != 0 {
				entries = append(entries, orderEntry(share.storeID, orderID, enums.LedgerEntryPlatformFee, -platformFee[i], true, "platform fee"))
			}
		}

		if err := repo.CreateBatch(ctx, entries); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record sale entries")
		}
		posted = entries
		return nil
	})
	if err != nil {
		return nil, err
	}
	return posted, nil
}

func orderEntry(storeID, orderID uuid.UUID, entryType enums.LedgerEntryType, amount int64, affectsBalance bool, description string) models.SellerLedgerEntry {
	id := orderID
	return models.SellerLedgerEntry{
		StoreID:        storeID,
		EntryType:      entryType,
		AmountCents:    amount,
		AffectsBalance: affectsBalance,
		OrderID:        &id,
		Description:    description,
	}
}

func hasUnreversedSale(entries []models.SellerLedgerEntry) bool {
	reversed := reversedIDs(entries)
	for _, entry := range entries {
		if entry.EntryType == enums.LedgerEntrySaleSubtotal && entry.ReversalOfID == nil && !reversed[entry.ID] {
			return true
		}
	}
	return false
}

func reversedIDs(entries []models.SellerLedgerEntry) map[uuid.UUID]bool {
	reversed := make(map[uuid.UUID]bool)
	for _, entry := range entries {
		if entry.ReversalOfID != nil {
			reversed[*entry.ReversalOfID] = true
		}
	}
	return reversed
}

// ReverseOrder posts a negated copy of every sale-side entry of the order that has
// not been reversed yet. Listing fees the order settled are reopened: each gets a
// settled offsetting entry and a fresh unsettled accrual, so the balance is
// unchanged and the fee is collected again by a later sale.
func (s *service) ReverseOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) ([]models.SellerLedgerEntry, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	var reversals []models.SellerLedgerEntry
	err := s.within(ctx, tx, func(repo Repository) error {
		existing, err := repo.ListByOrderID(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order ledger entries")
		}
		reversed := reversedIDs(existing)
		for _, entry := range existing {
			if !entry.EntryType.IsSaleSide() || entry.ReversalOfID != nil || reversed[entry.ID] {
				continue
			}
			originalID := entry.ID
			reversals = append(reversals, models.SellerLedgerEntry{
				StoreID:        entry.StoreID,
				EntryType:      entry.EntryType,
				AmountCents:    -entry.AmountCents,
				AffectsBalance: entry.AffectsBalance,
				OrderID:        entry.OrderID,
				OrderItemID:    entry.OrderItemID,
				ProductID:      entry.ProductID,
				ReversalOfID:   &originalID,
				Description:    fmt.Sprintf("%s: %s", reason, entry.Description),
			})
		}
		reopened, err := s.reopenListingFees(ctx, repo, orderID, existing, reversed, reason)
		if err != nil {
			return err
		}
		reversals = append(reversals, reopened...)
		if err := repo.CreateBatch(ctx, reversals); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record reversal entries")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reversals, nil
}

// reopenListingFees undoes the listing fee settlement recorded against orderID.
func (s *service) reopenListingFees(ctx context.Context, repo Repository, orderID uuid.UUID, existing []models.SellerLedgerEntry, reversed map[uuid.UUID]bool, reason string) ([]models.SellerLedgerEntry, error) {
	var settlement *models.SellerLedgerEntry
	for i := range existing {
		entry := &existing[i]
		if entry.EntryType == enums.LedgerEntryListingFeeSettled && entry.ReversalOfID == nil && !reversed[entry.ID] {
			settlement = entry
			break
		}
	}
	if settlement == nil {
		return nil, nil
	}

	settledFees, err := repo.ListSettledBy(ctx, orderID, enums.LedgerEntryListingFeeAccrued)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settled listing fees")
	}

	now := s.now().UTC()
	settlementID := settlement.ID
	entries := []models.SellerLedgerEntry{{
		StoreID:        settlement.StoreID,
		EntryType:      enums.LedgerEntryListingFeeSettled,
		AmountCents:    -settlement.AmountCents,
		AffectsBalance: false,
		OrderID:        settlement.OrderID,
		ReversalOfID:   &settlementID,
		Description:    fmt.Sprintf("%s: %s", reason, settlement.Description),
	}}
	for _, fee := range settledFees {
		feeID := fee.ID
		settledBy := orderID
		settledAt := now
		entries = append(entries,
			models.SellerLedgerEntry{
				StoreID:        fee.StoreID,
				EntryType:      enums.LedgerEntryListingFeeAccrued,
				AmountCents:    -fee.AmountCents,
				AffectsBalance: fee.AffectsBalance,
				OrderID:        &settledBy,
				ProductID:      fee.ProductID,
				ReversalOfID:   &feeID,
				Description:    fmt.Sprintf("%s: listing fee reopened", reason),
				IsSettled:      true,
				SettledAt:      &settledAt,
				SettledOrderID: &settledBy,
			},
			models.SellerLedgerEntry{
				StoreID:        fee.StoreID,
				EntryType:      enums.LedgerEntryListingFeeAccrued,
				AmountCents:    fee.AmountCents,
				AffectsBalance: fee.AffectsBalance,
				ProductID:      fee.ProductID,
				Description:    fee.Description,
			},
		)
	}
	return entries, nil
}
