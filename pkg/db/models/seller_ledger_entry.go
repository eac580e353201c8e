package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// SellerLedgerEntry is an append-only accounting fact for one store. Amounts are
// signed minor units; only the settlement fields are ever updated.
type SellerLedgerEntry struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	StoreID        uuid.UUID             `gorm:"column:store_id;type:uuid;not null;index:ix_ledger_store_type_settled,priority:1"`
	EntryType      enums.LedgerEntryType `gorm:"column:entry_type;type:text;not null;index:ix_ledger_store_type_settled,priority:2"`
	AmountCents    int64                 `gorm:"column:amount_cents;not null"`
	AffectsBalance bool                  `gorm:"column:affects_balance;not null"`
	OrderID        *uuid.UUID            `gorm:"column:order_id;type:uuid;index"`
	OrderItemID    *uuid.UUID            `gorm:"column:order_item_id;type:uuid"`
	ProductID      *uuid.UUID            `gorm:"column:product_id;type:uuid"`
	ReversalOfID   *uuid.UUID            `gorm:"column:reversal_of_id;type:uuid;uniqueIndex"`
	Description    string                `gorm:"column:description;not null;default:''"`
	IsSettled      bool                  `gorm:"column:is_settled;not null;default:false;index:ix_ledger_store_type_settled,priority:3"`
	SettledAt      *time.Time            `gorm:"column:settled_at"`
	SettledOrderID *uuid.UUID            `gorm:"column:settled_order_id;type:uuid"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime;index:ix_ledger_store_type_settled,priority:4"`
}

func (e *SellerLedgerEntry) BeforeCreate(*gorm.DB) error {
	assignID(&e.ID)
	return nil
}
