package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a catalog listing. StockQuantity is decremented and restored by the order core.
type Product struct {
	ID               uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	StoreID          uuid.UUID        `gorm:"column:store_id;type:uuid;not null;index"`
	Title            string           `gorm:"column:title;not null"`
	Price            decimal.Decimal  `gorm:"column:price;type:numeric(12,2);not null"`
	StockQuantity    int              `gorm:"column:stock_quantity;not null;default:0"`
	RequiresShipping bool             `gorm:"column:requires_shipping;not null;default:false"`
	ShippingOptions  []ShippingOption `gorm:"foreignKey:ProductID"`
	CreatedAt        time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time        `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt        gorm.DeletedAt   `gorm:"column:deleted_at;index"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// ShippingOption is a seller-defined delivery choice for a product.
type ShippingOption struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ProductID uuid.UUID       `gorm:"column:product_id;type:uuid;not null;index"`
	Name      string          `gorm:"column:name;not null"`
	Cost      decimal.Decimal `gorm:"column:cost;type:numeric(12,2);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (o *ShippingOption) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}
