package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Cart holds a buyer's (or guest's) pending selections. UserID is nil for guest carts.
type Cart struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID    *uuid.UUID `gorm:"column:user_id;type:uuid;uniqueIndex"`
	Items     []CartItem `gorm:"foreignKey:CartID"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Cart) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}

// CartItem is one product selection within a cart.
type CartItem struct {
	ID               uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	CartID           uuid.UUID  `gorm:"column:cart_id;type:uuid;not null;index"`
	ProductID        uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	Quantity         int        `gorm:"column:quantity;not null"`
	ShippingOptionID *uuid.UUID `gorm:"column:shipping_option_id;type:uuid"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *CartItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}
