package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// User is the identity the checkout core reads. StripeAccountID is the only field it writes.
type User struct {
	ID              uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Email           string         `gorm:"column:email;type:text;not null;uniqueIndex"`
	FirstName       string         `gorm:"column:first_name;not null"`
	LastName        string         `gorm:"column:last_name;not null"`
	Role            enums.UserRole `gorm:"column:role;type:text;not null;default:'buyer'"`
	StripeAccountID *string        `gorm:"column:stripe_account_id"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	assignID(&u.ID)
	return nil
}
