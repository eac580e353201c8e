package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConnectAuthorizationState binds a store to one OAuth attempt.
type ConnectAuthorizationState struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	State      string     `gorm:"column:state;not null;uniqueIndex"`
	StoreID    uuid.UUID  `gorm:"column:store_id;type:uuid;not null;index"`
	UserID     uuid.UUID  `gorm:"column:user_id;type:uuid;not null"`
	ExpiresAt  time.Time  `gorm:"column:expires_at;not null;index"`
	ConsumedAt *time.Time `gorm:"column:consumed_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (s *ConnectAuthorizationState) BeforeCreate(*gorm.DB) error {
	assignID(&s.ID)
	return nil
}

// Expired reports whether the state can no longer be redeemed at now.
func (s ConnectAuthorizationState) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
