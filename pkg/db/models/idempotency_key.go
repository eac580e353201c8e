package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// IdempotencyKey records a key before the external call it guards is attempted.
type IdempotencyKey struct {
	ID            uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	Key           string                     `gorm:"column:key;not null;uniqueIndex"`
	OperationType enums.IdempotencyOperation `gorm:"column:operation_type;type:text;not null"`
	ResourceID    uuid.UUID                  `gorm:"column:resource_id;type:uuid;not null;index"`
	CreatedAt     time.Time                  `gorm:"column:created_at;autoCreateTime"`
}

func (k *IdempotencyKey) BeforeCreate(*gorm.DB) error {
	assignID(&k.ID)
	return nil
}
