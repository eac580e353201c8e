package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProcessedWebhookEvent is the dedup record for one gateway event id.
type ProcessedWebhookEvent struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	EventID     string     `gorm:"column:event_id;not null;uniqueIndex:ux_processed_webhook_events_event_id"`
	EventType   string     `gorm:"column:event_type;not null"`
	OrderID     *uuid.UUID `gorm:"column:order_id;type:uuid;index"`
	ProcessedAt time.Time  `gorm:"column:processed_at;autoCreateTime"`
}

func (e *ProcessedWebhookEvent) BeforeCreate(*gorm.DB) error {
	assignID(&e.ID)
	return nil
}
