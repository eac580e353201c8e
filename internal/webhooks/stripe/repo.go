package stripewebhook

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
)

// Repository persists processed-event records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Claim(ctx context.Context, record *models.ProcessedWebhookEvent) (bool, error)
	AttachOrder(ctx context.Context, recordID, orderID uuid.UUID) error
	FindByEventID(ctx context.Context, eventID string) (*models.ProcessedWebhookEvent, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Claim inserts the record unless the event id is already known. A concurrent
// delivery of the same id waits on the unique index and then sees no row inserted.
func (r *repository) Claim(ctx context.Context, record *models.ProcessedWebhookEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(record)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) AttachOrder(ctx context.Context, recordID, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.ProcessedWebhookEvent{}).
		Where("id = ?", recordID).
		Update("order_id", orderID).Error
}

func (r *repository) FindByEventID(ctx context.Context, eventID string) (*models.ProcessedWebhookEvent, error) {
	var record models.ProcessedWebhookEvent
	if err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}
