package idempotency

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
)

// Repository persists issued keys.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, record *models.IdempotencyKey) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *Repository) ListByResource(ctx context.Context, resourceID uuid.UUID) ([]models.IdempotencyKey, error) {
	var rows []models.IdempotencyKey
	err := r.db.WithContext(ctx).
		Where("resource_id = ?", resourceID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}
