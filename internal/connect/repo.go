package connect

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
)

// Repository persists OAuth states and the resulting seller account link.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindStore(ctx context.Context, storeID uuid.UUID) (*models.Store, error)
	CreateState(ctx context.Context, state *models.ConnectAuthorizationState) error
	FindState(ctx context.Context, state string) (*models.ConnectAuthorizationState, error)
	ConsumeState(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	SetStripeAccount(ctx context.Context, userID uuid.UUID, accountID string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
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

func (r *repository) FindStore(ctx context.Context, storeID uuid.UUID) (*models.Store, error) {
	var store models.Store
	if err := r.db.WithContext(ctx).Where("id = ?", storeID).First(&store).Error; err != nil {
		return nil, err
	}
	return &store, nil
}

func (r *repository) CreateState(ctx context.Context, state *models.ConnectAuthorizationState) error {
	return r.db.WithContext(ctx).Create(state).Error
}

func (r *repository) FindState(ctx context.Context, state string) (*models.ConnectAuthorizationState, error) {
	var record models.ConnectAuthorizationState
	if err := r.db.WithContext(ctx).Where("state = ?", state).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// ConsumeState marks the state used; false means another callback got there first.
func (r *repository) ConsumeState(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ConnectAuthorizationState{}).
		Where("id = ? AND consumed_at IS NULL", id).
		Update("consumed_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) SetStripeAccount(ctx context.Context, userID uuid.UUID, accountID string) error {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("stripe_account_id", accountID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ? OR consumed_at IS NOT NULL", before).
		Delete(&models.ConnectAuthorizationState{})
	return res.RowsAffected, res.Error
}
