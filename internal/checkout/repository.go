package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// Repository exposes the reads and the single stamp write checkout needs.
type Repository interface {
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindStoreWithOwner(ctx context.Context, storeID uuid.UUID) (*models.Store, error)
	FindUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	StampSession(ctx context.Context, orderID uuid.UUID, stamp SessionStamp) (bool, error)
}

// SessionStamp is the fee split and session reference recorded on a pending order.
type SessionStamp struct {
	CheckoutSessionID      string
	PaymentIntentID        string
	PlatformFeeCents       int64
	ListingFeeAppliedCents int64
	ExpiresAt              *time.Time
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a checkout repository backed by the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC").Order("id ASC") }).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindStoreWithOwner(ctx context.Context, storeID uuid.UUID) (*models.Store, error) {
	var store models.Store
	if err := r.db.WithContext(ctx).Preload("Owner").Where("id = ?", storeID).First(&store).Error; err != nil {
		return nil, err
	}
	return &store, nil
}

func (r *repository) FindUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// StampSession writes the stamp only while the order is still pending.
func (r *repository) StampSession(ctx context.Context, orderID uuid.UUID, stamp SessionStamp) (bool, error) {
	updates := map[string]any{
		"checkout_session_id":       stamp.CheckoutSessionID,
		"platform_fee_cents":        stamp.PlatformFeeCents,
		"listing_fee_applied_cents": stamp.ListingFeeAppliedCents,
	}
	if stamp.PaymentIntentID != "" {
		updates["payment_intent_id"] = stamp.PaymentIntentID
	}
	if stamp.ExpiresAt != nil {
		updates["checkout_session_expires_at"] = stamp.ExpiresAt.UTC()
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, enums.OrderStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
