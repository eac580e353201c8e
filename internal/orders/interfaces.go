package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/ledger"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
)

// Repository defines persistence operations for orders and the catalog rows they touch.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindCartByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	FindCartByID(ctx context.Context, cartID uuid.UUID) (*models.Cart, error)
	ClearCart(ctx context.Context, cartID uuid.UUID) error
	FindAddress(ctx context.Context, addressID uuid.UUID) (*models.Address, error)
	FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	FindStore(ctx context.Context, storeID uuid.UUID) (*models.Store, error)
	DecrementStock(ctx context.Context, productID uuid.UUID, qty int) (bool, error)
	RestoreStock(ctx context.Context, productID uuid.UUID, qty int) error

	CreateOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	LockOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrderByChargeID(ctx context.Context, chargeID string) (*models.Order, error)
	FindOrderByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Order, error)
	TransitionStatus(ctx context.Context, orderID uuid.UUID, from enums.OrderStatus, updates map[string]any) (bool, error)
	UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	UpdateActiveItemStatuses(ctx context.Context, orderID uuid.UUID, status enums.OrderItemStatus) error
	ListPendingBefore(ctx context.Context, cutoff, now time.Time, limit int) ([]models.Order, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ledgerPoster is the slice of the seller ledger the lifecycle drives.
type ledgerPoster interface {
	PostSale(ctx context.Context, tx *gorm.DB, input ledger.SaleInput) ([]models.SellerLedgerEntry, error)
	ReverseOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) ([]models.SellerLedgerEntry, error)
	SettleOldestListingFees(ctx context.Context, tx *gorm.DB, storeID uuid.UUID, amountCents int64, settledOrderID uuid.UUID) (int, error)
}
