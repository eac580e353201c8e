package product

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

// Repository encapsulates product persistence logic.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a product repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindStore loads the store a listing is created under.
func (r *Repository) FindStore(ctx context.Context, storeID uuid.UUID) (*models.Store, error) {
	var store models.Store
	if err := r.db.WithContext(ctx).Where("id = ?", storeID).First(&store).Error; err != nil {
		return nil, err
	}
	return &store, nil
}

// CreateProduct inserts the product along with its shipping options.
func (r *Repository) CreateProduct(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

// FindProductByID loads a product with its shipping options.
func (r *Repository) FindProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).
		Preload("ShippingOptions").
		Where("id = ?", id).
		First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// ListByStore returns a page of store products, newest first, fetching one extra
// row so the caller can tell whether another page exists.
func (r *Repository) ListByStore(ctx context.Context, storeID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Product, error) {
	q := r.db.WithContext(ctx).
		Preload("ShippingOptions").
		Where("store_id = ?", storeID)
	if cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var products []models.Product
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}
