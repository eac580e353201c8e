package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// Period bounds a ledger query to [From, To). Zero values leave that side open.
type Period struct {
	From time.Time
	To   time.Time
}

// Repository manages persistence for seller ledger entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindStore(ctx context.Context, storeID uuid.UUID) (*models.Store, error)
	LockStore(ctx context.Context, storeID uuid.UUID) (*models.Store, error)
	Create(ctx context.Context, entry *models.SellerLedgerEntry) error
	CreateBatch(ctx context.Context, entries []models.SellerLedgerEntry) error
	CountUnsettled(ctx context.Context, storeID uuid.UUID, entryType enums.LedgerEntryType) (int64, error)
	SumUnsettled(ctx context.Context, storeID uuid.UUID, entryType enums.LedgerEntryType) (int64, error)
	OldestUnsettled(ctx context.Context, storeID uuid.UUID, entryType enums.LedgerEntryType, limit int) ([]models.SellerLedgerEntry, error)
	MarkSettled(ctx context.Context, ids []uuid.UUID, settledAt time.Time, settledOrderID uuid.UUID) (int64, error)
	SumByType(ctx context.Context, storeID uuid.UUID, entryType enums.LedgerEntryType, period Period) (int64, error)
	SumBalance(ctx context.Context, storeID uuid.UUID, period Period) (int64, error)
	List(ctx context.Context, storeID uuid.UUID, period Period) ([]models.SellerLedgerEntry, error)
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.SellerLedgerEntry, error)
	ListSettledBy(ctx context.Context, orderID uuid.UUID, entryType enums.LedgerEntryType) ([]models.SellerLedgerEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
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

// LockStore takes a row lock on the store so settlement for one seller is serialized.
func (r *repository) LockStore(ctx context.Context, storeID uuid.UUID) (*models.Store, error) {
	var store models.Store
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", storeID).
		First(&store).Error; err != nil {
		return nil, err
	}
	return &store, nil
}

func (r *repository) Create(ctx context.Context, entry *models.SellerLedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) CreateBatch(ctx context.Context, entries []models.SellerLedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&entries).Error
}

func (r *repository) unsettled(ctx context.Context, storeID uuid.UUID, entryType enums.LedgerEntryType) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.SellerLedgerEntry{}).
		Where("store_id = ? AND entry_type = ? AND is_settled = ?", storeID, entryType, false)
}

func (r *repository) CountUnsettled(ctx context.Context, storeID uuid.UUID, entryType enums.LedgerEntryType) (int64, error) {
	var count int64
	err := r.unsettled(ctx, storeID, entryType).Count(&count).Error
	return count, err
}

func (r *repository) SumUnsettled(ctx context.Context, storeID uuid.UUID, entryType enums.LedgerEntryType) (int64, error) {
	var total int64
	err := r.unsettled(ctx, storeID, entryType).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&total).Error
	return total, err
}

func (r *repository) OldestUnsettled(ctx context.Context, storeID uuid.UUID, entryType enums.LedgerEntryType, limit int) ([]models.SellerLedgerEntry, error) {
	var rows []models.SellerLedgerEntry
	err := r.unsettled(ctx, storeID, entryType).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MarkSettled flips settlement fields on still-unsettled rows and reports how many changed.
func (r *repository) MarkSettled(ctx context.Context, ids []uuid.UUID, settledAt time.Time, settledOrderID uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.SellerLedgerEntry{}).
		Where("id IN ? AND is_settled = ?", ids, false).
		Updates(map[string]any{
			"is_settled":       true,
			"settled_at":       settledAt,
			"settled_order_id": settledOrderID,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) inPeriod(query *gorm.DB, period Period) *gorm.DB {
	if !period.From.IsZero() {
		query = query.Where("created_at >= ?", period.From)
	}
	if !period.To.IsZero() {
		query = query.Where("created_at < ?", period.To)
	}
	return query
}

func (r *repository) SumByType(ctx context.Context, storeID uuid.UUID, entryType enums.LedgerEntryType, period Period) (int64, error) {
	var total int64
	query := r.db.WithContext(ctx).
		Model(&models.SellerLedgerEntry{}).
		Where("store_id = ? AND entry_type = ?", storeID, entryType)
	err := r.inPeriod(query, period).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&total).Error
	return total, err
}

func (r *repository) SumBalance(ctx context.Context, storeID uuid.UUID, period Period) (int64, error) {
	var total int64
	query := r.db.WithContext(ctx).
		Model(&models.SellerLedgerEntry{}).
		Where("store_id = ? AND affects_balance = ?", storeID, true)
	err := r.inPeriod(query, period).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&total).Error
	return total, err
}

func (r *repository) List(ctx context.Context, storeID uuid.UUID, period Period) ([]models.SellerLedgerEntry, error) {
	var rows []models.SellerLedgerEntry
	query := r.db.WithContext(ctx).Where("store_id = ?", storeID)
	err := r.inPeriod(query, period).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.SellerLedgerEntry, error) {
	var rows []models.SellerLedgerEntry
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// ListSettledBy returns the entries of a type that the given order settled.
func (r *repository) ListSettledBy(ctx context.Context, orderID uuid.UUID, entryType enums.LedgerEntryType) ([]models.SellerLedgerEntry, error) {
	var rows []models.SellerLedgerEntry
	err := r.db.WithContext(ctx).
		Where("settled_order_id = ? AND entry_type = ? AND reversal_of_id IS NULL", orderID, entryType).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}
