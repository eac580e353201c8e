package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

// DefaultListingFeeCents is the per-listing charge when none is configured.
const DefaultListingFeeCents int64 = 25

// Service is the seller-facing accounting surface. Methods that take a tx join
// the caller's transaction; a nil tx runs in a transaction of their own.
type Service interface {
	AccrueListingFee(ctx context.Context, tx *gorm.DB, product models.Product) (*models.SellerLedgerEntry, error)
	CountOutstandingListingFees(ctx context.Context, storeID uuid.UUID) (int64, error)
	OutstandingListingFeeCents(ctx context.Context, storeID uuid.UUID) (int64, error)
	SettleOldestListingFees(ctx context.Context, tx *gorm.DB, storeID uuid.UUID, amountCents int64, settledOrderID uuid.UUID) (int, error)
	PostSale(ctx context.Context, tx *gorm.DB, input SaleInput) ([]models.SellerLedgerEntry, error)
	ReverseOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) ([]models.SellerLedgerEntry, error)
	SumByType(ctx context.Context, storeID uuid.UUID, entryType enums.LedgerEntryType, period Period) (int64, error)
	GetLedgerEntries(ctx context.Context, storeID uuid.UUID, period Period) ([]models.SellerLedgerEntry, error)
	Summary(ctx context.Context, storeID uuid.UUID, period Period) (*Summary, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams wires the ledger service.
type ServiceParams struct {
	Repo            Repository
	TxRunner        txRunner
	Logger          *logger.Logger
	ListingFeeCents int64
	Clock           func() time.Time
}

type service struct {
	repo       Repository
	tx         txRunner
	logg       *logger.Logger
	listingFee int64
	now        func() time.Time
}

// NewService wires a ledger service with the provided repository.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.ListingFeeCents < 0 {
		return nil, fmt.Errorf("listing fee must not be negative")
	}
	fee := params.ListingFeeCents
	if fee == 0 {
		fee = DefaultListingFeeCents
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:       params.Repo,
		tx:         params.TxRunner,
		logg:       params.Logger,
		listingFee: fee,
		now:        clock,
	}, nil
}

func (s *service) within(ctx context.Context, tx *gorm.DB, fn func(repo Repository) error) error {
	if tx != nil {
		return fn(s.repo.WithTx(tx))
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return fn(s.repo.WithTx(tx))
	})
}

func (s *service) requireStore(ctx context.Context, repo Repository, storeID uuid.UUID) error {
	if storeID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	if _, err := repo.FindStore(ctx, storeID); err != nil {
		return storeLookupError(err)
	}
	return nil
}

func storeLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store")
}

func (s *service) AccrueListingFee(ctx context.Context, tx *gorm.DB, product models.Product) (*models.SellerLedgerEntry, error) {
	if product.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	productID := product.ID
	entry := &models.SellerLedgerEntry{
		StoreID:        product.StoreID,
		EntryType:      enums.LedgerEntryListingFeeAccrued,
		AmountCents:    -s.listingFee,
		AffectsBalance: true,
		ProductID:      &productID,
		Description:    fmt.Sprintf("listing fee: %s", product.Title),
	}
	err := s.within(ctx, tx, func(repo Repository) error {
		if err := s.requireStore(ctx, repo, product.StoreID); err != nil {
			return err
		}
		if err := repo.Create(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record listing fee")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) CountOutstandingListingFees(ctx context.Context, storeID uuid.UUID) (int64, error) {
	if err := s.requireStore(ctx, s.repo, storeID); err != nil {
		return 0, err
	}
	count, err := s.repo.CountUnsettled(ctx, storeID, enums.LedgerEntryListingFeeAccrued)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count outstanding listing fees")
	}
	return count, nil
}

// OutstandingListingFeeCents returns the unsettled listing fee balance as a positive amount.
func (s *service) OutstandingListingFeeCents(ctx context.Context, storeID uuid.UUID) (int64, error) {
	if err := s.requireStore(ctx, s.repo, storeID); err != nil {
		return 0, err
	}
	sum, err := s.repo.SumUnsettled(ctx, storeID, enums.LedgerEntryListingFeeAccrued)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum outstanding listing fees")
	}
	if sum < 0 {
		return -sum, nil
	}
	return sum, nil
}

// SettleOldestListingFees marks the oldest unsettled accruals as paid by settledOrderID.
// It settles floor(amount / fee) entries at most and records one summary entry.
func (s *service) SettleOldestListingFees(ctx context.Context, tx *gorm.DB, storeID uuid.UUID, amountCents int64, settledOrderID uuid.UUID) (int, error) {
	if settledOrderID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "settling order id is required")
	}
	if amountCents < 0 {
		amountCents = -amountCents
	}

	settled := 0
	err := s.within(ctx, tx, func(repo Repository) error {
		if storeID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
		}
		if _, err := repo.LockStore(ctx, storeID); err != nil {
			return storeLookupError(err)
		}

		want := int(amountCents / s.listingFee)
		if want == 0 {
			return nil
		}

		oldest, err := repo.OldestUnsettled(ctx, storeID, enums.LedgerEntryListingFeeAccrued, want)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "select outstanding listing fees")
		}
		if len(oldest) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, 0, len(oldest))
		for _, entry := range oldest {
			ids = append(ids, entry.ID)
		}
		now := s.now().UTC()
		affected, err := repo.MarkSettled(ctx, ids, now, settledOrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark listing fees settled")
		}
		if affected != int64(len(ids)) {
			return pkgerrors.New(pkgerrors.CodeConflict, "listing fees were settled concurrently")
		}

		orderID := settledOrderID
		summary := &models.SellerLedgerEntry{
			StoreID:        storeID,
			EntryType:      enums.LedgerEntryListingFeeSettled,
			AmountCents:    int64(len(ids)) * -s.listingFee,
			AffectsBalance: false,
			OrderID:        &orderID,
			Description:    fmt.Sprintf("settled %d listing fees", len(ids)),
		}
		if err := repo.Create(ctx, summary); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record listing fee settlement")
		}
		settled = len(ids)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if s.logg != nil && settled > 0 {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"store_id":      storeID.String(),
			"order_id":      settledOrderID.String(),
			"settled_count": settled,
		})
		s.logg.Info(logCtx, "listing fees settled")
	}
	return settled, nil
}

func (s *service) SumByType(ctx context.Context, storeID uuid.UUID, entryType enums.LedgerEntryType, period Period) (int64, error) {
	if !entryType.IsValid() {
		return 0, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid ledger entry type %q", entryType)
	}
	if err := s.requireStore(ctx, s.repo, storeID); err != nil {
		return 0, err
	}
	total, err := s.repo.SumByType(ctx, storeID, entryType, period)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum ledger entries")
	}
	return total, nil
}

func (s *service) GetLedgerEntries(ctx context.Context, storeID uuid.UUID, period Period) ([]models.SellerLedgerEntry, error) {
	if err := validatePeriod(period); err != nil {
		return nil, err
	}
	if err := s.requireStore(ctx, s.repo, storeID); err != nil {
		return nil, err
	}
	rows, err := s.repo.List(ctx, storeID, period)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger entries")
	}
	return rows, nil
}

func validatePeriod(period Period) error {
	if !period.From.IsZero() && !period.To.IsZero() && !period.From.Before(period.To) {
		return pkgerrors.New(pkgerrors.CodeValidation, "from must be before to")
	}
	return nil
}

// Summary is a seller statement for a period. Amounts are signed cents as stored.
type Summary struct {
	StoreID                uuid.UUID
	Period                 Period
	GrossSalesCents        int64
	ShippingCollectedCents int64
	TaxCollectedCents      int64
	PlatformFeesCents      int64
	ListingFeesAccrued     int64
	ListingFeesSettled     int64
	NetCents               int64
	OutstandingListingFees int64
}

var summaryTypes = []enums.LedgerEntryType{
	enums.LedgerEntrySaleSubtotal,
	enums.LedgerEntryShippingCollected,
	enums.LedgerEntryTaxCollected,
	enums.LedgerEntryPlatformFee,
	enums.LedgerEntryListingFeeAccrued,
	enums.LedgerEntryListingFeeSettled,
}

func (s *service) Summary(ctx context.Context, storeID uuid.UUID, period Period) (*Summary, error) {
	if err := validatePeriod(period); err != nil {
		return nil, err
	}
	if err := s.requireStore(ctx, s.repo, storeID); err != nil {
		return nil, err
	}

	totals := make(map[enums.LedgerEntryType]int64, len(summaryTypes))
	for _, entryType := range summaryTypes {
		total, err := s.repo.SumByType(ctx, storeID, entryType, period)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum ledger entries")
		}
		totals[entryType] = total
	}
	net, err := s.repo.SumBalance(ctx, storeID, period)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum ledger balance")
	}
	outstanding, err := s.repo.CountUnsettled(ctx, storeID, enums.LedgerEntryListingFeeAccrued)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count outstanding listing fees")
	}

	return &Summary{
		StoreID:                storeID,
		Period:                 period,
		GrossSalesCents:        totals[enums.LedgerEntrySaleSubtotal],
		ShippingCollectedCents: totals[enums.LedgerEntryShippingCollected],
		TaxCollectedCents:      totals[enums.LedgerEntryTaxCollected],
		PlatformFeesCents:      totals[enums.LedgerEntryPlatformFee],
		ListingFeesAccrued:     totals[enums.LedgerEntryListingFeeAccrued],
		ListingFeesSettled:     totals[enums.LedgerEntryListingFeeSettled],
		NetCents:               net,
		OutstandingListingFees: outstanding,
	}, nil
}
