package product

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

// Service exposes seller listing operations.
type Service interface {
	CreateListing(ctx context.Context, userID, storeID uuid.UUID, input CreateListingInput) (*ListingDTO, error)
	ListProducts(ctx context.Context, storeID uuid.UUID, params pagination.Params) (*ProductListResult, error)
}

// CreateListingInput holds the validated payload to create a product.
type CreateListingInput struct {
	Title            string
	Price            decimal.Decimal
	StockQuantity    int
	RequiresShipping bool
	ShippingOptions  []ShippingOptionInput
}

type ShippingOptionInput struct {
	Name string
	Cost decimal.Decimal
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type listingFeeLedger interface {
	AccrueListingFee(ctx context.Context, tx *gorm.DB, product models.Product) (*models.SellerLedgerEntry, error)
	CountOutstandingListingFees(ctx context.Context, storeID uuid.UUID) (int64, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ServiceParams struct {
	Repo     *Repository
	TxRunner txRunner
	Ledger   listingFeeLedger
	Outbox   outboxPublisher
	Logger   *logger.Logger
}

type service struct {
	repo   *Repository
	tx     txRunner
	ledger listingFeeLedger
	outbox outboxPublisher
	logg   *logger.Logger
}

// NewService constructs a product service instance.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:   params.Repo,
		tx:     params.TxRunner,
		ledger: params.Ledger,
		outbox: params.Outbox,
		logg:   params.Logger,
	}, nil
}

// CreateListing stores the product and accrues its listing fee in one transaction.
func (s *service) CreateListing(ctx context.Context, userID, storeID uuid.UUID, input CreateListingInput) (*ListingDTO, error) {
	if err := validateListing(&input); err != nil {
		return nil, err
	}
	store, err := s.repo.FindStore(ctx, storeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store")
	}
	if store.OwnerID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the store owner can create listings")
	}

	product := &models.Product{
		StoreID:          storeID,
		Title:            input.Title,
		Price:            input.Price,
		StockQuantity:    input.StockQuantity,
		RequiresShipping: input.RequiresShipping,
	}
	for _, opt := range input.ShippingOptions {
		product.ShippingOptions = append(product.ShippingOptions, models.ShippingOption{Name: opt.Name, Cost: opt.Cost})
	}

	var entry *models.SellerLedgerEntry
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).CreateProduct(ctx, product); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
		}
		var err error
		entry, err = s.ledger.AccrueListingFee(ctx, tx, *product)
		if err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventListingFeeAccrued,
			AggregateType: enums.AggregateStore,
			AggregateID:   storeID,
			Actor:         outbox.SellerActor(userID, storeID),
			Data: payloads.ListingFeeAccruedEvent{
				StoreID:     storeID,
				ProductID:   product.ID,
				EntryID:     entry.ID,
				AmountCents: entry.AmountCents,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	outstanding, err := s.ledger.CountOutstandingListingFees(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithStoreID(ctx, storeID.String())
		s.logg.Info(s.logg.WithField(logCtx, "product_id", product.ID.String()), "listing created")
	}
	return &ListingDTO{
		Product:             FromModel(product),
		ListingFeeEntryID:   entry.ID,
		ListingFeeCents:     -entry.AmountCents,
		OutstandingFeeCount: outstanding,
	}, nil
}

func (s *service) ListProducts(ctx context.Context, storeID uuid.UUID, params pagination.Params) (*ProductListResult, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor, storeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByStore(ctx, storeID, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}

	page := pagination.Trim(storeID, rows, params.Limit, func(p models.Product) (time.Time, uuid.UUID) {
		return p.CreatedAt, p.ID
	})
	result := &ProductListResult{Products: make([]ProductDTO, 0, len(page.Rows))}
	if page.Next != nil {
		result.NextCursor = page.Next.Encode()
	}
	for i := range page.Rows {
		result.Products = append(result.Products, FromModel(&page.Rows[i]))
	}
	return result, nil
}

func validateListing(input *CreateListingInput) error {
	input.Title = strings.TrimSpace(input.Title)
	if input.Title == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if !input.Price.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price must be positive")
	}
	if input.StockQuantity < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "stock quantity cannot be negative")
	}
	seen := make(map[string]struct{}, len(input.ShippingOptions))
	for i := range input.ShippingOptions {
		opt := &input.ShippingOptions[i]
		opt.Name = strings.TrimSpace(opt.Name)
		if opt.Name == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "shipping option name is required")
		}
		if opt.Cost.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, "shipping option cost cannot be negative")
		}
		key := strings.ToLower(opt.Name)
		if _, dup := seen[key]; dup {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "duplicate shipping option %q", opt.Name)
		}
		seen[key] = struct{}{}
	}
	if input.RequiresShipping && len(input.ShippingOptions) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "products that require shipping need at least one shipping option")
	}
	return nil
}
