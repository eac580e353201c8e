package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

type fixture struct {
	client *db.Client
	svc    Service
	store  models.Store
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client := dbtest.Open(t)
	svc, err := NewService(ServiceParams{
		Repo:            NewRepository(client.DB()),
		TxRunner:        client,
		ListingFeeCents: 25,
	})
	require.NoError(t, err)

	owner := models.User{Email: uuid.NewString() + "@example.com", FirstName: "Sel", LastName: "Ler", Role: enums.UserRoleSeller}
	require.NoError(t, client.DB().Create(&owner).Error)
	store := models.Store{OwnerID: owner.ID, Name: "Corner Shop"}
	require.NoError(t, client.DB().Create(&store).Error)

	return fixture{client: client, svc: svc, store: store}
}

// seedAccruals inserts n unsettled listing fees one minute apart, oldest first.
func seedAccruals(t *testing.T, f fixture, n int) []models.SellerLedgerEntry {
	t.Helper()
	base := time.Now().UTC().Add(-time.Duration(n+1) * time.Hour)
	entries := make([]models.SellerLedgerEntry, 0, n)
	for i := 0; i < n; i++ {
		productID := uuid.New()
		entry := models.SellerLedgerEntry{
			StoreID:        f.store.ID,
			EntryType:      enums.LedgerEntryListingFeeAccrued,
			AmountCents:    -25,
			AffectsBalance: true,
			ProductID:      &productID,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, f.client.DB().Create(&entry).Error)
		entries = append(entries, entry)
	}
	return entries
}

func TestAccrueListingFee(t *testing.T) {
	f := newFixture(t)
	product := models.Product{ID: uuid.New(), StoreID: f.store.ID, Title: "Lamp"}

	entry, err := f.svc.AccrueListingFee(context.Background(), nil, product)
	require.NoError(t, err)
	assert.Equal(t, int64(-25), entry.AmountCents)
	assert.Equal(t, enums.LedgerEntryListingFeeAccrued, entry.EntryType)
	assert.False(t, entry.IsSettled)
	require.NotNil(t, entry.ProductID)
	assert.Equal(t, product.ID, *entry.ProductID)

	count, err := f.svc.CountOutstandingListingFees(context.Background(), f.store.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	outstanding, err := f.svc.OutstandingListingFeeCents(context.Background(), f.store.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(25), outstanding)
}

func TestAccrueListingFeeUnknownStoreFails(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.AccrueListingFee(context.Background(), nil, models.Product{ID: uuid.New(), StoreID: uuid.New()})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestSettleOldestListingFeesFIFO(t *testing.T) {
	f := newFixture(t)
	seeded := seedAccruals(t, f, 10)
	orderY := uuid.New()

	settled, err := f.svc.SettleOldestListingFees(context.Background(), nil, f.store.ID, 125, orderY)
	require.NoError(t, err)
	assert.Equal(t, 5, settled)

	count, err := f.svc.CountOutstandingListingFees(context.Background(), f.store.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)

	var rows []models.SellerLedgerEntry
	require.NoError(t, f.client.DB().
		Where("entry_type = ?", enums.LedgerEntryListingFeeAccrued).
		Order("created_at ASC").
		Find(&rows).Error)
	require.Len(t, rows, 10)
	for i, row := range rows {
		assert.Equal(t, seeded[i].ID, row.ID)
		if i < 5 {
			assert.True(t, row.IsSettled, "entry %d should be settled", i)
			require.NotNil(t, row.SettledOrderID)
			assert.Equal(t, orderY, *row.SettledOrderID)
			assert.NotNil(t, row.SettledAt)
		} else {
			assert.False(t, row.IsSettled, "entry %d should stay outstanding", i)
		}
	}

	settledTotal, err := f.svc.SumByType(context.Background(), f.store.ID, enums.LedgerEntryListingFeeSettled, Period{})
	require.NoError(t, err)
	assert.Equal(t, int64(5*-25), settledTotal)
}

func TestSettleOldestListingFeesCapsAtOutstanding(t *testing.T) {
	f := newFixture(t)
	seedAccruals(t, f, 3)

	settled, err := f.svc.SettleOldestListingFees(context.Background(), nil, f.store.ID, 1000, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 3, settled)

	again, err := f.svc.SettleOldestListingFees(context.Background(), nil, f.store.ID, 1000, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 0, again)

	var summaries int64
	require.NoError(t, f.client.DB().Model(&models.SellerLedgerEntry{}).
		Where("entry_type = ?", enums.LedgerEntryListingFeeSettled).
		Count(&summaries).Error)
	assert.Equal(t, int64(1), summaries, "no summary entry when nothing settled")
}

func TestSettleOldestListingFeesFloorsPartialFee(t *testing.T) {
	f := newFixture(t)
	seedAccruals(t, f, 4)

	settled, err := f.svc.SettleOldestListingFees(context.Background(), nil, f.store.ID, 49, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 1, settled)
}

func TestSettleOldestListingFeesUnknownStore(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SettleOldestListingFees(context.Background(), nil, uuid.New(), 125, uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func paidOrder(t *testing.T, f fixture) models.Order {
	t.Helper()
	storeID := f.store.ID
	order := models.Order{
		StoreID:        &storeID,
		Status:         enums.OrderStatusProcessing,
		SubtotalAmount: decimal.RequireFromString("100.00"),
		TaxAmount:      decimal.RequireFromString("8.00"),
		ShippingAmount: decimal.RequireFromString("5.00"),
		TotalAmount:    decimal.RequireFromString("113.00"),
		Items: []models.OrderItem{
			{ProductID: uuid.New(), StoreID: storeID, ProductTitle: "Lamp", Quantity: 2, UnitPrice: decimal.RequireFromString("30.00"), ItemTotal: decimal.RequireFromString("60.00"), ShippingCost: decimal.RequireFromString("5.00"), Status: enums.OrderItemStatusProcessing},
			{ProductID: uuid.New(), StoreID: storeID, ProductTitle: "Shade", Quantity: 1, UnitPrice: decimal.RequireFromString("40.00"), ItemTotal: decimal.RequireFromString("40.00"), Status: enums.OrderItemStatusProcessing},
		},
	}
	require.NoError(t, f.client.DB().Create(&order).Error)
	return order
}

func TestPostSaleAndSummary(t *testing.T) {
	f := newFixture(t)
	seedAccruals(t, f, 2)
	order := paidOrder(t, f)

	entries, err := f.svc.PostSale(context.Background(), nil, SaleInput{Order: order, PlatformFeeCents: 1000})
	require.NoError(t, err)
	require.Len(t, entries, 5)

	again, err := f.svc.PostSale(context.Background(), nil, SaleInput{Order: order, PlatformFeeCents: 1000})
	require.NoError(t, err)
	assert.Empty(t, again, "second posting is a no-op")

	summary, err := f.svc.Summary(context.Background(), f.store.ID, Period{})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), summary.GrossSalesCents)
	assert.Equal(t, int64(500), summary.ShippingCollectedCents)
	assert.Equal(t, int64(800), summary.TaxCollectedCents)
	assert.Equal(t, int64(-1000), summary.PlatformFeesCents)
	assert.Equal(t, int64(-50), summary.ListingFeesAccrued)
	assert.Equal(t, int64(2), summary.OutstandingListingFees)
	// tax is collected on behalf of the authority and stays out of the payable balance
	assert.Equal(t, int64(10000+500-1000-50), summary.NetCents)
}

func TestReverseOrderIsIdempotent(t *testing.T) {
	f := newFixture(t)
	order := paidOrder(t, f)
	_, err := f.svc.PostSale(context.Background(), nil, SaleInput{Order: order, PlatformFeeCents: 1000})
	require.NoError(t, err)

	reversals, err := f.svc.ReverseOrder(context.Background(), nil, order.ID, "refund")
	require.NoError(t, err)
	require.Len(t, reversals, 5)
	for _, r := range reversals {
		require.NotNil(t, r.ReversalOfID)
	}

	again, err := f.svc.ReverseOrder(context.Background(), nil, order.ID, "refund")
	require.NoError(t, err)
	assert.Empty(t, again)

	summary, err := f.svc.Summary(context.Background(), f.store.ID, Period{})
	require.NoError(t, err)
	assert.Zero(t, summary.GrossSalesCents)
	assert.Zero(t, summary.TaxCollectedCents)
	assert.Zero(t, summary.NetCents)
}

func TestReverseOrderReopensSettledListingFees(t *testing.T) {
	f := newFixture(t)
	order := paidOrder(t, f)
	seeded := seedAccruals(t, f, 3)
	_, err := f.svc.PostSale(context.Background(), nil, SaleInput{Order: order, PlatformFeeCents: 1000})
	require.NoError(t, err)
	settled, err := f.svc.SettleOldestListingFees(context.Background(), nil, f.store.ID, 50, order.ID)
	require.NoError(t, err)
	require.Equal(t, 2, settled)

	before, err := f.svc.Summary(context.Background(), f.store.ID, Period{})
	require.NoError(t, err)
	require.Equal(t, int64(1), before.OutstandingListingFees)

	reversals, err := f.svc.ReverseOrder(context.Background(), nil, order.ID, "refunded")
	require.NoError(t, err)
	assert.Len(t, reversals, 5+1+2*2)

	count, err := f.svc.CountOutstandingListingFees(context.Background(), f.store.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	outstanding, err := f.svc.OutstandingListingFeeCents(context.Background(), f.store.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(75), outstanding)

	after, err := f.svc.Summary(context.Background(), f.store.ID, Period{})
	require.NoError(t, err)
	assert.Zero(t, after.GrossSalesCents)
	assert.Zero(t, after.ListingFeesSettled)
	assert.Equal(t, int64(-75), after.NetCents, "only the three listing fees remain owed")

	var originals []models.SellerLedgerEntry
	require.NoError(t, f.client.DB().Where("id IN ?", []uuid.UUID{seeded[0].ID, seeded[1].ID}).Find(&originals).Error)
	for _, fee := range originals {
		assert.True(t, fee.IsSettled, "settled rows are never updated back")
	}

	again, err := f.svc.ReverseOrder(context.Background(), nil, order.ID, "refunded")
	require.NoError(t, err)
	assert.Empty(t, again)
	count, err = f.svc.CountOutstandingListingFees(context.Background(), f.store.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestGetLedgerEntriesChronological(t *testing.T) {
	f := newFixture(t)
	seeded := seedAccruals(t, f, 3)

	rows, err := f.svc.GetLedgerEntries(context.Background(), f.store.ID, Period{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i := range rows {
		assert.Equal(t, seeded[i].ID, rows[i].ID)
	}

	window := Period{From: seeded[1].CreatedAt, To: seeded[2].CreatedAt}
	rows, err = f.svc.GetLedgerEntries(context.Background(), f.store.ID, window)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, seeded[1].ID, rows[0].ID)

	_, err = f.svc.GetLedgerEntries(context.Background(), f.store.ID, Period{From: seeded[2].CreatedAt, To: seeded[0].CreatedAt})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestAllocateConservesTotal(t *testing.T) {
	parts := allocate(1001, []int64{1, 1, 1})
	assert.Equal(t, []int64{333, 333, 335}, parts)
	assert.Equal(t, []int64{50, 0}, allocate(50, []int64{0, 0}))
	assert.Empty(t, allocate(50, nil))
}

func TestNewServiceValidation(t *testing.T) {
	client := dbtest.Open(t)
	_, err := NewService(ServiceParams{TxRunner: client})
	assert.Error(t, err)
	_, err = NewService(ServiceParams{Repo: NewRepository(client.DB())})
	assert.Error(t, err)
	_, err = NewService(ServiceParams{Repo: NewRepository(client.DB()), TxRunner: client, ListingFeeCents: -1})
	assert.Error(t, err)
}
