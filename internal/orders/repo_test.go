package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

func TestDecrementStockRefusesStaleQuantity(t *testing.T) {
	f := newOrdersFixture(t)
	ctx := context.Background()
	repo := NewRepository(f.client.DB())
	product := f.createProduct(t, "Brass Lamp", "40.00", 5, true)

	seen, err := repo.FindProduct(ctx, product.ID)
	require.NoError(t, err)
	require.Equal(t, 5, seen.StockQuantity)

	// another buyer takes four units after the read
	ok, err := repo.DecrementStock(ctx, product.ID, 4)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.DecrementStock(ctx, product.ID, 2)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, f.stockOf(t, product.ID))

	ok, err = repo.DecrementStock(ctx, product.ID, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, f.stockOf(t, product.ID))
}

func TestDecrementStockUnknownProduct(t *testing.T) {
	f := newOrdersFixture(t)
	ok, err := NewRepository(f.client.DB()).DecrementStock(context.Background(), uuid.New(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

// rivalBuyerRepository lets another checkout take stock between the
// converter's product read and its reservation.
type rivalBuyerRepository struct {
	Repository
	takes int
}

func (r *rivalBuyerRepository) WithTx(tx *gorm.DB) Repository {
	return &rivalBuyerRepository{Repository: r.Repository.WithTx(tx), takes: r.takes}
}

func (r *rivalBuyerRepository) FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	product, err := r.Repository.FindProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if _, err := r.Repository.DecrementStock(ctx, productID, r.takes); err != nil {
		return nil, err
	}
	return product, nil
}

func TestConversionAfterRivalReservationConflicts(t *testing.T) {
	f := newOrdersFixture(t)
	gdb := f.client.DB()
	base := f.svc.(*service)

	svc, err := NewService(ServiceParams{
		Repo:      &rivalBuyerRepository{Repository: NewRepository(gdb), takes: 4},
		TxRunner:  f.client,
		Lifecycle: base.lifecycle,
		Outbox:    base.converter.outbox,
		Checkout:  testCheckoutConfig(),
	})
	require.NoError(t, err)

	f.fillCart(t, &f.buyer.ID, models.CartItem{ProductID: f.product.ID, Quantity: 2})
	_, err = svc.CreateOrderFromCart(context.Background(), CreateOrderInput{UserID: f.buyer.ID, ShippingAddressID: f.address.ID})

	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), err.Error())
	var orders int64
	require.NoError(t, gdb.Model(&models.Order{}).Where("user_id = ?", f.buyer.ID).Count(&orders).Error)
	assert.Zero(t, orders)
	var outboxRows int64
	require.NoError(t, gdb.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderCreated).Count(&outboxRows).Error)
	assert.Zero(t, outboxRows)
	assert.Equal(t, 5, f.stockOf(t, f.product.ID))
}
