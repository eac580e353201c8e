package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/internal/idempotency"
	"github.com/angelmondragon/bazaar-backend/internal/ledger"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	pkgstripe "github.com/angelmondragon/bazaar-backend/pkg/stripe"
)

type fakeGateway struct {
	requests []pkgstripe.SessionRequest
	err      error
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req pkgstripe.SessionRequest) (*pkgstripe.Session, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	return &pkgstripe.Session{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1", PaymentIntentID: "pi_1"}, nil
}

type outcomeCounter map[string]int

func (c outcomeCounter) ObserveCheckoutSession(outcome string) { c[outcome]++ }

type checkoutFixture struct {
	client  *db.Client
	svc     Service
	gateway *fakeGateway
	ledger  ledger.Service
	keys    *idempotency.Repository
	metrics outcomeCounter
	buyer   models.User
	seller  models.User
	store   models.Store
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	client := dbtest.Open(t)
	gdb := client.DB()

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:            ledger.NewRepository(gdb),
		TxRunner:        client,
		ListingFeeCents: 25,
	})
	require.NoError(t, err)
	keys := idempotency.NewRepository(gdb)
	issuer, err := idempotency.NewIssuer(keys)
	require.NoError(t, err)

	f := &checkoutFixture{client: client, gateway: &fakeGateway{}, ledger: ledgerSvc, keys: keys, metrics: outcomeCounter{}}
	f.svc, err = NewService(ServiceParams{
		Repo:               NewRepository(gdb),
		Gateway:            f.gateway,
		Issuer:             issuer,
		Ledger:             ledgerSvc,
		PlatformFeePercent: decimal.RequireFromString("0.10"),
		Metrics:            f.metrics,
	})
	require.NoError(t, err)

	account := "acct_seller"
	f.buyer = models.User{Email: "buyer@example.com", FirstName: "B", LastName: "Uyer", Role: enums.UserRoleBuyer}
	f.seller = models.User{Email: "seller@example.com", FirstName: "S", LastName: "Eller", Role: enums.UserRoleSeller, StripeAccountID: &account}
	require.NoError(t, gdb.Create(&f.buyer).Error)
	require.NoError(t, gdb.Create(&f.seller).Error)
	f.store = models.Store{OwnerID: f.seller.ID, Name: "Lamp Works"}
	require.NoError(t, gdb.Create(&f.store).Error)
	return f
}

// seedOrder stores a pending order for the buyer; each line is (storeID, unit price, qty).
func (f *checkoutFixture) seedOrder(t *testing.T, shipping string, lines ...models.OrderItem) models.Order {
	t.Helper()
	var subtotal decimal.Decimal
	for i := range lines {
		lines[i].ProductID = uuid.New()
		lines[i].ItemTotal = lines[i].UnitPrice.Mul(decimal.NewFromInt(int64(lines[i].Quantity)))
		lines[i].Status = enums.OrderItemStatusPending
		if lines[i].ProductTitle == "" {
			lines[i].ProductTitle = "Lamp"
		}
		subtotal = subtotal.Add(lines[i].ItemTotal)
	}
	buyerID := f.buyer.ID
	shippingAmount := decimal.RequireFromString(shipping)
	order := models.Order{
		UserID:         &buyerID,
		Status:         enums.OrderStatusPending,
		SubtotalAmount: subtotal,
		ShippingAmount: shippingAmount,
		TaxAmount:      decimal.Zero,
		TotalAmount:    subtotal.Add(shippingAmount),
		Currency:       "usd",
		Items:          lines,
	}
	require.NoError(t, f.client.DB().Create(&order).Error)
	return order
}

func (f *checkoutFixture) line(storeID uuid.UUID, price string, qty int) models.OrderItem {
	return models.OrderItem{StoreID: storeID, UnitPrice: decimal.RequireFromString(price), Quantity: qty}
}

func (f *checkoutFixture) accrue(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := f.ledger.AccrueListingFee(context.Background(), nil, models.Product{ID: uuid.New(), StoreID: f.store.ID, Title: "listing"})
		require.NoError(t, err)
	}
}

func (f *checkoutFixture) buyerInput(orderID uuid.UUID) Input {
	buyerID := f.buyer.ID
	return Input{OrderID: orderID, UserID: &buyerID}
}

func TestCreateCheckoutSessionAppliesFeeSplit(t *testing.T) {
	f := newCheckoutFixture(t)
	f.accrue(t, 4)
	order := f.seedOrder(t, "5.00", f.line(f.store.ID, "50.00", 2))

	result, err := f.svc.CreateCheckoutSession(context.Background(), f.buyerInput(order.ID))
	require.NoError(t, err)

	assert.Equal(t, "cs_test_1", result.SessionID)
	assert.Equal(t, int64(1000), result.Fees.PlatformFeeCents)
	assert.Equal(t, int64(100), result.Fees.ListingFeeAppliedCents)
	assert.Equal(t, int64(1100), result.ApplicationFeeCents)

	require.Len(t, f.gateway.requests, 1)
	req := f.gateway.requests[0]
	assert.Equal(t, "acct_seller", req.DestinationAccountID)
	assert.Equal(t, int64(1100), req.ApplicationFeeCents)
	assert.Equal(t, "buyer@example.com", req.CustomerEmail)
	assert.Equal(t, order.ID, req.Metadata.OrderID)
	assert.Equal(t, int64(100), req.Metadata.ListingFeeAppliedCents)
	require.Len(t, req.LineItems, 2)
	assert.Equal(t, pkgstripe.LineItem{Name: "Lamp", UnitAmountCents: 5000, Quantity: 2}, req.LineItems[0])
	assert.Equal(t, pkgstripe.LineItem{Name: "Shipping", UnitAmountCents: 500, Quantity: 1}, req.LineItems[1])

	keys, err := f.keys.ListByResource(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, keys[0].Key, req.IdempotencyKey)

	var stamped models.Order
	require.NoError(t, f.client.DB().Where("id = ?", order.ID).First(&stamped).Error)
	require.NotNil(t, stamped.CheckoutSessionID)
	assert.Equal(t, "cs_test_1", *stamped.CheckoutSessionID)
	require.NotNil(t, stamped.PlatformFeeCents)
	assert.Equal(t, int64(1000), *stamped.PlatformFeeCents)
	require.NotNil(t, stamped.ListingFeeAppliedCents)
	assert.Equal(t, int64(100), *stamped.ListingFeeAppliedCents)
	require.NotNil(t, stamped.PaymentIntentID)
	assert.Equal(t, "pi_1", *stamped.PaymentIntentID)

	assert.Equal(t, 1, f.metrics["created"])
}

func TestCreateCheckoutSessionEachAttemptGetsNewKey(t *testing.T) {
	f := newCheckoutFixture(t)
	order := f.seedOrder(t, "0.00", f.line(f.store.ID, "10.00", 1))

	_, err := f.svc.CreateCheckoutSession(context.Background(), f.buyerInput(order.ID))
	require.NoError(t, err)
	_, err = f.svc.CreateCheckoutSession(context.Background(), f.buyerInput(order.ID))
	require.NoError(t, err)

	require.Len(t, f.gateway.requests, 2)
	assert.NotEqual(t, f.gateway.requests[0].IdempotencyKey, f.gateway.requests[1].IdempotencyKey)
	assert.Len(t, f.gateway.requests[0].LineItems, 1, "no shipping line when shipping is zero")
}

func TestCreateCheckoutSessionRejectsMixedStores(t *testing.T) {
	f := newCheckoutFixture(t)
	other := models.Store{OwnerID: f.seller.ID, Name: "Second"}
	require.NoError(t, f.client.DB().Create(&other).Error)
	order := f.seedOrder(t, "0.00", f.line(f.store.ID, "10.00", 1), f.line(other.ID, "20.00", 1))

	_, err := f.svc.CreateCheckoutSession(context.Background(), f.buyerInput(order.ID))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Empty(t, f.gateway.requests)

	keys, err := f.keys.ListByResource(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Empty(t, keys, "no key is issued for a rejected attempt")
	assert.Equal(t, 1, f.metrics["rejected"])
}

func TestCreateCheckoutSessionRequiresConnectedSeller(t *testing.T) {
	f := newCheckoutFixture(t)
	require.NoError(t, f.client.DB().Model(&models.User{}).Where("id = ?", f.seller.ID).Update("stripe_account_id", nil).Error)
	order := f.seedOrder(t, "0.00", f.line(f.store.ID, "10.00", 1))

	_, err := f.svc.CreateCheckoutSession(context.Background(), f.buyerInput(order.ID))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Empty(t, f.gateway.requests)
}

func TestCreateCheckoutSessionOnlyPendingOrders(t *testing.T) {
	f := newCheckoutFixture(t)
	order := f.seedOrder(t, "0.00", f.line(f.store.ID, "10.00", 1))
	require.NoError(t, f.client.DB().Model(&models.Order{}).Where("id = ?", order.ID).Update("status", enums.OrderStatusCancelled).Error)

	_, err := f.svc.CreateCheckoutSession(context.Background(), f.buyerInput(order.ID))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Empty(t, f.gateway.requests)
}

func TestCreateCheckoutSessionOwnership(t *testing.T) {
	f := newCheckoutFixture(t)
	order := f.seedOrder(t, "0.00", f.line(f.store.ID, "10.00", 1))

	stranger := uuid.New()
	_, err := f.svc.CreateCheckoutSession(context.Background(), Input{OrderID: order.ID, UserID: &stranger})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.CreateCheckoutSession(context.Background(), Input{OrderID: order.ID, GuestEmail: "buyer@example.com"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), "registered orders are not guest orders")

	_, err = f.svc.CreateCheckoutSession(context.Background(), Input{OrderID: uuid.New(), UserID: &stranger})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Empty(t, f.gateway.requests)
}

func TestCreateCheckoutSessionGuest(t *testing.T) {
	f := newCheckoutFixture(t)
	order := f.seedOrder(t, "5.99", f.line(f.store.ID, "10.00", 2))
	guest := "guest@example.com"
	require.NoError(t, f.client.DB().Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]any{
		"user_id":     nil,
		"guest_email": guest,
	}).Error)

	_, err := f.svc.CreateCheckoutSession(context.Background(), Input{OrderID: order.ID, GuestEmail: "someone@example.com"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	result, err := f.svc.CreateCheckoutSession(context.Background(), Input{OrderID: order.ID, GuestEmail: " Guest@Example.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(200), result.Fees.PlatformFeeCents)
	assert.Zero(t, result.Fees.ListingFeeAppliedCents)
	require.Len(t, f.gateway.requests, 1)
	assert.Equal(t, guest, f.gateway.requests[0].CustomerEmail)
}

func TestCreateCheckoutSessionGatewayFailure(t *testing.T) {
	f := newCheckoutFixture(t)
	f.gateway.err = errors.New("card_declined")
	order := f.seedOrder(t, "0.00", f.line(f.store.ID, "10.00", 1))

	_, err := f.svc.CreateCheckoutSession(context.Background(), f.buyerInput(order.ID))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))

	var current models.Order
	require.NoError(t, f.client.DB().Where("id = ?", order.ID).First(&current).Error)
	assert.Nil(t, current.CheckoutSessionID)
	assert.Nil(t, current.PlatformFeeCents)

	keys, err := f.keys.ListByResource(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Len(t, keys, 1, "the key of the failed attempt stays as an audit row")
	assert.Equal(t, 1, f.metrics["gateway_error"])
}

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.Error(t, err)
}
