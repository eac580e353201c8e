package orders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/internal/ledger"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

type ordersFixture struct {
	client  *db.Client
	svc     Service
	ledger  ledger.Service
	buyer   models.User
	seller  models.User
	store   models.Store
	product models.Product
	address models.Address
}

func testCheckoutConfig() config.CheckoutConfig {
	return config.CheckoutConfig{
		TaxRate:                    decimal.RequireFromString("0.08"),
		PlatformFeePercent:         decimal.RequireFromString("0.10"),
		ListingFeeCents:            25,
		GuestFlatShipping:          decimal.RequireFromString("5.99"),
		GuestFreeShippingThreshold: decimal.RequireFromString("50.00"),
	}
}

func newOrdersFixture(t *testing.T) *ordersFixture {
	t.Helper()
	client := dbtest.Open(t)
	gdb := client.DB()

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:            ledger.NewRepository(gdb),
		TxRunner:        client,
		ListingFeeCents: 25,
	})
	require.NoError(t, err)

	repo := NewRepository(gdb)
	outboxSvc := outbox.NewService(outbox.NewRepository(gdb), nil)
	lifecycle, err := NewLifecycle(LifecycleParams{
		Repo:               repo,
		Ledger:             ledgerSvc,
		Outbox:             outboxSvc,
		PlatformFeePercent: decimal.RequireFromString("0.10"),
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:      repo,
		TxRunner:  client,
		Lifecycle: lifecycle,
		Outbox:    outboxSvc,
		Checkout:  testCheckoutConfig(),
	})
	require.NoError(t, err)

	f := &ordersFixture{client: client, svc: svc, ledger: ledgerSvc}
	f.buyer = f.createUser(t, enums.UserRoleBuyer)
	f.seller = f.createUser(t, enums.UserRoleSeller)
	f.store = models.Store{OwnerID: f.seller.ID, Name: "Lamp Works"}
	require.NoError(t, gdb.Create(&f.store).Error)
	f.product = f.createProduct(t, "Desk Lamp", "10.00", 5, false)
	f.address = models.Address{
		UserID:        f.buyer.ID,
		RecipientName: "Buyer One",
		Line1:         "1 Main St",
		City:          "Springfield",
		State:         "IL",
		PostalCode:    "62701",
		Country:       "US",
	}
	require.NoError(t, gdb.Create(&f.address).Error)
	return f
}

func (f *ordersFixture) createUser(t *testing.T, role enums.UserRole) models.User {
	t.Helper()
	user := models.User{Email: uuid.NewString() + "@example.com", FirstName: "Test", LastName: string(role), Role: role}
	require.NoError(t, f.client.DB().Create(&user).Error)
	return user
}

func (f *ordersFixture) createProduct(t *testing.T, title, price string, stock int, requiresShipping bool) models.Product {
	t.Helper()
	product := models.Product{
		StoreID:          f.store.ID,
		Title:            title,
		Price:            decimal.RequireFromString(price),
		StockQuantity:    stock,
		RequiresShipping: requiresShipping,
	}
	require.NoError(t, f.client.DB().Create(&product).Error)
	return product
}

func (f *ordersFixture) fillCart(t *testing.T, userID *uuid.UUID, lines ...models.CartItem) models.Cart {
	t.Helper()
	cart := models.Cart{UserID: userID}
	if userID != nil {
		require.NoError(t, f.client.DB().Where("user_id = ?", *userID).FirstOrCreate(&cart).Error)
	} else {
		require.NoError(t, f.client.DB().Create(&cart).Error)
	}
	for i := range lines {
		lines[i].CartID = cart.ID
		lines[i].CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		require.NoError(t, f.client.DB().Create(&lines[i]).Error)
	}
	return cart
}

func (f *ordersFixture) stockOf(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	var product models.Product
	require.NoError(t, f.client.DB().Unscoped().Where("id = ?", productID).First(&product).Error)
	return product.StockQuantity
}

func (f *ordersFixture) placeOrder(t *testing.T, qty int) *models.Order {
	t.Helper()
	f.fillCart(t, &f.buyer.ID, models.CartItem{ProductID: f.product.ID, Quantity: qty})
	order, err := f.svc.CreateOrderFromCart(context.Background(), CreateOrderInput{
		UserID:            f.buyer.ID,
		ShippingAddressID: f.address.ID,
	})
	require.NoError(t, err)
	return order
}

func (f *ordersFixture) buyerActor() Actor {
	return Actor{UserID: f.buyer.ID, Role: enums.UserRoleBuyer}
}

func (f *ordersFixture) sellerActor() Actor {
	return Actor{UserID: f.seller.ID, Role: enums.UserRoleSeller}
}

func TestCreateOrderFromCartComputesTotalsAndReservesStock(t *testing.T) {
	f := newOrdersFixture(t)

	order := f.placeOrder(t, 2)

	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, "20.00", order.SubtotalAmount.StringFixed(2))
	assert.Equal(t, "1.60", order.TaxAmount.StringFixed(2))
	assert.Equal(t, "0.00", order.ShippingAmount.StringFixed(2))
	assert.Equal(t, "21.60", order.TotalAmount.StringFixed(2))
	require.NotNil(t, order.StoreID)
	assert.Equal(t, f.store.ID, *order.StoreID)
	assert.Equal(t, 3, f.stockOf(t, f.product.ID))

	require.Len(t, order.Items, 1)
	item := order.Items[0]
	assert.Equal(t, f.store.ID, item.StoreID)
	assert.Equal(t, "10.00", item.UnitPrice.StringFixed(2))
	assert.Equal(t, "20.00", item.ItemTotal.StringFixed(2))
	assert.Equal(t, "Springfield", order.ShippingAddress.City)
	assert.Equal(t, order.ShippingAddress, order.BillingAddress)

	var remaining int64
	require.NoError(t, f.client.DB().Model(&models.CartItem{}).Count(&remaining).Error)
	assert.Zero(t, remaining, "cart is cleared")

	var events []models.OutboxEvent
	require.NoError(t, f.client.DB().Where("aggregate_id = ?", order.ID).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderCreated, events[0].EventType)
}

func TestCreateOrderFromCartAddressSnapshotIsFrozen(t *testing.T) {
	f := newOrdersFixture(t)
	order := f.placeOrder(t, 1)

	require.NoError(t, f.client.DB().Model(&models.Address{}).Where("id = ?", f.address.ID).Update("city", "Shelbyville").Error)

	reloaded, err := f.svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, "Springfield", reloaded.ShippingAddress.City)
}

func TestCreateOrderFromCartInsufficientStockLeavesNoTrace(t *testing.T) {
	f := newOrdersFixture(t)
	other := f.createProduct(t, "Shade", "4.00", 10, false)
	f.fillCart(t, &f.buyer.ID,
		models.CartItem{ProductID: other.ID, Quantity: 3},
		models.CartItem{ProductID: f.product.ID, Quantity: 6},
	)

	_, err := f.svc.CreateOrderFromCart(context.Background(), CreateOrderInput{UserID: f.buyer.ID, ShippingAddressID: f.address.ID})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	assert.Equal(t, 5, f.stockOf(t, f.product.ID))
	assert.Equal(t, 10, f.stockOf(t, other.ID), "earlier line's reservation is rolled back")

	var orders, cartItems int64
	require.NoError(t, f.client.DB().Model(&models.Order{}).Count(&orders).Error)
	require.NoError(t, f.client.DB().Model(&models.CartItem{}).Count(&cartItems).Error)
	assert.Zero(t, orders)
	assert.Equal(t, int64(2), cartItems)
}

func TestCreateOrderFromCartRejectsForeignAddress(t *testing.T) {
	f := newOrdersFixture(t)
	stranger := f.createUser(t, enums.UserRoleBuyer)
	foreign := models.Address{UserID: stranger.ID, RecipientName: "X", Line1: "2 Elm", City: "C", State: "S", PostalCode: "1"}
	require.NoError(t, f.client.DB().Create(&foreign).Error)
	f.fillCart(t, &f.buyer.ID, models.CartItem{ProductID: f.product.ID, Quantity: 1})

	_, err := f.svc.CreateOrderFromCart(context.Background(), CreateOrderInput{UserID: f.buyer.ID, ShippingAddressID: foreign.ID})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, 5, f.stockOf(t, f.product.ID))

	_, err = f.svc.CreateOrderFromCart(context.Background(), CreateOrderInput{
		UserID:            f.buyer.ID,
		ShippingAddressID: f.address.ID,
		BillingAddressID:  uuid.New(),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCreateOrderFromCartShippingOptions(t *testing.T) {
	f := newOrdersFixture(t)
	shipped := f.createProduct(t, "Floor Lamp", "40.00", 2, true)
	option := models.ShippingOption{ProductID: shipped.ID, Name: "Ground", Cost: decimal.RequireFromString("4.50")}
	require.NoError(t, f.client.DB().Create(&option).Error)

	f.fillCart(t, &f.buyer.ID, models.CartItem{ProductID: shipped.ID, Quantity: 1})
	_, err := f.svc.CreateOrderFromCart(context.Background(), CreateOrderInput{UserID: f.buyer.ID, ShippingAddressID: f.address.ID})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "option required")

	require.NoError(t, f.client.DB().Model(&models.CartItem{}).Where("product_id = ?", shipped.ID).Update("shipping_option_id", option.ID).Error)
	order, err := f.svc.CreateOrderFromCart(context.Background(), CreateOrderInput{UserID: f.buyer.ID, ShippingAddressID: f.address.ID})
	require.NoError(t, err)
	assert.Equal(t, "4.50", order.ShippingAmount.StringFixed(2))
	assert.Equal(t, "3.20", order.TaxAmount.StringFixed(2))
	assert.Equal(t, "47.70", order.TotalAmount.StringFixed(2))
	require.NotNil(t, order.Items[0].ShippingOptionName)
	assert.Equal(t, "Ground", *order.Items[0].ShippingOptionName)
}

func TestCreateOrderFromCartEmptyCart(t *testing.T) {
	f := newOrdersFixture(t)
	_, err := f.svc.CreateOrderFromCart(context.Background(), CreateOrderInput{UserID: f.buyer.ID, ShippingAddressID: f.address.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func guestAddress() types.AddressSnapshot {
	return types.AddressSnapshot{RecipientName: "Guest", Line1: "9 Oak", City: "Portland", State: "OR", PostalCode: "97201"}
}

func TestCreateOrderFromCartGuest(t *testing.T) {
	f := newOrdersFixture(t)

	cart := f.fillCart(t, nil, models.CartItem{ProductID: f.product.ID, Quantity: 2})
	order, err := f.svc.CreateOrderFromCartGuest(context.Background(), GuestOrderInput{
		CartID:          cart.ID,
		Email:           " Guest@Example.com ",
		ShippingAddress: guestAddress(),
	})
	require.NoError(t, err)
	assert.Nil(t, order.UserID)
	require.NotNil(t, order.GuestEmail)
	assert.Equal(t, "guest@example.com", *order.GuestEmail)
	assert.Equal(t, "5.99", order.ShippingAmount.StringFixed(2))
	assert.Equal(t, "27.59", order.TotalAmount.StringFixed(2))
	assert.Equal(t, "US", order.ShippingAddress.Country)
	assert.Equal(t, 3, f.stockOf(t, f.product.ID))

	big := f.createProduct(t, "Chandelier", "60.00", 1, false)
	cart = f.fillCart(t, nil, models.CartItem{ProductID: big.ID, Quantity: 1})
	order, err = f.svc.CreateOrderFromCartGuest(context.Background(), GuestOrderInput{
		CartID:          cart.ID,
		Email:           "guest@example.com",
		ShippingAddress: guestAddress(),
	})
	require.NoError(t, err)
	assert.Equal(t, "0.00", order.ShippingAmount.StringFixed(2), "free above threshold")
}

func TestCreateOrderFromCartGuestValidation(t *testing.T) {
	f := newOrdersFixture(t)
	owned := f.fillCart(t, &f.buyer.ID, models.CartItem{ProductID: f.product.ID, Quantity: 1})

	_, err := f.svc.CreateOrderFromCartGuest(context.Background(), GuestOrderInput{CartID: owned.ID, Email: "nope", ShippingAddress: guestAddress()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.CreateOrderFromCartGuest(context.Background(), GuestOrderInput{CartID: owned.ID, Email: "g@example.com", ShippingAddress: types.AddressSnapshot{}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.CreateOrderFromCartGuest(context.Background(), GuestOrderInput{CartID: owned.ID, Email: "g@example.com", ShippingAddress: guestAddress()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestConcurrentConversionsNeverOversell(t *testing.T) {
	f := newOrdersFixture(t)

	const buyers = 4
	inputs := make([]CreateOrderInput, buyers)
	for i := range buyers {
		buyer := f.createUser(t, enums.UserRoleBuyer)
		address := f.address
		address.ID = uuid.Nil
		address.UserID = buyer.ID
		require.NoError(t, f.client.DB().Create(&address).Error)
		f.fillCart(t, &buyer.ID, models.CartItem{ProductID: f.product.ID, Quantity: 2})
		inputs[i] = CreateOrderInput{UserID: buyer.ID, ShippingAddressID: address.ID}
	}

	created := make([]*models.Order, buyers)
	errs := make([]error, buyers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			created[i], errs[i] = f.svc.CreateOrderFromCart(context.Background(), inputs[i])
		}()
	}
	close(start)
	wg.Wait()

	reserved, successes := 0, 0
	for i := range buyers {
		if errs[i] != nil {
			assert.True(t, pkgerrors.IsCode(errs[i], pkgerrors.CodeConflict), "buyer %d: %v", i, errs[i])
			continue
		}
		successes++
		reserved += created[i].Items[0].Quantity
	}
	assert.Equal(t, 2, successes)
	assert.Equal(t, 4, reserved)
	assert.Equal(t, 1, f.stockOf(t, f.product.ID))
	assert.Equal(t, 5, reserved+f.stockOf(t, f.product.ID))
}

func TestCancelPendingRestoresStock(t *testing.T) {
	f := newOrdersFixture(t)
	order := f.placeOrder(t, 2)
	require.Equal(t, 3, f.stockOf(t, f.product.ID))

	cancelled, err := f.svc.CancelOrder(context.Background(), order.ID, f.buyerActor(), "")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, enums.OrderItemStatusCancelled, cancelled.Items[0].Status)
	assert.Equal(t, 5, f.stockOf(t, f.product.ID))

	_, err = f.svc.CancelOrder(context.Background(), order.ID, f.buyerActor(), "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, 5, f.stockOf(t, f.product.ID), "second cancel restores nothing")
}

func TestCancelShippedOrderIsRejected(t *testing.T) {
	f := newOrdersFixture(t)
	order := f.placeOrder(t, 1)

	_, err := f.svc.ConfirmOrderPayment(context.Background(), order.ID, Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin})
	require.NoError(t, err)
	shipped, err := f.svc.MarkShipped(context.Background(), order.ID, f.sellerActor())
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusShipped, shipped.Status)

	_, err = f.svc.CancelOrder(context.Background(), order.ID, f.buyerActor(), "")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	current, err := f.svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusShipped, current.Status)
	assert.Equal(t, 4, f.stockOf(t, f.product.ID))
}

func TestCancelRequiresOwnership(t *testing.T) {
	f := newOrdersFixture(t)
	order := f.placeOrder(t, 1)
	stranger := f.createUser(t, enums.UserRoleBuyer)

	_, err := f.svc.CancelOrder(context.Background(), order.ID, Actor{UserID: stranger.ID, Role: enums.UserRoleBuyer}, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	belongs, err := f.svc.DoesOrderBelongToUser(context.Background(), order.ID, f.buyer.ID)
	require.NoError(t, err)
	assert.True(t, belongs)
	belongs, err = f.svc.DoesOrderBelongToUser(context.Background(), order.ID, stranger.ID)
	require.NoError(t, err)
	assert.False(t, belongs)
}

func TestConfirmPaymentPostsLedgerAndSettlesListingFees(t *testing.T) {
	f := newOrdersFixture(t)
	for i := 0; i < 6; i++ {
		_, err := f.ledger.AccrueListingFee(context.Background(), nil, models.Product{ID: uuid.New(), StoreID: f.store.ID, Title: "listing"})
		require.NoError(t, err)
	}
	order := f.placeOrder(t, 2)
	platformFee, listingFee := int64(200), int64(100)
	require.NoError(t, f.client.DB().Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]any{
		"platform_fee_cents":        platformFee,
		"listing_fee_applied_cents": listingFee,
	}).Error)

	paid, err := f.svc.ConfirmOrderPayment(context.Background(), order.ID, Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusProcessing, paid.Status)
	assert.NotNil(t, paid.PaidAt)
	assert.Equal(t, enums.OrderItemStatusProcessing, paid.Items[0].Status)

	outstanding, err := f.ledger.CountOutstandingListingFees(context.Background(), f.store.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), outstanding)

	summary, err := f.ledger.Summary(context.Background(), f.store.ID, ledger.Period{})
	require.NoError(t, err)
	assert.Equal(t, int64(2000), summary.GrossSalesCents)
	assert.Equal(t, int64(160), summary.TaxCollectedCents)
	assert.Equal(t, int64(-200), summary.PlatformFeesCents)
	assert.Equal(t, int64(-100), summary.ListingFeesSettled)

	_, err = f.svc.ConfirmOrderPayment(context.Background(), order.ID, Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestCancelProcessingReversesLedger(t *testing.T) {
	f := newOrdersFixture(t)
	order := f.placeOrder(t, 1)
	_, err := f.svc.ConfirmOrderPayment(context.Background(), order.ID, Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin})
	require.NoError(t, err)

	_, err = f.svc.CancelOrder(context.Background(), order.ID, f.buyerActor(), "changed mind")
	require.NoError(t, err)
	assert.Equal(t, 5, f.stockOf(t, f.product.ID))

	summary, err := f.ledger.Summary(context.Background(), f.store.ID, ledger.Period{})
	require.NoError(t, err)
	assert.Zero(t, summary.GrossSalesCents)
	assert.Zero(t, summary.PlatformFeesCents)
	assert.Zero(t, summary.NetCents)
}

func TestIllegalTransitionsLeaveStatusUnchanged(t *testing.T) {
	f := newOrdersFixture(t)
	order := f.placeOrder(t, 1)
	_, err := f.svc.CancelOrder(context.Background(), order.ID, f.buyerActor(), "")
	require.NoError(t, err)

	_, err = f.svc.ConfirmOrderPayment(context.Background(), order.ID, Actor{Role: enums.UserRoleAdmin})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	_, err = f.svc.MarkShipped(context.Background(), order.ID, f.sellerActor())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	current, err := f.svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, current.Status)
}

func TestMarkShippedRequiresStoreOwner(t *testing.T) {
	f := newOrdersFixture(t)
	order := f.placeOrder(t, 1)
	_, err := f.svc.ConfirmOrderPayment(context.Background(), order.ID, Actor{Role: enums.UserRoleAdmin})
	require.NoError(t, err)

	other := f.createUser(t, enums.UserRoleSeller)
	_, err = f.svc.MarkShipped(context.Background(), order.ID, Actor{UserID: other.ID, Role: enums.UserRoleSeller})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	delivered, err := f.svc.MarkDelivered(context.Background(), order.ID, f.sellerActor())
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, delivered.Status)
	assert.NotNil(t, delivered.DeliveredAt)
}

func TestExpireStalePending(t *testing.T) {
	f := newOrdersFixture(t)
	stale := f.placeOrder(t, 1)
	paid := f.placeOrder(t, 1)
	_, err := f.svc.ConfirmOrderPayment(context.Background(), paid.ID, Actor{Role: enums.UserRoleAdmin})
	require.NoError(t, err)
	require.Equal(t, 3, f.stockOf(t, f.product.ID))

	expired, err := f.svc.ExpireStalePending(context.Background(), time.Now().UTC().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	current, err := f.svc.GetOrder(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, current.Status)
	assert.Equal(t, 4, f.stockOf(t, f.product.ID))
}

func TestExpireStalePendingSkipsPayableSessions(t *testing.T) {
	f := newOrdersFixture(t)
	open := f.placeOrder(t, 1)
	lapsed := f.placeOrder(t, 1)
	stampExpiry := func(orderID uuid.UUID, at time.Time) {
		require.NoError(t, f.client.DB().Model(&models.Order{}).Where("id = ?", orderID).Update("checkout_session_expires_at", at).Error)
	}
	stampExpiry(open.ID, time.Now().UTC().Add(2*time.Hour))
	stampExpiry(lapsed.ID, time.Now().UTC().Add(-time.Minute))

	expired, err := f.svc.ExpireStalePending(context.Background(), time.Now().UTC().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	current, err := f.svc.GetOrder(context.Background(), open.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, current.Status, "buyer can still pay the open session")
	current, err = f.svc.GetOrder(context.Background(), lapsed.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, current.Status)
}

func TestNextStatusTable(t *testing.T) {
	cases := []struct {
		from    enums.OrderStatus
		trigger Trigger
		to      enums.OrderStatus
		ok      bool
	}{
		{enums.OrderStatusPending, TriggerPaymentSucceeded, enums.OrderStatusProcessing, true},
		{enums.OrderStatusPending, TriggerConfirm, enums.OrderStatusProcessing, true},
		{enums.OrderStatusPending, TriggerPaymentFailed, enums.OrderStatusCancelled, true},
		{enums.OrderStatusProcessing, TriggerPaymentFailed, "", false},
		{enums.OrderStatusProcessing, TriggerCancel, enums.OrderStatusCancelled, true},
		{enums.OrderStatusProcessing, TriggerShip, enums.OrderStatusShipped, true},
		{enums.OrderStatusProcessing, TriggerDeliver, enums.OrderStatusDelivered, true},
		{enums.OrderStatusShipped, TriggerDeliver, enums.OrderStatusDelivered, true},
		{enums.OrderStatusShipped, TriggerCancel, "", false},
		{enums.OrderStatusDelivered, TriggerCancel, "", false},
		{enums.OrderStatusDelivered, TriggerRefund, enums.OrderStatusRefunded, true},
		{enums.OrderStatusCancelled, TriggerCancel, "", false},
		{enums.OrderStatusCancelled, TriggerRefund, "", false},
		{enums.OrderStatusCancelled, TriggerConfirm, "", false},
		{enums.OrderStatusRefunded, TriggerRefund, "", false},
		{enums.OrderStatusPending, TriggerShip, "", false},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"_"+string(tc.trigger), func(t *testing.T) {
			to, err := NextStatus(tc.from, tc.trigger)
			if !tc.ok {
				require.Error(t, err)
				assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.to, to)
		})
	}
}
