package orders

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/money"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// CreateOrderInput converts the buyer's active cart. BillingAddressID defaults to the shipping address.
type CreateOrderInput struct {
	UserID            uuid.UUID
	ShippingAddressID uuid.UUID
	BillingAddressID  uuid.UUID
}

// GuestOrderInput converts an anonymous cart with one-off address snapshots.
type GuestOrderInput struct {
	CartID          uuid.UUID
	Email           string
	ShippingAddress types.AddressSnapshot
	BillingAddress  *types.AddressSnapshot
}

type shippingRule int

const (
	shippingPerLine shippingRule = iota
	shippingGuestFlat
)

// orderDraft is everything the converter needs besides the cart lines.
type orderDraft struct {
	userID     *uuid.UUID
	guestEmail *string
	shipping   types.AddressSnapshot
	billing    types.AddressSnapshot
	rule       shippingRule
}

var emailValidator = validator.New()

type converter struct {
	checkout config.CheckoutConfig
	currency string
	outbox   outboxPublisher
}

func (c *converter) fromCart(ctx context.Context, tx *gorm.DB, repo Repository, userID uuid.UUID, input CreateOrderInput) (*models.Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.ShippingAddressID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address id is required")
	}
	billingID := input.BillingAddressID
	if billingID == uuid.Nil {
		billingID = input.ShippingAddressID
	}

	shipping, err := ownedAddress(ctx, repo, input.ShippingAddressID, userID)
	if err != nil {
		return nil, err
	}
	billing := shipping
	if billingID != input.ShippingAddressID {
		if billing, err = ownedAddress(ctx, repo, billingID, userID); err != nil {
			return nil, err
		}
	}

	cart, err := repo.FindCartByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	uid := userID
	return c.convert(ctx, tx, repo, cart, orderDraft{
		userID:   &uid,
		shipping: shipping.Snapshot(),
		billing:  billing.Snapshot(),
		rule:     shippingPerLine,
	})
}

func ownedAddress(ctx context.Context, repo Repository, addressID, userID uuid.UUID) (*models.Address, error) {
	address, err := repo.FindAddress(ctx, addressID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load address")
	}
	if address.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address does not belong to buyer")
	}
	return address, nil
}

func (c *converter) fromGuestCart(ctx context.Context, tx *gorm.DB, repo Repository, input GuestOrderInput) (*models.Order, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if err := emailValidator.Var(email, "required,email"); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a valid guest email is required")
	}
	if input.CartID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart id is required")
	}
	shipping := input.ShippingAddress.Normalized()
	if err := shipping.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "shipping "+err.Error())
	}
	billing := shipping
	if input.BillingAddress != nil {
		billing = input.BillingAddress.Normalized()
		if err := billing.Validate(); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "billing "+err.Error())
		}
	}

	cart, err := repo.FindCartByID(ctx, input.CartID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if cart.UserID != nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cart belongs to a registered buyer")
	}

	return c.convert(ctx, tx, repo, cart, orderDraft{
		guestEmail: &email,
		shipping:   shipping,
		billing:    billing,
		rule:       shippingGuestFlat,
	})
}

// convert snapshots every cart line, reserves its stock and persists the order. Any
// failure aborts the surrounding transaction, so no partial order or reservation survives.
func (c *converter) convert(ctx context.Context, tx *gorm.DB, repo Repository, cart *models.Cart, draft orderDraft) (*models.Order, error) {
	if len(cart.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	items := make([]models.OrderItem, 0, len(cart.Items))
	stores := make([]uuid.UUID, 0, 1)
	var subtotalCents, lineShippingCents int64

	for _, line := range cart.Items {
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
		product, err := repo.FindProduct(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "product %s not found", line.ProductID)
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		if product.StockQuantity < line.Quantity {
			return nil, insufficientStock(product)
		}

		option, err := selectedOption(product, line.ShippingOptionID)
		if err != nil {
			return nil, err
		}

		unitCents := money.ToCents(product.Price)
		itemCents := money.MulQty(unitCents, line.Quantity)
		subtotalCents += itemCents

		item := models.OrderItem{
			ProductID:    product.ID,
			StoreID:      product.StoreID,
			ProductTitle: product.Title,
			Quantity:     line.Quantity,
			UnitPrice:    money.FromCents(unitCents),
			ItemTotal:    money.FromCents(itemCents),
			ShippingCost: money.FromCents(0),
			Status:       enums.OrderItemStatusPending,
		}
		if option != nil {
			name := option.Name
			item.ShippingOptionName = &name
			item.ShippingCost = option.Cost
			lineShippingCents += money.ToCents(option.Cost)
		}
		items = append(items, item)
		stores = appendUnique(stores, product.StoreID)

		reserved, err := repo.DecrementStock(ctx, product.ID, line.Quantity)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve stock")
		}
		if !reserved {
			return nil, insufficientStock(product)
		}
	}

	shippingCents := lineShippingCents
	if draft.rule == shippingGuestFlat {
		shippingCents = c.guestShippingCents(subtotalCents)
	}
	taxCents := money.PercentOf(subtotalCents, c.checkout.TaxRate)
	totalCents := subtotalCents + taxCents + shippingCents

	order := &models.Order{
		UserID:          draft.userID,
		GuestEmail:      draft.guestEmail,
		Status:          enums.OrderStatusPending,
		ShippingAddress: draft.shipping,
		BillingAddress:  draft.billing,
		SubtotalAmount:  money.FromCents(subtotalCents),
		TaxAmount:       money.FromCents(taxCents),
		ShippingAmount:  money.FromCents(shippingCents),
		TotalAmount:     money.FromCents(totalCents),
		Currency:        c.currency,
		Items:           items,
	}
	if len(stores) == 1 {
		storeID := stores[0]
		order.StoreID = &storeID
	}

	if err := repo.CreateOrder(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	if err := repo.ClearCart(ctx, cart.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderCreatedEvent{
			OrderID:    order.ID,
			UserID:     order.UserID,
			GuestEmail: order.GuestEmail,
			StoreIDs:   stores,
			TotalCents: totalCents,
			Currency:   order.Currency,
		},
	}
	if draft.userID != nil {
		event.Actor = outbox.UserActor(*draft.userID, enums.UserRoleBuyer)
	}
	if err := c.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order created")
	}
	return order, nil
}

func (c *converter) guestShippingCents(subtotalCents int64) int64 {
	threshold := money.ToCents(c.checkout.GuestFreeShippingThreshold)
	if threshold > 0 && subtotalCents >= threshold {
		return 0
	}
	return money.ToCents(c.checkout.GuestFlatShipping)
}

func selectedOption(product *models.Product, optionID *uuid.UUID) (*models.ShippingOption, error) {
	if optionID == nil {
		if product.RequiresShipping {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "a shipping option is required for %s", product.Title)
		}
		return nil, nil
	}
	for i := range product.ShippingOptions {
		if product.ShippingOptions[i].ID == *optionID {
			return &product.ShippingOptions[i], nil
		}
	}
	return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "shipping option is not offered for %s", product.Title)
}

func insufficientStock(product *models.Product) error {
	return pkgerrors.Newf(pkgerrors.CodeConflict, "insufficient stock for %s", product.Title).
		WithDetails(map[string]any{"product_id": product.ID.String()})
}

func appendUnique(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
