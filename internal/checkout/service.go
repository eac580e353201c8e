// Package checkout opens one payment-gateway session per order attempt with the
// platform's fee split applied.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/fees"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/money"
	pkgstripe "github.com/angelmondragon/bazaar-backend/pkg/stripe"
)

// Gateway opens hosted checkout sessions.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req pkgstripe.SessionRequest) (*pkgstripe.Session, error)
}

type keyIssuer interface {
	Issue(ctx context.Context, op enums.IdempotencyOperation, resourceID uuid.UUID) (string, error)
}

type listingFeeBalance interface {
	OutstandingListingFeeCents(ctx context.Context, storeID uuid.UUID) (int64, error)
}

type sessionRecorder interface {
	ObserveCheckoutSession(outcome string)
}

// Input identifies the order and the caller. Registered buyers pass UserID; guests
// prove ownership with the email the order was placed under.
type Input struct {
	OrderID    uuid.UUID
	UserID     *uuid.UUID
	GuestEmail string
}

// Result is returned to the buyer's client.
type Result struct {
	OrderID             uuid.UUID
	SessionID           string
	URL                 string
	Fees                fees.Breakdown
	ApplicationFeeCents int64
}

// Service opens checkout sessions.
type Service interface {
	CreateCheckoutSession(ctx context.Context, input Input) (*Result, error)
}

// ServiceParams wires the checkout service.
type ServiceParams struct {
	Repo               Repository
	Gateway            Gateway
	Issuer             keyIssuer
	Ledger             listingFeeBalance
	PlatformFeePercent decimal.Decimal
	Metrics            sessionRecorder
	Logger             *logger.Logger
}

type service struct {
	repo       Repository
	gateway    Gateway
	issuer     keyIssuer
	ledger     listingFeeBalance
	feePercent decimal.Decimal
	metrics    sessionRecorder
	logg       *logger.Logger
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Issuer == nil {
		return nil, fmt.Errorf("idempotency issuer required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	return &service{
		repo:       params.Repo,
		gateway:    params.Gateway,
		issuer:     params.Issuer,
		ledger:     params.Ledger,
		feePercent: params.PlatformFeePercent,
		metrics:    params.Metrics,
		logg:       params.Logger,
	}, nil
}

func (s *service) CreateCheckoutSession(ctx context.Context, input Input) (*Result, error) {
	result, err := s.createSession(ctx, input)
	s.observe(err)
	return result, err
}

func (s *service) createSession(ctx context.Context, input Input) (*Result, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindOrder(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	email, err := s.authorize(ctx, order, input)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "order is %s; only pending orders can be paid", order.Status)
	}

	items := order.ActiveItems()
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order has no active items")
	}
	storeID, err := singleStore(items)
	if err != nil {
		return nil, err
	}
	store, err := s.repo.FindStoreWithOwner(ctx, storeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store")
	}
	destination := ""
	if store.Owner != nil && store.Owner.StripeAccountID != nil {
		destination = strings.TrimSpace(*store.Owner.StripeAccountID)
	}
	if destination == "" {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "seller has not connected a payout account")
	}

	var subtotalCents int64
	lines := make([]pkgstripe.LineItem, 0, len(items)+1)
	for _, item := range items {
		unitCents := money.ToCents(item.UnitPrice)
		subtotalCents += money.MulQty(unitCents, item.Quantity)
		lines = append(lines, pkgstripe.LineItem{
			Name:            item.ProductTitle,
			UnitAmountCents: unitCents,
			Quantity:        int64(item.Quantity),
		})
	}
	shippingCents := money.ToCents(order.ShippingAmount)
	if shippingCents > 0 {
		lines = append(lines, pkgstripe.LineItem{Name: "Shipping", UnitAmountCents: shippingCents, Quantity: 1})
	}

	outstanding, err := s.ledger.OutstandingListingFeeCents(ctx, storeID)
	if err != nil {
		return nil, err
	}
	breakdown := fees.Calculate(fees.Input{
		ItemSubtotalCents:          subtotalCents,
		ShippingCents:              shippingCents,
		PlatformFeePercent:         s.feePercent,
		OutstandingListingFeeCents: outstanding,
	})

	key, err := s.issuer.Issue(ctx, enums.IdempotencyOperationCheckoutSession, order.ID)
	if err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, pkgstripe.SessionRequest{
		IdempotencyKey:       key,
		ClientReferenceID:    order.ID.String(),
		CustomerEmail:        email,
		LineItems:            lines,
		ApplicationFeeCents:  breakdown.ApplicationFeeCents(),
		DestinationAccountID: destination,
		Metadata: pkgstripe.PaymentMetadata{
			OrderID:                order.ID,
			PlatformFeeCents:       breakdown.PlatformFeeCents,
			ListingFeeAppliedCents: breakdown.ListingFeeAppliedCents,
		},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "payment gateway rejected the checkout session")
	}

	stamped, err := s.repo.StampSession(ctx, order.ID, SessionStamp{
		CheckoutSessionID:      session.ID,
		PaymentIntentID:        session.PaymentIntentID,
		PlatformFeeCents:       breakdown.PlatformFeeCents,
		ListingFeeAppliedCents: breakdown.ListingFeeAppliedCents,
		ExpiresAt:              session.ExpiresAt,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record checkout session")
	}
	if !stamped {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order changed while the checkout session was opened")
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		logCtx = s.logg.WithStoreID(logCtx, storeID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"checkout_session_id": session.ID,
			"platform_fee_cents":  breakdown.PlatformFeeCents,
			"listing_fee_cents":   breakdown.ListingFeeAppliedCents,
		})
		s.logg.Info(logCtx, "checkout session opened")
	}

	return &Result{
		OrderID:             order.ID,
		SessionID:           session.ID,
		URL:                 session.URL,
		Fees:                breakdown,
		ApplicationFeeCents: breakdown.ApplicationFeeCents(),
	}, nil
}

// authorize returns the buyer email to prefill on the hosted page.
func (s *service) authorize(ctx context.Context, order *models.Order, input Input) (string, error) {
	if input.UserID != nil {
		if !order.BelongsTo(*input.UserID) {
			return "", pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
		}
		user, err := s.repo.FindUser(ctx, *input.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "user not found")
			}
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load buyer")
		}
		return user.Email, nil
	}
	email := strings.ToLower(strings.TrimSpace(input.GuestEmail))
	if email == "" || order.GuestEmail == nil || !strings.EqualFold(*order.GuestEmail, email) {
		return "", pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to this guest")
	}
	return email, nil
}

// singleStore fails fast on multi-seller orders: one session routes to one destination.
func singleStore(items []models.OrderItem) (uuid.UUID, error) {
	storeID := uuid.Nil
	for _, item := range items {
		if item.StoreID == uuid.Nil {
			return uuid.Nil, pkgerrors.Newf(pkgerrors.CodeValidation, "item %s has no store", item.ProductTitle)
		}
		if storeID == uuid.Nil {
			storeID = item.StoreID
			continue
		}
		if item.StoreID != storeID {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeConflict, "orders with items from more than one store cannot be checked out").
				WithDetails(map[string]any{"store_ids": []string{storeID.String(), item.StoreID.String()}})
		}
	}
	return storeID, nil
}

func (s *service) observe(err error) {
	if s.metrics == nil {
		return
	}
	switch {
	case err == nil:
		s.metrics.ObserveCheckoutSession("created")
	case pkgerrors.IsCode(err, pkgerrors.CodeGateway):
		s.metrics.ObserveCheckoutSession("gateway_error")
	default:
		s.metrics.ObserveCheckoutSession("rejected")
	}
}
