package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
)

// Actor is the authenticated caller of an order operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func (a Actor) ref() *outbox.ActorRef {
	return outbox.UserActor(a.UserID, a.Role)
}

// Service exposes the order operations of the checkout core.
type Service interface {
	CreateOrderFromCart(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	CreateOrderFromCartGuest(ctx context.Context, input GuestOrderInput) (*models.Order, error)
	ConfirmOrderPayment(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	DoesOrderBelongToUser(ctx context.Context, orderID, userID uuid.UUID) (bool, error)
	MarkShipped(ctx context.Context, orderID uuid.UUID, seller Actor) (*models.Order, error)
	MarkDelivered(ctx context.Context, orderID uuid.UUID, seller Actor) (*models.Order, error)
	ExpireStalePending(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// ServiceParams wires the order service.
type ServiceParams struct {
	Repo      Repository
	TxRunner  txRunner
	Lifecycle *Lifecycle
	Outbox    outboxPublisher
	Checkout  config.CheckoutConfig
	Currency  string
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	tx        txRunner
	lifecycle *Lifecycle
	converter *converter
	logg      *logger.Logger
}

// NewService builds an order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Lifecycle == nil {
		return nil, fmt.Errorf("order lifecycle required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	currency := params.Currency
	if currency == "" {
		currency = "usd"
	}
	return &service{
		repo:      params.Repo,
		tx:        params.TxRunner,
		lifecycle: params.Lifecycle,
		converter: &converter{checkout: params.Checkout, currency: currency, outbox: params.Outbox},
		logg:      params.Logger,
	}, nil
}

func (s *service) CreateOrderFromCart(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := s.converter.fromCart(ctx, tx, s.repo.WithTx(tx), input.UserID, input)
		if err != nil {
			return err
		}
		order = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logCreated(ctx, order)
	return order, nil
}

func (s *service) CreateOrderFromCartGuest(ctx context.Context, input GuestOrderInput) (*models.Order, error) {
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := s.converter.fromGuestCart(ctx, tx, s.repo.WithTx(tx), input)
		if err != nil {
			return err
		}
		order = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logCreated(ctx, order)
	return order, nil
}

func (s *service) logCreated(ctx context.Context, order *models.Order) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"item_count": len(order.Items),
		"total":      order.TotalAmount.StringFixed(2),
		"guest":      order.UserID == nil,
	})
	s.logg.Info(logCtx, "order created")
}

func (s *service) apply(ctx context.Context, orderID uuid.UUID, trigger Trigger, opts TransitionOptions, authorize func(order *models.Order, repo Repository) error) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if authorize != nil {
			order, err := repo.FindOrder(ctx, orderID)
			if err != nil {
				return orderLookupError(err)
			}
			if err := authorize(order, repo); err != nil {
				return err
			}
		}
		result, err := s.lifecycle.Apply(ctx, tx, orderID, trigger, opts)
		if err != nil {
			return err
		}
		updated = result.Order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ConfirmOrderPayment moves a pending order to processing without a gateway event.
func (s *service) ConfirmOrderPayment(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	return s.apply(ctx, orderID, TriggerConfirm, TransitionOptions{Actor: actor.ref()}, nil)
}

func (s *service) CancelOrder(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if reason == "" {
		reason = "cancelled by buyer"
	}
	return s.apply(ctx, orderID, TriggerCancel, TransitionOptions{Actor: actor.ref(), Reason: reason}, func(order *models.Order, _ Repository) error {
		if actor.Role == enums.UserRoleAdmin || order.BelongsTo(actor.UserID) {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	})
}

func (s *service) MarkShipped(ctx context.Context, orderID uuid.UUID, seller Actor) (*models.Order, error) {
	return s.apply(ctx, orderID, TriggerShip, TransitionOptions{Actor: seller.ref()}, s.sellerOwns(ctx, seller))
}

func (s *service) MarkDelivered(ctx context.Context, orderID uuid.UUID, seller Actor) (*models.Order, error) {
	return s.apply(ctx, orderID, TriggerDeliver, TransitionOptions{Actor: seller.ref()}, s.sellerOwns(ctx, seller))
}

// sellerOwns allows admins, and sellers who own every store on the order.
func (s *service) sellerOwns(ctx context.Context, seller Actor) func(*models.Order, Repository) error {
	return func(order *models.Order, repo Repository) error {
		if seller.Role == enums.UserRoleAdmin {
			return nil
		}
		if seller.UserID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
		}
		for _, storeID := range orderStoreIDs(order) {
			store, err := repo.FindStore(ctx, storeID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store")
			}
			if store.OwnerID != seller.UserID {
				return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another seller")
			}
		}
		return nil
	}
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, orderLookupError(err)
	}
	return order, nil
}

func (s *service) DoesOrderBelongToUser(ctx context.Context, orderID, userID uuid.UUID) (bool, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	return order.BelongsTo(userID), nil
}

// ExpireStalePending cancels orders left pending since before cutoff, returning their stock.
// Orders that progressed in the meantime are skipped.
func (s *service) ExpireStalePending(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	stale, err := s.repo.ListPendingBefore(ctx, cutoff, time.Now().UTC(), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale orders")
	}
	expired := 0
	for _, order := range stale {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			result, err := s.lifecycle.Apply(ctx, tx, order.ID, TriggerExpire, TransitionOptions{
				Reason:        "payment not received",
				Actor:         outbox.SystemActor("expire_stale_pending"),
				IgnoreIllegal: true,
			})
			if err != nil {
				return err
			}
			if result.Changed {
				expired++
			}
			return nil
		})
		if err != nil {
			return expired, err
		}
	}
	return expired, nil
}

func orderLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}
