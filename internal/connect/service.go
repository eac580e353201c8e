// Package connect links a seller's Stripe account through the OAuth flow. The
// resulting account id is the destination of every checkout session for the seller's stores.
package connect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
)

const defaultStateTTL = 30 * time.Minute

// Gateway is the OAuth half of the payment gateway.
type Gateway interface {
	ConnectAuthorizeURL(state string) (string, error)
	ExchangeConnectCode(ctx context.Context, code string) (string, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// AuthorizeResult is where the seller is sent next.
type AuthorizeResult struct {
	URL       string
	State     string
	ExpiresAt time.Time
}

// CallbackResult reports the linked account.
type CallbackResult struct {
	StoreID         uuid.UUID
	UserID          uuid.UUID
	StripeAccountID string
}

type Service interface {
	Authorize(ctx context.Context, storeID, userID uuid.UUID) (*AuthorizeResult, error)
	Callback(ctx context.Context, state, code string) (*CallbackResult, error)
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

type ServiceParams struct {
	Repo     Repository
	Gateway  Gateway
	TxRunner txRunner
	Outbox   outboxPublisher
	StateTTL time.Duration
	Logger   *logger.Logger
	Clock    func() time.Time
}

type service struct {
	repo     Repository
	gateway  Gateway
	tx       txRunner
	outbox   outboxPublisher
	ttl      time.Duration
	logg     *logger.Logger
	now      func() time.Time
	newState func() string
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("connect repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("connect gateway required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	ttl := params.StateTTL
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:     params.Repo,
		gateway:  params.Gateway,
		tx:       params.TxRunner,
		outbox:   params.Outbox,
		ttl:      ttl,
		logg:     params.Logger,
		now:      clock,
		newState: uuid.NewString,
	}, nil
}

func (s *service) Authorize(ctx context.Context, storeID, userID uuid.UUID) (*AuthorizeResult, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id required")
	}
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	store, err := s.repo.FindStore(ctx, storeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store")
	}
	if store.OwnerID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the store owner can connect a payout account")
	}

	record := &models.ConnectAuthorizationState{
		State:     s.newState(),
		StoreID:   storeID,
		UserID:    userID,
		ExpiresAt: s.now().UTC().Add(s.ttl),
	}
	url, err := s.gateway.ConnectAuthorizeURL(record.State)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "build authorize url")
	}
	if err := s.repo.CreateState(ctx, record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist connect state")
	}
	return &AuthorizeResult{URL: url, State: record.State, ExpiresAt: record.ExpiresAt}, nil
}

// Callback redeems a state exactly once. The state is consumed before the code
// exchange, so a failed exchange requires a fresh Authorize.
func (s *service) Callback(ctx context.Context, state, code string) (*CallbackResult, error) {
	state = strings.TrimSpace(state)
	code = strings.TrimSpace(code)
	if state == "" || code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "state and code are required")
	}

	record, err := s.repo.FindState(ctx, state)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown authorization state")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load connect state")
	}
	now := s.now().UTC()
	if record.ConsumedAt != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "authorization state already used")
	}
	if record.Expired(now) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "authorization state expired")
	}
	consumed, err := s.repo.ConsumeState(ctx, record.ID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume connect state")
	}
	if !consumed {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "authorization state already used")
	}

	accountID, err := s.gateway.ExchangeConnectCode(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "exchange authorization code")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).SetStripeAccount(ctx, record.UserID, accountID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "seller not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payout account")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSellerConnected,
			AggregateType: enums.AggregateStore,
			AggregateID:   record.StoreID,
			Actor:         outbox.SellerActor(record.UserID, record.StoreID),
			Data: payloads.SellerConnectedEvent{
				UserID:          record.UserID,
				StripeAccountID: accountID,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithStoreID(ctx, record.StoreID.String())
		logCtx = s.logg.WithUserID(logCtx, record.UserID.String())
		s.logg.Info(logCtx, "stripe account connected")
	}
	return &CallbackResult{StoreID: record.StoreID, UserID: record.UserID, StripeAccountID: accountID}, nil
}

func (s *service) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	deleted, err := s.repo.DeleteExpired(ctx, before)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "purge connect states")
	}
	return deleted, nil
}
