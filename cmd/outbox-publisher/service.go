package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(topic string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// publisher sends to a named topic. After a failed publish with an ordering
// key, the key stays paused until ResumePublish is called.
type publisher interface {
	Publish(ctx context.Context, topic string, msg *gcppubsub.Message) publishResult
	ResumePublish(topic, orderingKey string)
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         dbClient
	PubSub     pubSubClient
	Repository outboxRepository
	Registry   registryResolver
	Metrics    *metrics.OutboxMetrics
	// Publisher overrides the topic publishers taken from PubSub.
	Publisher publisher
}

// Service moves committed marketplace events from outbox_events onto Pub/Sub.
// Rows of one order or store keep their commit order: once a row fails, later
// rows with the same ordering key wait for the next batch.
type Service struct {
	logg         *logger.Logger
	db           dbClient
	repo         outboxRepository
	pubsub       pubSubClient
	registry     registryResolver
	publisher    publisher
	metrics      *metrics.OutboxMetrics
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	now          func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	pub := params.Publisher
	if pub == nil {
		pub = topicPublisher{client: params.PubSub}
	}

	outboxCfg := params.Config.Outbox
	return &Service{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		pubsub:       params.PubSub,
		registry:     params.Registry,
		publisher:    pub,
		metrics:      params.Metrics,
		batchSize:    orDefault(outboxCfg.BatchSize, defaultBatchSize),
		maxAttempts:  orDefault(outboxCfg.MaxAttempts, defaultMaxAttempts),
		pollInterval: time.Duration(orDefault(outboxCfg.PollIntervalMS, defaultPollMs)) * time.Millisecond,
		now:          time.Now,
	}, nil
}

func orDefault(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		s.logg.Error(ctx, "database ping failed", err)
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := s.pubsub.Ping(ctx); err != nil {
		s.logg.Error(ctx, "pubsub ping failed", err)
		return fmt.Errorf("pubsub ping failed: %w", err)
	}
	return nil
}

// Run polls until ctx is canceled. A full batch is followed immediately by
// the next one; batch errors back off exponentially.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	backoff := s.pollInterval
	for {
		if ctx.Err() != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return ctx.Err()
		}

		processed, err := s.processBatch(ctx)
		wait := s.pollInterval
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			backoff = nextBackoff(backoff, s.pollInterval, maxBackoff)
			wait = backoff
		case processed:
			backoff = s.pollInterval
			continue
		default:
			backoff = s.pollInterval
		}
		if err := s.sleep(ctx, withJitter(wait)); err != nil {
			return err
		}
	}
}

// batchState tracks ordering keys whose earlier row failed in this batch.
type batchState struct {
	held map[string]uuid.UUID
}

func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		processed = len(events) > 0

		state := &batchState{held: map[string]uuid.UUID{}}
		for _, event := range events {
			if err := s.dispatch(ctx, tx, state, event); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

// dispatch publishes one row and records the outcome on it. Only bookkeeping
// failures are returned; publish failures are written back to the row.
func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, state *batchState, event models.OutboxEvent) error {
	ctx = s.logg.WithFields(ctx, rowFields(event))

	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return s.park(ctx, tx, event, "undecodable", err)
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id": resolved.Envelope.EventID,
		"topic":    resolved.Descriptor.Topic,
	})
	if orderID, ok := resolved.Attributes["order_id"]; ok {
		ctx = s.logg.WithOrderID(ctx, orderID)
	}

	if key := resolved.OrderingKey; key != "" {
		if blocker, held := state.held[key]; held {
			s.logg.Info(s.logg.WithField(ctx, "held_behind", blocker.String()), "outbox event deferred behind failed event")
			s.metrics.ObserveEvent(string(event.EventType), metrics.OutboxDeferred)
			return nil
		}
	}

	err = s.publish(ctx, resolved, event)
	if err == nil {
		if markErr := s.repo.MarkPublishedTx(tx, event.ID); markErr != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, markErr)
		}
		s.metrics.ObserveEvent(string(event.EventType), metrics.OutboxPublished)
		if !resolved.Envelope.OccurredAt.IsZero() {
			s.metrics.ObserveLag(string(event.EventType), s.now().Sub(resolved.Envelope.OccurredAt))
		}
		s.logg.Info(ctx, "outbox event published")
		return nil
	}

	if key := resolved.OrderingKey; key != "" {
		state.held[key] = event.ID
		s.publisher.ResumePublish(resolved.Descriptor.Topic, key)
	}

	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return s.park(ctx, tx, event, "non_retryable", err)
	}
	nextAttempt := event.AttemptCount + 1
	if nextAttempt >= s.maxAttempts {
		return s.park(ctx, tx, event, "max_attempts", fmt.Errorf("max publish attempts reached: %w", err))
	}

	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"attempt_count": nextAttempt,
		"error":         err.Error(),
	}), "outbox publish failed")
	if markErr := s.repo.MarkFailedTx(tx, event.ID, err); markErr != nil {
		return fmt.Errorf("mark failure %s: %w", event.ID, markErr)
	}
	s.metrics.ObserveEvent(string(event.EventType), metrics.OutboxRetried)
	return nil
}

// park moves the row to the attempt ceiling so it is never fetched again.
// Parked rows stay in the table for an operator to inspect.
func (s *Service) park(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason string, err error) error {
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"terminal_reason": reason,
		"error":           err.Error(),
	}), "outbox event will not be retried")
	if markErr := s.repo.MarkTerminalTx(tx, event.ID, err, s.maxAttempts); markErr != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, markErr)
	}
	s.metrics.ObserveEvent(string(event.EventType), metrics.OutboxParked)
	return nil
}

func (s *Service) publish(ctx context.Context, resolved *registry.ResolvedEvent, event models.OutboxEvent) error {
	topic := resolved.Descriptor.Topic
	msg := &gcppubsub.Message{
		Data:        event.Payload,
		Attributes:  resolved.Attributes,
		OrderingKey: resolved.OrderingKey,
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := s.publisher.Publish(publishCtx, topic, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

func rowFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, limit time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	return min(current*2, limit)
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}

// topicPublisher resolves Pub/Sub publishers per topic from the client.
type topicPublisher struct {
	client pubSubClient
}

func (p topicPublisher) Publish(ctx context.Context, topic string, msg *gcppubsub.Message) publishResult {
	pub := p.client.Publisher(topic)
	if pub == nil {
		return nil
	}
	return pub.Publish(ctx, msg)
}

func (p topicPublisher) ResumePublish(topic, orderingKey string) {
	if pub := p.client.Publisher(topic); pub != nil {
		pub.ResumePublish(orderingKey)
	}
}
