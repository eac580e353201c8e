package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

const (
	defaultPendingOrderTTL = 72 * time.Hour
	staleOrderBatchSize    = 100
	staleOrderMaxBatches   = 20
)

type pendingOrderExpirer interface {
	ExpireStalePending(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

type StaleOrdersJobParams struct {
	Logger *logger.Logger
	Orders pendingOrderExpirer
	// TTL is how long an order may stay pending before it is cancelled.
	TTL time.Duration
}

// NewStaleOrdersJob cancels checkouts whose payment never arrived so their
// reserved stock returns to the catalog.
func NewStaleOrdersJob(params StaleOrdersJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultPendingOrderTTL
	}
	return &staleOrdersJob{
		logg:   params.Logger,
		orders: params.Orders,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

type staleOrdersJob struct {
	logg   *logger.Logger
	orders pendingOrderExpirer
	ttl    time.Duration
	now    func() time.Time
}

func (j *staleOrdersJob) Name() string { return "stale-orders" }

func (j *staleOrdersJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	total := 0
	for range staleOrderMaxBatches {
		expired, err := j.orders.ExpireStalePending(ctx, cutoff, staleOrderBatchSize)
		total += expired
		if err != nil {
			return fmt.Errorf("expire pending orders: %w", err)
		}
		if expired < staleOrderBatchSize {
			break
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"expired": total,
	}), "stale order sweep complete")
	return nil
}
