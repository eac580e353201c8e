package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

type connectStatePurger interface {
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

type ConnectStatesJobParams struct {
	Logger  *logger.Logger
	Connect connectStatePurger
}

// NewConnectStatesJob removes onboarding states that expired or were consumed.
func NewConnectStatesJob(params ConnectStatesJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Connect == nil {
		return nil, fmt.Errorf("connect service required")
	}
	return &connectStatesJob{logg: params.Logger, connect: params.Connect, now: time.Now}, nil
}

type connectStatesJob struct {
	logg    *logger.Logger
	connect connectStatePurger
	now     func() time.Time
}

func (j *connectStatesJob) Name() string { return "connect-states" }

func (j *connectStatesJob) Run(ctx context.Context) error {
	deleted, err := j.connect.PurgeExpired(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("purge connect states: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "rows_deleted", deleted), "connect state purge complete")
	return nil
}
