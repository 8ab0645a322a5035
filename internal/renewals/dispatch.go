package renewals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/payvault-backend/internal/subscriptions"
	"github.com/angelmondragon/payvault-backend/pkg/db/models"
	"github.com/angelmondragon/payvault-backend/pkg/logger"
)

const (
	defaultConcurrency = 10
	sweepJobName       = "renewal-sweep"
)

// Dispatcher hands due subscription ids to whatever runs the renewals.
type Dispatcher interface {
	Dispatch(ctx context.Context, ids []uuid.UUID) error
}

// renewalMessage is the payload carried on the renewal topic.
type renewalMessage struct {
	SubscriptionID string `json:"subscription_id"`
}

type dueLister interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error)
}

// SweepJob is the cron entry point: it finds due subscriptions and dispatches them.
type SweepJob struct {
	subs       dueLister
	dispatcher Dispatcher
	logg       *logger.Logger
	limit      int
	clock      func() time.Time
}

type SweepJobParams struct {
	Subscriptions subscriptions.Repository
	Dispatcher    Dispatcher
	Logger        *logger.Logger
	Limit         int
	Clock         func() time.Time
}

func NewSweepJob(params SweepJobParams) (*SweepJob, error) {
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscriptions repository required")
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SweepJob{
		subs:       params.Subscriptions,
		dispatcher: params.Dispatcher,
		logg:       params.Logger,
		limit:      params.Limit,
		clock:      clock,
	}, nil
}

func (j *SweepJob) Name() string {
	return sweepJobName
}

func (j *SweepJob) Run(ctx context.Context) error {
	due, err := j.subs.ListDue(ctx, j.clock(), j.limit)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		j.logg.Info(ctx, "no subscriptions due for renewal")
		return nil
	}
	ids := make([]uuid.UUID, 0, len(due))
	for _, sub := range due {
		ids = append(ids, sub.ID)
	}
	j.logg.Info(j.logg.WithField(ctx, "count", len(ids)), "dispatching due renewals")
	return j.dispatcher.Dispatch(ctx, ids)
}

// InlineDispatcher renews in-process with bounded concurrency.
type InlineDispatcher struct {
	renewer     Renewer
	logg        *logger.Logger
	concurrency int
}

func NewInlineDispatcher(renewer Renewer, logg *logger.Logger, concurrency int) (*InlineDispatcher, error) {
	if renewer == nil {
		return nil, fmt.Errorf("renewer required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &InlineDispatcher{renewer: renewer, logg: logg, concurrency: concurrency}, nil
}

// Dispatch runs every renewal and returns the combined errors of those that failed.
func (d *InlineDispatcher) Dispatch(ctx context.Context, ids []uuid.UUID) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs error
	)
	g.SetLimit(d.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			if _, err := d.renewer.Renew(ctx, id); err != nil {
				d.logg.Error(d.logg.WithSubscriptionID(ctx, id.String()), "renewal failed", err)
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("renew %s: %w", id, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

type publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

// PubSubDispatcher publishes one message per due subscription to the renewal topic.
type PubSubDispatcher struct {
	pub publisher
}

func NewPubSubDispatcher(pub *gcppubsub.Publisher) (*PubSubDispatcher, error) {
	if pub == nil {
		return nil, errors.New("renewal publisher required")
	}
	return &PubSubDispatcher{pub: &gcpPublisher{Publisher: pub}}, nil
}

func (d *PubSubDispatcher) Dispatch(ctx context.Context, ids []uuid.UUID) error {
	results := make(map[uuid.UUID]publishResult, len(ids))
	for _, id := range ids {
		data, err := json.Marshal(renewalMessage{SubscriptionID: id.String()})
		if err != nil {
			return err
		}
		result := d.pub.Publish(ctx, &gcppubsub.Message{
			Data:       data,
			Attributes: map[string]string{"subscription_id": id.String()},
		})
		if result == nil {
			return errors.New("renewal publisher unavailable")
		}
		results[id] = result
	}

	var errs error
	for _, id := range ids {
		if _, err := results[id].Get(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("publish renewal %s: %w", id, err))
		}
	}
	return errs
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return p.Publisher.Publish(ctx, msg)
}
