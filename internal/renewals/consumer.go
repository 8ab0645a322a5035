package renewals

import (
	"context"
	"encoding/json"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/payvault-backend/pkg/errors"
	"github.com/angelmondragon/payvault-backend/pkg/logger"
)

// Consumer pulls renewal messages and runs them through the Renewer. Redelivered
// messages are safe: the lock and the deterministic transaction id dedupe them.
type Consumer struct {
	subscription *gcppubsub.Subscriber
	renewer      Renewer
	logg         *logger.Logger
	concurrency  int
}

func NewConsumer(subscription *gcppubsub.Subscriber, renewer Renewer, logg *logger.Logger, concurrency int) (*Consumer, error) {
	if subscription == nil {
		return nil, fmt.Errorf("renewal subscription required")
	}
	if renewer == nil {
		return nil, fmt.Errorf("renewer required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Consumer{subscription: subscription, renewer: renewer, logg: logg, concurrency: concurrency}, nil
}

// Run blocks receiving messages until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	c.subscription.ReceiveSettings.MaxOutstandingMessages = c.concurrency
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *gcppubsub.Message) {
		if c.process(ctx, msg.ID, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process reports whether the message should be acked.
func (c *Consumer) process(ctx context.Context, messageID string, data []byte) bool {
	logCtx := c.logg.WithField(ctx, "message_id", messageID)

	var payload renewalMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		c.logg.Error(logCtx, "failed to decode renewal message", err)
		return true
	}
	id, err := uuid.Parse(payload.SubscriptionID)
	if err != nil {
		c.logg.Error(logCtx, "invalid subscription id", err)
		return true
	}

	result, err := c.renewer.Renew(logCtx, id)
	if err != nil {
		failCtx := c.logg.WithFields(c.logg.WithSubscriptionID(logCtx, id.String()), pkgerrors.Dump(err).Fields())
		if !retryable(err) {
			c.logg.Error(failCtx, "renewal failed permanently; dropping message", err)
			return true
		}
		c.logg.Error(failCtx, "renewal failed; will retry", err)
		return false
	}
	if result.Skipped {
		c.logg.Info(c.logg.WithField(logCtx, "reason", string(result.Reason)), "renewal message skipped")
	}
	return true
}

// retryable treats untyped errors as transient.
func retryable(err error) bool {
	typed := pkgerrors.As(err)
	if typed == nil {
		return true
	}
	return pkgerrors.MetadataFor(typed.Code()).Retryable
}
