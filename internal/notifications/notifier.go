package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/payvault-backend/pkg/logger"
)

type EventType string

const (
	EventRenewalSucceeded EventType = "renewal_succeeded"
	EventRenewalPastDue   EventType = "renewal_past_due"
	EventRenewalPending   EventType = "renewal_pending"
)

// Event describes a renewal outcome delivered to downstream consumers.
type Event struct {
	Type           EventType `json:"type"`
	SubscriptionID string    `json:"subscriptionId"`
	CustomerID     string    `json:"customerId"`
	MerchantID     string    `json:"merchantId,omitempty"`
	Provider       string    `json:"provider,omitempty"`
	TransactionID  string    `json:"transactionId,omitempty"`
	Status         string    `json:"status"`
	Error          string    `json:"error,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// Notifier delivers events without blocking the caller on delivery.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

type publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

// PubSubNotifier publishes events to the notification topic.
type PubSubNotifier struct {
	pub        publisher
	logg       *logger.Logger
	getTimeout time.Duration
}

const defaultPublishWait = 10 * time.Second

// NewPubSubNotifier wraps the notification topic publisher.
func NewPubSubNotifier(pub *gcppubsub.Publisher, logg *logger.Logger) (*PubSubNotifier, error) {
	if pub == nil {
		return nil, errors.New("notification publisher required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &PubSubNotifier{pub: &gcpPublisher{Publisher: pub}, logg: logg, getTimeout: defaultPublishWait}, nil
}

func (n *PubSubNotifier) Notify(ctx context.Context, event Event) {
	logCtx := n.logg.WithFields(ctx, map[string]any{
		"event_type":      string(event.Type),
		"subscription_id": event.SubscriptionID,
	})

	data, err := json.Marshal(event)
	if err != nil {
		n.logg.Error(logCtx, "failed to encode notification", err)
		return
	}

	msg := &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_type":      string(event.Type),
			"subscription_id": event.SubscriptionID,
		},
	}
	result := n.pub.Publish(context.WithoutCancel(ctx), msg)
	if result == nil {
		n.logg.Warn(logCtx, "notification publisher unavailable")
		return
	}

	go func() {
		waitCtx, cancel := context.WithTimeout(context.WithoutCancel(logCtx), n.getTimeout)
		defer cancel()
		if _, err := result.Get(waitCtx); err != nil {
			n.logg.Error(logCtx, "notification publish failed", err)
		}
	}()
}

// LogNotifier writes events to the log. It is used when Pub/Sub is not configured.
type LogNotifier struct {
	logg *logger.Logger
}

func NewLogNotifier(logg *logger.Logger) *LogNotifier {
	return &LogNotifier{logg: logg}
}

func (n *LogNotifier) Notify(ctx context.Context, event Event) {
	if n == nil || n.logg == nil {
		return
	}
	logCtx := n.logg.WithFields(ctx, map[string]any{
		"event_type":      string(event.Type),
		"subscription_id": event.SubscriptionID,
		"customer_id":     event.CustomerID,
		"status":          event.Status,
	})
	if event.Error != "" {
		logCtx = n.logg.WithField(logCtx, "error_message", event.Error)
	}
	n.logg.Info(logCtx, "renewal notification")
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
