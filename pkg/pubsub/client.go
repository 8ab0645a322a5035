package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/payvault-backend/pkg/config"
	"github.com/angelmondragon/payvault-backend/pkg/logger"
)

// Kind distinguishes topics from subscriptions in resource names.
type Kind string

const (
	KindTopic        Kind = "topics"
	KindSubscription Kind = "subscriptions"
)

// Resource is a topic or subscription a binary depends on.
type Resource struct {
	Kind Kind
	Name string
}

// Needs lists the resources that must exist before a binary starts; Ping
// re-checks them for readiness probes.
type Needs []Resource

// Topic and Subscription build Needs entries from config names.
func Topic(name string) Resource        { return Resource{Kind: KindTopic, Name: name} }
func Subscription(name string) Resource { return Resource{Kind: KindSubscription, Name: name} }

type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
	needs     Needs
}

var errProjectIDRequired = errors.New("gcp project id is required")

// NewClient dials Pub/Sub with the configured credentials and verifies that
// every resource in needs exists.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, needs Needs, logg *logger.Logger) (*Client, error) {
	if !gcp.Enabled() {
		return nil, errProjectIDRequired
	}

	psClient, err := pubsub.NewClient(ctx, gcp.ProjectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{client: psClient, projectID: strings.TrimSpace(gcp.ProjectID), cfg: cfg, needs: needs}
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "pubsub_resources", len(needs)), "pubsub client initialized")
	}
	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	}
	return nil
}

// Ping checks that every required topic and subscription still exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	for _, res := range c.needs {
		if err := c.exists(ctx, res); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) exists(ctx context.Context, res Resource) error {
	full := c.resourceName(res.Kind, res.Name)
	if full == "" {
		return fmt.Errorf("pubsub %s name is empty", strings.TrimSuffix(string(res.Kind), "s"))
	}

	var err error
	switch res.Kind {
	case KindTopic:
		_, err = c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: full})
	case KindSubscription:
		_, err = c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: full})
	default:
		return fmt.Errorf("unknown pubsub resource kind %q", res.Kind)
	}
	switch {
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s does not exist", full)
	case err != nil:
		return fmt.Errorf("checking %s: %w", full, err)
	}
	return nil
}

// RenewalSubscription is the subscriber the renewal worker pulls from.
func (c *Client) RenewalSubscription() *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Subscriber(c.resourceName(KindSubscription, c.cfg.RenewalSubscription))
}

// RenewalPublisher publishes due-subscription messages.
func (c *Client) RenewalPublisher() *pubsub.Publisher {
	return c.publisher(c.cfg.RenewalTopic)
}

// NotificationPublisher publishes card and renewal notifications.
func (c *Client) NotificationPublisher() *pubsub.Publisher {
	return c.publisher(c.cfg.NotificationTopic)
}

func (c *Client) publisher(topic string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := c.resourceName(KindTopic, topic)
	if full == "" {
		return nil
	}
	return c.client.Publisher(full)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// resourceName expands a short ID to projects/<p>/<kind>/<id>; full names
// pass through unchanged.
func (c *Client) resourceName(kind Kind, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+string(kind)+"/") {
		return n
	}
	if c.projectID == "" {
		return ""
	}
	return "projects/" + c.projectID + "/" + string(kind) + "/" + n
}
