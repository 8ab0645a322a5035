package pagarme

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/angelmondragon/payvault-backend/pkg/config"
	"github.com/angelmondragon/payvault-backend/pkg/gatewayhttp"
	"github.com/angelmondragon/payvault-backend/pkg/logger"
	"github.com/angelmondragon/payvault-backend/pkg/metrics"
)

const providerName = "PAGARME"

var errSecretKeyRequired = errors.New("pagarme secret key is required")
// Order creation charges the card; never retried.
// Order creation is the charge itself, so repeating it could bill twice.
var opCreateOrder = gatewayhttp.Operation{Name: "create_order", Idempotent: false}

// Client talks to the Pagar.me core API v5.
type Client struct {
	http *gatewayhttp.Client
}

// NewClient builds a Pagar.me client authenticated with HTTP basic auth.
func NewClient(cfg config.PagarmeConfig, gw config.GatewayHTTPConfig, logg *logger.Logger, m *metrics.GatewayMetrics) (*Client, error) {
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, errSecretKeyRequired
	}
	auth := "Basic " + base64.StdEncoding.EncodeToString([]byte(secret+":"))

	httpClient, err := gatewayhttp.New(gatewayhttp.Options{
		Provider:    providerName,
		BaseURL:     cfg.BaseURL,
		Timeout:     gw.Timeout,
		MaxAttempts: gw.MaxAttempts,
		Backoff:     gw.Backoff,
		Authorize: func(r *http.Request) {
			r.Header.Set("Authorization", auth)
		},
		Logger:  logg,
		Metrics: m,
	})
	if err != nil {
		return nil, err
	}
	return &Client{http: httpClient}, nil
}

// CreateOrder submits an order with a single saved-card payment. The raw response
// body is returned for audit storage.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest, idempotencyKey string) (*Order, []byte, error) {
	headers := map[string]string{}
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		headers["Idempotency-Key"] = key
	}

	var order Order
	resp, err := c.http.DoJSON(ctx, opCreateOrder, gatewayhttp.Request{
		Method:  http.MethodPost,
		Path:    "/core/v5/orders",
		Body:    req,
		Headers: headers,
	}, &order)
	if err != nil {
		return nil, nil, err
	}
	return &order, resp.Body, nil
}
