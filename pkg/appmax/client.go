package appmax

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/angelmondragon/payvault-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/payvault-backend/pkg/errors"
	"github.com/angelmondragon/payvault-backend/pkg/gatewayhttp"
	"github.com/angelmondragon/payvault-backend/pkg/logger"
	"github.com/angelmondragon/payvault-backend/pkg/metrics"
)

const providerName = "APPMAX"

var errAccessTokenRequired = errors.New("appmax access token is required")

var (
	// A duplicate order is detectable and harmless.
	opCreateOrder = gatewayhttp.Operation{Name: "create_order", Idempotent: true}
	// A repeated payment on the same order can make Appmax cancel the order.
	opPayCreditCard = gatewayhttp.Operation{Name: "payment_credit_card", Idempotent: false}
)

// Client talks to the Appmax /api/v3 REST API.
type Client struct {
	http *gatewayhttp.Client
}

// NewClient builds an Appmax client for the configured environment.
func NewClient(cfg config.AppmaxConfig, gw config.GatewayHTTPConfig, logg *logger.Logger, m *metrics.GatewayMetrics) (*Client, error) {
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errAccessTokenRequired
	}
	httpClient, err := gatewayhttp.New(gatewayhttp.Options{
		Provider:    providerName,
		BaseURL:     cfg.ResolvedBaseURL() + "/api/v3",
		Timeout:     gw.Timeout,
		MaxAttempts: gw.MaxAttempts,
		Backoff:     gw.Backoff,
		Authorize: func(r *http.Request) {
			r.Header.Set("access-token", token)
		},
		Logger:  logg,
		Metrics: m,
	})
	if err != nil {
		return nil, err
	}
	return &Client{http: httpClient}, nil
}

// CreateOrder registers an order. Amounts in req are major units.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*Order, []byte, error) {
	var env envelope
	resp, err := c.http.DoJSON(ctx, opCreateOrder, gatewayhttp.Request{
		Method: http.MethodPost,
		Path:   "/order",
		Body:   req,
	}, &env)
	if err != nil {
		return nil, nil, err
	}
	if err := env.check(opCreateOrder.Name, resp.Body); err != nil {
		return nil, resp.Body, err
	}
	var order Order
	if err := json.Unmarshal(env.Data, &order); err != nil {
		return nil, resp.Body, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "appmax create_order: decode order")
	}
	if order.ID == 0 {
		return nil, resp.Body, pkgerrors.New(pkgerrors.CodeDependency, "appmax create_order: response without order id")
	}
	return &order, resp.Body, nil
}

// PayWithCreditCard charges an existing order with a saved card token. It is
// attempted exactly once.
func (c *Client) PayWithCreditCard(ctx context.Context, req PaymentRequest) (*Payment, []byte, error) {
	var env envelope
	resp, err := c.http.DoJSON(ctx, opPayCreditCard, gatewayhttp.Request{
		Method: http.MethodPost,
		Path:   "/payment/credit-card",
		Body:   req,
	}, &env)
	if err != nil {
		return nil, nil, err
	}
	if err := env.check(opPayCreditCard.Name, resp.Body); err != nil {
		return nil, resp.Body, err
	}
	var payment Payment
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &payment); err != nil {
			return nil, resp.Body, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "appmax payment_credit_card: decode payment")
		}
	}
	payment.Confirmed = env.Success != nil && *env.Success
	return &payment, resp.Body, nil
}

// envelope is the {success, text, data} wrapper Appmax puts around every answer.
type envelope struct {
	Success *bool           `json:"success"`
	Text    string          `json:"text"`
	Data    json.RawMessage `json:"data"`
}

// check turns a 2xx answer with success=false into a rejection.
func (e envelope) check(op string, raw []byte) error {
	if e.Success == nil || *e.Success {
		return nil
	}
	details := map[string]any{
		"provider":  providerName,
		"operation": op,
	}
	var payload any
	if err := json.Unmarshal(gatewayhttp.Sanitize(raw), &payload); err == nil {
		details["response"] = payload
	}
	msg := strings.TrimSpace(e.Text)
	if msg == "" {
		msg = "request refused"
	}
	return pkgerrors.New(pkgerrors.CodeGatewayRejected, fmt.Sprintf("appmax %s: %s", op, msg)).WithDetails(details)
}
