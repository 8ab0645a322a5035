package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/payvault-backend/pkg/errors"
)

// CustomerCreateParams describes the Stripe customer created for a vault customer.
type CustomerCreateParams struct {
	Email          string
	Name           string
	Phone          string
	AccountID      string
	IdempotencyKey string
	Metadata       map[string]string
}

// PaymentIntentCreateParams describes an off-session, immediately confirmed charge.
type PaymentIntentCreateParams struct {
	AmountCents     int64
	Currency        string
	CustomerID      string
	PaymentMethodID string
	Description     string
	AccountID       string
	IdempotencyKey  string
	Metadata        map[string]string
}

// CreateCustomer creates a customer, on the connected account when AccountID is set.
func (c *Client) CreateCustomer(ctx context.Context, p CustomerCreateParams) (*stripe.Customer, error) {
	params := &stripe.CustomerCreateParams{}
	if p.Email != "" {
		params.Email = stripe.String(p.Email)
	}
	if p.Name != "" {
		params.Name = stripe.String(p.Name)
	}
	if p.Phone != "" {
		params.Phone = stripe.String(p.Phone)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	applyRequestOptions(&params.Params, p.AccountID, p.IdempotencyKey)

	started := time.Now()
	cust, err := c.sc.V1Customers.Create(ctx, params)
	c.observe("create_customer", started, err)
	if err != nil {
		return nil, MapError(err, "create customer")
	}
	return cust, nil
}

// AttachPaymentMethod attaches a payment method to a customer. A payment method
// that is already attached is not an error.
func (c *Client) AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID, accountID string) error {
	params := &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(customerID),
	}
	applyRequestOptions(&params.Params, accountID, "")

	started := time.Now()
	_, err := c.sc.V1PaymentMethods.Attach(ctx, paymentMethodID, params)
	c.observe("attach_payment_method", started, err)
	if err != nil {
		if IsAlreadyAttached(err) {
			return nil
		}
		return MapError(err, "attach payment method")
	}
	return nil
}

// CreatePaymentIntent creates and confirms an off-session PaymentIntent. Card
// declines come back as the declined intent alongside the mapped error.
func (c *Client) CreatePaymentIntent(ctx context.Context, p PaymentIntentCreateParams) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:        stripe.Int64(p.AmountCents),
		Currency:      stripe.String(strings.ToLower(p.Currency)),
		Customer:      stripe.String(p.CustomerID),
		PaymentMethod: stripe.String(p.PaymentMethodID),
		OffSession:    stripe.Bool(true),
		Confirm:       stripe.Bool(true),
	}
	if p.Description != "" {
		params.Description = stripe.String(p.Description)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	applyRequestOptions(&params.Params, p.AccountID, p.IdempotencyKey)

	started := time.Now()
	intent, err := c.sc.V1PaymentIntents.Create(ctx, params)
	c.observe("create_payment_intent", started, err)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.PaymentIntent != nil {
			return stripeErr.PaymentIntent, MapError(err, "create payment intent")
		}
		return nil, MapError(err, "create payment intent")
	}
	return intent, nil
}

func applyRequestOptions(params *stripe.Params, accountID, idempotencyKey string) {
	if accountID = strings.TrimSpace(accountID); accountID != "" {
		params.SetStripeAccount(accountID)
	}
	if idempotencyKey = strings.TrimSpace(idempotencyKey); idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
}

// IsAlreadyAttached reports whether err is Stripe refusing a duplicate attach.
func IsAlreadyAttached(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	msg := strings.ToLower(stripeErr.Msg)
	return strings.Contains(msg, "already") && strings.Contains(msg, "attached")
}

// MapError converts Stripe failures into domain errors: connection problems and
// 5xx are transient, everything else the API rejected.
func MapError(err error, op string) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return pkgerrors.Wrap(pkgerrors.CodeGatewayTransient, err, fmt.Sprintf("stripe %s failed", op))
	}
	status := stripeErr.HTTPStatusCode
	if status == 0 || status >= http.StatusInternalServerError || stripeErr.Type == stripe.ErrorTypeAPI {
		return pkgerrors.Wrap(pkgerrors.CodeGatewayTransient, err, fmt.Sprintf("stripe %s failed", op))
	}
	details := map[string]any{
		"provider":  "STRIPE",
		"operation": op,
		"status":    status,
		"type":      string(stripeErr.Type),
		"code":      string(stripeErr.Code),
	}
	if stripeErr.DeclineCode != "" {
		details["decline_code"] = string(stripeErr.DeclineCode)
	}
	if stripeErr.Msg != "" {
		details["message"] = stripeErr.Msg
	}
	return pkgerrors.Wrap(pkgerrors.CodeGatewayRejected, err, fmt.Sprintf("stripe %s failed", op)).WithDetails(details)
}
