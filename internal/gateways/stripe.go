package gateways

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/payvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payvault-backend/pkg/errors"
	"github.com/angelmondragon/payvault-backend/pkg/logger"
	pkgstripe "github.com/angelmondragon/payvault-backend/pkg/stripe"
)

// StripeAPI is the subset of the Stripe client the adapter calls.
type StripeAPI interface {
	CreateCustomer(ctx context.Context, p pkgstripe.CustomerCreateParams) (*stripe.Customer, error)
	AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID, accountID string) error
	CreatePaymentIntent(ctx context.Context, p pkgstripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error)
}

// StripeGateway charges saved cards with off-session PaymentIntents.
type StripeGateway struct {
	api    StripeAPI
	logger *logger.Logger
}

func NewStripeGateway(api StripeAPI, logg *logger.Logger) (*StripeGateway, error) {
	if api == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client is required")
	}
	return &StripeGateway{api: api, logger: logg}, nil
}

func (g *StripeGateway) gateway() {}

func (g *StripeGateway) Provider() enums.PaymentProvider {
	return enums.PaymentProviderStripe
}

// EnsureCustomerLink reuses the stored Stripe customer or creates one.
func (g *StripeGateway) EnsureCustomerLink(ctx context.Context, req LinkRequest) (*LinkResult, error) {
	if link, ok := existingLink(req); ok {
		return link, nil
	}

	cust, err := g.api.CreateCustomer(ctx, pkgstripe.CustomerCreateParams{
		Email:          deref(req.Customer.Email),
		Name:           req.Customer.Name,
		Phone:          deref(req.Customer.Phone),
		AccountID:      req.AccountID,
		IdempotencyKey: "customer-" + req.Customer.ID.String() + "-" + strings.TrimSpace(req.AccountID),
		Metadata: map[string]string{
			"customer_id": req.Customer.ID.String(),
			"merchant_id": req.Customer.MerchantID.String(),
		},
	})
	if err != nil {
		return nil, err
	}
	if g.logger != nil {
		ctx = g.logger.WithCustomerID(ctx, req.Customer.ID.String())
		g.logger.Info(ctx, "stripe customer created")
	}
	return &LinkResult{ProviderCustomerID: cust.ID, Created: true}, nil
}

// ChargeWithSavedCard attaches the card and confirms a PaymentIntent. A declined
// intent is reported as a FAILED result rather than an error.
func (g *StripeGateway) ChargeWithSavedCard(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if req.ProviderCustomerID == "" {
		return nil, customerLinkMissing(enums.PaymentProviderStripe, req.CustomerID)
	}

	if err := g.api.AttachPaymentMethod(ctx, req.PaymentMethodID, req.ProviderCustomerID, req.AccountID); err != nil {
		return nil, err
	}

	intent, err := g.api.CreatePaymentIntent(ctx, pkgstripe.PaymentIntentCreateParams{
		AmountCents:     req.AmountCents,
		Currency:        req.Currency,
		CustomerID:      req.ProviderCustomerID,
		PaymentMethodID: req.PaymentMethodID,
		Description:     req.Description,
		AccountID:       req.AccountID,
		IdempotencyKey:  req.IdempotencyKey,
		Metadata:        req.Metadata,
	})
	if intent == nil {
		return nil, err
	}
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeGatewayRejected) {
		return nil, err
	}

	result := stripeResult(intent)
	if err != nil {
		result.StatusV2 = enums.PaymentStatusFailed
		if g.logger != nil {
			g.logger.Warn(g.logger.WithProvider(ctx, string(enums.PaymentProviderStripe)), "stripe payment intent declined")
		}
	}
	return result, nil
}

func stripeResult(intent *stripe.PaymentIntent) *ChargeResult {
	result := &ChargeResult{
		TransactionID: intent.ID,
		Status:        string(intent.Status),
		StatusV2:      MapStripeStatus(string(intent.Status)),
	}
	if intent.LatestCharge != nil {
		result.ChargeID = intent.LatestCharge.ID
	}
	if raw, err := json.Marshal(intent); err == nil {
		result.RawResponse = raw
	}
	return result
}

// MapStripeStatus normalizes a PaymentIntent status.
func MapStripeStatus(status string) enums.PaymentStatusV2 {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case string(stripe.PaymentIntentStatusSucceeded):
		return enums.PaymentStatusSucceeded
	case string(stripe.PaymentIntentStatusProcessing), string(stripe.PaymentIntentStatusRequiresAction):
		return enums.PaymentStatusProcessing
	case string(stripe.PaymentIntentStatusCanceled),
		string(stripe.PaymentIntentStatusRequiresPaymentMethod),
		string(stripe.PaymentIntentStatusRequiresConfirmation),
		string(stripe.PaymentIntentStatusRequiresCapture):
		return enums.PaymentStatusFailed
	default:
		return enums.PaymentStatusProcessing
	}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}

var _ Adapter = (*StripeGateway)(nil)
