package gateways

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/payvault-backend/pkg/db/models"
	"github.com/angelmondragon/payvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payvault-backend/pkg/errors"
)

// Adapter charges a saved card at one provider. The unexported method keeps the
// set of adapters closed to this package so Set.For stays the single dispatch point.
type Adapter interface {
	Provider() enums.PaymentProvider
	EnsureCustomerLink(ctx context.Context, req LinkRequest) (*LinkResult, error)
	ChargeWithSavedCard(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	gateway()
}

// LinkRequest carries what an adapter needs to find or provision the provider-side customer.
type LinkRequest struct {
	Customer  models.Customer
	AccountID string
	Existing  *models.CustomerProvider
}

// LinkResult is the provider customer id to charge against. Created is true when
// the adapter provisioned it during this call and the caller must persist it.
type LinkResult struct {
	ProviderCustomerID string
	Created            bool
}

// ChargeRequest is the provider-agnostic description of an off-session charge.
type ChargeRequest struct {
	CustomerID         uuid.UUID
	MerchantID         uuid.UUID
	ProviderCustomerID string
	PaymentMethodID    string
	AccountID          string
	AmountCents        int64
	Currency           string
	Description        string
	Metadata           map[string]string
	CustomerDocument   string
	IdempotencyKey     string

	// ResumeOrderID skips order creation on two-step providers and pays this order.
	ResumeOrderID string
	// OnOrderCreated runs after a two-step provider created its order and before payment.
	OnOrderCreated func(ctx context.Context, orderID string) error
}

// ChargeResult is the normalized outcome of a provider charge.
type ChargeResult struct {
	TransactionID string
	OrderID       string
	ChargeID      string
	Status        string
	StatusV2      enums.PaymentStatusV2
	PaidAt        *time.Time
	RawResponse   json.RawMessage
}

// Set holds the configured adapters. A nil field means the provider is not enabled.
type Set struct {
	Stripe  *StripeGateway
	Pagarme *PagarmeGateway
	Appmax  *AppmaxGateway
}

// For returns the adapter for provider. Unknown or unconfigured providers fail;
// nothing ever falls back to another gateway.
func (s Set) For(provider enums.PaymentProvider) (Adapter, error) {
	switch provider {
	case enums.PaymentProviderStripe:
		if s.Stripe != nil {
			return s.Stripe, nil
		}
	case enums.PaymentProviderPagarme:
		if s.Pagarme != nil {
			return s.Pagarme, nil
		}
	case enums.PaymentProviderAppmax:
		if s.Appmax != nil {
			return s.Appmax, nil
		}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeUnsupportedProvider, "unsupported payment provider").
			WithDetails(map[string]any{"provider": string(provider)})
	}
	return nil, pkgerrors.New(pkgerrors.CodeUnsupportedProvider, "payment provider not configured").
		WithDetails(map[string]any{"provider": string(provider)})
}

func customerLinkMissing(provider enums.PaymentProvider, customerID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeCustomerLinkMissing, "customer has no record at the payment provider").
		WithDetails(map[string]any{"provider": string(provider), "customer_id": customerID.String()})
}

func existingLink(req LinkRequest) (*LinkResult, bool) {
	if req.Existing == nil || req.Existing.ProviderCustomerID == "" {
		return nil, false
	}
	return &LinkResult{ProviderCustomerID: req.Existing.ProviderCustomerID}, true
}

func parseProviderTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

func rawJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 || !json.Valid(raw) {
		return nil
	}
	return json.RawMessage(raw)
}
