package gateways

import (
	"context"
	"strings"

	"github.com/angelmondragon/payvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payvault-backend/pkg/errors"
	"github.com/angelmondragon/payvault-backend/pkg/logger"
	"github.com/angelmondragon/payvault-backend/pkg/pagarme"
)

const pagarmeMaxCodeLength = 52

type PagarmeAPI interface {
	CreateOrder(ctx context.Context, req pagarme.OrderRequest, idempotencyKey string) (*pagarme.Order, []byte, error)
}

// PagarmeGateway charges saved cards by creating a single-payment order.
type PagarmeGateway struct {
	api    PagarmeAPI
	logger *logger.Logger
}

func NewPagarmeGateway(api PagarmeAPI, logg *logger.Logger) (*PagarmeGateway, error) {
	if api == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "pagarme client is required")
	}
	return &PagarmeGateway{api: api, logger: logg}, nil
}

func (g *PagarmeGateway) gateway() {}

func (g *PagarmeGateway) Provider() enums.PaymentProvider {
	return enums.PaymentProviderPagarme
}

// EnsureCustomerLink never provisions: cards are tokenized against a Pagar.me
// customer that must already be linked.
func (g *PagarmeGateway) EnsureCustomerLink(_ context.Context, req LinkRequest) (*LinkResult, error) {
	if link, ok := existingLink(req); ok {
		return link, nil
	}
	return nil, customerLinkMissing(enums.PaymentProviderPagarme, req.Customer.ID)
}

func (g *PagarmeGateway) ChargeWithSavedCard(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if req.ProviderCustomerID == "" {
		return nil, customerLinkMissing(enums.PaymentProviderPagarme, req.CustomerID)
	}

	code := req.IdempotencyKey
	if len(code) > pagarmeMaxCodeLength {
		code = code[:pagarmeMaxCodeLength]
	}
	order, raw, err := g.api.CreateOrder(ctx,
		pagarme.NewSavedCardOrder(req.ProviderCustomerID, req.PaymentMethodID, req.AmountCents, req.Description, code, req.Metadata),
		req.IdempotencyKey,
	)
	if err != nil {
		return nil, err
	}

	result := &ChargeResult{
		TransactionID: order.ID,
		OrderID:       order.ID,
		Status:        order.Status,
		RawResponse:   rawJSON(raw),
	}
	if charge := order.PrimaryCharge(); charge != nil {
		result.TransactionID = charge.ID
		result.ChargeID = charge.ID
		result.Status = charge.Status
		result.PaidAt = parseProviderTime(charge.PaidAt)
	}
	result.StatusV2 = MapPagarmeStatus(result.Status)

	if g.logger != nil && result.StatusV2 == enums.PaymentStatusFailed {
		g.logger.Warn(g.logger.WithFields(ctx, map[string]any{
			"provider": string(enums.PaymentProviderPagarme),
			"order_id": order.ID,
			"status":   result.Status,
		}), "pagarme charge not approved")
	}
	return result, nil
}

// MapPagarmeStatus normalizes a Pagar.me order or charge status.
func MapPagarmeStatus(status string) enums.PaymentStatusV2 {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "paid":
		return enums.PaymentStatusSucceeded
	case "failed", "canceled", "not_authorized", "with_error", "voided", "refunded":
		return enums.PaymentStatusFailed
	default:
		return enums.PaymentStatusProcessing
	}
}

var _ Adapter = (*PagarmeGateway)(nil)
