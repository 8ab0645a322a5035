package gateways

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/angelmondragon/payvault-backend/pkg/appmax"
	"github.com/angelmondragon/payvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payvault-backend/pkg/errors"
	"github.com/angelmondragon/payvault-backend/pkg/logger"
)

// appmaxApprovedStatus is assumed when Appmax answers success=true without a payment status.
const appmaxApprovedStatus = "approved"

type AppmaxAPI interface {
	CreateOrder(ctx context.Context, req appmax.OrderRequest) (*appmax.Order, []byte, error)
	PayWithCreditCard(ctx context.Context, req appmax.PaymentRequest) (*appmax.Payment, []byte, error)
}

// AppmaxGateway charges in two steps: create an order, then pay it with the card token.
type AppmaxGateway struct {
	api    AppmaxAPI
	logger *logger.Logger
}

func NewAppmaxGateway(api AppmaxAPI, logg *logger.Logger) (*AppmaxGateway, error) {
	if api == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "appmax client is required")
	}
	return &AppmaxGateway{api: api, logger: logg}, nil
}

func (g *AppmaxGateway) gateway() {}

func (g *AppmaxGateway) Provider() enums.PaymentProvider {
	return enums.PaymentProviderAppmax
}

func (g *AppmaxGateway) EnsureCustomerLink(_ context.Context, req LinkRequest) (*LinkResult, error) {
	if link, ok := existingLink(req); ok {
		return link, nil
	}
	return nil, customerLinkMissing(enums.PaymentProviderAppmax, req.Customer.ID)
}

// ChargeWithSavedCard creates the order unless ResumeOrderID names one, reports it
// through OnOrderCreated and then submits the card payment exactly once.
func (g *AppmaxGateway) ChargeWithSavedCard(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if req.ProviderCustomerID == "" {
		return nil, customerLinkMissing(enums.PaymentProviderAppmax, req.CustomerID)
	}
	document := appmax.DigitsOnly(req.CustomerDocument)
	if document == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer document is required for appmax charges")
	}

	var orderRaw []byte
	orderID, err := g.resolveOrder(ctx, req, &orderRaw)
	if err != nil {
		return nil, err
	}
	orderRef := strconv.FormatInt(orderID, 10)

	payment, paymentRaw, err := g.api.PayWithCreditCard(ctx,
		appmax.NewPaymentRequest(orderID, req.ProviderCustomerID, req.PaymentMethodID, document))
	if err != nil {
		if g.logger != nil {
			g.logger.Error(g.logger.WithFields(ctx, map[string]any{
				"provider": string(enums.PaymentProviderAppmax),
				"order_id": orderRef,
			}), "appmax payment failed", err)
		}
		return nil, &StepError{Step: StepPayment, OrderID: orderRef, Raw: paymentRaw, Err: err}
	}

	status := strings.TrimSpace(payment.Status)
	if status == "" && payment.Confirmed {
		status = appmaxApprovedStatus
	}
	result := &ChargeResult{
		TransactionID: payment.PayReference,
		OrderID:       orderRef,
		ChargeID:      payment.PayReference,
		Status:        status,
		StatusV2:      MapAppmaxStatus(status),
		RawResponse:   appmaxRaw(orderRaw, paymentRaw),
	}
	if result.TransactionID == "" {
		result.TransactionID = "appmax_" + orderRef
	}
	return result, nil
}

func (g *AppmaxGateway) resolveOrder(ctx context.Context, req ChargeRequest, raw *[]byte) (int64, error) {
	if resume := strings.TrimSpace(req.ResumeOrderID); resume != "" {
		orderID, err := strconv.ParseInt(resume, 10, 64)
		if err != nil {
			return 0, &StepError{Step: StepOrder, OrderID: resume, Err: pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid appmax order id")}
		}
		return orderID, nil
	}

	order, orderRaw, err := g.api.CreateOrder(ctx,
		appmax.NewSingleProductOrder(req.ProviderCustomerID, req.AmountCents, req.Metadata["sku"], req.Description))
	if err != nil {
		return 0, &StepError{Step: StepOrder, Raw: orderRaw, Err: err}
	}
	*raw = orderRaw
	orderRef := strconv.FormatInt(order.ID, 10)

	if req.OnOrderCreated != nil {
		if err := req.OnOrderCreated(ctx, orderRef); err != nil {
			return 0, &StepError{Step: StepOrder, OrderID: orderRef, Err: err}
		}
	}
	return order.ID, nil
}

func appmaxRaw(orderRaw, paymentRaw []byte) json.RawMessage {
	envelope := map[string]json.RawMessage{}
	if order := rawJSON(orderRaw); order != nil {
		envelope["order"] = order
	}
	if payment := rawJSON(paymentRaw); payment != nil {
		envelope["payment"] = payment
	}
	if len(envelope) == 0 {
		return nil
	}
	out, err := json.Marshal(envelope)
	if err != nil {
		return nil
	}
	return out
}

// MapAppmaxStatus normalizes an Appmax payment status.
func MapAppmaxStatus(status string) enums.PaymentStatusV2 {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "paid", "approved", "aprovado":
		return enums.PaymentStatusSucceeded
	case "failed", "rejected", "recusado", "cancelado", "canceled":
		return enums.PaymentStatusFailed
	default:
		return enums.PaymentStatusProcessing
	}
}

var _ Adapter = (*AppmaxGateway)(nil)
