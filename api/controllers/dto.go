package controllers

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/payvault-backend/internal/renewals"
	"github.com/angelmondragon/payvault-backend/pkg/db/models"
)

type cardResponse struct {
	ID          string    `json:"id"`
	CustomerID  string    `json:"customer_id"`
	Provider    string    `json:"provider"`
	AccountID   *string   `json:"account_id,omitempty"`
	Brand       *string   `json:"brand,omitempty"`
	Last4       *string   `json:"last4,omitempty"`
	ExpMonth    *int      `json:"exp_month,omitempty"`
	ExpYear     *int      `json:"exp_year,omitempty"`
	Fingerprint string    `json:"fingerprint"`
	IsDefault   bool      `json:"is_default"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newCardResponse(card *models.CustomerPaymentMethod) cardResponse {
	return cardResponse{
		ID:          card.ID.String(),
		CustomerID:  card.CustomerID.String(),
		Provider:    string(card.Provider),
		AccountID:   card.AccountID,
		Brand:       card.Brand,
		Last4:       card.Last4,
		ExpMonth:    card.ExpMonth,
		ExpYear:     card.ExpYear,
		Fingerprint: card.Fingerprint,
		IsDefault:   card.IsDefault,
		Status:      string(card.Status),
		CreatedAt:   card.CreatedAt,
		UpdatedAt:   card.UpdatedAt,
	}
}

type transactionResponse struct {
	ID               string          `json:"id"`
	Provider         string          `json:"provider"`
	ProviderOrderID  *string         `json:"provider_order_id,omitempty"`
	ProviderChargeID *string         `json:"provider_charge_id,omitempty"`
	CustomerID       string          `json:"customer_id"`
	MerchantID       string          `json:"merchant_id"`
	SavedCardID      *string         `json:"saved_card_id,omitempty"`
	SubscriptionID   *string         `json:"subscription_id,omitempty"`
	PeriodKey        *string         `json:"period_key,omitempty"`
	AmountCents      int64           `json:"amount_cents"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	StatusV2         string          `json:"status_v2"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	ErrorMessage     *string         `json:"error_message,omitempty"`
	RawPayload       json.RawMessage `json:"raw_payload,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func newTransactionResponse(txn *models.PaymentTransaction) transactionResponse {
	resp := transactionResponse{
		ID:               txn.ID,
		Provider:         string(txn.Provider),
		ProviderOrderID:  txn.ProviderOrderID,
		ProviderChargeID: txn.ProviderChargeID,
		CustomerID:       txn.CustomerID.String(),
		MerchantID:       txn.MerchantID.String(),
		PeriodKey:        txn.PeriodKey,
		AmountCents:      txn.AmountCents,
		Currency:         txn.Currency,
		Status:           txn.Status,
		StatusV2:         string(txn.StatusV2),
		PaidAt:           txn.PaidAt,
		ErrorMessage:     txn.ErrorMessage,
		CreatedAt:        txn.CreatedAt,
		UpdatedAt:        txn.UpdatedAt,
	}
	if txn.CustomerPaymentMethodID != nil {
		id := txn.CustomerPaymentMethodID.String()
		resp.SavedCardID = &id
	}
	if txn.SubscriptionID != nil {
		id := txn.SubscriptionID.String()
		resp.SubscriptionID = &id
	}
	if len(txn.RawPayload) > 0 && json.Valid(txn.RawPayload) {
		resp.RawPayload = json.RawMessage(txn.RawPayload)
	}
	return resp
}

type renewalResponse struct {
	Skipped       bool   `json:"skipped"`
	Reason        string `json:"reason,omitempty"`
	Success       bool   `json:"success"`
	Status        string `json:"status,omitempty"`
	Outcome       string `json:"outcome,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

func newRenewalResponse(result renewals.Result) renewalResponse {
	return renewalResponse{
		Skipped:       result.Skipped,
		Reason:        string(result.Reason),
		Success:       result.Success,
		Status:        string(result.Status),
		Outcome:       string(result.Outcome),
		TransactionID: result.TransactionID,
	}
}
