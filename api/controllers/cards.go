package controllers

import (
	"net/http"

	"github.com/angelmondragon/payvault-backend/api/responses"
	"github.com/angelmondragon/payvault-backend/api/validators"
	"github.com/angelmondragon/payvault-backend/internal/vault"
	"github.com/angelmondragon/payvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payvault-backend/pkg/errors"
	"github.com/angelmondragon/payvault-backend/pkg/logger"
)

type saveCardRequest struct {
	Provider     string `json:"provider" validate:"required,provider"`
	Token        string `json:"token" validate:"required,max=255"`
	AccountID    string `json:"account_id" validate:"max=255"`
	Brand        string `json:"brand" validate:"max=32"`
	Last4        string `json:"last4" validate:"omitempty,len=4,numeric"`
	ExpMonth     *int   `json:"exp_month" validate:"omitempty,min=1,max=12"`
	ExpYear      *int   `json:"exp_year" validate:"omitempty,min=0"`
	SetAsDefault bool   `json:"set_as_default"`
}

// SaveCard stores a tokenized card for the customer in the path.
func SaveCard(svc vault.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, err := validators.ParseUUIDParam(r, "customerID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req saveCardRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		provider, err := enums.ParsePaymentProvider(req.Provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid provider").WithDetails(map[string]any{"provider": "must be one of STRIPE, PAGARME, APPMAX"}))
			return
		}

		card, err := svc.SaveCard(r.Context(), vault.SaveCardInput{
			CustomerID:   customerID,
			Provider:     provider,
			Token:        validators.SanitizeString(req.Token, 255),
			AccountID:    validators.SanitizeString(req.AccountID, 255),
			Brand:        validators.SanitizeString(req.Brand, 32),
			Last4:        req.Last4,
			ExpMonth:     req.ExpMonth,
			ExpYear:      req.ExpYear,
			SetAsDefault: req.SetAsDefault,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCardResponse(card))
	}
}

// ListCards returns the customer's active cards, default first.
func ListCards(svc vault.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, err := validators.ParseUUIDParam(r, "customerID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		provider, err := validators.ParseProviderQuery(r, "provider")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cards, err := svc.ListCards(r.Context(), customerID, provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]cardResponse, 0, len(cards))
		for i := range cards {
			out = append(out, newCardResponse(&cards[i]))
		}
		responses.WriteSuccess(w, out)
	}
}
