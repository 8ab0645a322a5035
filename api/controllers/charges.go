package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/payvault-backend/api/middleware"
	"github.com/angelmondragon/payvault-backend/api/responses"
	"github.com/angelmondragon/payvault-backend/api/validators"
	"github.com/angelmondragon/payvault-backend/internal/vault"
	pkgerrors "github.com/angelmondragon/payvault-backend/pkg/errors"
	"github.com/angelmondragon/payvault-backend/pkg/logger"
)

type chargeRequest struct {
	SavedCardID   string            `json:"saved_card_id" validate:"required,uuid"`
	AmountCents   int64             `json:"amount_cents" validate:"gt=0"`
	Currency      string            `json:"currency" validate:"required,currency"`
	Description   string            `json:"description" validate:"max=255"`
	Metadata      map[string]string `json:"metadata"`
	TransactionID string            `json:"transaction_id" validate:"max=128"`
}

// Charge runs an on-demand charge against a saved card.
func Charge(svc vault.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, err := validators.ParseUUIDParam(r, "customerID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		idemKey := strings.TrimSpace(r.Header.Get(middleware.IdempotencyKeyHeader))
		if idemKey == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
			return
		}
		var req chargeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cardID, err := uuid.Parse(req.SavedCardID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid saved_card_id"))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithCustomerID(ctx, customerID.String())
		}
		txn, err := svc.Charge(ctx, vault.ChargeInput{
			CustomerID:     customerID,
			SavedCardID:    cardID,
			AmountCents:    req.AmountCents,
			Currency:       req.Currency,
			Description:    validators.SanitizeString(req.Description, 255),
			Metadata:       req.Metadata,
			TransactionID:  strings.TrimSpace(req.TransactionID),
			IdempotencyKey: idemKey,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newTransactionResponse(txn))
	}
}
