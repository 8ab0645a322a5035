package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/payvault-backend/api/responses"
	"github.com/angelmondragon/payvault-backend/api/validators"
	"github.com/angelmondragon/payvault-backend/internal/renewals"
	pkgerrors "github.com/angelmondragon/payvault-backend/pkg/errors"
	"github.com/angelmondragon/payvault-backend/pkg/logger"
)

type renewalRequest struct {
	SubscriptionID string `json:"subscription_id" validate:"required,uuid"`
}

// TriggerRenewal renews one subscription immediately. Skips are reported in
// the body with a 200 status.
func TriggerRenewal(renewer renewals.Renewer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if renewer == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "renewal job unavailable"))
			return
		}
		var req renewalRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := uuid.Parse(req.SubscriptionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid subscription_id"))
			return
		}

		result, err := renewer.Renew(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newRenewalResponse(result))
	}
}
