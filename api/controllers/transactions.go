package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/payvault-backend/api/responses"
	"github.com/angelmondragon/payvault-backend/api/validators"
	"github.com/angelmondragon/payvault-backend/internal/vault"
	pkgerrors "github.com/angelmondragon/payvault-backend/pkg/errors"
	"github.com/angelmondragon/payvault-backend/pkg/logger"
)

func GetTransaction(svc vault.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		txn, err := svc.GetTransaction(r.Context(), strings.TrimSpace(chi.URLParam(r, "id")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTransactionResponse(txn))
	}
}

// FindTransaction looks a transaction up by the gateway's order or charge id.
func FindTransaction(svc vault.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider, err := validators.ParseProviderQuery(r, "provider")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if provider == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "provider is required").WithDetails(map[string]any{"field": "provider"}))
			return
		}
		query := r.URL.Query()
		orderID := strings.TrimSpace(query.Get("order_id"))
		chargeID := strings.TrimSpace(query.Get("charge_id"))
		if orderID == "" && chargeID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order_id or charge_id is required"))
			return
		}

		txn, err := svc.FindTransaction(r.Context(), *provider, orderID, chargeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTransactionResponse(txn))
	}
}
