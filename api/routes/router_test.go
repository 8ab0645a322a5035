package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/payvault-backend/internal/renewals"
	"github.com/angelmondragon/payvault-backend/internal/vault"
	"github.com/angelmondragon/payvault-backend/pkg/config"
	"github.com/angelmondragon/payvault-backend/pkg/db/models"
	"github.com/angelmondragon/payvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payvault-backend/pkg/errors"
	"github.com/angelmondragon/payvault-backend/pkg/metrics"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubVault struct{}

func (stubVault) SaveCard(context.Context, vault.SaveCardInput) (*models.CustomerPaymentMethod, error) {
	return &models.CustomerPaymentMethod{ID: uuid.New(), Provider: enums.PaymentProviderStripe}, nil
}

func (stubVault) ListCards(context.Context, uuid.UUID, *enums.PaymentProvider) ([]models.CustomerPaymentMethod, error) {
	return nil, nil
}

func (stubVault) Charge(context.Context, vault.ChargeInput) (*models.PaymentTransaction, error) {
	return &models.PaymentTransaction{ID: "tx_1", StatusV2: enums.PaymentStatusProcessing}, nil
}

func (stubVault) GetTransaction(_ context.Context, id string) (*models.PaymentTransaction, error) {
	if id != "tx_1" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	return &models.PaymentTransaction{ID: id}, nil
}

func (stubVault) FindTransaction(context.Context, enums.PaymentProvider, string, string) (*models.PaymentTransaction, error) {
	return &models.PaymentTransaction{ID: "tx_1"}, nil
}

type stubRenewer struct{}

func (stubRenewer) Renew(context.Context, uuid.UUID) (renewals.Result, error) {
	return renewals.Result{Skipped: true, Reason: renewals.SkipNotDue}, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics.NewGatewayMetrics(reg).IncCharge("STRIPE", "SUCCEEDED")
	cfg := &config.Config{
		App: config.AppConfig{Env: "dev"},
		HTTP: config.HTTPConfig{
			CORSAllowedOrigins: []string{"https://app.example.com"},
		},
	}
	return NewRouter(RouterParams{
		Config:   cfg,
		DB:       stubPinger{},
		Vault:    stubVault{},
		Renewer:  stubRenewer{},
		Gatherer: reg,
	})
}

func TestRouterServesRoutes(t *testing.T) {
	router := newTestRouter(t)
	customer := uuid.NewString()

	cases := []struct {
		name   string
		method string
		target string
		body   string
		header map[string]string
		want   int
	}{
		{"live", http.MethodGet, "/health/live", "", nil, http.StatusOK},
		{"ready", http.MethodGet, "/health/ready", "", nil, http.StatusOK},
		{"save card", http.MethodPost, "/api/v1/customers/" + customer + "/cards", `{"provider":"STRIPE","token":"pm_1"}`, nil, http.StatusCreated},
		{"list cards", http.MethodGet, "/api/v1/customers/" + customer + "/cards", "", nil, http.StatusOK},
		{"charge", http.MethodPost, "/api/v1/customers/" + customer + "/charges",
			`{"saved_card_id":"` + uuid.NewString() + `","amount_cents":100,"currency":"USD"}`,
			map[string]string{"Idempotency-Key": "k-1"}, http.StatusCreated},
		{"get transaction", http.MethodGet, "/api/v1/transactions/tx_1", "", nil, http.StatusOK},
		{"missing transaction", http.MethodGet, "/api/v1/transactions/tx_2", "", nil, http.StatusNotFound},
		{"find transaction", http.MethodGet, "/api/v1/transactions?provider=STRIPE&charge_id=pi_1", "", nil, http.StatusOK},
		{"renewal", http.MethodPost, "/api/v1/renewals", `{"subscription_id":"` + uuid.NewString() + `"}`, nil, http.StatusOK},
		{"unknown", http.MethodGet, "/api/v1/unknown", "", nil, http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var req *http.Request
			if tc.body != "" {
				req = httptest.NewRequest(tc.method, tc.target, strings.NewReader(tc.body))
				req.Header.Set("Content-Type", "application/json")
			} else {
				req = httptest.NewRequest(tc.method, tc.target, nil)
			}
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d (%s)", tc.want, rec.Code, rec.Body.String())
			}
			if rec.Header().Get("X-Request-Id") == "" {
				t.Fatalf("expected request id header")
			}
		})
	}
}

func TestRouterExposesMetrics(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "vault_charges_total") {
		t.Fatalf("expected charge counter in exposition, got %s", rec.Body.String())
	}
}

func TestRouterCORSPreflight(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/renewals", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("expected allowed origin echoed, got %q", got)
	}
}
