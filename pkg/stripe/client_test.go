package stripe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/payvault-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/payvault-backend/pkg/errors"
	"github.com/angelmondragon/payvault-backend/pkg/metrics"
)

func TestNewClientValidatesKeyAgainstEnv(t *testing.T) {
	cases := []struct {
		name    string
		cfg     config.StripeConfig
		wantErr bool
	}{
		{name: "missing key", cfg: config.StripeConfig{Env: "test"}, wantErr: true},
		{name: "test key in test", cfg: config.StripeConfig{Env: "test", APIKey: "sk_test_123"}},
		{name: "restricted test key", cfg: config.StripeConfig{APIKey: "rk_test_123"}},
		{name: "live key in test", cfg: config.StripeConfig{Env: "test", APIKey: "sk_live_123"}, wantErr: true},
		{name: "live key in live", cfg: config.StripeConfig{Env: "LIVE", APIKey: "sk_live_123"}},
		{name: "publishable key", cfg: config.StripeConfig{Env: "live", APIKey: "pk_live_123"}, wantErr: true},
		{name: "unknown env", cfg: config.StripeConfig{Env: "staging", APIKey: "sk_test_123"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(context.Background(), tc.cfg, Options{}, nil)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.cfg.Environment(), client.Environment())
		})
	}
}

type recordedCall struct {
	path           string
	form           url.Values
	account        string
	idempotencyKey string
}

func fakeStripe(t *testing.T, status int, body string) (*httptest.Server, *[]recordedCall) {
	t.Helper()
	calls := &[]recordedCall{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(raw))
		*calls = append(*calls, recordedCall{
			path:           r.URL.Path,
			form:           form,
			account:        r.Header.Get("Stripe-Account"),
			idempotencyKey: r.Header.Get("Idempotency-Key"),
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

func testClient(t *testing.T, baseURL string, m *metrics.GatewayMetrics) *Client {
	t.Helper()
	client, err := NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_123"}, Options{
		Timeout:     5 * time.Second,
		MaxAttempts: 1,
		BaseURL:     baseURL,
		Metrics:     m,
	}, nil)
	require.NoError(t, err)
	return client
}

func TestCreatePaymentIntentSendsConnectedAccountAndIdempotencyKey(t *testing.T) {
	srv, calls := fakeStripe(t, http.StatusOK, `{"id":"pi_123","object":"payment_intent","status":"succeeded","amount":15000,"currency":"brl"}`)
	reg := prometheus.NewRegistry()
	client := testClient(t, srv.URL, metrics.NewGatewayMetrics(reg))

	intent, err := client.CreatePaymentIntent(context.Background(), PaymentIntentCreateParams{
		AmountCents:     15000,
		Currency:        "BRL",
		CustomerID:      "cus_1",
		PaymentMethodID: "pm_1",
		AccountID:       "acct_9",
		IdempotencyKey:  "charge-abc",
		Metadata:        map[string]string{"transaction_id": "tx-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", intent.ID)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, "/v1/payment_intents", call.path)
	assert.Equal(t, "acct_9", call.account)
	assert.Equal(t, "charge-abc", call.idempotencyKey)
	assert.Equal(t, "brl", call.form.Get("currency"))
	assert.Equal(t, "true", call.form.Get("off_session"))
	assert.Equal(t, "true", call.form.Get("confirm"))
	assert.Equal(t, "tx-1", call.form.Get("metadata[transaction_id]"))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestCreatePaymentIntentReturnsDeclinedIntent(t *testing.T) {
	srv, _ := fakeStripe(t, http.StatusPaymentRequired, `{"error":{
		"type":"card_error","code":"card_declined","decline_code":"insufficient_funds",
		"message":"Your card has insufficient funds.",
		"payment_intent":{"id":"pi_declined","object":"payment_intent","status":"requires_payment_method"}}}`)
	client := testClient(t, srv.URL, nil)

	intent, err := client.CreatePaymentIntent(context.Background(), PaymentIntentCreateParams{
		AmountCents: 100, Currency: "usd", CustomerID: "cus_1", PaymentMethodID: "pm_1",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGatewayRejected))
	require.NotNil(t, intent)
	assert.Equal(t, "pi_declined", intent.ID)
}

func TestAttachPaymentMethodToleratesAlreadyAttached(t *testing.T) {
	srv, calls := fakeStripe(t, http.StatusBadRequest, `{"error":{"type":"invalid_request_error",
		"message":"The payment method you provided has already been attached to a customer."}}`)
	client := testClient(t, srv.URL, nil)

	require.NoError(t, client.AttachPaymentMethod(context.Background(), "pm_1", "cus_1", ""))
	require.Len(t, *calls, 1)
	assert.Equal(t, "/v1/payment_methods/pm_1/attach", (*calls)[0].path)
	assert.Empty(t, (*calls)[0].account)
}
