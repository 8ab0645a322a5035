package pagarme

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/payvault-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/payvault-backend/pkg/errors"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	client, err := NewClient(
		config.PagarmeConfig{SecretKey: "sk_test_abc", BaseURL: url},
		config.GatewayHTTPConfig{Timeout: time.Second, MaxAttempts: 3, Backoff: time.Millisecond},
		nil, nil,
	)
	require.NoError(t, err)
	return client
}

func TestCreateOrderSendsSavedCardPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/core/v5/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "sk_test_abc", user)
		assert.Empty(t, pass)
		assert.Equal(t, "tx_pagarme_1", r.Header.Get("Idempotency-Key"))

		var body OrderRequest
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			assert.Equal(t, "cus_123", body.CustomerID)
			if assert.Len(t, body.Items, 1) {
				assert.EqualValues(t, 15000, body.Items[0].Amount)
			}
			if assert.Len(t, body.Payments, 1) {
				assert.Equal(t, "card_abc", body.Payments[0].CreditCard.CardID)
				assert.Equal(t, OperationAuthAndCapture, body.Payments[0].CreditCard.OperationType)
			}
		}

		_, _ = w.Write([]byte(`{"id":"or_1","status":"paid","charges":[{"id":"ch_1","status":"paid","paid_at":"2026-10-01T10:00:00Z"}]}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	req := NewSavedCardOrder("cus_123", "card_abc", 15000, "Plano mensal", "tx_pagarme_1", nil)
	order, raw, err := client.CreateOrder(context.Background(), req, "tx_pagarme_1")
	require.NoError(t, err)
	assert.Equal(t, "or_1", order.ID)
	require.NotNil(t, order.PrimaryCharge())
	assert.Equal(t, "ch_1", order.PrimaryCharge().ID)
	assert.Contains(t, string(raw), "\"or_1\"")
}

func TestCreateOrderIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, _, err := client.CreateOrder(context.Background(), NewSavedCardOrder("cus", "card", 100, "", "", nil), "")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGatewayTransient))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestNewClientRequiresSecret(t *testing.T) {
	_, err := NewClient(config.PagarmeConfig{BaseURL: "https://api.pagar.me"}, config.GatewayHTTPConfig{}, nil, nil)
	require.Error(t, err)
}
