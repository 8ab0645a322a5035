package gatewayhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/payvault-backend/pkg/errors"
)

func newTestClient(t *testing.T, srv *httptest.Server, timeout time.Duration) *Client {
	t.Helper()
	client, err := New(Options{
		Provider:    "TESTPAY",
		BaseURL:     srv.URL,
		Timeout:     timeout,
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
		Authorize: func(r *http.Request) {
			r.Header.Set("access-token", "secret-token")
		},
	})
	require.NoError(t, err)
	return client
}

func TestDoRetriesIdempotentOperationOn5xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "secret-token", r.Header.Get("access-token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 42}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv, time.Second)
	var out struct {
		ID int `json:"id"`
	}
	resp, err := client.DoJSON(context.Background(), Operation{Name: "create_order", Idempotent: true}, Request{Method: http.MethodPost, Path: "/order", Body: map[string]any{"total": 150}}, &out)
	require.NoError(t, err)
	assert.Equal(t, 42, out.ID)
	assert.Equal(t, 3, resp.Attempts)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestDoNeverRetriesNonIdempotentOperation(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(t, srv, time.Second)
	_, err := client.Do(context.Background(), Operation{Name: "pay", Idempotent: false}, Request{Method: http.MethodPost, Path: "payment"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGatewayTransient))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestDoNeverRetries4xxAndRedactsDetails(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"card 4111111111111111 declined","card":{"number":"4111111111111111","cvv":"123"},"document_number":"12345678909"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv, time.Second)
	_, err := client.Do(context.Background(), Operation{Name: "create_order", Idempotent: true}, Request{Method: http.MethodPost, Path: "/order"})
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeGatewayRejected, typed.Code())

	encoded, marshalErr := json.Marshal(typed.Details())
	require.NoError(t, marshalErr)
	assert.NotContains(t, string(encoded), "4111111111111111")
	assert.NotContains(t, string(encoded), "12345678909")
	assert.Contains(t, string(encoded), "[REDACTED]")

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusUnprocessableEntity, perr.StatusCode)
	assert.NotContains(t, perr.Message, "4111111111111111")
}

func TestDoPerAttemptTimeout(t *testing.T) {
	cases := []struct {
		name       string
		idempotent bool
		wantCalls  int32
	}{
		{name: "idempotent retried to ceiling", idempotent: true, wantCalls: 3},
		{name: "non idempotent single attempt", idempotent: false, wantCalls: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				select {
				case <-r.Context().Done():
				case <-time.After(500 * time.Millisecond):
				}
			}))
			defer srv.Close()

			client := newTestClient(t, srv, 20*time.Millisecond)
			_, err := client.Do(context.Background(), Operation{Name: "op", Idempotent: tc.idempotent}, Request{Method: http.MethodPost, Path: "/x"})
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGatewayTransient))

			var perr *ProviderError
			require.ErrorAs(t, err, &perr)
			assert.True(t, perr.Timeout)
			assert.Equal(t, int(tc.wantCalls), perr.Attempts)
			assert.Equal(t, tc.wantCalls, atomic.LoadInt32(&calls))
		})
	}
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{BaseURL: "http://x"})
	require.Error(t, err)
	_, err = New(Options{Provider: "X"})
	require.Error(t, err)

	client, err := New(Options{Provider: "X", BaseURL: "http://x/"})
	require.NoError(t, err)
	assert.Equal(t, defaultTimeout, client.timeout)
	assert.Equal(t, defaultMaxAttempts, client.maxAttempts)
	assert.True(t, strings.HasSuffix(client.baseURL, "x"))
}
