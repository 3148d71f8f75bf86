package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okoshkin/go_market/internal/domain"
)

func TestHTTPProvider_Authorize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/charges", r.URL.Path)

		var req AuthorizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 120.0, req.Amount)

		json.NewEncoder(w).Encode(Result{Status: domain.PaymentStatusAuthorized, ProviderRef: "ch_1"})
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, nil)
	res, err := p.Authorize(context.Background(), AuthorizeRequest{Amount: 120, Currency: "USD", Method: domain.PaymentMethodCard})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusAuthorized, res.Status)
	assert.Equal(t, "ch_1", res.ProviderRef)
}

func TestHTTPProvider_ErrorStatusSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, nil)
	_, err := p.Authorize(context.Background(), AuthorizeRequest{Amount: 10, Currency: "USD"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "402")
}

func TestHTTPProvider_TimeoutMapsToSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, &http.Client{Timeout: 20 * time.Millisecond})
	_, err := p.Authorize(context.Background(), AuthorizeRequest{Amount: 10, Currency: "USD"})
	require.ErrorIs(t, err, ErrProviderTimeout)
}

func TestHTTPProvider_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // every call now fails at the transport level

	p := NewHTTPProvider(srv.URL, nil)
	for i := 0; i < 5; i++ {
		_, err := p.Authorize(context.Background(), AuthorizeRequest{Amount: 10, Currency: "USD"})
		require.Error(t, err)
		require.NotErrorIs(t, err, gobreaker.ErrOpenState)
	}

	_, err := p.Authorize(context.Background(), AuthorizeRequest{Amount: 10, Currency: "USD"})
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestHTTPProvider_StatusRoundtrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/v1/charges/ch_9", r.URL.Path)
		json.NewEncoder(w).Encode(Result{Status: domain.PaymentStatusCaptured, ProviderRef: "ch_9"})
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, nil)
	res, err := p.Status(context.Background(), "ch_9")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCaptured, res.Status)
}
