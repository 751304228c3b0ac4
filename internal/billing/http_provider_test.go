package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePixCharge(t *testing.T) {
	paymentID := uuid.New()
	expires := time.Now().Add(30 * time.Minute).UTC().Truncate(time.Second)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/pix_charges", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req pixChargeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, paymentID.String(), req.PaymentID)
		assert.Equal(t, int64(20000), req.AmountCents)
		assert.Equal(t, "Ana Lima", req.PayerName)
		assert.Equal(t, 30, req.ExpiryMinutes)

		json.NewEncoder(w).Encode(instrumentResponse{
			InstrumentRef: "pix-abc123",
			ExpiresAt:     expires,
		})
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "test-key", time.Second)
	inst, err := p.CreatePixCharge(context.Background(), paymentID, 20000, Payer{Name: "Ana Lima"}, 30)
	require.NoError(t, err)

	assert.Equal(t, "pix-abc123", inst.Ref)
	assert.True(t, inst.ExpiresAt.Equal(expires))
}

func TestCreateCardLink(t *testing.T) {
	expires := time.Now().Add(30 * time.Minute).UTC().Truncate(time.Second)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/card_links", r.URL.Path)
		json.NewEncoder(w).Encode(instrumentResponse{
			URL:       "https://pay.example/l/xyz",
			ExpiresAt: expires,
		})
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "test-key", time.Second)
	inst, err := p.CreateCardLink(context.Background(), uuid.New(), 35000, 30)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/l/xyz", inst.URL)
}

func TestProviderRejectsGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"amount too small"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "test-key", time.Second)
	_, err := p.CreatePixCharge(context.Background(), uuid.New(), 1, Payer{Name: "Ana"}, 30)
	require.ErrorIs(t, err, ErrProvider)
	assert.ErrorContains(t, err, "422")
}

func TestProviderRejectsMissingExpiry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"instrument_ref": "pix-abc"})
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "test-key", time.Second)
	_, err := p.CreatePixCharge(context.Background(), uuid.New(), 20000, Payer{Name: "Ana"}, 30)
	require.ErrorIs(t, err, ErrProvider)
	assert.ErrorContains(t, err, "expires_at")
}

func TestProviderRespectsContextCancel(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	p := NewHTTPProvider(srv.URL, "test-key", time.Second)
	_, err := p.CreateCardLink(ctx, uuid.New(), 20000, 30)
	assert.ErrorIs(t, err, ErrProvider)
}
