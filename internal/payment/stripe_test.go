package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
)

func newStubStripe(t *testing.T, handler http.HandlerFunc) *StripeProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	return NewStripeProviderWithBackend(StripeConfig{
		SecretKey:  "sk_test_123",
		SuccessURL: "https://shop.example/success",
		CancelURL:  "https://shop.example/cancel",
	}, backend)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestStripeProvider_CreateCheckoutSession(t *testing.T) {
	t.Parallel()

	p := newStubStripe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "a1", r.PostForm.Get("metadata[auction_id]"))
		assert.Equal(t, "u1", r.PostForm.Get("metadata[buyer_id]"))
		assert.Equal(t, "8050", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
		assert.Equal(t, "payment", r.PostForm.Get("mode"))

		writeJSON(w, map[string]any{
			"id":     "cs_test_1",
			"object": "checkout.session",
			"url":    "https://checkout.stripe.com/c/pay/cs_test_1",
		})
	})

	checkout, err := p.CreateCheckoutSession(context.Background(), CheckoutRequest{
		AuctionID: "a1", BuyerID: "u1", Title: "Lamp", AmountCents: 8050,
	})
	require.NoError(t, err)
	require.Equal(t, "cs_test_1", checkout.SessionID)
	require.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", checkout.URL)
}

func TestStripeProvider_SessionStatus(t *testing.T) {
	t.Parallel()

	p := newStubStripe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		if r.URL.Path != "/v1/checkout/sessions/cs_test_1" {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]any{"error": map[string]any{"type": "invalid_request_error", "message": "No such checkout.session"}})
			return
		}
		writeJSON(w, map[string]any{
			"id":             "cs_test_1",
			"object":         "checkout.session",
			"status":         "complete",
			"payment_status": "paid",
			"amount_total":   8050,
			"metadata":       map[string]string{"auction_id": "a1", "buyer_id": "u1"},
		})
	})

	st, err := p.SessionStatus(context.Background(), "cs_test_1")
	require.NoError(t, err)
	require.Equal(t, SessionState{
		SessionID: "cs_test_1", AuctionID: "a1", BuyerID: "u1",
		AmountCents: 8050, Status: "complete", Paid: true,
	}, st)

	_, err = p.SessionStatus(context.Background(), "cs_missing")
	require.Error(t, err)
}
