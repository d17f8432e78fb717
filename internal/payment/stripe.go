package payment

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
)

// StripeConfig holds the Stripe account and redirect URLs.
type StripeConfig struct {
	SecretKey  string
	SuccessURL string
	CancelURL  string
	Currency   string
}

// StripeProvider creates Stripe Checkout sessions.
type StripeProvider struct {
	client   session.Client
	success  string
	cancel   string
	currency string
}

var _ Provider = (*StripeProvider)(nil)

// NewStripeProvider creates a provider talking to the Stripe API.
func NewStripeProvider(cfg StripeConfig) *StripeProvider {
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	})
	return NewStripeProviderWithBackend(cfg, backend)
}

// NewStripeProviderWithBackend creates a provider on a custom backend, such as
// one pointed at a stub server.
func NewStripeProviderWithBackend(cfg StripeConfig, backend stripe.Backend) *StripeProvider {
	currency := cfg.Currency
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	return &StripeProvider{
		client:   session.Client{B: backend, Key: cfg.SecretKey},
		success:  cfg.SuccessURL,
		cancel:   cfg.CancelURL,
		currency: currency,
	}
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (Checkout, error) {
	params := &stripe.CheckoutSessionParams{
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(p.currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Title),
				},
				UnitAmount: stripe.Int64(req.AmountCents),
			},
			Quantity: stripe.Int64(1),
		}},
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(p.success + "?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(p.cancel),
		PaymentMethodTypes: stripe.StringSlice([]string{
			string(stripe.PaymentMethodTypeCard),
		}),
	}
	params.Context = ctx
	params.AddMetadata("auction_id", req.AuctionID)
	params.AddMetadata("buyer_id", req.BuyerID)

	s, err := p.client.New(params)
	if err != nil {
		return Checkout{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return Checkout{SessionID: s.ID, URL: s.URL}, nil
}

func (p *StripeProvider) SessionStatus(ctx context.Context, sessionID string) (SessionState, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := p.client.Get(sessionID, params)
	if err != nil {
		return SessionState{}, fmt.Errorf("stripe: get checkout session %s: %w", sessionID, err)
	}
	return SessionState{
		SessionID:   s.ID,
		AuctionID:   s.Metadata["auction_id"],
		BuyerID:     s.Metadata["buyer_id"],
		AmountCents: s.AmountTotal,
		Status:      string(s.Status),
		Paid:        s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
	}, nil
}
