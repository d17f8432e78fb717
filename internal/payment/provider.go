// Package payment collects the winning amount of a closed auction through an
// external checkout provider.
package payment

import (
	"context"
	"fmt"
	"sync"

	"auction-house/utils"
)

// CheckoutRequest describes what the buyer pays for.
type CheckoutRequest struct {
	AuctionID   string
	BuyerID     string
	Title       string
	AmountCents int64
}

// Checkout is a created checkout session the buyer is redirected to.
type Checkout struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// SessionState is the provider's view of a checkout session.
type SessionState struct {
	SessionID   string `json:"session_id"`
	AuctionID   string `json:"auction_id"`
	BuyerID     string `json:"buyer_id"`
	AmountCents int64  `json:"amount_cents"`
	Status      string `json:"status"`
	Paid        bool   `json:"paid"`
}

// Provider is the external payment collaborator.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (Checkout, error)
	SessionStatus(ctx context.Context, sessionID string) (SessionState, error)
}

// SandboxProvider is an in-memory Provider for development and tests. With
// autoSettle every session reads as paid; otherwise Settle marks it paid.
type SandboxProvider struct {
	mu         sync.Mutex
	sessions   map[string]SessionState
	successURL string
	autoSettle bool
}

var _ Provider = (*SandboxProvider)(nil)

// NewSandboxProvider creates a sandbox provider.
func NewSandboxProvider(successURL string, autoSettle bool) *SandboxProvider {
	return &SandboxProvider{
		sessions:   make(map[string]SessionState),
		successURL: successURL,
		autoSettle: autoSettle,
	}
}

func (p *SandboxProvider) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (Checkout, error) {
	id := "cs_sandbox_" + utils.GenerateID()

	p.mu.Lock()
	p.sessions[id] = SessionState{
		SessionID:   id,
		AuctionID:   req.AuctionID,
		BuyerID:     req.BuyerID,
		AmountCents: req.AmountCents,
		Status:      "open",
	}
	p.mu.Unlock()

	return Checkout{SessionID: id, URL: p.successURL + "?session_id=" + id}, nil
}

func (p *SandboxProvider) SessionStatus(_ context.Context, sessionID string) (SessionState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.sessions[sessionID]
	if !ok {
		return SessionState{}, fmt.Errorf("sandbox: no such session %q", sessionID)
	}
	if p.autoSettle && !st.Paid {
		st.Paid, st.Status = true, "complete"
		p.sessions[sessionID] = st
	}
	return st, nil
}

// Settle marks a session paid.
func (p *SandboxProvider) Settle(sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.sessions[sessionID]
	if !ok {
		return false
	}
	st.Paid, st.Status = true, "complete"
	p.sessions[sessionID] = st
	return true
}
