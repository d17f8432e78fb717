package payment

import (
	"context"
	"fmt"
	"math"

	"auction-house/internal/auctionerrors"
	model "auction-house/internal/models"
	"auction-house/utils"
)

// Auctions is the part of the bidding engine payment needs.
type Auctions interface {
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	MarkPaid(ctx context.Context, auctionID string) (model.Auction, error)
}

// Service lets the winner of a closed auction pay for it.
type Service struct {
	auctions Auctions
	provider Provider
}

// NewService creates a payment service.
func NewService(auctions Auctions, provider Provider) *Service {
	return &Service{auctions: auctions, provider: provider}
}

// CreateCheckout opens a checkout session for the winning amount. Only the
// winner of a closed, unpaid auction may pay.
func (s *Service) CreateCheckout(ctx context.Context, auctionID, buyerID string) (Checkout, error) {
	a, err := s.auctions.GetAuction(ctx, auctionID)
	if err != nil {
		return Checkout{}, fmt.Errorf("payment: %w", err)
	}
	switch {
	case a.Status != model.StatusClosed:
		return Checkout{}, fmt.Errorf("payment: auction %s: %w", auctionID, auctionerrors.ErrAuctionNotClosed)
	case a.WinnerID == "" || a.WinnerID != buyerID:
		return Checkout{}, fmt.Errorf("payment: auction %s: %w", auctionID, auctionerrors.ErrNotWinner)
	case a.IsPaid:
		return Checkout{}, fmt.Errorf("payment: auction %s: %w", auctionID, auctionerrors.ErrAlreadyPaid)
	}

	checkout, err := s.provider.CreateCheckoutSession(ctx, CheckoutRequest{
		AuctionID:   a.AuctionID,
		BuyerID:     buyerID,
		Title:       a.Title,
		AmountCents: int64(math.Round(a.WinningAmount * 100)),
	})
	if err != nil {
		return Checkout{}, fmt.Errorf("payment: %w: %v", auctionerrors.ErrPaymentProvider, err)
	}

	utils.Info("payment: checkout session created", map[string]any{"auction_id": auctionID, "buyer_id": buyerID, "session_id": checkout.SessionID})
	return checkout, nil
}

// SessionStatus reads a checkout session and, once it is paid, settles the
// auction. Settling twice is harmless.
func (s *Service) SessionStatus(ctx context.Context, sessionID, userID string) (SessionState, error) {
	st, err := s.provider.SessionStatus(ctx, sessionID)
	if err != nil {
		return SessionState{}, fmt.Errorf("payment: %w: %v", auctionerrors.ErrPaymentProvider, err)
	}
	if st.BuyerID != userID {
		return SessionState{}, fmt.Errorf("payment: session %s: %w", sessionID, auctionerrors.ErrPermissionDenied)
	}
	if !st.Paid {
		return st, nil
	}

	if _, err := s.auctions.MarkPaid(ctx, st.AuctionID); err != nil {
		return SessionState{}, fmt.Errorf("payment: settle auction %s: %w", st.AuctionID, err)
	}
	utils.Info("payment: auction settled", map[string]any{"auction_id": st.AuctionID, "session_id": sessionID})
	return st, nil
}
