package bidding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"auction-house/internal/auctionerrors"
	"auction-house/internal/metrics"
	model "auction-house/internal/models"
	"auction-house/internal/repository"
	"auction-house/utils"
)

const (
	// maxSealedAttempts bounds internal retries of a sealed bid that lost its
	// version race. Sealed acceptance does not depend on the price.
	maxSealedAttempts = 5
	// maxCloseAttempts bounds the re-read loop of close, open and update.
	maxCloseAttempts = 8

	notifyTimeout = 10 * time.Second
)

// Notifier receives committed auction events. Calls are made after the
// change is stored and never affect its outcome.
type Notifier interface {
	PublishPrice(ctx context.Context, auctionID string, price float64)
	PublishStatus(ctx context.Context, auctionID string, status model.AuctionStatus)
	NotifyUser(ctx context.Context, userID, auctionID, message string) error
}

type noopNotifier struct{}

func (noopNotifier) PublishPrice(context.Context, string, float64) {}
func (noopNotifier) PublishStatus(context.Context, string, model.AuctionStatus) {}
func (noopNotifier) NotifyUser(context.Context, string, string, string) error { return nil }

// BidResult is the committed outcome of an accepted bid.
type BidResult struct {
	Bid          model.Bid           `json:"bid"`
	CurrentPrice float64             `json:"current_price"`
	Status       model.AuctionStatus `json:"status"`
}

// Option configures a BiddingService.
type Option func(*BiddingService)

// WithNotifier sets the receiver of price and personal notifications.
func WithNotifier(n Notifier) Option {
	return func(s *BiddingService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *BiddingService) {
		if now != nil {
			s.now = now
		}
	}
}

// BiddingService validates and applies bids and lifecycle transitions on top
// of the compare-and-swap writes of repository.AuctionDB. It holds no lock of
// its own, so auctions never contend with each other.
type BiddingService struct {
	repo     repository.AuctionDB
	notifier Notifier
	now      func() time.Time

	pending sync.WaitGroup
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.AuctionDB, opts ...Option) *BiddingService {
	s := &BiddingService{
		repo:     repo,
		notifier: noopNotifier{},
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Drain blocks until every in-flight notification has been handed off.
func (s *BiddingService) Drain() {
	s.pending.Wait()
}

// PlaceBid validates a bid against the auction's acceptance rule and commits
// it with the auction's version as the expected state. Losing the version race
// on an english or dutch auction yields ErrStalePrice; the caller re-reads and
// resubmits.
func (s *BiddingService) PlaceBid(ctx context.Context, auctionID, bidderID string, amount float64) (BidResult, error) {
	if auctionID == "" || bidderID == "" {
		return BidResult{}, fmt.Errorf("service: %w - missing auctionID or bidderID", auctionerrors.ErrInvalidBid)
	}
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return BidResult{}, fmt.Errorf("service: %w - bid amount must be a positive number", auctionerrors.ErrInvalidBid)
	}

	for attempt := 1; ; attempt++ {
		current, err := s.repo.GetAuction(ctx, auctionID)
		if err != nil {
			return BidResult{}, fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
		}

		now := s.now()
		bid, next, err := s.applyBid(current, bidderID, amount, now)
		if err != nil {
			metrics.BidsTotal.WithLabelValues(string(current.Kind), metrics.OutcomeRejected).Inc()
			return BidResult{}, err
		}

		stored, err := s.repo.CommitBid(ctx, bid, next, current.Version)
		if errors.Is(err, auctionerrors.ErrStaleState) {
			if current.Kind == model.KindSealed && attempt < maxSealedAttempts {
				continue
			}
			metrics.BidsTotal.WithLabelValues(string(current.Kind), metrics.OutcomeStale).Inc()
			return BidResult{}, fmt.Errorf("service: bid on auction %s lost a concurrent update: %w", auctionID, auctionerrors.ErrStalePrice)
		}
		if err != nil {
			return BidResult{}, fmt.Errorf("service: failed to record bid for auction %s by user %s: %w", auctionID, bidderID, err)
		}

		metrics.BidsTotal.WithLabelValues(string(current.Kind), metrics.OutcomeAccepted).Inc()
		s.afterBid(ctx, current, stored)

		return BidResult{Bid: bid, CurrentPrice: stored.CurrentPrice, Status: stored.Status}, nil
	}
}

// applyBid checks the acceptance rule for current and returns the bid to
// record and the auction state to store with it.
func (s *BiddingService) applyBid(current model.Auction, bidderID string, amount float64, now time.Time) (model.Bid, model.Auction, error) {
	if current.SellerID == bidderID {
		return model.Bid{}, model.Auction{}, fmt.Errorf("service: %w", auctionerrors.ErrSellerCannotBid)
	}
	switch {
	case current.Status == model.StatusClosed:
		return model.Bid{}, model.Auction{}, fmt.Errorf("service: auction %s: %w", current.AuctionID, auctionerrors.ErrAuctionClosed)
	case current.Status != model.StatusOpen, now.Before(current.StartTime), !now.Before(current.EndTime):
		return model.Bid{}, model.Auction{}, fmt.Errorf("service: auction %s: %w", current.AuctionID, auctionerrors.ErrAuctionNotOpen)
	}

	next := current
	next.UpdatedAt = now

	switch current.Kind {
	case model.KindEnglish:
		if amount <= current.CurrentPrice {
			return model.Bid{}, model.Auction{}, fmt.Errorf("service: %w - current price is %.2f", auctionerrors.ErrBidTooLow, current.CurrentPrice)
		}
		next.CurrentPrice = amount
		next.HighestBidderID = bidderID

	case model.KindDutch:
		live := DutchPrice(current, now)
		if amount < live {
			return model.Bid{}, model.Auction{}, fmt.Errorf("service: %w - live price is %.2f", auctionerrors.ErrBidTooLow, live)
		}
		next.CurrentPrice = amount
		next.HighestBidderID = bidderID
		next.Status = model.StatusClosed
		next.WinnerID = bidderID
		next.WinningAmount = amount

	case model.KindSealed:
		// recorded only; the version bump is what makes a racing close re-read

	default:
		return model.Bid{}, model.Auction{}, fmt.Errorf("service: %w - unknown auction type %q", auctionerrors.ErrInvalidAuction, current.Kind)
	}

	bid := model.Bid{
		BidID:     utils.GenerateID(),
		AuctionID: current.AuctionID,
		BidderID:  bidderID,
		Amount:    amount,
		CreatedAt: now,
	}
	return bid, next, nil
}

func (s *BiddingService) afterBid(ctx context.Context, before, stored model.Auction) {
	switch stored.Kind {
	case model.KindEnglish:
		s.async(ctx, func(ctx context.Context) {
			s.notifier.PublishPrice(ctx, stored.AuctionID, stored.CurrentPrice)
			previous := before.HighestBidderID
			if previous != "" && previous != stored.HighestBidderID {
				s.notifyUser(ctx, previous, stored.AuctionID,
					fmt.Sprintf("You have been outbid on auction: %s. Current price: %.2f", stored.Title, stored.CurrentPrice))
			}
		})
	case model.KindDutch:
		metrics.AuctionsClosedTotal.WithLabelValues(metrics.TriggerDutch).Inc()
		s.async(ctx, func(ctx context.Context) {
			s.notifier.PublishPrice(ctx, stored.AuctionID, stored.CurrentPrice)
			s.announceClose(ctx, stored)
		})
	}
}

// CloseAuction closes an OPEN auction on behalf of its seller. Closing an
// already CLOSED auction returns the stored result.
func (s *BiddingService) CloseAuction(ctx context.Context, auctionID, requesterID string) (model.CloseResult, error) {
	if auctionID == "" || requesterID == "" {
		return model.CloseResult{}, fmt.Errorf("service: %w - missing auctionID or requesterID", auctionerrors.ErrInvalidAuction)
	}
	return s.close(ctx, auctionID, requesterID)
}

// CloseExpired closes an OPEN auction whose end time has passed. It is the
// system-triggered counterpart of CloseAuction used by the sweep.
func (s *BiddingService) CloseExpired(ctx context.Context, auctionID string) (model.CloseResult, error) {
	return s.close(ctx, auctionID, "")
}

// close runs the read, compute, compare-and-swap loop. An empty requesterID
// marks a system-triggered close.
func (s *BiddingService) close(ctx context.Context, auctionID, requesterID string) (model.CloseResult, error) {
	for attempt := 1; attempt <= maxCloseAttempts; attempt++ {
		current, err := s.repo.GetAuction(ctx, auctionID)
		if err != nil {
			return model.CloseResult{}, fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
		}
		if requesterID != "" && current.SellerID != requesterID {
			return model.CloseResult{}, fmt.Errorf("service: only the seller can close auction %s: %w", auctionID, auctionerrors.ErrPermissionDenied)
		}
		if current.Status == model.StatusClosed {
			return closeResult(current), nil
		}
		if current.Status != model.StatusOpen {
			return model.CloseResult{}, fmt.Errorf("service: auction %s: %w", auctionID, auctionerrors.ErrAuctionNotOpen)
		}

		now := s.now()
		if requesterID == "" && now.Before(current.EndTime) {
			return model.CloseResult{}, fmt.Errorf("service: auction %s has not reached its end time: %w", auctionID, auctionerrors.ErrAuctionNotOpen)
		}

		next := current
		next.Status = model.StatusClosed
		next.UpdatedAt = now

		switch current.Kind {
		case model.KindSealed:
			bids, err := s.repo.GetBidsByAuction(ctx, auctionID)
			if err != nil {
				return model.CloseResult{}, fmt.Errorf("service: failed to load bids for auction %s: %w", auctionID, err)
			}
			if best, ok := sealedWinner(bids); ok {
				next.WinnerID = best.BidderID
				next.WinningAmount = best.Amount
				next.HighestBidderID = best.BidderID
			}
		default:
			if current.HighestBidderID != "" {
				next.WinnerID = current.HighestBidderID
				next.WinningAmount = current.CurrentPrice
			}
		}

		stored, err := s.repo.UpdateAuction(ctx, next, current.Version)
		if errors.Is(err, auctionerrors.ErrStaleState) {
			continue
		}
		if err != nil {
			return model.CloseResult{}, fmt.Errorf("service: failed to close auction %s: %w", auctionID, err)
		}

		trigger := metrics.TriggerSeller
		if requesterID == "" {
			trigger = metrics.TriggerSystem
		}
		metrics.AuctionsClosedTotal.WithLabelValues(trigger).Inc()
		utils.Info("auction closed", map[string]any{
			"auction_id": auctionID,
			"winner_id":  stored.WinnerID,
			"amount":     stored.WinningAmount,
			"trigger":    trigger,
		})

		s.async(ctx, func(ctx context.Context) { s.announceClose(ctx, stored) })
		return closeResult(stored), nil
	}

	return model.CloseResult{}, fmt.Errorf("service: close of auction %s kept losing concurrent updates: %w", auctionID, auctionerrors.ErrStaleState)
}

func closeResult(a model.Auction) model.CloseResult {
	return model.CloseResult{
		AuctionID:     a.AuctionID,
		WinnerID:      a.WinnerID,
		WinningAmount: a.WinningAmount,
		Status:        a.Status,
	}
}

// announceClose tells viewers the auction ended and sends personal
// notifications to the winner, the seller and every other bidder.
func (s *BiddingService) announceClose(ctx context.Context, closed model.Auction) {
	s.notifier.PublishStatus(ctx, closed.AuctionID, closed.Status)

	if closed.WinnerID != "" {
		s.notifyUser(ctx, closed.WinnerID, closed.AuctionID,
			fmt.Sprintf("Congratulations! You won the auction: %s with a bid of %.2f", closed.Title, closed.WinningAmount))
		s.notifyUser(ctx, closed.SellerID, closed.AuctionID,
			fmt.Sprintf("Your auction %s has closed. Winning bid: %.2f", closed.Title, closed.WinningAmount))
	} else {
		s.notifyUser(ctx, closed.SellerID, closed.AuctionID,
			fmt.Sprintf("Your auction %s has closed without a winning bid", closed.Title))
	}

	bids, err := s.repo.GetBidsByAuction(ctx, closed.AuctionID)
	if err != nil {
		utils.Warn("failed to load bidders for close notifications", map[string]any{
			"auction_id": closed.AuctionID,
			"error":      err.Error(),
		})
		return
	}
	seen := map[string]struct{}{closed.WinnerID: {}, closed.SellerID: {}}
	for _, b := range bids {
		if _, ok := seen[b.BidderID]; ok {
			continue
		}
		seen[b.BidderID] = struct{}{}
		s.notifyUser(ctx, b.BidderID, closed.AuctionID, fmt.Sprintf("Auction %s has ended. You did not win.", closed.Title))
	}
}

func (s *BiddingService) notifyUser(ctx context.Context, userID, auctionID, message string) {
	if err := s.notifier.NotifyUser(ctx, userID, auctionID, message); err != nil {
		utils.Warn("failed to deliver notification", map[string]any{
			"user_id":    userID,
			"auction_id": auctionID,
			"error":      err.Error(),
		})
	}
}

// async runs fn detached from the request so a slow or failing fanout never
// holds up or undoes a committed change.
func (s *BiddingService) async(ctx context.Context, fn func(ctx context.Context)) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// OpenAuction moves a SCHEDULED auction whose start time has passed to OPEN.
// It reports whether this call made the transition.
func (s *BiddingService) OpenAuction(ctx context.Context, auctionID string) (bool, error) {
	for attempt := 1; attempt <= maxCloseAttempts; attempt++ {
		current, err := s.repo.GetAuction(ctx, auctionID)
		if err != nil {
			return false, fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
		}
		now := s.now()
		if current.Status != model.StatusScheduled || now.Before(current.StartTime) {
			return false, nil
		}

		next := current
		next.Status = model.StatusOpen
		next.UpdatedAt = now

		stored, err := s.repo.UpdateAuction(ctx, next, current.Version)
		if errors.Is(err, auctionerrors.ErrStaleState) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("service: failed to open auction %s: %w", auctionID, err)
		}

		metrics.AuctionsOpenedTotal.Inc()
		s.async(ctx, func(ctx context.Context) {
			s.notifier.PublishStatus(ctx, stored.AuctionID, stored.Status)
		})
		return true, nil
	}
	return false, fmt.Errorf("service: open of auction %s kept losing concurrent updates: %w", auctionID, auctionerrors.ErrStaleState)
}

// MarkPaid flags a CLOSED auction as payment-settled. Marking an already paid
// auction is a no-op.
func (s *BiddingService) MarkPaid(ctx context.Context, auctionID string) (model.Auction, error) {
	for attempt := 1; attempt <= maxCloseAttempts; attempt++ {
		current, err := s.repo.GetAuction(ctx, auctionID)
		if err != nil {
			return model.Auction{}, fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
		}
		if current.IsPaid {
			return current, nil
		}
		if current.Status != model.StatusClosed {
			return model.Auction{}, fmt.Errorf("service: auction %s: %w", auctionID, auctionerrors.ErrAuctionNotClosed)
		}

		next := current
		next.IsPaid = true
		next.UpdatedAt = s.now()

		stored, err := s.repo.UpdateAuction(ctx, next, current.Version)
		if errors.Is(err, auctionerrors.ErrStaleState) {
			continue
		}
		if err != nil {
			return model.Auction{}, fmt.Errorf("service: failed to mark auction %s paid: %w", auctionID, err)
		}
		return stored, nil
	}
	return model.Auction{}, fmt.Errorf("service: payment of auction %s kept losing concurrent updates: %w", auctionID, auctionerrors.ErrStaleState)
}
