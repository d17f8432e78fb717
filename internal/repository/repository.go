package repository

//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"auction-house/internal/auctionerrors"
	model "auction-house/internal/models"
)

// AuctionDB defines the auction and bid storage interface.
//
// UpdateAuction, CommitBid and DeleteAuction are compare-and-swap writes: they
// only apply when the stored version equals expectedVersion, and otherwise
// return auctionerrors.ErrStaleState without changing anything. Successful
// writes store the auction with Version = expectedVersion+1 and return it.
type AuctionDB interface {
	CreateAuction(ctx context.Context, auction model.Auction) error
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	ListAuctions(ctx context.Context, filter model.AuctionFilter) ([]model.Auction, error)
	ListAuctionsBySeller(ctx context.Context, sellerID string) ([]model.Auction, error)
	ListAuctionsByWinner(ctx context.Context, winnerID string) ([]model.Auction, error)
	ListAuctionsByBidder(ctx context.Context, bidderID string) ([]model.Auction, error)
	// ListDueAuctions returns SCHEDULED auctions whose start time has passed
	// and OPEN auctions whose end time has passed.
	ListDueAuctions(ctx context.Context, now time.Time) ([]model.Auction, error)
	UpdateAuction(ctx context.Context, next model.Auction, expectedVersion int64) (model.Auction, error)
	// CommitBid records bid and stores next in one atomic step.
	CommitBid(ctx context.Context, bid model.Bid, next model.Auction, expectedVersion int64) (model.Auction, error)
	DeleteAuction(ctx context.Context, auctionID string, expectedVersion int64) error
	GetBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error)
}

// auctionSlot holds one auction's state behind its own lock so that writes to
// different auctions never contend.
type auctionSlot struct {
	mu      sync.Mutex
	auction model.Auction
	bids    []model.Bid
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB
type MemoryRepo struct {
	mu       sync.RWMutex            // guards the auctions map, not the slots
	auctions map[string]*auctionSlot // key: auctionID -> slot

	biddersMu sync.Mutex
	bidders   map[string]map[string]struct{} // key: bidderID -> set of auctionIDs
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions: make(map[string]*auctionSlot),
		bidders:  make(map[string]map[string]struct{}),
	}
}

// CreateAuction stores a new auction with version 1.
func (r *MemoryRepo) CreateAuction(_ context.Context, auction model.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[auction.AuctionID]; ok {
		return fmt.Errorf("create auction %s: %w", auction.AuctionID, auctionerrors.ErrInvalidAuction)
	}
	auction.Version = 1
	r.auctions[auction.AuctionID] = &auctionSlot{auction: auction}
	return nil
}

func (r *MemoryRepo) slot(auctionID string) (*auctionSlot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.auctions[auctionID]
	if !ok {
		return nil, fmt.Errorf("auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	return s, nil
}

// GetAuction returns a copy of the stored auction.
func (r *MemoryRepo) GetAuction(_ context.Context, auctionID string) (model.Auction, error) {
	s, err := r.slot(auctionID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("get %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auction, nil
}

// snapshot copies every auction matching keep, newest first.
func (r *MemoryRepo) snapshot(keep func(model.Auction) bool) []model.Auction {
	r.mu.RLock()
	slots := make([]*auctionSlot, 0, len(r.auctions))
	for _, s := range r.auctions {
		slots = append(slots, s)
	}
	r.mu.RUnlock()

	out := make([]model.Auction, 0, len(slots))
	for _, s := range slots {
		s.mu.Lock()
		a := s.auction
		s.mu.Unlock()
		if keep(a) {
			out = append(out, a)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].AuctionID < out[j].AuctionID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// ListAuctions returns a filtered, paginated listing.
func (r *MemoryRepo) ListAuctions(_ context.Context, filter model.AuctionFilter) ([]model.Auction, error) {
	all := r.snapshot(func(a model.Auction) bool {
		if filter.Kind != "" && a.Kind != filter.Kind {
			return false
		}
		if filter.Status != "" && a.Status != filter.Status {
			return false
		}
		if filter.Category != "" && a.Category != filter.Category {
			return false
		}
		return true
	})

	if filter.Offset >= len(all) {
		return []model.Auction{}, nil
	}
	end := len(all)
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return all[filter.Offset:end], nil
}

// ListAuctionsBySeller returns every auction created by sellerID.
func (r *MemoryRepo) ListAuctionsBySeller(_ context.Context, sellerID string) ([]model.Auction, error) {
	return r.snapshot(func(a model.Auction) bool { return a.SellerID == sellerID }), nil
}

// ListAuctionsByWinner returns every closed auction won by winnerID.
func (r *MemoryRepo) ListAuctionsByWinner(_ context.Context, winnerID string) ([]model.Auction, error) {
	return r.snapshot(func(a model.Auction) bool {
		return a.Status == model.StatusClosed && a.WinnerID == winnerID
	}), nil
}

// ListAuctionsByBidder returns every auction bidderID has bid on.
func (r *MemoryRepo) ListAuctionsByBidder(_ context.Context, bidderID string) ([]model.Auction, error) {
	r.biddersMu.Lock()
	ids := make(map[string]struct{}, len(r.bidders[bidderID]))
	for id := range r.bidders[bidderID] {
		ids[id] = struct{}{}
	}
	r.biddersMu.Unlock()

	return r.snapshot(func(a model.Auction) bool {
		_, ok := ids[a.AuctionID]
		return ok
	}), nil
}

// ListDueAuctions returns auctions whose next lifecycle transition is due.
func (r *MemoryRepo) ListDueAuctions(_ context.Context, now time.Time) ([]model.Auction, error) {
	return r.snapshot(func(a model.Auction) bool {
		switch a.Status {
		case model.StatusScheduled:
			return !a.StartTime.After(now)
		case model.StatusOpen:
			return !a.EndTime.After(now)
		}
		return false
	}), nil
}

// UpdateAuction stores next if the stored version still equals expectedVersion.
func (r *MemoryRepo) UpdateAuction(_ context.Context, next model.Auction, expectedVersion int64) (model.Auction, error) {
	s, err := r.slot(next.AuctionID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("update %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.auction.Version != expectedVersion {
		return model.Auction{}, fmt.Errorf("update auction %s at version %d: %w", next.AuctionID, expectedVersion, auctionerrors.ErrStaleState)
	}
	if err := checkTransition(s.auction, next); err != nil {
		return model.Auction{}, err
	}
	next.Version = expectedVersion + 1
	s.auction = next
	return next, nil
}

func checkTransition(stored, next model.Auction) error {
	if stored.Status == next.Status || stored.Status.CanTransitionTo(next.Status) {
		return nil
	}
	return fmt.Errorf("auction %s from %s to %s: %w", next.AuctionID, stored.Status, next.Status, auctionerrors.ErrInvalidTransition)
}

// CommitBid appends bid and stores next under the auction's lock.
func (r *MemoryRepo) CommitBid(_ context.Context, bid model.Bid, next model.Auction, expectedVersion int64) (model.Auction, error) {
	s, err := r.slot(bid.AuctionID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("commit bid for %w", err)
	}

	s.mu.Lock()
	if s.auction.Version != expectedVersion {
		s.mu.Unlock()
		return model.Auction{}, fmt.Errorf("commit bid for auction %s at version %d: %w", bid.AuctionID, expectedVersion, auctionerrors.ErrStaleState)
	}
	if err := checkTransition(s.auction, next); err != nil {
		s.mu.Unlock()
		return model.Auction{}, err
	}
	next.Version = expectedVersion + 1
	s.auction = next
	s.bids = append(s.bids, bid)
	s.mu.Unlock()

	r.biddersMu.Lock()
	if r.bidders[bid.BidderID] == nil {
		r.bidders[bid.BidderID] = make(map[string]struct{})
	}
	r.bidders[bid.BidderID][bid.AuctionID] = struct{}{}
	r.biddersMu.Unlock()

	return next, nil
}

// DeleteAuction removes an auction if the stored version equals expectedVersion.
func (r *MemoryRepo) DeleteAuction(_ context.Context, auctionID string, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.auctions[auctionID]
	if !ok {
		return fmt.Errorf("delete auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auction.Version != expectedVersion {
		return fmt.Errorf("delete auction %s at version %d: %w", auctionID, expectedVersion, auctionerrors.ErrStaleState)
	}
	delete(r.auctions, auctionID)
	return nil
}

// GetBidsByAuction returns all bids for an auction in commit order.
func (r *MemoryRepo) GetBidsByAuction(_ context.Context, auctionID string) ([]model.Bid, error) {
	s, err := r.slot(auctionID)
	if err != nil {
		return nil, fmt.Errorf("get bids for %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Bid{}, s.bids...), nil
}
