package bidding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"auction-house/internal/auctionerrors"
	model "auction-house/internal/models"
	"auction-house/utils"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	minStartPrice   = 1
)

// AuctionInput carries the seller-supplied fields of a new auction.
type AuctionInput struct {
	Title         string
	Description   string
	Category      string
	Kind          model.AuctionKind
	StartingPrice float64
	FloorPrice    float64
	StartTime     time.Time
	EndTime       time.Time
}

// AuctionUpdate carries a partial update; nil fields are left unchanged.
type AuctionUpdate struct {
	Title         *string
	Description   *string
	Category      *string
	Kind          *model.AuctionKind
	StartingPrice *float64
	FloorPrice    *float64
	StartTime     *time.Time
	EndTime       *time.Time
}

// onlyDescriptive reports whether u touches nothing but title, description
// and category.
func (u AuctionUpdate) onlyDescriptive() bool {
	return u.Kind == nil && u.StartingPrice == nil && u.FloorPrice == nil && u.StartTime == nil && u.EndTime == nil
}

func validateAuction(a model.Auction) error {
	switch {
	case strings.TrimSpace(a.Title) == "":
		return fmt.Errorf("service: %w - title is required", auctionerrors.ErrInvalidAuction)
	case strings.TrimSpace(a.Description) == "":
		return fmt.Errorf("service: %w - description is required", auctionerrors.ErrInvalidAuction)
	case !a.Kind.Valid():
		return fmt.Errorf("service: %w - type must be english, dutch or sealed", auctionerrors.ErrInvalidAuction)
	case a.StartingPrice < minStartPrice:
		return fmt.Errorf("service: %w - starting price must be at least %d", auctionerrors.ErrInvalidAuction, minStartPrice)
	case a.StartTime.IsZero() || a.EndTime.IsZero() || !a.EndTime.After(a.StartTime):
		return fmt.Errorf("service: %w - end time must be after start time", auctionerrors.ErrInvalidAuction)
	}
	if a.Kind == model.KindDutch && (a.FloorPrice < 0 || a.FloorPrice >= a.StartingPrice) {
		return fmt.Errorf("service: %w - floor price must be below the starting price", auctionerrors.ErrInvalidAuction)
	}
	return nil
}

// CreateAuction validates in and stores a new SCHEDULED auction owned by
// sellerID. The sweep opens it at its start time.
func (s *BiddingService) CreateAuction(ctx context.Context, sellerID string, in AuctionInput) (model.Auction, error) {
	if sellerID == "" {
		return model.Auction{}, fmt.Errorf("service: %w - missing sellerID", auctionerrors.ErrInvalidAuction)
	}

	now := s.now()
	a := model.Auction{
		AuctionID:     utils.GenerateID(),
		SellerID:      sellerID,
		Title:         strings.TrimSpace(in.Title),
		Description:   strings.TrimSpace(in.Description),
		Category:      strings.TrimSpace(in.Category),
		Kind:          in.Kind,
		StartingPrice: in.StartingPrice,
		CurrentPrice:  in.StartingPrice,
		StartTime:     in.StartTime.UTC(),
		EndTime:       in.EndTime.UTC(),
		Status:        model.StatusScheduled,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if a.Kind == model.KindDutch {
		a.FloorPrice = in.FloorPrice
	}
	if err := validateAuction(a); err != nil {
		return model.Auction{}, err
	}

	if err := s.repo.CreateAuction(ctx, a); err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to create auction: %w", err)
	}
	a.Version = 1
	return a, nil
}

// UpdateAuction applies u on behalf of the seller. Every field may change
// while the auction is SCHEDULED; once OPEN only title, description and
// category may.
func (s *BiddingService) UpdateAuction(ctx context.Context, auctionID, sellerID string, u AuctionUpdate) (model.Auction, error) {
	for attempt := 1; attempt <= maxCloseAttempts; attempt++ {
		current, err := s.repo.GetAuction(ctx, auctionID)
		if err != nil {
			return model.Auction{}, fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
		}
		if current.SellerID != sellerID {
			return model.Auction{}, fmt.Errorf("service: only the seller can update auction %s: %w", auctionID, auctionerrors.ErrPermissionDenied)
		}
		switch current.Status {
		case model.StatusClosed:
			return model.Auction{}, fmt.Errorf("service: auction %s: %w", auctionID, auctionerrors.ErrAuctionClosed)
		case model.StatusOpen:
			if !u.onlyDescriptive() {
				return model.Auction{}, fmt.Errorf("service: %w - only title, description and category can change while open", auctionerrors.ErrInvalidAuction)
			}
		}

		next := current
		if u.Title != nil {
			next.Title = strings.TrimSpace(*u.Title)
		}
		if u.Description != nil {
			next.Description = strings.TrimSpace(*u.Description)
		}
		if u.Category != nil {
			next.Category = strings.TrimSpace(*u.Category)
		}
		if u.Kind != nil {
			next.Kind = *u.Kind
		}
		if u.StartingPrice != nil {
			next.StartingPrice = *u.StartingPrice
			next.CurrentPrice = *u.StartingPrice
		}
		if u.FloorPrice != nil {
			next.FloorPrice = *u.FloorPrice
		}
		if u.StartTime != nil {
			next.StartTime = u.StartTime.UTC()
		}
		if u.EndTime != nil {
			next.EndTime = u.EndTime.UTC()
		}
		if next.Kind != model.KindDutch {
			next.FloorPrice = 0
		}
		if err := validateAuction(next); err != nil {
			return model.Auction{}, err
		}
		next.UpdatedAt = s.now()

		stored, err := s.repo.UpdateAuction(ctx, next, current.Version)
		if errors.Is(err, auctionerrors.ErrStaleState) {
			continue
		}
		if err != nil {
			return model.Auction{}, fmt.Errorf("service: failed to update auction %s: %w", auctionID, err)
		}
		return stored, nil
	}
	return model.Auction{}, fmt.Errorf("service: update of auction %s kept losing concurrent updates: %w", auctionID, auctionerrors.ErrStaleState)
}

// DeleteAuction removes an auction on behalf of its seller as long as no bid
// has been recorded. A bid racing the delete bumps the version and wins.
func (s *BiddingService) DeleteAuction(ctx context.Context, auctionID, sellerID string) error {
	current, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
	}
	if current.SellerID != sellerID {
		return fmt.Errorf("service: only the seller can delete auction %s: %w", auctionID, auctionerrors.ErrPermissionDenied)
	}

	bids, err := s.repo.GetBidsByAuction(ctx, auctionID)
	if err != nil {
		return fmt.Errorf("service: failed to load bids for auction %s: %w", auctionID, err)
	}
	if len(bids) > 0 {
		return fmt.Errorf("service: auction %s: %w", auctionID, auctionerrors.ErrAuctionHasBids)
	}

	if err := s.repo.DeleteAuction(ctx, auctionID, current.Version); err != nil {
		if errors.Is(err, auctionerrors.ErrStaleState) {
			return fmt.Errorf("service: auction %s: %w", auctionID, auctionerrors.ErrAuctionHasBids)
		}
		return fmt.Errorf("service: failed to delete auction %s: %w", auctionID, err)
	}
	return nil
}

// GetAuction returns an auction as viewers see it: an OPEN dutch auction
// reports its live decayed price.
func (s *BiddingService) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	if auctionID == "" {
		return model.Auction{}, fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrInvalidAuction)
	}
	a, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	return s.present(a), nil
}

// ListAuctions returns a filtered page of auctions. A zero limit means the
// default page size.
func (s *BiddingService) ListAuctions(ctx context.Context, filter model.AuctionFilter) ([]model.Auction, error) {
	if filter.Limit == 0 {
		filter.Limit = defaultPageSize
	}
	if filter.Limit < 0 || filter.Limit > maxPageSize || filter.Offset < 0 {
		return nil, fmt.Errorf("service: %w - limit must be 1..%d and offset non-negative", auctionerrors.ErrInvalidPagination, maxPageSize)
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, fmt.Errorf("service: %w - unknown type %q", auctionerrors.ErrInvalidPagination, filter.Kind)
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("service: %w - unknown status %q", auctionerrors.ErrInvalidPagination, filter.Status)
	}

	auctions, err := s.repo.ListAuctions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list auctions: %w", err)
	}
	return s.presentAll(auctions), nil
}

// ListCreatedBy returns the auctions a seller created.
func (s *BiddingService) ListCreatedBy(ctx context.Context, sellerID string) ([]model.Auction, error) {
	auctions, err := s.repo.ListAuctionsBySeller(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list auctions of seller %s: %w", sellerID, err)
	}
	return s.presentAll(auctions), nil
}

// ListWonBy returns the closed auctions a user won.
func (s *BiddingService) ListWonBy(ctx context.Context, userID string) ([]model.Auction, error) {
	auctions, err := s.repo.ListAuctionsByWinner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list auctions won by %s: %w", userID, err)
	}
	return auctions, nil
}

// ListBiddedBy returns the auctions a user has placed bids on.
func (s *BiddingService) ListBiddedBy(ctx context.Context, userID string) ([]model.Auction, error) {
	auctions, err := s.repo.ListAuctionsByBidder(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list auctions bidded by %s: %w", userID, err)
	}
	return s.presentAll(auctions), nil
}

// GetBidsForAuction returns an auction's bids as viewerID may see them.
// Until a sealed auction closes, viewers only see their own bids.
func (s *BiddingService) GetBidsForAuction(ctx context.Context, auctionID, viewerID string) ([]model.Bid, error) {
	if auctionID == "" {
		return nil, fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrInvalidBid)
	}
	a, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	bids, err := s.repo.GetBidsByAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}

	if a.Kind != model.KindSealed || a.Status == model.StatusClosed {
		return bids, nil
	}
	own := make([]model.Bid, 0)
	for _, b := range bids {
		if b.BidderID == viewerID {
			own = append(own, b)
		}
	}
	return own, nil
}

func (s *BiddingService) present(a model.Auction) model.Auction {
	if a.Kind == model.KindDutch && a.Status == model.StatusOpen {
		a.CurrentPrice = DutchPrice(a, s.now())
	}
	return a
}

func (s *BiddingService) presentAll(auctions []model.Auction) []model.Auction {
	for i := range auctions {
		auctions[i] = s.present(auctions[i])
	}
	return auctions
}
