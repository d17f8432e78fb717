package bidding

import (
	"context"
	"time"

	model "auction-house/internal/models"
	"auction-house/internal/repository"
	"auction-house/utils"
)

// Sweeper drives the time-based lifecycle: it opens SCHEDULED auctions at
// their start time and closes OPEN ones at their end time. Every transition
// goes through the same compare-and-swap as bids, so any number of sweepers
// may run against one store.
type Sweeper struct {
	repo     repository.AuctionDB
	service  *BiddingService
	interval time.Duration
}

// NewSweeper creates a sweeper that runs every interval.
func NewSweeper(repo repository.AuctionDB, service *BiddingService, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Second
	}
	return &Sweeper{repo: repo, service: service, interval: interval}
}

// Run sweeps until ctx is cancelled.
func (sw *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	utils.Info("auction sweeper started", map[string]any{"interval": sw.interval.String()})
	for {
		select {
		case <-ctx.Done():
			utils.Info("auction sweeper stopped", nil)
			return nil
		case <-ticker.C:
			sw.SweepOnce(ctx)
		}
	}
}

// SweepOnce applies every due transition and reports how many auctions it
// opened and closed. Failures are logged and left for the next pass.
func (sw *Sweeper) SweepOnce(ctx context.Context) (opened, closed int) {
	due, err := sw.repo.ListDueAuctions(ctx, sw.service.now())
	if err != nil {
		utils.Error("sweep: failed to list due auctions", map[string]any{"error": err.Error()})
		return 0, 0
	}

	for _, a := range due {
		if ctx.Err() != nil {
			return opened, closed
		}

		status := a.Status
		if status == model.StatusScheduled {
			ok, err := sw.service.OpenAuction(ctx, a.AuctionID)
			if err != nil {
				utils.Warn("sweep: failed to open auction", map[string]any{"auction_id": a.AuctionID, "error": err.Error()})
				continue
			}
			if ok {
				opened++
			}
			status = model.StatusOpen
		}

		if status == model.StatusOpen && !sw.service.now().Before(a.EndTime) {
			before, err := sw.repo.GetAuction(ctx, a.AuctionID)
			if err != nil {
				utils.Warn("sweep: failed to reload auction", map[string]any{"auction_id": a.AuctionID, "error": err.Error()})
				continue
			}
			if before.Status != model.StatusOpen {
				continue
			}
			if _, err := sw.service.CloseExpired(ctx, a.AuctionID); err != nil {
				utils.Warn("sweep: failed to close auction", map[string]any{"auction_id": a.AuctionID, "error": err.Error()})
				continue
			}
			closed++
		}
	}
	return opened, closed
}
