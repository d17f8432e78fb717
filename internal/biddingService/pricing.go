package bidding

import (
	"math"
	"time"

	model "auction-house/internal/models"
)

// DutchPrice returns the live price of a descending auction at now. The price
// falls linearly from the starting price at StartTime to the floor price at
// EndTime and is rounded to cents.
func DutchPrice(a model.Auction, now time.Time) float64 {
	if !now.After(a.StartTime) {
		return a.StartingPrice
	}
	if !now.Before(a.EndTime) {
		return a.FloorPrice
	}

	span := a.EndTime.Sub(a.StartTime)
	elapsed := now.Sub(a.StartTime)
	price := a.StartingPrice - (a.StartingPrice-a.FloorPrice)*float64(elapsed)/float64(span)
	price = math.Round(price*100) / 100

	return math.Min(a.StartingPrice, math.Max(a.FloorPrice, price))
}

// sealedWinner picks the highest bid, earliest first on ties. bids must be in
// commit order.
func sealedWinner(bids []model.Bid) (model.Bid, bool) {
	var (
		best  model.Bid
		found bool
	)
	for _, b := range bids {
		if !found || b.Amount > best.Amount || (b.Amount == best.Amount && b.CreatedAt.Before(best.CreatedAt)) {
			best = b
			found = true
		}
	}
	return best, found
}
