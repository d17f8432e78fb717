package models

import "time"

// AuctionKind selects the acceptance rule applied to bids.
type AuctionKind string

const (
	KindEnglish AuctionKind = "english"
	KindDutch   AuctionKind = "dutch"
	KindSealed  AuctionKind = "sealed"
)

// Valid reports whether k is one of the supported auction kinds.
func (k AuctionKind) Valid() bool {
	switch k {
	case KindEnglish, KindDutch, KindSealed:
		return true
	}
	return false
}

// AuctionStatus is the lifecycle state of an auction. Transitions only go
// SCHEDULED -> OPEN -> CLOSED.
type AuctionStatus string

const (
	StatusScheduled AuctionStatus = "SCHEDULED"
	StatusOpen      AuctionStatus = "OPEN"
	StatusClosed    AuctionStatus = "CLOSED"
)

// Valid reports whether s is a known status.
func (s AuctionStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusOpen, StatusClosed:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a forward step.
func (s AuctionStatus) CanTransitionTo(next AuctionStatus) bool {
	switch s {
	case StatusScheduled:
		return next == StatusOpen
	case StatusOpen:
		return next == StatusClosed
	}
	return false
}

var statusOrder = []AuctionStatus{StatusScheduled, StatusOpen, StatusClosed}

// ReachableFrom lists the stored statuses an update to s may replace: s
// itself or its direct predecessor.
func (s AuctionStatus) ReachableFrom() []AuctionStatus {
	from := make([]AuctionStatus, 0, 2)
	for _, st := range statusOrder {
		if st == s || st.CanTransitionTo(s) {
			from = append(from, st)
		}
	}
	return from
}

// User represents a participant in the auction
type User struct {
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	Location     string    `json:"location"`
	CreatedAt    time.Time `json:"created_at"`
}

// Auction represents an auction listing. Version is the compare-and-swap
// token: every committed change to status, price or bidder bumps it.
type Auction struct {
	AuctionID       string        `json:"auction_id"`
	SellerID        string        `json:"seller_id"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Category        string        `json:"category"`
	Kind            AuctionKind   `json:"type"`
	StartingPrice   float64       `json:"starting_price"`
	CurrentPrice    float64       `json:"current_price"`
	FloorPrice      float64       `json:"floor_price,omitempty"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         time.Time     `json:"end_time"`
	Status          AuctionStatus `json:"status"`
	HighestBidderID string        `json:"-"`
	WinnerID        string        `json:"winner_id,omitempty"`
	WinningAmount   float64       `json:"winning_amount,omitempty"`
	IsPaid          bool          `json:"is_paid"`
	Version         int64         `json:"version"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Bid represents a user's bid on an auction. Bids are immutable once recorded.
type Bid struct {
	BidID     string    `json:"bid_id"`
	AuctionID string    `json:"auction_id"`
	BidderID  string    `json:"bidder_id"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// CloseResult is the outcome of closing an auction. Closing an already closed
// auction returns the result computed the first time.
type CloseResult struct {
	AuctionID     string        `json:"auction_id"`
	WinnerID      string        `json:"winner_id"`
	WinningAmount float64       `json:"winning_bid"`
	Status        AuctionStatus `json:"status"`
}

// Notification is a personal message for one user. Delivered is false until a
// live connection of the recipient has received it.
type Notification struct {
	NotificationID string    `json:"id"`
	UserID         string    `json:"user_id"`
	AuctionID      string    `json:"auction_id,omitempty"`
	Message        string    `json:"message"`
	Delivered      bool      `json:"delivered"`
	CreatedAt      time.Time `json:"created_at"`
}

// AuctionFilter narrows auction listings.
type AuctionFilter struct {
	Kind     AuctionKind
	Status   AuctionStatus
	Category string
	Limit    int
	Offset   int
}
