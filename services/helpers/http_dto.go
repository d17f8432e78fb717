package helpers

import (
	"time"

	model "auction-house/internal/models"
)

// Session DTOs
type SignupRequest struct {
	Username        string `json:"username" binding:"required"`
	Email           string `json:"email" binding:"required,email"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
	FullName        string `json:"full_name"`
	Location        string `json:"location"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

type UserResponse struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	Location  string `json:"location"`
	CreatedAt string `json:"created_at"`
}

// NewUserResponse hides the password hash and formats timestamps.
func NewUserResponse(u model.User) UserResponse {
	return UserResponse{
		UserID:    u.UserID,
		Username:  u.Username,
		Email:     u.Email,
		FullName:  u.FullName,
		Location:  u.Location,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Auction DTOs
type CreateAuctionRequest struct {
	Title         string            `json:"title" binding:"required"`
	Description   string            `json:"description" binding:"required"`
	Category      string            `json:"category"`
	Kind          model.AuctionKind `json:"type" binding:"required,oneof=english dutch sealed"`
	StartingPrice float64           `json:"starting_price" binding:"required,gt=0"`
	FloorPrice    float64           `json:"floor_price" binding:"gte=0"`
	StartTime     time.Time         `json:"start_time" binding:"required"`
	EndTime       time.Time         `json:"end_time" binding:"required"`
}

type UpdateAuctionRequest struct {
	Title         *string            `json:"title"`
	Description   *string            `json:"description"`
	Category      *string            `json:"category"`
	Kind          *model.AuctionKind `json:"type"`
	StartingPrice *float64           `json:"starting_price"`
	FloorPrice    *float64           `json:"floor_price"`
	StartTime     *time.Time         `json:"start_time"`
	EndTime       *time.Time         `json:"end_time"`
}

type ListAuctionsQuery struct {
	Limit    int    `form:"limit"`
	Offset   int    `form:"offset"`
	Kind     string `form:"type"`
	Status   string `form:"status"`
	Category string `form:"category"`
}

// Bid DTOs
type PlaceBidRequest struct {
	BidAmount float64 `json:"bidAmount" binding:"required,gt=0"`
}

type BidResponse struct {
	BidID        string              `json:"bid_id"`
	AuctionID    string              `json:"auction_id"`
	BidderID     string              `json:"bidder_id"`
	Amount       float64             `json:"amount"`
	CurrentPrice float64             `json:"current_price"`
	Status       model.AuctionStatus `json:"status"`
	CreatedAt    string              `json:"created_at"`
}
