package handler

import (
	"context"
	"net/http"
	"time"

	bidding "auction-house/internal/biddingService"
	model "auction-house/internal/models"
	"auction-house/services/helpers"
	"auction-house/utils"

	"github.com/gin-gonic/gin"
)

type BiddingServiceInterface interface {
	PlaceBid(ctx context.Context, auctionID, bidderID string, amount float64) (bidding.BidResult, error)
	CloseAuction(ctx context.Context, auctionID, requesterID string) (model.CloseResult, error)
	CreateAuction(ctx context.Context, sellerID string, in bidding.AuctionInput) (model.Auction, error)
	UpdateAuction(ctx context.Context, auctionID, sellerID string, u bidding.AuctionUpdate) (model.Auction, error)
	DeleteAuction(ctx context.Context, auctionID, sellerID string) error
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	ListAuctions(ctx context.Context, filter model.AuctionFilter) ([]model.Auction, error)
	ListCreatedBy(ctx context.Context, sellerID string) ([]model.Auction, error)
	ListWonBy(ctx context.Context, userID string) ([]model.Auction, error)
	ListBiddedBy(ctx context.Context, userID string) ([]model.Auction, error)
	GetBidsForAuction(ctx context.Context, auctionID, viewerID string) ([]model.Bid, error)
}

type BiddingHandler struct {
	service BiddingServiceInterface
}

func NewBiddingHandler(service BiddingServiceInterface) *BiddingHandler {
	return &BiddingHandler{service: service}
}

// PlaceBidHandler handles POST /auctions/:id/bids
func (h *BiddingHandler) PlaceBidHandler(c *gin.Context) {
	auctionID := c.Param("id")
	userID, _ := utils.UserID(c)

	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	res, err := h.service.PlaceBid(c.Request.Context(), auctionID, userID, req.BidAmount)
	if err != nil {
		helpers.RespondError(c, "PlaceBidHandler", err, map[string]any{
			"auction_id": auctionID,
			"user_id":    userID,
			"amount":     req.BidAmount,
		})
		return
	}

	resp := helpers.BidResponse{
		BidID:        res.Bid.BidID,
		AuctionID:    res.Bid.AuctionID,
		BidderID:     res.Bid.BidderID,
		Amount:       res.Bid.Amount,
		CurrentPrice: res.CurrentPrice,
		Status:       res.Status,
		CreatedAt:    res.Bid.CreatedAt.UTC().Format(time.RFC3339),
	}

	utils.JSONResponse(c, http.StatusCreated, resp, "bid placed successfully")
	helpers.LogSuccess("PlaceBidHandler", "bid placed successfully", map[string]any{
		"bid_id":     res.Bid.BidID,
		"auction_id": auctionID,
		"user_id":    userID,
		"amount":     res.Bid.Amount,
	})
}

// CloseAuctionHandler handles POST /auctions/:id/close
func (h *BiddingHandler) CloseAuctionHandler(c *gin.Context) {
	auctionID := c.Param("id")
	userID, _ := utils.UserID(c)

	res, err := h.service.CloseAuction(c.Request.Context(), auctionID, userID)
	if err != nil {
		helpers.RespondError(c, "CloseAuctionHandler", err, map[string]any{"auction_id": auctionID, "user_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, res, "auction closed")
	helpers.LogSuccess("CloseAuctionHandler", "auction closed", map[string]any{
		"auction_id": auctionID,
		"winner_id":  res.WinnerID,
		"amount":     res.WinningAmount,
	})
}

// CreateAuctionHandler handles POST /auctions
func (h *BiddingHandler) CreateAuctionHandler(c *gin.Context) {
	userID, _ := utils.UserID(c)

	var req helpers.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	a, err := h.service.CreateAuction(c.Request.Context(), userID, bidding.AuctionInput{
		Title:         req.Title,
		Description:   req.Description,
		Category:      req.Category,
		Kind:          req.Kind,
		StartingPrice: req.StartingPrice,
		FloorPrice:    req.FloorPrice,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
	})
	if err != nil {
		helpers.RespondError(c, "CreateAuctionHandler", err, map[string]any{"user_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, a, "auction created successfully")
	helpers.LogSuccess("CreateAuctionHandler", "auction created", map[string]any{"auction_id": a.AuctionID, "seller_id": userID})
}

// UpdateAuctionHandler handles PUT /auctions/:id
func (h *BiddingHandler) UpdateAuctionHandler(c *gin.Context) {
	auctionID := c.Param("id")
	userID, _ := utils.UserID(c)

	var req helpers.UpdateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "UpdateAuctionHandler", err)
		return
	}

	a, err := h.service.UpdateAuction(c.Request.Context(), auctionID, userID, bidding.AuctionUpdate{
		Title:         req.Title,
		Description:   req.Description,
		Category:      req.Category,
		Kind:          req.Kind,
		StartingPrice: req.StartingPrice,
		FloorPrice:    req.FloorPrice,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
	})
	if err != nil {
		helpers.RespondError(c, "UpdateAuctionHandler", err, map[string]any{"auction_id": auctionID, "user_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, a, "auction updated successfully")
	helpers.LogSuccess("UpdateAuctionHandler", "auction updated", map[string]any{"auction_id": auctionID})
}

// DeleteAuctionHandler handles DELETE /auctions/:id
func (h *BiddingHandler) DeleteAuctionHandler(c *gin.Context) {
	auctionID := c.Param("id")
	userID, _ := utils.UserID(c)

	if err := h.service.DeleteAuction(c.Request.Context(), auctionID, userID); err != nil {
		helpers.RespondError(c, "DeleteAuctionHandler", err, map[string]any{"auction_id": auctionID, "user_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, nil, "auction deleted successfully")
	helpers.LogSuccess("DeleteAuctionHandler", "auction deleted", map[string]any{"auction_id": auctionID})
}

// GetAuctionHandler handles GET /auctions/:id
func (h *BiddingHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("id")

	a, err := h.service.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, "GetAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, a, "auction retrieved successfully")
}

// ListAuctionsHandler handles GET /auctions
func (h *BiddingHandler) ListAuctionsHandler(c *gin.Context) {
	var q helpers.ListAuctionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		helpers.HandleBindError(c, "ListAuctionsHandler", err)
		return
	}

	auctions, err := h.service.ListAuctions(c.Request.Context(), model.AuctionFilter{
		Kind:     model.AuctionKind(q.Kind),
		Status:   model.AuctionStatus(q.Status),
		Category: q.Category,
		Limit:    q.Limit,
		Offset:   q.Offset,
	})
	if err != nil {
		helpers.RespondError(c, "ListAuctionsHandler", err, map[string]any{"query": c.Request.URL.RawQuery})
		return
	}

	h.respondList(c, "ListAuctionsHandler", auctions)
}

// ListCreatedHandler handles GET /auctions/created-auctions
func (h *BiddingHandler) ListCreatedHandler(c *gin.Context) {
	h.listForUser(c, "ListCreatedHandler", h.service.ListCreatedBy)
}

// ListWonHandler handles GET /auctions/won
func (h *BiddingHandler) ListWonHandler(c *gin.Context) {
	h.listForUser(c, "ListWonHandler", h.service.ListWonBy)
}

// ListBiddedHandler handles GET /auctions/bidded
func (h *BiddingHandler) ListBiddedHandler(c *gin.Context) {
	h.listForUser(c, "ListBiddedHandler", h.service.ListBiddedBy)
}

func (h *BiddingHandler) listForUser(c *gin.Context, name string, list func(context.Context, string) ([]model.Auction, error)) {
	userID, _ := utils.UserID(c)
	auctions, err := list(c.Request.Context(), userID)
	if err != nil {
		helpers.RespondError(c, name, err, map[string]any{"user_id": userID})
		return
	}
	h.respondList(c, name, auctions)
}

func (h *BiddingHandler) respondList(c *gin.Context, name string, auctions []model.Auction) {
	if auctions == nil {
		auctions = []model.Auction{}
	}
	utils.JSONResponse(c, http.StatusOK, auctions, "auctions retrieved successfully")
	helpers.LogSuccess(name, "auctions retrieved successfully", map[string]any{"count": len(auctions)})
}

// GetBidsHandler handles GET /auctions/:id/bids
func (h *BiddingHandler) GetBidsHandler(c *gin.Context) {
	auctionID := c.Param("id")
	userID, _ := utils.UserID(c)

	bids, err := h.service.GetBidsForAuction(c.Request.Context(), auctionID, userID)
	if err != nil {
		helpers.RespondError(c, "GetBidsHandler", err, map[string]any{"auction_id": auctionID})
		return
	}
	if bids == nil {
		bids = []model.Bid{}
	}

	utils.JSONResponse(c, http.StatusOK, bids, "bids retrieved successfully")
	helpers.LogSuccess("GetBidsHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"count":      len(bids),
	})
}
