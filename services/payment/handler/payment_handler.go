package handler

import (
	"context"
	"net/http"

	"auction-house/internal/payment"
	"auction-house/services/helpers"
	"auction-house/utils"

	"github.com/gin-gonic/gin"
)

type PaymentServiceInterface interface {
	CreateCheckout(ctx context.Context, auctionID, buyerID string) (payment.Checkout, error)
	SessionStatus(ctx context.Context, sessionID, userID string) (payment.SessionState, error)
}

type PaymentHandler struct {
	service PaymentServiceInterface
}

func NewPaymentHandler(service PaymentServiceInterface) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// CreateCheckoutHandler handles POST /auctions/:id/stripe/create-checkout-session
func (h *PaymentHandler) CreateCheckoutHandler(c *gin.Context) {
	auctionID := c.Param("id")
	userID, _ := utils.UserID(c)

	checkout, err := h.service.CreateCheckout(c.Request.Context(), auctionID, userID)
	if err != nil {
		helpers.RespondError(c, "CreateCheckoutHandler", err, map[string]any{"auction_id": auctionID, "user_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, checkout, "checkout session created")
	helpers.LogSuccess("CreateCheckoutHandler", "checkout session created", map[string]any{
		"auction_id": auctionID,
		"session_id": checkout.SessionID,
	})
}

// SessionStatusHandler handles GET /stripe/session/:sessionId
func (h *PaymentHandler) SessionStatusHandler(c *gin.Context) {
	sessionID := c.Param("sessionId")
	userID, _ := utils.UserID(c)

	st, err := h.service.SessionStatus(c.Request.Context(), sessionID, userID)
	if err != nil {
		helpers.RespondError(c, "SessionStatusHandler", err, map[string]any{"session_id": sessionID, "user_id": userID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, st, "checkout session retrieved")
}
