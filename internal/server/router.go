package server

import (
	"net/http"
	"time"

	"auction-house/internal/fanout"
	bidding "auction-house/services/bidding/handler"
	notification "auction-house/services/notification/handler"
	payment "auction-house/services/payment/handler"
	session "auction-house/services/session/handler"
	"auction-house/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Bidding      *bidding.BiddingHandler
	Session      *session.SessionHandler
	Notification *notification.NotificationHandler
	Payment      *payment.PaymentHandler
	Stream       *fanout.WSHandler
	Gateway      *Gateway

	// AllowedOrigins may call the API from a browser with credentials. Empty
	// means same origin only.
	AllowedOrigins []string
	RateLimits     RateLimits
}

// SetupRouter configures all Gin routes for the application
func SetupRouter(h Handlers) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(MetricsMiddleware)       // prometheus counters and latency
	router.Use(RequestLoggerMiddleware) // custom request logging
	if len(h.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     h.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{"Accept", "Content-Type"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/health", func(c *gin.Context) {
		utils.JSONResponse(c, http.StatusOK, gin.H{"status": "ok"}, "healthy")
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Routes registered below count against the client's budget.
	router.Use(RateLimitMiddleware("general", h.RateLimits.General))
	sensitive := RateLimitMiddleware("sensitive", h.RateLimits.Sensitive)

	router.POST("/signup", sensitive, h.Session.SignupHandler)
	router.POST("/login", sensitive, h.Session.LoginHandler)
	router.POST("/refresh", sensitive, h.Session.RefreshHandler)

	router.GET("/auctions", h.Bidding.ListAuctionsHandler)
	router.GET("/auctions/:id", h.Bidding.GetAuctionHandler)

	authed := router.Group("/", h.Gateway.RequireSession)
	{
		authed.POST("/logout", h.Session.LogoutHandler)
		authed.GET("/me", h.Session.MeHandler)
		authed.PUT("/change-password", sensitive, h.Session.ChangePasswordHandler)

		authed.GET("/auctions/won", h.Bidding.ListWonHandler)
		authed.GET("/auctions/bidded", h.Bidding.ListBiddedHandler)
		authed.GET("/auctions/created-auctions", h.Bidding.ListCreatedHandler)

		authed.POST("/auctions", h.Bidding.CreateAuctionHandler)
		authed.PUT("/auctions/:id", h.Bidding.UpdateAuctionHandler)
		authed.DELETE("/auctions/:id", h.Bidding.DeleteAuctionHandler)
		authed.POST("/auctions/:id/bids", h.Bidding.PlaceBidHandler)
		authed.GET("/auctions/:id/bids", h.Bidding.GetBidsHandler)
		authed.POST("/auctions/:id/close", h.Bidding.CloseAuctionHandler)

		authed.POST("/auctions/:id/stripe/create-checkout-session", h.Payment.CreateCheckoutHandler)
		authed.GET("/stripe/session/:sessionId", h.Payment.SessionStatusHandler)

		authed.GET("/notifications", h.Notification.ListHandler)
		authed.GET("/ws", h.Stream.Serve)
	}

	return router
}
