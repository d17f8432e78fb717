package server

import (
	"context"
	"time"

	"auction-house/internal/account"
	"auction-house/internal/auth"
	bidding "auction-house/internal/biddingService"
	"auction-house/internal/fanout"
	"auction-house/internal/payment"
	"auction-house/internal/repository"
	biddinghandler "auction-house/services/bidding/handler"
	notificationhandler "auction-house/services/notification/handler"
	paymenthandler "auction-house/services/payment/handler"
	sessionhandler "auction-house/services/session/handler"
	"auction-house/utils"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// Stores are the persistence backends the application runs on.
type Stores struct {
	Auctions      repository.AuctionDB
	Users         repository.UserDB
	Notifications repository.NotificationDB
	Sessions      auth.SessionStore
}

// MemoryStores returns in-process stores for development and tests.
func MemoryStores() Stores {
	return Stores{
		Auctions:      repository.NewMemoryRepo(),
		Users:         repository.NewMemoryUserRepo(),
		Notifications: repository.NewMemoryNotificationRepo(),
		Sessions:      auth.NewMemorySessionStore(),
	}
}

// Options tune how the application is assembled.
type Options struct {
	Tokens         auth.Config
	Cookies        auth.Cookies
	AllowedOrigins []string
	RateLimits     RateLimits
	Payments       payment.Provider
	// Bus is nil for a single instance.
	Bus           fanout.Bus
	SweepInterval time.Duration
	// PruneInterval is how often dead sessions are dropped from stores that
	// keep them in process. Zero means sessionPruneInterval.
	PruneInterval time.Duration
	BcryptCost    int
	Clock         func() time.Time
}

const sessionPruneInterval = 5 * time.Minute

// App is the assembled auction house.
type App struct {
	Router   *gin.Engine
	Bidding  *bidding.BiddingService
	Sweeper  *bidding.Sweeper
	Hub      *fanout.Hub
	Tokens   *auth.TokenService
	Accounts *account.Service
	Payments *payment.Service

	pruneEvery time.Duration
}

// NewApp wires services and handlers over st.
func NewApp(st Stores, opts Options) *App {
	hub := fanout.NewHub(st.Notifications, opts.Bus)

	biddingOpts := []bidding.Option{bidding.WithNotifier(hub)}
	var tokenOpts []auth.Option
	if opts.Clock != nil {
		biddingOpts = append(biddingOpts, bidding.WithClock(opts.Clock))
		tokenOpts = append(tokenOpts, auth.WithClock(opts.Clock))
	}
	biddingSvc := bidding.NewBiddingService(st.Auctions, biddingOpts...)
	tokens := auth.NewTokenService(st.Sessions, opts.Tokens, tokenOpts...)

	var accountOpts []account.Option
	if opts.BcryptCost > 0 {
		accountOpts = append(accountOpts, account.WithBcryptCost(opts.BcryptCost))
	}
	accounts := account.NewService(st.Users, tokens, accountOpts...)

	provider := opts.Payments
	if provider == nil {
		provider = payment.NewSandboxProvider("", true)
	}
	payments := payment.NewService(biddingSvc, provider)

	router := SetupRouter(Handlers{
		Bidding:      biddinghandler.NewBiddingHandler(biddingSvc),
		Session:      sessionhandler.NewSessionHandler(accounts, opts.Cookies),
		Notification: notificationhandler.NewNotificationHandler(st.Notifications),
		Payment:      paymenthandler.NewPaymentHandler(payments),
		Stream:       fanout.NewWSHandler(hub, opts.AllowedOrigins),
		Gateway:      NewGateway(tokens, opts.Cookies),

		AllowedOrigins: opts.AllowedOrigins,
		RateLimits:     opts.RateLimits,
	})

	pruneEvery := opts.PruneInterval
	if pruneEvery <= 0 {
		pruneEvery = sessionPruneInterval
	}

	return &App{
		Router:   router,
		Bidding:  biddingSvc,
		Sweeper:  bidding.NewSweeper(st.Auctions, biddingSvc, opts.SweepInterval),
		Hub:      hub,
		Tokens:   tokens,
		Accounts: accounts,
		Payments: payments,

		pruneEvery: pruneEvery,
	}
}

// RunBackground runs the hub, the sweeper and session pruning until ctx is
// cancelled. Callers drain pending notifications with Bidding.Drain once the
// HTTP server has stopped too.
func (a *App) RunBackground(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Hub.Run(ctx) })
	g.Go(func() error { return a.Sweeper.Run(ctx) })
	g.Go(func() error { return a.pruneSessions(ctx) })
	return g.Wait()
}

func (a *App) pruneSessions(ctx context.Context) error {
	ticker := time.NewTicker(a.pruneEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := a.Tokens.PruneSessions(); n > 0 {
				utils.Debug("pruned dead sessions", map[string]any{"count": n})
			}
		}
	}
}
