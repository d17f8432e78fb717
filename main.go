package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"auction-house/internal/auth"
	"auction-house/internal/config"
	"auction-house/internal/fanout"
	"auction-house/internal/payment"
	"auction-house/internal/ratelimit"
	"auction-house/internal/repository/postgres"
	"auction-house/internal/server"
	"auction-house/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		utils.Fatal("auction house stopped", map[string]any{"error": err.Error()})
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	utils.SetLevel(cfg.LogLevel)
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores := server.MemoryStores()
	if cfg.StoreBackend == "postgres" {
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL, 0)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return err
		}
		stores.Auctions = postgres.NewAuctionRepository(pool)
		stores.Users = postgres.NewUserRepository(pool)
		stores.Notifications = postgres.NewNotificationRepository(pool)
		utils.Info("using postgres store", nil)
	}

	var bus fanout.Bus
	var rdb *redis.Client
	if cfg.SessionBackend == "redis" || cfg.FanoutBus == "redis" || cfg.RateLimitBackend == "redis" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: ping %s: %w", cfg.RedisAddr, err)
		}
		if cfg.SessionBackend == "redis" {
			stores.Sessions = auth.NewRedisSessionStore(rdb)
		}
		if cfg.FanoutBus == "redis" {
			bus = fanout.NewRedisBus(rdb, cfg.FanoutChannel)
		}
	}

	app := server.NewApp(stores, server.Options{
		Tokens: auth.Config{
			Secret:     cfg.JWTSecret,
			Issuer:     cfg.JWTIssuer,
			AccessTTL:  cfg.AccessTTL,
			RefreshTTL: cfg.RefreshTTL,
		},
		Cookies:        auth.NewCookies(cfg.CookieSecure, ""),
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimits:     rateLimits(cfg, rdb),
		Payments:       paymentProvider(cfg),
		Bus:            bus,
		SweepInterval:  cfg.SweepInterval,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: app.Router,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		utils.Info("starting auction server", map[string]any{"addr": srv.Addr, "environment": cfg.Environment})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return app.RunBackground(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		utils.Info("shutting down auction server", nil)
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	// Nothing can place a bid or close an auction any more.
	app.Bidding.Drain()
	return err
}

func rateLimits(cfg *config.Config, rdb *redis.Client) server.RateLimits {
	tier := func(scope string, rule ratelimit.Rule) ratelimit.Limiter {
		if !rule.Enabled() {
			return nil
		}
		if cfg.RateLimitBackend == "redis" {
			return ratelimit.NewRedis(rdb, scope, rule)
		}
		return ratelimit.NewMemory(rule)
	}
	return server.RateLimits{
		General:   tier("general", ratelimit.Rule{Limit: cfg.GeneralRateLimit, Window: cfg.GeneralRateWindow}),
		Sensitive: tier("sensitive", ratelimit.Rule{Limit: cfg.SensitiveRateLimit, Window: cfg.SensitiveRateWindow}),
	}
}

func paymentProvider(cfg *config.Config) payment.Provider {
	if cfg.PaymentProvider == "stripe" {
		return payment.NewStripeProvider(payment.StripeConfig{
			SecretKey:  cfg.StripeSecretKey,
			SuccessURL: cfg.StripeSuccessURL,
			CancelURL:  cfg.StripeCancelURL,
		})
	}
	return payment.NewSandboxProvider(cfg.StripeSuccessURL, cfg.SandboxAutoSettle)
}
