package perftests

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	bidding "auction-house/internal/biddingService"
	model "auction-house/internal/models"
	repository "auction-house/internal/repository"
)

// openAuction stores an OPEN auction directly, skipping the sweep.
func openAuction(b *testing.B, repo *repository.MemoryRepo, id string, kind model.AuctionKind, price float64) {
	b.Helper()
	now := time.Now().UTC()
	err := repo.CreateAuction(context.Background(), model.Auction{
		AuctionID:     id,
		SellerID:      "seller",
		Title:         "Benchmark auction " + id,
		Description:   "benchmark",
		Kind:          kind,
		StartingPrice: price,
		CurrentPrice:  price,
		StartTime:     now.Add(-time.Minute),
		EndTime:       now.Add(time.Hour),
		Status:        model.StatusOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		b.Fatalf("failed to seed auction: %v", err)
	}
}

// Benchmark 1: PlaceBid - Isolated Auctions (Low Contention - Micro Benchmark)
func Benchmark_PlaceBid_Isolated(b *testing.B) {
	repo := repository.NewMemoryRepo()
	svc := bidding.NewBiddingService(repo)
	ctx := context.Background()

	for i := 0; i < b.N; i++ {
		openAuction(b, repo, fmt.Sprintf("auction_%d", i), model.KindEnglish, 50)
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		userID := fmt.Sprintf("user_%d", i)
		auctionID := fmt.Sprintf("auction_%d", i)
		bidAmount := float64(51 + rand.Intn(100))
		if _, err := svc.PlaceBid(ctx, auctionID, userID, bidAmount); err != nil {
			b.Fatalf("failed to place bid: %v", err)
		}
	}
	b.StopTimer()
	svc.Drain()
}

// Benchmark 2: PlaceBid - Shared Auction (High Contention - Concurrency Benchmark)
func Benchmark_PlaceBid_ConcurrentSharedAuction(b *testing.B) {
	repo := repository.NewMemoryRepo()
	svc := bidding.NewBiddingService(repo)
	ctx := context.Background()
	openAuction(b, repo, "shared_auction_1", model.KindEnglish, 50)

	b.ReportAllocs()
	b.ResetTimer()

	var lastBid int64 = 50
	var accepted, stale int64

	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			userID := fmt.Sprintf("user_parallel_%d", rnd.Int())

			nextBid := atomic.AddInt64(&lastBid, int64(rnd.Intn(5)+1))
			if _, err := svc.PlaceBid(ctx, "shared_auction_1", userID, float64(nextBid)); err != nil {
				atomic.AddInt64(&stale, 1)
				continue
			}
			atomic.AddInt64(&accepted, 1)
		}
	})
	b.StopTimer()
	svc.Drain()
	b.ReportMetric(float64(accepted)/float64(b.N), "accepted/op")
}

// Benchmark 3: Sealed bids - Shared Auction. Acceptance does not depend on
// price, so version conflicts are retried internally.
func Benchmark_PlaceBid_SealedSharedAuction(b *testing.B) {
	repo := repository.NewMemoryRepo()
	svc := bidding.NewBiddingService(repo)
	ctx := context.Background()
	openAuction(b, repo, "sealed_1", model.KindSealed, 10)

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			_, _ = svc.PlaceBid(ctx, "sealed_1", fmt.Sprintf("user_%d", rnd.Int()), float64(10+rnd.Intn(1000)))
		}
	})
}

// Benchmark 4: GetAuction - Concurrent (High Contention Reads)
func Benchmark_GetAuction_ConcurrentSharedAuction(b *testing.B) {
	repo := repository.NewMemoryRepo()
	svc := bidding.NewBiddingService(repo)
	ctx := context.Background()
	openAuction(b, repo, "shared_auction_1", model.KindEnglish, 50)

	for j := 0; j < 100; j++ {
		_, _ = svc.PlaceBid(ctx, "shared_auction_1", fmt.Sprintf("user_%d", j), float64(51+j))
	}
	svc.Drain()

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := svc.GetAuction(ctx, "shared_auction_1"); err != nil {
				b.Fatalf("failed to get auction: %v", err)
			}
		}
	})
}

// Benchmark 5: Mixed Workload (Readers + Writers concurrently)
func Benchmark_MixedWorkload_SharedAuction(b *testing.B) {
	repo := repository.NewMemoryRepo()
	svc := bidding.NewBiddingService(repo)
	ctx := context.Background()
	openAuction(b, repo, "shared_auction_1", model.KindEnglish, 50)

	b.ReportAllocs()
	b.ResetTimer()

	var lastBid int64 = 50

	// Ratio: 70% readers, 30% writers
	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			if rnd.Intn(10) < 3 {
				userID := fmt.Sprintf("user_writer_%d", rnd.Int())
				nextBid := atomic.AddInt64(&lastBid, int64(rnd.Intn(5)+1))
				_, _ = svc.PlaceBid(ctx, "shared_auction_1", userID, float64(nextBid))
				continue
			}
			_, _ = svc.GetBidsForAuction(ctx, "shared_auction_1", "viewer")
		}
	})
	b.StopTimer()
	svc.Drain()
}
