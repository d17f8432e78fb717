package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"auction-house/internal/auctionerrors"
	model "auction-house/internal/models"
	"auction-house/internal/repository"
)

const auctionColumns = `id, seller_id, title, description, category, kind, starting_price, current_price,
	floor_price, start_time, end_time, status, highest_bidder_id, winner_id, winning_amount,
	is_paid, version, created_at, updated_at`

// AuctionRepository implements repository.AuctionDB on PostgreSQL. The
// version column is the compare-and-swap token, so several service instances
// can share one database without a distributed lock.
type AuctionRepository struct {
	pool DBTX
}

var _ repository.AuctionDB = (*AuctionRepository)(nil)

// NewAuctionRepository creates a new PostgreSQL-backed auction repository.
func NewAuctionRepository(pool DBTX) *AuctionRepository {
	return &AuctionRepository{pool: pool}
}

// CreateAuction inserts a new auction at version 1.
func (r *AuctionRepository) CreateAuction(ctx context.Context, a model.Auction) error {
	query := `
		INSERT INTO auctions (` + auctionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, 1, $17, $18)`

	_, err := r.pool.Exec(ctx, query,
		a.AuctionID, a.SellerID, a.Title, a.Description, a.Category, string(a.Kind),
		a.StartingPrice, a.CurrentPrice, a.FloorPrice, a.StartTime, a.EndTime, string(a.Status),
		a.HighestBidderID, a.WinnerID, a.WinningAmount, a.IsPaid, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert auction: %w", err)
	}
	return nil
}

// GetAuction retrieves an auction by its ID.
func (r *AuctionRepository) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = $1`

	a, err := scanAuction(r.pool.QueryRow(ctx, query, auctionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
		}
		return model.Auction{}, fmt.Errorf("get auction: %w", err)
	}
	return a, nil
}

// ListAuctions returns a filtered, paginated listing, newest first.
func (r *AuctionRepository) ListAuctions(ctx context.Context, filter model.AuctionFilter) ([]model.Auction, error) {
	var (
		where []string
		args  []any
	)
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}

	query := `SELECT ` + auctionColumns + ` FROM auctions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	return r.queryAuctions(ctx, "list auctions", query, args...)
}

// ListAuctionsBySeller returns every auction created by sellerID.
func (r *AuctionRepository) ListAuctionsBySeller(ctx context.Context, sellerID string) ([]model.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE seller_id = $1 ORDER BY created_at DESC, id`
	return r.queryAuctions(ctx, "list auctions by seller", query, sellerID)
}

// ListAuctionsByWinner returns every closed auction won by winnerID.
func (r *AuctionRepository) ListAuctionsByWinner(ctx context.Context, winnerID string) ([]model.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE winner_id = $1 AND status = 'CLOSED' ORDER BY created_at DESC, id`
	return r.queryAuctions(ctx, "list auctions by winner", query, winnerID)
}

// ListAuctionsByBidder returns every auction bidderID has bid on.
func (r *AuctionRepository) ListAuctionsByBidder(ctx context.Context, bidderID string) ([]model.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions
		WHERE id IN (SELECT DISTINCT auction_id FROM bids WHERE bidder_id = $1)
		ORDER BY created_at DESC, id`
	return r.queryAuctions(ctx, "list auctions by bidder", query, bidderID)
}

// ListDueAuctions returns auctions whose next lifecycle transition is due.
func (r *AuctionRepository) ListDueAuctions(ctx context.Context, now time.Time) ([]model.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions
		WHERE (status = 'SCHEDULED' AND start_time <= $1) OR (status = 'OPEN' AND end_time <= $1)
		ORDER BY created_at DESC, id`
	return r.queryAuctions(ctx, "list due auctions", query, now)
}

const updateAuctionQuery = `
	UPDATE auctions
	SET title = $2, description = $3, category = $4, kind = $5, starting_price = $6,
	    current_price = $7, floor_price = $8, start_time = $9, end_time = $10, status = $11,
	    highest_bidder_id = $12, winner_id = $13, winning_amount = $14, is_paid = $15,
	    version = $16 + 1, updated_at = $17
	WHERE id = $1 AND version = $16 AND status = ANY($18)`

func updateArgs(next model.Auction, expectedVersion int64) []any {
	return []any{
		next.AuctionID, next.Title, next.Description, next.Category, string(next.Kind), next.StartingPrice,
		next.CurrentPrice, next.FloorPrice, next.StartTime, next.EndTime, string(next.Status),
		next.HighestBidderID, next.WinnerID, next.WinningAmount, next.IsPaid,
		expectedVersion, next.UpdatedAt, statusNames(next.Status.ReachableFrom()),
	}
}

func statusNames(statuses []model.AuctionStatus) []string {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	return names
}

// UpdateAuction stores next if the row is still at expectedVersion.
func (r *AuctionRepository) UpdateAuction(ctx context.Context, next model.Auction, expectedVersion int64) (model.Auction, error) {
	ct, err := r.pool.Exec(ctx, updateAuctionQuery, updateArgs(next, expectedVersion)...)
	if err != nil {
		return model.Auction{}, fmt.Errorf("update auction: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return model.Auction{}, updateConflict(ctx, r.pool, next, expectedVersion)
	}

	next.Version = expectedVersion + 1
	return next, nil
}

// CommitBid inserts bid and applies next in one transaction guarded by the
// version check.
func (r *AuctionRepository) CommitBid(ctx context.Context, bid model.Bid, next model.Auction, expectedVersion int64) (model.Auction, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Auction{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, updateAuctionQuery, updateArgs(next, expectedVersion)...)
	if err != nil {
		return model.Auction{}, fmt.Errorf("update auction: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return model.Auction{}, fmt.Errorf("commit bid: %w", updateConflict(ctx, tx, next, expectedVersion))
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO bids (id, auction_id, bidder_id, amount, created_at) VALUES ($1, $2, $3, $4, $5)`,
		bid.BidID, bid.AuctionID, bid.BidderID, bid.Amount, bid.CreatedAt,
	)
	if err != nil {
		return model.Auction{}, fmt.Errorf("insert bid: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Auction{}, fmt.Errorf("commit transaction: %w", err)
	}

	next.Version = expectedVersion + 1
	return next, nil
}

// DeleteAuction removes an auction if the row is still at expectedVersion.
func (r *AuctionRepository) DeleteAuction(ctx context.Context, auctionID string, expectedVersion int64) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM auctions WHERE id = $1 AND version = $2`, auctionID, expectedVersion)
	if err != nil {
		return fmt.Errorf("delete auction: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return r.conflict(ctx, auctionID, expectedVersion)
	}
	return nil
}

// GetBidsByAuction returns all bids for an auction in commit order.
func (r *AuctionRepository) GetBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, auction_id, bidder_id, amount, created_at FROM bids WHERE auction_id = $1 ORDER BY created_at, id`,
		auctionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	defer rows.Close()

	bids := make([]model.Bid, 0)
	for rows.Next() {
		var b model.Bid
		if err := rows.Scan(&b.BidID, &b.AuctionID, &b.BidderID, &b.Amount, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bids: %w", err)
	}
	return bids, nil
}

// conflict tells a missing row apart from a version mismatch after a
// guarded write touched nothing.
// updateConflict explains why a guarded UPDATE matched no row: the auction
// is gone, its version moved on, or the status guard refused the change.
func updateConflict(ctx context.Context, q DBTX, next model.Auction, expectedVersion int64) error {
	var (
		version int64
		status  string
	)
	err := q.QueryRow(ctx, `SELECT version, status FROM auctions WHERE id = $1`, next.AuctionID).Scan(&version, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("auction %s: %w", next.AuctionID, auctionerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return fmt.Errorf("check auction %s: %w", next.AuctionID, err)
	}
	if version != expectedVersion {
		return fmt.Errorf("auction %s at version %d: %w", next.AuctionID, expectedVersion, auctionerrors.ErrStaleState)
	}
	return fmt.Errorf("auction %s from %s to %s: %w", next.AuctionID, status, next.Status, auctionerrors.ErrInvalidTransition)
}

func (r *AuctionRepository) conflict(ctx context.Context, auctionID string, expectedVersion int64) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM auctions WHERE id = $1)`, auctionID).Scan(&exists); err != nil {
		return fmt.Errorf("check auction %s: %w", auctionID, err)
	}
	if !exists {
		return fmt.Errorf("auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	return fmt.Errorf("auction %s at version %d: %w", auctionID, expectedVersion, auctionerrors.ErrStaleState)
}

func (r *AuctionRepository) queryAuctions(ctx context.Context, op, query string, args ...any) ([]model.Auction, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	auctions := make([]model.Auction, 0)
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		auctions = append(auctions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate: %w", op, err)
	}
	return auctions, nil
}

func scanAuction(row pgx.Row) (model.Auction, error) {
	var (
		a            model.Auction
		kind, status string
	)
	err := row.Scan(
		&a.AuctionID, &a.SellerID, &a.Title, &a.Description, &a.Category, &kind,
		&a.StartingPrice, &a.CurrentPrice, &a.FloorPrice, &a.StartTime, &a.EndTime, &status,
		&a.HighestBidderID, &a.WinnerID, &a.WinningAmount, &a.IsPaid, &a.Version,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return model.Auction{}, err
	}
	a.Kind = model.AuctionKind(kind)
	a.Status = model.AuctionStatus(status)
	return a, nil
}
