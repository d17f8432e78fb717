package auctionerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: KindInternal},
		{name: "unknown", err: errors.New("boom"), want: KindInternal},
		{name: "wrapped_not_found", err: fmt.Errorf("service: %w", ErrAuctionNotFound), want: KindNotFound},
		{name: "stale_price", err: fmt.Errorf("service: %w", ErrStalePrice), want: KindStateConflict},
		{name: "bid_too_low", err: ErrBidTooLow, want: KindValidation},
		{name: "seller_bid", err: ErrSellerCannotBid, want: KindForbidden},
		{name: "expired", err: fmt.Errorf("auth: %w", ErrTokenExpired), want: KindAuthExpired},
		{name: "reused_refresh", err: ErrRefreshTokenReused, want: KindAuthExpired},
		{name: "invalid_token", err: ErrTokenInvalid, want: KindUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestKind_String(t *testing.T) {
	require.Equal(t, "auth_expired", KindAuthExpired.String())
	require.Equal(t, "state_conflict", KindStateConflict.String())
	require.Equal(t, "internal", Kind(99).String())
}

func TestPublicMessage(t *testing.T) {
	require.Equal(t, "bid amount too low", PublicMessage(fmt.Errorf("service: auction a1: %w", ErrBidTooLow)))
	require.Equal(t, "internal server error", PublicMessage(errors.New("pq: connection refused")))
	require.Empty(t, PublicMessage(nil))
}
