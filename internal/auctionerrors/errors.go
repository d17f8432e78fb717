package auctionerrors

import "errors"

// Repository-level errors
var (
	ErrAuctionNotFound      = errors.New("auction not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrSessionNotFound      = errors.New("session not found")
	ErrDuplicateUser        = errors.New("user already exists")
	// ErrStaleState is returned by compare-and-swap writes whose expected
	// version no longer matches the stored one.
	ErrStaleState = errors.New("auction state changed concurrently")
	// ErrInvalidTransition is returned by writes that would move an auction's
	// status backwards or skip a step.
	ErrInvalidTransition = errors.New("auction status cannot move backwards")
)

// Bidding errors
var (
	ErrInvalidBid        = errors.New("invalid bid")
	ErrBidTooLow         = errors.New("bid amount too low")
	ErrStalePrice        = errors.New("current price changed, re-read and resubmit")
	ErrSellerCannotBid   = errors.New("seller cannot bid on own auction")
	ErrAuctionNotOpen    = errors.New("auction is not open")
	ErrAuctionClosed     = errors.New("auction is closed")
	ErrAuctionHasBids    = errors.New("auction already has bids")
	ErrAuctionNotClosed  = errors.New("auction is not closed yet")
	ErrInvalidAuction    = errors.New("invalid auction details")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrNotWinner         = errors.New("only the winner can pay for this auction")
	ErrAlreadyPaid       = errors.New("auction already paid")
	ErrPaymentProvider   = errors.New("payment provider failure")
	ErrInvalidPagination = errors.New("invalid pagination parameters")
)

// Session errors
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidUserDetails  = errors.New("invalid user details")
	ErrPasswordsDoNotMatch = errors.New("passwords do not match")
	ErrWrongPassword       = errors.New("current password is incorrect")
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenInvalid        = errors.New("token invalid")
	ErrRefreshTokenReused  = errors.New("refresh token already redeemed")
	ErrSessionRevoked      = errors.New("session revoked")
)

// Kind groups errors by how callers are expected to react to them.
type Kind int

const (
	KindInternal Kind = iota
	// KindValidation covers malformed input; never retried by the server.
	KindValidation
	// KindStateConflict covers stale prices and wrong lifecycle states; the
	// caller may re-read and retry.
	KindStateConflict
	// KindAuthExpired triggers the single refresh-and-retry cycle.
	KindAuthExpired
	KindUnauthorized
	KindForbidden
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindStateConflict:
		return "state_conflict"
	case KindAuthExpired:
		return "auth_expired"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

var kinds = []struct {
	kind Kind
	errs []error
}{
	{KindNotFound, []error{ErrAuctionNotFound, ErrUserNotFound, ErrNotificationNotFound, ErrSessionNotFound}},
	{KindValidation, []error{ErrInvalidBid, ErrBidTooLow, ErrInvalidAuction, ErrInvalidUserDetails, ErrPasswordsDoNotMatch, ErrWrongPassword, ErrInvalidPagination}},
	{KindStateConflict, []error{ErrStaleState, ErrStalePrice, ErrAuctionNotOpen, ErrAuctionClosed, ErrAuctionNotClosed, ErrAuctionHasBids, ErrAlreadyPaid, ErrDuplicateUser, ErrInvalidTransition}},
	{KindAuthExpired, []error{ErrTokenExpired, ErrRefreshTokenReused, ErrSessionRevoked}},
	{KindUnauthorized, []error{ErrTokenInvalid, ErrInvalidCredentials}},
	{KindForbidden, []error{ErrPermissionDenied, ErrNotWinner, ErrSellerCannotBid}},
}

// KindOf classifies err by the first sentinel it wraps. Unknown errors are
// internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	for _, group := range kinds {
		for _, sentinel := range group.errs {
			if errors.Is(err, sentinel) {
				return group.kind
			}
		}
	}
	return KindInternal
}

// PublicMessage returns the text of the sentinel err wraps, which is safe to
// show to clients. Internal errors are reported opaquely.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	for _, group := range kinds {
		for _, sentinel := range group.errs {
			if errors.Is(err, sentinel) {
				return sentinel.Error()
			}
		}
	}
	return "internal server error"
}
