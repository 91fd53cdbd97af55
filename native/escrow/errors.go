package escrow

import "errors"

// Every fund-bearing path returns one of these sentinels (possibly wrapped
// with context); none of them aborts the process. A failed invocation is
// rolled back wholesale by the host, so callers observe either the full
// effect of an operation or none of it.
var (
	ErrAlreadyInitialized = errors.New("escrow: already initialized")
	ErrNotInitialized     = errors.New("escrow: not initialized")
	ErrBountyExists       = errors.New("escrow: bounty exists")
	ErrBountyNotFound     = errors.New("escrow: bounty not found")
	ErrFundsNotLocked     = errors.New("escrow: funds not locked")
	ErrDeadlineNotPassed  = errors.New("escrow: deadline not passed")
	ErrUnauthorized       = errors.New("escrow: unauthorized")
	ErrInvalidAmount      = errors.New("escrow: invalid amount")
	ErrInvalidDeadline    = errors.New("escrow: invalid deadline")
	// ErrBatchSizeMismatch is reserved: the item-based batch API cannot
	// produce a size mismatch. The program variant, whose batch payout
	// takes parallel slices, returns its own equivalent.
	ErrBatchSizeMismatch = errors.New("escrow: batch size mismatch")
	ErrInvalidBatchSize  = errors.New("escrow: invalid batch size")
	ErrDuplicateBountyID = errors.New("escrow: duplicate bounty id")
	ErrInsufficientFunds = errors.New("escrow: insufficient funds")
	ErrRefundNotApproved = errors.New("escrow: refund not approved")
)
