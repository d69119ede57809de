package market

import "errors"

// Every precondition failure maps to exactly one of these sentinels.
// Operations abort with no partial state mutation (the withdraw payout
// asymmetry documented on Market.Withdraw is the one exception).
var (
	// ErrTransferFailed means the asset gateway rejected a pull or push.
	ErrTransferFailed = errors.New("transfer failed")
	// ErrListingNotFound means the listing id is out of range.
	ErrListingNotFound = errors.New("listing not found")
	// ErrListingInactive means the listing was already purchased.
	ErrListingInactive = errors.New("listing inactive")
	// ErrInsufficientPayment means the offered payment is below the listing price.
	ErrInsufficientPayment = errors.New("insufficient payment")
	// ErrNoFunds means the seller has no accrued escrow balance.
	ErrNoFunds = errors.New("no funds")
	// ErrInvalidAmount means a listing was submitted with a non-positive quantity.
	ErrInvalidAmount = errors.New("invalid amount")
)
