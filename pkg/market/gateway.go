package market

import "github.com/ethereum/go-ethereum/common"

// Gateway moves the traded asset and the settlement currency on the
// ledger's behalf. Both calls are synchronous and all-or-nothing: a nil
// return means the full amount moved, an error means nothing moved.
//
// The ledger never applies a state mutation that depends on a transfer's
// success before that transfer has actually succeeded.
type Gateway interface {
	// Pull moves amount of asset from the holder into escrow custody.
	Pull(from common.Address, asset common.Address, amount int64) error
	// Push moves amount of asset out of escrow custody to the recipient.
	Push(to common.Address, asset common.Address, amount int64) error
}
