package market

import "github.com/ethereum/go-ethereum/common"

// EscrowLedger tracks settlement currency accrued to sellers, held until
// withdrawal. Balances are non-negative and only grow via Credit.
//
// Not safe for concurrent use on its own: the ledger is owned by Market,
// which serializes every mutating call under its lock.
type EscrowLedger struct {
	balances map[common.Address]int64
}

func NewEscrowLedger() *EscrowLedger {
	return &EscrowLedger{balances: make(map[common.Address]int64)}
}

// Credit adds a non-negative amount to the seller's accrued balance.
func (e *EscrowLedger) Credit(seller common.Address, amount int64) {
	if amount <= 0 {
		return
	}
	e.balances[seller] += amount
}

// Withdraw zeroes the seller's balance and returns what was accrued.
// Zeroing happens before the caller issues the external payout; if that
// payout later fails the balance is NOT restored. The irreversible zeroing
// is the anti-double-withdrawal measure.
func (e *EscrowLedger) Withdraw(seller common.Address) (int64, error) {
	amount := e.balances[seller]
	if amount == 0 {
		return 0, ErrNoFunds
	}
	e.balances[seller] = 0
	return amount, nil
}

// Balance returns the seller's accrued balance.
func (e *EscrowLedger) Balance(seller common.Address) int64 {
	return e.balances[seller]
}

// Restore sets a balance directly. Used when reloading persisted state.
func (e *EscrowLedger) Restore(seller common.Address, amount int64) {
	if amount > 0 {
		e.balances[seller] = amount
	}
}
