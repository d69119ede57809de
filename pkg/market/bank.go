package market

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Bank is an in-memory Gateway used on devnets and in tests. It keeps
// per-asset balances for every holder plus a custody account that models
// the escrow vault.
type Bank struct {
	mu       sync.Mutex
	custody  common.Address
	balances map[common.Address]map[common.Address]int64 // asset -> holder -> amount
}

// NewBank creates a bank whose escrow vault lives at the custody address.
func NewBank(custody common.Address) *Bank {
	return &Bank{
		custody:  custody,
		balances: make(map[common.Address]map[common.Address]int64),
	}
}

// Mint credits freshly created units of an asset to a holder. Devnet faucet.
func (b *Bank) Mint(holder common.Address, asset common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("mint amount must be positive: %d", amount)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.creditLocked(holder, asset, amount)
	return nil
}

// BalanceOf returns a holder's balance of an asset.
func (b *Bank) BalanceOf(holder common.Address, asset common.Address) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if holders, ok := b.balances[asset]; ok {
		return holders[holder]
	}
	return 0
}

// Pull moves amount of asset from the holder into custody.
func (b *Bank) Pull(from common.Address, asset common.Address, amount int64) error {
	return b.transfer(from, b.custody, asset, amount)
}

// Push moves amount of asset out of custody to the recipient.
func (b *Bank) Push(to common.Address, asset common.Address, amount int64) error {
	return b.transfer(b.custody, to, asset, amount)
}

func (b *Bank) transfer(from, to common.Address, asset common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("transfer amount must be positive: %d", amount)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	holders := b.balances[asset]
	if holders == nil || holders[from] < amount {
		return fmt.Errorf("insufficient %s balance for %s: have %d, need %d",
			asset.Hex(), from.Hex(), holders[from], amount)
	}

	holders[from] -= amount
	b.creditLocked(to, asset, amount)
	return nil
}

func (b *Bank) creditLocked(holder common.Address, asset common.Address, amount int64) {
	holders := b.balances[asset]
	if holders == nil {
		holders = make(map[common.Address]int64)
		b.balances[asset] = holders
	}
	holders[holder] += amount
}
