package market

import "github.com/ethereum/go-ethereum/common"

// Listing is an escrowed offer to sell a fixed quantity of an asset at a
// fixed price. ID equals the listing's insertion index and never changes.
// Active transitions true -> false exactly once, on the purchase that
// consumes the listing; there is no relist, edit, or reactivation.
type Listing struct {
	ID     uint64         `json:"id"`
	Seller common.Address `json:"seller"`
	Asset  common.Address `json:"asset"`  // Asset being sold
	Amount int64          `json:"amount"` // Quantity held in escrow
	Price  int64          `json:"price"`  // Settlement amount the buyer pays
	Active bool           `json:"active"`
}
