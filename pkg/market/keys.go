package market

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema.
// Listings and events use zero-padded decimal ids so lexicographic order
// equals insertion order and prefix scans replay them ascending.

const (
	prefixListing = "lst:"   // Listing records
	prefixBalance = "bal:"   // Escrow balances
	prefixEvent   = "evt:"   // Notification log
)

// listingKey returns the key for a listing.
// Format: "lst:{id}" with the id zero-padded to 20 digits.
func listingKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixListing, id))
}

// balanceKey returns the key for a seller's escrow balance.
// Format: "bal:{address}"
func balanceKey(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixBalance, addr.Hex()))
}

// eventKey returns the key for a notification log entry.
// Format: "evt:{seq}" with the sequence zero-padded to 20 digits.
func eventKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixEvent, seq))
}

func listingPrefix() []byte { return []byte(prefixListing) }
func balancePrefix() []byte { return []byte(prefixBalance) }
func eventPrefix() []byte   { return []byte(prefixEvent) }

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

// balanceKeyAddress extracts the address from a balance key.
func balanceKeyAddress(key []byte) (common.Address, error) {
	if len(key) != len(prefixBalance)+42 { // 42 = "0x" + 40 hex chars
		return common.Address{}, fmt.Errorf("invalid balance key length: %d", len(key))
	}
	addrHex := string(key[len(prefixBalance):])
	if !common.IsHexAddress(addrHex) {
		return common.Address{}, fmt.Errorf("invalid address in key: %s", addrHex)
	}
	return common.HexToAddress(addrHex), nil
}
