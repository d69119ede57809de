package market

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Notification types consumed by external indexers.
const (
	EventItemListed     = "ItemListed"
	EventItemPurchased  = "ItemPurchased"
	EventFundsWithdrawn = "FundsWithdrawn"
)

// ItemListed is emitted when a listing is appended.
type ItemListed struct {
	ListingID uint64         `json:"listingId"`
	Seller    common.Address `json:"seller"`
	Asset     common.Address `json:"asset"`
	Amount    int64          `json:"amount"`
	Price     int64          `json:"price"`
}

// ItemPurchased is emitted when a purchase consumes a listing.
type ItemPurchased struct {
	ListingID uint64         `json:"listingId"`
	Buyer     common.Address `json:"buyer"`
	Seller    common.Address `json:"seller"`
	Asset     common.Address `json:"asset"`
	Amount    int64          `json:"amount"`
}

// FundsWithdrawn is emitted when a seller withdraws accrued proceeds.
type FundsWithdrawn struct {
	Seller common.Address `json:"seller"`
	Amount int64          `json:"amount"`
}

// Event is one immutable entry in the append-only notification log.
// Seq increases by exactly 1 per event; Hash chains to the previous entry
// so indexers can detect gaps or tampering in a replayed history.
type Event struct {
	Seq      uint64          `json:"seq"`
	Type     string          `json:"type"`
	Time     int64           `json:"time"` // Unix milliseconds
	Data     json.RawMessage `json:"data"`
	PrevHash common.Hash     `json:"prevHash"`
	Hash     common.Hash     `json:"hash"`
}

// EventLog assigns sequence numbers, maintains the hash chain, and fans
// events out to in-process subscribers (websocket hub, p2p publisher).
//
// Not safe for concurrent use on its own: owned and serialized by Market.
type EventLog struct {
	seq         uint64
	lastHash    common.Hash
	subscribers []func(Event)
}

func NewEventLog() *EventLog {
	return &EventLog{}
}

// Subscribe registers a callback invoked for every appended event.
// Callbacks run synchronously under the market lock; keep them cheap
// (hand off to a channel for slow consumers).
func (l *EventLog) Subscribe(fn func(Event)) {
	l.subscribers = append(l.subscribers, fn)
}

// Append creates the next event in the chain and notifies subscribers.
func (l *EventLog) Append(eventType string, timeMillis int64, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	ev := Event{
		Seq:      l.seq,
		Type:     eventType,
		Time:     timeMillis,
		Data:     data,
		PrevHash: l.lastHash,
	}
	ev.Hash = chainHash(ev)

	l.seq++
	l.lastHash = ev.Hash

	for _, fn := range l.subscribers {
		fn(ev)
	}

	return ev, nil
}

// Restore positions the log after the given event, so appends continue the
// chain across restarts.
func (l *EventLog) Restore(last Event) {
	l.seq = last.Seq + 1
	l.lastHash = last.Hash
}

// chainHash computes keccak256(prevHash || seq || type || data).
func chainHash(ev Event) common.Hash {
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], ev.Seq)

	h := sha3.NewLegacyKeccak256()
	h.Write(ev.PrevHash[:])
	h.Write(seqBytes[:])
	h.Write([]byte(ev.Type))
	h.Write(ev.Data)

	var out common.Hash
	h.Sum(out[:0])
	return out
}

// VerifyChain checks that a replayed event sequence is gapless and that
// every entry's hash commits to its predecessor.
func VerifyChain(events []Event) error {
	var prev common.Hash
	for i, ev := range events {
		if i > 0 && ev.Seq != events[i-1].Seq+1 {
			return fmt.Errorf("sequence gap at index %d: %d after %d", i, ev.Seq, events[i-1].Seq)
		}
		if i > 0 && ev.PrevHash != prev {
			return fmt.Errorf("broken chain at seq %d: prevHash mismatch", ev.Seq)
		}
		if chainHash(ev) != ev.Hash {
			return fmt.Errorf("hash mismatch at seq %d", ev.Seq)
		}
		prev = ev.Hash
	}
	return nil
}
