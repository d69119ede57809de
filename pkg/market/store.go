package market

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
)

// Store provides Pebble-based persistence for listings, escrow balances,
// and the notification log. All records are JSON.
// Thread-safe only through Market's lock.
type Store struct {
	db *pebble.DB
}

// NewStore opens a Pebble database at the given path.
func NewStore(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                 pebble.NewCache(64 << 20), // 64MB cache
		MemTableSize:          32 << 20,                  // 32MB memtable
		L0CompactionThreshold: 2,
		MaxOpenFiles:          1000,
		BytesPerSync:          512 << 10, // 512KB
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveListing persists a listing.
func (s *Store) SaveListing(l *Listing) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to marshal listing: %w", err)
	}

	if err := s.db.Set(listingKey(l.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save listing: %w", err)
	}

	return nil
}

// LoadListings replays all persisted listings in ascending id order.
func (s *Store) LoadListings() ([]*Listing, error) {
	prefix := listingPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create listing iterator: %w", err)
	}
	defer iter.Close()

	var listings []*Listing
	for iter.First(); iter.Valid(); iter.Next() {
		var l Listing
		if err := json.Unmarshal(iter.Value(), &l); err != nil {
			return nil, fmt.Errorf("failed to unmarshal listing at %s: %w", iter.Key(), err)
		}
		if l.ID != uint64(len(listings)) {
			return nil, fmt.Errorf("listing id gap: got %d, want %d", l.ID, len(listings))
		}
		listings = append(listings, &l)
	}

	return listings, nil
}

// SaveBalance persists a seller's escrow balance.
func (s *Store) SaveBalance(addr common.Address, amount int64) error {
	data := []byte(strconv.FormatInt(amount, 10))
	if err := s.db.Set(balanceKey(addr), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save balance: %w", err)
	}
	return nil
}

// LoadBalances loads all persisted escrow balances.
func (s *Store) LoadBalances() (map[common.Address]int64, error) {
	prefix := balancePrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create balance iterator: %w", err)
	}
	defer iter.Close()

	balances := make(map[common.Address]int64)
	for iter.First(); iter.Valid(); iter.Next() {
		addr, err := balanceKeyAddress(iter.Key())
		if err != nil {
			return nil, err
		}
		amount, err := strconv.ParseInt(string(iter.Value()), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse balance for %s: %w", addr.Hex(), err)
		}
		balances[addr] = amount
	}

	return balances, nil
}

// SaveEvent persists a notification log entry.
func (s *Store) SaveEvent(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := s.db.Set(eventKey(ev.Seq), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}

	return nil
}

// LastEvent returns the most recent notification log entry.
// The ok result is false when the log is empty.
func (s *Store) LastEvent() (Event, bool, error) {
	prefix := eventPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return Event{}, false, fmt.Errorf("failed to create event iterator: %w", err)
	}
	defer iter.Close()

	if !iter.Last() {
		return Event{}, false, nil
	}

	var ev Event
	if err := json.Unmarshal(iter.Value(), &ev); err != nil {
		return Event{}, false, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return ev, true, nil
}

// LoadEvents replays persisted events starting at fromSeq, up to limit
// entries (limit <= 0 means no limit). Ascending sequence order.
func (s *Store) LoadEvents(fromSeq uint64, limit int) ([]Event, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: eventKey(fromSeq),
		UpperBound: keyUpperBound(eventPrefix()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create event iterator: %w", err)
	}
	defer iter.Close()

	var events []Event
	for iter.First(); iter.Valid(); iter.Next() {
		if limit > 0 && len(events) >= limit {
			break
		}
		var ev Event
		if err := json.Unmarshal(iter.Value(), &ev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event at %s: %w", iter.Key(), err)
		}
		events = append(events, ev)
	}

	return events, nil
}

// Batch groups writes from one ledger operation so they commit atomically.
type Batch struct {
	batch *pebble.Batch
}

// NewBatch creates a new batch writer.
func (s *Store) NewBatch() *Batch {
	return &Batch{batch: s.db.NewBatch()}
}

// SaveListing adds a listing write to the batch.
func (b *Batch) SaveListing(l *Listing) error {
	data, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return b.batch.Set(listingKey(l.ID), data, nil)
}

// SaveBalance adds a balance write to the batch.
func (b *Batch) SaveBalance(addr common.Address, amount int64) error {
	return b.batch.Set(balanceKey(addr), []byte(strconv.FormatInt(amount, 10)), nil)
}

// SaveEvent adds an event write to the batch.
func (b *Batch) SaveEvent(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.batch.Set(eventKey(ev.Seq), data, nil)
}

// Commit writes the batch atomically.
func (b *Batch) Commit() error {
	return b.batch.Commit(pebble.Sync)
}

// Close discards the batch without committing.
func (b *Batch) Close() error {
	return b.batch.Close()
}
