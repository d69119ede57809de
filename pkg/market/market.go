package market

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/hyuksoo-dev/bazaar/pkg/auth"
	"github.com/hyuksoo-dev/bazaar/pkg/crypto"
	"github.com/hyuksoo-dev/bazaar/pkg/util"
)

// Config wires a Market's collaborators.
type Config struct {
	Gateway    Gateway        // Required: moves the traded asset and settlement currency
	Settlement common.Address // Asset pushed out on withdrawal
	Verifier   *auth.Verifier // Optional: defaults to the default signing domain
	Store      *Store         // Optional: nil runs fully in memory
	Logger     *zap.SugaredLogger
	Clock      util.Clock
}

// Market is the ledger aggregate. It exclusively owns all listings, the
// escrow balances, and the notification log, and serializes every mutating
// operation under one lock. The lock is held across Gateway calls: releasing
// it mid-operation would reopen the reentrancy window the
// checks-effects-interactions ordering exists to close.
type Market struct {
	mu       sync.RWMutex
	listings []*Listing
	escrow   *EscrowLedger
	events   *EventLog

	gateway    Gateway
	settlement common.Address
	verifier   *auth.Verifier
	store      *Store
	clock      util.Clock
	log        *zap.SugaredLogger
}

// New creates a Market, replaying persisted state when a store is configured.
func New(cfg Config) (*Market, error) {
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = util.RealClock{}
	}
	if cfg.Verifier == nil {
		cfg.Verifier = auth.NewVerifier(crypto.DefaultDomain(), cfg.Clock)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	m := &Market{
		escrow:     NewEscrowLedger(),
		events:     NewEventLog(),
		gateway:    cfg.Gateway,
		settlement: cfg.Settlement,
		verifier:   cfg.Verifier,
		store:      cfg.Store,
		clock:      cfg.Clock,
		log:        cfg.Logger,
	}

	if m.store != nil {
		if err := m.replay(); err != nil {
			return nil, fmt.Errorf("failed to replay state: %w", err)
		}
	}

	return m, nil
}

func (m *Market) replay() error {
	listings, err := m.store.LoadListings()
	if err != nil {
		return err
	}
	m.listings = listings

	balances, err := m.store.LoadBalances()
	if err != nil {
		return err
	}
	for addr, amount := range balances {
		m.escrow.Restore(addr, amount)
	}

	last, ok, err := m.store.LastEvent()
	if err != nil {
		return err
	}
	if ok {
		m.events.Restore(last)
	}

	m.log.Infow("state_replayed",
		"listings", len(m.listings),
		"balances", len(balances),
		"next_event_seq", m.events.seq)
	return nil
}

// SubscribeEvents registers a notification callback. Register subscribers
// before serving traffic; callbacks run under the market lock.
func (m *Market) SubscribeEvents(fn func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events.Subscribe(fn)
}

// ==============================
// Core operations
// ==============================

// CreateListing escrows amount of asset from the seller and appends a new
// active listing. The pull happens before any state change: on gateway
// failure nothing is appended.
func (m *Market) CreateListing(seller, asset common.Address, amount, price int64) (uint64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidAmount, amount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.gateway.Pull(seller, asset, amount); err != nil {
		return 0, fmt.Errorf("%w: escrow pull: %v", ErrTransferFailed, err)
	}

	listing := &Listing{
		ID:     uint64(len(m.listings)),
		Seller: seller,
		Asset:  asset,
		Amount: amount,
		Price:  price,
		Active: true,
	}
	m.listings = append(m.listings, listing)

	ev, err := m.events.Append(EventItemListed, m.clock.Now().UnixMilli(), ItemListed{
		ListingID: listing.ID,
		Seller:    seller,
		Asset:     asset,
		Amount:    amount,
		Price:     price,
	})
	if err != nil {
		return 0, err
	}

	if err := m.persist(listing, nil, 0, ev); err != nil {
		return 0, err
	}

	m.log.Infow("listing_created",
		"id", listing.ID, "seller", seller.Hex(), "asset", asset.Hex(),
		"amount", amount, "price", price)
	return listing.ID, nil
}

// Purchase consumes a listing: it deactivates the listing, pushes the
// escrowed asset to the buyer, and credits the price to the seller's escrow
// balance. The deactivation is applied before the push
// (checks-effects-interactions); if the push fails the deactivation is
// rolled back and the whole operation aborts. Returns a snapshot of the
// consumed listing.
func (m *Market) Purchase(id uint64, buyer common.Address, payment int64) (Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id >= uint64(len(m.listings)) {
		return Listing{}, fmt.Errorf("%w: id %d, count %d", ErrListingNotFound, id, len(m.listings))
	}

	listing := m.listings[id]
	if !listing.Active {
		return Listing{}, fmt.Errorf("%w: id %d", ErrListingInactive, id)
	}
	if payment < listing.Price {
		return Listing{}, fmt.Errorf("%w: offered %d, price %d", ErrInsufficientPayment, payment, listing.Price)
	}

	listing.Active = false

	if err := m.gateway.Push(buyer, listing.Asset, listing.Amount); err != nil {
		listing.Active = true
		return Listing{}, fmt.Errorf("%w: asset push: %v", ErrTransferFailed, err)
	}

	m.escrow.Credit(listing.Seller, listing.Price)

	ev, err := m.events.Append(EventItemPurchased, m.clock.Now().UnixMilli(), ItemPurchased{
		ListingID: listing.ID,
		Buyer:     buyer,
		Seller:    listing.Seller,
		Asset:     listing.Asset,
		Amount:    listing.Amount,
	})
	if err != nil {
		return Listing{}, err
	}

	if err := m.persist(listing, &listing.Seller, m.escrow.Balance(listing.Seller), ev); err != nil {
		return Listing{}, err
	}

	m.log.Infow("listing_purchased",
		"id", listing.ID, "buyer", buyer.Hex(), "seller", listing.Seller.Hex(),
		"amount", listing.Amount, "credited", listing.Price)
	return *listing, nil
}

// Withdraw zeroes the seller's escrow balance, then pushes the settlement
// currency out. The zeroing is the durable side effect: it is persisted
// before the payout is attempted, and if the payout fails the balance is
// NOT restored. Callers must treat a TransferFailed here as a lost payout
// to be settled out of band, not as a retryable state.
func (m *Market) Withdraw(seller common.Address) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	amount, err := m.escrow.Withdraw(seller)
	if err != nil {
		return 0, err
	}

	if m.store != nil {
		if err := m.store.SaveBalance(seller, 0); err != nil {
			// Zeroing must be durable before the payout goes out.
			m.escrow.Restore(seller, amount)
			return 0, err
		}
	}

	if err := m.gateway.Push(seller, m.settlement, amount); err != nil {
		m.log.Errorw("withdraw_payout_failed",
			"seller", seller.Hex(), "amount", amount, "err", err)
		return 0, fmt.Errorf("%w: settlement push: %v", ErrTransferFailed, err)
	}

	ev, err := m.events.Append(EventFundsWithdrawn, m.clock.Now().UnixMilli(), FundsWithdrawn{
		Seller: seller,
		Amount: amount,
	})
	if err != nil {
		return amount, err
	}
	if m.store != nil {
		if err := m.store.SaveEvent(ev); err != nil {
			return amount, err
		}
	}

	m.log.Infow("funds_withdrawn", "seller", seller.Hex(), "amount", amount)
	return amount, nil
}

// ActiveListings returns a snapshot of listings with Active == true in
// ascending id order. Cost is proportional to total listings ever created;
// acceptable for a display accessor.
func (m *Market) ActiveListings() []Listing {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := make([]Listing, 0)
	for _, l := range m.listings {
		if l.Active {
			active = append(active, *l)
		}
	}
	return active
}

// Listing returns a snapshot of one listing, active or not.
func (m *Market) Listing(id uint64) (Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if id >= uint64(len(m.listings)) {
		return Listing{}, fmt.Errorf("%w: id %d, count %d", ErrListingNotFound, id, len(m.listings))
	}
	return *m.listings[id], nil
}

// Count returns the total number of listings ever created.
func (m *Market) Count() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.listings))
}

// EscrowBalance returns the seller's accrued settlement balance.
func (m *Market) EscrowBalance(seller common.Address) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.escrow.Balance(seller)
}

// ==============================
// Signature-authorized operations
// ==============================

// ListItem is CreateListing authorized by a signed request. The request's
// participant is the seller.
func (m *Market) ListItem(req *auth.Request, asset common.Address, amount, price int64) (uint64, error) {
	if err := m.verifier.Verify(req); err != nil {
		return 0, err
	}
	return m.CreateListing(req.Participant, asset, amount, price)
}

// PurchaseItem is Purchase authorized by a signed request. The request's
// participant is the buyer.
func (m *Market) PurchaseItem(req *auth.Request, id uint64, payment int64) (Listing, error) {
	if err := m.verifier.Verify(req); err != nil {
		return Listing{}, err
	}
	return m.Purchase(id, req.Participant, payment)
}

// WithdrawFunds is Withdraw authorized by a signed request. The request's
// participant is the seller.
func (m *Market) WithdrawFunds(req *auth.Request) (int64, error) {
	if err := m.verifier.Verify(req); err != nil {
		return 0, err
	}
	return m.Withdraw(req.Participant)
}

// AuthorizeWithSignature exposes the verifier's outcome as a boolean.
// Read-only; may run concurrently with writers.
func (m *Market) AuthorizeWithSignature(participant common.Address, nonce uint64, deadline int64, signature []byte) bool {
	return m.verifier.Authorize(participant, nonce, deadline, signature)
}

// persist writes one operation's records atomically. balanceAddr is nil
// when the operation touched no balance.
func (m *Market) persist(listing *Listing, balanceAddr *common.Address, balance int64, ev Event) error {
	if m.store == nil {
		return nil
	}

	batch := m.store.NewBatch()
	defer batch.Close()

	if listing != nil {
		if err := batch.SaveListing(listing); err != nil {
			return fmt.Errorf("failed to batch listing: %w", err)
		}
	}
	if balanceAddr != nil {
		if err := batch.SaveBalance(*balanceAddr, balance); err != nil {
			return fmt.Errorf("failed to batch balance: %w", err)
		}
	}
	if err := batch.SaveEvent(ev); err != nil {
		return fmt.Errorf("failed to batch event: %w", err)
	}

	return batch.Commit()
}
