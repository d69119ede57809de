package market

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	testSeller  = common.HexToAddress("0x0000000000000000000000000000000000000A01")
	testBuyer   = common.HexToAddress("0x0000000000000000000000000000000000000B01")
	testAsset   = common.HexToAddress("0x0000000000000000000000000000000000000C01")
	testAsset2  = common.HexToAddress("0x0000000000000000000000000000000000000C02")
	testCoin    = common.HexToAddress("0x0000000000000000000000000000000000000001")
	testCustody = common.HexToAddress("0x00000000000000000000000000000000000Ba2a0")
)

// faultGateway wraps a Bank and fails Pull or Push on demand.
type faultGateway struct {
	*Bank
	failPull bool
	failPush bool
}

func (g *faultGateway) Pull(from, asset common.Address, amount int64) error {
	if g.failPull {
		return fmt.Errorf("injected pull failure")
	}
	return g.Bank.Pull(from, asset, amount)
}

func (g *faultGateway) Push(to, asset common.Address, amount int64) error {
	if g.failPush {
		return fmt.Errorf("injected push failure")
	}
	return g.Bank.Push(to, asset, amount)
}

func newTestMarket(t *testing.T) (*Market, *faultGateway) {
	t.Helper()

	bank := NewBank(testCustody)
	// Sellers hold the traded asset, custody holds settlement to pay out.
	if err := bank.Mint(testSeller, testAsset, 1_000_000); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := bank.Mint(testSeller, testAsset2, 1_000_000); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := bank.Mint(testCustody, testCoin, 1_000_000); err != nil {
		t.Fatalf("mint: %v", err)
	}

	gw := &faultGateway{Bank: bank}
	m, err := New(Config{
		Gateway:    gw,
		Settlement: testCoin,
	})
	if err != nil {
		t.Fatalf("failed to create market: %v", err)
	}
	return m, gw
}

func TestCreateListing(t *testing.T) {
	m, gw := newTestMarket(t)

	id, err := m.CreateListing(testSeller, testAsset, 1000, 8)
	if err != nil {
		t.Fatalf("failed to create listing: %v", err)
	}
	if id != 0 {
		t.Errorf("first listing id = %d, want 0", id)
	}

	// Escrow moved the asset into custody
	if got := gw.BalanceOf(testSeller, testAsset); got != 999_000 {
		t.Errorf("seller asset balance = %d, want 999000", got)
	}
	if got := gw.BalanceOf(testCustody, testAsset); got != 1000 {
		t.Errorf("custody asset balance = %d, want 1000", got)
	}

	active := m.ActiveListings()
	if len(active) != 1 {
		t.Fatalf("active listings = %d, want 1", len(active))
	}
	l := active[0]
	if l.ID != 0 || l.Seller != testSeller || l.Asset != testAsset ||
		l.Amount != 1000 || l.Price != 8 || !l.Active {
		t.Errorf("unexpected listing snapshot: %+v", l)
	}
}

func TestCreateListing_InvalidAmount(t *testing.T) {
	m, _ := newTestMarket(t)

	for _, amount := range []int64{0, -5} {
		if _, err := m.CreateListing(testSeller, testAsset, amount, 8); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	if m.Count() != 0 {
		t.Errorf("count = %d after rejected listings, want 0", m.Count())
	}
}

func TestCreateListing_PullFailure(t *testing.T) {
	m, gw := newTestMarket(t)

	gw.failPull = true
	_, err := m.CreateListing(testSeller, testAsset, 1000, 8)
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}

	// Nothing appended: the next listing still gets id 0.
	if m.Count() != 0 {
		t.Errorf("count = %d after failed pull, want 0", m.Count())
	}
	gw.failPull = false
	id, err := m.CreateListing(testSeller, testAsset, 1000, 8)
	if err != nil {
		t.Fatalf("failed to create listing: %v", err)
	}
	if id != 0 {
		t.Errorf("listing id after failed attempt = %d, want 0", id)
	}
}

func TestPurchase(t *testing.T) {
	m, gw := newTestMarket(t)

	id, _ := m.CreateListing(testSeller, testAsset, 1000, 8)

	bought, err := m.Purchase(id, testBuyer, 8)
	if err != nil {
		t.Fatalf("failed to purchase: %v", err)
	}
	if bought.Seller != testSeller || bought.Asset != testAsset || bought.Amount != 1000 {
		t.Errorf("unexpected purchase receipt: %+v", bought)
	}

	// Asset delivered to the buyer, price credited to seller's escrow
	if got := gw.BalanceOf(testBuyer, testAsset); got != 1000 {
		t.Errorf("buyer asset balance = %d, want 1000", got)
	}
	if got := m.EscrowBalance(testSeller); got != 8 {
		t.Errorf("seller escrow balance = %d, want 8", got)
	}

	l, err := m.Listing(id)
	if err != nil {
		t.Fatalf("failed to load listing: %v", err)
	}
	if l.Active {
		t.Error("listing still active after purchase")
	}
	if len(m.ActiveListings()) != 0 {
		t.Error("purchased listing still visible in active set")
	}
}

func TestPurchase_Overpayment(t *testing.T) {
	m, _ := newTestMarket(t)

	id, _ := m.CreateListing(testSeller, testAsset, 1000, 8)
	if _, err := m.Purchase(id, testBuyer, 20); err != nil {
		t.Fatalf("failed to purchase with overpayment: %v", err)
	}

	// Only the listed price is credited, not the offer.
	if got := m.EscrowBalance(testSeller); got != 8 {
		t.Errorf("seller escrow balance = %d, want 8", got)
	}
}

func TestPurchase_InsufficientPayment(t *testing.T) {
	m, _ := newTestMarket(t)

	id, _ := m.CreateListing(testSeller, testAsset, 1000, 8)
	if _, err := m.Purchase(id, testBuyer, 7); !errors.Is(err, ErrInsufficientPayment) {
		t.Fatalf("expected ErrInsufficientPayment, got %v", err)
	}

	l, _ := m.Listing(id)
	if !l.Active {
		t.Error("listing deactivated by a rejected purchase")
	}
	if got := m.EscrowBalance(testSeller); got != 0 {
		t.Errorf("seller escrow balance = %d, want 0", got)
	}
}

func TestPurchase_NotFound(t *testing.T) {
	m, _ := newTestMarket(t)

	if _, err := m.Purchase(0, testBuyer, 8); !errors.Is(err, ErrListingNotFound) {
		t.Errorf("expected ErrListingNotFound on empty ledger, got %v", err)
	}

	m.CreateListing(testSeller, testAsset, 1000, 8)
	if _, err := m.Purchase(7, testBuyer, 8); !errors.Is(err, ErrListingNotFound) {
		t.Errorf("expected ErrListingNotFound for id 7, got %v", err)
	}
}

func TestPurchase_Inactive(t *testing.T) {
	m, _ := newTestMarket(t)

	id, _ := m.CreateListing(testSeller, testAsset, 1000, 8)
	if _, err := m.Purchase(id, testBuyer, 8); err != nil {
		t.Fatalf("failed to purchase: %v", err)
	}

	other := common.HexToAddress("0x0000000000000000000000000000000000000B02")
	if _, err := m.Purchase(id, other, 8); !errors.Is(err, ErrListingInactive) {
		t.Errorf("expected ErrListingInactive on second purchase, got %v", err)
	}

	// The first buyer keeps the asset; the seller is credited exactly once.
	if got := m.EscrowBalance(testSeller); got != 8 {
		t.Errorf("seller escrow balance = %d, want 8", got)
	}
}

func TestPurchase_PushFailureRestoresListing(t *testing.T) {
	m, gw := newTestMarket(t)

	id, _ := m.CreateListing(testSeller, testAsset, 1000, 8)

	gw.failPush = true
	if _, err := m.Purchase(id, testBuyer, 8); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}

	// Rolled back: listing remains purchasable, seller not credited.
	l, _ := m.Listing(id)
	if !l.Active {
		t.Error("listing not reactivated after failed push")
	}
	if got := m.EscrowBalance(testSeller); got != 0 {
		t.Errorf("seller escrow balance = %d, want 0", got)
	}

	gw.failPush = false
	if _, err := m.Purchase(id, testBuyer, 8); err != nil {
		t.Fatalf("retry after transient push failure: %v", err)
	}
}

func TestPurchase_ZeroPrice(t *testing.T) {
	m, gw := newTestMarket(t)

	id, _ := m.CreateListing(testSeller, testAsset, 500, 0)
	if _, err := m.Purchase(id, testBuyer, 0); err != nil {
		t.Fatalf("failed to purchase zero-price listing: %v", err)
	}

	if got := gw.BalanceOf(testBuyer, testAsset); got != 500 {
		t.Errorf("buyer asset balance = %d, want 500", got)
	}
	// Nothing accrues, so there is nothing to withdraw.
	if _, err := m.Withdraw(testSeller); !errors.Is(err, ErrNoFunds) {
		t.Errorf("expected ErrNoFunds after zero-price sale, got %v", err)
	}
}

func TestWithdraw(t *testing.T) {
	m, gw := newTestMarket(t)

	id, _ := m.CreateListing(testSeller, testAsset, 1000, 8)
	m.Purchase(id, testBuyer, 8)

	amount, err := m.Withdraw(testSeller)
	if err != nil {
		t.Fatalf("failed to withdraw: %v", err)
	}
	if amount != 8 {
		t.Errorf("withdrawn = %d, want 8", amount)
	}
	if got := gw.BalanceOf(testSeller, testCoin); got != 8 {
		t.Errorf("seller settlement balance = %d, want 8", got)
	}
	if got := m.EscrowBalance(testSeller); got != 0 {
		t.Errorf("escrow balance after withdraw = %d, want 0", got)
	}

	// Second withdrawal finds nothing.
	if _, err := m.Withdraw(testSeller); !errors.Is(err, ErrNoFunds) {
		t.Errorf("expected ErrNoFunds on second withdraw, got %v", err)
	}
}

func TestWithdraw_NoFunds(t *testing.T) {
	m, _ := newTestMarket(t)

	if _, err := m.Withdraw(testSeller); !errors.Is(err, ErrNoFunds) {
		t.Errorf("expected ErrNoFunds, got %v", err)
	}
}

func TestWithdraw_PayoutFailureKeepsBalanceZero(t *testing.T) {
	m, gw := newTestMarket(t)

	id, _ := m.CreateListing(testSeller, testAsset, 1000, 8)
	m.Purchase(id, testBuyer, 8)

	gw.failPush = true
	if _, err := m.Withdraw(testSeller); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}

	// The zeroing is not rolled back on payout failure.
	if got := m.EscrowBalance(testSeller); got != 0 {
		t.Errorf("escrow balance after failed payout = %d, want 0", got)
	}
	gw.failPush = false
	if _, err := m.Withdraw(testSeller); !errors.Is(err, ErrNoFunds) {
		t.Errorf("expected ErrNoFunds after failed payout consumed the balance, got %v", err)
	}
}

func TestActiveListings_Snapshot(t *testing.T) {
	m, _ := newTestMarket(t)

	m.CreateListing(testSeller, testAsset, 1000, 8)
	m.CreateListing(testSeller, testAsset2, 50, 3)
	m.Purchase(0, testBuyer, 8)

	active := m.ActiveListings()
	if len(active) != 1 {
		t.Fatalf("active listings = %d, want 1", len(active))
	}
	if active[0].ID != 1 || active[0].Asset != testAsset2 {
		t.Errorf("unexpected surviving listing: %+v", active[0])
	}

	// Snapshot independence: mutating the copy does not touch the ledger.
	active[0].Active = false
	l, _ := m.Listing(1)
	if !l.Active {
		t.Error("snapshot mutation leaked into ledger state")
	}
}

func TestListingIDsAreDense(t *testing.T) {
	m, _ := newTestMarket(t)

	for i := 0; i < 5; i++ {
		id, err := m.CreateListing(testSeller, testAsset, 10, 1)
		if err != nil {
			t.Fatalf("failed to create listing %d: %v", i, err)
		}
		if id != uint64(i) {
			t.Errorf("listing id = %d, want %d", id, i)
		}
	}
	if m.Count() != 5 {
		t.Errorf("count = %d, want 5", m.Count())
	}
}

func TestSellerAccruesAcrossSales(t *testing.T) {
	m, _ := newTestMarket(t)

	id0, _ := m.CreateListing(testSeller, testAsset, 100, 8)
	id1, _ := m.CreateListing(testSeller, testAsset2, 200, 5)
	m.Purchase(id0, testBuyer, 8)
	m.Purchase(id1, testBuyer, 5)

	if got := m.EscrowBalance(testSeller); got != 13 {
		t.Errorf("seller escrow balance = %d, want 13", got)
	}
	amount, err := m.Withdraw(testSeller)
	if err != nil {
		t.Fatalf("failed to withdraw: %v", err)
	}
	if amount != 13 {
		t.Errorf("withdrawn = %d, want 13", amount)
	}
}

func TestEventStream(t *testing.T) {
	m, _ := newTestMarket(t)

	var events []Event
	m.SubscribeEvents(func(ev Event) { events = append(events, ev) })

	id, _ := m.CreateListing(testSeller, testAsset, 1000, 8)
	m.Purchase(id, testBuyer, 8)
	m.Withdraw(testSeller)

	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	wantTypes := []string{EventItemListed, EventItemPurchased, EventFundsWithdrawn}
	for i, ev := range events {
		if ev.Type != wantTypes[i] {
			t.Errorf("event %d type = %s, want %s", i, ev.Type, wantTypes[i])
		}
		if ev.Seq != uint64(i) {
			t.Errorf("event %d seq = %d, want %d", i, ev.Seq, i)
		}
	}
	if err := VerifyChain(events); err != nil {
		t.Errorf("emitted events break the hash chain: %v", err)
	}
}

func TestFailedOperationsEmitNoEvents(t *testing.T) {
	m, gw := newTestMarket(t)

	var count int
	m.SubscribeEvents(func(Event) { count++ })

	gw.failPull = true
	m.CreateListing(testSeller, testAsset, 1000, 8)
	gw.failPull = false

	id, _ := m.CreateListing(testSeller, testAsset, 1000, 8)
	m.Purchase(id, testBuyer, 7) // insufficient payment

	gw.failPush = true
	m.Purchase(id, testBuyer, 8) // push failure
	gw.failPush = false

	if count != 1 {
		t.Errorf("events after one success and three failures = %d, want 1", count)
	}
}
