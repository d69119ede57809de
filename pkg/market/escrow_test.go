package market

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestEscrowLedger(t *testing.T) {
	e := NewEscrowLedger()
	seller := common.HexToAddress("0x0000000000000000000000000000000000000A01")

	if got := e.Balance(seller); got != 0 {
		t.Errorf("fresh balance = %d, want 0", got)
	}

	e.Credit(seller, 8)
	e.Credit(seller, 5)
	if got := e.Balance(seller); got != 13 {
		t.Errorf("balance after credits = %d, want 13", got)
	}

	// Non-positive credits are ignored
	e.Credit(seller, 0)
	e.Credit(seller, -10)
	if got := e.Balance(seller); got != 13 {
		t.Errorf("balance after no-op credits = %d, want 13", got)
	}

	amount, err := e.Withdraw(seller)
	if err != nil {
		t.Fatalf("failed to withdraw: %v", err)
	}
	if amount != 13 {
		t.Errorf("withdrawn = %d, want 13", amount)
	}
	if got := e.Balance(seller); got != 0 {
		t.Errorf("balance after withdraw = %d, want 0", got)
	}

	if _, err := e.Withdraw(seller); !errors.Is(err, ErrNoFunds) {
		t.Errorf("expected ErrNoFunds, got %v", err)
	}
}

func TestEscrowLedger_Restore(t *testing.T) {
	e := NewEscrowLedger()
	seller := common.HexToAddress("0x0000000000000000000000000000000000000A01")

	e.Restore(seller, 42)
	if got := e.Balance(seller); got != 42 {
		t.Errorf("restored balance = %d, want 42", got)
	}

	e.Restore(seller, 0)
	if got := e.Balance(seller); got != 42 {
		t.Errorf("zero restore overwrote balance: got %d, want 42", got)
	}
}
