package assets

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/standardbounties/standardbounties/pkg/types"
)

var (
	alice  = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	escrow = common.HexToAddress("0x00000000000000000000000000000000000e5c0")
	token  = common.HexToAddress("0x000000000000000000000000000000000000f00d")
)

func TestMintAndBalance(t *testing.T) {
	l := NewLedger()

	l.Mint(types.NativeToken, alice, big.NewInt(100))
	if got := l.BalanceOf(types.NativeToken, alice).Int64(); got != 100 {
		t.Errorf("balance = %d, want 100", got)
	}
	if got := l.NativeBalanceOf(alice).Int64(); got != 100 {
		t.Errorf("native balance = %d, want 100", got)
	}
	if got := l.BalanceOf(token, alice).Int64(); got != 0 {
		t.Errorf("token balance = %d, want 0", got)
	}
}

func TestTransfer(t *testing.T) {
	l := NewLedger()
	l.Mint(types.NativeToken, alice, big.NewInt(100))

	if err := l.Transfer(types.NativeToken, alice, bob, big.NewInt(60)); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if got := l.BalanceOf(types.NativeToken, alice).Int64(); got != 40 {
		t.Errorf("alice balance = %d, want 40", got)
	}
	if got := l.BalanceOf(types.NativeToken, bob).Int64(); got != 60 {
		t.Errorf("bob balance = %d, want 60", got)
	}
}

func TestTransferInsufficientFunds(t *testing.T) {
	l := NewLedger()
	l.Mint(types.NativeToken, alice, big.NewInt(10))

	err := l.Transfer(types.NativeToken, alice, bob, big.NewInt(11))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("err = %v, want ErrInsufficientFunds", err)
	}
	if got := l.BalanceOf(types.NativeToken, alice).Int64(); got != 10 {
		t.Errorf("failed transfer changed balance to %d", got)
	}
}

func TestGuardedReceiverRejectsDirectTransfer(t *testing.T) {
	l := NewLedger()
	l.Mint(types.NativeToken, alice, big.NewInt(100))
	l.GuardReceiver(escrow)

	err := l.Transfer(types.NativeToken, alice, escrow, big.NewInt(50))
	if !errors.Is(err, ErrDirectTransferRejected) {
		t.Errorf("err = %v, want ErrDirectTransferRejected", err)
	}
	if got := l.BalanceOf(types.NativeToken, escrow).Int64(); got != 0 {
		t.Errorf("escrow balance = %d, want 0", got)
	}

	// The mediated path still works
	if err := l.EscrowDeposit(types.NativeToken, alice, escrow, big.NewInt(50)); err != nil {
		t.Fatalf("escrow deposit failed: %v", err)
	}
	if got := l.BalanceOf(types.NativeToken, escrow).Int64(); got != 50 {
		t.Errorf("escrow balance = %d, want 50", got)
	}
}

func TestApproveAndEscrowDepositFrom(t *testing.T) {
	l := NewLedger()
	l.Mint(token, alice, big.NewInt(100))
	l.GuardReceiver(escrow)

	// Without allowance the pull fails
	err := l.EscrowDepositFrom(token, alice, escrow, big.NewInt(30))
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Errorf("err = %v, want ErrInsufficientAllowance", err)
	}

	l.Approve(token, alice, escrow, big.NewInt(50))
	if got := l.Allowance(token, alice, escrow).Int64(); got != 50 {
		t.Errorf("allowance = %d, want 50", got)
	}

	if err := l.EscrowDepositFrom(token, alice, escrow, big.NewInt(30)); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if got := l.BalanceOf(token, escrow).Int64(); got != 30 {
		t.Errorf("escrow balance = %d, want 30", got)
	}
	if got := l.Allowance(token, alice, escrow).Int64(); got != 20 {
		t.Errorf("allowance after pull = %d, want 20", got)
	}

	// Remaining allowance cannot exceed the approved amount
	err = l.EscrowDepositFrom(token, alice, escrow, big.NewInt(21))
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Errorf("err = %v, want ErrInsufficientAllowance", err)
	}
}

func TestPayoutBatchAllOrNothing(t *testing.T) {
	l := NewLedger()
	l.GuardReceiver(escrow)
	l.Mint(types.NativeToken, escrow, big.NewInt(100))

	// Total exceeds the escrow balance, nothing moves
	err := l.PayoutBatch(types.NativeToken, escrow, []Payment{
		{To: alice, Amount: big.NewInt(80)},
		{To: bob, Amount: big.NewInt(30)},
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("err = %v, want ErrInsufficientFunds", err)
	}
	if got := l.BalanceOf(types.NativeToken, alice).Int64(); got != 0 {
		t.Errorf("alice received %d from failed batch", got)
	}
	if got := l.BalanceOf(types.NativeToken, escrow).Int64(); got != 100 {
		t.Errorf("escrow balance = %d, want 100", got)
	}

	if err := l.PayoutBatch(types.NativeToken, escrow, []Payment{
		{To: alice, Amount: big.NewInt(70)},
		{To: bob, Amount: big.NewInt(30)},
	}); err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if got := l.BalanceOf(types.NativeToken, alice).Int64(); got != 70 {
		t.Errorf("alice balance = %d, want 70", got)
	}
	if got := l.BalanceOf(types.NativeToken, bob).Int64(); got != 30 {
		t.Errorf("bob balance = %d, want 30", got)
	}
	if got := l.BalanceOf(types.NativeToken, escrow).Int64(); got != 0 {
		t.Errorf("escrow balance = %d, want 0", got)
	}
}

func TestTransferHookFiresAfterSettlement(t *testing.T) {
	l := NewLedger()
	l.GuardReceiver(escrow)
	l.Mint(types.NativeToken, escrow, big.NewInt(100))

	var seen []int64
	l.SetTransferHook(func(asset, from, to common.Address, amount *big.Int) {
		// The recipient's balance is already settled when the hook runs
		seen = append(seen, l.BalanceOf(asset, to).Int64())
	})

	if err := l.PayoutBatch(types.NativeToken, escrow, []Payment{
		{To: alice, Amount: big.NewInt(60)},
		{To: bob, Amount: big.NewInt(40)},
	}); err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if len(seen) != 2 || seen[0] != 60 || seen[1] != 40 {
		t.Errorf("hook observed %v, want [60 40]", seen)
	}
}

func TestBalanceOfReturnsCopy(t *testing.T) {
	l := NewLedger()
	l.Mint(types.NativeToken, alice, big.NewInt(100))

	bal := l.BalanceOf(types.NativeToken, alice)
	bal.SetInt64(0)
	if got := l.BalanceOf(types.NativeToken, alice).Int64(); got != 100 {
		t.Errorf("ledger balance mutated through returned value: %d", got)
	}
}
