package assets

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/standardbounties/standardbounties/pkg/types"
)

var (
	// ErrInsufficientFunds is returned when a debit exceeds the holder's balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientAllowance is returned when a delegated transfer exceeds
	// the approved allowance.
	ErrInsufficientAllowance = errors.New("insufficient allowance")

	// ErrDirectTransferRejected is returned when value is sent to an escrow
	// account outside the mediated deposit path.
	ErrDirectTransferRejected = errors.New("direct transfers to escrow accounts rejected")
)

// TransferHook is invoked synchronously after a credit has been applied.
// It exists so tests can simulate a recipient that calls back into the
// system mid-transfer.
type TransferHook func(asset common.Address, from, to common.Address, amount *big.Int)

// Ledger is an in-memory multi-asset balance ledger. The native currency is
// keyed by types.NativeToken; every other asset key is an ERC20-style token
// address with its own allowance table. Escrow accounts registered via
// GuardReceiver only accept value through the Escrow* deposit paths, never
// through Transfer.
type Ledger struct {
	balances   map[common.Address]map[common.Address]*big.Int                // asset -> holder -> balance
	allowances map[common.Address]map[common.Address]map[common.Address]*big.Int // asset -> owner -> spender -> allowance
	guarded    map[common.Address]bool
	hook       TransferHook
	mu         sync.RWMutex
}

// Payment is one leg of a batch payout.
type Payment struct {
	To     common.Address
	Amount *big.Int
}

// NewLedger creates an empty asset ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]map[common.Address]*big.Int),
		guarded:    make(map[common.Address]bool),
	}
}

// SetTransferHook installs a hook fired after every applied credit.
func (l *Ledger) SetTransferHook(h TransferHook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hook = h
}

// GuardReceiver marks an address as an escrow account that rejects direct
// transfers. Funding must go through EscrowDeposit/EscrowDepositFrom.
func (l *Ledger) GuardReceiver(addr common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.guarded[addr] = true
}

// Mint credits freshly created value to an address. Used to seed accounts.
func (l *Ledger) Mint(asset, to common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(asset, to, amount)
}

// BalanceOf returns the holder's balance for an asset.
func (l *Ledger) BalanceOf(asset, holder common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if holders, ok := l.balances[asset]; ok {
		if bal, ok := holders[holder]; ok {
			return new(big.Int).Set(bal)
		}
	}
	return big.NewInt(0)
}

// Approve authorizes a spender to move up to amount of the owner's asset.
func (l *Ledger) Approve(asset, owner, spender common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.allowances[asset]; !ok {
		l.allowances[asset] = make(map[common.Address]map[common.Address]*big.Int)
	}
	if _, ok := l.allowances[asset][owner]; !ok {
		l.allowances[asset][owner] = make(map[common.Address]*big.Int)
	}
	l.allowances[asset][owner][spender] = new(big.Int).Set(amount)
}

// Allowance returns the remaining approved amount for a spender.
func (l *Ledger) Allowance(asset, owner, spender common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if owners, ok := l.allowances[asset]; ok {
		if spenders, ok := owners[owner]; ok {
			if a, ok := spenders[spender]; ok {
				return new(big.Int).Set(a)
			}
		}
	}
	return big.NewInt(0)
}

// Transfer moves value between ordinary accounts. Transfers into guarded
// escrow accounts are rejected.
func (l *Ledger) Transfer(asset, from, to common.Address, amount *big.Int) error {
	l.mu.Lock()
	if l.guarded[to] {
		l.mu.Unlock()
		return fmt.Errorf("transfer %s to %s: %w", amount, to.Hex(), ErrDirectTransferRejected)
	}
	if err := l.debit(asset, from, amount); err != nil {
		l.mu.Unlock()
		return err
	}
	l.credit(asset, to, amount)
	hook := l.hook
	l.mu.Unlock()

	if hook != nil {
		hook(asset, from, to, amount)
	}
	return nil
}

// EscrowDeposit moves value from a funder into a guarded escrow account.
// This is the mediated path used by instance funding operations; native
// deposits come through here.
func (l *Ledger) EscrowDeposit(asset, from, escrow common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.debit(asset, from, amount); err != nil {
		return err
	}
	l.credit(asset, escrow, amount)
	return nil
}

// EscrowDepositFrom moves token value from an owner into a guarded escrow
// account on the escrow's own authority, consuming the allowance the owner
// granted to the escrow address. Mirrors ERC20 approve/transferFrom.
func (l *Ledger) EscrowDepositFrom(asset, owner, escrow common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	allowance := big.NewInt(0)
	if owners, ok := l.allowances[asset]; ok {
		if spenders, ok := owners[owner]; ok {
			if a, ok := spenders[escrow]; ok {
				allowance = a
			}
		}
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("escrow deposit of %s from %s: %w", amount, owner.Hex(), ErrInsufficientAllowance)
	}
	if err := l.debit(asset, owner, amount); err != nil {
		return err
	}
	l.allowances[asset][owner][escrow] = new(big.Int).Sub(allowance, amount)
	l.credit(asset, escrow, amount)
	return nil
}

// PayoutBatch debits the escrow account and credits every payment leg as a
// single all-or-nothing operation. Hooks fire only after every leg has been
// applied, so a failed batch leaves no partial state behind.
func (l *Ledger) PayoutBatch(asset, from common.Address, payments []Payment) error {
	total := big.NewInt(0)
	for _, p := range payments {
		total.Add(total, p.Amount)
	}

	l.mu.Lock()
	if err := l.debit(asset, from, total); err != nil {
		l.mu.Unlock()
		return err
	}
	for _, p := range payments {
		l.credit(asset, p.To, p.Amount)
	}
	hook := l.hook
	l.mu.Unlock()

	if hook != nil {
		for _, p := range payments {
			hook(asset, from, p.To, p.Amount)
		}
	}
	return nil
}

// Payout is a single-leg convenience wrapper around PayoutBatch.
func (l *Ledger) Payout(asset, from, to common.Address, amount *big.Int) error {
	return l.PayoutBatch(asset, from, []Payment{{To: to, Amount: amount}})
}

// NativeBalanceOf returns the holder's native-currency balance.
func (l *Ledger) NativeBalanceOf(holder common.Address) *big.Int {
	return l.BalanceOf(types.NativeToken, holder)
}

// debit removes value from a holder. Caller must hold l.mu.
func (l *Ledger) debit(asset, from common.Address, amount *big.Int) error {
	holders, ok := l.balances[asset]
	if !ok {
		return fmt.Errorf("debit %s from %s: %w", amount, from.Hex(), ErrInsufficientFunds)
	}
	bal, ok := holders[from]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("debit %s from %s: %w", amount, from.Hex(), ErrInsufficientFunds)
	}
	holders[from] = new(big.Int).Sub(bal, amount)
	return nil
}

// credit adds value to a holder. Caller must hold l.mu.
func (l *Ledger) credit(asset, to common.Address, amount *big.Int) {
	if _, ok := l.balances[asset]; !ok {
		l.balances[asset] = make(map[common.Address]*big.Int)
	}
	if bal, ok := l.balances[asset][to]; ok {
		l.balances[asset][to] = new(big.Int).Add(bal, amount)
	} else {
		l.balances[asset][to] = new(big.Int).Set(amount)
	}
}
