package bounty

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/standardbounties/standardbounties/internal/assets"
	"github.com/standardbounties/standardbounties/internal/fees"
	"github.com/standardbounties/standardbounties/pkg/types"
)

// Instance is one independently-stateful bounty ledger. All of its logic
// lives in the shared Implementation; the instance only holds storage
// (bounties, fulfillments, contribution tables, configuration) and forwards
// every operation into the implementation with itself as the state handle.
// Two instances sharing one implementation never observe each other's state.
type Instance struct {
	addr common.Address
	impl *Implementation
	bank *assets.Ledger
	log  *EventLog

	// Configuration, single-writer (owner only).
	owner        common.Address
	feeRate      uint16
	feeRecipient common.Address
	paused       bool

	// Bounty storage. Slices are indexed by id; ids are monotonically
	// increasing and never reused. Entities persist for the life of the
	// instance.
	bounties      []*types.Bounty
	fulfillments  [][]*types.Fulfillment
	contributions []map[common.Address]*big.Int
	funders       [][]common.Address

	// mu serializes operations; busy marks the interaction window during
	// which external transfers run with mu released. A call entering while
	// busy is, by construction, a reentrant call from a transfer callee.
	mu   sync.Mutex
	busy bool
}

// NewInstance creates an instance bound to a shared implementation and an
// asset ledger. The instance address is registered with the ledger as a
// guarded escrow account so direct transfers to it are rejected.
func NewInstance(addr, owner common.Address, impl *Implementation, bank *assets.Ledger) *Instance {
	in := &Instance{
		addr:         addr,
		impl:         impl,
		bank:         bank,
		log:          NewEventLog(addr),
		owner:        owner,
		feeRate:      fees.DefaultFeeRate,
		feeRecipient: owner,
	}
	bank.GuardReceiver(addr)
	return in
}

// begin acquires the instance lock and rejects calls arriving inside an
// interaction window.
func (in *Instance) begin() error {
	in.mu.Lock()
	if in.busy {
		in.mu.Unlock()
		return ErrReentrantCall
	}
	return nil
}

func (in *Instance) end() {
	in.mu.Unlock()
}

// payout runs an external transfer with the state lock released and the
// instance marked busy, so that a callee re-entering a public operation
// fails fast instead of observing half-settled state. State effects must be
// fully committed before calling; the caller rolls them back if the transfer
// fails. Called with mu held, returns with mu held.
func (in *Instance) payout(asset common.Address, payments []assets.Payment) error {
	in.busy = true
	in.mu.Unlock()
	err := in.bank.PayoutBatch(asset, in.addr, payments)
	in.mu.Lock()
	in.busy = false
	return err
}

// bounty returns the stored bounty for an id. Caller must hold mu.
func (in *Instance) bounty(id uint64) (*types.Bounty, error) {
	if id >= uint64(len(in.bounties)) {
		return nil, fmt.Errorf("bounty %d: %w", id, ErrInvalidBounty)
	}
	return in.bounties[id], nil
}

// fulfillment returns the stored fulfillment for a (bounty, fulfillment) id
// pair. Caller must hold mu.
func (in *Instance) fulfillment(bountyID, fulfillmentID uint64) (*types.Fulfillment, error) {
	if bountyID >= uint64(len(in.fulfillments)) {
		return nil, fmt.Errorf("bounty %d: %w", bountyID, ErrInvalidBounty)
	}
	fs := in.fulfillments[bountyID]
	if fulfillmentID >= uint64(len(fs)) {
		return nil, fmt.Errorf("fulfillment %d of bounty %d: %w", fulfillmentID, bountyID, ErrInvalidFulfillment)
	}
	return fs[fulfillmentID], nil
}

// ─── Mutating operations (forwarded into the shared implementation) ─────────

// InitializeBounty creates a new bounty in draft state and returns its id.
func (in *Instance) InitializeBounty(caller, issuer, arbiter common.Address, data string, deadline time.Time) (uint64, error) {
	return in.impl.initializeBounty(in, caller, issuer, arbiter, data, deadline)
}

// FundWithNative funds a bounty with native currency from the caller.
func (in *Instance) FundWithNative(caller common.Address, bountyID uint64, amount *big.Int) error {
	return in.impl.fund(in, caller, bountyID, types.NativeToken, amount, true)
}

// FundWithToken funds a bounty with an ERC20-style token. The caller must
// have approved the instance address for at least the funded amount.
func (in *Instance) FundWithToken(caller common.Address, bountyID uint64, token common.Address, amount *big.Int) error {
	return in.impl.fund(in, caller, bountyID, token, amount, false)
}

// FulfillBounty submits work against an active bounty and returns the
// fulfillment id.
func (in *Instance) FulfillBounty(caller common.Address, bountyID uint64, data string) (uint64, error) {
	return in.impl.fulfillBounty(in, caller, bountyID, data)
}

// UpdateFulfillment replaces the data of a pending fulfillment. Only the
// original fulfiller may update.
func (in *Instance) UpdateFulfillment(caller common.Address, bountyID, fulfillmentID uint64, newData string) error {
	return in.impl.updateFulfillment(in, caller, bountyID, fulfillmentID, newData)
}

// AcceptFulfillment approves a pending fulfillment and pays out amount,
// minus the platform fee, to the fulfiller.
func (in *Instance) AcceptFulfillment(caller common.Address, bountyID, fulfillmentID uint64, amount *big.Int) error {
	return in.impl.acceptFulfillment(in, caller, bountyID, fulfillmentID, amount)
}

// RejectFulfillment rejects a pending fulfillment without touching the
// bounty's balance or state.
func (in *Instance) RejectFulfillment(caller common.Address, bountyID, fulfillmentID uint64) error {
	return in.impl.rejectFulfillment(in, caller, bountyID, fulfillmentID)
}

// CancelBounty cancels a bounty. Draft bounties cancel immediately; active
// bounties cancel only after their deadline, refunding every funder their
// recorded contribution.
func (in *Instance) CancelBounty(caller common.Address, bountyID uint64) error {
	return in.impl.cancelBounty(in, caller, bountyID)
}

// EmergencyWithdraw force-cancels an active bounty and sends its full
// balance to the owner. Administrative override, bypasses deadline checks.
func (in *Instance) EmergencyWithdraw(caller common.Address, bountyID uint64) error {
	return in.impl.emergencyWithdraw(in, caller, bountyID)
}

// Pause stops all mutating bounty operations. Owner only.
func (in *Instance) Pause(caller common.Address) error {
	return in.impl.setPaused(in, caller, true)
}

// Unpause resumes mutating bounty operations. Owner only.
func (in *Instance) Unpause(caller common.Address) error {
	return in.impl.setPaused(in, caller, false)
}

// SetPlatformFeeRate updates the payout fee rate in basis points. Owner only.
func (in *Instance) SetPlatformFeeRate(caller common.Address, rateBps uint16) error {
	return in.impl.setPlatformFeeRate(in, caller, rateBps)
}

// SetFeeRecipient updates the address receiving platform fees. Owner only.
func (in *Instance) SetFeeRecipient(caller, recipient common.Address) error {
	return in.impl.setFeeRecipient(in, caller, recipient)
}

// ─── Read-only queries ──────────────────────────────────────────────────────

// Address returns the instance's deterministic address.
func (in *Instance) Address() common.Address {
	return in.addr
}

// Owner returns the instance owner.
func (in *Instance) Owner() common.Address {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.owner
}

// PlatformFeeRate returns the current fee rate in basis points.
func (in *Instance) PlatformFeeRate() uint16 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.feeRate
}

// FeeRecipient returns the current fee recipient.
func (in *Instance) FeeRecipient() common.Address {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.feeRecipient
}

// Paused reports whether mutating operations are suspended.
func (in *Instance) Paused() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.paused
}

// BountyCount returns the number of bounties ever created on this instance.
func (in *Instance) BountyCount() uint64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return uint64(len(in.bounties))
}

// GetBounty returns a copy of the bounty with the given id.
func (in *Instance) GetBounty(bountyID uint64) (*types.Bounty, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	b, err := in.bounty(bountyID)
	if err != nil {
		return nil, err
	}
	return b.Clone(), nil
}

// GetFulfillment returns a copy of a fulfillment.
func (in *Instance) GetFulfillment(bountyID, fulfillmentID uint64) (*types.Fulfillment, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	f, err := in.fulfillment(bountyID, fulfillmentID)
	if err != nil {
		return nil, err
	}
	return f.Clone(), nil
}

// GetBountyFunders returns the ordered, deduplicated funder list for a bounty.
func (in *Instance) GetBountyFunders(bountyID uint64) ([]common.Address, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if _, err := in.bounty(bountyID); err != nil {
		return nil, err
	}
	out := make([]common.Address, len(in.funders[bountyID]))
	copy(out, in.funders[bountyID])
	return out, nil
}

// GetContribution returns the cumulative amount a funder has deposited into
// a bounty. Unknown funders have a zero contribution.
func (in *Instance) GetContribution(bountyID uint64, funder common.Address) (*big.Int, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if _, err := in.bounty(bountyID); err != nil {
		return nil, err
	}
	if c, ok := in.contributions[bountyID][funder]; ok {
		return new(big.Int).Set(c), nil
	}
	return big.NewInt(0), nil
}

// IsExpired reports whether the bounty's deadline has passed.
func (in *Instance) IsExpired(bountyID uint64) (bool, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	b, err := in.bounty(bountyID)
	if err != nil {
		return false, err
	}
	return !in.impl.now().Before(b.Deadline), nil
}

// CanFulfill reports whether the bounty currently accepts fulfillments.
func (in *Instance) CanFulfill(bountyID uint64) (bool, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	b, err := in.bounty(bountyID)
	if err != nil {
		return false, err
	}
	return b.State == types.BountyActive && in.impl.now().Before(b.Deadline), nil
}

// Events returns a snapshot of the instance's audit log.
func (in *Instance) Events() []types.Event {
	return in.log.Events()
}

// Subscribe registers for events appended after the call.
func (in *Instance) Subscribe(buffer int) (<-chan types.Event, func()) {
	return in.log.Subscribe(buffer)
}
