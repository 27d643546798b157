package bounty

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/standardbounties/standardbounties/internal/assets"
	"github.com/standardbounties/standardbounties/internal/fees"
	"github.com/standardbounties/standardbounties/internal/logging"
	"github.com/standardbounties/standardbounties/pkg/types"
)

// Version identifies the shared bounty logic. Its hash stands in for the
// implementation code hash in deterministic address derivation.
const Version = "standardbounties/v1"

const (
	// DefaultMinDeadline is the minimum distance of a bounty deadline from
	// the current time at creation.
	DefaultMinDeadline = time.Hour

	// DefaultMaxDeadline is the maximum distance of a bounty deadline from
	// the current time at creation.
	DefaultMaxDeadline = 365 * 24 * time.Hour

	// DefaultMaxDataSize is the maximum length in bytes of bounty and
	// fulfillment data.
	DefaultMaxDataSize = 64 * 1024
)

// Implementation is the shared bounty logic. It holds no per-instance state;
// every operation takes the instance whose storage it mutates. One
// implementation value backs any number of instances.
type Implementation struct {
	minDeadline time.Duration
	maxDeadline time.Duration
	maxDataSize int
	now         func() time.Time
}

// Params configures an Implementation. Zero values select the defaults.
type Params struct {
	MinDeadline time.Duration
	MaxDeadline time.Duration
	MaxDataSize int
	Clock       func() time.Time
}

// NewImplementation creates shared bounty logic with the given parameters.
func NewImplementation(p Params) *Implementation {
	imp := &Implementation{
		minDeadline: p.MinDeadline,
		maxDeadline: p.MaxDeadline,
		maxDataSize: p.MaxDataSize,
		now:         p.Clock,
	}
	if imp.minDeadline == 0 {
		imp.minDeadline = DefaultMinDeadline
	}
	if imp.maxDeadline == 0 {
		imp.maxDeadline = DefaultMaxDeadline
	}
	if imp.maxDataSize == 0 {
		imp.maxDataSize = DefaultMaxDataSize
	}
	if imp.now == nil {
		imp.now = time.Now
	}
	return imp
}

// Hash returns the implementation identity hash used for deterministic
// instance address derivation.
func (imp *Implementation) Hash() common.Hash {
	return common.BytesToHash(crypto.Keccak256([]byte(Version)))
}

func (imp *Implementation) initializeBounty(in *Instance, caller, issuer, arbiter common.Address, data string, deadline time.Time) (uint64, error) {
	if err := in.begin(); err != nil {
		return 0, err
	}
	defer in.end()

	if in.paused {
		return 0, ErrPaused
	}
	if issuer == (common.Address{}) {
		return 0, ErrInvalidIssuer
	}
	if issuer == arbiter {
		return 0, ErrIssuerIsArbiter
	}
	if data == "" {
		return 0, ErrEmptyData
	}
	if len(data) > imp.maxDataSize {
		return 0, ErrDataTooLarge
	}
	now := imp.now()
	if deadline.Before(now.Add(imp.minDeadline)) {
		return 0, ErrDeadlineTooSoon
	}
	if deadline.After(now.Add(imp.maxDeadline)) {
		return 0, ErrDeadlineTooFar
	}

	id := uint64(len(in.bounties))
	in.bounties = append(in.bounties, &types.Bounty{
		ID:           id,
		Issuer:       issuer,
		Arbiter:      arbiter,
		Data:         data,
		Token:        types.NativeToken,
		Balance:      big.NewInt(0),
		TotalFunding: big.NewInt(0),
		Deadline:     deadline,
		State:        types.BountyDraft,
	})
	in.fulfillments = append(in.fulfillments, nil)
	in.contributions = append(in.contributions, make(map[common.Address]*big.Int))
	in.funders = append(in.funders, nil)

	in.log.Append(types.Event{
		Type:     types.EventBountyInitialized,
		BountyID: id,
		Actor:    issuer,
		Data:     data,
		Time:     now,
	})
	logging.Info("bounty initialized",
		logging.Instance(in.addr), logging.BountyID(id),
		"issuer", issuer.Hex(), "arbiter", arbiter.Hex(),
		"deadline", deadline.UTC().Format(time.RFC3339))
	return id, nil
}

// fund handles both native and token funding. For native funding the asset
// is the native sentinel; for token funding the caller must have approved
// the instance address. The deposit is pulled before any bounty state is
// touched, so a failed deposit leaves no effect behind.
func (imp *Implementation) fund(in *Instance, caller common.Address, bountyID uint64, token common.Address, amount *big.Int, native bool) error {
	if err := in.begin(); err != nil {
		return err
	}
	defer in.end()

	if in.paused {
		return ErrPaused
	}
	b, err := in.bounty(bountyID)
	if err != nil {
		return err
	}
	if b.State.Terminal() {
		return fmt.Errorf("bounty %d is %s: %w", bountyID, b.State, ErrInvalidState)
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if !native && token == types.NativeToken {
		return ErrInvalidToken
	}
	if b.TotalFunding.Sign() > 0 && b.Token != token {
		return ErrTokenMismatch
	}

	if native {
		err = in.bank.EscrowDeposit(token, caller, in.addr, amount)
	} else {
		err = in.bank.EscrowDepositFrom(token, caller, in.addr, amount)
	}
	if err != nil {
		return fmt.Errorf("fund bounty %d: %w", bountyID, err)
	}

	b.Token = token
	b.Balance.Add(b.Balance, amount)
	b.TotalFunding.Add(b.TotalFunding, amount)
	if c, ok := in.contributions[bountyID][caller]; ok {
		c.Add(c, amount)
	} else {
		in.contributions[bountyID][caller] = new(big.Int).Set(amount)
		in.funders[bountyID] = append(in.funders[bountyID], caller)
	}

	now := imp.now()
	activated := false
	if b.State == types.BountyDraft {
		b.State = types.BountyActive
		activated = true
	}

	in.log.Append(types.Event{
		Type:     types.EventBountyFunded,
		BountyID: bountyID,
		Actor:    caller,
		Token:    token,
		Amount:   new(big.Int).Set(amount),
		Time:     now,
	})
	if activated {
		in.log.Append(types.Event{
			Type:     types.EventBountyActivated,
			BountyID: bountyID,
			Amount:   new(big.Int).Set(amount),
			Time:     now,
		})
	}
	logging.Info("bounty funded",
		logging.Instance(in.addr), logging.BountyID(bountyID),
		logging.Actor(caller), logging.Amount(amount),
		"token", token.Hex(), "activated", activated,
		"balance", b.Balance.String())
	return nil
}

func (imp *Implementation) fulfillBounty(in *Instance, caller common.Address, bountyID uint64, data string) (uint64, error) {
	if err := in.begin(); err != nil {
		return 0, err
	}
	defer in.end()

	if in.paused {
		return 0, ErrPaused
	}
	b, err := in.bounty(bountyID)
	if err != nil {
		return 0, err
	}
	if b.State != types.BountyActive {
		return 0, fmt.Errorf("bounty %d is %s: %w", bountyID, b.State, ErrInvalidState)
	}
	now := imp.now()
	if !now.Before(b.Deadline) {
		return 0, ErrDeadlinePassed
	}
	if data == "" {
		return 0, ErrEmptyData
	}
	if len(data) > imp.maxDataSize {
		return 0, ErrDataTooLarge
	}

	id := uint64(len(in.fulfillments[bountyID]))
	in.fulfillments[bountyID] = append(in.fulfillments[bountyID], &types.Fulfillment{
		ID:        id,
		BountyID:  bountyID,
		Fulfiller: caller,
		Data:      data,
		State:     types.FulfillmentPending,
	})
	b.FulfillmentCount++

	in.log.Append(types.Event{
		Type:          types.EventFulfillmentSubmitted,
		BountyID:      bountyID,
		FulfillmentID: id,
		Actor:         caller,
		Data:          data,
		Time:          now,
	})
	logging.Info("fulfillment submitted",
		logging.Instance(in.addr), logging.BountyID(bountyID),
		logging.FulfillmentID(id), logging.Actor(caller))
	return id, nil
}

func (imp *Implementation) updateFulfillment(in *Instance, caller common.Address, bountyID, fulfillmentID uint64, newData string) error {
	if err := in.begin(); err != nil {
		return err
	}
	defer in.end()

	if in.paused {
		return ErrPaused
	}
	f, err := in.fulfillment(bountyID, fulfillmentID)
	if err != nil {
		return err
	}
	if f.Fulfiller != caller {
		return fmt.Errorf("only fulfiller can update: %w", ErrUnauthorized)
	}
	if f.State != types.FulfillmentPending {
		return fmt.Errorf("fulfillment %d is %s: %w", fulfillmentID, f.State, ErrInvalidState)
	}
	if newData == "" {
		return ErrEmptyData
	}
	if len(newData) > imp.maxDataSize {
		return ErrDataTooLarge
	}

	f.Data = newData
	in.log.Append(types.Event{
		Type:          types.EventFulfillmentUpdated,
		BountyID:      bountyID,
		FulfillmentID: fulfillmentID,
		Actor:         caller,
		Data:          newData,
		Time:          imp.now(),
	})
	return nil
}

func (imp *Implementation) acceptFulfillment(in *Instance, caller common.Address, bountyID, fulfillmentID uint64, amount *big.Int) error {
	if err := in.begin(); err != nil {
		return err
	}
	defer in.end()

	if in.paused {
		return ErrPaused
	}
	b, err := in.bounty(bountyID)
	if err != nil {
		return err
	}
	f, err := in.fulfillment(bountyID, fulfillmentID)
	if err != nil {
		return err
	}
	if caller != b.Issuer && (b.Arbiter == (common.Address{}) || caller != b.Arbiter) {
		return fmt.Errorf("only issuer or arbiter: %w", ErrUnauthorized)
	}
	if f.State.Terminal() {
		return fmt.Errorf("%w: %w", ErrAlreadyProcessed, ErrInvalidState)
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if amount.Cmp(b.Balance) > 0 {
		return fmt.Errorf("payout %s exceeds balance %s: %w", amount, b.Balance, ErrInsufficientBalance)
	}

	// Effects before interactions: commit the terminal fulfillment state and
	// the balance decrement, then transfer.
	f.State = types.FulfillmentAccepted
	f.PayoutAmount = new(big.Int).Set(amount)
	b.Balance.Sub(b.Balance, amount)
	completed := b.Balance.Sign() == 0
	if completed {
		b.State = types.BountyCompleted
	}

	fee, net := fees.ComputeFee(amount, in.feeRate)
	payments := []assets.Payment{{To: f.Fulfiller, Amount: net}}
	if fee.Sign() > 0 {
		payments = append(payments, assets.Payment{To: in.feeRecipient, Amount: fee})
	}
	if err := in.payout(b.Token, payments); err != nil {
		// Roll back so the whole operation has no effect.
		f.State = types.FulfillmentPending
		f.PayoutAmount = nil
		b.Balance.Add(b.Balance, amount)
		if completed {
			b.State = types.BountyActive
		}
		return fmt.Errorf("accept fulfillment %d of bounty %d: %w", fulfillmentID, bountyID, err)
	}

	in.log.Append(types.Event{
		Type:          types.EventFulfillmentAccepted,
		BountyID:      bountyID,
		FulfillmentID: fulfillmentID,
		Actor:         f.Fulfiller,
		Token:         b.Token,
		Amount:        new(big.Int).Set(amount),
		Time:          imp.now(),
	})
	logging.Info("fulfillment accepted",
		logging.Instance(in.addr), logging.BountyID(bountyID),
		logging.FulfillmentID(fulfillmentID), logging.Amount(amount),
		"fee", fee.String(), "net", net.String(),
		"completed", completed)
	return nil
}

func (imp *Implementation) rejectFulfillment(in *Instance, caller common.Address, bountyID, fulfillmentID uint64) error {
	if err := in.begin(); err != nil {
		return err
	}
	defer in.end()

	if in.paused {
		return ErrPaused
	}
	b, err := in.bounty(bountyID)
	if err != nil {
		return err
	}
	f, err := in.fulfillment(bountyID, fulfillmentID)
	if err != nil {
		return err
	}
	if caller != b.Issuer && (b.Arbiter == (common.Address{}) || caller != b.Arbiter) {
		return fmt.Errorf("only issuer or arbiter: %w", ErrUnauthorized)
	}
	if f.State.Terminal() {
		return fmt.Errorf("%w: %w", ErrAlreadyProcessed, ErrInvalidState)
	}

	f.State = types.FulfillmentRejected
	in.log.Append(types.Event{
		Type:          types.EventFulfillmentRejected,
		BountyID:      bountyID,
		FulfillmentID: fulfillmentID,
		Actor:         f.Fulfiller,
		Time:          imp.now(),
	})
	logging.Info("fulfillment rejected",
		logging.Instance(in.addr), logging.BountyID(bountyID),
		logging.FulfillmentID(fulfillmentID))
	return nil
}

func (imp *Implementation) cancelBounty(in *Instance, caller common.Address, bountyID uint64) error {
	if err := in.begin(); err != nil {
		return err
	}
	defer in.end()

	if in.paused {
		return ErrPaused
	}
	b, err := in.bounty(bountyID)
	if err != nil {
		return err
	}
	if caller != b.Issuer {
		return fmt.Errorf("only issuer can cancel: %w", ErrUnauthorized)
	}
	if b.State.Terminal() {
		return fmt.Errorf("bounty %d is %s: %w", bountyID, b.State, ErrInvalidState)
	}

	now := imp.now()
	if b.State == types.BountyDraft {
		b.State = types.BountyCancelled
		in.log.Append(types.Event{
			Type:     types.EventBountyCancelled,
			BountyID: bountyID,
			Actor:    caller,
			Amount:   big.NewInt(0),
			Time:     now,
		})
		logging.Info("draft bounty cancelled",
			logging.Instance(in.addr), logging.BountyID(bountyID))
		return nil
	}

	if now.Before(b.Deadline) {
		return ErrCancelBeforeDeadline
	}

	// Effects: zero the balance against the recorded contributions, then
	// refund each funder exactly what they put in. After a full refund pass
	// the balance must be zero; this is checked, not assumed.
	refunded := new(big.Int).Set(b.Balance)
	payments := make([]assets.Payment, 0, len(in.funders[bountyID]))
	for _, funder := range in.funders[bountyID] {
		c := in.contributions[bountyID][funder]
		if c.Sign() == 0 {
			continue
		}
		payments = append(payments, assets.Payment{To: funder, Amount: new(big.Int).Set(c)})
		b.Balance.Sub(b.Balance, c)
	}
	if b.Balance.Sign() != 0 {
		// Contributions no longer match the spendable balance; restore and
		// surface a resource failure rather than refunding partially.
		b.Balance.Set(refunded)
		return fmt.Errorf("refund total does not match balance of bounty %d: %w", bountyID, ErrInsufficientBalance)
	}
	b.State = types.BountyCancelled

	if err := in.payout(b.Token, payments); err != nil {
		b.Balance.Set(refunded)
		b.State = types.BountyActive
		return fmt.Errorf("cancel bounty %d: %w", bountyID, err)
	}

	in.log.Append(types.Event{
		Type:     types.EventBountyCancelled,
		BountyID: bountyID,
		Actor:    caller,
		Token:    b.Token,
		Amount:   refunded,
		Time:     now,
	})
	logging.Info("bounty cancelled with refunds",
		logging.Instance(in.addr), logging.BountyID(bountyID),
		logging.Amount(refunded), "funders", len(payments))
	return nil
}

func (imp *Implementation) emergencyWithdraw(in *Instance, caller common.Address, bountyID uint64) error {
	if err := in.begin(); err != nil {
		return err
	}
	defer in.end()

	if in.paused {
		return ErrPaused
	}
	if caller != in.owner {
		return fmt.Errorf("only owner: %w", ErrUnauthorized)
	}
	b, err := in.bounty(bountyID)
	if err != nil {
		return err
	}
	if b.State != types.BountyActive {
		return fmt.Errorf("bounty %d is %s: %w", bountyID, b.State, ErrInvalidState)
	}

	withdrawn := new(big.Int).Set(b.Balance)
	b.Balance = big.NewInt(0)
	b.State = types.BountyCancelled

	if withdrawn.Sign() > 0 {
		if err := in.payout(b.Token, []assets.Payment{{To: in.owner, Amount: withdrawn}}); err != nil {
			b.Balance = withdrawn
			b.State = types.BountyActive
			return fmt.Errorf("emergency withdraw of bounty %d: %w", bountyID, err)
		}
	}

	in.log.Append(types.Event{
		Type:     types.EventBountyCancelled,
		BountyID: bountyID,
		Actor:    caller,
		Token:    b.Token,
		Amount:   withdrawn,
		Time:     imp.now(),
	})
	logging.Warn("emergency withdraw",
		logging.Instance(in.addr), logging.BountyID(bountyID),
		logging.Amount(withdrawn), logging.Actor(caller))
	return nil
}

func (imp *Implementation) setPaused(in *Instance, caller common.Address, paused bool) error {
	if err := in.begin(); err != nil {
		return err
	}
	defer in.end()

	if caller != in.owner {
		return fmt.Errorf("only owner: %w", ErrUnauthorized)
	}
	in.paused = paused
	logging.Info("pause flag changed",
		logging.Instance(in.addr), "paused", paused)
	return nil
}

func (imp *Implementation) setPlatformFeeRate(in *Instance, caller common.Address, rateBps uint16) error {
	if err := in.begin(); err != nil {
		return err
	}
	defer in.end()

	if caller != in.owner {
		return fmt.Errorf("only owner: %w", ErrUnauthorized)
	}
	if !fees.ValidRate(rateBps) {
		return fmt.Errorf("rate %d bps exceeds maximum %d: %w", rateBps, fees.MaxFeeRate, ErrFeeTooHigh)
	}

	old := in.feeRate
	in.feeRate = rateBps
	in.log.Append(types.Event{
		Type:       types.EventPlatformFeeUpdated,
		Actor:      caller,
		OldFeeRate: old,
		NewFeeRate: rateBps,
		Time:       imp.now(),
	})
	logging.Info("platform fee updated",
		logging.Instance(in.addr), "old_bps", old, "new_bps", rateBps)
	return nil
}

func (imp *Implementation) setFeeRecipient(in *Instance, caller, recipient common.Address) error {
	if err := in.begin(); err != nil {
		return err
	}
	defer in.end()

	if caller != in.owner {
		return fmt.Errorf("only owner: %w", ErrUnauthorized)
	}
	if recipient == (common.Address{}) {
		return ErrInvalidRecipient
	}

	in.feeRecipient = recipient
	in.log.Append(types.Event{
		Type:  types.EventFeeRecipientUpdated,
		Actor: caller,
		Data:  recipient.Hex(),
		Time:  imp.now(),
	})
	return nil
}
