package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NativeToken is the sentinel asset identifier for the native currency.
// A bounty whose Token equals NativeToken is funded with native value;
// any other address identifies an ERC20-style token contract.
var NativeToken = common.Address{}

// BountyState is the lifecycle state of a bounty.
type BountyState uint8

const (
	BountyDraft BountyState = iota
	BountyActive
	BountyCompleted
	BountyCancelled
)

// String returns a human-readable state name
func (s BountyState) String() string {
	switch s {
	case BountyDraft:
		return "draft"
	case BountyActive:
		return "active"
	case BountyCompleted:
		return "completed"
	case BountyCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state admits no further transitions.
func (s BountyState) Terminal() bool {
	return s == BountyCompleted || s == BountyCancelled
}

// FulfillmentState is the lifecycle state of a fulfillment.
type FulfillmentState uint8

const (
	FulfillmentPending FulfillmentState = iota
	FulfillmentAccepted
	FulfillmentRejected
)

// String returns a human-readable state name
func (s FulfillmentState) String() string {
	switch s {
	case FulfillmentPending:
		return "pending"
	case FulfillmentAccepted:
		return "accepted"
	case FulfillmentRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Terminal reports whether the fulfillment has been processed.
func (s FulfillmentState) Terminal() bool {
	return s == FulfillmentAccepted || s == FulfillmentRejected
}

// Bounty is an escrowed task. Issuer is immutable after creation; Token is
// fixed by the first successful funding call. Balance is the currently
// spendable amount, TotalFunding the cumulative amount ever deposited.
type Bounty struct {
	ID               uint64         `json:"id"`
	Issuer           common.Address `json:"issuer"`
	Arbiter          common.Address `json:"arbiter"` // zero address means none
	Data             string         `json:"data"`
	Token            common.Address `json:"token"`
	Balance          *big.Int       `json:"balance"`
	TotalFunding     *big.Int       `json:"total_funding"`
	Deadline         time.Time      `json:"deadline"`
	State            BountyState    `json:"state"`
	FulfillmentCount uint64         `json:"fulfillment_count"`
}

// Clone returns a deep copy of the bounty.
func (b *Bounty) Clone() *Bounty {
	cp := *b
	cp.Balance = new(big.Int).Set(b.Balance)
	cp.TotalFunding = new(big.Int).Set(b.TotalFunding)
	return &cp
}

// Fulfillment is a submission of work against a bounty. PayoutAmount is set
// only when the fulfillment is accepted.
type Fulfillment struct {
	ID           uint64           `json:"id"`
	BountyID     uint64           `json:"bounty_id"`
	Fulfiller    common.Address   `json:"fulfiller"`
	Data         string           `json:"data"`
	State        FulfillmentState `json:"state"`
	PayoutAmount *big.Int         `json:"payout_amount,omitempty"`
}

// Clone returns a deep copy of the fulfillment.
func (f *Fulfillment) Clone() *Fulfillment {
	cp := *f
	if f.PayoutAmount != nil {
		cp.PayoutAmount = new(big.Int).Set(f.PayoutAmount)
	}
	return &cp
}
