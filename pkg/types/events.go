package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType identifies an entry in the instance audit log.
type EventType string

const (
	EventBountyInitialized    EventType = "BountyInitialized"
	EventBountyFunded         EventType = "BountyFunded"
	EventBountyActivated      EventType = "BountyActivated"
	EventFulfillmentSubmitted EventType = "FulfillmentSubmitted"
	EventFulfillmentUpdated   EventType = "FulfillmentUpdated"
	EventFulfillmentAccepted  EventType = "FulfillmentAccepted"
	EventFulfillmentRejected  EventType = "FulfillmentRejected"
	EventBountyCancelled      EventType = "BountyCancelled"
	EventPlatformFeeUpdated   EventType = "PlatformFeeUpdated"
	EventFeeRecipientUpdated  EventType = "FeeRecipientUpdated"
	EventInstanceDeployed     EventType = "InstanceDeployed"
)

// Event is one entry of an instance's append-only audit log. Not every field
// is populated for every event type; Seq is monotonically increasing within
// a single log.
type Event struct {
	Seq           uint64         `json:"seq"`
	Type          EventType      `json:"type"`
	Instance      common.Address `json:"instance"`
	BountyID      uint64         `json:"bounty_id,omitempty"`
	FulfillmentID uint64         `json:"fulfillment_id,omitempty"`
	Actor         common.Address `json:"actor,omitempty"`
	Token         common.Address `json:"token,omitempty"`
	Amount        *big.Int       `json:"amount,omitempty"`
	Data          string         `json:"data,omitempty"`
	OldFeeRate    uint16         `json:"old_fee_rate,omitempty"`
	NewFeeRate    uint16         `json:"new_fee_rate,omitempty"`
	Time          time.Time      `json:"time"`
}
