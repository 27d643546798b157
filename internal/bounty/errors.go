package bounty

import "errors"

// Validation errors: always caller-fixable, checked before any effect.
var (
	ErrInvalidIssuer    = errors.New("invalid issuer address")
	ErrIssuerIsArbiter  = errors.New("issuer cannot be arbiter")
	ErrEmptyData        = errors.New("data cannot be empty")
	ErrDataTooLarge     = errors.New("data exceeds maximum size")
	ErrDeadlineTooSoon  = errors.New("deadline too soon")
	ErrDeadlineTooFar   = errors.New("deadline too far")
	ErrInvalidAmount    = errors.New("amount must be greater than zero")
	ErrInvalidToken     = errors.New("invalid token address")
	ErrTokenMismatch    = errors.New("cannot mix different tokens in same bounty")
	ErrInvalidRecipient = errors.New("invalid fee recipient")
	ErrFeeTooHigh       = errors.New("fee rate too high")
)

// Authorization errors: the caller lacks the role the operation requires.
var (
	ErrUnauthorized = errors.New("unauthorized")
)

// State errors: the operation is not legal for the entity's current state.
var (
	ErrInvalidBounty        = errors.New("invalid bounty id")
	ErrInvalidFulfillment   = errors.New("invalid fulfillment id")
	ErrInvalidState         = errors.New("invalid state for operation")
	ErrAlreadyProcessed     = errors.New("fulfillment already processed")
	ErrDeadlinePassed       = errors.New("bounty deadline has passed")
	ErrCancelBeforeDeadline = errors.New("cannot cancel active bounty before deadline")
	ErrReentrantCall        = errors.New("reentrant call rejected")
	ErrPaused               = errors.New("paused")
)

// Resource errors.
var (
	ErrInsufficientBalance = errors.New("insufficient bounty balance")
)
