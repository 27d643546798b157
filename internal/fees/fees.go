package fees

import (
	"math/big"
)

const (
	// DefaultFeeRate is the platform fee applied to payouts, in basis points.
	DefaultFeeRate uint16 = 250 // 2.5%

	// MaxFeeRate is the hard ceiling for the platform fee rate.
	MaxFeeRate uint16 = 1000 // 10%

	// bpsDenominator is the basis-point scale.
	bpsDenominator = 10000
)

// ComputeFee splits an amount into the platform fee and the net payout.
// fee = amount * rateBps / 10000 with integer floor division, so
// fee + net == amount for every rate in [0, MaxFeeRate].
func ComputeFee(amount *big.Int, rateBps uint16) (fee, net *big.Int) {
	fee = new(big.Int).Mul(amount, big.NewInt(int64(rateBps)))
	fee.Div(fee, big.NewInt(bpsDenominator))
	net = new(big.Int).Sub(amount, fee)
	return fee, net
}

// ValidRate reports whether a fee rate is within the allowed range.
func ValidRate(rateBps uint16) bool {
	return rateBps <= MaxFeeRate
}
