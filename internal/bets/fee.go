package bets

import (
	"math/big"
	"time"
)

// Divisor is the basis-point denominator: a rate of 300 means 3%.
const Divisor = 10000

// DefaultMediationTimeLimit is how long a mediator has after the result timeframe.
const DefaultMediationTimeLimit = 7 * 24 * time.Hour

var divisor = big.NewInt(Divisor)

// CalculateFee returns the platform fee for a pair of stakes:
// floor((first+second) * rate / 10000).
func CalculateFee(first, second *big.Int, rate uint64) *big.Int {
	return portion(new(big.Int).Add(first, second), rate)
}

// CalculateMediatorFee returns the fee the mediator earns when it decides b.
func CalculateMediatorFee(b *Bet) *big.Int {
	return portion(b.Pool(), b.MediatorFee)
}

func portion(amount *big.Int, rate uint64) *big.Int {
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(rate))
	return out.Quo(out, divisor)
}

// splitFee divides fee between the two parties, the first party taking the
// rounded-down half.
func splitFee(fee *big.Int) (first, second *big.Int) {
	first = new(big.Int).Rsh(fee, 1)
	second = new(big.Int).Sub(fee, first)
	return first, second
}
