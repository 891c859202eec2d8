package ray

import (
	"errors"
	"math/big"
	"sync"
)

// Ray is the fixed-point scale for indices, rates and prices: 10^27.
// Values do not fit in int64, so all scaled arithmetic runs on big.Int.
// Raw asset amounts (satoshis) stay plain int64.
var (
	Ray     = new(big.Int).Exp(big.NewInt(10), big.NewInt(27), nil)
	HalfRay = new(big.Int).Rsh(Ray, 1)
)

// SecondsPerYear is 365 days.
const SecondsPerYear = 31536000

var ErrDivideByZero = errors.New("ray: division by zero")

var intPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt() *big.Int {
	return intPool.Get().(*big.Int)
}

func putInt(v *big.Int) {
	v.SetInt64(0)
	intPool.Put(v)
}

// Int wraps a raw int64 amount for use in Ray arithmetic.
func Int(v int64) *big.Int {
	return big.NewInt(v)
}

// FromRatio returns num/den as a Ray-scaled value.
// FromRatio(5, 100) is 5%.
func FromRatio(num, den int64) *big.Int {
	v := new(big.Int).Mul(Ray, big.NewInt(num))
	return v.Quo(v, big.NewInt(den))
}

// Mul multiplies two Ray values with round-half-up: (a*b + Ray/2) / Ray.
func Mul(a, b *big.Int) *big.Int {
	if a.Sign() == 0 || b.Sign() == 0 {
		return new(big.Int)
	}

	result := new(big.Int).Mul(a, b)
	result.Add(result, HalfRay)
	return result.Quo(result, Ray)
}

// MulInt is Mul with a raw integer left operand.
func MulInt(a int64, b *big.Int) *big.Int {
	return Mul(big.NewInt(a), b)
}

// Div divides two Ray values with round-half-up: (a*Ray + b/2) / b.
func Div(a, b *big.Int) (*big.Int, error) {
	if b.Sign() == 0 {
		return nil, ErrDivideByZero
	}

	half := getInt().Rsh(b, 1)
	result := new(big.Int).Mul(a, Ray)
	result.Add(result, half)
	putInt(half)

	return result.Quo(result, b), nil
}

// AccrueIndex compounds a cumulative index by a per-second rate over
// timeDelta seconds using the linear growth factor (1 + rate*dt).
// A non-positive timeDelta leaves the index unchanged.
func AccrueIndex(index, ratePerSecond *big.Int, timeDelta int64) *big.Int {
	if timeDelta <= 0 {
		return new(big.Int).Set(index)
	}

	growth := new(big.Int).Mul(ratePerSecond, big.NewInt(timeDelta))
	growth.Add(growth, Ray)
	return Mul(index, growth)
}

// SharesForAmount converts an underlying amount into pool shares at the
// given liquidity index.
func SharesForAmount(amount int64, index *big.Int) (int64, error) {
	amountRay := new(big.Int).Mul(big.NewInt(amount), Ray)
	sharesRay, err := Div(amountRay, index)
	if err != nil {
		return 0, err
	}
	return sharesRay.Quo(sharesRay, Ray).Int64(), nil
}

// AmountForShares converts pool shares back to an underlying amount.
// The index argument is either an absolute index or an index ratio.
func AmountForShares(shares int64, index *big.Int) int64 {
	sharesRay := new(big.Int).Mul(big.NewInt(shares), Ray)
	out := Mul(sharesRay, index)
	return out.Quo(out, Ray).Int64()
}

// AccruedInterest returns the interest earned on principal between two
// index observations. Zero when the index has not grown.
func AccruedInterest(principal int64, initialIndex, currentIndex *big.Int) int64 {
	if currentIndex.Cmp(initialIndex) <= 0 {
		return 0
	}

	growth, err := Div(currentIndex, initialIndex)
	if err != nil {
		return 0
	}
	return AmountForShares(principal, growth) - principal
}
