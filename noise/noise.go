// Package noise implements exact samplers for the discrete Laplace and
// discrete Gaussian distributions used by the measurement phase of the
// TopDown algorithm.
//
// Both samplers are built from Bernoulli and geometric primitives evaluated
// with exact rational arithmetic (math/big), following the construction of
// the reference discretegauss implementation: a discrete Laplace variate is
// produced from a geometric magnitude sampler driven by a chain of exact
// Bernoulli trials, and a discrete Gaussian variate is produced by
// proposing from a discrete Laplace and accepting with a probability that
// is itself computed as an exact comparison of big.Rat values rather than a
// floating point exp(). This avoids the floating point rounding that would
// otherwise leak a distinguishing bit of information about the true value
// and compromise the privacy guarantee.
package noise

import (
	"math"
	"math/big"

	"github.com/synthcensus/topdown/internal/secrand"
	"github.com/synthcensus/topdown/topderr"
)

const phase = "measurement.noise"

// SampleDiscreteLaplace draws an integer from the distribution with
// probability mass proportional to exp(-|k|/t) on all integers k, for scale
// t > 0.
func SampleDiscreteLaplace(t float64) (int64, error) {
	if !(t > 0) || math.IsInf(t, 0) || math.IsNaN(t) {
		return 0, topderr.New(topderr.ParameterError, phase, nil,
			"discrete Laplace scale must be finite and strictly positive")
	}
	scale := new(big.Rat).SetFloat64(t)
	if scale == nil {
		return 0, topderr.New(topderr.ParameterError, phase, nil, "discrete Laplace scale is not representable")
	}
	return sampleDiscreteLaplace(scale), nil
}

// SampleDiscreteGaussian draws an integer from the distribution with
// probability mass proportional to exp(-k²/(2σ²)) on all integers k, for
// variance σ² > 0.
func SampleDiscreteGaussian(sigma2 float64) (int64, error) {
	if !(sigma2 > 0) || math.IsInf(sigma2, 0) || math.IsNaN(sigma2) {
		return 0, topderr.New(topderr.ParameterError, phase, nil,
			"discrete Gaussian variance must be finite and strictly positive")
	}
	variance := new(big.Rat).SetFloat64(sigma2)
	if variance == nil {
		return 0, topderr.New(topderr.ParameterError, phase, nil, "discrete Gaussian variance is not representable")
	}
	t := new(big.Int).Add(isqrt(variance), big.NewInt(1))
	tRat := new(big.Rat).SetInt(t)
	two := big.NewRat(2, 1)
	for {
		candidate := sampleDiscreteLaplace(tRat)

		// bias = (|candidate| - sigma2/t)^2
		absCandidate := new(big.Rat).SetInt64(abs64(candidate))
		sigma2OverT := new(big.Rat).Quo(variance, tRat)
		diff := new(big.Rat).Sub(absCandidate, sigma2OverT)
		bias := new(big.Rat).Mul(diff, diff)

		// acceptance probability: exp(-bias / (2*sigma2))
		denom := new(big.Rat).Mul(two, variance)
		exponent := new(big.Rat).Quo(bias, denom)
		if sampleBernoulliExp(exponent) {
			return candidate, nil
		}
	}
}

// sampleDiscreteLaplace draws a two-sided geometric variate with scale t,
// i.e. mass proportional to exp(-|k|/t), from a Bernoulli(1/2) sign and an
// exact geometric magnitude sampler. A sampled sign of "negative" paired
// with a magnitude of zero is rejected and retried so that zero does not
// end up with twice the mass it should have.
func sampleDiscreteLaplace(t *big.Rat) int64 {
	rate := new(big.Rat).Inv(t)
	for {
		magnitude := sampleGeometricExp(rate)
		negative := secrand.Bool()
		if negative && magnitude == 0 {
			continue
		}
		if negative {
			return -magnitude
		}
		return magnitude
	}
}

// sampleGeometricExp draws K >= 0 with Pr[K=k] = (1-p)p^k where p = exp(-x),
// x >= 0: the number of independent exp(-x)-Bernoulli successes observed
// before the first failure.
func sampleGeometricExp(x *big.Rat) int64 {
	var k int64
	for sampleBernoulliExp(x) {
		k++
	}
	return k
}

// sampleBernoulliExp returns true with probability exp(-x) for x >= 0, by
// decomposing x into unit-sized slices handled by sampleBernoulliExp1 (each
// slice must succeed) plus one final fractional slice.
func sampleBernoulliExp(x *big.Rat) bool {
	one := big.NewRat(1, 1)
	for x.Cmp(one) > 0 {
		if !sampleBernoulliExp1(one) {
			return false
		}
		x = new(big.Rat).Sub(x, one)
	}
	return sampleBernoulliExp1(x)
}

// sampleBernoulliExp1 returns true with probability exp(-x) for 0 <= x <= 1.
// It draws a chain of independent Bernoulli(x/k) trials for k = 1, 2, ...
// and lets K be the index of the first failure; Pr[K is odd] = exp(-x).
func sampleBernoulliExp1(x *big.Rat) bool {
	k := int64(1)
	for sampleBernoulli(new(big.Rat).Quo(x, big.NewRat(k, 1))) {
		k++
	}
	return k%2 == 1
}

// sampleBernoulli returns true with probability p, 0 <= p <= 1, by comparing
// a uniformly drawn integer against p's numerator over its denominator — an
// exact comparison, never a floating point one.
func sampleBernoulli(p *big.Rat) bool {
	if p.Sign() <= 0 {
		return false
	}
	if p.Cmp(big.NewRat(1, 1)) >= 0 {
		return true
	}
	n := p.Num()
	d := p.Denom()
	r := secrand.BigIntN(d)
	return r.Cmp(n) < 0
}

// isqrt returns floor(sqrt(x)) for a non-negative rational x. The result
// need not be exact: it only seeds the proposal scale for the discrete
// Gaussian's rejection loop, so an off-by-one value only changes the
// expected number of rejections, never the correctness of the output
// distribution.
func isqrt(x *big.Rat) *big.Int {
	num := x.Num()
	den := x.Denom()
	scaledNum := new(big.Int).Mul(num, den)
	root := new(big.Int).Sqrt(scaledNum)
	return new(big.Int).Quo(root, den)
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
