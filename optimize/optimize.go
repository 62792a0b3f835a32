// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package optimize picks the WETH input size that maximizes profit around
// one concrete pool sequence: a closed-form solution for the two-pool
// constant-product case, a bisection search for the no-arbitrage
// equilibrium of mixed constant-product/weighted pairs, and a bounded
// numerical line search otherwise.
package optimize

import (
	"math"
	"math/big"

	"github.com/holiman/uint256"

	"gonum.org/v1/gonum/optimize"

	"github.com/luxfi/arbhunter/pools"
)

// Leg is one hop of a concrete pool sequence: a chosen pool and the pair it
// trades on that hop.
type Leg struct {
	Pool pools.Pool
	Pair pools.Pair
}

// Result is the chosen input size and the profit it achieves, in wei.
type Result struct {
	InputWei *uint256.Int
	ProfitWei *uint256.Int
}

// Profit folds an input amount through every leg's GetOutAmount and
// subtracts the original input, matching profit(x) = last_out(x) - x.
func Profit(legs []Leg, input *uint256.Int) *uint256.Int {
	cur := input
	for _, leg := range legs {
		cur = leg.Pool.GetOutAmount(cur, leg.Pair)
		if cur.IsZero() {
			return new(uint256.Int)
		}
	}
	if cur.Cmp(input) <= 0 {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(cur, input)
}

// TwoPoolConstantProduct implements the closed-form arbitrage size for a
// two-edge cycle where both pools are constant-product on the same pair:
//
//	arb = (r0_arb - r1_arb*sqrt(f0*r0_weth*r0_arb / (f1*r1_weth*r1_arb))) / (f0 + f1*sqrt(...))
//
// buyPool is the pool bought from (WETH -> arb token), sellPool the pool
// sold into (arb token -> WETH).
func TwoPoolConstantProduct(buyPool, sellPool *pools.ConstantProduct) (*big.Int, bool) {
	r0Weth := new(big.Float).SetInt(buyPool.Reserve0().ToBig())
	r0Arb := new(big.Float).SetInt(buyPool.Reserve1().ToBig())
	r1Arb := new(big.Float).SetInt(sellPool.Reserve0().ToBig())
	r1Weth := new(big.Float).SetInt(sellPool.Reserve1().ToBig())

	f0 := ratio(buyPool.FeeNum(), buyPool.FeeDen())
	f1 := ratio(sellPool.FeeNum(), sellPool.FeeDen())

	num := new(big.Float).Mul(f0, r0Weth)
	num.Mul(num, r0Arb)
	den := new(big.Float).Mul(f1, r1Weth)
	den.Mul(den, r1Arb)
	if den.Sign() == 0 {
		return nil, false
	}
	ratioF, _ := new(big.Float).Quo(num, den).Float64()
	if ratioF < 0 {
		return nil, false
	}
	sqrtRatio := big.NewFloat(math.Sqrt(ratioF))

	numerator := new(big.Float).Sub(r0Arb, new(big.Float).Mul(r1Arb, sqrtRatio))
	denominator := new(big.Float).Add(f0, new(big.Float).Mul(f1, sqrtRatio))
	if denominator.Sign() <= 0 {
		return nil, false
	}
	arb := new(big.Float).Quo(numerator, denominator)
	if arb.Sign() <= 0 {
		return nil, false
	}
	out, _ := arb.Int(nil)
	return out, true
}

func ratio(num, den *uint256.Int) *big.Float {
	n := new(big.Float).SetInt(num.ToBig())
	d := new(big.Float).SetInt(den.ToBig())
	return new(big.Float).Quo(n, d)
}

// NoArbitrageEquilibrium finds x in [0, maxReserve] such that the buy leg's
// marginal price at x equals the sell leg's marginal price at x, each taken
// in its own pair's direction, by monotone bisection. Both pools must implement MarginalPricer.
func NoArbitrageEquilibrium(buy, sell pools.MarginalPricer, buyPair, sellPair pools.Pair, maxReserve *uint256.Int) (*uint256.Int, bool) {
	if maxReserve.IsZero() {
		return nil, false
	}
	lo := new(uint256.Int)
	hi := new(uint256.Int).Set(maxReserve)

	sign := func(x *uint256.Int) int {
		bNum, bDen := buy.MarginalPrice(x, buyPair)
		sNum, sDen := sell.MarginalPrice(x, sellPair)
		lhs := new(big.Int).Mul(bNum.ToBig(), sDen.ToBig())
		rhs := new(big.Int).Mul(sNum.ToBig(), bDen.ToBig())
		return lhs.Cmp(rhs)
	}

	loSign, hiSign := sign(lo), sign(hi)
	if loSign == 0 {
		return lo, true
	}
	if loSign == hiSign {
		return nil, false
	}
	for i := 0; i < 128; i++ {
		mid := new(uint256.Int).Add(lo, hi)
		mid.Rsh(mid, 1)
		if mid.Cmp(lo) == 0 || mid.Cmp(hi) == 0 {
			break
		}
		midSign := sign(mid)
		if midSign == 0 {
			return mid, true
		}
		if midSign == loSign {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo, true
}

// GeneralCase performs a bounded 1-D maximization of profit over
// [epsilonWei, loanMaxWei] using gonum's derivative-free Nelder-Mead method,
// falling back to the epsilon bound on optimizer failure.
func GeneralCase(legs []Leg, epsilonWei, loanMaxWei *uint256.Int) Result {
	if loanMaxWei.Cmp(epsilonWei) <= 0 {
		return Result{InputWei: new(uint256.Int), ProfitWei: new(uint256.Int)}
	}
	// The search coordinate x ranges over [0, 1], the fraction of loanMaxWei
	// borrowed; weiAt scales it back up through big.Float so a loan size near
	// uint256's range never round-trips through an int64 midpoint.
	loanMaxFloat := new(big.Float).SetInt(loanMaxWei.ToBig())
	weiAt := func(x float64) *uint256.Int {
		if x < 0 {
			x = 0
		}
		if x > 1 {
			x = 1
		}
		scaled := new(big.Float).Mul(loanMaxFloat, big.NewFloat(x))
		bi, _ := scaled.Int(nil)
		v, overflow := uint256.FromBig(bi)
		if overflow {
			return new(uint256.Int).Set(loanMaxWei)
		}
		if v.Lt(epsilonWei) {
			return new(uint256.Int).Set(epsilonWei)
		}
		return v
	}

	negativeScaledProfit := func(x []float64) float64 {
		profit := Profit(legs, weiAt(x[0]))
		ratioF, _ := new(big.Float).Quo(new(big.Float).SetInt(profit.ToBig()), loanMaxFloat).Float64()
		return -ratioF
	}

	problem := optimize.Problem{Func: negativeScaledProfit}
	result, err := optimize.Minimize(problem, []float64{0.5}, &optimize.Settings{
		FuncEvaluations: 200,
	}, &optimize.NelderMead{})
	if err != nil || result == nil {
		in := new(uint256.Int).Set(epsilonWei)
		return Result{InputWei: in, ProfitWei: Profit(legs, in)}
	}

	bestIn := weiAt(result.X[0])
	return Result{InputWei: bestIn, ProfitWei: Profit(legs, bestIn)}
}
