// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pools

import (
	"math/big"
	"sort"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/arbhunter/token"
)

const (
	minSqrtRatio uint64 = 4295128739
	maxTick      int32  = 887272
	minTick      int32  = -maxTick
	fixedPoint96 uint   = 96
)

var maxSqrtRatio = mustU256Hex("0xFFFD8963EFD1FC6A506488495D951D5263988D26") // 1461446703485210103287273052203988822378723970342

var v3SwapSelector = selector("swap(address,bool,int256,uint160,bytes)")

func mustU256Hex(s string) *uint256.Int {
	v, err := uint256.FromHex(s)
	if err != nil {
		panic(err)
	}
	return v
}

// tickRatioSteps are the 0x1.<frac>p-128 multipliers applied to the running
// ratio for each set bit of abs(tick), the standard bit-decomposition
// approximation of 1.0001^tick in Q128.128.
var tickRatioSteps = []struct {
	bit   int32
	ratio string
}{
	{0x1, "0xfffcb933bd6fad37aa2d162d1a594001"},
	{0x2, "0xfff97272373d413259a46990580e213a"},
	{0x4, "0xfff2e50f5f656932ef12357cf3c7fdcc"},
	{0x8, "0xffe5caca7e10e4e61c3624eaa0941cd0"},
	{0x10, "0xffcb9843d60f6159c9db58835c926644"},
	{0x20, "0xff973b41fa98c081472e6896dfb254c0"},
	{0x40, "0xff2ea16466c96a3843ec78b326b52861"},
	{0x80, "0xfe5dee046a99a2a811c461f1969c3053"},
	{0x100, "0xfcbe86c7900a88aedcffc83b479aa3a4"},
	{0x200, "0xf987a7253ac413176f2b074cf7815e54"},
	{0x400, "0xf3392b0822b70005940c7a398e4b70f3"},
	{0x800, "0xe7159475a2c29b7443b29c7fa6e889d9"},
	{0x1000, "0xd097f3bdfd2022b8845ad8f792aa5825"},
	{0x2000, "0xa9f746462d870fdf8a65dc1f90e061e5"},
	{0x4000, "0x70d869a156d2a1b890bb3df62baf32f7"},
	{0x8000, "0x31be135f97d08fd981231505542fcfa6"},
	{0x10000, "0x9aa508b5b7a84e1c677de54f3e99bc9"},
	{0x20000, "0x5d6af8dedb81196699c329225ee604"},
	{0x40000, "0x2216e584f5fa1ea926041bedfe98"},
	{0x80000, "0x48a170391f7dc42444e8fa2"},
}

// GetSqrtRatioAtTick reproduces the reference contract's bit-decomposition
// approximation of sqrt(1.0001^tick) in Q64.96.
func GetSqrtRatioAtTick(tick int32) (*uint256.Int, bool) {
	absTick := tick
	if absTick < 0 {
		absTick = -absTick
	}
	if absTick > maxTick {
		return nil, false
	}
	var ratio *uint256.Int
	if absTick&0x1 != 0 {
		ratio = mustU256Hex("0xfffcb933bd6fad37aa2d162d1a594001")
	} else {
		ratio = mustU256Hex("0x100000000000000000000000000000000")
	}
	for _, step := range tickRatioSteps[1:] {
		if int32(absTick)&step.bit != 0 {
			ratio.Mul(ratio, mustU256Hex(step.ratio))
			ratio.Rsh(ratio, 128)
		}
	}
	if tick > 0 {
		maxU := new(uint256.Int).Not(uint256.NewInt(0))
		ratio = new(uint256.Int).Div(maxU, ratio)
	}
	sqrtp := new(uint256.Int).Rsh(ratio, 32)
	rem := new(uint256.Int).Mod(ratio, new(uint256.Int).Lsh(uint256.NewInt(1), 32))
	if !rem.IsZero() {
		sqrtp.AddUint64(sqrtp, 1)
	}
	return sqrtp, true
}

var (
	logSqrt10001Mul = bigFromDecimal("255738958999603826347141")
	tickLowOffset   = bigFromDecimal("3402992956809132418596140100660247210")
	tickHighOffset  = bigFromDecimal("291339464771989622907027621153398088495")
)

func bigFromDecimal(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("pools: bad decimal constant " + s)
	}
	return v
}

// GetTickAtSqrtRatio inverts GetSqrtRatioAtTick via the log2-based estimate
// and a one-tick disambiguation check, matching TickMath.getTickAtSqrtRatio.
// The log2 accumulation runs over math/big rather than uint256 because the
// intermediate value is signed and the reference's fixed constants exceed 128
// bits.
func GetTickAtSqrtRatio(sqrtPriceX96 *uint256.Int) (int32, bool) {
	if sqrtPriceX96.LtUint64(minSqrtRatio) || sqrtPriceX96.Cmp(maxSqrtRatio) >= 0 {
		return 0, false
	}
	ratio := new(big.Int).Lsh(sqrtPriceX96.ToBig(), 32)

	msb := ratio.BitLen() - 1
	r := new(big.Int)
	if msb >= 128 {
		r.Rsh(ratio, uint(msb-127))
	} else {
		r.Lsh(ratio, uint(127-msb))
	}

	log2 := new(big.Int).Lsh(big.NewInt(int64(msb)-128), 64)
	for i := 0; i < 14; i++ {
		r.Mul(r, r)
		r.Rsh(r, 127)
		f := new(big.Int).Rsh(r, 128)
		if f.Sign() != 0 {
			log2.Or(log2, new(big.Int).Lsh(big.NewInt(1), uint(63-i)))
			r.Rsh(r, 1)
		}
	}

	logSqrt10001 := new(big.Int).Mul(log2, logSqrt10001Mul)
	tickLowBig := new(big.Int).Rsh(new(big.Int).Sub(logSqrt10001, tickLowOffset), 128)
	tickHiBig := new(big.Int).Rsh(new(big.Int).Add(logSqrt10001, tickHighOffset), 128)
	tickLow := int32(tickLowBig.Int64())
	tickHi := int32(tickHiBig.Int64())
	if tickLow == tickHi {
		return tickLow, true
	}
	atHi, ok := GetSqrtRatioAtTick(tickHi)
	if !ok {
		return 0, false
	}
	if atHi.Cmp(sqrtPriceX96) <= 0 {
		return tickHi, true
	}
	return tickLow, true
}

// simpleMulDiv avoids relying on a 512-bit intermediate: callers in this
// package keep operands within 256 bits after the multiply, which holds for
// liquidity<<96-scale terms at realistic pool sizes.
func simpleMulDiv(a, b, denom *uint256.Int) *uint256.Int {
	if denom.IsZero() {
		return new(uint256.Int)
	}
	num, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return new(uint256.Int)
	}
	return num.Div(num, denom)
}

func simpleMulDivRoundUp(a, b, denom *uint256.Int) *uint256.Int {
	num, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow || denom.IsZero() {
		return new(uint256.Int)
	}
	q, r := new(uint256.Int).DivMod(num, denom, new(uint256.Int))
	if !r.IsZero() {
		q.AddUint64(q, 1)
	}
	return q
}

// GetAmount0Delta returns the amount of token0 exchanged moving the price
// between two sqrt ratios at constant liquidity.
func GetAmount0Delta(sqrtA, sqrtB *uint256.Int, liquidity *uint256.Int, roundUp bool) *uint256.Int {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	if sqrtA.IsZero() {
		return new(uint256.Int)
	}
	numerator1 := new(uint256.Int).Lsh(liquidity, fixedPoint96)
	numerator2 := new(uint256.Int).Sub(sqrtB, sqrtA)
	if roundUp {
		top := simpleMulDivRoundUp(numerator1, numerator2, sqrtB)
		q, r := new(uint256.Int).DivMod(top, sqrtA, new(uint256.Int))
		if !r.IsZero() {
			q.AddUint64(q, 1)
		}
		return q
	}
	top := simpleMulDiv(numerator1, numerator2, sqrtB)
	return top.Div(top, sqrtA)
}

// GetAmount1Delta returns the amount of token1 exchanged moving the price
// between two sqrt ratios at constant liquidity.
func GetAmount1Delta(sqrtA, sqrtB *uint256.Int, liquidity *uint256.Int, roundUp bool) *uint256.Int {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	diff := new(uint256.Int).Sub(sqrtB, sqrtA)
	q96 := new(uint256.Int).Lsh(uint256.NewInt(1), fixedPoint96)
	if roundUp {
		return simpleMulDivRoundUp(liquidity, diff, q96)
	}
	return simpleMulDiv(liquidity, diff, q96)
}

// GetNextSqrtPriceFromInput advances the price for an exact-input step.
func GetNextSqrtPriceFromInput(sqrtP, liquidity, amountIn *uint256.Int, zeroForOne bool) *uint256.Int {
	if zeroForOne {
		return nextSqrtPriceFromAmount0RoundUp(sqrtP, liquidity, amountIn, true)
	}
	return nextSqrtPriceFromAmount1RoundDown(sqrtP, liquidity, amountIn, true)
}

// GetNextSqrtPriceFromOutput advances the price for an exact-output step.
func GetNextSqrtPriceFromOutput(sqrtP, liquidity, amountOut *uint256.Int, zeroForOne bool) *uint256.Int {
	if zeroForOne {
		return nextSqrtPriceFromAmount1RoundDown(sqrtP, liquidity, amountOut, false)
	}
	return nextSqrtPriceFromAmount0RoundUp(sqrtP, liquidity, amountOut, false)
}

func nextSqrtPriceFromAmount0RoundUp(sqrtP, liquidity, amount *uint256.Int, add bool) *uint256.Int {
	if amount.IsZero() {
		return new(uint256.Int).Set(sqrtP)
	}
	numerator1 := new(uint256.Int).Lsh(liquidity, fixedPoint96)
	if add {
		product, overflow := new(uint256.Int).MulOverflow(amount, sqrtP)
		if !overflow {
			denominator := new(uint256.Int).Add(numerator1, product)
			if denominator.Cmp(numerator1) >= 0 {
				return simpleMulDivRoundUp(numerator1, sqrtP, denominator)
			}
		}
		denom := new(uint256.Int).Div(numerator1, sqrtP)
		denom.Add(denom, amount)
		q, r := new(uint256.Int).DivMod(numerator1, denom, new(uint256.Int))
		if !r.IsZero() {
			q.AddUint64(q, 1)
		}
		return q
	}
	product, overflow := new(uint256.Int).MulOverflow(amount, sqrtP)
	if overflow || numerator1.Cmp(product) <= 0 {
		return new(uint256.Int)
	}
	denominator := new(uint256.Int).Sub(numerator1, product)
	return simpleMulDivRoundUp(numerator1, sqrtP, denominator)
}

func nextSqrtPriceFromAmount1RoundDown(sqrtP, liquidity, amount *uint256.Int, add bool) *uint256.Int {
	q96 := new(uint256.Int).Lsh(uint256.NewInt(1), fixedPoint96)
	if add {
		quotient := simpleMulDiv(amount, q96, liquidity)
		return new(uint256.Int).Add(sqrtP, quotient)
	}
	quotient := simpleMulDivRoundUp(amount, q96, liquidity)
	if sqrtP.Cmp(quotient) <= 0 {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(sqrtP, quotient)
}

// SwapStep is the per-tick-range result of ComputeSwapStep.
type SwapStep struct {
	SqrtRatioNext *uint256.Int
	AmountIn      *uint256.Int
	AmountOut     *uint256.Int
	FeeAmount     *uint256.Int
}

// ComputeSwapStep fills one iteration of the swap loop: moves price from
// sqrtRatio toward sqrtRatioTarget (bounded by liquidity and the remaining
// amount), charging feePips on the input leg.
func ComputeSwapStep(sqrtRatio, sqrtRatioTarget, liquidity *uint256.Int, amountRemaining *uint256.Int, exactIn bool, feePips uint32) SwapStep {
	zeroForOne := sqrtRatio.Cmp(sqrtRatioTarget) >= 0
	million := uint256.NewInt(1_000_000)
	feeComplement := uint256.NewInt(uint64(1_000_000 - feePips))

	var step SwapStep
	if exactIn {
		amountRemainingLessFee := simpleMulDiv(amountRemaining, feeComplement, million)
		var amountIn *uint256.Int
		if zeroForOne {
			amountIn = GetAmount0Delta(sqrtRatioTarget, sqrtRatio, liquidity, true)
		} else {
			amountIn = GetAmount1Delta(sqrtRatio, sqrtRatioTarget, liquidity, true)
		}
		if amountRemainingLessFee.Cmp(amountIn) >= 0 {
			step.SqrtRatioNext = sqrtRatioTarget
		} else {
			step.SqrtRatioNext = GetNextSqrtPriceFromInput(sqrtRatio, liquidity, amountRemainingLessFee, zeroForOne)
		}
	} else {
		var amountOut *uint256.Int
		if zeroForOne {
			amountOut = GetAmount1Delta(sqrtRatioTarget, sqrtRatio, liquidity, false)
		} else {
			amountOut = GetAmount0Delta(sqrtRatio, sqrtRatioTarget, liquidity, false)
		}
		if amountRemaining.Cmp(amountOut) >= 0 {
			step.SqrtRatioNext = sqrtRatioTarget
		} else {
			step.SqrtRatioNext = GetNextSqrtPriceFromOutput(sqrtRatio, liquidity, amountRemaining, zeroForOne)
		}
	}

	max := step.SqrtRatioNext.Cmp(sqrtRatioTarget) == 0
	if zeroForOne {
		if !(max && !exactIn) {
			step.AmountIn = GetAmount0Delta(step.SqrtRatioNext, sqrtRatio, liquidity, true)
		}
		step.AmountOut = GetAmount1Delta(step.SqrtRatioNext, sqrtRatio, liquidity, false)
	} else {
		if !(max && !exactIn) {
			step.AmountIn = GetAmount1Delta(sqrtRatio, step.SqrtRatioNext, liquidity, true)
		}
		step.AmountOut = GetAmount0Delta(sqrtRatio, step.SqrtRatioNext, liquidity, false)
	}
	if step.AmountIn == nil {
		step.AmountIn = new(uint256.Int)
	}

	if !exactIn && step.AmountOut.Cmp(amountRemaining) > 0 {
		step.AmountOut = new(uint256.Int).Set(amountRemaining)
	}

	if exactIn && step.SqrtRatioNext.Cmp(sqrtRatioTarget) != 0 {
		step.FeeAmount = new(uint256.Int).Sub(amountRemaining, step.AmountIn)
	} else {
		step.FeeAmount = simpleMulDivRoundUp(step.AmountIn, uint256.NewInt(uint64(feePips)), feeComplement)
	}
	return step
}

// TickInfo is the liquidityNet recorded at one initialized tick.
type TickInfo struct {
	LiquidityNet *uint256.Int
	Negative     bool
}

// Observation is one entry of the price/liquidity TWAP accumulator ring.
type Observation struct {
	BlockTimestamp    uint32
	TickCumulative    int64
	SecondsPerLiqX128 *uint256.Int
	Initialized       bool
}

// Concentrated replicates a Uniswap-v3-family pool: a single active tick
// range, tracked via a sparse tick map, plus the ring of TWAP observations
// used to answer historical-price queries.
type Concentrated struct {
	addr        common.Address
	coins       [2]token.Token
	sqrtPriceX96 *uint256.Int
	liquidity   *uint256.Int
	feePips     uint32
	tickSpacing int32
	tick        int32
	ticks       map[int32]TickInfo
	observations []Observation
	generation  uint64
}

func NewConcentrated(addr common.Address, t0, t1 token.Token, sqrtPriceX96, liquidity *uint256.Int, feePips uint32, tickSpacing, tick int32, ticks map[int32]TickInfo, observations []Observation, generation uint64) *Concentrated {
	return &Concentrated{
		addr:         addr,
		coins:        [2]token.Token{t0, t1},
		sqrtPriceX96: sqrtPriceX96,
		liquidity:    liquidity,
		feePips:      feePips,
		tickSpacing:  tickSpacing,
		tick:         tick,
		ticks:        ticks,
		observations: observations,
		generation:   generation,
	}
}

func (p *Concentrated) Address() common.Address { return p.addr }
func (p *Concentrated) PoolFamily() Family       { return FamilyConcentrated }
func (p *Concentrated) Coins() []token.Token     { return []token.Token{p.coins[0], p.coins[1]} }
func (p *Concentrated) Generation() uint64       { return p.generation }

// nextInitializedTick does a sparse-map scan for the nearest initialized
// tick in the requested direction, bounded by [minTick, maxTick]. Real
// pools cross only a handful of ticks per swap, so a sorted-key scan over
// the (small) set of refreshed ticks is sufficient and avoids replicating
// the word-bitmap representation used purely for on-chain gas accounting.
func (p *Concentrated) nextInitializedTick(tick int32, lte bool) (int32, bool) {
	keys := make([]int32, 0, len(p.ticks))
	for k := range p.ticks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	if lte {
		for i := len(keys) - 1; i >= 0; i-- {
			if keys[i] <= tick {
				return keys[i], true
			}
		}
		return minTick, false
	}
	for _, k := range keys {
		if k > tick {
			return k, true
		}
	}
	return maxTick, false
}

// GetOutAmount walks the active liquidity range one initialized tick at a
// time, matching the reference swap loop, until the input is exhausted or
// the price limit is reached.
func (p *Concentrated) GetOutAmount(in *uint256.Int, pair Pair) *uint256.Int {
	zero := new(uint256.Int)
	if in == nil || in.IsZero() {
		return zero
	}
	var zeroForOne bool
	switch {
	case pair.In.Address == p.coins[0].Address && pair.Out.Address == p.coins[1].Address:
		zeroForOne = true
	case pair.In.Address == p.coins[1].Address && pair.Out.Address == p.coins[0].Address:
		zeroForOne = false
	default:
		return zero
	}

	sqrtPriceLimit := new(uint256.Int)
	if zeroForOne {
		sqrtPriceLimit.AddUint64(sqrtPriceLimit, minSqrtRatio)
		sqrtPriceLimit.AddUint64(sqrtPriceLimit, 1)
	} else {
		sqrtPriceLimit.Sub(maxSqrtRatio, uint256.NewInt(1))
	}

	remaining := new(uint256.Int).Set(in)
	amountOut := new(uint256.Int)
	sqrtP := new(uint256.Int).Set(p.sqrtPriceX96)
	liquidity := new(uint256.Int).Set(p.liquidity)
	tick := p.tick

	for i := 0; i < 64 && !remaining.IsZero(); i++ {
		nextTick, initialized := p.nextInitializedTick(tick, zeroForOne)
		sqrtNextTickPrice, ok := GetSqrtRatioAtTick(nextTick)
		if !ok {
			break
		}
		target := sqrtNextTickPrice
		if zeroForOne && target.Cmp(sqrtPriceLimit) < 0 {
			target = sqrtPriceLimit
		}
		if !zeroForOne && target.Cmp(sqrtPriceLimit) > 0 {
			target = sqrtPriceLimit
		}

		step := ComputeSwapStep(sqrtP, target, liquidity, remaining, true, p.feePips)
		spent := new(uint256.Int).Add(step.AmountIn, step.FeeAmount)
		if spent.Cmp(remaining) > 0 {
			spent = remaining
		}
		remaining.Sub(remaining, spent)
		amountOut.Add(amountOut, step.AmountOut)
		sqrtP = step.SqrtRatioNext

		if sqrtP.Cmp(sqrtNextTickPrice) == 0 && initialized {
			info, ok := p.ticks[nextTick]
			if ok {
				delta := new(uint256.Int).Set(info.LiquidityNet)
				if zeroForOne {
					info.Negative = !info.Negative
				}
				if info.Negative {
					if liquidity.Cmp(delta) < 0 {
						liquidity = new(uint256.Int)
					} else {
						liquidity.Sub(liquidity, delta)
					}
				} else {
					liquidity.Add(liquidity, delta)
				}
			}
			if zeroForOne {
				tick = nextTick - 1
			} else {
				tick = nextTick
			}
		} else {
			newTick, ok := GetTickAtSqrtRatio(sqrtP)
			if ok {
				tick = newTick
			}
		}

		if sqrtP.Cmp(sqrtPriceLimit) == 0 {
			break
		}
	}
	return amountOut
}

// observationAt binary-searches p.observations, taken as sorted by ascending
// BlockTimestamp from index 0, and returns the last observation at or before
// target together with the one after it (or itself again at the end). It
// does not follow a ring's rotation and does not interpolate between them.
func (p *Concentrated) observationAt(target uint32) (before, after Observation, ok bool) {
	n := len(p.observations)
	if n == 0 {
		return Observation{}, Observation{}, false
	}
	lo, hi := 0, n-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if p.observations[mid].BlockTimestamp <= target {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	before = p.observations[lo]
	if lo+1 < n {
		after = p.observations[lo+1]
	} else {
		after = before
	}
	return before, after, true
}

// GetSwapData encodes UniswapV3Pool.swap(recipient, zeroForOne,
// amountSpecified, sqrtPriceLimitX96, data). amountSpecified is positive for
// an exact-input swap; sqrtPriceLimitX96 is pushed to the direction's bound
// since minOut is enforced by the caller's payback accounting, not the pool.
func (p *Concentrated) GetSwapData(in, minOut *uint256.Int, pair Pair, recipient common.Address) (calldata []byte, ethValue *big.Int, needsApprove bool, err error) {
	var zeroForOne bool
	switch {
	case pair.In.Address == p.coins[0].Address && pair.Out.Address == p.coins[1].Address:
		zeroForOne = true
	case pair.In.Address == p.coins[1].Address && pair.Out.Address == p.coins[0].Address:
		zeroForOne = false
	default:
		return nil, nil, false, ErrUnsupportedPair
	}
	sqrtPriceLimit := new(uint256.Int)
	if zeroForOne {
		sqrtPriceLimit.AddUint64(sqrtPriceLimit, minSqrtRatio)
		sqrtPriceLimit.AddUint64(sqrtPriceLimit, 1)
	} else {
		sqrtPriceLimit.Sub(maxSqrtRatio, uint256.NewInt(1))
	}
	data := make([]byte, 0, 4+6*32)
	data = append(data, v3SwapSelector...)
	data = append(data, wordAddress(recipient)...)
	data = append(data, wordBool(zeroForOne)...)
	data = append(data, wordUint256(in)...)
	data = append(data, wordUint256(sqrtPriceLimit)...)
	data = append(data, wordUint256(uint256.NewInt(0xA0))...) // offset to data
	data = append(data, wordUint256(new(uint256.Int))...)     // data length 0
	return data, new(big.Int), true, nil
}

var (
	_ Pool            = (*Concentrated)(nil)
	_ SwapDataEncoder = (*Concentrated)(nil)
)
