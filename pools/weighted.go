// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pools

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/arbhunter/fixedpoint"
	"github.com/luxfi/arbhunter/token"
)

var (
	maxInRatio  = new(uint256.Int).Div(fixedpoint.Bone, uint256.NewInt(2))
	machEpsilon = uint256.NewInt(222)

	swapExactAmountInSelector = selector("swapExactAmountIn(address,uint256,address,uint256,uint256)")
	maxUint256Weighted        = new(uint256.Int).Not(new(uint256.Int))
)

// Weighted replicates a Balancer-style weighted pool: reserves are scaled by
// per-token weights (summing to fixedpoint.Bone across the pool) instead of
// held 1:1 as in a constant-product pair.
type Weighted struct {
	addr       common.Address
	coins      [2]token.Token
	balance0   *uint256.Int
	balance1   *uint256.Int
	weight0    *uint256.Int
	weight1    *uint256.Int
	swapFee    *uint256.Int
	generation uint64
}

func NewWeighted(addr common.Address, t0, t1 token.Token, balance0, balance1, weight0, weight1, swapFee *uint256.Int, generation uint64) *Weighted {
	return &Weighted{
		addr:       addr,
		coins:      [2]token.Token{t0, t1},
		balance0:   balance0,
		balance1:   balance1,
		weight0:    weight0,
		weight1:    weight1,
		swapFee:    swapFee,
		generation: generation,
	}
}

func (p *Weighted) Address() common.Address { return p.addr }
func (p *Weighted) PoolFamily() Family       { return FamilyWeighted }
func (p *Weighted) Coins() []token.Token     { return []token.Token{p.coins[0], p.coins[1]} }
func (p *Weighted) Generation() uint64       { return p.generation }

func (p *Weighted) sides(pair Pair) (balIn, balOut, wIn, wOut *uint256.Int, ok bool) {
	switch {
	case pair.In.Address == p.coins[0].Address && pair.Out.Address == p.coins[1].Address:
		return p.balance0, p.balance1, p.weight0, p.weight1, true
	case pair.In.Address == p.coins[1].Address && pair.Out.Address == p.coins[0].Address:
		return p.balance1, p.balance0, p.weight1, p.weight0, true
	default:
		return nil, nil, nil, nil, false
	}
}

// SpotPrice implements Balancer's spot_price: (balIn/wIn) / (balOut/wOut),
// scaled up by bone/(bone-fee) to reflect the fee charged on the next trade.
func (p *Weighted) SpotPrice(pair Pair) (*uint256.Int, error) {
	balIn, balOut, wIn, wOut, ok := p.sides(pair)
	if !ok {
		return nil, ErrUnsupportedPair
	}
	numer, err := fixedpoint.Bdiv(balIn, wIn)
	if err != nil {
		return nil, err
	}
	denom, err := fixedpoint.Bdiv(balOut, wOut)
	if err != nil {
		return nil, err
	}
	ratio, err := fixedpoint.Bdiv(numer, denom)
	if err != nil {
		return nil, err
	}
	feeComplement := new(uint256.Int).Sub(fixedpoint.Bone, p.swapFee)
	scale, err := fixedpoint.Bdiv(fixedpoint.Bone, feeComplement)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Bmul(ratio, scale)
}

// GetOutAmount implements calcOutGivenIn from Balancer's BMath.sol: rejects
// trades above half the input reserve or at-or-below the 222-wei rounding
// floor, and enforces the post-trade spot price never decreases.
func (p *Weighted) GetOutAmount(in *uint256.Int, pair Pair) *uint256.Int {
	zero := new(uint256.Int)
	if in == nil || in.IsZero() {
		return zero
	}
	balIn, balOut, wIn, wOut, ok := p.sides(pair)
	if !ok {
		return zero
	}
	spotBefore, err := p.SpotPrice(pair)
	if err != nil {
		return zero
	}

	maxIn, err := fixedpoint.Bmul(balIn, maxInRatio)
	if err != nil || in.Cmp(maxIn) > 0 || in.Cmp(machEpsilon) <= 0 {
		return zero
	}

	weightRatio, err := fixedpoint.Bdiv(wIn, wOut)
	if err != nil {
		return zero
	}
	feeComplement := new(uint256.Int).Sub(fixedpoint.Bone, p.swapFee)
	adjustedIn, err := fixedpoint.Bmul(in, feeComplement)
	if err != nil {
		return zero
	}
	denom := new(uint256.Int).Add(balIn, adjustedIn)
	y, err := fixedpoint.Bdiv(balIn, denom)
	if err != nil {
		return zero
	}
	foo, err := fixedpoint.Bpow(y, weightRatio)
	if err != nil {
		return zero
	}
	bar := new(uint256.Int).Sub(fixedpoint.Bone, foo)
	outAmount, err := fixedpoint.Bmul(balOut, bar)
	if err != nil {
		return zero
	}

	newBalIn := new(uint256.Int).Add(balIn, in)
	if outAmount.Cmp(balOut) >= 0 {
		return zero
	}
	newBalOut := new(uint256.Int).Sub(balOut, outAmount)
	spotAfter, err := spotPriceRaw(newBalIn, wIn, newBalOut, wOut, p.swapFee)
	if err != nil || spotAfter.Cmp(spotBefore) < 0 {
		return zero
	}
	return outAmount
}

func spotPriceRaw(balIn, wIn, balOut, wOut, swapFee *uint256.Int) (*uint256.Int, error) {
	numer, err := fixedpoint.Bdiv(balIn, wIn)
	if err != nil {
		return nil, err
	}
	denom, err := fixedpoint.Bdiv(balOut, wOut)
	if err != nil {
		return nil, err
	}
	ratio, err := fixedpoint.Bdiv(numer, denom)
	if err != nil {
		return nil, err
	}
	feeComplement := new(uint256.Int).Sub(fixedpoint.Bone, swapFee)
	scale, err := fixedpoint.Bdiv(fixedpoint.Bone, feeComplement)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Bmul(ratio, scale)
}

// MarginalPrice approximates the derivative of GetOutAmount at delta by the
// average rate out/delta after moving delta through the pool: for a concave
// weighted curve this decreases monotonically in delta just as the true
// instantaneous derivative does, which is all the no-arbitrage bisection's
// sign comparison needs.
func (p *Weighted) MarginalPrice(delta *uint256.Int, pair Pair) (num, den *uint256.Int) {
	if _, _, _, _, ok := p.sides(pair); !ok {
		return new(uint256.Int), new(uint256.Int)
	}
	d := delta
	if d == nil || d.IsZero() {
		d = uint256.NewInt(1)
	}
	out := p.GetOutAmount(d, pair)
	return out, new(uint256.Int).Set(d)
}

// GetSwapData encodes Balancer V1's swapExactAmountIn(tokenIn, tokenAmountIn,
// tokenOut, minAmountOut, maxPrice). Weighted pools pull their input via
// transferFrom, so the composer must approve first. maxPrice is left
// unbounded since slippage is already enforced by minAmountOut.
func (p *Weighted) GetSwapData(in, minOut *uint256.Int, pair Pair, recipient common.Address) (calldata []byte, ethValue *big.Int, needsApprove bool, err error) {
	if _, _, _, _, ok := p.sides(pair); !ok {
		return nil, nil, false, ErrUnsupportedPair
	}
	data := make([]byte, 0, 4+5*32)
	data = append(data, swapExactAmountInSelector...)
	data = append(data, wordAddress(pair.In.Address)...)
	data = append(data, wordUint256(in)...)
	data = append(data, wordAddress(pair.Out.Address)...)
	data = append(data, wordUint256(minOut)...)
	data = append(data, wordUint256(maxUint256Weighted)...)
	return data, new(big.Int), true, nil
}

var (
	_ Pool            = (*Weighted)(nil)
	_ MarginalPricer  = (*Weighted)(nil)
	_ SwapDataEncoder = (*Weighted)(nil)
)
