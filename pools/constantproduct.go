// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pools

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/arbhunter/token"
)

var cpSwapSelector = selector("swap(uint256,uint256,address,bytes)")

// ConstantProduct replicates a Uniswap-v2-family pair: x*y=k with a
// 997/1000 swap fee. Sushiswap and forks share this exact formula.
type ConstantProduct struct {
	addr       common.Address
	coins      [2]token.Token
	reserve0   *uint256.Int
	reserve1   *uint256.Int
	feeNum     *uint256.Int
	feeDen     *uint256.Int
	generation uint64
}

// NewConstantProduct constructs a snapshot. feeNum/feeDen default to 997/1000
// when both are zero, matching the Uniswap v2 reference fee.
func NewConstantProduct(addr common.Address, t0, t1 token.Token, reserve0, reserve1 *uint256.Int, feeNum, feeDen uint64, generation uint64) *ConstantProduct {
	if feeNum == 0 && feeDen == 0 {
		feeNum, feeDen = 997, 1000
	}
	return &ConstantProduct{
		addr:       addr,
		coins:      [2]token.Token{t0, t1},
		reserve0:   new(uint256.Int).Set(reserve0),
		reserve1:   new(uint256.Int).Set(reserve1),
		feeNum:     uint256.NewInt(feeNum),
		feeDen:     uint256.NewInt(feeDen),
		generation: generation,
	}
}

func (p *ConstantProduct) Address() common.Address { return p.addr }
func (p *ConstantProduct) PoolFamily() Family       { return FamilyConstantProduct }
func (p *ConstantProduct) Coins() []token.Token     { return []token.Token{p.coins[0], p.coins[1]} }
func (p *ConstantProduct) Generation() uint64       { return p.generation }

// reserves returns (reserveOf[pair.In], reserveOf[pair.Out], true), or
// (nil, nil, false) if pair is not supported by this pool.
func (p *ConstantProduct) reserves(pair Pair) (in, out *uint256.Int, ok bool) {
	switch {
	case pair.In.Address == p.coins[0].Address && pair.Out.Address == p.coins[1].Address:
		return p.reserve0, p.reserve1, true
	case pair.In.Address == p.coins[1].Address && pair.Out.Address == p.coins[0].Address:
		return p.reserve1, p.reserve0, true
	default:
		return nil, nil, false
	}
}

// GetOutAmount implements out = (r_out * feeNum * in) / (feeDen * r_in + feeNum * in).
func (p *ConstantProduct) GetOutAmount(in *uint256.Int, pair Pair) *uint256.Int {
	if in == nil || in.IsZero() {
		return new(uint256.Int)
	}
	inReserve, outReserve, ok := p.reserves(pair)
	if !ok {
		return new(uint256.Int)
	}
	inWithFee := new(uint256.Int).Mul(p.feeNum, in)
	numerator := new(uint256.Int).Mul(outReserve, inWithFee)
	denominator := new(uint256.Int).Mul(p.feeDen, inReserve)
	denominator.Add(denominator, inWithFee)
	if denominator.IsZero() {
		return new(uint256.Int)
	}
	return numerator.Div(numerator, denominator)
}

// GetInAmount inverts GetOutAmount, rounding up by adding 1 so the round
// trip never returns less than the requested out amount.
func (p *ConstantProduct) GetInAmount(out *uint256.Int, pair Pair) *uint256.Int {
	if out == nil || out.IsZero() {
		return new(uint256.Int)
	}
	inReserve, outReserve, ok := p.reserves(pair)
	if !ok || out.Cmp(outReserve) >= 0 {
		return new(uint256.Int)
	}
	numerator := new(uint256.Int).Mul(inReserve, out)
	numerator.Mul(numerator, p.feeDen)
	denominator := new(uint256.Int).Sub(outReserve, out)
	denominator.Mul(denominator, p.feeNum)
	if denominator.IsZero() {
		return new(uint256.Int)
	}
	result := new(uint256.Int).Div(numerator, denominator)
	return result.AddUint64(result, 1)
}

// MarginalPrice returns the derivative of GetOutAmount at delta, as the
// rational fee*r_in*r_out / (r_in + fee*delta)^2 (num, den unscaled; the
// caller compares ratios, so no common bone scaling is required here).
func (p *ConstantProduct) MarginalPrice(delta *uint256.Int, pair Pair) (num, den *uint256.Int) {
	inReserve, outReserve, ok := p.reserves(pair)
	if !ok {
		return new(uint256.Int), new(uint256.Int)
	}
	num = new(uint256.Int).Mul(p.feeNum, inReserve)
	num.Mul(num, outReserve)

	feeDelta := new(uint256.Int).Mul(p.feeNum, delta)
	feeDelta.Div(feeDelta, p.feeDen)
	base := new(uint256.Int).Add(inReserve, feeDelta)
	den = new(uint256.Int).Mul(base, base)
	return num, den
}

// Reserve0 and Reserve1 expose raw reserves for the optimizer's closed-form
// two-pool solver.
func (p *ConstantProduct) Reserve0() *uint256.Int { return new(uint256.Int).Set(p.reserve0) }
func (p *ConstantProduct) Reserve1() *uint256.Int { return new(uint256.Int).Set(p.reserve1) }
func (p *ConstantProduct) FeeNum() *uint256.Int   { return new(uint256.Int).Set(p.feeNum) }
func (p *ConstantProduct) FeeDen() *uint256.Int   { return new(uint256.Int).Set(p.feeDen) }

// GetSwapData encodes UniswapV2Pair.swap(amount0Out, amount1Out, to, data).
// Constant-product pools read their own token balance instead of pulling via
// transferFrom, so the composer push-transfers the input ahead of this call
// and needsApprove is always false.
func (p *ConstantProduct) GetSwapData(in, minOut *uint256.Int, pair Pair, recipient common.Address) (calldata []byte, ethValue *big.Int, needsApprove bool, err error) {
	if _, _, ok := p.reserves(pair); !ok {
		return nil, nil, false, ErrUnsupportedPair
	}
	out := p.GetOutAmount(in, pair)
	amount0Out, amount1Out := new(uint256.Int), new(uint256.Int)
	if pair.Out.Address == p.coins[1].Address {
		amount1Out = out
	} else {
		amount0Out = out
	}
	data := make([]byte, 0, 4+5*32)
	data = append(data, cpSwapSelector...)
	data = append(data, wordUint256(amount0Out)...)
	data = append(data, wordUint256(amount1Out)...)
	data = append(data, wordAddress(recipient)...)
	data = append(data, wordUint256(uint256.NewInt(0x80))...)
	data = append(data, wordUint256(new(uint256.Int))...)
	return data, new(big.Int), false, nil
}

var (
	_ Pool            = (*ConstantProduct)(nil)
	_ InAmountQuoter  = (*ConstantProduct)(nil)
	_ MarginalPricer  = (*ConstantProduct)(nil)
	_ SwapDataEncoder = (*ConstantProduct)(nil)
)
