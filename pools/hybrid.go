// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pools

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/arbhunter/token"
)

var (
	hybridFeeDenominator = uint256.NewInt(1e18)
	hybridSwapSelector   = selector("swap(address,address,uint256,uint256,address)")
)

// Hybrid replicates a Mooniswap-style pool: reserves are directional, since
// the contract tracks a separate "balance for addition" and "balance for
// removal" per token depending on which side of the pair it sits on.
type Hybrid struct {
	addr       common.Address
	coins      [2]token.Token
	fee        *uint256.Int
	generation uint64

	// reserves[Pair{In,Out}] = (inReserve, outReserve) as reported by the
	// contract's getBalanceForAddition(in)/getBalanceForRemoval(out).
	reserves map[[2]common.Address][2]*uint256.Int
}

func NewHybrid(addr common.Address, t0, t1 token.Token, fee *uint256.Int, generation uint64) *Hybrid {
	return &Hybrid{
		addr:       addr,
		coins:      [2]token.Token{t0, t1},
		fee:        fee,
		generation: generation,
		reserves:   make(map[[2]common.Address][2]*uint256.Int, 2),
	}
}

// SetDirectionalReserves records the (addition, removal) balance pair for a
// specific ordered (in, out) token direction, matching the asymmetry the
// contract exposes between getBalanceForAddition and getBalanceForRemoval.
func (p *Hybrid) SetDirectionalReserves(in, out token.Token, inReserve, outReserve *uint256.Int) {
	p.reserves[[2]common.Address{in.Address, out.Address}] = [2]*uint256.Int{inReserve, outReserve}
}

func (p *Hybrid) Address() common.Address { return p.addr }
func (p *Hybrid) PoolFamily() Family       { return FamilyHybrid }
func (p *Hybrid) Coins() []token.Token     { return []token.Token{p.coins[0], p.coins[1]} }
func (p *Hybrid) Generation() uint64       { return p.generation }

// GetOutAmount implements getReturn: tax the input by fee/1e18, then apply
// the constant-product formula to the taxed amount. A zero tax (fee too
// small relative to in_amount) yields a zero quote, matching the reference.
func (p *Hybrid) GetOutAmount(in *uint256.Int, pair Pair) *uint256.Int {
	zero := new(uint256.Int)
	if in == nil || in.IsZero() {
		return zero
	}
	key := [2]common.Address{pair.In.Address, pair.Out.Address}
	rs, ok := p.reserves[key]
	if !ok {
		return zero
	}
	inReserve, outReserve := rs[0], rs[1]

	tax := new(uint256.Int).Mul(in, p.fee)
	tax.Div(tax, hybridFeeDenominator)
	if tax.IsZero() {
		return zero
	}
	taxedAmount := new(uint256.Int).Sub(in, tax)

	num := new(uint256.Int).Mul(outReserve, taxedAmount)
	den := new(uint256.Int).Add(inReserve, taxedAmount)
	if den.IsZero() {
		return zero
	}
	return num.Div(num, den)
}

// MarginalPrice returns the derivative of GetOutAmount at delta,
// k*inReserve*outReserve / (inReserve + k*delta)^2 with k = 1 - fee/1e18,
// as num/den with the 1e18 fee scale carried in both; it is otherwise
// unscaled since the optimizer only ever compares price ratios.
func (p *Hybrid) MarginalPrice(delta *uint256.Int, pair Pair) (num, den *uint256.Int) {
	key := [2]common.Address{pair.In.Address, pair.Out.Address}
	rs, ok := p.reserves[key]
	if !ok {
		return new(uint256.Int), new(uint256.Int)
	}
	inReserve, outReserve := rs[0], rs[1]

	keep := new(uint256.Int).Sub(hybridFeeDenominator, p.fee)
	num = new(uint256.Int).Mul(keep, inReserve)
	num.Mul(num, outReserve)

	keptDelta := new(uint256.Int).Mul(keep, delta)
	keptDelta.Div(keptDelta, hybridFeeDenominator)
	base := new(uint256.Int).Add(inReserve, keptDelta)
	den = new(uint256.Int).Mul(base, base)
	den.Mul(den, hybridFeeDenominator)
	return num, den
}

// GetSwapData encodes Mooniswap's swap(srcToken, dstToken, amount, minReturn,
// referral). Mooniswap pulls the input via transferFrom, so the composer
// must approve first; referral is left at the zero address.
func (p *Hybrid) GetSwapData(in, minOut *uint256.Int, pair Pair, recipient common.Address) (calldata []byte, ethValue *big.Int, needsApprove bool, err error) {
	key := [2]common.Address{pair.In.Address, pair.Out.Address}
	if _, ok := p.reserves[key]; !ok {
		return nil, nil, false, ErrUnsupportedPair
	}
	data := make([]byte, 0, 4+5*32)
	data = append(data, hybridSwapSelector...)
	data = append(data, wordAddress(pair.In.Address)...)
	data = append(data, wordAddress(pair.Out.Address)...)
	data = append(data, wordUint256(in)...)
	data = append(data, wordUint256(minOut)...)
	data = append(data, wordAddress(common.Address{})...)
	return data, new(big.Int), true, nil
}

var (
	_ Pool            = (*Hybrid)(nil)
	_ MarginalPricer  = (*Hybrid)(nil)
	_ SwapDataEncoder = (*Hybrid)(nil)
)
