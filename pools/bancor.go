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

var convertByPathSelector = selector("convertByPath(address[],uint256,uint256,address,address,uint256)")

// bancorMaxWeight is the Bancor reference contract's PPM weight ceiling
// (1,000,000 == 100%); in_weight/out_weight must fall in (0, bancorMaxWeight].
const bancorMaxWeight = 1_000_000

// Bancor replicates a Bancor-network conversion path between two connector
// tokens, each carrying a reserve and a weight in parts-per-million. Equal
// weights collapse to the constant-product formula; unequal weights route
// through the optimal-log/optimal-exp power series in package fixedpoint.
type Bancor struct {
	addr        common.Address
	coins       [2]token.Token
	reserve0    *uint256.Int
	reserve1    *uint256.Int
	weight0     uint32
	weight1     uint32
	generation  uint64
}

func NewBancor(addr common.Address, t0, t1 token.Token, reserve0, reserve1 *uint256.Int, weight0, weight1 uint32, generation uint64) *Bancor {
	return &Bancor{
		addr:       addr,
		coins:      [2]token.Token{t0, t1},
		reserve0:   reserve0,
		reserve1:   reserve1,
		weight0:    weight0,
		weight1:    weight1,
		generation: generation,
	}
}

func (p *Bancor) Address() common.Address { return p.addr }
func (p *Bancor) PoolFamily() Family       { return FamilyBancor }
func (p *Bancor) Coins() []token.Token     { return []token.Token{p.coins[0], p.coins[1]} }
func (p *Bancor) Generation() uint64       { return p.generation }

func (p *Bancor) sides(pair Pair) (inReserve, outReserve *uint256.Int, inWeight, outWeight uint32, ok bool) {
	switch {
	case pair.In.Address == p.coins[0].Address && pair.Out.Address == p.coins[1].Address:
		return p.reserve0, p.reserve1, p.weight0, p.weight1, true
	case pair.In.Address == p.coins[1].Address && pair.Out.Address == p.coins[0].Address:
		return p.reserve1, p.reserve0, p.weight1, p.weight0, true
	default:
		return nil, nil, 0, 0, false
	}
}

// GetOutAmount implements convert(): the constant-product shortcut when
// weights match, else the full power-series conversion formula. Weights
// outside (0, bancorMaxWeight] make the pair non-convertible, returning 0.
func (p *Bancor) GetOutAmount(in *uint256.Int, pair Pair) *uint256.Int {
	zero := new(uint256.Int)
	if in == nil || in.IsZero() {
		return zero
	}
	inReserve, outReserve, inWeight, outWeight, ok := p.sides(pair)
	if !ok {
		return zero
	}
	if inWeight == 0 || inWeight > bancorMaxWeight || outWeight == 0 || outWeight > bancorMaxWeight {
		return zero
	}
	if inWeight == outWeight {
		num := new(uint256.Int).Mul(outReserve, in)
		den := new(uint256.Int).Add(inReserve, in)
		if den.IsZero() {
			return zero
		}
		return num.Div(num, den)
	}

	baseN := new(big.Int).Add(u256ToBig(inReserve), u256ToBig(in))
	baseD := u256ToBig(inReserve)
	result, precision, ok := fixedpoint.Power(baseN, baseD, big.NewInt(int64(inWeight)), big.NewInt(int64(outWeight)))
	if !ok || result == nil || result.Sign() == 0 {
		return zero
	}

	outR := u256ToBig(outReserve)
	temp1 := new(big.Int).Mul(outR, result)
	temp2 := new(big.Int).Lsh(outR, precision)
	out := new(big.Int).Sub(temp1, temp2)
	out.Div(out, result)
	if out.Sign() <= 0 {
		return zero
	}
	return bigToU256(out)
}

func u256ToBig(v *uint256.Int) *big.Int {
	return v.ToBig()
}

func bigToU256(v *big.Int) *uint256.Int {
	out, overflow := uint256.FromBig(v)
	if overflow {
		return new(uint256.Int)
	}
	return out
}

// GetSwapData encodes BancorNetwork.convertByPath(path, amount, minReturn,
// beneficiary, affiliateAccount, affiliateFee), with path = [tokenIn,
// converter, tokenOut] and no affiliate. Bancor pulls the input via
// transferFrom, so the composer must approve first.
func (p *Bancor) GetSwapData(in, minOut *uint256.Int, pair Pair, recipient common.Address) (calldata []byte, ethValue *big.Int, needsApprove bool, err error) {
	if _, _, _, _, ok := p.sides(pair); !ok {
		return nil, nil, false, ErrUnsupportedPair
	}
	const headWords = 6
	data := make([]byte, 0, 4+headWords*32+4*32)
	data = append(data, convertByPathSelector...)
	data = append(data, wordUint256(uint256.NewInt(uint64(headWords*32)))...) // offset to path
	data = append(data, wordUint256(in)...)
	data = append(data, wordUint256(minOut)...)
	data = append(data, wordAddress(recipient)...)
	data = append(data, wordAddress(common.Address{})...)
	data = append(data, wordUint256(new(uint256.Int))...)
	// path tail: length-prefixed address[3]
	data = append(data, wordUint256(uint256.NewInt(3))...)
	data = append(data, wordAddress(pair.In.Address)...)
	data = append(data, wordAddress(p.addr)...)
	data = append(data, wordAddress(pair.Out.Address)...)
	return data, new(big.Int), true, nil
}

var (
	_ Pool            = (*Bancor)(nil)
	_ SwapDataEncoder = (*Bancor)(nil)
)
