// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pools

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/arbhunter/token"
)

// baseCacheExpirySeconds is the TTL a metapool trusts its cached base-pool
// virtual price for, before it falls back to the base pool's own quote.
const baseCacheExpirySeconds = 10 * 60

// MetaStable replicates a Curve metapool: two coins, where the second
// ("MAX_COIN") is a virtual balance denominated in a wrapped base StableSwap
// pool's LP token. Exchanges against the underlying coins route through the
// base pool and are rolled back afterward so the simulator stays stateless.
type MetaStable struct {
	addr       common.Address
	coins      [2]token.Token // coins[1] is the base pool's LP token
	balances   [2]*uint256.Int
	rates      [2]*uint256.Int
	fee        *uint256.Int
	generation uint64

	amp        *uint256.Int
	aPrecision *uint256.Int

	base                *StableSwap
	baseVirtualPrice    *uint256.Int
	baseCacheUpdated    uint64
	blockTimestamp      uint64

	feeAsset        common.Address // the coin charging a Tether-style transfer fee, if any
	basisPointsRate *uint256.Int
	maximumFee      *uint256.Int

	nativeETH bool // true for aETH/sETH-style metapools trading native ETH, not WETH
}

// MetaStableConfig groups the constructor's fields.
type MetaStableConfig struct {
	Coins            [2]token.Token
	Balances         [2]*uint256.Int
	Rates            [2]*uint256.Int
	Fee              *uint256.Int
	Amp              *uint256.Int
	APrecision       *uint256.Int
	Base             *StableSwap
	BaseVirtualPrice *uint256.Int
	BaseCacheUpdated uint64
	BlockTimestamp   uint64
	FeeAsset         common.Address
	BasisPointsRate  *uint256.Int
	MaximumFee       *uint256.Int
	NativeETH        bool
}

func NewMetaStable(addr common.Address, cfg MetaStableConfig, generation uint64) *MetaStable {
	aPrec := cfg.APrecision
	if aPrec == nil {
		aPrec = uint256.NewInt(100)
	}
	return &MetaStable{
		addr:             addr,
		coins:            cfg.Coins,
		balances:         cfg.Balances,
		rates:            cfg.Rates,
		fee:              cfg.Fee,
		generation:       generation,
		amp:              cfg.Amp,
		aPrecision:       aPrec,
		base:             cfg.Base,
		baseVirtualPrice: cfg.BaseVirtualPrice,
		baseCacheUpdated: cfg.BaseCacheUpdated,
		blockTimestamp:   cfg.BlockTimestamp,
		feeAsset:         cfg.FeeAsset,
		basisPointsRate:  cfg.BasisPointsRate,
		maximumFee:       cfg.MaximumFee,
		nativeETH:        cfg.NativeETH,
	}
}

func (p *MetaStable) Address() common.Address { return p.addr }
func (p *MetaStable) PoolFamily() Family       { return FamilyMetaStable }
func (p *MetaStable) Coins() []token.Token     { return []token.Token{p.coins[0], p.coins[1]} }
func (p *MetaStable) Generation() uint64       { return p.generation }

// vpRate returns the base pool's virtual price, refreshing from the live
// base-pool quote once the cached value is older than baseCacheExpirySeconds.
func (p *MetaStable) vpRate() *uint256.Int {
	if p.blockTimestamp > p.baseCacheUpdated+baseCacheExpirySeconds && p.base != nil {
		d, ok := getD(p.base.xp(), p.base.currentA(), p.base.aPrecision)
		if ok && !d.IsZero() {
			return d
		}
	}
	return p.baseVirtualPrice
}

func (p *MetaStable) xpMem(vpRate *uint256.Int) [2]*uint256.Int {
	rates := p.rates
	rates[1] = vpRate
	var out [2]*uint256.Int
	for i := range out {
		v := new(uint256.Int).Mul(rates[i], p.balances[i])
		out[i] = v.Div(v, fixedPrecision)
	}
	return out
}

func (p *MetaStable) coinIndex(addr common.Address) int {
	for i, c := range p.coins {
		if c.Address == addr {
			return i
		}
	}
	return -1
}

func (p *MetaStable) dxWFee(x *uint256.Int) *uint256.Int {
	if p.basisPointsRate == nil {
		return x
	}
	fee := new(uint256.Int).Mul(x, p.basisPointsRate)
	fee.Div(fee, uint256.NewInt(10_000))
	if p.maximumFee != nil && fee.Cmp(p.maximumFee) > 0 {
		fee = p.maximumFee
	}
	if fee.Cmp(x) >= 0 {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(x, fee)
}

// GetOutAmount implements exchange(i, j, dx) for the two metapool coins
// (i, j in {0, 1}). Swaps that route through an underlying base-pool coin
// are handled by GetOutAmountUnderlying instead.
func (p *MetaStable) GetOutAmount(in *uint256.Int, pair Pair) *uint256.Int {
	if in == nil || in.IsZero() {
		return new(uint256.Int)
	}
	i := p.coinIndex(pair.In.Address)
	j := p.coinIndex(pair.Out.Address)
	if i < 0 || j < 0 || i == j {
		return new(uint256.Int)
	}
	vpRate := p.vpRate()
	xp := p.xpMem(vpRate)

	x := new(uint256.Int).Mul(in, p.rates[i])
	x.Div(x, fixedPrecision)
	x.Add(x, xp[i])

	y, ok := getY(i, j, x, xp[:], p.amp, p.aPrecision)
	if !ok || xp[j].Cmp(y) <= 0 {
		return new(uint256.Int)
	}
	dy := new(uint256.Int).Sub(xp[j], y)
	dy.SubUint64(dy, 1)
	dyFee := new(uint256.Int).Mul(dy, p.fee)
	dyFee.Div(dyFee, uint256.NewInt(feeDenominator))
	dy.Sub(dy, dyFee)
	dy.Mul(dy, fixedPrecision)
	dy.Div(dy, p.rates[j])
	return dy
}

// GetOutAmountUnderlying prices a swap where one side is a coin held inside
// the wrapped base pool rather than the metapool's own two coins, and never
// mutates either pool's balances. With a base-coin input it simulates the
// deposit through the base pool's invariant D and then swaps the minted LP
// amount into metapool coin 0. With metapool coin 0 as input it returns the
// amount of base-pool LP token (metapool coin 1) the swap yields; withdrawing
// that LP amount as a single base coin is not simulated, so baseIdx is not
// used on that path.
func (p *MetaStable) GetOutAmountUnderlying(in *uint256.Int, inIsBase bool, baseIdx int, metaOther token.Token) *uint256.Int {
	if in == nil || in.IsZero() || p.base == nil {
		return new(uint256.Int)
	}
	dx := in
	if p.feeAsset != (common.Address{}) {
		dx = p.dxWFee(in)
	}
	vpRate := p.vpRate()
	xp := p.xpMem(vpRate)

	metaJ := 1
	metaI := 1
	var x *uint256.Int
	if inIsBase {
		// Depositing dx into the base pool mints a synthetic amount of its
		// LP token; approximate via the base pool's invariant D at the
		// post-deposit balances, matching base_pool.add_liquidity's effect
		// on the metapool's virtual coin-1 balance.
		basePost := make([]*uint256.Int, p.base.NCoins())
		for k, b := range p.base.balances {
			if k == baseIdx {
				basePost[k] = new(uint256.Int).Add(b, dx)
			} else {
				basePost[k] = new(uint256.Int).Set(b)
			}
		}
		baseXp := make([]*uint256.Int, len(basePost))
		for k := range basePost {
			v := new(uint256.Int).Mul(p.base.rates[k], basePost[k])
			baseXp[k] = v.Div(v, fixedPrecision)
		}
		dBefore, ok1 := getD(p.base.xp(), p.base.currentA(), p.base.aPrecision)
		dAfter, ok2 := getD(baseXp, p.base.currentA(), p.base.aPrecision)
		if !ok1 || !ok2 || dBefore.IsZero() {
			return new(uint256.Int)
		}
		minted := new(uint256.Int).Sub(dAfter, dBefore)
		v := new(uint256.Int).Mul(minted, vpRate)
		x = v.Div(v, fixedPrecision)
		x.Add(x, xp[1])
		metaI = 1
		metaJ = 0
		_ = metaOther
	} else {
		x = new(uint256.Int).Mul(dx, p.rates[0])
		x.Div(x, fixedPrecision)
		x.Add(x, xp[0])
		metaI = 0
		metaJ = 1
	}

	y, ok := getY(metaI, metaJ, x, xp[:], p.amp, p.aPrecision)
	if !ok || xp[metaJ].Cmp(y) <= 0 {
		return new(uint256.Int)
	}
	dy := new(uint256.Int).Sub(xp[metaJ], y)
	dy.SubUint64(dy, 1)
	dyFee := new(uint256.Int).Mul(dy, p.fee)
	dyFee.Div(dyFee, uint256.NewInt(feeDenominator))
	dy.Sub(dy, dyFee)
	dy.Mul(dy, fixedPrecision)
	dy.Div(dy, p.rates[metaJ])
	return dy
}

// TradesNativeETH reports whether this metapool exchanges native ETH rather
// than wrapped WETH, e.g. the aETH/sETH metapools. When true the composer
// unwraps the WETH input before the swap call and wraps the ETH output after it.
func (p *MetaStable) TradesNativeETH() bool { return p.nativeETH }

// GetSwapData encodes Curve's exchange(i, j, dx, min_dy). When nativeETH is
// set, dx is forwarded as msg.value instead of pulled via transferFrom.
func (p *MetaStable) GetSwapData(in, minOut *uint256.Int, pair Pair, recipient common.Address) (calldata []byte, ethValue *big.Int, needsApprove bool, err error) {
	i := p.coinIndex(pair.In.Address)
	j := p.coinIndex(pair.Out.Address)
	if i < 0 || j < 0 || i == j {
		return nil, nil, false, ErrUnsupportedPair
	}
	data := make([]byte, 0, 4+4*32)
	data = append(data, exchangeSelector...)
	data = append(data, wordInt128(i)...)
	data = append(data, wordInt128(j)...)
	data = append(data, wordUint256(in)...)
	data = append(data, wordUint256(minOut)...)
	if p.nativeETH {
		return data, in.ToBig(), false, nil
	}
	return data, new(big.Int), true, nil
}

var (
	_ Pool            = (*MetaStable)(nil)
	_ SwapDataEncoder = (*MetaStable)(nil)
	_ NativeETHTrader = (*MetaStable)(nil)
)
