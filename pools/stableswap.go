// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pools

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/arbhunter/token"
)

var exchangeSelector = selector("exchange(int128,int128,uint256,uint256)")

// maxStableIterations bounds the Newton-style D/y convergence loops. Per the
// data model contract, a loop that exhausts this bound makes the pool
// non-exchangeable for the block rather than looping forever.
const maxStableIterations = 255

const feeDenominator = 10_000_000_000 // 10^10, per spec.md §3

// StableSwap replicates a Curve-family pool: N coins, an amplification
// coefficient (optionally ramping linearly between initial_A and future_A),
// and an optional fee-on-transfer coin (FeeIndex, e.g. USDT in the 3pool).
type StableSwap struct {
	addr       common.Address
	coins      []token.Token
	balances   []*uint256.Int
	rates      []*uint256.Int // precision multipliers, one per coin
	fee        *uint256.Int   // out of feeDenominator
	adminFee   *uint256.Int   // out of feeDenominator
	generation uint64

	// Amplification ramp.
	initialA     *uint256.Int
	futureA      *uint256.Int
	initialATime uint64
	futureATime  uint64
	blockTime    uint64

	// aPrecision is 1 for plain pools, 100 for Compound-style/metapool
	// variants per spec.md §4.B.2's "_A_precision = 100" substitution.
	aPrecision *uint256.Int

	// Fee-on-transfer support (e.g. the USDT leg of the 3pool).
	feeIndex            int // -1 if no coin charges a transfer fee
	basisPointsRate     *uint256.Int
	maximumFee          *uint256.Int
}

// StableSwapConfig groups the constructor's optional fields.
type StableSwapConfig struct {
	Coins        []token.Token
	Balances     []*uint256.Int
	Rates        []*uint256.Int
	Fee          *uint256.Int
	AdminFee     *uint256.Int
	InitialA     *uint256.Int
	FutureA      *uint256.Int
	InitialATime uint64
	FutureATime  uint64
	BlockTime    uint64
	APrecision   *uint256.Int // nil defaults to 1
	FeeIndex     int          // -1 when no coin charges a per-transfer fee
	BasisPointsRate *uint256.Int
	MaximumFee      *uint256.Int
}

func NewStableSwap(addr common.Address, cfg StableSwapConfig, generation uint64) *StableSwap {
	aPrec := cfg.APrecision
	if aPrec == nil {
		aPrec = uint256.NewInt(1)
	}
	feeIndex := cfg.FeeIndex
	if feeIndex == 0 && cfg.BasisPointsRate == nil {
		feeIndex = -1
	}
	return &StableSwap{
		addr:            addr,
		coins:           cfg.Coins,
		balances:        cfg.Balances,
		rates:           cfg.Rates,
		fee:             cfg.Fee,
		adminFee:        cfg.AdminFee,
		generation:      generation,
		initialA:        cfg.InitialA,
		futureA:         cfg.FutureA,
		initialATime:    cfg.InitialATime,
		futureATime:     cfg.FutureATime,
		blockTime:       cfg.BlockTime,
		aPrecision:      aPrec,
		feeIndex:        feeIndex,
		basisPointsRate: cfg.BasisPointsRate,
		maximumFee:      cfg.MaximumFee,
	}
}

func (p *StableSwap) Address() common.Address { return p.addr }
func (p *StableSwap) PoolFamily() Family       { return FamilyStableSwap }
func (p *StableSwap) Coins() []token.Token     { return p.coins }
func (p *StableSwap) Generation() uint64       { return p.generation }
func (p *StableSwap) NCoins() int              { return len(p.coins) }

// currentA implements the linear ramp in spec.md §4.B.2: interpolate
// between initial_A and future_A while block_ts < future_A_time.
func (p *StableSwap) currentA() *uint256.Int {
	if p.blockTime >= p.futureATime || p.futureATime == 0 {
		return p.futureA
	}
	t0, t1 := p.initialATime, p.futureATime
	if t1 <= t0 {
		return p.futureA
	}
	elapsed := uint256.NewInt(p.blockTime - t0)
	span := uint256.NewInt(t1 - t0)
	if p.futureA.Cmp(p.initialA) > 0 {
		delta := new(uint256.Int).Sub(p.futureA, p.initialA)
		delta.Mul(delta, elapsed)
		delta.Div(delta, span)
		return new(uint256.Int).Add(p.initialA, delta)
	}
	delta := new(uint256.Int).Sub(p.initialA, p.futureA)
	delta.Mul(delta, elapsed)
	delta.Div(delta, span)
	return new(uint256.Int).Sub(p.initialA, delta)
}

func (p *StableSwap) xp() []*uint256.Int {
	n := len(p.balances)
	out := make([]*uint256.Int, n)
	for i := range out {
		v := new(uint256.Int).Mul(p.rates[i], p.balances[i])
		out[i] = v.Div(v, fixedPrecision)
	}
	return out
}

var fixedPrecision = uint256.NewInt(1e18)

// getD iterates D <- (Ann*S + D_P*N)*D / ((Ann-A_PREC)*D + (N+1)*D_P) until
// convergence within 1 unit, or maxStableIterations is exhausted (returns
// ok=false, per spec.md §3's non-convergence rule).
func getD(xp []*uint256.Int, amp, aPrecision *uint256.Int) (d *uint256.Int, ok bool) {
	n := uint256.NewInt(uint64(len(xp)))
	s := new(uint256.Int)
	for _, x := range xp {
		s.Add(s, x)
	}
	if s.IsZero() {
		return new(uint256.Int), true
	}
	ann := new(uint256.Int).Mul(amp, n)
	d = new(uint256.Int).Set(s)
	for i := 0; i < maxStableIterations; i++ {
		dP := new(uint256.Int).Set(d)
		for _, x := range xp {
			denom := new(uint256.Int).Mul(x, n)
			if denom.IsZero() {
				return nil, false
			}
			dP.Mul(dP, d)
			dP.Div(dP, denom)
		}
		dPrev := new(uint256.Int).Set(d)

		// numerator = (Ann*S/A_PREC + D_P*N) * D
		annS := new(uint256.Int).Mul(ann, s)
		annS.Div(annS, aPrecision)
		numerator := new(uint256.Int).Mul(dP, n)
		numerator.Add(numerator, annS)
		numerator.Mul(numerator, d)

		// denominator = (Ann-A_PREC)*D/A_PREC + (N+1)*D_P
		annMinus := new(uint256.Int).Sub(ann, aPrecision)
		annMinus.Mul(annMinus, d)
		annMinus.Div(annMinus, aPrecision)
		nPlus1 := new(uint256.Int).Add(n, uint256.NewInt(1))
		nPlus1.Mul(nPlus1, dP)
		denominator := new(uint256.Int).Add(annMinus, nPlus1)
		if denominator.IsZero() {
			return nil, false
		}
		d = numerator.Div(numerator, denominator)

		if d.Cmp(dPrev) > 0 {
			if new(uint256.Int).Sub(d, dPrev).Cmp(uint256.NewInt(1)) <= 0 {
				return d, true
			}
		} else {
			if new(uint256.Int).Sub(dPrev, d).Cmp(uint256.NewInt(1)) <= 0 {
				return d, true
			}
		}
	}
	return nil, false
}

// getY solves for the new balance of coin j given coin i's balance is x,
// via y <- (y^2 + c) / (2y + b - D), converging within 1 unit or bailing.
func getY(i, j int, x *uint256.Int, xp []*uint256.Int, amp, aPrecision *uint256.Int) (y *uint256.Int, ok bool) {
	if i == j || i < 0 || j < 0 || i >= len(xp) || j >= len(xp) {
		return nil, false
	}
	d, ok := getD(xp, amp, aPrecision)
	if !ok {
		return nil, false
	}
	n := uint256.NewInt(uint64(len(xp)))
	ann := new(uint256.Int).Mul(amp, n)

	c := new(uint256.Int).Set(d)
	s := new(uint256.Int)
	for k := range xp {
		var xk *uint256.Int
		switch {
		case k == i:
			xk = x
		case k == j:
			continue
		default:
			xk = xp[k]
		}
		s.Add(s, xk)
		c.Mul(c, d)
		c.Div(c, new(uint256.Int).Mul(xk, n))
	}
	c.Mul(c, d)
	c.Mul(c, aPrecision)
	c.Div(c, new(uint256.Int).Mul(ann, n))

	// b = S + D*A_PREC/Ann
	b := new(uint256.Int).Mul(d, aPrecision)
	b.Div(b, ann)
	b.Add(b, s)

	y = new(uint256.Int).Set(d)
	for iter := 0; iter < maxStableIterations; iter++ {
		yPrev := new(uint256.Int).Set(y)
		y2 := new(uint256.Int).Mul(y, y)
		y2.Add(y2, c)
		denom := new(uint256.Int).Lsh(y, 1)
		denom.Add(denom, b)
		if denom.Cmp(d) < 0 {
			return nil, false
		}
		denom.Sub(denom, d)
		if denom.IsZero() {
			return nil, false
		}
		y = y2.Div(y2, denom)

		if y.Cmp(yPrev) > 0 {
			if new(uint256.Int).Sub(y, yPrev).Cmp(uint256.NewInt(1)) <= 0 {
				return y, true
			}
		} else {
			if new(uint256.Int).Sub(yPrev, y).Cmp(uint256.NewInt(1)) <= 0 {
				return y, true
			}
		}
	}
	return nil, false
}

// dxWFee applies the fee-on-transfer haircut a coin like USDT charges:
// x - min(x*basisPointsRate/10000, maximumFee).
func (p *StableSwap) dxWFee(x *uint256.Int) *uint256.Int {
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

func (p *StableSwap) coinIndex(addr common.Address) int {
	for i, c := range p.coins {
		if c.Address == addr {
			return i
		}
	}
	return -1
}

// GetOutAmount implements Curve's exchange(i, j, dx): raw dy = xp_j - y - 1
// (the -1 compensates rounding drift), less the pool fee.
func (p *StableSwap) GetOutAmount(in *uint256.Int, pair Pair) *uint256.Int {
	if in == nil || in.IsZero() {
		return new(uint256.Int)
	}
	i := p.coinIndex(pair.In.Address)
	j := p.coinIndex(pair.Out.Address)
	if i < 0 || j < 0 || i == j {
		return new(uint256.Int)
	}
	dx := in
	if i == p.feeIndex {
		dx = p.dxWFee(in)
	}

	xp := p.xp()
	x := new(uint256.Int).Mul(dx, p.rates[i])
	x.Div(x, fixedPrecision)
	x.Add(x, xp[i])

	amp := p.currentA()
	y, ok := getY(i, j, x, xp, amp, p.aPrecision)
	if !ok {
		return new(uint256.Int)
	}
	if xp[j].Cmp(y) <= 0 {
		return new(uint256.Int)
	}
	dy := new(uint256.Int).Sub(xp[j], y)
	dy.SubUint64(dy, 1)

	dyFee := new(uint256.Int).Mul(dy, p.fee)
	dyFee.Div(dyFee, uint256.NewInt(feeDenominator))
	dy.Sub(dy, dyFee)
	dy.Mul(dy, fixedPrecision)
	dy.Div(dy, p.rates[j])

	if j == p.feeIndex {
		dy = p.dxWFee(dy)
	}
	return dy
}

// GetSwapData encodes Curve's exchange(i, j, dx, min_dy). StableSwap pools
// pull the input via transferFrom, so the composer must approve first.
func (p *StableSwap) GetSwapData(in, minOut *uint256.Int, pair Pair, recipient common.Address) (calldata []byte, ethValue *big.Int, needsApprove bool, err error) {
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
	return data, new(big.Int), true, nil
}

var (
	_ Pool            = (*StableSwap)(nil)
	_ SwapDataEncoder = (*StableSwap)(nil)
)
