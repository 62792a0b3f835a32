// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pools

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/arbhunter/token"
)

func newTestConstantProduct(r0, r1 uint64) (*ConstantProduct, token.Token, token.Token) {
	t0 := token.New(common.HexToAddress("0x01"), "A", 18)
	t1 := token.New(common.HexToAddress("0x02"), "B", 18)
	p := NewConstantProduct(common.HexToAddress("0xAA"), t0, t1, uint256.NewInt(r0), uint256.NewInt(r1), 0, 0, 1)
	return p, t0, t1
}

func TestConstantProductOutAmountMatchesUniswapV2Formula(t *testing.T) {
	p, t0, t1 := newTestConstantProduct(1_000_000, 2_000_000)
	out := p.GetOutAmount(uint256.NewInt(1_000), Pair{In: t0, Out: t1})
	require.False(t, out.IsZero())

	// hand-computed: (2_000_000 * 997 * 1000) / (1_000_000*1000 + 997*1000)
	require.Equal(t, uint64(1992), out.Uint64())
}

func TestConstantProductUnsupportedPairReturnsZero(t *testing.T) {
	p, t0, _ := newTestConstantProduct(1_000_000, 2_000_000)
	other := token.New(common.HexToAddress("0x03"), "C", 18)
	out := p.GetOutAmount(uint256.NewInt(1_000), Pair{In: t0, Out: other})
	require.True(t, out.IsZero())
}

func TestConstantProductGetInAmountRoundTripNeverUndershoots(t *testing.T) {
	p, t0, t1 := newTestConstantProduct(5_000_000, 5_000_000)
	pair := Pair{In: t0, Out: t1}
	wanted := uint256.NewInt(10_000)

	in := p.GetInAmount(wanted, pair)
	require.False(t, in.IsZero())

	got := p.GetOutAmount(in, pair)
	require.True(t, got.Cmp(wanted) >= 0, "round trip undershot: got %s want >= %s", got, wanted)
}

func TestConstantProductMarginalPriceDecreasesWithReserveDepth(t *testing.T) {
	p, t0, t1 := newTestConstantProduct(1_000_000, 1_000_000)
	pair := Pair{In: t0, Out: t1}

	smallNum, smallDen := p.MarginalPrice(uint256.NewInt(1), pair)
	largeNum, largeDen := p.MarginalPrice(uint256.NewInt(500_000), pair)

	small := new(bigRatio).set(smallNum, smallDen)
	large := new(bigRatio).set(largeNum, largeDen)
	require.True(t, small.cmp(large) > 0, "marginal price should fall as the trade grows")
}

// bigRatio compares num/den pairs without floating point, avoiding a spurious
// dependency for a single test helper.
type bigRatio struct {
	num, den *uint256.Int
}

func (r *bigRatio) set(num, den *uint256.Int) *bigRatio {
	r.num, r.den = num, den
	return r
}

func (r *bigRatio) cmp(other *bigRatio) int {
	lhs := new(uint256.Int).Mul(r.num, other.den)
	rhs := new(uint256.Int).Mul(other.num, r.den)
	return lhs.Cmp(rhs)
}
