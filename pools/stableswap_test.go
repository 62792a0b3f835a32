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

// newBalanced3Pool builds a DAI/USDC/USDT 3pool holding notionalDollars of
// each coin, with raw balances scaled to each coin's own decimals so the
// pool is balanced once rates normalize everything to 18 decimals.
func newBalanced3Pool(notionalDollars uint64) (*StableSwap, []token.Token) {
	coins := []token.Token{
		token.New(common.HexToAddress("0x01"), "DAI", 18),
		token.New(common.HexToAddress("0x02"), "USDC", 6),
		token.New(common.HexToAddress("0x03"), "USDT", 6),
	}
	balances := []*uint256.Int{
		new(uint256.Int).Mul(uint256.NewInt(notionalDollars), uint256.NewInt(1e18)),
		new(uint256.Int).Mul(uint256.NewInt(notionalDollars), uint256.NewInt(1e6)),
		new(uint256.Int).Mul(uint256.NewInt(notionalDollars), uint256.NewInt(1e6)),
	}
	rates := []*uint256.Int{
		uint256.NewInt(1e18),
		new(uint256.Int).Mul(uint256.NewInt(1e18), uint256.NewInt(1e12)),
		new(uint256.Int).Mul(uint256.NewInt(1e18), uint256.NewInt(1e12)),
	}
	p := NewStableSwap(common.HexToAddress("0xAA"), StableSwapConfig{
		Coins:      coins,
		Balances:   balances,
		Rates:      rates,
		Fee:        uint256.NewInt(4_000_000), // 4bps of 10^10
		AdminFee:   uint256.NewInt(5_000_000_000),
		InitialA:   uint256.NewInt(200),
		FutureA:    uint256.NewInt(200),
		APrecision: uint256.NewInt(100),
		FeeIndex:   -1,
	}, 1)
	return p, coins
}

func TestStableSwapGetDConvergesOnBalancedPool(t *testing.T) {
	const notional = 1_000_000
	p, _ := newBalanced3Pool(notional)
	d, ok := getD(p.xp(), p.currentA(), p.aPrecision)
	require.True(t, ok)
	require.False(t, d.IsZero())

	// a perfectly balanced pool's D is close to N * per-coin 18-decimal value.
	want := new(uint256.Int).Mul(uint256.NewInt(3*notional), uint256.NewInt(1e18))
	diff := new(uint256.Int).Sub(d, want)
	if d.Cmp(want) < 0 {
		diff = new(uint256.Int).Sub(want, d)
	}
	tolerance := new(uint256.Int).Div(want, uint256.NewInt(1_000_000))
	require.True(t, diff.Cmp(tolerance) <= 0, "D=%s too far from balanced estimate %s", d, want)
}

func TestStableSwapSmallSwapNearsOneToOne(t *testing.T) {
	p, coins := newBalanced3Pool(1_000_000)
	out := p.GetOutAmount(uint256.NewInt(1_000000), Pair{In: coins[1], Out: coins[2]})
	require.False(t, out.IsZero())

	lower := uint256.NewInt(990_000)
	upper := uint256.NewInt(1_000_000)
	require.True(t, out.Cmp(lower) >= 0 && out.Cmp(upper) <= 0, "out=%s outside expected near-parity band", out)
}

func TestStableSwapUnknownCoinReturnsZero(t *testing.T) {
	p, coins := newBalanced3Pool(1_000_000)
	stranger := token.New(common.HexToAddress("0xFF"), "XXX", 18)
	out := p.GetOutAmount(uint256.NewInt(1_000), Pair{In: stranger, Out: coins[0]})
	require.True(t, out.IsZero())
}
