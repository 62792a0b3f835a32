// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tokengraph

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/arbhunter/pools"
	"github.com/luxfi/arbhunter/token"
)

func TestCircuitsFindsTriangle(t *testing.T) {
	weth := token.WETH
	dai := token.New(common.HexToAddress("0x01"), "DAI", 18)
	usdc := token.New(common.HexToAddress("0x02"), "USDC", 6)

	g := New(weth, log.NewTestLogger(log.InfoLevel))
	reserve := uint256.NewInt(1_000_000_000_000_000_000)
	g.AddPool(pools.NewConstantProduct(common.HexToAddress("0xA"), weth, dai, reserve, reserve, 0, 0, 1), []token.Token{weth, dai})
	g.AddPool(pools.NewConstantProduct(common.HexToAddress("0xB"), dai, usdc, reserve, reserve, 0, 0, 1), []token.Token{dai, usdc})
	g.AddPool(pools.NewConstantProduct(common.HexToAddress("0xC"), usdc, weth, reserve, reserve, 0, 0, 1), []token.Token{usdc, weth})

	cycles := g.Circuits(3)
	require.NotEmpty(t, cycles)
	for _, c := range cycles {
		require.Equal(t, weth.Address, c[0].From)
		require.Equal(t, weth.Address, c[len(c)-1].To)
	}
}

func TestCircuitsPrunesSinglePoolLoop(t *testing.T) {
	weth := token.WETH
	dai := token.New(common.HexToAddress("0x01"), "DAI", 18)

	g := New(weth, log.NewTestLogger(log.InfoLevel))
	reserve := uint256.NewInt(1_000_000_000_000_000_000)
	g.AddPool(pools.NewConstantProduct(common.HexToAddress("0xA"), weth, dai, reserve, reserve, 0, 0, 1), []token.Token{weth, dai})

	cycles := g.Circuits(4)
	require.Empty(t, cycles, "a single pool back-and-forth has no arbitrage and must be pruned")
}

func TestAddPoolRejectsNegligibleReserves(t *testing.T) {
	weth := token.WETH
	dai := token.New(common.HexToAddress("0x01"), "DAI", 18)

	g := New(weth, log.NewTestLogger(log.InfoLevel))
	g.AddPool(pools.NewConstantProduct(common.HexToAddress("0xA"), weth, dai, uint256.NewInt(0), uint256.NewInt(0), 0, 0, 1), []token.Token{weth, dai})

	require.Nil(t, g.PoolAt(common.HexToAddress("0xA")))
}
