// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package token defines the vertex type of the token graph: an opaque
// 20-byte address with an associated decimal scale. Tokens are interned at
// graph construction and are immutable afterward.
package token

import (
	"math/big"

	"github.com/luxfi/geth/common"
)

// Token is a vertex of the token graph. Identity is by Address; Decimals
// never changes once a Token is interned.
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// New constructs a Token. Decimals must be in [0, 36] per the data model.
func New(addr common.Address, symbol string, decimals uint8) Token {
	if decimals > 36 {
		panic("token: decimals out of range")
	}
	return Token{Address: addr, Symbol: symbol, Decimals: decimals}
}

// WETH is the reference asset every arbitrage cycle starts and ends on.
var WETH = New(common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), "WETH", 18)

// OneUnit returns 10^Decimals, the smallest whole-token amount in wei-scale.
func (t Token) OneUnit() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(t.Decimals)), nil)
}

// String implements fmt.Stringer for log lines.
func (t Token) String() string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return t.Address.Hex()
}
