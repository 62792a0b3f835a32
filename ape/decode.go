// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ape

import (
	"errors"
	"math/big"

	"github.com/luxfi/geth/common"
)

// ErrTruncated is returned when a word array ends before a call_info word's
// declared argument count has been consumed.
var ErrTruncated = errors.New("ape: truncated call array")

// DecodedCall is the inverse of Call: the fields recovered from one
// call_info/eth-value/argument-words triple.
type DecodedCall struct {
	To       common.Address
	GasCost  uint32
	Selector [4]byte
	HasSelector bool
	Args     [][]byte
	EthValue *big.Int
}

var (
	addressMask  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 160), big.NewInt(1))
	gasMask      = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 24), big.NewInt(1))
	selectorMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 32), big.NewInt(1))
)

// DecodeCalls reproduces the (address, gas, selector, args, eth_value)
// tuples for every call packed by Compose, skipping the leading
// action_flags word.
func DecodeCalls(words []*big.Int) ([]DecodedCall, error) {
	if len(words) == 0 {
		return nil, nil
	}
	i := 1 // skip action_flags
	var out []DecodedCall
	for i < len(words) {
		callInfo := words[i]
		addr := new(big.Int).And(callInfo, addressMask)
		gas := new(big.Int).And(new(big.Int).Rsh(callInfo, gasShift), gasMask)
		selector := new(big.Int).And(new(big.Int).Rsh(callInfo, selectorShift), selectorMask)
		wordCount := new(big.Int).Rsh(callInfo, wordCountShift)

		if i+1 >= len(words) {
			return nil, ErrTruncated
		}
		ethValue := words[i+1]

		n := int(wordCount.Int64())
		if i+2+n > len(words) {
			return nil, ErrTruncated
		}

		dc := DecodedCall{
			GasCost:  uint32(gas.Uint64()),
			EthValue: new(big.Int).Set(ethValue),
		}
		copy(dc.To[:], leftPad(addr.Bytes(), 20))
		if selector.Sign() != 0 {
			dc.HasSelector = true
			copy(dc.Selector[:], leftPad(selector.Bytes(), 4))
		}
		for k := 0; k < n; k++ {
			dc.Args = append(dc.Args, leftPad(words[i+2+k].Bytes(), 32))
		}
		out = append(out, dc)
		i += 2 + n
	}
	return out, nil
}

func leftPad(b []byte, size int) []byte {
	if len(b) >= size {
		return b[len(b)-size:]
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}
