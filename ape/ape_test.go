// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ape

import (
	"math/big"
	"testing"

	"github.com/luxfi/geth/common"
)

func abiEncodeUint256Call(selector [4]byte, args ...*big.Int) []byte {
	data := append([]byte{}, selector[:]...)
	for _, a := range args {
		data = append(data, leftPad(a.Bytes(), 32)...)
	}
	return data
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	selector := [4]byte{0xa9, 0x05, 0x9c, 0xbb} // transfer(address,uint256)
	data := abiEncodeUint256Call(selector,
		new(big.Int).SetBytes(common.HexToAddress("0x2222222222222222222222222222222222222222").Bytes()),
		big.NewInt(1234567),
	)
	calls := []Call{
		{To: to, Data: data, GasCost: 50_000, EthValue: big.NewInt(0)},
	}
	flags := ActionFlags(true, true, big.NewInt(10_000_000_000))

	words, err := Compose(flags, calls)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	decoded, err := DecodeCalls(words)
	if err != nil {
		t.Fatalf("DecodeCalls: %v", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("expected 1 decoded call, got %d", len(decoded))
	}
	dc := decoded[0]
	if dc.To != to {
		t.Errorf("To = %s, want %s", dc.To.Hex(), to.Hex())
	}
	if dc.GasCost != 50_000 {
		t.Errorf("GasCost = %d, want 50000", dc.GasCost)
	}
	if !dc.HasSelector || dc.Selector != selector {
		t.Errorf("Selector = %x, want %x", dc.Selector, selector)
	}
	if len(dc.Args) != 2 {
		t.Fatalf("expected 2 arg words, got %d", len(dc.Args))
	}
}

func TestEncodeCallGasTooLarge(t *testing.T) {
	c := Call{
		To:      common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Data:    nil,
		GasCost: 1 << 24,
	}
	if _, err := EncodeCall(c); err != ErrGasTooLarge {
		t.Fatalf("expected ErrGasTooLarge, got %v", err)
	}
}

func TestFlashLoanFeeRoundsUp(t *testing.T) {
	fee := FlashLoanFee(big.NewInt(1_000_003), 3000) // 0.3% fee, ppm=3000
	if fee.Cmp(big.NewInt(3001)) != 0 {
		t.Errorf("FlashLoanFee = %s, want 3001", fee.String())
	}
}
