// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ape encodes a sequence of external contract calls into the flat
// big.Int array the on-chain executor consumes: one action_flags prefix
// word followed by, per call, a packed call_info word, an eth-value word,
// and the calldata split into 32-byte argument words.
package ape

import (
	"errors"
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/crypto"
)

// ErrGasTooLarge is returned when a call's gas allowance does not fit the
// 24-bit field call_info reserves for it.
var ErrGasTooLarge = errors.New("ape: gas allowance exceeds 24 bits")

const (
	unwrapWETHFlag   = 0x2
	payCoinbaseFlag  = 0x4
	defaultGasCost   = 1_000_000
	bribeShift       = 128
	gasShift         = 160
	selectorShift    = 184
	wordCountShift   = 216
	wordSize         = 32
)

// Call is one external call the composed bundle will make.
type Call struct {
	To       common.Address
	Data     []byte
	GasCost  uint32 // defaults to defaultGasCost when zero
	EthValue *big.Int
}

// EncodeCall packs one Call into its call_info word, eth-value word, and
// calldata argument words, per the bit layout:
//
//	bits   0..159: callee address
//	bits 160..183: gas allowance
//	bits 184..215: function selector (first 4 calldata bytes), or 0
//	bits 216..   : number of 32-byte words following the selector
func EncodeCall(c Call) ([]*big.Int, error) {
	gas := c.GasCost
	if gas == 0 {
		gas = defaultGasCost
	}
	if gas >= 1<<24 {
		return nil, ErrGasTooLarge
	}

	address := new(big.Int).SetBytes(c.To.Bytes())
	callInfo := new(big.Int).Set(address)
	callInfo.Add(callInfo, new(big.Int).Lsh(big.NewInt(int64(gas)), gasShift))

	isFunctionCall := len(c.Data)%wordSize == 4
	offset := 0
	var selector *big.Int
	if isFunctionCall {
		selector = new(big.Int).SetBytes(c.Data[:4])
		offset = 4
	} else {
		selector = new(big.Int)
	}
	callInfo.Add(callInfo, new(big.Int).Lsh(selector, selectorShift))

	argBytes := c.Data[offset:]
	wordCount := len(argBytes) / wordSize
	callInfo.Add(callInfo, new(big.Int).Lsh(big.NewInt(int64(wordCount)), wordCountShift))

	ethValue := c.EthValue
	if ethValue == nil {
		ethValue = new(big.Int)
	}

	words := make([]*big.Int, 0, 2+wordCount)
	words = append(words, callInfo, new(big.Int).Set(ethValue))
	for i := 0; i < wordCount; i++ {
		words = append(words, new(big.Int).SetBytes(argBytes[i*wordSize:(i+1)*wordSize]))
	}
	return words, nil
}

// ActionFlags packs the bundle-level prefix word: the unwrap-WETH and
// pay-coinbase bits, plus the bribe amount shifted into the high bits.
func ActionFlags(unwrapWETH, payCoinbase bool, bribeWei *big.Int) *big.Int {
	flags := new(big.Int)
	if unwrapWETH {
		flags.SetUint64(unwrapWETHFlag)
	}
	if payCoinbase {
		flags.Or(flags, big.NewInt(payCoinbaseFlag))
	}
	if bribeWei != nil && bribeWei.Sign() > 0 {
		flags.Or(flags, new(big.Int).Lsh(bribeWei, bribeShift))
	}
	return flags
}

// EncodeCalls flattens a sequence of Calls into their packed words, with no
// ActionFlags prefix. Used to build the payload handed to an outer flash()
// call, which carries its own, separately-prefixed action_flags word once
// decoded by the executor.
func EncodeCalls(calls []Call) ([]*big.Int, error) {
	var out []*big.Int
	for _, c := range calls {
		words, err := EncodeCall(c)
		if err != nil {
			return nil, err
		}
		out = append(out, words...)
	}
	return out, nil
}

// Compose encodes the full bundle: ActionFlags followed by each Call's
// words in order.
func Compose(flags *big.Int, calls []Call) ([]*big.Int, error) {
	words, err := EncodeCalls(calls)
	if err != nil {
		return nil, err
	}
	out := make([]*big.Int, 0, 1+len(words))
	out = append(out, new(big.Int).Set(flags))
	out = append(out, words...)
	return out, nil
}

// WordsToBytes serializes a sequence of ape words into big-endian 32-byte
// chunks, the form the executor expects for a flash loan's opaque data
// argument.
func WordsToBytes(words []*big.Int) []byte {
	out := make([]byte, 0, len(words)*wordSize)
	for _, w := range words {
		var b [wordSize]byte
		w.FillBytes(b[:])
		out = append(out, b[:]...)
	}
	return out
}

func leftPad32(v *big.Int) []byte {
	var b [wordSize]byte
	v.FillBytes(b[:])
	return b[:]
}

func leftPad32Address(a common.Address) []byte {
	var b [wordSize]byte
	copy(b[12:], a.Bytes())
	return b[:]
}

// selector4 returns the first 4 bytes of keccak256(signature).
func selector4(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

var (
	transferSelector = selector4("transfer(address,uint256)")
	approveSelector  = selector4("approve(address,uint256)")
	withdrawSelector = selector4("withdraw(uint256)")
	depositSelector  = selector4("deposit()")
	flashSelector    = selector4("flash(address,uint256,uint256,bytes)")
)

// TransferData encodes ERC-20 transfer(to, amount).
func TransferData(to common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 4+2*wordSize)
	data = append(data, transferSelector...)
	data = append(data, leftPad32Address(to)...)
	data = append(data, leftPad32(amount)...)
	return data
}

// ApproveData encodes ERC-20 approve(spender, amount).
func ApproveData(spender common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 4+2*wordSize)
	data = append(data, approveSelector...)
	data = append(data, leftPad32Address(spender)...)
	data = append(data, leftPad32(amount)...)
	return data
}

// WithdrawData encodes WETH9's withdraw(amount), unwrapping WETH to ETH.
func WithdrawData(amount *big.Int) []byte {
	data := make([]byte, 0, 4+wordSize)
	data = append(data, withdrawSelector...)
	data = append(data, leftPad32(amount)...)
	return data
}

// DepositSelector returns the 4-byte selector for WETH9's payable deposit(),
// which wraps the call's msg.value into WETH.
func DepositSelector() []byte {
	out := make([]byte, len(depositSelector))
	copy(out, depositSelector)
	return out
}

// FlashLoanCalldata encodes flash(recipient, amount0, amount1, data), the
// outer Uniswap-v3-style wrapper that lends amount0/amount1 of the pool's two
// tokens to recipient and calls back into it with data before checking
// repayment.
func FlashLoanCalldata(recipient common.Address, amount0, amount1 *big.Int, data []byte) []byte {
	const headWords = 4
	out := make([]byte, 0, 4+headWords*wordSize+((len(data)+wordSize-1)/wordSize)*wordSize+wordSize)
	out = append(out, flashSelector...)
	out = append(out, leftPad32Address(recipient)...)
	out = append(out, leftPad32(amount0)...)
	out = append(out, leftPad32(amount1)...)
	out = append(out, leftPad32(big.NewInt(headWords*wordSize))...)
	out = append(out, leftPad32(big.NewInt(int64(len(data))))...)
	out = append(out, data...)
	if pad := len(data) % wordSize; pad != 0 {
		out = append(out, make([]byte, wordSize-pad)...)
	}
	return out
}

// FlashLoanFee implements fee = ceil(amount * pool_fee_ppm / 10^6).
func FlashLoanFee(amount *big.Int, feePPM uint32) *big.Int {
	num := new(big.Int).Mul(amount, big.NewInt(int64(feePPM)))
	million := big.NewInt(1_000_000)
	q, r := new(big.Int).QuoRem(num, million, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
