// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package pools implements bit-exact off-chain replicas of the AMM families
// an arbitrage cycle may route through: constant-product, StableSwap,
// MetaStable, Weighted (Balancer), concentrated-liquidity (Uniswap v3),
// hybrid directional-reserve (Mooniswap), and Bancor conversion paths. Every
// simulator is a stateless method set over a per-pool parameter snapshot;
// snapshots are refreshed once per block by the parameter cache and never
// mutated by the simulators themselves.
package pools

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/crypto"

	"github.com/luxfi/arbhunter/token"
)

// Family identifies which AMM math a Pool implements.
type Family uint8

const (
	FamilyConstantProduct Family = iota
	FamilyStableSwap
	FamilyMetaStable
	FamilyWeighted
	FamilyConcentrated
	FamilyHybrid
	FamilyBancor
)

func (f Family) String() string {
	switch f {
	case FamilyConstantProduct:
		return "constant-product"
	case FamilyStableSwap:
		return "stableswap"
	case FamilyMetaStable:
		return "metastable"
	case FamilyWeighted:
		return "weighted"
	case FamilyConcentrated:
		return "concentrated"
	case FamilyHybrid:
		return "hybrid"
	case FamilyBancor:
		return "bancor"
	default:
		return "unknown"
	}
}

// Pair names the two sides of a single swap leg.
type Pair struct {
	In, Out token.Token
}

var (
	// ErrUnsupportedPair is returned when a pair is not traded by a pool.
	// Per the data model contract, the graph never issues calls for
	// unsupported pairs; this error exists for defensive callers only.
	ErrUnsupportedPair = errors.New("pools: unsupported pair")
	// ErrNonConvergent marks a StableSwap or v3 computation that failed to
	// converge within its iteration bound; callers treat it as quote=0.
	ErrNonConvergent = errors.New("pools: simulation did not converge")
)

// Pool is the capability set every AMM family snapshot implements. Optional
// capabilities (GetInAmount, MarginalPrice) are exposed by further,
// family-specific interfaces so callers can type-assert for them.
type Pool interface {
	// Address is the on-chain contract address identifying this pool.
	Address() common.Address
	// PoolFamily reports which AMM math this pool uses.
	PoolFamily() Family
	// Coins returns the ordered token list this pool trades.
	Coins() []token.Token
	// Generation is the block-scoped snapshot counter; two Pool values with
	// different generations must never be mixed in one simulation.
	Generation() uint64
	// GetOutAmount returns the output amount for a given input amount and
	// pair, or zero on any of the conditions listed in spec.md §4.B.
	GetOutAmount(in *uint256.Int, pair Pair) *uint256.Int
}

// InAmountQuoter is implemented by pools that can invert GetOutAmount.
type InAmountQuoter interface {
	// GetInAmount computes the input required to receive at least out,
	// rounding up so GetOutAmount(GetInAmount(out, pair), pair) >= out.
	GetInAmount(out *uint256.Int, pair Pair) *uint256.Int
}

// MarginalPricer is implemented by pools whose instantaneous exchange rate
// the no-arbitrage optimizer needs (constant-product, weighted, hybrid).
type MarginalPricer interface {
	// MarginalPrice returns the derivative of GetOutAmount at delta,
	// expressed as a rational num/den (out per in) with no common scale;
	// callers only compare such ratios with one another.
	MarginalPrice(delta *uint256.Int, pair Pair) (num, den *uint256.Int)
}

// SwapDataEncoder is implemented by pools that can encode the calldata for
// their own on-chain swap entry point, so the call composer never special
// -cases AMM families by type switch. recipient is where the pool should
// send its output: either the executor contract or, when chaining directly
// into a constant-product pool, that pool's own address.
type SwapDataEncoder interface {
	// GetSwapData returns the callee calldata, the eth value to forward with
	// the call, and whether the pool pulls its input via transferFrom and so
	// needs a prior ERC-20 approve.
	GetSwapData(in, minOut *uint256.Int, pair Pair, recipient common.Address) (calldata []byte, ethValue *big.Int, needsApprove bool, err error)
}

// NativeETHTrader is implemented by pools that exchange native ETH directly
// rather than wrapped WETH (e.g. Curve's aETH/sETH metapools), signaling the
// composer to unwrap the WETH input before the swap call and wrap the ETH
// output after it.
type NativeETHTrader interface {
	TradesNativeETH() bool
}

// selector returns the first 4 bytes of keccak256(signature), the function
// selector every ABI-encoded call begins with.
func selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

func wordUint256(v *uint256.Int) []byte {
	if v == nil {
		v = new(uint256.Int)
	}
	b := v.Bytes32()
	return b[:]
}

func wordAddress(a common.Address) []byte {
	var b [32]byte
	copy(b[12:], a.Bytes())
	return b[:]
}

func wordBool(v bool) []byte {
	var b [32]byte
	if v {
		b[31] = 1
	}
	return b[:]
}

// wordInt128 left-pads a small coin index as a two's-complement int128 word.
// StableSwap/MetaStable indices are always non-negative in practice; the
// negative branch exists only so the encoding stays correct if that changes.
func wordInt128(i int) []byte {
	var b [32]byte
	v := big.NewInt(int64(i))
	if i < 0 {
		v.Add(v, new(big.Int).Lsh(big.NewInt(1), 256))
	}
	bs := v.Bytes()
	copy(b[32-len(bs):], bs)
	return b[:]
}

// ParamCall describes one read the parameter cache must batch into an
// eth_call to refresh this pool's snapshot.
type ParamCall struct {
	To       common.Address
	Data     []byte // ABI-encoded call data
	Schema   string // decode schema tag, fixed per AMM family
	BlockTag string // populated by the cache, e.g. "0x<hex>"
}

// ParamSource is implemented by every pool so the parameter cache can
// refresh it generically without a type switch per family.
type ParamSource interface {
	Pool
	// GetParamCalls returns the eth_call descriptors needed to refresh this
	// pool's snapshot for one block.
	GetParamCalls() []ParamCall
	// SetParams decodes batched eth_call results (in GetParamCalls order)
	// and returns a new Pool value stamped with the given generation. It
	// never mutates the receiver: pool snapshots are immutable once built.
	SetParams(results [][]byte, generation uint64) (Pool, error)
}
