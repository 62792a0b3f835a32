// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package orchestrator runs the single-threaded per-block loop: refresh the
// parameter cache, enumerate circuits, optimize each one, compose winning
// cycles into call arrays, and hand the deduplicated bundle set to the
// submitter. Every dependency is passed explicitly through Context; nothing
// here is a package-level singleton.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/arbhunter/ape"
	"github.com/luxfi/arbhunter/cache"
	"github.com/luxfi/arbhunter/optimize"
	"github.com/luxfi/arbhunter/pools"
	"github.com/luxfi/arbhunter/relay"
	"github.com/luxfi/arbhunter/token"
	"github.com/luxfi/arbhunter/tokengraph"
)

// BlockSource reports the chain's current head.
type BlockSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// GasEstimator dry-runs a candidate bundle's outer call so the orchestrator
// can size the implied-gas-price skip before submitting.
type GasEstimator interface {
	EstimateGas(ctx context.Context, to common.Address, data []byte, value *big.Int) (uint64, error)
}

// Submitter hands a composed bundle to the relay.
type Submitter interface {
	Submit(ctx context.Context, bundle Bundle) error
}

// errNoLoanPool is returned by compose when Context.LoanPool has not been
// configured.
var errNoLoanPool = errors.New("orchestrator: no loan pool configured")

// errImpliedGasTooLow is returned when a composed bundle's bribe, divided by
// its estimated gas, does not clear the chain's "rapid" gas price baseline.
var errImpliedGasTooLow = errors.New("orchestrator: implied gas price below rapid baseline")

// maxApproval is the ∞ approval amount emitted ahead of pull-style pool
// swaps, matching approve(pool, type(uint256).max).
var maxApproval = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Context threads every per-block dependency explicitly: the token graph,
// the parameter cache, the chain head source, the submitter, and the
// minimum-profit/hop-bound configuration. Constructed once per process.
type Context struct {
	Log       log.Logger
	Graph     *tokengraph.Graph
	Cache     *cache.Cache
	Sources   []pools.ParamSource
	Chain     BlockSource
	Submitter Submitter
	Estimator GasEstimator

	// Executor is the on-chain contract whose fallback parses the composed
	// ape word array and dispatches each call.
	Executor common.Address
	// Owner receives the swept profit at the end of a successful bundle.
	Owner common.Address
	// LoanPool is the v3-style pool the bundle borrows its working capital
	// from via flash(); configured once per process rather than chosen per
	// cycle, since in practice a single deep WETH pool covers every cycle's
	// loan_max.
	LoanPool   pools.Pool
	LoanFeePPM uint32

	MaxHops          int
	MinGasCostWei    *uint256.Int
	LoanMaxWei       *uint256.Int
	EpsilonWei       *uint256.Int
	RapidGasPriceWei *big.Int
	ReorgSleep       time.Duration
}

// Bundle is one block's deduplicated set of winning swap legs, ready for
// the submitter.
type Bundle struct {
	TargetBlock        uint64
	Words              []*big.Int
	ProfitWei          *uint256.Int
	BribeWei           *big.Int
	ImpliedGasPriceWei *big.Int
}

// swapKey identifies one (pool, unordered token pair) swap for the
// collision/dedup rule in step 5 of the per-block loop.
type swapKey struct {
	pool    common.Address
	tokenLo common.Address
	tokenHi common.Address
}

func newSwapKey(pool common.Address, a, b common.Address) swapKey {
	if bytesLess(b.Bytes(), a.Bytes()) {
		a, b = b, a
	}
	return swapKey{pool: pool, tokenLo: a, tokenHi: b}
}

func bytesLess(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

type candidate struct {
	cycle           tokengraph.Cycle
	legs            []optimize.Leg
	input           *uint256.Int
	profit          *uint256.Int
	impliedGasPrice *big.Int
	keys            []swapKey
}

// RunOnce executes one iteration of the per-block loop: waits for a new
// block, refreshes the cache, searches, and hands off a bundle if anything
// profitable survives dedup. It returns (false, current, nil) if the block was
// abandoned mid-search because a newer block arrived ("missed chain
// state").
func (c *Context) RunOnce(ctx context.Context, last uint64) (advanced bool, newHead uint64, err error) {
	current, err := c.waitForNewBlock(ctx, last)
	if err != nil {
		return false, last, err
	}

	blockTag := fmt.Sprintf("0x%x", current)
	if _, err := c.Cache.Refresh(ctx, blockTag, c.Sources); err != nil {
		return false, last, fmt.Errorf("orchestrator: refresh: %w", err)
	}

	if abandoned, err := c.staleCheck(ctx, current); err != nil {
		return false, last, err
	} else if abandoned {
		c.Log.Info("abandoning block, newer head observed", "block", current)
		return false, current, nil
	}

	cycles := c.Graph.Circuits(c.MaxHops)
	var candidates []candidate
	for _, cyc := range cycles {
		cand, ok := c.evaluateCycle(cyc)
		if !ok {
			continue
		}
		candidates = append(candidates, cand)
	}

	if abandoned, err := c.staleCheck(ctx, current); err != nil {
		return false, last, err
	} else if abandoned {
		return false, current, nil
	}

	chosen := dedupBundles(candidates)
	if len(chosen) == 0 {
		return true, current, nil
	}

	for i := range chosen {
		bundle, err := c.compose(ctx, current, &chosen[i])
		if err != nil {
			c.Log.Warn("compose failed", "error", err)
			continue
		}
		if c.Submitter != nil {
			if err := c.Submitter.Submit(ctx, bundle); err != nil {
				c.Log.Warn("submit failed", "error", err)
			}
		}
	}
	return true, current, nil
}

func (c *Context) waitForNewBlock(ctx context.Context, last uint64) (uint64, error) {
	for {
		current, err := c.Chain.BlockNumber(ctx)
		if err != nil {
			return 0, err
		}
		if current > last {
			return current, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func (c *Context) staleCheck(ctx context.Context, current uint64) (bool, error) {
	head, err := c.Chain.BlockNumber(ctx)
	if err != nil {
		return false, err
	}
	return head > current, nil
}

// evaluateCycle runs the optimizer on one circuit, whose pool sequence is
// fixed by the cycle, choosing the profit maximizing input size.
func (c *Context) evaluateCycle(cyc tokengraph.Cycle) (candidate, bool) {
	legs := make([]optimize.Leg, len(cyc))
	keys := make([]swapKey, len(cyc))
	for i, e := range cyc {
		legs[i] = optimize.Leg{Pool: e.Pool, Pair: pools.Pair{}}
		keys[i] = newSwapKey(e.Pool.Address(), e.From, e.To)
	}
	for i, e := range cyc {
		coins := e.Pool.Coins()
		var inTok, outTok = coins[0], coins[0]
		for _, t := range coins {
			if t.Address == e.From {
				inTok = t
			}
			if t.Address == e.To {
				outTok = t
			}
		}
		legs[i].Pair = pools.Pair{In: inTok, Out: outTok}
	}

	result := c.optimizeCycle(legs)
	if result.ProfitWei.IsZero() || result.ProfitWei.Cmp(c.MinGasCostWei) < 0 {
		return candidate{}, false
	}

	return candidate{
		cycle:  cyc,
		legs:   legs,
		input:  result.InputWei,
		profit: result.ProfitWei,
		keys:   keys,
	}, true
}

// optimizeCycle selects the optimization strategy for a cycle in strict
// priority order: the closed-form two-pool constant-product solution, then
// the no-arbitrage equilibrium for mixed constant-product/weighted pairs,
// falling back to the general numerical search. Once a cycle qualifies for
// a tier it is never cross-checked against a later one.
func (c *Context) optimizeCycle(legs []optimize.Leg) optimize.Result {
	if len(legs) == 2 {
		if buy, sell, ok := bothConstantProduct(legs); ok {
			return closedFormResult(legs, buy, sell)
		}
		if buy, sell, ok := bothMarginalPricers(legs); ok {
			return noArbResult(c, legs, buy, sell)
		}
	}
	return optimize.GeneralCase(legs, c.EpsilonWei, c.LoanMaxWei)
}

func bothConstantProduct(legs []optimize.Leg) (buy, sell *pools.ConstantProduct, ok bool) {
	buy, bOk := legs[0].Pool.(*pools.ConstantProduct)
	sell, sOk := legs[1].Pool.(*pools.ConstantProduct)
	if !bOk || !sOk {
		return nil, nil, false
	}
	return buy, sell, true
}

func bothMarginalPricers(legs []optimize.Leg) (buy, sell pools.MarginalPricer, ok bool) {
	buy, bOk := legs[0].Pool.(pools.MarginalPricer)
	sell, sOk := legs[1].Pool.(pools.MarginalPricer)
	if !bOk || !sOk {
		return nil, nil, false
	}
	return buy, sell, true
}

// closedFormResult implements optimizer strategy 1: the two-pool
// constant-product closed form yields arb_to_buy in the arb token's own
// units, which is translated back to a WETH input size via the buy pool's
// GetInAmount before profit is measured by folding the real swap math.
func closedFormResult(legs []optimize.Leg, buy, sell *pools.ConstantProduct) optimize.Result {
	zero := optimize.Result{InputWei: new(uint256.Int), ProfitWei: new(uint256.Int)}
	arbToBuy, ok := optimize.TwoPoolConstantProduct(buy, sell)
	if !ok || arbToBuy.Sign() <= 0 {
		return zero
	}
	arbU256, overflow := uint256.FromBig(arbToBuy)
	if overflow {
		return zero
	}
	input := buy.GetInAmount(arbU256, legs[0].Pair)
	if input.IsZero() {
		return zero
	}
	return optimize.Result{InputWei: input, ProfitWei: optimize.Profit(legs, input)}
}

// noArbResult implements optimizer strategy 2: the no-arbitrage bisection
// yields arb_to_buy over [0, loan_max] as a bound on the arb token's
// reserve, translated back to a WETH input size via the buy leg's
// GetInAmount exactly as the closed-form path does.
func noArbResult(c *Context, legs []optimize.Leg, buy, sell pools.MarginalPricer) optimize.Result {
	zero := optimize.Result{InputWei: new(uint256.Int), ProfitWei: new(uint256.Int)}
	arbToBuy, ok := optimize.NoArbitrageEquilibrium(buy, sell, legs[0].Pair, legs[1].Pair, c.LoanMaxWei)
	if !ok {
		return zero
	}
	quoter, ok := legs[0].Pool.(pools.InAmountQuoter)
	if !ok {
		return zero
	}
	input := quoter.GetInAmount(arbToBuy, legs[0].Pair)
	if input.IsZero() {
		return zero
	}
	return optimize.Result{InputWei: input, ProfitWei: optimize.Profit(legs, input)}
}

// dedupBundles implements steps 5-6 of the per-block loop: accumulate
// candidates keyed by (pool, unordered pair), keep the higher-profit one on
// collision, then greedily select a maximal disjoint set by enumeration
// order.
//
// The collision tie-break uses profit rather than implied gas price: the
// latter is only known after a full compose and an eth_estimateGas dry run,
// and running that dry run for every raw candidate before dedup (instead of
// only the survivors) would multiply RPC load by the circuit count. Profit
// is a close proxy since bribe is a roughly constant fraction of it.
func dedupBundles(candidates []candidate) []candidate {
	bestByKey := make(map[swapKey]int) // swapKey -> index into candidates
	for i, cand := range candidates {
		for _, k := range cand.keys {
			if j, ok := bestByKey[k]; !ok || candidates[j].profit.Cmp(cand.profit) < 0 {
				bestByKey[k] = i
			}
		}
	}

	consumed := make(map[swapKey]bool)
	var chosen []candidate
	for i, cand := range candidates {
		winsAllKeys := true
		for _, k := range cand.keys {
			if bestByKey[k] != i {
				winsAllKeys = false
				break
			}
		}
		if !winsAllKeys {
			continue
		}
		collides := false
		for _, k := range cand.keys {
			if consumed[k] {
				collides = true
				break
			}
		}
		if collides {
			continue
		}
		for _, k := range cand.keys {
			consumed[k] = true
		}
		chosen = append(chosen, cand)
	}
	return chosen
}

// canRouteToRecipient reports whether a pool's swap entry point accepts an
// arbitrary output recipient rather than always paying msg.sender, i.e.
// whether the composer can chain its output directly into the next pool
// instead of routing through the executor.
func canRouteToRecipient(p pools.Pool) bool {
	switch p.(type) {
	case *pools.ConstantProduct, *pools.Concentrated, *pools.Bancor:
		return true
	default:
		return false
	}
}

func isToken0(p pools.Pool, tok common.Address) bool {
	coins := p.Coins()
	return len(coins) > 0 && coins[0].Address == tok
}

func uint64Clamp(v *uint256.Int) uint64 {
	if v.IsUint64() {
		return v.Uint64()
	}
	return ^uint64(0)
}

// compose encodes a chosen candidate into the full ape call array described
// by the call composer: pre-funding transfers, per-pool swap calls with
// approvals and native-ETH wrap/unwrap where needed, the flash-loan
// payback, the profit sweep, the outer flash() wrapper, and the
// action_flags prefix carrying the sampled bribe. It then dry-runs
// eth_estimateGas against the composed calldata and applies the
// implied-gas-price-vs-rapid-gas-price skip.
func (c *Context) compose(ctx context.Context, block uint64, cand *candidate) (Bundle, error) {
	if c.LoanPool == nil {
		return Bundle{}, errNoLoanPool
	}

	var calls []ape.Call
	cursor := cand.input
	directlyFunded := false

	for i, leg := range cand.legs {
		if _, isCP := leg.Pool.(*pools.ConstantProduct); isCP && !directlyFunded {
			calls = append(calls, ape.Call{
				To:       leg.Pair.In.Address,
				Data:     ape.TransferData(leg.Pool.Address(), cursor.ToBig()),
				EthValue: new(big.Int),
			})
		}

		nativeTrader, tradesNative := leg.Pool.(pools.NativeETHTrader)
		tradesNative = tradesNative && nativeTrader.TradesNativeETH()
		if tradesNative {
			calls = append(calls, ape.Call{
				To:       token.WETH.Address,
				Data:     ape.WithdrawData(cursor.ToBig()),
				EthValue: new(big.Int),
			})
		}

		out := leg.Pool.GetOutAmount(cursor, leg.Pair)
		if out.IsZero() {
			return Bundle{}, fmt.Errorf("orchestrator: leg %d (%s) produced zero output", i, leg.Pool.Address())
		}

		recipient := c.Executor
		nextRouted := false
		if i+1 < len(cand.legs) && canRouteToRecipient(leg.Pool) {
			if _, ok := cand.legs[i+1].Pool.(*pools.ConstantProduct); ok {
				recipient = cand.legs[i+1].Pool.Address()
				nextRouted = true
			}
		}

		encoder, ok := leg.Pool.(pools.SwapDataEncoder)
		if !ok {
			return Bundle{}, fmt.Errorf("orchestrator: pool %s cannot encode swap data", leg.Pool.Address())
		}
		calldata, ethValue, needsApprove, err := encoder.GetSwapData(cursor, new(uint256.Int), leg.Pair, recipient)
		if err != nil {
			return Bundle{}, fmt.Errorf("orchestrator: encode swap data for %s: %w", leg.Pool.Address(), err)
		}
		if needsApprove {
			calls = append(calls, ape.Call{
				To:       leg.Pair.In.Address,
				Data:     ape.ApproveData(leg.Pool.Address(), maxApproval),
				EthValue: new(big.Int),
			})
		}
		calls = append(calls, ape.Call{To: leg.Pool.Address(), Data: calldata, EthValue: ethValue})

		if tradesNative {
			calls = append(calls, ape.Call{
				To:       token.WETH.Address,
				Data:     ape.DepositSelector(),
				EthValue: out.ToBig(),
			})
		}

		cursor = out
		directlyFunded = nextRouted
	}

	loanFee := ape.FlashLoanFee(cand.input.ToBig(), c.LoanFeePPM)
	payback := new(big.Int).Add(cand.input.ToBig(), loanFee)
	calls = append(calls, ape.Call{
		To:       token.WETH.Address,
		Data:     ape.TransferData(c.LoanPool.Address(), payback),
		EthValue: new(big.Int),
	})

	bribeWei := relay.Bribe(uint64Clamp(cand.profit), uint64Clamp(c.MinGasCostWei))
	bribe := new(big.Int).SetUint64(bribeWei)

	profitReturn := new(big.Int).Sub(cand.profit.ToBig(), bribe)
	profitReturn.Sub(profitReturn, loanFee)
	profitReturn.Sub(profitReturn, big.NewInt(1))
	if profitReturn.Sign() <= 0 {
		return Bundle{}, fmt.Errorf("orchestrator: profit %s insufficient after bribe %s and loan fee %s", cand.profit, bribe, loanFee)
	}
	calls = append(calls, ape.Call{
		To:       token.WETH.Address,
		Data:     ape.TransferData(c.Owner, profitReturn),
		EthValue: new(big.Int),
	})

	innerWords, err := ape.EncodeCalls(calls)
	if err != nil {
		return Bundle{}, err
	}
	innerData := ape.WordsToBytes(innerWords)

	amount0, amount1 := new(big.Int), new(big.Int)
	if isToken0(c.LoanPool, token.WETH.Address) {
		amount0 = cand.input.ToBig()
	} else {
		amount1 = cand.input.ToBig()
	}
	outerCall := ape.Call{
		To:       c.LoanPool.Address(),
		Data:     ape.FlashLoanCalldata(c.Executor, amount0, amount1, innerData),
		EthValue: new(big.Int),
	}

	flags := ape.ActionFlags(true, true, bribe)
	words, err := ape.Compose(flags, []ape.Call{outerCall})
	if err != nil {
		return Bundle{}, err
	}

	if c.Estimator != nil {
		gas, err := c.Estimator.EstimateGas(ctx, c.Executor, ape.WordsToBytes(words), new(big.Int))
		if err != nil {
			return Bundle{}, fmt.Errorf("orchestrator: estimate gas: %w", err)
		}
		if gas == 0 {
			return Bundle{}, errImpliedGasTooLow
		}
		implied := new(big.Int).Div(bribe, new(big.Int).SetUint64(gas))
		cand.impliedGasPrice = implied
		if c.RapidGasPriceWei != nil && implied.Cmp(c.RapidGasPriceWei) < 0 {
			return Bundle{}, errImpliedGasTooLow
		}
	}

	return Bundle{
		TargetBlock:        block + 1,
		Words:              words,
		ProfitWei:          cand.profit,
		BribeWei:           bribe,
		ImpliedGasPriceWei: cand.impliedGasPrice,
	}, nil
}
