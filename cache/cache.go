// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package cache implements the per-block parameter refresh: it batches every
// pool's eth_call descriptors into one round-trip against the node, decodes
// the results per pool, and stamps each refreshed pool with the new block's
// generation counter.
package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/arbhunter/pools"
)

// ErrCacheMiss marks one pool's refresh failure; the caller excludes that
// pool from this block's search rather than aborting the whole refresh.
var ErrCacheMiss = errors.New("cache: miss")

// Caller is the minimal RPC capability the cache needs: a batched eth_call
// against a fixed block tag. Implemented by package rpcclient.
type Caller interface {
	BatchCall(ctx context.Context, calls []pools.ParamCall) ([][]byte, error)
}

// Cache owns the current generation counter and the most recent refresh
// failures, keyed by pool address.
type Cache struct {
	log        log.Logger
	caller     Caller
	generation uint64
	misses     map[common.Address]error
}

func New(caller Caller, logger log.Logger) *Cache {
	return &Cache{log: logger, caller: caller, misses: make(map[common.Address]error)}
}

// Refresh batches every source's GetParamCalls into one request tagged with
// blockTag, decodes each pool's slice of results via SetParams, and returns
// the updated pools keyed by address. A pool whose calls fail, or whose
// decode fails, is recorded in Misses and excluded from the returned map.
func (c *Cache) Refresh(ctx context.Context, blockTag string, sources []pools.ParamSource) (map[common.Address]pools.Pool, error) {
	c.generation++
	gen := c.generation
	c.misses = make(map[common.Address]error)

	var allCalls []pools.ParamCall
	spans := make([]int, 0, len(sources))
	for _, s := range sources {
		calls := s.GetParamCalls()
		for i := range calls {
			calls[i].BlockTag = blockTag
		}
		allCalls = append(allCalls, calls...)
		spans = append(spans, len(calls))
	}

	results, err := c.caller.BatchCall(ctx, allCalls)
	if err != nil {
		return nil, fmt.Errorf("cache: batch call for block %s: %w", blockTag, err)
	}
	if len(results) != len(allCalls) {
		return nil, fmt.Errorf("cache: expected %d results, got %d", len(allCalls), len(results))
	}

	out := make(map[common.Address]pools.Pool, len(sources))
	offset := 0
	for i, s := range sources {
		n := spans[i]
		slice := results[offset : offset+n]
		offset += n

		updated, err := s.SetParams(slice, gen)
		if err != nil {
			c.misses[s.Address()] = err
			c.log.Warn("cache miss for pool", "pool", s.Address(), "error", err)
			continue
		}
		out[s.Address()] = updated
	}
	return out, nil
}

// Misses returns the pools excluded by the most recent Refresh call.
func (c *Cache) Misses() map[common.Address]error {
	return c.misses
}

// Generation reports the counter stamped onto pools by the most recent
// Refresh call.
func (c *Cache) Generation() uint64 {
	return c.generation
}
