// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package tokengraph implements the directed multigraph of tokens and pools
// an arbitrage cycle routes through: vertices are tokens, edges are pools,
// and multiple pools may serve the same ordered token pair.
package tokengraph

import (
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/zeebo/blake3"

	"github.com/luxfi/arbhunter/pools"
	"github.com/luxfi/arbhunter/token"
)

// Edge is one directed (token, pool, token) arrow in the graph.
type Edge struct {
	From, To common.Address
	Pool     pools.Pool
}

// Cycle is an ordered sequence of edges whose source equals its sink.
type Cycle []Edge

// Graph is the token/pool multigraph. It is built once per process and its
// topology never changes; only pool snapshots are refreshed in place by the
// parameter cache between blocks.
type Graph struct {
	log log.Logger

	root token.Token

	tokens map[common.Address]token.Token
	// adjacency[u][v] = pool addresses trading u for v.
	adjacency map[common.Address]map[common.Address][]common.Address
	poolsByAddr map[common.Address]pools.Pool

	// allowedPairs, when non-nil, restricts admission to explicitly listed
	// (token, token) directions — a feature-flagged allow-list mirroring
	// the reference bot's per-error-table pool exclusion.
	allowedPairs map[[2]common.Address]bool
}

// New constructs an empty graph rooted at root (WETH, in the reference
// deployment). logger is threaded through, never held as a package-level
// singleton.
func New(root token.Token, logger log.Logger) *Graph {
	return &Graph{
		log:         logger,
		root:        root,
		tokens:      map[common.Address]token.Token{root.Address: root},
		adjacency:   make(map[common.Address]map[common.Address][]common.Address),
		poolsByAddr: make(map[common.Address]pools.Pool),
	}
}

// SetAllowedPairs installs an admission allow-list. A nil map (the default)
// admits every discovered pair.
func (g *Graph) SetAllowedPairs(pairs [][2]common.Address) {
	g.allowedPairs = make(map[[2]common.Address]bool, len(pairs))
	for _, p := range pairs {
		g.allowedPairs[p] = true
	}
}

func (g *Graph) pairAllowed(from, to common.Address) bool {
	if g.allowedPairs == nil {
		return true
	}
	return g.allowedPairs[[2]common.Address{from, to}]
}

// hasNonNegligibleReserves reports whether a constant-product pool holds at
// least one whole unit (10^decimals) of each coin — the admission floor from
// the data model ("at least one unit of each token after decimal scaling").
// Pools of every other family are admitted unconditionally.
func hasNonNegligibleReserves(p pools.Pool) bool {
	cp, ok := p.(*pools.ConstantProduct)
	if !ok {
		return true
	}
	coins := cp.Coins()
	if len(coins) != 2 {
		return true
	}
	min0 := new(big.Int).SetUint64(1)
	min1 := new(big.Int).SetUint64(1)
	min0.Mul(min0, coins[0].OneUnit())
	min1.Mul(min1, coins[1].OneUnit())
	r0 := cp.Reserve0().ToBig()
	r1 := cp.Reserve1().ToBig()
	return r0.Cmp(min0) >= 0 && r1.Cmp(min1) >= 0
}

// AddPool interns both tokens and inserts the pool on every direction it
// supports. A pool rejected by the reserve floor or the allow-list is
// silently skipped, matching the reference bot's admission filter.
func (g *Graph) AddPool(p pools.Pool, coins []token.Token) {
	if !hasNonNegligibleReserves(p) {
		g.log.Debug("pool rejected by liquidity floor", "pool", p.Address())
		return
	}
	for _, c := range coins {
		g.tokens[c.Address] = c
	}
	for i := range coins {
		for j := range coins {
			if i == j {
				continue
			}
			from, to := coins[i].Address, coins[j].Address
			if !g.pairAllowed(from, to) {
				continue
			}
			if g.adjacency[from] == nil {
				g.adjacency[from] = make(map[common.Address][]common.Address)
			}
			g.adjacency[from][to] = append(g.adjacency[from][to], p.Address())
		}
	}
	g.poolsByAddr[p.Address()] = p
}

// UpdatePool replaces the snapshot for an already-interned pool address,
// used by the parameter cache's per-block refresh. The topology (adjacency)
// is untouched.
func (g *Graph) UpdatePool(addr common.Address, p pools.Pool) {
	if _, ok := g.poolsByAddr[addr]; !ok {
		return
	}
	g.poolsByAddr[addr] = p
}

// RemovePool drops a pool's snapshot, again leaving topology alone: the
// address stays in PoolsForEdge results, while PoolAt returns nil for it and
// circuit enumeration skips it. UpdatePool does not restore a removed pool;
// only AddPool does.
func (g *Graph) RemovePool(addr common.Address) {
	delete(g.poolsByAddr, addr)
}

// PoolAt returns the live snapshot for a pool address, or nil if it is
// currently excluded (cache miss) or unknown.
func (g *Graph) PoolAt(addr common.Address) pools.Pool {
	return g.poolsByAddr[addr]
}

// Key returns a deterministic 32-byte blake3 interning key for a pool address.
func Key(addr common.Address) [32]byte {
	return blake3.Sum256(addr.Bytes())
}

// circuits performs bounded-depth DFS from root back to root, visiting no
// edge twice (vertices may repeat). maxHops bounds path length.
func (g *Graph) circuits(maxHops int) []Cycle {
	var out []Cycle
	visited := make(map[[2]common.Address]bool)
	var path []Edge

	var walk func(cur common.Address, depth int)
	walk = func(cur common.Address, depth int) {
		if depth > 0 && cur == g.root.Address {
			cycle := make(Cycle, len(path))
			copy(cycle, path)
			out = append(out, cycle)
		}
		if depth >= maxHops {
			return
		}
		for to, poolAddrs := range g.adjacency[cur] {
			for _, pa := range poolAddrs {
				p := g.poolsByAddr[pa]
				if p == nil {
					continue
				}
				edgeKey := [2]common.Address{cur, to}
				if visited[edgeKey] {
					continue
				}
				visited[edgeKey] = true
				path = append(path, Edge{From: cur, To: to, Pool: p})
				walk(to, depth+1)
				path = path[:len(path)-1]
				delete(visited, edgeKey)
			}
		}
	}
	walk(g.root.Address, 0)
	return out
}

// Circuits returns every simple cycle rooted at the graph's root token, up
// to maxHops edges, after discarding degenerate single-pool cycles.
func (g *Graph) Circuits(maxHops int) []Cycle {
	return pruneCircuits(g.circuits(maxHops))
}

// pruneCircuits discards a cycle if every edge uses the same single pool —
// no arbitrage is possible swapping back and forth through one contract.
func pruneCircuits(cycles []Cycle) []Cycle {
	out := make([]Cycle, 0, len(cycles))
	for _, c := range cycles {
		if len(c) == 0 {
			continue
		}
		allSame := true
		first := c[0].Pool.Address()
		for _, e := range c[1:] {
			if e.Pool.Address() != first {
				allSame = false
				break
			}
		}
		if !allSame {
			out = append(out, c)
		}
	}
	return out
}

// PoolsForEdge returns every pool address serving the (from, to) direction.
func (g *Graph) PoolsForEdge(from, to common.Address) []common.Address {
	return g.adjacency[from][to]
}
