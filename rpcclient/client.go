// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rpcclient implements the node I/O boundary: batched eth_call
// requests over HTTP, a websocket connection to the node with
// disconnect/rebind recovery (no subscription is issued or read on it), and
// eth_blockNumber polling over HTTP. Nothing in this package touches pool
// math; it only moves bytes to and from the node.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"golang.org/x/time/rate"

	"github.com/luxfi/arbhunter/pools"
)

// Endpoints groups the node addresses a Client binds to, mirroring the
// config file's ws/http/ganache/aws fields.
type Endpoints struct {
	WS      string
	HTTP    string
	Ganache string
	AWS     string
}

// Client is the sole owner of the node connections. It is always
// constructed explicitly and threaded through the orchestrator's Context;
// it is never held as a package-level singleton.
type Client struct {
	log       log.Logger
	endpoints Endpoints
	http      *http.Client
	limiter   *rate.Limiter

	wsConn atomic.Pointer[websocket.Conn]
}

// New sets up the HTTP leg and dials the websocket leg (when an endpoint is
// configured); no head subscription is issued on it.
// requestsPerSecond bounds the batch caller's outbound rate.
func New(ctx context.Context, endpoints Endpoints, requestsPerSecond float64, logger log.Logger) (*Client, error) {
	c := &Client{
		log:       logger,
		endpoints: endpoints,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(requestsPerSecond), int(requestsPerSecond)+1),
	}
	if err := c.dialWS(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) dialWS(ctx context.Context) error {
	if c.endpoints.WS == "" {
		return nil
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.endpoints.WS, nil)
	if err != nil {
		return fmt.Errorf("rpcclient: dial ws %s: %w", c.endpoints.WS, err)
	}
	c.wsConn.Store(conn)
	return nil
}

// Rebind tears down and redials the websocket leg after a disconnect,
// leaving the HTTP leg (used for batched eth_call) untouched.
func (c *Client) Rebind(ctx context.Context) error {
	if old := c.wsConn.Swap(nil); old != nil {
		_ = old.Close()
	}
	c.log.Warn("rebinding websocket provider", "endpoint", c.endpoints.WS)
	return c.dialWS(ctx)
}

type jsonRPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type jsonRPCResponse struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// BatchCall issues one JSON-RPC batch of eth_call requests, all tagged with
// each ParamCall's BlockTag, and returns raw results reordered to match the
// input slice (the node may reorder responses by id). A call whose response
// carries an error is logged and left as a nil result rather than failing
// the whole batch.
func (c *Client) BatchCall(ctx context.Context, calls []pools.ParamCall) ([][]byte, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	payload := make([]jsonRPCRequest, len(calls))
	for i, call := range calls {
		blockTag := call.BlockTag
		if blockTag == "" {
			blockTag = "latest"
		}
		payload[i] = jsonRPCRequest{
			JSONRPC: "2.0",
			ID:      i,
			Method:  "eth_call",
			Params: []interface{}{
				map[string]string{
					"to":   call.To.Hex(),
					"data": "0x" + fmt.Sprintf("%x", call.Data),
				},
				blockTag,
			},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.HTTP, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpcclient: batch request: %w", err)
	}
	defer resp.Body.Close()

	var responses []jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&responses); err != nil {
		return nil, fmt.Errorf("rpcclient: decode batch response: %w", err)
	}

	out := make([][]byte, len(calls))
	for _, r := range responses {
		if r.ID < 0 || r.ID >= len(out) {
			continue
		}
		if r.Error != nil {
			c.log.Warn("eth_call failed", "id", r.ID, "error", r.Error.Message)
			continue
		}
		var hexResult string
		if err := json.Unmarshal(r.Result, &hexResult); err != nil {
			out[r.ID] = r.Result
			continue
		}
		out[r.ID] = decodeHex(hexResult)
	}
	return out, nil
}

func decodeHex(s string) []byte {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	out, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return out
}

// BlockNumber issues eth_blockNumber against the HTTP leg.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	req := jsonRPCRequest{JSONRPC: "2.0", ID: 0, Method: "eth_blockNumber", Params: []interface{}{}}
	body, _ := json.Marshal(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.HTTP, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("rpcclient: eth_blockNumber: %w", err)
	}
	defer resp.Body.Close()

	var r jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return 0, err
	}
	var hexResult string
	if err := json.Unmarshal(r.Result, &hexResult); err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(hexResult, "0x"), 16, 64)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// EstimateGas issues eth_estimateGas for a candidate bundle's outer call, the
// dry run the orchestrator uses to size the implied-gas-price skip before
// submitting a bundle.
func (c *Client) EstimateGas(ctx context.Context, to common.Address, data []byte, value *big.Int) (uint64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	if value == nil {
		value = new(big.Int)
	}
	req := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      0,
		Method:  "eth_estimateGas",
		Params: []interface{}{
			map[string]string{
				"to":    to.Hex(),
				"data":  "0x" + fmt.Sprintf("%x", data),
				"value": "0x" + value.Text(16),
			},
		},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return 0, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.HTTP, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("rpcclient: eth_estimateGas: %w", err)
	}
	defer resp.Body.Close()

	var r jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return 0, err
	}
	if r.Error != nil {
		return 0, fmt.Errorf("rpcclient: eth_estimateGas failed: %s", r.Error.Message)
	}
	var hexResult string
	if err := json.Unmarshal(r.Result, &hexResult); err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimPrefix(hexResult, "0x"), 16, 64)
}

// Close releases the websocket leg.
func (c *Client) Close() error {
	if conn := c.wsConn.Swap(nil); conn != nil {
		return conn.Close()
	}
	return nil
}
