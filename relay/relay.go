// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package relay submits signed bundles to a private block-building relay
// (Flashbots-style) and maintains the append-only activity log the
// orchestrator's submissions are recorded into.
package relay

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/crypto"
	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// NewAccessLogger builds the structured access logger SendBundle writes to,
// rotating the underlying file so a long-running bot never fills the disk
// with bundle submission records.
func NewAccessLogger(path string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	})
	return logger
}

// BundleRequest is the eth_callBundle/eth_sendBundle JSON-RPC body.
type BundleRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// BundleResult is the subset of the relay's response the caller inspects to
// decide whether a bundle is submittable.
type BundleResult struct {
	StateBlockNumber uint64 `json:"stateBlockNumber"`
	Results          []struct {
		Error             string `json:"error"`
		EthSentToCoinbase string `json:"ethSentToCoinbase"`
	} `json:"results"`
}

type bundleResponse struct {
	Result *BundleResult `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// DefaultEndpoint is the well-known Flashbots relay host. The config file
// has no dedicated relay-endpoint field, so callers default to this unless
// they have a reason to target a different builder.
const DefaultEndpoint = "https://relay.flashbots.net"

// Client submits bundles to one relay endpoint, signed by the owner key.
// It is constructed once per process and threaded explicitly; it never
// exists as a package-level singleton.
type Client struct {
	endpoint  string
	ownerAddr common.Address
	ownerKey  *ecdsa.PrivateKey
	http      *http.Client
	access    *logrus.Logger
}

func New(endpoint string, ownerAddr common.Address, ownerKey *ecdsa.PrivateKey, accessLog *logrus.Logger) *Client {
	return &Client{
		endpoint:  endpoint,
		ownerAddr: ownerAddr,
		ownerKey:  ownerKey,
		http:      &http.Client{},
		access:    accessLog,
	}
}

// SendBundle posts a list of raw signed transactions as eth_sendBundle
// (simulate=false) or eth_callBundle (simulate=true), signed per the
// X-Flashbots-Signature convention: keccak(body) signed by the owner key.
func (c *Client) SendBundle(ctx context.Context, rawTxs []string, targetBlock uint64, simulate bool) (*BundleResult, error) {
	method := "eth_sendBundle"
	params := []interface{}{rawTxs, fmt.Sprintf("0x%x", targetBlock)}
	if simulate {
		method = "eth_callBundle"
		params = append(params, "latest")
	}
	body := BundleRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	sig, err := c.sign(bodyBytes)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Flashbots-Signature", sig)

	correlationID := uuid.New().String()
	resp, err := c.http.Do(req)
	if err != nil {
		c.access.WithFields(logrus.Fields{
			"bundle_id": correlationID,
			"method":    method,
			"error":     err.Error(),
		}).Error("relay request failed")
		return nil, fmt.Errorf("relay: post bundle: %w", err)
	}
	defer resp.Body.Close()

	var decoded bundleResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("relay: decode response: %w", err)
	}
	if decoded.Error != nil {
		return nil, fmt.Errorf("relay: %s", decoded.Error.Message)
	}
	c.access.WithFields(logrus.Fields{
		"bundle_id":    correlationID,
		"method":       method,
		"status":       resp.StatusCode,
		"target_block": targetBlock,
	}).Info("relay bundle submitted")
	return decoded.Result, nil
}

func (c *Client) sign(body []byte) (string, error) {
	digest := crypto.Keccak256Hash(body)
	sig, err := crypto.Sign(digest.Bytes(), c.ownerKey)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:0x%x", c.ownerAddr.Hex(), sig), nil
}

// Submittable reports whether every sub-call succeeded and paid the
// coinbase, per the bundle-acceptance rule.
func Submittable(r *BundleResult) bool {
	if r == nil || len(r.Results) == 0 {
		return false
	}
	for _, sub := range r.Results {
		if sub.Error != "" || sub.EthSentToCoinbase == "0" {
			return false
		}
	}
	return true
}

// Bribe samples a coinbase payment in [0.90, 0.95] of profit, floored at
// minGasCostWei.
func Bribe(profitWei, minGasCostWei uint64) uint64 {
	frac := 0.90 + rand.Float64()*0.05
	bribe := uint64(frac * float64(profitWei))
	if bribe < minGasCostWei {
		return minGasCostWei
	}
	return bribe
}

// ActivityLog is the append-only flashbots_log.json mirror: a block-keyed
// map of submission data, safely rewritten under a file lock.
type ActivityLog struct {
	path string
	lock *flock.Flock
}

func NewActivityLog(path string) *ActivityLog {
	return &ActivityLog{path: path, lock: flock.New(path + ".lock")}
}

// Record appends one block's submission under an exclusive file lock,
// truncating and rewriting the whole log (matching the reference's
// read-modify-write, minus the races that pattern invites without a lock).
func (l *ActivityLog) Record(ctx context.Context, block uint64, entry interface{}) error {
	if err := l.lock.Lock(); err != nil {
		return fmt.Errorf("relay: lock activity log: %w", err)
	}
	defer l.lock.Unlock()

	existing := make(map[uint64]interface{})
	if data, err := os.ReadFile(l.path); err == nil {
		_ = json.Unmarshal(data, &existing)
	}
	existing[block] = entry

	out, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(l.path, out, 0o644)
}
