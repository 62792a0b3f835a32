// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"math/big"
	"os"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/crypto"
	"github.com/luxfi/log"
	"github.com/spf13/cobra"

	"github.com/luxfi/arbhunter/cache"
	"github.com/luxfi/arbhunter/config"
	"github.com/luxfi/arbhunter/orchestrator"
	"github.com/luxfi/arbhunter/relay"
	"github.com/luxfi/arbhunter/rpcclient"
	"github.com/luxfi/arbhunter/token"
	"github.com/luxfi/arbhunter/tokengraph"
)

var (
	mode        string
	priceChange float64
	configPath  string
)

func main() {
	root := &cobra.Command{
		Use:   "arbhunter",
		Short: "on-chain arbitrage search engine",
		RunE:  run,
	}
	root.Flags().StringVarP(&mode, "mode", "m", "test", "live|test")
	root.Flags().Float64VarP(&priceChange, "price_change", "", 0, "test-mode pool imbalance fraction")
	root.Flags().StringVar(&configPath, "config", "config.ini", "path to config.ini")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := log.NewTestLogger(log.InfoLevel)

	if mode != "live" && mode != "test" {
		return fmt.Errorf("invalid --mode %q: must be live or test", mode)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	client, err := rpcclient.New(ctx, rpcclient.Endpoints{
		WS:      cfg.WS,
		HTTP:    cfg.HTTP,
		Ganache: cfg.Ganache,
		AWS:     cfg.AWS,
	}, 20, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	graph := tokengraph.New(token.WETH, logger)
	paramCache := cache.New(client, logger)

	ownerKey, err := crypto.LoadECDSA(cfg.OwnerKeyfile)
	if err != nil {
		return fmt.Errorf("load owner key: %w", err)
	}
	relayClient := relay.New(relay.DefaultEndpoint, common.HexToAddress(cfg.Owner), ownerKey, relay.NewAccessLogger("relay-access.log"))
	activity := relay.NewActivityLog("flashbots_log.json")

	rapidGasWei := new(big.Int)
	if cfg.RapidGasGwei > 0 {
		gwei := big.NewFloat(cfg.RapidGasGwei * 1e9)
		gwei.Int(rapidGasWei)
	}

	orch := &orchestrator.Context{
		Log:              logger,
		Graph:            graph,
		Cache:            paramCache,
		Chain:            client,
		Submitter:        &relaySubmitter{client: relayClient, activity: activity},
		Estimator:        client,
		Executor:         common.HexToAddress(cfg.Bot),
		Owner:            common.HexToAddress(cfg.Owner),
		LoanFeePPM:       uint32(cfg.LoanFeePPM),
		RapidGasPriceWei: rapidGasWei,
		MaxHops:          3,
		MinGasCostWei:    uint256.NewInt(1e15),
		LoanMaxWei:       uint256.NewInt(0).SetAllOne(),
		EpsilonWei:       uint256.NewInt(1),
	}
	if cfg.LoanPool != "" {
		orch.LoanPool = graph.PoolAt(common.HexToAddress(cfg.LoanPool))
	}

	var last uint64
	for {
		advanced, head, err := orch.RunOnce(ctx, last)
		if err != nil {
			return fmt.Errorf("orchestrator: %w", err)
		}
		if advanced {
			last = head
		}
	}
}

// relaySubmitter records every composed bundle to the activity log. Turning
// a Bundle's call-array words into a signed raw transaction still needs a
// nonce and gas-price policy this package does not model, so that step is
// left as the integration point downstream consumers of the activity log
// fill in; until then this only gives a durable record of what would have
// been submitted.
type relaySubmitter struct {
	client   *relay.Client
	activity *relay.ActivityLog
}

func (s *relaySubmitter) Submit(ctx context.Context, bundle orchestrator.Bundle) error {
	return s.activity.Record(ctx, bundle.TargetBlock, bundle)
}
