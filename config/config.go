// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads the bot's INI configuration file: node endpoints,
// the signing key identifier, the executor contract address, and the
// Etherscan API key used for ABI discovery.
package config

import (
	"fmt"

	"gopkg.in/ini.v1"
)

// Config mirrors the [DEFAULT] section fields the reference deployment's
// config.ini carries.
type Config struct {
	WS              string
	HTTP            string
	Ganache         string
	AWS             string
	Owner           string
	OwnerKeyfile    string
	Bot             string // executor contract address
	EtherscanAPIKey string

	LoanPool     string // v3-style pool the bundle borrows WETH from via flash()
	LoanFeePPM   uint64 // LoanPool's flash-loan fee, parts per million
	RapidGasGwei float64
}

// Load parses path and validates that every required field is present.
func Load(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	section := f.Section(ini.DefaultSection)

	cfg := &Config{
		WS:              section.Key("ws").String(),
		HTTP:            section.Key("http").String(),
		Ganache:         section.Key("ganache").String(),
		AWS:             section.Key("aws").String(),
		Owner:           section.Key("owner").String(),
		OwnerKeyfile:    section.Key("owner_keyfile").String(),
		Bot:             section.Key("bot").String(),
		EtherscanAPIKey: section.Key("etherscan_apikey").String(),
		LoanPool:        section.Key("loan_pool").String(),
		LoanFeePPM:      section.Key("loan_fee_ppm").MustUint64(500),
		RapidGasGwei:    section.Key("rapid_gas_gwei").MustFloat64(50),
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	required := map[string]string{
		"ws":    c.WS,
		"http":  c.HTTP,
		"owner": c.Owner,
		"bot":   c.Bot,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("config: missing required field %q", name)
		}
	}
	return nil
}
