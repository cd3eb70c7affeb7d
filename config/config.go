// Package config loads the simulator's runtime configuration from
// environment variables (directly, for tests and embedding, or via
// urfave/cli/v2 flags in cmd/simulator), in the validate-then-default
// style of the node configuration loader this package is grounded on.
package config

import (
	"errors"
	"fmt"
	"os"
)

// Chain is one of the networks the simulator can target.
type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainBase     Chain = "base"
	ChainUnichain Chain = "unichain"
)

// ErrUnknownChain is returned when CHAIN names a network the simulator
// does not support.
var ErrUnknownChain = errors.New("config: unknown chain")

func validChain(c Chain) bool {
	switch c {
	case ChainEthereum, ChainBase, ChainUnichain:
		return true
	default:
		return false
	}
}

// ChainID returns the canonical chain id for a supported Chain.
func (c Chain) ChainID() uint64 {
	switch c {
	case ChainEthereum:
		return 1
	case ChainBase:
		return 8453
	case ChainUnichain:
		return 130
	default:
		return 0
	}
}

// Config is the simulator's full runtime configuration, sourced from
// spec.md §6's environment variables.
type Config struct {
	TychoURL        string
	TychoAPIKey     string
	PrivateKey      string
	Chain           Chain
	UnichainRPCURL  string
	Port            int
}

// defaultPort is used when PORT is unset.
const defaultPort = 8080

// Load reads and validates configuration from the process environment.
func Load() (*Config, error) {
	cfg := &Config{
		TychoURL:       os.Getenv("TYCHO_URL"),
		TychoAPIKey:    os.Getenv("TYCHO_API_KEY"),
		PrivateKey:     os.Getenv("PRIVATE_KEY"),
		Chain:          Chain(os.Getenv("CHAIN")),
		UnichainRPCURL: os.Getenv("UNICHAIN_RPC_URL"),
		Port:           defaultPort,
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		var port int
		if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
			return nil, fmt.Errorf("config: invalid PORT %q: %w", portStr, err)
		}
		cfg.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and chain-specific constraints.
func (c *Config) Validate() error {
	if c.TychoURL == "" {
		return errors.New("config: TYCHO_URL is required")
	}
	if c.PrivateKey == "" {
		return errors.New("config: PRIVATE_KEY is required")
	}
	if c.Chain == "" {
		return errors.New("config: CHAIN is required")
	}
	if !validChain(c.Chain) {
		return fmt.Errorf("%w: %q", ErrUnknownChain, c.Chain)
	}
	if c.Chain == ChainUnichain && c.UnichainRPCURL == "" {
		return errors.New("config: UNICHAIN_RPC_URL is required when CHAIN=unichain")
	}
	return nil
}
