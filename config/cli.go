package config

import "github.com/urfave/cli/v2"

// Flags declares the urfave/cli/v2 flags cmd/simulator registers;
// each falls back to its matching environment variable exactly as
// Load does, so the binary behaves the same whether launched with
// flags or a bare environment.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "tycho-url", EnvVars: []string{"TYCHO_URL"}, Usage: "Tycho feed websocket URL"},
		&cli.StringFlag{Name: "tycho-api-key", EnvVars: []string{"TYCHO_API_KEY"}, Usage: "Tycho feed API key"},
		&cli.StringFlag{Name: "private-key", EnvVars: []string{"PRIVATE_KEY"}, Usage: "hex-encoded signing key for Permit2"},
		&cli.StringFlag{Name: "chain", EnvVars: []string{"CHAIN"}, Usage: "ethereum | base | unichain"},
		&cli.StringFlag{Name: "unichain-rpc-url", EnvVars: []string{"UNICHAIN_RPC_URL"}, Usage: "RPC endpoint, required when chain=unichain"},
		&cli.IntFlag{Name: "port", EnvVars: []string{"PORT"}, Value: defaultPort, Usage: "HTTP service listen port"},
	}
}

// FromCLI builds a Config from a populated cli.Context, validating it
// the same way Load does.
func FromCLI(c *cli.Context) (*Config, error) {
	cfg := &Config{
		TychoURL:       c.String("tycho-url"),
		TychoAPIKey:    c.String("tycho-api-key"),
		PrivateKey:     c.String("private-key"),
		Chain:          Chain(c.String("chain")),
		UnichainRPCURL: c.String("unichain-rpc-url"),
		Port:           c.Int("port"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
