package config

import "testing"

func withEnv(t *testing.T, kv map[string]string, fn func()) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
	fn()
}

func TestLoad_RequiresTychoURL(t *testing.T) {
	withEnv(t, map[string]string{
		"TYCHO_URL":   "",
		"PRIVATE_KEY": "0xabc",
		"CHAIN":       "ethereum",
	}, func() {
		if _, err := Load(); err == nil {
			t.Fatalf("expected error when TYCHO_URL is unset")
		}
	})
}

func TestLoad_RejectsUnknownChain(t *testing.T) {
	withEnv(t, map[string]string{
		"TYCHO_URL":   "wss://example.test/feed",
		"PRIVATE_KEY": "0xabc",
		"CHAIN":       "solana",
	}, func() {
		_, err := Load()
		if err == nil {
			t.Fatalf("expected error for unknown chain")
		}
	})
}

func TestLoad_UnichainRequiresRPCURL(t *testing.T) {
	withEnv(t, map[string]string{
		"TYCHO_URL":        "wss://example.test/feed",
		"PRIVATE_KEY":      "0xabc",
		"CHAIN":            "unichain",
		"UNICHAIN_RPC_URL": "",
	}, func() {
		if _, err := Load(); err == nil {
			t.Fatalf("expected error when UNICHAIN_RPC_URL is unset for chain=unichain")
		}
	})
}

func TestLoad_Success(t *testing.T) {
	withEnv(t, map[string]string{
		"TYCHO_URL":   "wss://example.test/feed",
		"PRIVATE_KEY": "0xabc",
		"CHAIN":       "base",
		"PORT":        "9090",
	}, func() {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Chain != ChainBase {
			t.Fatalf("want base, got %s", cfg.Chain)
		}
		if cfg.Port != 9090 {
			t.Fatalf("want port 9090, got %d", cfg.Port)
		}
		if cfg.Chain.ChainID() != 8453 {
			t.Fatalf("want chain id 8453, got %d", cfg.Chain.ChainID())
		}
	})
}

func TestLoad_DefaultPort(t *testing.T) {
	withEnv(t, map[string]string{
		"TYCHO_URL":   "wss://example.test/feed",
		"PRIVATE_KEY": "0xabc",
		"CHAIN":       "ethereum",
		"PORT":        "",
	}, func() {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Port != defaultPort {
			t.Fatalf("want default port %d, got %d", defaultPort, cfg.Port)
		}
	})
}
