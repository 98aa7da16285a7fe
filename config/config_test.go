package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pricebridge/crypto"
)

var testOracle = crypto.NewAddress(crypto.Stokenet, crypto.DeriveNodeID(crypto.EntityComponent, []byte("oracle")))

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NetworkName != DefaultNetwork || cfg.Variant != DefaultVariant {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.RPCAddress != cfg.RPCAddress ||
		reloaded.RateLimit.RequestsPerMinute != cfg.RateLimit.RequestsPerMinute ||
		reloaded.RateLimit.Burst != cfg.RateLimit.Burst {
		t.Fatalf("reloaded config differs: %+v vs %+v", reloaded, cfg)
	}
}

func TestLoadParsesSections(t *testing.T) {
	path := writeConfig(t, `RPCAddress = "127.0.0.1:9000"
DataDir = "./data"
NetworkName = "stokenet"
Variant = "mint"

[Oracle]
Component = "`+testOracle.String()+`"

[Log]
Env = "prod"
File = "/var/log/bridge.log"

[RateLimit]
RequestsPerMinute = 5
TrustedProxies = ["10.0.0.1", "172.16.0.0/12"]

[Telemetry]
Endpoint = "otel:4318"
Insecure = true
Traces = true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.RateLimit.RequestsPerMinute != 5 || cfg.RateLimit.Burst != DefaultBurst {
		t.Fatalf("unexpected rate limit %+v", cfg.RateLimit)
	}
	if len(cfg.RateLimit.TrustedProxies) != 2 || cfg.RateLimit.TrustedProxies[1] != "172.16.0.0/12" {
		t.Fatalf("unexpected trusted proxies %v", cfg.RateLimit.TrustedProxies)
	}
	if cfg.Log.Env != "prod" || cfg.Log.File != "/var/log/bridge.log" {
		t.Fatalf("unexpected log section %+v", cfg.Log)
	}
	if !cfg.Telemetry.Traces || cfg.Telemetry.Endpoint != "otel:4318" {
		t.Fatalf("unexpected telemetry %+v", cfg.Telemetry)
	}
	addr, ok, err := cfg.OracleAddress()
	if err != nil || !ok {
		t.Fatalf("oracle address: %v %v", ok, err)
	}
	if addr != testOracle {
		t.Fatalf("oracle address mismatch")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"variant": {
			mutate: func(c *Config) { c.Variant = "capped" },
			want:   "unknown variant",
		},
		"network": {
			mutate: func(c *Config) { c.NetworkName = "devnet" },
			want:   "unknown network",
		},
		"oracle required off localnet": {
			mutate: func(c *Config) { c.NetworkName = "stokenet" },
			want:   "Component is required",
		},
		"oracle on another network": {
			mutate: func(c *Config) {
				c.NetworkName = "mainnet"
				c.Oracle.Component = testOracle.String()
			},
			want: "does not match",
		},
		"oracle not a component": {
			mutate: func(c *Config) {
				c.NetworkName = "stokenet"
				c.Oracle.Component = crypto.NewAddress(crypto.Stokenet,
					crypto.DeriveNodeID(crypto.EntityFungibleResource, []byte("xrd"))).String()
			},
			want: "not a component",
		},
		"trusted proxy": {
			mutate: func(c *Config) { c.RateLimit.TrustedProxies = []string{"proxy.internal"} },
			want:   "invalid trusted proxy",
		},
		"data dir": {
			mutate: func(c *Config) { c.DataDir = " " },
			want:   "DataDir",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := &Config{DataDir: "./data"}
			cfg.applyDefaults()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCustomNetwork(t *testing.T) {
	cfg := &Config{DataDir: "./data", NetworkName: "hammunet", NetworkHRP: "tdx_21_"}
	cfg.applyDefaults()
	network, err := cfg.Network()
	if err != nil {
		t.Fatalf("network: %v", err)
	}
	oracle := crypto.NewAddress(network, crypto.DeriveNodeID(crypto.EntityComponent, []byte("oracle")))
	if !strings.HasPrefix(oracle.String(), "component_tdx_21_1") {
		t.Fatalf("unexpected address %s", oracle)
	}
	cfg.Oracle.Component = oracle.String()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
