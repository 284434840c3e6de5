package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadRelayConfigSubstitutesEnvVars(t *testing.T) {
	t.Setenv("TEST_SIGNER_KEY", "0xdeadbeef")

	path := writeTempConfig(t, `
hyperbridge:
  comet_endpoint: http://127.0.0.1:26657
relayer:
  consensus: true
  messaging: true
  reconnects: 5
chains:
  "EVM(1)":
    execution_ws: ws://localhost:8546
    handler: "0x0000000000000000000000000000000000000001"
    ismp_host: "0x0000000000000000000000000000000000000002"
    signer: ${TEST_SIGNER_KEY}
    gas_limit: 5000000
`)

	cfg, err := LoadRelayConfig(path)
	if err != nil {
		t.Fatalf("LoadRelayConfig: %v", err)
	}
	entry, ok := cfg.Chains["EVM(1)"]
	if !ok {
		t.Fatalf("expected chain EVM(1) to be present")
	}
	if entry.Signer != "0xdeadbeef" {
		t.Errorf("Signer = %q, want substituted env value", entry.Signer)
	}
	if !cfg.Relayer.Consensus || !cfg.Relayer.Messaging {
		t.Errorf("expected both relayer engines enabled")
	}
	if cfg.Relayer.Reconnects != 5 {
		t.Errorf("Reconnects = %d, want 5", cfg.Relayer.Reconnects)
	}
}

func TestLoadRelayConfigAppliesDefaultWhenEnvUnset(t *testing.T) {
	path := writeTempConfig(t, `
hyperbridge:
  comet_endpoint: http://127.0.0.1:26657
relayer:
  consensus: true
  messaging: false
  reconnects: 3
chains:
  "EVM(1)":
    execution_ws: ws://localhost:8546
    handler: "0x01"
    ismp_host: "0x02"
    signer: ${UNSET_SIGNER_VAR:-fallback-signer}
    gas_limit: 1000000
`)

	cfg, err := LoadRelayConfig(path)
	if err != nil {
		t.Fatalf("LoadRelayConfig: %v", err)
	}
	if cfg.Chains["EVM(1)"].Signer != "fallback-signer" {
		t.Errorf("Signer = %q, want fallback-signer", cfg.Chains["EVM(1)"].Signer)
	}
}

func TestRelayConfigValidateRequiresRollupFields(t *testing.T) {
	cfg := &RelayConfig{
		Hub: HubSettings{CometEndpoint: "http://127.0.0.1:26657"},
		Chains: map[string]ChainEntry{
			"EVM(42161)": {
				ExecutionWS: "ws://localhost:9000",
				Family:      "arbitrum",
				// missing BeaconExecutionWS, RollupCore, L1Anchor
			},
		},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for incomplete rollup chain entry")
	}
}

func TestRelayConfigValidateRejectsMissingHubEndpoint(t *testing.T) {
	cfg := &RelayConfig{}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for missing hub comet_endpoint")
	}
}
