// Relay Configuration Loader
//
// Loads the hub/chains relay topology (spec.md §6) from a YAML file
// with ${VAR_NAME} / ${VAR_NAME:-default} environment substitution,
// following the same loader shape the teacher's anchor configuration
// loader used.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// RelayConfig is the top-level relay topology document: hub settings,
// relay-engine toggles, and the per-chain map keyed by StateMachine id
// string (e.g. "EVM(1)", "Substrate(68617a6c)").
type RelayConfig struct {
	Hub     HubSettings           `yaml:"hyperbridge"`
	Relayer RelayerSettings       `yaml:"relayer"`
	Chains  map[string]ChainEntry `yaml:"chains"`
}

// HubSettings configures the relayer's connection to the Substrate hub.
type HubSettings struct {
	CometEndpoint string `yaml:"comet_endpoint"`
	SignerSeedHex string `yaml:"signer_seed_hex"`
}

// RelayerSettings toggles which relay engines run and how aggressively
// the Reconnection Supervisor retries.
type RelayerSettings struct {
	Consensus  bool `yaml:"consensus"`
	Messaging  bool `yaml:"messaging"`
	Reconnects uint32 `yaml:"reconnects"`
}

// ChainEntry is one destination chain's configuration. EVM fields are
// populated for every EVM-family chain; RollupCore/BeaconExecutionWS
// only for rollup chains (spec.md §6).
type ChainEntry struct {
	ExecutionWS      string   `yaml:"execution_ws"`
	Handler          string   `yaml:"handler"`
	IsmpHost         string   `yaml:"ismp_host"`
	Signer           string   `yaml:"signer"`
	GasLimit         uint64   `yaml:"gas_limit"`
	BeaconExecutionWS string  `yaml:"beacon_execution_ws"`
	RollupCore       string   `yaml:"rollup_core"`
	L1Anchor         string   `yaml:"l1_anchor"` // for rollups: the StateMachine key of their L1 host entry
	Family           string   `yaml:"family"`    // "ethereum" | "arbitrum" | "optimism" | "base" | "substrate"
	DialTimeout      Duration `yaml:"dial_timeout"`
}

// Duration wraps time.Duration for YAML unmarshaling — e.g. "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// LoadRelayConfig reads and parses a relay topology document, expanding
// ${VAR_NAME} / ${VAR_NAME:-default} references against the process
// environment before unmarshaling.
func LoadRelayConfig(path string) (*RelayConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read relay config %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	var cfg RelayConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse relay config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the structural invariants spec.md §6/§9 require:
// the hub names its comet endpoint, every EVM chain names its execution
// endpoint, every rollup chain names execution_ws, beacon_execution_ws,
// rollup_core and an L1 anchor, and every family is known. Gas limits
// are not checked.
func (c *RelayConfig) Validate() error {
	if c.Hub.CometEndpoint == "" {
		return fmt.Errorf("relay config: hyperbridge.comet_endpoint is required")
	}
	for id, entry := range c.Chains {
		switch entry.Family {
		case "ethereum", "":
			if entry.ExecutionWS == "" {
				return fmt.Errorf("relay config: chain %s: execution_ws is required", id)
			}
		case "arbitrum", "optimism", "base":
			if entry.ExecutionWS == "" || entry.BeaconExecutionWS == "" || entry.RollupCore == "" {
				return fmt.Errorf("relay config: chain %s: rollup chains require execution_ws, beacon_execution_ws, and rollup_core", id)
			}
			if entry.L1Anchor == "" {
				return fmt.Errorf("relay config: chain %s: rollup chains require l1_anchor naming their L1 host entry", id)
			}
		case "substrate":
			// no additional fields required beyond the map key's StateMachine tag
		default:
			return fmt.Errorf("relay config: chain %s: unknown family %q", id, entry.Family)
		}
	}
	return nil
}

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}
