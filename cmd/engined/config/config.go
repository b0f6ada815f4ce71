// Package config loads the engined daemon configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// EngineConfig is the top-level configuration for the engined daemon.
type EngineConfig struct {
	// Custodian is the hex address holding locked stakes and reward funds.
	Custodian string `yaml:"custodian"`

	// Operator is the hex address engined acts as when restoring migrated
	// snapshots. It must hold the upgrade-authority role in the snapshot.
	Operator string `yaml:"operator"`

	// ChainRPCURL, when set, drives the tick counter from the chain's head
	// block number. Leave empty to run on a manual tick source starting at
	// StartTick (useful for development).
	ChainRPCURL string `yaml:"chainRpcUrl"`
	StartTick   uint64 `yaml:"startTick"`

	// SnapshotPath is where state snapshots are persisted. Empty disables
	// persistence.
	SnapshotPath            string `yaml:"snapshotPath"`
	SnapshotIntervalSeconds int    `yaml:"snapshotIntervalSeconds"`

	// SettleIntervalSeconds is how often all pools are settled to the
	// latest tick.
	SettleIntervalSeconds int `yaml:"settleIntervalSeconds"`

	// MetricsListenAddr serves Prometheus metrics over HTTP.
	MetricsListenAddr string `yaml:"metricsListenAddr"`
}

const (
	defaultSnapshotIntervalSeconds = 300
	defaultSettleIntervalSeconds   = 15
	defaultMetricsListenAddr       = ":9090"
)

func (c *EngineConfig) validate() error {
	if c.Custodian == "" {
		return errors.New("config: custodian is required")
	}
	if !common.IsHexAddress(c.Custodian) {
		return fmt.Errorf("config: custodian %q is not a hex address", c.Custodian)
	}
	if c.Operator != "" && !common.IsHexAddress(c.Operator) {
		return fmt.Errorf("config: operator %q is not a hex address", c.Operator)
	}
	if c.SnapshotIntervalSeconds < 0 || c.SettleIntervalSeconds < 0 {
		return errors.New("config: intervals must not be negative")
	}
	return nil
}

func (c *EngineConfig) applyDefaults() {
	if c.SnapshotIntervalSeconds == 0 {
		c.SnapshotIntervalSeconds = defaultSnapshotIntervalSeconds
	}
	if c.SettleIntervalSeconds == 0 {
		c.SettleIntervalSeconds = defaultSettleIntervalSeconds
	}
	if c.MetricsListenAddr == "" {
		c.MetricsListenAddr = defaultMetricsListenAddr
	}
}

// SnapshotInterval returns the snapshot cadence as a duration.
func (c *EngineConfig) SnapshotInterval() time.Duration {
	return time.Duration(c.SnapshotIntervalSeconds) * time.Second
}

// SettleInterval returns the settlement cadence as a duration.
func (c *EngineConfig) SettleInterval() time.Duration {
	return time.Duration(c.SettleIntervalSeconds) * time.Second
}

// CustodianAddress returns the parsed custodian address.
func (c *EngineConfig) CustodianAddress() common.Address {
	return common.HexToAddress(c.Custodian)
}

// OperatorAddress returns the parsed operator address, zero if unset.
func (c *EngineConfig) OperatorAddress() common.Address {
	if c.Operator == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.Operator)
}

// LoadConfig reads, validates and defaults a configuration file.
func LoadConfig(path string) (*EngineConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg EngineConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}
