// Package config holds the gas station's kebab-case YAML configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultRPCPort              = 9527
	DefaultMetricsPort          = 9184
	DefaultMaxGasBudget         = 2_000_000_000
	DefaultDailyGasUsageCap     = 1500 * 1_000_000_000
	DefaultTargetInitBalance    = 100_000_000
	defaultRefreshIntervalSec   = 60 * 60 * 24
)

// SignerConfig picks between a local in-process keypair (used for tests
// and single-box deployments) and a sidecar signing service reached over
// HTTP.
type SignerConfig struct {
	Local   *LocalSignerConfig   `yaml:"local,omitempty"`
	Sidecar *SidecarSignerConfig `yaml:"sidecar,omitempty"`
}

type LocalSignerConfig struct {
	KeypairPath string `yaml:"keypair-path"`
}

type SidecarSignerConfig struct {
	SidecarURL string `yaml:"sidecar-url"`
}

// StorageConfig currently has a single variant; it is kept as a sum type
// so a second backend can be added without reshaping the config file.
type StorageConfig struct {
	Redis *RedisStorageConfig `yaml:"redis,omitempty"`
}

type RedisStorageConfig struct {
	RedisURL string `yaml:"redis-url"`
}

// BasicAuth is an optional fullnode basic-auth credential pair.
type BasicAuth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// CoinInitConfig configures the coin initializer's target coin size and
// refresh cadence.
type CoinInitConfig struct {
	TargetInitBalance  uint64 `yaml:"target-init-balance"`
	RefreshIntervalSec uint64 `yaml:"refresh-interval-sec"`
}

func DefaultCoinInitConfig() CoinInitConfig {
	return CoinInitConfig{
		TargetInitBalance:  DefaultTargetInitBalance,
		RefreshIntervalSec: defaultRefreshIntervalSec,
	}
}

// GasStationConfig is the top-level configuration file shape.
type GasStationConfig struct {
	SignerConfig        SignerConfig     `yaml:"signer-config"`
	RPCHostIP           string           `yaml:"rpc-host-ip"`
	RPCPort             uint16           `yaml:"rpc-port"`
	MetricsPort         uint16           `yaml:"metrics-port"`
	StorageConfig       StorageConfig    `yaml:"storage-config"`
	FullnodeURL         string           `yaml:"fullnode-url"`
	FullnodeBasicAuth   *BasicAuth       `yaml:"fullnode-basic-auth,omitempty"`
	CoinInitConfig      *CoinInitConfig  `yaml:"coin-init-config,omitempty"`
	DailyGasUsageCap    uint64           `yaml:"daily-gas-usage-cap"`
	MaxGasBudget        uint64           `yaml:"max-gas-budget"`
	AccessController    AccessController `yaml:"access-controller"`
}

// AccessController is the ambient predicate-layer configuration; the rule
// language itself is out of scope (spec Non-goals), so this only carries
// what the RPC layer needs to construct a checker.
type AccessController struct {
	MaxRequestsPerAddressPerMinute int `yaml:"max-requests-per-address-per-minute"`
}

func Default() *GasStationConfig {
	init := DefaultCoinInitConfig()
	return &GasStationConfig{
		SignerConfig: SignerConfig{Local: &LocalSignerConfig{}},
		RPCHostIP:    "0.0.0.0",
		RPCPort:      DefaultRPCPort,
		MetricsPort:  DefaultMetricsPort,
		StorageConfig: StorageConfig{
			Redis: &RedisStorageConfig{RedisURL: "redis://127.0.0.1:6379"},
		},
		FullnodeURL:      "http://localhost:9000",
		CoinInitConfig:   &init,
		DailyGasUsageCap: DefaultDailyGasUsageCap,
		MaxGasBudget:     DefaultMaxGasBudget,
		AccessController: AccessController{MaxRequestsPerAddressPerMinute: 600},
	}
}

// Load reads and parses a GasStationConfig from the given YAML file path.
func Load(path string) (*GasStationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}
