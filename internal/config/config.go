// Package config loads the payout engine configuration from YAML with
// environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Asset identifies a mosaic and its decimal precision on the ledger.
type Asset struct {
	MosaicID     string `yaml:"mosaicId"`
	Divisibility int    `yaml:"divisibility"`
}

// PayoutsConfig controls the preparation and broadcast schedulers.
type PayoutsConfig struct {
	BatchSize        int    `yaml:"batchSize"`
	EnableBatches    bool   `yaml:"enableBatches"`
	IssuerPrivateKey string `yaml:"issuerPrivateKey"`
}

// NetworkConfig describes the target blockchain network.
type NetworkConfig struct {
	GenerationHash    string   `yaml:"generationHash"`
	NetworkIdentifier uint8    `yaml:"networkIdentifier"`
	Nodes             []string `yaml:"nodes"`
}

// AssetsConfig lists the assets the engine pays out.
type AssetsConfig struct {
	Base Asset `yaml:"base"`
	Earn Asset `yaml:"earn"`
}

// BoosterConfig controls referral/boost payouts.
type BoosterConfig struct {
	MinReferrals int   `yaml:"minReferrals"`
	Amount       int64 `yaml:"amount"`
}

// LoggingConfig mirrors pkg/logger construction options.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ServerConfig controls the read-only HTTP surface.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig points at the MongoDB deployment backing the document store.
type DatabaseConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// Config is the root configuration document.
type Config struct {
	DappName     string         `yaml:"dappName"`
	GlobalDryRun bool           `yaml:"globalDryRun"`
	Payouts      PayoutsConfig  `yaml:"payouts"`
	Assets       AssetsConfig   `yaml:"assets"`
	Network      NetworkConfig  `yaml:"network"`
	Booster      BoosterConfig  `yaml:"booster"`
	Logging      LoggingConfig  `yaml:"logging"`
	Server       ServerConfig   `yaml:"server"`
	Database     DatabaseConfig `yaml:"database"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		DappName: "elevate",
		Payouts: PayoutsConfig{
			BatchSize:     10,
			EnableBatches: true,
		},
		Network: NetworkConfig{
			NetworkIdentifier: 104,
		},
		Booster: BoosterConfig{
			MinReferrals: 10,
			Amount:       5,
		},
		Logging: LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
		Server:  ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{
			URI:      "mongodb://localhost:27017",
			Database: "payout_engine",
		},
	}
}

// Load reads the configuration from path, applies environment overrides and
// validates the result. A missing file falls back to defaults so local runs
// work with environment variables alone.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PAYOUTS_ISSUER_PRIVATE_KEY"); v != "" {
		cfg.Payouts.IssuerPrivateKey = v
	}
	if v := os.Getenv("PAYOUTS_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Payouts.BatchSize = n
		}
	}
	if v := os.Getenv("GLOBAL_DRY_RUN"); v != "" {
		cfg.GlobalDryRun = v == "1" || v == "true"
	}
	if v := os.Getenv("NETWORK_GENERATION_HASH"); v != "" {
		cfg.Network.GenerationHash = v
	}
	if v := os.Getenv("DATABASE_URI"); v != "" {
		cfg.Database.URI = v
	}
	if v := os.Getenv("DATABASE_NAME"); v != "" {
		cfg.Database.Database = v
	}
}

// Validate rejects configurations the schedulers cannot run with. Missing
// configuration is fatal, never retried.
func (c *Config) Validate() error {
	if c.DappName == "" {
		return fmt.Errorf("dappName is required")
	}
	if c.Payouts.BatchSize <= 0 {
		return fmt.Errorf("payouts.batchSize must be positive")
	}
	if c.Assets.Earn.MosaicID == "" {
		return fmt.Errorf("assets.earn.mosaicId is required")
	}
	if c.Assets.Earn.Divisibility < 0 {
		return fmt.Errorf("assets.earn.divisibility must not be negative")
	}
	if !c.GlobalDryRun {
		if c.Payouts.IssuerPrivateKey == "" {
			return fmt.Errorf("payouts.issuerPrivateKey is required unless globalDryRun is set")
		}
		if c.Network.GenerationHash == "" {
			return fmt.Errorf("network.generationHash is required unless globalDryRun is set")
		}
		if len(c.Network.Nodes) == 0 {
			return fmt.Errorf("network.nodes must list at least one node unless globalDryRun is set")
		}
	}
	return nil
}
