package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	NATS      NATSConfig      `yaml:"nats"`
	Registry  RegistryConfig  `yaml:"registry"`
	Providers ProvidersConfig `yaml:"providers"`
	Allowance AllowanceConfig `yaml:"allowance"`
	Scanner   ScannerConfig   `yaml:"scanner"`
	Networks  map[string]NetworkConfig `yaml:"networks"` // keyed by chain id (e.g. "bsc")
}

// ServerConfig server configuration. AllowedIPs whitelists callers for the
// execute endpoints in addition to localhost.
type ServerConfig struct {
	Host       string   `yaml:"host"`
	Port       int      `yaml:"port"`
	AllowedIPs []string `yaml:"allowedIPs"`
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"`
}

// NATSConfig NATS message server configuration
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subjectPrefix"` // e.g. "zap.pipeline"
	Timeout       int    `yaml:"timeout"`
}

// RegistryConfig vault registry API configuration
type RegistryConfig struct {
	BaseURL string `yaml:"baseUrl"` // e.g. https://api.beefy.finance
	Timeout int    `yaml:"timeout"` // seconds
}

// ProvidersConfig swap provider configuration. Order defines the
// deterministic tie-break order for equal best quotes.
type ProvidersConfig struct {
	ZapBaseURL string   `yaml:"zapBaseUrl"` // e.g. https://api.beefy.finance/zap
	Order      []string `yaml:"order"`      // e.g. ["one-inch"]
	Timeout    int      `yaml:"timeout"`    // seconds
}

// AllowanceConfig allowance reconciliation polling configuration.
// Block inclusion and RPC state propagation are not simultaneous, so a mined
// approval is polled until the raised allowance is actually observable.
type AllowanceConfig struct {
	PollIntervalMs int `yaml:"pollIntervalMs"` // default 1000
	PollAttempts   int `yaml:"pollAttempts"`   // default 30
}

// ScannerConfig token balance scanner configuration
type ScannerConfig struct {
	BatchSize int `yaml:"batchSize"` // concurrent balanceOf reads per batch
}

// NetworkConfig per-chain configuration
type NetworkConfig struct {
	ChainID         int      `yaml:"chainId"` // numeric chain id (e.g. 56)
	Name            string   `yaml:"name"`
	RPCEndpoints    []string `yaml:"rpcEndpoints"`
	ZapRouter       string   `yaml:"zapRouter"`       // router executeOrder entry point
	ZapTokenManager string   `yaml:"zapTokenManager"` // spender for zap ERC20 inputs; defaults to router
	GasTrackerURL   string   `yaml:"gasTrackerUrl"`   // optional scan gas oracle, e.g. https://api.bscscan.com/api
	PrivateKey      string   `yaml:"privateKey"`      // hex, no 0x prefix
	GasLimit        uint64   `yaml:"gasLimit"`
	Enabled         bool     `yaml:"enabled"`
}

var AppConfig *Config

// LoadConfig loads the configuration file, preferring config.local.yaml when
// present, and applies environment overrides.
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	overrideFromEnv(&config)
	applyDefaults(&config)

	AppConfig = &config
	return nil
}

// overrideFromEnv applies environment variable overrides
func overrideFromEnv(config *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}
	if api := os.Getenv("REGISTRY_BASE_URL"); api != "" {
		config.Registry.BaseURL = api
	}
	if zap := os.Getenv("ZAP_BASE_URL"); zap != "" {
		config.Providers.ZapBaseURL = zap
	}
	if order := os.Getenv("PROVIDER_ORDER"); order != "" {
		parts := strings.Split(order, ",")
		config.Providers.Order = config.Providers.Order[:0]
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				config.Providers.Order = append(config.Providers.Order, trimmed)
			}
		}
	}
}

// applyDefaults fills unset fields with working defaults
func applyDefaults(config *Config) {
	if config.Registry.BaseURL == "" {
		config.Registry.BaseURL = "https://api.beefy.finance"
	}
	if config.Providers.ZapBaseURL == "" {
		config.Providers.ZapBaseURL = config.Registry.BaseURL + "/zap"
	}
	if len(config.Providers.Order) == 0 {
		config.Providers.Order = []string{"one-inch"}
	}
	if config.Providers.Timeout <= 0 {
		config.Providers.Timeout = 15
	}
	if config.Registry.Timeout <= 0 {
		config.Registry.Timeout = 15
	}
	if config.Allowance.PollIntervalMs <= 0 {
		config.Allowance.PollIntervalMs = 1000
	}
	if config.Allowance.PollAttempts <= 0 {
		config.Allowance.PollAttempts = 30
	}
	if config.Scanner.BatchSize <= 0 {
		config.Scanner.BatchSize = 10
	}
}

// GetNetworkConfig returns the configuration for a chain id, or nil when the
// chain is not configured.
func (c *Config) GetNetworkConfig(chainID string) *NetworkConfig {
	if c == nil || c.Networks == nil {
		return nil
	}
	network, ok := c.Networks[chainID]
	if !ok {
		return nil
	}
	return &network
}

// ZapSpender returns the approval spender for zap ERC20 inputs on a chain:
// the token manager when configured, otherwise the router itself.
func (n *NetworkConfig) ZapSpender() string {
	if n.ZapTokenManager != "" {
		return n.ZapTokenManager
	}
	return n.ZapRouter
}
