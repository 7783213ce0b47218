package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	GatewayURL        string
	TradingCanisterID string
	LedgerCanisterID  string
	WalletPEM         string
	SessionPath       string
	SettleWait        time.Duration
	RESTTimeout       time.Duration
	ReadRetries       int
	Workers           int
	TransferFeeSats   int64
	MetricsPort       int
	SweepInterval     time.Duration
}

type ConfigFile struct {
	Gateway struct {
		URL             string `yaml:"url"`
		TradingCanister string `yaml:"tradingCanister"`
		LedgerCanister  string `yaml:"ledgerCanister"`
	} `yaml:"gateway"`

	Wallet struct {
		PEMFile     string `yaml:"pemFile"`
		SessionPath string `yaml:"sessionPath"`
	} `yaml:"wallet"`

	Sweep struct {
		SettleWait      string `yaml:"settleWait"`
		ReadRetries     int    `yaml:"readRetries"`
		Workers         int    `yaml:"workers"`
		TransferFeeSats int64  `yaml:"transferFeeSats"`
		Interval        string `yaml:"interval"`
	} `yaml:"sweep"`

	System struct {
		RESTTimeout string `yaml:"restTimeout"`
		MetricsPort int    `yaml:"metricsPort"`
	} `yaml:"system"`
}

// Mainnet canister IDs for the Odin trading venue and the ckBTC ledger.
const (
	DefaultTradingCanisterID = "z2vm5-gaaaa-aaaaj-azw6q-cai"
	DefaultLedgerCanisterID  = "mxzaz-hqaaa-aaaar-qaada-cai"
	DefaultGatewayURL        = "https://icp0.io"
	DefaultTransferFeeSats   = 10
)

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	settleWait, err := time.ParseDuration(config.Sweep.SettleWait)
	if err != nil {
		settleWait = 5 * time.Second
	}
	restTimeout, err := time.ParseDuration(config.System.RESTTimeout)
	if err != nil {
		restTimeout = 10 * time.Second
	}
	interval, err := time.ParseDuration(config.Sweep.Interval)
	if err != nil {
		interval = 0
	}

	settings := Settings{
		GatewayURL:        getEnvOrDefault("GATEWAY_URL", firstNonEmpty(config.Gateway.URL, DefaultGatewayURL)),
		TradingCanisterID: getEnvOrDefault("TRADING_CANISTER_ID", firstNonEmpty(config.Gateway.TradingCanister, DefaultTradingCanisterID)),
		LedgerCanisterID:  getEnvOrDefault("LEDGER_CANISTER_ID", firstNonEmpty(config.Gateway.LedgerCanister, DefaultLedgerCanisterID)),
		WalletPEM:         getEnvOrDefault("WALLET_PEM", firstNonEmpty(config.Wallet.PEMFile, ".wallet/identity-private.pem")),
		SessionPath:       getEnvOrDefault("SESSION_PATH", firstNonEmpty(config.Wallet.SessionPath, ".wallet/sessions.db")),
		SettleWait:        settleWait,
		RESTTimeout:       restTimeout,
		ReadRetries:       getIntFromEnvOrConfig("READ_RETRIES", config.Sweep.ReadRetries, 3),
		Workers:           getIntFromEnvOrConfig("SWEEP_WORKERS", config.Sweep.Workers, 5),
		TransferFeeSats:   getInt64FromEnvOrConfig("TRANSFER_FEE_SATS", config.Sweep.TransferFeeSats, DefaultTransferFeeSats),
		MetricsPort:       getIntFromEnvOrConfig("METRICS_PORT", config.System.MetricsPort, 0),
		SweepInterval:     interval,
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		GatewayURL:        getEnvOrDefault("GATEWAY_URL", DefaultGatewayURL),
		TradingCanisterID: getEnvOrDefault("TRADING_CANISTER_ID", DefaultTradingCanisterID),
		LedgerCanisterID:  getEnvOrDefault("LEDGER_CANISTER_ID", DefaultLedgerCanisterID),
		WalletPEM:         getEnvOrDefault("WALLET_PEM", ".wallet/identity-private.pem"),
		SessionPath:       getEnvOrDefault("SESSION_PATH", ".wallet/sessions.db"),
		SettleWait:        getDurationOrDefault("SETTLE_WAIT", 5*time.Second),
		RESTTimeout:       getDurationOrDefault("REST_TIMEOUT", 10*time.Second),
		ReadRetries:       getIntOrDefault("READ_RETRIES", 3),
		Workers:           getIntOrDefault("SWEEP_WORKERS", 5),
		TransferFeeSats:   getInt64OrDefault("TRANSFER_FEE_SATS", DefaultTransferFeeSats),
		MetricsPort:       getIntOrDefault("METRICS_PORT", 0),
		SweepInterval:     getDurationOrDefault("SWEEP_INTERVAL", 0),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func firstNonEmpty(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getInt64FromEnvOrConfig(key string, configValue, defaultValue int64) int64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseInt(env, 10, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// validateSettings performs validation of configuration values.
func validateSettings(settings *Settings) error {
	if settings.GatewayURL == "" {
		return fmt.Errorf("gateway URL cannot be empty")
	}
	if settings.TradingCanisterID == "" {
		return fmt.Errorf("trading canister ID cannot be empty")
	}
	if settings.LedgerCanisterID == "" {
		return fmt.Errorf("ledger canister ID cannot be empty")
	}
	if settings.WalletPEM == "" {
		return fmt.Errorf("wallet PEM path cannot be empty")
	}

	if settings.SettleWait < 0 || settings.SettleWait > 2*time.Minute {
		return fmt.Errorf("settle wait must be between 0 and 2m, got %v", settings.SettleWait)
	}
	if settings.RESTTimeout < time.Second || settings.RESTTimeout > time.Minute {
		return fmt.Errorf("REST timeout must be between 1s and 1m, got %v", settings.RESTTimeout)
	}

	if settings.ReadRetries < 0 || settings.ReadRetries > 10 {
		return fmt.Errorf("read retries must be between 0 and 10, got %d", settings.ReadRetries)
	}
	if settings.Workers < 1 || settings.Workers > 32 {
		return fmt.Errorf("workers must be between 1 and 32, got %d", settings.Workers)
	}
	if settings.TransferFeeSats < 0 {
		return fmt.Errorf("transfer fee cannot be negative, got %d", settings.TransferFeeSats)
	}
	if settings.MetricsPort != 0 && (settings.MetricsPort < 1024 || settings.MetricsPort > 65535) {
		return fmt.Errorf("metrics port must be 0 or between 1024 and 65535, got %d", settings.MetricsPort)
	}
	if settings.SweepInterval != 0 && settings.SweepInterval < time.Minute {
		return fmt.Errorf("sweep interval must be 0 or at least 1m, got %v", settings.SweepInterval)
	}

	return nil
}
