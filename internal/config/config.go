package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort          = "3001"
	DefaultSuiRPCURL     = "https://fullnode.testnet.sui.io:443"
	DefaultPackageID     = "0x2e2a6e4df21c483ae876e35cdde3a31e73091f8941e44a79670efbb312ae5eae"
	DefaultEscrowAddress = "0x97e4092b163d12fa6d78dba200f9b335e7e559bd61189f080a0565da6f841027"
	DefaultModule        = "coinflip"
	DefaultGasBudget     = 100_000_000
	DefaultSubmitTimeout = 30 * time.Second
	DefaultIndexPath     = "coinflip.db"
	DefaultIndexInterval = 15 * time.Second
)

type Config struct {
	Env  string
	Port string

	Network       string
	SuiRPCURL     string
	PackageID     string
	Module        string
	EscrowKey     string
	EscrowAddress string
	GasBudget     uint64
	SubmitTimeout time.Duration

	RedisURL  string
	RedisPass string
	RedisDB   int

	IndexPath     string
	IndexInterval time.Duration

	JWTSecret string
	FlipSeed  string
	LogFile   string
}

// Deployment is the optional YAML file naming where the contract lives per
// network.
type Deployment struct {
	Network  string                       `yaml:"network"`
	Networks map[string]DeploymentNetwork `yaml:"networks"`
}

type DeploymentNetwork struct {
	RPCURL        string `yaml:"rpc_url"`
	PackageID     string `yaml:"package_id"`
	Module        string `yaml:"module"`
	EscrowAddress string `yaml:"escrow_address"`
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:           getEnv("ENV", "development"),
		Port:          getEnv("PORT", DefaultPort),
		Network:       getEnv("SUI_NETWORK", "testnet"),
		SuiRPCURL:     DefaultSuiRPCURL,
		PackageID:     DefaultPackageID,
		Module:        DefaultModule,
		EscrowAddress: DefaultEscrowAddress,
		EscrowKey:     strings.TrimSpace(os.Getenv("ESCROW_PRIVATE_KEY")),
		RedisURL:      os.Getenv("REDIS_URL"),
		RedisPass:     os.Getenv("REDIS_PASSWORD"),
		IndexPath:     getEnv("INDEX_PATH", DefaultIndexPath),
		JWTSecret:     os.Getenv("RELAY_JWT_SECRET"),
		FlipSeed:      os.Getenv("FLIP_SEED"),
		LogFile:       os.Getenv("LOG_FILE"),
	}

	if path := os.Getenv("DEPLOYMENT_FILE"); path != "" {
		if err := cfg.applyDeploymentFile(path); err != nil {
			return nil, err
		}
	}

	cfg.SuiRPCURL = getEnv("SUI_RPC_URL", cfg.SuiRPCURL)
	cfg.PackageID = getEnv("PACKAGE_ID", cfg.PackageID)
	cfg.Module = getEnv("COINFLIP_MODULE", cfg.Module)
	cfg.EscrowAddress = getEnv("ESCROW_ADDRESS", cfg.EscrowAddress)

	var err error
	if cfg.GasBudget, err = getUint("GAS_BUDGET", DefaultGasBudget); err != nil {
		return nil, err
	}
	if cfg.SubmitTimeout, err = getDuration("SUBMIT_TIMEOUT", DefaultSubmitTimeout); err != nil {
		return nil, err
	}
	if cfg.IndexInterval, err = getDuration("INDEX_INTERVAL", DefaultIndexInterval); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDeploymentFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read deployment file: %w", err)
	}

	var d Deployment
	if err := yaml.Unmarshal(b, &d); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	network := c.Network
	if os.Getenv("SUI_NETWORK") == "" && d.Network != "" {
		network = d.Network
	}
	n, ok := d.Networks[network]
	if !ok {
		return fmt.Errorf("%s: network %q not defined", path, network)
	}

	c.Network = network
	if n.RPCURL != "" {
		c.SuiRPCURL = n.RPCURL
	}
	if n.PackageID != "" {
		c.PackageID = n.PackageID
	}
	if n.Module != "" {
		c.Module = n.Module
	}
	if n.EscrowAddress != "" {
		c.EscrowAddress = n.EscrowAddress
	}
	return nil
}

func (c *Config) Validate() error {
	if c.SuiRPCURL == "" {
		return fmt.Errorf("SUI_RPC_URL is required")
	}
	if c.PackageID == "" {
		return fmt.Errorf("PACKAGE_ID is required")
	}
	if c.GasBudget == 0 {
		return fmt.Errorf("GAS_BUDGET must be positive")
	}
	if c.SubmitTimeout <= 0 {
		return fmt.Errorf("SUBMIT_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) HasEscrowKey() bool {
	return c.EscrowKey != ""
}

// String is safe to log: secrets are reduced to set/unset.
func (c *Config) String() string {
	return fmt.Sprintf("env=%s port=%s network=%s rpc=%s package=%s module=%s escrow_key=%s escrow_address=%s gas_budget=%d submit_timeout=%s redis=%t index=%s jwt=%s flip_seed=%s",
		c.Env, c.Port, c.Network, c.SuiRPCURL, c.PackageID, c.Module,
		redacted(c.EscrowKey), c.EscrowAddress, c.GasBudget, c.SubmitTimeout,
		c.RedisURL != "", c.IndexPath, redacted(c.JWTSecret), redacted(c.FlipSeed))
}

func redacted(secret string) string {
	if secret == "" {
		return "unset"
	}
	return "set"
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getUint(key string, fallback uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
