// Package config provides configuration loading for the wallet relayer.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/lapolinarweb/contracts/internal/account"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Timelock  TimelockConfig  `mapstructure:"timelock"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Devnet    DevnetConfig    `mapstructure:"devnet"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"` // dev, staging, prod

	// AllowedOrigins lists browser origins allowed by CORS.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RelayConfig holds relay economics. Wei amounts are decimal strings.
type RelayConfig struct {
	ChainID         int64         `mapstructure:"chain_id"`
	MaxGasPrice     string        `mapstructure:"max_gas_price"`
	MaxGasOverhead  uint64        `mapstructure:"max_gas_overhead"`
	CallOverhead    uint64        `mapstructure:"call_overhead"`
	RelayerAddress  string        `mapstructure:"relayer_address"`
	TxGasPrice      string        `mapstructure:"tx_gas_price"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	SignerCacheSize int           `mapstructure:"signer_cache_size"`

	// FactoryAPIKeys authenticate the proxy tooling allowed to create accounts.
	FactoryAPIKeys []string `mapstructure:"factory_api_keys"`
}

// Relayer returns the configured relayer address.
func (c RelayConfig) Relayer() (common.Address, error) {
	if c.RelayerAddress == "" {
		return common.Address{}, fmt.Errorf("relay.relayer_address is required")
	}
	if !common.IsHexAddress(c.RelayerAddress) {
		return common.Address{}, fmt.Errorf("invalid relay.relayer_address %q", c.RelayerAddress)
	}
	addr := common.HexToAddress(c.RelayerAddress)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("relay.relayer_address must not be the zero address")
	}
	return addr, nil
}

// GasPrice returns the gas price the relayer pays for its own transactions.
func (c RelayConfig) GasPrice() (*big.Int, error) {
	return parseWei("relay.tx_gas_price", c.TxGasPrice)
}

// TimelockConfig holds timelock policy.
type TimelockConfig struct {
	Delay         time.Duration `mapstructure:"delay"`
	ExpireWindow  time.Duration `mapstructure:"expire_window"`
	WatchSchedule string        `mapstructure:"watch_schedule"`
}

// RateLimitConfig holds request rate limits for the RPC endpoint.
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

// DevnetConfig seeds the in-memory chain used when no external chain is wired.
type DevnetConfig struct {
	Balances map[string]string `mapstructure:"balances"`
	Tokens   []string          `mapstructure:"tokens"`
	// TokenBalances maps token address to holder address to amount.
	TokenBalances map[string]map[string]string `mapstructure:"token_balances"`
	// Contracts lists addresses that get code, e.g. account implementations.
	Contracts []string `mapstructure:"contracts"`
}

// AccountConfig builds the account engine configuration.
func (c *Config) AccountConfig() (account.Config, error) {
	maxGasPrice, err := parseWei("relay.max_gas_price", c.Relay.MaxGasPrice)
	if err != nil {
		return account.Config{}, err
	}
	return account.Config{
		ChainID:              big.NewInt(c.Relay.ChainID),
		MaxGasPrice:          maxGasPrice,
		MaxGasOverhead:       c.Relay.MaxGasOverhead,
		CallOverhead:         c.Relay.CallOverhead,
		TimelockDelay:        c.Timelock.Delay,
		TimelockExpireWindow: c.Timelock.ExpireWindow,
	}, nil
}

func parseWei(key, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s %q", key, s)
	}
	return v, nil
}

// Load reads configuration from files and environment variables.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom reads configuration from an explicit file, or from the default
// search path when file is empty.
func LoadFrom(file string) (*Config, error) {
	v := viper.New()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/wallet-relayer")
	}

	v.SetEnvPrefix("WALLET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8545)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.environment", "dev")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "wallet")
	v.SetDefault("database.password", "wallet")
	v.SetDefault("database.database", "wallet")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	// Redis defaults
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Relay defaults
	v.SetDefault("relay.chain_id", 1)
	v.SetDefault("relay.max_gas_price", "200000000000")
	v.SetDefault("relay.max_gas_overhead", 50000)
	v.SetDefault("relay.call_overhead", 34000)
	v.SetDefault("relay.tx_gas_price", "20000000000")
	v.SetDefault("relay.lock_ttl", "30s")
	v.SetDefault("relay.signer_cache_size", 4096)

	// Timelock defaults
	v.SetDefault("timelock.delay", "168h")
	v.SetDefault("timelock.expire_window", "168h")
	v.SetDefault("timelock.watch_schedule", "@every 1m")

	// Rate limit defaults
	v.SetDefault("ratelimit.requests_per_minute", 600)
	v.SetDefault("ratelimit.burst", 50)
}
