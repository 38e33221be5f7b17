package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"shares-gate/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Chains   ChainsConfig   `mapstructure:"chains"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// HTTPConfig covers the API listener.
type HTTPConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// TelegramConfig 描述 Telegram Bot API 连接参数。
type TelegramConfig struct {
	APIBase        string        `mapstructure:"api_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// SyncConfig paces the ingestion loops.
type SyncConfig struct {
	PaceInterval  time.Duration `mapstructure:"pace_interval"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	IdleInterval  time.Duration `mapstructure:"idle_interval"`
}

// ChainsConfig groups the per-chain backends.
type ChainsConfig struct {
	Monad MonadConfig `mapstructure:"monad"`
	Sui   SuiConfig   `mapstructure:"sui"`
}

// MonadConfig configures the EVM block-range backend.
type MonadConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RPCURL          string        `mapstructure:"rpc_url"`
	ContractAddress string        `mapstructure:"contract_address"`
	StartBlock      uint64        `mapstructure:"start_block"`
	BatchBlocks     uint64        `mapstructure:"batch_blocks"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

// SuiConfig configures the Move cursor backend.
type SuiConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RPCURL          string        `mapstructure:"rpc_url"`
	PackageID       string        `mapstructure:"package_id"`
	TradingObjectID string        `mapstructure:"trading_object_id"`
	EventLimit      uint64        `mapstructure:"event_limit"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SHARESGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "sharesgate")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")

	v.SetDefault("http.listen_addr", "0.0.0.0:8088")

	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.request_timeout", "10s")

	v.SetDefault("sync.pace_interval", "1s")
	v.SetDefault("sync.retry_interval", "10s")
	v.SetDefault("sync.idle_interval", "60s")

	v.SetDefault("chains.monad.enabled", true)
	v.SetDefault("chains.monad.batch_blocks", 100)
	v.SetDefault("chains.monad.request_timeout", "10s")

	v.SetDefault("chains.sui.enabled", false)
	v.SetDefault("chains.sui.rpc_url", "https://fullnode.mainnet.sui.io:443")
	v.SetDefault("chains.sui.event_limit", 100)
	v.SetDefault("chains.sui.request_timeout", "10s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn 必须配置")
	}
	if c.HTTP.ListenAddr == "" {
		return fmt.Errorf("http.listen_addr is required")
	}
	if c.Sync.PaceInterval <= 0 {
		return fmt.Errorf("sync.pace_interval must be greater than zero")
	}
	if c.Chains.Monad.Enabled {
		if c.Chains.Monad.RPCURL == "" {
			return fmt.Errorf("chains.monad.rpc_url is required when the chain is enabled")
		}
		if c.Chains.Monad.ContractAddress == "" {
			return fmt.Errorf("chains.monad.contract_address is required when the chain is enabled")
		}
	}
	if c.Chains.Sui.Enabled {
		if c.Chains.Sui.RPCURL == "" {
			return fmt.Errorf("chains.sui.rpc_url is required when the chain is enabled")
		}
		if c.Chains.Sui.PackageID == "" {
			return fmt.Errorf("chains.sui.package_id is required when the chain is enabled")
		}
	}
	if !c.Chains.Monad.Enabled && !c.Chains.Sui.Enabled {
		return fmt.Errorf("at least one chain must be enabled")
	}
	return nil
}
