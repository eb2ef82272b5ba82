package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Database DatabaseConfig    `mapstructure:"database"`
	Server   ServerConfig      `mapstructure:"server"`
	Chains   []ChainConfig     `mapstructure:"chains"`
	Monitor  MonitorConfig     `mapstructure:"monitor"`
	Webhook  WebhookConfig     `mapstructure:"webhook"`
	Admin    AdminConfig       `mapstructure:"admin"`
	Notifier NotifierConfig    `mapstructure:"notifier"`
	Fees     map[string]string `mapstructure:"fees"`
	Logging  LoggingConfig     `mapstructure:"logging"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.User, d.Password, d.Host, d.Port, d.DBName)
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

// ChainConfig describes one monitored blockchain. Model selects the adapter
// variant: "account" chains are queried over JSON-RPC, "utxo" chains over an
// explorer HTTP API.
type ChainConfig struct {
	ID             string           `mapstructure:"id"`
	Network        string           `mapstructure:"network"`
	Model          string           `mapstructure:"model"`
	RPCURL         string           `mapstructure:"rpc_url"`
	APIURL         string           `mapstructure:"api_url"`
	APIKey         string           `mapstructure:"api_key"`
	Confirmations  int64            `mapstructure:"confirmations"`
	RequestTimeout int              `mapstructure:"request_timeout"`
	Contracts      []ContractConfig `mapstructure:"contracts"`
	Enabled        bool             `mapstructure:"enabled"`
}

// ContractConfig is a token contract whose incoming transfers count as
// deposits on an account-model chain.
type ContractConfig struct {
	Address  string `mapstructure:"address"`
	Decimals int32  `mapstructure:"decimals"`
}

type MonitorConfig struct {
	Cron         string `mapstructure:"cron"`
	BatchSize    int    `mapstructure:"batch_size"`
	BatchDelayMs int    `mapstructure:"batch_delay_ms"`
	// PendingTTLHours expires stale pending crypto deposits when > 0;
	// 0 keeps them pending indefinitely.
	PendingTTLHours int `mapstructure:"pending_ttl_hours"`
}

type WebhookConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type AdminConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type NotifierConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Monitor.Cron == "" {
		c.Monitor.Cron = "@every 2m"
	}
	if c.Monitor.BatchSize <= 0 {
		c.Monitor.BatchSize = 5
	}
	if c.Monitor.BatchDelayMs <= 0 {
		c.Monitor.BatchDelayMs = 1000
	}
	for i := range c.Chains {
		if c.Chains[i].RequestTimeout <= 0 {
			c.Chains[i].RequestTimeout = 15
		}
		if c.Chains[i].Confirmations <= 0 {
			switch c.Chains[i].Model {
			case "utxo":
				c.Chains[i].Confirmations = 3
			default:
				c.Chains[i].Confirmations = 12
			}
		}
	}
}

func (c *Config) GetEnabledChains() []ChainConfig {
	var enabled []ChainConfig
	for _, chain := range c.Chains {
		if chain.Enabled {
			enabled = append(enabled, chain)
		}
	}
	return enabled
}
