package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	QuoteCurrency string `yaml:"quote_currency"`
	DryRun        bool   `yaml:"dry_run"`

	Coinbase struct {
		Key        string `yaml:"key"`
		Secret     string `yaml:"secret"`
		Passphrase string `yaml:"passphrase"`
		RestURL    string `yaml:"rest_url"`
		WsURL      string `yaml:"ws_url"`
	} `yaml:"coinbase"`

	Trade struct {
		MinProfitRate float64 `yaml:"min_profit_rate"`
		MaxNotional   float64 `yaml:"max_notional"`
		Tolerance     float64 `yaml:"tolerance"`
	} `yaml:"trade"`

	Timings struct {
		DecideIntervalMs   int `yaml:"decide_interval_ms"`
		BootstrapTimeoutMs int `yaml:"bootstrap_timeout_ms"`
		VolumeTTLSec       int `yaml:"volume_ttl_sec"`
		BalanceRefreshSec  int `yaml:"balance_refresh_sec"`
	} `yaml:"timings"`

	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`

	Dash struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"dash"`

	Redis struct {
		Addr     string `yaml:"addr"`
		DB       int    `yaml:"db"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Stream   string `yaml:"stream"`
	} `yaml:"redis"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	if c.QuoteCurrency == "" {
		c.QuoteCurrency = "USD"
	}
	if c.Coinbase.RestURL == "" {
		c.Coinbase.RestURL = "https://api.exchange.coinbase.com"
	}
	if c.Coinbase.WsURL == "" {
		c.Coinbase.WsURL = "wss://ws-feed.exchange.coinbase.com"
	}
	// secrets prefer the environment over the file
	if v := os.Getenv("COINBASE_KEY"); v != "" {
		c.Coinbase.Key = v
	}
	if v := os.Getenv("COINBASE_SECRET"); v != "" {
		c.Coinbase.Secret = v
	}
	if v := os.Getenv("COINBASE_PASSPHRASE"); v != "" {
		c.Coinbase.Passphrase = v
	}

	if c.Trade.Tolerance == 0 {
		c.Trade.Tolerance = 1e-8
	}
	if c.Timings.DecideIntervalMs == 0 {
		c.Timings.DecideIntervalMs = 1000
	}
	if c.Timings.BootstrapTimeoutMs == 0 {
		c.Timings.BootstrapTimeoutMs = 5000
	}
	if c.Timings.VolumeTTLSec == 0 {
		c.Timings.VolumeTTLSec = 60
	}
	if c.Timings.BalanceRefreshSec == 0 {
		c.Timings.BalanceRefreshSec = 30
	}
	if c.Redis.Stream == "" {
		c.Redis.Stream = "pusher:decisions"
	}
	return &c, nil
}

func (c *Config) DecideInterval() time.Duration {
	return time.Duration(c.Timings.DecideIntervalMs) * time.Millisecond
}

func (c *Config) BootstrapTimeout() time.Duration {
	return time.Duration(c.Timings.BootstrapTimeoutMs) * time.Millisecond
}

func (c *Config) VolumeTTL() time.Duration {
	return time.Duration(c.Timings.VolumeTTLSec) * time.Second
}

func (c *Config) BalanceRefresh() time.Duration {
	return time.Duration(c.Timings.BalanceRefreshSec) * time.Second
}
