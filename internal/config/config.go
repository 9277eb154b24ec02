// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token    string  `yaml:"token"`
	Username string  `yaml:"username"`
	Workers  int     `yaml:"workers"` // polling workers
	AdminIDs []int64 `yaml:"admin_ids"`
	Locale   string  `yaml:"locale"` // en | ru
	// NotificationsChatID receives a line per completed purchase; 0 disables it.
	NotificationsChatID int64  `yaml:"notifications_chat_id"`
	SupportURL          string `yaml:"support_url"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type AdminConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// PanelConfig points at the external VPN account API.
type PanelConfig struct {
	BaseURL           string        `yaml:"base_url"`
	Token             string        `yaml:"token"`
	Timeout           time.Duration `yaml:"timeout"`
	ExternalSquadUUID string        `yaml:"external_squad_uuid"`
	InternalSquads    []string      `yaml:"internal_squads"`
	Description       string        `yaml:"description"`
}

type StarsConfig struct {
	Prices map[int]int64 `yaml:"prices"` // months -> stars
}

type ProcessorConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Name            string        `yaml:"name"` // path segment of /webhook/{processor}
	APIURL          string        `yaml:"api_url"`
	ShopID          string        `yaml:"shop_id"`
	SecretKey       string        `yaml:"secret_key"`
	ReturnURL       string        `yaml:"return_url"`
	WebhookSecret   string        `yaml:"webhook_secret"`
	SignatureHeader string        `yaml:"signature_header"`
	Currency        string        `yaml:"currency"`
	Prices          map[int]int64 `yaml:"prices"` // months -> minor units (kopecks)
	Timeout         time.Duration `yaml:"timeout"`
}

type PaymentConfig struct {
	Stars     StarsConfig     `yaml:"stars"`
	Processor ProcessorConfig `yaml:"processor"`
	// InvoiceLimit caps invoices per user per InvoiceWindow.
	InvoiceLimit  int           `yaml:"invoice_limit"`
	InvoiceWindow time.Duration `yaml:"invoice_window"`
}

type ReferralConfig struct {
	BonusDays int `yaml:"bonus_days"`
}

type TrialConfig struct {
	Days int `yaml:"days"`
}

type ReconcilerConfig struct {
	Interval   time.Duration `yaml:"interval"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

type ReminderConfig struct {
	Interval       time.Duration `yaml:"interval"`
	ThresholdsDays []int         `yaml:"thresholds_days"`
}

type Config struct {
	Bot        BotConfig        `yaml:"bot"`
	Log        LogConfig        `yaml:"log"`
	HTTP       HTTPConfig       `yaml:"http"`
	Admin      AdminConfig      `yaml:"admin"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Panel      PanelConfig      `yaml:"panel"`
	Payment    PaymentConfig    `yaml:"payment"`
	Referral   ReferralConfig   `yaml:"referral"`
	Trial      TrialConfig      `yaml:"trial"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Reminders  ReminderConfig   `yaml:"reminders"`
	Workers    int              `yaml:"workers"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(configPath string, dev bool) (*Config, error) {
	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)

	// Minimal validation. Dev mode may run without a bot and logs outbound messages instead.
	if cfg.Bot.Token == "" && !dev {
		return nil, errors.New("bot.token is required")
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Panel.BaseURL == "" {
		return nil, errors.New("panel.base_url is required")
	}
	if p := cfg.Payment.Processor; p.Enabled && (p.ShopID == "" || p.SecretKey == "") {
		return nil, errors.New("payment.processor.shop_id and secret_key are required when the processor is enabled")
	}
	for months := range cfg.Payment.Stars.Prices {
		if !validMonths(months) {
			return nil, fmt.Errorf("payment.stars.prices: unsupported duration %d", months)
		}
	}
	for months := range cfg.Payment.Processor.Prices {
		if !validMonths(months) {
			return nil, fmt.Errorf("payment.processor.prices: unsupported duration %d", months)
		}
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Bot.Locale == "" {
		cfg.Bot.Locale = "en"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if cfg.Admin.TokenTTL <= 0 {
		cfg.Admin.TokenTTL = 30 * time.Minute
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Panel.Timeout <= 0 {
		cfg.Panel.Timeout = 10 * time.Second
	}
	if len(cfg.Payment.Stars.Prices) == 0 {
		cfg.Payment.Stars.Prices = map[int]int64{1: 100, 3: 250, 6: 450, 12: 800}
	}
	p := &cfg.Payment.Processor
	if p.Name == "" {
		p.Name = "yookassa"
	}
	if p.APIURL == "" {
		p.APIURL = "https://api.yookassa.ru/v3"
	}
	if p.SignatureHeader == "" {
		p.SignatureHeader = "X-Signature"
	}
	if p.Currency == "" {
		p.Currency = "RUB"
	}
	if p.Timeout <= 0 {
		p.Timeout = 15 * time.Second
	}
	if cfg.Payment.InvoiceLimit <= 0 {
		cfg.Payment.InvoiceLimit = 10
	}
	if cfg.Payment.InvoiceWindow <= 0 {
		cfg.Payment.InvoiceWindow = time.Hour
	}
	if cfg.Referral.BonusDays <= 0 {
		cfg.Referral.BonusDays = 7
	}
	if cfg.Trial.Days <= 0 {
		cfg.Trial.Days = 3
	}
	if cfg.Reconciler.Interval <= 0 {
		cfg.Reconciler.Interval = time.Minute
	}
	if cfg.Reconciler.StaleAfter <= 0 {
		cfg.Reconciler.StaleAfter = 5 * time.Minute
	}
	if cfg.Reminders.Interval <= 0 {
		cfg.Reminders.Interval = time.Hour
	}
	if len(cfg.Reminders.ThresholdsDays) == 0 {
		cfg.Reminders.ThresholdsDays = []int{3, 1}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
}

func validMonths(m int) bool {
	switch m {
	case 1, 3, 6, 12:
		return true
	}
	return false
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
