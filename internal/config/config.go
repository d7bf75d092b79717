package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"dairy-credit-ledger/internal/domain"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Log        LogConfig        `yaml:"log"`
	Auth       AuthConfig       `yaml:"auth"`
	Credit     CreditConfig     `yaml:"credit"`
	Settlement SettlementConfig `yaml:"settlement"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// AuthConfig holds the secret shared with the auth service that issues
// staff tokens. Tokens are only read for the actor id.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// CreditConfig contains the hard caps applied per credit tier.
type CreditConfig struct {
	TierCaps               TierCaps        `yaml:"tier_caps"`
	DefaultLimitPercentage decimal.Decimal `yaml:"default_limit_percentage"`
}

type TierCaps struct {
	New         decimal.Decimal `yaml:"new"`
	Established decimal.Decimal `yaml:"established"`
	Premium     decimal.Decimal `yaml:"premium"`
}

// Cap returns the ceiling for tier. Unknown tiers get the lowest cap.
func (t TierCaps) Cap(tier domain.CreditTier) decimal.Decimal {
	switch tier {
	case domain.CreditTierEstablished:
		return t.Established
	case domain.CreditTierPremium:
		return t.Premium
	default:
		return t.New
	}
}

// SettlementConfig contains payout settings
type SettlementConfig struct {
	CollectorFeePerLiter decimal.Decimal `yaml:"collector_fee_per_liter"`
	AutoProcessBatches   bool            `yaml:"auto_process_batches"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	ProcessGeneratedBatches string `yaml:"process_generated_batches"`
	AuditLedgers            string `yaml:"audit_ledgers"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies environment overrides and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.Auth.JWTSecret = val
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	if val := os.Getenv("COLLECTOR_FEE_PER_LITER"); val != "" {
		if fee, err := decimal.NewFromString(val); err == nil {
			c.Settlement.CollectorFeePerLiter = fee
		}
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid and fills defaults
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "auth-service"
	}

	// Credit defaults
	if c.Credit.TierCaps.New.IsZero() {
		c.Credit.TierCaps.New = decimal.NewFromInt(20000)
	}
	if c.Credit.TierCaps.Established.IsZero() {
		c.Credit.TierCaps.Established = decimal.NewFromInt(50000)
	}
	if c.Credit.TierCaps.Premium.IsZero() {
		c.Credit.TierCaps.Premium = decimal.NewFromInt(100000)
	}
	caps := c.Credit.TierCaps
	if caps.New.IsNegative() || caps.Established.IsNegative() || caps.Premium.IsNegative() {
		return fmt.Errorf("credit tier caps must not be negative")
	}
	if c.Credit.DefaultLimitPercentage.IsZero() {
		c.Credit.DefaultLimitPercentage = decimal.NewFromInt(70)
	}
	if c.Credit.DefaultLimitPercentage.IsNegative() || c.Credit.DefaultLimitPercentage.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("default limit percentage must be between 0 and 100")
	}

	if c.Settlement.CollectorFeePerLiter.IsNegative() {
		return fmt.Errorf("collector fee per liter must not be negative")
	}

	// Scheduler defaults
	if c.Scheduler.ProcessGeneratedBatches == "" {
		c.Scheduler.ProcessGeneratedBatches = "0 0 1 * * *" // 1 AM UTC
	}
	if c.Scheduler.AuditLedgers == "" {
		c.Scheduler.AuditLedgers = "0 30 2 * * *" // 2:30 AM UTC
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
