package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the settlement agent configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Clearnet ClearnetConfig `yaml:"clearnet"`
	Oracle   OracleConfig   `yaml:"oracle"`
	Lending  LendingConfig  `yaml:"lending"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
	Shutdown ShutdownConfig `yaml:"shutdown"`
}

// ServerConfig contains admin HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host" default:"0.0.0.0"`
	Port int    `yaml:"port" default:"8090"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host" default:"localhost" validate:"required"`
	Port     int    `yaml:"port" default:"5432"`
	User     string `yaml:"user" default:"postgres"`
	Password string `yaml:"password"`
	Database string `yaml:"database" default:"settlement"`
	SSLMode  string `yaml:"ssl_mode" default:"disable"`
}

// ClearnetConfig contains settlement network client settings
type ClearnetConfig struct {
	WSURL                string        `yaml:"ws_url" validate:"required"`
	AppName              string        `yaml:"app_name" default:"vouch-settlement"`
	AssetSymbol          string        `yaml:"asset_symbol" default:"usdc"`
	AssetDecimals        int32         `yaml:"asset_decimals" default:"6"`
	VaultAddress         string        `yaml:"vault_address"`
	SessionAllowance     string        `yaml:"session_allowance" default:"1000000"`
	SessionExpiry        time.Duration `yaml:"session_expiry" default:"24h"`
	AuthTimeout          time.Duration `yaml:"auth_timeout" default:"30s"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay" default:"1s"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts" default:"5"`
	PingInterval         time.Duration `yaml:"ping_interval" default:"30s"`
}

// OracleConfig contains status oracle contract settings.
// When disabled, all oracle pushes become no-ops.
type OracleConfig struct {
	Enabled         bool   `yaml:"enabled"`
	RPCURL          string `yaml:"rpc_url"`
	ContractAddress string `yaml:"contract_address"`
	PrivateKey      string `yaml:"private_key"`
	ChainID         int64  `yaml:"chain_id" default:"1"`
	QueueSize       int    `yaml:"queue_size" default:"64"`
}

// LendingConfig contains credit and repayment policy settings
type LendingConfig struct {
	RepaymentPeriodDays   float64       `yaml:"repayment_period_days" default:"30"`
	OnTimeBonus           int           `yaml:"on_time_bonus" default:"15"`
	LatePenalty           int           `yaml:"late_penalty" default:"25"`
	DefaultPenalty        int           `yaml:"default_penalty" default:"100"`
	DefaultScore          int           `yaml:"default_score" default:"500"`
	DefaultGarnishPercent int           `yaml:"default_garnish_percent" default:"10" validate:"min=0,max=100"`
	SweepInterval         time.Duration `yaml:"sweep_interval" default:"1h"`
	GracePeriod           time.Duration `yaml:"grace_period" default:"72h"`
}

// AuthConfig contains admin API authentication settings
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl" default:"24h"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" default:"info"`
	Format     string `yaml:"format" default:"json"`
	OutputPath string `yaml:"output_path" default:"stdout"`
}

// ShutdownConfig contains graceful shutdown settings
type ShutdownConfig struct {
	Timeout time.Duration `yaml:"timeout" default:"30s"`
}

// Load loads configuration from a YAML file, applies defaults for
// anything the file leaves unset, and validates the result.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
