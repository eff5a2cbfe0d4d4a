package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rainforce/smbclient/internal/constants"
)

// Config keys
const (
	KeyLogLevel        = "log_level"
	KeyMaxConcurrent   = "max_concurrent"
	KeyCredentialsFile = "credentials_file"
	KeyKeyFile         = "key_file"
	KeyHistoryDB       = "history_db"
	KeyDialTimeout     = "dial_timeout"
	KeyUseProxy        = "use_proxy"
	KeyMetricsAddr     = "metrics_addr"
)

// Config holds resolved runtime settings.
type Config struct {
	LogLevel        string
	MaxConcurrent   int
	CredentialsFile string
	KeyFile         string
	HistoryDB       string // empty disables the transfer journal
	DialTimeout     time.Duration
	UseProxy        bool   // dial through ALL_PROXY / HTTPS_PROXY when set
	MetricsAddr     string // empty disables the /metrics listener
}

// NewViper returns a viper instance with defaults and environment binding
// applied. Env vars use the SMBCLIENT_ prefix (SMBCLIENT_MAX_CONCURRENT, ...).
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyMaxConcurrent, constants.DefaultMaxConcurrent)
	v.SetDefault(KeyCredentialsFile, DefaultCredentialsFile())
	v.SetDefault(KeyKeyFile, DefaultKeyFile())
	v.SetDefault(KeyHistoryDB, DefaultHistoryDB())
	v.SetDefault(KeyDialTimeout, constants.DefaultDialTimeout)
	v.SetDefault(KeyUseProxy, false)
	v.SetDefault(KeyMetricsAddr, "")

	return v
}

// Load reads .env (if present), the YAML config file and the environment
// into v, then resolves a Config. An explicit cfgFile must exist; the
// default file is optional.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigFile(DefaultConfigFile())
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
		if cfgFile != "" || !missing {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := FromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromViper resolves a Config from an already populated viper instance.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		LogLevel:        v.GetString(KeyLogLevel),
		MaxConcurrent:   v.GetInt(KeyMaxConcurrent),
		CredentialsFile: v.GetString(KeyCredentialsFile),
		KeyFile:         v.GetString(KeyKeyFile),
		HistoryDB:       v.GetString(KeyHistoryDB),
		DialTimeout:     v.GetDuration(KeyDialTimeout),
		UseProxy:        v.GetBool(KeyUseProxy),
		MetricsAddr:     v.GetString(KeyMetricsAddr),
	}
}

// Validate checks the configuration for out-of-range values.
func (c *Config) Validate() error {
	if c.MaxConcurrent < constants.MinMaxConcurrent || c.MaxConcurrent > constants.MaxMaxConcurrent {
		return fmt.Errorf("%s must be between %d and %d, got %d",
			KeyMaxConcurrent, constants.MinMaxConcurrent, constants.MaxMaxConcurrent, c.MaxConcurrent)
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("%s must be positive, got %s", KeyDialTimeout, c.DialTimeout)
	}
	if c.CredentialsFile == "" || c.KeyFile == "" {
		return fmt.Errorf("%s and %s are required", KeyCredentialsFile, KeyKeyFile)
	}
	return nil
}
