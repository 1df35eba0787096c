package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

const (
	DefaultRpcNamespace         = "eth"
	DefaultPollInterval         = 4 * time.Second
	DefaultRequestTimeout       = 30 * time.Second
	DefaultMaxConcurrentFetches = 16
	DefaultCacheLifeWindow      = time.Minute
)

var ErrInvalidConfig = errors.New("invalid config")

// Config contains everything the filter gateway needs at runtime.
type Config struct {
	Environment sdklogging.LogLevel
	Logger      sdklogging.Logger

	EthRpcUrl            string
	HttpBindAddress      string
	RpcNamespace         string
	PollInterval         time.Duration
	RequestTimeout       time.Duration
	MaxConcurrentFetches int
	// CacheLifeWindow of zero disables the block cache
	CacheLifeWindow time.Duration

	EnableMetrics bool
	SentryDsn     string
	ServerName    string
}

// These are read from configPath
type ConfigRaw struct {
	Environment          sdklogging.LogLevel `yaml:"environment" validate:"omitempty,oneof=development production"`
	EthRpcUrl            string              `yaml:"eth_rpc_url" validate:"required,url"`
	HttpBindAddress      string              `yaml:"http_bind_address" validate:"required,hostname_port"`
	RpcNamespace         string              `yaml:"rpc_namespace" validate:"required,alphanum"`
	PollInterval         time.Duration       `yaml:"poll_interval" validate:"gt=0"`
	RequestTimeout       time.Duration       `yaml:"request_timeout" validate:"gt=0"`
	MaxConcurrentFetches int                 `yaml:"max_concurrent_fetches" validate:"min=1"`
	CacheLifeWindow      *time.Duration      `yaml:"cache_life_window" validate:"omitempty"`
	EnableMetrics        bool                `yaml:"enable_metrics"`
	SentryDsn            string              `yaml:"sentry_dsn" validate:"omitempty,url"`
	ServerName           string              `yaml:"server_name"`
}

func (raw *ConfigRaw) applyDefaults() {
	if raw.Environment == "" {
		raw.Environment = sdklogging.Development
	}
	if raw.RpcNamespace == "" {
		raw.RpcNamespace = DefaultRpcNamespace
	}
	if raw.PollInterval == 0 {
		raw.PollInterval = DefaultPollInterval
	}
	if raw.RequestTimeout == 0 {
		raw.RequestTimeout = DefaultRequestTimeout
	}
	if raw.MaxConcurrentFetches == 0 {
		raw.MaxConcurrentFetches = DefaultMaxConcurrentFetches
	}
	if raw.CacheLifeWindow == nil {
		window := DefaultCacheLifeWindow
		raw.CacheLifeWindow = &window
	}
	if raw.ServerName == "" {
		if hostname, err := os.Hostname(); err == nil {
			raw.ServerName = hostname
		}
	}
}

func (raw *ConfigRaw) validate() error {
	if err := validator.New().Struct(raw); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if *raw.CacheLifeWindow < 0 {
		return fmt.Errorf("%w: CacheLifeWindow must not be negative", ErrInvalidConfig)
	}
	return nil
}

// NewConfig reads the YAML file at configFilePath, fills in defaults, validates the
// result and builds the logger for the configured environment.
func NewConfig(configFilePath string) (*Config, error) {
	data, err := os.ReadFile(configFilePath)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var configRaw ConfigRaw
	if err := yaml.UnmarshalStrict(data, &configRaw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	configRaw.applyDefaults()
	if err := configRaw.validate(); err != nil {
		return nil, err
	}

	logger, err := sdklogging.NewZapLogger(configRaw.Environment)
	if err != nil {
		return nil, err
	}

	return &Config{
		Environment:          configRaw.Environment,
		Logger:               logger,
		EthRpcUrl:            configRaw.EthRpcUrl,
		HttpBindAddress:      configRaw.HttpBindAddress,
		RpcNamespace:         configRaw.RpcNamespace,
		PollInterval:         configRaw.PollInterval,
		RequestTimeout:       configRaw.RequestTimeout,
		MaxConcurrentFetches: configRaw.MaxConcurrentFetches,
		CacheLifeWindow:      *configRaw.CacheLifeWindow,
		EnableMetrics:        configRaw.EnableMetrics,
		SentryDsn:            configRaw.SentryDsn,
		ServerName:           configRaw.ServerName,
	}, nil
}
