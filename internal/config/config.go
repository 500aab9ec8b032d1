package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/telhawk-systems/cspreport/internal/forwarder"
)

// Backend names accepted by telemetry.log_backend and telemetry.metric_backend.
const (
	BackendCloudWatch = "cloudwatch"
	BackendOpenSearch = "opensearch"
	BackendNATS       = "nats"
	BackendPrometheus = "prometheus"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type IngestionConfig struct {
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

// TelemetryConfig names the forwarding destinations. Region gates all of
// them: with no region nothing is forwarded.
type TelemetryConfig struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	LogGroup        string `mapstructure:"log_group"`
	LogStream       string `mapstructure:"log_stream"`
	MetricNamespace string `mapstructure:"metric_namespace"`
	MetricName      string `mapstructure:"metric_name"`
	LogBackend      string `mapstructure:"log_backend"`
	MetricBackend   string `mapstructure:"metric_backend"`

	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
	NATS       NATSConfig       `mapstructure:"nats"`
}

type OpenSearchConfig struct {
	URL           string `mapstructure:"url"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	TLSSkipVerify bool   `mapstructure:"tls_skip_verify"`
}

type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// legacyEnv maps settings to the plain environment names used by existing
// function deployments. CSPREPORT_-prefixed names take precedence.
var legacyEnv = map[string]string{
	"telemetry.region":           "REGION",
	"telemetry.log_group":        "LOG_GROUP_NAME",
	"telemetry.log_stream":       "LOG_STREAM_NAME",
	"telemetry.metric_namespace": "METRIC_NAMESPACE",
	"telemetry.metric_name":      "METRIC_NAME",
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8089)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("ingestion.max_body_bytes", 65536)
	v.SetDefault("telemetry.region", "")
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.log_group", "")
	v.SetDefault("telemetry.log_stream", "")
	v.SetDefault("telemetry.metric_namespace", "")
	v.SetDefault("telemetry.metric_name", "")
	v.SetDefault("telemetry.log_backend", BackendCloudWatch)
	v.SetDefault("telemetry.metric_backend", BackendCloudWatch)
	v.SetDefault("telemetry.opensearch.url", "https://localhost:9200")
	v.SetDefault("telemetry.opensearch.username", "admin")
	v.SetDefault("telemetry.opensearch.password", "")
	v.SetDefault("telemetry.opensearch.tls_skip_verify", true)
	v.SetDefault("telemetry.nats.url", "nats://localhost:4222")
	v.SetDefault("telemetry.nats.subject_prefix", "csp")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/cspreport")
	}

	// Environment variables override
	v.SetEnvPrefix("CSPREPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := "CSPREPORT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	// Read config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the backend selections.
func (c *Config) Validate() error {
	switch c.Telemetry.LogBackend {
	case BackendCloudWatch, BackendOpenSearch, BackendNATS:
	default:
		return fmt.Errorf("invalid telemetry.log_backend %q", c.Telemetry.LogBackend)
	}
	switch c.Telemetry.MetricBackend {
	case BackendCloudWatch, BackendPrometheus:
	default:
		return fmt.Errorf("invalid telemetry.metric_backend %q", c.Telemetry.MetricBackend)
	}
	if c.Ingestion.MaxBodyBytes <= 0 {
		return fmt.Errorf("ingestion.max_body_bytes must be positive, got %d", c.Ingestion.MaxBodyBytes)
	}
	return nil
}

// ForwarderConfig returns the destination settings captured by the report
// service at startup.
func (c *Config) ForwarderConfig() forwarder.Config {
	return forwarder.Config{
		Region:          c.Telemetry.Region,
		LogGroup:        c.Telemetry.LogGroup,
		LogStream:       c.Telemetry.LogStream,
		MetricNamespace: c.Telemetry.MetricNamespace,
		MetricName:      c.Telemetry.MetricName,
	}
}
