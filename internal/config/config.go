package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tuncerburak97/errlog/pkg/errlog"
)

const envPrefix = "ERRLOG"

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Capture CaptureConfig `mapstructure:"capture"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// LogConfig configures the diagnostic logger, not the error log file.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

type CaptureConfig struct {
	LogFilePath          string `mapstructure:"log_file_path"`
	CaptureBody          bool   `mapstructure:"capture_body"`
	MaxBodyBytes         int    `mapstructure:"max_body_bytes"`
	IncludeSystemInfo    bool   `mapstructure:"include_system_info"`
	IncludeResourceUsage bool   `mapstructure:"include_resource_usage"`
	LogCancelled         bool   `mapstructure:"log_cancelled"`
	LogErrorResponses    bool   `mapstructure:"log_error_responses"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	AppName   string `mapstructure:"app_name"`
}

// Recorder converts the section into the library configuration.
func (c CaptureConfig) Recorder() errlog.Config {
	return errlog.Config{
		LogFilePath:          c.LogFilePath,
		CaptureBody:          c.CaptureBody,
		MaxBodyBytes:         c.MaxBodyBytes,
		IncludeSystemInfo:    c.IncludeSystemInfo,
		IncludeResourceUsage: c.IncludeResourceUsage,
		LogCancelled:         c.LogCancelled,
		LogErrorResponses:    c.LogErrorResponses,
	}
}

func setDefaults(v *viper.Viper) {
	def := errlog.DefaultConfig()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("capture.log_file_path", def.LogFilePath)
	v.SetDefault("capture.capture_body", def.CaptureBody)
	v.SetDefault("capture.max_body_bytes", def.MaxBodyBytes)
	v.SetDefault("capture.include_system_info", def.IncludeSystemInfo)
	v.SetDefault("capture.include_resource_usage", def.IncludeResourceUsage)
	v.SetDefault("capture.log_cancelled", def.LogCancelled)
	v.SetDefault("capture.log_error_responses", def.LogErrorResponses)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "errlog")
	v.SetDefault("metrics.app_name", "errlog_demo")
}

// LoadConfig reads configPath when given, otherwise only defaults and
// ERRLOG_* environment variables apply.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
