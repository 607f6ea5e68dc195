package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the process configuration. Every key can be set in
// weatherchat.yaml or through the upper-cased environment variable of the
// same name (OPENAI_API_KEY, ALLOW_ORIGINS, ...).
type Config struct {
	AppName     string `mapstructure:"app_name" yaml:"app_name"`
	Environment string `mapstructure:"environment" yaml:"environment"`
	Address     string `mapstructure:"address" yaml:"address"`

	OpenAIAPIKey      string `mapstructure:"openai_api_key" yaml:"openai_api_key"`
	OpenAIAPIKeyParam string `mapstructure:"openai_api_key_param" yaml:"openai_api_key_param"`
	OpenAIModel       string `mapstructure:"openai_model" yaml:"openai_model"`
	OpenAIBaseURL     string `mapstructure:"openai_base_url" yaml:"openai_base_url"`

	AllowOrigins []string `mapstructure:"allow_origins" yaml:"allow_origins"`

	HTTPTimeoutSeconds     float64 `mapstructure:"http_timeout_seconds" yaml:"http_timeout_seconds"`
	ForecastDays           int     `mapstructure:"forecast_days" yaml:"forecast_days"`
	MaxLocationsPerRequest int     `mapstructure:"max_locations_per_request" yaml:"max_locations_per_request"`
	GeocodeAPIURL          string  `mapstructure:"geocode_api_url" yaml:"geocode_api_url"`
	ForecastAPIURL         string  `mapstructure:"forecast_api_url" yaml:"forecast_api_url"`

	LogLevel     string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat    string `mapstructure:"log_format" yaml:"log_format"`
	OTelEndpoint string `mapstructure:"otel_endpoint" yaml:"otel_endpoint"`
}

var defaults = map[string]any{
	"app_name":                  "Lundy Weather Chat",
	"environment":               "development",
	"address":                   ":8000",
	"openai_api_key":            "",
	"openai_api_key_param":      "",
	"openai_model":              "gpt-4o-mini",
	"openai_base_url":           "",
	"allow_origins":             []string{"http://localhost:5173"},
	"http_timeout_seconds":      10.0,
	"forecast_days":             3,
	"max_locations_per_request": 10,
	"geocode_api_url":           "https://geocoding-api.open-meteo.com/v1/search",
	"forecast_api_url":          "https://api.open-meteo.com/v1/forecast",
	"log_level":                 "info",
	"log_format":                "json",
	"otel_endpoint":             "",
}

// Load reads .env, then weatherchat.yaml from . or ./config, then the
// environment. Missing files are not errors.
func Load() (*Config, error) {
	return load(".env", ".", "./config")
}

func load(envFile string, searchPaths ...string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetConfigName("weatherchat")
	v.SetConfigType("yaml")
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) normalize() {
	origins := make([]string, 0, len(c.AllowOrigins))
	for _, entry := range c.AllowOrigins {
		for _, o := range strings.Split(entry, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}
	c.AllowOrigins = origins
	c.OpenAIAPIKey = strings.TrimSpace(c.OpenAIAPIKey)
	c.OpenAIBaseURL = strings.TrimSpace(c.OpenAIBaseURL)
}

func (c *Config) Validate() error {
	var errs []error
	if c.HTTPTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("http_timeout_seconds must be positive"))
	}
	if c.ForecastDays <= 0 {
		errs = append(errs, errors.New("forecast_days must be positive"))
	}
	if c.MaxLocationsPerRequest <= 0 {
		errs = append(errs, errors.New("max_locations_per_request must be positive"))
	}
	if strings.TrimSpace(c.OpenAIModel) == "" {
		errs = append(errs, errors.New("openai_model must not be empty"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds * float64(time.Second))
}

// YAML renders the effective configuration with the API key redacted.
func (c *Config) YAML() ([]byte, error) {
	redacted := *c
	if redacted.OpenAIAPIKey != "" {
		redacted.OpenAIAPIKey = "********"
	}
	out, err := yaml.Marshal(redacted)
	if err != nil {
		return nil, fmt.Errorf("config: encode yaml: %w", err)
	}
	return out, nil
}
