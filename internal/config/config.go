// Package config loads digestran settings from defaults, an optional config
// file, the environment and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/language"

	"github.com/valpere/digestran/internal/pipeline"
	"github.com/valpere/digestran/internal/ratelimit"
	"github.com/valpere/digestran/internal/store"
	"github.com/valpere/digestran/internal/translator"
)

const envPrefix = "DIGESTRAN"

// AutoDetect as source_lang asks for the source language to be detected
// from the input.
const AutoDetect = "auto"

const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
	ProviderGoogle     = "google"
)

// providerEnv names the conventional API key variable of a provider.
var providerEnv = map[string]string{
	ProviderGemini:     "GEMINI_API_KEY",
	ProviderOpenRouter: "OPENROUTER_API_KEY",
	ProviderGoogle:     "GOOGLE_API_KEY",
}

var providerModels = map[string]pipeline.Models{
	ProviderGemini:     {Primary: translator.DefaultGeminiPrimaryModel, Fallback: translator.DefaultGeminiFallbackModel},
	ProviderOpenRouter: {Primary: translator.DefaultOpenRouterPrimaryModel, Fallback: translator.DefaultOpenRouterFallbackModel},
	ProviderOllama:     {Primary: translator.DefaultOllamaPrimaryModel, Fallback: translator.DefaultOllamaFallbackModel},
	ProviderGoogle:     {Primary: translator.DefaultGooglePrimaryModel, Fallback: translator.DefaultGoogleFallbackModel},
}

type Config struct {
	Provider    string `mapstructure:"provider"`
	APIKey      string `mapstructure:"api_key"`
	BaseURL     string `mapstructure:"base_url"`
	Credentials string `mapstructure:"credentials"`
	ProjectID   string `mapstructure:"project_id"`

	PrimaryModel  string `mapstructure:"primary_model"`
	FallbackModel string `mapstructure:"fallback_model"`
	SourceLang    string `mapstructure:"source_lang"`
	TargetLang    string `mapstructure:"target_lang"`

	Workers                 int           `mapstructure:"workers"`
	RequestInterval         time.Duration `mapstructure:"request_interval"`
	Cooldown                time.Duration `mapstructure:"cooldown"`
	PrimaryBackoff          time.Duration `mapstructure:"primary_backoff"`
	CallTimeout             time.Duration `mapstructure:"call_timeout"`
	MaxRetries              int           `mapstructure:"max_retries"`
	EscalatePrimaryCooldown bool          `mapstructure:"escalate_primary_cooldown"`
	ValidateLanguage        bool          `mapstructure:"validate_language"`

	DB            string `mapstructure:"db"`
	RetentionDays int    `mapstructure:"retention_days"`
	Timezone      string `mapstructure:"timezone"`

	LogLevel    string `mapstructure:"log_level"`
	LogFile     string `mapstructure:"log_file"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// SetDefaults registers every key with its default so that environment
// variables are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("api_key", "")
	v.SetDefault("base_url", "")
	v.SetDefault("credentials", "")
	v.SetDefault("project_id", "")
	v.SetDefault("primary_model", "")
	v.SetDefault("fallback_model", "")
	v.SetDefault("source_lang", "zh")
	v.SetDefault("target_lang", "vi")
	v.SetDefault("workers", pipeline.DefaultWorkers)
	v.SetDefault("request_interval", ratelimit.DefaultInterval)
	v.SetDefault("cooldown", pipeline.DefaultCooldown)
	v.SetDefault("primary_backoff", pipeline.DefaultPrimaryBackoff)
	v.SetDefault("call_timeout", pipeline.DefaultCallTimeout)
	v.SetDefault("max_retries", pipeline.DefaultMaxRetries)
	v.SetDefault("escalate_primary_cooldown", false)
	v.SetDefault("validate_language", false)
	v.SetDefault("db", "./data/digestran.db")
	v.SetDefault("retention_days", int(store.DefaultRetention/(24*time.Hour)))
	v.SetDefault("timezone", store.DefaultTimezone)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("metrics_addr", "")
}

// New returns a viper instance with defaults and environment binding in
// place. Flags are bound by the caller.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("credentials", envPrefix+"_CREDENTIALS", "GOOGLE_APPLICATION_CREDENTIALS")
	return v
}

// ReadFile merges a yaml, toml or json config file into v. An empty name is
// a no-op.
func ReadFile(v *viper.Viper, file string) error {
	if file == "" {
		return nil
	}
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", file, err)
	}
	return nil
}

// Load reads file (when non-empty) into v, decodes the result and fills in
// provider defaults. The returned config is validated.
func Load(v *viper.Viper, file string) (*Config, error) {
	if err := ReadFile(v, file); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	cfg.applyProviderDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyProviderDefaults() {
	if c.APIKey == "" {
		if name, ok := providerEnv[c.Provider]; ok {
			c.APIKey = os.Getenv(name)
		}
	}
	models := providerModels[c.Provider]
	if c.PrimaryModel == "" {
		c.PrimaryModel = models.Primary
	}
	if c.FallbackModel == "" {
		c.FallbackModel = models.Fallback
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if _, ok := providerModels[c.Provider]; !ok {
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider))
	}
	switch c.Provider {
	case ProviderGemini, ProviderOpenRouter:
		if c.APIKey == "" {
			errs = append(errs, fmt.Errorf("provider %s needs an API key (api_key or %s)", c.Provider, providerEnv[c.Provider]))
		}
	case ProviderGoogle:
		if c.APIKey == "" && c.Credentials == "" {
			errs = append(errs, errors.New("provider google needs credentials or an API key"))
		}
	}

	if c.PrimaryModel == "" || c.FallbackModel == "" {
		errs = append(errs, errors.New("primary_model and fallback_model must be set"))
	}
	for key, code := range map[string]string{"source_lang": c.SourceLang, "target_lang": c.TargetLang} {
		if key == "source_lang" && code == AutoDetect {
			continue
		}
		if _, err := language.Parse(code); err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid language %q", key, code))
		}
	}

	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.MaxRetries < 0 || c.MaxRetries > pipeline.DefaultMaxRetries {
		errs = append(errs, fmt.Errorf("max_retries must be between 0 and %d, got %d", pipeline.DefaultMaxRetries, c.MaxRetries))
	}
	for key, d := range map[string]time.Duration{
		"request_interval": c.RequestInterval,
		"cooldown":         c.Cooldown,
		"primary_backoff":  c.PrimaryBackoff,
		"call_timeout":     c.CallTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", key, d))
		}
	}

	if c.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("retention_days must not be negative, got %d", c.RetentionDays))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}

	return errors.Join(errs...)
}

func (c *Config) Models() pipeline.Models {
	return pipeline.Models{Primary: c.PrimaryModel, Fallback: c.FallbackModel}
}

func (c *Config) Policy() pipeline.Policy {
	return pipeline.Policy{
		MaxRetries:              c.MaxRetries,
		Cooldown:                c.Cooldown,
		PrimaryBackoff:          c.PrimaryBackoff,
		CallTimeout:             c.CallTimeout,
		EscalatePrimaryCooldown: c.EscalatePrimaryCooldown,
	}
}

func (c *Config) Service() translator.ServiceConfig {
	return translator.ServiceConfig{
		Credentials: c.Credentials,
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Timeout:     c.CallTimeout,
		ProjectID:   c.ProjectID,
	}
}

// Pipeline converts the settings into a pipeline configuration. Logger and
// metrics are left for the caller.
func (c *Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		Workers:    c.Workers,
		SourceLang: c.SourceLang,
		TargetLang: c.TargetLang,
		Models:     c.Models(),
		Policy:     c.Policy(),
		Service:    c.Service(),
	}
}

// Retention is zero when pruning is disabled.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}
