// Package config loads the server configuration from a YAML file, a .env
// file and SOAUTH_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pilab-dev/shadow-oauth/domain"
	"github.com/pilab-dev/shadow-oauth/internal/auth"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. SOAUTH_HTTP_ADDRESS.
const EnvPrefix = "SOAUTH"

// Storage and cache backends.
const (
	BackendMemory  = "memory"
	BackendMongoDB = "mongodb"
	BackendRedis   = "redis"
)

// Config holds all configuration for the server and the admin CLI.
type Config struct {
	HTTP       HTTPConfig        `mapstructure:"http"`
	Log        LogConfig         `mapstructure:"log"`
	OAuth      OAuthConfig       `mapstructure:"oauth"`
	Storage    StorageConfig     `mapstructure:"storage"`
	Cache      CacheConfig       `mapstructure:"cache"`
	Tracing    TracingConfig     `mapstructure:"tracing"`
	Purge      PurgeConfig       `mapstructure:"purge"`
	Throttle   ThrottleConfig    `mapstructure:"throttle"`
	Users      []auth.StaticUser `mapstructure:"users"`
	Strategies []StrategyConfig  `mapstructure:"strategies"`
}

type HTTPConfig struct {
	Address         string        `mapstructure:"address"`
	Realm           string        `mapstructure:"realm"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// OAuthConfig mirrors domain.OAuthContext.
type OAuthConfig struct {
	ProviderName              string           `mapstructure:"provider_name"`
	Issuer                    string           `mapstructure:"issuer"`
	SecretKey                 string           `mapstructure:"secret_key"`
	PrivateKeyFile            string           `mapstructure:"private_key_file"`
	SigningAlgorithm          string           `mapstructure:"signing_algorithm"`
	TokenType                 string           `mapstructure:"token_type"`
	AuthorizationCodeLifetime time.Duration    `mapstructure:"authorization_code_lifetime"`
	AccessTokenLifetimes      domain.Lifetimes `mapstructure:"access_token_lifetimes"`
	RefreshTokenLifetimes     domain.Lifetimes `mapstructure:"refresh_token_lifetimes"`
	AuthorizationEndpoint     string           `mapstructure:"authorization_endpoint"`
}

type StorageConfig struct {
	Backend       string `mapstructure:"backend"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`
}

type CacheConfig struct {
	Backend       string        `mapstructure:"backend"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	// TokenTTL bounds how long an access token stays cached. The memory
	// backend is per process, so behind several replicas it is also how long
	// a revocation may go unnoticed by the others.
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	FlowTTL       time.Duration `mapstructure:"flow_ttl"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

type PurgeConfig struct {
	// Interval of the purge job. Zero disables it.
	Interval time.Duration `mapstructure:"interval"`
}

// ThrottleConfig limits login attempts per remote address.
type ThrottleConfig struct {
	PerSecond float64       `mapstructure:"per_second"`
	Burst     int           `mapstructure:"burst"`
	Idle      time.Duration `mapstructure:"idle"`
}

// StrategyConfig configures a federated login. Provider is github or google.
type StrategyConfig struct {
	ID           string   `mapstructure:"id"`
	Provider     string   `mapstructure:"provider"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURL  string   `mapstructure:"redirect_url"`
	Scopes       []string `mapstructure:"scopes"`
}

func setDefaults(v *viper.Viper) {
	octx := domain.DefaultOAuthContext()

	v.SetDefault("http.address", ":8080")
	v.SetDefault("http.realm", "shadow-oauth")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("oauth.provider_name", octx.ProviderName)
	v.SetDefault("oauth.issuer", "http://localhost:8080")
	v.SetDefault("oauth.secret_key", "")
	v.SetDefault("oauth.private_key_file", "")
	v.SetDefault("oauth.signing_algorithm", octx.SigningAlgorithm)
	v.SetDefault("oauth.token_type", octx.TokenType)
	v.SetDefault("oauth.authorization_code_lifetime", octx.AuthorizationCodeLifetime)
	v.SetDefault("oauth.authorization_endpoint", "/oauth/v2/authorize")
	setLifetimeDefaults(v, "oauth.access_token_lifetimes", octx.AccessTokenLifetimes)
	setLifetimeDefaults(v, "oauth.refresh_token_lifetimes", octx.RefreshTokenLifetimes)

	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("storage.mongo_database", "shadow_oauth")

	v.SetDefault("cache.backend", BackendMemory)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.token_ttl", 5*time.Minute)
	v.SetDefault("cache.flow_ttl", 15*time.Minute)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "shadow-oauth")

	v.SetDefault("purge.interval", time.Hour)

	v.SetDefault("throttle.per_second", 1.0)
	v.SetDefault("throttle.burst", 5)
	v.SetDefault("throttle.idle", 15*time.Minute)
}

func setLifetimeDefaults(v *viper.Viper, prefix string, l domain.Lifetimes) {
	v.SetDefault(prefix+".confidential_internal", l.ConfidentialInternal)
	v.SetDefault(prefix+".confidential_external", l.ConfidentialExternal)
	v.SetDefault(prefix+".public_internal", l.PublicInternal)
	v.SetDefault(prefix+".public_external", l.PublicExternal)
}

// LoadConfig reads the configuration. configFile may be empty, in which case
// config.yaml is searched in /etc/shadow-oauth, $HOME/.shadow-oauth and the
// working directory. envFiles are loaded into the environment first without
// overriding variables that are already set; by default .env is tried.
func LoadConfig(configFile string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error loading env file %s: %w", f, err)
		}
	}

	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/shadow-oauth/")
		v.AddConfigPath("$HOME/.shadow-oauth")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendMongoDB:
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}

	switch c.Cache.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("config: unknown cache backend %q", c.Cache.Backend)
	}

	for _, s := range c.Strategies {
		if s.Provider != "github" && s.Provider != "google" {
			return fmt.Errorf("config: strategy %s: unknown provider %q", s.ID, s.Provider)
		}
	}

	return nil
}

// OAuthContext converts the oauth section into a validated context.
func (c *Config) OAuthContext() (domain.OAuthContext, error) {
	o := c.OAuth
	octx := domain.OAuthContext{
		ProviderName:              o.ProviderName,
		Issuer:                    o.Issuer,
		SecretKey:                 o.SecretKey,
		SigningAlgorithm:          o.SigningAlgorithm,
		TokenType:                 o.TokenType,
		AuthorizationCodeLifetime: o.AuthorizationCodeLifetime,
		AccessTokenLifetimes:      o.AccessTokenLifetimes,
		RefreshTokenLifetimes:     o.RefreshTokenLifetimes,
		AuthorizationEndpoint:     o.AuthorizationEndpoint,
	}

	if o.PrivateKeyFile != "" {
		pem, err := os.ReadFile(o.PrivateKeyFile)
		if err != nil {
			return domain.OAuthContext{}, fmt.Errorf("failed to read private key: %w", err)
		}
		octx.PrivateKeyPEM = string(pem)
	}

	if err := octx.Validate(); err != nil {
		return domain.OAuthContext{}, err
	}

	return octx, nil
}
