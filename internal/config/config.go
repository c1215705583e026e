// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Identity      IdentityConfig      `yaml:"identity"`
	Definitions   DefinitionsConfig   `yaml:"definitions"`
	Capability    CapabilityConfig    `yaml:"capability"`
	Cache         ConfigCacheConfig   `yaml:"cache"`
	Store         StoreConfig         `yaml:"store"`
	ImportExport  ImportExportConfig  `yaml:"import_export"`
	FieldTypes    FieldTypesConfig    `yaml:"field_types"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// IdentityConfig describes JWT and identity provider settings.
type IdentityConfig struct {
	// Disabled turns authentication off. Every request then runs as an
	// anonymous caller holding the "admin" role. For local use only.
	Disabled     bool              `yaml:"disabled"`
	Issuer       string            `yaml:"issuer"`
	Audience     string            `yaml:"audience"`
	JWKSURL      string            `yaml:"jwks_url"`
	JWKSCacheTTL time.Duration     `yaml:"jwks_cache_ttl"`
	Algorithms   []string          `yaml:"algorithms"`
	ClaimPaths   map[string]string `yaml:"claim_paths"`
}

// DefinitionsConfig describes where to find entity definition files.
type DefinitionsConfig struct {
	Directories []string `yaml:"directories"`
	// HotReload reloads definitions on SIGHUP.
	HotReload bool `yaml:"hot_reload"`
	// Scopes lists the configuration scopes exposed by the entity config
	// manager, in order.
	Scopes []string `yaml:"scopes"`
}

// CapabilityConfig describes authorization settings.
type CapabilityConfig struct {
	StaticPolicyFile string      `yaml:"static_policy_file"`
	Cache            CacheConfig `yaml:"cache"`
}

// CacheConfig describes cache settings.
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// ConfigCacheConfig selects the cache policy of resolved entity configs.
type ConfigCacheConfig struct {
	Driver     string        `yaml:"driver"` // memory, lru or redis
	MaxEntries int           `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"`
	AddrEnv    string        `yaml:"addr_env"`
	DB         int           `yaml:"db"`
	KeyPrefix  string        `yaml:"key_prefix"`
}

// StoreConfig describes field config persistence settings.
type StoreConfig struct {
	Driver          string        `yaml:"driver"` // memory or postgres
	DSNEnv          string        `yaml:"dsn_env"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	Migrate         bool          `yaml:"migrate"`
	SeedDefinitions bool          `yaml:"seed_definitions"`
}

// ImportExportConfig describes field import and export settings.
type ImportExportConfig struct {
	BatchSize      int   `yaml:"batch_size"`
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// PropertyOption describes how an imported scope value is coerced.
type PropertyOption struct {
	Type    string `yaml:"type"` // boolean, integer, string or enum; empty casts to string
	Default any    `yaml:"default"`
}

// FieldTypesConfig lists the supported field types and, per type, the
// importable properties as scope → code → option.
type FieldTypesConfig struct {
	Supported  []string                                        `yaml:"supported"`
	Properties map[string]map[string]map[string]PropertyOption `yaml:"properties"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel  string        `yaml:"log_level"`
	LogFormat string        `yaml:"log_format"`
	Tracing   TracingConfig `yaml:"tracing"`
	Metrics   MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  25 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Correlation-Id"},
				MaxAge:         86400,
			},
		},
		Identity: IdentityConfig{
			JWKSCacheTTL: 1 * time.Hour,
			Algorithms:   []string{"RS256"},
			ClaimPaths: map[string]string{
				"subject_id": "sub",
				"tenant_id":  "tenant_id",
				"email":      "email",
				"roles":      "roles",
			},
		},
		Definitions: DefinitionsConfig{
			Directories: []string{"/definitions"},
			Scopes:      []string{"entity", "extend", "importexport", "activity", "enum", "grouping"},
		},
		Capability: CapabilityConfig{
			Cache: CacheConfig{
				TTL:        5 * time.Minute,
				MaxEntries: 10000,
			},
		},
		Cache: ConfigCacheConfig{
			Driver:     "memory",
			MaxEntries: 10000,
			AddrEnv:    "ENTITYCONFIG_REDIS_ADDR",
			KeyPrefix:  "entityconfig:config:",
		},
		Store: StoreConfig{
			Driver:          "memory",
			DSNEnv:          "ENTITYCONFIG_DATABASE_URL",
			MaxConns:        25,
			MinConns:        2,
			ConnMaxLifetime: 5 * time.Minute,
			Migrate:         true,
			SeedDefinitions: true,
		},
		ImportExport: ImportExportConfig{
			BatchSize:      100,
			MaxUploadBytes: 10 << 20,
		},
		FieldTypes: DefaultFieldTypes(),
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// DefaultFieldTypes returns the built-in field types and their importable
// properties.
func DefaultFieldTypes() FieldTypesConfig {
	common := func() map[string]map[string]PropertyOption {
		return map[string]map[string]PropertyOption{
			"entity": {
				"label":       {Type: "string", Default: ""},
				"description": {Type: "string", Default: ""},
			},
			"importexport": {
				"header":   {Type: "string", Default: ""},
				"order":    {Type: "integer", Default: 0},
				"identity": {Type: "boolean", Default: false},
				"excluded": {Type: "boolean", Default: false},
			},
		}
	}
	with := func(scope string, opts map[string]PropertyOption) map[string]map[string]PropertyOption {
		p := common()
		if p[scope] == nil {
			p[scope] = map[string]PropertyOption{}
		}
		maps.Copy(p[scope], opts)
		return p
	}

	cfg := FieldTypesConfig{
		Supported: []string{
			"string", "text", "integer", "smallint", "bigint", "boolean", "float",
			"decimal", "money", "percent", "date", "datetime", "enum", "multiEnum",
		},
		Properties: make(map[string]map[string]map[string]PropertyOption),
	}
	for _, t := range cfg.Supported {
		cfg.Properties[t] = common()
	}
	cfg.Properties["string"] = with("extend", map[string]PropertyOption{"length": {Type: "integer", Default: 255}})
	cfg.Properties["decimal"] = with("extend", map[string]PropertyOption{
		"precision": {Type: "integer", Default: 10},
		"scale":     {Type: "integer", Default: 2},
	})
	cfg.Properties["enum"] = with("enum", map[string]PropertyOption{"enum_options": {Type: "enum"}})
	cfg.Properties["multiEnum"] = with("enum", map[string]PropertyOption{"enum_options": {Type: "enum"}})
	return cfg
}

// Load reads the YAML file at path over Defaults, applies ENTITYCONFIG_*
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid or missing setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Port >= 1 && c.Server.Port <= 65535, "server.port must be between 1 and 65535")
	if !c.Identity.Disabled {
		check(c.Identity.Issuer != "", "identity.issuer is required")
		check(c.Identity.JWKSURL != "", "identity.jwks_url is required")
		check(c.Identity.Audience != "", "identity.audience is required")
	}
	check(len(c.Definitions.Directories) > 0, "definitions.directories must not be empty")

	switch c.Cache.Driver {
	case "memory":
	case "lru":
		check(c.Cache.MaxEntries > 0, "cache.max_entries must be positive for the lru driver")
	case "redis":
		check(c.Cache.AddrEnv != "", "cache.addr_env is required for the redis driver")
	default:
		check(false, "cache.driver %q must be one of memory, lru, redis", c.Cache.Driver)
	}

	switch c.Store.Driver {
	case "memory":
	case "postgres":
		check(c.Store.DSNEnv != "", "store.dsn_env is required for the postgres driver")
	default:
		check(false, "store.driver %q must be one of memory, postgres", c.Store.Driver)
	}

	check(c.ImportExport.BatchSize > 0, "import_export.batch_size must be positive")
	switch c.Observability.LogFormat {
	case "", "json", "console":
	default:
		check(false, "observability.log_format %q must be one of json, console", c.Observability.LogFormat)
	}
	return errors.Join(errs...)
}

// envOverrides maps environment variables to the setting they replace.
var envOverrides = map[string]func(*Config, string) error{
	"ENTITYCONFIG_SERVER_PORT": func(c *Config, v string) error {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ENTITYCONFIG_SERVER_PORT: %w", err)
		}
		c.Server.Port = port
		return nil
	},
	"ENTITYCONFIG_IDENTITY_ISSUER":          setString(func(c *Config) *string { return &c.Identity.Issuer }),
	"ENTITYCONFIG_IDENTITY_JWKS_URL":        setString(func(c *Config) *string { return &c.Identity.JWKSURL }),
	"ENTITYCONFIG_IDENTITY_AUDIENCE":        setString(func(c *Config) *string { return &c.Identity.Audience }),
	"ENTITYCONFIG_OBSERVABILITY_LOG_LEVEL":  setString(func(c *Config) *string { return &c.Observability.LogLevel }),
	"ENTITYCONFIG_OBSERVABILITY_LOG_FORMAT": setString(func(c *Config) *string { return &c.Observability.LogFormat }),
	"ENTITYCONFIG_CACHE_DRIVER":             setString(func(c *Config) *string { return &c.Cache.Driver }),
	"ENTITYCONFIG_STORE_DRIVER":             setString(func(c *Config) *string { return &c.Store.Driver }),
	"ENTITYCONFIG_DEFINITIONS_DIRECTORIES": func(c *Config, v string) error {
		c.Definitions.Directories = strings.Split(v, ",")
		return nil
	},
}

func setString(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

// applyEnvOverrides applies the variables of envOverrides that lookup finds
// with a non-empty value.
func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error
	for name, apply := range envOverrides {
		if v, ok := lookup(name); ok && v != "" {
			if err := apply(cfg, v); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
