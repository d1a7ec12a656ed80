// Package config loads the engine configuration: a YAML file with
// environment-variable overrides for secrets and deploy-time endpoints.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Cache     CacheConfig     `yaml:"cache"`
	Providers ProvidersConfig `yaml:"providers"`
	Database  DatabaseConfig  `yaml:"database"`
}

type ServerConfig struct {
	Port            int    `yaml:"port"`
	Env             string `yaml:"env"`
	RateLimitPerMin int    `yaml:"rate_limit_per_minute"`
}

type PipelineConfig struct {
	ProviderTimeoutMs int `yaml:"provider_timeout_ms"`
	DefaultTTLSeconds int `yaml:"default_ttl_seconds"`
}

type CacheConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

type ProvidersConfig struct {
	GitHubToken        string `yaml:"github_token"`
	TwitterBearerToken string `yaml:"twitter_bearer_token"`
	ClawHubBaseURL     string `yaml:"clawhub_base_url"`
	ClawHubAPIKey      string `yaml:"clawhub_api_key"`
	MoltbookBaseURL    string `yaml:"moltbook_base_url"`
	MoltbookAPIKey     string `yaml:"moltbook_api_key"`
	ERC8004RPCURL      string `yaml:"erc8004_rpc_url"`
	ERC8004Registry    string `yaml:"erc8004_registry"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// Load reads the YAML file at path (missing file is fine: defaults plus
// env) and applies environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server:   ServerConfig{Port: 8080, Env: "dev"},
		Pipeline: PipelineConfig{ProviderTimeoutMs: 10000, DefaultTTLSeconds: 300},
	}

	if path != "" {
		f, err := os.Open(path)
		if err == nil {
			defer f.Close()
			if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	overrideString(&c.Providers.GitHubToken, "GITHUB_TOKEN")
	overrideString(&c.Providers.TwitterBearerToken, "TWITTER_BEARER_TOKEN")
	overrideString(&c.Providers.ClawHubBaseURL, "CLAWHUB_BASE_URL")
	overrideString(&c.Providers.ClawHubAPIKey, "CLAWHUB_API_KEY")
	overrideString(&c.Providers.MoltbookBaseURL, "MOLTBOOK_BASE_URL")
	overrideString(&c.Providers.MoltbookAPIKey, "MOLTBOOK_API_KEY")
	overrideString(&c.Providers.ERC8004RPCURL, "ERC8004_RPC_URL")
	overrideString(&c.Providers.ERC8004Registry, "ERC8004_REGISTRY")
	overrideString(&c.Cache.RedisAddr, "REDIS_ADDR")
	overrideString(&c.Cache.RedisPassword, "REDIS_PASSWORD")
	overrideString(&c.Database.URL, "DATABASE_URL")
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// ProviderTimeout returns the per-provider deadline as a duration.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Pipeline.ProviderTimeoutMs) * time.Millisecond
}

// DefaultTTL returns the default cache lifetime as a duration.
func (c *Config) DefaultTTL() time.Duration {
	return time.Duration(c.Pipeline.DefaultTTLSeconds) * time.Second
}
