package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Listen             string
	SubgraphEndpoints  map[uint64]string
	RPCEndpoints       map[uint64]string
	Factories          map[uint64]string
	MaxCacheSize       int
	DefaultTTL         time.Duration
	CleanupInterval    time.Duration
	RequestTimeout     time.Duration
	MaxRetries         int
	RetryBaseDelay     time.Duration
	RateLimitPerSecond int
	BurstLimit         int
	SearchLimit        int
	BatchConcurrency   int
	PersistenceEnabled bool
	SnapshotPath       string
	PostgresDSN        string
	RedisAddr          string
	RedisKey           string
	MetricsEnabled     bool
	LogLevel           string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POOLSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen", ":8080")
	v.SetDefault("max-cache-size", 1000)
	v.SetDefault("default-ttl", 5*time.Minute)
	v.SetDefault("cleanup-interval", time.Minute)
	v.SetDefault("request-timeout", 10*time.Second)
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-base-delay", 500*time.Millisecond)
	v.SetDefault("rate-limit-per-second", 10)
	v.SetDefault("burst-limit", 0)
	v.SetDefault("search-limit", 50)
	v.SetDefault("batch-concurrency", 8)
	v.SetDefault("persistence-enabled", true)
	v.SetDefault("snapshot-path", "./data/pool_cache.json")
	v.SetDefault("redis-key", "poolscope:cache")
	v.SetDefault("metrics-enabled", true)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	subgraphs, err := getChainMap(v, "subgraph-endpoints")
	if err != nil {
		return Config{}, err
	}
	rpcs, err := getChainMap(v, "rpc-endpoints")
	if err != nil {
		return Config{}, err
	}
	factories, err := getChainMap(v, "factories")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Listen:             v.GetString("listen"),
		SubgraphEndpoints:  subgraphs,
		RPCEndpoints:       rpcs,
		Factories:          factories,
		MaxCacheSize:       v.GetInt("max-cache-size"),
		DefaultTTL:         v.GetDuration("default-ttl"),
		CleanupInterval:    v.GetDuration("cleanup-interval"),
		RequestTimeout:     v.GetDuration("request-timeout"),
		MaxRetries:         v.GetInt("max-retries"),
		RetryBaseDelay:     v.GetDuration("retry-base-delay"),
		RateLimitPerSecond: v.GetInt("rate-limit-per-second"),
		BurstLimit:         v.GetInt("burst-limit"),
		SearchLimit:        v.GetInt("search-limit"),
		BatchConcurrency:   v.GetInt("batch-concurrency"),
		PersistenceEnabled: v.GetBool("persistence-enabled"),
		SnapshotPath:       v.GetString("snapshot-path"),
		PostgresDSN:        v.GetString("postgres-dsn"),
		RedisAddr:          v.GetString("redis-addr"),
		RedisKey:           v.GetString("redis-key"),
		MetricsEnabled:     v.GetBool("metrics-enabled"),
		LogLevel:           v.GetString("log-level"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if len(c.SubgraphEndpoints) == 0 {
		return fmt.Errorf("at least one subgraph endpoint is required")
	}
	if c.MaxCacheSize <= 0 {
		return fmt.Errorf("max-cache-size must be positive")
	}
	if c.DefaultTTL <= 0 {
		return fmt.Errorf("default-ttl must be positive")
	}
	if c.RateLimitPerSecond <= 0 {
		return fmt.Errorf("rate-limit-per-second must be positive")
	}
	if c.BurstLimit > 0 && c.BurstLimit < c.RateLimitPerSecond {
		return fmt.Errorf("burst-limit must be at least rate-limit-per-second")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max-retries must not be negative")
	}
	if c.PostgresDSN != "" && c.RedisAddr != "" {
		return fmt.Errorf("postgres-dsn and redis-addr are mutually exclusive snapshot stores")
	}
	return nil
}

// getChainMap reads a chain-keyed map. Accepts native config file maps or the
// flag/env form "1=https://a,137=https://b".
func getChainMap(v *viper.Viper, key string) (map[uint64]string, error) {
	if !v.IsSet(key) {
		return nil, nil
	}

	raw := map[string]string{}
	switch typed := v.Get(key).(type) {
	case map[string]string:
		raw = typed
	case map[string]interface{}:
		for k, val := range typed {
			raw[k] = fmt.Sprintf("%v", val)
		}
	case string:
		raw = parseStringMap(typed)
	default:
		return nil, fmt.Errorf("%s: unsupported value %v", key, typed)
	}

	out := make(map[uint64]string, len(raw))
	for k, val := range raw {
		chainID, err := strconv.ParseUint(strings.TrimSpace(k), 10, 64)
		if err != nil || chainID == 0 {
			return nil, fmt.Errorf("%s: invalid chain id %q", key, k)
		}
		out[chainID] = val
	}
	return out, nil
}

func parseStringMap(input string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(input) == "" {
		return out
	}
	pairs := strings.Split(input, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}
