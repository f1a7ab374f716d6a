package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"poolscope/internal/api"
	"poolscope/internal/cache"
	"poolscope/internal/cache/postgres"
	"poolscope/internal/chain"
	"poolscope/internal/config"
	"poolscope/internal/metrics"
	"poolscope/internal/model"
	"poolscope/internal/ratelimit"
	"poolscope/internal/resolver"
	"poolscope/internal/retrier"
	"poolscope/internal/subgraph"
)

func main() {
	root := &cobra.Command{
		Use:          "poolscope",
		Short:        "Liquidity pool data resolution service",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP resolution service",
		RunE:  runServe,
	}
	addResolutionFlags(serveCmd)
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().Bool("metrics-enabled", true, "expose Prometheus metrics on /metrics")

	root.AddCommand(serveCmd)

	resolveCmd := &cobra.Command{
		Use:   "resolve <chain-id> <pool-address>",
		Short: "Resolve a single pool and print the result",
		Args:  cobra.ExactArgs(2),
		RunE:  runResolve,
	}
	addResolutionFlags(resolveCmd)

	root.AddCommand(resolveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addResolutionFlags(cmd *cobra.Command) {
	cmd.Flags().String("subgraph-endpoints", "", "chain=url pairs for subgraph endpoints (comma-separated)")
	cmd.Flags().String("rpc-endpoints", "", "chain=url pairs for RPC fallback (comma-separated)")
	cmd.Flags().String("factories", "", "chain=address pairs for factory contracts (comma-separated)")
	cmd.Flags().Int("max-cache-size", 1000, "maximum cached pool entries")
	cmd.Flags().Duration("default-ttl", 5*time.Minute, "cache entry TTL")
	cmd.Flags().Duration("cleanup-interval", time.Minute, "expired entry sweep interval")
	cmd.Flags().Duration("request-timeout", 10*time.Second, "upstream request timeout")
	cmd.Flags().Int("max-retries", 3, "maximum retry attempts against the indexed service")
	cmd.Flags().Duration("retry-base-delay", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().Int("rate-limit-per-second", 10, "upstream requests admitted per second")
	cmd.Flags().Int("burst-limit", 0, "burst ceiling above the steady rate (0 disables bursting)")
	cmd.Flags().Int("search-limit", 50, "maximum results for text search")
	cmd.Flags().Int("batch-concurrency", 8, "parallel lookups per batch request")
	cmd.Flags().Bool("persistence-enabled", true, "persist cache snapshots")
	cmd.Flags().String("snapshot-path", "./data/pool_cache.json", "cache snapshot file path")
	cmd.Flags().String("postgres-dsn", "", "Postgres DSN for cache snapshots (overrides snapshot file)")
	cmd.Flags().String("redis-addr", "", "Redis address for cache snapshots (overrides snapshot file)")
	cmd.Flags().String("redis-key", "poolscope:cache", "Redis key for the cache snapshot")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		registry *prometheus.Registry
		m        *metrics.Metrics
	)
	if cfg.MetricsEnabled {
		registry = prometheus.NewRegistry()
		m = metrics.New(registry)
	}

	res, cleanup, err := buildResolver(ctx, cfg, m, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if registry != nil {
		metrics.RegisterCacheCollectors(registry, func() metrics.CacheSnapshot {
			stats := res.Cache().Stats()
			return metrics.CacheSnapshot{
				Hits:      stats.Hits,
				Misses:    stats.Misses,
				Evictions: stats.Evictions,
				Size:      stats.Size,
				HitRate:   stats.HitRate,
			}
		})
	}

	server := api.NewServer(res, registry, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.Listen)
	}()

	logger.Info("poolscope start",
		zap.String("listen", cfg.Listen),
		zap.Int("chains", len(cfg.SubgraphEndpoints)),
		zap.Int("max_cache_size", cfg.MaxCacheSize),
		zap.Duration("default_ttl", cfg.DefaultTTL),
		zap.Int("rate_limit_per_second", cfg.RateLimitPerSecond),
		zap.Bool("persistence_enabled", cfg.PersistenceEnabled),
	)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	chainID, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || chainID == 0 {
		return fmt.Errorf("invalid chain id %q", args[0])
	}
	address := args[1]
	if !model.IsAddress(address) {
		return fmt.Errorf("malformed pool address %q", address)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, cleanup, err := buildResolver(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	result := res.GetPool(ctx, chainID, address)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("resolve failed: %s", result.Err)
	}
	return nil
}

// buildResolver wires the cache, upstream clients, and fallback chain. The
// returned cleanup closes everything in reverse order.
func buildResolver(ctx context.Context, cfg config.Config, m *metrics.Metrics, logger *zap.Logger) (*resolver.Resolver, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	store, err := buildSnapshotStore(ctx, cfg, &closers)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	poolCache, err := cache.New(cache.Config{
		MaxSize:         cfg.MaxCacheSize,
		DefaultTTL:      cfg.DefaultTTL,
		CleanupInterval: cfg.CleanupInterval,
		Store:           store,
	}, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, poolCache.Close)

	indexed := subgraph.NewClient(cfg.SubgraphEndpoints, cfg.RequestTimeout, logger)

	var chainSrc resolver.ChainSource
	if len(cfg.RPCEndpoints) > 0 {
		clients := make(map[uint64]*chain.Client, len(cfg.RPCEndpoints))
		for chainID, url := range cfg.RPCEndpoints {
			client, err := chain.NewClient(ctx, url)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("connect rpc for chain %d: %w", chainID, err)
			}
			closers = append(closers, client.Close)
			if err := client.VerifyChainID(ctx, chainID); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("verify rpc for chain %d: %w", chainID, err)
			}
			if head, err := client.LatestBlockNumber(ctx); err != nil {
				logger.Warn("rpc head unavailable", zap.Uint64("chain_id", chainID), zap.Error(err))
			} else {
				logger.Info("chain rpc connected", zap.Uint64("chain_id", chainID), zap.Uint64("head", head))
			}
			clients[chainID] = client
		}
		chainSrc = chain.NewPoolReader(clients, cfg.Factories, logger)
	}

	// A burst limit widens the window so short spikes pass while the average
	// rate stays at rate-limit-per-second.
	ceiling, window := cfg.RateLimitPerSecond, time.Second
	if cfg.BurstLimit > ceiling {
		ceiling = cfg.BurstLimit
		window = time.Duration(cfg.BurstLimit) * time.Second / time.Duration(cfg.RateLimitPerSecond)
	}
	limiter, err := ratelimit.New(ceiling, window)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	res, err := resolver.New(resolver.Config{
		SearchLimit:      cfg.SearchLimit,
		BatchConcurrency: cfg.BatchConcurrency,
	}, poolCache, indexed, chainSrc, limiter, retrier.New(cfg.MaxRetries, cfg.RetryBaseDelay), m, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return res, cleanup, nil
}

func buildSnapshotStore(ctx context.Context, cfg config.Config, closers *[]func()) (cache.SnapshotStore, error) {
	if !cfg.PersistenceEnabled {
		return nil, nil
	}
	switch {
	case cfg.PostgresDSN != "":
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		*closers = append(*closers, store.Close)
		if err := store.Touch(ctx); err != nil {
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		return store, nil
	case cfg.RedisAddr != "":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		*closers = append(*closers, func() { client.Close() })
		return cache.NewRedisStore(client, cfg.RedisKey), nil
	default:
		return cache.NewFileStore(cfg.SnapshotPath), nil
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
