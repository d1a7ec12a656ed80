package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/clawtrust/engine/internal/api"
	"github.com/clawtrust/engine/internal/cache"
	"github.com/clawtrust/engine/internal/config"
	"github.com/clawtrust/engine/internal/graph"
	"github.com/clawtrust/engine/internal/metrics"
	"github.com/clawtrust/engine/internal/pipeline"
	"github.com/clawtrust/engine/internal/providers"
	"github.com/clawtrust/engine/internal/store"
)

func main() {
	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	identityGraph := graph.New()

	// Identity links live in Postgres; the graph is hydrated once at
	// startup and written through by the challenge callback.
	var linkStore api.LinkStore
	if cfg.Database.URL != "" {
		pg, err := store.Open(cfg.Database.URL)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pg.Close()

		if err := pg.Migrate(ctx); err != nil {
			log.Fatalf("postgres migrate: %v", err)
		}
		count, err := pg.Hydrate(ctx, identityGraph)
		if err != nil {
			log.Fatalf("graph hydration: %v", err)
		}
		slog.Info("identity graph hydrated", "links", count)
		linkStore = pg
	} else {
		slog.Warn("DATABASE_URL not set, identity links are in-memory only")
	}

	// Redis is preferred when configured so replicas share results; the
	// in-memory store is the fallback.
	var resultCache cache.Store
	if cfg.Cache.RedisAddr != "" {
		redisCache, err := cache.NewRedis(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			slog.Warn("redis unavailable, using in-memory result cache", "err", err)
		} else {
			defer redisCache.Close()
			resultCache = redisCache
		}
	}
	if resultCache == nil {
		mem := cache.NewMemory(0)
		defer mem.Close()
		resultCache = mem
	}

	stream := api.NewStream()
	defer stream.Close()

	engine := pipeline.New(pipeline.Options{
		Credentials: providers.Credentials{
			GitHubToken:        cfg.Providers.GitHubToken,
			TwitterBearerToken: cfg.Providers.TwitterBearerToken,
			ClawHubBaseURL:     cfg.Providers.ClawHubBaseURL,
			ClawHubAPIKey:      cfg.Providers.ClawHubAPIKey,
			MoltbookBaseURL:    cfg.Providers.MoltbookBaseURL,
			MoltbookAPIKey:     cfg.Providers.MoltbookAPIKey,
			ERC8004RPCURL:      cfg.Providers.ERC8004RPCURL,
			ERC8004Registry:    cfg.Providers.ERC8004Registry,
		},
		ProviderTimeout: cfg.ProviderTimeout(),
		DefaultTTL:      cfg.DefaultTTL(),
		Graph:           identityGraph,
		Cache:           resultCache,
		Metrics:         metrics.New(),
		Publisher:       stream,
	})

	server := api.NewServer(engine, linkStore, stream).WithRateLimit(cfg.Server.RateLimitPerMin)
	if err := server.Start(cfg.Server.Port); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
