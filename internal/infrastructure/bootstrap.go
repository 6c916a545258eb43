package infrastructure

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/jacome7/mythoria-admin-sub000/internal/config"
	"github.com/jacome7/mythoria-admin-sub000/internal/repository"
	"github.com/jacome7/mythoria-admin-sub000/internal/service"
	transportNATS "github.com/jacome7/mythoria-admin-sub000/internal/transport/nats"
	"github.com/jacome7/mythoria-admin-sub000/internal/worker"
)

// Bootstrap initialises all dependencies from config and wires up the
// credit engine. Returns the Engine, a cleanup function, or an error.
// Postgres is mandatory; Redis and NATS are attached only when
// configured, and the engine degrades gracefully without them.
func Bootstrap(ctx context.Context) (*Engine, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	db, err := connectPostgres(ctx, cfg.DSN())
	if err != nil {
		return nil, nil, err
	}

	var cleanupFns []func()
	cleanupFns = append(cleanupFns, db.Close)

	var cache service.BalanceCache
	if addr, redisErr := cfg.RedisAddr(); redisErr == nil {
		rdb, err := connectRedis(ctx, addr)
		if err != nil {
			return nil, runCleanup(cleanupFns), err
		}
		cleanupFns = append(cleanupFns, func() { _ = rdb.Close() })
		cache = repository.NewBalanceCache(rdb)
	} else {
		slog.Info("running without balance cache", "reason", redisErr)
	}

	var bus repository.MessageBus = repository.NopBus{}
	var nc *nats.Conn
	if url, natsErr := cfg.NatsAddr(); natsErr == nil {
		nc, err = connectNats(url)
		if err != nil {
			return nil, runCleanup(cleanupFns), err
		}
		cleanupFns = append(cleanupFns, nc.Close)
		bus = transportNATS.NewBus(nc)
	} else {
		slog.Info("running without event bus", "reason", natsErr)
	}

	creditsRepo := repository.NewCreditsRepo(db)
	promotionsRepo := repository.NewPromotionsRepo(db)
	credits := service.NewCreditService(creditsRepo, cache, bus)

	var servers []Server
	// The worker only earns its keep when there is both a bus to hear
	// from and a cache to sync.
	if nc != nil && cache != nil {
		servers = append(servers, worker.NewCacheSyncWorker(credits, nc))
	}

	return &Engine{
		Credits:    credits,
		Promotions: service.NewPromotionService(promotionsRepo, cache, bus),
		History:    service.NewHistoryService(creditsRepo),
		servers:    servers,
	}, runCleanup(cleanupFns), nil
}

// runCleanup returns a single function that calls all cleanup functions
// in reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
