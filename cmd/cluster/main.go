package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/urbancamo/wota-data/internal/cluster"
	"github.com/urbancamo/wota-data/internal/config"
	"github.com/urbancamo/wota-data/internal/db"
	"github.com/urbancamo/wota-data/internal/server"
	"github.com/urbancamo/wota-data/internal/sota"
	"github.com/urbancamo/wota-data/internal/spot"
	"github.com/urbancamo/wota-data/internal/stream"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig      func() config.Config
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	connectRedis    func(config.Config) *redis.Client
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, *pgxpool.Pool, *redis.Client, <-chan os.Signal, ListenFunc) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		connectPostgres: db.ConnectPostgres,
		connectRedis:    db.ConnectRedis,
		notify:          signal.Notify,
		run:             Run,
	}
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()

	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		log.Printf("postgres connection failed: %v", err)
	}

	rdb := deps.connectRedis(cfg)

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, pg, rdb, signals, nil); err != nil {
		log.Printf("server exited with error: %v", err)
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run starts the cluster TCP server, the SOTA feed sync and the operational
// HTTP surface, then waits for a termination signal. A listener bind failure
// is the only fatal startup error.
func Run(ctx context.Context, cfg config.Config, pg *pgxpool.Pool, rdb *redis.Client, signals <-chan os.Signal, listen ListenFunc) error {
	var querier db.Querier = db.Disconnected{}
	if pg != nil {
		querier = pg
	}
	store := spot.NewStore(querier)
	hub := stream.NewHub(rdb)

	cache := cluster.NewCache(store)
	clusterSrv := cluster.NewServer(cfg.ClusterPort, cache, cfg.SpotPollInterval, hub.Broadcast)
	syncSvc := sota.NewService(store, sota.NewClient(cfg.SotaAPIURL), cfg.SotaPollInterval)

	httpSrv := server.NewServer(cfg, hub, func() server.Status {
		return server.Status{
			Sessions:     clusterSrv.Registry().Len(),
			CachedSpots:  cache.Size(),
			LastSpotID:   cache.LastSpotID(),
			CacheReady:   cache.Ready(),
			TrackedSpots: syncSvc.TrackedCount(),
		}
	})

	if err := clusterSrv.Start(ctx); err != nil {
		return err
	}
	syncSvc.Start(ctx)

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(httpSrv.App, cfg.HTTPPort)
	}()

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			syncSvc.Stop()
			clusterSrv.Stop()
			return err
		}
	}

	syncSvc.Stop()
	clusterSrv.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := shutdownFn(httpSrv.App, shutdownCtx); err != nil {
		return err
	}
	if pg != nil {
		pg.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	return nil
}
