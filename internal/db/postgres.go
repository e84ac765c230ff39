package db

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urbancamo/wota-data/internal/config"
)

var newPoolFn = pgxpool.New
var pingPoolFn = func(ctx context.Context, pool *pgxpool.Pool) error {
	return pool.Ping(ctx)
}

func ConnectPostgres(cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := newPoolFn(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, err
	}
	// An unreachable database is transient; the pool reconnects per query
	// and the spot cache retries with backoff. Only a bad URL is fatal.
	if err := pingPoolFn(ctx, pool); err != nil {
		log.Printf("postgres ping failed, continuing: %v", err)
	}
	return pool, nil
}
