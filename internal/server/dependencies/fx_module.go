package dependencies

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zhenzou/executors"
	"go.uber.org/fx"

	"github.com/clinichub/clinichub/internal/analytics"
	"github.com/clinichub/clinichub/internal/log"
	"github.com/clinichub/clinichub/internal/server/db"
)

var Module = fx.Module("dependencies",
	fx.Provide(log.New),
	fx.Provide(db.NewPool),
	fx.Provide(func(pool *pgxpool.Pool) analytics.DBQuerier { return pool }),
	fx.Provide(NewRedisClient),
	fx.Provide(NewExecutors),
	fx.Invoke(func(lc fx.Lifecycle, executor executors.ScheduledExecutor) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return executor.Shutdown(ctx)
			},
		})
	}),
	fx.Invoke(func(lc fx.Lifecycle, pool *pgxpool.Pool) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				pool.Close()
				return nil
			},
		})
	}),
)
