package analytics

import (
	"context"

	"go.uber.org/fx"

	"github.com/clinichub/clinichub/internal/pkg/xcache"
)

var Module = fx.Module("analytics",
	fx.Provide(NewQueryService),
	fx.Provide(NewBuilder),
	fx.Provide(NewValidator),
	fx.Provide(NewInMemoryFilter),
	fx.Provide(NewExecutor),
	fx.Provide(NewOrchestrator),
	fx.Provide(NewDimensionCache),
	fx.Provide(NewWarmWorker),
	fx.Provide(newRowCache),
	fx.Provide(newConfigCache),
	fx.Provide(newConfigStore),
	fx.Provide(newDataSourceCache),
	fx.Invoke(func(lc fx.Lifecycle, worker *WarmWorker) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return worker.Start(ctx)
			},
			OnStop: func(ctx context.Context) error {
				return worker.Stop(ctx)
			},
		})
	}),
)

func newRowCache(cfg Config) xcache.Cache[[]Row] {
	return xcache.NewFromConfig[[]Row](cfg.Rows)
}

func newConfigCache(cfg Config) xcache.Cache[*DataSourceConfig] {
	return xcache.NewFromConfig[*DataSourceConfig](cfg.Configs)
}

func newConfigStore(cfg Config, db DBQuerier, cache xcache.Cache[*DataSourceConfig]) ConfigStore {
	return NewPgConfigStore(cfg, db, cache)
}

func newDataSourceCache(cfg Config, query *QueryService, configs ConfigStore, cache xcache.Cache[[]Row], filter *InMemoryFilter) *DataSourceCache {
	cfg = cfg.withDefaults()

	return NewDataSourceCache(query, configs, cache, filter, cfg.RowTTL)
}
