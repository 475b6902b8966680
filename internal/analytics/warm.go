package analytics

import (
	"context"
	"fmt"

	"github.com/zhenzou/executors"

	"github.com/clinichub/clinichub/internal/authz"
	"github.com/clinichub/clinichub/internal/log"
)

// WarmWorker schedules periodic dimension cache warming so filter dropdowns
// stay hot without waiting for user traffic.
type WarmWorker struct {
	Dimensions *DimensionCache
	Executor   executors.ScheduledExecutor

	cron       string
	cancelFunc context.CancelFunc
}

// NewWarmWorker creates a WarmWorker. An empty cron expression disables it.
func NewWarmWorker(cfg Config, dimensions *DimensionCache, executor executors.ScheduledExecutor) *WarmWorker {
	return &WarmWorker{
		Dimensions: dimensions,
		Executor:   executor,
		cron:       cfg.WarmCron,
	}
}

func (w *WarmWorker) Start(ctx context.Context) error {
	if w.cron == "" || w.cancelFunc != nil {
		return nil
	}

	cancelFunc, err := w.Executor.ScheduleFuncAtCronRate(
		w.runWarm,
		executors.CRONRule{Expr: w.cron},
	)
	if err != nil {
		return fmt.Errorf("schedule dimension cache warm: %w", err)
	}

	w.cancelFunc = cancelFunc

	log.Info(ctx, "dimension cache warm scheduled", log.String("cron", w.cron))

	return nil
}

func (w *WarmWorker) Stop(ctx context.Context) error {
	if w.cancelFunc != nil {
		w.cancelFunc()
		w.cancelFunc = nil
	}

	return nil
}

func (w *WarmWorker) runWarm(ctx context.Context) {
	ctx = authz.NewSystemContext(ctx)

	if err := w.Dimensions.WarmCache(ctx); err != nil {
		log.Error(ctx, "dimension cache warm failed", log.Cause(err))
	}
}
