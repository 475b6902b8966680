package api

import (
	"go.uber.org/fx"
)

var Module = fx.Module("api",
	fx.Provide(NewAnalyticsHandlers),
	fx.Provide(NewSystemHandlers),
)
