package server

import (
	"github.com/gin-contrib/cors"
	"go.uber.org/fx"

	"github.com/clinichub/clinichub/internal/server/api"
	"github.com/clinichub/clinichub/internal/server/middleware"
)

type Handlers struct {
	fx.In

	Analytics *api.AnalyticsHandlers
	System    *api.SystemHandlers
}

func SetupRoutes(server *Server, handlers Handlers) {
	server.Use(middleware.AccessLog())
	server.Use(middleware.WithLoggingTracing(server.Config.Trace))

	// Setup CORS middleware at server level if enabled
	if server.Config.CORS.Enabled {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = server.Config.CORS.AllowedOrigins
		corsConfig.AllowMethods = server.Config.CORS.AllowedMethods
		corsConfig.AllowHeaders = server.Config.CORS.AllowedHeaders
		corsConfig.ExposeHeaders = server.Config.CORS.ExposedHeaders
		corsConfig.AllowCredentials = server.Config.CORS.AllowCredentials
		corsConfig.MaxAge = server.Config.CORS.MaxAge

		corsHandler := cors.New(corsConfig)
		server.Use(corsHandler)
		server.OPTIONS("*any", corsHandler)
	}

	publicGroup := server.Group("", middleware.WithTimeout(server.Config.RequestTimeout))
	{
		// Health check endpoint - no authentication required
		publicGroup.GET("/health", handlers.System.Health)
	}

	apiGroup := server.Group("/api/v1",
		middleware.WithTimeout(server.Config.RequestTimeout),
		middleware.WithAuthScope(),
	)

	{
		analyticsGroup := apiGroup.Group("/analytics")
		analyticsGroup.POST("/query", handlers.Analytics.Query)
		analyticsGroup.GET("/dimension-values", handlers.Analytics.DimensionValues)
		analyticsGroup.POST("/cache/invalidate", handlers.Analytics.InvalidateCache)
	}
}
