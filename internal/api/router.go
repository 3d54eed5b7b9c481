package api

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/chirp_analysis/config"
	"github.com/qs3c/chirp_analysis/internal/api/handler"
	"github.com/qs3c/chirp_analysis/internal/api/middleware"
)

type Router struct {
	jobHandler       *handler.JobHandler
	healthHandler    *handler.HealthHandler
	websocketHandler *handler.WebSocketHandler
	cfg              *config.Config
}

func NewRouter(
	jobHandler *handler.JobHandler,
	healthHandler *handler.HealthHandler,
	websocketHandler *handler.WebSocketHandler,
	cfg *config.Config,
) *Router {
	return &Router{
		jobHandler:       jobHandler,
		healthHandler:    healthHandler,
		websocketHandler: websocketHandler,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	engine.GET("/health", r.healthHandler.Health)

	api := engine.Group("/api/v1")
	{
		// WebSocket，token 走 query
		api.GET("/ws", r.websocketHandler.Handle)

		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			// 监听者 token 只能查看自己的练习
			authenticated.GET("/jobs/:id", r.jobHandler.Get)
			authenticated.GET("/sessions/:id/analysis", r.jobHandler.SessionAnalysis)

			// 服务级接口
			service := authenticated.Group("")
			service.Use(middleware.RequireService())
			{
				service.POST("/jobs", r.jobHandler.Enqueue)
				service.GET("/children/:id/unlocks", r.jobHandler.Unlocks)
			}
		}
	}

	return engine
}
