package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/cppla/rewardhub/config"
	"github.com/cppla/rewardhub/controllers"
	"github.com/cppla/rewardhub/metrics"
	"github.com/cppla/rewardhub/middleware"
	"github.com/cppla/rewardhub/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, rewards *controllers.RewardController, admin *controllers.AdminController, m *metrics.Metrics) *gin.Engine {
	switch strings.ToLower(cfg.App.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Access log goes to its own rolling file, not the application log.
	gl, err := utils.NewRollingFileLogger(cfg.App.GinPath, cfg.Log)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		utils.Sugar.Warnf("gin access log disabled path=%s err=%v", cfg.App.GinPath, err)
		r.Use(gin.Recovery())
	}
	r.Use(middleware.Metrics(m))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", utils.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", utils.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.App.AllowedOrigins) == 0 || (len(cfg.App.AllowedOrigins) == 1 && cfg.App.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.App.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))

	api := r.Group("/api/v1")
	protected := api.Group("")
	protected.Use(middleware.AuthRequired(cfg.App.JWTSecret), middleware.RateLimitMiddleware(cfg.App.RateLimitPerMinute))

	rewardsGroup := protected.Group("/rewards")
	rewardsGroup.POST("/daily-login", rewards.DailyLogin)
	rewardsGroup.POST("/streak", rewards.Streak)
	rewardsGroup.POST("/activities/:activity", rewards.MarkActivity)
	rewardsGroup.POST("/engagement", rewards.Engagement)
	rewardsGroup.GET("/status", rewards.Status)
	protected.GET("/coins/transactions", rewards.Transactions)

	adminGroup := protected.Group("/admin")
	adminGroup.Use(middleware.AdminRequired(cfg.App.AdminUsernames))
	adminGroup.GET("/rewards", admin.ListRules)
	adminGroup.PUT("/rewards/:key", admin.UpsertRule)
	adminGroup.POST("/scratch-cards/issue", admin.IssueScratchCards)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, utils.CodeRouteNotFound, "route not found")
	})

	return r
}
