package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"timeclock/backend/config"
	"timeclock/backend/internal/api/handler"
	"timeclock/backend/internal/api/middleware"
	"timeclock/backend/internal/model"
	"timeclock/backend/pkg/jwt"
	"timeclock/backend/pkg/redis"
)

// maxBodyBytes 普通请求体上限；用户导入走单独的文件大小校验
const maxBodyBytes = 8 << 20

// Setup 初始化并返回 Gin 路由引擎。rdb 为 nil 时黑名单与限流降级放行
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	var (
		blacklist middleware.TokenBlacklist
		limiter   middleware.RateLimiter
	)
	if rdb != nil {
		blacklist = rdb
		limiter = rdb
	}

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(maxBodyBytes))

	// ── 健康检查 ──
	r.GET("/health", h.Health.Live)
	r.GET("/health/ready", h.Health.Ready)

	admin := middleware.RoleAuth(model.RoleAdmin)

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		// 认证模块（无需认证）
		auth := v1.Group("/auth")
		{
			auth.POST("/login", middleware.RateLimit(limiter, cfg.Auth.LoginRateLimit, time.Minute), h.Auth.Login)
			auth.POST("/refresh", middleware.RateLimit(limiter, cfg.Auth.LoginRateLimit, time.Minute), h.Auth.RefreshToken)
		}

		// 需要认证的路由
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(jwtMgr, blacklist, logger))
		{
			// 认证模块（需要认证）
			authorized.POST("/auth/logout", h.Auth.Logout)
			authorized.GET("/auth/me", h.Auth.GetCurrentUser)
			authorized.PUT("/auth/password", h.User.ChangePassword)

			// 用户模块（管理员）
			users := authorized.Group("/users", admin)
			{
				users.POST("", h.User.CreateUser)
				users.GET("", h.User.ListUsers)
				users.POST("/import", h.User.ImportUsers)
				users.GET("/:id", h.User.GetUser)
				users.PUT("/:id", h.User.UpdateUser)
				users.PUT("/:id/status", h.User.SetUserStatus)
				users.GET("/:id/summary", h.TimeEntry.GetUserSummary)
			}

			// 打卡模块
			entries := authorized.Group("/time-entries")
			{
				entries.POST("/clock-in", h.TimeEntry.ClockIn)
				entries.POST("/clock-out", h.TimeEntry.ClockOut)
				entries.GET("/today", h.TimeEntry.GetTodayStatus)
				entries.GET("/me", h.TimeEntry.ListMyEntries)
				entries.GET("/summary", h.TimeEntry.GetMySummary)
				entries.GET("/:id", h.TimeEntry.GetEntry) // 本人或管理员（Service 层鉴权）
				entries.GET("", admin, h.TimeEntry.ListEntries)
				entries.PUT("/:id", admin, h.TimeEntry.UpdateEntry)
				entries.DELETE("/:id", admin, h.TimeEntry.DeleteEntry)
			}

			// 考勤异常模块
			incidents := authorized.Group("/incidents")
			{
				incidents.GET("/me", h.Incident.ListMyIncidents)
				incidents.GET("/me/pending", h.Incident.ListMyPending)
				incidents.GET("/me/yesterday", h.Incident.ListMyYesterdayPending)
				incidents.GET("/me/stats", h.Incident.GetMyStats)
				incidents.GET("", admin, h.Incident.ListIncidents)
				incidents.GET("/reviews", admin, h.Incident.ListPendingReviews)
				incidents.GET("/pending-count", admin, h.Incident.GetPendingCount)
				incidents.GET("/stats", admin, h.Incident.GetStats)
				incidents.POST("/sweep", admin, h.Incident.TriggerSweep)
				incidents.GET("/:id", h.Incident.GetIncident)
				incidents.POST("/:id/correction", h.Incident.RequestCorrection)
				incidents.POST("/:id/resolve", admin, h.Incident.ResolveIncident)
			}

			// 审计日志（管理员）
			audit := authorized.Group("/audit-logs", admin)
			{
				audit.GET("", h.Audit.ListAuditLogs)
				audit.GET("/:entity_type/:entity_id", h.Audit.ListEntityHistory)
			}

			// 导出模块
			export := authorized.Group("/export")
			{
				export.GET("/me/xlsx", h.Export.ExportMyXLSX)
				export.GET("/me/ics", h.Export.ExportMyICS)
				export.GET("/users/:id/xlsx", admin, h.Export.ExportUserXLSX)
			}
		}
	}

	return r
}
