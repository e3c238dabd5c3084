package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"timeclock/backend/config"
	"timeclock/backend/internal/api/handler"
	"timeclock/backend/internal/api/router"
	"timeclock/backend/internal/job"
	"timeclock/backend/internal/repository"
	"timeclock/backend/internal/service"
	"timeclock/backend/pkg/database"
	"timeclock/backend/pkg/jwt"
	applogger "timeclock/backend/pkg/logger"
	"timeclock/backend/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（默认查找 ./config/config.yaml）")
	flag.Parse()

	// 1. 加载配置（本地开发可用 .env 注入 TIMECLOCK_* 环境变量）
	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Int("utc_offset_hours", cfg.TimeClock.UTCOffsetHours),
	)

	// 3. 连接数据库并执行迁移
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	logger.Info("数据库连接成功")

	if err := database.RunMigrations(db, cfg.Database.Driver, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis（可选：连接失败时降级运行，不中断启动）
	rdb, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，Token 黑名单、限流与巡检分布式锁将不可用", zap.Error(err))
		rdb = nil
	}

	// 5. 依赖注入: Repository → Service → Job → Handler
	jwtMgr := jwt.NewManager(&cfg.Auth)
	engine := service.NewEngine(&cfg.TimeClock)
	repo := repository.NewRepository(db)

	// 接口变量只在 Redis 可用时赋值，避免 nil 指针装进非 nil 接口
	var (
		blacklist service.TokenBlacklist
		locker    job.Locker
	)
	health := []handler.NamedPinger{{Name: "database", Pinger: repo}}
	if rdb != nil {
		blacklist = rdb
		locker = rdb
		health = append(health, handler.NamedPinger{Name: "redis", Pinger: rdb})
	}

	svc := service.NewService(cfg, repo, engine, jwtMgr, blacklist, logger)

	sweeper, err := job.NewSweeper(&cfg.TimeClock, svc.Incident, locker, engine.Location(), logger)
	if err != nil {
		logger.Fatal("初始化日终巡检失败", zap.Error(err))
	}
	if cfg.TimeClock.SweepEnabled {
		sweeper.Start()
	}

	h := handler.NewHandler(cfg, svc, sweeper, health...)

	// 6. 初始化路由
	r := router.Setup(cfg, h, jwtMgr, rdb, logger)

	// 7. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second, // 导出大区间 Excel 需要更长写超时
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 8. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	// 等待进行中的巡检结束，避免持锁退出
	sweeper.Stop(ctx)

	// 关闭数据库连接
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	// 关闭 Redis 连接
	if rdb != nil {
		rdb.Close()
	}

	logger.Info("服务器已关闭")
}
