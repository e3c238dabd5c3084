package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"timeclock/backend/config"
	"timeclock/backend/internal/repository"
	"timeclock/backend/internal/service"
	"timeclock/backend/internal/timeclock"
	"timeclock/backend/pkg/database"
	"timeclock/backend/pkg/jwt"
	applogger "timeclock/backend/pkg/logger"
	"timeclock/backend/pkg/redis"
)

var configPath string

// app 命令共享的依赖，按需懒加载
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
	rdb    *redis.Client
	repo   *repository.Repository
	engine *timeclock.Engine
	svc    *service.Service
}

func newApp(withRedis bool) (*app, error) {
	_ = godotenv.Load()
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, db: db, repo: repository.NewRepository(db)}

	var blacklist service.TokenBlacklist
	if withRedis {
		if rdb, err := redis.NewClient(&cfg.Redis, logger); err != nil {
			logger.Warn("Redis 不可用，跳过分布式锁", zap.Error(err))
		} else {
			a.rdb = rdb
			blacklist = rdb
		}
	}

	a.engine = service.NewEngine(&cfg.TimeClock)
	a.svc = service.NewService(cfg, a.repo, a.engine, jwt.NewManager(&cfg.Auth), blacklist, logger)
	return a, nil
}

func (a *app) Close() {
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
	if a.rdb != nil {
		a.rdb.Close()
	}
	a.logger.Sync()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "timeclockctl",
		Short:         "打卡系统运维命令行",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径")

	root.AddCommand(
		newMigrateCmd(),
		newSweepCmd(),
		newSummaryCmd(),
		newUserCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
