package service

import (
	"errors"

	"go.uber.org/zap"

	"timeclock/backend/config"
	"timeclock/backend/internal/repository"
	"timeclock/backend/internal/timeclock"
	"timeclock/backend/pkg/jwt"
)

// ── 跨模块通用业务错误 ──

var (
	ErrNoPermission = errors.New("无权操作")
	ErrUserNotFound = errors.New("用户不存在")
)

// Service 所有 Service 的聚合入口
type Service struct {
	Auth      AuthService
	User      UserService
	TimeEntry TimeEntryService
	Incident  IncidentService
	Audit     AuditService
	Export    ExportService
}

// NewService 创建 Service 聚合。blacklist 可为 nil（未启用 Redis 时登出只记审计）
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	engine *timeclock.Engine,
	jwtMgr *jwt.Manager,
	blacklist TokenBlacklist,
	logger *zap.Logger,
) *Service {
	lookback := cfg.TimeClock.LookbackDays
	audit := NewAuditService(repo, engine, logger)

	return &Service{
		Auth:      NewAuthService(repo, jwtMgr, blacklist, audit, logger),
		User:      NewUserService(repo, audit, logger),
		TimeEntry: NewTimeEntryService(repo, engine, audit, lookback, logger),
		Incident:  NewIncidentService(repo, engine, audit, lookback, logger),
		Audit:     audit,
		Export:    NewExportService(repo, engine, lookback, logger),
	}
}

// NewEngine 按配置构造汇总引擎
func NewEngine(cfg *config.TimeClockConfig) *timeclock.Engine {
	return timeclock.NewEngine(timeclock.Options{UTCOffsetHours: cfg.UTCOffsetHours})
}
