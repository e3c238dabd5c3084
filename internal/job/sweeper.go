// Package job 后台定时任务
package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"timeclock/backend/config"
	"timeclock/backend/internal/dto"
	"timeclock/backend/internal/service"
	pkgerrors "timeclock/backend/pkg/errors"
)

const sweepLockName = "timeclock:daily-sweep"

// Locker 跨实例互斥锁（Redis 实现见 pkg/redis）
type Locker interface {
	AcquireLock(ctx context.Context, name, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, token string) error
}

// Sweeper 日终巡检：按 cron 在本地时区触发，对所有在职用户检测未闭合日并生成考勤异常。
// 多实例部署时通过 Locker 保证同一时刻只有一个实例在巡检；locker 为 nil 时仅做进程内互斥。
type Sweeper struct {
	incidents service.IncidentService
	locker    Locker
	lockTTL   time.Duration
	cronExpr  string
	cron      *cron.Cron
	logger    *zap.Logger

	mu      sync.Mutex
	running bool
}

// NewSweeper 创建巡检任务，cron 表达式非法时返回错误
func NewSweeper(
	cfg *config.TimeClockConfig,
	incidents service.IncidentService,
	locker Locker,
	loc *time.Location,
	logger *zap.Logger,
) (*Sweeper, error) {
	ttl := cfg.SweepLockTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	cronLog := cronLogger{logger.Sugar()}
	s := &Sweeper{
		incidents: incidents,
		locker:    locker,
		lockTTL:   ttl,
		cronExpr:  cfg.SweepCron,
		logger:    logger,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
	}

	if _, err := s.cron.AddFunc(cfg.SweepCron, s.scheduled); err != nil {
		return nil, fmt.Errorf("解析巡检 cron 表达式失败: %w", err)
	}
	return s, nil
}

// Start 启动调度（非阻塞）
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("日终巡检已启动", zap.String("cron", s.cronExpr))
}

// Stop 停止调度并等待正在执行的巡检结束，ctx 到期则不再等待
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("等待巡检结束超时")
	}
}

func (s *Sweeper) scheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), s.lockTTL)
	defer cancel()

	if _, err := s.RunOnce(ctx); err != nil {
		if errors.Is(err, pkgerrors.ErrLockBusy) {
			s.logger.Info("其他实例正在巡检，本次跳过")
			return
		}
		s.logger.Error("日终巡检失败", zap.Error(err))
	}
}

// RunOnce 立即对所有在职用户巡检一次
func (s *Sweeper) RunOnce(ctx context.Context) (*dto.SweepResponse, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	result, err := s.incidents.SweepAll(ctx)
	if err != nil {
		return result, err
	}
	s.logger.Info("巡检结束", zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

// TriggerNow 管理端手动触发；userID 为空时巡检全部用户
func (s *Sweeper) TriggerNow(ctx context.Context, userID string) (*dto.SweepResponse, error) {
	if userID == "" {
		return s.RunOnce(ctx)
	}
	n, err := s.incidents.DetectAndReportOpenDays(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &dto.SweepResponse{Users: 1, Reported: n}, nil
}

func (s *Sweeper) acquire(ctx context.Context) (func(), error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, pkgerrors.ErrLockBusy
	}
	s.running = true
	s.mu.Unlock()

	local := func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}
	if s.locker == nil {
		return local, nil
	}

	token := uuid.NewString()
	ok, err := s.locker.AcquireLock(ctx, sweepLockName, token, s.lockTTL)
	if err != nil {
		local()
		return nil, fmt.Errorf("获取巡检锁失败: %w", err)
	}
	if !ok {
		local()
		return nil, pkgerrors.ErrLockBusy
	}

	return func() {
		// 巡检 ctx 可能已超时，释放使用独立 ctx
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.locker.ReleaseLock(rctx, sweepLockName, token); err != nil {
			s.logger.Warn("释放巡检锁失败", zap.Error(err))
		}
		local()
	}, nil
}

// cronLogger 将 cron 内部日志接到 zap
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
