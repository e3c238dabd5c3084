package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"timeclock/backend/internal/dto"
	"timeclock/backend/internal/model"
	"timeclock/backend/internal/repository"
	"timeclock/backend/internal/timeclock"
	pkgerrors "timeclock/backend/pkg/errors"
)

// ── 打卡模块业务错误 ──

var (
	ErrTimeEntryNotFound     = errors.New("打卡记录不存在")
	ErrAlreadyClockedIn      = errors.New("请先打下班卡再重新上班")
	ErrNotClockedIn          = errors.New("当前未上班，无法打下班卡")
	ErrFutureTimestamp       = errors.New("打卡时间不能晚于当前时间")
	ErrClockOutBeforeClockIn = errors.New("下班时间不能早于上班时间")
	ErrClockInBeforeLastOut  = errors.New("上班时间不能早于上一次下班时间")
	ErrNoChanges             = errors.New("没有需要修改的字段")
)

// futureTolerance 客户端时钟误差容忍
const futureTolerance = time.Minute

// TimeEntryService 打卡业务接口
type TimeEntryService interface {
	ClockIn(ctx context.Context, userID string, req *dto.ClockRequest, meta dto.RequestMeta) (*dto.TimeEntryResponse, error)
	ClockOut(ctx context.Context, userID string, req *dto.ClockRequest, meta dto.RequestMeta) (*dto.TimeEntryResponse, error)
	ListMine(ctx context.Context, userID string, req *dto.TimeEntryListRequest) ([]dto.TimeEntryResponse, int64, error)
	ListAll(ctx context.Context, req *dto.TimeEntryListRequest) ([]dto.TimeEntryResponse, int64, error)
	GetByID(ctx context.Context, id, callerID, callerRole string) (*dto.TimeEntryResponse, error)
	Update(ctx context.Context, id string, req *dto.UpdateTimeEntryRequest, adminID string, meta dto.RequestMeta) (*dto.TimeEntryResponse, error)
	Delete(ctx context.Context, id, adminID string, meta dto.RequestMeta) error
	GetDailySummaries(ctx context.Context, userID string, req *dto.DateRangeRequest) (*dto.PeriodSummaryResponse, error)
	GetTodayStatus(ctx context.Context, userID string) (*dto.TodayStatusResponse, error)
}

type timeEntryService struct {
	repo         *repository.Repository
	engine       *timeclock.Engine
	audit        AuditService
	lookbackDays int
	logger       *zap.Logger
}

// NewTimeEntryService 创建 TimeEntryService 实例
func NewTimeEntryService(
	repo *repository.Repository,
	engine *timeclock.Engine,
	audit AuditService,
	lookbackDays int,
	logger *zap.Logger,
) TimeEntryService {
	return &timeEntryService{
		repo:         repo,
		engine:       engine,
		audit:        audit,
		lookbackDays: lookbackDays,
		logger:       logger,
	}
}

// ────────────────────── ClockIn / ClockOut ──────────────────────

func (s *timeEntryService) ClockIn(ctx context.Context, userID string, req *dto.ClockRequest, meta dto.RequestMeta) (*dto.TimeEntryResponse, error) {
	last, err := s.lastEntry(ctx, userID)
	if err != nil {
		return nil, err
	}
	if last != nil && last.EntryType == string(timeclock.KindClockIn) {
		return nil, ErrAlreadyClockedIn
	}
	return s.record(ctx, userID, timeclock.KindClockIn, last, req, meta)
}

func (s *timeEntryService) ClockOut(ctx context.Context, userID string, req *dto.ClockRequest, meta dto.RequestMeta) (*dto.TimeEntryResponse, error) {
	last, err := s.lastEntry(ctx, userID)
	if err != nil {
		return nil, err
	}
	if last == nil || last.EntryType != string(timeclock.KindClockIn) {
		return nil, ErrNotClockedIn
	}
	return s.record(ctx, userID, timeclock.KindClockOut, last, req, meta)
}

func (s *timeEntryService) lastEntry(ctx context.Context, userID string) (*model.TimeEntry, error) {
	last, err := s.repo.TimeEntry.GetLastByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		s.logger.Error("查询最近打卡失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	return last, nil
}

func (s *timeEntryService) record(
	ctx context.Context,
	userID string,
	kind timeclock.Kind,
	prev *model.TimeEntry,
	req *dto.ClockRequest,
	meta dto.RequestMeta,
) (*dto.TimeEntryResponse, error) {
	now := s.engine.Now()
	entry := &model.TimeEntry{
		UserID:    userID,
		EntryType: string(kind),
		Timestamp: now.UTC(),
		Status:    string(timeclock.StatusApproved),
		IPAddress: strPtr(meta.IP),
		UserAgent: strPtr(meta.UserAgent),
	}
	entry.CreatedBy = &userID

	if req != nil {
		if req.Timestamp != nil {
			if req.Timestamp.After(now.Add(futureTolerance)) {
				return nil, ErrFutureTimestamp
			}
			entry.Timestamp = req.Timestamp.UTC()
			entry.IsManual = true
		}
		entry.Latitude = req.Latitude
		entry.Longitude = req.Longitude
		entry.Notes = req.Notes
	}

	// 新记录不得早于最近一条，保证存储中的打卡流有序
	if prev != nil && entry.Timestamp.Before(prev.Timestamp) {
		if kind == timeclock.KindClockIn {
			return nil, ErrClockInBeforeLastOut
		}
		return nil, ErrClockOutBeforeClockIn
	}

	if err := s.repo.TimeEntry.Create(ctx, entry); err != nil {
		s.logger.Error("写入打卡记录失败",
			zap.String("user_id", userID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return nil, err
	}

	resp := toTimeEntryResponse(entry)
	action := model.AuditActionClockIn
	if kind == timeclock.KindClockOut {
		action = model.AuditActionClockOut
	}
	s.audit.Log(ctx, AuditEntry{
		ActorID:    userID,
		Action:     action,
		EntityType: model.AuditEntityTimeEntry,
		EntityID:   entry.EntryID,
		New:        resp,
		Meta:       meta,
	})

	s.logger.Info("打卡成功",
		zap.String("user_id", userID),
		zap.String("kind", string(kind)),
		zap.Bool("manual", entry.IsManual),
	)
	return resp, nil
}

// ────────────────────── List / Get ──────────────────────

func (s *timeEntryService) ListMine(ctx context.Context, userID string, req *dto.TimeEntryListRequest) ([]dto.TimeEntryResponse, int64, error) {
	scoped := *req
	scoped.UserID = userID
	return s.list(ctx, &scoped)
}

func (s *timeEntryService) ListAll(ctx context.Context, req *dto.TimeEntryListRequest) ([]dto.TimeEntryResponse, int64, error) {
	return s.list(ctx, req)
}

func (s *timeEntryService) list(ctx context.Context, req *dto.TimeEntryListRequest) ([]dto.TimeEntryResponse, int64, error) {
	from, to, err := optionalRange(s.engine, &req.DateRangeRequest)
	if err != nil {
		return nil, 0, err
	}

	entries, total, err := s.repo.TimeEntry.List(ctx, repository.TimeEntryFilter{
		UserID:    req.UserID,
		EntryType: req.EntryType,
		Status:    req.Status,
		From:      from,
		To:        to,
	}, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询打卡记录失败", zap.Error(err))
		return nil, 0, err
	}

	return toTimeEntryResponses(entries), total, nil
}

func (s *timeEntryService) GetByID(ctx context.Context, id, callerID, callerRole string) (*dto.TimeEntryResponse, error) {
	entry, err := s.getEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if callerRole != model.RoleAdmin && entry.UserID != callerID {
		return nil, ErrNoPermission
	}
	return toTimeEntryResponse(entry), nil
}

func (s *timeEntryService) getEntry(ctx context.Context, id string) (*model.TimeEntry, error) {
	entry, err := s.repo.TimeEntry.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTimeEntryNotFound
		}
		s.logger.Error("查询打卡记录失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return entry, nil
}

// ────────────────────── Update ──────────────────────

// applyTimeEntryUpdate 基于当前记录生成修正后的新值，不修改入参。
// 首次修改时间戳时保留原始时间戳。
func applyTimeEntryUpdate(current model.TimeEntry, req *dto.UpdateTimeEntryRequest, adminID string) (model.TimeEntry, bool) {
	next := current
	changed := false

	if req.Timestamp != nil && !req.Timestamp.Equal(current.Timestamp) {
		if current.OriginalTimestamp == nil {
			original := current.Timestamp
			next.OriginalTimestamp = &original
		}
		next.Timestamp = req.Timestamp.UTC()
		changed = true
	}
	if req.EntryType != nil && *req.EntryType != current.EntryType {
		next.EntryType = *req.EntryType
		changed = true
	}
	if req.Notes != nil && (current.Notes == nil || *req.Notes != *current.Notes) {
		notes := *req.Notes
		next.Notes = &notes
		changed = true
	}

	next.Status = string(timeclock.StatusModified)
	if req.Status != nil {
		next.Status = *req.Status
		changed = changed || *req.Status != current.Status
	}

	reason := req.Reason
	next.ModificationReason = &reason
	next.ModifiedBy = &adminID
	next.UpdatedBy = &adminID
	return next, changed
}

func (s *timeEntryService) Update(ctx context.Context, id string, req *dto.UpdateTimeEntryRequest, adminID string, meta dto.RequestMeta) (*dto.TimeEntryResponse, error) {
	current, err := s.getEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Version != current.Version {
		return nil, pkgerrors.ErrOptimisticLock
	}

	next, changed := applyTimeEntryUpdate(*current, req, adminID)
	if !changed {
		return nil, ErrNoChanges
	}

	if err := s.repo.TimeEntry.Update(ctx, &next); err != nil {
		if !errors.Is(err, pkgerrors.ErrOptimisticLock) {
			s.logger.Error("修正打卡记录失败", zap.String("id", id), zap.Error(err))
		}
		return nil, err
	}

	resp := toTimeEntryResponse(&next)
	s.audit.Log(ctx, AuditEntry{
		ActorID:    adminID,
		Action:     model.AuditActionUpdate,
		EntityType: model.AuditEntityTimeEntry,
		EntityID:   id,
		Old:        toTimeEntryResponse(current),
		New:        resp,
		Meta:       meta,
	})
	return resp, nil
}

// ────────────────────── Delete ──────────────────────

func (s *timeEntryService) Delete(ctx context.Context, id, adminID string, meta dto.RequestMeta) error {
	entry, err := s.getEntry(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.TimeEntry.Delete(ctx, id, adminID); err != nil {
		s.logger.Error("删除打卡记录失败", zap.String("id", id), zap.Error(err))
		return err
	}

	s.audit.Log(ctx, AuditEntry{
		ActorID:    adminID,
		Action:     model.AuditActionDelete,
		EntityType: model.AuditEntityTimeEntry,
		EntityID:   id,
		Old:        toTimeEntryResponse(entry),
		Meta:       meta,
	})
	return nil
}

// ────────────────────── Summaries ──────────────────────

func (s *timeEntryService) GetDailySummaries(ctx context.Context, userID string, req *dto.DateRangeRequest) (*dto.PeriodSummaryResponse, error) {
	rng, err := resolveDayRange(s.engine, req, s.lookbackDays)
	if err != nil {
		return nil, err
	}

	entries, err := s.repo.TimeEntry.FetchRange(ctx, userID, rng.From, rng.To)
	if err != nil {
		s.logger.Error("读取打卡区间失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	summary, err := s.engine.Summarize(model.ToEvents(entries))
	if err != nil {
		s.logger.Error("汇总打卡记录失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	return toPeriodSummaryResponse(summary, rng.StartDay, rng.EndDay), nil
}

func (s *timeEntryService) GetTodayStatus(ctx context.Context, userID string) (*dto.TodayStatusResponse, error) {
	now := s.engine.Now()
	from, to := s.engine.DayRange(now, now)

	entries, err := s.repo.TimeEntry.FetchRange(ctx, userID, from, to)
	if err != nil {
		s.logger.Error("读取今日打卡失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	last, err := s.lastEntry(ctx, userID)
	if err != nil {
		return nil, err
	}

	today := s.engine.Today()
	day, err := s.engine.SummarizeDay(today, model.ToEvents(entries))
	if err != nil {
		s.logger.Error("汇总今日打卡失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	resp := &dto.TodayStatusResponse{
		Date:            today,
		IsClockedIn:     last != nil && last.EntryType == string(timeclock.KindClockIn),
		TodayEntries:    toTimeEntryResponses(entries),
		TotalHoursToday: day.TotalHours,
	}
	if last != nil {
		resp.LastEntry = toTimeEntryResponse(last)
	}
	return resp, nil
}
