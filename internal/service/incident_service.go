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

// ── 考勤异常模块业务错误 ──

var (
	ErrIncidentNotFound     = errors.New("考勤异常不存在")
	ErrIncidentClosed       = errors.New("该异常已处理")
	ErrInvalidRequestedTime = errors.New("下班时间必须晚于上班时间且不晚于当日结束")
)

// IncidentService 考勤异常业务接口
type IncidentService interface {
	// CreateFromReport 由未闭合日报告生成异常；同一上班记录已有异常时返回 created=false
	CreateFromReport(ctx context.Context, report timeclock.OpenDayReport) (incident *model.Incident, created bool, err error)
	// DetectAndReportOpenDays 检测单个用户回溯窗口内的未闭合日，返回新建异常数
	DetectAndReportOpenDays(ctx context.Context, userID string) (int, error)
	// SweepAll 对所有在职用户执行检测，单个用户失败不中断
	SweepAll(ctx context.Context) (*dto.SweepResponse, error)

	List(ctx context.Context, req *dto.IncidentListRequest) ([]dto.IncidentResponse, int64, error)
	GetByID(ctx context.Context, id, callerID, callerRole string) (*dto.IncidentResponse, error)
	ListMine(ctx context.Context, userID string, req *dto.IncidentListRequest) ([]dto.IncidentResponse, int64, error)
	ListMyPending(ctx context.Context, userID string) ([]dto.IncidentResponse, error)
	ListMyYesterdayPending(ctx context.Context, userID string) ([]dto.IncidentResponse, error)
	PendingReviews(ctx context.Context, req *dto.PaginationRequest) ([]dto.IncidentResponse, int64, error)
	Stats(ctx context.Context, userID string) (*dto.IncidentStatsResponse, error)
	PendingCount(ctx context.Context) (int64, error)

	RequestCorrection(ctx context.Context, id, userID string, req *dto.RequestCorrectionRequest, meta dto.RequestMeta) (*dto.IncidentResponse, error)
	Resolve(ctx context.Context, id string, req *dto.ResolveIncidentRequest, adminID string, meta dto.RequestMeta) (*dto.IncidentResponse, error)
}

type incidentService struct {
	repo         *repository.Repository
	engine       *timeclock.Engine
	audit        AuditService
	lookbackDays int
	logger       *zap.Logger
}

// NewIncidentService 创建 IncidentService 实例
func NewIncidentService(
	repo *repository.Repository,
	engine *timeclock.Engine,
	audit AuditService,
	lookbackDays int,
	logger *zap.Logger,
) IncidentService {
	return &incidentService{
		repo:         repo,
		engine:       engine,
		audit:        audit,
		lookbackDays: lookbackDays,
		logger:       logger,
	}
}

// 未关闭的状态
var openIncidentStatuses = []string{
	model.IncidentStatusPending,
	model.IncidentStatusCorrectionRequested,
}

// ═══════════════════════════════════════════════════════════
// 检测与上报
// ═══════════════════════════════════════════════════════════

func (s *incidentService) CreateFromReport(ctx context.Context, report timeclock.OpenDayReport) (*model.Incident, bool, error) {
	existing, err := s.repo.Incident.GetByTimeEntry(ctx, report.OpenEntryID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	incident := &model.Incident{
		UserID:        report.UserID,
		Type:          model.IncidentTypeMissingClockOut,
		Status:        model.IncidentStatusPending,
		Date:          report.Date,
		TimeEntryID:   report.OpenEntryID,
		OpenTimestamp: report.OpenTimestamp.UTC(),
		ImpliedEnd:    report.ImpliedEndOfDay.UTC(),
	}
	if err := s.repo.Incident.Create(ctx, incident); err != nil {
		return nil, false, err
	}

	s.audit.Log(ctx, AuditEntry{
		Action:     model.AuditActionCreate,
		EntityType: model.AuditEntityIncident,
		EntityID:   incident.IncidentID,
		New:        toIncidentResponse(incident),
	})
	s.logger.Info("检测到未打下班卡",
		zap.String("user_id", report.UserID),
		zap.String("date", report.Date),
		zap.String("time_entry_id", report.OpenEntryID),
	)
	return incident, true, nil
}

func (s *incidentService) DetectAndReportOpenDays(ctx context.Context, userID string) (int, error) {
	now := s.engine.Now()
	yesterday := now.AddDate(0, 0, -1)
	from, to := s.engine.DayRange(now.AddDate(0, 0, -s.lookbackDays), yesterday)

	entries, err := s.repo.TimeEntry.FetchRange(ctx, userID, from, to)
	if err != nil {
		return 0, err
	}

	reports, err := s.engine.DetectOpenDays(userID, model.ToEvents(entries))
	if err != nil {
		return 0, err
	}

	created := 0
	for _, report := range reports {
		_, isNew, err := s.CreateFromReport(ctx, report)
		if err != nil {
			return created, err
		}
		if isNew {
			created++
		}
	}
	return created, nil
}

func (s *incidentService) SweepAll(ctx context.Context) (*dto.SweepResponse, error) {
	userIDs, err := s.repo.User.ListActiveIDs(ctx)
	if err != nil {
		s.logger.Error("查询在职用户失败", zap.Error(err))
		return nil, err
	}

	result := &dto.SweepResponse{Users: len(userIDs)}
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		n, err := s.DetectAndReportOpenDays(ctx, userID)
		result.Reported += n
		if err != nil {
			result.Failed++
			s.logger.Warn("用户巡检失败，继续处理下一位",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("日终巡检完成",
		zap.Int("users", result.Users),
		zap.Int("reported", result.Reported),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// ═══════════════════════════════════════════════════════════
// 查询
// ═══════════════════════════════════════════════════════════

func (s *incidentService) List(ctx context.Context, req *dto.IncidentListRequest) ([]dto.IncidentResponse, int64, error) {
	from, to, err := optionalRange(s.engine, &req.DateRangeRequest)
	if err != nil {
		return nil, 0, err
	}

	filter := repository.IncidentFilter{UserID: req.UserID, From: from, To: to}
	if req.Status != "" {
		filter.Statuses = []string{req.Status}
	}
	return s.list(ctx, filter, req.GetOffset(), req.GetPageSize())
}

func (s *incidentService) ListMine(ctx context.Context, userID string, req *dto.IncidentListRequest) ([]dto.IncidentResponse, int64, error) {
	scoped := *req
	scoped.UserID = userID
	return s.List(ctx, &scoped)
}

func (s *incidentService) ListMyPending(ctx context.Context, userID string) ([]dto.IncidentResponse, error) {
	list, _, err := s.list(ctx, repository.IncidentFilter{
		UserID:   userID,
		Statuses: openIncidentStatuses,
	}, 0, 100)
	return list, err
}

func (s *incidentService) ListMyYesterdayPending(ctx context.Context, userID string) ([]dto.IncidentResponse, error) {
	list, _, err := s.list(ctx, repository.IncidentFilter{
		UserID:   userID,
		Statuses: []string{model.IncidentStatusPending},
		Date:     s.engine.DayKey(s.engine.Now().AddDate(0, 0, -1)),
	}, 0, 100)
	return list, err
}

func (s *incidentService) PendingReviews(ctx context.Context, req *dto.PaginationRequest) ([]dto.IncidentResponse, int64, error) {
	return s.list(ctx, repository.IncidentFilter{
		Statuses: []string{model.IncidentStatusCorrectionRequested},
	}, req.GetOffset(), req.GetPageSize())
}

func (s *incidentService) list(ctx context.Context, filter repository.IncidentFilter, offset, limit int) ([]dto.IncidentResponse, int64, error) {
	incidents, total, err := s.repo.Incident.List(ctx, filter, offset, limit)
	if err != nil {
		s.logger.Error("查询考勤异常失败", zap.Error(err))
		return nil, 0, err
	}
	return toIncidentResponses(incidents), total, nil
}

func (s *incidentService) GetByID(ctx context.Context, id, callerID, callerRole string) (*dto.IncidentResponse, error) {
	incident, err := s.getIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	if callerRole != model.RoleAdmin && incident.UserID != callerID {
		return nil, ErrNoPermission
	}
	return toIncidentResponse(incident), nil
}

func (s *incidentService) Stats(ctx context.Context, userID string) (*dto.IncidentStatsResponse, error) {
	counts, err := s.repo.Incident.CountByStatus(ctx, userID)
	if err != nil {
		s.logger.Error("统计考勤异常失败", zap.Error(err))
		return nil, err
	}

	stats := &dto.IncidentStatsResponse{
		Pending:             counts[model.IncidentStatusPending],
		CorrectionRequested: counts[model.IncidentStatusCorrectionRequested],
		Resolved:            counts[model.IncidentStatusResolved],
		Rejected:            counts[model.IncidentStatusRejected],
	}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

func (s *incidentService) PendingCount(ctx context.Context) (int64, error) {
	stats, err := s.Stats(ctx, "")
	if err != nil {
		return 0, err
	}
	return stats.Pending + stats.CorrectionRequested, nil
}

func (s *incidentService) getIncident(ctx context.Context, id string) (*model.Incident, error) {
	incident, err := s.repo.Incident.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIncidentNotFound
		}
		s.logger.Error("查询考勤异常失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return incident, nil
}

// ═══════════════════════════════════════════════════════════
// 更正与审核
// ═══════════════════════════════════════════════════════════

func (s *incidentService) RequestCorrection(ctx context.Context, id, userID string, req *dto.RequestCorrectionRequest, meta dto.RequestMeta) (*dto.IncidentResponse, error) {
	current, err := s.getIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.UserID != userID {
		return nil, ErrNoPermission
	}
	if current.IsClosed() {
		return nil, ErrIncidentClosed
	}
	if !validCorrectionTime(current, req.RequestedTime) {
		return nil, ErrInvalidRequestedTime
	}

	next := *current
	requested := req.RequestedTime.UTC()
	next.RequestedTime = &requested
	next.Message = strPtr(req.Message)
	next.Status = model.IncidentStatusCorrectionRequested
	next.UpdatedBy = &userID

	if err := s.repo.Incident.Update(ctx, &next); err != nil {
		if !errors.Is(err, pkgerrors.ErrOptimisticLock) {
			s.logger.Error("提交更正失败", zap.String("id", id), zap.Error(err))
		}
		return nil, err
	}

	resp := toIncidentResponse(&next)
	s.audit.Log(ctx, AuditEntry{
		ActorID:    userID,
		Action:     model.AuditActionUpdate,
		EntityType: model.AuditEntityIncident,
		EntityID:   id,
		Old:        toIncidentResponse(current),
		New:        resp,
		Meta:       meta,
	})
	return resp, nil
}

func (s *incidentService) Resolve(ctx context.Context, id string, req *dto.ResolveIncidentRequest, adminID string, meta dto.RequestMeta) (*dto.IncidentResponse, error) {
	current, err := s.getIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.IsClosed() {
		return nil, ErrIncidentClosed
	}
	if req.Version != current.Version {
		return nil, pkgerrors.ErrOptimisticLock
	}

	now := s.engine.Now().UTC()
	next := *current
	next.ResolvedBy = &adminID
	next.ResolvedAt = &now
	next.ResolutionNote = strPtr(req.Note)
	next.UpdatedBy = &adminID

	var correction *model.TimeEntry
	switch req.Decision {
	case dto.DecisionApprove:
		clockOut := correctionTime(current, req.ClockOutTime)
		if !validCorrectionTime(current, clockOut) {
			return nil, ErrInvalidRequestedTime
		}
		note := "考勤异常审核补录: " + current.IncidentID
		correction = &model.TimeEntry{
			UserID:    current.UserID,
			EntryType: string(timeclock.KindClockOut),
			Timestamp: clockOut.UTC(),
			IsManual:  true,
			Status:    string(timeclock.StatusApproved),
			Notes:     &note,
		}
		correction.CreatedBy = &adminID
		next.Status = model.IncidentStatusResolved
	default:
		next.Status = model.IncidentStatusRejected
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if correction != nil {
			if err := tx.TimeEntry.Create(ctx, correction); err != nil {
				return err
			}
			next.CorrectionEntryID = &correction.EntryID
		}
		return tx.Incident.Update(ctx, &next)
	})
	if err != nil {
		if !errors.Is(err, pkgerrors.ErrOptimisticLock) {
			s.logger.Error("审核考勤异常失败", zap.String("id", id), zap.Error(err))
		}
		return nil, err
	}

	resp := toIncidentResponse(&next)
	s.audit.Log(ctx, AuditEntry{
		ActorID:    adminID,
		Action:     model.AuditActionStatusChange,
		EntityType: model.AuditEntityIncident,
		EntityID:   id,
		Old:        toIncidentResponse(current),
		New:        resp,
		Meta:       meta,
	})
	if correction != nil {
		s.audit.Log(ctx, AuditEntry{
			ActorID:    adminID,
			Action:     model.AuditActionCreate,
			EntityType: model.AuditEntityTimeEntry,
			EntityID:   correction.EntryID,
			New:        toTimeEntryResponse(correction),
			Meta:       meta,
		})
	}

	s.logger.Info("考勤异常已审核",
		zap.String("id", id),
		zap.String("decision", req.Decision),
		zap.String("admin_id", adminID),
	)
	return resp, nil
}

// correctionTime 管理员指定 → 员工申请 → 当日结束
func correctionTime(incident *model.Incident, override *time.Time) time.Time {
	switch {
	case override != nil:
		return *override
	case incident.RequestedTime != nil:
		return *incident.RequestedTime
	default:
		return incident.ImpliedEnd
	}
}

// validCorrectionTime 补录的下班必须落在上班之后、当日结束之前，保证与上班同属一个自然日
func validCorrectionTime(incident *model.Incident, t time.Time) bool {
	return t.After(incident.OpenTimestamp) && !t.After(incident.ImpliedEnd)
}
