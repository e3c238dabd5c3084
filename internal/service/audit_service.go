package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"timeclock/backend/internal/dto"
	"timeclock/backend/internal/model"
	"timeclock/backend/internal/repository"
	"timeclock/backend/internal/timeclock"
)

// AuditEntry 一条待写入的审计记录。Old/New 为变更前后的快照值
type AuditEntry struct {
	ActorID    string
	Action     string
	EntityType string
	EntityID   string
	Old        interface{}
	New        interface{}
	Meta       dto.RequestMeta
}

// AuditService 审计日志业务接口
type AuditService interface {
	// Log 尽力写入，失败只记日志，不影响调用方
	Log(ctx context.Context, entry AuditEntry)
	List(ctx context.Context, req *dto.AuditLogListRequest) ([]dto.AuditLogResponse, int64, error)
	// ListByEntity 某个实体的完整变更历史，按时间倒序
	ListByEntity(ctx context.Context, entityType, entityID string, page *dto.PaginationRequest) ([]dto.AuditLogResponse, int64, error)
}

type auditService struct {
	repo   *repository.Repository
	engine *timeclock.Engine
	logger *zap.Logger
}

// NewAuditService 创建 AuditService 实例
func NewAuditService(repo *repository.Repository, engine *timeclock.Engine, logger *zap.Logger) AuditService {
	return &auditService{repo: repo, engine: engine, logger: logger}
}

func (s *auditService) Log(ctx context.Context, entry AuditEntry) {
	log := &model.AuditLog{
		UserID:     strPtr(entry.ActorID),
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   strPtr(entry.EntityID),
		OldValues:  s.marshal(entry.Old),
		NewValues:  s.marshal(entry.New),
		IPAddress:  strPtr(entry.Meta.IP),
		UserAgent:  strPtr(entry.Meta.UserAgent),
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.repo.AuditLog.Create(ctx, log); err != nil {
		s.logger.Warn("写入审计日志失败",
			zap.String("action", entry.Action),
			zap.String("entity_type", entry.EntityType),
			zap.String("entity_id", entry.EntityID),
			zap.Error(err),
		)
	}
}

func (s *auditService) marshal(v interface{}) *string {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("审计快照序列化失败", zap.Error(err))
		return nil
	}
	str := string(b)
	return &str
}

func (s *auditService) List(ctx context.Context, req *dto.AuditLogListRequest) ([]dto.AuditLogResponse, int64, error) {
	from, to, err := optionalRange(s.engine, &req.DateRangeRequest)
	if err != nil {
		return nil, 0, err
	}

	logs, total, err := s.repo.AuditLog.List(ctx, repository.AuditLogFilter{
		UserID:     req.UserID,
		Action:     req.Action,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		From:       from,
		To:         to,
	}, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询审计日志失败", zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		result = append(result, dto.AuditLogResponse{
			ID:         l.AuditID,
			UserID:     l.UserID,
			Action:     l.Action,
			EntityType: l.EntityType,
			EntityID:   l.EntityID,
			OldValues:  l.OldValues,
			NewValues:  l.NewValues,
			IPAddress:  l.IPAddress,
			UserAgent:  l.UserAgent,
			CreatedAt:  formatTime(l.CreatedAt),
		})
	}
	return result, total, nil
}

func (s *auditService) ListByEntity(ctx context.Context, entityType, entityID string, page *dto.PaginationRequest) ([]dto.AuditLogResponse, int64, error) {
	req := &dto.AuditLogListRequest{EntityType: entityType, EntityID: entityID}
	if page != nil {
		req.PaginationRequest = *page
	}
	return s.List(ctx, req)
}
