package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"timeclock/backend/internal/model"
	pkgerrors "timeclock/backend/pkg/errors"
)

// IncidentFilter 考勤异常筛选条件
type IncidentFilter struct {
	UserID   string
	Statuses []string
	Date     string
	From     *time.Time
	To       *time.Time
}

// IncidentRepository 考勤异常数据访问接口
type IncidentRepository interface {
	Create(ctx context.Context, incident *model.Incident) error
	GetByID(ctx context.Context, id string) (*model.Incident, error)
	// GetByTimeEntry 查找某条上班记录对应的异常（每条上班记录至多一条），用于去重
	GetByTimeEntry(ctx context.Context, timeEntryID string) (*model.Incident, error)
	List(ctx context.Context, filter IncidentFilter, offset, limit int) ([]model.Incident, int64, error)
	CountByStatus(ctx context.Context, userID string) (map[string]int64, error)
	Update(ctx context.Context, incident *model.Incident) error
}

type incidentRepo struct {
	db *gorm.DB
}

// NewIncidentRepo 创建 IncidentRepository 实例
func NewIncidentRepo(db *gorm.DB) IncidentRepository {
	return &incidentRepo{db: db}
}

func (r *incidentRepo) Create(ctx context.Context, incident *model.Incident) error {
	return r.db.WithContext(ctx).Create(incident).Error
}

func (r *incidentRepo) GetByID(ctx context.Context, id string) (*model.Incident, error) {
	var incident model.Incident
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("incident_id = ?", id).
		First(&incident).Error
	if err != nil {
		return nil, err
	}
	return &incident, nil
}

func (r *incidentRepo) GetByTimeEntry(ctx context.Context, timeEntryID string) (*model.Incident, error) {
	var incident model.Incident
	err := r.db.WithContext(ctx).
		Where("time_entry_id = ?", timeEntryID).
		Order("created_at DESC").
		First(&incident).Error
	if err != nil {
		return nil, err
	}
	return &incident, nil
}

func (r *incidentRepo) List(ctx context.Context, filter IncidentFilter, offset, limit int) ([]model.Incident, int64, error) {
	var incidents []model.Incident
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Incident{})
	if filter.UserID != "" {
		db = db.Where("user_id = ?", filter.UserID)
	}
	if len(filter.Statuses) > 0 {
		db = db.Where("status IN ?", filter.Statuses)
	}
	if filter.Date != "" {
		db = db.Where("date = ?", filter.Date)
	}
	if filter.From != nil {
		db = db.Where("open_timestamp >= ?", *filter.From)
	}
	if filter.To != nil {
		db = db.Where("open_timestamp <= ?", *filter.To)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Preload("User").
		Offset(offset).Limit(limit).
		Order("open_timestamp DESC").
		Find(&incidents).Error; err != nil {
		return nil, 0, err
	}

	return incidents, total, nil
}

func (r *incidentRepo) CountByStatus(ctx context.Context, userID string) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}

	db := r.db.WithContext(ctx).Model(&model.Incident{})
	if userID != "" {
		db = db.Where("user_id = ?", userID)
	}
	if err := db.Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *incidentRepo) Update(ctx context.Context, incident *model.Incident) error {
	oldVersion := incident.Version
	result := r.db.WithContext(ctx).
		Model(&model.Incident{}).
		Where("incident_id = ? AND version = ?", incident.IncidentID, oldVersion).
		Updates(map[string]interface{}{
			"status":              incident.Status,
			"requested_time":      incident.RequestedTime,
			"message":             incident.Message,
			"resolution_note":     incident.ResolutionNote,
			"resolved_by":         incident.ResolvedBy,
			"resolved_at":         incident.ResolvedAt,
			"correction_entry_id": incident.CorrectionEntryID,
			"updated_by":          incident.UpdatedBy,
			"version":             oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	incident.Version = oldVersion + 1
	return nil
}
