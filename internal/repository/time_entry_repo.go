package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"timeclock/backend/internal/model"
	pkgerrors "timeclock/backend/pkg/errors"
)

// TimeEntryFilter 打卡记录筛选条件（零值表示不限）
type TimeEntryFilter struct {
	UserID    string
	EntryType string
	Status    string
	From      *time.Time
	To        *time.Time
}

// TimeEntryRepository 打卡记录数据访问接口
type TimeEntryRepository interface {
	Create(ctx context.Context, entry *model.TimeEntry) error
	GetByID(ctx context.Context, id string) (*model.TimeEntry, error)
	// GetLastByUser 用户最近一条打卡（按时间戳）
	GetLastByUser(ctx context.Context, userID string) (*model.TimeEntry, error)
	// FetchRange 返回 [from, to] 内的记录，按时间戳升序
	FetchRange(ctx context.Context, userID string, from, to time.Time) ([]model.TimeEntry, error)
	List(ctx context.Context, filter TimeEntryFilter, offset, limit int) ([]model.TimeEntry, int64, error)
	Update(ctx context.Context, entry *model.TimeEntry) error
	Delete(ctx context.Context, id string, deletedBy string) error
}

type timeEntryRepo struct {
	db *gorm.DB
}

// NewTimeEntryRepo 创建 TimeEntryRepository 实例
func NewTimeEntryRepo(db *gorm.DB) TimeEntryRepository {
	return &timeEntryRepo{db: db}
}

func (r *timeEntryRepo) Create(ctx context.Context, entry *model.TimeEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *timeEntryRepo) GetByID(ctx context.Context, id string) (*model.TimeEntry, error) {
	var entry model.TimeEntry
	err := r.db.WithContext(ctx).
		Where("entry_id = ?", id).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *timeEntryRepo) GetLastByUser(ctx context.Context, userID string) (*model.TimeEntry, error) {
	var entry model.TimeEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC, created_at DESC").
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *timeEntryRepo) FetchRange(ctx context.Context, userID string, from, to time.Time) ([]model.TimeEntry, error) {
	var entries []model.TimeEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND timestamp BETWEEN ? AND ?", userID, from, to).
		Order("timestamp ASC, created_at ASC").
		Find(&entries).Error
	return entries, err
}

func (r *timeEntryRepo) List(ctx context.Context, filter TimeEntryFilter, offset, limit int) ([]model.TimeEntry, int64, error) {
	var entries []model.TimeEntry
	var total int64

	db := r.db.WithContext(ctx).Model(&model.TimeEntry{})
	if filter.UserID != "" {
		db = db.Where("user_id = ?", filter.UserID)
	}
	if filter.EntryType != "" {
		db = db.Where("entry_type = ?", filter.EntryType)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.From != nil {
		db = db.Where("timestamp >= ?", *filter.From)
	}
	if filter.To != nil {
		db = db.Where("timestamp <= ?", *filter.To)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Preload("User").
		Offset(offset).Limit(limit).
		Order("timestamp DESC").
		Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

func (r *timeEntryRepo) Update(ctx context.Context, entry *model.TimeEntry) error {
	oldVersion := entry.Version
	result := r.db.WithContext(ctx).
		Model(&model.TimeEntry{}).
		Where("entry_id = ? AND version = ?", entry.EntryID, oldVersion).
		Updates(map[string]interface{}{
			"entry_type":          entry.EntryType,
			"timestamp":           entry.Timestamp,
			"original_timestamp":  entry.OriginalTimestamp,
			"status":              entry.Status,
			"modified_by":         entry.ModifiedBy,
			"modification_reason": entry.ModificationReason,
			"notes":               entry.Notes,
			"updated_by":          entry.UpdatedBy,
			"version":             oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	entry.Version = oldVersion + 1
	return nil
}

func (r *timeEntryRepo) Delete(ctx context.Context, id string, deletedBy string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.TimeEntry{}).
			Where("entry_id = ?", id).
			Update("deleted_by", deletedBy).Error; err != nil {
			return err
		}
		return tx.Where("entry_id = ?", id).Delete(&model.TimeEntry{}).Error
	})
}
