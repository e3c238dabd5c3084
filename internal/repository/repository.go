package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	db *gorm.DB

	User      UserRepository
	TimeEntry TimeEntryRepository
	Incident  IncidentRepository
	AuditLog  AuditLogRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:        db,
		User:      NewUserRepo(db),
		TimeEntry: NewTimeEntryRepo(db),
		Incident:  NewIncidentRepo(db),
		AuditLog:  NewAuditLogRepo(db),
	}
}

// Transaction 在同一事务内执行 fn，fn 返回错误时回滚。
// 未绑定数据库（单元测试注入的 mock 聚合）时直接在当前聚合上执行。
func (r *Repository) Transaction(ctx context.Context, fn func(txRepo *Repository) error) error {
	if r.db == nil {
		return fn(r)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}

// Ping 数据库连通性检查
func (r *Repository) Ping(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
