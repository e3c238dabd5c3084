package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 审计动作
const (
	AuditActionCreate         = "create"
	AuditActionUpdate         = "update"
	AuditActionDelete         = "delete"
	AuditActionLogin          = "login"
	AuditActionLogout         = "logout"
	AuditActionClockIn        = "clock_in"
	AuditActionClockOut       = "clock_out"
	AuditActionPasswordChange = "password_change"
	AuditActionStatusChange   = "status_change"
)

// 审计实体
const (
	AuditEntityUser      = "user"
	AuditEntityTimeEntry = "time_entry"
	AuditEntityIncident  = "incident"
	AuditEntitySession   = "session"
	AuditEntitySystem    = "system"
)

// AuditLog 审计日志表，对应 audit_logs（只追加）
type AuditLog struct {
	AuditID    string    `gorm:"type:uuid;primaryKey"              json:"audit_id"`
	UserID     *string   `gorm:"type:uuid;index"                   json:"user_id,omitempty"`
	Action     string    `gorm:"type:varchar(30);not null;index"   json:"action"`
	EntityType string    `gorm:"type:varchar(30);not null"         json:"entity_type"`
	EntityID   *string   `gorm:"type:varchar(64)"                  json:"entity_id,omitempty"`
	OldValues  *string   `gorm:"type:text"                         json:"old_values,omitempty"` // JSON
	NewValues  *string   `gorm:"type:text"                         json:"new_values,omitempty"` // JSON
	IPAddress  *string   `gorm:"type:varchar(64)"                  json:"ip_address,omitempty"`
	UserAgent  *string   `gorm:"type:text"                         json:"user_agent,omitempty"`
	CreatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

// TableName 指定表名
func (AuditLog) TableName() string { return "audit_logs" }

// BeforeCreate 补齐主键
func (a *AuditLog) BeforeCreate(*gorm.DB) error {
	if a.AuditID == "" {
		a.AuditID = uuid.NewString()
	}
	return nil
}

// AllModels 需要建表的模型（SQLite 走 AutoMigrate）
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&TimeEntry{},
		&Incident{},
		&AuditLog{},
	}
}
