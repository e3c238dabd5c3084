package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 异常类型
const (
	IncidentTypeMissingClockOut = "missing_clock_out"
)

// 异常状态
const (
	IncidentStatusPending             = "pending"
	IncidentStatusCorrectionRequested = "correction_requested"
	IncidentStatusResolved            = "resolved"
	IncidentStatusRejected            = "rejected"
)

// Incident 考勤异常表，对应 incidents
type Incident struct {
	IncidentID        string     `gorm:"type:uuid;primaryKey"                          json:"incident_id"`
	UserID            string     `gorm:"type:uuid;not null;index"                      json:"user_id"`
	Type              string     `gorm:"type:varchar(30);not null"                     json:"type"`
	Status            string     `gorm:"type:varchar(30);not null;default:'pending'"   json:"status"`
	Date              string     `gorm:"type:varchar(10);not null"                     json:"date"` // YYYY-MM-DD（本地）
	TimeEntryID       string     `gorm:"type:uuid;not null;uniqueIndex"                json:"time_entry_id"`
	OpenTimestamp     time.Time  `gorm:"not null"                                      json:"open_timestamp"`
	ImpliedEnd        time.Time  `gorm:"not null"                                      json:"implied_end"`
	RequestedTime     *time.Time `                                                     json:"requested_time,omitempty"`
	Message           *string    `gorm:"type:text"                                     json:"message,omitempty"`
	ResolutionNote    *string    `gorm:"type:text"                                     json:"resolution_note,omitempty"`
	ResolvedBy        *string    `gorm:"type:uuid"                                     json:"resolved_by,omitempty"`
	ResolvedAt        *time.Time `                                                     json:"resolved_at,omitempty"`
	CorrectionEntryID *string    `gorm:"type:uuid"                                     json:"correction_entry_id,omitempty"`
	VersionedModel

	// 关联
	User *User `gorm:"foreignKey:UserID;references:UserID" json:"user,omitempty"`
}

// TableName 指定表名
func (Incident) TableName() string { return "incidents" }

// BeforeCreate 补齐主键
func (i *Incident) BeforeCreate(*gorm.DB) error {
	if i.IncidentID == "" {
		i.IncidentID = uuid.NewString()
	}
	return nil
}

// IsClosed 已处理（通过或驳回）
func (i *Incident) IsClosed() bool {
	return i.Status == IncidentStatusResolved || i.Status == IncidentStatusRejected
}
