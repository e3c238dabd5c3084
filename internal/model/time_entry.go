package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"timeclock/backend/internal/timeclock"
)

// TimeEntry 打卡记录表，对应 time_entries（追加写入，管理员修正产生新版本）
type TimeEntry struct {
	EntryID            string     `gorm:"type:uuid;primaryKey"                            json:"entry_id"`
	UserID             string     `gorm:"type:uuid;not null;index:idx_time_entries_user_ts" json:"user_id"`
	EntryType          string     `gorm:"type:varchar(20);not null"                       json:"entry_type"` // clock_in | clock_out
	Timestamp          time.Time  `gorm:"not null;index:idx_time_entries_user_ts"         json:"timestamp"`
	OriginalTimestamp  *time.Time `                                                       json:"original_timestamp,omitempty"`
	IsManual           bool       `gorm:"not null;default:false"                          json:"is_manual"`
	Status             string     `gorm:"type:varchar(20);not null;default:'approved'"    json:"status"` // approved | modified | pending | rejected
	ModifiedBy         *string    `gorm:"type:uuid"                                       json:"modified_by,omitempty"`
	ModificationReason *string    `gorm:"type:text"                                       json:"modification_reason,omitempty"`
	IPAddress          *string    `gorm:"type:varchar(64)"                                json:"ip_address,omitempty"`
	UserAgent          *string    `gorm:"type:text"                                       json:"user_agent,omitempty"`
	Latitude           *float64   `                                                       json:"latitude,omitempty"`
	Longitude          *float64   `                                                       json:"longitude,omitempty"`
	Notes              *string    `gorm:"type:text"                                       json:"notes,omitempty"`
	VersionedModel

	// 关联
	User *User `gorm:"foreignKey:UserID;references:UserID" json:"user,omitempty"`
}

// TableName 指定表名
func (TimeEntry) TableName() string { return "time_entries" }

// BeforeCreate 补齐主键
func (e *TimeEntry) BeforeCreate(*gorm.DB) error {
	if e.EntryID == "" {
		e.EntryID = uuid.NewString()
	}
	return nil
}

// ToEvent 转为汇总引擎的只读打卡事件
func (e *TimeEntry) ToEvent() timeclock.Event {
	return timeclock.Event{
		ID:        e.EntryID,
		UserID:    e.UserID,
		Kind:      timeclock.Kind(e.EntryType),
		Timestamp: e.Timestamp,
		IsManual:  e.IsManual,
		Status:    timeclock.Status(e.Status),
	}
}

// ToEvents 批量转换
func ToEvents(entries []TimeEntry) []timeclock.Event {
	events := make([]timeclock.Event, len(entries))
	for i := range entries {
		events[i] = entries[i].ToEvent()
	}
	return events
}
