package dto

import "time"

// ── 打卡模块 DTO ──

// ClockRequest 上班/下班打卡请求。Timestamp 为空时使用服务器时间，否则记为手工补录
type ClockRequest struct {
	Timestamp *time.Time `json:"timestamp"`
	Latitude  *float64   `json:"latitude"  binding:"omitempty,min=-90,max=90"`
	Longitude *float64   `json:"longitude" binding:"omitempty,min=-180,max=180"`
	Notes     *string    `json:"notes"     binding:"omitempty,max=500"`
}

// TimeEntryListRequest 打卡记录列表查询参数
type TimeEntryListRequest struct {
	PaginationRequest
	DateRangeRequest
	UserID    string `form:"user_id"    binding:"omitempty,uuid"`
	EntryType string `form:"entry_type" binding:"omitempty,oneof=clock_in clock_out"`
	Status    string `form:"status"     binding:"omitempty,oneof=approved modified pending rejected"`
}

// UpdateTimeEntryRequest 管理员修正打卡记录（Version 用于乐观锁）
type UpdateTimeEntryRequest struct {
	Timestamp *time.Time `json:"timestamp"`
	EntryType *string    `json:"entry_type" binding:"omitempty,oneof=clock_in clock_out"`
	Status    *string    `json:"status"     binding:"omitempty,oneof=approved modified pending rejected"`
	Notes     *string    `json:"notes"      binding:"omitempty,max=500"`
	Reason    string     `json:"reason"     binding:"required,min=2,max=500"`
	Version   int        `json:"version"    binding:"required,min=1"`
}

// TimeEntryResponse 打卡记录响应
type TimeEntryResponse struct {
	ID                string   `json:"id"`
	UserID            string   `json:"user_id"`
	UserName          string   `json:"user_name,omitempty"`
	EntryType         string   `json:"entry_type"`
	Timestamp         string   `json:"timestamp"`
	OriginalTimestamp *string  `json:"original_timestamp,omitempty"`
	IsManual          bool     `json:"is_manual"`
	Status            string   `json:"status"`
	ModifiedBy        *string  `json:"modified_by,omitempty"`
	Reason            *string  `json:"modification_reason,omitempty"`
	Latitude          *float64 `json:"latitude,omitempty"`
	Longitude         *float64 `json:"longitude,omitempty"`
	Notes             *string  `json:"notes,omitempty"`
	Version           int      `json:"version"`
}

// ── 汇总 ──

// ClockOutRef 配对中的下班端，合成下班的 Synthetic 为 true 且没有可持久化的 ID
type ClockOutRef struct {
	ID        string `json:"id,omitempty"`
	Timestamp string `json:"timestamp"`
	Synthetic bool   `json:"synthetic"`
	Reason    string `json:"reason,omitempty"` // end_of_day | consecutive_entry
	Label     string `json:"label,omitempty"`
	Note      string `json:"note,omitempty"`
}

// SessionPairResponse 一段工作区间
type SessionPairResponse struct {
	ClockInID       string       `json:"clock_in_id"`
	ClockIn         string       `json:"clock_in"`
	ClockOut        *ClockOutRef `json:"clock_out"`
	DurationMinutes float64      `json:"duration_minutes"`
}

// DailySummaryResponse 单日汇总
type DailySummaryResponse struct {
	Date             string                `json:"date"`
	Pairs            []SessionPairResponse `json:"pairs"`
	TotalMinutes     float64               `json:"total_minutes"`
	TotalHours       float64               `json:"total_hours"`
	IsComplete       bool                  `json:"is_complete"`
	HasModifications bool                  `json:"has_modifications"`
}

// PeriodSummaryResponse 区间汇总
type PeriodSummaryResponse struct {
	StartDate          string                 `json:"start_date"`
	EndDate            string                 `json:"end_date"`
	DailySummaries     []DailySummaryResponse `json:"daily_summaries"`
	TotalDays          int                    `json:"total_days"`
	TotalHours         float64                `json:"total_hours"`
	AverageHoursPerDay float64                `json:"average_hours_per_day"`
}

// TodayStatusResponse 今日打卡状态
type TodayStatusResponse struct {
	Date            string              `json:"date"`
	IsClockedIn     bool                `json:"is_clocked_in"`
	LastEntry       *TimeEntryResponse  `json:"last_entry"`
	TodayEntries    []TimeEntryResponse `json:"today_entries"`
	TotalHoursToday float64             `json:"total_hours_today"`
}
