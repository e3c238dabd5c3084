package dto

import "time"

// ── 考勤异常模块 DTO ──

// IncidentListRequest 异常列表查询参数
type IncidentListRequest struct {
	PaginationRequest
	DateRangeRequest
	UserID string `form:"user_id" binding:"omitempty,uuid"`
	Status string `form:"status"  binding:"omitempty,oneof=pending correction_requested resolved rejected"`
}

// RequestCorrectionRequest 员工提交下班时间更正
type RequestCorrectionRequest struct {
	RequestedTime time.Time `json:"requested_time" binding:"required"`
	Message       string    `json:"message"        binding:"omitempty,max=1000"`
}

// 审核结论
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// ResolveIncidentRequest 管理员审核异常
// 通过时按 ClockOutTime → 员工申请时间 → 当日结束时间 的顺序确定补录的下班时间
type ResolveIncidentRequest struct {
	Decision     string     `json:"decision"       binding:"required,oneof=approve reject"`
	ClockOutTime *time.Time `json:"clock_out_time"`
	Note         string     `json:"note"           binding:"omitempty,max=1000"`
	Version      int        `json:"version"        binding:"required,min=1"`
}

// IncidentResponse 异常响应
type IncidentResponse struct {
	ID                string  `json:"id"`
	UserID            string  `json:"user_id"`
	UserName          string  `json:"user_name,omitempty"`
	Type              string  `json:"type"`
	Status            string  `json:"status"`
	Date              string  `json:"date"`
	TimeEntryID       string  `json:"time_entry_id"`
	OpenTimestamp     string  `json:"open_timestamp"`
	ImpliedEnd        string  `json:"implied_end"`
	RequestedTime     *string `json:"requested_time,omitempty"`
	Message           *string `json:"message,omitempty"`
	ResolutionNote    *string `json:"resolution_note,omitempty"`
	ResolvedBy        *string `json:"resolved_by,omitempty"`
	ResolvedAt        *string `json:"resolved_at,omitempty"`
	CorrectionEntryID *string `json:"correction_entry_id,omitempty"`
	CreatedAt         string  `json:"created_at"`
	Version           int     `json:"version"`
}

// IncidentStatsResponse 按状态统计
type IncidentStatsResponse struct {
	Total               int64 `json:"total"`
	Pending             int64 `json:"pending"`
	CorrectionRequested int64 `json:"correction_requested"`
	Resolved            int64 `json:"resolved"`
	Rejected            int64 `json:"rejected"`
}

// SweepResponse 一次巡检的结果
type SweepResponse struct {
	Users    int `json:"users"`
	Reported int `json:"reported"`
	Failed   int `json:"failed"`
}

// SweepRequest 手动触发巡检，UserID 为空时巡检全部在职用户
type SweepRequest struct {
	UserID string `json:"user_id" binding:"omitempty,uuid"`
}
