package dto

// ── 审计日志 DTO ──

// AuditLogListRequest 审计日志查询参数
type AuditLogListRequest struct {
	PaginationRequest
	DateRangeRequest
	UserID     string `form:"user_id"     binding:"omitempty,uuid"`
	Action     string `form:"action"      binding:"omitempty,max=30"`
	EntityType string `form:"entity_type" binding:"omitempty,max=30"`
	EntityID   string `form:"entity_id"   binding:"omitempty,max=64"`
}

// AuditLogResponse 审计日志响应
type AuditLogResponse struct {
	ID         string  `json:"id"`
	UserID     *string `json:"user_id,omitempty"`
	Action     string  `json:"action"`
	EntityType string  `json:"entity_type"`
	EntityID   *string `json:"entity_id,omitempty"`
	OldValues  *string `json:"old_values,omitempty"`
	NewValues  *string `json:"new_values,omitempty"`
	IPAddress  *string `json:"ip_address,omitempty"`
	UserAgent  *string `json:"user_agent,omitempty"`
	CreatedAt  string  `json:"created_at"`
}
