package handler

import (
	"github.com/gin-gonic/gin"

	"timeclock/backend/internal/dto"
	"timeclock/backend/internal/service"
	"timeclock/backend/pkg/response"
)

// AuditHandler 审计日志 HTTP 处理器（仅管理员）
type AuditHandler struct {
	auditSvc service.AuditService
}

// NewAuditHandler 创建 AuditHandler
func NewAuditHandler(auditSvc service.AuditService) *AuditHandler {
	return &AuditHandler{auditSvc: auditSvc}
}

// ListAuditLogs 审计日志列表
// GET /api/v1/audit-logs
func (h *AuditHandler) ListAuditLogs(c *gin.Context) {
	var req dto.AuditLogListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	logs, total, err := h.auditSvc.List(c.Request.Context(), &req)
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OKPage(c, logs, total, req.GetPage(), req.GetPageSize())
}

// ListEntityHistory 某个实体的变更历史
// GET /api/v1/audit-logs/:entity_type/:entity_id
func (h *AuditHandler) ListEntityHistory(c *gin.Context) {
	var page dto.PaginationRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	logs, total, err := h.auditSvc.ListByEntity(c.Request.Context(), c.Param("entity_type"), c.Param("entity_id"), &page)
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OKPage(c, logs, total, page.GetPage(), page.GetPageSize())
}
