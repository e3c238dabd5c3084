package handler

import (
	"bytes"
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"timeclock/backend/internal/dto"
	"timeclock/backend/internal/service"
	"timeclock/backend/pkg/response"
)

const (
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypeICS  = "text/calendar; charset=utf-8"
)

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc service.ExportService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc}
}

// ExportMyXLSX 导出本人打卡记录与每日汇总
// GET /api/v1/export/me/xlsx?start_date=&end_date=
func (h *ExportHandler) ExportMyXLSX(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}
	h.export(c, userID, contentTypeXLSX, h.exportSvc.ExportHistoryXLSX)
}

// ExportMyICS 导出本人工作区间为日历文件
// GET /api/v1/export/me/ics?start_date=&end_date=
func (h *ExportHandler) ExportMyICS(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}
	h.export(c, userID, contentTypeICS, h.exportSvc.ExportHistoryICS)
}

// ExportUserXLSX 导出指定员工打卡记录（管理员）
// GET /api/v1/export/users/:id/xlsx
func (h *ExportHandler) ExportUserXLSX(c *gin.Context) {
	h.export(c, c.Param("id"), contentTypeXLSX, h.exportSvc.ExportHistoryXLSX)
}

type exportFunc func(ctx context.Context, userID string, req *dto.DateRangeRequest) (*bytes.Buffer, string, error)

func (h *ExportHandler) export(c *gin.Context, userID, contentType string, fn exportFunc) {
	var req dto.DateRangeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	buf, filename, err := fn(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	response.File(c, filename, contentType, buf.Bytes())
}

func (h *ExportHandler) handleExportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExportNoData):
		response.NotFound(c, 16101, "所选区间内没有打卡记录")
	case errors.Is(err, service.ErrInvalidDateRange):
		response.BadRequest(c, 12007, "日期区间无效")
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFound(c, 20001, "用户不存在")
	case errors.Is(err, service.ErrExportGenerateFail):
		response.InternalError(c)
	default:
		response.InternalError(c)
	}
}
