package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"timeclock/backend/internal/dto"
	"timeclock/backend/internal/service"
	pkgerrors "timeclock/backend/pkg/errors"
	"timeclock/backend/pkg/response"
)

// SweepTrigger 手动触发日终巡检（由 job.Sweeper 实现）
type SweepTrigger interface {
	TriggerNow(ctx context.Context, userID string) (*dto.SweepResponse, error)
}

// IncidentHandler 考勤异常模块 HTTP 处理器
type IncidentHandler struct {
	incidentSvc service.IncidentService
	sweeper     SweepTrigger
}

// NewIncidentHandler 创建 IncidentHandler
func NewIncidentHandler(incidentSvc service.IncidentService, sweeper SweepTrigger) *IncidentHandler {
	return &IncidentHandler{incidentSvc: incidentSvc, sweeper: sweeper}
}

// ── 员工 ──

// ListMyIncidents 本人的考勤异常
// GET /api/v1/incidents/me
func (h *IncidentHandler) ListMyIncidents(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.IncidentListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, total, err := h.incidentSvc.ListMine(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleIncidentError(c, err)
		return
	}

	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// ListMyPending 本人待处理的异常
// GET /api/v1/incidents/me/pending
func (h *IncidentHandler) ListMyPending(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	list, err := h.incidentSvc.ListMyPending(c.Request.Context(), userID)
	if err != nil {
		h.handleIncidentError(c, err)
		return
	}

	response.OK(c, list)
}

// ListMyYesterdayPending 昨天遗留的待处理异常（登录后提醒）
// GET /api/v1/incidents/me/yesterday
func (h *IncidentHandler) ListMyYesterdayPending(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	list, err := h.incidentSvc.ListMyYesterdayPending(c.Request.Context(), userID)
	if err != nil {
		h.handleIncidentError(c, err)
		return
	}

	response.OK(c, list)
}

// GetMyStats 本人异常按状态统计
// GET /api/v1/incidents/me/stats
func (h *IncidentHandler) GetMyStats(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}
	h.stats(c, userID)
}

// GetIncident 异常详情（本人或管理员）
// GET /api/v1/incidents/:id
func (h *IncidentHandler) GetIncident(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}
	role, ok := MustGetRole(c)
	if !ok {
		return
	}

	incident, err := h.incidentSvc.GetByID(c.Request.Context(), c.Param("id"), userID, role)
	if err != nil {
		h.handleIncidentError(c, err)
		return
	}

	response.OK(c, incident)
}

// RequestCorrection 员工提交实际下班时间
// POST /api/v1/incidents/:id/correction
func (h *IncidentHandler) RequestCorrection(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.RequestCorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	incident, err := h.incidentSvc.RequestCorrection(c.Request.Context(), c.Param("id"), userID, &req, requestMeta(c))
	if err != nil {
		h.handleIncidentError(c, err)
		return
	}

	response.OK(c, incident)
}

// ── 管理员 ──

// ListIncidents 全部考勤异常
// GET /api/v1/incidents
func (h *IncidentHandler) ListIncidents(c *gin.Context) {
	var req dto.IncidentListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, total, err := h.incidentSvc.List(c.Request.Context(), &req)
	if err != nil {
		h.handleIncidentError(c, err)
		return
	}

	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// ListPendingReviews 等待审核的更正申请
// GET /api/v1/incidents/reviews
func (h *IncidentHandler) ListPendingReviews(c *gin.Context) {
	var page dto.PaginationRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, total, err := h.incidentSvc.PendingReviews(c.Request.Context(), &page)
	if err != nil {
		h.handleIncidentError(c, err)
		return
	}

	response.OKPage(c, list, total, page.GetPage(), page.GetPageSize())
}

// GetPendingCount 待处理异常总数（管理端角标）
// GET /api/v1/incidents/pending-count
func (h *IncidentHandler) GetPendingCount(c *gin.Context) {
	n, err := h.incidentSvc.PendingCount(c.Request.Context())
	if err != nil {
		h.handleIncidentError(c, err)
		return
	}

	response.OK(c, gin.H{"count": n})
}

// GetStats 全员或指定员工的异常统计
// GET /api/v1/incidents/stats?user_id=
func (h *IncidentHandler) GetStats(c *gin.Context) {
	h.stats(c, c.Query("user_id"))
}

func (h *IncidentHandler) stats(c *gin.Context, userID string) {
	stats, err := h.incidentSvc.Stats(c.Request.Context(), userID)
	if err != nil {
		h.handleIncidentError(c, err)
		return
	}

	response.OK(c, stats)
}

// ResolveIncident 审核异常：通过时补录下班卡，驳回时关闭
// POST /api/v1/incidents/:id/resolve
func (h *IncidentHandler) ResolveIncident(c *gin.Context) {
	adminID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.ResolveIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	incident, err := h.incidentSvc.Resolve(c.Request.Context(), c.Param("id"), &req, adminID, requestMeta(c))
	if err != nil {
		h.handleIncidentError(c, err)
		return
	}

	response.OK(c, incident)
}

// TriggerSweep 立即执行日终巡检
// POST /api/v1/incidents/sweep
func (h *IncidentHandler) TriggerSweep(c *gin.Context) {
	if h.sweeper == nil {
		response.ServiceUnavailable(c, "巡检任务未启用")
		return
	}

	var req dto.SweepRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, 10001, "参数校验失败")
			return
		}
	}

	result, err := h.sweeper.TriggerNow(c.Request.Context(), req.UserID)
	if err != nil {
		h.handleIncidentError(c, err)
		return
	}

	response.OK(c, result)
}

func (h *IncidentHandler) handleIncidentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrIncidentNotFound):
		response.NotFound(c, 13001, "考勤异常不存在")
	case errors.Is(err, service.ErrIncidentClosed):
		response.Conflict(c, 13002, "该异常已处理")
	case errors.Is(err, service.ErrInvalidRequestedTime):
		response.BadRequest(c, 13003, "下班时间必须晚于上班时间且不晚于当日结束")
	case errors.Is(err, pkgerrors.ErrLockBusy):
		response.Conflict(c, 13004, "巡检正在执行，请稍后再试")
	case errors.Is(err, service.ErrInvalidDateRange):
		response.BadRequest(c, 12007, "日期区间无效")
	case errors.Is(err, service.ErrNoPermission):
		response.Forbidden(c, 10003, "无权限访问")
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFound(c, 20001, "用户不存在")
	case errors.Is(err, pkgerrors.ErrOptimisticLock):
		response.Conflict(c, 10009, "数据已被其他操作修改，请刷新后重试")
	default:
		response.InternalError(c)
	}
}
