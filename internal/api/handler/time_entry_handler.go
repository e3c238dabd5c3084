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

// TimeEntryHandler 打卡模块 HTTP 处理器
type TimeEntryHandler struct {
	timeEntrySvc service.TimeEntryService
}

// NewTimeEntryHandler 创建 TimeEntryHandler
func NewTimeEntryHandler(timeEntrySvc service.TimeEntryService) *TimeEntryHandler {
	return &TimeEntryHandler{timeEntrySvc: timeEntrySvc}
}

// ── 员工自助 ──

// ClockIn 上班打卡
// POST /api/v1/time-entries/clock-in
func (h *TimeEntryHandler) ClockIn(c *gin.Context) {
	h.clock(c, h.timeEntrySvc.ClockIn)
}

// ClockOut 下班打卡
// POST /api/v1/time-entries/clock-out
func (h *TimeEntryHandler) ClockOut(c *gin.Context) {
	h.clock(c, h.timeEntrySvc.ClockOut)
}

type clockFunc func(ctx context.Context, userID string, req *dto.ClockRequest, meta dto.RequestMeta) (*dto.TimeEntryResponse, error)

func (h *TimeEntryHandler) clock(c *gin.Context, fn clockFunc) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	// 请求体可为空，此时按服务器时间打卡
	var req dto.ClockRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, 10001, "参数校验失败")
			return
		}
	}

	entry, err := fn(c.Request.Context(), userID, &req, requestMeta(c))
	if err != nil {
		h.handleTimeEntryError(c, err)
		return
	}

	response.Created(c, entry)
}

// GetTodayStatus 今日打卡状态
// GET /api/v1/time-entries/today
func (h *TimeEntryHandler) GetTodayStatus(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	status, err := h.timeEntrySvc.GetTodayStatus(c.Request.Context(), userID)
	if err != nil {
		h.handleTimeEntryError(c, err)
		return
	}

	response.OK(c, status)
}

// ListMyEntries 本人打卡记录
// GET /api/v1/time-entries/me
func (h *TimeEntryHandler) ListMyEntries(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.TimeEntryListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	entries, total, err := h.timeEntrySvc.ListMine(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleTimeEntryError(c, err)
		return
	}

	response.OKPage(c, entries, total, req.GetPage(), req.GetPageSize())
}

// GetMySummary 本人每日工时汇总
// GET /api/v1/time-entries/summary?start_date=&end_date=
func (h *TimeEntryHandler) GetMySummary(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}
	h.summary(c, userID)
}

// GetUserSummary 指定员工的每日工时汇总（管理员）
// GET /api/v1/users/:id/summary
func (h *TimeEntryHandler) GetUserSummary(c *gin.Context) {
	h.summary(c, c.Param("id"))
}

func (h *TimeEntryHandler) summary(c *gin.Context, userID string) {
	var req dto.DateRangeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.timeEntrySvc.GetDailySummaries(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleTimeEntryError(c, err)
		return
	}

	response.OK(c, result)
}

// GetEntry 打卡记录详情（本人或管理员）
// GET /api/v1/time-entries/:id
func (h *TimeEntryHandler) GetEntry(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}
	role, ok := MustGetRole(c)
	if !ok {
		return
	}

	entry, err := h.timeEntrySvc.GetByID(c.Request.Context(), c.Param("id"), userID, role)
	if err != nil {
		h.handleTimeEntryError(c, err)
		return
	}

	response.OK(c, entry)
}

// ── 管理员 ──

// ListEntries 全部打卡记录
// GET /api/v1/time-entries
func (h *TimeEntryHandler) ListEntries(c *gin.Context) {
	var req dto.TimeEntryListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	entries, total, err := h.timeEntrySvc.ListAll(c.Request.Context(), &req)
	if err != nil {
		h.handleTimeEntryError(c, err)
		return
	}

	response.OKPage(c, entries, total, req.GetPage(), req.GetPageSize())
}

// UpdateEntry 修正打卡记录
// PUT /api/v1/time-entries/:id
func (h *TimeEntryHandler) UpdateEntry(c *gin.Context) {
	adminID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.UpdateTimeEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	entry, err := h.timeEntrySvc.Update(c.Request.Context(), c.Param("id"), &req, adminID, requestMeta(c))
	if err != nil {
		h.handleTimeEntryError(c, err)
		return
	}

	response.OK(c, entry)
}

// DeleteEntry 删除打卡记录
// DELETE /api/v1/time-entries/:id
func (h *TimeEntryHandler) DeleteEntry(c *gin.Context) {
	adminID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.timeEntrySvc.Delete(c.Request.Context(), c.Param("id"), adminID, requestMeta(c)); err != nil {
		h.handleTimeEntryError(c, err)
		return
	}

	response.OK(c, nil)
}

func (h *TimeEntryHandler) handleTimeEntryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrTimeEntryNotFound):
		response.NotFound(c, 12001, "打卡记录不存在")
	case errors.Is(err, service.ErrAlreadyClockedIn):
		response.Conflict(c, 12002, "请先打下班卡再重新上班")
	case errors.Is(err, service.ErrNotClockedIn):
		response.Conflict(c, 12003, "当前未上班，无法打下班卡")
	case errors.Is(err, service.ErrFutureTimestamp):
		response.BadRequest(c, 12004, "打卡时间不能晚于当前时间")
	case errors.Is(err, service.ErrClockOutBeforeClockIn):
		response.BadRequest(c, 12005, "下班时间不能早于上班时间")
	case errors.Is(err, service.ErrClockInBeforeLastOut):
		response.BadRequest(c, 12008, "上班时间不能早于上一次下班时间")
	case errors.Is(err, service.ErrNoChanges):
		response.BadRequest(c, 12006, "没有需要修改的字段")
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
