package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"timeclock/backend/internal/dto"
	"timeclock/backend/internal/model"
	"timeclock/backend/internal/timeclock"
	pkgerrors "timeclock/backend/pkg/errors"
)

// 2026-02-10 13:00 本地（UTC+1）
var teNow = mustParse("2026-02-10T12:00:00Z")

func setupTimeEntryService() (TimeEntryService, *testFixture) {
	f := newFixture(teNow)
	f.addUser("u1", model.RoleEmployee)
	f.addUser("u2", model.RoleEmployee)
	f.addUser("admin", model.RoleAdmin)
	return NewTimeEntryService(f.repo, f.engine, f.audit(), 30, f.logger), f
}

var testMeta = dto.RequestMeta{IP: "10.0.0.1", UserAgent: "go-test"}

// ── ClockIn / ClockOut ──

func TestClockIn_Success(t *testing.T) {
	svc, f := setupTimeEntryService()

	resp, err := svc.ClockIn(context.Background(), "u1", nil, testMeta)
	if err != nil {
		t.Fatalf("ClockIn 应成功: %v", err)
	}
	if resp.EntryType != string(timeclock.KindClockIn) {
		t.Errorf("期望 entry_type=clock_in, 实际=%s", resp.EntryType)
	}
	if resp.IsManual {
		t.Error("服务器时间打卡不应标记为手工补录")
	}
	if resp.Timestamp != "2026-02-10T12:00:00Z" {
		t.Errorf("期望使用服务器时间, 实际=%s", resp.Timestamp)
	}

	stored := f.entries.entries[resp.ID]
	if stored == nil || stored.IPAddress == nil || *stored.IPAddress != "10.0.0.1" {
		t.Error("应记录请求 IP")
	}
	if got := f.audits.actions(); len(got) != 1 || got[0] != model.AuditActionClockIn {
		t.Errorf("期望审计 [clock_in], 实际=%v", got)
	}
}

func TestClockIn_AlreadyClockedIn(t *testing.T) {
	svc, f := setupTimeEntryService()
	f.addEntry("in-1", "u1", timeclock.KindClockIn, "2026-02-10T08:00:00Z")

	_, err := svc.ClockIn(context.Background(), "u1", nil, testMeta)
	if !errors.Is(err, ErrAlreadyClockedIn) {
		t.Errorf("期望 ErrAlreadyClockedIn, 实际: %v", err)
	}
}

func TestClockIn_AfterPreviousDayOpen(t *testing.T) {
	// 最近一条仍是昨天的上班，同样拒绝，需先处理异常或补下班
	svc, f := setupTimeEntryService()
	f.addEntry("in-1", "u1", timeclock.KindClockIn, "2026-02-09T08:00:00Z")

	_, err := svc.ClockIn(context.Background(), "u1", nil, testMeta)
	if !errors.Is(err, ErrAlreadyClockedIn) {
		t.Errorf("期望 ErrAlreadyClockedIn, 实际: %v", err)
	}
}

func TestClockOut_NotClockedIn(t *testing.T) {
	svc, f := setupTimeEntryService()

	if _, err := svc.ClockOut(context.Background(), "u1", nil, testMeta); !errors.Is(err, ErrNotClockedIn) {
		t.Errorf("无记录时期望 ErrNotClockedIn, 实际: %v", err)
	}

	f.addEntry("in-1", "u1", timeclock.KindClockIn, "2026-02-10T08:00:00Z")
	f.addEntry("out-1", "u1", timeclock.KindClockOut, "2026-02-10T09:00:00Z")
	if _, err := svc.ClockOut(context.Background(), "u1", nil, testMeta); !errors.Is(err, ErrNotClockedIn) {
		t.Errorf("已下班时期望 ErrNotClockedIn, 实际: %v", err)
	}
}

func TestClockOut_ManualTimestamp(t *testing.T) {
	svc, f := setupTimeEntryService()
	f.addEntry("in-1", "u1", timeclock.KindClockIn, "2026-02-10T08:00:00Z")

	ts := mustParse("2026-02-10T11:30:00Z")
	resp, err := svc.ClockOut(context.Background(), "u1", &dto.ClockRequest{Timestamp: &ts}, testMeta)
	if err != nil {
		t.Fatalf("ClockOut 应成功: %v", err)
	}
	if !resp.IsManual {
		t.Error("客户端指定时间应标记为手工补录")
	}
	if resp.Timestamp != "2026-02-10T11:30:00Z" {
		t.Errorf("期望 timestamp=11:30Z, 实际=%s", resp.Timestamp)
	}
}

func TestClockOut_BeforeClockIn(t *testing.T) {
	svc, f := setupTimeEntryService()
	f.addEntry("in-1", "u1", timeclock.KindClockIn, "2026-02-10T08:00:00Z")

	ts := mustParse("2026-02-10T07:00:00Z")
	_, err := svc.ClockOut(context.Background(), "u1", &dto.ClockRequest{Timestamp: &ts}, testMeta)
	if !errors.Is(err, ErrClockOutBeforeClockIn) {
		t.Errorf("期望 ErrClockOutBeforeClockIn, 实际: %v", err)
	}
}

func TestClockIn_BeforeLastClockOut(t *testing.T) {
	svc, f := setupTimeEntryService()
	f.addEntry("in-1", "u1", timeclock.KindClockIn, "2026-02-10T08:00:00Z")
	f.addEntry("out-1", "u1", timeclock.KindClockOut, "2026-02-10T12:00:00Z")

	ts := mustParse("2026-02-10T11:00:00Z")
	_, err := svc.ClockIn(context.Background(), "u1", &dto.ClockRequest{Timestamp: &ts}, testMeta)
	if !errors.Is(err, ErrClockInBeforeLastOut) {
		t.Errorf("期望 ErrClockInBeforeLastOut, 实际: %v", err)
	}

	// 与上一次下班同一时刻允许
	ts = mustParse("2026-02-10T12:00:00Z")
	if _, err := svc.ClockIn(context.Background(), "u1", &dto.ClockRequest{Timestamp: &ts}, testMeta); err != nil {
		t.Errorf("同一时刻重新上班应成功: %v", err)
	}
}

func TestClockIn_FutureTimestamp(t *testing.T) {
	svc, _ := setupTimeEntryService()

	ts := teNow.Add(10 * time.Minute)
	_, err := svc.ClockIn(context.Background(), "u1", &dto.ClockRequest{Timestamp: &ts}, testMeta)
	if !errors.Is(err, ErrFutureTimestamp) {
		t.Errorf("期望 ErrFutureTimestamp, 实际: %v", err)
	}

	// 容忍范围内的时钟误差
	ts = teNow.Add(30 * time.Second)
	if _, err := svc.ClockIn(context.Background(), "u1", &dto.ClockRequest{Timestamp: &ts}, testMeta); err != nil {
		t.Errorf("30 秒误差应被接受: %v", err)
	}
}

// ── GetByID ──

func TestTimeEntryGetByID_Permission(t *testing.T) {
	svc, f := setupTimeEntryService()
	f.addEntry("in-1", "u1", timeclock.KindClockIn, "2026-02-10T08:00:00Z")

	if _, err := svc.GetByID(context.Background(), "in-1", "u1", model.RoleEmployee); err != nil {
		t.Errorf("本人查询应成功: %v", err)
	}
	if _, err := svc.GetByID(context.Background(), "in-1", "u2", model.RoleEmployee); !errors.Is(err, ErrNoPermission) {
		t.Errorf("他人查询期望 ErrNoPermission, 实际: %v", err)
	}
	if _, err := svc.GetByID(context.Background(), "in-1", "admin", model.RoleAdmin); err != nil {
		t.Errorf("管理员查询应成功: %v", err)
	}
	if _, err := svc.GetByID(context.Background(), "missing", "admin", model.RoleAdmin); !errors.Is(err, ErrTimeEntryNotFound) {
		t.Errorf("期望 ErrTimeEntryNotFound, 实际: %v", err)
	}
}

// ── Update ──

func TestUpdateTimeEntry_PreservesOriginalTimestamp(t *testing.T) {
	svc, f := setupTimeEntryService()
	f.addEntry("in-1", "u1", timeclock.KindClockIn, "2026-02-10T08:00:00Z")

	first := mustParse("2026-02-10T07:45:00Z")
	resp, err := svc.Update(context.Background(), "in-1", &dto.UpdateTimeEntryRequest{
		Timestamp: &first,
		Reason:    "忘记打卡",
		Version:   1,
	}, "admin", testMeta)
	if err != nil {
		t.Fatalf("Update 应成功: %v", err)
	}
	if resp.Status != string(timeclock.StatusModified) {
		t.Errorf("期望 status=modified, 实际=%s", resp.Status)
	}
	if resp.OriginalTimestamp == nil || *resp.OriginalTimestamp != "2026-02-10T08:00:00Z" {
		t.Errorf("首次修改应保留原始时间, 实际=%v", resp.OriginalTimestamp)
	}
	if resp.Version != 2 {
		t.Errorf("期望 version=2, 实际=%d", resp.Version)
	}

	second := mustParse("2026-02-10T07:30:00Z")
	resp, err = svc.Update(context.Background(), "in-1", &dto.UpdateTimeEntryRequest{
		Timestamp: &second,
		Reason:    "再次更正",
		Version:   2,
	}, "admin", testMeta)
	if err != nil {
		t.Fatalf("第二次 Update 应成功: %v", err)
	}
	if *resp.OriginalTimestamp != "2026-02-10T08:00:00Z" {
		t.Errorf("再次修改不应覆盖原始时间, 实际=%s", *resp.OriginalTimestamp)
	}

	logs := f.audits.logs
	last := logs[len(logs)-1]
	if last.Action != model.AuditActionUpdate || last.OldValues == nil || last.NewValues == nil {
		t.Error("修正应写入包含前后快照的审计")
	}
}

func TestUpdateTimeEntry_VersionConflict(t *testing.T) {
	svc, f := setupTimeEntryService()
	f.addEntry("in-1", "u1", timeclock.KindClockIn, "2026-02-10T08:00:00Z")

	ts := mustParse("2026-02-10T07:45:00Z")
	_, err := svc.Update(context.Background(), "in-1", &dto.UpdateTimeEntryRequest{
		Timestamp: &ts,
		Reason:    "忘记打卡",
		Version:   5,
	}, "admin", testMeta)
	if !errors.Is(err, pkgerrors.ErrOptimisticLock) {
		t.Errorf("期望 ErrOptimisticLock, 实际: %v", err)
	}
}

func TestUpdateTimeEntry_NoChanges(t *testing.T) {
	svc, f := setupTimeEntryService()
	f.addEntry("in-1", "u1", timeclock.KindClockIn, "2026-02-10T08:00:00Z")

	same := mustParse("2026-02-10T08:00:00Z")
	_, err := svc.Update(context.Background(), "in-1", &dto.UpdateTimeEntryRequest{
		Timestamp: &same,
		Reason:    "无变化",
		Version:   1,
	}, "admin", testMeta)
	if !errors.Is(err, ErrNoChanges) {
		t.Errorf("期望 ErrNoChanges, 实际: %v", err)
	}
}

func TestUpdateTimeEntry_SameNotesIsNoChange(t *testing.T) {
	svc, f := setupTimeEntryService()
	e := f.addEntry("in-1", "u1", timeclock.KindClockIn, "2026-02-10T08:00:00Z")
	notes := "外勤"
	e.Notes = &notes

	same := "外勤"
	_, err := svc.Update(context.Background(), "in-1", &dto.UpdateTimeEntryRequest{
		Notes:   &same,
		Reason:  "无变化",
		Version: 1,
	}, "admin", testMeta)
	if !errors.Is(err, ErrNoChanges) {
		t.Errorf("期望 ErrNoChanges, 实际: %v", err)
	}
	if got := f.entries.entries["in-1"]; got.Version != 1 || got.Status != string(timeclock.StatusApproved) {
		t.Errorf("无变化时不应写库, 实际 version=%d status=%s", got.Version, got.Status)
	}
	if len(f.audits.logs) != 0 {
		t.Errorf("无变化时不应写审计, 实际=%d", len(f.audits.logs))
	}

	changed := "出差"
	next, ok := applyTimeEntryUpdate(*f.entries.entries["in-1"], &dto.UpdateTimeEntryRequest{Notes: &changed, Reason: "补充"}, "admin")
	if !ok || next.Notes == nil || *next.Notes != "出差" {
		t.Errorf("备注变化应生效, 实际=%v", next.Notes)
	}
}

func TestApplyTimeEntryUpdate_DoesNotMutateInput(t *testing.T) {
	current := model.TimeEntry{
		EntryID:   "in-1",
		EntryType: string(timeclock.KindClockIn),
		Timestamp: mustParse("2026-02-10T08:00:00Z"),
		Status:    string(timeclock.StatusApproved),
	}
	kind := string(timeclock.KindClockOut)
	next, changed := applyTimeEntryUpdate(current, &dto.UpdateTimeEntryRequest{EntryType: &kind, Reason: "类型错误"}, "admin")

	if !changed || next.EntryType != kind {
		t.Errorf("期望类型更新为 clock_out, 实际=%s", next.EntryType)
	}
	if current.EntryType != string(timeclock.KindClockIn) || current.Status != string(timeclock.StatusApproved) {
		t.Error("入参不应被修改")
	}
	if next.OriginalTimestamp != nil {
		t.Error("未修改时间戳时不应写入原始时间")
	}
}

// ── Delete ──

func TestDeleteTimeEntry(t *testing.T) {
	svc, f := setupTimeEntryService()
	f.addEntry("in-1", "u1", timeclock.KindClockIn, "2026-02-10T08:00:00Z")

	if err := svc.Delete(context.Background(), "in-1", "admin", testMeta); err != nil {
		t.Fatalf("Delete 应成功: %v", err)
	}
	if _, ok := f.entries.entries["in-1"]; ok {
		t.Error("记录应已删除")
	}
	if err := svc.Delete(context.Background(), "in-1", "admin", testMeta); !errors.Is(err, ErrTimeEntryNotFound) {
		t.Errorf("重复删除期望 ErrTimeEntryNotFound, 实际: %v", err)
	}
}

// ── Summaries ──

func TestGetDailySummaries(t *testing.T) {
	svc, f := setupTimeEntryService()
	// 昨天 09:00-17:00 本地
	f.addEntry("in-1", "u1", timeclock.KindClockIn, "2026-02-09T08:00:00Z")
	f.addEntry("out-1", "u1", timeclock.KindClockOut, "2026-02-09T16:00:00Z")
	// 前天只有上班，应补当日结束
	f.addEntry("in-0", "u1", timeclock.KindClockIn, "2026-02-08T20:00:00Z")
	// 今天 08:00 本地上班，至今 5 小时
	f.addEntry("in-2", "u1", timeclock.KindClockIn, "2026-02-10T07:00:00Z")
	// 其他用户不计入
	f.addEntry("x-1", "u2", timeclock.KindClockIn, "2026-02-10T07:00:00Z")

	resp, err := svc.GetDailySummaries(context.Background(), "u1", &dto.DateRangeRequest{
		StartDate: "2026-02-08",
		EndDate:   "2026-02-10",
	})
	if err != nil {
		t.Fatalf("GetDailySummaries 应成功: %v", err)
	}
	if resp.StartDate != "2026-02-08" || resp.EndDate != "2026-02-10" {
		t.Errorf("区间回显错误: %s ~ %s", resp.StartDate, resp.EndDate)
	}
	if resp.TotalDays != 3 {
		t.Fatalf("期望 3 天, 实际=%d", resp.TotalDays)
	}

	today, yesterday, before := resp.DailySummaries[0], resp.DailySummaries[1], resp.DailySummaries[2]
	if today.Date != "2026-02-10" || today.IsComplete || today.TotalHours != 5 {
		t.Errorf("今天应为进行中 5 小时, 实际=%+v", today)
	}
	if yesterday.Date != "2026-02-09" || !yesterday.IsComplete || yesterday.TotalHours != 8 {
		t.Errorf("昨天应为完整 8 小时, 实际=%+v", yesterday)
	}
	// 21:00 本地上班，补到 23:59:59.999
	if before.Date != "2026-02-08" || !before.IsComplete {
		t.Fatalf("前天应以合成下班闭合, 实际=%+v", before)
	}
	out := before.Pairs[0].ClockOut
	if out == nil || !out.Synthetic || out.Reason != string(timeclock.ExitEndOfDay) || out.Label != "autoexit-in-0" {
		t.Errorf("期望 end_of_day 合成下班, 实际=%+v", out)
	}
}

func TestGetDailySummaries_InvalidRange(t *testing.T) {
	svc, _ := setupTimeEntryService()

	cases := []dto.DateRangeRequest{
		{StartDate: "2026-02-10", EndDate: "2026-02-01"},
		{StartDate: "2024-01-01", EndDate: "2026-02-01"},
		{StartDate: "2026-13-01"},
	}
	for _, req := range cases {
		req := req
		if _, err := svc.GetDailySummaries(context.Background(), "u1", &req); !errors.Is(err, ErrInvalidDateRange) {
			t.Errorf("%+v: 期望 ErrInvalidDateRange, 实际: %v", req, err)
		}
	}
}

func TestGetTodayStatus(t *testing.T) {
	svc, f := setupTimeEntryService()
	f.addEntry("in-1", "u1", timeclock.KindClockIn, "2026-02-10T07:00:00Z")
	f.addEntry("out-1", "u1", timeclock.KindClockOut, "2026-02-10T09:00:00Z")
	f.addEntry("in-2", "u1", timeclock.KindClockIn, "2026-02-10T10:00:00Z")

	resp, err := svc.GetTodayStatus(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetTodayStatus 应成功: %v", err)
	}
	if resp.Date != "2026-02-10" {
		t.Errorf("期望 date=2026-02-10, 实际=%s", resp.Date)
	}
	if !resp.IsClockedIn {
		t.Error("最后一条为上班，应处于上班中")
	}
	if len(resp.TodayEntries) != 3 {
		t.Errorf("期望 3 条今日记录, 实际=%d", len(resp.TodayEntries))
	}
	// 2h 已闭合 + 2h 进行中
	if resp.TotalHoursToday != 4 {
		t.Errorf("期望 4 小时, 实际=%v", resp.TotalHoursToday)
	}
	if resp.LastEntry == nil || resp.LastEntry.ID != "in-2" {
		t.Errorf("期望最近记录 in-2, 实际=%+v", resp.LastEntry)
	}
}

func TestGetTodayStatus_OpenFromYesterday(t *testing.T) {
	svc, f := setupTimeEntryService()
	f.addEntry("in-1", "u1", timeclock.KindClockIn, "2026-02-09T08:00:00Z")

	resp, err := svc.GetTodayStatus(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetTodayStatus 应成功: %v", err)
	}
	if !resp.IsClockedIn {
		t.Error("上班状态以最近一条记录为准")
	}
	if resp.TotalHoursToday != 0 || len(resp.TodayEntries) != 0 {
		t.Errorf("今天没有记录, 期望 0 小时, 实际=%v", resp.TotalHoursToday)
	}
}

func TestListMine_ScopesToCaller(t *testing.T) {
	svc, f := setupTimeEntryService()
	f.addEntry("a", "u1", timeclock.KindClockIn, "2026-02-09T08:00:00Z")
	f.addEntry("b", "u1", timeclock.KindClockOut, "2026-02-09T16:00:00Z")
	f.addEntry("c", "u2", timeclock.KindClockIn, "2026-02-09T08:00:00Z")

	list, total, err := svc.ListMine(context.Background(), "u1", &dto.TimeEntryListRequest{UserID: "u2"})
	if err != nil {
		t.Fatalf("ListMine 应成功: %v", err)
	}
	if total != 2 || len(list) != 2 {
		t.Fatalf("期望 2 条, 实际 total=%d len=%d", total, len(list))
	}
	if list[0].ID != "b" {
		t.Errorf("期望按时间倒序, 首条=%s", list[0].ID)
	}
}
