package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"timeclock/backend/internal/dto"
	"timeclock/backend/internal/model"
	"timeclock/backend/internal/repository"
	"timeclock/backend/internal/timeclock"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoData       = errors.New("所选区间内没有打卡记录")
	ErrExportGenerateFail = errors.New("生成导出文件失败")
)

// ExportService 导出业务接口
//
// 导出以 bytes.Buffer 返回，由 Handler 层设置响应头后写入 Response。
// 两种格式都基于同一份区间汇总，合成下班在表格中标注，日历只输出已闭合的工作区间。
type ExportService interface {
	// ExportHistoryXLSX 打卡历史导出为 Excel：明细 Sheet 每个工作区间一行，汇总 Sheet 每天一行
	ExportHistoryXLSX(ctx context.Context, userID string, req *dto.DateRangeRequest) (*bytes.Buffer, string, error)
	// ExportHistoryICS 已闭合的工作区间导出为 iCalendar，每个区间一个 VEVENT
	ExportHistoryICS(ctx context.Context, userID string, req *dto.DateRangeRequest) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo         *repository.Repository
	engine       *timeclock.Engine
	lookbackDays int
	logger       *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, engine *timeclock.Engine, lookbackDays int, logger *zap.Logger) ExportService {
	return &exportService{repo: repo, engine: engine, lookbackDays: lookbackDays, logger: logger}
}

// history 读取区间记录并汇总，DailySummaries 按日期升序返回
func (s *exportService) history(ctx context.Context, userID string, req *dto.DateRangeRequest) (*timeclock.PeriodSummary, *dayRange, error) {
	rng, err := resolveDayRange(s.engine, req, s.lookbackDays)
	if err != nil {
		return nil, nil, err
	}

	entries, err := s.repo.TimeEntry.FetchRange(ctx, userID, rng.From, rng.To)
	if err != nil {
		s.logger.Error("读取导出区间失败", zap.String("user_id", userID), zap.Error(err))
		return nil, nil, err
	}
	if len(entries) == 0 {
		return nil, nil, ErrExportNoData
	}

	summary, err := s.engine.Summarize(model.ToEvents(entries))
	if err != nil {
		s.logger.Error("汇总导出区间失败", zap.String("user_id", userID), zap.Error(err))
		return nil, nil, err
	}

	days := summary.DailySummaries
	for i, j := 0, len(days)-1; i < j; i, j = i+1, j-1 {
		days[i], days[j] = days[j], days[i]
	}
	return summary, rng, nil
}

// ═══════════════════════════════════════════════════════════
// ExportHistoryXLSX
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - Sheet "打卡明细"：日期 | 上班 | 下班 | 时长(分钟) | 说明，每天末尾一行当日合计
//   - Sheet "每日汇总"：日期 | 工时 | 是否完整 | 含修正记录，末尾一行区间合计

func (s *exportService) ExportHistoryXLSX(ctx context.Context, userID string, req *dto.DateRangeRequest) (*bytes.Buffer, string, error) {
	summary, rng, err := s.history(ctx, userID, req)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	totalStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})

	// ── 明细 ──
	detail := "打卡明细"
	idx, _ := f.NewSheet(detail)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	f.SetColWidth(detail, "A", "A", 12)
	f.SetColWidth(detail, "B", "C", 12)
	f.SetColWidth(detail, "D", "D", 14)
	f.SetColWidth(detail, "E", "E", 44)

	writeRow(f, detail, 1, "日期", "上班", "下班", "时长(分钟)", "说明")
	f.SetCellStyle(detail, "A1", "E1", headerStyle)

	row := 2
	for _, day := range summary.DailySummaries {
		for _, p := range day.Pairs {
			out, note := "", "进行中"
			if p.ClockOut != nil {
				out = s.clock(p.ClockOut.At())
				note = ""
			}
			if exit, ok := p.ClockOut.(timeclock.SyntheticExit); ok {
				note = exit.Note()
			}
			writeRow(f, detail, row, day.Date, s.clock(p.ClockIn.Timestamp), out, p.DurationMinutes, note)
			row++
		}
		writeRow(f, detail, row, day.Date, "", "当日合计", day.TotalMinutes, "")
		f.SetCellStyle(detail, cell("A", row), cell("E", row), totalStyle)
		row++
	}

	// ── 汇总 ──
	daily := "每日汇总"
	f.NewSheet(daily)
	f.SetColWidth(daily, "A", "D", 14)
	writeRow(f, daily, 1, "日期", "工时", "是否完整", "含修正记录")
	f.SetCellStyle(daily, "A1", "D1", headerStyle)

	row = 2
	for _, day := range summary.DailySummaries {
		writeRow(f, daily, row, day.Date, day.TotalHours, yesNo(day.IsComplete), yesNo(day.HasModifications))
		row++
	}
	writeRow(f, daily, row, "合计", summary.TotalHours, fmt.Sprintf("%d 天", summary.TotalDays),
		fmt.Sprintf("日均 %.2f", summary.AverageHoursPerDay))
	f.SetCellStyle(daily, cell("A", row), cell("D", row), totalStyle)

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}
	return buf, fmt.Sprintf("打卡记录_%s_%s.xlsx", rng.StartDay, rng.EndDay), nil
}

// ═══════════════════════════════════════════════════════════
// ExportHistoryICS
// ═══════════════════════════════════════════════════════════

func (s *exportService) ExportHistoryICS(ctx context.Context, userID string, req *dto.DateRangeRequest) (*bytes.Buffer, string, error) {
	summary, rng, err := s.history(ctx, userID, req)
	if err != nil {
		return nil, "", err
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//timeclock//history export//ZH")
	cal.SetName("打卡记录 " + rng.StartDay + " ~ " + rng.EndDay)

	stamp := s.engine.Now().UTC()
	for _, day := range summary.DailySummaries {
		for _, p := range day.Pairs {
			if p.Open() {
				continue
			}
			evt := cal.AddEvent(p.ClockIn.ID + "@timeclock")
			evt.SetDtStampTime(stamp)
			evt.SetStartAt(p.ClockIn.Timestamp.UTC())
			evt.SetEndAt(p.ClockOut.At().UTC())
			evt.SetSummary(fmt.Sprintf("工作 %.0f 分钟", p.DurationMinutes))
			if exit, ok := p.ClockOut.(timeclock.SyntheticExit); ok {
				evt.SetDescription(exit.Note())
			}
		}
	}

	buf := bytes.NewBufferString(cal.Serialize())
	return buf, fmt.Sprintf("timeclock_%s_%s.ics", rng.StartDay, rng.EndDay), nil
}

// ── 辅助函数 ──

func (s *exportService) clock(t time.Time) string {
	return t.In(s.engine.Location()).Format("15:04:05")
}

func writeRow(f *excelize.File, sheet string, row int, values ...interface{}) {
	for i, v := range values {
		f.SetCellValue(sheet, cell(colName(i), row), v)
	}
}

func yesNo(b bool) string {
	if b {
		return "是"
	}
	return "否"
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
