package service

import (
	"errors"
	"time"

	"timeclock/backend/internal/dto"
	"timeclock/backend/internal/timeclock"
)

// maxRangeDays 单次汇总/导出允许的最大天数
const maxRangeDays = 366

var ErrInvalidDateRange = errors.New("日期区间无效")

// dayRange 已解析的本地日期区间
type dayRange struct {
	StartDay string
	EndDay   string
	From     time.Time // StartDay 00:00 本地
	To       time.Time // EndDay 23:59:59.999 本地
}

// resolveDayRange 解析 YYYY-MM-DD 区间；缺省时结束日为今天，开始日为结束日往前 defaultDays-1 天
func resolveDayRange(g *timeclock.Engine, req *dto.DateRangeRequest, defaultDays int) (*dayRange, error) {
	var end time.Time
	if req != nil && req.EndDate != "" {
		t, err := g.ParseDay(req.EndDate)
		if err != nil {
			return nil, ErrInvalidDateRange
		}
		end = t
	} else {
		end = g.StartOfDay(g.Now())
	}

	var start time.Time
	if req != nil && req.StartDate != "" {
		t, err := g.ParseDay(req.StartDate)
		if err != nil {
			return nil, ErrInvalidDateRange
		}
		start = t
	} else {
		start = end.AddDate(0, 0, -(defaultDays - 1))
	}

	if start.After(end) || end.Sub(start) > maxRangeDays*24*time.Hour {
		return nil, ErrInvalidDateRange
	}

	from, to := g.DayRange(start, end)
	return &dayRange{
		StartDay: g.DayKey(from),
		EndDay:   g.DayKey(to),
		From:     from,
		To:       to,
	}, nil
}

// optionalRange 列表查询用：两端都可缺省
func optionalRange(g *timeclock.Engine, req *dto.DateRangeRequest) (from, to *time.Time, err error) {
	if req == nil {
		return nil, nil, nil
	}
	if req.StartDate != "" {
		t, perr := g.ParseDay(req.StartDate)
		if perr != nil {
			return nil, nil, ErrInvalidDateRange
		}
		s := g.StartOfDay(t)
		from = &s
	}
	if req.EndDate != "" {
		t, perr := g.ParseDay(req.EndDate)
		if perr != nil {
			return nil, nil, ErrInvalidDateRange
		}
		e := g.EndOfDay(t)
		to = &e
	}
	if from != nil && to != nil && from.After(*to) {
		return nil, nil, ErrInvalidDateRange
	}
	return from, to, nil
}
