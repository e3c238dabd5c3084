package timeclock

import (
	"sort"
	"time"
)

// OpenDayReport 某个已结束的日子里遗留的未闭合上班记录
type OpenDayReport struct {
	UserID          string
	Date            string
	OpenEntryID     string
	OpenTimestamp   time.Time
	ImpliedEndOfDay time.Time
}

// DetectOpenDays 在原始记录上（不补合成下班）查找今天之前仍有未闭合上班的日子。
// 同一条记录在每次调用时只要条件成立就会重复上报，去重由下游负责。
func (g *Engine) DetectOpenDays(userID string, events []Event) ([]OpenDayReport, error) {
	if err := validate(events); err != nil {
		return nil, err
	}

	today := g.Today()
	buckets := make(map[string][]Event)
	for _, e := range g.sortEvents(events) {
		key := g.DayKey(e.Timestamp)
		if key >= today {
			continue
		}
		buckets[key] = append(buckets[key], e)
	}

	days := make([]string, 0, len(buckets))
	for day := range buckets {
		days = append(days, day)
	}
	sort.Strings(days)

	var reports []OpenDayReport
	for _, day := range days {
		open := trailingOpen(buckets[day])
		if open == nil {
			continue
		}
		reports = append(reports, OpenDayReport{
			UserID:          userID,
			Date:            day,
			OpenEntryID:     open.ID,
			OpenTimestamp:   open.Timestamp,
			ImpliedEndOfDay: g.EndOfDay(open.Timestamp),
		})
	}
	return reports, nil
}

// trailingOpen 与 Pair 相同的开/闭扫描，返回扫描结束时仍未闭合的上班
func trailingOpen(sorted []Event) *Event {
	var open *Event
	for i := range sorted {
		switch sorted[i].Kind {
		case KindClockIn:
			open = &sorted[i]
		case KindClockOut:
			open = nil
		}
	}
	return open
}
