package timeclock

import "sort"

// DailySummary 单日汇总
type DailySummary struct {
	Date             string
	Pairs            []SessionPair
	TotalMinutes     float64
	TotalHours       float64
	IsComplete       bool
	HasModifications bool
}

// PeriodSummary 区间汇总，DailySummaries 按日期降序
type PeriodSummary struct {
	DailySummaries     []DailySummary
	TotalDays          int
	TotalHours         float64
	AverageHoursPerDay float64
}

// Summarize 按本地自然日分组，逐日归一化、配对并计算汇总。
// 平均工时只统计完整的日子，没有完整日时为 0。
func (g *Engine) Summarize(events []Event) (*PeriodSummary, error) {
	if err := validate(events); err != nil {
		return nil, err
	}

	buckets := make(map[string][]Event)
	for _, e := range events {
		key := g.DayKey(e.Timestamp)
		buckets[key] = append(buckets[key], e)
	}

	days := make([]string, 0, len(buckets))
	for day := range buckets {
		days = append(days, day)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))

	result := &PeriodSummary{DailySummaries: make([]DailySummary, 0, len(days))}
	var totalHours float64
	completeDays := 0

	for _, day := range days {
		ds, err := g.summarizeDay(day, buckets[day])
		if err != nil {
			return nil, err
		}
		result.DailySummaries = append(result.DailySummaries, *ds)
		totalHours += ds.TotalHours
		if ds.IsComplete {
			completeDays++
		}
	}

	result.TotalDays = len(days)
	result.TotalHours = round2(totalHours)
	if completeDays > 0 {
		result.AverageHoursPerDay = round2(result.TotalHours / float64(completeDays))
	}
	return result, nil
}

// SummarizeDay 汇总单个日期桶
func (g *Engine) SummarizeDay(day string, events []Event) (*DailySummary, error) {
	if err := validate(events); err != nil {
		return nil, err
	}
	return g.summarizeDay(day, events)
}

func (g *Engine) summarizeDay(day string, events []Event) (*DailySummary, error) {
	entries, err := g.Normalize(events)
	if err != nil {
		return nil, err
	}
	pairs := g.Pair(entries)

	ds := &DailySummary{
		Date:       day,
		Pairs:      pairs,
		IsComplete: true,
	}
	for _, p := range pairs {
		ds.TotalMinutes += p.DurationMinutes
		if p.Open() {
			ds.IsComplete = false
		}
	}
	ds.TotalHours = round2(ds.TotalMinutes / 60)

	for _, e := range events {
		if e.Status == StatusModified {
			ds.HasModifications = true
			break
		}
	}
	return ds, nil
}
