package timeclock

import "sort"

// Normalize 将无序的原始打卡记录整理为严格交替的上班/下班序列。
//
// 步骤：
//  1. 按时间升序排序；同一时刻的记录按扫描状态排列：已有未闭合上班时下班在前，否则上班在前
//  2. 日终补齐：某条上班是最后一条、或下一条仍是上班且跨日，且该日早于今天 → 在当日 23:59:59.999 补下班
//  3. 连续上班补齐：上班后紧跟上班 → 在第二次上班时刻补下班
func (g *Engine) Normalize(events []Event) ([]Entry, error) {
	if err := validate(events); err != nil {
		return nil, err
	}
	sorted := g.sortEvents(events)
	return insertConsecutiveExits(g.insertEndOfDayExits(sorted)), nil
}

// sortEvents 返回排好序的副本，不修改入参。
// 结果只取决于记录集合本身，与入参顺序无关。
func (g *Engine) sortEvents(events []Event) []Event {
	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.ID < b.ID
	})

	today := g.Today()
	open := false
	openDay := ""
	for i := 0; i < len(sorted); {
		j := i + 1
		for j < len(sorted) && sorted[j].Timestamp.Equal(sorted[i].Timestamp) {
			j++
		}

		day := g.DayKey(sorted[i].Timestamp)
		// 过去日期遗留的上班会在当日结束时被补齐下班，跨日后视为已闭合
		if open && day != openDay && openDay < today {
			open = false
		}
		if j-i > 1 {
			orderTies(sorted[i:j], open)
		}
		for _, e := range sorted[i:j] {
			if e.IsClockIn() {
				open = true
				openDay = day
			} else {
				open = false
			}
		}
		i = j
	}
	return sorted
}

// orderTies 原地重排同一时刻的记录：从当前状态出发上班、下班交替，多余的同类记录排在最后
func orderTies(group []Event, open bool) {
	var ins, outs []Event
	for _, e := range group {
		if e.IsClockIn() {
			ins = append(ins, e)
		} else {
			outs = append(outs, e)
		}
	}

	k := 0
	for len(ins) > 0 && len(outs) > 0 {
		if open {
			group[k], outs = outs[0], outs[1:]
		} else {
			group[k], ins = ins[0], ins[1:]
		}
		open = !open
		k++
	}
	k += copy(group[k:], ins)
	copy(group[k:], outs)
}

func (g *Engine) insertEndOfDayExits(events []Event) []Entry {
	today := g.Today()
	out := make([]Entry, 0, len(events)+1)

	for i, e := range events {
		out = append(out, e)
		if !e.IsClockIn() {
			continue
		}

		day := g.DayKey(e.Timestamp)
		if i+1 < len(events) {
			next := events[i+1]
			if !next.IsClockIn() || g.DayKey(next.Timestamp) == day {
				continue
			}
		}
		if day >= today {
			continue
		}

		out = append(out, SyntheticExit{
			UserID:    e.UserID,
			Timestamp: g.EndOfDay(e.Timestamp),
			Reason:    ExitEndOfDay,
			ClosesID:  e.ID,
		})
	}
	return out
}

func insertConsecutiveExits(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))

	for i, en := range entries {
		out = append(out, en)
		if i+1 >= len(entries) || !en.IsClockIn() || !entries[i+1].IsClockIn() {
			continue
		}
		in, ok := en.(Event)
		if !ok {
			continue
		}
		out = append(out, SyntheticExit{
			UserID:    in.UserID,
			Timestamp: entries[i+1].At(),
			Reason:    ExitConsecutiveEntry,
			ClosesID:  in.ID,
		})
	}
	return out
}
