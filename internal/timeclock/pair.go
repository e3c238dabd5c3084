package timeclock

// SessionPair 一段工作区间。ClockOut 为 nil 表示仍在进行中。
type SessionPair struct {
	ClockIn         Event
	ClockOut        Entry
	DurationMinutes float64
}

// Open 是否未闭合
func (p SessionPair) Open() bool { return p.ClockOut == nil }

// Pair 单遍扫描已归一化的序列，输出按时间排列的工作区间。
//
//   - 上班：若已有未闭合上班（归一化后不应出现），先以 (上班, nil, 0) 输出
//   - 下班：有未闭合上班则配对；否则视为孤立下班，直接丢弃
//   - 结束：仍有未闭合上班时，按当前时间计算进行中时长
//
// 时长一律不小于 0。
func (g *Engine) Pair(entries []Entry) []SessionPair {
	pairs := make([]SessionPair, 0, len(entries)/2+1)
	var open *Event

	for _, en := range entries {
		if en.IsClockIn() {
			in, ok := en.(Event)
			if !ok {
				continue
			}
			if open != nil {
				pairs = append(pairs, SessionPair{ClockIn: *open})
			}
			open = &in
			continue
		}

		if open == nil {
			continue
		}
		pairs = append(pairs, SessionPair{
			ClockIn:         *open,
			ClockOut:        en,
			DurationMinutes: minutesBetween(open.Timestamp, en.At()),
		})
		open = nil
	}

	if open != nil {
		pairs = append(pairs, SessionPair{
			ClockIn:         *open,
			DurationMinutes: minutesBetween(open.Timestamp, g.now()),
		})
	}
	return pairs
}
