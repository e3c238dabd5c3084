package timeclock

import (
	"fmt"
	"math"
	"time"
)

// DayLayout 日期键格式
const DayLayout = "2006-01-02"

// DefaultUTCOffsetHours 默认时区偏移（中欧时间，不区分夏令时）
const DefaultUTCOffsetHours = 1

// Options 引擎参数
type Options struct {
	// UTCOffsetHours 本地时区相对 UTC 的整点偏移，用于划分自然日
	UTCOffsetHours int
	// Now 当前时间来源，为空时使用 time.Now
	Now func() time.Time
}

// Engine 打卡配对与日汇总引擎。
// 纯计算、无共享可变状态，可被多个请求并发调用。
type Engine struct {
	loc *time.Location
	now func() time.Time
}

// NewEngine 创建 Engine
func NewEngine(opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		loc: time.FixedZone(fmt.Sprintf("UTC%+d", opts.UTCOffsetHours), opts.UTCOffsetHours*3600),
		now: now,
	}
}

// Location 本地时区
func (g *Engine) Location() *time.Location { return g.loc }

// Now 引擎视角的当前时间
func (g *Engine) Now() time.Time { return g.now() }

// DayKey 返回 t 在本地时区的日期键 YYYY-MM-DD
func (g *Engine) DayKey(t time.Time) string {
	return t.In(g.loc).Format(DayLayout)
}

// Today 今天的日期键
func (g *Engine) Today() string {
	return g.DayKey(g.now())
}

// StartOfDay 本地 00:00
func (g *Engine) StartOfDay(t time.Time) time.Time {
	l := t.In(g.loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, g.loc)
}

// EndOfDay 本地 23:59:59.999
func (g *Engine) EndOfDay(t time.Time) time.Time {
	l := t.In(g.loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 23, 59, 59, int(999*time.Millisecond), g.loc)
}

// ParseDay 按本地时区解析 YYYY-MM-DD
func (g *Engine) ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DayLayout, s, g.loc)
}

// DayRange 返回 [startDay 00:00, endDay 23:59:59.999] 的闭区间
func (g *Engine) DayRange(startDay, endDay time.Time) (time.Time, time.Time) {
	return g.StartOfDay(startDay), g.EndOfDay(endDay)
}

func minutesBetween(from, to time.Time) float64 {
	d := to.Sub(from)
	if d <= 0 {
		return 0
	}
	return d.Minutes()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
