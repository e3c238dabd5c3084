package timeclock

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidEventKind 打卡记录类型无法识别（数据完整性错误，不做猜测）
var ErrInvalidEventKind = errors.New("无效的打卡类型")

// Kind 打卡类型
type Kind string

const (
	KindClockIn  Kind = "clock_in"
	KindClockOut Kind = "clock_out"
)

// Valid 是否为已知类型
func (k Kind) Valid() bool {
	return k == KindClockIn || k == KindClockOut
}

// Status 打卡记录审核状态
type Status string

const (
	StatusApproved Status = "approved"
	StatusModified Status = "modified"
	StatusPending  Status = "pending"
	StatusRejected Status = "rejected"
)

// ExitReason 合成下班记录的产生原因
type ExitReason string

const (
	// ExitEndOfDay 过去日期的最后一次上班没有下班，补在当天 23:59:59.999
	ExitEndOfDay ExitReason = "end_of_day"
	// ExitConsecutiveEntry 连续两次上班，补在第二次上班时刻
	ExitConsecutiveEntry ExitReason = "consecutive_entry"
)

// Entry 归一化序列中的元素：真实打卡 Event 或合成下班 SyntheticExit。
// 接口封闭，包外无法实现。
type Entry interface {
	At() time.Time
	IsClockIn() bool
	sealed()
}

// Event 持久层读出的真实打卡记录，核心只读
type Event struct {
	ID        string
	UserID    string
	Kind      Kind
	Timestamp time.Time
	IsManual  bool
	Status    Status
}

func (e Event) At() time.Time   { return e.Timestamp }
func (e Event) IsClockIn() bool { return e.Kind == KindClockIn }
func (Event) sealed()           {}

// SyntheticExit 预处理阶段合成的下班记录，只存在于一次汇总计算中，不可持久化
type SyntheticExit struct {
	UserID    string
	Timestamp time.Time
	Reason    ExitReason
	// ClosesID 被关闭的上班记录 ID
	ClosesID string
}

func (s SyntheticExit) At() time.Time { return s.Timestamp }
func (SyntheticExit) IsClockIn() bool { return false }
func (SyntheticExit) sealed()         {}

// Label 展示用标识
func (s SyntheticExit) Label() string {
	switch s.Reason {
	case ExitEndOfDay:
		return "autoexit-" + s.ClosesID
	default:
		return "virtual-" + s.ClosesID
	}
}

// Note 展示用说明
func (s SyntheticExit) Note() string {
	switch s.Reason {
	case ExitEndOfDay:
		return "未打下班卡，系统按当日结束时间自动补齐"
	default:
		return "连续上班打卡，系统在下一次上班时刻自动补齐下班"
	}
}

func validate(events []Event) error {
	for _, e := range events {
		if !e.Kind.Valid() {
			return fmt.Errorf("%w: id=%s kind=%q", ErrInvalidEventKind, e.ID, e.Kind)
		}
	}
	return nil
}
