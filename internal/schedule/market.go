// Package schedule 判断美股扩展交易时段，并按固定间隔驱动扫描循环。
package schedule

import (
	"fmt"
	"time"
)

// DefaultTimezone 美东时间，时段表均按此时区
const DefaultTimezone = "America/New_York"

// Session 一个交易时段 [Start, End)，以当日分钟数表示。
type Session struct {
	Name  string
	Start int
	End   int
}

func hm(h, m int) int { return h*60 + m }

// Sessions 盘前 / 常规 / 盘后
var Sessions = []Session{
	{Name: "pre-market", Start: hm(4, 0), End: hm(9, 30)},
	{Name: "regular", Start: hm(9, 30), End: hm(16, 0)},
	{Name: "after-hours", Start: hm(16, 0), End: hm(20, 0)},
}

// Market 绑定时区的时段判断。
type Market struct {
	loc *time.Location
}

func NewMarket(tz string) (*Market, error) {
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("schedule: load timezone %s: %w", tz, err)
	}
	return &Market{loc: loc}, nil
}

// SessionAt 返回 t 所处时段；周末或不在任何时段返回 false。
func (m *Market) SessionAt(t time.Time) (Session, bool) {
	local := t.In(m.loc)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return Session{}, false
	}
	min := local.Hour()*60 + local.Minute()
	for _, s := range Sessions {
		if min >= s.Start && min < s.End {
			return s, true
		}
	}
	return Session{}, false
}

// IsOpen 非周末且处于任一扩展时段。
func (m *Market) IsOpen(t time.Time) bool {
	_, ok := m.SessionAt(t)
	return ok
}
