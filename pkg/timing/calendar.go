package timing

import (
	"time"
)

// DateLayout 交易日期的存储键格式 (YYYY-MM-DD)
const DateLayout = "2006-01-02"

// bangkok 泰国交易时区，固定 UTC+7，无夏令时。
// 这里不使用 time.LoadLocation("Asia/Bangkok")，避免依赖部署环境的 tzdata；
// 交易日必须由墙钟时间换算到 UTC+7 得出，与服务器所在时区无关。
var bangkok = time.FixedZone("UTC+7", 7*60*60)

// Bangkok 返回交易时区
func Bangkok() *time.Location {
	return bangkok
}

// TimeService 提供当前时间接口，用于mock测试
type TimeService interface {
	Now() time.Time
}

// SystemTimeService 使用系统实际时间
type SystemTimeService struct{}

func (s *SystemTimeService) Now() time.Time {
	return time.Now()
}

// TradingCalendar 提供以 UTC+7 为基准的交易日历计算
type TradingCalendar struct {
	timeService TimeService
}

// NewTradingCalendar 创建新的交易日历
func NewTradingCalendar(timeService TimeService) *TradingCalendar {
	return &TradingCalendar{
		timeService: timeService,
	}
}

// DefaultTradingCalendar 使用系统时间的默认交易日历
func DefaultTradingCalendar() *TradingCalendar {
	return NewTradingCalendar(&SystemTimeService{})
}

// Now 返回当前时间（换算到 UTC+7）
func (c *TradingCalendar) Now() time.Time {
	return c.timeService.Now().In(bangkok)
}

// Today 返回当前交易日期键。
// 16:00 UTC 仍是当天，17:00 UTC 在 UTC+7 已经跨入下一天。
func (c *TradingCalendar) Today() string {
	return c.Now().Format(DateLayout)
}

// DaysAgo 返回 n 个自然日（非交易日）之前的日期键。
// 使用绝对时间减法跨越月末/年末，不对日期分量做逐项递减。
func (c *TradingCalendar) DaysAgo(n int) string {
	return c.Now().Add(-time.Duration(n) * 24 * time.Hour).Format(DateLayout)
}

// Yesterday 返回昨天的日期键
func (c *TradingCalendar) Yesterday() string {
	return c.DaysAgo(1)
}

// IsTradingDay 判断是否是交易日（周一到周五）
func (c *TradingCalendar) IsTradingDay(t time.Time) bool {
	weekday := t.In(bangkok).Weekday()
	return weekday >= time.Monday && weekday <= time.Friday
}

// IsAfterTradingEnd 判断当前是否在收盘后（SET 下午时段 16:30 收盘）。
// 归档任务用它决定今天的快照是否已经完整。
func (c *TradingCalendar) IsAfterTradingEnd() bool {
	now := c.Now()
	if !c.IsTradingDay(now) {
		return false
	}
	return now.Format("15:04:05") >= "16:30:00"
}

// ParseDate 解析日期键，返回该日在 UTC+7 的零点
func ParseDate(date string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, date, bangkok)
}

// PrevDate 返回给定日期键的前一天，跨月/跨年同样通过绝对时间减法处理
func PrevDate(date string) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return t.Add(-24 * time.Hour).Format(DateLayout), nil
}

// IsWeekend 判断日期键是否落在周六/周日
func IsWeekend(t time.Time) bool {
	weekday := t.In(bangkok).Weekday()
	return weekday == time.Saturday || weekday == time.Sunday
}
