package store

import (
	"regexp"
	"strings"

	"setpulse/pkg/timing"
)

// Namespace 所有快照路径的固定命名空间
const Namespace = "setsnap"

// LatestAlias "最新一期"别名段，部分采集器会写入不带日期的别名路径
const LatestAlias = "latest"

// Category 数据类别，对应存储路径的第二段
type Category string

const (
	CategoryMarketOverview Category = "marketOverview"
	CategoryInvestorType   Category = "investorType"
	CategoryIndustrySector Category = "industrySector"
	CategoryNVDR           Category = "nvdr"
	CategoryTopRankings    Category = "topRankings"
	CategorySetIndex       Category = "setIndex"
)

// AllCategories 全部数据类别，按展示顺序排列
var AllCategories = []Category{
	CategoryMarketOverview,
	CategoryInvestorType,
	CategoryIndustrySector,
	CategoryNVDR,
	CategoryTopRankings,
	CategorySetIndex,
}

// trailingDate 匹配路径末段的日期键
var trailingDate = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})$`)

// PathBuilder 构造日期键控的存储路径。
// 路径语法: /{namespace}/{category}/byDate/{YYYY-MM-DD}
type PathBuilder struct {
	calendar *timing.TradingCalendar
}

// NewPathBuilder 创建路径构造器
func NewPathBuilder(calendar *timing.TradingCalendar) *PathBuilder {
	return &PathBuilder{calendar: calendar}
}

// For 返回指定类别与日期的存储路径
func (b *PathBuilder) For(category Category, date string) string {
	return "/" + Namespace + "/" + string(category) + "/byDate/" + date
}

// ForToday 返回指定类别"今天"的存储路径
func (b *PathBuilder) ForToday(category Category) string {
	return b.For(category, b.calendar.Today())
}

// Latest 返回指定类别的"最新一期"别名路径
func (b *PathBuilder) Latest(category Category) string {
	return "/" + Namespace + "/" + string(category) + "/" + LatestAlias
}

// Fallback 推导给定路径的回退路径：
//   - 路径以日期键结尾时，替换为前一天的日期键；
//   - 路径以 latest 别名结尾时，替换为昨天的日期路径；
//   - 其它路径无法推导回退，返回 ("", false)。
func (b *PathBuilder) Fallback(path string) (string, bool) {
	if m := trailingDate.FindString(path); m != "" {
		prev, err := timing.PrevDate(m)
		if err != nil {
			return "", false
		}
		return path[:len(path)-len(m)] + prev, true
	}

	if strings.HasSuffix(path, "/"+LatestAlias) {
		base := strings.TrimSuffix(path, "/"+LatestAlias)
		return base + "/byDate/" + b.calendar.Yesterday(), true
	}

	return "", false
}
