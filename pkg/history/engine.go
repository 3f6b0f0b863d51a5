package history

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"setpulse/pkg/logger"
	"setpulse/pkg/market"
	"setpulse/pkg/store"
	"setpulse/pkg/timing"
)

// DefaultChunkSize 分块批量读取的并发上限。
// 块内并行、块间串行，约束对远端存储同时打开的连接数。
const DefaultChunkSize = 10

// DefaultMaxDaysBack 最新可用交易日探测的默认回溯上限
const DefaultMaxDaysBack = 7

// Engine 历史范围查询引擎：计算仅含工作日的日期范围，
// 对任意类别做分块并行批量读取，并记录哪些日期有数据、哪些缺失。
type Engine struct {
	svc       *market.Service
	chunkSize int
	log       *logrus.Entry
}

// NewEngine 创建历史查询引擎
func NewEngine(svc *market.Service) *Engine {
	return &Engine{
		svc:       svc,
		chunkSize: DefaultChunkSize,
		log:       logger.WithComponent("history_engine"),
	}
}

// SetChunkSize 调整分块大小，非正值重置为默认值
func (e *Engine) SetChunkSize(n int) {
	if n <= 0 {
		n = DefaultChunkSize
	}
	e.chunkSize = n
}

// RangeOptions 日期范围参数。
// StartDate 缺省时由 EndDate 往前推 Days-1 个自然日；
// EndDate 缺省为今天。默认排除周末。
type RangeOptions struct {
	StartDate       string         `json:"startDate,omitempty"`
	EndDate         string         `json:"endDate,omitempty"`
	Days            int            `json:"days,omitempty"`
	IncludeWeekends bool           `json:"includeWeekends,omitempty"`
	OnlyWeekdays    []time.Weekday `json:"onlyWeekdays,omitempty"`
}

// CalculateDateRange 枚举范围内的日期键（升序）。
// 显式 StartDate/EndDate 时按区间逐日枚举再过滤周末；
// 只给 Days 时从 EndDate 往回走，收满 Days 个合格日期为止，
// 保证"最近 5 个交易日"请求在周一也能拿满整周。
// 逐日步进用绝对时间加法，不做日期分量递减，跨月/跨年精确。
func (e *Engine) CalculateDateRange(opts RangeOptions) ([]string, error) {
	end := opts.EndDate
	if end == "" {
		end = e.svc.Calendar().Today()
	}
	endT, err := timing.ParseDate(end)
	if err != nil {
		return nil, err
	}

	keep := e.dayFilter(opts)

	if opts.StartDate == "" {
		days := opts.Days
		if days <= 0 {
			days = 1
		}
		return walkBack(endT, days, keep), nil
	}

	startT, err := timing.ParseDate(opts.StartDate)
	if err != nil {
		return nil, err
	}
	if startT.After(endT) {
		return nil, errors.New("start date is after end date")
	}

	var dates []string
	for t := startT; !t.After(endT); t = t.Add(24 * time.Hour) {
		if keep(t) {
			dates = append(dates, t.Format(timing.DateLayout))
		}
	}
	return dates, nil
}

func (e *Engine) dayFilter(opts RangeOptions) func(time.Time) bool {
	if len(opts.OnlyWeekdays) > 0 {
		only := make(map[time.Weekday]bool, len(opts.OnlyWeekdays))
		for _, wd := range opts.OnlyWeekdays {
			only[wd] = true
		}
		return func(t time.Time) bool { return only[t.Weekday()] }
	}
	if opts.IncludeWeekends {
		return func(time.Time) bool { return true }
	}
	return func(t time.Time) bool { return !timing.IsWeekend(t) }
}

// walkBack 从 end 逐日回退收集 n 个合格日期，返回升序结果。
// 回退上限封顶，防止过滤器恒假时死循环。
func walkBack(end time.Time, n int, keep func(time.Time) bool) []string {
	limit := n*7 + 7
	collected := make([]string, 0, n)
	for t, steps := end, 0; len(collected) < n && steps <= limit; t, steps = t.Add(-24*time.Hour), steps+1 {
		if keep(t) {
			collected = append(collected, t.Format(timing.DateLayout))
		}
	}

	// 收集方向是倒序，翻转为升序
	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}
	return collected
}

// BatchItem 单日命中结果
type BatchItem struct {
	Date string          `json:"date"`
	Data json.RawMessage `json:"data"`
}

// BatchResult 一次历史批量读取的记录。
// 不变量: RetrievedCount + len(MissingDates) == RequestedCount，
// 且 Data 中的日期与 MissingDates 互不相交。
type BatchResult struct {
	Data           []BatchItem `json:"data"`
	MissingDates   []string    `json:"missingDates"`
	RequestedCount int         `json:"requestedCount"`
	RetrievedCount int         `json:"retrievedCount"`
}

// FetchBatch 并行读取一个类别在给定日期集上的快照。
// 每个日期独立读取，不走"昨天回退"链；单日失败只记为缺失，
// 不影响同批其它日期。结果按日期升序排列。
func (e *Engine) FetchBatch(ctx context.Context, category store.Category, dates []string) BatchResult {
	type outcome struct {
		date string
		raw  json.RawMessage
	}

	results := make([]outcome, len(dates))
	var wg sync.WaitGroup
	for i, date := range dates {
		wg.Add(1)
		go func(i int, date string) {
			defer wg.Done()
			results[i] = outcome{date: date, raw: e.svc.RawOn(ctx, category, date)}
		}(i, date)
	}
	wg.Wait()

	return collect(dates, func(i int) (string, json.RawMessage) {
		return results[i].date, results[i].raw
	})
}

// FetchRangeChunked 分块批量读取：块间串行、块内并行。
func (e *Engine) FetchRangeChunked(ctx context.Context, category store.Category, dates []string) BatchResult {
	merged := BatchResult{}

	for start := 0; start < len(dates); start += e.chunkSize {
		stop := start + e.chunkSize
		if stop > len(dates) {
			stop = len(dates)
		}

		part := e.FetchBatch(ctx, category, dates[start:stop])
		merged.Data = append(merged.Data, part.Data...)
		merged.MissingDates = append(merged.MissingDates, part.MissingDates...)
		merged.RequestedCount += part.RequestedCount
		merged.RetrievedCount += part.RetrievedCount
	}

	sortResult(&merged)
	return merged
}

// FetchRange 计算日期范围后做分块批量读取
func (e *Engine) FetchRange(ctx context.Context, category store.Category, opts RangeOptions) (BatchResult, error) {
	dates, err := e.CalculateDateRange(opts)
	if err != nil {
		return BatchResult{}, err
	}
	return e.FetchRangeChunked(ctx, category, dates), nil
}

// collect 汇总各日期的读取结果并保持不变量
func collect(dates []string, at func(i int) (string, json.RawMessage)) BatchResult {
	result := BatchResult{RequestedCount: len(dates)}

	for i := range dates {
		date, raw := at(i)
		if raw == nil {
			result.MissingDates = append(result.MissingDates, date)
			continue
		}
		result.Data = append(result.Data, BatchItem{Date: date, Data: raw})
		result.RetrievedCount++
	}

	sortResult(&result)
	return result
}

func sortResult(r *BatchResult) {
	sort.Slice(r.Data, func(i, j int) bool { return r.Data[i].Date < r.Data[j].Date })
	sort.Strings(r.MissingDates)
}

// FindLatestAvailableDate 从今天起逐日向前探测，返回第一个有
// 大盘总览数据的日期。周末/节假日"今天"没有快照时，页面靠它
// 静默回落到最近一个交易日。
//
// 刻意串行：命中即停，并行会为更早的日期浪费读取。
func (e *Engine) FindLatestAvailableDate(ctx context.Context, maxDaysBack int) (string, bool) {
	if maxDaysBack <= 0 {
		maxDaysBack = DefaultMaxDaysBack
	}

	cal := e.svc.Calendar()
	for i := 0; i <= maxDaysBack; i++ {
		date := cal.DaysAgo(i)
		if raw := e.svc.RawOn(ctx, store.CategoryMarketOverview, date); raw != nil {
			if i > 0 {
				e.log.WithFields(logrus.Fields{
					"date":      date,
					"days_back": i,
				}).Debug("Fell back to latest available trading day")
			}
			return date, true
		}
	}

	return "", false
}

// Availability 数据可用性摘要
type Availability struct {
	Category       store.Category  `json:"category"`
	Dates          []string        `json:"dates"`
	Available      map[string]bool `json:"available"`
	RequestedCount int             `json:"requestedCount"`
	AvailableCount int             `json:"availableCount"`
}

// AvailabilitySummary 最近 days 个工作日内某类别的数据可用性
func (e *Engine) AvailabilitySummary(ctx context.Context, category store.Category, days int) (Availability, error) {
	dates, err := e.CalculateDateRange(RangeOptions{Days: days})
	if err != nil {
		return Availability{}, err
	}

	result := e.FetchRangeChunked(ctx, category, dates)

	avail := Availability{
		Category:       category,
		Dates:          dates,
		Available:      make(map[string]bool, len(dates)),
		RequestedCount: result.RequestedCount,
		AvailableCount: result.RetrievedCount,
	}
	for _, d := range dates {
		avail.Available[d] = false
	}
	for _, item := range result.Data {
		avail.Available[item.Date] = true
	}

	return avail, nil
}

// DashboardCategories 组合查询覆盖的五个域类别
var DashboardCategories = []store.Category{
	store.CategoryMarketOverview,
	store.CategoryInvestorType,
	store.CategoryIndustrySector,
	store.CategoryNVDR,
	store.CategoryTopRankings,
}

// FetchAllCategories 对同一日期范围并行拉取全部五个域类别。
// 每个类别独立失败：一个慢源/坏源不阻塞其它类别的结果。
func (e *Engine) FetchAllCategories(ctx context.Context, dates []string) map[store.Category]BatchResult {
	results := make(map[store.Category]BatchResult, len(DashboardCategories))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, category := range DashboardCategories {
		wg.Add(1)
		go func(category store.Category) {
			defer wg.Done()
			part := e.FetchRangeChunked(ctx, category, dates)
			mu.Lock()
			results[category] = part
			mu.Unlock()
		}(category)
	}
	wg.Wait()

	return results
}

// SetIndexVolumes 最近 days 个交易日的 SET 指数成交量序列（升序）。
// 零成交量（上游缺字段的占位）直接丢弃，不做基线替换。
func (e *Engine) SetIndexVolumes(ctx context.Context, days int) ([]float64, error) {
	dates, err := e.CalculateDateRange(RangeOptions{Days: days})
	if err != nil {
		return nil, err
	}

	result := e.FetchRangeChunked(ctx, store.CategorySetIndex, dates)

	volumes := make([]float64, 0, len(result.Data))
	for _, item := range result.Data {
		env, parseErr := market.ParseEnvelope(item.Data)
		if parseErr != nil {
			e.log.WithError(parseErr).WithField("date", item.Date).Warn("Set index envelope malformed, skipping")
			continue
		}
		snap := market.NormalizeSetIndex(env, e.log)
		if snap == nil || snap.Volume == 0 {
			continue
		}
		volumes = append(volumes, snap.Volume)
	}

	return volumes, nil
}
