package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"setpulse/pkg/market"
	"setpulse/pkg/store"
	"setpulse/pkg/timing"
)

type fixedTime struct {
	current time.Time
}

func (f *fixedTime) Now() time.Time {
	return f.current
}

func engineAt(t *testing.T, m *store.MemoryStore, instant string) *Engine {
	t.Helper()
	now, err := time.Parse(time.RFC3339, instant)
	require.NoError(t, err)
	svc := market.NewService(m, timing.NewTradingCalendar(&fixedTime{current: now}))
	return NewEngine(svc)
}

// 2026-03-16 周一
func mondayEngine(t *testing.T, m *store.MemoryStore) *Engine {
	return engineAt(t, m, "2026-03-16T10:00:00+07:00")
}

func overviewPath(date string) string {
	return "/setsnap/marketOverview/byDate/" + date
}

func snapshot(capturedAt string, body string) json.RawMessage {
	return json.RawMessage(`{
		"data": ` + body + `,
		"meta": {"capturedAt": "` + capturedAt + `", "schemaVersion": 2, "source": "set-scraper"}
	}`)
}

func TestCalculateDateRange_FiveTradingDaysEndingMonday(t *testing.T) {
	e := mondayEngine(t, store.NewMemoryStore())

	dates, err := e.CalculateDateRange(RangeOptions{Days: 5})
	require.NoError(t, err)

	// 往前收满 5 个工作日：上周二到本周一，跳过周六/周日
	assert.Equal(t, []string{
		"2026-03-10", "2026-03-11", "2026-03-12", "2026-03-13", "2026-03-16",
	}, dates)

	for _, d := range dates {
		day, parseErr := timing.ParseDate(d)
		require.NoError(t, parseErr)
		assert.False(t, timing.IsWeekend(day), "range must not contain weekends: %s", d)
	}
}

func TestCalculateDateRange_ExplicitRangeCrossesMonth(t *testing.T) {
	e := mondayEngine(t, store.NewMemoryStore())

	dates, err := e.CalculateDateRange(RangeOptions{
		StartDate: "2026-02-26",
		EndDate:   "2026-03-03",
	})
	require.NoError(t, err)

	// 2/28 周六、3/1 周日被排除
	assert.Equal(t, []string{"2026-02-26", "2026-02-27", "2026-03-02", "2026-03-03"}, dates)
}

func TestCalculateDateRange_IncludeWeekends(t *testing.T) {
	e := mondayEngine(t, store.NewMemoryStore())

	dates, err := e.CalculateDateRange(RangeOptions{
		StartDate:       "2026-03-13",
		EndDate:         "2026-03-16",
		IncludeWeekends: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-03-13", "2026-03-14", "2026-03-15", "2026-03-16"}, dates)
}

func TestCalculateDateRange_OnlyWeekdaysFilter(t *testing.T) {
	e := mondayEngine(t, store.NewMemoryStore())

	dates, err := e.CalculateDateRange(RangeOptions{
		StartDate:    "2026-03-02",
		EndDate:      "2026-03-16",
		OnlyWeekdays: []time.Weekday{time.Monday},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-03-02", "2026-03-09", "2026-03-16"}, dates)
}

func TestCalculateDateRange_Errors(t *testing.T) {
	e := mondayEngine(t, store.NewMemoryStore())

	tests := []struct {
		name string
		opts RangeOptions
	}{
		{"起始日期格式非法", RangeOptions{StartDate: "16/03/2026", EndDate: "2026-03-16"}},
		{"结束日期格式非法", RangeOptions{EndDate: "not-a-date"}},
		{"起始晚于结束", RangeOptions{StartDate: "2026-03-17", EndDate: "2026-03-16"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.CalculateDateRange(tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestFetchBatch_PartitionsHitsAndMisses(t *testing.T) {
	m := store.NewMemoryStore()
	m.Set(overviewPath("2026-03-12"), snapshot("2026-03-12T18:00:00+07:00", `{"index": 1401.2, "totalVolume": 48000}`))
	m.Set(overviewPath("2026-03-16"), snapshot("2026-03-16T18:00:00+07:00", `{"index": 1412.3, "totalVolume": 52000}`))
	m.FailWith(overviewPath("2026-03-13"), errors.New("i/o timeout"))
	// 03-10, 03-11 完全缺失

	dates := []string{"2026-03-10", "2026-03-11", "2026-03-12", "2026-03-13", "2026-03-16"}
	result := mondayEngine(t, m).FetchBatch(context.Background(), store.CategoryMarketOverview, dates)

	assert.Equal(t, 5, result.RequestedCount)
	assert.Equal(t, 2, result.RetrievedCount)
	assert.Equal(t, []string{"2026-03-10", "2026-03-11", "2026-03-13"}, result.MissingDates)
	assert.Equal(t, result.RequestedCount, result.RetrievedCount+len(result.MissingDates))

	require.Len(t, result.Data, 2)
	assert.Equal(t, "2026-03-12", result.Data[0].Date)
	assert.Equal(t, "2026-03-16", result.Data[1].Date)
}

func TestFetchBatch_NeverUsesYesterdayFallback(t *testing.T) {
	m := store.NewMemoryStore()
	// 前一天有数据，但历史批量查询不能回退
	m.Set(overviewPath("2026-03-15"), snapshot("2026-03-15T18:00:00+07:00", `{"index": 1405.7, "totalVolume": 47000}`))

	result := mondayEngine(t, m).FetchBatch(context.Background(), store.CategoryMarketOverview, []string{"2026-03-16"})

	assert.Equal(t, []string{"2026-03-16"}, result.MissingDates)
	assert.Zero(t, m.CallCount(overviewPath("2026-03-15")))
}

func TestFetchRangeChunked_InvariantHoldsAcrossChunks(t *testing.T) {
	m := store.NewMemoryStore()
	dates := make([]string, 0, 7)
	for day := 2; day <= 10; day++ {
		if day == 7 || day == 8 { // 周六/周日
			continue
		}
		date := fmt.Sprintf("2026-03-%02d", day)
		dates = append(dates, date)
		if day%2 == 0 {
			m.Set(overviewPath(date), snapshot(date+"T18:00:00+07:00", `{"index": 1400, "totalVolume": 45000}`))
		}
	}

	e := mondayEngine(t, m)
	e.SetChunkSize(2)
	result := e.FetchRangeChunked(context.Background(), store.CategoryMarketOverview, dates)

	assert.Equal(t, len(dates), result.RequestedCount)
	assert.Equal(t, result.RequestedCount, result.RetrievedCount+len(result.MissingDates))
	assert.Equal(t, []string{"2026-03-03", "2026-03-05", "2026-03-09"}, result.MissingDates)

	// 分块合并后仍按日期升序
	for i := 1; i < len(result.Data); i++ {
		assert.Less(t, result.Data[i-1].Date, result.Data[i].Date)
	}
}

func TestFindLatestAvailableDate_SundayFallsBackToFriday(t *testing.T) {
	m := store.NewMemoryStore()
	m.Set(overviewPath("2026-03-13"), snapshot("2026-03-13T18:05:00+07:00", `{"index": 1398.6, "totalVolume": 46500}`))

	// 周日 2026-03-15，周六/周日均无快照
	e := engineAt(t, m, "2026-03-15T11:00:00+07:00")

	date, ok := e.FindLatestAvailableDate(context.Background(), DefaultMaxDaysBack)
	require.True(t, ok)
	assert.Equal(t, "2026-03-13", date)

	// 串行探测：命中周五即停，不再探测更早的日期
	assert.Equal(t, 1, m.CallCount(overviewPath("2026-03-15")))
	assert.Equal(t, 1, m.CallCount(overviewPath("2026-03-14")))
	assert.Equal(t, 1, m.CallCount(overviewPath("2026-03-13")))
	assert.Zero(t, m.CallCount(overviewPath("2026-03-12")))

	// 端到端：按找到的日期取总览，时间戳来自周五的 capturedAt
	o := e.svc.OverviewOn(context.Background(), date)
	require.NotNil(t, o)
	expected, _ := time.Parse(time.RFC3339, "2026-03-13T18:05:00+07:00")
	assert.Equal(t, expected.UnixMilli(), o.Timestamp)
}

func TestFindLatestAvailableDate_NothingWithinWindow(t *testing.T) {
	e := engineAt(t, store.NewMemoryStore(), "2026-03-15T11:00:00+07:00")

	date, ok := e.FindLatestAvailableDate(context.Background(), 3)
	assert.False(t, ok)
	assert.Empty(t, date)
}

func TestAvailabilitySummary(t *testing.T) {
	m := store.NewMemoryStore()
	m.Set(overviewPath("2026-03-13"), snapshot("2026-03-13T18:00:00+07:00", `{"index": 1398.6, "totalVolume": 46500}`))

	summary, err := mondayEngine(t, m).AvailabilitySummary(context.Background(), store.CategoryMarketOverview, 3)
	require.NoError(t, err)

	assert.Equal(t, store.CategoryMarketOverview, summary.Category)
	assert.Equal(t, []string{"2026-03-12", "2026-03-13", "2026-03-16"}, summary.Dates)
	assert.Equal(t, 3, summary.RequestedCount)
	assert.Equal(t, 1, summary.AvailableCount)
	assert.False(t, summary.Available["2026-03-12"])
	assert.True(t, summary.Available["2026-03-13"])
	assert.False(t, summary.Available["2026-03-16"])
}

func TestFetchAllCategories_SourcesFailIndependently(t *testing.T) {
	m := store.NewMemoryStore()
	m.Set(overviewPath("2026-03-16"), snapshot("2026-03-16T18:00:00+07:00", `{"index": 1412.3, "totalVolume": 52000}`))
	m.Set("/setsnap/nvdr/byDate/2026-03-16", snapshot("2026-03-16T18:00:00+07:00", `{"PTT": {"buy": 100, "sell": 40, "net": 60}}`))
	m.FailWith("/setsnap/investorType/byDate/2026-03-16", errors.New("connection refused"))

	results := mondayEngine(t, m).FetchAllCategories(context.Background(), []string{"2026-03-16"})

	require.Len(t, results, len(DashboardCategories))
	assert.Equal(t, 1, results[store.CategoryMarketOverview].RetrievedCount)
	assert.Equal(t, 1, results[store.CategoryNVDR].RetrievedCount)

	// 坏源只影响自己，记为缺失
	assert.Equal(t, []string{"2026-03-16"}, results[store.CategoryInvestorType].MissingDates)
	assert.Equal(t, []string{"2026-03-16"}, results[store.CategoryTopRankings].MissingDates)
	assert.Equal(t, []string{"2026-03-16"}, results[store.CategoryIndustrySector].MissingDates)
}

func TestSetIndexVolumes_DropsZeroVolumes(t *testing.T) {
	m := store.NewMemoryStore()
	volumes := map[string]string{
		"2026-03-10": "21000000",
		"2026-03-11": "0", // 上游缺字段占位
		"2026-03-12": "19500000",
		"2026-03-13": "0",
		"2026-03-16": "22300000",
	}
	for date, v := range volumes {
		m.Set("/setsnap/setIndex/byDate/"+date,
			snapshot(date+"T18:00:00+07:00", `{"index": 1400, "change": 1.5, "value": 52000, "volume": `+v+`}`))
	}

	got, err := mondayEngine(t, m).SetIndexVolumes(context.Background(), 5)
	require.NoError(t, err)

	assert.Equal(t, []float64{21000000, 19500000, 22300000}, got)
}

func TestSetIndexVolumes_MissingDaysJustShorten(t *testing.T) {
	m := store.NewMemoryStore()
	m.Set("/setsnap/setIndex/byDate/2026-03-16",
		snapshot("2026-03-16T18:00:00+07:00", `{"index": 1412.3, "change": 1.5, "value": 52000, "volume": 22300000}`))

	got, err := mondayEngine(t, m).SetIndexVolumes(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []float64{22300000}, got)
}
