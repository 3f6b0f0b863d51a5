package market

// FallbackTotalVolume 大盘成交量缺失/为零时的替代基线（千股）。
// 取 SET 的典型日均成交量，避免下游把"字段缺失"渲染成"市场无成交"，
// 也避免以成交量作分母的指标除零。
const FallbackTotalVolume = 45000

// TopN 衍生涨跌幅榜的条目数
const TopN = 10

// MarketOverview 大盘总览。
// 归一化之后所有数值字段保证是有限数（非 NaN/Inf）。
type MarketOverview struct {
	Index         float64 `json:"index"`         // SET 指数
	Change        float64 `json:"change"`        // 涨跌点数
	ChangePercent float64 `json:"changePercent"` // 涨跌幅(%)
	TotalValue    float64 `json:"totalValue"`    // 成交额(百万泰铢)
	TotalVolume   float64 `json:"totalVolume"`   // 成交量(千股)
	Advances      int     `json:"advances"`      // 上涨家数
	Declines      int     `json:"declines"`      // 下跌家数
	Unchanged     int     `json:"unchanged"`     // 平盘家数
	NewHighs      int     `json:"newHighs"`      // 创新高家数
	NewLows       int     `json:"newLows"`       // 创新低家数
	Timestamp     int64   `json:"timestamp"`     // 毫秒时间戳，来自 meta.capturedAt
}

// 投资者类别键
const (
	InvestorForeign     = "foreign"
	InvestorInstitution = "institution"
	InvestorRetail      = "retail"
	InvestorProprietary = "proprietary"
)

// InvestorFlow 单一投资者类别的买卖数据。
// Net 由上游直接提供（买-卖），本层不重算。
type InvestorFlow struct {
	Investor string  `json:"investor"` // 类别键
	Buy      float64 `json:"buy"`      // 买入金额(百万泰铢)
	Sell     float64 `json:"sell"`     // 卖出金额(百万泰铢)
	Net      float64 `json:"net"`      // 净买入金额(百万泰铢)
}

// InvestorSummary 四类投资者的当日汇总
type InvestorSummary struct {
	Foreign     InvestorFlow `json:"foreign"`
	Institution InvestorFlow `json:"institution"`
	Retail      InvestorFlow `json:"retail"`
	Proprietary InvestorFlow `json:"proprietary"`
	Timestamp   int64        `json:"timestamp"`
}

// Sector 行业板块数据
type Sector struct {
	ID            string  `json:"id"`            // 板块代码，如 "ENERG"
	Name          string  `json:"name"`          // 板块名称
	Index         float64 `json:"index"`         // 板块指数
	Change        float64 `json:"change"`        // 涨跌点数
	ChangePercent float64 `json:"changePercent"` // 涨跌幅(%)
	Value         float64 `json:"value"`         // 市值代理(百万泰铢)
	Volume        float64 `json:"volume"`        // 成交量(千股)
}

// SectorBoard 当日全部板块
type SectorBoard struct {
	Sectors   []Sector `json:"sectors"`
	Timestamp int64    `json:"timestamp"`
}

// NVDRStock 单只股票的 NVDR 交易数据
type NVDRStock struct {
	Symbol    string  `json:"symbol"`
	Buy       float64 `json:"buy"`       // NVDR 买入金额(百万泰铢)
	Sell      float64 `json:"sell"`      // NVDR 卖出金额(百万泰铢)
	Net       float64 `json:"net"`       // NVDR 净买入金额(百万泰铢)
	MarketCap float64 `json:"marketCap"` // 市值代理(百万泰铢)
	Ratio     float64 `json:"ratio"`     // NVDR 持有比例(%)
}

// NVDRBoard 当日 NVDR 全量数据
type NVDRBoard struct {
	Stocks    []NVDRStock `json:"stocks"`
	Timestamp int64       `json:"timestamp"`
}

// RankedStock 排行榜条目
type RankedStock struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name,omitempty"`
	Price         float64 `json:"price,omitempty"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	Volume        float64 `json:"volume,omitempty"`
	Value         float64 `json:"value,omitempty"`
}

// TopRankings 四张排行榜。
// 上游只保证提供成交额/成交量榜，涨跌幅榜缺失时由成交额榜衍生。
type TopRankings struct {
	Gainers   []RankedStock `json:"gainers"`
	Losers    []RankedStock `json:"losers"`
	ByVolume  []RankedStock `json:"byVolume"`
	ByValue   []RankedStock `json:"byValue"`
	Timestamp int64         `json:"timestamp"`
}

// SetIndexSnapshot setIndex 类别的单日快照
type SetIndexSnapshot struct {
	Index     float64 `json:"index"`
	Change    float64 `json:"change"`
	Value     float64 `json:"value"`  // 成交额(百万泰铢)
	Volume    float64 `json:"volume"` // 成交量(千股)，此处不替换零值，由调用方决定取舍
	Timestamp int64   `json:"timestamp"`
}
