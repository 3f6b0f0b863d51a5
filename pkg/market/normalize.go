package market

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// 归一化公共契约：每个必填数值字段若不是有限数，替换为文档化的
// 默认值（一般为 0，大盘成交量用非零基线），只告警不报错，
// 输出记录的所有数值字段保证有限。

// numField 从松散负载中提取数值字段。
// 接受 JSON 数字和数字字符串；NaN/Inf/缺失/类型错误都替换为 def。
func numField(m map[string]interface{}, key string, def float64, log *logrus.Entry) float64 {
	v, ok := m[key]
	if !ok || v == nil {
		logSubstitution(log, key, "missing", def)
		return def
	}

	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			logSubstitution(log, key, "not finite", def)
			return def
		}
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			logSubstitution(log, key, "unparsable string", def)
			return def
		}
		return f
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			logSubstitution(log, key, "unparsable number", def)
			return def
		}
		return f
	default:
		logSubstitution(log, key, "wrong type", def)
		return def
	}
}

// intField 提取整数字段，规则同 numField
func intField(m map[string]interface{}, key string, def int, log *logrus.Entry) int {
	return int(numField(m, key, float64(def), log))
}

// strField 提取字符串字段，缺失时返回 def
func strField(m map[string]interface{}, key, def string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return def
}

func logSubstitution(log *logrus.Entry, field, reason string, def float64) {
	if log == nil {
		return
	}
	log.WithFields(logrus.Fields{
		"field":   field,
		"reason":  reason,
		"default": def,
	}).Warn("Numeric field substituted during normalization")
}

// stampTimestamp 从包裹元数据取毫秒时间戳，无法解析时退回当前时间
func stampTimestamp(env *Envelope, log *logrus.Entry) int64 {
	if ts, ok := env.CapturedAtMillis(); ok {
		return ts
	}
	if log != nil {
		log.WithField("captured_at", env.Meta.CapturedAt).Warn("Failed to parse capturedAt, using current time")
	}
	return time.Now().UnixMilli()
}

// decodeObject 把负载解码为松散对象，失败返回 nil
func decodeObject(raw json.RawMessage, log *logrus.Entry) map[string]interface{} {
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		if log != nil {
			log.WithError(err).Warn("Snapshot payload is not an object, dropping record")
		}
		return nil
	}
	return m
}

// NormalizeMarketOverview 归一化大盘总览。
// 成交量为零或缺失时替换为 FallbackTotalVolume 而不是保留 0。
func NormalizeMarketOverview(env *Envelope, log *logrus.Entry) *MarketOverview {
	m := decodeObject(env.Payload(), log)
	if m == nil {
		return nil
	}

	volume := numField(m, "totalVolume", 0, log)
	if volume == 0 {
		logSubstitution(log, "totalVolume", "zero volume", FallbackTotalVolume)
		volume = FallbackTotalVolume
	}

	return &MarketOverview{
		Index:         numField(m, "index", 0, log),
		Change:        numField(m, "change", 0, log),
		ChangePercent: numField(m, "changePercent", 0, log),
		TotalValue:    numField(m, "totalValue", 0, log),
		TotalVolume:   volume,
		Advances:      intField(m, "advances", 0, log),
		Declines:      intField(m, "declines", 0, log),
		Unchanged:     intField(m, "unchanged", 0, log),
		NewHighs:      intField(m, "newHighs", 0, log),
		NewLows:       intField(m, "newLows", 0, log),
		Timestamp:     stampTimestamp(env, log),
	}
}

// normalizeFlow 归一化单个投资者类别的买卖数据
func normalizeFlow(m map[string]interface{}, investor string, log *logrus.Entry) InvestorFlow {
	raw, _ := m[investor].(map[string]interface{})
	if raw == nil {
		logSubstitution(log, investor, "missing investor class", 0)
		raw = map[string]interface{}{}
	}
	return InvestorFlow{
		Investor: investor,
		Buy:      numField(raw, "buy", 0, log),
		Sell:     numField(raw, "sell", 0, log),
		Net:      numField(raw, "net", 0, log),
	}
}

// NormalizeInvestorSummary 归一化四类投资者汇总
func NormalizeInvestorSummary(env *Envelope, log *logrus.Entry) *InvestorSummary {
	m := decodeObject(env.Payload(), log)
	if m == nil {
		return nil
	}

	return &InvestorSummary{
		Foreign:     normalizeFlow(m, InvestorForeign, log),
		Institution: normalizeFlow(m, InvestorInstitution, log),
		Retail:      normalizeFlow(m, InvestorRetail, log),
		Proprietary: normalizeFlow(m, InvestorProprietary, log),
		Timestamp:   stampTimestamp(env, log),
	}
}

// NormalizeSectors 归一化行业板块列表
func NormalizeSectors(env *Envelope, log *logrus.Entry) *SectorBoard {
	var rows []map[string]interface{}
	if err := json.Unmarshal(env.Payload(), &rows); err != nil {
		if log != nil {
			log.WithError(err).Warn("Sector payload is not an array, dropping record")
		}
		return nil
	}

	sectors := make([]Sector, 0, len(rows))
	for _, row := range rows {
		sectors = append(sectors, Sector{
			ID:            strField(row, "id", ""),
			Name:          strField(row, "name", ""),
			Index:         numField(row, "index", 0, log),
			Change:        numField(row, "change", 0, log),
			ChangePercent: numField(row, "changePercent", 0, log),
			Value:         numField(row, "value", 0, log),
			Volume:        numField(row, "volume", 0, log),
		})
	}

	return &SectorBoard{
		Sectors:   sectors,
		Timestamp: stampTimestamp(env, log),
	}
}

// NormalizeNVDR 归一化 NVDR 每股数据。负载是以股票代码为键的映射。
func NormalizeNVDR(env *Envelope, log *logrus.Entry) *NVDRBoard {
	var bySymbol map[string]map[string]interface{}
	if err := json.Unmarshal(env.Payload(), &bySymbol); err != nil {
		if log != nil {
			log.WithError(err).Warn("NVDR payload is not a symbol map, dropping record")
		}
		return nil
	}

	stocks := make([]NVDRStock, 0, len(bySymbol))
	for symbol, row := range bySymbol {
		stocks = append(stocks, NVDRStock{
			Symbol:    strings.ToUpper(strings.TrimSpace(symbol)),
			Buy:       numField(row, "buy", 0, log),
			Sell:      numField(row, "sell", 0, log),
			Net:       numField(row, "net", 0, log),
			MarketCap: numField(row, "marketCap", 0, log),
			Ratio:     numField(row, "ratio", 0, log),
		})
	}

	// map 遍历无序，按净买入降序排列保证输出稳定
	sortNVDRByNet(stocks)

	return &NVDRBoard{
		Stocks:    stocks,
		Timestamp: stampTimestamp(env, log),
	}
}

// NormalizeSetIndex 归一化 setIndex 快照。
// 这里保留零成交量，由调用方（如历史成交量序列）决定是否丢弃。
func NormalizeSetIndex(env *Envelope, log *logrus.Entry) *SetIndexSnapshot {
	m := decodeObject(env.Payload(), log)
	if m == nil {
		return nil
	}

	return &SetIndexSnapshot{
		Index:     numField(m, "index", 0, log),
		Change:    numField(m, "change", 0, log),
		Value:     numField(m, "value", 0, log),
		Volume:    numField(m, "volume", 0, log),
		Timestamp: stampTimestamp(env, log),
	}
}

// normalizeRankedList 归一化一张排行榜
func normalizeRankedList(rows []map[string]interface{}, log *logrus.Entry) []RankedStock {
	list := make([]RankedStock, 0, len(rows))
	for _, row := range rows {
		symbol := strings.ToUpper(strings.TrimSpace(strField(row, "symbol", "")))
		if symbol == "" {
			continue
		}
		list = append(list, RankedStock{
			Symbol:        symbol,
			Name:          strField(row, "name", ""),
			Price:         numField(row, "price", 0, log),
			Change:        numField(row, "change", 0, log),
			ChangePercent: numField(row, "changePercent", 0, log),
			Volume:        numField(row, "volume", 0, log),
			Value:         numField(row, "value", 0, log),
		})
	}
	return list
}

// NormalizeTopRankings 归一化四张排行榜。
// 上游缺失 gainers/losers 时由成交额榜衍生。
func NormalizeTopRankings(env *Envelope, log *logrus.Entry) *TopRankings {
	var payload struct {
		Gainers  []map[string]interface{} `json:"gainers"`
		Losers   []map[string]interface{} `json:"losers"`
		ByVolume []map[string]interface{} `json:"byVolume"`
		ByValue  []map[string]interface{} `json:"byValue"`
	}
	if err := json.Unmarshal(env.Payload(), &payload); err != nil {
		if log != nil {
			log.WithError(err).Warn("Rankings payload malformed, dropping record")
		}
		return nil
	}

	rankings := &TopRankings{
		Gainers:   normalizeRankedList(payload.Gainers, log),
		Losers:    normalizeRankedList(payload.Losers, log),
		ByVolume:  normalizeRankedList(payload.ByVolume, log),
		ByValue:   normalizeRankedList(payload.ByValue, log),
		Timestamp: stampTimestamp(env, log),
	}

	if len(rankings.Gainers) == 0 {
		rankings.Gainers = DeriveGainers(rankings.ByValue, TopN)
	}
	if len(rankings.Losers) == 0 {
		rankings.Losers = DeriveLosers(rankings.ByValue, TopN)
	}

	return rankings
}
