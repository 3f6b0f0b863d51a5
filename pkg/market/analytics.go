package market

import "sort"

// 便捷分析都是对已归一化记录的纯函数。
// 本层不做任何缓存，每次调用重新计算。

// TrendDirection 资金流向分类
type TrendDirection string

const (
	TrendIn      TrendDirection = "IN"
	TrendOut     TrendDirection = "OUT"
	TrendNeutral TrendDirection = "NEUTRAL"
)

// flowTrendThresholdRatio 判定流入/流出的阈值占成交额的比例
const flowTrendThresholdRatio = 0.005

// defensiveSectorIDs 防御性板块代码白名单（固定）
var defensiveSectorIDs = []string{"COMM", "FOOD", "HELTH", "ICT"}

// SmartMoneyNet 聪明钱净流入：外资与机构净买入之和
func SmartMoneyNet(s *InvestorSummary) float64 {
	return s.Foreign.Net + s.Institution.Net
}

// ClassifyFlowTrend 按聪明钱净流入相对成交额的占比分类资金流向。
// 净流入超过成交额的 ±0.5% 判定为 IN/OUT，否则 NEUTRAL。
func ClassifyFlowTrend(s *InvestorSummary, turnover float64) TrendDirection {
	if turnover <= 0 {
		return TrendNeutral
	}

	threshold := turnover * flowTrendThresholdRatio
	net := SmartMoneyNet(s)

	switch {
	case net > threshold:
		return TrendIn
	case net < -threshold:
		return TrendOut
	default:
		return TrendNeutral
	}
}

// TopSectorsByChange 按涨跌幅降序取前 n 个板块
func TopSectorsByChange(b *SectorBoard, n int) []Sector {
	return topSectors(b, n, func(i, j Sector) bool {
		return i.ChangePercent > j.ChangePercent
	})
}

// TopSectorsByValue 按市值代理降序取前 n 个板块
func TopSectorsByValue(b *SectorBoard, n int) []Sector {
	return topSectors(b, n, func(i, j Sector) bool {
		return i.Value > j.Value
	})
}

// TopSectorsByVolume 按成交量降序取前 n 个板块
func TopSectorsByVolume(b *SectorBoard, n int) []Sector {
	return topSectors(b, n, func(i, j Sector) bool {
		return i.Volume > j.Volume
	})
}

func topSectors(b *SectorBoard, n int, less func(i, j Sector) bool) []Sector {
	out := make([]Sector, len(b.Sectors))
	copy(out, b.Sectors)

	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i], out[j])
	})

	if len(out) > n {
		out = out[:n]
	}
	return out
}

// DefensiveSectorPerformance 防御性板块的平均涨跌幅。
// 返回均值和参与计算的板块数；白名单板块一个都不在时返回 (0, 0)。
func DefensiveSectorPerformance(b *SectorBoard) (float64, int) {
	allow := make(map[string]bool, len(defensiveSectorIDs))
	for _, id := range defensiveSectorIDs {
		allow[id] = true
	}

	sum := 0.0
	count := 0
	for _, s := range b.Sectors {
		if allow[s.ID] {
			sum += s.ChangePercent
			count++
		}
	}

	if count == 0 {
		return 0, 0
	}
	return sum / float64(count), count
}
