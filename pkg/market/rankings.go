package market

import "sort"

// DeriveGainers 从成交额榜衍生涨幅榜：
// 过滤涨跌幅为正的条目，按涨跌幅降序取前 n 名。
// 纯函数，输入切片不被修改。
func DeriveGainers(byValue []RankedStock, n int) []RankedStock {
	gainers := make([]RankedStock, 0, len(byValue))
	for _, s := range byValue {
		if s.ChangePercent > 0 {
			gainers = append(gainers, s)
		}
	}

	sort.SliceStable(gainers, func(i, j int) bool {
		return gainers[i].ChangePercent > gainers[j].ChangePercent
	})

	if len(gainers) > n {
		gainers = gainers[:n]
	}
	return gainers
}

// DeriveLosers 从成交额榜衍生跌幅榜：
// 过滤涨跌幅为负的条目，按涨跌幅升序（跌得最多在前）取前 n 名。
func DeriveLosers(byValue []RankedStock, n int) []RankedStock {
	losers := make([]RankedStock, 0, len(byValue))
	for _, s := range byValue {
		if s.ChangePercent < 0 {
			losers = append(losers, s)
		}
	}

	sort.SliceStable(losers, func(i, j int) bool {
		return losers[i].ChangePercent < losers[j].ChangePercent
	})

	if len(losers) > n {
		losers = losers[:n]
	}
	return losers
}

// sortNVDRByNet 按净买入降序排列
func sortNVDRByNet(stocks []NVDRStock) {
	sort.SliceStable(stocks, func(i, j int) bool {
		if stocks[i].Net != stocks[j].Net {
			return stocks[i].Net > stocks[j].Net
		}
		return stocks[i].Symbol < stocks[j].Symbol
	})
}
