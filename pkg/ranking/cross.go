package ranking

import (
	"sort"
	"strings"

	"setpulse/pkg/market"
)

// RankCategory 排行榜类别标识
type RankCategory string

const (
	CategoryGainer RankCategory = "gainer"
	CategoryLoser  RankCategory = "loser"
	CategoryVolume RankCategory = "volume"
	CategoryValue  RankCategory = "value"
)

// CrossRanked 同时出现在多张榜单上的个股，
// Rankings 记录它在各榜的名次（从 1 开始）。
type CrossRanked struct {
	Symbol   string               `json:"symbol"`
	Name     string               `json:"name,omitempty"`
	Rankings map[RankCategory]int `json:"rankings"`
}

// DetectCrossRankings 扫描四张榜单，找出上榜两次及以上的个股。
// 同一只股票横跨涨幅榜和成交量榜通常意味着真实的资金关注，
// 单榜出现则可能只是噪声，不收录。结果按代码升序。
func DetectCrossRankings(r *market.TopRankings) []CrossRanked {
	if r == nil {
		return nil
	}

	seen := make(map[string]*CrossRanked)

	record := func(category RankCategory, list []market.RankedStock) {
		for i, stock := range list {
			symbol := strings.ToUpper(strings.TrimSpace(stock.Symbol))
			if symbol == "" {
				continue
			}
			entry, ok := seen[symbol]
			if !ok {
				entry = &CrossRanked{
					Symbol:   symbol,
					Name:     stock.Name,
					Rankings: make(map[RankCategory]int, 2),
				}
				seen[symbol] = entry
			}
			if entry.Name == "" {
				entry.Name = stock.Name
			}
			// 同一榜单重复出现时保留靠前的名次
			if _, dup := entry.Rankings[category]; !dup {
				entry.Rankings[category] = i + 1
			}
		}
	}

	record(CategoryGainer, r.Gainers)
	record(CategoryLoser, r.Losers)
	record(CategoryVolume, r.ByVolume)
	record(CategoryValue, r.ByValue)

	crossed := make([]CrossRanked, 0, len(seen))
	for _, entry := range seen {
		if len(entry.Rankings) >= 2 {
			crossed = append(crossed, *entry)
		}
	}

	sort.Slice(crossed, func(i, j int) bool { return crossed[i].Symbol < crossed[j].Symbol })
	return crossed
}
