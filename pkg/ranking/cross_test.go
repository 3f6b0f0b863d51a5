package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"setpulse/pkg/market"
)

func stocks(symbols ...string) []market.RankedStock {
	list := make([]market.RankedStock, len(symbols))
	for i, s := range symbols {
		list[i] = market.RankedStock{Symbol: s}
	}
	return list
}

func TestDetectCrossRankings_RanksAreOneBased(t *testing.T) {
	r := &market.TopRankings{
		Gainers:  stocks("CPALL", "BDMS", "PTT"), // PTT 在涨幅榜第 3
		ByVolume: stocks("PTT", "KBANK"),         // PTT 在成交量榜第 1
	}

	crossed := DetectCrossRankings(r)
	require.Len(t, crossed, 1)

	assert.Equal(t, "PTT", crossed[0].Symbol)
	assert.Equal(t, map[RankCategory]int{
		CategoryGainer: 3,
		CategoryVolume: 1,
	}, crossed[0].Rankings)
}

func TestDetectCrossRankings_SingleListSymbolsExcluded(t *testing.T) {
	r := &market.TopRankings{
		Gainers:  stocks("CPALL", "BDMS"),
		Losers:   stocks("SCB"),
		ByVolume: stocks("KBANK"),
		ByValue:  stocks("AOT"),
	}

	assert.Empty(t, DetectCrossRankings(r))
}

func TestDetectCrossRankings_SymbolNormalization(t *testing.T) {
	r := &market.TopRankings{
		Gainers: stocks(" ptt "),
		ByValue: stocks("PTT"),
	}

	crossed := DetectCrossRankings(r)
	require.Len(t, crossed, 1)
	assert.Equal(t, "PTT", crossed[0].Symbol)
	assert.Len(t, crossed[0].Rankings, 2)
}

func TestDetectCrossRankings_SortedBySymbol(t *testing.T) {
	r := &market.TopRankings{
		Gainers:  stocks("PTT", "AOT", "KBANK"),
		ByVolume: stocks("KBANK", "PTT", "AOT"),
	}

	crossed := DetectCrossRankings(r)
	require.Len(t, crossed, 3)
	assert.Equal(t, "AOT", crossed[0].Symbol)
	assert.Equal(t, "KBANK", crossed[1].Symbol)
	assert.Equal(t, "PTT", crossed[2].Symbol)
}

func TestDetectCrossRankings_FourListEntry(t *testing.T) {
	r := &market.TopRankings{
		Gainers:  stocks("DELTA", "CPALL"),
		Losers:   stocks("SCB"),
		ByVolume: stocks("DELTA"),
		ByValue:  stocks("CPALL", "DELTA"),
	}

	crossed := DetectCrossRankings(r)
	require.Len(t, crossed, 2)

	assert.Equal(t, "CPALL", crossed[0].Symbol)
	assert.Equal(t, map[RankCategory]int{CategoryGainer: 2, CategoryValue: 1}, crossed[0].Rankings)

	assert.Equal(t, "DELTA", crossed[1].Symbol)
	assert.Equal(t, map[RankCategory]int{
		CategoryGainer: 1,
		CategoryVolume: 1,
		CategoryValue:  3,
	}, crossed[1].Rankings)
}

func TestDetectCrossRankings_EmptyInputs(t *testing.T) {
	assert.Nil(t, DetectCrossRankings(nil))
	assert.Empty(t, DetectCrossRankings(&market.TopRankings{}))
	assert.Empty(t, DetectCrossRankings(&market.TopRankings{
		Gainers: stocks("", " "),
		Losers:  stocks(""),
	}))
}
