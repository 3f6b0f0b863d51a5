package market

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"setpulse/pkg/fetcher"
	"setpulse/pkg/logger"
	"setpulse/pkg/store"
	"setpulse/pkg/timing"
)

// Service 把路径构造、弹性读取和归一化粘合成面向页面的查询。
// 所有查询返回指针记录，nil 统一表示"暂无数据"——本层之上
// 不应出现异常分支。
type Service struct {
	fetcher  *fetcher.Fetcher
	paths    *store.PathBuilder
	calendar *timing.TradingCalendar
	log      *logrus.Entry
}

// NewService 创建市场数据服务。
// 存储句柄在进程启动时构造一次并注入，测试时可替换为内存实现。
func NewService(kv store.KeyValueStore, calendar *timing.TradingCalendar) *Service {
	return &Service{
		fetcher:  fetcher.New(kv),
		paths:    store.NewPathBuilder(calendar),
		calendar: calendar,
		log:      logger.WithComponent("market_service"),
	}
}

// Fetcher 返回底层读取原语，供历史查询引擎复用
func (s *Service) Fetcher() *fetcher.Fetcher {
	return s.fetcher
}

// Paths 返回路径构造器
func (s *Service) Paths() *store.PathBuilder {
	return s.paths
}

// Calendar 返回交易日历
func (s *Service) Calendar() *timing.TradingCalendar {
	return s.calendar
}

// fetchEnvelope 主/回退读取并解析包裹，失败时返回 nil
func (s *Service) fetchEnvelope(ctx context.Context, category store.Category) *Envelope {
	primary := s.paths.ForToday(category)
	fallback, _ := s.paths.Fallback(primary)

	raw := s.fetcher.GetWithFallback(ctx, primary, fallback)
	if raw == nil {
		return nil
	}

	env, err := ParseEnvelope(raw)
	if err != nil {
		s.log.WithError(err).WithField("category", category).Warn("Snapshot envelope malformed")
		return nil
	}
	return env
}

// fetchEnvelopeOn 读取指定日期的包裹，不走回退链——
// 历史日期没有"昨天回退"的语义
func (s *Service) fetchEnvelopeOn(ctx context.Context, category store.Category, date string) *Envelope {
	raw, err := s.fetcher.Get(ctx, s.paths.For(category, date))
	if err != nil || !fetcher.IsMeaningful(raw) {
		return nil
	}

	env, parseErr := ParseEnvelope(raw)
	if parseErr != nil {
		s.log.WithError(parseErr).WithField("category", category).Warn("Snapshot envelope malformed")
		return nil
	}
	return env
}

// Overview 今日大盘总览，今天无数据时回退昨天
func (s *Service) Overview(ctx context.Context) *MarketOverview {
	env := s.fetchEnvelope(ctx, store.CategoryMarketOverview)
	if env == nil {
		return nil
	}
	return NormalizeMarketOverview(env, s.log)
}

// OverviewOn 指定日期的大盘总览，无回退
func (s *Service) OverviewOn(ctx context.Context, date string) *MarketOverview {
	env := s.fetchEnvelopeOn(ctx, store.CategoryMarketOverview, date)
	if env == nil {
		return nil
	}
	return NormalizeMarketOverview(env, s.log)
}

// InvestorFlows 今日投资者类别汇总
func (s *Service) InvestorFlows(ctx context.Context) *InvestorSummary {
	env := s.fetchEnvelope(ctx, store.CategoryInvestorType)
	if env == nil {
		return nil
	}
	return NormalizeInvestorSummary(env, s.log)
}

// InvestorFlowsOn 指定日期的投资者类别汇总
func (s *Service) InvestorFlowsOn(ctx context.Context, date string) *InvestorSummary {
	env := s.fetchEnvelopeOn(ctx, store.CategoryInvestorType, date)
	if env == nil {
		return nil
	}
	return NormalizeInvestorSummary(env, s.log)
}

// Sectors 今日行业板块
func (s *Service) Sectors(ctx context.Context) *SectorBoard {
	env := s.fetchEnvelope(ctx, store.CategoryIndustrySector)
	if env == nil {
		return nil
	}
	return NormalizeSectors(env, s.log)
}

// SectorsOn 指定日期的行业板块，无回退
func (s *Service) SectorsOn(ctx context.Context, date string) *SectorBoard {
	env := s.fetchEnvelopeOn(ctx, store.CategoryIndustrySector, date)
	if env == nil {
		return nil
	}
	return NormalizeSectors(env, s.log)
}

// NVDR 今日 NVDR 数据
func (s *Service) NVDR(ctx context.Context) *NVDRBoard {
	env := s.fetchEnvelope(ctx, store.CategoryNVDR)
	if env == nil {
		return nil
	}
	return NormalizeNVDR(env, s.log)
}

// Rankings 今日排行榜
func (s *Service) Rankings(ctx context.Context) *TopRankings {
	env := s.fetchEnvelope(ctx, store.CategoryTopRankings)
	if env == nil {
		return nil
	}
	return NormalizeTopRankings(env, s.log)
}

// NVDROn 指定日期的 NVDR 数据，无回退
func (s *Service) NVDROn(ctx context.Context, date string) *NVDRBoard {
	env := s.fetchEnvelopeOn(ctx, store.CategoryNVDR, date)
	if env == nil {
		return nil
	}
	return NormalizeNVDR(env, s.log)
}

// SetIndexOn 指定日期的 setIndex 快照，无回退
func (s *Service) SetIndexOn(ctx context.Context, date string) *SetIndexSnapshot {
	env := s.fetchEnvelopeOn(ctx, store.CategorySetIndex, date)
	if env == nil {
		return nil
	}
	return NormalizeSetIndex(env, s.log)
}

// RawOn 指定类别与日期的原始包裹负载，供批量查询引擎使用
func (s *Service) RawOn(ctx context.Context, category store.Category, date string) json.RawMessage {
	raw, err := s.fetcher.Get(ctx, s.paths.For(category, date))
	if err != nil || !fetcher.IsMeaningful(raw) {
		return nil
	}
	return raw
}
