package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"setpulse/pkg/config"
	"setpulse/pkg/history"
	"setpulse/pkg/logger"
	"setpulse/pkg/market"
	"setpulse/pkg/store"
	"setpulse/pkg/timing"
)

var (
	logLevel   = flag.String("log-level", "info", "日志级别 (debug, info, warn, error)")
	logFormat  = flag.String("log-format", "text", "日志格式 (json or text)")
	configPath = flag.String("config", "", "配置文件路径 (例如 /app/config/archiver.yaml)")
	runOnce    = flag.Bool("once", false, "立即归档一次后退出，不启动定时任务")
)

// Archiver 收盘后把当日快照归档到 InfluxDB 的定时任务。
// 远端键值库只保留按日期索引的原始快照，时序查询（周线、
// 资金流趋势）走 InfluxDB。
type Archiver struct {
	cfg          *config.Config
	kv           store.KeyValueStore
	svc          *market.Service
	engine       *history.Engine
	influxClient influxdb2.Client
	writeAPI     api.WriteAPI
	cron         *cron.Cron
	logger       *logrus.Logger
	ctx          context.Context
	cancel       context.CancelFunc
}

func main() {
	flag.Parse()

	log := logrus.New()
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		log.Fatal("无效的日志级别")
	}
	log.SetLevel(level)

	switch *logFormat {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		log.SetFormatter(&logrus.TextFormatter{})
	default:
		log.Fatal("无效的日志格式")
	}

	logger.Init(logger.Config{Level: *logLevel, Format: *logFormat})

	cfg, err := loadConfig()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	archiver, err := NewArchiver(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create archiver")
	}
	defer archiver.Close()

	if *runOnce {
		archiver.runArchive()
		archiver.Stop()
		return
	}

	if err := archiver.Start(); err != nil {
		log.WithError(err).Fatal("Failed to start archiver")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down archiver...")
	archiver.Stop()
}

func loadConfig() (*config.Config, error) {
	if *configPath != "" {
		viper.SetConfigFile(*configPath)
	} else {
		viper.SetConfigName("archiver")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	}

	cfg := config.Default()

	viper.SetDefault("redis.addr", cfg.Store.RedisAddr)
	viper.SetDefault("redis.password", cfg.Store.RedisPassword)
	viper.SetDefault("redis.db", cfg.Store.RedisDB)
	viper.SetDefault("archiver.schedule", cfg.Archiver.Schedule)
	viper.SetDefault("influxdb.url", cfg.Archiver.InfluxURL)
	viper.SetDefault("influxdb.token", cfg.Archiver.InfluxToken)
	viper.SetDefault("influxdb.org", cfg.Archiver.InfluxOrg)
	viper.SetDefault("influxdb.bucket", cfg.Archiver.InfluxBucket)
	viper.SetDefault("fetcher.max_days_back", cfg.Fetcher.MaxDaysBack)

	viper.SetEnvPrefix("SETPULSE_ARCHIVER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg.Store.RedisAddr = viper.GetString("redis.addr")
	cfg.Store.RedisPassword = viper.GetString("redis.password")
	cfg.Store.RedisDB = viper.GetInt("redis.db")
	cfg.Archiver.Schedule = viper.GetString("archiver.schedule")
	cfg.Archiver.InfluxURL = viper.GetString("influxdb.url")
	cfg.Archiver.InfluxToken = viper.GetString("influxdb.token")
	cfg.Archiver.InfluxOrg = viper.GetString("influxdb.org")
	cfg.Archiver.InfluxBucket = viper.GetString("influxdb.bucket")
	cfg.Fetcher.MaxDaysBack = viper.GetInt("fetcher.max_days_back")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func NewArchiver(cfg *config.Config, log *logrus.Logger) (*Archiver, error) {
	redisStore, err := store.NewRedisStore(cfg.RedisConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	breakerCfg := cfg.BreakerConfig()
	var kv store.KeyValueStore = store.NewBreakerStore(redisStore, &breakerCfg)

	influxClient := influxdb2.NewClient(cfg.Archiver.InfluxURL, cfg.Archiver.InfluxToken)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := influxClient.Health(ctx)
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}
	if health.Status != "pass" {
		kv.Close()
		return nil, fmt.Errorf("InfluxDB health check failed: %s", health.Status)
	}

	writeAPI := influxClient.WriteAPI(cfg.Archiver.InfluxOrg, cfg.Archiver.InfluxBucket)

	calendar := timing.NewTradingCalendar(&timing.SystemTimeService{})
	svc := market.NewService(kv, calendar)

	runCtx, runCancel := context.WithCancel(context.Background())

	return &Archiver{
		cfg:          cfg,
		kv:           kv,
		svc:          svc,
		engine:       history.NewEngine(svc),
		influxClient: influxClient,
		writeAPI:     writeAPI,
		// 调度表达式按交易所本地时间（UTC+7）解释
		cron:   cron.New(cron.WithLocation(timing.Bangkok())),
		logger: log,
		ctx:    runCtx,
		cancel: runCancel,
	}, nil
}

func (a *Archiver) Start() error {
	if _, err := a.cron.AddFunc(a.cfg.Archiver.Schedule, a.runArchive); err != nil {
		return fmt.Errorf("invalid archive schedule %q: %w", a.cfg.Archiver.Schedule, err)
	}

	go a.handleWriteErrors()

	a.cron.Start()

	a.logger.WithFields(logrus.Fields{
		"schedule": a.cfg.Archiver.Schedule,
		"bucket":   a.cfg.Archiver.InfluxBucket,
	}).Info("Archiver started successfully")

	return nil
}

func (a *Archiver) Stop() {
	a.logger.Info("Stopping archiver...")
	a.cancel()

	stopCtx := a.cron.Stop()
	<-stopCtx.Done()

	a.writeAPI.Flush()

	a.logger.Info("Archiver stopped")
}

func (a *Archiver) Close() {
	if a.kv != nil {
		a.kv.Close()
	}
	if a.influxClient != nil {
		a.influxClient.Close()
	}
}

// handleWriteErrors 消费异步写入的错误通道
func (a *Archiver) handleWriteErrors() {
	errCh := a.writeAPI.Errors()
	for {
		select {
		case <-a.ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				return
			}
			a.logger.WithError(err).Error("Failed to write points to InfluxDB")
		}
	}
}

// runArchive 归档最近一个有数据的交易日。
// 周末/节假日触发时自动落到上一个交易日，重复写入同一日期
// 的点在 InfluxDB 中幂等覆盖。
func (a *Archiver) runArchive() {
	ctx, cancel := context.WithTimeout(a.ctx, 2*time.Minute)
	defer cancel()

	date, ok := a.engine.FindLatestAvailableDate(ctx, a.cfg.Fetcher.MaxDaysBack)
	if !ok {
		a.logger.WithField("max_days_back", a.cfg.Fetcher.MaxDaysBack).
			Warn("No trading data within lookback window, skipping archive run")
		return
	}

	day, err := timing.ParseDate(date)
	if err != nil {
		a.logger.WithError(err).WithField("date", date).Error("Unparseable trading date")
		return
	}

	written := 0
	written += a.archiveOverview(ctx, date, day)
	written += a.archiveInvestorFlows(ctx, date, day)
	written += a.archiveSectors(ctx, date, day)
	written += a.archiveSetIndex(ctx, date, day)

	a.writeAPI.Flush()

	a.logger.WithFields(logrus.Fields{
		"date":   date,
		"points": written,
	}).Info("Archive run completed")
}

func (a *Archiver) archiveOverview(ctx context.Context, date string, day time.Time) int {
	o := a.svc.OverviewOn(ctx, date)
	if o == nil {
		a.logger.WithField("date", date).Warn("Market overview unavailable, skipping")
		return 0
	}

	point := influxdb2.NewPointWithMeasurement("market_overview").
		AddTag("date", date).
		AddField("index", o.Index).
		AddField("change", o.Change).
		AddField("change_percent", o.ChangePercent).
		AddField("total_value", o.TotalValue).
		AddField("total_volume", o.TotalVolume).
		SetTime(day)

	a.writeAPI.WritePoint(point)
	return 1
}

func (a *Archiver) archiveInvestorFlows(ctx context.Context, date string, day time.Time) int {
	flows := a.svc.InvestorFlowsOn(ctx, date)
	if flows == nil {
		a.logger.WithField("date", date).Warn("Investor flows unavailable, skipping")
		return 0
	}

	classes := map[string]market.InvestorFlow{
		"foreign":     flows.Foreign,
		"institution": flows.Institution,
		"retail":      flows.Retail,
		"proprietary": flows.Proprietary,
	}

	for class, flow := range classes {
		point := influxdb2.NewPointWithMeasurement("investor_flow").
			AddTag("date", date).
			AddTag("investor", class).
			AddField("buy", flow.Buy).
			AddField("sell", flow.Sell).
			AddField("net", flow.Net).
			SetTime(day)

		a.writeAPI.WritePoint(point)
	}

	point := influxdb2.NewPointWithMeasurement("smart_money").
		AddTag("date", date).
		AddField("net", market.SmartMoneyNet(flows)).
		SetTime(day)
	a.writeAPI.WritePoint(point)

	return len(classes) + 1
}

func (a *Archiver) archiveSectors(ctx context.Context, date string, day time.Time) int {
	board := a.svc.SectorsOn(ctx, date)
	if board == nil {
		a.logger.WithField("date", date).Warn("Sector board unavailable, skipping")
		return 0
	}

	for _, sector := range board.Sectors {
		point := influxdb2.NewPointWithMeasurement("sector_daily").
			AddTag("date", date).
			AddTag("sector", sector.ID).
			AddField("index", sector.Index).
			AddField("change", sector.Change).
			AddField("change_percent", sector.ChangePercent).
			AddField("value", sector.Value).
			SetTime(day)

		a.writeAPI.WritePoint(point)
	}

	return len(board.Sectors)
}

func (a *Archiver) archiveSetIndex(ctx context.Context, date string, day time.Time) int {
	snap := a.svc.SetIndexOn(ctx, date)
	if snap == nil {
		a.logger.WithField("date", date).Warn("Set index snapshot unavailable, skipping")
		return 0
	}

	point := influxdb2.NewPointWithMeasurement("set_index").
		AddTag("date", date).
		AddField("index", snap.Index).
		AddField("change", snap.Change).
		AddField("value", snap.Value).
		AddField("volume", snap.Volume).
		SetTime(day)

	a.writeAPI.WritePoint(point)
	return 1
}
