package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"setpulse/pkg/config"
	"setpulse/pkg/fetcher"
	"setpulse/pkg/history"
	"setpulse/pkg/logger"
	"setpulse/pkg/market"
	"setpulse/pkg/ranking"
	"setpulse/pkg/store"
	"setpulse/pkg/timing"
)

var (
	logLevel   = flag.String("log-level", "info", "日志级别 (debug, info, warn, error)")
	logFormat  = flag.String("log-format", "text", "日志格式 (json or text)")
	configPath = flag.String("config", "", "配置文件路径 (例如 /app/config/api_server.yaml)")
	redisAddr  = flag.String("redis", "", "Redis 地址，格式 host:port")
	redisPass  = flag.String("redis-pass", "", "Redis 密码")
	serverPort = flag.Int("port", 0, "监听端口，覆盖配置文件")
)

type APIServer struct {
	cfg     *config.Config
	kv      store.KeyValueStore
	breaker *store.BreakerStore
	svc     *market.Service
	engine  *history.Engine
	logger  *logrus.Logger
	server  *http.Server
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
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

	gin.SetMode(cfg.Server.Mode)

	apiServer, err := NewAPIServer(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create API server")
	}
	defer apiServer.Close()

	if err := apiServer.Start(); err != nil {
		log.WithError(err).Fatal("Failed to start API server")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down API server...")
	apiServer.Stop()
}

func loadConfig() (*config.Config, error) {
	if *configPath != "" {
		viper.SetConfigFile(*configPath)
	} else {
		viper.SetConfigName("api_server")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	}

	cfg := config.Default()

	viper.SetDefault("server.port", cfg.Server.Port)
	viper.SetDefault("server.mode", cfg.Server.Mode)
	viper.SetDefault("redis.addr", cfg.Store.RedisAddr)
	viper.SetDefault("redis.password", cfg.Store.RedisPassword)
	viper.SetDefault("redis.db", cfg.Store.RedisDB)
	viper.SetDefault("store.timeout", cfg.Store.Timeout)
	viper.SetDefault("store.min_interval", cfg.Store.MinInterval)
	viper.SetDefault("store.breaker_open", cfg.Store.BreakerOpen)
	viper.SetDefault("store.breaker_trips", cfg.Store.BreakerTrips)
	viper.SetDefault("fetcher.max_age", cfg.Fetcher.MaxAge)
	viper.SetDefault("fetcher.chunk_size", cfg.Fetcher.ChunkSize)
	viper.SetDefault("fetcher.max_days_back", cfg.Fetcher.MaxDaysBack)

	viper.SetEnvPrefix("SETPULSE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// 命令行参数覆盖配置文件
	if *redisAddr != "" {
		viper.Set("redis.addr", *redisAddr)
	}
	if *redisPass != "" {
		viper.Set("redis.password", *redisPass)
	}
	if *serverPort != 0 {
		viper.Set("server.port", *serverPort)
	}

	cfg.Server.Port = viper.GetInt("server.port")
	cfg.Server.Mode = viper.GetString("server.mode")
	cfg.Store.RedisAddr = viper.GetString("redis.addr")
	cfg.Store.RedisPassword = viper.GetString("redis.password")
	cfg.Store.RedisDB = viper.GetInt("redis.db")
	cfg.Store.Timeout = viper.GetDuration("store.timeout")
	cfg.Store.MinInterval = viper.GetDuration("store.min_interval")
	cfg.Store.BreakerOpen = viper.GetDuration("store.breaker_open")
	cfg.Store.BreakerTrips = uint32(viper.GetUint("store.breaker_trips"))
	cfg.Fetcher.MaxAge = viper.GetDuration("fetcher.max_age")
	cfg.Fetcher.ChunkSize = viper.GetInt("fetcher.chunk_size")
	cfg.Fetcher.MaxDaysBack = viper.GetInt("fetcher.max_days_back")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func NewAPIServer(cfg *config.Config, log *logrus.Logger) (*APIServer, error) {
	redisStore, err := store.NewRedisStore(cfg.RedisConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	// 装饰链：节流 -> 熔断 -> Redis
	breakerCfg := cfg.BreakerConfig()
	throttleCfg := cfg.ThrottleConfig()
	breaker := store.NewBreakerStore(redisStore, &breakerCfg)
	var kv store.KeyValueStore = store.NewThrottledStore(breaker, &throttleCfg)

	calendar := timing.NewTradingCalendar(&timing.SystemTimeService{})
	svc := market.NewService(kv, calendar)
	engine := history.NewEngine(svc)
	engine.SetChunkSize(cfg.Fetcher.ChunkSize)

	return &APIServer{
		cfg:     cfg,
		kv:      kv,
		breaker: breaker,
		svc:     svc,
		engine:  engine,
		logger:  log,
	}, nil
}

func (s *APIServer) Start() error {
	router := gin.New()

	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(s.corsMiddleware())
	router.Use(s.requestIDMiddleware())

	router.GET("/health", s.healthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/market/overview", s.getOverview)
		v1.GET("/market/investor-flow", s.getInvestorFlow)
		v1.GET("/market/sectors", s.getSectors)
		v1.GET("/market/nvdr", s.getNVDR)
		v1.GET("/market/rankings", s.getRankings)
		v1.GET("/market/rankings/cross", s.getCrossRankings)
		v1.GET("/market/latest-trading-day", s.getLatestTradingDay)
		v1.GET("/market/set-index/volumes", s.getSetIndexVolumes)

		v1.GET("/history/:category", s.getHistory)
		v1.GET("/history/:category/availability", s.getAvailability)
	}

	router.GET("/stats", s.getStats)

	s.server = &http.Server{
		Addr:    ":" + strconv.Itoa(s.cfg.Server.Port),
		Handler: router,
	}

	s.logger.WithField("port", s.cfg.Server.Port).Info("Starting API server...")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	return nil
}

func (s *APIServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.WithError(err).Error("Failed to gracefully shutdown server")
	}
}

func (s *APIServer) Close() {
	if s.kv != nil {
		s.kv.Close()
	}
}

func (s *APIServer) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func (s *APIServer) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *APIServer) healthCheck(c *gin.Context) {
	health := gin.H{
		"status":    "ok",
		"timestamp": time.Now(),
		"services":  map[string]string{},
	}

	services := health["services"].(map[string]string)
	if s.kv.IsHealthy() {
		services["store"] = "ok"
	} else {
		services["store"] = "error"
		health["status"] = "degraded"
	}
	health["breaker"] = s.breaker.Status()

	if health["status"] == "ok" {
		c.JSON(200, health)
	} else {
		c.JSON(503, health)
	}
}

// requestContext 单次请求的读取超时
func (s *APIServer) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.cfg.Store.Timeout)
}

// freshness 附加到响应上的新鲜度元数据
func (s *APIServer) freshness(timestamp int64) gin.H {
	return gin.H{
		"age":      fetcher.Age(timestamp),
		"is_fresh": fetcher.IsFresh(timestamp, s.cfg.Fetcher.MaxAge),
	}
}

func (s *APIServer) getOverview(c *gin.Context) {
	ctx, cancel := s.requestContext()
	defer cancel()

	var o *market.MarketOverview
	if date := c.Query("date"); date != "" {
		if _, err := timing.ParseDate(date); err != nil {
			c.JSON(400, ErrorResponse{Error: "bad_request", Message: "Date must be YYYY-MM-DD"})
			return
		}
		o = s.svc.OverviewOn(ctx, date)
	} else {
		o = s.svc.Overview(ctx)
	}

	if o == nil {
		c.JSON(404, ErrorResponse{Error: "not_found", Message: "No market overview available"})
		return
	}

	c.JSON(200, gin.H{
		"overview":        o,
		"total_value_fmt": market.FormatMillions(o.TotalValue),
		"freshness":       s.freshness(o.Timestamp),
	})
}

func (s *APIServer) getInvestorFlow(c *gin.Context) {
	ctx, cancel := s.requestContext()
	defer cancel()

	var flows *market.InvestorSummary
	var overview *market.MarketOverview
	if date := c.Query("date"); date != "" {
		if _, err := timing.ParseDate(date); err != nil {
			c.JSON(400, ErrorResponse{Error: "bad_request", Message: "Date must be YYYY-MM-DD"})
			return
		}
		flows = s.svc.InvestorFlowsOn(ctx, date)
		overview = s.svc.OverviewOn(ctx, date)
	} else {
		flows = s.svc.InvestorFlows(ctx)
		overview = s.svc.Overview(ctx)
	}

	if flows == nil {
		c.JSON(404, ErrorResponse{Error: "not_found", Message: "No investor flow data available"})
		return
	}

	// 成交额取自同日大盘总览，缺失时流向判定回落为 NEUTRAL
	var turnover float64
	if overview != nil {
		turnover = overview.TotalValue
	}

	c.JSON(200, gin.H{
		"flows":           flows,
		"smart_money_net": market.SmartMoneyNet(flows),
		"flow_trend":      market.ClassifyFlowTrend(flows, turnover),
		"freshness":       s.freshness(flows.Timestamp),
	})
}

func (s *APIServer) getSectors(c *gin.Context) {
	ctx, cancel := s.requestContext()
	defer cancel()

	board := s.svc.Sectors(ctx)
	if board == nil {
		c.JSON(404, ErrorResponse{Error: "not_found", Message: "No sector data available"})
		return
	}

	defensiveAvg, defensiveCount := market.DefensiveSectorPerformance(board)

	c.JSON(200, gin.H{
		"sectors":         board,
		"top_by_change":   market.TopSectorsByChange(board, 5),
		"top_by_value":    market.TopSectorsByValue(board, 5),
		"defensive_avg":   defensiveAvg,
		"defensive_count": defensiveCount,
		"freshness":       s.freshness(board.Timestamp),
	})
}

func (s *APIServer) getNVDR(c *gin.Context) {
	ctx, cancel := s.requestContext()
	defer cancel()

	board := s.svc.NVDR(ctx)
	if board == nil {
		c.JSON(404, ErrorResponse{Error: "not_found", Message: "No NVDR data available"})
		return
	}

	c.JSON(200, gin.H{
		"nvdr":      board,
		"freshness": s.freshness(board.Timestamp),
	})
}

func (s *APIServer) getRankings(c *gin.Context) {
	ctx, cancel := s.requestContext()
	defer cancel()

	rankings := s.svc.Rankings(ctx)
	if rankings == nil {
		c.JSON(404, ErrorResponse{Error: "not_found", Message: "No ranking data available"})
		return
	}

	c.JSON(200, gin.H{
		"rankings":  rankings,
		"freshness": s.freshness(rankings.Timestamp),
	})
}

func (s *APIServer) getCrossRankings(c *gin.Context) {
	ctx, cancel := s.requestContext()
	defer cancel()

	rankings := s.svc.Rankings(ctx)
	if rankings == nil {
		c.JSON(404, ErrorResponse{Error: "not_found", Message: "No ranking data available"})
		return
	}

	c.JSON(200, gin.H{
		"crossed":   ranking.DetectCrossRankings(rankings),
		"freshness": s.freshness(rankings.Timestamp),
	})
}

func (s *APIServer) getLatestTradingDay(c *gin.Context) {
	ctx, cancel := s.requestContext()
	defer cancel()

	date, ok := s.engine.FindLatestAvailableDate(ctx, s.cfg.Fetcher.MaxDaysBack)
	if !ok {
		c.JSON(404, ErrorResponse{Error: "not_found", Message: "No trading data within lookback window"})
		return
	}

	c.JSON(200, gin.H{"date": date})
}

func (s *APIServer) getSetIndexVolumes(c *gin.Context) {
	ctx, cancel := s.requestContext()
	defer cancel()

	days, err := strconv.Atoi(c.DefaultQuery("days", "5"))
	if err != nil || days <= 0 || days > 60 {
		c.JSON(400, ErrorResponse{Error: "bad_request", Message: "days must be in range 1-60"})
		return
	}

	volumes, err := s.engine.SetIndexVolumes(ctx, days)
	if err != nil {
		s.logger.WithError(err).Error("Failed to fetch set index volumes")
		c.JSON(500, ErrorResponse{Error: "internal_error", Message: "Failed to retrieve data"})
		return
	}

	formatted := make([]string, len(volumes))
	for i, v := range volumes {
		formatted[i] = market.FormatVolume(v)
	}

	c.JSON(200, gin.H{
		"days":          days,
		"volumes":       volumes,
		"volumes_fmt":   formatted,
		"trading_count": len(volumes),
	})
}

func parseCategory(raw string) (store.Category, bool) {
	for _, cat := range store.AllCategories {
		if string(cat) == raw {
			return cat, true
		}
	}
	return "", false
}

func (s *APIServer) getHistory(c *gin.Context) {
	category, ok := parseCategory(c.Param("category"))
	if !ok {
		c.JSON(400, ErrorResponse{Error: "bad_request", Message: "Unknown category"})
		return
	}

	opts := history.RangeOptions{
		StartDate:       c.Query("start"),
		EndDate:         c.Query("end"),
		IncludeWeekends: c.Query("include_weekends") == "true",
	}
	if daysRaw := c.DefaultQuery("days", "5"); opts.StartDate == "" {
		days, err := strconv.Atoi(daysRaw)
		if err != nil || days <= 0 || days > 90 {
			c.JSON(400, ErrorResponse{Error: "bad_request", Message: "days must be in range 1-90"})
			return
		}
		opts.Days = days
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := s.engine.FetchRange(ctx, category, opts)
	if err != nil {
		c.JSON(400, ErrorResponse{Error: "bad_request", Message: err.Error()})
		return
	}

	c.JSON(200, result)
}

func (s *APIServer) getAvailability(c *gin.Context) {
	category, ok := parseCategory(c.Param("category"))
	if !ok {
		c.JSON(400, ErrorResponse{Error: "bad_request", Message: "Unknown category"})
		return
	}

	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days <= 0 || days > 90 {
		c.JSON(400, ErrorResponse{Error: "bad_request", Message: "days must be in range 1-90"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	summary, sumErr := s.engine.AvailabilitySummary(ctx, category, days)
	if sumErr != nil {
		s.logger.WithError(sumErr).Error("Failed to build availability summary")
		c.JSON(500, ErrorResponse{Error: "internal_error", Message: "Failed to retrieve data"})
		return
	}

	c.JSON(200, summary)
}

func (s *APIServer) getStats(c *gin.Context) {
	c.JSON(200, gin.H{
		"store":     s.kv.Name(),
		"healthy":   s.kv.IsHealthy(),
		"breaker":   s.breaker.Stats(),
		"timestamp": time.Now(),
	})
}
