package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzzerolog "github.com/hertz-contrib/logger/zerolog"
	"github.com/spf13/pflag"

	"apply-agent-go/internal/agent"
	"apply-agent-go/internal/api/handler"
	"apply-agent-go/internal/api/router"
	"apply-agent-go/internal/config"
	"apply-agent-go/internal/logger"
	"apply-agent-go/internal/reasoner"
	"apply-agent-go/internal/session"
	"apply-agent-go/internal/storage"
	"apply-agent-go/internal/tracing"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "配置文件路径，留空时在常见位置查找")
	pflag.Parse()

	// 1. 加载配置文件
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("加载配置文件失败")
	}
	initLogger(cfg)

	// 2. 初始化链路追踪（未配置端点时为no-op）
	ctx := context.Background()
	shutdownTracing, err := tracing.InitProvider(ctx, "apply-agent-go", cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化链路追踪失败")
	}

	// 3. 初始化存储管理器
	storageManager, err := storage.NewStorage(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化存储管理器失败")
	}
	defer storageManager.Close()

	// 4. 本地LLM与推理器
	chatModel := agent.NewLocalChatModel(
		cfg.LLM.Endpoint,
		cfg.LLM.Model,
		agent.SamplingParams{
			Temperature:   cfg.LLM.Temperature,
			TopK:          cfg.LLM.TopK,
			TopP:          cfg.LLM.TopP,
			RepeatPenalty: cfg.LLM.RepeatPenalty,
			Seed:          cfg.LLM.Seed,
			MaxTokens:     cfg.LLM.MaxTokens,
		},
		config.GetDuration(cfg.LLM.CallTimeout, 45*time.Second),
	)
	rsn := reasoner.NewReasoner(chatModel, reasoner.OptionsFromConfig(cfg))

	// 5. 会话编排器：事件双路出口 + Redis快照
	sink := storage.NewEventSink(storageManager.MySQL, storageManager.RabbitMQ)
	var store session.SnapshotStore
	if storageManager.Redis != nil {
		store = storageManager.Redis
	}
	manager := session.NewManager(sink, store,
		time.Duration(cfg.Session.RetentionHours)*time.Hour)
	manager.StartGC(config.GetDuration(cfg.Session.GCInterval, 10*time.Minute))
	defer manager.StopGC()
	monitor := session.NewMonitor(manager, 0)

	// 6. HTTP处理器与路由
	hs := &router.Handlers{
		Profile: handler.NewProfileHandler(cfg, storageManager),
		Job:     handler.NewJobHandler(cfg, storageManager),
		Session: handler.NewSessionHandler(cfg, storageManager, manager, monitor),
		Assist:  handler.NewAssistHandler(cfg, storageManager, manager, rsn),
	}

	h := server.Default(
		server.WithHostPorts(cfg.Server.Address),
	)
	router.RegisterRoutes(h, cfg, hs)

	// 7. 启动HTTP服务器
	go func() {
		if err := h.Run(); err != nil {
			logger.Fatal().Err(err).Msg("启动HTTP服务器失败")
		}
	}()
	logger.Info().Str("address", cfg.Server.Address).Msg("服务已启动")

	// 8. 等待终止信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("接收到终止信号，正在优雅退出...")

	// 9. 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("服务器关闭失败")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("链路追踪关闭失败")
	}

	logger.Info().Msg("优雅退出完成")
}

// initLogger 初始化全局日志并把hertz的框架日志接到zerolog上
func initLogger(cfg *config.Config) {
	logConfig := logger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	}
	if logConfig.Level == "" {
		logConfig.Level = "info"
	}
	logger.Init(logConfig)
	logger.Logger = logger.Logger.With().
		Str("app", "apply-agent-go").
		Logger()

	hlog.SetLogger(hertzzerolog.From(logger.Logger))
}
