package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hiring-go/internal/agent"
	"hiring-go/internal/api/handler"
	"hiring-go/internal/api/router"
	"hiring-go/internal/config"
	"hiring-go/internal/logger"
	"hiring-go/internal/parser"
	"hiring-go/internal/processor"
	"hiring-go/internal/storage"
	"hiring-go/internal/tracing"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzzerolog "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"
)

// @title           Hiring API
// @version         1.0
// @description     招聘管理与简历去重处置服务
// @BasePath  /api/v1
func main() {
	configPath := pflag.String("config", "", "配置文件路径，为空时按默认位置查找")
	pflag.Parse()

	// 1. 加载配置文件
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置文件失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志系统
	initLogger(cfg)

	// 3. 初始化链路追踪
	ctx := context.Background()
	shutdownTracing, err := tracing.InitProvider(ctx, &cfg.Tracing)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化链路追踪失败")
	}

	// 4. 初始化存储管理器
	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化存储管理器失败")
	}
	defer storageManager.Close()
	if storageManager.MySQL == nil {
		logger.Fatal().Msg("MySQL实例未初始化，服务无法启动")
	}

	// 5. 初始化业务处理器
	handlers, err := initializeHandlers(ctx, cfg, storageManager)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化业务处理器失败")
	}
	logger.Info().Msg("业务处理器初始化成功")

	// 6. 创建HTTP服务器
	hertzTracer, hertzCfg := hertztracing.NewServerTracer()
	h := server.Default(
		server.WithHostPorts(cfg.Server.Address),
		hertzTracer,
	)
	h.Use(hertztracing.ServerMiddleware(hertzCfg))

	// 7. 注册路由
	router.RegisterRoutes(h, cfg, handlers)

	// 8. 启动HTTP服务器
	go func() {
		if err := h.Run(); err != nil {
			logger.Fatal().Err(err).Msg("启动HTTP服务器失败")
		}
	}()
	logger.Info().Str("address", cfg.Server.Address).Msg("HTTP服务器已启动")

	// 9. 等待终止信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("接收到终止信号，正在优雅退出...")

	// 10. 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("服务器关闭失败")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("关闭链路追踪失败")
	}

	logger.Info().Msg("优雅退出完成")
}

// initLogger 初始化日志系统并接管Hertz框架日志
func initLogger(cfg *config.Config) {
	logConfig := logger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	}

	if cfg.Logger.FilePath != "" {
		logFile, err := os.OpenFile(cfg.Logger.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "打开日志文件失败: %v\n", err)
			logger.Init(logConfig)
		} else {
			logger.InitWithWriter(logConfig, logFile)
		}
	} else {
		logger.Init(logConfig)
	}

	logger.Logger = logger.Logger.With().
		Str("app", "hiring-go").
		Logger()

	// Hertz框架日志走同一套zerolog输出
	hlog.SetLogger(hertzzerolog.From(logger.Logger))
}

// initializeHandlers 组装全部HTTP处理器
func initializeHandlers(ctx context.Context, cfg *config.Config, storageManager *storage.Storage) (router.Handlers, error) {
	var handlers router.Handlers

	// LLM简历解析链路：PDF文本提取 + 通义千问结构化抽取
	var documentParser processor.DocumentParser
	if cfg.Aliyun.APIKey != "" {
		chatModel, err := agent.NewAliyunQwenChatModel(cfg.Aliyun.APIKey, cfg.Aliyun.Model, cfg.Aliyun.APIURL)
		if err != nil {
			return handlers, fmt.Errorf("初始化LLM模型失败: %w", err)
		}
		extractor, err := parser.NewEinoPDFTextExtractor(ctx)
		if err != nil {
			return handlers, fmt.Errorf("初始化PDF提取器失败: %w", err)
		}
		llmParser, err := parser.NewLLMCVParser(chatModel, &cfg.CVParser)
		if err != nil {
			return handlers, fmt.Errorf("初始化LLM简历解析器失败: %w", err)
		}
		documentParser, err = parser.NewCVDocumentParser(extractor, llmParser)
		if err != nil {
			return handlers, fmt.Errorf("初始化简历文档解析器失败: %w", err)
		}
	} else {
		logger.Warn().Msg("未配置阿里云API密钥，简历解析功能不可用")
	}

	var objectStore storage.ObjectStorage
	if storageManager.MinIO != nil {
		objectStore = storageManager.MinIO
	}
	var sink storage.NotificationSink
	if storageManager.RabbitMQ != nil {
		sink = storageManager.RabbitMQ
	}
	var stageCache processor.StageCache
	var hashCache handler.HashCache
	var stageCacheAdmin handler.StageCache
	if storageManager.Redis != nil {
		stageCache = storageManager.Redis
		hashCache = storageManager.Redis
		stageCacheAdmin = storageManager.Redis
	}

	reconciler := processor.NewReconciler(storageManager.MySQL, objectStore, sink, stageCache, processor.ReconcilerConfig{
		ReconcileRoutingKey: cfg.RabbitMQ.ReconcileRoutingKey,
		CandidateRoutingKey: cfg.RabbitMQ.CandidateRoutingKey,
	})

	var err error
	handlers.CV, err = handler.NewCVHandler(cfg, storageManager.MySQL, hashCache, documentParser, reconciler)
	if err != nil {
		return handlers, fmt.Errorf("初始化简历处理器失败: %w", err)
	}
	handlers.Candidate, err = handler.NewCandidateHandler(storageManager.MySQL)
	if err != nil {
		return handlers, err
	}
	handlers.Job, err = handler.NewJobHandler(storageManager.MySQL)
	if err != nil {
		return handlers, err
	}
	handlers.Stage, err = handler.NewStageHandler(storageManager.MySQL, sink, stageCacheAdmin, cfg.RabbitMQ.StageRoutingKey)
	if err != nil {
		return handlers, err
	}
	handlers.Pipeline, err = handler.NewPipelineHandler(storageManager.MySQL)
	if err != nil {
		return handlers, err
	}
	handlers.Activity, err = handler.NewActivityHandler(storageManager.MySQL)
	if err != nil {
		return handlers, err
	}
	return handlers, nil
}
