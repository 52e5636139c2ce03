package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/code-100-precent/LingVoice/cmd/bootstrap"
	handlers "github.com/code-100-precent/LingVoice/internal/handler"
	"github.com/code-100-precent/LingVoice/internal/listeners"
	"github.com/code-100-precent/LingVoice/internal/models"
	"github.com/code-100-precent/LingVoice/pkg/cache"
	"github.com/code-100-precent/LingVoice/pkg/config"
	"github.com/code-100-precent/LingVoice/pkg/events"
	"github.com/code-100-precent/LingVoice/pkg/logger"
	"github.com/code-100-precent/LingVoice/pkg/metrics"
	"github.com/code-100-precent/LingVoice/pkg/middleware"
	voicehandler "github.com/code-100-precent/LingVoice/pkg/voice/handler"
	"github.com/code-100-precent/LingVoice/pkg/voice/pipeline"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	initSQL := flag.String("init-sql", "", "SQL file executed after migrations")
	flag.Parse()

	if err := config.Load(); err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg := config.GlobalConfig
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if err := logger.Init(&cfg.Log, cfg.Server.Mode); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	if err := bootstrap.PrintBannerFromFile(cfg.Server.BannerFile); err != nil {
		logger.Debug("banner not printed", zap.Error(err))
	}
	bootstrap.LogConfigInfo()

	db, err := bootstrap.SetupDatabase(os.Stdout, &bootstrap.Options{
		InitSQLPath: *initSQL,
		AutoMigrate: true,
		SeedNonProd: true,
	})
	if err != nil {
		logger.Fatal("setup database failed", zap.Error(err))
	}
	if !cfg.IsProduction() {
		expire := time.Duration(cfg.Auth.TokenExpireHours) * time.Hour
		if token, err := bootstrap.NewSeedService(db).DemoToken(expire); err == nil {
			logger.Info("demo token", zap.String("email", bootstrap.DemoEmail), zap.String("token", token))
		}
	}

	store, err := cache.NewCache(cfg.Cache)
	if err != nil {
		logger.Fatal("init cache failed", zap.Error(err))
	}
	m := metrics.NewMetrics("lingvoice")
	bus := events.GetEventBus()
	listeners.InitVoiceListeners(bus, db, store)

	var (
		voice        *voicehandler.VoiceHandler
		orchestrator *pipeline.Orchestrator
		pool         *pipeline.WorkerPool
	)
	if cfg.Voice.Enabled {
		// 模型加载失败直接退出，不接受连接
		voiceModels, err := bootstrap.BuildModels(cfg, logger.Named("models"))
		if err != nil {
			logger.Fatal("load voice models failed", zap.Error(err))
		}
		engine, err := bootstrap.BuildEngine(cfg, logger.Named("llm"))
		if err != nil {
			logger.Fatal("init reasoning engine failed", zap.Error(err))
		}
		normalizer, err := bootstrap.BuildNormalizer(cfg, logger.Named("audio"))
		if err != nil {
			logger.Fatal("init audio decoder failed", zap.Error(err))
		}

		pool = pipeline.NewWorkerPool(cfg.Voice.WorkerPoolSize, cfg.Voice.JobTimeout, logger.Named("pool"))
		orchestrator = pipeline.NewOrchestrator(pipeline.Options{
			Models:     voiceModels,
			Engine:     engine,
			Store:      models.NewConversationStore(db),
			Pool:       pool,
			Normalizer: normalizer,
			Cache:      store,
			Metrics:    m,
			Events:     bus,
			Logger:     logger.Named("pipeline"),
			Config:     bootstrap.PipelineConfig(cfg),
		})
		registry := voicehandler.NewRegistry(m, logger.Named("registry"))
		if err := registry.StartReporter(voicehandler.DefaultReportSpec); err != nil {
			logger.Fatal("start registry reporter failed", zap.Error(err))
		}
		voice = voicehandler.NewVoiceHandler(&voicehandler.VoiceOptions{
			Models:      voiceModels,
			Pipeline:    orchestrator,
			Auth:        handlers.TokenAuthenticator(db),
			Normalizer:  normalizer,
			VAD:         bootstrap.VADConfig(cfg),
			TokenHeader: cfg.Auth.Header,
			Registry:    registry,
			Events:      bus,
			Metrics:     m,
			Logger:      logger.Named("voice"),
		})
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	mgr, err := middleware.NewMiddlewareManager(cfg.Middleware, logger.Named("http"))
	if err != nil {
		logger.Fatal("init middlewares failed", zap.Error(err))
	}
	engine := gin.New()
	handlers.NewHandlers(db, cfg, voice, m, mgr).Register(engine)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if voice != nil {
		// hijacked websocket connections are not tracked by Shutdown
		if err := voice.Registry().CloseAll(shutdownCtx); err != nil {
			logger.Warn("close voice sessions", zap.Error(err))
		}
		voice.Registry().StopReporter()
		orchestrator.Wait()
		pool.Close()
	}
	bus.Wait()
	if err := store.Close(); err != nil {
		logger.Warn("close cache", zap.Error(err))
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info("bye")
}
