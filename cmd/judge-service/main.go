package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"judgehost/internal/common/cache"
	commonmw "judgehost/internal/common/http/middleware"
	"judgehost/internal/common/httpclient"
	"judgehost/internal/common/mq"
	"judgehost/internal/common/storage"
	"judgehost/internal/judge/controller"
	"judgehost/internal/judge/delivery"
	"judgehost/internal/judge/dispatcher"
	"judgehost/internal/judge/intake"
	"judgehost/internal/judge/metrics"
	"judgehost/internal/judge/sandbox/engine"
	"judgehost/internal/judge/sandbox/profile"
	"judgehost/internal/judge/sandbox/runner"
	"judgehost/internal/judge/testdata"
	appErr "judgehost/pkg/errors"
	"judgehost/pkg/utils/logger"
	"judgehost/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	defaultConfigPath = "configs/judge_service.yaml"
	serviceName       = "judgehost.Judge"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file (overridden by "+configEnv+")")
	flag.Parse()

	appCfg, err := loadAppConfig(resolveConfigPath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "judge service stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()

	langs, err := profile.NewStaticRepository(appCfg.Languages)
	if err != nil {
		return fmt.Errorf("load languages: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	defer func() {
		_ = redisCache.Close()
	}()

	eng, err := engine.NewDockerEngine(appCfg.Sandbox.toEngineConfig())
	if err != nil {
		return fmt.Errorf("init sandbox engine: %w", err)
	}
	defer func() {
		_ = eng.Close()
	}()
	pingCtx, cancelPing := context.WithTimeout(ctx, 10*time.Second)
	err = eng.Ping(pingCtx)
	cancelPing()
	if err != nil {
		return fmt.Errorf("docker daemon unreachable: %w", err)
	}

	jobRunner := runner.NewRunner(eng,
		runner.WithMetrics(recorder),
		runner.WithCompileProfile(appCfg.Sandbox.compileProfile()),
		runner.WithRunProfile(appCfg.Sandbox.runProfile()),
	)

	backend := httpclient.New(appCfg.Backend.API, appCfg.Backend.Timeout)
	sinkOpts, closeSinkDeps, err := buildSinkOptions(ctx, appCfg, redisCache)
	if err != nil {
		return err
	}
	defer closeSinkDeps()

	sink, err := delivery.NewBackendSink(delivery.Config{
		SubmissionDir: appCfg.Storage.SubmissionDir,
		BackupDir:     appCfg.Storage.BackupDir,
		Token:         appCfg.Backend.Token,
	}, backend, sinkOpts...)
	if err != nil {
		return fmt.Errorf("init result sink: %w", err)
	}

	disp, err := dispatcher.New(appCfg.Dispatcher.toDispatcherConfig(appCfg.Storage), langs, jobRunner, sink,
		dispatcher.WithRecorder(recorder))
	if err != nil {
		return fmt.Errorf("init dispatcher: %w", err)
	}
	reg.MustRegister(metrics.NewStatsCollector(disp))

	tdStore, err := testdata.NewStore(testdata.Config{
		Root:   appCfg.Storage.TestdataRoot,
		Token:  appCfg.Backend.Token,
		Limits: appCfg.Storage.archiveLimits(),
	}, backend, redisCache)
	if err != nil {
		return fmt.Errorf("init test data store: %w", err)
	}

	intakeSvc, err := intake.NewService(intake.Config{
		SubmissionDir: appCfg.Storage.SubmissionDir,
		SourceLimits:  appCfg.Storage.archiveLimits(),
		TestLimits:    appCfg.Storage.archiveLimits(),
	}, langs, tdStore, disp)
	if err != nil {
		return fmt.Errorf("init intake: %w", err)
	}

	judgeController := controller.NewJudgeController(intakeSvc, disp, appCfg.Server.MaxUpload)
	httpServer := buildHTTPServer(appCfg.Server, judgeController, appCfg.Backend.Token, reg)

	healthSrv := health.NewServer()
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)

	httpLis, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener: %w", err)
	}
	healthLis, err := net.Listen("tcp", appCfg.Server.HealthAddr)
	if err != nil {
		_ = httpLis.Close()
		return fmt.Errorf("init health listener: %w", err)
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(sigCtx)

	g.Go(func() error {
		logger.Info(gctx, "dispatcher loop starting", zap.Bool("testing", appCfg.Dispatcher.Testing))
		healthSrv.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
		return disp.Run(gctx)
	})
	g.Go(func() error {
		logger.Info(gctx, "judge http server started", zap.String("addr", appCfg.Server.Addr))
		if err := httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info(gctx, "health server started", zap.String("addr", appCfg.Server.HealthAddr))
		return grpcServer.Serve(healthLis)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(context.Background(), "shutdown signal received")
		healthSrv.Shutdown()
		disp.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildSinkOptions wires the optional completion notifiers and the backup archiver.
func buildSinkOptions(ctx context.Context, appCfg *AppConfig, redisCache *cache.RedisCache) ([]delivery.Option, func(), error) {
	var (
		opts      []delivery.Option
		notifiers []delivery.Notifier
		closers   []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if appCfg.Notify.RedisChannel != "" {
		notifiers = append(notifiers, delivery.NewRedisNotifier(redisCache, appCfg.Notify.RedisChannel))
	}
	if appCfg.Notify.KafkaTopic != "" {
		producer, err := mq.NewKafkaProducer(appCfg.Kafka)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("init kafka producer: %w", err)
		}
		closers = append(closers, func() { _ = producer.Close() })
		notifiers = append(notifiers, delivery.NewKafkaNotifier(producer, appCfg.Notify.KafkaTopic))
	}
	if len(notifiers) > 0 {
		opts = append(opts, delivery.WithNotifiers(notifiers...))
	}

	if appCfg.Archive.Enabled {
		store, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("init minio: %w", err)
		}
		ensureCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = store.EnsureBucket(ensureCtx, appCfg.MinIO.Bucket)
		cancel()
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("ensure backup bucket: %w", err)
		}
		opts = append(opts, delivery.WithArchiver(delivery.NewMinIOArchiver(store, appCfg.MinIO.Bucket, appCfg.Archive.Prefix)))
	}
	return opts, closeAll, nil
}

func buildHTTPServer(cfg ServerConfig, h *controller.JudgeController, token string, reg *prometheus.Registry) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.AccessLogMiddleware())

	controller.RegisterRoutes(router, h, token)
	router.NoRoute(func(c *gin.Context) {
		response.Error(c, appErr.Newf(appErr.NotFound, "no route for %s %s", c.Request.Method, c.Request.URL.Path))
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
