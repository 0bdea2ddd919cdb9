package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/Gobusters/ectologger"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/evanramirez88/resolve/config"
	candidaterepo "github.com/evanramirez88/resolve/internal/repositories/candidate"
	"github.com/evanramirez88/resolve/internal/repositories/canonicalcontact"
	"github.com/evanramirez88/resolve/internal/repositories/deduprun"
	matchrulerepo "github.com/evanramirez88/resolve/internal/repositories/matchrule"
	"github.com/evanramirez88/resolve/internal/repositories/mergerecord"
	"github.com/evanramirez88/resolve/pkg/canonical"
	"github.com/evanramirez88/resolve/pkg/database"
	"github.com/evanramirez88/resolve/pkg/events"
	"github.com/evanramirez88/resolve/pkg/generator"
	"github.com/evanramirez88/resolve/pkg/kafka"
	"github.com/evanramirez88/resolve/pkg/merging"
	"github.com/evanramirez88/resolve/pkg/middleware"
	"github.com/evanramirez88/resolve/pkg/redis"
	canonicalroutes "github.com/evanramirez88/resolve/pkg/routes/canonical"
	candidateroutes "github.com/evanramirez88/resolve/pkg/routes/candidate"
	"github.com/evanramirez88/resolve/pkg/routes/health"
	matchruleroutes "github.com/evanramirez88/resolve/pkg/routes/matchrule"
	mergeroutes "github.com/evanramirez88/resolve/pkg/routes/merge"
	runroutes "github.com/evanramirez88/resolve/pkg/routes/run"
	"github.com/evanramirez88/resolve/pkg/runner"
	"github.com/evanramirez88/resolve/pkg/sources"
	"github.com/evanramirez88/resolve/pkg/tracing"
	"github.com/evanramirez88/resolve/pkg/tracing/exporters"
)

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(&cfg)

	if err := run(&cfg, logger); err != nil {
		logger.WithError(err).Error("Service exited with error")
		os.Exit(1)
	}
}

// newLogger routes structured log messages through zap
func newLogger(cfg *config.Config) ectologger.Logger {
	var zl *zap.Logger
	if cfg.PrettyLogs {
		zl, _ = zap.NewDevelopment()
	} else {
		zl, _ = zap.NewProduction()
	}

	return ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		data, err := json.Marshal(msg)
		if err != nil {
			zl.Info(fmt.Sprintf("%+v", msg))
			return
		}
		zl.Info(string(data))
	})
}

func run(cfg *config.Config, logger ectologger.Logger) error {
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(&exporters.ConsoleExporter{}))
	otel.SetTracerProvider(tp)
	tracing.SetTracer(tp.Tracer(cfg.AppName))
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	db, err := connectDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := redis.NewClient(redis.Config{
		Address:  cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	var producer *kafka.Producer
	if cfg.KafkaEnabled {
		producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		defer producer.Close()
	}
	emitter := events.NewEmitter(producer, logger)

	// repositories
	ruleRepo := matchrulerepo.NewRepository(db, logger)
	candRepo := candidaterepo.NewRepository(db, logger)
	mergeRepo := mergerecord.NewRepository(db, logger)
	contactRepo := canonicalcontact.NewRepository(db, logger)
	runRepo := deduprun.NewRepository(db, logger)

	// services
	reader := sources.NewReader(db, logger)
	canonicalSvc := canonical.NewService(contactRepo, emitter, canonical.WeightsFromConfig(cfg), logger)
	engine := merging.NewEngine(db, candRepo, ruleRepo, mergeRepo, contactRepo, canonicalSvc, reader, emitter, logger)
	gen := generator.NewGenerator(reader, candRepo, emitter, logger, cfg.ScanChunkSize, cfg.ScoreWorkerCount)
	locker := redis.NewLocker(redisClient, "resolve:lock:")
	orch := runner.NewOrchestrator(runRepo, ruleRepo, candRepo, gen, engine, locker, logger, runner.Options{
		LockTTL:          cfg.RunLockTTL,
		LockRetryTimeout: cfg.RunLockRetryTimeout,
		AutoMergeEnabled: cfg.AutoMergeEnabled,
		MergeBatchSize:   cfg.CandidateBatchSize,
	})

	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return err
	}
	if err := registerDependencies(container, logger, db, ruleRepo, candRepo, mergeRepo, contactRepo, runRepo, canonicalSvc, engine, orch); err != nil {
		return err
	}

	e := newEcho(cfg, logger)

	checker := health.NewChecker(db, redisClient, os.Getenv("APP_VERSION"))
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	matchruleroutes.Register(api.Group("/match-rules"))
	candidateroutes.Register(api.Group("/candidates"))
	mergeroutes.Register(api.Group("/merges"))
	runroutes.Register(api.Group("/runs"))
	canonicalroutes.Register(api.Group("/canonical-contacts"))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	checker.SetReady(true)

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(fmt.Sprintf(":%d", cfg.Port))
	}()
	logger.WithFields(map[string]any{"port": cfg.Port}).Infof("%s listening on :%d", cfg.AppName, cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case sig := <-quit:
		logger.Infof("Received signal %s, shutting down", sig)
	}

	checker.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func connectDatabase(cfg *config.Config, logger ectologger.Logger) (database.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode)

	sqlxDB, err := sqlx.Connect(cfg.DatabaseDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlxDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	sqlxDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	sqlxDB.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	driver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to prepare migration driver: %w", err)
	}

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	if err := migrations.Migrate(cfg.DatabaseName, driver); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return database.NewDatabaseInstance(sqlxDB, logger), nil
}

func registerDependencies(
	container ectocontainer.DIContainer,
	logger ectologger.Logger,
	db database.DB,
	ruleRepo *matchrulerepo.Repository,
	candRepo *candidaterepo.Repository,
	mergeRepo *mergerecord.Repository,
	contactRepo *canonicalcontact.Repository,
	runRepo *deduprun.Repository,
	canonicalSvc *canonical.Service,
	engine *merging.Engine,
	orch *runner.Orchestrator,
) error {
	if err := ectoinject.RegisterInstance[ectologger.Logger](container, logger); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[database.DB](container, db); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*matchrulerepo.Repository](container, ruleRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*candidaterepo.Repository](container, candRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*mergerecord.Repository](container, mergeRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*canonicalcontact.Repository](container, contactRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*deduprun.Repository](container, runRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*canonical.Service](container, canonicalSvc); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*merging.Engine](container, engine); err != nil {
		return err
	}
	return ectoinject.RegisterInstance[*runner.Orchestrator](container, orch)
}

func newEcho(cfg *config.Config, logger ectologger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.HTTPErrorHandler = middleware.Error(logger)

	return e
}
