package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ramsey-B/sage/config"
	"github.com/Ramsey-B/sage/internal/repositories/hierarchy"
	"github.com/Ramsey-B/sage/internal/repositories/reference"
	"github.com/Ramsey-B/sage/internal/repositories/standardization"
	"github.com/Ramsey-B/sage/internal/repositories/tableschema"
	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/events"
	"github.com/Ramsey-B/sage/pkg/graph"
	hierarchysvc "github.com/Ramsey-B/sage/pkg/hierarchy"
	"github.com/Ramsey-B/sage/pkg/kafka"
	"github.com/Ramsey-B/sage/pkg/middleware"
	"github.com/Ramsey-B/sage/pkg/resolution"
	"github.com/Ramsey-B/sage/pkg/routes/health"
	hierarchyroutes "github.com/Ramsey-B/sage/pkg/routes/hierarchy"
	"github.com/Ramsey-B/sage/pkg/routes/record"
	"github.com/Ramsey-B/sage/pkg/routes/session"
	standardizationroutes "github.com/Ramsey-B/sage/pkg/routes/standardization"
	tableschemaroutes "github.com/Ramsey-B/sage/pkg/routes/tableschema"
	"github.com/Ramsey-B/sage/pkg/schema"
	"github.com/Ramsey-B/sage/pkg/standardize"
	"github.com/Ramsey-B/sage/pkg/startup"
	"github.com/Ramsey-B/sage/pkg/tracing"
	"github.com/Ramsey-B/sage/pkg/tracing/exporters"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg := &config.Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, flush, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer flush()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := initTracing(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	app := &application{cfg: cfg, logger: logger}

	boot := startup.New(logger, cfg.StartupMaxAttempts)
	boot.AddDependency(&databaseDependency{app: app})
	if cfg.GraphDBEnabled {
		boot.AddDependency(&graphDependency{app: app})
	}
	if cfg.KafkaEnabled {
		boot.AddDependency(&kafkaDependency{app: app})
	}
	boot.AddDependency(&serverDependency{app: app})

	if err := boot.Start(ctx); err != nil {
		return err
	}
	logger.WithField("port", cfg.Port).Infof("%s is running", cfg.AppName)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	return boot.Stop(stopCtx)
}

// application holds the realized dependencies the startup steps hand to each
// other.
type application struct {
	cfg    *config.Config
	logger ectologger.Logger

	sqlDB    *sqlx.DB
	db       database.DB
	graph    *graph.Client
	producer *kafka.Producer

	echo    *echo.Echo
	checker *health.Checker
}

func newLogger(cfg *config.Config) (ectologger.Logger, func(), error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(parseLogLevel(cfg.LogLevel))
	zl, err := zapCfg.Build()
	if err != nil {
		return nil, nil, err
	}

	sink := zl.Sugar()
	logger := ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		data, err := json.Marshal(msg)
		if err != nil {
			sink.Error("failed to encode log message")
			return
		}
		sink.Info(string(data))
	})
	return logger, func() { _ = zl.Sync() }, nil
}

func parseLogLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func initTracing(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	if !cfg.TracingEnabled {
		tp := sdktrace.NewTracerProvider()
		otel.SetTracerProvider(tp)
		tracing.SetTracer(tp.Tracer(cfg.AppName))
		return tp.Shutdown, nil
	}

	exporter, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
		Endpoint: cfg.OTLPEndpoint,
		Protocol: cfg.OTLPProtocol,
		Insecure: cfg.OTLPInsecure,
		Timeout:  10 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	res, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(cfg.AppName)),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	tracing.SetTracer(tp.Tracer(cfg.AppName))
	return tp.Shutdown, nil
}

type databaseDependency struct {
	app *application
}

func (d *databaseDependency) GetName() string { return "database" }
func (d *databaseDependency) DependsOn() []string { return nil }

func (d *databaseDependency) Start(ctx context.Context) error {
	cfg := d.app.cfg
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName,
		cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
	)

	sqlDB, err := sqlx.ConnectContext(ctx, cfg.DatabaseDriver, dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	driver, err := migratepg.WithInstance(sqlDB.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	migrations := database.NewMigrationService(d.app.logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	if err := migrations.Migrate(cfg.DatabaseName, driver); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.app.sqlDB = sqlDB
	d.app.db = database.NewDatabaseInstance(sqlDB, d.app.logger)
	return nil
}

func (d *databaseDependency) Stop(ctx context.Context) error {
	if d.app.sqlDB == nil {
		return nil
	}
	return d.app.sqlDB.Close()
}

type graphDependency struct {
	app *application
}

func (d *graphDependency) GetName() string { return "graph" }
func (d *graphDependency) DependsOn() []string { return nil }

func (d *graphDependency) Start(ctx context.Context) error {
	cfg := d.app.cfg
	client, err := graph.NewClient(graph.Config{
		Host:     cfg.GraphDBHost,
		Port:     cfg.GraphDBPort,
		Username: cfg.GraphDBUser,
		Password: cfg.GraphDBPassword,
	}, d.app.logger)
	if err != nil {
		return err
	}
	if err := client.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("graph database is unreachable: %w", err)
	}
	d.app.graph = client
	return nil
}

func (d *graphDependency) Stop(ctx context.Context) error {
	if d.app.graph == nil {
		return nil
	}
	return d.app.graph.Close(ctx)
}

type kafkaDependency struct {
	app *application
}

func (d *kafkaDependency) GetName() string { return "kafka" }
func (d *kafkaDependency) DependsOn() []string { return nil }

func (d *kafkaDependency) Start(ctx context.Context) error {
	cfg := d.app.cfg
	d.app.producer = kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.KafkaBrokers,
		Topic:        cfg.KafkaOutputTopic,
		BatchSize:    cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: cfg.KafkaRequiredAcks,
		Compression:  cfg.KafkaCompression,
	}, d.app.logger)
	return nil
}

func (d *kafkaDependency) Stop(ctx context.Context) error {
	if d.app.producer == nil {
		return nil
	}
	return d.app.producer.Close()
}

type serverDependency struct {
	app *application
}

func (d *serverDependency) GetName() string { return "server" }

func (d *serverDependency) DependsOn() []string {
	deps := []string{"database"}
	if d.app.cfg.GraphDBEnabled {
		deps = append(deps, "graph")
	}
	if d.app.cfg.KafkaEnabled {
		deps = append(deps, "kafka")
	}
	return deps
}

func (d *serverDependency) Start(ctx context.Context) error {
	app := d.app
	cfg := app.cfg
	logger := app.logger

	refRepo := reference.NewRepository(app.db, logger)
	stdRepo := standardization.NewRepository(app.db, logger)
	schemaRepo := tableschema.NewRepository(app.db, logger)
	edgeRepo := hierarchy.NewRepository(app.db, logger)

	validation := schema.NewValidationService(schemaRepo, logger)
	mapper := standardize.NewMapper(stdRepo, logger)
	sessions := resolution.NewSessionManager(refRepo, schemaRepo, logger)

	var sinks []resolution.EventSink
	if app.producer != nil {
		sinks = append(sinks, events.NewEmitter(app.producer, logger))
	}

	var queries *graph.QueryService
	if app.graph != nil {
		mirror := graph.NewSink(app.graph, logger)
		sinks = append(sinks, mirror)
		queries = graph.NewQueryService(app.graph, logger)
		backfillMirror(ctx, mirror, refRepo, edgeRepo, schemaRepo, logger)
	}

	orch := resolution.NewOrchestrator(
		sessions, refRepo, edgeRepo, mapper, validation,
		events.NewFanout(sinks...), logger,
		resolution.Config{
			ReviewThreshold:   cfg.SimilarityThreshold,
			BlockingThreshold: cfg.BlockingThreshold,
		},
	)
	hierarchies := hierarchysvc.NewService(edgeRepo, queries, logger)

	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return fmt.Errorf("failed to create DI container: %w", err)
	}
	if err := errors.Join(
		ectoinject.RegisterInstance[ectologger.Logger](container, logger),
		ectoinject.RegisterInstance[database.DB](container, app.db),
		ectoinject.RegisterInstance[*reference.Repository](container, refRepo),
		ectoinject.RegisterInstance[*standardization.Repository](container, stdRepo),
		ectoinject.RegisterInstance[*tableschema.Repository](container, schemaRepo),
		ectoinject.RegisterInstance[*standardize.Mapper](container, mapper),
		ectoinject.RegisterInstance[*schema.ValidationService](container, validation),
		ectoinject.RegisterInstance[*resolution.Orchestrator](container, orch),
		ectoinject.RegisterInstance[*hierarchysvc.Service](container, hierarchies),
	); err != nil {
		return fmt.Errorf("failed to register dependencies: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	app.checker = health.NewChecker(app.sqlDB, nil, version)
	if app.graph != nil {
		app.checker = health.NewChecker(app.sqlDB, app.graph, version)
	}
	app.checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	session.Register(api.Group("/sessions"))
	tableschemaroutes.Register(api.Group("/schemas"))
	standardizationroutes.Register(api.Group("/tables"))
	record.Register(api.Group("/tables"))
	hierarchyroutes.Register(api.Group("/tables"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		if err := e.StartServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("http server stopped unexpectedly")
		}
	}()

	app.echo = e
	app.checker.SetReady(true)
	return nil
}

func (d *serverDependency) Stop(ctx context.Context) error {
	if d.app.echo == nil {
		return nil
	}
	d.app.checker.SetReady(false)
	return d.app.echo.Shutdown(ctx)
}

// backfillMirror rebuilds the graph mirror from the relational store so deep
// traversals also see edges written while the mirror was unreachable.
// Best-effort: a failed table degrades its traversals, it never blocks boot.
func backfillMirror(
	ctx context.Context,
	mirror *graph.Sink,
	records *reference.Repository,
	edges *hierarchy.Repository,
	schemas *tableschema.Repository,
	logger ectologger.Logger,
) {
	tables, err := schemas.List(ctx)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Warn("could not list table schemas for the mirror backfill")
		return
	}

	for _, ts := range tables {
		log := logger.WithContext(ctx).WithFields(map[string]any{"table": ts.Name})

		recs, err := records.List(ctx, ts.Name)
		if err != nil {
			log.WithError(err).Warn("mirror backfill skipped a table")
			continue
		}
		edgeList, err := edges.List(ctx, ts.Name)
		if err != nil {
			log.WithError(err).Warn("mirror backfill skipped a table")
			continue
		}
		if err := mirror.Backfill(ctx, recs, edgeList); err != nil {
			log.WithError(err).Warn("mirror backfill failed for a table")
			continue
		}
		log.WithFields(map[string]any{
			"records": len(recs),
			"edges":   len(edgeList),
		}).Info("backfilled graph mirror")
	}
}
