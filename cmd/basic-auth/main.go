package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/basic-auth/internal/application"
	"github.com/eugenenazirov/basic-auth/internal/config"
	"github.com/eugenenazirov/basic-auth/internal/logging"
)

const startupTimeout = 30 * time.Second

var signalNotify = signal.Notify

func main() {
	kingpinApp := kingpin.New("basic-auth", "Basic Authentication credentials service - stores API credentials and checks Basic auth headers")
	kingpinApp.Version(application.Version)
	configFile := kingpinApp.Flag("config", "Path to YAML configuration file (defaults to ./config.yaml when present)").String()
	envFile := kingpinApp.Flag("env-file", "Path to a .env file loaded into the environment").String()
	port := kingpinApp.Flag("port", "HTTP port exposed by the service").String()
	realm := kingpinApp.Flag("realm", "Realm announced in WWW-Authenticate challenges").String()
	logLevel := kingpinApp.Flag("log-level", "Log level (debug, info, warn, error)").String()
	dbDriver := kingpinApp.Flag("db-driver", "Credentials storage driver (memory, postgres, mysql, sqlite)").String()
	dbDSN := kingpinApp.Flag("db-dsn", "Credentials database DSN").String()
	rateLimitRPSFlag := kingpinApp.Flag("rate-limit-rps", "API requests per second allowed (set 0 to disable)").Default("-1").Float64()
	rateLimitBurstFlag := kingpinApp.Flag("rate-limit-burst", "Burst capacity for API rate limiter (set 0 to disable)").Default("-1").Int()

	kingpin.MustParse(kingpinApp.Parse(os.Args[1:]))

	overrides := &config.CLIOverrides{
		ConfigFile: *configFile,
		EnvFile:    *envFile,
		Port:       port,
		Realm:      realm,
		LogLevel:   logLevel,
		DBDriver:   dbDriver,
		DBDSN:      dbDSN,
	}

	if *rateLimitRPSFlag >= 0 {
		overrides.RateLimitRPS = rateLimitRPSFlag
	}

	if *rateLimitBurstFlag >= 0 {
		overrides.RateLimitBurst = rateLimitBurstFlag
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	app, err := application.New(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("failed to release resources", zap.Error(err))
		}
	}()

	if err := app.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	shutdown(app.Server(), cfg.ShutdownGracePeriod, logger)
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
