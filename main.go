package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"tryon_backend/api"
	"tryon_backend/core"
	"tryon_backend/db"
	"tryon_backend/imagecache"
	"tryon_backend/imagefetch"
	"tryon_backend/logging"
	"tryon_backend/metrics"
	"tryon_backend/outfit"
	"tryon_backend/router"
	"tryon_backend/shutdown"
	"tryon_backend/synthesis"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// cacheNamespace is the KV namespace holding image cache entries.
const cacheNamespace = "images"

// vacuumThreshold is the number of swept entries after which the database
// file is compacted.
const vacuumThreshold = 50

func main() {
	if handled := HandleServiceCommand(os.Args); handled {
		return
	}

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Use fmt here since logger isn't initialized yet
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	logger, err := newLogger()
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(core.ExitCodeError)
	}
	defer func() { _ = logger.Sync() }()

	isService, err := RunAsService(logger)
	if err != nil {
		logger.Error("Service run failed", zap.Error(err))
		os.Exit(core.ExitCodeError)
	}
	if isService {
		return
	}

	if code := run(context.Background(), logger); code != core.ExitCodeSuccess {
		_ = logger.Sync()
		os.Exit(code)
	}
}

// newLogger builds the process logger from DEV_MODE, LOG_LEVEL and LOG_FILE.
func newLogger() (*logging.Logger, error) {
	isDevelopment := os.Getenv("DEV_MODE") == "true"
	defaultLevel := zapcore.InfoLevel
	if isDevelopment {
		defaultLevel = zapcore.DebugLevel
	}
	level := logging.ParseLogLevel("LOG_LEVEL", defaultLevel)
	return logging.NewLogger(logging.Options{
		Development: isDevelopment,
		Level:       &level,
		FilePath:    core.GetEnvOrDefault("LOG_FILE", "logs/tryon.log"),
	})
}

// run starts the backend and blocks until parent is cancelled or a signal
// arrives. It returns the process exit code.
func run(parent context.Context, logger *logging.Logger) int {
	if code := runStartupValidation(logger); code != core.ExitCodeSuccess {
		return code
	}

	cfg, err := core.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", zap.Error(err))
		return core.ExitCodeError
	}
	logger.Info("Configuration loaded",
		zap.String("version", core.GetVersionInfo()),
		zap.String("synthesis_url", cfg.SynthesisBaseURL),
		zap.String("model", cfg.SynthesisModel),
		zap.String("strategy", cfg.ComposeStrategy),
		zap.Duration("call_timeout", cfg.CallTimeout),
		zap.Duration("request_timeout", cfg.RequestTimeout),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.String("cache_db", cfg.CacheDBPath),
		zap.Duration("cache_max_age", cfg.CacheMaxAge),
		zap.String("listen", cfg.ListenAddr()),
	)

	mgr := shutdown.NewManager(parent, logger)
	mgr.Start()
	ctx := mgr.Context()

	database, err := db.NewDatabase(cfg.CacheDBPath)
	if err != nil {
		logger.Error("Failed to open cache database", zap.String("path", cfg.CacheDBPath), zap.Error(err))
		return core.ExitCodeError
	}
	mgr.Register("database", shutdown.PriorityStorage, shutdown.CloseResource(logger, "database", database))
	mgr.Register("logger", shutdown.PriorityLogger, shutdown.SyncLogger(logger))

	cache := imagecache.New(database.KVStore(cacheNamespace), logger)
	sweeperDone := cache.StartSweeper(ctx, imagecache.SweeperConfig{
		MaxAge:   cfg.CacheMaxAge,
		Interval: cfg.CacheSweepInterval,
		OnSweep: func(res imagecache.SweepResult) {
			if res.Err != nil || res.Removed < vacuumThreshold {
				return
			}
			if err := database.Vacuum(ctx); err != nil {
				logger.Warn("Cache vacuum failed", zap.Error(err))
			}
		},
	})
	mgr.Register("cache-sweeper", shutdown.PriorityWorkers, shutdown.WaitFor(logger, "cache-sweeper", sweeperDone))

	fetcher := imagefetch.New(imagefetch.ConfigFromCore(cfg), logger)
	client, err := synthesis.New(synthesis.ConfigFromCore(cfg), fetcher, logger)
	if err != nil {
		logger.Error("Failed to create synthesis client", zap.Error(err))
		_ = mgr.Shutdown()
		return core.ExitCodeError
	}

	retry := outfit.RetryPolicy{MaxAttempts: cfg.MaxRetries + 1, Delay: cfg.RetryDelay}
	extractor := outfit.NewExtractor(cache, fetcher, client, retry, logger)
	composer := outfit.NewComposer(fetcher, extractor, client, outfit.ComposerConfig{
		Strategy: cfg.ComposeStrategy,
		Retry:    retry,
	}, logger)

	storeCfg := metrics.DefaultStoreConfig()
	storeCfg.Version = core.GetVersion()
	metricsStore := metrics.NewMetricsStore(storeCfg, time.Now())

	broadcaster := api.NewBroadcaster(api.DefaultBroadcasterConfig(), logger)
	service := outfit.NewService(composer, metricsStore, broadcaster, logger)

	r := router.New(logger,
		router.WithTimeout(cfg.RequestTimeout),
		router.WithTracker(mgr.Tracker()),
		router.WithErrorDetail(router.OutfitErrorDetail),
	)
	router.Register(r, router.Services{
		Outfits:     service,
		Cache:       cache,
		Metrics:     metricsStore,
		CacheMaxAge: cfg.CacheMaxAge,
	})

	server := api.NewServer(api.ConfigFromCore(cfg), r, broadcaster, logger)
	mgr.Register("http-server", shutdown.PriorityHTTPServer, shutdown.StopServer(logger, "api", server))

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start(ctx) }()

	logger.Info("Try-on backend ready",
		zap.String("addr", cfg.ListenAddr()),
		zap.Strings("message_types", r.Types()),
		zap.String("model", client.Model()),
	)

	exitCode := core.ExitCodeSuccess
	select {
	case <-ctx.Done():
		exitCode = core.ExitCodeForSignal(mgr.Signal())
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
			exitCode = core.ExitCodeError
		}
	}

	if err := mgr.Shutdown(); err != nil {
		logger.Error("Shutdown incomplete", zap.Error(err))
		if exitCode == core.ExitCodeSuccess {
			exitCode = core.ExitCodeError
		}
	}
	logger.Info("Goodbye!", zap.String("exit", core.ExitCodeName(exitCode)))
	return exitCode
}

// runStartupValidation checks configuration before anything heavy starts.
func runStartupValidation(logger *logging.Logger) int {
	logger.Info("Starting startup validation...")

	suite := core.NewValidationSuite().
		WithAllowSelfSignedCerts(os.Getenv("ALLOW_SELF_SIGNED_CERTS") == "true").
		WithConnectivityCheck(os.Getenv("SKIP_CONNECTIVITY_CHECK") != "true").
		WithShowProgress(true)

	result := suite.Validate()
	if !result.Success {
		logger.Error("Configuration validation failed",
			zap.Int("passed", result.PassedSteps),
			zap.Int("failed", result.FailedSteps),
			zap.Duration("duration", result.Duration),
		)
		for _, step := range result.Steps {
			if step.Status == core.StepFailed {
				logger.Error("Validation step failed",
					zap.String("step", step.Name),
					zap.String("message", step.Message),
					zap.Error(step.Error),
				)
			}
		}
		if cfgErr, ok := core.IsConfigError(result.GetFirstError()); ok {
			logger.Error("How to fix", zap.String("code", cfgErr.Code), zap.String("action", cfgErr.Action))
		}
		return core.ExitCodeError
	}

	logger.Info("Configuration validation passed",
		zap.Int("checks_passed", result.PassedSteps),
		zap.Duration("duration", result.Duration),
	)
	return core.ExitCodeSuccess
}
