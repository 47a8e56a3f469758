package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zipcase/zipcase/internal/logger"
	"github.com/zipcase/zipcase/internal/telemetry"
	"github.com/zipcase/zipcase/pkg/api"
	"github.com/zipcase/zipcase/pkg/api/auth"
	"github.com/zipcase/zipcase/pkg/casestore"
	"github.com/zipcase/zipcase/pkg/config"
	"github.com/zipcase/zipcase/pkg/kvstore"
	"github.com/zipcase/zipcase/pkg/metrics"
	"github.com/zipcase/zipcase/pkg/pipeline"
	"github.com/zipcase/zipcase/pkg/portal"
	"github.com/zipcase/zipcase/pkg/portal/waf"
	"github.com/zipcase/zipcase/pkg/secrets"
	"github.com/zipcase/zipcase/pkg/uploads"
	"github.com/zipcase/zipcase/pkg/userstore"

	// Import prometheus metrics to register init() functions
	_ "github.com/zipcase/zipcase/pkg/metrics/prometheus"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the ZipCase server",
	Long: `Start the ZipCase server with the specified configuration.

This runs the HTTP API, the search and case-data queue consumers and,
when enabled, the Prometheus metrics endpoint, all in one process.

By default, the server runs in the background (daemon mode). Use --foreground
to run in the foreground for debugging or when managed by a process supervisor.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/zipcase/config.yaml.

Examples:
  # Start in background (default)
  zipcase start

  # Start in foreground
  zipcase start --foreground

  # Start with custom config file
  zipcase start --config /etc/zipcase/config.yaml

  # Start with environment variable overrides
  ZIPCASE_LOGGING_LEVEL=DEBUG zipcase start --foreground`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/zipcase/zipcase.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/zipcase/zipcase.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	// Handle daemon mode (background)
	if !foreground {
		return startDaemon()
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	// Initialize the structured logger
	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry (if enabled)
	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "zipcase",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	// Initialize Pyroscope profiling (if enabled)
	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "zipcase",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	fmt.Println("ZipCase - Court case search service")
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	} else {
		logger.Info("Profiling disabled")
	}

	// Initialize the metrics registry (if enabled). The pkg/metrics
	// constructors below return nil while the registry is absent, which
	// turns instrumentation off with zero overhead.
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	// Case-state store, stage queues and credential encrypter
	store, err := config.CreateStore(ctx, cfg.Store, metrics.NewStoreMetrics())
	if err != nil {
		return fmt.Errorf("failed to create case-state store: %w", err)
	}
	defer func() { _ = store.Close() }()
	logger.Info("Case-state store ready", "type", cfg.Store.Type)

	searchQ, dataQ, err := config.CreateQueues(ctx, cfg.Queues, metrics.NewQueueMetrics())
	if err != nil {
		return fmt.Errorf("failed to create queues: %w", err)
	}
	logger.Info("Stage queues ready", "type", cfg.Queues.Type)

	encrypter, err := config.CreateEncrypter(ctx, cfg.Secrets)
	if err != nil {
		return fmt.Errorf("failed to create encrypter: %w", err)
	}
	logger.Info("Credential encrypter ready", "provider", cfg.Secrets.Provider)

	cases := casestore.New(store)
	users := userstore.New(store, encrypter)

	// Portal session manager and case client. The challenge solver is
	// optional; without it, portal logins that hit a bot challenge fail.
	solver, err := config.CreateSolver(cfg.Waf, wafKeySource(store, encrypter))
	if err != nil {
		return fmt.Errorf("failed to create challenge solver: %w", err)
	}
	if solver != nil {
		logger.Info("Challenge solver enabled", "endpoint", cfg.Waf.Endpoint)
	} else {
		logger.Info("Challenge solver disabled")
	}

	portalMetrics := metrics.NewPortalMetrics()
	sessions := portal.NewSessionManager(cfg.PortalConfig(), users, solver).WithMetrics(portalMetrics)
	portalClient := portal.NewClient(cfg.PortalConfig()).WithMetrics(portalMetrics)
	logger.Info("Portal client configured", "base_url", cfg.Portal.BaseURL)

	// Pipeline: coordinator classifies submissions, the two workers
	// consume the stage queues, recovery requeues corrupt summaries.
	pipelineMetrics := metrics.NewPipelineMetrics()
	coordinator := pipeline.NewCoordinator(cfg.PipelineConfig(), cases, sessions, searchQ, dataQ).
		WithMetrics(pipelineMetrics)

	recovery := pipeline.NewRecovery(cfg.PipelineConfig(), cases, dataQ)
	cases.SetRecoveryHook(recovery)

	searchWorker := pipeline.NewSearchWorker(cfg.PipelineConfig(), cases, users, sessions, portalClient, dataQ).
		WithMetrics(pipelineMetrics)
	dataWorker := pipeline.NewDataWorker(cfg.PipelineConfig(), cases, users, sessions, portalClient, dataQ).
		WithMetrics(pipelineMetrics)

	searchRunner := pipeline.NewRunner("search", searchQ, searchWorker, pipeline.RunnerOptions{
		Concurrency: cfg.Workers.SearchConcurrency,
	})
	dataRunner := pipeline.NewRunner("data", dataQ, dataWorker, pipeline.RunnerOptions{
		Concurrency: cfg.Workers.DataConcurrency,
	})

	// Token service verifying API bearer tokens
	tokens, err := auth.NewTokenService(cfg.API.JWTSecret, 0)
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}

	// API server dependencies
	deps := api.Deps{
		Auth:          tokens,
		Pipeline:      coordinator,
		Users:         users,
		Sessions:      sessions,
		UploadMaxSize: int64(cfg.Uploads.MaxSize),
		Store:         store,
		Version:       Version,
		Metrics:       metrics.NewAPIMetrics(),
	}

	// Presigned uploads are optional; without a bucket the endpoint
	// reports the feature as unavailable.
	if cfg.Uploads.Bucket != "" {
		signer, err := uploads.NewFromConfig(ctx, cfg.UploadSignerConfig())
		if err != nil {
			return fmt.Errorf("failed to create upload signer: %w", err)
		}
		deps.Uploads = signer
		logger.Info("Upload signer enabled", "bucket", cfg.Uploads.Bucket)
	} else {
		logger.Info("Upload signer disabled")
	}

	apiServer := api.NewServer(cfg.APIServerConfig(), deps)
	logger.Info("API server configured", "port", cfg.API.Port)

	// Serve Prometheus metrics on a separate port so the scrape
	// endpoint never competes with (or leaks through) the public API.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: mux,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server error", "error", err)
			}
		}()
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("Metrics collection disabled")
	}
	defer func() {
		if metricsServer != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}
	}()

	// Reload the log level when the config file changes on disk
	if GetConfigFile() != "" || config.DefaultConfigExists() {
		if err := config.Watch(GetConfigFile(), func(newCfg *config.Config) {
			logger.SetLevel(newCfg.Logging.Level)
		}); err != nil {
			logger.Warn("Config watch unavailable", "error", err)
		}
	}

	// Write PID file if specified
	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	// Start the queue consumers; they run until shutdown
	searchRunner.Start(ctx)
	dataRunner.Start(ctx)
	logger.Info("Pipeline workers started",
		"search_concurrency", cfg.Workers.SearchConcurrency,
		"data_concurrency", cfg.Workers.DataConcurrency)
	defer func() {
		searchRunner.Stop(cfg.ShutdownTimeout)
		dataRunner.Stop(cfg.ShutdownTimeout)
	}()

	// Start API server in background
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- apiServer.Start(ctx)
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		// Wait for server to shut down gracefully
		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}

// wafKeySystemKey is where an operator-provisioned challenge service
// API key lives in the case-state store, encrypted like any other
// credential.
var wafKeySystemKey = kvstore.Key{PK: "SYSTEM", SK: "WAF_API_KEY"}

// wafKeyRecord is the stored document at wafKeySystemKey.
type wafKeyRecord struct {
	APIKey string `json:"apiKey"`
}

// wafKeySource returns a KeyFunc resolving the challenge service API
// key from the case-state store. The solver only consults it when no
// key is set in config, so deployments can rotate the key by updating
// the store record without a restart.
func wafKeySource(store kvstore.Store, enc secrets.Encrypter) waf.KeyFunc {
	return func(ctx context.Context) (string, error) {
		doc, err := store.Get(ctx, wafKeySystemKey)
		if err != nil {
			return "", fmt.Errorf("challenge service key lookup: %w", err)
		}

		var rec wafKeyRecord
		if err := json.Unmarshal(doc, &rec); err != nil {
			return "", fmt.Errorf("challenge service key record: %w", err)
		}
		if rec.APIKey == "" {
			return "", errors.New("challenge service key record is empty")
		}

		return secrets.DecryptString(ctx, enc, rec.APIKey)
	}
}

// startDaemon starts the server as a background daemon process.
func startDaemon() error {
	// Determine state directory for PID and log files
	stateDir := GetDefaultStateDir()

	// Create state directory if it doesn't exist
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	// Set default PID file if not specified
	pidPath := pidFile
	if pidPath == "" {
		pidPath = filepath.Join(stateDir, "zipcase.pid")
	}

	// Check if already running
	if _, err := os.Stat(pidPath); err == nil {
		pidData, err := os.ReadFile(pidPath)
		if err == nil {
			var pid int
			if _, err := fmt.Sscanf(string(pidData), "%d", &pid); err == nil {
				// Check if process is still running
				if process, err := os.FindProcess(pid); err == nil {
					if err := process.Signal(syscall.Signal(0)); err == nil {
						return fmt.Errorf("ZipCase is already running (PID %d)\nUse 'zipcase stop' to stop the running instance", pid)
					}
				}
			}
		}
		// Stale PID file, remove it
		_ = os.Remove(pidPath)
	}

	// Set default log file if not specified
	logPath := logFile
	if logPath == "" {
		logPath = filepath.Join(stateDir, "zipcase.log")
	}

	// Get the executable path
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// Build arguments for the daemon process
	daemonArgs := []string{"start", "--foreground", "--pid-file", pidPath}
	if GetConfigFile() != "" {
		daemonArgs = append(daemonArgs, "--config", GetConfigFile())
	}

	// Create the daemon process
	cmd := exec.Command(executable, daemonArgs...)

	// Open log file for stdout/stderr
	logFileHandle, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	cmd.Stdout = logFileHandle
	cmd.Stderr = logFileHandle

	// Detach from parent process
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	// Start the daemon
	if err := cmd.Start(); err != nil {
		_ = logFileHandle.Close()
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	_ = logFileHandle.Close()

	fmt.Printf("ZipCase started in background (PID %d)\n", cmd.Process.Pid)
	fmt.Printf("  PID file: %s\n", pidPath)
	fmt.Printf("  Log file: %s\n", logPath)
	fmt.Println("\nUse 'zipcase stop' to stop the server")
	fmt.Println("Use 'zipcase status' to check server status")

	return nil
}
