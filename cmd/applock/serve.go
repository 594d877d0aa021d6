package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/bridge"
	"github.com/eliteGoblin/focusd/app_lock/internal/config"
	"github.com/eliteGoblin/focusd/app_lock/internal/daemon"
	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
	"github.com/eliteGoblin/focusd/app_lock/internal/infra"
	"github.com/eliteGoblin/focusd/app_lock/internal/infra/x11"
	"github.com/eliteGoblin/focusd/app_lock/internal/logging"
	"github.com/eliteGoblin/focusd/app_lock/internal/transport"
	"github.com/eliteGoblin/focusd/app_lock/internal/usecase"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the applock daemon in the foreground",
	Long: `Runs the daemon: restores the locked-app selection, serves commands on
the local command port and, when apps are selected, starts monitoring.
"applock start" runs this in the background for you.`,
	RunE: runServe,
}

var logToStdout bool

func init() {
	serveCmd.Flags().BoolVar(&logToStdout, "log-stdout", false, "Log to stdout instead of <data dir>/applock.log")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	paths := cfg.Paths()
	if err := os.MkdirAll(paths.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	logCfg := cfg.Logging
	if len(logCfg.Output) == 0 && !logToStdout {
		logCfg.Output = []string{paths.LogFile}
	}
	logger := logging.NewOrFallback(logCfg)
	defer func() { _ = logger.Sync() }()

	store, err := infra.OpenStore(paths.DataDir)
	if err != nil {
		logger.Error("failed to open secure store", zap.Error(err))
		return err
	}
	defer store.Close()

	pm := infra.NewProcessManager()
	metrics := infra.NewMetrics()

	permissions := infra.NewDesktopPermissions(
		cfg.PermissionsConfig(),
		func() (bool, error) { return x11.CanDraw(cfg.Display.Name) },
		nil,
		logger,
	)

	br := bridge.New(cfg.BridgeConfig(), newUnitFactory(cfg, pm, metrics, logger), permissions, logger,
		bridge.WithVerifier(usecase.NewKeyVerifier(store)),
		bridge.WithSelectionStore(infra.NewSelectionStore(store, logger)),
	)
	if err := br.Restore(); err != nil {
		logger.Warn("failed to restore locked packages", zap.Error(err))
	}

	var opts []transport.ServerOption
	if cfg.Server.Metrics {
		opts = append(opts, transport.WithMetrics(metrics.Handler(), metrics))
	}
	server := transport.NewServer(cfg.ServerConfig(), br, logger, opts...)
	addr, err := server.Listen()
	if err != nil {
		logger.Error("failed to start command server", zap.Error(err))
		return err
	}

	record := domain.ServerRecord{
		PID:       pm.GetCurrentPID(),
		Addr:      addr.String(),
		Version:   Version,
		StartedAt: time.Now(),
	}
	registry := infra.NewFileRegistry(paths.DataDir, pm)
	keeper := daemon.NewRecordKeeper(
		daemon.RecordKeeperConfig{CheckInterval: cfg.Bridge.RecordCheckInterval},
		registry, record, logger)
	watcher := daemon.NewPermissionWatcher(
		daemon.PermissionWatcherConfig{CheckInterval: cfg.Bridge.PermissionCheckInterval},
		br, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Lock mode: a saved selection means the lock was on when the daemon stopped.
	if len(br.Status(ctx).Selection) > 0 {
		if !br.StartMonitoringUnit() {
			logger.Warn("monitoring did not start; retry with 'applock start'")
		}
	}

	logger.Info("applock daemon started",
		zap.String("version", Version),
		zap.Int("pid", record.PID),
		zap.String("addr", record.Addr),
		zap.String("data_dir", paths.DataDir))

	errCh := make(chan error, 3)
	var wg sync.WaitGroup
	for _, run := range []func(context.Context) error{server.Serve, keeper.Run, watcher.Run} {
		wg.Add(1)
		go func(run func(context.Context) error) {
			defer wg.Done()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}(run)
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case runErr = <-errCh:
		logger.Error("daemon component failed", zap.Error(runErr))
		cancel()
	}
	wg.Wait()

	if !br.StopMonitoringUnit() {
		logger.Warn("monitoring unit did not stop cleanly")
	}
	logger.Info("applock daemon stopped")
	return runErr
}

// newUnitFactory builds each monitoring unit on its own X11 session.
func newUnitFactory(cfg *config.Config, names x11.NameResolver, metrics domain.MetricsRecorder, logger *zap.Logger) bridge.UnitFactory {
	return func(locked *usecase.LockedSet) (bridge.Runner, error) {
		session := x11.NewSession(cfg.Display.Name, names, logger)
		if ok, reason := session.Available(); !ok {
			return nil, fmt.Errorf("focus source unavailable: %s", reason)
		}
		deps := daemon.UnitDeps{
			Source:        session,
			WindowManager: session,
			Content:       session,
			Metrics:       metrics,
		}
		return daemon.NewUnit(cfg.UnitConfig(), locked, deps, logger), nil
	}
}
