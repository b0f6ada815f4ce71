package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/defistate/staking-engine-go/assets"
	"github.com/defistate/staking-engine-go/cmd/engined/config"
	"github.com/defistate/staking-engine-go/snapshot"
	"github.com/defistate/staking-engine-go/staking"
	"github.com/defistate/staking-engine-go/ticksource"
)

func main() {
	// create the log handler
	rootLogHandler := slog.NewJSONHandler(os.Stdout, nil)
	close := func() {
		os.Exit(1)
	}

	rootLogger := slog.New(rootLogHandler)
	prometheusRegistry := prometheus.DefaultRegisterer
	cfg, err := loadConfig()
	if err != nil {
		rootLogger.Error("Failed to load configuration", "error", err)
		close()
	}

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticks, err := newTickSource(ctx, cfg, rootLogger)
	if err != nil {
		rootLogger.Error("Failed to initialize tick source", "error", err)
		close()
	}

	ledger := assets.NewLedger(cfg.CustodianAddress())
	system, err := staking.NewStakingSystem(staking.Config{
		Custodian: cfg.CustodianAddress(),
		Ticks:     ticks,
		Assets:    ledger,
		Native:    ledger,
		Logger:    rootLogger.With("component", "staking-system"),
		Registry:  prometheusRegistry,
	})
	if err != nil {
		rootLogger.Error("Failed to initialize staking system", "error", err)
		close()
	}

	if cfg.SnapshotPath != "" {
		if err := restoreSnapshot(system, cfg, rootLogger); err != nil {
			rootLogger.Error("Failed to restore snapshot", "path", cfg.SnapshotPath, "error", err)
			close()
		}
	}

	metricsServer := serveMetrics(cfg.MetricsListenAddr, rootLogger)

	settleTicker := time.NewTicker(cfg.SettleInterval())
	defer settleTicker.Stop()
	snapshotTicker := time.NewTicker(cfg.SnapshotInterval())
	defer snapshotTicker.Stop()

	rootLogger.Info("engined running",
		"custodian", cfg.Custodian,
		"settleInterval", cfg.SettleInterval().String(),
		"snapshotInterval", cfg.SnapshotInterval().String())

	for {
		select {
		case <-settleTicker.C:
			if err := system.SettleAll(); err != nil {
				rootLogger.Error("Settlement sweep failed", "error", err)
			}
		case <-snapshotTicker.C:
			persistSnapshot(system, ticks, cfg, rootLogger)
		case <-ctx.Done():
			rootLogger.Info("Shutting down")
			persistSnapshot(system, ticks, cfg, rootLogger)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				rootLogger.Error("Metrics server shutdown failed", "error", err)
			}
			return
		}
	}
}

// newTickSource picks the chain head counter when an RPC URL is configured,
// otherwise a manual source starting at the configured tick.
func newTickSource(ctx context.Context, cfg *config.EngineConfig, logger *slog.Logger) (ticksource.Source, error) {
	if cfg.ChainRPCURL == "" {
		logger.Info("No chain RPC configured, using manual tick source", "startTick", cfg.StartTick)
		return ticksource.NewManual(cfg.StartTick), nil
	}
	return ticksource.DialChain(ctx, ticksource.ChainConfig{
		URL:    cfg.ChainRPCURL,
		Logger: logger.With("component", "ticksource"),
	})
}

// restoreSnapshot loads the persisted state if present. A missing file is a
// fresh start, not an error. Migrated snapshots are applied as the configured
// operator, which the restored state must recognize as an upgrade authority.
func restoreSnapshot(system *staking.StakingSystem, cfg *config.EngineConfig, logger *slog.Logger) error {
	view, tick, migrated, err := snapshot.Load(cfg.SnapshotPath, snapshot.NewMigrator())
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("No snapshot found, starting fresh", "path", cfg.SnapshotPath)
		return nil
	}
	if err != nil {
		return err
	}
	if err := system.RestoreFromView(cfg.OperatorAddress(), view, migrated); err != nil {
		return err
	}
	logger.Info("Snapshot restored", "path", cfg.SnapshotPath, "tick", tick, "migrated", migrated)
	return nil
}

func persistSnapshot(system *staking.StakingSystem, ticks ticksource.Source, cfg *config.EngineConfig, logger *slog.Logger) {
	if cfg.SnapshotPath == "" {
		return
	}
	tick := ticks.Latest()
	if err := snapshot.Save(cfg.SnapshotPath, system.View(), tick); err != nil {
		logger.Error("Failed to persist snapshot", "path", cfg.SnapshotPath, "error", err)
		return
	}
	logger.Debug("Snapshot persisted", "path", cfg.SnapshotPath, "tick", tick)
}

func serveMetrics(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Info("Serving metrics", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()
	return server
}

func loadConfig() (*config.EngineConfig, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.LoadConfig(*configPath)
}
