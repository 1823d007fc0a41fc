// Command governord is the governance engine's long-running service:
// it wires config, store, identity, ledger, trust, sentinel, mode, and
// dispatch into one process, runs the periodic sweep, and serves the
// debug HTTP surface until a termination signal arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MythologIQ/QoreLogic-sub000/internal/calibration"
	"github.com/MythologIQ/QoreLogic-sub000/internal/config"
	"github.com/MythologIQ/QoreLogic-sub000/internal/deferral"
	"github.com/MythologIQ/QoreLogic-sub000/internal/dispatch"
	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/internal/httpapi"
	"github.com/MythologIQ/QoreLogic-sub000/internal/identity"
	"github.com/MythologIQ/QoreLogic-sub000/internal/ledger"
	"github.com/MythologIQ/QoreLogic-sub000/internal/mode"
	"github.com/MythologIQ/QoreLogic-sub000/internal/quarantine"
	"github.com/MythologIQ/QoreLogic-sub000/internal/sentinel"
	"github.com/MythologIQ/QoreLogic-sub000/internal/store"
	"github.com/MythologIQ/QoreLogic-sub000/internal/store/memory"
	"github.com/MythologIQ/QoreLogic-sub000/internal/store/postgres"
	"github.com/MythologIQ/QoreLogic-sub000/internal/sweep"
	"github.com/MythologIQ/QoreLogic-sub000/internal/trust"
	"github.com/MythologIQ/QoreLogic-sub000/internal/ttl"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to a governance.yaml config file")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides config/env; in-memory storage when empty)")
	listenAddr := flag.String("addr", "", "debug HTTP listen address (overrides config)")
	flag.Parse()

	if *configPath != "" {
		_ = os.Setenv("GOVERNANCE_CONFIG_FILE", *configPath)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *dsn != "" {
		cfg.Store.Path = *dsn
	}
	addr := cfg.Server.ListenAddr
	if *listenAddr != "" {
		addr = *listenAddr
	}

	log_ := logger.New("governord", cfg.Logging.Level, cfg.Logging.Format)

	rootCtx := context.Background()

	st, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer closeStore()

	idm := identity.NewManager(st, log_)
	lg := ledger.New(st, idm, log_)
	if err := lg.WriteGenesis(rootCtx); err != nil {
		log.Fatalf("write genesis entry: %v", err)
	}

	trustE := trust.New(st, log_)

	thresholds := mode.Thresholds{
		CPUHighWatermark: cfg.Mode.CPUHighWatermark, CPULowWatermark: cfg.Mode.CPULowWatermark,
		QueueSoft: cfg.Mode.QueueSoft, QueueHard: cfg.Mode.QueueHard, QueueCapacity: cfg.Mode.QueueCapacity,
	}
	modeC, err := mode.New(rootCtx, st, log_, thresholds)
	if err != nil {
		log.Fatalf("init mode controller: %v", err)
	}
	if cfg.Mode.Override != "" {
		if _, err := modeC.SetMode(rootCtx, domain.Mode(cfg.Mode.Override), "config_override"); err != nil {
			log.Fatalf("apply mode override: %v", err)
		}
	}
	queue := mode.NewQueue(thresholds)
	sampler := mode.NewSampler(modeC, 30*time.Second, log_)
	go sampler.Run(rootCtx)

	var tier3 *sentinel.Tier3Backend
	if cfg.Sentinel.Tier3Backend != "" {
		tier3 = sentinel.NewTier3Backend(cfg.Sentinel.Tier3Backend, cfg.Sentinel.Tier3Depth, 5*time.Second)
	}

	quar := quarantine.New(st)
	defr := deferral.New(st)
	ttlM := ttl.New(st)
	calib := calibration.New(st)

	d := dispatch.New(st, idm, lg, trustE, modeC, queue, quar, defr, ttlM, calib, log_, tier3)

	sweepSvc := sweep.New(st, trustE, lg, log_)
	if err := sweepSvc.Start(rootCtx, cfg.Sweep.Schedule); err != nil {
		log.Fatalf("start sweep service: %v", err)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", addr, cfg.Server.ListenPort),
		Handler: httpapi.NewHandler(modeC, queue),
	}
	go func() {
		log_.Infof("governord listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	_ = d // the dispatcher is exercised by embedding code or governctl, not by governord's HTTP surface directly

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sweepSvc.Stop(shutdownCtx); err != nil {
		log_.WithError(err).Warn("sweep shutdown")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log_.WithError(err).Warn("http server shutdown")
	}
}

// openStore opens the configured store backend: memory for "memory" or
// an empty path, postgres otherwise (migrating on start if configured).
func openStore(cfg *config.Config) (store.Store, func(), error) {
	path := strings.TrimSpace(cfg.Store.Path)
	if path == "" || path == "memory" {
		return memory.New(), func() {}, nil
	}

	if cfg.Store.MigrateOnStart {
		if err := postgres.Migrate(path); err != nil {
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	st, err := postgres.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres store: %w", err)
	}
	return st, func() { _ = st.Close() }, nil
}
