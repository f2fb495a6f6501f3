package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"spawnlimiter.ai/internal/persistence/indexdb"
	"spawnlimiter.ai/internal/persistence/snapshot"
	"spawnlimiter.ai/internal/sim/limiter"
	"spawnlimiter.ai/internal/sim/tuning"
	"spawnlimiter.ai/internal/sim/world"
	"spawnlimiter.ai/internal/telemetry/statsd"
	"spawnlimiter.ai/internal/transport/ws"
)

func main() {
	cfg, err := loadServerConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, eris.ToString(err, false))
		os.Exit(2)
	}
	if err := newRootCmd(&cfg).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg *serverConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "spawnlimiter-server",
		Short:         "Per-chunk creature limits for connected game hosts",
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return run(cmd.Context(), *cfg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.Addr, "addr", cfg.Addr, "http listen address")
	f.StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "path to spawnlimiter.yaml")
	f.StringVar(&cfg.DataDir, "data", cfg.DataDir, "runtime data directory")
	f.BoolVar(&cfg.DisableDB, "disable_db", cfg.DisableDB, "disable the usage index")
	f.BoolVar(&cfg.LogFiles, "log_files", cfg.LogFiles, "also write logs to <data>/logs as hourly jsonl.zst")
	f.BoolVar(&cfg.LogPretty, "log_pretty", cfg.LogPretty, "human readable console logs")
	f.StringVar(&cfg.StatsdAddr, "statsd", cfg.StatsdAddr, "statsd address (empty disables metrics)")
	f.BoolVar(&cfg.AdminHTTP, "admin_http", cfg.AdminHTTP, "serve /admin/v1 endpoints to loopback clients")
	f.BoolVar(&cfg.Sim, "sim", cfg.Sim, "run an in-process demo world")
	f.StringVar(&cfg.SimWorld, "sim_world", cfg.SimWorld, "demo world name")
	f.Int64Var(&cfg.SimSeed, "sim_seed", cfg.SimSeed, "demo world seed")
	f.IntVar(&cfg.SimRadius, "sim_radius", cfg.SimRadius, "demo world radius in chunks")
	f.IntVar(&cfg.SimPerTick, "sim_per_tick", cfg.SimPerTick, "demo spawn attempts per tick")
	f.IntVar(&cfg.TickRateHz, "tick_rate_hz", cfg.TickRateHz, "demo world tick rate")
	f.BoolVar(&cfg.SimPersist, "sim_persist", cfg.SimPersist, "restore the demo world from <data>/snapshots and save it on shutdown")
	return cmd
}

func run(parent context.Context, cfg serverConfig) error {
	if parent == nil {
		parent = context.Background()
	}
	logger, logCloser := newLogger(cfg)
	defer logCloser.Close()

	store, err := tuning.Open(cfg.ConfigPath)
	if err != nil {
		logger.Error().Err(err).Str("config", cfg.ConfigPath).Msg("load configuration")
		return err
	}
	snap := store.Current()
	applyLogLevel(snap)
	logWarnings(logger, snap)
	store.OnSwap(func(prev, next *tuning.Snapshot) { applyLogLevel(next) })

	var idx *indexdb.SQLiteIndex
	if !cfg.DisableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(cfg.DataDir, "index", "usage.sqlite"), logger)
		if err != nil {
			return err
		}
		defer idx.Close()
		idx.RecordConfig(snap)
		store.OnSwap(func(prev, next *tuning.Snapshot) { idx.RecordConfig(next) })
	}

	rep, err := statsd.New(cfg.StatsdAddr, nil, func() bool {
		return store.Current().Tuning.Properties.UseMetrics
	}, logger)
	if err != nil {
		return err
	}
	defer rep.Close()

	recorders := limiter.Recorders{idx, rep}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bridge := ws.NewServer(store, recorders, logger)
	go func() {
		if err := bridge.RunInspections(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("inspection scheduler stopped")
		}
	}()

	var w *world.World
	simDone := make(chan struct{})
	if cfg.Sim {
		w = startSim(ctx, cfg, store, recorders, rep, logger, simDone)
	} else {
		close(simDone)
	}

	admin := &adminAPI{store: store, bridge: bridge, world: w, idx: idx, log: logger.With().Str("component", "admin").Logger()}
	go watchReloadSignal(ctx, admin)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	if cfg.AdminHTTP {
		admin.register(mux)
	} else {
		logger.Info().Msg("admin endpoints disabled")
	}
	mux.HandleFunc("/v1/ws", bridge.Handler())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Info().
		Str("addr", cfg.Addr).
		Uint64("config_version", snap.Version).
		Bool("listeners", snap.Tuning.ListenersEnabled()).
		Msg("listening")
	serveErr := srv.ListenAndServe()
	if errors.Is(serveErr, http.ErrServerClosed) {
		serveErr = nil
	}
	cancel()

	// Hijacked websocket connections outlive srv.Shutdown; the deferred
	// index close must come after their last Record.
	ctx3, cancel3 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel3()
	if err := bridge.Shutdown(ctx3); err != nil {
		logger.Warn().Err(err).Msg("host sessions did not finish")
	}
	<-simDone
	return eris.Wrap(serveErr, "listen")
}

// watchReloadSignal reloads the configuration on SIGHUP.
func watchReloadSignal(ctx context.Context, admin *adminAPI) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	defer signal.Stop(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			_, _ = admin.reload()
		}
	}
}

// startSim runs the demo world until ctx ends, then saves it and closes done.
func startSim(ctx context.Context, cfg serverConfig, store *tuning.Store, rec limiter.Recorder, timer world.Timer, logger zerolog.Logger, done chan<- struct{}) *world.World {
	w := world.New(world.WorldConfig{ID: cfg.SimWorld, TickRateHz: cfg.TickRateHz}, store, logger)
	w.SetRecorder(rec)
	w.SetTimer(timer)

	pop := world.NewPopulator(cfg.SimSeed, cfg.SimRadius, cfg.SimPerTick)
	snapPath := snapshot.Path(cfg.DataDir, cfg.SimWorld)
	if !cfg.SimPersist || !restoreSim(w, snapPath, logger) {
		pop.Seed(w)
	}

	go func() {
		defer close(done)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("world stopped")
		}
		w.Stop()
		if !cfg.SimPersist {
			return
		}
		if err := snapshot.WriteSnapshot(snapPath, w.ExportSnapshot()); err != nil {
			logger.Error().Err(err).Str("path", snapPath).Msg("save world snapshot")
			return
		}
		logger.Info().Str("path", snapPath).Uint64("tick", w.CurrentTick()).Msg("world snapshot saved")
	}()
	go func() {
		t := time.NewTicker(time.Second / time.Duration(cfg.TickRateHz))
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				w.Post(func(w *world.World) { pop.Tick(w) })
			}
		}
	}()
	logger.Info().Str("world", cfg.SimWorld).Int("radius", cfg.SimRadius).Msg("demo world running")
	return w
}

// restoreSim loads a saved world. It reports false when there is nothing
// usable to load.
func restoreSim(w *world.World, path string, logger zerolog.Logger) bool {
	snap, err := snapshot.ReadSnapshot(path)
	if os.IsNotExist(err) {
		return false
	}
	if err == nil {
		err = w.RestoreSnapshot(snap)
	}
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("ignoring world snapshot")
		return false
	}
	return true
}
