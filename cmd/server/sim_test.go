package main

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spawnlimiter.ai/internal/persistence/snapshot"
	"spawnlimiter.ai/internal/sim/limiter"
	"spawnlimiter.ai/internal/sim/tuning"
	"spawnlimiter.ai/internal/sim/world"
)

type nopTimer struct{}

func (nopTimer) Timing(string, time.Time, []string) {}

func runSimFor(t *testing.T, cfg serverConfig, store *tuning.Store, d time.Duration) *world.World {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	w := startSim(ctx, cfg, store, limiter.Recorders{}, nopTimer{}, zerolog.Nop(), done)
	time.Sleep(d)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("demo world did not shut down")
	}
	return w
}

func TestStartSim_SavesAndRestores(t *testing.T) {
	cfg := defaultServerConfig()
	cfg.DataDir = t.TempDir()
	cfg.SimRadius = 1
	cfg.TickRateHz = 50
	store := tuning.NewStore("", tuning.Defaults(), nil)

	first := runSimFor(t, cfg, store, 200*time.Millisecond)
	path := snapshot.Path(cfg.DataDir, cfg.SimWorld)
	_, err := os.Stat(path)
	require.NoError(t, err, "snapshot written on shutdown")

	saved, err := snapshot.ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, first.CurrentTick(), saved.Header.Tick)

	second := runSimFor(t, cfg, store, 0)
	assert.GreaterOrEqual(t, second.CurrentTick(), saved.Header.Tick, "tick resumes from the snapshot")
}

func TestStartSim_NoPersist(t *testing.T) {
	cfg := defaultServerConfig()
	cfg.DataDir = t.TempDir()
	cfg.SimRadius = 0
	cfg.SimPersist = false
	store := tuning.NewStore("", tuning.Defaults(), nil)

	runSimFor(t, cfg, store, 50*time.Millisecond)
	_, err := os.Stat(snapshot.Path(cfg.DataDir, cfg.SimWorld))
	assert.True(t, os.IsNotExist(err))
}
