package main

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	persistlog "spawnlimiter.ai/internal/persistence/log"
	"spawnlimiter.ai/internal/sim/tuning"
)

// newLogger writes to stdout and, when enabled, to hourly zstd files under
// the data directory. The returned closer flushes the file sink.
func newLogger(cfg serverConfig) (zerolog.Logger, io.Closer) {
	var console io.Writer = os.Stdout
	if cfg.LogPretty {
		console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	if !cfg.LogFiles {
		return zerolog.New(console).With().Timestamp().Logger(), nopCloser{}
	}
	sink := persistlog.NewLogSink(cfg.DataDir)
	w := zerolog.MultiLevelWriter(console, sink)
	return zerolog.New(w).With().Timestamp().Logger(), sink
}

// applyLogLevel follows debug_messages.
func applyLogLevel(snap *tuning.Snapshot) {
	if snap.Tuning.Properties.DebugMessages {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func logWarnings(logger zerolog.Logger, snap *tuning.Snapshot) {
	for _, w := range snap.Warnings {
		logger.Warn().Str("config", snap.Path).Msg(w)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
