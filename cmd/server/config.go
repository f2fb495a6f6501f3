package main

import (
	"github.com/JeremyLoy/config"
	"github.com/rotisserie/eris"
)

// serverConfig is resolved as defaults, then SPAWNLIMITER_* environment
// variables, then command-line flags.
type serverConfig struct {
	Addr       string `config:"SPAWNLIMITER_ADDR"`
	ConfigPath string `config:"SPAWNLIMITER_CONFIG"`
	DataDir    string `config:"SPAWNLIMITER_DATA"`
	DisableDB  bool   `config:"SPAWNLIMITER_DISABLE_DB"`
	LogFiles   bool   `config:"SPAWNLIMITER_LOG_FILES"`
	LogPretty  bool   `config:"SPAWNLIMITER_LOG_PRETTY"`
	StatsdAddr string `config:"SPAWNLIMITER_STATSD_ADDR"`
	AdminHTTP  bool   `config:"SPAWNLIMITER_ADMIN_HTTP"`

	Sim        bool   `config:"SPAWNLIMITER_SIM"`
	SimWorld   string `config:"SPAWNLIMITER_SIM_WORLD"`
	SimSeed    int64  `config:"SPAWNLIMITER_SIM_SEED"`
	SimRadius  int    `config:"SPAWNLIMITER_SIM_RADIUS"`
	SimPerTick int    `config:"SPAWNLIMITER_SIM_PER_TICK"`
	TickRateHz int    `config:"SPAWNLIMITER_TICK_RATE_HZ"`
	SimPersist bool   `config:"SPAWNLIMITER_SIM_PERSIST"`
}

func defaultServerConfig() serverConfig {
	return serverConfig{
		Addr:       ":8080",
		ConfigPath: "./configs/spawnlimiter.yaml",
		DataDir:    "./data",
		AdminHTTP:  true,
		SimWorld:   "world",
		SimSeed:    1337,
		SimRadius:  3,
		SimPerTick: 4,
		TickRateHz: 20,
		SimPersist: true,
	}
}

// loadServerConfig overlays the environment on the defaults.
func loadServerConfig() (serverConfig, error) {
	cfg := defaultServerConfig()
	if err := config.FromEnv().To(&cfg); err != nil {
		return cfg, eris.Wrap(err, "environment config")
	}
	return cfg, nil
}

func (c serverConfig) validate() error {
	if c.Addr == "" {
		return eris.New("empty listen address")
	}
	if c.Sim && (c.SimRadius < 0 || c.SimPerTick <= 0 || c.TickRateHz <= 0) {
		return eris.Errorf("bad sim settings: radius=%d per_tick=%d tick_rate_hz=%d", c.SimRadius, c.SimPerTick, c.TickRateHz)
	}
	return nil
}
