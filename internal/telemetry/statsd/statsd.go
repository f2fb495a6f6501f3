// Package statsd reports limiter usage counters. It hides the datadog client so
// the rest of the module only sees limiter.Recorder.
package statsd

import (
	"time"

	ddstatsd "github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"spawnlimiter.ai/internal/sim/limiter"
)

const namespace = "spawnlimiter."

// Reporter emits one set of counters per limiter outcome while enabled
// returns true. enabled is read on every call so a reload takes effect
// without rebuilding the reporter.
type Reporter struct {
	client  ddstatsd.ClientInterface
	enabled func() bool
	log     zerolog.Logger
}

// New dials address (host:port or unix:///path). An empty address yields a
// reporter backed by the no-op client.
func New(address string, tags []string, enabled func() bool, logger zerolog.Logger) (*Reporter, error) {
	if address == "" {
		return NewWithClient(&ddstatsd.NoOpClient{}, enabled, logger), nil
	}
	opts := []ddstatsd.Option{
		ddstatsd.WithNamespace(namespace),
	}
	if len(tags) > 0 {
		opts = append(opts, ddstatsd.WithTags(tags))
	}
	c, err := ddstatsd.New(address, opts...)
	if err != nil {
		return nil, eris.Wrapf(err, "statsd %s", address)
	}
	return NewWithClient(c, enabled, logger), nil
}

func NewWithClient(c ddstatsd.ClientInterface, enabled func() bool, logger zerolog.Logger) *Reporter {
	if enabled == nil {
		enabled = func() bool { return true }
	}
	return &Reporter{
		client:  c,
		enabled: enabled,
		log:     logger.With().Str("component", "statsd").Logger(),
	}
}

func (r *Reporter) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

// Record implements limiter.Recorder.
func (r *Reporter) Record(o limiter.Outcome) {
	if r == nil || !r.enabled() {
		return
	}
	tags := []string{"world:" + o.World, "trigger:" + string(o.Trigger)}
	r.count("evaluations", 1, tags)
	if o.Decision.Reject {
		r.count("rejections", 1, append(tags, "key:"+o.Decision.RejectKey))
	}
	for _, ev := range o.Decision.Evictions {
		keyTags := append(append([]string(nil), tags...), "key:"+ev.Key)
		r.count("removals", int64(ev.Removed), keyTags)
		if ev.Forced > 0 {
			r.count("forced_removals", int64(ev.Forced), keyTags)
		}
	}
}

// Timing reports how long a batch of evaluations took (one inspection pass).
func (r *Reporter) Timing(name string, start time.Time, tags []string) {
	if r == nil || !r.enabled() {
		return
	}
	if err := r.client.Timing(name, time.Since(start), tags, 1); err != nil {
		r.log.Warn().Err(err).Str("metric", name).Msg("failed to emit timing")
	}
}

func (r *Reporter) count(name string, v int64, tags []string) {
	if v == 0 {
		return
	}
	if err := r.client.Count(name, v, tags, 1); err != nil {
		r.log.Warn().Err(err).Str("metric", name).Msg("failed to emit counter")
	}
}
