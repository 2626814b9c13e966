package heartbeat

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/cuemby/kiosksync/pkg/events"
	"github.com/cuemby/kiosksync/pkg/log"
	"github.com/cuemby/kiosksync/pkg/metrics"
	"github.com/cuemby/kiosksync/pkg/scheduler"
	"github.com/cuemby/kiosksync/pkg/storage"
	"github.com/cuemby/kiosksync/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultInterval is the time between /control polls
const DefaultInterval = 15 * time.Minute

// ControlFetcher fetches the /control heartbeat
type ControlFetcher interface {
	FetchControl(ctx context.Context) (*types.ControlResponse, error)
}

// Relauncher replaces the running process with a fresh one
type Relauncher interface {
	Relaunch(restart types.UnixTime) error
}

// Action is what a tick decided
type Action string

const (
	// ActionNone: the server's restart timestamp is not newer than the marker
	ActionNone Action = "none"

	// ActionRestart: the marker was advanced and the relauncher signalled
	ActionRestart Action = "restart"

	// ActionIgnored: the server answered with a non-success result
	ActionIgnored Action = "ignored"

	// ActionError: the fetch, marker write or relaunch failed
	ActionError Action = "error"
)

// Decision is the result of one tick
type Decision struct {
	Action  Action
	Restart types.UnixTime
	Marker  types.UnixTime
	Err     error
}

// Config holds monitor configuration
type Config struct {
	// Interval between ticks (default 15m)
	Interval time.Duration

	// Baseline stands in for an absent marker (default: time of NewMonitor)
	Baseline types.UnixTime

	// Scheduler drives Run (default: real timers)
	Scheduler *scheduler.Scheduler

	// Events receives restart.requested (optional)
	Events events.Publisher
}

// Monitor polls /control and relaunches the process when the server asks
// for a restart newer than the last one acted on
type Monitor struct {
	fetcher    ControlFetcher
	markers    storage.MarkerStore
	relauncher Relauncher
	interval   time.Duration
	baseline   types.UnixTime
	scheduler  *scheduler.Scheduler
	events     events.Publisher
	logger     zerolog.Logger
}

// NewMonitor creates a new restart monitor
func NewMonitor(fetcher ControlFetcher, markers storage.MarkerStore, relauncher Relauncher, cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Baseline == 0 {
		cfg.Baseline = types.Now()
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = scheduler.New(nil)
	}

	return &Monitor{
		fetcher:    fetcher,
		markers:    markers,
		relauncher: relauncher,
		interval:   cfg.Interval,
		baseline:   cfg.Baseline,
		scheduler:  cfg.Scheduler,
		events:     cfg.Events,
		logger:     log.WithComponent("heartbeat"),
	}
}

// Run ticks immediately and then every interval until ctx is done or a
// restart has been signalled
func (m *Monitor) Run(ctx context.Context) {
	metrics.RegisterComponent(metrics.ComponentHeartbeat, true, "starting")
	m.logger.Info().Dur("interval", m.interval).Msg("Restart monitor started")

	m.scheduler.Every(ctx, m.interval, func(ctx context.Context) bool {
		return m.Tick(ctx).Action != ActionRestart
	})

	m.logger.Info().Msg("Restart monitor stopped")
}

// Tick runs one evaluation. Failures are logged and reported in the
// decision; they never stop the monitor.
func (m *Monitor) Tick(ctx context.Context) Decision {
	resp, err := m.fetcher.FetchControl(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Heartbeat fetch failed")
		return m.decide(Decision{Action: ActionError, Err: err})
	}
	if !resp.Succeeded() {
		m.logger.Warn().Str("result", resp.Result).Msg("Heartbeat returned non-success result")
		return m.decide(Decision{Action: ActionIgnored})
	}

	restart := resp.Control.Restart
	marker := m.currentMarker()
	decision := Decision{Restart: restart, Marker: marker}

	if restart <= marker {
		m.logger.Debug().
			Int64("restart", int64(restart)).
			Int64("marker", int64(marker)).
			Msg("No restart requested")
		decision.Action = ActionNone
		return m.decide(decision)
	}

	// The marker must be durable before the relaunch or the new process
	// would see the same request and restart again.
	if err := m.markers.Save(restart); err != nil {
		m.logger.Error().Err(err).Msg("Failed to save restart marker, not relaunching")
		decision.Action = ActionError
		decision.Err = err
		return m.decide(decision)
	}

	m.logger.Info().
		Int64("restart", int64(restart)).
		Int64("marker", int64(marker)).
		Msg("Server requested restart")
	if m.events != nil {
		m.events.Publish(events.New(events.EventRestartRequested, "server requested restart",
			"restart", strconv.FormatInt(int64(restart), 10),
			"marker", strconv.FormatInt(int64(marker), 10)))
	}

	if err := m.relauncher.Relaunch(restart); err != nil {
		m.logger.Error().Err(err).Msg("Relaunch failed")
		// roll the marker back so the next tick asks again
		if rerr := m.markers.Save(marker); rerr != nil {
			m.logger.Error().Err(rerr).Msg("Failed to restore restart marker")
		}
		decision.Action = ActionError
		decision.Err = err
		return m.decide(decision)
	}

	metrics.RestartsTotal.Inc()
	decision.Action = ActionRestart
	return m.decide(decision)
}

// currentMarker reads the persisted marker, falling back to the startup
// baseline when it is absent or unreadable
func (m *Monitor) currentMarker() types.UnixTime {
	marker, err := m.markers.Load()
	if err == nil {
		return marker
	}
	if !errors.Is(err, storage.ErrNotFound) {
		m.logger.Warn().Err(err).Msg("Restart marker unreadable, using startup time")
	}
	return m.baseline
}

func (m *Monitor) decide(d Decision) Decision {
	metrics.HeartbeatTicksTotal.WithLabelValues(string(d.Action)).Inc()

	switch d.Action {
	case ActionError:
		metrics.MarkDegraded(metrics.ComponentHeartbeat, d.Err.Error())
	case ActionIgnored:
		metrics.MarkDegraded(metrics.ComponentHeartbeat, "control result not success")
	default:
		metrics.UpdateComponent(metrics.ComponentHeartbeat, true, "")
	}
	return d
}
