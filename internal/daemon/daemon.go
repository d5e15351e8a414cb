package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"

	"diskpark/internal/blockdev"
	"diskpark/internal/config"
	"diskpark/internal/directive"
	"diskpark/internal/diskstats"
	"diskpark/internal/history"
	"diskpark/internal/idle"
	"diskpark/internal/logging"
	"diskpark/internal/registry"
)

// ErrNothingMonitored reports a directive in which no device can ever spin
// down. The daemon declines to run; this is not a failure.
var ErrNothingMonitored = errors.New("no device configured with an idle time > 0")

// Sampler yields one counters-by-identity snapshot per call. Satisfied by
// diskstats.Sampler; tests substitute fakes.
type Sampler interface {
	Snapshot() (map[blockdev.Identity]diskstats.Counters, error)
}

// Daemon owns the control loop and its collaborators.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	resolution *directive.Resolution

	sampler  Sampler
	resolver registry.Resolver
	registry *registry.Registry
	machine  *idle.Machine
	journal  *history.Store

	lock         *flock.Flock
	tickInterval time.Duration
	monitor      *udevMonitor
}

// New resolves the directive and wires the daemon's collaborators. A
// directive parse failure is fatal (directive.ErrParse); a directive that
// monitors nothing returns ErrNothingMonitored.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}

	res, err := directive.Resolve(cfg.Devices)
	if err != nil {
		return nil, err
	}
	if !res.Monitored() {
		return nil, ErrNothingMonitored
	}

	var journal *history.Store
	if cfg.History.Enabled {
		journal, err = history.Open(cfg.History.Path)
		if err != nil {
			return nil, err
		}
	}

	d := &Daemon{
		cfg:          cfg,
		logger:       logging.NewComponentLogger(logger, "daemon"),
		resolution:   res,
		sampler:      diskstats.NewSampler(),
		resolver:     blockdev.Resolve,
		registry:     registry.New(res.Default, logger),
		journal:      journal,
		lock:         flock.New(cfg.LockPath),
		tickInterval: tickInterval(cfg.TickInterval(), res.MinIdleTimeout()),
	}
	d.machine = idle.NewMachine(blockdev.NewSGController(), logger, d.recordSpinEvent)
	d.monitor = newUdevMonitor(logger)
	return d, nil
}

// tickInterval picks the sampling period: the configured value, or one tenth
// of the smallest idle timeout clamped to at least a second.
func tickInterval(configured, minIdle time.Duration) time.Duration {
	if configured > 0 {
		return configured
	}
	derived := minIdle / 10
	if derived < time.Second {
		derived = time.Second
	}
	return derived
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	return d.journal.Close()
}

// Run acquires the instance lock, bootstraps the registry, and drives the
// control loop until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", d.cfg.LockPath, err)
	}
	if !ok {
		return fmt.Errorf("another diskpark daemon holds %s", d.cfg.LockPath)
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("release daemon lock", logging.Error(err))
		}
	}()

	snapshot, err := d.sampler.Snapshot()
	if err != nil {
		return fmt.Errorf("initial device scan: %w", err)
	}
	d.registry.Bootstrap(d.resolution.Devices, d.resolver, snapshot, time.Now())

	events := d.monitor.Start(ctx)
	defer d.monitor.Stop()

	if d.journal != nil {
		d.logger.Info("history journal enabled",
			logging.String(logging.FieldSession, d.journal.Session()),
			logging.String("path", d.cfg.History.Path),
		)
	}
	d.logger.Info("daemon started",
		logging.Int("devices", d.registry.Len()),
		logging.Duration("tick", d.tickInterval),
		logging.Duration("rescan", d.cfg.RescanInterval()),
		logging.String("lock", d.cfg.LockPath),
	)

	tick := time.NewTicker(d.tickInterval)
	defer tick.Stop()
	rescan := time.NewTicker(d.cfg.RescanInterval())
	defer rescan.Stop()

	for {
		// One goroutine serializes everything: a rescan can only happen
		// between ticks, so ForEach never sees a half-changed entry set.
		select {
		case <-ctx.Done():
			d.logger.Info("daemon shutting down")
			return nil
		case <-tick.C:
			d.tickOnce(time.Now())
		case <-rescan.C:
			d.rescanOnce(time.Now())
		case <-events:
			d.rescanOnce(time.Now())
		}
	}
}

// tickOnce samples all devices and advances their state machines. A failed
// statistics read downgrades the whole tick to "no activity observed".
func (d *Daemon) tickOnce(now time.Time) {
	snapshot, err := d.sampler.Snapshot()
	if err != nil {
		d.logger.Warn("statistics read failed, treating tick as idle", logging.Error(err))
		snapshot = nil
	}
	d.registry.ForEach(func(e *registry.Entry) {
		counters, sampled := snapshot[e.Identity]
		d.machine.Tick(e.Identity, e.Config, &e.State, counters, sampled, now)
	})
}

// rescanOnce reconciles registry membership with the discovered device set.
func (d *Daemon) rescanOnce(now time.Time) {
	snapshot, err := d.sampler.Snapshot()
	if err != nil {
		d.logger.Warn("rescan skipped, statistics read failed", logging.Error(err))
		return
	}
	added, removed := d.registry.Rescan(snapshot, now)
	for _, id := range added {
		d.logger.Info("new device detected", logging.String(logging.FieldDevice, string(id)))
		d.recordEvent(id, history.KindDeviceAdded)
	}
	for _, id := range removed {
		d.recordEvent(id, history.KindDeviceRemoved)
	}
}

func (d *Daemon) recordSpinEvent(event idle.Event, id blockdev.Identity) {
	d.recordEvent(id, string(event))
}

func (d *Daemon) recordEvent(id blockdev.Identity, kind string) {
	if d.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.journal.Append(ctx, string(id), kind); err != nil {
		d.logger.Warn("journal append failed",
			logging.String(logging.FieldDevice, string(id)),
			logging.String("kind", kind),
			logging.Error(err),
		)
	}
}
