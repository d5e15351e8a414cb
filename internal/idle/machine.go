package idle

import (
	"log/slog"
	"time"

	"diskpark/internal/blockdev"
	"diskpark/internal/directive"
	"diskpark/internal/diskstats"
	"diskpark/internal/logging"
)

// Phase is the monitoring state of one device.
type Phase int

const (
	// PhaseActive: the device has seen recent activity (or monitoring is
	// disabled for it).
	PhaseActive Phase = iota
	// PhaseCountingDown: no activity observed, idle timer running.
	PhaseCountingDown
	// PhaseSpunDown: the spindle stop command has been issued.
	PhaseSpunDown
)

func (p Phase) String() string {
	switch p {
	case PhaseActive:
		return "active"
	case PhaseCountingDown:
		return "counting-down"
	case PhaseSpunDown:
		return "spun-down"
	default:
		return "unknown"
	}
}

// State is the mutable runtime record for one registry entry. It is created
// by the registry at insertion and mutated only by the machine.
type State struct {
	Phase          Phase
	LastSample     diskstats.Counters
	LastActivity   time.Time
	LastTransition time.Time
}

// NewState returns the initial state for a freshly inserted device: active,
// with the idle clock starting now.
func NewState(baseline diskstats.Counters, now time.Time) State {
	return State{
		Phase:          PhaseActive,
		LastSample:     baseline,
		LastActivity:   now,
		LastTransition: now,
	}
}

// Event identifies a state-machine action worth journaling.
type Event string

const (
	EventSpinDown Event = "spin_down"
	EventSpinUp   Event = "spin_up"
)

// Machine drives transitions and issues actuator commands.
type Machine struct {
	control blockdev.Controller
	logger  *slog.Logger
	notify  func(Event, blockdev.Identity)
}

// NewMachine builds a machine. notify may be nil; it receives spin-down and
// spin-up events after their commands were issued.
func NewMachine(control blockdev.Controller, logger *slog.Logger, notify func(Event, blockdev.Identity)) *Machine {
	return &Machine{
		control: control,
		logger:  logging.NewComponentLogger(logger, "idle"),
		notify:  notify,
	}
}

// Tick advances one device by one sample.
//
// sampled=false marks a failed statistics read: the tick counts as "no
// activity" and the stored counters keep their pre-error baseline, so the
// next good sample diffs against real data. cur is ignored in that case.
func (m *Machine) Tick(id blockdev.Identity, cfg directive.DeviceConfig, st *State, cur diskstats.Counters, sampled bool, now time.Time) {
	active := false
	if sampled {
		active = diskstats.Activity(st.LastSample, cur)
		if active {
			if cfg.Verbosity >= 3 {
				m.logger.Debug("activity observed",
					logging.String(logging.FieldDevice, string(id)),
					logging.Uint64("sectors", cur.Total()-st.LastSample.Total()),
					logging.Duration("idle", now.Sub(st.LastActivity)),
				)
			}
			st.LastActivity = now
		}
		st.LastSample = cur
	}

	if cfg.IdleTimeout == 0 {
		// Monitoring disabled: the device never leaves Active.
		st.Phase = PhaseActive
		return
	}

	switch st.Phase {
	case PhaseActive:
		if !active {
			st.Phase = PhaseCountingDown
			st.LastTransition = now
		}

	case PhaseCountingDown:
		if active {
			st.Phase = PhaseActive
			st.LastTransition = now
			return
		}
		idle := now.Sub(st.LastActivity)
		if idle < cfg.IdleTimeout {
			return
		}
		if cfg.Verbosity >= 1 {
			m.logger.Info("device gone idle",
				logging.String(logging.FieldDevice, string(id)),
				logging.Duration("idle", idle),
				logging.Duration("timeout", cfg.IdleTimeout),
			)
		}
		if cfg.SyncBeforeSpindown {
			m.sync(id, cfg, "sync before spin-down")
		}
		if err := m.control.SpinDown(id); err != nil {
			// Stay counting down; the stop command is retried next tick.
			m.logger.Warn("spin-down failed",
				logging.String(logging.FieldDevice, string(id)),
				logging.Error(err),
			)
			return
		}
		st.Phase = PhaseSpunDown
		st.LastTransition = now
		if cfg.Verbosity >= 2 {
			m.logger.Info("spun down", logging.String(logging.FieldDevice, string(id)))
		}
		m.emit(EventSpinDown, id)

	case PhaseSpunDown:
		if !active {
			return
		}
		st.Phase = PhaseActive
		st.LastTransition = now
		if cfg.Verbosity >= 1 {
			m.logger.Info("device spun up",
				logging.String(logging.FieldDevice, string(id)),
			)
		}
		if cfg.SyncAfterSpinup {
			m.sync(id, cfg, "sync after spin-up")
		}
		m.emit(EventSpinUp, id)
	}
}

// sync flushes filesystems; failure is logged, never fatal.
func (m *Machine) sync(id blockdev.Identity, cfg directive.DeviceConfig, what string) {
	if cfg.Verbosity >= 2 {
		m.logger.Info(what, logging.String(logging.FieldDevice, string(id)))
	}
	if err := m.control.SyncFilesystems(id); err != nil {
		m.logger.Warn(what+" failed",
			logging.String(logging.FieldDevice, string(id)),
			logging.Error(err),
		)
	}
}

func (m *Machine) emit(event Event, id blockdev.Identity) {
	if m.notify != nil {
		m.notify(event, id)
	}
}
