package registry

import (
	"log/slog"
	"sort"
	"time"

	"diskpark/internal/blockdev"
	"diskpark/internal/directive"
	"diskpark/internal/diskstats"
	"diskpark/internal/idle"
	"diskpark/internal/logging"
)

// Entry binds one device's identity, immutable configuration, and runtime
// state. State belongs to the idle machine; the registry only creates and
// discards it.
type Entry struct {
	Identity blockdev.Identity
	Config   directive.DeviceConfig
	State    idle.State
}

// Resolver canonicalizes a user-supplied device path. Injected so bootstrap
// can be tested without real device nodes.
type Resolver func(path string) (blockdev.Identity, error)

// Registry is the authoritative identity → entry mapping. It is not safe for
// concurrent use; the daemon's single control loop serializes ticks and
// rescans.
type Registry struct {
	entries      map[blockdev.Identity]*Entry
	finalDefault directive.DeviceConfig
	logger       *slog.Logger
}

// New creates an empty registry. finalDefault is the configuration for
// devices discovered after startup without an explicit directive entry.
func New(finalDefault directive.DeviceConfig, logger *slog.Logger) *Registry {
	return &Registry{
		entries:      make(map[blockdev.Identity]*Entry),
		finalDefault: finalDefault,
		logger:       logging.NewComponentLogger(logger, "registry"),
	}
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Bootstrap populates the registry at startup. Every explicit directive
// entry whose device is present in discovered gets its own configuration;
// every other discovered device gets the final default. Explicitly named
// devices that are absent are logged and skipped.
func (r *Registry) Bootstrap(devices []directive.DeviceEntry, resolve Resolver, discovered map[blockdev.Identity]diskstats.Counters, now time.Time) {
	for _, d := range devices {
		id, err := resolve(d.Path)
		if err != nil {
			r.logger.Warn("skipping configured device",
				logging.String("path", d.Path),
				logging.Error(err),
			)
			continue
		}
		if existing, ok := r.entries[id]; ok {
			r.logger.Warn("device configured twice, keeping first entry",
				logging.String("path", d.Path),
				logging.String(logging.FieldDevice, string(existing.Identity)),
			)
			continue
		}
		baseline, present := discovered[id]
		if !present {
			r.logger.Warn("configured device not present, skipping",
				logging.String("path", d.Path),
				logging.String(logging.FieldDevice, string(id)),
			)
			continue
		}
		r.insert(id, d.Config, baseline, now)
	}

	for id, baseline := range discovered {
		if _, ok := r.entries[id]; ok {
			continue
		}
		r.insert(id, r.finalDefault, baseline, now)
	}
}

// Rescan reconciles membership with the currently discovered device set.
// New identities are inserted with the final default configuration; entries
// whose device vanished are removed without issuing any action. Existing
// entries are left untouched. Returns the added and removed identities.
func (r *Registry) Rescan(discovered map[blockdev.Identity]diskstats.Counters, now time.Time) (added, removed []blockdev.Identity) {
	for id := range r.entries {
		if _, ok := discovered[id]; !ok {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		delete(r.entries, id)
		r.logger.Info("device removed", logging.String(logging.FieldDevice, string(id)))
	}

	for id, baseline := range discovered {
		if _, ok := r.entries[id]; ok {
			continue
		}
		r.insert(id, r.finalDefault, baseline, now)
		added = append(added, id)
	}

	sortIdentities(added)
	sortIdentities(removed)
	return added, removed
}

// ForEach applies f to every live entry in stable identity order. The entry
// set must not change during iteration; the daemon schedules rescans only
// between ticks.
func (r *Registry) ForEach(f func(*Entry)) {
	ids := make([]blockdev.Identity, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sortIdentities(ids)
	for _, id := range ids {
		f(r.entries[id])
	}
}

func (r *Registry) insert(id blockdev.Identity, cfg directive.DeviceConfig, baseline diskstats.Counters, now time.Time) {
	r.entries[id] = &Entry{
		Identity: id,
		Config:   cfg,
		State:    idle.NewState(baseline, now),
	}
	log := r.logger.Debug
	if cfg.Verbosity >= 2 {
		log = r.logger.Info
	}
	log("device registered",
		logging.String(logging.FieldDevice, string(id)),
		logging.Duration("timeout", cfg.IdleTimeout),
		logging.Bool("sync_before", cfg.SyncBeforeSpindown),
		logging.Bool("sync_after", cfg.SyncAfterSpinup),
	)
}

func sortIdentities(ids []blockdev.Identity) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
