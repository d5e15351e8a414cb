package registry_test

import (
	"fmt"
	"testing"
	"time"

	"diskpark/internal/blockdev"
	"diskpark/internal/directive"
	"diskpark/internal/diskstats"
	"diskpark/internal/idle"
	"diskpark/internal/logging"
	"diskpark/internal/registry"
)

// fakeResolve canonicalizes /dev/sdXN to /dev/sdX without touching real
// device nodes.
func fakeResolve(path string) (blockdev.Identity, error) {
	if len(path) < 6 || path[:5] != "/dev/" {
		return "", fmt.Errorf("%w: %s", blockdev.ErrNotFound, path)
	}
	return blockdev.Identity("/dev/" + blockdev.ParentDisk(path[5:])), nil
}

func discovered(ids ...blockdev.Identity) map[blockdev.Identity]diskstats.Counters {
	m := make(map[blockdev.Identity]diskstats.Counters, len(ids))
	for i, id := range ids {
		m[id] = diskstats.Counters{SectorsRead: uint64(1000 * (i + 1))}
	}
	return m
}

func collect(r *registry.Registry) map[blockdev.Identity]*registry.Entry {
	out := make(map[blockdev.Identity]*registry.Entry)
	r.ForEach(func(e *registry.Entry) { out[e.Identity] = e })
	return out
}

func TestBootstrapAssignsExplicitAndDefaultConfigs(t *testing.T) {
	now := time.Now()
	def := directive.DeviceConfig{IdleTimeout: 600 * time.Second}
	r := registry.New(def, logging.NewNop())

	explicit := []directive.DeviceEntry{
		{Path: "/dev/sda1", Config: directive.DeviceConfig{IdleTimeout: 120 * time.Second}},
	}
	r.Bootstrap(explicit, fakeResolve, discovered("/dev/sda", "/dev/sdb"), now)

	entries := collect(r)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if got := entries["/dev/sda"].Config.IdleTimeout; got != 120*time.Second {
		t.Fatalf("sda timeout = %s, want explicit 120s", got)
	}
	if got := entries["/dev/sdb"].Config.IdleTimeout; got != 600*time.Second {
		t.Fatalf("sdb timeout = %s, want default 600s", got)
	}
	for _, e := range entries {
		if e.State.Phase != idle.PhaseActive {
			t.Fatalf("%s initial phase = %s, want active", e.Identity, e.State.Phase)
		}
	}
}

func TestBootstrapSkipsAbsentAndUnresolvableDevices(t *testing.T) {
	r := registry.New(directive.DeviceConfig{}, logging.NewNop())
	explicit := []directive.DeviceEntry{
		{Path: "/dev/sdq", Config: directive.DeviceConfig{IdleTimeout: time.Second}},
		{Path: "bogus", Config: directive.DeviceConfig{IdleTimeout: time.Second}},
	}
	r.Bootstrap(explicit, fakeResolve, discovered("/dev/sda"), time.Now())

	if r.Len() != 1 {
		t.Fatalf("entries = %d, want only the discovered device", r.Len())
	}
}

func TestBootstrapSeedsCounterBaseline(t *testing.T) {
	r := registry.New(directive.DeviceConfig{}, logging.NewNop())
	snap := discovered("/dev/sda")
	r.Bootstrap(nil, fakeResolve, snap, time.Now())

	e := collect(r)["/dev/sda"]
	if e.State.LastSample != snap["/dev/sda"] {
		t.Fatalf("baseline = %+v, want %+v", e.State.LastSample, snap["/dev/sda"])
	}
}

func TestRescanAddsAndRemoves(t *testing.T) {
	now := time.Now()
	def := directive.DeviceConfig{IdleTimeout: 300 * time.Second}
	r := registry.New(def, logging.NewNop())
	r.Bootstrap(nil, fakeResolve, discovered("/dev/sda", "/dev/sdb"), now)

	added, removed := r.Rescan(discovered("/dev/sdb", "/dev/sdc"), now.Add(time.Minute))
	if len(added) != 1 || added[0] != "/dev/sdc" {
		t.Fatalf("added = %v, want [/dev/sdc]", added)
	}
	if len(removed) != 1 || removed[0] != "/dev/sda" {
		t.Fatalf("removed = %v, want [/dev/sda]", removed)
	}

	entries := collect(r)
	if _, ok := entries["/dev/sda"]; ok {
		t.Fatal("sda should be gone after rescan")
	}
	if got := entries["/dev/sdc"].Config; got != def {
		t.Fatalf("sdc config = %+v, want final default", got)
	}
}

func TestRescanNeverTouchesExistingEntries(t *testing.T) {
	now := time.Now()
	r := registry.New(directive.DeviceConfig{IdleTimeout: 300 * time.Second}, logging.NewNop())
	explicit := []directive.DeviceEntry{
		{Path: "/dev/sda", Config: directive.DeviceConfig{IdleTimeout: 42 * time.Second}},
	}
	r.Bootstrap(explicit, fakeResolve, discovered("/dev/sda"), now)

	// Mutate state the way the idle machine would between rescans.
	collect(r)["/dev/sda"].State.Phase = idle.PhaseCountingDown

	added, removed := r.Rescan(discovered("/dev/sda", "/dev/sdb"), now.Add(time.Minute))
	if len(added) != 1 || len(removed) != 0 {
		t.Fatalf("added=%v removed=%v", added, removed)
	}

	e := collect(r)["/dev/sda"]
	if e.Config.IdleTimeout != 42*time.Second {
		t.Fatalf("rescan changed configuration: %+v", e.Config)
	}
	if e.State.Phase != idle.PhaseCountingDown {
		t.Fatalf("rescan changed state: %s", e.State.Phase)
	}
}

func TestPartitionAliasesCollapseToOneEntry(t *testing.T) {
	r := registry.New(directive.DeviceConfig{}, logging.NewNop())
	explicit := []directive.DeviceEntry{
		{Path: "/dev/sda1", Config: directive.DeviceConfig{IdleTimeout: 100 * time.Second}},
		{Path: "/dev/sda2", Config: directive.DeviceConfig{IdleTimeout: 200 * time.Second}},
	}
	r.Bootstrap(explicit, fakeResolve, discovered("/dev/sda"), time.Now())

	if r.Len() != 1 {
		t.Fatalf("entries = %d, want 1", r.Len())
	}
	// First entry wins.
	if got := collect(r)["/dev/sda"].Config.IdleTimeout; got != 100*time.Second {
		t.Fatalf("timeout = %s, want 100s", got)
	}
}

func TestForEachStableOrder(t *testing.T) {
	r := registry.New(directive.DeviceConfig{}, logging.NewNop())
	r.Bootstrap(nil, fakeResolve, discovered("/dev/sdc", "/dev/sda", "/dev/sdb"), time.Now())

	var order []blockdev.Identity
	r.ForEach(func(e *registry.Entry) { order = append(order, e.Identity) })
	want := []blockdev.Identity{"/dev/sda", "/dev/sdb", "/dev/sdc"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}
