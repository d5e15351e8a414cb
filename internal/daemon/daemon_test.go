package daemon

import (
	"errors"
	"testing"
	"time"

	"diskpark/internal/blockdev"
	"diskpark/internal/config"
	"diskpark/internal/directive"
	"diskpark/internal/diskstats"
	"diskpark/internal/idle"
	"diskpark/internal/logging"
	"diskpark/internal/registry"
)

func TestTickIntervalDerivation(t *testing.T) {
	cases := []struct {
		configured, minIdle, want time.Duration
	}{
		{5 * time.Second, 600 * time.Second, 5 * time.Second},
		{0, 600 * time.Second, 60 * time.Second},
		{0, 5 * time.Second, time.Second},
		{0, 0, time.Second},
	}
	for _, c := range cases {
		if got := tickInterval(c.configured, c.minIdle); got != c.want {
			t.Errorf("tickInterval(%s, %s) = %s, want %s", c.configured, c.minIdle, got, c.want)
		}
	}
}

func TestNewRejectsBadDirective(t *testing.T) {
	cfg := config.Default()
	cfg.Devices = "/dev/sda:300x"
	if _, err := New(&cfg, logging.NewNop()); !errors.Is(err, directive.ErrParse) {
		t.Fatalf("New error = %v, want ErrParse", err)
	}
}

func TestNewRefusesUnmonitoredDirective(t *testing.T) {
	cfg := config.Default()
	cfg.Devices = "/dev/sda:0"
	if _, err := New(&cfg, logging.NewNop()); !errors.Is(err, ErrNothingMonitored) {
		t.Fatalf("New error = %v, want ErrNothingMonitored", err)
	}
}

type fakeSampler struct {
	snapshots []map[blockdev.Identity]diskstats.Counters
	err       error
	calls     int
}

func (f *fakeSampler) Snapshot() (map[blockdev.Identity]diskstats.Counters, error) {
	if f.err != nil {
		return nil, f.err
	}
	snap := f.snapshots[f.calls]
	if f.calls < len(f.snapshots)-1 {
		f.calls++
	}
	return snap, nil
}

func fakeResolve(path string) (blockdev.Identity, error) {
	return blockdev.Identity(path), nil
}

func testDaemon(t *testing.T, devices string, sampler Sampler) *Daemon {
	t.Helper()
	res, err := directive.Resolve(devices)
	if err != nil {
		t.Fatalf("Resolve(%q): %v", devices, err)
	}
	d := &Daemon{
		cfg:        &config.Config{},
		logger:     logging.NewNop(),
		resolution: res,
		sampler:    sampler,
		resolver:   fakeResolve,
		registry:   registry.New(res.Default, logging.NewNop()),
	}
	d.machine = idle.NewMachine(nopControl{}, logging.NewNop(), nil)
	return d
}

type nopControl struct{}

func (nopControl) SpinDown(blockdev.Identity) error        { return nil }
func (nopControl) SyncFilesystems(blockdev.Identity) error { return nil }

func TestRescanRemovesVanishedDeviceWithoutActions(t *testing.T) {
	sampler := &fakeSampler{snapshots: []map[blockdev.Identity]diskstats.Counters{
		{"/dev/sda": {}, "/dev/sdb": {}},
		{"/dev/sdb": {}},
	}}
	d := testDaemon(t, ":300", sampler)

	snap, err := sampler.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	d.registry.Bootstrap(d.resolution.Devices, d.resolver, snap, time.Now())
	if d.registry.Len() != 2 {
		t.Fatalf("bootstrapped %d entries, want 2", d.registry.Len())
	}

	d.rescanOnce(time.Now())
	if d.registry.Len() != 1 {
		t.Fatalf("entries after rescan = %d, want 1", d.registry.Len())
	}
}

func TestTickSurvivesSampleFailure(t *testing.T) {
	sampler := &fakeSampler{snapshots: []map[blockdev.Identity]diskstats.Counters{
		{"/dev/sda": {SectorsRead: 10}},
	}}
	d := testDaemon(t, ":300", sampler)
	snap, _ := sampler.Snapshot()
	d.registry.Bootstrap(nil, d.resolver, snap, time.Now())

	sampler.err = errors.New("proc unreadable")
	d.tickOnce(time.Now())

	var phases []idle.Phase
	d.registry.ForEach(func(e *registry.Entry) { phases = append(phases, e.State.Phase) })
	if len(phases) != 1 {
		t.Fatalf("entries = %d, want 1", len(phases))
	}
	// Errored tick counts as no activity, so the countdown may start, but
	// the entry must survive untouched otherwise.
	if phases[0] != idle.PhaseCountingDown {
		t.Fatalf("phase = %s, want counting-down", phases[0])
	}
}
