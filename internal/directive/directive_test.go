package directive_test

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"diskpark/internal/directive"
)

func mustResolve(t *testing.T, input string) *directive.Resolution {
	t.Helper()
	res, err := directive.Resolve(input)
	if err != nil {
		t.Fatalf("Resolve(%q) returned error: %v", input, err)
	}
	return res
}

func deviceConfig(t *testing.T, res *directive.Resolution, path string) directive.DeviceConfig {
	t.Helper()
	for _, e := range res.Devices {
		if e.Path == path {
			return e.Config
		}
	}
	t.Fatalf("no entry for %q in resolution", path)
	return directive.DeviceConfig{}
}

func TestResolveSingleDeviceWithDefault(t *testing.T) {
	res := mustResolve(t, ":300sv /dev/sda")

	want := directive.DeviceConfig{
		IdleTimeout:        300 * time.Second,
		SyncBeforeSpindown: true,
		Verbosity:          1,
	}
	if got := deviceConfig(t, res, "/dev/sda"); got != want {
		t.Fatalf("sda config = %+v, want %+v", got, want)
	}
	if res.Default != want {
		t.Fatalf("final default = %+v, want %+v", res.Default, want)
	}
}

func TestResolveWorkedExample(t *testing.T) {
	res := mustResolve(t, ":svv300 /dev/sda /dev/sdb:6000-sS-vv")

	wantSda := directive.DeviceConfig{
		IdleTimeout:        300 * time.Second,
		SyncBeforeSpindown: true,
		Verbosity:          2,
	}
	if got := deviceConfig(t, res, "/dev/sda"); got != wantSda {
		t.Fatalf("sda config = %+v, want %+v", got, wantSda)
	}

	// "-vv" decrements twice: inherited verbosity 2 saturates down to 0.
	wantSdb := directive.DeviceConfig{
		IdleTimeout:     6000 * time.Second,
		SyncAfterSpinup: true,
	}
	if got := deviceConfig(t, res, "/dev/sdb"); got != wantSdb {
		t.Fatalf("sdb config = %+v, want %+v", got, wantSdb)
	}
}

func TestResolveLaterDefaultDoesNotRewriteEarlierDevices(t *testing.T) {
	res := mustResolve(t, ":svv300 /dev/sda /dev/sdb:6000-sS-vv :-v600")

	if got := deviceConfig(t, res, "/dev/sda").IdleTimeout; got != 300*time.Second {
		t.Fatalf("sda timeout = %s, want 300s", got)
	}
	wantDefault := directive.DeviceConfig{
		IdleTimeout:        600 * time.Second,
		SyncBeforeSpindown: true,
		Verbosity:          1,
	}
	if res.Default != wantDefault {
		t.Fatalf("final default = %+v, want %+v", res.Default, wantDefault)
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	const input = ":svv300 /dev/sda /dev/sdb:6000-sS-vv :-v600 /dev/sdc"
	first := mustResolve(t, input)
	second := mustResolve(t, input)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("resolutions differ:\n%+v\n%+v", first, second)
	}
}

func TestResolveBarePathInheritsRunningDefault(t *testing.T) {
	res := mustResolve(t, ":120s /dev/sda :600 /dev/sdb")

	if got := deviceConfig(t, res, "/dev/sda").IdleTimeout; got != 120*time.Second {
		t.Fatalf("sda timeout = %s, want 120s", got)
	}
	if got := deviceConfig(t, res, "/dev/sdb").IdleTimeout; got != 600*time.Second {
		t.Fatalf("sdb timeout = %s, want 600s", got)
	}
}

func TestResolveMinusResetsRegardlessOfPriorValue(t *testing.T) {
	for _, input := range []string{"/dev/sda:-s-S", ":sS /dev/sda:-s-S"} {
		res := mustResolve(t, input)
		cfg := deviceConfig(t, res, "/dev/sda")
		if cfg.SyncBeforeSpindown || cfg.SyncAfterSpinup {
			t.Fatalf("Resolve(%q): sync flags not cleared: %+v", input, cfg)
		}
	}
}

func TestResolveIntegerOverridesInheritedTimeout(t *testing.T) {
	res := mustResolve(t, ":9000 /dev/sda:15")
	if got := deviceConfig(t, res, "/dev/sda").IdleTimeout; got != 15*time.Second {
		t.Fatalf("timeout = %s, want 15s", got)
	}
}

func TestResolveZeroLiteralDisablesMonitoring(t *testing.T) {
	res := mustResolve(t, ":600 /dev/sda:0")
	if got := deviceConfig(t, res, "/dev/sda").IdleTimeout; got != 0 {
		t.Fatalf("timeout = %s, want 0", got)
	}
	if !res.Monitored() {
		t.Fatal("default timeout 600 should still count as monitored")
	}
}

func TestResolveVerbositySaturates(t *testing.T) {
	res := mustResolve(t, "/dev/sda:vvvvvv /dev/sdb:-v")
	if got := deviceConfig(t, res, "/dev/sda").Verbosity; got != directive.MaxVerbosity {
		t.Fatalf("verbosity = %d, want %d", got, directive.MaxVerbosity)
	}
	if got := deviceConfig(t, res, "/dev/sdb").Verbosity; got != 0 {
		t.Fatalf("verbosity = %d, want 0", got)
	}
}

func TestResolvePlusPrefixRestoresFlag(t *testing.T) {
	res := mustResolve(t, ":s /dev/sda:-s+s")
	if !deviceConfig(t, res, "/dev/sda").SyncBeforeSpindown {
		t.Fatal("expected +s to restore sync-before")
	}
}

func TestResolveRejectsInvalidInput(t *testing.T) {
	cases := map[string]string{
		"unknown flag":     "/dev/sda:300x",
		"second literal":   "/dev/sda:300s600",
		"duplicate device": "/dev/sda:300 /dev/sda:600",
		"huge literal":     "/dev/sda:99999999999999999999",
	}
	for name, input := range cases {
		if _, err := directive.Resolve(input); !errors.Is(err, directive.ErrParse) {
			t.Fatalf("%s: Resolve(%q) error = %v, want ErrParse", name, input, err)
		}
	}
}

func TestResolveEmptyDirective(t *testing.T) {
	res := mustResolve(t, "   ")
	if len(res.Devices) != 0 {
		t.Fatalf("expected no devices, got %d", len(res.Devices))
	}
	if res.Monitored() {
		t.Fatal("empty directive must not be monitored")
	}
	if res.MinIdleTimeout() != 0 {
		t.Fatalf("MinIdleTimeout = %s, want 0", res.MinIdleTimeout())
	}
}

func TestMinIdleTimeoutIgnoresDisabledDevices(t *testing.T) {
	res := mustResolve(t, ":600 /dev/sda:0 /dev/sdb:120")
	if got := res.MinIdleTimeout(); got != 120*time.Second {
		t.Fatalf("MinIdleTimeout = %s, want 120s", got)
	}
}
