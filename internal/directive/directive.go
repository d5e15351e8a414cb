package directive

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrParse tags malformed directive strings. The daemon refuses to start when
// resolution fails with this error.
var ErrParse = errors.New("directive parse error")

// MaxVerbosity caps the per-device verbosity ladder.
const MaxVerbosity = 3

// DeviceConfig is the resolved configuration for one device. Values are
// immutable after resolution; settings changes produce a whole new value.
type DeviceConfig struct {
	// IdleTimeout is the continuous inactivity span required before a
	// spin-down is issued. Zero disables monitoring for the device.
	IdleTimeout time.Duration

	// SyncBeforeSpindown flushes filesystems mounted from the device before
	// the spindle stop command is sent.
	SyncBeforeSpindown bool

	// SyncAfterSpinup flushes filesystems when a spin-up is detected.
	SyncAfterSpinup bool

	// Verbosity gates per-device event logging, 0 through MaxVerbosity.
	Verbosity int
}

func (c DeviceConfig) String() string {
	return fmt.Sprintf("{timeout: %s, sync_before: %t, sync_after: %t, verbosity: %d}",
		c.IdleTimeout, c.SyncBeforeSpindown, c.SyncAfterSpinup, c.Verbosity)
}

// DeviceEntry pairs a device path as written in the directive with its
// resolved configuration. Paths are canonicalized later, at registry
// bootstrap, so resolution stays free of device I/O.
type DeviceEntry struct {
	Path   string
	Config DeviceConfig
}

// Resolution is the complete outcome of parsing one directive string.
type Resolution struct {
	// Devices lists explicit device entries in directive order.
	Devices []DeviceEntry

	// Default is the final running default, applied to devices discovered
	// at runtime that have no explicit entry.
	Default DeviceConfig
}

// Monitored reports whether any configuration in the resolution can ever
// trigger a spin-down.
func (r *Resolution) Monitored() bool {
	if r.Default.IdleTimeout > 0 {
		return true
	}
	for _, e := range r.Devices {
		if e.Config.IdleTimeout > 0 {
			return true
		}
	}
	return false
}

// MinIdleTimeout returns the smallest non-zero idle timeout in the
// resolution, or zero when nothing is monitored. The daemon derives its
// sampling interval from it.
func (r *Resolution) MinIdleTimeout() time.Duration {
	min := time.Duration(0)
	consider := func(d time.Duration) {
		if d > 0 && (min == 0 || d < min) {
			min = d
		}
	}
	consider(r.Default.IdleTimeout)
	for _, e := range r.Devices {
		consider(e.Config.IdleTimeout)
	}
	return min
}

// Resolve parses a directive string in a single left-to-right pass.
//
// Default entries replace the running default; device entries snapshot the
// running default as of their position and apply their flag sequence on top.
// A device path listed twice is a parse error.
func Resolve(input string) (*Resolution, error) {
	res := &Resolution{}
	seen := make(map[string]struct{})

	record := func(path string, cfg DeviceConfig) error {
		if _, dup := seen[path]; dup {
			return fmt.Errorf("%w: duplicate device %q", ErrParse, path)
		}
		seen[path] = struct{}{}
		res.Devices = append(res.Devices, DeviceEntry{Path: path, Config: cfg})
		return nil
	}

	for _, entry := range strings.Fields(input) {
		path, flags, hasFlags := strings.Cut(entry, ":")
		if !hasFlags {
			// Bare path: inherit the running default verbatim.
			if err := record(entry, res.Default); err != nil {
				return nil, err
			}
			continue
		}

		cfg, err := applyFlags(res.Default, flags)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %q: %v", ErrParse, entry, err)
		}
		if path == "" {
			res.Default = cfg
			continue
		}
		if err := record(path, cfg); err != nil {
			return nil, err
		}
	}
	return res, nil
}

const maxIdleSeconds = uint64(math.MaxInt64 / int64(time.Second))

// applyFlags interprets a flag sequence as a diff on top of base, one
// character at a time.
//
// An integer literal overrides the inherited idle timeout; only one literal
// is allowed per sequence. 's'/'S' set the sync-before/sync-after flags and
// 'v' bumps verbosity; a '-' prefix inverts them ('-s' clears, '-v'
// decrements). The prefix carries across immediate repeats of the same flag
// character, so "-vv" decrements twice, while any other character restores
// the implicit '+'.
func applyFlags(base DeviceConfig, flags string) (DeviceConfig, error) {
	cfg := base
	var seconds uint64
	sawLiteral := false
	sealed := false
	prefix := byte('+')
	prev := byte(0)

	for i := 0; i < len(flags); i++ {
		c := flags[i]
		if prev != '-' && c != prev {
			prefix = '+'
		}
		if c >= '0' && c <= '9' {
			if sealed {
				return DeviceConfig{}, errors.New("idle time specified twice")
			}
			seconds = seconds*10 + uint64(c-'0')
			if seconds > maxIdleSeconds {
				return DeviceConfig{}, errors.New("idle time out of range")
			}
			sawLiteral = true
		} else {
			if sawLiteral {
				sealed = true
			}
			switch c {
			case 's':
				cfg.SyncBeforeSpindown = prefix == '+'
			case 'S':
				cfg.SyncAfterSpinup = prefix == '+'
			case 'v':
				if prefix == '+' {
					if cfg.Verbosity < MaxVerbosity {
						cfg.Verbosity++
					}
				} else if cfg.Verbosity > 0 {
					cfg.Verbosity--
				}
			case '+', '-':
				prefix = c
			default:
				return DeviceConfig{}, fmt.Errorf("invalid flag %q", string(c))
			}
		}
		prev = c
	}

	if sawLiteral {
		cfg.IdleTimeout = time.Duration(seconds) * time.Second
	}
	return cfg, nil
}
