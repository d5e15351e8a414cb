package daemon

import (
	"context"
	"log/slog"

	"github.com/pilebones/go-udev/netlink"

	"diskpark/internal/logging"
)

// udevMonitor listens for kernel block uevents so hot-plugged drives are
// picked up immediately instead of waiting for the next timed rescan.
type udevMonitor struct {
	logger *slog.Logger
	conn   *netlink.UEventConn
	quit   chan struct{}
}

func newUdevMonitor(logger *slog.Logger) *udevMonitor {
	return &udevMonitor{logger: logging.NewComponentLogger(logger, "udev-monitor")}
}

// Start connects to the udev netlink socket and returns a channel that
// receives a signal for every block add/remove event. Connection failure is
// non-fatal: the daemon still rescans on its timer, so the returned channel
// simply stays silent.
func (m *udevMonitor) Start(ctx context.Context) <-chan struct{} {
	events := make(chan struct{}, 1)

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("netlink connect failed, hot-plug detection limited to timed rescans",
			logging.Error(err),
		)
		return events
	}
	m.conn = conn
	m.quit = make(chan struct{})

	go m.loop(ctx, events, m.quit)
	m.logger.Info("udev monitor started")
	return events
}

// Stop shuts the monitor down. Safe to call when Start never connected.
func (m *udevMonitor) Stop() {
	if m.conn == nil {
		return
	}
	close(m.quit)
	_ = m.conn.Close()
	m.conn = nil
}

func (m *udevMonitor) loop(ctx context.Context, events chan<- struct{}, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := m.conn.Monitor(queue, errs, blockEventMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.logger.Debug("block uevent",
				logging.String("action", string(uevent.Action)),
				logging.String("kobj", uevent.KObj),
			)
			// Coalesce: one pending signal is enough to trigger a rescan.
			select {
			case events <- struct{}{}:
			default:
			}
		case err := <-errs:
			m.logger.Warn("udev monitor error", logging.Error(err))
		}
	}
}

// blockEventMatcher matches SUBSYSTEM=block with ACTION add or remove.
func blockEventMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "block",
		},
	})
	return rules
}
